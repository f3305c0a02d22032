package poller

import (
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/sense"
)

// Diagnostics is a point-in-time dump of the session state
type Diagnostics struct {
	Account      sense.Account            `json:"account"`
	Ready        bool                     `json:"ready"`
	Realtime     ChannelStatus            `json:"realtime"`
	Trend        ChannelStatus            `json:"trend"`
	RealtimeData *models.RealtimeSnapshot `json:"realtime_data"`
	TrendData    *models.TrendSnapshot    `json:"trend_data"`
	Gateway      sense.Attributes         `json:"gateway_state"`
	DevicesCount int                      `json:"devices_count"`
}

// Diagnostics collects the session state
func (s *Session) Diagnostics() Diagnostics {
	attrs := s.source.Attributes()
	d := Diagnostics{
		Account:      s.Account(),
		Ready:        s.Ready(),
		Realtime:     s.realtime.Status(),
		Trend:        s.trend.Status(),
		Gateway:      attrs,
		DevicesCount: len(attrs.Devices),
	}
	if snap, ok := s.realtime.Latest(); ok {
		d.RealtimeData = &snap
	}
	if snap, ok := s.trend.Latest(); ok {
		d.TrendData = &snap
	}
	return d
}

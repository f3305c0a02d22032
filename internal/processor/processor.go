package processor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/config"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

const sinkTimeout = 10 * time.Second

var log = logrus.WithField("component", "processor")

// Sink receives snapshots. Sinks are called from several workers and must be
// safe for concurrent use.
type Sink interface {
	Name() string
	WriteRealtime(ctx context.Context, monitorID string, snapshot models.RealtimeSnapshot) error
	WriteTrend(ctx context.Context, monitorID string, snapshot models.TrendSnapshot) error
}

// BucketWriter stores aggregated power buckets
type BucketWriter interface {
	WritePowerBuckets(ctx context.Context, buckets []models.PowerBucket) error
}

type item struct {
	monitorID string
	realtime  *models.RealtimeSnapshot
	trend     *models.TrendSnapshot
}

// Processor fans snapshots out to sinks off the polling goroutines
type Processor struct {
	sinks           []Sink
	config          config.ProcessorConfig
	queue           chan item
	wg              sync.WaitGroup
	powerAggregator *powerAggregator
	stopOnce        sync.Once
}

// NewProcessor creates a new processor and starts its workers. buckets may be
// nil, in which case no aggregation is done.
func NewProcessor(cfg config.ProcessorConfig, buckets BucketWriter, sinks ...Sink) *Processor {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}

	p := &Processor{
		sinks:  sinks,
		config: cfg,
		queue:  make(chan item, cfg.QueueSize),
	}

	if cfg.EnableAggregations && buckets != nil {
		p.powerAggregator = newPowerAggregator(buckets, cfg.BucketDuration, cfg.FlushInterval)
	}

	p.wg.Add(cfg.WorkerCount)
	for i := 0; i < cfg.WorkerCount; i++ {
		go p.worker(i)
	}

	return p
}

// PublishRealtime queues a realtime snapshot
func (p *Processor) PublishRealtime(monitorID string, snapshot models.RealtimeSnapshot) {
	p.enqueue(item{monitorID: monitorID, realtime: &snapshot})
}

// PublishTrend queues a trend snapshot
func (p *Processor) PublishTrend(monitorID string, snapshot models.TrendSnapshot) {
	p.enqueue(item{monitorID: monitorID, trend: &snapshot})
}

func (p *Processor) enqueue(it item) {
	select {
	case p.queue <- it:
	default:
		// Queue is full, log and drop
		metrics.IncDroppedSnapshot()
		log.WithField("monitor_id", it.monitorID).Warn("Processing queue is full, dropping snapshot")
	}
}

// worker processes snapshots from the queue
func (p *Processor) worker(id int) {
	defer p.wg.Done()

	for it := range p.queue {
		p.dispatch(id, it)
	}
}

func (p *Processor) dispatch(worker int, it item) {
	for _, sink := range p.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		var err error
		if it.realtime != nil {
			err = sink.WriteRealtime(ctx, it.monitorID, *it.realtime)
		} else {
			err = sink.WriteTrend(ctx, it.monitorID, *it.trend)
		}
		cancel()

		metrics.ObserveSinkWrite(sink.Name(), err)
		if err != nil {
			log.WithFields(logrus.Fields{"worker": worker, "sink": sink.Name()}).WithError(err).Error("Error writing snapshot")
		}
	}

	if it.realtime != nil && p.powerAggregator != nil {
		p.powerAggregator.update(it.monitorID, *it.realtime)
	}
}

// Stop drains the queue, waits for the workers and flushes the aggregator.
// Publishing after Stop panics.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()

		// Final flush for aggregators
		if p.powerAggregator != nil {
			p.powerAggregator.stop()
		}
	})
}

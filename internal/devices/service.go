// Package devices exposes the device management operations of the monitor to
// the HTTP API and the Kafka command topic.
package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/metrics"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/sense"
)

var (
	// ErrInvalidDevice is returned for an empty device id
	ErrInvalidDevice = errors.New("devices: device id is required")

	// ErrInvalidName is returned for an empty rename target
	ErrInvalidName = errors.New("devices: name is required")

	// ErrUnknownAction is returned for commands this service does not handle
	ErrUnknownAction = errors.New("devices: unknown action")
)

var log = logrus.WithField("component", "devices")

// InfoPublisher receives the answer to info commands
type InfoPublisher interface {
	PublishDeviceInfo(ctx context.Context, monitorID, deviceID string, info map[string]interface{}) error
}

// Service wraps the monitor's device endpoints
type Service struct {
	source    sense.DeviceService
	publisher InfoPublisher
	monitorID func() string
}

// Option configures a Service
type Option func(*Service)

// WithInfoPublisher publishes the result of info commands for the monitor returned by monitorID
func WithInfoPublisher(p InfoPublisher, monitorID func() string) Option {
	return func(s *Service) {
		s.publisher = p
		s.monitorID = monitorID
	}
}

// NewService creates a device service
func NewService(source sense.DeviceService, opts ...Option) *Service {
	s := &Service{source: source}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all known devices
func (s *Service) List(ctx context.Context) ([]models.Device, error) {
	return s.source.Devices(ctx)
}

// Info returns the detail document of a device
func (s *Service) Info(ctx context.Context, deviceID string) (map[string]interface{}, error) {
	if deviceID == "" {
		return nil, ErrInvalidDevice
	}
	info, err := s.source.DeviceInfo(ctx, deviceID)
	metrics.ObserveDeviceCommand(models.ActionInfo, err)
	if err != nil {
		return nil, fmt.Errorf("device %s info: %w", deviceID, err)
	}
	return info, nil
}

// Reset removes a learned device
func (s *Service) Reset(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return ErrInvalidDevice
	}
	err := s.source.ResetDevice(ctx, deviceID)
	metrics.ObserveDeviceCommand(models.ActionReset, err)
	if err != nil {
		return fmt.Errorf("device %s reset: %w", deviceID, err)
	}
	log.WithField("device_id", deviceID).Info("Device reset")
	return nil
}

// Rename gives a device a new display name
func (s *Service) Rename(ctx context.Context, deviceID, name string) error {
	if deviceID == "" {
		return ErrInvalidDevice
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	err := s.source.RenameDevice(ctx, deviceID, name)
	metrics.ObserveDeviceCommand(models.ActionRename, err)
	if err != nil {
		return fmt.Errorf("device %s rename: %w", deviceID, err)
	}
	log.WithFields(logrus.Fields{"device_id": deviceID, "name": name}).Info("Device renamed")
	return nil
}

// HandleCommand runs a command received from the command topic
func (s *Service) HandleCommand(ctx context.Context, cmd models.DeviceCommand) error {
	switch cmd.Action {
	case models.ActionInfo:
		info, err := s.Info(ctx, cmd.DeviceID)
		if err != nil {
			return err
		}
		if s.publisher == nil {
			return nil
		}
		return s.publisher.PublishDeviceInfo(ctx, s.monitorID(), cmd.DeviceID, info)
	case models.ActionReset:
		return s.Reset(ctx, cmd.DeviceID)
	case models.ActionRename:
		return s.Rename(ctx, cmd.DeviceID, cmd.Name)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}
}

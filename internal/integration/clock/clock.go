// Package clock is the built-in integration that ticks once per second,
// letting time-triggered rules hang off ClockTickEvent without going
// through the scheduler.
package clock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hatdsl/hat/internal/integration"
)

const integrationID = "ClockIntegration"

var errNoDevices = errors.New("the clock integration has no actuatable devices")

// Clock emits a ClockTickEvent every second from a synthetic "Clock" device.
type Clock struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// New builds a clock ticking once per second.
func New() *Clock {
	return &Clock{interval: time.Second}
}

// NewWithInterval builds a clock with a custom tick interval, for tests.
func NewWithInterval(interval time.Duration) *Clock {
	return &Clock{interval: interval}
}

func (c *Clock) device() integration.Device {
	return integration.Device{
		Integration: integrationID,
		ID:          "Clock",
		Type:        integration.DeviceUnknown,
	}
}

func (c *Clock) ListDevices(context.Context) ([]integration.Device, error) {
	return nil, nil
}

func (c *Clock) GetDevice(context.Context, string) (*integration.Device, error) {
	return nil, nil
}

func (c *Clock) TurnOnDevice(context.Context, string) error  { return errNoDevices }
func (c *Clock) TurnOffDevice(context.Context, string) error { return errNoDevices }

func (c *Clock) SetLightColorRGB(context.Context, string, [3]byte) error {
	return errNoDevices
}

func (c *Clock) SetLightBrightness(context.Context, string, byte) error {
	return errNoDevices
}

func (c *Clock) Subscribe() <-chan integration.Event {
	events := make(chan integration.Event)

	c.mu.Lock()
	if c.stop == nil {
		c.stop = make(chan struct{})
	}
	stop := c.stop
	c.mu.Unlock()

	go func() {
		defer close(events)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				event := integration.Event{
					Type:      integration.EventClockTick,
					Timestamp: now.Local(),
					Device:    c.device(),
				}
				select {
				case events <- event:
				case <-stop:
					return
				}
			}
		}
	}()

	return events
}

// Close stops the tick goroutine and closes the event stream.
func (c *Clock) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Clock) ID() string {
	return integrationID
}

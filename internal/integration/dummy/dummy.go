// Package dummy is an event generator for development and tests: one fake
// device that emits a Dummy event on a fixed interval and accepts every
// actuation.
package dummy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatdsl/hat/internal/integration"
)

const deviceID = "dummy-device-2707"

// idCounter suffixes integration ids so several dummies can coexist in one
// runtime.
var idCounter atomic.Uint64

// Dummy is a self-contained fake integration.
type Dummy struct {
	id       string
	interval time.Duration

	mu    sync.RWMutex
	state string
	stop  chan struct{}
}

// New builds a dummy integration emitting an event every three seconds.
func New() *Dummy {
	return NewWithInterval(3 * time.Second)
}

// NewWithInterval builds a dummy with a custom emit interval, for tests.
func NewWithInterval(interval time.Duration) *Dummy {
	return &Dummy{
		id:       fmt.Sprintf("DummyIntegration%d", idCounter.Add(1)-1),
		interval: interval,
		state:    "off",
	}
}

func (d *Dummy) device() integration.Device {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return integration.Device{
		Integration: d.id,
		ID:          deviceID,
		Name:        "Dummy Device",
		Type:        integration.DeviceDummy,
		State:       d.state,
	}
}

func (d *Dummy) ListDevices(context.Context) ([]integration.Device, error) {
	return []integration.Device{d.device()}, nil
}

func (d *Dummy) GetDevice(_ context.Context, id string) (*integration.Device, error) {
	if id != deviceID {
		return nil, nil
	}
	device := d.device()
	return &device, nil
}

func (d *Dummy) TurnOnDevice(_ context.Context, id string) error {
	return d.setState(id, "on")
}

func (d *Dummy) TurnOffDevice(_ context.Context, id string) error {
	return d.setState(id, "off")
}

func (d *Dummy) setState(id, state string) error {
	if id != deviceID {
		return fmt.Errorf("unknown device %q", id)
	}
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
	return nil
}

func (d *Dummy) SetLightColorRGB(_ context.Context, id string, _ [3]byte) error {
	if id != deviceID {
		return fmt.Errorf("unknown device %q", id)
	}
	return nil
}

func (d *Dummy) SetLightBrightness(_ context.Context, id string, _ byte) error {
	if id != deviceID {
		return fmt.Errorf("unknown device %q", id)
	}
	return nil
}

func (d *Dummy) Subscribe() <-chan integration.Event {
	events := make(chan integration.Event)

	d.mu.Lock()
	if d.stop == nil {
		d.stop = make(chan struct{})
	}
	stop := d.stop
	d.mu.Unlock()

	go func() {
		defer close(events)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()

		for {
			event := integration.Event{
				Type:      integration.EventDummy,
				Timestamp: time.Now().Local(),
				Device:    d.device(),
			}
			select {
			case events <- event:
			case <-stop:
				return
			}

			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}()

	return events
}

// Close stops the emitter goroutine and closes the event stream.
func (d *Dummy) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
}

func (d *Dummy) ID() string {
	return d.id
}

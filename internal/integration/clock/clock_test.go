package clock

import (
	"testing"
	"time"

	"github.com/hatdsl/hat/internal/integration"
)

func TestClockTicks(t *testing.T) {
	c := NewWithInterval(10 * time.Millisecond)
	defer c.Close()

	events := c.Subscribe()

	select {
	case event := <-events:
		if event.Type != integration.EventClockTick {
			t.Errorf("event type = %v", event.Type)
		}
		if event.Device.ID != "Clock" || event.Device.Type != integration.DeviceUnknown {
			t.Errorf("device = %+v", event.Device)
		}
	case <-time.After(time.Second):
		t.Fatal("no tick arrived")
	}
}

func TestClockCloseEndsStream(t *testing.T) {
	c := NewWithInterval(10 * time.Millisecond)
	events := c.Subscribe()
	c.Close()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close")
		}
	}
}

func TestClockRefusesActuation(t *testing.T) {
	c := New()
	defer c.Close()

	if err := c.TurnOnDevice(t.Context(), "Clock"); err == nil {
		t.Error("clock must refuse actuation")
	}
}

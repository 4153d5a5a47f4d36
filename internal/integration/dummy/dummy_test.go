package dummy

import (
	"testing"
	"time"

	"github.com/hatdsl/hat/internal/integration"
)

func TestDummyEmitsEvents(t *testing.T) {
	d := NewWithInterval(10 * time.Millisecond)
	defer d.Close()

	events := d.Subscribe()

	select {
	case event := <-events:
		if event.Type != integration.EventDummy {
			t.Errorf("event type = %v", event.Type)
		}
		if event.Device.ID != "dummy-device-2707" {
			t.Errorf("device id = %q", event.Device.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event arrived")
	}
}

func TestDummyActuation(t *testing.T) {
	d := NewWithInterval(time.Hour)
	defer d.Close()
	ctx := t.Context()

	device, err := d.GetDevice(ctx, "dummy-device-2707")
	if err != nil || device == nil {
		t.Fatalf("get device: %v, %v", device, err)
	}
	if device.State != "off" {
		t.Errorf("initial state = %q", device.State)
	}

	if err := d.TurnOnDevice(ctx, "dummy-device-2707"); err != nil {
		t.Fatal(err)
	}
	device, _ = d.GetDevice(ctx, "dummy-device-2707")
	if device.State != "on" {
		t.Errorf("state after turn on = %q", device.State)
	}

	if err := d.TurnOnDevice(ctx, "other"); err == nil {
		t.Error("unknown device must fail")
	}

	missing, err := d.GetDevice(ctx, "other")
	if err != nil || missing != nil {
		t.Errorf("unknown device lookup = %v, %v", missing, err)
	}
}

func TestDummyIDsAreUnique(t *testing.T) {
	a, b := New(), New()
	defer a.Close()
	defer b.Close()

	if a.ID() == b.ID() {
		t.Errorf("ids collide: %q", a.ID())
	}
}

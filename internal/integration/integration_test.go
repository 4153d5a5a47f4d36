package integration

import "testing"

func TestEventTypeMatching(t *testing.T) {
	tests := []struct {
		typ     EventType
		trigger string
		want    bool
	}{
		{EventDoorOpen, "DoorOpenEvent", true},
		{EventDoorOpen, "dooropenevent", true},
		{EventDoorOpen, "DOOROPENEVENT", true},
		{EventDoorOpen, "DoorCloseEvent", false},
		{EventDummy, "dummy", true},
		{EventClockTick, "clocktickevent", true},
	}

	for _, tt := range tests {
		if got := tt.typ.Matches(tt.trigger); got != tt.want {
			t.Errorf("%v.Matches(%q) = %v, want %v", tt.typ, tt.trigger, got, tt.want)
		}
	}
}

func TestEventTypeNamesComplete(t *testing.T) {
	names := EventTypeNames()
	if len(names) != 12 {
		t.Fatalf("event type count = %d, want 12", len(names))
	}

	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			t.Errorf("duplicate event type name %q", name)
		}
		seen[name] = true
	}
	for _, required := range []string{"Dummy", "DoorOpenEvent", "SensorValueChangeEvent", "ButtonPressedEvent", "ClockTickEvent"} {
		if !seen[required] {
			t.Errorf("missing event type %q", required)
		}
	}
}

func TestDeviceFullID(t *testing.T) {
	device := Device{Integration: "HassIntegration0", ID: "light.kitchen"}
	if got := device.FullID(); got != "HassIntegration0@light.kitchen" {
		t.Errorf("FullID = %q", got)
	}
}

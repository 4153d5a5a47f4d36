// Package integration defines the contract between the HAT runtime and
// device providers: the Integration interface, the Device record, and the
// Event stream they feed into the rule engine.
package integration

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// EventType enumerates the canonical event classes emitted by integrations.
type EventType int

const (
	EventUnknown EventType = iota
	EventDummy
	EventDoorOpen
	EventDoorClose
	EventLightOn
	EventLightOff
	EventSwitchTurnedOn
	EventSwitchTurnedOff
	EventMotionSensorOn
	EventMotionSensorOff
	EventSensorValueChange
	EventClockTick
	EventButtonPressed
)

var eventTypeNames = map[EventType]string{
	EventDummy:             "Dummy",
	EventDoorOpen:          "DoorOpenEvent",
	EventDoorClose:         "DoorCloseEvent",
	EventLightOn:           "LightOnEvent",
	EventLightOff:          "LightOffEvent",
	EventSwitchTurnedOn:    "SwitchTurnedOnEvent",
	EventSwitchTurnedOff:   "SwitchTurnedOffEvent",
	EventMotionSensorOn:    "MotionSensorOnEvent",
	EventMotionSensorOff:   "MotionSensorOffEvent",
	EventSensorValueChange: "SensorValueChangeEvent",
	EventClockTick:         "ClockTickEvent",
	EventButtonPressed:     "ButtonPressedEvent",
}

// String returns the canonical name of the event type. Automation triggers
// are matched against this name case-insensitively.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Matches reports whether the given trigger name refers to this event type.
func (t EventType) Matches(trigger string) bool {
	return strings.EqualFold(t.String(), trigger)
}

// EventTypeNames lists every canonical event type name.
func EventTypeNames() []string {
	names := make([]string, 0, len(eventTypeNames))
	for _, t := range []EventType{
		EventDummy, EventDoorOpen, EventDoorClose, EventLightOn, EventLightOff,
		EventSwitchTurnedOn, EventSwitchTurnedOff, EventMotionSensorOn,
		EventMotionSensorOff, EventSensorValueChange, EventClockTick,
		EventButtonPressed,
	} {
		names = append(names, t.String())
	}
	return names
}

// DeviceType classifies a device by its capability.
type DeviceType string

const (
	DeviceDummy        DeviceType = "dummy"
	DeviceDoorSensor   DeviceType = "door_sensor"
	DeviceLight        DeviceType = "light"
	DeviceSensor       DeviceType = "sensor"
	DeviceSwitch       DeviceType = "switch"
	DeviceMotionSensor DeviceType = "motion_sensor"
	DeviceButton       DeviceType = "button"
	DeviceUnknown      DeviceType = "unknown"
)

// Device describes one device as known to its integration.
type Device struct {
	Integration string                     `json:"integration"`
	ID          string                     `json:"id"`
	Name        string                     `json:"name,omitempty"`
	Type        DeviceType                 `json:"type"`
	State       string                     `json:"state,omitempty"`
	Attributes  map[string]json.RawMessage `json:"attributes,omitempty"`
}

// FullID returns the globally unique device id `integration@device`.
func (d Device) FullID() string {
	return d.Integration + "@" + d.ID
}

// Event is an immutable record of something a device did.
type Event struct {
	Type       EventType         `json:"type"`
	Timestamp  time.Time         `json:"timestamp"`
	Device     Device            `json:"device"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Integration is a device provider. Implementations must be safe for
// concurrent use; every actuation method is scoped to a single call and a
// failure leaves the integration usable.
type Integration interface {
	// ListDevices returns a snapshot of the devices currently known.
	ListDevices(ctx context.Context) ([]Device, error)

	// GetDevice returns the device with the given local id, or nil when the
	// integration does not know it.
	GetDevice(ctx context.Context, id string) (*Device, error)

	TurnOnDevice(ctx context.Context, id string) error
	TurnOffDevice(ctx context.Context, id string) error

	// SetLightColorRGB applies to light-class devices only.
	SetLightColorRGB(ctx context.Context, id string, rgb [3]byte) error

	// SetLightBrightness applies to light-class devices only; brightness is 0..255.
	SetLightBrightness(ctx context.Context, id string, brightness byte) error

	// Subscribe returns a channel of events. The channel is closed when the
	// integration shuts down.
	Subscribe() <-chan Event

	// ID returns the stable unique identifier of this integration instance.
	ID() string
}

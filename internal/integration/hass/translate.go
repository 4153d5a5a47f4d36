package hass

import (
	"encoding/json"
	"time"

	"github.com/hatdsl/hat/internal/integration"
)

// translateEvent maps a server event to a runtime event. Only state changes
// of recognized entity domains translate; everything else is ignored.
func translateEvent(integrationID string, serverEvent *ServerEvent) (integration.Event, bool) {
	change, ok := serverEvent.StateChange()
	if !ok {
		return integration.Event{}, false
	}

	fired, err := time.Parse(time.RFC3339, serverEvent.TimeFired)
	if err != nil {
		return integration.Event{}, false
	}
	fired = fired.Local()

	newState := stringField(change.NewState, "state")
	oldState := stringField(change.OldState, "state")

	var attributes map[string]json.RawMessage
	if raw, ok := change.NewState["attributes"]; ok {
		_ = json.Unmarshal(raw, &attributes)
	}
	deviceClass := rawString(attributes["device_class"])

	device := integration.Device{
		Integration: integrationID,
		ID:          change.EntityID,
		Name:        rawString(attributes["friendly_name"]),
		Type:        deviceTypeFor(change.EntityID, deviceClass),
		State:       newState,
		Attributes:  attributes,
	}

	event := integration.Event{
		Timestamp: fired,
		Device:    device,
	}

	switch device.Type {
	case integration.DeviceDoorSensor:
		switch {
		case oldState == "off" && newState == "on":
			event.Type = integration.EventDoorOpen
		case oldState == "on" && newState == "off":
			event.Type = integration.EventDoorClose
		default:
			return integration.Event{}, false
		}

	case integration.DeviceMotionSensor:
		switch {
		case oldState == "off" && newState == "on":
			event.Type = integration.EventMotionSensorOn
		case oldState == "on" && newState == "off":
			event.Type = integration.EventMotionSensorOff
		default:
			return integration.Event{}, false
		}

	case integration.DeviceLight:
		switch {
		case oldState == "off" && newState == "on":
			event.Type = integration.EventLightOn
		case oldState == "on" && newState == "off":
			event.Type = integration.EventLightOff
		default:
			return integration.Event{}, false
		}

	case integration.DeviceSwitch:
		switch {
		case oldState == "off" && newState == "on":
			event.Type = integration.EventSwitchTurnedOn
		case oldState == "on" && newState == "off":
			event.Type = integration.EventSwitchTurnedOff
		default:
			return integration.Event{}, false
		}

	case integration.DeviceSensor:
		event.Type = integration.EventSensorValueChange
		if newState != "" {
			event.Parameters = map[string]string{"value": newState}
		}

	case integration.DeviceButton:
		event.Type = integration.EventButtonPressed

	default:
		return integration.Event{}, false
	}

	return event, true
}

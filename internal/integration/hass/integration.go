package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hatdsl/hat/internal/integration"
)

// idCounter suffixes integration ids so several Home Assistant instances
// can coexist in one runtime.
var idCounter atomic.Uint64

// Hass is the Home Assistant integration: REST for device state and
// actuation, WebSocket for the event stream.
type Hass struct {
	id         string
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	ws         *WSClient
}

// Connect dials the instance at baseURL (http or https) and authenticates
// both transports with the long-lived access token.
func Connect(ctx context.Context, baseURL, accessToken string) (*Hass, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse home assistant url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unknown url scheme %q", parsed.Scheme)
	}

	wsURL := *parsed
	if parsed.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/api/websocket"

	ws, err := ConnectWS(ctx, wsURL.String(), accessToken)
	if err != nil {
		return nil, err
	}

	return &Hass{
		id:         fmt.Sprintf("HassIntegration%d", idCounter.Add(1)-1),
		baseURL:    parsed,
		token:      accessToken,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		ws:         ws,
	}, nil
}

// WS exposes the underlying websocket client.
func (h *Hass) WS() *WSClient {
	return h.ws
}

func (h *Hass) ID() string {
	return h.id
}

// Close shuts the websocket connection down, ending the event stream.
func (h *Hass) Close() {
	h.ws.Close()
}

func (h *Hass) endpoint(route string) string {
	u := *h.baseURL
	u.Path = route
	return u.String()
}

func (h *Hass) doJSON(ctx context.Context, method, route string, body any, into any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.endpoint(route), reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%s %s failed: status %d", method, route, resp.StatusCode)
	}

	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", route, err)
		}
	}
	return resp.StatusCode, nil
}

// entityState is the REST representation of one entity.
type entityState struct {
	EntityID   string                     `json:"entity_id"`
	State      string                     `json:"state"`
	Attributes map[string]json.RawMessage `json:"attributes"`
}

func (s entityState) device(integrationID string) integration.Device {
	return integration.Device{
		Integration: integrationID,
		ID:          s.EntityID,
		Name:        rawString(s.Attributes["friendly_name"]),
		Type:        deviceTypeFor(s.EntityID, rawString(s.Attributes["device_class"])),
		State:       s.State,
		Attributes:  s.Attributes,
	}
}

func rawString(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// deviceTypeFor classifies an entity by its id prefix and device class.
func deviceTypeFor(entityID, deviceClass string) integration.DeviceType {
	domain, _, found := strings.Cut(entityID, ".")
	if !found {
		return integration.DeviceUnknown
	}
	switch domain {
	case "light":
		return integration.DeviceLight
	case "sensor", "input_number":
		return integration.DeviceSensor
	case "binary_sensor":
		switch deviceClass {
		case "door":
			return integration.DeviceDoorSensor
		case "motion":
			return integration.DeviceMotionSensor
		default:
			return integration.DeviceUnknown
		}
	case "switch":
		if deviceClass == "outlet" {
			return integration.DeviceSwitch
		}
		return integration.DeviceUnknown
	case "input_boolean":
		return integration.DeviceSwitch
	case "input_button":
		return integration.DeviceButton
	default:
		return integration.DeviceUnknown
	}
}

func (h *Hass) ListDevices(ctx context.Context) ([]integration.Device, error) {
	var entities []entityState
	if _, err := h.doJSON(ctx, http.MethodGet, "/api/states", nil, &entities); err != nil {
		return nil, err
	}

	devices := make([]integration.Device, 0, len(entities))
	for _, entity := range entities {
		device := entity.device(h.id)
		if device.Type == integration.DeviceUnknown {
			continue
		}
		devices = append(devices, device)
	}
	return devices, nil
}

func (h *Hass) GetDevice(ctx context.Context, id string) (*integration.Device, error) {
	var entity entityState
	status, err := h.doJSON(ctx, http.MethodGet, "/api/states/"+id, nil, &entity)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	device := entity.device(h.id)
	return &device, nil
}

// callService posts to a service endpoint for one entity.
func (h *Hass) callService(ctx context.Context, domain, service string, payload map[string]any) error {
	route := fmt.Sprintf("/api/services/%s/%s", domain, service)
	_, err := h.doJSON(ctx, http.MethodPost, route, payload, nil)
	return err
}

func entityDomain(deviceID string) (string, error) {
	domain, _, found := strings.Cut(deviceID, ".")
	if !found {
		return "", fmt.Errorf("device id %q does not contain a home assistant domain", deviceID)
	}
	return domain, nil
}

func (h *Hass) TurnOnDevice(ctx context.Context, deviceID string) error {
	device, err := h.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return fmt.Errorf("device %q not found", deviceID)
	}
	if device.State != "off" {
		return fmt.Errorf("cannot turn on a device that is not off: %s.state = %q", deviceID, device.State)
	}

	domain, err := entityDomain(deviceID)
	if err != nil {
		return err
	}
	return h.callService(ctx, domain, "turn_on", map[string]any{"entity_id": deviceID})
}

func (h *Hass) TurnOffDevice(ctx context.Context, deviceID string) error {
	device, err := h.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return fmt.Errorf("device %q not found", deviceID)
	}
	if device.State != "on" {
		return fmt.Errorf("cannot turn off a device that is not on: %s.state = %q", deviceID, device.State)
	}

	domain, err := entityDomain(deviceID)
	if err != nil {
		return err
	}
	return h.callService(ctx, domain, "turn_off", map[string]any{"entity_id": deviceID})
}

func (h *Hass) SetLightColorRGB(ctx context.Context, deviceID string, rgb [3]byte) error {
	domain, err := entityDomain(deviceID)
	if err != nil {
		return err
	}
	if domain != "light" {
		return fmt.Errorf("device %q is not a light", deviceID)
	}
	return h.callService(ctx, "light", "turn_on", map[string]any{
		"entity_id": deviceID,
		"rgb_color": []int{int(rgb[0]), int(rgb[1]), int(rgb[2])},
	})
}

func (h *Hass) SetLightBrightness(ctx context.Context, deviceID string, brightness byte) error {
	domain, err := entityDomain(deviceID)
	if err != nil {
		return err
	}
	if domain != "light" {
		return fmt.Errorf("device %q is not a light", deviceID)
	}
	return h.callService(ctx, "light", "turn_on", map[string]any{
		"entity_id":  deviceID,
		"brightness": int(brightness),
	})
}

// Subscribe starts the event stream and translates state changes into
// runtime events. The returned channel closes when the subscription or the
// connection ends.
func (h *Hass) Subscribe() <-chan integration.Event {
	events := make(chan integration.Event)

	go func() {
		defer close(events)

		ctx := context.Background()
		stream, err := h.ws.SubscribeEvents(ctx, "")
		if err != nil {
			log.Printf("[hass:%s] failed to subscribe to events: %v", h.id, err)
			return
		}
		defer stream.Close()

		for {
			serverEvent, err := stream.Next(ctx)
			if err != nil {
				log.Printf("[hass:%s] failed to read event: %v", h.id, err)
				return
			}

			runtimeEvent, ok := translateEvent(h.id, serverEvent)
			if !ok {
				continue
			}
			select {
			case events <- runtimeEvent:
			case <-h.ws.done:
				return
			}
		}
	}()

	return events
}

// Package api holds the JSON types of the hatd control surface, shared by
// the server and the hatctl client.
package api

import (
	"time"

	"github.com/hatdsl/hat/internal/integration"
	"github.com/hatdsl/hat/internal/store"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Errors []string `json:"errors"`
}

// ParseErrorDetail mirrors a structured HAT parse error.
type ParseErrorDetail struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Start    int      `json:"start"`
	End      int      `json:"end"`
	LineText string   `json:"line_text"`
	Expected []string `json:"expected"`
}

// UpdateCodeRequest replaces the loaded HAT source.
type UpdateCodeRequest struct {
	Filename string `json:"filename"`
	Source   string `json:"source"`
}

// UpdateCodeResponse reports the outcome of an update. ParseError is set
// when the source was rejected.
type UpdateCodeResponse struct {
	OK         bool              `json:"ok"`
	ParseError *ParseErrorDetail `json:"parse_error,omitempty"`
}

// DevicesResponse lists devices across all integrations.
type DevicesResponse struct {
	Devices []integration.Device `json:"devices"`
}

// DeviceResponse carries a single device lookup; Device is null when the id
// resolved to nothing.
type DeviceResponse struct {
	Device *integration.Device `json:"device"`
}

// PossibleEventsResponse lists the canonical event type names usable as
// automation triggers.
type PossibleEventsResponse struct {
	Events []string `json:"events"`
}

// HistoryResponse pages through the recorded event history.
type HistoryResponse struct {
	Events []store.StoredEvent `json:"events"`
}

// ClearHistoryResponse reports how many history rows a clear removed.
type ClearHistoryResponse struct {
	Cleared int64 `json:"cleared"`
}

// StatusResponse is a health snapshot of the daemon.
type StatusResponse struct {
	StartedAt    time.Time `json:"started_at"`
	UptimeSec    int64     `json:"uptime_sec"`
	Automations  []string  `json:"automations"`
	Integrations []string  `json:"integrations"`
}

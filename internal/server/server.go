// Package server exposes the hatd HTTP control surface: device listing,
// source upload, event type discovery, and the recorded event history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hatdsl/hat/internal/api"
	"github.com/hatdsl/hat/internal/integration"
	"github.com/hatdsl/hat/internal/lang"
	"github.com/hatdsl/hat/internal/runtime"
	"github.com/hatdsl/hat/internal/store"
)

type Server struct {
	runtime   *runtime.Runtime
	store     *store.Store
	logger    *log.Logger
	startedAt time.Time
}

func New(rt *runtime.Runtime, eventStore *store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		runtime:   rt,
		store:     eventStore,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Router builds the HTTP handler. CORS is permissive so the visual frontend
// can be served from anywhere.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/status", s.handleStatus)
	r.Get("/devices", s.handleDevices)
	r.Get("/device", s.handleDevice)
	r.Get("/possible_events", s.handlePossibleEvents)
	r.Get("/history", s.handleHistory)
	r.Delete("/history", s.handleClearHistory)
	r.Post("/update_code", s.handleUpdateCode)

	return r
}

// Run serves the control surface until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Printf("[server] listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, api.ErrorResponse{Errors: messages})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	automations := s.runtime.AutomationNames()
	sort.Strings(automations)

	integrations := make([]string, 0)
	for _, impl := range s.runtime.Integrations() {
		integrations = append(integrations, impl.ID())
	}

	writeJSON(w, http.StatusOK, api.StatusResponse{
		StartedAt:    s.startedAt,
		UptimeSec:    int64(time.Since(s.startedAt).Seconds()),
		Automations:  automations,
		Integrations: integrations,
	})
}

// handleDevices aggregates ListDevices across every integration. A failing
// integration fails the whole listing; partial answers would be misleading.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := make([]integration.Device, 0)
	for _, impl := range s.runtime.Integrations() {
		listed, err := impl.ListDevices(r.Context())
		if err != nil {
			s.logger.Printf("[server] list devices on %s failed: %v", impl.ID(), err)
			writeError(w, http.StatusInternalServerError, "failed to list devices")
			return
		}
		devices = append(devices, listed...)
	}

	writeJSON(w, http.StatusOK, api.DevicesResponse{Devices: devices})
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}

	device, err := s.runtime.GetDevice(r.Context(), id)
	if err != nil {
		s.logger.Printf("[server] get device %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, api.DeviceResponse{Device: device})
}

func (s *Server) handlePossibleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.PossibleEventsResponse{Events: integration.EventTypeNames()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "event history is not available")
		return
	}

	query := r.URL.Query()
	filter := store.EventFilter{
		Integration: query.Get("integration"),
		DeviceID:    query.Get("device"),
		EventType:   query.Get("type"),
	}
	if raw := query.Get("since_id"); raw != "" {
		sinceID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since_id must be an integer")
			return
		}
		filter.SinceID = sinceID
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		filter.Limit = limit
	}

	events, err := s.store.ListEvents(filter)
	if err != nil {
		s.logger.Printf("[server] list history failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, api.HistoryResponse{Events: events})
}

// handleClearHistory deletes recorded events. A clear without filters is
// refused unless the caller passes all=true.
func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "event history is not available")
		return
	}

	query := r.URL.Query()
	filter := store.EventFilter{
		Integration: query.Get("integration"),
		DeviceID:    query.Get("device"),
		EventType:   query.Get("type"),
	}
	all := query.Get("all") == "true"

	if !all && filter.Integration == "" && filter.DeviceID == "" && filter.EventType == "" {
		writeError(w, http.StatusBadRequest, "refusing broad clear without all=true (or specific filters)")
		return
	}

	cleared, err := s.store.DeleteEvents(filter, all)
	if err != nil {
		s.logger.Printf("[server] clear history failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to clear events")
		return
	}

	s.logger.Printf("[server] cleared %d history event(s)", cleared)
	writeJSON(w, http.StatusOK, api.ClearHistoryResponse{Cleared: cleared})
}

func (s *Server) handleUpdateCode(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		req.Filename = "uploaded.hat"
	}

	if err := s.runtime.ReplaceSource(req.Filename, req.Source); err != nil {
		var parseErr *lang.ParseError
		if errors.As(err, &parseErr) {
			writeJSON(w, http.StatusBadRequest, api.UpdateCodeResponse{
				OK: false,
				ParseError: &api.ParseErrorDetail{
					File:     parseErr.File,
					Line:     parseErr.Line,
					Column:   parseErr.Column,
					Start:    parseErr.Start,
					End:      parseErr.End,
					LineText: parseErr.LineText,
					Expected: parseErr.Expected,
				},
			})
			return
		}

		s.logger.Printf("[server] update code failed: %v", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Printf("[server] source replaced from %s (%d automations)", req.Filename, len(s.runtime.AutomationNames()))
	writeJSON(w, http.StatusOK, api.UpdateCodeResponse{OK: true})
}

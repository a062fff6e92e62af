package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/funnyzak/reqreplay/internal/config"
	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/internal/storage"
	"github.com/funnyzak/reqreplay/pkg/i18n"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	eventLogSize     = 500
	contentTypeJSON  = "application/json"
)

// Service exposes one replay session over HTTP. Every handler touching the
// session holds mu, so requests are replayed one at a time.
type Service struct {
	cfg     *config.WebConfig
	logger  logger.Logger
	intl    *i18n.Translator
	locale  string
	mu      sync.Mutex
	session *replay.Session
	store   storage.Store
	events  *EventLog
	hub     *WebsocketHub
	formats []string
}

// Options carries the optional collaborators of a Service.
type Options struct {
	// Store enables /history and /sessions and receives failed replays.
	Store      storage.Store
	Translator *i18n.Translator
	Locale     string
}

// NewService builds a Service around sess. The caller keeps ownership of
// sess and closes it after the service.
func NewService(cfg *config.WebConfig, sess *replay.Session, log logger.Logger, opts Options) *Service {
	if cfg == nil {
		cfg = &config.WebConfig{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		cfg:     cfg,
		logger:  log,
		intl:    opts.Translator,
		locale:  opts.Locale,
		session: sess,
		store:   opts.Store,
		events:  NewEventLog(eventLogSize),
		hub:     NewWebsocketHub(log),
		formats: AllowedFormats(cfg.Export.Formats),
	}
}

// RegisterRoutes wires HTTP routes into the provided router.
func (s *Service) RegisterRoutes(router *mux.Router) {
	if s == nil {
		return
	}

	api := router.PathPrefix(normalizePath(s.cfg.AdminPath)).Subrouter()
	api.HandleFunc("/records", s.handleRecords).Methods(http.MethodGet)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session/init", s.handleInit).Methods(http.MethodPost)
	api.HandleFunc("/session/next", s.handleNext).Methods(http.MethodPost)
	api.HandleFunc("/session/previous", s.handlePrevious).Methods(http.MethodPost)
	api.HandleFunc("/session/jump/{index:[0-9]+}", s.handleJump).Methods(http.MethodPost)
	api.HandleFunc("/session/execute", s.handleExecute).Methods(http.MethodPost)
	api.HandleFunc("/session/overrides", s.handleOverrides).Methods(http.MethodPut)
	api.HandleFunc("/responses", s.handleResponses).Methods(http.MethodGet)
	api.HandleFunc("/responses/{index:[0-9]+}", s.handleResponse).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
}

// Close disconnects websocket clients.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.hub.Close()
}

// publish logs ev and pushes it to websocket clients.
func (s *Service) publish(ev Event) {
	stored := s.events.Add(ev)
	s.hub.Broadcast(stored)
}

func (s *Service) handleRecords(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	count := s.session.Count()
	cursor := s.session.Cursor()
	filter := replay.NewMimeFilter(s.session.MimeFilter()...)
	views := make([]RecordView, 0, count)
	for i := 0; i < count; i++ {
		rec, err := s.session.Record(i)
		if err != nil {
			break
		}
		views = append(views, RecordView{
			Index:       i,
			Method:      rec.Method(),
			URI:         rec.URI,
			ContentType: rec.ContentType,
			Headers:     rec.Headers,
			PostFields:  rec.PostFields,
			Matches:     filter.Match(rec.ContentType),
			Current:     i == cursor,
		})
	}
	s.mu.Unlock()

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   views,
		"total":  count,
		"cursor": cursor,
	})
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Export.Enable {
		s.respondError(w, http.StatusForbidden, "api.errors.export_disabled", nil)
		return
	}

	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "json"
	}
	if !containsFormat(s.formats, format) {
		s.respondError(w, http.StatusBadRequest, "api.errors.unsupported_format", fmt.Errorf("format %q", format))
		return
	}

	s.mu.Lock()
	records := s.session.Export()
	s.mu.Unlock()

	buf := &bytes.Buffer{}
	contentType, ext, err := ExportRecords(buf, records, format)
	if err != nil {
		s.logger.Error("Export failed", "format", format, "error", err)
		http.Error(w, "Failed to export data", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("reqreplay_records_%d.%s", time.Now().Unix(), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := clampLimit(parseIntDefault(query.Get("limit"), defaultListLimit))
	offset := parseIntDefault(query.Get("offset"), 0)

	items, total := s.events.List(EventListOptions{
		Type:   query.Get("type"),
		Search: query.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Service) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	greeting := map[string]interface{}{
		"type":    "hello",
		"session": s.state(),
	}
	s.mu.Unlock()

	if _, err := s.hub.Upgrade(w, r, greeting); err != nil {
		s.logger.Error("Failed to upgrade websocket", "error", err)
		return
	}
}

func (s *Service) t(key string) string {
	if s.intl == nil {
		return key
	}
	return s.intl.Text(s.locale, key)
}

func (s *Service) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// respondError writes {"error": <translated key>, "message": <cause>}.
func (s *Service) respondError(w http.ResponseWriter, status int, key string, cause error) {
	resp := errorResponse{Error: s.t(key)}
	if cause != nil {
		resp.Message = cause.Error()
	}
	s.respondJSON(w, status, resp)
}

// respondSessionError maps replay errors onto HTTP statuses.
func (s *Service) respondSessionError(w http.ResponseWriter, err error) {
	var transportErr *replay.TransportError
	switch {
	case errors.Is(err, replay.ErrNoNextRecord):
		s.respondError(w, http.StatusConflict, "api.errors.no_next", err)
	case errors.Is(err, replay.ErrNoPreviousRecord):
		s.respondError(w, http.StatusConflict, "api.errors.no_previous", err)
	case errors.Is(err, replay.ErrInvalidIndex):
		s.respondError(w, http.StatusBadRequest, "api.errors.invalid_index", err)
	case errors.Is(err, replay.ErrInvalidConfiguration):
		s.respondError(w, http.StatusBadRequest, "api.errors.invalid_body", err)
	case errors.Is(err, replay.ErrFieldNotFound):
		s.respondError(w, http.StatusNotFound, "api.errors.invalid_body", err)
	case errors.Is(err, replay.ErrSessionClosed), errors.Is(err, replay.ErrNoConnection):
		s.respondError(w, http.StatusServiceUnavailable, "api.errors.invalid_body", err)
	case errors.As(err, &transportErr):
		s.respondJSON(w, http.StatusBadGateway, errorResponse{Error: "replay failed", Message: err.Error()})
	default:
		s.logger.Error("Unexpected session error", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Message: err.Error()})
	}
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return def
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func containsFormat(formats []string, target string) bool {
	for _, f := range formats {
		if f == target {
			return true
		}
	}
	return false
}

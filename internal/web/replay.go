package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// state snapshots the session. Callers hold s.mu.
func (s *Service) state() SessionState {
	return SessionState{
		ID:            s.session.ID(),
		Cursor:        s.session.Cursor(),
		Count:         s.session.Count(),
		CookieMode:    s.session.CookieMode().String(),
		CookieJar:     s.session.CookieJarPath(),
		MimeFilter:    s.session.MimeFilter(),
		Prepared:      s.session.Prepared(),
		CustomHeaders: s.session.CustomHeaders(),
		PostFields:    s.session.PostFields(),
		Responses:     len(s.session.Responses()),
		Navigation: NavigateDefaults{
			ReuseConnection: s.session.Navigation().ReuseConnection,
			ResetSettings:   s.session.Navigation().ResetSettings,
		},
	}
}

func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	state := s.state()
	s.mu.Unlock()
	s.respondJSON(w, http.StatusOK, state)
}

// decodeNavigate layers optional init options over opts; an empty body
// keeps the session navigation.
func decodeNavigate(r *http.Request, opts replay.InitOptions) (replay.InitOptions, error) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return opts, nil
		}
		return opts, err
	}
	if req.ReuseConnection != nil {
		opts.ReuseConnection = *req.ReuseConnection
	}
	if req.ResetSettings != nil {
		opts.ResetSettings = *req.ResetSettings
	}
	return opts, nil
}

func (s *Service) handleInit(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, func(opts replay.InitOptions) error {
		return s.session.Init(opts)
	})
}

func (s *Service) handleNext(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, s.session.NextWith)
}

func (s *Service) handlePrevious(w http.ResponseWriter, r *http.Request) {
	s.navigate(w, r, s.session.PreviousWith)
}

func (s *Service) handleJump(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "api.errors.invalid_index", err)
		return
	}
	s.navigate(w, r, func(opts replay.InitOptions) error {
		return s.session.JumpToWith(index, opts)
	})
}

func (s *Service) navigate(w http.ResponseWriter, r *http.Request, move func(replay.InitOptions) error) {
	opts, err := decodeNavigate(r, s.session.Navigation())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "api.errors.invalid_body", err)
		return
	}

	s.mu.Lock()
	if err := move(opts); err != nil {
		s.mu.Unlock()
		s.respondSessionError(w, err)
		return
	}
	state := s.state()
	s.mu.Unlock()

	s.publish(Event{
		Type:      EventNavigate,
		SessionID: state.ID,
		Index:     state.Cursor,
		Method:    state.Prepared.Method(),
		URL:       state.Prepared.URL,
	})
	s.respondJSON(w, http.StatusOK, state)
}

// handleExecute runs the orchestrator. mode is current (default), all or
// next; next requires count.
func (s *Service) handleExecute(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := strings.ToLower(query.Get("mode"))
	if mode == "" {
		mode = "current"
	}
	count := 0
	if mode == "next" {
		n, err := strconv.Atoi(query.Get("count"))
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "api.errors.invalid_body", errors.New("count must be a non-negative integer"))
			return
		}
		count = n
	}

	s.mu.Lock()
	before := s.session.Responses()
	var err error
	switch mode {
	case "current":
		_, err = s.session.ExecuteCurrent(r.Context())
	case "all":
		_, err = s.session.ExecuteAll(r.Context())
	case "next":
		_, err = s.session.ExecuteNext(r.Context(), count)
	default:
		s.mu.Unlock()
		s.respondError(w, http.StatusBadRequest, "api.errors.invalid_body", errors.New("mode must be current, all or next"))
		return
	}
	fresh := newResponses(before, s.session.Responses())
	var failed request.Outbound
	var transportErr *replay.TransportError
	if errors.As(err, &transportErr) {
		failed = s.session.Prepared()
	}
	result := ExecuteResult{
		Mode:      mode,
		Requested: count,
		Executed:  len(fresh),
		Responses: fresh,
		Session:   s.state(),
	}
	s.mu.Unlock()

	for _, resp := range fresh {
		s.publish(Event{
			Type:       EventReplay,
			SessionID:  result.Session.ID,
			Index:      resp.Index,
			Method:     resp.Request.Method(),
			URL:        resp.Request.URL,
			StatusCode: resp.StatusCode,
			Data:       resp,
		})
	}

	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, replay.ErrInsufficientRecords):
		result.Shortfall = true
		result.Error = err.Error()
	case transportErr != nil:
		s.recordFailure(result.Session.ID, transportErr.Index, failed, transportErr.Err)
		s.publish(Event{
			Type:      EventFailure,
			SessionID: result.Session.ID,
			Index:     transportErr.Index,
			Method:    failed.Method(),
			URL:       failed.URL,
			Error:     transportErr.Err.Error(),
		})
		status = http.StatusBadGateway
		result.Error = err.Error()
	default:
		s.respondSessionError(w, err)
		return
	}
	s.respondJSON(w, status, result)
}

func (s *Service) recordFailure(sessionID string, index int, out request.Outbound, cause error) {
	if s.store == nil {
		return
	}
	if err := s.store.RecordFailure(sessionID, index, out, cause); err != nil {
		s.logger.Error("Failed to record replay failure", "index", index, "error", err)
	}
}

// newResponses returns the responses in after that were not in before,
// ordered by record index.
func newResponses(before, after map[int]*request.Response) []*request.Response {
	fresh := make([]*request.Response, 0, len(after))
	for i, resp := range after {
		if before[i] != resp {
			fresh = append(fresh, resp)
		}
	}
	sort.Slice(fresh, func(a, b int) bool { return fresh[a].Index < fresh[b].Index })
	return fresh
}

func (s *Service) handleOverrides(w http.ResponseWriter, r *http.Request) {
	var req OverridesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "api.errors.invalid_body", err)
		return
	}

	s.mu.Lock()
	err := s.applyOverrides(req)
	state := s.state()
	s.mu.Unlock()
	if err != nil {
		s.respondSessionError(w, err)
		return
	}

	s.publish(Event{
		Type:      EventUpdate,
		SessionID: state.ID,
		Index:     state.Cursor,
		Method:    state.Prepared.Method(),
		URL:       state.Prepared.URL,
	})
	s.respondJSON(w, http.StatusOK, state)
}

// applyOverrides stages req on the session. Changes made before a failing
// rename stay applied. Callers hold s.mu.
func (s *Service) applyOverrides(req OverridesRequest) error {
	if req.MimeFilter != nil {
		s.session.SetMimeFilter(*req.MimeFilter...)
	}
	if req.CookieJar != nil {
		s.session.SetCookieJar(*req.CookieJar)
	}
	if req.URL != nil {
		s.session.SetURL(*req.URL)
	}
	if req.UserAgent != nil {
		s.session.SetUserAgent(*req.UserAgent)
	}
	if req.CustomHeaders != nil {
		s.session.SetCustomHeaders(req.CustomHeaders)
	}
	for _, name := range sortedKeys(req.SetHeaders) {
		s.session.SetHeader(name, req.SetHeaders[name])
	}
	for _, name := range req.RemoveHeaders {
		s.session.RemoveHeader(name)
	}
	for _, name := range sortedKeys(req.PostFields) {
		s.session.SetPostField(name, req.PostFields[name])
	}
	for _, oldName := range sortedKeys(req.RenameFields) {
		if err := s.session.RenamePostField(oldName, req.RenameFields[oldName]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Service) handleResponses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	all := s.session.Responses()
	s.mu.Unlock()

	items := newResponses(nil, all)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":  items,
		"total": len(items),
	})
}

func (s *Service) handleResponse(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "api.errors.invalid_index", err)
		return
	}

	s.mu.Lock()
	resp, ok := s.session.Response(index)
	s.mu.Unlock()
	if !ok {
		s.respondError(w, http.StatusNotFound, "api.errors.not_found", nil)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

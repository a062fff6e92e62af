package web

import (
	"net/http"

	"github.com/funnyzak/reqreplay/internal/storage"
)

// handleHistory lists persisted replays, newest first. With ?session= and
// no paging it returns that session's replays in record order instead.
func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	sessionID := query.Get("session")
	if sessionID != "" && query.Get("limit") == "" && query.Get("offset") == "" && query.Get("search") == "" && query.Get("method") == "" {
		replays, err := s.store.GetReplays(sessionID)
		if err != nil {
			s.logger.Error("Failed to get replays", "session_id", sessionID, "error", err)
			http.Error(w, "Failed to retrieve replays", http.StatusInternalServerError)
			return
		}
		if replays == nil {
			replays = []*StoredReplay{}
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"session_id": sessionID,
			"data":       replays,
			"total":      len(replays),
		})
		return
	}

	limit := clampLimit(parseIntDefault(query.Get("limit"), defaultListLimit))
	offset := parseIntDefault(query.Get("offset"), 0)
	items, total, err := s.store.List(storage.ListOptions{
		SessionID: sessionID,
		Search:    query.Get("search"),
		Method:    query.Get("method"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.logger.Error("Failed to list replays", "error", err)
		http.Error(w, "Failed to retrieve replays", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []*StoredReplay{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":   items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Service) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	sessions, err := s.store.ListSessions()
	if err != nil {
		s.logger.Error("Failed to list sessions", "error", err)
		http.Error(w, "Failed to retrieve sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []*storage.SessionSummary{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"current": s.session.ID(),
		"data":    sessions,
		"total":   len(sessions),
	})
}

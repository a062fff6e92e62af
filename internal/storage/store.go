package storage

import (
	"errors"
	"time"

	"github.com/funnyzak/reqreplay/internal/config"
	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// ErrUnsupportedDriver indicates the configured driver is not available.
var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// ListOptions controls filtering and pagination when fetching replays.
type ListOptions struct {
	SessionID string
	Search    string
	Method    string
	Limit     int
	Offset    int
}

// StoredReplay is one persisted replay attempt.
type StoredReplay struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	RecordIndex    int       `json:"record_index"`
	Timestamp      time.Time `json:"timestamp"`
	Method         string    `json:"method"`
	URL            string    `json:"url"`
	Headers        []string  `json:"headers"`
	Body           string    `json:"body,omitempty"`
	StatusCode     int       `json:"status_code"`
	ResponseBody   []byte    `json:"response_body,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
}

// SessionSummary aggregates the replays of one session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Replays   int       `json:"replays"`
	Failures  int       `json:"failures"`
	FirstAt   time.Time `json:"first_at"`
	LastAt    time.Time `json:"last_at"`
}

// Store defines the persistence contract for replay results.
type Store interface {
	// RecordReplay stores a successful replay.
	RecordReplay(sessionID string, resp *request.Response) error
	// RecordFailure stores a replay the transport could not complete.
	RecordFailure(sessionID string, index int, out request.Outbound, cause error) error

	GetReplays(sessionID string) ([]*StoredReplay, error)
	List(ListOptions) ([]*StoredReplay, int, error)
	ListSessions() ([]*SessionSummary, error)

	Close() error
}

// New instantiates a Store based on configuration.
func New(cfg *config.StorageConfig, log logger.Logger) (Store, error) {
	if cfg == nil {
		return nil, errors.New("storage config is nil")
	}
	switch driver := cfg.Driver; driver {
	case "", "sqlite", "sqlite3":
		return newSQLiteStore(cfg, log)
	default:
		return nil, ErrUnsupportedDriver
	}
}

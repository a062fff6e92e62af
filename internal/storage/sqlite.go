package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/funnyzak/reqreplay/internal/config"
	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/pkg/request"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"

	replayColumns = "id, session_id, record_index, timestamp_ns, method, url, headers_json, body, status_code, response_body, response_time_ms, error"
)

type sqliteStore struct {
	db  *sql.DB
	cfg *config.StorageConfig
	log logger.Logger
}

func newSQLiteStore(cfg *config.StorageConfig, log logger.Logger) (Store, error) {
	path := cfg.Path
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if log == nil {
		log = logger.Nop()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.ToSlash(absPath))
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", stmt, err)
		}
	}

	store := &sqliteStore{db: db, cfg: cfg, log: log}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug("Replay store opened", "path", absPath)
	return store, nil
}

func (s *sqliteStore) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS replays (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    record_index INTEGER NOT NULL,
    timestamp_ns INTEGER NOT NULL,
    method TEXT NOT NULL,
    url TEXT NOT NULL,
    headers_json TEXT,
    body TEXT,
    status_code INTEGER,
    response_body BLOB,
    response_time_ms INTEGER,
    error TEXT
);
CREATE INDEX IF NOT EXISTS idx_replays_ts ON replays(timestamp_ns DESC);
CREATE INDEX IF NOT EXISTS idx_replays_session ON replays(session_id, record_index);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqliteStore) RecordReplay(sessionID string, resp *request.Response) error {
	if resp == nil {
		return fmt.Errorf("response is nil")
	}
	return s.insert(&StoredReplay{
		SessionID:      sessionID,
		RecordIndex:    resp.Index,
		Timestamp:      resp.Timestamp,
		Method:         resp.Request.Method(),
		URL:            resp.Request.URL,
		Headers:        resp.Request.Headers,
		Body:           resp.Request.Body,
		StatusCode:     resp.StatusCode,
		ResponseBody:   resp.Body,
		ResponseTimeMs: resp.Duration.Milliseconds(),
	})
}

func (s *sqliteStore) RecordFailure(sessionID string, index int, out request.Outbound, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.insert(&StoredReplay{
		SessionID:   sessionID,
		RecordIndex: index,
		Method:      out.Method(),
		URL:         out.URL,
		Headers:     out.Headers,
		Body:        out.Body,
		Error:       msg,
	})
}

func (s *sqliteStore) insert(data *StoredReplay) error {
	if strings.TrimSpace(data.ID) == "" {
		data.ID = uuid.NewString()
	}
	ts := data.Timestamp.UTC()
	if data.Timestamp.IsZero() {
		ts = time.Now().UTC()
	}
	data.Timestamp = ts

	headers := data.Headers
	if headers == nil {
		headers = []string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insertSQL := `INSERT INTO replays (` + replayColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insertSQL,
		data.ID,
		data.SessionID,
		data.RecordIndex,
		ts.UnixNano(),
		data.Method,
		data.URL,
		string(headersJSON),
		data.Body,
		data.StatusCode,
		data.ResponseBody,
		data.ResponseTimeMs,
		data.Error,
	)
	if err != nil {
		return fmt.Errorf("insert replay: %w", err)
	}

	if err = s.prune(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) prune(ctx context.Context, tx *sql.Tx) error {
	if s.cfg.Retention > 0 {
		cutoff := time.Now().Add(-s.cfg.Retention).UTC().UnixNano()
		if _, err := tx.ExecContext(ctx, "DELETE FROM replays WHERE timestamp_ns < ?", cutoff); err != nil {
			return fmt.Errorf("prune by retention: %w", err)
		}
	}
	if s.cfg.MaxRecords > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM replays").Scan(&count); err != nil {
			return fmt.Errorf("count replays: %w", err)
		}
		if excess := count - s.cfg.MaxRecords; excess > 0 {
			if _, err := tx.ExecContext(ctx, "DELETE FROM replays WHERE id IN (SELECT id FROM replays ORDER BY timestamp_ns ASC LIMIT ?)", excess); err != nil {
				return fmt.Errorf("prune max records: %w", err)
			}
		}
	}
	return nil
}

// GetReplays returns the replays of a session in record order, oldest
// attempt first.
func (s *sqliteStore) GetReplays(sessionID string) ([]*StoredReplay, error) {
	query := "SELECT " + replayColumns + " FROM replays WHERE session_id = ? ORDER BY record_index ASC, timestamp_ns ASC"
	rows, err := s.db.QueryContext(context.Background(), query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*StoredReplay
	for rows.Next() {
		item, err := scanStoredReplay(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (s *sqliteStore) List(opts ListOptions) ([]*StoredReplay, int, error) {
	ctx := context.Background()
	where, args := buildFilters(opts)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM replays "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT " + replayColumns + " FROM replays ")
	queryBuilder.WriteString(where)
	queryBuilder.WriteString(" ORDER BY timestamp_ns DESC")

	listArgs := append([]interface{}{}, args...)
	if opts.Limit > 0 {
		offset := opts.Offset
		if offset < 0 {
			offset = 0
		}
		queryBuilder.WriteString(" LIMIT ? OFFSET ?")
		listArgs = append(listArgs, opts.Limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, queryBuilder.String(), listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*StoredReplay
	for rows.Next() {
		item, err := scanStoredReplay(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// ListSessions summarizes every stored session, most recent first.
func (s *sqliteStore) ListSessions() ([]*SessionSummary, error) {
	query := `SELECT session_id, COUNT(1),
		SUM(CASE WHEN error IS NOT NULL AND error != '' THEN 1 ELSE 0 END),
		MIN(timestamp_ns), MAX(timestamp_ns)
		FROM replays GROUP BY session_id ORDER BY MAX(timestamp_ns) DESC`
	rows, err := s.db.QueryContext(context.Background(), query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SessionSummary
	for rows.Next() {
		var (
			summary     SessionSummary
			first, last int64
		)
		if err := rows.Scan(&summary.SessionID, &summary.Replays, &summary.Failures, &first, &last); err != nil {
			return nil, err
		}
		summary.FirstAt = time.Unix(0, first).UTC()
		summary.LastAt = time.Unix(0, last).UTC()
		result = append(result, &summary)
	}
	return result, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanStoredReplay(scanner interface {
	Scan(dest ...interface{}) error
}) (*StoredReplay, error) {
	var (
		data           StoredReplay
		ts             int64
		headersJSON    sql.NullString
		body           sql.NullString
		statusCode     sql.NullInt64
		responseBody   []byte
		responseTimeMs sql.NullInt64
		errorMsg       sql.NullString
	)

	if err := scanner.Scan(
		&data.ID,
		&data.SessionID,
		&data.RecordIndex,
		&ts,
		&data.Method,
		&data.URL,
		&headersJSON,
		&body,
		&statusCode,
		&responseBody,
		&responseTimeMs,
		&errorMsg,
	); err != nil {
		return nil, err
	}

	if headersJSON.Valid && headersJSON.String != "" {
		if err := json.Unmarshal([]byte(headersJSON.String), &data.Headers); err != nil {
			data.Headers = nil
		}
	}
	data.Timestamp = time.Unix(0, ts).UTC()
	data.Body = body.String
	data.StatusCode = int(statusCode.Int64)
	data.ResponseBody = append([]byte(nil), responseBody...)
	data.ResponseTimeMs = responseTimeMs.Int64
	data.Error = errorMsg.String
	return &data, nil
}

func buildFilters(opts ListOptions) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if sessionID := strings.TrimSpace(opts.SessionID); sessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, sessionID)
	}

	if method := strings.TrimSpace(opts.Method); method != "" {
		clauses = append(clauses, "UPPER(method) = UPPER(?)")
		args = append(args, method)
	}

	if search := strings.TrimSpace(strings.ToLower(opts.Search)); search != "" {
		like := fmt.Sprintf("%%%s%%", search)
		clauses = append(clauses, "(LOWER(url) LIKE ? OR LOWER(headers_json) LIKE ? OR LOWER(body) LIKE ? OR LOWER(error) LIKE ?)")
		args = append(args, like, like, like, like)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// Transport opens connections used to send replayed requests.
type Transport interface {
	Open() (Conn, error)
}

// Conn is one live transport connection. Send performs exactly one request
// and buffers the response body. jarPath is empty in header mode.
type Conn interface {
	Send(ctx context.Context, out request.Outbound, jarPath string) (*request.Response, error)
	Close() error
}

// Recorder receives every stored response, e.g. for persistence.
type Recorder interface {
	RecordReplay(sessionID string, resp *request.Response) error
}

// Options configures a new Session.
type Options struct {
	CookieJarPath string
	MimeFilter    []string
	Logger        logger.Logger
	Recorder      Recorder
	// Navigation overrides DefaultNavigation for Next, Previous, JumpTo
	// and the Execute loops.
	Navigation *InitOptions
}

// InitOptions controls how a record is (re)initialized.
//
// ReuseConnection keeps the live connection. ResetSettings, only valid with
// ReuseConnection, discards staged headers and POST fields before the new
// record is translated; without it the translation is layered over them.
type InitOptions struct {
	ReuseConnection bool
	ResetSettings   bool
}

// DefaultNavigation is used by Next, Previous and JumpTo.
var DefaultNavigation = InitOptions{ReuseConnection: true}

// Session replays a captured record sequence one request at a time.
// A Session is not safe for concurrent use.
type Session struct {
	id        string
	store     *Store
	cursor    *Cursor
	filter    MimeFilter
	jarPath   string
	transport Transport
	conn      Conn
	pending   pendingRequest
	responses map[int]*request.Response
	recorder  Recorder
	nav       InitOptions
	logger    logger.Logger
	closed    bool
}

// New creates a session positioned at record 0 with a fresh connection.
// The caller must Close the session.
func New(records []request.Record, tr Transport, opts Options) (*Session, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: transport is nil", ErrInvalidConfiguration)
	}
	store, err := NewStore(records)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	nav := DefaultNavigation
	if opts.Navigation != nil {
		nav = *opts.Navigation
		if !nav.ReuseConnection && nav.ResetSettings {
			return nil, fmt.Errorf("%w: resetting settings requires reusing the connection", ErrInvalidConfiguration)
		}
	}

	s := &Session{
		id:        uuid.NewString(),
		store:     store,
		cursor:    NewCursor(store.Count()),
		filter:    NewMimeFilter(opts.MimeFilter...),
		jarPath:   opts.CookieJarPath,
		transport: tr,
		responses: make(map[int]*request.Response),
		recorder:  opts.Recorder,
		nav:       nav,
		logger:    log,
	}

	if err := s.Init(InitOptions{}); err != nil {
		s.Close()
		return nil, err
	}

	log.Debug("Replay session created",
		"session_id", s.id,
		"records", store.Count(),
		"cookie_mode", s.CookieMode().String(),
	)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Init re-derives the pending request from the record at the cursor.
func (s *Session) Init(opts InitOptions) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !opts.ReuseConnection && opts.ResetSettings {
		return fmt.Errorf("%w: resetting settings requires reusing the connection", ErrInvalidConfiguration)
	}

	rec, err := s.store.At(s.cursor.Index())
	if err != nil {
		return err
	}

	if !opts.ReuseConnection || s.conn == nil {
		if err := s.reopen(); err != nil {
			return err
		}
		s.pending = pendingRequest{}
	} else if opts.ResetSettings {
		s.pending.reset()
	}

	s.pending.layer(Translate(rec, s.CookieMode()), rec.PostFields)
	return nil
}

// reopen replaces the live connection. The old one is kept when the
// transport cannot open a new one.
func (s *Session) reopen() error {
	conn, err := s.transport.Open()
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Failed to close replay connection", "error", err)
		}
	}
	s.conn = conn
	return nil
}

// Navigation returns the options used by Next, Previous and JumpTo.
func (s *Session) Navigation() InitOptions {
	return s.nav
}

// Next moves to the next reachable record using the session navigation.
func (s *Session) Next() error {
	return s.NextWith(s.nav)
}

// NextWith moves to the next reachable record and initializes it.
func (s *Session) NextWith(opts InitOptions) error {
	return s.navigate(opts, func() error { return s.cursor.Next(s.matchIndex) })
}

// Previous moves to the previous reachable record using the session navigation.
func (s *Session) Previous() error {
	return s.PreviousWith(s.nav)
}

// PreviousWith moves to the previous reachable record and initializes it.
func (s *Session) PreviousWith(opts InitOptions) error {
	return s.navigate(opts, func() error { return s.cursor.Previous(s.matchIndex) })
}

// JumpTo moves to index using the session navigation.
func (s *Session) JumpTo(index int) error {
	return s.JumpToWith(index, s.nav)
}

// JumpToWith moves to index and initializes it.
func (s *Session) JumpToWith(index int, opts InitOptions) error {
	return s.navigate(opts, func() error { return s.cursor.JumpTo(index, s.matchIndex) })
}

func (s *Session) navigate(opts InitOptions, move func() error) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !opts.ReuseConnection && opts.ResetSettings {
		return fmt.Errorf("%w: resetting settings requires reusing the connection", ErrInvalidConfiguration)
	}
	from := s.cursor.Index()
	if err := move(); err != nil {
		return err
	}
	if err := s.Init(opts); err != nil {
		// the pending request still describes the record at from
		s.cursor.index = from
		return err
	}
	s.logger.Debug("Cursor moved", "session_id", s.id, "from", from, "to", s.cursor.Index())
	return nil
}

func (s *Session) matchIndex(i int) bool {
	return s.filter.Match(s.store.contentType(i))
}

// ExecuteCurrent replays the record at the cursor and stores the response
// under the cursor index.
func (s *Session) ExecuteCurrent(ctx context.Context) (*request.Response, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.conn == nil {
		return nil, ErrNoConnection
	}
	index := s.cursor.Index()
	out := s.Prepared()

	var jar string
	if s.CookieMode() == CookieModeJar {
		jar = s.jarPath
	}

	start := time.Now()
	resp, err := s.conn.Send(ctx, out, jar)
	if err != nil {
		s.logger.Warn("Replay failed",
			"session_id", s.id,
			"index", index,
			"url", out.URL,
			"error", err,
		)
		return nil, &TransportError{Index: index, URL: out.URL, Err: err}
	}
	if resp == nil {
		resp = &request.Response{}
	}
	resp.Index = index
	resp.Request = out
	if resp.Timestamp.IsZero() {
		resp.Timestamp = start
	}
	if resp.Duration == 0 {
		resp.Duration = time.Since(start)
	}
	s.responses[index] = resp

	s.logger.Info("Record replayed",
		"session_id", s.id,
		"index", index,
		"method", out.Method(),
		"url", out.URL,
		"status_code", resp.StatusCode,
		"response_time_ms", resp.Duration.Milliseconds(),
	)

	if s.recorder != nil {
		if err := s.recorder.RecordReplay(s.id, resp); err != nil {
			s.logger.Error("Failed to record replay", "index", index, "error", err)
		}
	}
	return resp, nil
}

// ExecuteAll replays from the cursor to the last reachable record. Reaching
// the end is normal termination. It returns every stored response.
func (s *Session) ExecuteAll(ctx context.Context) (map[int]*request.Response, error) {
	for {
		if _, err := s.ExecuteCurrent(ctx); err != nil {
			return s.Responses(), err
		}
		if err := s.Next(); err != nil {
			if errors.Is(err, ErrNoNextRecord) {
				return s.Responses(), nil
			}
			return s.Responses(), err
		}
	}
}

// ExecuteNext runs n iterations of execute then advance, starting at the
// cursor. An iteration whose advance finds no next record, including the
// n-th, ends the run with an *InsufficientRecordsError carrying the
// responses stored so far; the cursor then stays on the last record.
func (s *Session) ExecuteNext(ctx context.Context, n int) (map[int]*request.Response, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrInvalidConfiguration, n)
	}
	for executed := 0; executed < n; {
		if _, err := s.ExecuteCurrent(ctx); err != nil {
			return s.Responses(), err
		}
		executed++
		if err := s.Next(); err != nil {
			if errors.Is(err, ErrNoNextRecord) {
				return s.Responses(), &InsufficientRecordsError{
					Requested: n,
					Executed:  executed,
					Responses: s.Responses(),
					Err:       err,
				}
			}
			return s.Responses(), err
		}
	}
	return s.Responses(), nil
}

// Close releases the connection. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

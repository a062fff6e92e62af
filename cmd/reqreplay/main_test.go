package main

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/funnyzak/reqreplay/internal/config"
	"github.com/funnyzak/reqreplay/internal/printer"
	"github.com/funnyzak/reqreplay/internal/storage"
	"github.com/funnyzak/reqreplay/pkg/request"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

func TestPrintBoxAlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	printBox(&buf, []string{"Title", "副标题", "", "📂 Capture: a.xml", "中文内容"})

	lines := strings.Split(strings.Trim(buf.String(), "\n"), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected 7 box lines, got %d:\n%s", len(lines), buf.String())
	}
	want := runewidth.StringWidth(lines[0])
	if want != minBoxWidth {
		t.Fatalf("expected minimum box width %d, got %d", minBoxWidth, want)
	}
	for _, line := range lines {
		if got := runewidth.StringWidth(line); got != want {
			t.Fatalf("line %q has width %d, want %d", line, got, want)
		}
	}
	if !strings.HasPrefix(lines[3], "├") {
		t.Fatalf("expected separator after subtitle, got %q", lines[3])
	}
}

func TestTransportOptionsConvertsSeconds(t *testing.T) {
	opts := transportOptions(&config.TransportConfig{
		Timeout:             30,
		IdleConnTimeout:     90,
		TLSHandshakeTimeout: 10,
		FollowRedirects:     true,
		MaxRedirects:        3,
	})
	if opts.Timeout != 30*time.Second || opts.IdleConnTimeout != 90*time.Second || opts.TLSHandshakeTimeout != 10*time.Second {
		t.Fatalf("unexpected durations: %+v", opts)
	}
	if !opts.FollowRedirects || opts.MaxRedirects != 3 {
		t.Fatalf("unexpected redirect options: %+v", opts)
	}
	if opts.ResponseHeaderTimeout != 0 {
		t.Fatal("unset timeouts should stay zero so the transport applies its defaults")
	}
}

type capturePrinter struct {
	mu        sync.Mutex
	responses []int
}

func (p *capturePrinter) PrintRecords(printer.RecordListing) error { return nil }
func (p *capturePrinter) PrintFailure(int, request.Outbound, error) error {
	return nil
}
func (p *capturePrinter) PrintSummary(printer.Summary) error { return nil }
func (p *capturePrinter) PrintResponse(resp *request.Response) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp.Index)
	return errors.New("terminal gone")
}

type captureStore struct {
	storage.Store
	sessions []string
	err      error
}

func (s *captureStore) RecordReplay(sessionID string, resp *request.Response) error {
	s.sessions = append(s.sessions, sessionID)
	return s.err
}

func TestLiveRecorderFansOut(t *testing.T) {
	p := &capturePrinter{}
	store := &captureStore{}
	rec := &liveRecorder{printer: p, store: store, logger: noopLogger{}}

	if err := rec.RecordReplay("s1", &request.Response{Index: 4}); err != nil {
		t.Fatalf("print failures must not fail recording: %v", err)
	}
	if len(p.responses) != 1 || p.responses[0] != 4 {
		t.Fatalf("unexpected printed responses: %v", p.responses)
	}
	if len(store.sessions) != 1 || store.sessions[0] != "s1" {
		t.Fatalf("unexpected stored sessions: %v", store.sessions)
	}

	store.err = errors.New("disk full")
	if err := rec.RecordReplay("s1", &request.Response{Index: 5}); err == nil {
		t.Fatal("expected store error to be returned")
	}
}

func TestLiveRecorderWithoutStore(t *testing.T) {
	p := &capturePrinter{}
	rec := &liveRecorder{printer: p, logger: noopLogger{}}
	if err := rec.RecordReplay("s1", &request.Response{Index: 0}); err != nil {
		t.Fatal(err)
	}
	if len(p.responses) != 1 {
		t.Fatal("expected the response to be printed")
	}
}

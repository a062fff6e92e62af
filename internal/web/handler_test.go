package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/funnyzak/reqreplay/internal/config"
	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/internal/storage"
	"github.com/funnyzak/reqreplay/internal/transport"
	"github.com/funnyzak/reqreplay/pkg/i18n"
	"github.com/funnyzak/reqreplay/pkg/request"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

type hit struct {
	method string
	path   string
	cookie string
	body   string
}

type target struct {
	*httptest.Server
	mu   sync.Mutex
	hits []hit
}

func newTarget(t *testing.T) *target {
	t.Helper()
	tg := &target{}
	tg.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		tg.mu.Lock()
		tg.hits = append(tg.hits, hit{method: r.Method, path: r.URL.Path, cookie: r.Header.Get("Cookie"), body: string(body)})
		tg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(tg.Close)
	return tg
}

func (tg *target) seen() []hit {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return append([]hit(nil), tg.hits...)
}

type fixture struct {
	api     *httptest.Server
	target  *target
	session *replay.Session
	store   storage.Store
	service *Service
}

func newFixture(t *testing.T, records []request.Record, webCfg *config.WebConfig) *fixture {
	t.Helper()
	tg := newTarget(t)
	if records == nil {
		records = []request.Record{
			{URI: tg.URL + "/a", Headers: []request.Header{{Name: "Cookie", Value: "s=1"}}, ContentType: "text/html"},
			{URI: tg.URL + "/b", PostFields: []request.Field{{Name: "q", Value: "v 1"}}, ContentType: "text/html"},
			{URI: tg.URL + "/c", ContentType: "image/png"},
		}
	}

	sess, err := replay.New(records, transport.New(transport.Options{Timeout: 5 * time.Second}, noopLogger{}), replay.Options{Logger: noopLogger{}})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	t.Cleanup(func() { sess.Close() })

	store, err := storage.New(&config.StorageConfig{Path: filepath.Join(t.TempDir(), "web.db")}, noopLogger{})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tr, err := i18n.NewTranslator("en")
	if err != nil {
		t.Fatal(err)
	}

	if webCfg == nil {
		webCfg = &config.WebConfig{AdminPath: "/api"}
	}
	svc := NewService(webCfg, sess, noopLogger{}, Options{Store: store, Translator: tr, Locale: "en"})
	t.Cleanup(svc.Close)

	router := mux.NewRouter()
	svc.RegisterRoutes(router)
	api := httptest.NewServer(router)
	t.Cleanup(api.Close)

	return &fixture{api: api, target: tg, session: sess, store: store, service: svc}
}

func (f *fixture) do(t *testing.T, method, path, body string, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.api.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestRecordsAndSession(t *testing.T) {
	f := newFixture(t, nil, nil)

	var records struct {
		Data   []RecordView `json:"data"`
		Total  int          `json:"total"`
		Cursor int          `json:"cursor"`
	}
	if code := f.do(t, http.MethodGet, "/api/records", "", &records); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if records.Total != 3 || len(records.Data) != 3 || !records.Data[0].Current {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records.Data[1].Method != http.MethodPost {
		t.Fatalf("expected POST for record with fields, got %s", records.Data[1].Method)
	}

	var state SessionState
	if code := f.do(t, http.MethodGet, "/api/session", "", &state); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if state.ID != f.session.ID() || state.Count != 3 || state.CookieMode != "header" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if state.Prepared.URL != f.target.URL+"/a" {
		t.Fatalf("unexpected prepared url %s", state.Prepared.URL)
	}
}

func TestNavigation(t *testing.T) {
	f := newFixture(t, nil, nil)
	var state SessionState

	if code := f.do(t, http.MethodPost, "/api/session/next", "", &state); code != http.StatusOK || state.Cursor != 1 {
		t.Fatalf("next: status %d cursor %d", code, state.Cursor)
	}
	if code := f.do(t, http.MethodPost, "/api/session/jump/2", `{"reuse_connection":false}`, &state); code != http.StatusOK || state.Cursor != 2 {
		t.Fatalf("jump: status %d cursor %d", code, state.Cursor)
	}

	var apiErr errorResponse
	if code := f.do(t, http.MethodPost, "/api/session/next", "", &apiErr); code != http.StatusConflict {
		t.Fatalf("expected 409 at end of sequence, got %d", code)
	}
	if apiErr.Error != "There is no next record" {
		t.Fatalf("unexpected error text %q", apiErr.Error)
	}
	if code := f.do(t, http.MethodPost, "/api/session/jump/9", "", &apiErr); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid index, got %d", code)
	}
	if code := f.do(t, http.MethodPost, "/api/session/previous", `{"reuse_connection":false,"reset_settings":true}`, &apiErr); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for reset without reuse, got %d", code)
	}
	if code := f.do(t, http.MethodPost, "/api/session/previous", "{", &apiErr); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", code)
	}
}

func TestExecuteCurrentAndResponses(t *testing.T) {
	f := newFixture(t, nil, nil)

	var result ExecuteResult
	if code := f.do(t, http.MethodPost, "/api/session/execute", "", &result); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if result.Executed != 1 || result.Responses[0].StatusCode != http.StatusOK {
		t.Fatalf("unexpected result: %+v", result)
	}

	hits := f.target.seen()
	if len(hits) != 1 || hits[0].path != "/a" || hits[0].cookie != "s=1" {
		t.Fatalf("unexpected target hits: %+v", hits)
	}

	var resp request.Response
	if code := f.do(t, http.MethodGet, "/api/responses/0", "", &resp); code != http.StatusOK || string(resp.Body) != `{"path":"/a"}` {
		t.Fatalf("unexpected stored response: %d %s", code, resp.Body)
	}
	var apiErr errorResponse
	if code := f.do(t, http.MethodGet, "/api/responses/1", "", &apiErr); code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing response, got %d", code)
	}

	replays, err := f.store.GetReplays(f.session.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(replays) != 0 {
		t.Fatalf("session without recorder should not persist successes, got %d", len(replays))
	}
}

func TestExecuteNextShortfallAndAll(t *testing.T) {
	f := newFixture(t, nil, nil)

	var result ExecuteResult
	if code := f.do(t, http.MethodPost, "/api/session/execute?mode=next&count=5", "", &result); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if !result.Shortfall || result.Executed != 3 || result.Requested != 5 {
		t.Fatalf("expected shortfall after 3 records, got %+v", result)
	}

	f.do(t, http.MethodPost, "/api/session/jump/1", "", nil)
	if code := f.do(t, http.MethodPost, "/api/session/execute?mode=all", "", &result); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if result.Executed != 2 || result.Shortfall || result.Session.Cursor != 2 {
		t.Fatalf("unexpected execute-all result: %+v", result)
	}

	var list struct {
		Total int `json:"total"`
	}
	f.do(t, http.MethodGet, "/api/responses", "", &list)
	if list.Total != 3 {
		t.Fatalf("expected 3 stored responses, got %d", list.Total)
	}

	var apiErr errorResponse
	if code := f.do(t, http.MethodPost, "/api/session/execute?mode=next&count=x", "", &apiErr); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad count, got %d", code)
	}
	if code := f.do(t, http.MethodPost, "/api/session/execute?mode=bogus", "", &apiErr); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad mode, got %d", code)
	}
}

func TestOverrides(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.do(t, http.MethodPost, "/api/session/jump/1", "", nil)

	var state SessionState
	body := `{"post_fields":{"extra":"a b"},"rename_fields":{"q":"query"},"set_headers":{"X-Test":"1"}}`
	if code := f.do(t, http.MethodPut, "/api/session/overrides", body, &state); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if state.Prepared.Body != "extra=a%20b&query=v%201" {
		t.Fatalf("unexpected staged body %q", state.Prepared.Body)
	}

	f.do(t, http.MethodPost, "/api/session/execute", "", nil)
	hits := f.target.seen()
	if len(hits) != 1 || hits[0].method != http.MethodPost || hits[0].body != "extra=a%20b&query=v%201" {
		t.Fatalf("unexpected target hits: %+v", hits)
	}

	var apiErr errorResponse
	if code := f.do(t, http.MethodPut, "/api/session/overrides", `{"rename_fields":{"missing":"x"}}`, &apiErr); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown field, got %d", code)
	}

	if code := f.do(t, http.MethodPut, "/api/session/overrides", `{"mime_filter":["image/png"]}`, &state); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(state.MimeFilter) != 1 || state.MimeFilter[0] != "image/png" {
		t.Fatalf("mime filter not applied: %v", state.MimeFilter)
	}
}

func TestExecuteTransportFailureIsPersisted(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	f := newFixture(t, []request.Record{{URI: deadURL + "/gone"}}, nil)

	var result ExecuteResult
	if code := f.do(t, http.MethodPost, "/api/session/execute", "", &result); code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", code)
	}
	if result.Executed != 0 || result.Error == "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	var history struct {
		Data  []StoredReplay `json:"data"`
		Total int            `json:"total"`
	}
	if code := f.do(t, http.MethodGet, "/api/history?session="+f.session.ID(), "", &history); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if history.Total != 1 || history.Data[0].Error == "" || history.Data[0].URL != deadURL+"/gone" {
		t.Fatalf("expected persisted failure, got %+v", history)
	}

	var sessions struct {
		Current string `json:"current"`
		Total   int    `json:"total"`
	}
	f.do(t, http.MethodGet, "/api/sessions", "", &sessions)
	if sessions.Total != 1 || sessions.Current != f.session.ID() {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	var events struct {
		Data []Event `json:"data"`
	}
	f.do(t, http.MethodGet, "/api/events?type=failure", "", &events)
	if len(events.Data) != 1 || events.Data[0].Index != 0 {
		t.Fatalf("expected one failure event, got %+v", events.Data)
	}
}

func TestExport(t *testing.T) {
	f := newFixture(t, nil, nil)

	var apiErr errorResponse
	if code := f.do(t, http.MethodGet, "/api/export", "", &apiErr); code != http.StatusForbidden {
		t.Fatalf("expected 403 when export disabled, got %d", code)
	}

	f = newFixture(t, nil, &config.WebConfig{
		AdminPath: "/api/",
		Export:    config.WebExportConfig{Enable: true, Formats: []string{"har", "json"}},
	})
	f.do(t, http.MethodPut, "/api/session/overrides", `{"mime_filter":["text/html"]}`, nil)

	resp, err := http.Get(f.api.URL + "/api/export?format=har")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Content-Disposition"), ".har") {
		t.Fatalf("unexpected export response: %d %v", resp.StatusCode, resp.Header)
	}
	var har struct {
		Log struct {
			Entries []json.RawMessage `json:"entries"`
		} `json:"log"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&har); err != nil {
		t.Fatal(err)
	}
	if len(har.Log.Entries) != 2 {
		t.Fatalf("expected filtered export of 2 records, got %d", len(har.Log.Entries))
	}

	if code := f.do(t, http.MethodGet, "/api/export?format=tamperdata", "", &apiErr); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for format not enabled, got %d", code)
	}
}

func TestWebsocketBroadcast(t *testing.T) {
	f := newFixture(t, nil, nil)

	wsURL := "ws" + strings.TrimPrefix(f.api.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello struct {
		Type    string       `json:"type"`
		Session SessionState `json:"session"`
	}
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Type != "hello" || hello.Session.ID != f.session.ID() {
		t.Fatalf("unexpected greeting: %+v", hello)
	}

	f.do(t, http.MethodPost, "/api/session/execute", "", nil)
	f.do(t, http.MethodPost, "/api/session/next", "", nil)

	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read replay event: %v", err)
	}
	if ev.Type != EventReplay || ev.Index != 0 || ev.StatusCode != http.StatusOK {
		t.Fatalf("unexpected replay event: %+v", ev)
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read navigate event: %v", err)
	}
	if ev.Type != EventNavigate || ev.Index != 1 {
		t.Fatalf("unexpected navigate event: %+v", ev)
	}
}

package capture

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/pkg/request"
)

const sampleTamperData = `<?xml version="1.0" encoding="UTF-8"?>
<tdRequests>
  <tdRequest uri="http%3A%2F%2Fexample.test%2Fsearch%3Fq%3Dgo">
    <tdStartTime>1300000000000</tdStartTime>
    <tdRequestHeaders>
      <tdRequestHeader name="Host">example.test</tdRequestHeader>
      <tdRequestHeader name="User-Agent">Mozilla%2F5.0+%28X11%29</tdRequestHeader>
      <tdRequestHeader name="Cookie">  s%3D1  </tdRequestHeader>
    </tdRequestHeaders>
    <tdMimeType>text/html</tdMimeType>
  </tdRequest>
  <tdRequest uri="http%3A%2F%2Fexample.test%2Flogin">
    <tdRequestHeaders>
      <tdRequestHeader name="Accept">*%2F*</tdRequestHeader>
    </tdRequestHeaders>
    <tdPostElements>
      <tdPostElement name="user%5Bname%5D">alice</tdPostElement>
      <tdPostElement name="pass">p%40ss+word</tdPostElement>
    </tdPostElements>
    <tdMimeType>application/json</tdMimeType>
  </tdRequest>
</tdRequests>
`

func TestParseTamperData(t *testing.T) {
	records, err := ParseTamperData(strings.NewReader(sampleTamperData))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.URI != "http://example.test/search?q=go" {
		t.Errorf("Expected decoded uri, got %q", first.URI)
	}
	if first.ContentType != "text/html" {
		t.Errorf("Expected text/html, got %q", first.ContentType)
	}
	wantHeaders := []request.Header{
		{Name: "Host", Value: "example.test"},
		{Name: "User-Agent", Value: "Mozilla/5.0 (X11)"},
		{Name: "Cookie", Value: "s=1"},
	}
	if !reflect.DeepEqual(first.Headers, wantHeaders) {
		t.Errorf("Unexpected headers: %+v", first.Headers)
	}
	if first.Method() != "GET" {
		t.Errorf("Expected GET, got %s", first.Method())
	}

	second := records[1]
	wantFields := []request.Field{
		{Name: "user[name]", Value: "alice"},
		{Name: "pass", Value: "p@ss word"},
	}
	if !reflect.DeepEqual(second.PostFields, wantFields) {
		t.Errorf("Unexpected post fields: %+v", second.PostFields)
	}
	if second.Method() != "POST" {
		t.Errorf("Expected POST, got %s", second.Method())
	}
}

func TestParseTamperDataMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not xml", "this is not xml"},
		{"wrong root", "<requests></requests>"},
		{"no requests", "<tdRequests></tdRequests>"},
		{"missing uri", `<tdRequests><tdRequest></tdRequest></tdRequests>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTamperData(strings.NewReader(tt.input))
			if !errors.Is(err, replay.ErrMalformedInput) {
				t.Errorf("Expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestTamperDataRoundTrip(t *testing.T) {
	records, err := ParseTamperData(strings.NewReader(sampleTamperData))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteTamperData(&buf, records); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	again, err := ParseTamperData(&buf)
	if err != nil {
		t.Fatalf("Failed to parse written output: %v", err)
	}
	if !reflect.DeepEqual(records, again) {
		t.Errorf("Round trip mismatch:\n%+v\n%+v", records, again)
	}
}

const sampleHAR = `{
  "log": {
    "version": "1.2",
    "creator": {"name": "browser", "version": "1"},
    "entries": [
      {
        "startedDateTime": "2024-01-01T00:00:00Z",
        "request": {
          "method": "GET",
          "url": "https://example.test/",
          "headers": [
            {"name": ":authority", "value": "example.test"},
            {"name": "user-agent", "value": "X"},
            {"name": "cookie", "value": "s=1"}
          ]
        },
        "response": {"status": 200, "content": {"mimeType": "text/html; charset=utf-8"}}
      },
      {
        "request": {
          "method": "POST",
          "url": "https://example.test/form",
          "headers": [],
          "postData": {"mimeType": "application/x-www-form-urlencoded", "text": "a=1&b=two+words&c"}
        },
        "response": {"status": 302, "content": {"mimeType": ""}}
      },
      {
        "request": {
          "method": "POST",
          "url": "https://example.test/params",
          "postData": {"mimeType": "multipart/form-data", "params": [{"name": "k", "value": "v"}]}
        },
        "response": {"content": {"mimeType": "application/json"}}
      }
    ]
  }
}`

func TestParseHAR(t *testing.T) {
	records, err := ParseHAR(strings.NewReader(sampleHAR))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}

	if records[0].ContentType != "text/html" {
		t.Errorf("Expected charset stripped, got %q", records[0].ContentType)
	}
	if len(records[0].Headers) != 2 {
		t.Errorf("Expected pseudo header skipped, got %+v", records[0].Headers)
	}

	wantForm := []request.Field{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "two words"},
		{Name: "c", Value: ""},
	}
	if !reflect.DeepEqual(records[1].PostFields, wantForm) {
		t.Errorf("Unexpected form fields: %+v", records[1].PostFields)
	}
	if len(records[2].PostFields) != 1 || records[2].PostFields[0].Name != "k" {
		t.Errorf("Expected params to become fields, got %+v", records[2].PostFields)
	}
}

func TestParseHARMalformed(t *testing.T) {
	for _, input := range []string{"{", `{"log":{"entries":[]}}`, `{"log":{"entries":[{"request":{}}]}}`} {
		if _, err := ParseHAR(strings.NewReader(input)); !errors.Is(err, replay.ErrMalformedInput) {
			t.Errorf("Expected ErrMalformedInput for %q, got %v", input, err)
		}
	}
}

func TestHARRoundTrip(t *testing.T) {
	records := []request.Record{
		{
			URI:         "http://example.test/a",
			Headers:     []request.Header{{Name: "Accept", Value: "*/*"}},
			ContentType: "text/html",
		},
		{
			URI:        "http://example.test/b",
			PostFields: []request.Field{{Name: "q", Value: "v 1"}},
		},
	}

	var buf bytes.Buffer
	if err := WriteHAR(&buf, records); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if !strings.Contains(buf.String(), `"method": "POST"`) {
		t.Error("Expected POST method in HAR output")
	}
	again, err := ParseHAR(&buf)
	if err != nil {
		t.Fatalf("Failed to parse written output: %v", err)
	}
	if !reflect.DeepEqual(records, again) {
		t.Errorf("Round trip mismatch:\n%+v\n%+v", records, again)
	}
}

func TestLoadFileDetection(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"capture.xml":  sampleTamperData,
		"capture.har":  sampleHAR,
		"capture.txt":  sampleHAR,
		"capture.data": sampleTamperData,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		file   string
		format string
		count  int
	}{
		{"capture.xml", FormatAuto, 2},
		{"capture.har", FormatAuto, 3},
		{"capture.txt", "", 3},
		{"capture.data", FormatAuto, 2},
		{"capture.data", FormatTamperData, 2},
	}
	for _, tt := range tests {
		t.Run(tt.file+"/"+tt.format, func(t *testing.T) {
			records, err := LoadFile(filepath.Join(dir, tt.file), tt.format)
			if err != nil {
				t.Fatalf("Failed to load: %v", err)
			}
			if len(records) != tt.count {
				t.Errorf("Expected %d records, got %d", tt.count, len(records))
			}
		})
	}

	if _, err := LoadFile(filepath.Join(dir, "capture.xml"), "pcap"); err == nil {
		t.Error("Expected error for unknown format")
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.xml"), FormatAuto); err == nil {
		t.Error("Expected error for missing file")
	}

	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(empty, FormatAuto); !errors.Is(err, replay.ErrMalformedInput) {
		t.Errorf("Expected ErrMalformedInput for empty file, got %v", err)
	}
}

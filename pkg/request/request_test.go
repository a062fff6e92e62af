package request

import (
	"net/http"
	"testing"
)

func TestRecordMethod(t *testing.T) {
	get := Record{URI: "http://example.test/a"}
	if get.Method() != http.MethodGet {
		t.Errorf("Expected GET for record without fields, got %s", get.Method())
	}

	post := Record{URI: "http://example.test/b", PostFields: []Field{{Name: "q", Value: "v"}}}
	if post.Method() != http.MethodPost {
		t.Errorf("Expected POST for record with fields, got %s", post.Method())
	}
}

func TestRecordHeaderLookup(t *testing.T) {
	rec := Record{
		URI: "http://example.test/",
		Headers: []Header{
			{Name: "Accept", Value: "*/*"},
			{Name: "user-agent", Value: "first"},
			{Name: "User-Agent", Value: "second"},
		},
	}

	if v, ok := rec.Header("USER-AGENT"); !ok || v != "first" {
		t.Errorf("Expected first matching header value, got %q (found=%v)", v, ok)
	}
	if _, ok := rec.Header("Cookie"); ok {
		t.Error("Expected missing header to report not found")
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec := Record{
		URI:        "http://example.test/",
		Headers:    []Header{{Name: "A", Value: "1"}},
		PostFields: []Field{{Name: "f", Value: "1"}},
	}
	clone := rec.Clone()
	clone.Headers[0].Value = "changed"
	clone.PostFields[0].Value = "changed"

	if rec.Headers[0].Value != "1" || rec.PostFields[0].Value != "1" {
		t.Fatal("Expected clone mutation to leave original untouched")
	}
}

func TestIsBinaryContent(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		expected    bool
	}{
		{
			name:        "JSON content",
			contentType: "application/json",
			body:        []byte(`{"key": "value"}`),
			expected:    false,
		},
		{
			name:        "JPEG image",
			contentType: "image/jpeg",
			body:        []byte{0xFF, 0xD8, 0xFF, 0xE0},
			expected:    true,
		},
		{
			name:        "Null heavy body",
			contentType: "text/plain",
			body:        []byte{0, 0, 0, 'a'},
			expected:    true,
		},
		{
			name:        "Empty body",
			contentType: "",
			body:        nil,
			expected:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBinaryContent(tt.contentType, tt.body); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestOutboundMethod(t *testing.T) {
	if (Outbound{URL: "http://x"}).Method() != http.MethodGet {
		t.Error("Expected GET without body")
	}
	if (Outbound{URL: "http://x", HasBody: true}).Method() != http.MethodPost {
		t.Error("Expected POST with body")
	}
}

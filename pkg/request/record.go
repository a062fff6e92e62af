package request

import (
	"net/http"
	"strings"
)

// Header is a single captured request header, kept in capture order.
type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Field is a single captured POST field, kept in capture order.
type Field struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Record represents one captured request description.
// Records are immutable once loaded into a session.
type Record struct {
	URI         string   `json:"uri"`
	Headers     []Header `json:"headers"`
	PostFields  []Field  `json:"post_fields"`
	ContentType string   `json:"content_type,omitempty"`
}

// Method returns the HTTP method implied by the record.
// Capture formats carry no method, so a record with POST fields is a POST and
// everything else is a GET.
func (r Record) Method() string {
	if len(r.PostFields) > 0 {
		return http.MethodPost
	}
	return http.MethodGet
}

// Header returns the first header value matching name (case-insensitive).
func (r Record) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{URI: r.URI, ContentType: r.ContentType}
	if r.Headers != nil {
		out.Headers = append([]Header(nil), r.Headers...)
	}
	if r.PostFields != nil {
		out.PostFields = append([]Field(nil), r.PostFields...)
	}
	return out
}

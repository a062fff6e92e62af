package request

import (
	"net/http"
	"strings"
	"time"
)

// Outbound is a fully specified request ready to hand to a transport.
type Outbound struct {
	URL       string   `json:"url"`
	UserAgent string   `json:"user_agent,omitempty"`
	Headers   []string `json:"headers"`
	Body      string   `json:"body,omitempty"`
	HasBody   bool     `json:"has_body"`
}

// Method returns POST when the request carries a body, GET otherwise.
func (o Outbound) Method() string {
	if o.HasBody {
		return http.MethodPost
	}
	return http.MethodGet
}

// Response is the buffered result of one replay.
type Response struct {
	Index       int           `json:"index"`
	Timestamp   time.Time     `json:"timestamp"`
	Request     Outbound      `json:"request"`
	StatusCode  int           `json:"status_code"`
	Status      string        `json:"status"`
	Proto       string        `json:"proto"`
	Headers     http.Header   `json:"headers"`
	Body        []byte        `json:"body"`
	ContentType string        `json:"content_type"`
	IsBinary    bool          `json:"is_binary"`
	Duration    time.Duration `json:"duration"`
}

// Size returns the response body size in bytes.
func (r *Response) Size() int64 {
	if r == nil {
		return 0
	}
	return int64(len(r.Body))
}

// IsBinaryContent detects if it's binary content
func IsBinaryContent(contentType string, body []byte) bool {
	binaryTypes := []string{
		"image/", "video/", "audio/",
		"application/octet-stream",
		"application/zip", "application/gzip",
		"application/pdf", "application/msword",
		"application/vnd.ms-", "application/vnd.openxmlformats-",
	}

	for _, binaryType := range binaryTypes {
		if strings.HasPrefix(contentType, binaryType) {
			return true
		}
	}

	// More than 10% null bytes
	nullCount := 0
	for _, b := range body {
		if b == 0 {
			nullCount++
		}
	}
	if len(body) > 0 && nullCount > len(body)/10 {
		return true
	}

	return false
}

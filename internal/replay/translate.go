package replay

import (
	"net/url"
	"strings"

	"github.com/funnyzak/reqreplay/pkg/request"
)

// Translate converts a captured record into an outbound request.
//
// User-Agent moves to the dedicated field, Host is dropped and Cookie is
// dropped in jar mode. Everything else is copied in capture order as
// "Name: value" lines. POST fields become a urlencoded body.
func Translate(rec request.Record, mode CookieMode) request.Outbound {
	out := request.Outbound{
		URL:     rec.URI,
		Headers: make([]string, 0, len(rec.Headers)),
	}

	for _, h := range rec.Headers {
		switch strings.ToLower(strings.TrimSpace(h.Name)) {
		case "user-agent":
			out.UserAgent = h.Value
		case "host":
		case "cookie":
			if mode == CookieModeHeader {
				out.Headers = append(out.Headers, formatHeader(h.Name, h.Value))
			}
		default:
			out.Headers = append(out.Headers, formatHeader(h.Name, h.Value))
		}
	}

	if len(rec.PostFields) > 0 {
		out.Body = EncodeFields(rec.PostFields)
		out.HasBody = true
	}
	return out
}

// EncodeFields percent-encodes each name and value independently and joins
// the pairs with '&' in order. Spaces encode as %20.
func EncodeFields(fields []request.Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeComponent(f.Name))
		b.WriteByte('=')
		b.WriteString(escapeComponent(f.Value))
	}
	return b.String()
}

func escapeComponent(s string) string {
	// QueryEscape has already turned a literal '+' into %2B.
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func formatHeader(name, value string) string {
	return name + ": " + value
}

// headerName extracts the name part of a "Name: value" line.
func headerName(line string) string {
	if idx := strings.Index(line, ":"); idx >= 0 {
		return strings.TrimSpace(line[:idx])
	}
	return strings.TrimSpace(line)
}

package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// harFile is the subset of HAR 1.2 needed to rebuild captured requests.
type harFile struct {
	Log harLog `json:"log"`
}

type harLog struct {
	Version string     `json:"version"`
	Creator harCreator `json:"creator"`
	Entries []harEntry `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type harEntry struct {
	Start    string      `json:"startedDateTime"`
	Time     float64     `json:"time"`
	Request  harRequest  `json:"request"`
	Response harResponse `json:"response"`
}

type harRequest struct {
	Method      string         `json:"method"`
	URL         string         `json:"url"`
	HTTPVersion string         `json:"httpVersion"`
	Headers     []harNameValue `json:"headers"`
	QueryString []harNameValue `json:"queryString"`
	Cookies     []harNameValue `json:"cookies"`
	PostData    *harPostData   `json:"postData,omitempty"`
	HeadersSize int            `json:"headersSize"`
	BodySize    int            `json:"bodySize"`
}

type harPostData struct {
	MimeType string         `json:"mimeType"`
	Params   []harNameValue `json:"params,omitempty"`
	Text     string         `json:"text,omitempty"`
}

type harResponse struct {
	Status      int            `json:"status"`
	StatusText  string         `json:"statusText"`
	HTTPVersion string         `json:"httpVersion"`
	Headers     []harNameValue `json:"headers"`
	Cookies     []harNameValue `json:"cookies"`
	Content     harContent     `json:"content"`
	RedirectURL string         `json:"redirectURL"`
	HeadersSize int            `json:"headersSize"`
	BodySize    int            `json:"bodySize"`
}

type harContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
}

type harNameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParseHAR reads the requests of a HAR archive in entry order. The response
// content type becomes the record content type. HTTP/2 pseudo headers are
// skipped. A urlencoded body without params is split into fields; other
// bodies cannot be expressed as POST fields and are dropped.
func ParseHAR(r io.Reader) ([]request.Record, error) {
	var doc harFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: har: %v", replay.ErrMalformedInput, err)
	}
	if len(doc.Log.Entries) == 0 {
		return nil, fmt.Errorf("%w: har: no entries", replay.ErrMalformedInput)
	}

	records := make([]request.Record, 0, len(doc.Log.Entries))
	for i, entry := range doc.Log.Entries {
		if strings.TrimSpace(entry.Request.URL) == "" {
			return nil, fmt.Errorf("%w: har: entry %d has no url", replay.ErrMalformedInput, i)
		}
		rec := request.Record{
			URI:         entry.Request.URL,
			ContentType: mediaType(entry.Response.Content.MimeType),
		}
		for _, h := range entry.Request.Headers {
			if strings.HasPrefix(h.Name, ":") {
				continue
			}
			rec.Headers = append(rec.Headers, request.Header{Name: h.Name, Value: h.Value})
		}
		if pd := entry.Request.PostData; pd != nil {
			switch {
			case len(pd.Params) > 0:
				for _, p := range pd.Params {
					rec.PostFields = append(rec.PostFields, request.Field{Name: p.Name, Value: p.Value})
				}
			case strings.HasPrefix(mediaType(pd.MimeType), "application/x-www-form-urlencoded"):
				rec.PostFields = splitForm(pd.Text)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteHAR writes records as a HAR 1.2 archive. Only request data survives;
// responses are left empty apart from the content type.
func WriteHAR(w io.Writer, records []request.Record) error {
	doc := harFile{Log: harLog{
		Version: "1.2",
		Creator: harCreator{Name: "reqreplay", Version: "1.0"},
		Entries: make([]harEntry, 0, len(records)),
	}}
	started := time.Now().UTC().Format(time.RFC3339Nano)

	for _, rec := range records {
		req := harRequest{
			Method:      rec.Method(),
			URL:         rec.URI,
			HTTPVersion: "HTTP/1.1",
			Headers:     make([]harNameValue, 0, len(rec.Headers)),
			QueryString: []harNameValue{},
			Cookies:     []harNameValue{},
			HeadersSize: -1,
			BodySize:    -1,
		}
		for _, h := range rec.Headers {
			req.Headers = append(req.Headers, harNameValue{Name: h.Name, Value: h.Value})
		}
		if len(rec.PostFields) > 0 {
			pd := &harPostData{
				MimeType: "application/x-www-form-urlencoded",
				Text:     replay.EncodeFields(rec.PostFields),
			}
			for _, f := range rec.PostFields {
				pd.Params = append(pd.Params, harNameValue{Name: f.Name, Value: f.Value})
			}
			req.PostData = pd
		}
		doc.Log.Entries = append(doc.Log.Entries, harEntry{
			Start:   started,
			Request: req,
			Response: harResponse{
				Headers:     []harNameValue{},
				Cookies:     []harNameValue{},
				Content:     harContent{MimeType: rec.ContentType},
				HeadersSize: -1,
				BodySize:    -1,
			},
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode har: %w", err)
	}
	return nil
}

// mediaType strips parameters such as charset from a content type.
func mediaType(ct string) string {
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.TrimSpace(ct)
}

// splitForm splits a urlencoded body into fields, keeping their order.
func splitForm(body string) []request.Field {
	var fields []request.Field
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		fields = append(fields, request.Field{Name: decode(name), Value: decode(value)})
	}
	return fields
}

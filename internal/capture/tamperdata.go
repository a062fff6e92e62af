package capture

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// tdRequests is the root element of a TamperData export.
type tdRequests struct {
	XMLName  xml.Name    `xml:"tdRequests"`
	Requests []tdRequest `xml:"tdRequest"`
}

type tdRequest struct {
	URI      string        `xml:"uri,attr"`
	Headers  []tdNameValue `xml:"tdRequestHeaders>tdRequestHeader"`
	Post     []tdNameValue `xml:"tdPostElements>tdPostElement"`
	MimeType string        `xml:"tdMimeType,omitempty"`
}

type tdNameValue struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// ParseTamperData reads a TamperData XML export. The URI, header values and
// POST names and values are stored percent-encoded in the file; they are
// decoded once here and values are trimmed.
func ParseTamperData(r io.Reader) ([]request.Record, error) {
	var doc tdRequests
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: tamperdata: %v", replay.ErrMalformedInput, err)
	}
	if len(doc.Requests) == 0 {
		return nil, fmt.Errorf("%w: tamperdata: no tdRequest elements", replay.ErrMalformedInput)
	}

	records := make([]request.Record, 0, len(doc.Requests))
	for i, td := range doc.Requests {
		uri := decode(td.URI)
		if strings.TrimSpace(uri) == "" {
			return nil, fmt.Errorf("%w: tamperdata: request %d has no uri", replay.ErrMalformedInput, i)
		}

		rec := request.Record{
			URI:         uri,
			ContentType: strings.TrimSpace(td.MimeType),
		}
		for _, h := range td.Headers {
			rec.Headers = append(rec.Headers, request.Header{
				Name:  h.Name,
				Value: strings.TrimSpace(decode(h.Value)),
			})
		}
		for _, p := range td.Post {
			rec.PostFields = append(rec.PostFields, request.Field{
				Name:  decode(p.Name),
				Value: strings.TrimSpace(decode(p.Value)),
			})
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteTamperData writes records as a TamperData XML export that
// ParseTamperData reads back unchanged.
func WriteTamperData(w io.Writer, records []request.Record) error {
	doc := tdRequests{Requests: make([]tdRequest, 0, len(records))}
	for _, rec := range records {
		td := tdRequest{
			URI:      url.QueryEscape(rec.URI),
			MimeType: rec.ContentType,
		}
		for _, h := range rec.Headers {
			td.Headers = append(td.Headers, tdNameValue{Name: h.Name, Value: url.QueryEscape(h.Value)})
		}
		for _, f := range rec.PostFields {
			td.Post = append(td.Post, tdNameValue{Name: url.QueryEscape(f.Name), Value: url.QueryEscape(f.Value)})
		}
		doc.Requests = append(doc.Requests, td)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode tamperdata: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// decode undoes form-style percent encoding. Malformed escapes are kept
// verbatim.
func decode(s string) string {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return out
}

package replay

import (
	"strings"

	"github.com/funnyzak/reqreplay/pkg/request"
)

// pendingRequest is the request that the next ExecuteCurrent will send:
// the translated record plus any caller overrides.
type pendingRequest struct {
	url       string
	userAgent string
	headers   []string
	fields    []request.Field
}

func (p *pendingRequest) reset() {
	p.headers = nil
	p.fields = nil
}

// layer applies a translated record on top of the surviving state. The URL
// is always replaced, the user agent only when the record carries one.
// Surviving headers named by the translation are dropped in favour of the
// translated lines; POST fields are set by name.
func (p *pendingRequest) layer(out request.Outbound, fields []request.Field) {
	p.url = out.URL
	if out.UserAgent != "" {
		p.userAgent = out.UserAgent
	}

	if len(p.headers) == 0 {
		p.headers = append([]string(nil), out.Headers...)
	} else {
		replaced := make(map[string]struct{}, len(out.Headers))
		for _, line := range out.Headers {
			replaced[strings.ToLower(headerName(line))] = struct{}{}
		}
		merged := make([]string, 0, len(p.headers)+len(out.Headers))
		for _, line := range p.headers {
			if _, ok := replaced[strings.ToLower(headerName(line))]; ok {
				continue
			}
			merged = append(merged, line)
		}
		p.headers = append(merged, out.Headers...)
	}

	for _, f := range fields {
		p.setField(f.Name, f.Value)
	}
}

func (p *pendingRequest) setHeader(name, value string) {
	line := formatHeader(name, value)
	for i, existing := range p.headers {
		if strings.EqualFold(headerName(existing), name) {
			p.headers[i] = line
			return
		}
	}
	p.headers = append(p.headers, line)
}

func (p *pendingRequest) removeHeader(name string) bool {
	kept := p.headers[:0]
	removed := false
	for _, line := range p.headers {
		if strings.EqualFold(headerName(line), name) {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	p.headers = kept
	return removed
}

func (p *pendingRequest) fieldIndex(name string) int {
	for i, f := range p.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (p *pendingRequest) setField(name, value string) {
	if i := p.fieldIndex(name); i >= 0 {
		p.fields[i].Value = value
		return
	}
	p.fields = append(p.fields, request.Field{Name: name, Value: value})
}

func (p *pendingRequest) outbound() request.Outbound {
	out := request.Outbound{
		URL:       p.url,
		UserAgent: p.userAgent,
		Headers:   append([]string{}, p.headers...),
	}
	if len(p.fields) > 0 {
		out.Body = EncodeFields(p.fields)
		out.HasBody = true
	}
	return out
}

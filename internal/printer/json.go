package printer

import (
	"encoding/json"
	"io"
	"os"

	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// JSONPrinter writes one JSON object per line
type JSONPrinter struct {
	encoder *json.Encoder
	logger  logger.Logger
	out     io.Writer
}

// NewJSONPrinter creates a JSON printer writing to stdout
func NewJSONPrinter(log logger.Logger) *JSONPrinter {
	p := &JSONPrinter{logger: log}
	p.SetOutput(os.Stdout)
	return p
}

// SetOutput replaces the output target
func (p *JSONPrinter) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	p.out = w
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	p.encoder = encoder
}

type jsonRecordEnvelope struct {
	Type    string         `json:"type"`
	Index   int            `json:"index"`
	Current bool           `json:"current"`
	Matches bool           `json:"matches"`
	Method  string         `json:"method"`
	Record  request.Record `json:"record"`
}

type jsonResponseEnvelope struct {
	Type     string            `json:"type"`
	Response *request.Response `json:"response"`
	BodyText string            `json:"body_text,omitempty"`
}

type jsonFailureEnvelope struct {
	Type    string           `json:"type"`
	Index   int              `json:"index"`
	Request request.Outbound `json:"request"`
	Error   string           `json:"error"`
}

type jsonSummaryEnvelope struct {
	Type string `json:"type"`
	Summary
	Shortfall bool `json:"shortfall"`
}

// PrintRecords writes one "record" object per loaded record
func (p *JSONPrinter) PrintRecords(listing RecordListing) error {
	for i, rec := range listing.Records {
		err := p.encode(jsonRecordEnvelope{
			Type:    "record",
			Index:   i,
			Current: i == listing.Cursor,
			Matches: listing.Matches(i),
			Method:  rec.Method(),
			Record:  rec,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// PrintResponse writes a "response" object
func (p *JSONPrinter) PrintResponse(resp *request.Response) error {
	if resp == nil {
		return nil
	}
	env := jsonResponseEnvelope{Type: "response", Response: resp}
	if !resp.IsBinary && len(resp.Body) > 0 {
		env.BodyText = string(resp.Body)
	}
	return p.encode(env)
}

// PrintFailure writes a "failure" object
func (p *JSONPrinter) PrintFailure(index int, out request.Outbound, cause error) error {
	env := jsonFailureEnvelope{Type: "failure", Index: index, Request: out}
	if cause != nil {
		env.Error = cause.Error()
	}
	return p.encode(env)
}

// PrintSummary writes a "summary" object
func (p *JSONPrinter) PrintSummary(s Summary) error {
	return p.encode(jsonSummaryEnvelope{Type: "summary", Summary: s, Shortfall: s.Shortfall()})
}

func (p *JSONPrinter) encode(v interface{}) error {
	if err := p.encoder.Encode(v); err != nil {
		if p.logger != nil {
			p.logger.Error("Failed to encode JSON output", "error", err)
		}
		return err
	}
	return nil
}

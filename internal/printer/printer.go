package printer

import (
	"time"

	"github.com/funnyzak/reqreplay/internal/config"
	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/pkg/i18n"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// Printer abstracts replay output
type Printer interface {
	PrintRecords(RecordListing) error
	PrintResponse(*request.Response) error
	PrintFailure(index int, out request.Outbound, cause error) error
	PrintSummary(Summary) error
}

// RecordListing is the loaded record sequence as seen by a session
type RecordListing struct {
	Records []request.Record
	Cursor  int
	Filter  []string
}

// Matches reports whether record i passes the content type filter
func (l RecordListing) Matches(i int) bool {
	if len(l.Filter) == 0 {
		return true
	}
	if i < 0 || i >= len(l.Records) {
		return false
	}
	for _, t := range l.Filter {
		if l.Records[i].ContentType == t {
			return true
		}
	}
	return false
}

// Summary describes a finished run
type Summary struct {
	SessionID string        `json:"session_id"`
	Requested int           `json:"requested,omitempty"`
	Executed  int           `json:"executed"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	// Exhausted is set when the run found no next record before finishing
	Exhausted bool `json:"exhausted,omitempty"`
}

// Shortfall reports whether a bounded run ran out of records. A run cut
// short by a failed request is not a shortfall.
func (s Summary) Shortfall() bool {
	return s.Requested > 0 && s.Exhausted
}

// New creates a Printer for the given mode
func New(mode string, log logger.Logger, cfg *config.OutputConfig, translator *i18n.Translator, locale string) Printer {
	if cfg == nil {
		cfg = &config.OutputConfig{}
	}
	switch mode {
	case "json":
		return NewJSONPrinter(log)
	default:
		return NewConsolePrinter(log, cfg, translator, locale)
	}
}

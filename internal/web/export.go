package web

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/funnyzak/reqreplay/internal/capture"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// ExportRecords streams records to w in the given format and returns the
// content type and file extension to advertise.
func ExportRecords(w io.Writer, records []request.Record, format string) (string, string, error) {
	switch strings.ToLower(format) {
	case "json":
		if records == nil {
			records = []request.Record{}
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return "application/json", "json", encoder.Encode(records)
	case capture.FormatTamperData, "xml":
		return "application/xml", "xml", capture.Write(w, records, capture.FormatTamperData)
	case capture.FormatHAR:
		return "application/json", "har", capture.Write(w, records, capture.FormatHAR)
	default:
		return "", "", fmt.Errorf("unsupported export format: %s", format)
	}
}

// AllowedFormats normalizes configured export formats.
func AllowedFormats(formats []string) []string {
	set := make(map[string]struct{})
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		set[f] = struct{}{}
	}

	result := make([]string, 0, len(set))
	for f := range set {
		result = append(result, f)
	}
	sort.Strings(result)
	return result
}

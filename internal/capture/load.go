// Package capture reads and writes the traffic capture formats understood by
// reqreplay: TamperData XML exports and HAR archives.
package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/funnyzak/reqreplay/internal/replay"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// Supported format names.
const (
	FormatAuto       = "auto"
	FormatTamperData = "tamperdata"
	FormatHAR        = "har"
)

// LoadFile reads records from path. format is auto, tamperdata or har; auto
// picks by extension and falls back to sniffing the first byte.
func LoadFile(path, format string) ([]request.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if format == "" || format == FormatAuto {
		format, err = detect(path, br)
		if err != nil {
			return nil, err
		}
	}
	return Parse(br, format)
}

// Parse reads records in the named format.
func Parse(r io.Reader, format string) ([]request.Record, error) {
	switch strings.ToLower(format) {
	case FormatTamperData, "xml":
		return ParseTamperData(r)
	case FormatHAR:
		return ParseHAR(r)
	default:
		return nil, fmt.Errorf("unsupported capture format: %s", format)
	}
}

// Write serializes records in the named format.
func Write(w io.Writer, records []request.Record, format string) error {
	switch strings.ToLower(format) {
	case FormatTamperData, "xml":
		return WriteTamperData(w, records)
	case FormatHAR:
		return WriteHAR(w, records)
	default:
		return fmt.Errorf("unsupported capture format: %s", format)
	}
}

func detect(path string, br *bufio.Reader) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatTamperData, nil
	case ".har", ".json":
		return FormatHAR, nil
	}

	head, _ := br.Peek(512)
	head = bytes.TrimLeft(head, " \t\r\n\xef\xbb\xbf")
	if len(head) == 0 {
		return "", fmt.Errorf("%w: empty capture file", replay.ErrMalformedInput)
	}
	switch head[0] {
	case '<':
		return FormatTamperData, nil
	case '{':
		return FormatHAR, nil
	}
	return "", fmt.Errorf("%w: cannot detect capture format of %s", replay.ErrMalformedInput, path)
}

package replay

import (
	"fmt"
	"strings"

	"github.com/funnyzak/reqreplay/pkg/request"
)

// Store is the read-only, indexable sequence of captured records.
type Store struct {
	records []request.Record
}

// NewStore copies records into a Store. Every record must carry a URI and
// at least one record is required.
func NewStore(records []request.Record) (*Store, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrMalformedInput)
	}
	owned := make([]request.Record, len(records))
	for i, rec := range records {
		if strings.TrimSpace(rec.URI) == "" {
			return nil, fmt.Errorf("%w: record %d has an empty uri", ErrMalformedInput, i)
		}
		owned[i] = rec.Clone()
	}
	return &Store{records: owned}, nil
}

// Count returns the number of records.
func (s *Store) Count() int {
	return len(s.records)
}

// At returns a copy of the record at index i.
func (s *Store) At(i int) (request.Record, error) {
	if i < 0 || i >= len(s.records) {
		return request.Record{}, fmt.Errorf("%w: %d (valid range 0..%d)", ErrInvalidIndex, i, len(s.records)-1)
	}
	return s.records[i].Clone(), nil
}

// Records returns a copy of every record.
func (s *Store) Records() []request.Record {
	return s.Snapshot(nil)
}

// Snapshot returns the records whose content type is in filter, or every
// record when filter is empty.
func (s *Store) Snapshot(filter MimeFilter) []request.Record {
	out := make([]request.Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Match(rec.ContentType) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// contentType reports the content type of record i without copying it.
func (s *Store) contentType(i int) string {
	return s.records[i].ContentType
}

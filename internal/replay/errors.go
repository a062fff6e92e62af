package replay

import (
	"errors"
	"fmt"

	"github.com/funnyzak/reqreplay/pkg/request"
)

var (
	// ErrMalformedInput indicates the record source could not be turned into records.
	ErrMalformedInput = errors.New("malformed input")
	// ErrNoNextRecord is returned when no record is reachable after the cursor.
	ErrNoNextRecord = errors.New("there is no next record")
	// ErrNoPreviousRecord is returned when no record is reachable before the cursor.
	ErrNoPreviousRecord = errors.New("there is no previous record")
	// ErrInvalidIndex is returned by JumpTo for out-of-range or filtered-out indices.
	ErrInvalidIndex = errors.New("invalid record index")
	// ErrInvalidConfiguration reports a contradictory init request.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInsufficientRecords is matched by *InsufficientRecordsError.
	ErrInsufficientRecords = errors.New("insufficient records")
	// ErrSessionClosed is returned once Close has released the connection.
	ErrSessionClosed = errors.New("session is closed")
	// ErrNoConnection is returned by ExecuteCurrent when no connection is open.
	ErrNoConnection = errors.New("no open connection")
	// ErrFieldNotFound is returned when renaming a POST field that is not staged.
	ErrFieldNotFound = errors.New("post field not found")
)

// InsufficientRecordsError reports a bounded run that ran out of records.
// Responses holds everything executed before the shortfall.
type InsufficientRecordsError struct {
	Requested int
	Executed  int
	Responses map[int]*request.Response
	Err       error
}

func (e *InsufficientRecordsError) Error() string {
	return fmt.Sprintf("insufficient records: requested %d, executed %d: %v", e.Requested, e.Executed, e.Err)
}

// Is reports ErrInsufficientRecords as a match.
func (e *InsufficientRecordsError) Is(target error) bool {
	return target == ErrInsufficientRecords
}

func (e *InsufficientRecordsError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failure surfaced by the transport untouched.
type TransportError struct {
	Index int
	URL   string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("replay of record %d (%s) failed: %v", e.Index, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

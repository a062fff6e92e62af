package replay

import (
	"fmt"

	"github.com/funnyzak/reqreplay/pkg/request"
)

// Cursor returns the index of the current record.
func (s *Session) Cursor() int {
	return s.cursor.Index()
}

// Count returns the number of loaded records.
func (s *Session) Count() int {
	return s.store.Count()
}

// Current returns a copy of the record at the cursor.
func (s *Session) Current() request.Record {
	rec, _ := s.store.At(s.cursor.Index())
	return rec
}

// Record returns a copy of the record at index i.
func (s *Session) Record(i int) (request.Record, error) {
	return s.store.At(i)
}

// Prepared returns the request the next ExecuteCurrent will send.
func (s *Session) Prepared() request.Outbound {
	return s.pending.outbound()
}

// CookieMode reports the active cookie continuity mode.
func (s *Session) CookieMode() CookieMode {
	return cookieModeFor(s.jarPath)
}

// CookieJarPath returns the jar file path, empty in header mode.
func (s *Session) CookieJarPath() string {
	return s.jarPath
}

// SetCookieJar switches cookie continuity mode. An empty path selects header
// mode. Cookie state is not reconciled between modes, and the request staged
// for the current record keeps whatever Cookie header it was translated with
// until the next Init.
func (s *Session) SetCookieJar(path string) {
	if path != s.jarPath {
		s.logger.Warn("Cookie continuity mode changed mid-session",
			"session_id", s.id,
			"from", s.CookieMode().String(),
			"to", cookieModeFor(path).String(),
		)
	}
	s.jarPath = path
}

// MimeFilter returns the active content type filter, sorted.
func (s *Session) MimeFilter() []string {
	return s.filter.Types()
}

// SetMimeFilter replaces the content type filter. The cursor does not move.
func (s *Session) SetMimeFilter(types ...string) {
	s.filter = NewMimeFilter(types...)
}

// SetURL overrides the target URL for the next replay.
func (s *Session) SetURL(u string) {
	s.pending.url = u
}

// SetUserAgent overrides the user agent for the next replay.
func (s *Session) SetUserAgent(ua string) {
	s.pending.userAgent = ua
}

// SetHeader replaces the first header named name or appends a new one.
func (s *Session) SetHeader(name, value string) {
	s.pending.setHeader(name, value)
}

// RemoveHeader drops every staged header named name.
func (s *Session) RemoveHeader(name string) bool {
	return s.pending.removeHeader(name)
}

// CustomHeaders returns the staged "Name: value" header lines.
func (s *Session) CustomHeaders() []string {
	return append([]string{}, s.pending.headers...)
}

// SetCustomHeaders replaces the staged header lines.
func (s *Session) SetCustomHeaders(lines []string) {
	s.pending.headers = append([]string(nil), lines...)
}

// PostFields returns the staged POST fields.
func (s *Session) PostFields() []request.Field {
	return append([]request.Field{}, s.pending.fields...)
}

// SetPostFields replaces the staged POST fields.
func (s *Session) SetPostFields(fields []request.Field) {
	s.pending.fields = append([]request.Field(nil), fields...)
}

// SetPostField changes the value of a POST field, adding it when missing.
func (s *Session) SetPostField(name, value string) {
	s.pending.setField(name, value)
}

// HasPostField reports whether a POST field with name is staged.
func (s *Session) HasPostField(name string) bool {
	return s.pending.fieldIndex(name) >= 0
}

// RenamePostField moves the value of a staged POST field to newName. A
// field already named newName takes the value where it stands; otherwise
// the renamed field goes to the end of the body.
func (s *Session) RenamePostField(oldName, newName string) error {
	i := s.pending.fieldIndex(oldName)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}
	field := s.pending.fields[i]
	s.pending.fields = append(s.pending.fields[:i], s.pending.fields[i+1:]...)
	if j := s.pending.fieldIndex(newName); j >= 0 {
		s.pending.fields[j].Value = field.Value
		return nil
	}
	field.Name = newName
	s.pending.fields = append(s.pending.fields, field)
	return nil
}

// Response returns the stored response for index i.
func (s *Session) Response(i int) (*request.Response, bool) {
	resp, ok := s.responses[i]
	return resp, ok
}

// Responses returns a copy of every stored response keyed by record index.
func (s *Session) Responses() map[int]*request.Response {
	out := make(map[int]*request.Response, len(s.responses))
	for k, v := range s.responses {
		out[k] = v
	}
	return out
}

// Export returns the records accepted by the content type filter.
func (s *Session) Export() []request.Record {
	return s.store.Snapshot(s.filter)
}

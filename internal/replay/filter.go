package replay

import (
	"sort"
	"strings"
)

// MimeFilter restricts navigation to records with one of the listed content
// types. The empty filter matches everything.
type MimeFilter map[string]struct{}

// NewMimeFilter builds a filter from the given content types, ignoring blanks.
func NewMimeFilter(types ...string) MimeFilter {
	f := make(MimeFilter, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		f[t] = struct{}{}
	}
	return f
}

// Match returns true if the content type passes the filter.
func (f MimeFilter) Match(contentType string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[contentType]
	return ok
}

// Types returns the filter entries sorted.
func (f MimeFilter) Types() []string {
	out := make([]string, 0, len(f))
	for t := range f {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

package web

import (
	"github.com/funnyzak/reqreplay/internal/storage"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// StoredReplay is storage.StoredReplay, re-exported for API consumers.
type StoredReplay = storage.StoredReplay

// RecordView is one record in the /records listing.
type RecordView struct {
	Index       int              `json:"index"`
	Method      string           `json:"method"`
	URI         string           `json:"uri"`
	ContentType string           `json:"content_type,omitempty"`
	Headers     []request.Header `json:"headers"`
	PostFields  []request.Field  `json:"post_fields"`
	Matches     bool             `json:"matches"`
	Current     bool             `json:"current"`
}

// SessionState describes the live session.
type SessionState struct {
	ID            string           `json:"id"`
	Cursor        int              `json:"cursor"`
	Count         int              `json:"count"`
	CookieMode    string           `json:"cookie_mode"`
	CookieJar     string           `json:"cookie_jar,omitempty"`
	MimeFilter    []string         `json:"mime_filter"`
	Prepared      request.Outbound `json:"prepared"`
	CustomHeaders []string         `json:"custom_headers"`
	PostFields    []request.Field  `json:"post_fields"`
	Responses     int              `json:"responses"`
	Navigation    NavigateDefaults `json:"navigation"`
}

// NavigateDefaults are the init options used when a navigation call omits them.
type NavigateDefaults struct {
	ReuseConnection bool `json:"reuse_connection"`
	ResetSettings   bool `json:"reset_settings"`
}

// NavigateRequest carries the optional init options of a navigation call.
// Missing fields fall back to the session navigation defaults.
type NavigateRequest struct {
	ReuseConnection *bool `json:"reuse_connection,omitempty"`
	ResetSettings   *bool `json:"reset_settings,omitempty"`
}

// OverridesRequest stages changes on the pending request. Nil fields are
// left untouched; map entries are applied in key order.
type OverridesRequest struct {
	URL           *string           `json:"url,omitempty"`
	UserAgent     *string           `json:"user_agent,omitempty"`
	CustomHeaders []string          `json:"custom_headers,omitempty"`
	SetHeaders    map[string]string `json:"set_headers,omitempty"`
	RemoveHeaders []string          `json:"remove_headers,omitempty"`
	PostFields    map[string]string `json:"post_fields,omitempty"`
	RenameFields  map[string]string `json:"rename_fields,omitempty"`
	MimeFilter    *[]string         `json:"mime_filter,omitempty"`
	CookieJar     *string           `json:"cookie_jar,omitempty"`
}

// ExecuteResult is returned by /session/execute.
type ExecuteResult struct {
	Mode      string              `json:"mode"`
	Requested int                 `json:"requested,omitempty"`
	Executed  int                 `json:"executed"`
	Shortfall bool                `json:"shortfall"`
	Responses []*request.Response `json:"responses"`
	Error     string              `json:"error,omitempty"`
	Session   SessionState        `json:"session"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

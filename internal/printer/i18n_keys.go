package printer

const (
	keyReplayTitle         = "cli.replay.title"
	keyReplayFailed        = "cli.replay.failed"
	keyMetadataStatus      = "cli.metadata.status"
	keyMetadataDuration    = "cli.metadata.duration"
	keyMetadataContentType = "cli.metadata.content_type"
	keyMetadataSize        = "cli.metadata.size"
	keyMetadataUserAgent   = "cli.metadata.user_agent"
	keyMetadataCookieMode  = "cli.metadata.cookie_mode"
	keyHeadersSent         = "cli.headers.sent"
	keyHeadersReceived     = "cli.headers.received"
	keyHeadersRedacted     = "cli.headers.redacted"
	keyBodyEmpty           = "cli.body.empty"
	keyBodyTruncate        = "cli.body.truncate_hint"
	keyBodyBinarySummary   = "cli.body.binary_summary"
	keyBodySent            = "cli.body.sent"
	keyRecordsTitle        = "cli.records.title"
	keyRecordsEmpty        = "cli.records.empty"
	keyRecordsFilter       = "cli.records.filter"
	keyRecordsCurrent      = "cli.records.current"
	keySummaryTitle        = "cli.summary.title"
	keySummarySession      = "cli.summary.session"
	keySummaryExecuted     = "cli.summary.executed"
	keySummaryFailed       = "cli.summary.failed"
	keySummaryElapsed      = "cli.summary.elapsed"
	keySummaryShortfall    = "cli.summary.shortfall"
	keyJSONIndentSkipped   = "cli.json.indent_skipped"
	keyFormTitle           = "cli.form.title"
	keyFormKeyHeader       = "cli.form.key_header"
	keyFormValueHeader     = "cli.form.value_header"
)

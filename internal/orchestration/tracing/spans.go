package tracing

// Span attribute keys.
const (
	AttrHTTPMethod     = "http.request.method"
	AttrHTTPStatusCode = "http.response.status_code"
	AttrURLPath        = "url.path"
	AttrServerAddress  = "server.address"
	AttrSessionID      = "session.id"
	AttrOperation      = "agent.operation"
	AttrErrorMessage   = "error.message"
)

// SpanPrefixHTTP prefixes the names of outbound request spans.
const SpanPrefixHTTP = "devin.http "

// Operation names derived from request paths.
const (
	OpCreateSession = "create_session"
	OpSendMessage   = "send_message"
	OpGetStatus     = "get_status"
	OpListSessions  = "list_sessions"
	OpUpload        = "upload_file"
	OpOther         = "other"
)

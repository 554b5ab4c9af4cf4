package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Chat
	FieldRoom      = "room"
	FieldSessionID = "session_id"
	FieldEntryKey  = "entry_key"
	FieldSessions  = "sessions"
)

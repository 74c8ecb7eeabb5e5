package log

// Canonical field names for structured logging.
const (
	FieldComponent = "component"
	FieldEvent     = "event"

	FieldSessionID = "session_id"
	FieldConnID    = "conn_id"
	FieldRoom      = "room"
	FieldUsername  = "username"
	FieldAction    = "action"

	FieldOldState = "old_state"
	FieldNewState = "new_state"

	FieldRequestID = "request_id"
	FieldPath      = "path"
)

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldStreamID  = "stream_id"
	FieldRequestID = "request_id"
	FieldSessionID = "session_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldTID       = "tid"

	// Stream protocol fields
	FieldDirection = "direction"
	FieldCommand   = "command"
	FieldCookie    = "cookie"
	FieldStatus    = "status"
	FieldFrames    = "frames"
	FieldBytes     = "bytes"

	// State fields
	FieldStateFrom  = "state_from"
	FieldStateTo    = "state_to"
	FieldDrainState = "drain_state"

	// Driver fields
	FieldDriver = "driver"
	FieldPath   = "path"
)

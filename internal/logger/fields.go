package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldTaskID is the detox task ID
	FieldTaskID = "task_id"

	// FieldMemeTaskID is the meme sub-task ID
	FieldMemeTaskID = "meme_task_id"

	// FieldFingerprint is the dedup fingerprint of the input text
	FieldFingerprint = "fingerprint"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldUserID is the submitting user ID
	FieldUserID = "user_id"
)

// Standard metric fields, attached at the log entry level for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldAttempt is the retry attempt number
	FieldAttempt = "attempt"

	// FieldBackend is the LLM backend that served a request
	FieldBackend = "backend"
)

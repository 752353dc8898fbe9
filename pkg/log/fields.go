package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor, set by pkg/middleware
	FieldUserID = "user_id"
	FieldEmail  = "email"

	// Matching
	FieldTargetID  = "target_id"
	FieldChoice    = "choice"
	FieldMatchID   = "match_id"
	FieldMatchType = "match_type"
	FieldCount     = "count"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)

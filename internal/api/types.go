// File path: internal/api/types.go
package api

// Error taxonomy surfaced to callers. Every failure maps onto exactly one of
// these codes.
const (
	errBadInput            = "bad_input"
	errValidationRejected  = "validation_rejected"
	errToolExecution       = "tool_error"
	errUpstreamTimeout     = "upstream_timeout"
	errInternal            = "internal_error"
	errInvalidCredentials  = "invalid_credentials"
	errAuditRecordNotFound = "not_found"
)

type generateRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_identifier"`
	Model    string `json:"model_override,omitempty"`
}

type generateMetadata struct {
	RequestID  string `json:"request_id"`
	Model      string `json:"model"`
	Tokens     int    `json:"tokens"`
	DurationMS int64  `json:"duration_ms"`
	SnapshotID string `json:"snapshot_id"`
	Iterations int    `json:"iterations"`
	State      string `json:"state"`
}

type generateResponse struct {
	OK          bool             `json:"ok"`
	SQL         string           `json:"sql,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Metadata    generateMetadata `json:"metadata"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	OK      bool        `json:"ok"`
	Error   errorBody   `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

type schemaSummary struct {
	SnapshotID string   `json:"snapshot_id"`
	BuiltAt    string   `json:"built_at"`
	Tables     []string `json:"tables"`
}

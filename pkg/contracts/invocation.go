package contracts

import "time"

// InvocationStatus is the terminal outcome of one oracle invocation.
type InvocationStatus string

const (
	InvocationSuccess InvocationStatus = "SUCCESS"
	InvocationTimeout InvocationStatus = "TIMEOUT"
	InvocationError   InvocationStatus = "ERROR"

	// InvocationRefused means the construct explicitly declined. It is a
	// deliberate first-class outcome, not a failure: never retried, excluded
	// from scoring, preserved in the audit trail.
	InvocationRefused InvocationStatus = "REFUSED"
)

// InvocationMetadata carries per-call policy knobs.
type InvocationMetadata struct {
	Timeout       time.Duration `json:"timeout_ns,omitempty"`
	RetryCount    int           `json:"retry_count,omitempty"`
	BackoffBase   time.Duration `json:"backoff_base_ns,omitempty"`
	Deterministic bool          `json:"deterministic,omitempty"`
	SanitizeInput bool          `json:"sanitize_input,omitempty"`
}

// OracleInvocationRequest is the standardized envelope handed to an oracle
// adapter. Ephemeral: it is not persisted beyond the evidence bundle.
type OracleInvocationRequest struct {
	InvocationID string             `json:"invocation_id"`
	TheatreID    string             `json:"theatre_id"`
	EpisodeID    string             `json:"episode_id"`
	ConstructID  string             `json:"construct_id"`
	InputData    map[string]any     `json:"input_data"`
	Metadata     InvocationMetadata `json:"metadata"`
}

// OracleInvocationResponse is the standardized envelope returned by the
// invocation wrapper. OutputData is present iff Status is SUCCESS;
// ErrorDetail is present iff Status is ERROR. LatencyMs is always recorded,
// even on failure.
type OracleInvocationResponse struct {
	InvocationID string           `json:"invocation_id"`
	Status       InvocationStatus `json:"status"`
	OutputData   map[string]any   `json:"output_data,omitempty"`
	LatencyMs    int64            `json:"latency_ms"`
	ErrorDetail  string           `json:"error_detail,omitempty"`
	Attempts     int              `json:"attempts"`
}

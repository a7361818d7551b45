package contracts

import "time"

// StepType classifies a resolution step.
type StepType string

const (
	StepConstructInvocation      StepType = "construct_invocation"
	StepDeterministicComputation StepType = "deterministic_computation"
	StepHITLRubric               StepType = "hitl_rubric"
	StepAggregation              StepType = "aggregation"
)

// StepStatus is the outcome status of one executed step.
type StepStatus string

const (
	StepStatusPending     StepStatus = "PENDING"
	StepStatusRunning     StepStatus = "RUNNING"
	StepStatusSuccess     StepStatus = "SUCCESS"
	StepStatusFailed      StepStatus = "FAILED"
	StepStatusEscalated   StepStatus = "ESCALATED"
	StepStatusPendingHITL StepStatus = "PENDING_HITL"
	StepStatusSkipped     StepStatus = "SKIPPED"
)

// ResolutionStep is one typed unit of a committed evaluation pipeline.
type ResolutionStep struct {
	StepID string   `json:"step_id"`
	Type   StepType `json:"type"`

	// ConstructID targets the construct for construct_invocation steps.
	// It must carry a version pin or execution hard-fails.
	ConstructID string `json:"construct_id,omitempty"`

	// Expression is the CEL expression for deterministic_computation and
	// aggregation steps, evaluated over prior step outputs.
	Expression string `json:"expression,omitempty"`

	// Input is the static payload for construct_invocation steps.
	Input map[string]any `json:"input,omitempty"`

	// EscalationPath names the step to jump to if this step fails. Absent,
	// a failure terminates the whole resolution as FAILED.
	EscalationPath string `json:"escalation_path,omitempty"`
}

// StepOutcome records the execution of one step.
type StepOutcome struct {
	StepID     string     `json:"step_id"`
	Type       StepType   `json:"type"`
	Status     StepStatus `json:"status"`
	Output     any        `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// ResolutionStatus is the overall outcome of a resolution run.
type ResolutionStatus string

const (
	ResolutionStatusResolved    ResolutionStatus = "RESOLVED"
	ResolutionStatusFailed      ResolutionStatus = "FAILED"
	ResolutionStatusPendingHITL ResolutionStatus = "PENDING_HITL"
)

// AuditEvent is one append-only entry in the resolution audit trail.
// Every step execution appends an event regardless of outcome.
type AuditEvent struct {
	StepID     string     `json:"step_id"`
	FromStatus StepStatus `json:"from_status"`
	ToStatus   StepStatus `json:"to_status"`
	Timestamp  time.Time  `json:"timestamp"`
	Detail     string     `json:"detail,omitempty"`
}

// ResolutionResult aggregates all step outcomes plus the audit trail.
// Created and consumed entirely within one resolution run.
type ResolutionResult struct {
	TheatreID  string                 `json:"theatre_id"`
	Status     ResolutionStatus       `json:"status"`
	Outcomes   map[string]StepOutcome `json:"outcomes"`
	AuditTrail []AuditEvent           `json:"audit_trail"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

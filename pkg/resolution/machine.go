// Package resolution executes a committed, ordered pipeline of typed
// evaluation steps: construct invocations, deterministic computations,
// human-in-the-loop rubrics, and aggregations.
//
// Escalation is modeled as a transition table keyed by step name: graph
// traversal, not exception control flow. A failed step with an escalation
// path is marked ESCALATED and execution jumps to the named step; without
// one, the whole resolution terminates FAILED. Every step execution appends
// to the audit trail unconditionally.
package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/oracle"
)

// VersionPinError is a hard failure: an unpinned construct invocation breaks
// reproducibility of the audit trail, so absence of a pin is never a soft
// warning.
type VersionPinError struct {
	StepID      string
	ConstructID string
}

func (e *VersionPinError) Error() string {
	return fmt.Sprintf("resolution: step %q: construct %q has no version pin", e.StepID, e.ConstructID)
}

// HITLResolver is the external collaborator that resolves human-in-the-loop
// rubric steps. When nil, a hitl_rubric step halts the run with
// PENDING_HITL status for out-of-band resolution.
type HITLResolver interface {
	Resolve(ctx context.Context, step contracts.ResolutionStep) (any, error)
}

// Machine executes resolution programmes.
type Machine struct {
	invoker *oracle.Invoker
	adapter oracle.Adapter
	hitl    HITLResolver
	policy  oracle.InvocationPolicy
	env     *cel.Env
	logger  *slog.Logger
	clock   func() time.Time
}

// NewMachine creates a resolution state machine. The CEL environment exposes
// one variable, "steps": a map of step id to prior step output.
func NewMachine(adapter oracle.Adapter) (*Machine, error) {
	env, err := cel.NewEnv(
		cel.Variable("steps", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("resolution: cel env: %w", err)
	}
	return &Machine{
		invoker: oracle.NewInvoker(),
		adapter: adapter,
		env:     env,
		logger:  slog.Default().With("component", "resolution"),
		clock:   time.Now,
	}, nil
}

// WithInvoker replaces the default oracle invoker.
func (m *Machine) WithInvoker(inv *oracle.Invoker) *Machine {
	m.invoker = inv
	return m
}

// WithPolicy sets the per-invocation timeout/retry policy for construct steps.
func (m *Machine) WithPolicy(p oracle.InvocationPolicy) *Machine {
	m.policy = p
	return m
}

// WithHITLResolver attaches the human-in-the-loop collaborator.
func (m *Machine) WithHITLResolver(r HITLResolver) *Machine {
	m.hitl = r
	return m
}

// WithClock overrides the clock for testing.
func (m *Machine) WithClock(clock func() time.Time) *Machine {
	m.clock = clock
	return m
}

// Run executes the receipt's committed resolution programme.
func (m *Machine) Run(ctx context.Context, receipt *contracts.CommitmentReceipt) (*contracts.ResolutionResult, error) {
	if receipt == nil {
		return nil, fmt.Errorf("resolution: nil commitment receipt")
	}
	steps := receipt.TemplateSnapshot.ResolutionProgramme
	if len(steps) == 0 {
		return nil, fmt.Errorf("resolution: theatre %q has no resolution programme", receipt.TheatreID)
	}

	index := make(map[string]int, len(steps))
	for i, s := range steps {
		index[s.StepID] = i
	}

	result := &contracts.ResolutionResult{
		TheatreID: receipt.TheatreID,
		Status:    contracts.ResolutionStatusResolved,
		Outcomes:  make(map[string]contracts.StepOutcome, len(steps)),
		StartedAt: m.clock().UTC(),
	}

	// Each step may execute at most once. A second visit means the
	// escalation graph has a cycle, which terminates the run.
	executed := make(map[string]bool, len(steps))

	i := 0
	for i < len(steps) {
		step := steps[i]
		if executed[step.StepID] {
			m.audit(result, step.StepID, contracts.StepStatusEscalated, contracts.StepStatusFailed,
				"escalation cycle: step already executed")
			result.Status = contracts.ResolutionStatusFailed
			break
		}
		executed[step.StepID] = true

		outcome := m.runStep(ctx, receipt, step, result)
		result.Outcomes[step.StepID] = outcome

		switch outcome.Status {
		case contracts.StepStatusPendingHITL:
			// Automatic progression halts; a human resolves externally.
			result.Status = contracts.ResolutionStatusPendingHITL
			result.FinishedAt = m.clock().UTC()
			return result, nil

		case contracts.StepStatusFailed:
			if step.EscalationPath == "" {
				result.Status = contracts.ResolutionStatusFailed
				result.FinishedAt = m.clock().UTC()
				return result, nil
			}
			// Re-mark as escalated and jump to the named step.
			outcome.Status = contracts.StepStatusEscalated
			result.Outcomes[step.StepID] = outcome
			m.audit(result, step.StepID, contracts.StepStatusFailed, contracts.StepStatusEscalated,
				"escalating to "+step.EscalationPath)
			target, ok := index[step.EscalationPath]
			if !ok {
				// Template validation should have caught this; fail closed.
				result.Status = contracts.ResolutionStatusFailed
				result.FinishedAt = m.clock().UTC()
				return result, nil
			}
			// Forward jumps skip the intermediate steps.
			for j := i + 1; j < target; j++ {
				if _, done := result.Outcomes[steps[j].StepID]; !done {
					result.Outcomes[steps[j].StepID] = contracts.StepOutcome{
						StepID: steps[j].StepID,
						Type:   steps[j].Type,
						Status: contracts.StepStatusSkipped,
					}
					m.audit(result, steps[j].StepID, contracts.StepStatusPending, contracts.StepStatusSkipped, "skipped by escalation jump")
				}
			}
			i = target
			continue
		}
		i++
	}

	result.FinishedAt = m.clock().UTC()
	return result, nil
}

func (m *Machine) runStep(ctx context.Context, receipt *contracts.CommitmentReceipt, step contracts.ResolutionStep, result *contracts.ResolutionResult) contracts.StepOutcome {
	m.audit(result, step.StepID, contracts.StepStatusPending, contracts.StepStatusRunning, "")

	outcome := contracts.StepOutcome{
		StepID:    step.StepID,
		Type:      step.Type,
		StartedAt: m.clock().UTC(),
	}

	var output any
	var err error
	switch step.Type {
	case contracts.StepConstructInvocation:
		output, err = m.runConstructInvocation(ctx, receipt, step)
	case contracts.StepDeterministicComputation, contracts.StepAggregation:
		output, err = m.evalExpression(step, result)
	case contracts.StepHITLRubric:
		if m.hitl == nil {
			outcome.Status = contracts.StepStatusPendingHITL
			outcome.FinishedAt = m.clock().UTC()
			m.audit(result, step.StepID, contracts.StepStatusRunning, contracts.StepStatusPendingHITL, "awaiting human resolution")
			return outcome
		}
		output, err = m.hitl.Resolve(ctx, step)
	default:
		err = fmt.Errorf("resolution: step %q: unknown step type %q", step.StepID, step.Type)
	}

	outcome.FinishedAt = m.clock().UTC()
	if err != nil {
		outcome.Status = contracts.StepStatusFailed
		outcome.Error = err.Error()
		m.audit(result, step.StepID, contracts.StepStatusRunning, contracts.StepStatusFailed, err.Error())
		return outcome
	}

	outcome.Status = contracts.StepStatusSuccess
	outcome.Output = output
	m.audit(result, step.StepID, contracts.StepStatusRunning, contracts.StepStatusSuccess, "")
	return outcome
}

func (m *Machine) runConstructInvocation(ctx context.Context, receipt *contracts.CommitmentReceipt, step contracts.ResolutionStep) (any, error) {
	if _, pinned := receipt.VersionPins[step.ConstructID]; !pinned {
		return nil, &VersionPinError{StepID: step.StepID, ConstructID: step.ConstructID}
	}
	req := oracle.NewRequest(receipt.TheatreID, "", step.ConstructID, step.Input, m.policy)
	resp, err := m.invoker.Invoke(ctx, m.adapter, req)
	if err != nil {
		return nil, err
	}
	switch resp.Status {
	case contracts.InvocationSuccess:
		return resp.OutputData, nil
	case contracts.InvocationRefused:
		return nil, fmt.Errorf("resolution: step %q: construct refused", step.StepID)
	default:
		return nil, fmt.Errorf("resolution: step %q: invocation %s: %s", step.StepID, resp.Status, resp.ErrorDetail)
	}
}

// evalExpression evaluates a CEL expression over prior step outputs.
// An empty aggregation expression defaults to collecting every prior output.
func (m *Machine) evalExpression(step contracts.ResolutionStep, result *contracts.ResolutionResult) (any, error) {
	priors := make(map[string]any, len(result.Outcomes))
	for id, o := range result.Outcomes {
		if o.Status == contracts.StepStatusSuccess {
			priors[id] = o.Output
		}
	}

	if step.Expression == "" {
		if step.Type == contracts.StepAggregation {
			return priors, nil
		}
		return nil, fmt.Errorf("resolution: step %q: deterministic_computation requires an expression", step.StepID)
	}

	ast, issues := m.env.Compile(step.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("resolution: step %q: compile: %w", step.StepID, issues.Err())
	}
	prg, err := m.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("resolution: step %q: program: %w", step.StepID, err)
	}
	val, _, err := prg.Eval(map[string]any{"steps": priors})
	if err != nil {
		return nil, fmt.Errorf("resolution: step %q: eval: %w", step.StepID, err)
	}
	return val.Value(), nil
}

// audit appends one event to the trail. The trail is append-only and
// unconditional: it records every transition, not only failures.
func (m *Machine) audit(result *contracts.ResolutionResult, stepID string, from, to contracts.StepStatus, detail string) {
	result.AuditTrail = append(result.AuditTrail, contracts.AuditEvent{
		StepID:     stepID,
		FromStatus: from,
		ToStatus:   to,
		Timestamp:  m.clock().UTC(),
		Detail:     detail,
	})
}

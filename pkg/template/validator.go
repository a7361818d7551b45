// Package template validates theatre template documents.
//
// Validation runs two phases. Phase one is structural JSON-Schema validation
// of the raw document. Phase two is semantic: cross-reference rules that
// assume structural validity (pin coverage, weight invariants, step
// references, adapter policy). Schema errors short-circuit; semantic rules
// never run against a structurally invalid document.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
)

// AdapterMock is the adapter kind rejected for certificate-producing runs.
const AdapterMock = "mock"

var hexHashRe = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Validator validates theatre templates against the structural schema and
// the engine's semantic rules.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the embedded template schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://theatre.schemas.local/theatre_template.schema.json"
	if err := c.AddResource(url, strings.NewReader(templateSchema)); err != nil {
		return nil, fmt.Errorf("template: schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("template: schema compile failed: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// ValidateDocument validates a raw template JSON document. An empty slice
// means valid. Structural errors are reported alone; semantic rules only run
// on structurally valid documents.
func (v *Validator) ValidateDocument(raw []byte) []string {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []string{fmt.Sprintf("template is not valid JSON: %v", err)}
	}
	if err := v.schema.Validate(doc); err != nil {
		return schemaErrors(err)
	}

	var tpl contracts.TheatreTemplate
	if err := json.Unmarshal(raw, &tpl); err != nil {
		return []string{fmt.Sprintf("template decode failed: %v", err)}
	}
	return v.Validate(tpl)
}

// Validate runs the semantic rules over an already-decoded template.
// An empty slice means valid.
func (v *Validator) Validate(tpl contracts.TheatreTemplate) []string {
	var errs []string

	// Weight-key subset and weight-sum invariants.
	if err := tpl.Criteria.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Every construct referenced by the resolution programme needs a pin.
	steps := make(map[string]contracts.ResolutionStep, len(tpl.ResolutionProgramme))
	for _, step := range tpl.ResolutionProgramme {
		if _, dup := steps[step.StepID]; dup {
			errs = append(errs, fmt.Sprintf("duplicate resolution step id %q", step.StepID))
		}
		steps[step.StepID] = step
		if step.Type == contracts.StepConstructInvocation {
			if step.ConstructID == "" {
				errs = append(errs, fmt.Sprintf("step %q: construct_invocation requires construct_id", step.StepID))
			} else if _, ok := tpl.VersionPins[step.ConstructID]; !ok {
				errs = append(errs, fmt.Sprintf("step %q: construct %q has no version pin", step.StepID, step.ConstructID))
			}
		}
	}

	// Every escalation path must name a defined step.
	for _, step := range tpl.ResolutionProgramme {
		if step.EscalationPath == "" {
			continue
		}
		if _, ok := steps[step.EscalationPath]; !ok {
			errs = append(errs, fmt.Sprintf("step %q: escalation path %q does not name a defined step", step.StepID, step.EscalationPath))
		}
	}

	// HITL rubric steps must be resolvable by id.
	for id, step := range steps {
		if step.Type == contracts.StepHITLRubric && id == "" {
			errs = append(errs, "hitl_rubric step with empty step_id")
		}
	}

	// Every construct in the chain needs a pin, primary construct included.
	for _, cid := range append([]string{tpl.ConstructID}, tpl.ConstructChain...) {
		if cid == "" {
			continue
		}
		if _, ok := tpl.VersionPins[cid]; !ok {
			errs = append(errs, fmt.Sprintf("construct %q has no version pin", cid))
		}
	}

	// Pins must be semver or a 64-char lowercase hex hash.
	for cid, pin := range tpl.VersionPins {
		if hexHashRe.MatchString(pin) {
			continue
		}
		if _, err := semver.NewVersion(pin); err != nil {
			errs = append(errs, fmt.Sprintf("construct %q: pin %q is neither semver nor sha256 hex", cid, pin))
		}
	}

	// The declared replay dataset must have a committed hash.
	if tpl.ExecutionPath == contracts.ExecutionPathReplay {
		if tpl.ReplayDatasetID == "" {
			errs = append(errs, "replay execution path requires replay_dataset_id")
		} else if h, ok := tpl.DatasetHashes[tpl.ReplayDatasetID]; !ok || !hexHashRe.MatchString(h) {
			errs = append(errs, fmt.Sprintf("replay dataset %q has no valid dataset hash", tpl.ReplayDatasetID))
		}
	}

	// Certificate-producing runs must not use a mock adapter.
	if tpl.ProducesCertificate && tpl.OracleAdapter == AdapterMock {
		errs = append(errs, "certificate-producing runs require a non-mock oracle adapter")
	}

	return errs
}

// schemaErrors flattens jsonschema validation output into stable strings.
func schemaErrors(err error) []string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("schema: %s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

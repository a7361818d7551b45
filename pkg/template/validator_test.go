package template_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
	"github.com/Calibrant-Labs/theatre/core/pkg/template"
)

const validHash = "ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12"

func validTemplate() contracts.TheatreTemplate {
	return contracts.TheatreTemplate{
		TemplateID:    "tpl-1",
		TheatreID:     "qa_bot_v1",
		ConstructID:   "qa_bot",
		ExecutionPath: contracts.ExecutionPathReplay,
		Criteria: contracts.TheatreCriteria{
			CriteriaIDs: []string{"accuracy", "tone"},
			Weights:     map[string]float64{"accuracy": 0.7, "tone": 0.3},
		},
		ReplayDatasetID:    "ds-1",
		OracleAdapter:      "http",
		VersionPins:        map[string]string{"qa_bot": "1.2.3"},
		DatasetHashes:      map[string]string{"ds-1": validHash},
		MethodologyVersion: "1.0.0",
	}
}

func newValidator(t *testing.T) *template.Validator {
	t.Helper()
	v, err := template.NewValidator()
	require.NoError(t, err)
	return v
}

func TestValidTemplate(t *testing.T) {
	v := newValidator(t)
	assert.Empty(t, v.Validate(validTemplate()))
}

func TestWeightKeyNotDeclared(t *testing.T) {
	v := newValidator(t)
	tpl := validTemplate()
	tpl.Criteria.Weights = map[string]float64{"accuracy": 0.5, "latency": 0.5}

	errs := v.Validate(tpl)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "latency")
}

func TestWeightSumOff(t *testing.T) {
	v := newValidator(t)
	tpl := validTemplate()
	tpl.Criteria.Weights = map[string]float64{"accuracy": 0.7, "tone": 0.2}

	errs := v.Validate(tpl)
	require.NotEmpty(t, errs)
	assert.Contains(t, strings.Join(errs, "; "), "sum")
}

func TestMissingPinForPrimaryConstruct(t *testing.T) {
	v := newValidator(t)
	tpl := validTemplate()
	tpl.VersionPins = map[string]string{}

	errs := v.Validate(tpl)
	assert.Contains(t, strings.Join(errs, "; "), `construct "qa_bot" has no version pin`)
}

func TestMissingPinForChainConstruct(t *testing.T) {
	v := newValidator(t)
	tpl := validTemplate()
	tpl.ConstructChain = []string{"retriever"}

	errs := v.Validate(tpl)
	assert.Contains(t, strings.Join(errs, "; "), `construct "retriever" has no version pin`)
}

func TestPinFormat(t *testing.T) {
	v := newValidator(t)

	t.Run("semver ok", func(t *testing.T) {
		tpl := validTemplate()
		tpl.VersionPins["qa_bot"] = "2.0.0-rc.1"
		assert.Empty(t, v.Validate(tpl))
	})

	t.Run("hex hash ok", func(t *testing.T) {
		tpl := validTemplate()
		tpl.VersionPins["qa_bot"] = validHash
		assert.Empty(t, v.Validate(tpl))
	})

	t.Run("garbage rejected", func(t *testing.T) {
		tpl := validTemplate()
		tpl.VersionPins["qa_bot"] = "latest"
		errs := v.Validate(tpl)
		assert.Contains(t, strings.Join(errs, "; "), "neither semver nor sha256")
	})
}

func TestReplayDatasetHashRequired(t *testing.T) {
	v := newValidator(t)

	t.Run("no dataset id", func(t *testing.T) {
		tpl := validTemplate()
		tpl.ReplayDatasetID = ""
		errs := v.Validate(tpl)
		assert.Contains(t, strings.Join(errs, "; "), "replay_dataset_id")
	})

	t.Run("no hash for dataset", func(t *testing.T) {
		tpl := validTemplate()
		tpl.DatasetHashes = map[string]string{}
		errs := v.Validate(tpl)
		assert.Contains(t, strings.Join(errs, "; "), "no valid dataset hash")
	})

	t.Run("malformed hash", func(t *testing.T) {
		tpl := validTemplate()
		tpl.DatasetHashes["ds-1"] = "not-a-hash"
		errs := v.Validate(tpl)
		assert.Contains(t, strings.Join(errs, "; "), "no valid dataset hash")
	})
}

func TestResolutionProgrammeRules(t *testing.T) {
	v := newValidator(t)

	t.Run("duplicate step ids", func(t *testing.T) {
		tpl := validTemplate()
		tpl.ResolutionProgramme = []contracts.ResolutionStep{
			{StepID: "s1", Type: contracts.StepAggregation},
			{StepID: "s1", Type: contracts.StepAggregation},
		}
		errs := v.Validate(tpl)
		assert.Contains(t, strings.Join(errs, "; "), "duplicate resolution step id")
	})

	t.Run("invocation step without pin", func(t *testing.T) {
		tpl := validTemplate()
		tpl.ResolutionProgramme = []contracts.ResolutionStep{
			{StepID: "s1", Type: contracts.StepConstructInvocation, ConstructID: "judge"},
		}
		errs := v.Validate(tpl)
		assert.Contains(t, strings.Join(errs, "; "), `construct "judge" has no version pin`)
	})

	t.Run("escalation path must name a step", func(t *testing.T) {
		tpl := validTemplate()
		tpl.ResolutionProgramme = []contracts.ResolutionStep{
			{StepID: "s1", Type: contracts.StepAggregation, EscalationPath: "nowhere"},
		}
		errs := v.Validate(tpl)
		assert.Contains(t, strings.Join(errs, "; "), `escalation path "nowhere"`)
	})
}

func TestMockAdapterPolicy(t *testing.T) {
	v := newValidator(t)

	tpl := validTemplate()
	tpl.OracleAdapter = template.AdapterMock
	tpl.ProducesCertificate = true
	errs := v.Validate(tpl)
	assert.Contains(t, strings.Join(errs, "; "), "non-mock oracle adapter")

	// Mock is fine for non-certificate runs.
	tpl.ProducesCertificate = false
	assert.Empty(t, v.Validate(tpl))
}

func TestValidateDocument(t *testing.T) {
	v := newValidator(t)

	t.Run("not json", func(t *testing.T) {
		errs := v.ValidateDocument([]byte("{"))
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "not valid JSON")
	})

	t.Run("schema violation short-circuits", func(t *testing.T) {
		errs := v.ValidateDocument([]byte(`{"template_id": 42}`))
		require.NotEmpty(t, errs)
		for _, e := range errs {
			assert.Contains(t, e, "schema:")
		}
	})

	t.Run("valid document", func(t *testing.T) {
		raw := []byte(`{
			"template_id": "tpl-1",
			"theatre_id": "qa_bot_v1",
			"construct_id": "qa_bot",
			"execution_path": "replay",
			"criteria": {
				"criteria_ids": ["accuracy", "tone"],
				"weights": {"accuracy": 0.7, "tone": 0.3}
			},
			"replay_dataset_id": "ds-1",
			"oracle_adapter": "http",
			"version_pins": {"qa_bot": "1.2.3"},
			"dataset_hashes": {"ds-1": "` + validHash + `"},
			"methodology_version": "1.0.0",
			"produces_certificate": false
		}`)
		assert.Empty(t, v.ValidateDocument(raw))
	})
}

package template

// templateSchema is the structural contract for theatre template documents.
// Semantic rules (pin coverage, weight sums, adapter policy) are enforced in
// a second phase after structural validation passes.
const templateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://theatre.schemas.local/theatre_template.schema.json",
  "type": "object",
  "required": ["template_id", "theatre_id", "construct_id", "execution_path", "criteria", "methodology_version"],
  "properties": {
    "template_id": {"type": "string", "minLength": 1},
    "theatre_id": {"type": "string", "pattern": "^[a-z_]+_v[0-9]+$"},
    "construct_id": {"type": "string", "minLength": 1},
    "execution_path": {"type": "string", "enum": ["replay", "market"]},
    "criteria": {
      "type": "object",
      "required": ["criteria_ids"],
      "properties": {
        "criteria_ids": {
          "type": "array",
          "items": {"type": "string", "minLength": 1},
          "minItems": 1
        },
        "criteria_human": {"type": "string"},
        "weights": {
          "type": "object",
          "additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    },
    "replay_dataset_id": {"type": "string"},
    "oracle_adapter": {"type": "string"},
    "construct_chain": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "resolution_programme": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["step_id", "type"],
        "properties": {
          "step_id": {"type": "string", "minLength": 1},
          "type": {
            "type": "string",
            "enum": ["construct_invocation", "deterministic_computation", "hitl_rubric", "aggregation"]
          },
          "construct_id": {"type": "string"},
          "expression": {"type": "string"},
          "input": {"type": "object"},
          "escalation_path": {"type": "string"}
        }
      }
    },
    "version_pins": {
      "type": "object",
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "dataset_hashes": {
      "type": "object",
      "additionalProperties": {"type": "string", "pattern": "^[a-f0-9]{64}$"}
    },
    "methodology_version": {"type": "string", "minLength": 1},
    "produces_certificate": {"type": "boolean"}
  }
}`

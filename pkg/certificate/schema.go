package certificate

// certificateSchema is the structural contract for issued calibration
// certificates. Every hash field is a 64-character lowercase hex SHA-256.
const certificateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://theatre.schemas.local/calibration_certificate.schema.json",
  "type": "object",
  "required": [
    "certificate_id", "theatre_id", "template_id", "construct_id",
    "criteria", "scores", "composite_score",
    "replay_count", "evidence_bundle_hash", "ground_truth_hash", "dataset_hash",
    "methodology_version", "execution_path", "verification_tier",
    "commitment_hash", "issued_at"
  ],
  "properties": {
    "certificate_id": {"type": "string", "minLength": 1},
    "theatre_id": {"type": "string", "pattern": "^[a-z_]+_v[0-9]+$"},
    "template_id": {"type": "string", "minLength": 1},
    "construct_id": {"type": "string", "minLength": 1},
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
    "scores": {
      "type": "object",
      "additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
    },
    "composite_score": {"type": "number", "minimum": 0, "maximum": 1},
    "replay_count": {"type": "integer", "minimum": 0},
    "evidence_bundle_hash": {"type": "string", "pattern": "^[a-f0-9]{64}$"},
    "ground_truth_hash": {"type": "string", "pattern": "^[a-f0-9]{64}$"},
    "dataset_hash": {"type": "string", "pattern": "^[a-f0-9]{64}$"},
    "commitment_hash": {"type": "string", "pattern": "^[a-f0-9]{64}$"},
    "methodology_version": {"type": "string", "minLength": 1},
    "construct_chain_versions": {
      "type": "object",
      "additionalProperties": {"type": "string", "minLength": 1}
    },
    "execution_path": {"type": "string", "enum": ["replay", "market"]},
    "verification_tier": {"type": "string", "enum": ["UNVERIFIED", "BACKTESTED", "PROVEN"]},
    "issued_at": {"type": "string", "format": "date-time"},
    "expires_at": {"type": "string", "format": "date-time"},
    "metrics": {
      "type": "object",
      "properties": {
        "precision": {"type": "number", "minimum": 0, "maximum": 1},
        "recall": {"type": "number", "minimum": 0, "maximum": 1},
        "brier_score": {"type": "number", "minimum": 0, "maximum": 1},
        "ece": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

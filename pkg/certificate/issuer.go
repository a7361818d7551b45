package certificate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Calibrant-Labs/theatre/core/pkg/contracts"
)

// SchemaValidationError reports a certificate that failed its structural
// contract. Such a certificate must never be written to storage or reported
// as issued.
type SchemaValidationError struct {
	CertificateID string
	Problems      []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("certificate %q failed schema validation: %s",
		e.CertificateID, strings.Join(e.Problems, "; "))
}

// Issuer assembles, validates, and issues calibration certificates.
type Issuer struct {
	schema *jsonschema.Schema
	logger *slog.Logger
	clock  func() time.Time
}

// NewIssuer compiles the embedded certificate schema.
func NewIssuer() (*Issuer, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://theatre.schemas.local/calibration_certificate.schema.json"
	if err := c.AddResource(url, strings.NewReader(certificateSchema)); err != nil {
		return nil, fmt.Errorf("certificate: schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("certificate: schema compile failed: %w", err)
	}
	return &Issuer{
		schema: compiled,
		logger: slog.Default().With("component", "certificate"),
		clock:  time.Now,
	}, nil
}

// WithClock overrides the clock for testing.
func (i *Issuer) WithClock(clock func() time.Time) *Issuer {
	i.clock = clock
	return i
}

// IssueInput collects everything a certificate commits to.
type IssueInput struct {
	Receipt            *contracts.CommitmentReceipt
	Result             *contracts.ReplayResult
	Facts              EvidenceFacts
	EvidenceBundleHash string
	GroundTruthHash    string
	Metrics            *contracts.ExtendedMetrics
}

// Issue assembles the final certificate: tier assignment, expiry, evidence
// linkage, then schema validation. On any validation failure it returns a
// SchemaValidationError and no certificate.
func (i *Issuer) Issue(input IssueInput) (*contracts.TheatreCalibrationCertificate, error) {
	if input.Receipt == nil || input.Result == nil {
		return nil, fmt.Errorf("certificate: commitment receipt and replay result required")
	}

	tpl := input.Receipt.TemplateSnapshot
	issuedAt := i.clock().UTC()
	tier := AssignTier(input.Result, input.Facts)

	cert := &contracts.TheatreCalibrationCertificate{
		CertificateID:          uuid.New().String(),
		TheatreID:              input.Receipt.TheatreID,
		TemplateID:             tpl.TemplateID,
		ConstructID:            tpl.ConstructID,
		Criteria:               tpl.Criteria.Clone(),
		Scores:                 maps.Clone(input.Result.PerCriterionScores),
		CompositeScore:         input.Result.CompositeScore,
		ReplayCount:            input.Result.ReplayCount,
		EvidenceBundleHash:     input.EvidenceBundleHash,
		GroundTruthHash:        input.GroundTruthHash,
		DatasetHash:            input.Result.DatasetHash,
		MethodologyVersion:     tpl.MethodologyVersion,
		ConstructChainVersions: maps.Clone(input.Receipt.VersionPins),
		ExecutionPath:          tpl.ExecutionPath,
		VerificationTier:       tier,
		CommitmentHash:         input.Receipt.CommitmentHash,
		IssuedAt:               issuedAt,
		Metrics:                input.Metrics,
		ExpiresAt:              ExpiryFor(tier, issuedAt),
	}

	if err := i.ValidateCertificate(cert); err != nil {
		return nil, err
	}

	i.logger.Info("certificate issued",
		"certificate_id", cert.CertificateID,
		"theatre_id", cert.TheatreID,
		"tier", string(tier),
		"composite", cert.CompositeScore,
		"replay_count", cert.ReplayCount,
	)
	return cert, nil
}

// ValidateCertificate checks an assembled certificate against the embedded
// JSON schema. A nil return means the certificate is issuable.
func (i *Issuer) ValidateCertificate(cert *contracts.TheatreCalibrationCertificate) error {
	raw, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("certificate: marshal: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("certificate: re-decode: %w", err)
	}
	if err := i.schema.Validate(doc); err != nil {
		return &SchemaValidationError{
			CertificateID: cert.CertificateID,
			Problems:      flattenSchemaError(err),
		}
	}
	return nil
}

// ParseCertificate decodes and schema-validates a certificate document.
func (i *Issuer) ParseCertificate(raw []byte) (*contracts.TheatreCalibrationCertificate, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("certificate: invalid JSON: %w", err)
	}
	if err := i.schema.Validate(doc); err != nil {
		return nil, &SchemaValidationError{Problems: flattenSchemaError(err)}
	}
	var cert contracts.TheatreCalibrationCertificate
	if err := json.Unmarshal(raw, &cert); err != nil {
		return nil, fmt.Errorf("certificate: decode: %w", err)
	}
	return &cert, nil
}

func flattenSchemaError(err error) []string {
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
			out = append(out, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

package contracts

// GroundTruthEpisode is one unit of replay input. Identity is EpisodeID,
// unique within its dataset. Episodes are immutable once part of a committed
// dataset; the dataset hash covers the full ordered episode list.
type GroundTruthEpisode struct {
	EpisodeID string `json:"episode_id"`

	// InputData is the opaque structured payload handed to the oracle.
	InputData map[string]any `json:"input_data"`

	// ExpectedOutput is the opaque payload the scorer compares against.
	// May be nil for pass-through scoring.
	ExpectedOutput map[string]any `json:"expected_output,omitempty"`

	Labels   []string       `json:"labels,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EpisodeResult is the per-episode outcome produced by the replay engine.
type EpisodeResult struct {
	EpisodeID string           `json:"episode_id"`
	Status    InvocationStatus `json:"status"`

	// Output is the raw oracle output; nil unless Status is SUCCESS.
	Output map[string]any `json:"output,omitempty"`

	// Scores maps criteria_id to a value in [0,1]. TIMEOUT/ERROR episodes are
	// all-zero-scored; REFUSED episodes carry no scores at all.
	Scores map[string]float64 `json:"scores,omitempty"`

	// ExcludedFromScoring is true only for REFUSED episodes: a deliberate
	// refusal neither helps nor hurts the composite.
	ExcludedFromScoring bool `json:"excluded_from_scoring"`

	ErrorDetail string `json:"error_detail,omitempty"`
	LatencyMs   int64  `json:"latency_ms"`
}

// ReplayResult aggregates a full dataset pass. Created once per replay
// invocation and immutable afterward.
type ReplayResult struct {
	TheatreID string          `json:"theatre_id"`
	Episodes  []EpisodeResult `json:"episodes"`

	// CompositeScore is the weighted mean of per-criterion means across
	// scored episodes.
	CompositeScore float64 `json:"composite_score"`

	// PerCriterionScores holds the mean score per criterion across scored
	// episodes, feeding the certificate.
	PerCriterionScores map[string]float64 `json:"per_criterion_scores"`

	// FailureRate is (TIMEOUT+ERROR) / (total - REFUSED). An all-REFUSED
	// dataset has failure rate zero.
	FailureRate float64 `json:"failure_rate"`

	// DatasetHash is the verified hash the replay actually ran against.
	DatasetHash string `json:"dataset_hash"`

	ReplayCount  int `json:"replay_count"`
	RefusedCount int `json:"refused_count"`
	FailedCount  int `json:"failed_count"`
}

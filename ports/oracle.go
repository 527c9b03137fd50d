package ports

import (
	"context"

	"answergate/domain/verdict"
)

// EvalRequest is the oracle-facing form of one scoring call
type EvalRequest struct {
	Query    string
	Context  string // passages already joined and sanitized
	Prompt   string // rendered prompt the generator saw, empty if unavailable
	Response string

	// Metrics lists the score dimensions to request; empty means the
	// oracle's default set.
	Metrics []string

	// QualityPreset and Model select the scoring backend configuration.
	QualityPreset string
	Model         string
}

// ScoringOracle scores a generated response against its query and context.
// Implementations own retries and timeouts; scores are probabilistic
// estimates from an opaque model and must be passed through unmodified.
type ScoringOracle interface {
	ScoreResponse(ctx context.Context, req EvalRequest) (verdict.ScoreSet, error)
}

// OracleUsage is a point-in-time snapshot of adapter call accounting
type OracleUsage struct {
	Calls        int64   `json:"calls"`
	Failures     int64   `json:"failures"`
	Retries      int64   `json:"retries"`
	TotalLatency int64   `json:"total_latency_ms"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// UsageReporter exposes call accounting for oracles that track it
type UsageReporter interface {
	Usage() OracleUsage
}

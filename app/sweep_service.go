package app

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"answergate/domain/gate"
	"answergate/domain/verdict"
	"answergate/internal/errors"
	"answergate/ports"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/stat"
)

// SweepService batch-runs Detect over a case set so a deployment can study
// score distributions and pick thresholds before enabling escalation.
// It never touches the remediation store.
type SweepService struct {
	gate        *GateService
	concurrency int64
}

// MetricSummary describes how one metric scored across the sweep
type MetricSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P10    float64 `json:"p10"`
	P25    float64 `json:"p25"`
	// SuggestedThreshold is the 10th percentile of observed scores: a
	// below-direction threshold there flags roughly the worst tenth of
	// responses.
	SuggestedThreshold float64 `json:"suggested_threshold"`
}

// SweepReport aggregates one batch run
type SweepReport struct {
	Cases         int                      `json:"cases"`
	Degraded      int                      `json:"degraded"`
	EscalateRate  float64                  `json:"escalate_rate"`
	GuardrailRate float64                  `json:"guardrail_rate"`
	PerMetric     map[string]MetricSummary `json:"per_metric"`
	Elapsed       time.Duration            `json:"elapsed"`
	OracleUsage   *ports.OracleUsage       `json:"oracle_usage,omitempty"`
}

// NewSweepService creates a sweep runner. concurrency <= 0 defaults to 4.
func NewSweepService(gateService *GateService, concurrency int) (*SweepService, error) {
	if gateService == nil {
		return nil, errors.ConfigInvalid("sweep requires a gate service")
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &SweepService{gate: gateService, concurrency: int64(concurrency)}, nil
}

// Run detects every case with bounded concurrency and aggregates the scores
func (s *SweepService) Run(ctx context.Context, cases []gate.EvalInput) (*SweepReport, error) {
	if len(cases) == 0 {
		return nil, errors.InvalidInput("sweep requires at least one case")
	}

	start := time.Now()
	log.Printf("[Sweep] Running %d cases with concurrency %d", len(cases), s.concurrency)

	sem := semaphore.NewWeighted(s.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	verdicts := make([]verdict.Verdict, 0, len(cases))

	for i := range cases {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, errors.Wrap(err, "sweep canceled")
		}

		wg.Add(1)
		go func(in gate.EvalInput) {
			defer wg.Done()
			defer sem.Release(1)

			v, err := s.gate.Detect(ctx, in)
			if err != nil {
				log.Printf("[Sweep] Case rejected: %v", err)
				return
			}

			mu.Lock()
			verdicts = append(verdicts, v)
			mu.Unlock()
		}(cases[i])
	}

	wg.Wait()

	report := buildReport(verdicts)
	report.Elapsed = time.Since(start)
	if reporter, ok := s.gate.oracle.(ports.UsageReporter); ok {
		usage := reporter.Usage()
		report.OracleUsage = &usage
	}

	log.Printf("[Sweep] Completed %d/%d cases in %v (escalate %.1f%%, guardrail %.1f%%)",
		report.Cases, len(cases), report.Elapsed, report.EscalateRate*100, report.GuardrailRate*100)
	return report, nil
}

func buildReport(verdicts []verdict.Verdict) *SweepReport {
	report := &SweepReport{
		Cases:     len(verdicts),
		PerMetric: make(map[string]MetricSummary),
	}
	if len(verdicts) == 0 {
		return report
	}

	perMetric := make(map[string][]float64)
	escalated, guardrailed := 0, 0
	for _, v := range verdicts {
		if v.Degraded {
			report.Degraded++
		}
		if v.ShouldEscalate {
			escalated++
		}
		if v.ShouldGuardrail {
			guardrailed++
		}
		for name, score := range v.Scores {
			perMetric[name] = append(perMetric[name], score.Value)
		}
	}

	report.EscalateRate = float64(escalated) / float64(len(verdicts))
	report.GuardrailRate = float64(guardrailed) / float64(len(verdicts))

	for name, values := range perMetric {
		report.PerMetric[name] = summarize(values)
	}
	return report
}

func summarize(values []float64) MetricSummary {
	summary := MetricSummary{Count: len(values)}

	// montanaflynn/stats returns an error only on empty input, which the
	// caller excludes.
	summary.Mean, _ = stats.Mean(values)
	summary.Median, _ = stats.Median(values)
	summary.Min, _ = stats.Min(values)
	summary.Max, _ = stats.Max(values)
	summary.P10, _ = stats.Percentile(values, 10)
	summary.P25, _ = stats.Percentile(values, 25)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	summary.SuggestedThreshold = stat.Quantile(0.10, stat.Empirical, sorted, nil)

	return summary
}

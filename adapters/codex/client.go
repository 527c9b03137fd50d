package codex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"answergate/domain/verdict"
	"answergate/internal/errors"
	"answergate/ports"

	"github.com/tidwall/gjson"
)

var _ ports.ScoringOracle = (*Client)(nil)
var _ ports.UsageReporter = (*Client)(nil)

// Config holds scoring service access settings
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	QualityPreset string
	Timeout       time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	HTTPClient    *http.Client // optional, defaults to a fresh client
}

// Client calls the remote scoring service over HTTP. It is stateless per
// call apart from usage accounting; scores come back exactly as the service
// reported them.
type Client struct {
	cfg    Config
	client *http.Client

	mu       sync.Mutex
	calls    int64
	failures int64
	retries  int64
	latency  time.Duration
}

// NewClient creates a scoring oracle client
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.ConfigInvalid("missing scoring service API key")
	}
	if cfg.BaseURL == "" {
		return nil, errors.ConfigInvalid("missing scoring service base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{cfg: cfg, client: client}, nil
}

// scoreRequest is the wire form of one evaluation call
type scoreRequest struct {
	Query         string   `json:"query"`
	Context       string   `json:"context,omitempty"`
	Prompt        string   `json:"prompt,omitempty"`
	Response      string   `json:"response"`
	EvalScores    []string `json:"eval_scores,omitempty"`
	Model         string   `json:"model,omitempty"`
	QualityPreset string   `json:"quality_preset,omitempty"`
}

// ScoreResponse sends one (query, context, prompt, response) tuple for
// scoring. Transport failures retry up to MaxRetries with a fixed backoff;
// 4xx responses and unparseable payloads never retry. All failures surface
// as typed errors so the orchestration layer can apply its fail-open or
// fail-closed policy.
func (c *Client) ScoreResponse(ctx context.Context, req ports.EvalRequest) (verdict.ScoreSet, error) {
	start := time.Now()
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	scores, err := c.scoreWithRetry(ctx, req)

	c.mu.Lock()
	c.latency += time.Since(start)
	if err != nil {
		c.failures++
	}
	c.mu.Unlock()

	return scores, err
}

func (c *Client) scoreWithRetry(ctx context.Context, req ports.EvalRequest) (verdict.ScoreSet, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	preset := req.QualityPreset
	if preset == "" {
		preset = c.cfg.QualityPreset
	}

	body, err := json.Marshal(scoreRequest{
		Query:         req.Query,
		Context:       req.Context,
		Prompt:        req.Prompt,
		Response:      req.Response,
		EvalScores:    req.Metrics,
		Model:         model,
		QualityPreset: preset,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal score request")
	}

	var lastErr error
	attempts := c.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.mu.Lock()
			c.retries++
			c.mu.Unlock()
			log.Printf("[CodexOracle] Retrying score request (attempt %d/%d) after error: %v", attempt+1, attempts, lastErr)

			select {
			case <-ctx.Done():
				return nil, classifyCtxErr(ctx.Err())
			case <-time.After(c.cfg.RetryBackoff):
			}
		}

		scores, retryable, err := c.scoreOnce(ctx, body)
		if err == nil {
			return scores, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, errors.OracleUnavailable(lastErr)
}

// scoreOnce performs a single HTTP round-trip. The bool return marks whether
// the failure is worth retrying.
func (c *Client) scoreOnce(ctx context.Context, body []byte) (verdict.ScoreSet, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/v1/eval", bytes.NewReader(body))
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to build score request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, false, errors.OracleTimeout(err)
		}
		if ctx.Err() != nil {
			return nil, false, classifyCtxErr(ctx.Err())
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read score response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		scores, err := parseScores(payload)
		if err != nil {
			return nil, false, err
		}
		return scores, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("scoring service status %d: %s", resp.StatusCode, truncate(payload, 200))
	default:
		return nil, false, errors.OracleUnavailable(fmt.Errorf("scoring service status %d: %s", resp.StatusCode, truncate(payload, 200)))
	}
}

// parseScores extracts the eval_scores object from the service payload.
// gjson keeps this tolerant of envelope fields the service adds over time.
func parseScores(payload []byte) (verdict.ScoreSet, error) {
	evalScores := gjson.GetBytes(payload, "eval_scores")
	if !evalScores.Exists() || !evalScores.IsObject() {
		return nil, errors.OracleMalformed("score payload missing eval_scores object", nil)
	}

	scores := make(verdict.ScoreSet)
	var parseErr error

	evalScores.ForEach(func(key, value gjson.Result) bool {
		score := value.Get("score")
		if !score.Exists() {
			parseErr = errors.OracleMalformed(fmt.Sprintf("metric %q has no score field", key.String()), nil)
			return false
		}
		v := score.Float()
		if v < 0 || v > 1 {
			parseErr = errors.OracleMalformed(fmt.Sprintf("metric %q score %.4f outside [0,1]", key.String(), v), nil)
			return false
		}
		scores[key.String()] = verdict.Score{
			Value:       v,
			Explanation: value.Get("explanation").String(),
		}
		return true
	})

	if parseErr != nil {
		return nil, parseErr
	}
	return scores, nil
}

// Usage reports call accounting since the client was created
func (c *Client) Usage() ports.OracleUsage {
	c.mu.Lock()
	defer c.mu.Unlock()

	usage := ports.OracleUsage{
		Calls:        c.calls,
		Failures:     c.failures,
		Retries:      c.retries,
		TotalLatency: c.latency.Milliseconds(),
	}
	if c.calls > 0 {
		usage.AvgLatencyMs = float64(c.latency.Milliseconds()) / float64(c.calls)
	}
	return usage
}

func classifyCtxErr(err error) error {
	if err == context.DeadlineExceeded {
		return errors.OracleTimeout(err)
	}
	return errors.OracleUnavailable(err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

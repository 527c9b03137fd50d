package codex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"answergate/domain/remediation"
	"answergate/internal/errors"
	"answergate/ports"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var _ ports.RemediationStore = (*ProjectClient)(nil)

// ProjectConfig holds remote knowledge base access settings
type ProjectConfig struct {
	APIKey     string
	BaseURL    string
	ProjectID  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ProjectClient talks to a remote, per-deployment knowledge base ("project").
// Matching semantics live entirely server-side; this client only moves
// questions and answers across the wire.
type ProjectClient struct {
	cfg    ProjectConfig
	client *http.Client
}

// NewProjectClient creates a remote remediation store client
func NewProjectClient(cfg ProjectConfig) (*ProjectClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.ConfigInvalid("missing project API key")
	}
	if cfg.ProjectID == "" {
		return nil, errors.ConfigInvalid("missing project ID")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &ProjectClient{cfg: cfg, client: client}, nil
}

// Lookup asks the project for the best answered match to the query
func (p *ProjectClient) Lookup(ctx context.Context, query string, opts ports.LookupOptions) (*remediation.Match, error) {
	reqBody := map[string]interface{}{"question": query}
	if opts.SimilarityThreshold > 0 {
		reqBody["similarity_threshold"] = opts.SimilarityThreshold
	}

	body, err := p.do(ctx, http.MethodPost, p.projectURL("query"), reqBody)
	if err != nil {
		return nil, err
	}

	answer := gjson.GetBytes(body, "answer")
	if !answer.Exists() || answer.Type == gjson.Null || answer.String() == "" {
		return nil, nil
	}

	match := &remediation.Match{
		Entry: remediation.Entry{
			Question: gjson.GetBytes(body, "matched_question").String(),
			Answer:   answer.String(),
			State:    remediation.StateAnswered,
		},
		Similarity: gjson.GetBytes(body, "similarity").Float(),
	}
	if id, err := uuid.Parse(gjson.GetBytes(body, "entry_id").String()); err == nil {
		match.Entry.ID = id
	}
	return match, nil
}

// Escalate logs an unanswered question on the project. The service dedups
// semantically equivalent open questions itself, so repeats are safe.
func (p *ProjectClient) Escalate(ctx context.Context, query string, metadata map[string]string) error {
	reqBody := map[string]interface{}{"question": query}
	if len(metadata) > 0 {
		reqBody["metadata"] = metadata
	}

	_, err := p.do(ctx, http.MethodPost, p.projectURL("entries"), reqBody)
	return err
}

// ListEntries returns project entries for SME review
func (p *ProjectClient) ListEntries(ctx context.Context, filters ports.EntryFilters) ([]remediation.Entry, error) {
	endpoint := p.projectURL("entries")
	params := url.Values{}
	if filters.State != nil {
		params.Set("state", string(*filters.State))
	}
	if filters.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", filters.Limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	body, err := p.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	items := gjson.GetBytes(body, "entries")
	if !items.Exists() {
		return nil, errors.StoreUnavailable(fmt.Errorf("entry list payload missing entries array"))
	}

	var entries []remediation.Entry
	if err := json.Unmarshal([]byte(items.Raw), &entries); err != nil {
		return nil, errors.StoreUnavailable(fmt.Errorf("failed to parse entry list: %w", err))
	}
	return entries, nil
}

// AnswerEntry supplies or replaces an SME answer on the project
func (p *ProjectClient) AnswerEntry(ctx context.Context, id uuid.UUID, answer string) error {
	_, err := p.do(ctx, http.MethodPut, p.projectURL("entries/"+id.String()+"/answer"), map[string]interface{}{
		"answer": answer,
	})
	return err
}

func (p *ProjectClient) projectURL(suffix string) string {
	return fmt.Sprintf("%s/v1/projects/%s/%s", p.cfg.BaseURL, p.cfg.ProjectID, suffix)
}

func (p *ProjectClient) do(ctx context.Context, method, endpoint string, reqBody interface{}) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal project request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(callCtx, method, endpoint, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build project request")
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.StoreUnavailable(err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NotFound("project entry")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.StoreUnavailable(fmt.Errorf("project API status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	return body, nil
}

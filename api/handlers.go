package api

import (
	"encoding/json"
	"net/http"

	"answergate/domain/gate"
	"answergate/domain/remediation"
	"answergate/internal/errors"
	"answergate/ports"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// validateRequest is the JSON body for /v1/detect and /v1/validate
type validateRequest struct {
	Query    string            `json:"query"`
	Context  []string          `json:"context,omitempty"`
	Prompt   []gate.Message    `json:"prompt,omitempty"`
	Response string            `json:"response"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (r validateRequest) toInput() gate.EvalInput {
	return gate.EvalInput{
		Query:    r.Query,
		Context:  r.Context,
		Prompt:   r.Prompt,
		Response: r.Response,
		Metadata: r.Metadata,
	}
}

// answerRequest is the JSON body for /v1/answer
type answerRequest struct {
	Query   string   `json:"query"`
	Context []string `json:"context,omitempty"`
}

// entryAnswerRequest is the JSON body for answering an entry
type entryAnswerRequest struct {
	Answer string `json:"answer"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{}
	if reporter, ok := a.oracle.(ports.UsageReporter); ok {
		stats["oracle"] = reporter.Usage()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *App) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("malformed JSON body"))
		return
	}

	v, err := a.gate.Detect(r.Context(), req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"verdict": v})
}

func (a *App) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("malformed JSON body"))
		return
	}

	result, err := a.gate.Validate(r.Context(), req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"verdict":       result.Verdict,
		"expert_answer": result.ExpertAnswer,
		"final_answer":  result.FinalAnswer(req.Response, ""),
	})
}

func (a *App) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("malformed JSON body"))
		return
	}
	if req.Query == "" {
		writeError(w, errors.InvalidInput("query must not be empty"))
		return
	}

	answer, err := a.rag.Answer(r.Context(), req.Query, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func (a *App) handleListEntries(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, errors.NotFound("remediation store"))
		return
	}

	filters := ports.EntryFilters{Limit: 100}
	if state := r.URL.Query().Get("state"); state != "" {
		s := remediation.State(state)
		if s != remediation.StateAnswered && s != remediation.StateUnanswered {
			writeError(w, errors.InvalidInput("state must be answered or unanswered"))
			return
		}
		filters.State = &s
	}

	entries, err := a.store.ListEntries(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (a *App) handleAnswerEntry(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeError(w, errors.NotFound("remediation store"))
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errors.InvalidInput("invalid entry ID"))
		return
	}

	var req entryAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("malformed JSON body"))
		return
	}

	if err := a.store.AnswerEntry(r.Context(), id, req.Answer); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "answered"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeInvalidInput, errors.CodeConfigInvalid:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeStoreDown, errors.CodeOracleDown:
		status = http.StatusBadGateway
	case errors.CodeOracleTimeout:
		status = http.StatusGatewayTimeout
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}

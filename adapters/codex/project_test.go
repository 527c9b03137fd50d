package codex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answergate/domain/remediation"
	"answergate/internal/errors"
	"answergate/ports"
)

func newTestProjectClient(t *testing.T, url string) *ProjectClient {
	t.Helper()
	p, err := NewProjectClient(ProjectConfig{
		APIKey:    "test-key",
		BaseURL:   url,
		ProjectID: "proj-123",
		Timeout:   2 * time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestProjectLookupHit(t *testing.T) {
	entryID := uuid.New()
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"answer":           "It holds 24 ounces.",
			"matched_question": "how many ounces does the bottle hold",
			"similarity":       0.91,
			"entry_id":         entryID.String(),
		})
	}))
	defer server.Close()

	p := newTestProjectClient(t, server.URL)
	match, err := p.Lookup(context.Background(), "How many ounces?", ports.LookupOptions{})
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, "/v1/projects/proj-123/query", gotPath)
	assert.Equal(t, "It holds 24 ounces.", match.Entry.Answer)
	assert.Equal(t, remediation.StateAnswered, match.Entry.State)
	assert.Equal(t, entryID, match.Entry.ID)
	assert.InDelta(t, 0.91, match.Similarity, 1e-9)
}

func TestProjectLookupMissVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"answer absent", `{"matched_question": null}`},
		{"answer null", `{"answer": null}`},
		{"answer empty", `{"answer": ""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := newTestProjectClient(t, server.URL)
			match, err := p.Lookup(context.Background(), "anything", ports.LookupOptions{})
			require.NoError(t, err)
			assert.Nil(t, match, "a miss is (nil, nil), never an error")
		})
	}
}

func TestProjectEscalateSendsMetadata(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p := newTestProjectClient(t, server.URL)
	err := p.Escalate(context.Background(), "How many ounces?", map[string]string{"source": "api"})
	require.NoError(t, err)

	assert.Equal(t, "How many ounces?", gotBody["question"])
	assert.Equal(t, map[string]any{"source": "api"}, gotBody["metadata"])
}

func TestProjectListEntriesPassesFilters(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"entries": [{"question": "q1", "state": "unanswered", "seen_count": 3}]}`))
	}))
	defer server.Close()

	p := newTestProjectClient(t, server.URL)
	state := remediation.StateUnanswered
	entries, err := p.ListEntries(context.Background(), ports.EntryFilters{State: &state, Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, "limit=10&state=unanswered", gotQuery)
	require.Len(t, entries, 1)
	assert.Equal(t, "q1", entries[0].Question)
	assert.Equal(t, 3, entries[0].SeenCount)
}

func TestProjectErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/projects/proj-123/entries/" + uuid.Nil.String() + "/answer":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer server.Close()

	p := newTestProjectClient(t, server.URL)

	err := p.AnswerEntry(context.Background(), uuid.Nil, "an answer")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	_, err = p.Lookup(context.Background(), "q", ports.LookupOptions{})
	assert.True(t, errors.HasCode(err, errors.CodeStoreDown))

	err = p.Escalate(context.Background(), "q", nil)
	assert.True(t, errors.HasCode(err, errors.CodeStoreDown))
}

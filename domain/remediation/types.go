package remediation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// State is the lifecycle position of an entry
type State string

const (
	// StateUnanswered marks an escalated question still waiting on an SME
	StateUnanswered State = "unanswered"
	// StateAnswered marks an entry whose answer can satisfy future lookups
	StateAnswered State = "answered"
)

// Entry is a (question, answer) pair held in the remediation store.
// Answer policy is latest-wins: an SME re-answering an entry replaces the
// previous answer and refreshes AnsweredAt; no version history is kept.
type Entry struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	Question   string            `json:"question" db:"question"`
	Answer     string            `json:"answer,omitempty" db:"answer"`
	State      State             `json:"state" db:"state"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	SeenCount  int               `json:"seen_count" db:"seen_count"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	AnsweredAt *time.Time        `json:"answered_at,omitempty" db:"answered_at"`
}

// Match pairs an answered entry with the similarity that selected it
type Match struct {
	Entry      Entry   `json:"entry"`
	Similarity float64 `json:"similarity"`
}

// NormalizeQuestion canonicalizes a question for dedup: lowercase, punctuation
// stripped, whitespace collapsed. Two questions with the same normal form are
// treated as the same unanswered entry.
func NormalizeQuestion(q string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(q)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// QuestionHash is the dedup key for a question's normal form
func QuestionHash(q string) string {
	sum := sha256.Sum256([]byte(NormalizeQuestion(q)))
	return hex.EncodeToString(sum[:])
}

// Similarity computes token-set Jaccard similarity between two questions.
// It backs the in-house stores; the remote store applies its own matching
// server-side and never consults this.
func Similarity(a, b string) float64 {
	ta := tokens(a)
	tb := tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokens(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(NormalizeQuestion(s)) {
		set[tok] = true
	}
	return set
}

package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/mem-eval/membench/src/facts"
)

// ScopeLongTerm is the only write scope the harness uses. Adapters ignore
// writes for any other scope.
const ScopeLongTerm = "long_term"

// SearchHit is one retrieved memory, flattened for logging and hit checks.
type SearchHit struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// MemoryAdapter is the surface the runner benchmarks. Implementations wrap a
// concrete memory backend and expose write/search with pagination.
type MemoryAdapter interface {
	// Write persists facts into agent memory and reports how many were written.
	Write(ctx context.Context, items []facts.Fact, scope string) (int, error)
	// Search retrieves the first k hits of the requested page.
	Search(ctx context.Context, query string, k, page, pageSize int) ([]SearchHit, error)
	// Delete removes a single memory by ID.
	Delete(ctx context.Context, id int64) error
	// Reset clears the adapter's namespace so repeated runs start cold.
	Reset(ctx context.Context) error
	Close() error
}

// IsTrueHit applies the strict hit rule: the query's subject AND object must
// both appear in the hit text. Predicate-only matches do not count.
func IsTrueHit(query, text string) bool {
	parts := strings.Fields(query)
	if len(parts) < 3 {
		return false
	}
	subj := strings.ToLower(parts[0])
	obj := strings.ToLower(parts[len(parts)-1])
	t := strings.ToLower(text)
	return strings.Contains(t, subj) && strings.Contains(t, obj)
}

// AnyTrueHit reports whether any of the hits strictly matches the query.
func AnyTrueHit(query string, hits []SearchHit) bool {
	for _, h := range hits {
		if IsTrueHit(query, h.Text) {
			return true
		}
	}
	return false
}

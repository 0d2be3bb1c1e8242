package embed

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// ---------- Dummy (fallback) ----------

type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

// DummyEmbedding folds the text bytes into a fixed 768-dim vector. It is fully
// deterministic, which is what the benchmark needs: retrieval quality stays
// constant across runs so latency differences come from the access strategy.
func DummyEmbedding(text string) []float32 {
	vec := make([]float32, 768)
	for i, ch := range []byte(text) {
		vec[i%768] += float32(ch) / 255.0
	}
	return vec
}

// AutoEmbedder chooses a provider from env:
// MEMBENCH_EMBED_PROVIDER=openai|google|gemini|ollama|voyage
// MEMBENCH_EMBED_MODEL=<model string>
// Unset or failing providers fall back to the dummy embedder.
func AutoEmbedder() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("MEMBENCH_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("MEMBENCH_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "google", "gemini":
		if e, err := NewGeminiEmbedder(model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "voyage", "claude", "anthropic":
		if e, err := NewVoyageEmbedder(model); err == nil {
			return e
		}
	}

	if provider != "" && provider != "dummy" {
		log.Printf("AutoEmbedder: provider %q unavailable, falling back to DummyEmbedder", provider)
	}
	return DummyEmbedder{}
}

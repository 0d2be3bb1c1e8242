package embed

import (
	"context"
	"testing"
)

func TestDummyEmbeddingDeterministic(t *testing.T) {
	a := DummyEmbedding("gold.entity.1 is associated with gold.topic.1")
	b := DummyEmbedding("gold.entity.1 is associated with gold.topic.1")
	if len(a) != 768 {
		t.Fatalf("dimension = %d, want 768", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}

	c := DummyEmbedding("something else entirely")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts produced identical embeddings")
	}
}

func TestAutoEmbedderFallsBackToDummy(t *testing.T) {
	t.Setenv("MEMBENCH_EMBED_PROVIDER", "")
	e := AutoEmbedder()
	if _, ok := e.(DummyEmbedder); !ok {
		t.Fatalf("expected DummyEmbedder, got %T", e)
	}

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vec) != 768 {
		t.Fatalf("dimension = %d, want 768", len(vec))
	}
}

func TestAutoEmbedderUnavailableProvider(t *testing.T) {
	// No OPENAI_API_KEY in the test environment, so the provider constructor
	// fails and the dummy fallback kicks in.
	t.Setenv("MEMBENCH_EMBED_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")
	if _, ok := AutoEmbedder().(DummyEmbedder); !ok {
		t.Fatal("expected fallback to DummyEmbedder")
	}
}

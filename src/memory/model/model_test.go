package model

import (
	"math"
	"testing"
	"time"
)

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors = %f, want 1", got)
	}
	if got := CosineSimilarity(a, []float32{0, 1, 0}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors = %f, want 0", got)
	}
	if got := CosineSimilarity(nil, a); got != 0 {
		t.Fatalf("empty vector = %f, want 0", got)
	}
	// Unequal lengths compare over the common prefix.
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 5}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("prefix comparison = %f, want 1", got)
	}
}

func TestNormalizeMetadata(t *testing.T) {
	fallback := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	source, lastEmbedded, jsonString := NormalizeMetadata(map[string]any{
		"source":  "synthetic",
		"subject": "gold.entity.1",
	}, fallback)

	if source != "synthetic" {
		t.Fatalf("source = %q", source)
	}
	if !lastEmbedded.Equal(fallback) {
		t.Fatalf("lastEmbedded = %v, want fallback %v", lastEmbedded, fallback)
	}

	decoded := DecodeMetadata(jsonString)
	if decoded["subject"] != "gold.entity.1" {
		t.Fatalf("round-trip lost subject: %#v", decoded)
	}
	if decoded["last_embedded"] == "" {
		t.Fatal("last_embedded missing from encoded metadata")
	}
}

func TestNormalizeMetadataNilMap(t *testing.T) {
	source, lastEmbedded, jsonString := NormalizeMetadata(nil, time.Time{})
	if source != "" {
		t.Fatalf("source = %q, want empty", source)
	}
	if lastEmbedded.IsZero() {
		t.Fatal("expected lastEmbedded to default to now")
	}
	if jsonString == "" {
		t.Fatal("expected valid JSON for nil metadata")
	}
}

func TestDecodeMetadataInvalid(t *testing.T) {
	if m := DecodeMetadata("{not json"); len(m) != 0 {
		t.Fatalf("invalid input should decode to empty map, got %#v", m)
	}
	if m := DecodeMetadata(""); m == nil {
		t.Fatal("empty input should decode to non-nil map")
	}
}

func TestStringFromAny(t *testing.T) {
	if got := StringFromAny("plain"); got != "plain" {
		t.Fatalf("string = %q", got)
	}
	if got := StringFromAny([]byte("bytes")); got != "bytes" {
		t.Fatalf("bytes = %q", got)
	}
	if got := StringFromAny(nil); got != "" {
		t.Fatalf("nil = %q, want empty", got)
	}
	if got := StringFromAny(map[string]any{"k": "v"}); got != `{"k":"v"}` {
		t.Fatalf("map = %q", got)
	}
}

func TestTimeFromAny(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	if got := TimeFromAny(now); !got.Equal(now) {
		t.Fatalf("time passthrough = %v", got)
	}
	if got := TimeFromAny(now.Format(time.RFC3339)); !got.Equal(now) {
		t.Fatalf("RFC3339 parse = %v, want %v", got, now)
	}
	if got := TimeFromAny("yesterday"); !got.IsZero() {
		t.Fatalf("garbage string = %v, want zero", got)
	}
}

package store

import (
	"context"
	"testing"

	"github.com/mem-eval/membench/src/memory/model"
)

func TestInMemoryStoreRanksBySimilarity(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.StoreMemory(ctx, "ns", "close", nil, []float32{1, 0, 0}); err != nil {
		t.Fatalf("StoreMemory returned error: %v", err)
	}
	if err := s.StoreMemory(ctx, "ns", "far", nil, []float32{0, 1, 0}); err != nil {
		t.Fatalf("StoreMemory returned error: %v", err)
	}
	if err := s.StoreMemory(ctx, "ns", "middle", nil, []float32{1, 1, 0}); err != nil {
		t.Fatalf("StoreMemory returned error: %v", err)
	}

	results, err := s.SearchMemory(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchMemory returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Content != "close" {
		t.Fatalf("expected 'close' ranked first, got %q", results[0].Content)
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("results out of order: %f < %f", results[0].Score, results[1].Score)
	}
}

func TestInMemoryStoreSearchLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	if got, err := s.SearchMemory(ctx, []float32{1}, 0); err != nil || got != nil {
		t.Fatalf("limit 0 should return nothing, got %v, %v", got, err)
	}
}

func TestInMemoryStoreDeleteAndCount(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.StoreMemory(ctx, "ns", "x", nil, []float32{1}); err != nil {
			t.Fatalf("StoreMemory returned error: %v", err)
		}
	}
	if n, _ := s.Count(ctx); n != 3 {
		t.Fatalf("expected 3 records, got %d", n)
	}

	if err := s.DeleteMemory(ctx, []int64{1, 2}); err != nil {
		t.Fatalf("DeleteMemory returned error: %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Fatalf("expected 1 record after delete, got %d", n)
	}
}

func TestInMemoryStoreIterateStopsEarly(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.StoreMemory(ctx, "ns", "x", nil, []float32{1}); err != nil {
			t.Fatalf("StoreMemory returned error: %v", err)
		}
	}

	seen := 0
	err := s.Iterate(ctx, func(model.MemoryRecord) bool {
		seen++
		return seen < 2
	})
	if err != nil {
		t.Fatalf("Iterate returned error: %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected iteration to stop after 2, saw %d", seen)
	}
}

func TestInMemoryStoreMetadataNormalization(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	meta := map[string]any{"source": "synthetic", "subject": "gold.entity.1"}
	if err := s.StoreMemory(ctx, "ns", "fact", meta, []float32{1}); err != nil {
		t.Fatalf("StoreMemory returned error: %v", err)
	}

	var rec model.MemoryRecord
	s.Iterate(ctx, func(r model.MemoryRecord) bool {
		rec = r
		return false
	})
	if rec.Source != "synthetic" {
		t.Fatalf("source = %q", rec.Source)
	}
	decoded := model.DecodeMetadata(rec.Metadata)
	if decoded["subject"] != "gold.entity.1" {
		t.Fatalf("metadata lost subject: %#v", decoded)
	}
}

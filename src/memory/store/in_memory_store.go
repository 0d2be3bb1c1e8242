package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mem-eval/membench/src/memory/model"
)

// InMemoryStore implements VectorStore for tests and self-contained benchmark
// runs where backend latency should not pollute the measurement.
type InMemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]model.MemoryRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[int64]model.MemoryRecord)}
}

func (s *InMemoryStore) StoreMemory(_ context.Context, namespace, content string, metadata map[string]any, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = make(map[int64]model.MemoryRecord)
	}
	now := time.Now().UTC()
	source, lastEmbedded, metadataJSON := model.NormalizeMetadata(metadata, now)
	s.nextID++
	record := model.MemoryRecord{
		ID:           s.nextID,
		Namespace:    namespace,
		Content:      content,
		Metadata:     metadataJSON,
		Embedding:    append([]float32(nil), embedding...),
		Source:       source,
		CreatedAt:    now,
		LastEmbedded: lastEmbedded,
	}
	s.records[record.ID] = record
	return nil
}

func (s *InMemoryStore) SearchMemory(_ context.Context, queryEmbedding []float32, limit int) ([]model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		return nil, nil
	}
	type scored struct {
		rec   model.MemoryRecord
		score float64
	}
	scoredRecords := make([]scored, 0, len(s.records))
	for _, rec := range s.records {
		score := model.CosineSimilarity(queryEmbedding, rec.Embedding)
		rec.Score = score
		scoredRecords = append(scoredRecords, scored{rec: rec, score: score})
	}
	sort.Slice(scoredRecords, func(i, j int) bool {
		return scoredRecords[i].score > scoredRecords[j].score
	})
	if len(scoredRecords) > limit {
		scoredRecords = scoredRecords[:limit]
	}
	result := make([]model.MemoryRecord, len(scoredRecords))
	for i, sc := range scoredRecords {
		result[i] = sc.rec
	}
	return result, nil
}

func (s *InMemoryStore) DeleteMemory(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *InMemoryStore) Iterate(_ context.Context, fn func(model.MemoryRecord) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.records[ids[i]].CreatedAt.Before(s.records[ids[j]].CreatedAt) })
	for _, id := range ids {
		if !fn(s.records[id]) {
			break
		}
	}
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

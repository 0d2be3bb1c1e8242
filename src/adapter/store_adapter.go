package adapter

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/mem-eval/membench/src/cache"
	"github.com/mem-eval/membench/src/concurrent"
	"github.com/mem-eval/membench/src/facts"
	"github.com/mem-eval/membench/src/memory/embed"
	"github.com/mem-eval/membench/src/memory/model"
	"github.com/mem-eval/membench/src/memory/store"
)

const (
	searchCacheCapacity = 512
	searchCacheTTL      = 5 * time.Minute
	resetBatchSize      = 256
	resetConcurrency    = 4
)

// StoreAdapter implements MemoryAdapter on top of any VectorStore. Facts are
// flattened to text, embedded and written as long-term memories; search embeds
// the query and pages through similarity-ranked results.
type StoreAdapter struct {
	store       store.VectorStore
	embedder    embed.Embedder
	namespace   string
	searchCache *cache.LRUCache
	logger      *log.Logger
}

// NewStoreAdapter wraps the given store. A nil embedder falls back to
// embed.AutoEmbedder().
func NewStoreAdapter(s store.VectorStore, embedder embed.Embedder, namespace string) *StoreAdapter {
	if embedder == nil {
		embedder = embed.AutoEmbedder()
	}
	if namespace == "" {
		namespace = "mem-eval-fixed"
	}
	return &StoreAdapter{
		store:       s,
		embedder:    embedder,
		namespace:   namespace,
		searchCache: cache.NewLRUCache(searchCacheCapacity, searchCacheTTL),
		logger:      log.New(os.Stderr, "adapter: ", log.LstdFlags),
	}
}

// Namespace returns the namespace this adapter writes into.
func (a *StoreAdapter) Namespace() string { return a.namespace }

// Write flattens each fact to its canonical text and stores it with the
// triple preserved in metadata. Any successful write invalidates the search
// cache, since rankings may have shifted.
func (a *StoreAdapter) Write(ctx context.Context, items []facts.Fact, scope string) (int, error) {
	if scope != ScopeLongTerm || len(items) == 0 {
		return 0, nil
	}
	written := 0
	for _, f := range items {
		text := f.Text()
		vec, err := a.embed(ctx, text)
		if err != nil {
			return written, fmt.Errorf("embed fact: %w", err)
		}
		metadata := map[string]any{
			"subject":   f.Subject,
			"predicate": f.Predicate,
			"object":    f.Object,
			"tags":      f.Tags,
			"source":    f.Source,
			"ts":        f.Timestamp,
			"scope":     scope,
		}
		if err := a.store.StoreMemory(ctx, a.namespace, text, metadata, vec); err != nil {
			return written, fmt.Errorf("store fact: %w", err)
		}
		written++
	}
	if written > 0 {
		a.searchCache.Clear()
	}
	return written, nil
}

// Search embeds the query, over-fetches enough ranked records to cover the
// requested page, then returns the first k hits of that page. Only records
// in the adapter's namespace are considered; a shared store can host several
// namespaces without leaking hits across them. Results are cached per
// (query, k, page, pageSize) until the next write.
func (a *StoreAdapter) Search(ctx context.Context, query string, k, page, pageSize int) ([]SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	key := cache.HashKey(fmt.Sprintf("%s|%d|%d|%d", query, k, page, pageSize))
	if cached, ok := a.searchCache.Get(key); ok {
		if hits, ok := cached.([]SearchHit); ok {
			return hits, nil
		}
	}

	vec, err := a.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	ranked, err := a.store.SearchMemory(ctx, vec, page*pageSize)
	if err != nil {
		return nil, err
	}
	records := make([]model.MemoryRecord, 0, len(ranked))
	for _, rec := range ranked {
		if rec.Namespace == a.namespace {
			records = append(records, rec)
		}
	}

	start := (page - 1) * pageSize
	if start >= len(records) {
		return nil, nil
	}
	pageRecords := records[start:]
	if len(pageRecords) > pageSize {
		pageRecords = pageRecords[:pageSize]
	}
	if len(pageRecords) > k {
		pageRecords = pageRecords[:k]
	}

	hits := make([]SearchHit, 0, len(pageRecords))
	for _, rec := range pageRecords {
		hits = append(hits, SearchHit{
			ID:        rec.ID,
			Text:      rec.Content,
			Score:     rec.Score,
			CreatedAt: rec.CreatedAt,
		})
	}
	a.searchCache.Set(key, hits)
	return hits, nil
}

// Delete removes one memory by ID.
func (a *StoreAdapter) Delete(ctx context.Context, id int64) error {
	a.searchCache.Clear()
	return a.store.DeleteMemory(ctx, []int64{id})
}

// Reset deletes every record in the store, in parallel batches.
func (a *StoreAdapter) Reset(ctx context.Context) error {
	var ids []int64
	err := a.store.Iterate(ctx, func(rec model.MemoryRecord) bool {
		ids = append(ids, rec.ID)
		return true
	})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	batches := make([][]int64, 0, len(ids)/resetBatchSize+1)
	for start := 0; start < len(ids); start += resetBatchSize {
		end := start + resetBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	err = concurrent.ParallelForEach(ctx, batches, func(batch []int64) error {
		return a.store.DeleteMemory(ctx, batch)
	}, resetConcurrency)
	if err != nil {
		return err
	}
	a.searchCache.Clear()
	a.logger.Printf("reset namespace %s: deleted %d memories", a.namespace, len(ids))
	return nil
}

// Close releases the underlying store when it holds external resources.
func (a *StoreAdapter) Close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (a *StoreAdapter) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := a.embedder.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		return embed.DummyEmbedding(text), nil
	}
	return vec, nil
}

var _ MemoryAdapter = (*StoreAdapter)(nil)

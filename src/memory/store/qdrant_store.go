package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mem-eval/membench/src/memory/model"
)

// Distance is the similarity metric used by a Qdrant collection.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string // "ok" or "error"
	Error string // non-empty if error
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      int64          `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector"`
}

type qdrantScrollResult struct {
	Points []qdrantPoint   `json:"points"`
	Offset json.RawMessage `json:"next_page_offset"`
}

type qdrantCountResult struct {
	Count int `json:"count"`
}

// QdrantStore implements VectorStore against the Qdrant HTTP API.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
	nextID     atomic.Int64
}

// NewQdrantStore creates a Qdrant-backed VectorStore implementation.
func NewQdrantStore(baseURL, collection, apiKey string) *QdrantStore {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	qs := &QdrantStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
	// Unique enough across harness runs against a shared collection.
	qs.nextID.Store(time.Now().UnixNano())
	return qs
}

// CreateSchema creates the collection when it does not exist yet. The call is
// idempotent: an "already exists" answer is treated as success.
func (qs *QdrantStore) CreateSchema(ctx context.Context, _ string) error {
	req := map[string]any{
		"vectors": map[string]any{"size": 768, "distance": DistanceCosine},
	}
	var out qdrantEnvelope[json.RawMessage]
	err := qs.call(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", url.PathEscape(qs.collection)), req, &out)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}

func (qs *QdrantStore) StoreMemory(ctx context.Context, namespace, content string, metadata map[string]any, embedding []float32) error {
	if qs == nil {
		return nil
	}
	now := time.Now().UTC()
	source, lastEmbedded, metadataJSON := model.NormalizeMetadata(metadata, now)
	id := qs.nextID.Add(1)
	req := map[string]any{
		"points": []map[string]any{{
			"id":     id,
			"vector": embedding,
			"payload": map[string]any{
				"namespace":     namespace,
				"content":       content,
				"metadata":      metadataJSON,
				"source":        source,
				"created_at":    now.Format(time.RFC3339Nano),
				"last_embedded": lastEmbedded.UTC().Format(time.RFC3339Nano),
			},
		}},
	}
	var out qdrantEnvelope[json.RawMessage]
	return qs.call(ctx, http.MethodPut, qs.pointsPath(""), req, &out)
}

func (qs *QdrantStore) SearchMemory(ctx context.Context, queryEmbedding []float32, limit int) ([]model.MemoryRecord, error) {
	if qs == nil || limit <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       queryEmbedding,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}
	var out qdrantEnvelope[[]qdrantPoint]
	if err := qs.call(ctx, http.MethodPost, qs.pointsPath("/search"), req, &out); err != nil {
		return nil, err
	}
	records := make([]model.MemoryRecord, 0, len(out.Result))
	for _, pt := range out.Result {
		rec := pointToRecord(pt)
		rec.Score = pt.Score
		records = append(records, rec)
	}
	return records, nil
}

func (qs *QdrantStore) DeleteMemory(ctx context.Context, ids []int64) error {
	if qs == nil || len(ids) == 0 {
		return nil
	}
	req := map[string]any{"points": ids}
	var out qdrantEnvelope[json.RawMessage]
	return qs.call(ctx, http.MethodPost, qs.pointsPath("/delete"), req, &out)
}

func (qs *QdrantStore) Iterate(ctx context.Context, fn func(model.MemoryRecord) bool) error {
	if qs == nil {
		return nil
	}
	var offset json.RawMessage
	for {
		req := map[string]any{
			"limit":        256,
			"with_payload": true,
			"with_vector":  true,
		}
		if len(offset) > 0 {
			req["offset"] = offset
		}
		var out qdrantEnvelope[qdrantScrollResult]
		if err := qs.call(ctx, http.MethodPost, qs.pointsPath("/scroll"), req, &out); err != nil {
			return err
		}
		for _, pt := range out.Result.Points {
			if !fn(pointToRecord(pt)) {
				return nil
			}
		}
		if len(out.Result.Offset) == 0 || string(out.Result.Offset) == "null" {
			return nil
		}
		offset = out.Result.Offset
	}
}

func (qs *QdrantStore) Count(ctx context.Context) (int, error) {
	if qs == nil {
		return 0, nil
	}
	var out qdrantEnvelope[qdrantCountResult]
	if err := qs.call(ctx, http.MethodPost, qs.pointsPath("/count"), map[string]any{"exact": true}, &out); err != nil {
		return 0, err
	}
	return out.Result.Count, nil
}

func (qs *QdrantStore) pointsPath(suffix string) string {
	return fmt.Sprintf("/collections/%s/points%s", url.PathEscape(qs.collection), suffix)
}

// call performs one Qdrant HTTP request with the dual-status envelope parsing
// the API needs (2xx bodies may still carry an error status).
func (qs *QdrantStore) call(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, qs.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if qs.apiKey != "" {
		// Either header works; sending both covers deployments with either check.
		httpReq.Header.Set("api-key", qs.apiKey)
		httpReq.Header.Set("Authorization", "Bearer "+qs.apiKey)
	}

	resp, err := qs.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var env qdrantEnvelope[json.RawMessage]
	_ = json.Unmarshal(respBody, &env) // best-effort parse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if env.Status.Error != "" {
			return errors.New(env.Status.Error)
		}
		return fmt.Errorf("qdrant error: http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if env.Status.Error != "" {
		return errors.New(env.Status.Error)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func pointToRecord(pt qdrantPoint) model.MemoryRecord {
	rec := model.MemoryRecord{
		ID:        pt.ID,
		Namespace: model.StringFromAny(pt.Payload["namespace"]),
		Content:   model.StringFromAny(pt.Payload["content"]),
		Metadata:  model.StringFromAny(pt.Payload["metadata"]),
		Source:    model.StringFromAny(pt.Payload["source"]),
		Embedding: pt.Vector,
	}
	rec.CreatedAt = model.TimeFromAny(pt.Payload["created_at"])
	rec.LastEmbedded = model.TimeFromAny(pt.Payload["last_embedded"])
	return rec
}

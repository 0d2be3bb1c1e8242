package store

import (
	"context"
	"strings"
	"testing"
)

type fakeNeo4jDriver struct {
	sessions   []*fakeNeo4jSession
	nextResult *fakeNeo4jResult
	closed     bool
}

func (d *fakeNeo4jDriver) NewSession(_ context.Context, config Neo4jSessionConfig) (neo4jSession, error) {
	sess := &fakeNeo4jSession{config: config, result: d.nextResult}
	d.sessions = append(d.sessions, sess)
	return sess, nil
}

func (d *fakeNeo4jDriver) Close(context.Context) error {
	d.closed = true
	return nil
}

type fakeNeo4jSession struct {
	config  Neo4jSessionConfig
	queries []string
	params  []map[string]any
	closed  bool
	result  *fakeNeo4jResult
}

func (s *fakeNeo4jSession) Run(_ context.Context, query string, params map[string]any) (neo4jResult, error) {
	s.queries = append(s.queries, query)
	s.params = append(s.params, params)
	if s.result != nil {
		return s.result, nil
	}
	return &fakeNeo4jResult{}, nil
}

func (s *fakeNeo4jSession) Close(context.Context) error {
	s.closed = true
	return nil
}

type fakeNeo4jResult struct {
	rows []fakeNeo4jRecord
	pos  int
}

func (r *fakeNeo4jResult) Next(context.Context) bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeNeo4jResult) Record() neo4jRecord { return r.rows[r.pos-1] }
func (r *fakeNeo4jResult) Err() error          { return nil }

type fakeNeo4jRecord map[string]any

func (r fakeNeo4jRecord) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

var _ neo4jDriver = (*fakeNeo4jDriver)(nil)

func TestNeo4jStoreMirrorsTriples(t *testing.T) {
	base := NewInMemoryStore()
	driver := &fakeNeo4jDriver{}
	s, err := NewNeo4jStore(base, driver, "neo4j")
	if err != nil {
		t.Fatalf("NewNeo4jStore returned error: %v", err)
	}

	ctx := context.Background()
	meta := map[string]any{
		"subject":   "gold.entity.1",
		"predicate": "is associated with",
		"object":    "gold.topic.1",
	}
	if err := s.StoreMemory(ctx, "ns", "fact text", meta, []float32{1}); err != nil {
		t.Fatalf("StoreMemory returned error: %v", err)
	}

	if n, _ := base.Count(ctx); n != 1 {
		t.Fatalf("base store should hold the record, count=%d", n)
	}
	if len(driver.sessions) != 1 {
		t.Fatalf("expected one graph session, got %d", len(driver.sessions))
	}
	sess := driver.sessions[0]
	if sess.config.AccessMode != AccessModeWrite {
		t.Fatalf("expected write session, got %q", sess.config.AccessMode)
	}
	if !sess.closed {
		t.Fatal("session not closed after upsert")
	}
	if len(sess.queries) != 1 || !strings.Contains(sess.queries[0], "MERGE") {
		t.Fatalf("unexpected cypher: %v", sess.queries)
	}
	if sess.params[0]["subject"] != "gold.entity.1" {
		t.Fatalf("subject param = %v", sess.params[0]["subject"])
	}
}

func TestNeo4jStoreSkipsNonTriples(t *testing.T) {
	base := NewInMemoryStore()
	driver := &fakeNeo4jDriver{}
	s, _ := NewNeo4jStore(base, driver, "")

	ctx := context.Background()
	if err := s.StoreMemory(ctx, "ns", "free text", map[string]any{"source": "chat"}, []float32{1}); err != nil {
		t.Fatalf("StoreMemory returned error: %v", err)
	}
	if len(driver.sessions) != 0 {
		t.Fatalf("non-triple write should not touch the graph, sessions=%d", len(driver.sessions))
	}
}

func TestNeo4jStoreTripleCount(t *testing.T) {
	base := NewInMemoryStore()
	driver := &fakeNeo4jDriver{}
	s, _ := NewNeo4jStore(base, driver, "")

	ctx := context.Background()
	count, err := s.TripleCount(ctx, "ns")
	if err != nil {
		t.Fatalf("TripleCount returned error: %v", err)
	}
	if count != 0 {
		t.Fatalf("empty graph count = %d", count)
	}
	if sess := driver.sessions[0]; sess.config.AccessMode != AccessModeRead {
		t.Fatalf("expected read session, got %q", sess.config.AccessMode)
	}

	driver.nextResult = &fakeNeo4jResult{rows: []fakeNeo4jRecord{{"total": int64(7)}}}
	count, err = s.TripleCount(ctx, "ns")
	if err != nil {
		t.Fatalf("TripleCount returned error: %v", err)
	}
	if count != 7 {
		t.Fatalf("count = %d, want 7", count)
	}
}

func TestNeo4jStoreDeleteKeepsGraph(t *testing.T) {
	base := NewInMemoryStore()
	driver := &fakeNeo4jDriver{}
	s, _ := NewNeo4jStore(base, driver, "")

	ctx := context.Background()
	meta := map[string]any{"subject": "a", "predicate": "uses", "object": "b"}
	if err := s.StoreMemory(ctx, "ns", "a uses b", meta, []float32{1}); err != nil {
		t.Fatalf("StoreMemory returned error: %v", err)
	}
	if err := s.DeleteMemory(ctx, []int64{1}); err != nil {
		t.Fatalf("DeleteMemory returned error: %v", err)
	}
	if n, _ := base.Count(ctx); n != 0 {
		t.Fatalf("record not deleted from base, count=%d", n)
	}
	// Only the original upsert session exists; delete opened no new one.
	if len(driver.sessions) != 1 {
		t.Fatalf("delete should not touch the graph, sessions=%d", len(driver.sessions))
	}
}

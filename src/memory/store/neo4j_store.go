package store

import (
	"context"
	"errors"
	"time"

	"github.com/mem-eval/membench/src/memory/model"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	// AccessModeWrite opens a session with write access.
	AccessModeWrite Neo4jAccessMode = "write"
	// AccessModeRead opens a session with read access.
	AccessModeRead Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the minimal subset of Neo4j session configuration we require.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver abstracts the Neo4j driver capabilities used by the store. This allows tests to
// provide lightweight fakes without depending on the real driver package (which is guarded behind
// an optional build tag).
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// Neo4jStore composes an existing VectorStore with a Neo4j-backed triple graph.
//
// Vector embeddings and similarity search remain delegated to the base store, while the
// subject-predicate-object structure of written facts is mirrored into Neo4j.
type Neo4jStore struct {
	base     VectorStore
	driver   neo4jDriver
	database string
}

var _ VectorStore = (*Neo4jStore)(nil)

// ErrNeo4jUnavailable is returned when graph operations are attempted without a configured driver.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

// NewNeo4jStore constructs a store that delegates vector operations to base and mirrors fact
// triples into the provided Neo4j driver.
func NewNeo4jStore(base VectorStore, driver neo4jDriver, database string) (*Neo4jStore, error) {
	if base == nil {
		return nil, errors.New("base vector store is nil")
	}
	if driver == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Neo4jStore{base: base, driver: driver, database: database}, nil
}

// StoreMemory writes the record to the base store and, when the metadata carries a triple,
// mirrors it into the graph.
func (s *Neo4jStore) StoreMemory(ctx context.Context, namespace, content string, metadata map[string]any, embedding []float32) error {
	if err := s.base.StoreMemory(ctx, namespace, content, metadata, embedding); err != nil {
		return err
	}
	subject := model.StringFromAny(metadata["subject"])
	predicate := model.StringFromAny(metadata["predicate"])
	object := model.StringFromAny(metadata["object"])
	if subject == "" || predicate == "" || object == "" {
		return nil
	}
	return s.upsertTriple(ctx, namespace, subject, predicate, object)
}

// SearchMemory forwards the call to the underlying vector store.
func (s *Neo4jStore) SearchMemory(ctx context.Context, queryEmbedding []float32, limit int) ([]model.MemoryRecord, error) {
	return s.base.SearchMemory(ctx, queryEmbedding, limit)
}

// DeleteMemory forwards the call to the underlying vector store. Graph nodes are retained:
// triples are facts about the world, not per-record state.
func (s *Neo4jStore) DeleteMemory(ctx context.Context, ids []int64) error {
	return s.base.DeleteMemory(ctx, ids)
}

// Iterate forwards the call to the underlying vector store.
func (s *Neo4jStore) Iterate(ctx context.Context, fn func(model.MemoryRecord) bool) error {
	return s.base.Iterate(ctx, fn)
}

// Count forwards the call to the underlying vector store.
func (s *Neo4jStore) Count(ctx context.Context) (int, error) {
	return s.base.Count(ctx)
}

// TripleCount reports how many RELATES edges exist for the namespace.
func (s *Neo4jStore) TripleCount(ctx context.Context, namespace string) (int64, error) {
	if s.driver == nil {
		return 0, ErrNeo4jUnavailable
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: s.database})
	if err != nil {
		return 0, err
	}
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
                MATCH (:Entity)-[r:RELATES {namespace: $namespace}]->(:Entity)
                RETURN count(r) AS total
        `, map[string]any{"namespace": namespace})
	if err != nil {
		return 0, err
	}
	if result.Next(ctx) {
		if v, ok := result.Record().Get("total"); ok {
			switch t := v.(type) {
			case int64:
				return t, nil
			case int:
				return int64(t), nil
			}
		}
	}
	return 0, result.Err()
}

func (s *Neo4jStore) upsertTriple(ctx context.Context, namespace, subject, predicate, object string) error {
	if s.driver == nil {
		return ErrNeo4jUnavailable
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: s.database})
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
                MERGE (s:Entity {name: $subject})
                MERGE (o:Entity {name: $object})
                MERGE (s)-[r:RELATES {predicate: $predicate, namespace: $namespace}]->(o)
                SET r.updated_at = $now
        `, map[string]any{
		"subject":   subject,
		"object":    object,
		"predicate": predicate,
		"namespace": namespace,
		"now":       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	for result.Next(ctx) {
	}
	return result.Err()
}

// Close releases the Neo4j driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mem-eval/membench/src/memory/model"
)

// PostgresStore implements VectorStore using Postgres + pgvector.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and returns a Postgres-backed VectorStore implementation.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

// StoreMemory inserts a long-term record into Postgres.
func (ps *PostgresStore) StoreMemory(ctx context.Context, namespace, content string, metadata map[string]any, embedding []float32) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	source, lastEmbedded, metadataJSON := model.NormalizeMetadata(metadata, time.Now().UTC())
	query := `
                INSERT INTO memory_bank (namespace, content, metadata, embedding, source, last_embedded)
                VALUES ($1, $2, $3::jsonb, $4::vector, $5, $6)
                RETURNING id;
        `
	jsonEmbed, _ := json.Marshal(embedding)
	var id int64
	return ps.DB.QueryRow(ctx, query, namespace, content, metadataJSON, vectorFromJSON(jsonEmbed), source, lastEmbedded).Scan(&id)
}

// SearchMemory returns top-k similar memories from Postgres.
func (ps *PostgresStore) SearchMemory(ctx context.Context, queryEmbedding []float32, limit int) ([]model.MemoryRecord, error) {
	if ps == nil || ps.DB == nil {
		return nil, nil
	}
	jsonEmbed, _ := json.Marshal(queryEmbedding)
	rows, err := ps.DB.Query(ctx, `
        SELECT id, namespace, content, metadata::text, source, created_at, last_embedded, embedding::text, (embedding <-> $1::vector) AS score
        FROM memory_bank
        ORDER BY embedding <-> $1::vector
        LIMIT $2;
        `, vectorFromJSON(jsonEmbed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.MemoryRecord
	for rows.Next() {
		var rec model.MemoryRecord
		var embeddingText string
		if err := rows.Scan(&rec.ID, &rec.Namespace, &rec.Content, &rec.Metadata, &rec.Source, &rec.CreatedAt, &rec.LastEmbedded, &embeddingText, &rec.Score); err != nil {
			return nil, err
		}
		rec.Embedding = parseVector(embeddingText)
		rec.Score = 1 - rec.Score
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (ps *PostgresStore) DeleteMemory(ctx context.Context, ids []int64) error {
	if ps == nil || ps.DB == nil || len(ids) == 0 {
		return nil
	}
	_, err := ps.DB.Exec(ctx, `DELETE FROM memory_bank WHERE id = ANY($1)`, ids)
	return err
}

func (ps *PostgresStore) Iterate(ctx context.Context, fn func(model.MemoryRecord) bool) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	rows, err := ps.DB.Query(ctx, `
        SELECT id, namespace, content, metadata::text, source, created_at, last_embedded, embedding::text
        FROM memory_bank
        ORDER BY created_at ASC
        `)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var rec model.MemoryRecord
		var embeddingText string
		if err := rows.Scan(&rec.ID, &rec.Namespace, &rec.Content, &rec.Metadata, &rec.Source, &rec.CreatedAt, &rec.LastEmbedded, &embeddingText); err != nil {
			return err
		}
		rec.Embedding = parseVector(embeddingText)
		if !fn(rec) {
			break
		}
	}
	return rows.Err()
}

func (ps *PostgresStore) Count(ctx context.Context) (int, error) {
	if ps == nil || ps.DB == nil {
		return 0, nil
	}
	var count int
	err := ps.DB.QueryRow(ctx, `SELECT COUNT(*) FROM memory_bank`).Scan(&count)
	return count, err
}

// CreateSchema ensures pgvector extension and memory table are available.
func (ps *PostgresStore) CreateSchema(ctx context.Context, schemaPath string) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	schema := defaultPostgresSchema
	if schemaPath != "" {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		schema = string(data)
	}

	_, err := ps.DB.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close releases the underlying Postgres connection pool.
func (ps *PostgresStore) Close() error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	ps.DB.Close()
	return nil
}

const defaultPostgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_bank (
    id BIGSERIAL PRIMARY KEY,
    namespace TEXT NOT NULL,
    content TEXT NOT NULL,
    metadata JSONB,
    embedding vector(768),
    source TEXT DEFAULT '',
    created_at TIMESTAMPTZ DEFAULT NOW(),
    last_embedded TIMESTAMPTZ DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS memory_namespace_idx ON memory_bank (namespace);
CREATE INDEX IF NOT EXISTS memory_embedding_idx ON memory_bank USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`

func trimJSON(s string) string { return strings.Trim(s, "[]") }

func vectorFromJSON(jsonEmbed []byte) string {
	return fmt.Sprintf("[%s]", trimJSON(string(jsonEmbed)))
}

func parseVector(text string) []float32 {
	text = strings.Trim(text, "[]")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			continue
		}
		vec = append(vec, float32(f))
	}
	return vec
}

package store

import (
	"context"

	"github.com/mem-eval/membench/src/memory/model"
)

// VectorStore defines the contract for long-term memory backends.
type VectorStore interface {
	StoreMemory(ctx context.Context, namespace, content string, metadata map[string]any, embedding []float32) error
	SearchMemory(ctx context.Context, queryEmbedding []float32, limit int) ([]model.MemoryRecord, error)
	DeleteMemory(ctx context.Context, ids []int64) error
	Iterate(ctx context.Context, fn func(model.MemoryRecord) bool) error
	Count(ctx context.Context) (int, error)
}

// SchemaInitializer allows stores to expose optional schema/bootstrap routines.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context, schemaPath string) error
}

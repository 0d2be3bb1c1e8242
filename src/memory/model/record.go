package model

import "time"

// MemoryRecord represents a persisted memory entry in a vector store.
type MemoryRecord struct {
	ID           int64     `json:"id"`
	Namespace    string    `json:"namespace"`
	Content      string    `json:"content"`
	Metadata     string    `json:"metadata"`
	Embedding    []float32 `json:"embedding"`
	Score        float64   `json:"score"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
	LastEmbedded time.Time `json:"last_embedded"`
}

package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mem-eval/membench/src/memory/model"
)

// MongoStore implements VectorStore on MongoDB. Similarity search uses the
// Atlas $vectorSearch pipeline when available.
type MongoStore struct {
	client            *mongo.Client
	collection        *mongo.Collection
	counterCollection *mongo.Collection
}

const mongoCloseTimeout = 5 * time.Second

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	return &MongoStore{
		client:            client,
		collection:        db.Collection(collection),
		counterCollection: db.Collection("counters"),
	}, nil
}

func (ms *MongoStore) StoreMemory(ctx context.Context, namespace, content string, metadata map[string]any, embedding []float32) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	now := time.Now().UTC()
	source, lastEmbedded, metadataJSON := model.NormalizeMetadata(metadata, now)

	id, err := ms.nextID(ctx)
	if err != nil {
		return err
	}

	doc := bson.M{
		"_id":           id,
		"namespace":     namespace,
		"content":       content,
		"metadata":      metadataJSON,
		"embedding":     float64Embedding(embedding),
		"source":        source,
		"created_at":    now,
		"last_embedded": lastEmbedded,
	}
	_, err = ms.collection.InsertOne(ctx, doc)
	return err
}

func (ms *MongoStore) SearchMemory(ctx context.Context, queryEmbedding []float32, limit int) ([]model.MemoryRecord, error) {
	if ms == nil || ms.collection == nil || limit <= 0 {
		return nil, nil
	}

	pipeline := mongo.Pipeline{
		{
			{Key: "$vectorSearch", Value: bson.D{
				{Key: "index", Value: "vector_index"},
				{Key: "path", Value: "embedding"},
				{Key: "queryVector", Value: float64Embedding(queryEmbedding)},
				{Key: "numCandidates", Value: int64(limit * 10)}, // Oversample for better accuracy
				{Key: "limit", Value: int64(limit)},
			}},
		},
		{
			{Key: "$addFields", Value: bson.D{
				{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
			}},
		},
	}

	cursor, err := ms.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []model.MemoryRecord
	for cursor.Next(ctx) {
		var doc struct {
			mongoMemoryDocument `bson:",inline"`
			Score               float64 `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		rec := doc.toRecord()
		rec.Score = doc.Score
		records = append(records, rec)
	}
	return records, cursor.Err()
}

func (ms *MongoStore) DeleteMemory(ctx context.Context, ids []int64) error {
	if ms == nil || ms.collection == nil || len(ids) == 0 {
		return nil
	}
	_, err := ms.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

func (ms *MongoStore) Iterate(ctx context.Context, fn func(model.MemoryRecord) bool) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := ms.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var doc mongoMemoryDocument
		if err := cursor.Decode(&doc); err != nil {
			return err
		}
		if !fn(doc.toRecord()) {
			break
		}
	}
	return cursor.Err()
}

func (ms *MongoStore) Count(ctx context.Context) (int, error) {
	if ms == nil || ms.collection == nil {
		return 0, nil
	}
	count, err := ms.collection.CountDocuments(ctx, bson.M{})
	return int(count), err
}

// CreateSchema ensures the primary collection has useful indexes and initializes the counter collection.
func (ms *MongoStore) CreateSchema(ctx context.Context, _ string) error {
	if ms == nil || ms.collection == nil {
		return nil
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "namespace", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("namespace_created_at"),
		},
	}
	if _, err := ms.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return err
	}

	if ms.counterCollection != nil {
		_, err := ms.counterCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "_id", Value: 1}},
			Options: options.Index().SetName("counter_id").SetUnique(true),
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (ms *MongoStore) nextID(ctx context.Context) (int64, error) {
	if ms.counterCollection == nil {
		return 0, errors.New("mongo counter collection is not configured")
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	res := ms.counterCollection.FindOneAndUpdate(ctx, bson.M{"_id": ms.collection.Name()}, bson.M{"$inc": bson.M{"seq": 1}}, opts)
	if res.Err() != nil {
		return 0, res.Err()
	}
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	if err := res.Decode(&doc); err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

type mongoMemoryDocument struct {
	ID           int64     `bson:"_id"`
	Namespace    string    `bson:"namespace"`
	Content      string    `bson:"content"`
	Metadata     string    `bson:"metadata"`
	Embedding    []float64 `bson:"embedding"`
	Source       string    `bson:"source"`
	CreatedAt    time.Time `bson:"created_at"`
	LastEmbedded time.Time `bson:"last_embedded"`
}

func (doc mongoMemoryDocument) toRecord() model.MemoryRecord {
	return model.MemoryRecord{
		ID:           doc.ID,
		Namespace:    doc.Namespace,
		Content:      doc.Content,
		Metadata:     doc.Metadata,
		Embedding:    float32Embedding(doc.Embedding),
		Source:       doc.Source,
		CreatedAt:    doc.CreatedAt,
		LastEmbedded: doc.LastEmbedded,
	}
}

func float64Embedding(vec []float32) []float64 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func float32Embedding(vec []float64) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

// Close releases the underlying MongoDB client.
func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

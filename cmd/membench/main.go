// membench runs the fat-vs-paged memory benchmark: two passes over the gold
// queries, writing facts into memory on pass-1 misses and logging every query
// as a JSON line.
//
// Examples:
//
//	go run ./cmd/membench -mode fat -out runs/fat.jsonl
//	go run ./cmd/membench -mode paged -pages 3 -page_size 50 -out runs/paged.jsonl
//
//	export MEMBENCH_POSTGRES_URL=postgres://localhost/membench
//	go run ./cmd/membench -store postgres -mode paged
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mem-eval/membench/src/adapter"
	"github.com/mem-eval/membench/src/facts"
	"github.com/mem-eval/membench/src/memory/store"
	"github.com/mem-eval/membench/src/runner"
)

var (
	flagMode       = flag.String("mode", "fat", "Memory access strategy: fat|paged")
	flagOut        = flag.String("out", "", "Run log path (default membench_<mode>.jsonl)")
	flagNFacts     = flag.Int("n_facts", 10000, "Total synthetic facts, gold included")
	flagNGold      = flag.Int("n_gold", 500, "Gold facts in the corpus")
	flagSeed       = flag.Int64("seed", 42, "Corpus RNG seed")
	flagPages      = flag.Int("pages", 3, "Pages walked per miss in paged mode")
	flagPageSize   = flag.Int("page_size", 50, "Facts per page")
	flagQueries    = flag.Int("queries", 0, "Gold queries per pass (default: gold entity count)")
	flagPasses     = flag.Int("passes", 2, "Benchmark passes")
	flagCapPerPage = flag.Int("cap_per_page", 2, "Writes per page in paged mode")
	flagStore      = flag.String("store", "memory", "Backend: memory|postgres|qdrant|mongo")
	flagNamespace  = flag.String("namespace", "mem-eval-fixed", "Memory namespace")
	flagFramework  = flag.String("framework", "membench", "Framework label stamped on records")
	flagPreseed    = flag.Int("preseed", 0, "Gold facts to write before the run")
	flagTimeout    = flag.Duration("timeout", 30*time.Minute, "Overall run timeout")
)

func main() {
	// Best effort, same as the runners this mirrors.
	_ = godotenv.Load()
	flag.Parse()

	mode, err := facts.ParseMode(*flagMode)
	if err != nil {
		log.Fatalf("membench: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := buildStore(ctx, *flagStore)
	if err != nil {
		log.Fatalf("membench: %v", err)
	}

	mem := adapter.NewStoreAdapter(backend, nil, *flagNamespace)
	defer mem.Close()

	cfg := runner.Config{
		Mode:       mode,
		Pages:      *flagPages,
		PageSize:   *flagPageSize,
		NFacts:     *flagNFacts,
		NGold:      *flagNGold,
		Queries:    *flagQueries,
		Seed:       *flagSeed,
		Passes:     *flagPasses,
		CapPerPage: *flagCapPerPage,
		Out:        *flagOut,
		Namespace:  *flagNamespace,
		Framework:  *flagFramework,
	}

	r, err := runner.New(cfg, mem)
	if err != nil {
		log.Fatalf("membench: %v", err)
	}
	defer r.Close()

	if *flagPreseed > 0 {
		if err := r.Preseed(ctx, *flagPreseed); err != nil {
			log.Fatalf("membench: %v", err)
		}
	}
	if err := r.Run(ctx); err != nil {
		log.Fatalf("membench: run %s: %v", r.RunID(), err)
	}
}

// buildStore constructs the chosen backend from environment DSNs. Remote
// stores get their schema initialized before the run.
func buildStore(ctx context.Context, kind string) (store.VectorStore, error) {
	switch kind {
	case "memory", "":
		return store.NewInMemoryStore(), nil

	case "postgres":
		dsn := os.Getenv("MEMBENCH_POSTGRES_URL")
		if dsn == "" {
			return nil, fmt.Errorf("store postgres requires MEMBENCH_POSTGRES_URL")
		}
		pg, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := pg.CreateSchema(ctx, ""); err != nil {
			return nil, err
		}
		return pg, nil

	case "qdrant":
		base := os.Getenv("MEMBENCH_QDRANT_URL")
		if base == "" {
			base = "http://localhost:6333"
		}
		collection := os.Getenv("MEMBENCH_QDRANT_COLLECTION")
		if collection == "" {
			collection = "membench_memories"
		}
		qs := store.NewQdrantStore(base, collection, os.Getenv("QDRANT_API_KEY"))
		if err := qs.CreateSchema(ctx, ""); err != nil {
			return nil, err
		}
		return qs, nil

	case "mongo":
		uri := os.Getenv("MEMBENCH_MONGO_URI")
		if uri == "" {
			return nil, fmt.Errorf("store mongo requires MEMBENCH_MONGO_URI")
		}
		db := os.Getenv("MEMBENCH_MONGO_DB")
		if db == "" {
			db = "membench"
		}
		collection := os.Getenv("MEMBENCH_MONGO_COLLECTION")
		if collection == "" {
			collection = "memories"
		}
		ms, err := store.NewMongoStore(ctx, uri, db, collection)
		if err != nil {
			return nil, err
		}
		if err := ms.CreateSchema(ctx, ""); err != nil {
			return nil, err
		}
		return ms, nil
	}
	return nil, fmt.Errorf("unknown store %q (want memory|postgres|qdrant|mongo)", kind)
}

// memanalyze summarizes one or more membench run logs: hit rates and latency
// per mode, optional per-phase breakdowns, miss-to-hit transitions and the
// slowest/fastest queries.
//
//	go run ./cmd/memanalyze runs/fat.jsonl runs/paged.jsonl
//	go run ./cmd/memanalyze -phases -topk 10 runs/*.jsonl
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mem-eval/membench/src/analyze"
	"github.com/mem-eval/membench/src/runlog"
)

var (
	flagTopK   = flag.Int("topk", 5, "Slowest/fastest queries to list")
	flagPhases = flag.Bool("phases", false, "Include per-phase and pass-transition sections")
)

func main() {
	flag.Parse()
	paths := flag.Args()
	if len(paths) == 0 {
		log.Fatalf("memanalyze: usage: memanalyze [flags] <run.jsonl> [more.jsonl...]")
	}

	records, err := runlog.Read(nil, paths...)
	if err != nil {
		log.Fatalf("memanalyze: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("no records found in the given logs")
		return
	}

	report := analyze.Analyze(records, *flagTopK)
	if err := report.WriteText(os.Stdout, *flagPhases); err != nil {
		log.Fatalf("memanalyze: %v", err)
	}
}

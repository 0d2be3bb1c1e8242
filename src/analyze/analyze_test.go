package analyze

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/mem-eval/membench/src/runlog"
)

func rec(phase, query, mode string, hit bool, latency float64) runlog.Record {
	return runlog.Record{
		Framework:  "membench",
		Phase:      phase,
		Query:      query,
		Mode:       mode,
		UsedMemory: hit,
		LatencyMS:  latency,
	}
}

func TestAnalyzePerMode(t *testing.T) {
	records := []runlog.Record{
		rec("pass1", "q1", "fat", false, 10),
		rec("pass1", "q2", "fat", false, 20),
		rec("pass2", "q1", "fat", true, 4),
		rec("pass2", "q2", "fat", true, 6),
		rec("pass1", "q3", "paged", false, 30),
		rec("pass2", "q3", "paged", false, 40),
	}

	rep := Analyze(records, 5)
	fat := rep.ByMode["fat"]
	if fat.Total != 4 || fat.Hits != 2 {
		t.Fatalf("fat bucket = %+v", fat)
	}
	if math.Abs(fat.HitRate-50) > 1e-9 {
		t.Fatalf("fat hit rate = %f, want 50", fat.HitRate)
	}
	if math.Abs(fat.AvgHitLatency-5) > 1e-9 {
		t.Fatalf("fat avg hit latency = %f, want 5", fat.AvgHitLatency)
	}
	if math.Abs(fat.AvgMissLatency-15) > 1e-9 {
		t.Fatalf("fat avg miss latency = %f, want 15", fat.AvgMissLatency)
	}

	paged := rep.ByMode["paged"]
	if paged.Total != 2 || paged.Hits != 0 {
		t.Fatalf("paged bucket = %+v", paged)
	}
	if paged.AvgHitLatency != 0 {
		t.Fatalf("empty hit bucket should report 0, got %f", paged.AvgHitLatency)
	}

	if rep.Overall.Total != 6 || rep.Overall.Hits != 2 {
		t.Fatalf("overall = %+v", rep.Overall)
	}
}

func TestAnalyzePhaseStatsSmallSampleP95(t *testing.T) {
	records := []runlog.Record{
		rec("pass1", "q1", "fat", false, 10),
		rec("pass1", "q2", "fat", true, 20),
		rec("pass1", "q3", "fat", true, 90),
	}
	rep := Analyze(records, 5)
	ps := rep.ByPhase["pass1"]
	if ps.Count != 3 {
		t.Fatalf("count = %d", ps.Count)
	}
	// Fewer than 20 samples: p95 is the max.
	if ps.P95 != 90 {
		t.Fatalf("p95 = %f, want max 90", ps.P95)
	}
	if ps.P50 != 20 {
		t.Fatalf("p50 = %f, want 20", ps.P50)
	}
	if math.Abs(ps.AvgLatency-40) > 1e-9 {
		t.Fatalf("avg = %f, want 40", ps.AvgLatency)
	}
}

func TestAnalyzeMedianEvenSamples(t *testing.T) {
	records := []runlog.Record{
		rec("pass1", "q1", "fat", false, 10),
		rec("pass1", "q2", "fat", false, 20),
		rec("pass1", "q3", "fat", false, 30),
		rec("pass1", "q4", "fat", false, 40),
	}
	rep := Analyze(records, 5)
	ps := rep.ByPhase["pass1"]
	// Even count: median averages the two middle samples.
	if math.Abs(ps.P50-25) > 1e-9 {
		t.Fatalf("p50 = %f, want 25", ps.P50)
	}
}

func TestAnalyzeTransitionsAndDeltas(t *testing.T) {
	records := []runlog.Record{
		rec("pass1", "q1", "fat", false, 10),
		rec("pass2", "q1", "fat", true, 4),
		rec("pass1", "q2", "fat", false, 10),
		rec("pass2", "q2", "fat", false, 12),
		rec("pass1", "q3", "fat", true, 5),
		rec("pass2", "q3", "fat", true, 5),
	}
	rep := Analyze(records, 5)

	tr := rep.Transitions
	if tr.MissToHit != 1 || tr.MissToMiss != 1 || tr.HitToHit != 1 || tr.HitToMiss != 0 {
		t.Fatalf("transitions = %+v", tr)
	}
	if rep.DeltaCount != 3 {
		t.Fatalf("delta count = %d", rep.DeltaCount)
	}
	// Deltas: -6, +2, 0 -> avg -4/3, median 0.
	if math.Abs(rep.DeltaAvg-(-4.0/3.0)) > 1e-9 {
		t.Fatalf("delta avg = %f", rep.DeltaAvg)
	}
	if rep.DeltaP50 != 0 {
		t.Fatalf("delta p50 = %f, want 0", rep.DeltaP50)
	}
}

func TestAnalyzeTopK(t *testing.T) {
	var records []runlog.Record
	for i := 1; i <= 10; i++ {
		q := fmt.Sprintf("q%d", i)
		records = append(records, rec("pass1", q, "fat", false, 1))
		records = append(records, rec("pass2", q, "fat", true, float64(i)))
	}
	rep := Analyze(records, 3)

	if len(rep.Slowest) != 3 || len(rep.Fastest) != 3 {
		t.Fatalf("topk sizes = %d/%d", len(rep.Slowest), len(rep.Fastest))
	}
	if rep.Slowest[0].Query != "q10" || rep.Slowest[0].LatencyMS != 10 {
		t.Fatalf("slowest = %+v", rep.Slowest[0])
	}
	if rep.Fastest[0].Query != "q1" || rep.Fastest[0].LatencyMS != 1 {
		t.Fatalf("fastest = %+v", rep.Fastest[0])
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	rep := Analyze(nil, 5)
	if rep.Records != 0 {
		t.Fatalf("records = %d", rep.Records)
	}
	var sb strings.Builder
	if err := rep.WriteText(&sb, true); err != nil {
		t.Fatalf("WriteText returned error: %v", err)
	}
	if !strings.Contains(sb.String(), "no records") {
		t.Fatalf("empty report text = %q", sb.String())
	}
}

func TestWriteTextSections(t *testing.T) {
	records := []runlog.Record{
		rec("pass1", "q1", "fat", false, 10),
		rec("pass2", "q1", "fat", true, 4),
	}
	rep := Analyze(records, 5)

	var sb strings.Builder
	if err := rep.WriteText(&sb, true); err != nil {
		t.Fatalf("WriteText returned error: %v", err)
	}
	out := sb.String()
	for _, section := range []string{"per-mode", "per-phase", "transitions", "latency delta", "slowest"} {
		if !strings.Contains(out, section) {
			t.Fatalf("report missing %q section:\n%s", section, out)
		}
	}

	sb.Reset()
	if err := rep.WriteText(&sb, false); err != nil {
		t.Fatalf("WriteText returned error: %v", err)
	}
	if strings.Contains(sb.String(), "per-phase") {
		t.Fatal("phase sections printed without -phases")
	}
}

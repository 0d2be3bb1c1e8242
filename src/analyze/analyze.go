package analyze

import (
	"fmt"
	"io"
	"sort"

	"github.com/mem-eval/membench/src/runlog"
)

// ModeStats aggregates records sharing a mode label.
type ModeStats struct {
	Total          int
	Hits           int
	HitRate        float64
	AvgHitLatency  float64
	AvgMissLatency float64
}

// PhaseStats aggregates records sharing a phase (pass1, pass2, ...).
type PhaseStats struct {
	Count      int
	Hits       int
	HitRate    float64
	AvgLatency float64
	P50        float64
	P95        float64
}

// Transitions counts per-query hit-state changes between pass 1 and pass 2.
type Transitions struct {
	MissToHit  int
	MissToMiss int
	HitToHit   int
	HitToMiss  int
}

// QueryLatency pairs a query with its pass-2 latency, for top-K rankings.
type QueryLatency struct {
	Query     string
	LatencyMS float64
}

// Report is the full analysis of one or more run logs.
type Report struct {
	Records     int
	ByMode      map[string]ModeStats
	Overall     ModeStats
	ByPhase     map[string]PhaseStats
	Transitions Transitions
	DeltaCount  int
	DeltaAvg    float64
	DeltaP50    float64
	Slowest     []QueryLatency
	Fastest     []QueryLatency
}

// Analyze builds a Report from raw records. topK bounds the slowest/fastest
// query lists.
func Analyze(records []runlog.Record, topK int) Report {
	if topK <= 0 {
		topK = 5
	}
	rep := Report{
		Records: len(records),
		ByMode:  make(map[string]ModeStats),
		ByPhase: make(map[string]PhaseStats),
	}
	if len(records) == 0 {
		return rep
	}

	type modeAcc struct {
		total, hits       int
		hitSum, missSum   float64
		hitCount, missCnt int
	}
	modes := make(map[string]*modeAcc)
	overall := &modeAcc{}
	phases := make(map[string][]runlog.Record)

	accumulate := func(acc *modeAcc, rec runlog.Record) {
		acc.total++
		if rec.UsedMemory {
			acc.hits++
			acc.hitSum += rec.LatencyMS
			acc.hitCount++
		} else {
			acc.missSum += rec.LatencyMS
			acc.missCnt++
		}
	}

	for _, rec := range records {
		acc, ok := modes[rec.Mode]
		if !ok {
			acc = &modeAcc{}
			modes[rec.Mode] = acc
		}
		accumulate(acc, rec)
		accumulate(overall, rec)
		phases[rec.Phase] = append(phases[rec.Phase], rec)
	}

	finish := func(acc *modeAcc) ModeStats {
		s := ModeStats{Total: acc.total, Hits: acc.hits}
		if acc.total > 0 {
			s.HitRate = float64(acc.hits) / float64(acc.total) * 100
		}
		if acc.hitCount > 0 {
			s.AvgHitLatency = acc.hitSum / float64(acc.hitCount)
		}
		if acc.missCnt > 0 {
			s.AvgMissLatency = acc.missSum / float64(acc.missCnt)
		}
		return s
	}
	for mode, acc := range modes {
		rep.ByMode[mode] = finish(acc)
	}
	rep.Overall = finish(overall)

	for phase, recs := range phases {
		rep.ByPhase[phase] = phaseStats(recs)
	}

	rep.fillPassComparisons(records, topK)
	return rep
}

func phaseStats(recs []runlog.Record) PhaseStats {
	s := PhaseStats{Count: len(recs)}
	if len(recs) == 0 {
		return s
	}
	latencies := make([]float64, 0, len(recs))
	sum := 0.0
	for _, rec := range recs {
		if rec.UsedMemory {
			s.Hits++
		}
		latencies = append(latencies, rec.LatencyMS)
		sum += rec.LatencyMS
	}
	sort.Float64s(latencies)
	s.HitRate = float64(s.Hits) / float64(s.Count) * 100
	s.AvgLatency = sum / float64(s.Count)
	s.P50 = median(latencies)
	s.P95 = percentile(latencies, 0.95)
	return s
}

// median expects sorted input; even sample counts average the two middle
// values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentile expects sorted input. With fewer than 20 samples the p95 of a
// run is just its max, so small runs never report an optimistic tail.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p >= 0.95 && len(sorted) < 20 {
		return sorted[len(sorted)-1]
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// fillPassComparisons derives the transition matrix, pass2-pass1 latency
// deltas and the top-K pass-2 rankings, all keyed by query.
func (rep *Report) fillPassComparisons(records []runlog.Record, topK int) {
	type passPair struct {
		p1, p2 *runlog.Record
	}
	byQuery := make(map[string]*passPair)
	order := make([]string, 0)
	for i := range records {
		rec := &records[i]
		if rec.Phase != "pass1" && rec.Phase != "pass2" {
			continue
		}
		pair, ok := byQuery[rec.Query]
		if !ok {
			pair = &passPair{}
			byQuery[rec.Query] = pair
			order = append(order, rec.Query)
		}
		if rec.Phase == "pass1" && pair.p1 == nil {
			pair.p1 = rec
		}
		if rec.Phase == "pass2" && pair.p2 == nil {
			pair.p2 = rec
		}
	}

	deltas := make([]float64, 0, len(order))
	pass2 := make([]QueryLatency, 0, len(order))
	for _, q := range order {
		pair := byQuery[q]
		if pair.p2 != nil {
			pass2 = append(pass2, QueryLatency{Query: q, LatencyMS: pair.p2.LatencyMS})
		}
		if pair.p1 == nil || pair.p2 == nil {
			continue
		}
		switch {
		case !pair.p1.UsedMemory && pair.p2.UsedMemory:
			rep.Transitions.MissToHit++
		case !pair.p1.UsedMemory && !pair.p2.UsedMemory:
			rep.Transitions.MissToMiss++
		case pair.p1.UsedMemory && pair.p2.UsedMemory:
			rep.Transitions.HitToHit++
		default:
			rep.Transitions.HitToMiss++
		}
		deltas = append(deltas, pair.p2.LatencyMS-pair.p1.LatencyMS)
	}

	rep.DeltaCount = len(deltas)
	if len(deltas) > 0 {
		sum := 0.0
		for _, d := range deltas {
			sum += d
		}
		rep.DeltaAvg = sum / float64(len(deltas))
		sorted := append([]float64(nil), deltas...)
		sort.Float64s(sorted)
		rep.DeltaP50 = median(sorted)
	}

	sort.SliceStable(pass2, func(i, j int) bool { return pass2[i].LatencyMS > pass2[j].LatencyMS })
	rep.Slowest = topN(pass2, topK)
	reversed := make([]QueryLatency, 0, len(pass2))
	for i := len(pass2) - 1; i >= 0; i-- {
		reversed = append(reversed, pass2[i])
	}
	rep.Fastest = topN(reversed, topK)
}

func topN(items []QueryLatency, n int) []QueryLatency {
	if len(items) > n {
		items = items[:n]
	}
	return append([]QueryLatency(nil), items...)
}

// WriteText renders the report as a plain-text summary. Phase sections and
// pass comparisons are included when withPhases is set.
func (rep Report) WriteText(w io.Writer, withPhases bool) error {
	if rep.Records == 0 {
		_, err := fmt.Fprintln(w, "no records to analyze")
		return err
	}

	fmt.Fprintf(w, "records analyzed: %d\n\n", rep.Records)

	fmt.Fprintln(w, "== per-mode ==")
	modes := make([]string, 0, len(rep.ByMode))
	for m := range rep.ByMode {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	for _, m := range modes {
		s := rep.ByMode[m]
		fmt.Fprintf(w, "%-8s total=%-5d hits=%-5d hit_rate=%5.1f%%  avg_hit=%7.2fms  avg_miss=%7.2fms\n",
			m, s.Total, s.Hits, s.HitRate, s.AvgHitLatency, s.AvgMissLatency)
	}
	s := rep.Overall
	fmt.Fprintf(w, "%-8s total=%-5d hits=%-5d hit_rate=%5.1f%%  avg_hit=%7.2fms  avg_miss=%7.2fms\n",
		"overall", s.Total, s.Hits, s.HitRate, s.AvgHitLatency, s.AvgMissLatency)

	if withPhases {
		fmt.Fprintln(w, "\n== per-phase ==")
		phases := make([]string, 0, len(rep.ByPhase))
		for p := range rep.ByPhase {
			phases = append(phases, p)
		}
		sort.Strings(phases)
		for _, p := range phases {
			ps := rep.ByPhase[p]
			fmt.Fprintf(w, "%-8s count=%-5d hit_rate=%5.1f%%  avg=%7.2fms  p50=%7.2fms  p95=%7.2fms\n",
				p, ps.Count, ps.HitRate, ps.AvgLatency, ps.P50, ps.P95)
		}

		fmt.Fprintln(w, "\n== pass1 -> pass2 transitions ==")
		t := rep.Transitions
		fmt.Fprintf(w, "miss->hit=%d  miss->miss=%d  hit->hit=%d  hit->miss=%d\n",
			t.MissToHit, t.MissToMiss, t.HitToHit, t.HitToMiss)

		fmt.Fprintln(w, "\n== latency delta (pass2 - pass1) ==")
		if rep.DeltaCount == 0 {
			fmt.Fprintln(w, "NA (no paired queries)")
		} else {
			fmt.Fprintf(w, "queries=%d  avg=%+.2fms  p50=%+.2fms\n", rep.DeltaCount, rep.DeltaAvg, rep.DeltaP50)
		}

		fmt.Fprintln(w, "\n== slowest queries (pass2) ==")
		for _, q := range rep.Slowest {
			fmt.Fprintf(w, "%8.2fms  %s\n", q.LatencyMS, q.Query)
		}
		fmt.Fprintln(w, "\n== fastest queries (pass2) ==")
		for _, q := range rep.Fastest {
			fmt.Fprintf(w, "%8.2fms  %s\n", q.LatencyMS, q.Query)
		}
	}
	return nil
}

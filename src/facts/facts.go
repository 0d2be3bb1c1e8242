package facts

import (
	"fmt"
	"math/rand"
	"strings"
)

// GoldPredicate links every gold entity to its topic. Queries are generated
// with the same wording so exact matching stays trivial.
const GoldPredicate = "is associated with"

// Fact is a synthetic subject-predicate-object triple.
type Fact struct {
	Subject   string   `json:"subject"`
	Predicate string   `json:"predicate"`
	Object    string   `json:"object"`
	Timestamp string   `json:"ts"`
	Tags      []string `json:"tags"`
	Source    string   `json:"source"`
}

// Text flattens a fact into the canonical sentence form written into memory.
func (f Fact) Text() string {
	return fmt.Sprintf("%s %s %s | ts=%s | src=%s", f.Subject, f.Predicate, f.Object, f.Timestamp, f.Source)
}

// Mode selects how Query returns its results.
type Mode string

const (
	// ModeFat returns the whole ranked result set in one response.
	ModeFat Mode = "fat"
	// ModePaged returns one bounded page of the ranked result set.
	ModePaged Mode = "paged"
)

// ParseMode validates a mode string from the CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFat:
		return ModeFat, nil
	case ModePaged:
		return ModePaged, nil
	}
	return "", fmt.Errorf("unknown mode %q (want fat or paged)", s)
}

// Options controls synthetic corpus generation.
type Options struct {
	NFacts       int   // total corpus size, gold included
	NGold        int   // gold facts; at least GoldEntities are query-aligned
	GoldEntities int   // gold.entity.1..GoldEntities get exact coverage
	TopicMod     int   // gold.topic.(i % TopicMod)
	Seed         int64 // drives all randomness for reproducible runs
}

func (o Options) withDefaults() Options {
	if o.NFacts <= 0 {
		o.NFacts = 10000
	}
	if o.NGold <= 0 {
		o.NGold = 200
	}
	if o.GoldEntities <= 0 {
		o.GoldEntities = 50
	}
	if o.TopicMod <= 0 {
		o.TopicMod = 10
	}
	return o
}

// Backend serves synthetic facts to the runner. Gold facts exactly match the
// generated queries; the rest of the corpus is noise.
type Backend struct {
	facts []Fact
	gold  []Fact
	rng   *rand.Rand
}

var noiseVerbs = []string{
	"mentions", "is unrelated to", "conflicts with", "precedes", "follows",
	"uses", "depends on", "is similar to", "replaces", "is replaced by",
}

// NewSyntheticBackend builds a corpus that explicitly covers
// gold.entity.1..GoldEntities so queries and gold stay aligned, then pads
// with extra gold and noise facts up to NFacts.
func NewSyntheticBackend(opts Options) *Backend {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewSource(opts.Seed))

	gold := make([]Fact, 0, opts.NGold)
	for i := 1; i <= opts.GoldEntities; i++ {
		gold = append(gold, Fact{
			Subject:   fmt.Sprintf("gold.entity.%d", i),
			Predicate: GoldPredicate,
			Object:    fmt.Sprintf("gold.topic.%d", i%opts.TopicMod),
			Timestamp: "2024-06-01T00:00:00",
			Tags:      []string{"gold"},
			Source:    "synthetic",
		})
	}
	for j := opts.GoldEntities; j < opts.NGold; j++ {
		x := rng.Intn(opts.GoldEntities*5) + 1
		gold = append(gold, Fact{
			Subject:   fmt.Sprintf("gold.entity.%d", x),
			Predicate: GoldPredicate,
			Object:    fmt.Sprintf("gold.topic.%d", x%opts.TopicMod),
			Timestamp: fmt.Sprintf("2024-07-%02dT00:00:00", rng.Intn(28)+1),
			Tags:      []string{"gold", "extra"},
			Source:    "synthetic",
		})
	}

	all := make([]Fact, 0, opts.NFacts)
	all = append(all, gold...)
	for len(all) < opts.NFacts {
		a := rng.Intn(opts.GoldEntities*5) + 1
		b := rng.Intn(opts.TopicMod)
		all = append(all, Fact{
			Subject:   fmt.Sprintf("noise.entity.%d", a),
			Predicate: noiseVerbs[rng.Intn(len(noiseVerbs))],
			Object:    fmt.Sprintf("noise.topic.%d", b),
			Timestamp: fmt.Sprintf("2023-%02d-%02dT00:00:00", rng.Intn(12)+1, rng.Intn(28)+1),
			Tags:      []string{"noise"},
			Source:    "synthetic",
		})
	}
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })

	return &Backend{facts: all, gold: gold, rng: rng}
}

// Size reports the total corpus size.
func (b *Backend) Size() int { return len(b.facts) }

// GoldSize reports how many gold facts were generated.
func (b *Backend) GoldSize() int { return len(b.gold) }

// GoldQueries returns n query strings aligned with the gold corpus:
// "gold.entity.i is associated with gold.topic.(i%topicMod)" for i in 1..n.
func GoldQueries(n, topicMod int) []string {
	if topicMod <= 0 {
		topicMod = 10
	}
	queries := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		queries = append(queries, fmt.Sprintf("gold.entity.%d %s gold.topic.%d", i, GoldPredicate, i%topicMod))
	}
	return queries
}

// Query ranks exact gold matches for q ahead of shuffled noise. ModeFat
// returns the whole ranked list (callers apply their own cap); ModePaged
// returns the requested slice, empty when the page runs past the corpus.
func (b *Backend) Query(q string, mode Mode, page, pageSize int) []Fact {
	subject, object := parseQuery(q)

	goldHits := make([]Fact, 0, 4)
	for _, g := range b.gold {
		if g.Subject == subject && g.Predicate == GoldPredicate && g.Object == object {
			goldHits = append(goldHits, g)
		}
	}

	rest := make([]Fact, 0, len(b.facts))
	for _, f := range b.facts {
		if f.Subject == subject && f.Predicate == GoldPredicate && f.Object == object {
			continue
		}
		rest = append(rest, f)
	}
	b.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })

	ranked := append(goldHits, rest...)
	if mode == ModeFat {
		return ranked
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	start := (page - 1) * pageSize
	if start >= len(ranked) {
		return nil
	}
	end := start + pageSize
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[start:end]
}

// parseQuery extracts the subject and object from the fixed query template
// "gold.entity.X is associated with gold.topic.Y".
func parseQuery(q string) (subject, object string) {
	parts := strings.Fields(strings.TrimSpace(q))
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], parts[len(parts)-1]
}

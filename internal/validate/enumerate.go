package validate

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/CanopyHQ/causalgraph/internal/index"
	"github.com/CanopyHQ/causalgraph/internal/profile"
	"github.com/CanopyHQ/causalgraph/internal/relation"
)

// Options controls pair enumeration.
type Options struct {
	Pairing profile.Pairing
	Key     profile.KeyMode
	// KeyPrefixLen is the number of characters of text used as sentence
	// identity when Key is KeyTextPrefix.
	KeyPrefixLen int
	// Workers bounds parallel validation. <= 0 uses GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// OptionsFor returns the enumeration options of profile p.
func OptionsFor(p profile.Profile) Options {
	return Options{Pairing: p.Pairing, Key: p.Key, KeyPrefixLen: p.KeyPrefixLen}
}

// Stats counts what enumeration did.
type Stats struct {
	Candidates    int
	CauseLeaning  int
	EffectLeaning int
	// Considered counts cross-document pairs sharing an entity, duplicates
	// included.
	Considered int
	Validated  int
	Accepted   int
	Rejected   map[Reason]int
}

// TotalRejected sums the rejection counts.
func (s Stats) TotalRejected() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

type pairKey struct {
	causeDoc  string
	causeRef  any
	effectDoc string
	effectRef any
}

type job struct {
	cause, effect *index.Candidate
}

// Enumerate pairs the candidates of pool, validates each distinct directed
// pair once and returns the accepted relationships sorted by score.
//
// Pairs are visited in ascending candidate order on both sides, the order a
// nested scan over the pool would use, and results are collected in that
// order before sorting, so the output does not depend on Workers.
func Enumerate(ctx context.Context, pool *index.Pool, v *Validator, opts Options) ([]relation.Scored, Stats, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stats := Stats{
		Candidates:    pool.Len(),
		CauseLeaning:  len(pool.CauseLeaning()),
		EffectLeaning: len(pool.EffectLeaning()),
		Rejected:      make(map[Reason]int),
	}

	jobs := plan(pool, opts, &stats)
	stats.Validated = len(jobs)
	logger.Debug("pairs planned", "considered", stats.Considered, "distinct", len(jobs))

	verdicts := make([]Verdict, len(jobs))
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdicts[i] = v.ValidatePair(j.cause, j.effect)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	var out []relation.Scored
	for i, vd := range verdicts {
		if !vd.Accepted {
			stats.Rejected[vd.Explanation.Reason]++
			continue
		}
		c, e := jobs[i].cause, jobs[i].effect
		out = append(out, relation.Scored{
			CauseDocumentID:  c.DocumentID,
			CauseText:        c.Text,
			CausePosition:    c.Position,
			EffectDocumentID: e.DocumentID,
			EffectText:       e.Text,
			EffectPosition:   e.Position,
			RuleScore:        relation.Round(vd.Score, 3),
			SharedEntities:   vd.Explanation.SharedEntities,
		})
	}
	stats.Accepted = len(out)
	relation.Sort(out)

	logger.Debug("pairs validated", "validated", stats.Validated, "accepted", stats.Accepted, "rejected", stats.TotalRejected())
	return out, stats, nil
}

// plan lists the distinct pairs to validate, in nested-scan order.
func plan(pool *index.Pool, opts Options, stats *Stats) []job {
	causes := pool.CauseLeaning()
	var isEffect []bool
	if opts.Pairing == profile.PairAll {
		causes = pool.All()
	} else {
		isEffect = make([]bool, pool.Len())
		for _, id := range pool.EffectLeaning() {
			isEffect[id] = true
		}
	}

	seen := make(map[pairKey]struct{})
	var jobs []job
	for _, cid := range causes {
		cause := pool.Candidate(cid)
		for _, eid := range pool.Neighbors(cause) {
			if isEffect != nil && !isEffect[eid] {
				continue
			}
			effect := pool.Candidate(eid)
			stats.Considered++

			k := keyOf(cause, effect, opts)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			jobs = append(jobs, job{cause: cause, effect: effect})
		}
	}
	return jobs
}

func keyOf(cause, effect *index.Candidate, opts Options) pairKey {
	if opts.Key == profile.KeyTextPrefix {
		return pairKey{
			causeDoc:  cause.DocumentID,
			causeRef:  prefix(cause.Text, opts.KeyPrefixLen),
			effectDoc: effect.DocumentID,
			effectRef: prefix(effect.Text, opts.KeyPrefixLen),
		}
	}
	return pairKey{
		causeDoc:  cause.DocumentID,
		causeRef:  cause.Position,
		effectDoc: effect.DocumentID,
		effectRef: effect.Position,
	}
}

// prefix returns the first n characters of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

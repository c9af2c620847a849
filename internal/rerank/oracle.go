package rerank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/CanopyHQ/causalgraph/internal/relation"
)

// Defaults for OracleReranker.
const (
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
)

// Options tunes OracleReranker.
type Options struct {
	// Concurrency bounds in-flight oracle calls.
	Concurrency int
	// Timeout applies to each oracle call.
	Timeout time.Duration
	// RatePerSecond limits call starts; 0 disables limiting.
	RatePerSecond float64
	Logger        *slog.Logger
}

// OracleReranker scores each relationship with an Oracle. A failed or timed
// out call leaves that relationship on its rule score; it never fails the
// run.
type OracleReranker struct {
	oracle  Oracle
	name    string
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOracleReranker wraps o. name identifies the oracle in reports.
func NewOracleReranker(o Oracle, name string, opts Options) *OracleReranker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &OracleReranker{oracle: o, name: name, opts: opts, logger: logger}
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return r
}

func (r *OracleReranker) Name() string { return r.name }

// Rerank calls the oracle for every relationship concurrently, then sorts
// by combined score. Only cancellation of ctx is returned as an error.
func (r *OracleReranker) Rerank(ctx context.Context, rs []relation.Scored) ([]relation.Scored, Stats, error) {
	out := make([]relation.Scored, len(rs))
	var scored, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, rel := range rs {
		g.Go(func() error {
			ml, err := r.score(gctx, rel)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				r.logger.Warn("oracle_failed",
					slog.String("cause_file", rel.CauseDocumentID),
					slog.String("effect_file", rel.EffectDocumentID),
					slog.String("error", err.Error()))
				out[i] = rel.WithFallback()
				return nil // non-fatal
			}
			scored.Add(1)
			out[i] = rel.WithML(ml)
			return nil
		})
	}
	stats := Stats{}
	if err := g.Wait(); err != nil {
		stats.Scored, stats.Failed = int(scored.Load()), int(failed.Load())
		return nil, stats, err
	}
	stats.Scored, stats.Failed = int(scored.Load()), int(failed.Load())
	relation.Sort(out)

	r.logger.Debug("rerank_completed",
		slog.String("oracle", r.name),
		slog.Int("scored", stats.Scored),
		slog.Int("failed", stats.Failed))
	return out, stats, nil
}

func (r *OracleReranker) score(ctx context.Context, rel relation.Scored) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("%w: rate limit: %v", ErrOracle, err)
		}
	}
	cctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	scores, err := r.oracle.Classify(cctx, Prompt(rel.CauseText, rel.EffectText), Labels())
	if err != nil {
		if errors.Is(err, ErrOracle) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrOracle, err)
	}
	return causalProbability(scores)
}

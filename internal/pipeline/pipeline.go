// Package pipeline runs one extraction: load a corpus, weight terms, index
// candidates, validate pairs, rerank and write the result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/CanopyHQ/causalgraph/internal/causal"
	"github.com/CanopyHQ/causalgraph/internal/corpus"
	"github.com/CanopyHQ/causalgraph/internal/entity"
	"github.com/CanopyHQ/causalgraph/internal/index"
	"github.com/CanopyHQ/causalgraph/internal/profile"
	"github.com/CanopyHQ/causalgraph/internal/relation"
	"github.com/CanopyHQ/causalgraph/internal/rerank"
	"github.com/CanopyHQ/causalgraph/internal/store"
	"github.com/CanopyHQ/causalgraph/internal/tfidf"
	"github.com/CanopyHQ/causalgraph/internal/validate"
)

// Engine holds the read-only state built from one corpus snapshot.
type Engine struct {
	Profile   profile.Profile
	Table     *tfidf.Table
	Pool      *index.Pool
	Validator *validate.Validator
	documents int
}

// NewEngine weights the terms of docs and indexes their candidate sentences
// under p. cacheSize bounds the sentence vector cache; <= 0 uses the
// default.
func NewEngine(p profile.Profile, docs []corpus.Document, cacheSize int) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	d, err := causal.NewDetector(p.Vocabulary.Patterns)
	if err != nil {
		return nil, fmt.Errorf("compile causal patterns: %w", err)
	}
	x := entity.NewExtractor(entity.Options{
		Gazetteer: p.Vocabulary.Gazetteer,
		StopWords: p.Vocabulary.StopWords,
		Dates:     p.Vocabulary.Dates,
		Units:     p.Vocabulary.Units,
		FilterAll: p.Vocabulary.FilterAllEntities,
	})
	table := tfidf.Build(corpus.Sentences(docs))
	vz, err := tfidf.NewVectorizer(table, cacheSize)
	if err != nil {
		return nil, err
	}
	return &Engine{
		Profile:   p,
		Table:     table,
		Pool:      index.NewIndexer(d, x, p.Vocabulary, p.Scores.MinLength).Build(docs),
		Validator: validate.New(p, d, x, vz),
		documents: len(docs),
	}, nil
}

// Documents is the number of documents the engine was built from.
func (e *Engine) Documents() int { return e.documents }

// Config describes one run.
type Config struct {
	Corpus  string
	Output  string
	Profile profile.Profile
	// Workers bounds parallel validation; <= 0 uses GOMAXPROCS.
	Workers   int
	CacheSize int
	// Reranker defaults to rerank.Null.
	Reranker rerank.Reranker
	Logger   *slog.Logger
}

// Report is the observable summary of a run.
type Report struct {
	RunID         string
	Corpus        string
	Output        string
	Profile       string
	Reranker      string
	MinConfidence float64
	Documents     int
	Sentences     int
	Terms         int
	Candidates    int
	CauseLeaning  int
	EffectLeaning int
	Considered    int
	Validated     int
	Accepted      int
	Rejected      map[validate.Reason]int
	OracleScored  int
	OracleFailed  int
	Relationships int
	Duration      time.Duration
}

// Rows returns the report as metric/value pairs for display.
func (r Report) Rows() [][]string {
	rows := [][]string{
		{"run id", r.RunID},
		{"profile", r.Profile},
		{"reranker", r.Reranker},
		{"min confidence", fmt.Sprintf("%.2f", r.MinConfidence)},
		{"documents", fmt.Sprint(r.Documents)},
		{"sentences", fmt.Sprint(r.Sentences)},
		{"terms", fmt.Sprint(r.Terms)},
		{"candidates", fmt.Sprint(r.Candidates)},
		{"cause-leaning", fmt.Sprint(r.CauseLeaning)},
		{"effect-leaning", fmt.Sprint(r.EffectLeaning)},
		{"pairs considered", fmt.Sprint(r.Considered)},
		{"pairs validated", fmt.Sprint(r.Validated)},
		{"accepted", fmt.Sprint(r.Accepted)},
	}
	for _, reason := range validate.Reasons() {
		if n := r.Rejected[reason]; n > 0 {
			rows = append(rows, []string{"rejected: " + string(reason), fmt.Sprint(n)})
		}
	}
	if r.Reranker != "" && r.Reranker != (rerank.Null{}).Name() {
		rows = append(rows,
			[]string{"oracle scored", fmt.Sprint(r.OracleScored)},
			[]string{"oracle failed", fmt.Sprint(r.OracleFailed)})
	}
	rows = append(rows,
		[]string{"relationships", fmt.Sprint(r.Relationships)},
		[]string{"duration", r.Duration.Round(time.Millisecond).String()})
	return rows
}

// Find scores every cross-document relationship in docs. It does no I/O.
func Find(ctx context.Context, docs []corpus.Document, cfg Config) ([]relation.Scored, Report, error) {
	start := time.Now()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rr := cfg.Reranker
	if rr == nil {
		rr = rerank.Null{}
	}

	report := Report{
		RunID:         uuid.NewString(),
		Corpus:        cfg.Corpus,
		Output:        cfg.Output,
		Profile:       cfg.Profile.Name,
		Reranker:      rr.Name(),
		MinConfidence: cfg.Profile.MinConfidence,
	}

	eng, err := NewEngine(cfg.Profile, docs, cfg.CacheSize)
	if err != nil {
		return nil, report, err
	}
	report.Documents = eng.Documents()
	report.Sentences = eng.Table.Sentences()
	report.Terms = eng.Table.Len()
	logger.Info("corpus indexed",
		slog.String("run_id", report.RunID),
		slog.Int("documents", report.Documents),
		slog.Int("sentences", report.Sentences),
		slog.Int("candidates", eng.Pool.Len()))

	opts := validate.OptionsFor(cfg.Profile)
	opts.Workers = cfg.Workers
	opts.Logger = logger
	accepted, stats, err := validate.Enumerate(ctx, eng.Pool, eng.Validator, opts)
	if err != nil {
		return nil, report, fmt.Errorf("validate pairs: %w", err)
	}
	report.Candidates = stats.Candidates
	report.CauseLeaning = stats.CauseLeaning
	report.EffectLeaning = stats.EffectLeaning
	report.Considered = stats.Considered
	report.Validated = stats.Validated
	report.Accepted = stats.Accepted
	report.Rejected = stats.Rejected

	out, rstats, err := rr.Rerank(ctx, accepted)
	if err != nil {
		return nil, report, fmt.Errorf("rerank: %w", err)
	}
	report.OracleScored = rstats.Scored
	report.OracleFailed = rstats.Failed
	report.Relationships = len(out)
	report.Duration = time.Since(start)

	logger.Info("relationships scored",
		slog.String("run_id", report.RunID),
		slog.Int("validated", report.Validated),
		slog.Int("accepted", report.Accepted),
		slog.Int("oracle_failed", report.OracleFailed))
	return out, report, nil
}

// Run loads cfg.Corpus, finds relationships and writes them to cfg.Output.
// Nothing is written if loading or scoring fails.
func Run(ctx context.Context, cfg Config) ([]relation.Scored, Report, error) {
	start := time.Now()
	docs, err := corpus.Load(cfg.Corpus)
	if err != nil {
		return nil, Report{Corpus: cfg.Corpus, Output: cfg.Output}, err
	}
	rs, report, err := Find(ctx, docs, cfg)
	if err != nil {
		return nil, report, err
	}
	if err := Write(ctx, cfg.Output, report, rs); err != nil {
		return nil, report, err
	}
	report.Duration = time.Since(start)
	return rs, report, nil
}

// Write stores rs at path: as a SQLite graph for .db/.sqlite paths, as a
// JSON array otherwise. Failures are reported as *corpus.OutputError.
func Write(ctx context.Context, path string, report Report, rs []relation.Scored) error {
	if !store.IsDatabasePath(path) {
		return corpus.WriteJSON(path, rs)
	}
	s, err := store.Open(path)
	if err != nil {
		return &corpus.OutputError{Path: path, Err: err}
	}
	defer s.Close()
	run := store.Run{
		ID:            report.RunID,
		Profile:       report.Profile,
		Reranker:      report.Reranker,
		MinConfidence: report.MinConfidence,
		Documents:     report.Documents,
	}
	if err := s.SaveRun(ctx, run, rs); err != nil {
		return &corpus.OutputError{Path: path, Err: err}
	}
	return nil
}

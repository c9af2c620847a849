package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/CanopyHQ/causalgraph/internal/config"
	"github.com/CanopyHQ/causalgraph/internal/output"
	"github.com/CanopyHQ/causalgraph/internal/pipeline"
	"github.com/CanopyHQ/causalgraph/internal/relation"
	"github.com/CanopyHQ/causalgraph/internal/rerank"
)

var extractCmd = &cobra.Command{
	Use:   "extract <corpus> [min-confidence]",
	Short: "Find cause→effect relationships in a corpus",
	Long: `Find cause→effect relationships between sentences of different documents.

The corpus is a JSON array of {"file_id", "sentences"} records, or a .jsonl
file with one record per line. Relationships scoring at least min-confidence
(default 0.85) are written to --output: a JSON array, or a SQLite graph when
the path ends in .db or .sqlite.

Examples:
  causalgraph extract corpus.json
  causalgraph extract corpus.json 0.9 -o relationships.json
  causalgraph extract corpus.jsonl --profile hybrid --rerank http --oracle-url http://localhost:8080/classify
  causalgraph extract corpus.json -o graph.db --show 10`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
			return usageError(cmd, err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd, args)
	},
}

var extractKeys = map[string]string{
	"output":     "output",
	"profile":    "profile",
	"workers":    "workers",
	"rerank":     "rerank.mode",
	"oracle-url": "rerank.http.url",
}

func init() {
	extractCmd.Flags().StringP("output", "o", "relationships.json", "output path (.json, or .db/.sqlite for a graph)")
	extractCmd.Flags().StringP("profile", "p", "rulebased", "scoring profile: rulebased or hybrid")
	extractCmd.Flags().IntP("workers", "w", 0, "parallel validators (0 = all CPUs)")
	extractCmd.Flags().String("rerank", "none", "reranker: none, http, onnx or static")
	extractCmd.Flags().String("oracle-url", "", "zero-shot classification endpoint for --rerank http")
	extractCmd.Flags().Int("show", 0, "print the N strongest relationships")
}

func runExtract(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	if len(args) == 2 {
		t, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return usageError(cmd, fmt.Errorf("invalid min-confidence %q: %w", args[1], err))
		}
		overrides["min_confidence"] = t
	}

	cfg, err := loadConfig(cmd, extractKeys, overrides)
	if err != nil {
		return err
	}
	p, err := cfg.ResolveProfile()
	if err != nil {
		return &output.CLIError{Summary: "invalid profile", Detail: err.Error(), ExitCode: output.ExitConfigError, Err: err}
	}
	rr, closeOracle, err := buildReranker(cfg)
	if err != nil {
		return &output.CLIError{
			Summary:    fmt.Sprintf("cannot set up %s reranker", cfg.Rerank.Mode),
			Detail:     err.Error(),
			Suggestion: "run 'causalgraph doctor' to check the oracle settings",
			ExitCode:   output.ExitConfigError,
			Err:        err,
		}
	}
	defer func() {
		if err := closeOracle(); err != nil {
			printer.Error("closing %s oracle: %v", cfg.Rerank.Mode, err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	printer.Info("🔍 Scoring %s with the %s profile (min confidence %.2f)", args[0], p.Name, p.MinConfidence)
	rs, report, err := pipeline.Run(ctx, pipeline.Config{
		Corpus:    args[0],
		Output:    cfg.Output,
		Profile:   p,
		Workers:   cfg.Workers,
		CacheSize: cfg.Cache.Vectors,
		Reranker:  rr,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	printer.Header("Run report")
	tbl := printer.Table([]string{"metric", "value"})
	for _, row := range report.Rows() {
		tbl.AddRow(row...)
	}
	if err := tbl.Render(); err != nil {
		return err
	}

	if n, _ := cmd.Flags().GetInt("show"); n > 0 && len(rs) > 0 && !printer.IsQuiet() {
		if err := showRelationships(rs, n); err != nil {
			return err
		}
	}

	if report.OracleFailed > 0 {
		printer.Warning("%d oracle call(s) failed; those relationships keep their rule score", report.OracleFailed)
	}
	printer.Success("Wrote %d relationship(s) to %s", len(rs), cfg.Output)
	return nil
}

func showRelationships(rs []relation.Scored, n int) error {
	if n > len(rs) {
		n = len(rs)
	}
	printer.Header(fmt.Sprintf("Top %d relationship(s)", n))
	tbl := printer.Table([]string{"score", "cause", "effect", "shared entities"})
	for _, r := range rs[:n] {
		tbl.AddRow(
			strconv.FormatFloat(r.Final(), 'f', -1, 64),
			r.CauseDocumentID+": "+clip(r.CauseText, 60),
			r.EffectDocumentID+": "+clip(r.EffectText, 60),
			fmt.Sprint(r.SharedEntities),
		)
	}
	return tbl.Render()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// buildReranker constructs the configured reranker. The returned close
// function releases oracle resources and is always non-nil.
func buildReranker(cfg *config.Config) (rerank.Reranker, func() error, error) {
	noop := func() error { return nil }
	var (
		o       rerank.Oracle
		closeFn = noop
	)
	switch cfg.Rerank.Mode {
	case "none":
		return rerank.Null{}, noop, nil
	case "static":
		o = rerank.StaticOracle(cfg.Rerank.Static)
	case "http":
		h, err := rerank.NewHTTPOracle(cfg.Rerank.HTTP.URL, cfg.Rerank.HTTP.APIKey, cfg.Rerank.Timeout)
		if err != nil {
			return nil, noop, err
		}
		o = h
	case "onnx":
		x, err := rerank.NewONNXOracle(cfg.Rerank.ONNX)
		if err != nil {
			return nil, noop, err
		}
		o, closeFn = x, x.Close
	default:
		return nil, noop, fmt.Errorf("unknown rerank mode %q", cfg.Rerank.Mode)
	}
	rr := rerank.NewOracleReranker(o, cfg.Rerank.Mode, rerank.Options{
		Concurrency:   cfg.Rerank.Concurrency,
		Timeout:       cfg.Rerank.Timeout,
		RatePerSecond: cfg.Rerank.RatePerSecond,
		Logger:        logger,
	})
	return rr, closeFn, nil
}

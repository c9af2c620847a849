package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/CanopyHQ/causalgraph/internal/causal"
	"github.com/CanopyHQ/causalgraph/internal/config"
	"github.com/CanopyHQ/causalgraph/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common setup issues",
	Long: `Diagnose configuration, output and oracle setup, and optionally fix them.

Examples:
  causalgraph doctor        # check for issues
  causalgraph doctor --fix  # check and auto-fix issues`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		return runDoctor(cmd, fix)
	},
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "Attempt to automatically fix issues")
}

// redact returns the first n and last n chars of s, or "***" if too short.
func redact(s string, n int) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= n*2 {
		return "***"
	}
	return s[:n] + "..." + s[len(s)-n:]
}

type doctorTally struct {
	issues, warnings, fixed int
}

// runDoctor diagnoses common setup issues
func runDoctor(cmd *cobra.Command, fix bool) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "🔍 Causalgraph Doctor - Diagnosing Setup")
	if fix {
		fmt.Fprintln(w, "🛠️  Auto-fix enabled")
	}
	fmt.Fprintln(w)

	var t doctorTally

	// 1. Configuration
	fmt.Fprint(w, "✓ Checking configuration... ")
	cfg, err := loadConfig(cmd, nil, nil)
	if err != nil {
		fmt.Fprintln(w, "❌ FAILED")
		fmt.Fprintf(w, "  Issue: %v\n", asCLIError(err).Detail)
		t.issues++
		return summarize(w, t)
	}
	fmt.Fprintf(w, "✅ OK (profile %s, min confidence %.2f)\n", cfg.Profile, cfg.MinConfidence)

	// 2. Profile patterns
	fmt.Fprint(w, "✓ Checking causal patterns... ")
	p, err := cfg.ResolveProfile()
	if err == nil {
		var d *causal.Detector
		if d, err = causal.NewDetector(p.Vocabulary.Patterns); err == nil {
			fmt.Fprintf(w, "✅ OK (%d patterns, %d gazetteer terms)\n", d.Len(), len(p.Vocabulary.Gazetteer))
		}
	}
	if err != nil {
		fmt.Fprintln(w, "❌ FAILED")
		fmt.Fprintf(w, "  Issue: %v\n", err)
		t.issues++
	}

	// 3. Output location
	checkOutputDir(w, cfg.Output, fix, &t)

	// 4. SQLite driver
	fmt.Fprint(w, "✓ Checking SQLite driver... ")
	if err := checkSQLite(cmd.Context()); err != nil {
		fmt.Fprintln(w, "❌ FAILED")
		fmt.Fprintf(w, "  Issue: %v\n", err)
		fmt.Fprintln(w, "  Fix: build with CGO_ENABLED=1 to write .db output")
		t.issues++
	} else {
		fmt.Fprintln(w, "✅ OK")
	}

	// 5. Reranker
	checkReranker(w, cfg, &t)

	// 6. Environment
	fmt.Fprintf(w, "✓ Checking environment... ✅ OK (%s/%s, %d CPUs)\n", runtime.GOOS, runtime.GOARCH, runtime.GOMAXPROCS(0))

	return summarize(w, t)
}

func checkOutputDir(w io.Writer, out string, fix bool, t *doctorTally) {
	fmt.Fprint(w, "✓ Checking output directory... ")
	dir := filepath.Dir(out)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err) && fix:
		fmt.Fprint(w, "🛠️  Creating... ")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(w, "❌ FAILED: %v\n", err)
			t.issues++
			return
		}
		fmt.Fprintln(w, "✅ FIXED")
		t.fixed++
	case os.IsNotExist(err):
		fmt.Fprintln(w, "❌ FAILED")
		fmt.Fprintf(w, "  Issue: output directory does not exist: %s\n", dir)
		fmt.Fprintln(w, "  Fix: Run 'causalgraph doctor --fix' or create it")
		t.issues++
	case err != nil:
		fmt.Fprintf(w, "❌ FAILED: %v\n", err)
		t.issues++
	case !info.IsDir():
		fmt.Fprintln(w, "❌ FAILED")
		fmt.Fprintf(w, "  Issue: %s is not a directory\n", dir)
		t.issues++
	default:
		probe, err := os.CreateTemp(dir, ".causalgraph-doctor-*")
		if err != nil {
			fmt.Fprintln(w, "❌ FAILED")
			fmt.Fprintf(w, "  Issue: cannot write to %s: %v\n", dir, err)
			t.issues++
			return
		}
		probe.Close()
		os.Remove(probe.Name())
		fmt.Fprintf(w, "✅ OK (%s)\n", out)
	}
}

func checkSQLite(ctx context.Context) error {
	dir, err := os.MkdirTemp("", "causalgraph-doctor-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	s, err := store.Open(filepath.Join(dir, "probe.db"))
	if err != nil {
		return err
	}
	defer s.Close()
	_, _, _, err = s.Stats(ctx)
	return err
}

func checkReranker(w io.Writer, cfg *config.Config, t *doctorTally) {
	fmt.Fprint(w, "✓ Checking reranker... ")
	switch cfg.Rerank.Mode {
	case "none":
		fmt.Fprintln(w, "⚠️  SKIPPED (rerank.mode is none)")
	case "static":
		fmt.Fprintf(w, "✅ OK (static probability %.2f)\n", cfg.Rerank.Static)
	case "http":
		fmt.Fprintf(w, "✅ OK (%s, api key %s)\n", cfg.Rerank.HTTP.URL, redact(cfg.Rerank.HTTP.APIKey, 3))
		if cfg.Rerank.HTTP.APIKey == "" {
			fmt.Fprintln(w, "  ⚠️  No API key set; the endpoint must accept anonymous requests")
			t.warnings++
		}
	case "onnx":
		if err := cfg.Rerank.ONNX.Check(); err != nil {
			fmt.Fprintln(w, "❌ FAILED")
			fmt.Fprintf(w, "  Issue: %v\n", err)
			fmt.Fprintln(w, "  Fix: set rerank.onnx.library, rerank.onnx.model and rerank.onnx.tokenizer")
			t.issues++
			return
		}
		fmt.Fprintf(w, "✅ OK (%s)\n", cfg.Rerank.ONNX.Model)
	}
}

func summarize(w io.Writer, t doctorTally) error {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if t.issues == 0 && t.warnings == 0 {
		fmt.Fprintln(w, "✅ All checks passed! Causalgraph is ready to use.")
	} else {
		if t.fixed > 0 {
			fmt.Fprintf(w, "🛠️  Auto-fixed %d issue(s)\n", t.fixed)
		}
		if t.issues > 0 {
			fmt.Fprintf(w, "❌ Found %d critical issue(s)\n", t.issues)
		}
		if t.warnings > 0 {
			fmt.Fprintf(w, "⚠️  Found %d warning(s)\n", t.warnings)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Run the suggested fixes above to resolve issues.")
	}
	fmt.Fprintln(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if t.issues > 0 {
		return fmt.Errorf("found %d critical issue(s)", t.issues)
	}
	return nil
}

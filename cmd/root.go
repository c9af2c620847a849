package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/CanopyHQ/causalgraph/internal/config"
	"github.com/CanopyHQ/causalgraph/internal/corpus"
	"github.com/CanopyHQ/causalgraph/internal/output"
)

// Build-time variables
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// SetVersion sets the version info from main
func SetVersion(v, c, d string) {
	Version = v
	Commit = c
	Date = d
}

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	colorFlag string
	logger    *slog.Logger
	printer   *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "causalgraph",
	Short: "Causalgraph - cause/effect relationships in historical documents",
	Long: `Causalgraph infers directed cause→effect relationships between sentences
of a document corpus and writes them as a scored list (JSON) or a graph
(SQLite) for visualization.

Examples:
  causalgraph extract corpus.json
  causalgraph extract corpus.json 0.9 -o graph.db
  causalgraph explain corpus.json --cause "..." --effect "..."`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initOutput()
	},
}

// Execute runs the causalgraph command. Errors are printed before returning.
func Execute() error {
	printer = nil
	err := rootCmd.Execute()
	if err != nil {
		if printer == nil {
			printer = output.NewPrinter(false)
		}
		printer.FormatError(asCLIError(err))
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .causalgraph.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "auto", "color output: auto, always, never")

	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError(c, err)
	})

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

// initOutput sets up the logger and printer from global flags. Config file
// values refine them once loaded.
func initOutput() error {
	mode, err := output.ParseColorMode(colorFlag)
	if err != nil {
		return &output.CLIError{Summary: "invalid --color value", Detail: err.Error(), ExitCode: output.ExitUsageError, Err: err}
	}
	printer = output.NewPrinterWithOptions(output.PrinterOptions{
		ColorMode:    mode,
		ConfigColors: true,
		Quiet:        quiet,
		Out:          os.Stdout,
		Err:          os.Stderr,
	})
	setLogLevel("info")
	return nil
}

func setLogLevel(level string) {
	lvl := slog.LevelInfo
	switch {
	case verbose || level == "debug":
		lvl = slog.LevelDebug
	case level == "warn":
		lvl = slog.LevelWarn
	case level == "error":
		lvl = slog.LevelError
	case quiet:
		lvl = slog.LevelWarn
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig reads configuration with the command's changed flags bound on
// top. keys maps flag names to config keys; overrides win over everything.
func loadConfig(cmd *cobra.Command, keys map[string]string, overrides map[string]any) (*config.Config, error) {
	v := viper.New()
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if key, ok := keys[f.Name]; ok && bindErr == nil {
			bindErr = v.BindPFlag(key, f)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}
	for k, val := range overrides {
		v.Set(k, val)
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, &output.CLIError{
			Summary:    "invalid configuration",
			Detail:     err.Error(),
			Suggestion: "check .causalgraph.yaml and CAUSALGRAPH_* environment variables",
			ExitCode:   output.ExitConfigError,
			Err:        err,
		}
	}

	setLogLevel(cfg.Logging.Level)
	mode, _ := output.ParseColorMode(colorFlag)
	printer = output.NewPrinterWithOptions(output.PrinterOptions{
		ColorMode:    mode,
		ConfigColors: cfg.Display.Colors,
		Quiet:        quiet,
		Out:          os.Stdout,
		Err:          os.Stderr,
	})
	logger.Debug("configuration loaded",
		"profile", cfg.Profile,
		"min_confidence", cfg.MinConfidence,
		"rerank", cfg.Rerank.Mode,
		"output", cfg.Output)
	return cfg, nil
}

func usageError(c *cobra.Command, err error) error {
	return &output.CLIError{
		Summary:    err.Error(),
		Suggestion: fmt.Sprintf("run '%s --help' for usage", c.CommandPath()),
		ExitCode:   output.ExitUsageError,
		Err:        err,
	}
}

// asCLIError maps err to a structured error with an exit code.
func asCLIError(err error) *output.CLIError {
	var cliErr *output.CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}
	var inErr *corpus.InputError
	if errors.As(err, &inErr) {
		return &output.CLIError{
			Summary:    fmt.Sprintf("cannot read corpus %s", inErr.Path),
			Detail:     inErr.Err.Error(),
			Suggestion: `expected a JSON array of {"file_id", "sentences"} records or a .jsonl file`,
			ExitCode:   output.ExitInputError,
			Err:        err,
		}
	}
	var outErr *corpus.OutputError
	if errors.As(err, &outErr) {
		return &output.CLIError{
			Summary:  fmt.Sprintf("cannot write %s", outErr.Path),
			Detail:   outErr.Err.Error(),
			ExitCode: output.ExitOutputError,
			Err:      err,
		}
	}
	return &output.CLIError{Summary: err.Error(), ExitCode: output.ExitGeneral, Err: err}
}

// ExitCode returns the process exit code for an error returned by Execute.
func ExitCode(err error) int {
	if err == nil {
		return output.ExitSuccess
	}
	return asCLIError(err).ExitCode
}

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CanopyHQ/causalgraph/internal/corpus"
	"github.com/CanopyHQ/causalgraph/internal/output"
	"github.com/CanopyHQ/causalgraph/internal/pipeline"
	"github.com/CanopyHQ/causalgraph/internal/validate"
)

var explainCmd = &cobra.Command{
	Use:   "explain <corpus>",
	Short: "Validate one cause/effect pair and explain the verdict",
	Long: `Validate one cause/effect sentence pair against a corpus and print how
the verdict was reached. The corpus supplies the term weights used for
similarity, so explain a pair against the corpus it came from.

Examples:
  causalgraph explain corpus.json \
    --cause "The bombardment at Ypres caused heavy casualties among the battalion." --cause-doc diary_a \
    --effect "Because of the shelling at Ypres, the battalion suffered many wounded." --effect-doc diary_b
  causalgraph explain corpus.json --cause ... --effect ... --json`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(1)(cmd, args); err != nil {
			return usageError(cmd, err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExplain(cmd, args[0])
	},
}

var explainKeys = map[string]string{
	"profile":        "profile",
	"min-confidence": "min_confidence",
}

func init() {
	explainCmd.Flags().String("cause", "", "cause sentence (required)")
	explainCmd.Flags().String("effect", "", "effect sentence (required)")
	explainCmd.Flags().String("cause-doc", "cause", "document id of the cause sentence")
	explainCmd.Flags().String("effect-doc", "effect", "document id of the effect sentence")
	explainCmd.Flags().StringP("profile", "p", "rulebased", "scoring profile: rulebased or hybrid")
	explainCmd.Flags().Float64("min-confidence", 0.85, "acceptance threshold")
	explainCmd.Flags().Bool("json", false, "output as JSON")
}

// explanationView is the JSON shape of an explained verdict.
type explanationView struct {
	Accepted       bool     `json:"accepted"`
	Score          float64  `json:"score"`
	Threshold      float64  `json:"threshold"`
	Reason         string   `json:"reason,omitempty"`
	Detail         string   `json:"detail,omitempty"`
	Similarity     float64  `json:"similarity"`
	CausePhrase    string   `json:"cause_phrase,omitempty"`
	EffectPhrase   string   `json:"effect_phrase,omitempty"`
	SharedEntities []string `json:"shared_entities"`
	Contributions  []string `json:"contributions"`
}

func runExplain(cmd *cobra.Command, path string) error {
	causeText, _ := cmd.Flags().GetString("cause")
	effectText, _ := cmd.Flags().GetString("effect")
	if strings.TrimSpace(causeText) == "" || strings.TrimSpace(effectText) == "" {
		return usageError(cmd, fmt.Errorf("--cause and --effect are required"))
	}
	causeDoc, _ := cmd.Flags().GetString("cause-doc")
	effectDoc, _ := cmd.Flags().GetString("effect-doc")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd, explainKeys, nil)
	if err != nil {
		return err
	}
	p, err := cfg.ResolveProfile()
	if err != nil {
		return &output.CLIError{Summary: "invalid profile", Detail: err.Error(), ExitCode: output.ExitConfigError, Err: err}
	}

	docs, err := corpus.Load(path)
	if err != nil {
		return err
	}
	eng, err := pipeline.NewEngine(p, docs, cfg.Cache.Vectors)
	if err != nil {
		return err
	}
	v := eng.Validator.Validate(causeText, effectText, causeDoc, effectDoc)

	view := explanationView{
		Accepted:       v.Accepted,
		Score:          v.Score,
		Threshold:      eng.Validator.MinConfidence(),
		Reason:         string(v.Explanation.Reason),
		Detail:         v.Explanation.Detail,
		Similarity:     v.Explanation.Similarity,
		CausePhrase:    v.Explanation.CauseCausal.Phrase,
		EffectPhrase:   v.Explanation.EffectCausal.Phrase,
		SharedEntities: v.Explanation.SharedEntities,
		Contributions:  v.Explanation.Contributions,
	}
	if view.SharedEntities == nil {
		view.SharedEntities = []string{}
	}
	if view.Contributions == nil {
		view.Contributions = []string{}
	}

	if asJSON {
		enc := json.NewEncoder(printer.Out())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printExplanation(view, v.Explanation)
	return nil
}

func printExplanation(view explanationView, ex validate.Explanation) {
	printer.Print("%s  %s (threshold %.2f)", printer.Verdict(view.Accepted), printer.Bold(fmt.Sprintf("score %.3f", view.Score)), view.Threshold)
	if view.Reason != "" {
		printer.Print("%s %s: %s", printer.Dim("reason"), view.Reason, view.Detail)
	}

	tbl := printer.Table([]string{"feature", "value"})
	tbl.AddRow("cause phrase", phraseOrDash(ex.CauseCausal.Phrase, ex.CauseCausal.Direction.String()))
	tbl.AddRow("effect phrase", phraseOrDash(ex.EffectCausal.Phrase, ex.EffectCausal.Direction.String()))
	tbl.AddRow("similarity", fmt.Sprintf("%.3f", view.Similarity))
	tbl.AddRow("shared entities", strings.Join(view.SharedEntities, ", "))
	_ = tbl.Render()

	if len(view.Contributions) > 0 {
		printer.Header("Score")
		for _, c := range view.Contributions {
			printer.Print("  %s", c)
		}
	}
}

func phraseOrDash(phrase, direction string) string {
	if phrase == "" {
		return "-"
	}
	return fmt.Sprintf("%q (%s)", phrase, direction)
}

package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/cucumber/godog"

	"github.com/CanopyHQ/causalgraph/internal/corpus"
	"github.com/CanopyHQ/causalgraph/internal/pipeline"
	"github.com/CanopyHQ/causalgraph/internal/profile"
	"github.com/CanopyHQ/causalgraph/internal/relation"
	"github.com/CanopyHQ/causalgraph/internal/rerank"
	"github.com/CanopyHQ/causalgraph/internal/validate"
)

var background = []string{
	"Rain fell steadily across farmland for most of a quiet week.",
	"Supply wagons moved slowly along muddy roads toward a depot.",
	"Letters from home arrived irregularly and were read aloud.",
}

var archive = []corpus.Document{
	{ID: "diary_a", Sentences: []string{
		"The bombardment at Ypres caused heavy casualties among the battalion.",
		"Rain fell steadily across farmland for most of a quiet week.",
		"The barrage over Verdun triggered severe losses within the regiment.",
	}},
	{ID: "diary_b", Sentences: []string{
		"Because of the shelling at Ypres, the battalion suffered many wounded.",
		"Supply wagons moved slowly along muddy roads toward a depot.",
		"Owing to the barrage near Verdun, the regiment counted many killed.",
	}},
	{ID: "letters_c", Sentences: []string{
		"Letters from home arrived irregularly and were read aloud.",
		"The assault at Arras resulted in the brigade being captured entirely.",
		"Mules carried rations up narrow tracks through thick woods at night.",
	}},
	{ID: "report_d", Sentences: []string{
		"Following the assault at Arras, the brigade retreated in disorder.",
		"The Somme offensive led to terrible losses for the Australian division.",
		"Cooks baked bread in ovens dug into the chalk hillside nearby.",
	}},
	{ID: "memoir_e", Sentences: []string{
		"The Australian division retreated from the Somme after heavy losses there.",
		"Because of the shelling at Ypres, the battalion suffered many wounded.",
		"Nothing much happened along the canal during the long summer days.",
	}},
}

// TestContext holds state between steps
type TestContext struct {
	ctx     context.Context
	profile profile.Profile
	docs    []corpus.Document
	oracle  rerank.Oracle

	verdict validate.Verdict
	results [][]relation.Scored

	// CLI run state
	workDir         string
	lastCLIStdout   string
	lastCLIStderr   string
	lastCLIExitCode int
}

func (tc *TestContext) document(id string) *corpus.Document {
	for i := range tc.docs {
		if tc.docs[i].ID == id {
			return &tc.docs[i]
		}
	}
	tc.docs = append(tc.docs, corpus.Document{ID: id})
	return &tc.docs[len(tc.docs)-1]
}

// Scoring steps

func (tc *TestContext) useProfile(name string) error {
	p, err := profile.Lookup(name)
	if err != nil {
		return err
	}
	tc.profile = p
	return nil
}

func (tc *TestContext) backgroundDocument() error {
	tc.document("background").Sentences = append([]string(nil), background...)
	return nil
}

func (tc *TestContext) archiveCorpus() error {
	tc.docs = append([]corpus.Document(nil), archive...)
	return nil
}

func (tc *TestContext) documentHasSentence(id, sentence string) error {
	d := tc.document(id)
	d.Sentences = append(d.Sentences, sentence)
	return nil
}

func (tc *TestContext) sentence(id string, pos int) (string, error) {
	d := tc.document(id)
	if pos < 0 || pos >= len(d.Sentences) {
		return "", fmt.Errorf("document %q has no sentence %d", id, pos)
	}
	return d.Sentences[pos], nil
}

func (tc *TestContext) validatePair(causePos int, causeDoc string, effectPos int, effectDoc string) error {
	cause, err := tc.sentence(causeDoc, causePos)
	if err != nil {
		return err
	}
	effect, err := tc.sentence(effectDoc, effectPos)
	if err != nil {
		return err
	}
	eng, err := pipeline.NewEngine(tc.profile, tc.docs, 0)
	if err != nil {
		return err
	}
	tc.verdict = eng.Validator.Validate(cause, effect, causeDoc, effectDoc)
	return nil
}

func (tc *TestContext) pairAccepted() error {
	if !tc.verdict.Accepted {
		return fmt.Errorf("pair rejected: %s (%s)", tc.verdict.Explanation.Reason, tc.verdict.Explanation.Detail)
	}
	return nil
}

func (tc *TestContext) pairRejectedAs(reason string) error {
	if tc.verdict.Accepted {
		return fmt.Errorf("pair accepted with score %.3f", tc.verdict.Score)
	}
	if got := string(tc.verdict.Explanation.Reason); got != reason {
		return fmt.Errorf("expected reason %q, got %q (%s)", reason, got, tc.verdict.Explanation.Detail)
	}
	return nil
}

func (tc *TestContext) scoreAtLeast(min float64) error {
	if tc.verdict.Score < min {
		return fmt.Errorf("score %.3f below %.3f", tc.verdict.Score, min)
	}
	return nil
}

func (tc *TestContext) sharedEntitiesAre(list string) error {
	want := strings.Split(list, ", ")
	if !reflect.DeepEqual(tc.verdict.Explanation.SharedEntities, want) {
		return fmt.Errorf("expected shared entities %v, got %v", want, tc.verdict.Explanation.SharedEntities)
	}
	return nil
}

func (tc *TestContext) explanationIncludes(text string) error {
	for _, c := range tc.verdict.Explanation.Contributions {
		if c == text {
			return nil
		}
	}
	return fmt.Errorf("explanation %v does not include %q", tc.verdict.Explanation.Contributions, text)
}

// Extraction steps

func (tc *TestContext) failingOracle() error {
	tc.oracle = rerank.OracleFunc(func(context.Context, string, []string) (map[string]float64, error) {
		return nil, errors.New("service unavailable")
	})
	return nil
}

func (tc *TestContext) extract(threshold float64, workers int) error {
	p := tc.profile
	p.MinConfidence = threshold
	cfg := pipeline.Config{Profile: p, Workers: workers}
	if tc.oracle != nil {
		cfg.Reranker = rerank.NewOracleReranker(tc.oracle, "test", rerank.Options{})
	}
	rs, _, err := pipeline.Find(tc.ctx, tc.docs, cfg)
	if err != nil {
		return err
	}
	tc.results = append(tc.results, rs)
	return nil
}

func (tc *TestContext) extractWithThreshold(threshold float64) error {
	return tc.extract(threshold, 0)
}

func (tc *TestContext) extractWithWorkers(workers int) error {
	return tc.extract(tc.profile.MinConfidence, workers)
}

func (tc *TestContext) last() ([]relation.Scored, error) {
	if len(tc.results) == 0 {
		return nil, fmt.Errorf("no extraction has run")
	}
	return tc.results[len(tc.results)-1], nil
}

func (tc *TestContext) relationshipsFound(n int) error {
	rs, err := tc.last()
	if err != nil {
		return err
	}
	if len(rs) != n {
		return fmt.Errorf("expected %d relationships, got %d", n, len(rs))
	}
	return nil
}

func (tc *TestContext) crossDocument() error {
	rs, err := tc.last()
	if err != nil {
		return err
	}
	for _, r := range rs {
		if r.CauseDocumentID == r.EffectDocumentID {
			return fmt.Errorf("relationship within %s", r.CauseDocumentID)
		}
	}
	return nil
}

func (tc *TestContext) sortedByScore() error {
	rs, err := tc.last()
	if err != nil {
		return err
	}
	for i := 1; i < len(rs); i++ {
		if rs[i].Final() > rs[i-1].Final() {
			return fmt.Errorf("relationship %d (%.3f) ranks above %d (%.3f)", i, rs[i].Final(), i-1, rs[i-1].Final())
		}
	}
	return nil
}

func (tc *TestContext) sameResults() error {
	if len(tc.results) < 2 {
		return fmt.Errorf("need two extractions, have %d", len(tc.results))
	}
	a, b := tc.results[len(tc.results)-2], tc.results[len(tc.results)-1]
	if !reflect.DeepEqual(a, b) {
		return fmt.Errorf("runs differ: %d vs %d relationships", len(a), len(b))
	}
	return nil
}

func (tc *TestContext) noOracleScore() error {
	rs, err := tc.last()
	if err != nil {
		return err
	}
	for _, r := range rs {
		if r.MLScore != nil {
			return fmt.Errorf("relationship %s→%s has oracle score %v", r.CauseDocumentID, r.EffectDocumentID, *r.MLScore)
		}
		if r.Final() != r.RuleScore {
			return fmt.Errorf("final score %v differs from rule score %v", r.Final(), r.RuleScore)
		}
	}
	return nil
}

// CLI steps

func ensureCLIBinary() (string, error) {
	binaryPath := os.Getenv("CAUSALGRAPH_TEST_BINARY")
	if binaryPath != "" {
		if _, err := os.Stat(binaryPath); err == nil {
			return binaryPath, nil
		}
	}
	for _, p := range []string{"./causalgraph", "../../causalgraph", "/tmp/causalgraph-test"} {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs, nil
		}
	}
	cmd := exec.Command("go", "build", "-o", "/tmp/causalgraph-test", ".")
	cmd.Dir = filepath.Join("..", "..")
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to build test binary: %w", err)
	}
	return "/tmp/causalgraph-test", nil
}

func (tc *TestContext) causalgraphInstalled() error {
	_, err := ensureCLIBinary()
	return err
}

func (tc *TestContext) emptyWorkDir() error {
	dir, err := os.MkdirTemp("", "causalgraph-test-*")
	if err != nil {
		return err
	}
	tc.workDir = dir
	return nil
}

func (tc *TestContext) path(name string) string {
	return filepath.Join(tc.workDir, name)
}

func (tc *TestContext) saveArchive(name string) error {
	var data []byte
	if strings.HasSuffix(name, ".jsonl") {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, d := range archive {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = json.MarshalIndent(archive, "", "  "); err != nil {
			return err
		}
	}
	return os.WriteFile(tc.path(name), data, 0o644)
}

func (tc *TestContext) fileContains(name string, content *godog.DocString) error {
	return os.WriteFile(tc.path(name), []byte(content.Content), 0o644)
}

// runCLICommand runs a causalgraph command in the scenario's working directory
// and stores stdout, stderr and the exit code.
func (tc *TestContext) runCLICommand(cmdLine string) error {
	parts := strings.Fields(cmdLine)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}
	var cmd *exec.Cmd
	if parts[0] == "causalgraph" {
		binaryPath, err := ensureCLIBinary()
		if err != nil {
			return err
		}
		cmd = exec.Command(binaryPath, parts[1:]...)
	} else {
		cmd = exec.Command(parts[0], parts[1:]...)
	}
	cmd.Env = os.Environ()
	cmd.Dir = tc.workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	tc.lastCLIStdout = stdout.String()
	tc.lastCLIStderr = stderr.String()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		tc.lastCLIExitCode = exitErr.ExitCode()
	case err != nil:
		tc.lastCLIExitCode = -1
		return err
	default:
		tc.lastCLIExitCode = 0
	}
	return nil
}

func (tc *TestContext) checkCommandSucceeded() error {
	if tc.lastCLIExitCode != 0 {
		return fmt.Errorf("expected exit code 0, got %d; stderr: %s", tc.lastCLIExitCode, tc.lastCLIStderr)
	}
	return nil
}

func (tc *TestContext) checkCommandFailedWithExitCode(code int) error {
	if tc.lastCLIExitCode != code {
		return fmt.Errorf("expected exit code %d, got %d; stderr: %s", code, tc.lastCLIExitCode, tc.lastCLIStderr)
	}
	return nil
}

func (tc *TestContext) outputShouldContain(text string) error {
	combined := tc.lastCLIStdout + tc.lastCLIStderr
	if !strings.Contains(combined, text) {
		return fmt.Errorf("output did not contain %q; stdout: %s stderr: %s", text, tc.lastCLIStdout, tc.lastCLIStderr)
	}
	return nil
}

func (tc *TestContext) errorShouldContain(text string) error {
	errOut := tc.lastCLIStderr
	if errOut == "" {
		errOut = tc.lastCLIStdout
	}
	if !strings.Contains(strings.ToLower(errOut), strings.ToLower(text)) {
		return fmt.Errorf("error output did not contain %q; stderr: %s", text, tc.lastCLIStderr)
	}
	return nil
}

func (tc *TestContext) fileHoldsRelationships(name string, n int) error {
	data, err := os.ReadFile(tc.path(name))
	if err != nil {
		return err
	}
	var rs []relation.Scored
	if err := json.Unmarshal(data, &rs); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if len(rs) != n {
		return fmt.Errorf("expected %d relationships in %s, got %d", n, name, len(rs))
	}
	return nil
}

func (tc *TestContext) fileExists(name string) error {
	_, err := os.Stat(tc.path(name))
	return err
}

func (tc *TestContext) fileMissing(name string) error {
	if _, err := os.Stat(tc.path(name)); !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("expected %s not to exist (stat: %v)", name, err)
	}
	return nil
}

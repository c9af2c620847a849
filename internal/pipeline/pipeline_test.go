package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanopyHQ/causalgraph/internal/corpus"
	"github.com/CanopyHQ/causalgraph/internal/profile"
	"github.com/CanopyHQ/causalgraph/internal/relation"
	"github.com/CanopyHQ/causalgraph/internal/rerank"
	"github.com/CanopyHQ/causalgraph/internal/store"
	"github.com/CanopyHQ/causalgraph/internal/validate"
)

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

func writeCorpus(t *testing.T, docs []corpus.Document) string {
	t.Helper()
	data, err := json.Marshal(docs)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRun_JSON(t *testing.T) {
	out := filepath.Join(t.TempDir(), "relationships.json")
	cfg := Config{Corpus: writeCorpus(t, archive), Output: out, Profile: profile.RuleBased(), Workers: 2}

	rs, report, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, rs, 8)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "rulebased", report.Profile)
	assert.Equal(t, "none", report.Reranker)
	assert.Equal(t, 5, report.Documents)
	assert.Equal(t, 15, report.Sentences)
	assert.Equal(t, 9, report.Candidates)
	assert.Equal(t, 10, report.Validated)
	assert.Equal(t, 8, report.Accepted)
	assert.Equal(t, map[validate.Reason]int{validate.SimilarityOutOfBand: 2}, report.Rejected)
	assert.Equal(t, 8, report.Relationships)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var written []map[string]any
	require.NoError(t, json.Unmarshal(data, &written))
	require.Len(t, written, 8)
	assert.Equal(t, "diary_a", written[0]["cause_file"])
	assert.Equal(t, 0.94, written[7]["rule_score"])
	assert.NotContains(t, written[0], "ml_score")
}

func TestRun_sqlite(t *testing.T) {
	out := filepath.Join(t.TempDir(), "graph.db")
	_, report, err := Run(context.Background(), Config{Corpus: writeCorpus(t, archive), Output: out, Profile: profile.RuleBased()})
	require.NoError(t, err)

	s, err := store.Open(out)
	require.NoError(t, err)
	defer s.Close()
	runs, nodes, edges, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 9, nodes)
	assert.Equal(t, 8, edges)

	got, err := s.Edges(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Len(t, got, 8)
}

func TestFind_withOracle(t *testing.T) {
	cfg := Config{
		Profile:  profile.RuleBased(),
		Reranker: rerank.NewOracleReranker(rerank.StaticOracle(0.5), "static", rerank.Options{}),
	}
	rs, report, err := Find(context.Background(), archive, cfg)
	require.NoError(t, err)
	require.Len(t, rs, 8)
	assert.Equal(t, 8, report.OracleScored)
	assert.Zero(t, report.OracleFailed)
	assert.Equal(t, 0.75, *rs[0].CombinedScore)
	assert.Equal(t, 0.72, *rs[7].CombinedScore)
	assert.Equal(t, 0.94, rs[7].RuleScore)
}

func TestFind_deterministic(t *testing.T) {
	var first []relation.Scored
	for _, workers := range []int{1, 4} {
		rs, _, err := Find(context.Background(), archive, Config{Profile: profile.Hybrid(), Workers: workers})
		require.NoError(t, err)
		if first == nil {
			first = rs
			continue
		}
		assert.Equal(t, first, rs)
	}
}

func TestRun_missingCorpusWritesNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "relationships.json")
	_, _, err := Run(context.Background(), Config{Corpus: filepath.Join(t.TempDir(), "nope.json"), Output: out, Profile: profile.RuleBased()})
	var inErr *corpus.InputError
	require.ErrorAs(t, err, &inErr)
	assert.NoFileExists(t, out)
}

func TestRun_cancelledWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "relationships.json")
	_, _, err := Run(ctx, Config{Corpus: writeCorpus(t, archive), Output: out, Profile: profile.RuleBased()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NoFileExists(t, out)
}

func TestRun_unwritableOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "relationships.json")
	_, _, err := Run(context.Background(), Config{Corpus: writeCorpus(t, archive), Output: out, Profile: profile.RuleBased()})
	var outErr *corpus.OutputError
	require.ErrorAs(t, err, &outErr)
}

func TestNewEngine_invalidProfile(t *testing.T) {
	p := profile.RuleBased()
	p.Pairing = "diagonal"
	_, err := NewEngine(p, archive, 0)
	assert.ErrorContains(t, err, "unknown pairing")
}

func TestReport_Rows(t *testing.T) {
	r := Report{
		RunID: "r", Profile: "rulebased", Reranker: "none",
		Rejected: map[validate.Reason]int{validate.SameDocument: 0, validate.TooShort: 2},
	}
	rows := r.Rows()
	var labels []string
	for _, row := range rows {
		labels = append(labels, row[0])
	}
	assert.Contains(t, labels, "rejected: too-short")
	assert.NotContains(t, labels, "rejected: same-document")
	assert.NotContains(t, labels, "oracle scored")

	r.Reranker = "http"
	labels = labels[:0]
	for _, row := range r.Rows() {
		labels = append(labels, row[0])
	}
	assert.Contains(t, labels, "oracle failed")
}

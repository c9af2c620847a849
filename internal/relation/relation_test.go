package relation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRound(t *testing.T) {
	assert.Equal(t, 0.857, Round(0.85714, 3))
	assert.Equal(t, 0.9127, Round(0.912749, 4))
	assert.Equal(t, 1.0, Round(0.99996, 4))
	assert.Equal(t, 0.0, Round(0, 3))
}

func TestWithML(t *testing.T) {
	base := Scored{RuleScore: 0.9, SharedEntities: []string{"ypres"}}
	got := base.WithML(0.73219)

	require.NotNil(t, got.MLScore)
	require.NotNil(t, got.CombinedScore)
	assert.Equal(t, 0.7322, *got.MLScore)
	assert.Equal(t, 0.8161, *got.CombinedScore)
	assert.Equal(t, 0.8161, got.Final())

	// The original record is untouched.
	assert.Nil(t, base.MLScore)
	assert.Equal(t, 0.9, base.Final())
	got.SharedEntities[0] = "x"
	assert.Equal(t, "ypres", base.SharedEntities[0])
}

func TestWithFallback(t *testing.T) {
	got := Scored{RuleScore: 0.88}.WithFallback()
	assert.Nil(t, got.MLScore)
	require.NotNil(t, got.CombinedScore)
	assert.Equal(t, 0.88, *got.CombinedScore)
}

func TestSort(t *testing.T) {
	rs := []Scored{
		{CauseDocumentID: "b", RuleScore: 0.9},
		{CauseDocumentID: "a", CausePosition: 2, RuleScore: 0.9},
		{CauseDocumentID: "a", CausePosition: 1, RuleScore: 0.9},
		{CauseDocumentID: "z", RuleScore: 1.0},
		Scored{CauseDocumentID: "y", RuleScore: 0.86}.WithML(1.0),
	}
	Sort(rs)

	got := make([]string, len(rs))
	for i, r := range rs {
		got[i] = r.CauseDocumentID
	}
	assert.Equal(t, []string{"z", "y", "a", "a", "b"}, got)
	assert.Equal(t, 1, rs[2].CausePosition)
}

func TestScored_JSON(t *testing.T) {
	data, err := json.Marshal(Scored{
		CauseDocumentID:  "d1",
		CauseText:        "c",
		EffectDocumentID: "d2",
		EffectText:       "e",
		RuleScore:        0.9,
		SharedEntities:   []string{"somme", "ypres"},
		CausePosition:    4,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"cause_file": "d1", "cause_text": "c",
		"effect_file": "d2", "effect_text": "e",
		"rule_score": 0.9, "shared_entities": ["somme", "ypres"]
	}`, string(data))

	data, err = json.Marshal(Scored{RuleScore: 0.9}.WithML(0.5))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ml_score":0.5`)
	assert.Contains(t, string(data), `"combined_score":0.7`)
}

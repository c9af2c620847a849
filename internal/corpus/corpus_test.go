package corpus

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanopyHQ/causalgraph/internal/relation"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSONArray(t *testing.T) {
	path := writeFile(t, "corpus.json", `[
		{"file_id": "diary_1916", "sentences": ["one", "two"]},
		{"file_id": "letter_03", "sentences": []}
	]`)

	docs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "diary_1916", docs[0].ID)
	assert.Equal(t, []string{"one", "two"}, docs[0].Sentences)
	assert.Empty(t, docs[1].Sentences)
	assert.Equal(t, []string{"one", "two"}, Sentences(docs))
}

func TestLoad_JSONL(t *testing.T) {
	path := writeFile(t, "corpus.jsonl", `{"file_id": "a", "sentences": ["x"]}

{"file_id": "b", "sentences": ["y", "z"]}
`)
	docs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[1].ID)
}

func TestLoad_emptyArray(t *testing.T) {
	docs, err := Load(writeFile(t, "empty.json", `[]`))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoad_failsLoudly(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantMsg string
	}{
		{"not json", "c.json", `{{`, "parse JSON array"},
		{"object not array", "c.json", `{"file_id": "a", "sentences": []}`, "parse JSON array"},
		{"missing id", "c.json", `[{"sentences": ["x"]}]`, "record 0: missing file_id"},
		{"blank id", "c.json", `[{"file_id": "a", "sentences": []}, {"file_id": " ", "sentences": []}]`, "record 1: missing file_id"},
		{"missing sentences", "c.json", `[{"file_id": "a"}]`, "missing sentences"},
		{"wrong type", "c.json", `[{"file_id": "a", "sentences": "x"}]`, "record 0"},
		{"duplicate id", "c.json", `[{"file_id": "a", "sentences": []}, {"file_id": "a", "sentences": []}]`, `duplicate file_id "a"`},
		{"bad jsonl line", "c.jsonl", "{\"file_id\": \"a\", \"sentences\": []}\nnope\n", "line 2"},
		{"trailing data on jsonl line", "c.jsonl", "{\"file_id\": \"a\", \"sentences\": []} junk\n", "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			_, err := Load(path)
			require.Error(t, err)

			var inErr *InputError
			require.True(t, errors.As(err, &inErr))
			assert.Equal(t, path, inErr.Path)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var inErr *InputError
	require.ErrorAs(t, err, &inErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	rs := []relation.Scored{{
		CauseDocumentID:  "a",
		CauseText:        "cause",
		EffectDocumentID: "b",
		EffectText:       "effect",
		RuleScore:        0.91,
		SharedEntities:   []string{"ypres"},
	}}
	require.NoError(t, WriteJSON(path, rs))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0]["cause_file"])
	assert.Equal(t, 0.91, got[0]["rule_score"])
	assert.NotContains(t, got[0], "ml_score")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteJSON_emptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteJSON(path, nil))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestWriteJSON_missingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "out.json")
	err := WriteJSON(path, nil)
	var outErr *OutputError
	require.ErrorAs(t, err, &outErr)
	assert.Equal(t, path, outErr.Path)
}

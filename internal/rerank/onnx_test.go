package rerank

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmax(t *testing.T) {
	got := softmax([]float64{2, 2})
	assert.InDelta(t, 0.5, got[0], 1e-12)

	got = softmax([]float64{1000, 0})
	assert.InDelta(t, 1.0, got[0], 1e-12)
	assert.False(t, math.IsNaN(got[1]))

	assert.Nil(t, softmax(nil))
}

func fakeEncode(s string) ([]int, error) {
	if s == "boom" {
		return nil, errors.New("boom")
	}
	ids := make([]int, len(s))
	for i := range s {
		ids[i] = 100 + int(s[i]-'a')
	}
	return ids, nil
}

func TestPairSequence(t *testing.T) {
	cfg := DefaultONNXConfig()
	got, err := pairSequence(fakeEncode, cfg, "ab", "c")
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 100, 101, 2, 2, 102, 2}, got)

	cfg.MaxSeqLen = 8
	got, err = pairSequence(fakeEncode, cfg, "abcdefg", "c")
	require.NoError(t, err)
	assert.Len(t, got, 8)
	assert.Equal(t, []int64{0, 100, 101, 102, 2, 2, 102, 2}, got)

	cfg.MaxSeqLen = 4
	_, err = pairSequence(fakeEncode, cfg, "a", "c")
	assert.Error(t, err)

	_, err = pairSequence(fakeEncode, DefaultONNXConfig(), "boom", "c")
	assert.ErrorContains(t, err, "tokenize premise")
}

func TestONNXConfig_Check(t *testing.T) {
	cfg := DefaultONNXConfig()
	err := cfg.Check()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "onnxruntime library path not set")
	assert.Contains(t, err.Error(), "model path not set")

	dir := t.TempDir()
	for _, name := range []string{"libonnxruntime.so", "model.onnx", "tokenizer.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	cfg.Library = filepath.Join(dir, "libonnxruntime.so")
	cfg.Model = filepath.Join(dir, "model.onnx")
	cfg.Tokenizer = filepath.Join(dir, "tokenizer.json")
	assert.NoError(t, cfg.Check())

	bad := cfg
	bad.EntailmentIndex = 3
	assert.ErrorContains(t, bad.Check(), "entailment index")

	bad = cfg
	bad.Hypothesis = "no placeholder"
	assert.ErrorContains(t, bad.Check(), "hypothesis template")

	bad = cfg
	bad.Model = filepath.Join(dir, "missing.onnx")
	assert.ErrorIs(t, bad.Check(), os.ErrNotExist)
}

func TestNewONNXOracle_failsBeforeLoading(t *testing.T) {
	_, err := NewONNXOracle(DefaultONNXConfig())
	assert.Error(t, err)

	var o *ONNXOracle
	assert.NoError(t, o.Close())
}

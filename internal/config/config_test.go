package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CanopyHQ/causalgraph/internal/profile"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "causalgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, "rulebased", cfg.Profile)
	assert.Equal(t, 0.85, cfg.MinConfidence)
	assert.Equal(t, "relationships.json", cfg.Output)
	assert.Equal(t, "none", cfg.Rerank.Mode)
	assert.Equal(t, 30*time.Second, cfg.Rerank.Timeout)
	assert.Equal(t, 4, cfg.Rerank.Concurrency)
	assert.Equal(t, 512, cfg.Rerank.ONNX.MaxSeqLen)
	assert.Equal(t, "This example is %s.", cfg.Rerank.ONNX.Hypothesis)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Display.Colors)
	assert.Equal(t, 8192, cfg.Cache.Vectors)
	assert.Nil(t, cfg.Vocab.Gazetteer)
}

func TestLoad_file(t *testing.T) {
	path := writeConfig(t, `
profile: hybrid
min_confidence: 0.7
workers: 3
rerank:
  mode: http
  timeout: 5s
  http:
    url: http://localhost:8080/classify
vocab:
  gazetteer: [ypres, somme]
  cause_words: []
`)
	cfg, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, "hybrid", cfg.Profile)
	assert.Equal(t, 0.7, cfg.MinConfidence)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "http", cfg.Rerank.Mode)
	assert.Equal(t, 5*time.Second, cfg.Rerank.Timeout)
	assert.Equal(t, "http://localhost:8080/classify", cfg.Rerank.HTTP.URL)

	p, err := cfg.ResolveProfile()
	require.NoError(t, err)
	assert.Equal(t, profile.HybridName, p.Name)
	assert.Equal(t, 0.7, p.MinConfidence)
	assert.Equal(t, []string{"ypres", "somme"}, p.Vocabulary.Gazetteer)
	assert.Empty(t, p.Vocabulary.CauseWords)
	assert.Equal(t, profile.Hybrid().Vocabulary.EffectWords, p.Vocabulary.EffectWords)
}

func TestLoad_flagOverridesFile(t *testing.T) {
	path := writeConfig(t, "min_confidence: 0.7\n")
	v := viper.New()
	v.Set("min_confidence", 0.9)
	cfg, err := Load(v, path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.MinConfidence)
}

func TestLoad_env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CAUSALGRAPH_PROFILE", "hybrid")
	t.Setenv("CAUSALGRAPH_RERANK_MODE", "static")
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "hybrid", cfg.Profile)
	assert.Equal(t, "static", cfg.Rerank.Mode)
}

func TestLoad_envWithoutDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CAUSALGRAPH_RERANK_MODE", "http")
	t.Setenv("CAUSALGRAPH_RERANK_HTTP_URL", "http://localhost:9/classify")
	t.Setenv("CAUSALGRAPH_RERANK_HTTP_API_KEY", "secret")
	t.Setenv("CAUSALGRAPH_RERANK_ONNX_MODEL", "/models/nli.onnx")
	t.Setenv("CAUSALGRAPH_VOCAB_GAZETTEER", "ypres,somme")

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9/classify", cfg.Rerank.HTTP.URL)
	assert.Equal(t, "secret", cfg.Rerank.HTTP.APIKey)
	assert.Equal(t, "/models/nli.onnx", cfg.Rerank.ONNX.Model)
	assert.Equal(t, []string{"ypres", "somme"}, cfg.Vocab.Gazetteer)
	assert.Nil(t, cfg.Vocab.CauseWords)
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"unknown profile", "profile: neural\n", "unknown profile"},
		{"threshold", "min_confidence: 1.5\n", "min_confidence"},
		{"workers", "workers: -1\n", "workers"},
		{"rerank mode", "rerank:\n  mode: gpt\n", "unknown rerank mode"},
		{"http url", "rerank:\n  mode: http\n", "rerank.http.url"},
		{"onnx model", "rerank:\n  mode: onnx\n", "rerank.onnx.model"},
		{"static", "rerank:\n  mode: static\n  static: 2\n", "rerank.static"},
		{"log level", "logging:\n  level: loud\n", "invalid logging level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(nil, writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_missingExplicitFile(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config")
}

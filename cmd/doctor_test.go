package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_Empty(t *testing.T) {
	if got := redact("", 2); got != "(not set)" {
		t.Errorf("redact(\"\", 2): got %q", got)
	}
}

func TestRedact_Short(t *testing.T) {
	if got := redact("ab", 2); got != "***" {
		t.Errorf("redact(\"ab\", 2): got %q want ***", got)
	}
}

func TestRedact_Long(t *testing.T) {
	if got := redact("abcdefgh", 2); got != "ab...gh" {
		t.Errorf("redact(\"abcdefgh\", 2): got %q want ab...gh", got)
	}
}

func TestExecute_Doctor(t *testing.T) {
	silenceStderr(t)
	t.Chdir(t.TempDir())

	defer setArgs("causalgraph", "doctor")()
	out, err := captureStdout(func() {
		require.NoError(t, Execute())
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Checking configuration... ✅ OK (profile rulebased")
	assert.Contains(t, out, "SKIPPED (rerank.mode is none)")
	assert.Contains(t, out, "All checks passed!")
}

func TestExecute_DoctorFixCreatesOutputDir(t *testing.T) {
	silenceStderr(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CAUSALGRAPH_OUTPUT", filepath.Join(dir, "out", "graph.db"))

	defer setArgs("causalgraph", "doctor", "--fix")()
	out, err := captureStdout(func() {
		require.NoError(t, Execute())
	})
	require.NoError(t, err)
	assert.Contains(t, out, "✅ FIXED")
	assert.DirExists(t, filepath.Join(dir, "out"))
}

func TestExecute_DoctorReportsONNXIssues(t *testing.T) {
	silenceStderr(t)
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := filepath.Join(dir, ".causalgraph.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("rerank:\n  mode: onnx\n  onnx:\n    model: missing.onnx\n"), 0o644))

	defer setArgs("causalgraph", "doctor")()
	var runErr error
	out, err := captureStdout(func() { runErr = Execute() })
	require.NoError(t, err)
	require.Error(t, runErr)
	assert.Contains(t, out, "Checking reranker... ❌ FAILED")
	assert.Contains(t, out, "onnxruntime library path not set")
}

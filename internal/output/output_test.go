package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainPrinter(quiet bool) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	p := NewPrinterWithOptions(PrinterOptions{ColorMode: ColorNever, Quiet: quiet, Out: &out, Err: &errOut})
	return p, &out, &errOut
}

func TestParseColorMode(t *testing.T) {
	for in, want := range map[string]ColorMode{"auto": ColorAuto, "": ColorAuto, "always": ColorAlways, "never": ColorNever} {
		got, err := ParseColorMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseColorMode("rainbow")
	assert.Error(t, err)
}

func TestResolveColors(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, ResolveColors(ColorAlways, false))
	assert.False(t, ResolveColors(ColorAuto, true))
	assert.False(t, ResolveColors(ColorNever, true))
}

func TestPrinter_plain(t *testing.T) {
	p, out, errOut := plainPrinter(false)
	p.Success("wrote %d relationships", 3)
	p.Warning("oracle failed")
	p.Header("Run")
	p.Error("bad")

	assert.Contains(t, out.String(), "[OK] wrote 3 relationships")
	assert.Contains(t, out.String(), "\nRun\n---\n")
	assert.Contains(t, errOut.String(), "[WARN] oracle failed")
	assert.Contains(t, errOut.String(), "[ERROR] bad")
	assert.Equal(t, "ACCEPTED", p.Verdict(true))
	assert.Equal(t, "REJECTED", p.Verdict(false))
	assert.Equal(t, "score 0.940", p.Bold("score 0.940"))
	assert.Equal(t, "reason", p.Dim("reason"))
	assert.Same(t, out, p.Out())
	assert.False(t, p.IsQuiet())
}

func TestPrinter_quiet(t *testing.T) {
	p, out, errOut := plainPrinter(true)
	p.Info("hidden")
	p.Warning("hidden")
	p.Error("shown")
	assert.Empty(t, out.String())
	assert.Equal(t, "[ERROR] shown\n", errOut.String())
	assert.True(t, p.IsQuiet())

	tbl := p.Table([]string{"a"})
	tbl.AddRow("x")
	require.NoError(t, tbl.Render())
	assert.Empty(t, out.String())
}

func TestFormatError(t *testing.T) {
	p, _, errOut := plainPrinter(false)
	p.FormatError(&CLIError{Summary: "cannot read corpus", Detail: "no such file", Suggestion: "check the path", ExitCode: ExitInputError})
	assert.Equal(t, "[ERROR] cannot read corpus\n  Cause: no such file\n  Suggestion: check the path\n", errOut.String())
}

func TestTable_Render(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableWithWriter(&buf, []string{"metric", "value"})
	tbl.AddRow("documents", "5")
	tbl.AddRow("accepted", "8")
	assert.Equal(t, 2, tbl.Len())
	require.NoError(t, tbl.Render())
	assert.Contains(t, buf.String(), "documents")
	assert.Contains(t, buf.String(), "accepted")
}

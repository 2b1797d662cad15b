package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/pointsto/pkg/pta"
)

const program = `
classes:
  - name: A
    methods:
      - sig: Object id(Object x)
        body:
          - return x
  - name: Main
    methods:
      - sig: static void main()
        locals: [A a, Object r]
        body:
          - a = new A
          - r = a.id(a)
entries: [Main.main]
`

func testCommand(t *testing.T, c *Config, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	flags := cmd.Flags()
	flags.StringVar(&c.Config, "config", "", "")
	flags.StringSliceVar(&c.CS, "cs", nil, "")
	flags.BoolVar(&c.OnlyApp, "only-app", false, "")
	flags.BoolVar(&c.ImplicitEntries, "implicit-entries", false, "")
	flags.BoolVar(&c.CheckConstraints, "check-constraints", false, "")
	require.NoError(t, flags.Parse(args))
	return cmd
}

func TestAnalysisOptions(t *testing.T) {
	dir := t.TempDir()
	optsFile := filepath.Join(dir, "pta.yaml")
	require.NoError(t, os.WriteFile(optsFile, []byte("cs: 2-obj\nonly_app: true\n"), 0o644))

	tests := []struct {
		name    string
		args    []string
		wantCS  []string
		wantApp bool
		wantErr bool
	}{
		{name: "defaults", wantCS: []string{"ci"}},
		{name: "selectors", args: []string{"--cs", "1-call,2-obj", "--cs", "1-call"}, wantCS: []string{"1-call", "2-obj"}},
		{name: "options file", args: []string{"--config", optsFile}, wantCS: []string{"2-obj"}, wantApp: true},
		{name: "flag overrides file", args: []string{"--config", optsFile, "--only-app=false", "--cs", "ci"}, wantCS: []string{"ci"}},
		{name: "bad selector", args: []string{"--cs", "x-obj"}, wantErr: true},
		{name: "missing file", args: []string{"--config", filepath.Join(dir, "missing.yaml")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			opts, err := analysisOptions(testCommand(t, &c, tt.args...), &c)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			var got []string
			for _, o := range opts {
				got = append(got, o.CS)
				assert.Equal(t, tt.wantApp, o.OnlyApp)
			}
			assert.Equal(t, tt.wantCS, got)
		})
	}
}

func TestRunAnalysis(t *testing.T) {
	dir := t.TempDir()
	prog := filepath.Join(dir, "id.yaml")
	require.NoError(t, os.WriteFile(prog, []byte(program), 0o644))

	c := Config{
		Programs: []string{prog},
		Metrics:  filepath.Join(dir, "metrics.txt"),
		Dump:     filepath.Join(dir, "dumps"),
		Top:      3,
		Verbose:  true,
		Baseline: true,
	}
	ci, kcall := pta.DefaultOptions(), pta.DefaultOptions()
	kcall.CS = "1-call"
	kcall.CheckConstraints = true
	ci.CheckConstraints = true

	result, err := runAnalysis(t.Context(), &c, []pta.Options{ci, kcall})
	require.NoError(t, err)
	require.Len(t, result.Analyses, 2)
	assert.Zero(t, result.Violations)

	for i, sel := range []string{"ci", "1-call"} {
		a := result.Analyses[i]
		assert.Equal(t, sel, a.Report.Stats.Selector)
		assert.Equal(t, 2, a.Report.Stats.ReachableMethods)
		assert.True(t, strings.HasPrefix(a.Profile, "Top 3 frequently-visited variables:\n"))

		data, err := os.ReadFile(filepath.Join(c.Dump, "id."+sel+".txt"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "Main.main()/r -> [Main.main()/new A/0]")
	}

	metricsText, err := os.ReadFile(c.Metrics)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), `pta_call_edges_total{selector="ci"} 1`)
	assert.Contains(t, string(metricsText), `pta_call_edges_total{selector="1-call"} 1`)

	require.Len(t, result.Baselines, 1)
	assert.Equal(t, Baseline{Program: prog, ReachableMethods: 2, CallEdges: 1, RuntimeTypes: 1}, result.Baselines[0])

	text := formatTextOutput(result, &c)
	assert.Contains(t, text, prog+" [ci]: 2 reachable methods, 1 call edges")
	assert.Contains(t, text, "  Main.main()/r -> [Main.main()/new A/0]\n")
	assert.Contains(t, text, prog+" [rta]: 2 reachable methods, 1 call edges, 1 runtime types\n")

	out, err := formatJSONOutput(result)
	require.NoError(t, err)
	var decoded jOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded.Analyses, 2)
	assert.Equal(t, "1-call", decoded.Analyses[1].Stats.Selector)
	assert.Len(t, decoded.Analyses[1].Digest, 16)
	assert.Equal(t, result.Baselines, decoded.Baselines)
}

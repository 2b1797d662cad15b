package harness

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAll runs all integration tests.
func TestAll(t *testing.T) {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "get current file path")

	harnessDir := filepath.Dir(filename)
	testdataDir := filepath.Join(harnessDir, "..", "..", "testdata")

	testCases := DiscoverTestCases(t, testdataDir)
	require.NotEmpty(t, testCases, "no test cases found")

	if testing.Verbose() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	for _, tc := range testCases {
		t.Run(tc.Dir, func(t *testing.T) {
			t.Parallel()

			for _, config := range tc.Configurations {
				t.Logf("[%s] selector %s", config.Name, config.Options.CS)
			}

			result := NewHarness(testdataDir).Run(t, tc)
			if !result.Success {
				t.Errorf("Test failed: %s", result.Message)
			}
		})
	}
}

func TestCompareSets(t *testing.T) {
	tests := []struct {
		name string
		want []string
		got  []string
		diff []string
	}{
		{name: "equal", want: []string{"a", "b"}, got: []string{"b", "a"}},
		{name: "both empty"},
		{
			name: "missing and unexpected",
			want: []string{"a", "c"},
			got:  []string{"b", "a", "b"},
			diff: []string{"x: missing c", "x: unexpected b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.diff, compareSets("x", tt.want, tt.got))
		})
	}
}

func TestLoadTestCase_Defaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ExpectedFile), []byte(`
configurations:
  - name: plain
  - name: sensitive
    options:
      cs: 2-obj
      class_init: false
    call_edges: []
`), 0o644))

	tc := LoadTestCase(t, dir, "")
	assert.Equal(t, filepath.Base(dir), tc.Dir)
	require.Len(t, tc.Configurations, 2)

	plain := tc.Configurations[0]
	assert.Equal(t, "ci", plain.Options.CS)
	assert.True(t, plain.Options.ClassInit)
	assert.Nil(t, plain.CallEdges)

	sensitive := tc.Configurations[1]
	assert.Equal(t, "2-obj", sensitive.Options.CS)
	assert.False(t, sensitive.Options.ClassInit)
	assert.True(t, sensitive.Options.ThreadStart)
	assert.NotNil(t, sensitive.CallEdges)
}

package pta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    Options
		wantErr string
	}{
		{
			name: "empty",
			yaml: "",
			want: DefaultOptions(),
		},
		{
			name: "overrides",
			yaml: "cs: 2-obj\nonly_app: true\nclass_init: false\nmerge_string_constants: true\n",
			want: Options{
				CS:                   "2-obj",
				OnlyApp:              true,
				MergeStringConstants: true,
				ThreadStart:          true,
				ArrayCopy:            true,
			},
		},
		{
			name:    "unknown field",
			yaml:    "cs: ci\ncontext: 2-obj\n",
			wantErr: "field context not found",
		},
		{
			name:    "unknown selector",
			yaml:    "cs: 2-heap\n",
			wantErr: "unknown context selector",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOptions([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pta.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cs: 1-type\nimplicit_entries: true\n"), 0o644))

	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "1-type", opts.CS)
	assert.True(t, opts.ImplicitEntries)
	assert.True(t, opts.ClassInit)

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

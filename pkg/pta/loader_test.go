package pta

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProgram(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadPrograms(t *testing.T) {
	dir := t.TempDir()
	first := writeProgram(t, dir, "first.yaml", idProgram)
	second := writeProgram(t, dir, "second.yaml", `
classes:
  - name: Other
    methods:
      - sig: static void run()
        body: []
entries: [Other.run]
`)

	progs, err := LoadPrograms(t.Context(), LoaderOptions{Paths: []string{first, second}})
	require.NoError(t, err)
	require.Len(t, progs, 2)
	assert.NotNil(t, progs[0].Class("Main"))
	assert.Nil(t, progs[0].Class("Other"))
	require.Len(t, progs[1].Entries(), 1)
	assert.Equal(t, "Other.run()", progs[1].Entries()[0].String())
}

func TestLoadPrograms_Errors(t *testing.T) {
	dir := t.TempDir()
	good := writeProgram(t, dir, "good.yaml", idProgram)
	bad := writeProgram(t, dir, "bad.yaml", "classes:\n  - name: A\n    extends: Missing\n")

	tests := []struct {
		name  string
		paths []string
	}{
		{name: "no paths"},
		{name: "missing file", paths: []string{good, filepath.Join(dir, "missing.yaml")}},
		{name: "invalid program", paths: []string{bad, good}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			progs, err := LoadPrograms(t.Context(), LoaderOptions{Paths: tt.paths})
			require.Error(t, err)
			assert.Nil(t, progs)
		})
	}
}

package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"
)

// ExpectedFile is the name of the expectations of a test case directory.
const ExpectedFile = "expected.yaml"

// LoadTestCase loads a test case from a directory with a specified testdata root.
func LoadTestCase(t *testing.T, dir, root string) *TestCase {
	t.Helper()
	yamlPath := filepath.Join(dir, ExpectedFile)

	tc := &TestCase{}
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	err = yaml.Unmarshal(data, tc)
	require.NoError(t, err, "parsing %s", yamlPath)

	// Use relative path from testdata root if provided.
	if root != "" {
		relPath, err := filepath.Rel(root, dir)
		if err != nil {
			tc.Dir = filepath.Base(dir)
		} else {
			tc.Dir = relPath
		}
		return tc
	}

	tc.Dir = filepath.Base(dir)
	return tc
}

// DiscoverTestCases loads every directory under root that holds both a
// program and its expectations.
func DiscoverTestCases(t *testing.T, root string) []*TestCase {
	t.Helper()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	var testCases []*TestCase
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ExpectedFile)); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, ProgramFile)); err != nil {
			continue
		}
		testCases = append(testCases, LoadTestCase(t, dir, root))
	}
	return testCases
}

// Package harness provides testing utilities for running the pointer
// analysis against expected results.
package harness

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"

	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
	"github.com/715d/pointsto/pkg/pta"
)

// ProgramFile is the name of the program of a test case directory.
const ProgramFile = "program.yaml"

// Configuration is one analysis of a test case and its expected results.
type Configuration struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name"`

	// Options configures the analysis. Unset fields take their
	// pta.DefaultOptions value.
	Options pta.Options `yaml:"options"`

	// PointsTo maps variables ("Main.main()/a") to the exact set of objects
	// they may point to. An empty list expects an empty set.
	PointsTo map[string][]string `yaml:"points_to"`

	// CallEdges is the exact set of context-insensitive call edges, written
	// "Main.main()[4] -> A.foo()". Nil skips the check.
	CallEdges []string `yaml:"call_edges"`

	// Reachable is the exact set of reachable methods. Nil skips the check.
	Reachable []string `yaml:"reachable"`

	// ExpectedErrors lists substrings of an expected analysis error.
	ExpectedErrors []string `yaml:"expected_errors"`
}

// UnmarshalYAML decodes a configuration on top of the default options.
func (c *Configuration) UnmarshalYAML(node *yaml.Node) error {
	type plain Configuration
	p := plain{Options: pta.DefaultOptions()}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Configuration(p)
	return nil
}

// TestCase represents a single test scenario.
type TestCase struct {
	// Dir is the directory containing the program, relative to the root.
	Dir string `yaml:"-"`

	// Configurations defines the analyses to run on the program.
	Configurations []Configuration `yaml:"configurations"`
}

// TestHarness manages test execution.
type TestHarness struct {
	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{root: root}
}

// Run executes a test case with all its configurations.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Configurations, "test case has no configurations")

	prog, err := ir.Load(filepath.Join(h.root, tc.Dir, ProgramFile))
	require.NoError(t, err)

	var results []ConfigurationResult
	var allSuccess = true

	for _, cfg := range tc.Configurations {
		cfgResult := h.runConfiguration(t, prog, cfg)
		results = append(results, *cfgResult)
		if !cfgResult.Success {
			allSuccess = false
		}
	}

	// Create overall result message.
	var resultMsg string
	if allSuccess {
		resultMsg = fmt.Sprintf("All %d configurations passed", len(tc.Configurations))
	} else {
		failedCount := 0
		var msgs []string
		for _, cr := range results {
			if !cr.Success {
				failedCount++
				msgs = append(msgs, fmt.Sprintf("[%s] %s:\n  %s",
					cr.Configuration.Name, cr.Message, strings.Join(cr.Details, "\n  ")))
			}
		}
		resultMsg = fmt.Sprintf("%d/%d configurations failed:\n%s",
			failedCount, len(tc.Configurations), strings.Join(msgs, "\n"))
	}

	return &TestResult{
		TestCase:             tc,
		ConfigurationResults: results,
		Success:              allSuccess,
		Message:              resultMsg,
	}
}

// runConfiguration executes one analysis of prog.
func (h *TestHarness) runConfiguration(t *testing.T, prog *ir.Program, cfg Configuration) *ConfigurationResult {
	t.Helper()
	result, err := pta.Analyze(prog, cfg.Options)
	if err != nil {
		for _, expectedErr := range cfg.ExpectedErrors {
			if strings.Contains(err.Error(), expectedErr) {
				return &ConfigurationResult{
					Configuration: cfg,
					Success:       true,
					Message:       fmt.Sprintf("Got expected error: %v", err),
				}
			}
		}
		require.NoError(t, err)
	}
	if len(cfg.ExpectedErrors) > 0 {
		return &ConfigurationResult{
			Configuration: cfg,
			Result:        result,
			Message:       "Expected an error",
			Details:       cfg.ExpectedErrors,
		}
	}
	return validateConfigurationResults(cfg, result)
}

// ConfigurationResult represents the result of running a single configuration.
type ConfigurationResult struct {
	// Configuration is the configuration that was run.
	Configuration Configuration

	// Result is the raw result of the analysis.
	Result *solver.Result

	// Success indicates if this configuration passed.
	Success bool

	// Message provides a summary of the result for this configuration.
	Message string

	// Details provides detailed information about failures for this configuration.
	Details []string
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// ConfigurationResults contains results for each configuration.
	ConfigurationResults []ConfigurationResult

	// Success indicates if the test passed (all configurations passed)
	Success bool

	// Message provides a summary of the result.
	Message string
}

func validateConfigurationResults(cfg Configuration, result *solver.Result) *ConfigurationResult {
	cfgResult := ConfigurationResult{
		Configuration: cfg,
		Result:        result,
	}

	vars := make(map[string]*ir.Var)
	for _, v := range result.Vars() {
		vars[v.String()] = v
	}

	var details []string
	checked := 0
	for _, name := range sortedKeys(cfg.PointsTo) {
		checked++
		var got []string
		if v := vars[name]; v != nil {
			for _, o := range result.PointsTo(v) {
				got = append(got, o.String())
			}
		}
		details = append(details, compareSets("points-to set of "+name, cfg.PointsTo[name], got)...)
	}

	if cfg.CallEdges != nil {
		checked++
		var got []string
		for _, e := range result.CallGraph().Edges() {
			got = append(got, e.CallSite.Site()+" -> "+e.Callee.String())
		}
		details = append(details, compareSets("call edges", cfg.CallEdges, got)...)
	}

	if cfg.Reachable != nil {
		checked++
		var got []string
		for _, m := range result.ReachableMethods() {
			got = append(got, m.String())
		}
		details = append(details, compareSets("reachable methods", cfg.Reachable, got)...)
	}

	cfgResult.Details = details
	cfgResult.Success = len(details) == 0
	if cfgResult.Success {
		cfgResult.Message = fmt.Sprintf("All %d checks passed", checked)
	} else {
		cfgResult.Message = fmt.Sprintf("Test failed: %d mismatches", len(details))
	}
	return &cfgResult
}

// compareSets reports the elements missing from and unexpected in got.
func compareSets(what string, want, got []string) []string {
	var details []string
	var missing, unexpected []string
	for _, w := range want {
		if !slices.Contains(got, w) {
			missing = append(missing, w)
		}
	}
	for _, g := range got {
		if !slices.Contains(want, g) && !slices.Contains(unexpected, g) {
			unexpected = append(unexpected, g)
		}
	}

	// Sort for consistent output.
	sort.Strings(missing)
	sort.Strings(unexpected)

	for _, m := range missing {
		details = append(details, fmt.Sprintf("%s: missing %s", what, m))
	}
	for _, u := range unexpected {
		details = append(details, fmt.Sprintf("%s: unexpected %s", what, u))
	}
	return details
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

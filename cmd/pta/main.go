// Package main implements the command-line driver for the pointer analysis.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"

	"github.com/715d/pointsto/internal/dump"
	"github.com/715d/pointsto/internal/plugin"
	"github.com/715d/pointsto/internal/rta"
	"github.com/715d/pointsto/internal/solver"
	"github.com/715d/pointsto/pkg/ir"
	"github.com/715d/pointsto/pkg/pta"
)

// Config holds all command-line configuration options.
type Config struct {
	Programs         []string // the program files to analyze
	Config           string   // YAML options file
	CS               []string // context selectors; one analysis per value
	OnlyApp          bool     // skip library method bodies
	ImplicitEntries  bool     // also analyze implicit entry methods
	CheckConstraints bool     // report out-of-order solver events
	Baseline         bool     // also run Rapid Type Analysis on each program
	Verbose          bool     // enables logging and detailed output
	JSON             bool     // enables JSON output format
	Profile          bool     // enables CPU and memory profiling
	Metrics          string   // file to write Prometheus metrics to
	Dump             string   // directory to write canonical result dumps to
	Top              int      // entries per profile section; 0 disables the profile
}

const (
	exitViolations = 1
	exitError      = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	var rootCmd = &cobra.Command{
		Use:   "pta [flags] program.yaml...",
		Short: "Run a context-sensitive pointer analysis",
		Long: `pta computes the points-to sets and the call graph of programs
written in the YAML program format.

Each program is analyzed once per context selector given with --cs:
- ci: context insensitive
- <k>-call or <k>-cfa: call-site sensitive
- <k>-obj: object sensitive
- <k>-type: type sensitive`,
		Example: `  pta prog.yaml                          # Context-insensitive analysis
  pta --cs 2-obj --cs 1-call prog.yaml   # Two analyses of one program
  pta -v --json prog.yaml > out.json     # Detailed JSON output
  pta --dump out --top 20 prog.yaml      # Write dumps and a profile
  pta --rta --cs 1-obj prog.yaml         # Compare with the RTA call graph`,
		Args:               cobra.MinimumNArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	// Set custom version template to include build info.
	rootCmd.SetVersionTemplate(fmt.Sprintf("pta version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable logging and list points-to sets")
	flags.BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	flags.StringVar(&cfg.Config, "config", "", "YAML file with analysis options")
	flags.StringSliceVar(&cfg.CS, "cs", nil, "Context selector (repeatable; default from --config or ci)")
	flags.BoolVar(&cfg.OnlyApp, "only-app", false, "Skip the statements of library methods")
	flags.BoolVar(&cfg.ImplicitEntries, "implicit-entries", false, "Also start from the implicit entry methods")
	flags.BoolVar(&cfg.CheckConstraints, "check-constraints", false, "Report out-of-order solver events and exit with status 1 if any")
	flags.BoolVar(&cfg.Baseline, "rta", false, "Also build the Rapid Type Analysis call graph of each program as a baseline")
	flags.BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	flags.StringVar(&cfg.Metrics, "metrics", "", "Write solver metrics in Prometheus text format to `file`; counters of one selector are summed over all programs")
	flags.StringVar(&cfg.Dump, "dump", "", "Write a canonical dump of each result to `dir`")
	flags.IntVar(&cfg.Top, "top", 0, "Print the top `n` entries of each profile section")

	if err := rootCmd.Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg.Programs = args

	opts, err := analysisOptions(cmd, &cfg)
	if err != nil {
		return errWithCode(err, exitError)
	}

	slog.Info("starting pointer analysis", "programs", cfg.Programs, "analyses", len(opts))

	result, err := runAnalysis(cmd.Context(), &cfg, opts)
	if err != nil {
		return errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}

	if err := writeResults(result, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}

	if result.Violations > 0 {
		return errWithCode(fmt.Errorf("%d constraint violations", result.Violations), exitViolations)
	}
	return nil
}

// analysisOptions returns one options value per selector. Flags given on the
// command line override the options file.
func analysisOptions(cmd *cobra.Command, cfg *Config) ([]pta.Options, error) {
	base := pta.DefaultOptions()
	if cfg.Config != "" {
		var err error
		if base, err = pta.LoadOptions(cfg.Config); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("only-app") {
		base.OnlyApp = cfg.OnlyApp
	}
	if flags.Changed("implicit-entries") {
		base.ImplicitEntries = cfg.ImplicitEntries
	}
	if flags.Changed("check-constraints") {
		base.CheckConstraints = cfg.CheckConstraints
	}

	selectors := []string{base.CS}
	if len(cfg.CS) > 0 {
		selectors = nil
		for _, s := range cfg.CS {
			if !slices.Contains(selectors, s) {
				selectors = append(selectors, s)
			}
		}
	}

	opts := make([]pta.Options, 0, len(selectors))
	for _, s := range selectors {
		o := base
		o.CS = s
		if err := o.Validate(); err != nil {
			return nil, err
		}
		opts = append(opts, o)
	}
	return opts, nil
}

// Result is the output of all analyses of a run.
type Result struct {
	Analyses   []Analysis
	Baselines  []Baseline
	Violations int
	Duration   time.Duration
}

// Analysis is the output of one analysis of one program.
type Analysis struct {
	Program string
	Report  pta.Report
	Digest  uint64
	Profile string
}

// Baseline summarizes the Rapid Type Analysis of one program.
type Baseline struct {
	Program          string `json:"program"`
	ReachableMethods int    `json:"reachable_methods"`
	CallEdges        int    `json:"call_edges"`
	RuntimeTypes     int    `json:"runtime_types"`
}

func newBaseline(program string, prog *ir.Program, o pta.Options) Baseline {
	res := rta.Analyze(prog, rta.Options{ImplicitEntries: o.ImplicitEntries, ClassInit: o.ClassInit})
	b := Baseline{
		Program:          program,
		ReachableMethods: res.CallGraph.NumReachableMethods(),
		CallEdges:        res.CallGraph.NumEdges(),
		RuntimeTypes:     len(res.RuntimeTypes),
	}
	slog.Debug("rta baseline", "program", program, "methods", b.ReachableMethods, "edges", b.CallEdges)
	return b
}

// run collects the per-analysis plugins of one program, keyed by selector.
type run struct {
	mu        sync.Mutex
	profiles  map[string]*bytes.Buffer
	checkers  map[string]*plugin.ConstraintChecker
	metricSet *metrics.Set
	topN      int
	check     bool
}

func (r *run) plugins(o pta.Options) []solver.Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()

	var plugins []solver.Plugin
	if r.metricSet != nil || r.topN > 0 {
		set := r.metricSet
		if set == nil {
			set = metrics.NewSet()
		}
		var out io.Writer
		if r.topN > 0 {
			buf := new(bytes.Buffer)
			r.profiles[o.CS] = buf
			out = buf
		}
		plugins = append(plugins, plugin.NewProfiler(set, out, r.topN))
	}
	if r.check {
		c := plugin.NewConstraintChecker()
		r.checkers[o.CS] = c
		plugins = append(plugins, c)
	}
	return plugins
}

func runAnalysis(ctx context.Context, cfg *Config, opts []pta.Options) (*Result, error) {
	start := time.Now()

	progs, err := pta.LoadPrograms(ctx, pta.LoaderOptions{Paths: cfg.Programs})
	if err != nil {
		return nil, err
	}
	slog.Info("loaded programs", "num", len(progs))

	// The driver wires the checker itself so that its violations can be
	// counted.
	check := opts[0].CheckConstraints
	runOpts := make([]pta.Options, len(opts))
	for i, o := range opts {
		runOpts[i] = o
		runOpts[i].CheckConstraints = false
	}

	var metricSet *metrics.Set
	if cfg.Metrics != "" {
		metricSet = metrics.NewSet()
	}

	var result Result
	for i, prog := range progs {
		r := &run{
			profiles:  make(map[string]*bytes.Buffer),
			checkers:  make(map[string]*plugin.ConstraintChecker),
			metricSet: metricSet,
			topN:      cfg.Top,
			check:     check,
		}
		results, err := pta.AnalyzeAll(ctx, prog, runOpts, r.plugins)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Programs[i], err)
		}
		for j, res := range results {
			a, err := newAnalysis(cfg, cfg.Programs[i], res, r.profiles[opts[j].CS])
			if err != nil {
				return nil, err
			}
			result.Analyses = append(result.Analyses, a)
			if c := r.checkers[opts[j].CS]; c != nil {
				result.Violations += len(c.Violations())
			}
		}
		if cfg.Baseline {
			result.Baselines = append(result.Baselines, newBaseline(cfg.Programs[i], prog, opts[0]))
		}
	}

	if metricSet != nil {
		if err := writeMetrics(cfg.Metrics, metricSet); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	slog.Info("analysis completed", "dur", result.Duration)
	return &result, nil
}

func newAnalysis(cfg *Config, program string, res *solver.Result, profile *bytes.Buffer) (Analysis, error) {
	a := Analysis{
		Program: program,
		Report:  pta.NewReport(res, cfg.Verbose),
	}
	if profile != nil {
		a.Profile = profile.String()
	}

	var err error
	if a.Digest, err = dump.Digest(res); err != nil {
		return Analysis{}, err
	}
	if cfg.Dump == "" {
		return a, nil
	}

	if err := os.MkdirAll(cfg.Dump, 0o755); err != nil {
		return Analysis{}, fmt.Errorf("creating dump directory: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(program), filepath.Ext(program))
	path := filepath.Join(cfg.Dump, base+"."+res.Selector()+".txt")
	f, err := os.Create(path)
	if err != nil {
		return Analysis{}, fmt.Errorf("creating dump: %w", err)
	}
	defer f.Close()
	if err := dump.Write(f, res); err != nil {
		return Analysis{}, err
	}
	slog.Info("wrote dump", "file", path, "digest", fmt.Sprintf("%016x", a.Digest))
	return a, nil
}

func writeMetrics(path string, set *metrics.Set) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer f.Close()
	set.WritePrometheus(f)
	slog.Info("wrote metrics", "file", path)
	return nil
}

func writeResults(result *Result, cfg *Config) error {
	var output string
	var err error

	if cfg.JSON {
		output, err = formatJSONOutput(result)
	} else {
		output = formatTextOutput(result, cfg)
	}

	if err != nil {
		return err
	}

	fmt.Print(output)
	return nil
}

func formatJSONOutput(result *Result) (string, error) {
	analyses := make([]jAnalysis, 0, len(result.Analyses))
	for _, a := range result.Analyses {
		analyses = append(analyses, jAnalysis{
			Program:  a.Program,
			Stats:    a.Report.Stats,
			Digest:   fmt.Sprintf("%016x", a.Digest),
			Methods:  a.Report.Reachable,
			PointsTo: a.Report.PointsTo,
			Profile:  a.Profile,
		})
	}

	data, err := json.MarshalIndent(jOutput{
		Analyses:   analyses,
		Baselines:  result.Baselines,
		Violations: result.Violations,
		Duration:   result.Duration.String(),
		Version:    version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data) + "\n", nil
}

func formatTextOutput(result *Result, cfg *Config) string {
	var output strings.Builder

	for _, a := range result.Analyses {
		s := a.Report.Stats
		// Format: program [selector]: counts digest
		output.WriteString(fmt.Sprintf("%s [%s]: %d reachable methods, %d call edges, %d pointers, %d objects, %d contexts (%016x)\n",
			a.Program, s.Selector, s.ReachableMethods, s.CallEdges, s.Pointers, s.Objects, s.Contexts, a.Digest))

		if cfg.Verbose {
			for _, p := range a.Report.PointsTo {
				output.WriteString(fmt.Sprintf("  %s -> [%s]\n", p.Var, strings.Join(p.Objects, ", ")))
			}
		}
		if a.Profile != "" {
			output.WriteString("\n")
			output.WriteString(a.Profile)
		}
	}

	for _, b := range result.Baselines {
		output.WriteString(fmt.Sprintf("%s [rta]: %d reachable methods, %d call edges, %d runtime types\n",
			b.Program, b.ReachableMethods, b.CallEdges, b.RuntimeTypes))
	}

	if result.Violations > 0 {
		slog.Warn("constraint violations found", "num", result.Violations)
	}
	return output.String()
}

type jOutput struct {
	Analyses   []jAnalysis `json:"analyses"`
	Baselines  []Baseline  `json:"baselines,omitempty"`
	Violations int         `json:"violations"`
	Duration   string      `json:"duration"`
	Version    string      `json:"version"`
	Timestamp  string      `json:"timestamp"`
}

type jAnalysis struct {
	Program  string            `json:"program"`
	Stats    pta.Stats         `json:"stats"`
	Digest   string            `json:"digest"`
	Methods  []string          `json:"reachable_methods,omitempty"`
	PointsTo []pta.VarPointsTo `json:"points_to,omitempty"`
	Profile  string            `json:"profile,omitempty"`
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if cfg.Verbose {
		opts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
		if cfg.JSON {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if !cfg.Profile {
		return nil
	}

	// Start CPU profiling.
	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !cfg.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e codedError) Unwrap() error {
	return e.err
}

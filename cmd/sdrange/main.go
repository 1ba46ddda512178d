// Package main implements the CLI driver for the sdrange extractor.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/715d/sdrange/pkg/cha"
	"github.com/715d/sdrange/pkg/llvmir"
	"github.com/715d/sdrange/pkg/sdrange"
	"github.com/715d/sdrange/pkg/snapshot"
)

// Config holds all command-line configuration options for the extractor.
type Config struct {
	Modules    []string // the .ll files to process
	ConfigFile string   // optional YAML settings file
	OutputDir  string   // artifact directory
	Hierarchy  string   // YAML class hierarchy
	Intrinsic  string   // checked-dispatch marker name
	MaxHops    int      // consumer chain depth
	Jobs       int      // modules processed concurrently
	Verbose    bool     // enables detailed output and statistics
	JSON       bool     // enables JSON output format
	Profile    bool     // enables CPU and memory profiling
}

const exitError = 2

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var cfg Config

func main() {
	rootCmd := newRootCmd()
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

func newRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "sdrange [flags] module.ll...",
		Short: "Extract checked virtual dispatch sites and class hierarchies",
		Long: `sdrange scans LLVM IR modules instrumented with checked virtual dispatch
markers and stores:
- _SD_CallSites.txt: every checked dispatch with its declared class, precise class and method
- _SD_CallSitesStatic.txt: every direct call worth auditing
- _SD_ClassHierarchy.txt: the subclass set of every declared class

Each run also claims a numbered copy of every file, so results of several
modules accumulate in the output directory.`,
		Example: `  sdrange a.ll b.ll                      # Process two modules
  sdrange --cha classes.yaml --out out a.ll  # With a class hierarchy
  sdrange --config sdrange.yaml *.ll         # Settings from a file
  sdrange --json a.ll > summary.json         # JSON summary`,
		Args:               cobra.MinimumNArgs(1),
		RunE:               runCommand,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	// Set custom version template to include build info.
	rootCmd.SetVersionTemplate(fmt.Sprintf("sdrange version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	defaults := sdrange.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "", "YAML settings file; flags override its values")
	flags.StringVar(&cfg.OutputDir, "out", defaults.OutputDir, "Directory receiving the artifacts")
	flags.StringVar(&cfg.Hierarchy, "cha", "", "YAML class hierarchy consulted for subclasses")
	flags.StringVar(&cfg.Intrinsic, "marker", defaults.Intrinsic, "Name of the checked-dispatch marker intrinsic")
	flags.IntVar(&cfg.MaxHops, "max-hops", defaults.MaxHops, "Consumer hops followed after the marker's first consumer")
	flags.IntVar(&cfg.Jobs, "jobs", defaults.Jobs, "Modules processed concurrently")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	flags.BoolVar(&cfg.JSON, "json", false, "Output in JSON format")
	flags.BoolVar(&cfg.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	return rootCmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	cfg.Modules = args

	settings, err := resolveSettings(cmd, &cfg)
	if err != nil {
		return errWithCode(fmt.Errorf("configure: %w", err), exitError)
	}

	slog.Info("starting return range extraction", "modules", cfg.Modules, "out", settings.OutputDir)

	result, err := runAnalysis(cmd.Context(), cfg.Modules, settings)
	if err != nil {
		return errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}

	if err := writeResults(cmd, result, &cfg); err != nil {
		return errWithCode(fmt.Errorf("format results: %w", err), exitError)
	}
	return nil
}

// resolveSettings loads the config file, if any, and applies the flags the
// user set explicitly on top of it.
func resolveSettings(cmd *cobra.Command, c *Config) (sdrange.Config, error) {
	settings := sdrange.DefaultConfig()
	if c.ConfigFile != "" {
		var err error
		settings, err = sdrange.LoadConfig(c.ConfigFile)
		if err != nil {
			return settings, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("out") {
		settings.OutputDir = c.OutputDir
	}
	if flags.Changed("cha") {
		settings.Hierarchy = c.Hierarchy
	}
	if flags.Changed("marker") {
		settings.Intrinsic = c.Intrinsic
	}
	if flags.Changed("max-hops") {
		settings.MaxHops = c.MaxHops
	}
	if flags.Changed("jobs") {
		settings.Jobs = c.Jobs
	}
	return settings, settings.Validate()
}

// Result is the command output: one summary per processed module.
type Result struct {
	Modules []*sdrange.Result `json:"modules"`
	Stats   struct {
		CallSites        int           `json:"call_sites"`
		StaticCallSites  int           `json:"static_call_sites"`
		Hierarchies      int           `json:"hierarchies"`
		AnalysisDuration time.Duration `json:"analysis_duration"`
	} `json:"stats"`
}

func runAnalysis(ctx context.Context, files []string, settings sdrange.Config) (*Result, error) {
	start := time.Now()

	slog.Info("loading modules", "files", files)
	modules, err := llvmir.LoadModules(ctx, llvmir.LoaderOptions{Files: files, Jobs: settings.Jobs})
	if err != nil {
		return nil, fmt.Errorf("loading modules: %w", err)
	}
	slog.Info("loaded modules", "num", len(modules))

	oracle := cha.Static{}
	if settings.Hierarchy != "" {
		oracle, err = cha.LoadFile(settings.Hierarchy)
		if err != nil {
			return nil, err
		}
		slog.Info("loaded class hierarchy", "file", settings.Hierarchy, "classes", len(oracle))
	}

	filter, err := settings.Filter()
	if err != nil {
		return nil, err
	}

	writer, err := snapshot.NewDirWriter(settings.OutputDir, slog.Default())
	if err != nil {
		return nil, err
	}

	slog.Info("running analysis")
	analyzer := sdrange.NewAnalyzer(oracle, writer, sdrange.AnalyzerOptions{
		Session: sdrange.Options{
			Intrinsic: settings.Intrinsic,
			MaxHops:   settings.MaxHops,
			Exclude:   filter,
			Logger:    slog.Default(),
		},
		Jobs: settings.Jobs,
	})
	results, err := analyzer.Analyze(ctx, modules)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)
	slog.Info("analysis completed", "dur", duration)

	return convertToResult(results, duration), nil
}

func convertToResult(results []*sdrange.Result, dur time.Duration) *Result {
	r := Result{Modules: results}
	r.Stats.AnalysisDuration = dur
	for _, res := range results {
		r.Stats.CallSites += len(res.CallSites)
		r.Stats.StaticCallSites += len(res.StaticCallSites)
		r.Stats.Hierarchies += len(res.Hierarchies)
	}
	return &r
}

func writeResults(cmd *cobra.Command, result *Result, cfg *Config) error {
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

	fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}

func formatJSONOutput(result *Result) (string, error) {
	data, err := json.MarshalIndent(jOutput{
		Modules:   result.Modules,
		Stats:     result.Stats,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling json output: %w", err)
	}
	return string(data) + "\n", nil
}

func formatTextOutput(result *Result, cfg *Config) string {
	var output strings.Builder

	if cfg.Verbose {
		slog.Info("",
			"call_sites", result.Stats.CallSites,
			"static_call_sites", result.Stats.StaticCallSites,
			"hierarchies", result.Stats.Hierarchies,
			"analysis_duration", result.Stats.AnalysisDuration.String())
	}

	for _, m := range result.Modules {
		// Format: module: sites static hierarchies
		fmt.Fprintf(&output, "%s: %d call sites, %d static call sites (%d callees), %d hierarchies\n",
			m.Module, len(m.CallSites), len(m.StaticCallSites), m.DistinctCallees, len(m.Hierarchies))
		if !cfg.Verbose {
			continue
		}
		for _, s := range m.Saved {
			fmt.Fprintf(&output, "  %s -> %s (%d lines)\n", s.Working, s.Backup, s.Lines)
		}
	}

	return output.String()
}

type jOutput struct {
	Modules   []*sdrange.Result `json:"modules"`
	Stats     any               `json:"stats"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
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

	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		cpuProfile = nil
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
	defer func() {
		_ = cpuProfile.Close()
		cpuProfile = nil
	}()
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

package harness

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/715d/sdrange/pkg/cha"
	"github.com/715d/sdrange/pkg/ir"
	"github.com/715d/sdrange/pkg/sdrange"
	"github.com/715d/sdrange/pkg/snapshot"
)

// TestHarness manages test execution.
type TestHarness struct {
	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{root: root}
}

// Run executes a test case with all its run configurations.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Runs, "test case has no run configurations")

	dir := filepath.Join(h.root, tc.Dir)
	m := LoadModule(t, dir)
	oracle := LoadOracle(t, dir)

	var results []ConfigurationResult
	var allSuccess = true

	for _, cfg := range tc.Runs {
		cfgResult := h.runConfiguration(t, m, oracle, cfg)
		results = append(results, *cfgResult)
		if !cfgResult.Success {
			allSuccess = false
		}
	}

	// Create overall result message.
	var resultMsg string
	if allSuccess {
		resultMsg = fmt.Sprintf("All %d configurations passed", len(tc.Runs))
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
			failedCount, len(tc.Runs), strings.Join(msgs, "\n"))
	}

	return &TestResult{
		TestCase:             tc,
		ConfigurationResults: results,
		Success:              allSuccess,
		Message:              resultMsg,
	}
}

// runConfiguration stores cfg.Passes sessions into a fresh in-memory output
// directory. Each pass gets its own pseudo-location allocator, like separate
// compiler invocations writing into the same directory.
func (h *TestHarness) runConfiguration(t *testing.T, m *ir.Module, oracle cha.Oracle, cfg RunConfiguration) *ConfigurationResult {
	t.Helper()
	passes := max(cfg.Passes, 1)

	fsys := afero.NewMemMapFs()
	w := snapshot.NewWriter(fsys, nil)
	for pass := range passes {
		session := sdrange.NewSession(m, oracle, sdrange.Options{
			Intrinsic: cfg.Intrinsic,
			MaxHops:   cfg.MaxHops,
		})
		_, err := session.Run(w)
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
			require.NoError(t, err, "pass %d", pass)
		}
	}

	if len(cfg.ExpectedErrors) > 0 {
		return &ConfigurationResult{
			Configuration: cfg,
			Message:       "Expected errors were not reported",
			Details:       cfg.ExpectedErrors,
		}
	}
	return validateArtifacts(t, fsys, cfg, passes)
}

// validateArtifacts compares the stored working files with the expected
// lines and checks that every pass left an identical numbered copy.
func validateArtifacts(t *testing.T, fsys afero.Fs, cfg RunConfiguration, passes int) *ConfigurationResult {
	t.Helper()
	cfgResult := ConfigurationResult{Configuration: cfg, Success: true}

	expected := map[string][]string{
		sdrange.CallSitesFile:       cfg.Expected.CallSites,
		sdrange.StaticCallSitesFile: cfg.Expected.StaticCallSites,
		sdrange.ClassHierarchyFile:  cfg.Expected.ClassHierarchy,
	}
	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		working, err := afero.ReadFile(fsys, name)
		require.NoError(t, err)
		validateLines(&cfgResult, name, expected[name], splitLines(working))

		base := snapshot.Artifact{Name: name}.Base()
		for idx := range passes {
			backup := base + strconv.Itoa(idx)
			data, err := afero.ReadFile(fsys, backup)
			if err != nil {
				cfgResult.Success = false
				cfgResult.Details = append(cfgResult.Details, fmt.Sprintf("Missing numbered copy %s: %v", backup, err))
				continue
			}
			if !bytes.Equal(data, working) {
				cfgResult.Success = false
				cfgResult.Details = append(cfgResult.Details, fmt.Sprintf("Numbered copy %s differs from %s", backup, name))
			}
		}
		extra := base + strconv.Itoa(passes)
		if ok, _ := afero.Exists(fsys, extra); ok {
			cfgResult.Success = false
			cfgResult.Details = append(cfgResult.Details, "Unexpected numbered copy "+extra)
		}
	}

	if cfgResult.Success {
		cfgResult.Message = fmt.Sprintf("All %d artifacts matched after %d passes", len(names), passes)
	} else {
		cfgResult.Message = "Artifacts did not match"
	}
	return &cfgResult
}

// ConfigurationResult represents the result of running a single run configuration.
type ConfigurationResult struct {
	// Configuration is the run configuration that was used.
	Configuration RunConfiguration

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

	// ConfigurationResults contains results for each run configuration.
	ConfigurationResults []ConfigurationResult

	// Success indicates if the test passed (all configurations passed)
	Success bool

	// Skipped indicates if the test was skipped.
	Skipped bool

	// Message provides a summary of the result.
	Message string
}

// validateLines reports missing and unexpected lines of one artifact, and the
// order diff when both sides hold the same lines in a different order.
func validateLines(cfgResult *ConfigurationResult, artifact string, expected, actual []string) {
	expectedSet := make(map[string]int)
	for _, e := range expected {
		expectedSet[e]++
	}
	actualSet := make(map[string]int)
	for _, a := range actual {
		actualSet[a]++
	}

	var missing, unexpected []string
	for line, n := range expectedSet {
		if actualSet[line] < n {
			missing = append(missing, line)
		}
	}
	for line, n := range actualSet {
		if expectedSet[line] < n {
			unexpected = append(unexpected, line)
		}
	}

	// Sort for consistent output.
	sort.Strings(missing)
	sort.Strings(unexpected)

	for _, m := range missing {
		cfgResult.Details = append(cfgResult.Details, fmt.Sprintf("%s: missing line %q", artifact, m))
	}
	for _, u := range unexpected {
		cfgResult.Details = append(cfgResult.Details, fmt.Sprintf("%s: unexpected line %q", artifact, u))
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		cfgResult.Success = false
		return
	}

	if diff := cmp.Diff(expected, actual, cmpopts.EquateEmpty()); diff != "" {
		cfgResult.Success = false
		cfgResult.Details = append(cfgResult.Details, fmt.Sprintf("%s: line order mismatch (-want +got):\n%s", artifact, diff))
	}
}

func splitLines(data []byte) []string {
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}

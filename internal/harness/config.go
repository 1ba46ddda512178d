// Package harness provides the yaml-driven integration harness that runs the
// analysis over the modules under testdata/ and checks the stored artifacts.
package harness

// TestCase represents a single test scenario: one module, an optional class
// hierarchy and the runs to perform over them.
type TestCase struct {
	// Dir is the directory containing module.ll.
	Dir string `yaml:"-"`

	// Runs defines the analysis configurations to test.
	Runs []RunConfiguration `yaml:"runs"`
}

// RunConfiguration represents a single analysis configuration to test.
type RunConfiguration struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name"`

	// Intrinsic overrides the checked-dispatch marker name.
	Intrinsic string `yaml:"intrinsic,omitempty"`

	// MaxHops overrides the consumer chain depth.
	MaxHops int `yaml:"max_hops,omitempty"`

	// Passes is how many sessions are stored into the same output. Every pass
	// must claim a new numbered copy of each artifact.
	Passes int `yaml:"passes,omitempty"`

	// Expected lists the artifact lines expected after the last pass.
	Expected Artifacts `yaml:"expected"`

	// ExpectedErrors lists any expected error messages for this configuration.
	ExpectedErrors []string `yaml:"expected_errors"`
}

// Artifacts holds the expected lines of every artifact, in file order.
type Artifacts struct {
	CallSites       []string `yaml:"call_sites"`
	StaticCallSites []string `yaml:"static_call_sites"`
	ClassHierarchy  []string `yaml:"class_hierarchy"`
}

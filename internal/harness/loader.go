package harness

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"

	"github.com/715d/sdrange/pkg/cha"
	"github.com/715d/sdrange/pkg/ir"
	"github.com/715d/sdrange/pkg/llvmir"
)

const (
	moduleFile    = "module.ll"
	hierarchyFile = "hierarchy.yaml"
	expectedFile  = "expected.yaml"
)

// LoadModule parses the module of a test case directory.
func LoadModule(t *testing.T, dir string) *ir.Module {
	t.Helper()

	path := filepath.Join(dir, moduleFile)
	t.Logf("Loading module from %q", path)
	m, err := llvmir.LoadFile(path)
	require.NoError(t, err)
	return m
}

// LoadOracle reads the class hierarchy of a test case directory. A case
// without hierarchy.yaml gets an empty hierarchy.
func LoadOracle(t *testing.T, dir string) cha.Static {
	t.Helper()

	oracle, err := cha.LoadFile(filepath.Join(dir, hierarchyFile))
	if errors.Is(err, fs.ErrNotExist) {
		return cha.Static{}
	}
	require.NoError(t, err)
	return oracle
}

// LoadTestCase loads a test case from a directory with a specified testdata root.
func LoadTestCase(t *testing.T, dir, root string) *TestCase {
	t.Helper()
	yamlPath := filepath.Join(dir, expectedFile)

	tc := &TestCase{}
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	err = yaml.Unmarshal(data, tc)
	require.NoError(t, err)

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

package sdrange

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/sdrange/internal/marker"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sdrange.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
output_dir: build/sd
hierarchy: classes.yaml
max_hops: 5
exclude:
  names: [malloc, free]
`))
	require.NoError(t, err)
	require.Equal(t, "build/sd", cfg.OutputDir)
	require.Equal(t, "classes.yaml", cfg.Hierarchy)
	require.Equal(t, 5, cfg.MaxHops)
	require.Equal(t, marker.DefaultIntrinsic, cfg.Intrinsic, "unset fields keep their defaults")
	require.Equal(t, []string{"__", "llvm."}, cfg.Exclude.Prefixes)
	require.Equal(t, []string{"malloc", "free"}, cfg.Exclude.Names)

	f, err := cfg.Filter()
	require.NoError(t, err)
	require.True(t, f.Excluded("free"))
	require.False(t, f.Excluded("_Znwm"))
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "negative_hops", content: "max_hops: -1\n"},
		{name: "zero_hops", content: "max_hops: 0\n"},
		{name: "empty_intrinsic", content: "intrinsic: \"\"\n"},
		{name: "negative_jobs", content: "jobs: -2\n"},
		{name: "bad_prefix", content: "exclude:\n  prefixes: [\"a b\"]\n"},
		{name: "not_yaml", content: "output_dir: [unterminated\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, ".", cfg.OutputDir)
	require.Equal(t, marker.DefaultMaxHops, cfg.MaxHops)
	require.Positive(t, cfg.Jobs)
}

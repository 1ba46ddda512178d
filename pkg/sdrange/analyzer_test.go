package sdrange

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/715d/sdrange/internal/marker"
	"github.com/715d/sdrange/pkg/cha"
	"github.com/715d/sdrange/pkg/ir"
	"github.com/715d/sdrange/pkg/snapshot"
)

func TestAnalyzer_NoModules(t *testing.T) {
	_, err := NewAnalyzer(nil, nil, AnalyzerOptions{}).Analyze(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no modules")
}

func TestAnalyzer_Analyze(t *testing.T) {
	var modules []*ir.Module
	for _, name := range []string{"a.ll", "b.ll", "c.ll"} {
		b := ir.NewBuilder(name)
		b.Declare(marker.DefaultIntrinsic)
		dispatch(b.Func("main").Block("entry"), "_ZTV1A", "_ZTV1A", "f", nil)
		modules = append(modules, b.Build())
	}

	fsys := afero.NewMemMapFs()
	a := NewAnalyzer(cha.Static{"_ZTV1A": {"_ZTV1B"}}, snapshot.NewWriter(fsys, nil), AnalyzerOptions{Jobs: 1})
	results, err := a.Analyze(context.Background(), modules)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Results follow input order and pseudo-locations are unique across modules.
	seen := make(map[ir.Location]bool)
	for i, res := range results {
		require.Equal(t, modules[i].Name, res.Module)
		require.Len(t, res.CallSites, 1)
		loc := res.CallSites[0].Location
		require.False(t, seen[loc], "location %s reused", loc)
		seen[loc] = true
		require.Equal(t, []string{"_ZTV1A", "_ZTV1B"}, res.Hierarchies["_ZTV1A"])
	}

	for _, name := range []string{"_SD_CallSites0", "_SD_CallSites1", "_SD_CallSites2"} {
		exists, err := afero.Exists(fsys, name)
		require.NoError(t, err)
		require.True(t, exists, name)
	}
}

func TestAnalyzer_StopsOnFatalModule(t *testing.T) {
	b := ir.NewBuilder("bad.ll")
	b.Declare(marker.DefaultIntrinsic)
	bb := b.Func("main").Block("entry")
	m := bb.Call(ir.Func(marker.DefaultIntrinsic))
	bb.Call(ir.Ref(m))

	_, err := NewAnalyzer(nil, nil, AnalyzerOptions{}).Analyze(context.Background(), []*ir.Module{b.Build()})
	require.ErrorIs(t, err, marker.ErrMalformedMetadata)
	require.Contains(t, err.Error(), "bad.ll")
}

func TestAnalyzer_Canceled(t *testing.T) {
	b := ir.NewBuilder("a.ll")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAnalyzer(nil, nil, AnalyzerOptions{}).Analyze(ctx, []*ir.Module{b.Build()})
	require.ErrorIs(t, err, context.Canceled)
}

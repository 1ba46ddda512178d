package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func readFile(t *testing.T, fsys afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fsys, name)
	require.NoError(t, err)
	return string(data)
}

func TestArtifact_Base(t *testing.T) {
	require.Equal(t, "_SD_CallSites", Artifact{Name: "_SD_CallSites.txt"}.Base())
	require.Equal(t, "plain", Artifact{Name: "plain"}.Base())
}

func TestWriter_AccumulatesNumberedCopies(t *testing.T) {
	fsys := afero.NewMemMapFs()
	w := NewWriter(fsys, nil)

	first, err := w.Write(Artifact{Name: "_SD_CallSites.txt", Lines: []string{"a.cpp:1:1,_ZTV1A,_ZTV1A,foo"}})
	require.NoError(t, err)
	require.Equal(t, Saved{Working: "_SD_CallSites.txt", Backup: "_SD_CallSites0", Index: 0, Lines: 1}, first)

	second, err := w.Write(Artifact{Name: "_SD_CallSites.txt", Lines: []string{"b.cpp:2:2,_ZTV1B,_ZTV1B,bar", "c.cpp:3:3,_ZTV1C,_ZTV1C,baz"}})
	require.NoError(t, err)
	require.Equal(t, "_SD_CallSites1", second.Backup)
	require.Equal(t, 1, second.Index)

	// The working file only reflects the latest run; the copies keep history.
	require.Equal(t, "b.cpp:2:2,_ZTV1B,_ZTV1B,bar\nc.cpp:3:3,_ZTV1C,_ZTV1C,baz\n", readFile(t, fsys, "_SD_CallSites.txt"))
	require.Equal(t, "a.cpp:1:1,_ZTV1A,_ZTV1A,foo\n", readFile(t, fsys, "_SD_CallSites0"))
	require.Equal(t, readFile(t, fsys, "_SD_CallSites.txt"), readFile(t, fsys, "_SD_CallSites1"))
}

func TestWriter_SkipsExistingIndexes(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "_SD_ClassHierarchy0", []byte("old\n"), filePerm))
	require.NoError(t, afero.WriteFile(fsys, "_SD_ClassHierarchy1", []byte("older\n"), filePerm))

	s, err := NewWriter(fsys, nil).Write(Artifact{Name: "_SD_ClassHierarchy.txt"})
	require.NoError(t, err)
	require.Equal(t, "_SD_ClassHierarchy2", s.Backup)
	require.Equal(t, "old\n", readFile(t, fsys, "_SD_ClassHierarchy0"), "existing copies are never overwritten")
	require.Empty(t, readFile(t, fsys, "_SD_ClassHierarchy2"))
}

func TestWriter_Persist(t *testing.T) {
	fsys := afero.NewMemMapFs()
	saved, err := NewWriter(fsys, nil).Persist("m.ll",
		Artifact{Name: "a.txt", Lines: []string{"1"}},
		Artifact{Name: "b.txt", Lines: []string{"2", "3"}},
	)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	require.Equal(t, "a0", saved[0].Backup)
	require.Equal(t, "b0", saved[1].Backup)
	require.Equal(t, "2\n3\n", readFile(t, fsys, "b0"))
}

func TestWriter_PersistReportsAllFailures(t *testing.T) {
	fsys := afero.NewReadOnlyFs(afero.NewMemMapFs())
	saved, err := NewWriter(fsys, nil).Persist("m.ll",
		Artifact{Name: "a.txt"},
		Artifact{Name: "b.txt"},
	)
	require.Error(t, err)
	require.Empty(t, saved)
	require.Contains(t, err.Error(), "a.txt")
	require.Contains(t, err.Error(), "b.txt")
}

func TestDirWriter_ConcurrentRunsClaimDistinctCopies(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewDirWriter(dir, nil)
	require.NoError(t, err)

	const runs = 16
	backups := make([]string, runs)
	var g errgroup.Group
	for i := range runs {
		g.Go(func() error {
			s, err := w.Write(Artifact{Name: "_SD_CallSites.txt", Lines: []string{fmt.Sprintf("run%d", i)}})
			if err != nil {
				return err
			}
			backups[i] = s.Backup
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Strings(backups)
	for i := 1; i < runs; i++ {
		require.NotEqual(t, backups[i-1], backups[i], "two runs claimed %s", backups[i])
	}
	for i := range runs {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("_SD_CallSites%d", i)))
		require.NoError(t, err)
	}
}

func TestDirWriter_ConcurrentRunsKeepWorkingFileWhole(t *testing.T) {
	long := Artifact{Name: "_SD_CallSites.txt", Lines: []string{strings.Repeat("L", 64<<10)}}
	short := Artifact{Name: "_SD_CallSites.txt", Lines: []string{"S"}}
	longData := []byte(long.Lines[0] + "\n")
	shortData := []byte("S\n")

	for iter := range 20 {
		dir := filepath.Join(t.TempDir(), "out")
		w, err := NewDirWriter(dir, nil)
		require.NoError(t, err)

		var g errgroup.Group
		for _, a := range []Artifact{long, short, long, short} {
			g.Go(func() error {
				_, err := w.Write(a)
				return err
			})
		}
		require.NoError(t, g.Wait())

		data, err := os.ReadFile(filepath.Join(dir, "_SD_CallSites.txt"))
		require.NoError(t, err)
		require.True(t, bytes.Equal(data, longData) || bytes.Equal(data, shortData),
			"iteration %d: working file mixes runs: len=%d", iter, len(data))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			require.NotContains(t, e.Name(), ".tmp", "temporary file left behind")
		}
	}
}

var errDiskFull = errors.New("disk full")

// shortWriteFs fails every write into an exclusively created file.
type shortWriteFs struct {
	afero.Fs
}

func (f shortWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || flag&os.O_EXCL == 0 || strings.Contains(name, ".tmp") {
		return file, err
	}
	return failingFile{File: file}, nil
}

type failingFile struct {
	afero.File
}

func (failingFile) Write([]byte) (int, error) {
	return 0, errDiskFull
}

func TestWriter_FailedCopyIsRemoved(t *testing.T) {
	mem := afero.NewMemMapFs()
	_, err := NewWriter(shortWriteFs{Fs: mem}, nil).Write(Artifact{Name: "_SD_CallSites.txt", Lines: []string{"x"}})
	require.ErrorIs(t, err, errDiskFull)

	exists, err := afero.Exists(mem, "_SD_CallSites0")
	require.NoError(t, err)
	require.False(t, exists, "a partially written copy must not stay behind")
	require.Equal(t, "x\n", readFile(t, mem, "_SD_CallSites.txt"))
}

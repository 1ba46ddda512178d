// Package snapshot persists analysis artifacts as a working file plus an
// immutable numbered copy, so that repeated compiler invocations in the same
// directory accumulate history instead of overwriting it.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

const filePerm = 0o644

// Artifact is one line-oriented output stream.
type Artifact struct {
	// Name is the working file name, e.g. "_SD_CallSites.txt". Numbered copies
	// use the name without its extension as base.
	Name  string
	Lines []string
}

// Base returns the prefix of numbered copies of the artifact.
func (a Artifact) Base() string {
	return strings.TrimSuffix(a.Name, filepath.Ext(a.Name))
}

// Saved describes a persisted artifact.
type Saved struct {
	Working string // working file, overwritten by every run
	Backup  string // numbered copy claimed by this run
	Index   int
	Lines   int
}

// Writer writes artifacts into a filesystem.
type Writer struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewWriter creates a writer on top of fsys.
func NewWriter(fsys afero.Fs, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{fs: fsys, logger: logger}
}

// NewDirWriter creates a writer for the directory dir on the OS filesystem.
func NewDirWriter(dir string, logger *slog.Logger) (*Writer, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving output directory: %w", err)
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return NewWriter(afero.NewBasePathFs(osFs, abs), logger), nil
}

// Persist writes every artifact. A failing artifact does not prevent the
// others from being written; all failures are returned together.
func (w *Writer) Persist(module string, artifacts ...Artifact) ([]Saved, error) {
	var (
		saved []Saved
		errs  error
	)
	for _, a := range artifacts {
		s, err := w.Write(a)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("module %s: %w", module, err))
			continue
		}
		w.logger.Info("stored artifact", "module", module,
			"file", s.Working, "backup", s.Backup, "lines", s.Lines)
		saved = append(saved, s)
	}
	return saved, errs
}

// Write replaces the working file of a and claims the next free numbered copy
// holding the same bytes.
func (w *Writer) Write(a Artifact) (Saved, error) {
	var buf bytes.Buffer
	for _, line := range a.Lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	data := buf.Bytes()

	if err := w.replace(a.Name, data); err != nil {
		return Saved{}, err
	}

	backup, idx, err := w.claim(a.Base(), data)
	if err != nil {
		return Saved{}, err
	}
	return Saved{Working: a.Name, Backup: backup, Index: idx, Lines: len(a.Lines)}, nil
}

// replace writes data to a temporary file next to name and renames it over
// name, so concurrent runs never interleave their bytes in the working file.
func (w *Writer) replace(name string, data []byte) error {
	tmp, err := afero.TempFile(w.fs, ".", name+".tmp*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := multierr.Combine(werr, cerr); err != nil {
		_ = w.fs.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := w.fs.Chmod(tmp.Name(), filePerm); err != nil {
		_ = w.fs.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := w.fs.Rename(tmp.Name(), name); err != nil {
		_ = w.fs.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// claim creates base0, base1, ... with exclusive-create semantics until one
// succeeds, then writes data into it. Concurrent writers therefore never share
// or overwrite a numbered copy.
func (w *Writer) claim(base string, data []byte) (string, int, error) {
	for idx := 0; ; idx++ {
		name := base + strconv.Itoa(idx)
		f, err := w.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err != nil {
			if errors.Is(err, fs.ErrExist) || os.IsExist(err) {
				continue
			}
			return "", 0, fmt.Errorf("creating %s: %w", name, err)
		}
		_, werr := f.Write(data)
		cerr := f.Close()
		if err := multierr.Combine(werr, cerr); err != nil {
			// A partial copy must not be mistaken for a complete one.
			err = multierr.Append(err, w.fs.Remove(name))
			return "", 0, fmt.Errorf("writing %s: %w", name, err)
		}
		return name, idx, nil
	}
}

package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrOutsideRoot is returned for report paths that resolve outside the store root.
var ErrOutsideRoot = errors.New("report path outside store root")

// ReportStore keeps rendered run reports on disk, one directory per run.
// Paths handed out are slash separated and relative to the root.
type ReportStore struct {
	root string
}

// NewReportStore creates root if needed.
func NewReportStore(root string) (*ReportStore, error) {
	if root == "" {
		root = "./exports"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve report root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create report root: %w", err)
	}
	return &ReportStore{root: abs}, nil
}

// Save writes data as <runID>/<name>. The file appears under its final name only once fully written.
func (s *ReportStore) Save(runID, name string, data []byte) (string, error) {
	if runID == "" || name == "" || strings.ContainsAny(runID+name, `/\`) {
		return "", fmt.Errorf("save report %q/%q: %w", runID, name, ErrOutsideRoot)
	}
	rel := path.Join(runID, name)
	full, err := s.Locate(rel)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare run directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("create report file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           //nolint:errcheck
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("close report file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("chmod report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("publish report file: %w", err)
	}
	return rel, nil
}

// Open returns a read-only handle for a stored report.
func (s *ReportStore) Open(rel string) (*os.File, error) {
	full, err := s.Locate(rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	return file, nil
}

// Locate maps a relative report path to its location on disk.
func (s *ReportStore) Locate(rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("locate %q: %w", rel, ErrOutsideRoot)
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("locate %q: %w", rel, ErrOutsideRoot)
	}
	return full, nil
}

// Prune deletes reports last modified more than maxAge ago and removes run directories
// left empty. It returns the relative paths it deleted.
func (s *ReportStore) Prune(maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge)
	runs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list report runs: %w", err)
	}

	var removed []string
	for _, run := range runs {
		if !run.IsDir() {
			continue
		}
		dir := filepath.Join(s.root, run.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("list reports of run %s: %w", run.Name(), err)
		}
		kept := 0
		for _, f := range files {
			info, err := f.Info()
			if err != nil {
				return removed, fmt.Errorf("stat report %s: %w", f.Name(), err)
			}
			if f.IsDir() || info.ModTime().After(cutoff) {
				kept++
				continue
			}
			if err := os.Remove(filepath.Join(dir, f.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, fmt.Errorf("remove report %s: %w", f.Name(), err)
			}
			if !strings.HasPrefix(f.Name(), ".report-") {
				removed = append(removed, path.Join(run.Name(), f.Name()))
			}
		}
		if kept == 0 {
			os.Remove(dir) //nolint:errcheck
		}
	}
	return removed, nil
}

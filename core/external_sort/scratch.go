package externalsort

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const scratchPrefix = "gojosort-"

// scratchArea is the private directory of one sort invocation. It tracks the
// run files it hands out so Release can remove whatever a failed sort left.
type scratchArea struct {
	dir    string
	files  map[string]struct{}
	logger *zap.Logger
}

// newScratchArea creates a fresh, uniquely named directory under root.
func newScratchArea(root string, logger *zap.Logger) (*scratchArea, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, scratchPrefix+uuid.New().String())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating scratch directory %s: %w", dir, err)
	}
	logger.Debug("Created scratch area", zap.String("dir", dir))
	return &scratchArea{
		dir:    dir,
		files:  make(map[string]struct{}),
		logger: logger,
	}, nil
}

func (a *scratchArea) Dir() string { return a.dir }

// runPath names the batch-th output of a round. Round 0 holds the split chunks.
func (a *scratchArea) runPath(round, batch int) string {
	path := filepath.Join(a.dir, fmt.Sprintf("run-%d-%d.db", round, batch))
	a.files[path] = struct{}{}
	return path
}

// remove deletes a run file handed out by runPath.
func (a *scratchArea) remove(path string) error {
	delete(a.files, path)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing scratch file %s: %w", path, err)
	}
	return nil
}

// Release removes every run file still tracked and then the directory
// itself. The directory must be empty at that point; anything else placed
// in it makes Release fail.
func (a *scratchArea) Release() error {
	paths := make([]string, 0, len(a.files))
	for path := range a.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var errs error
	for _, path := range paths {
		errs = multierr.Append(errs, a.remove(path))
	}
	if err := os.Remove(a.dir); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("removing scratch directory %s: %w", a.dir, err))
	}
	if errs == nil {
		a.logger.Debug("Released scratch area", zap.String("dir", a.dir))
	}
	return errs
}

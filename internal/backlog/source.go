// Package backlog resolves which queue file is active and where its dispatch
// history is recorded.
package backlog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultHistoryFile is the history file name used in both modes.
	DefaultHistoryFile = "qrun_history.log"
	// DefaultExtension is the suffix that marks a backlog in directory mode.
	DefaultExtension = ".bl"
)

// ConfigError reports that the configured backlog target does not exist.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("backlog target %q does not exist: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Location is a resolved backlog together with the history file its
// dispatches are appended to.
type Location struct {
	Queue   string
	History string
}

// Options tune file naming. Zero values select the defaults.
type Options struct {
	HistoryFile string
	Extension   string
}

// Source resolves the active backlog for a file or directory target. It is
// used from the control loop only and is not safe for concurrent use.
type Source struct {
	root        string
	dir         bool
	historyFile string
	extension   string

	// active is the backlog picked by the last directory scan; it stays
	// selected for as long as it exists.
	active string
}

// NewSource inspects target once to decide between file and directory mode.
// A missing target yields a *ConfigError.
func NewSource(target string, opts Options) (*Source, error) {
	if target == "" {
		return nil, &ConfigError{Path: target, Err: errors.New("path is empty")}
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, &ConfigError{Path: target, Err: err}
	}

	s := &Source{
		root:        target,
		dir:         info.IsDir(),
		historyFile: opts.HistoryFile,
		extension:   opts.Extension,
	}
	if s.historyFile == "" {
		s.historyFile = DefaultHistoryFile
	}
	if s.extension == "" {
		s.extension = DefaultExtension
	}
	return s, nil
}

// Root returns the configured target.
func (s *Source) Root() string { return s.root }

// IsDir reports whether the source watches a directory.
func (s *Source) IsDir() bool { return s.dir }

// Dir returns the directory that holds backlogs and the history file.
func (s *Source) Dir() string {
	if s.dir {
		return s.root
	}
	return filepath.Dir(s.root)
}

// Locate returns the backlog to work on now. In file mode the configured file
// is returned whether or not it exists. In directory mode the first entry with
// the backlog extension is returned; ok is false when there is none.
func (s *Source) Locate() (Location, bool, error) {
	if !s.dir {
		return Location{
			Queue:   s.root,
			History: filepath.Join(filepath.Dir(s.root), s.historyFile),
		}, true, nil
	}

	history := filepath.Join(s.root, s.historyFile)

	if s.active != "" {
		if info, err := os.Stat(s.active); err == nil && info.Mode().IsRegular() {
			return Location{Queue: s.active, History: history}, true, nil
		}
		s.active = ""
	}

	name, err := s.scan()
	if err != nil {
		return Location{}, false, err
	}
	if name == "" {
		return Location{}, false, nil
	}
	s.active = filepath.Join(s.root, name)
	return Location{Queue: s.active, History: history}, true, nil
}

// scan walks the directory in whatever order the filesystem yields entries.
func (s *Source) scan() (string, error) {
	d, err := os.Open(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &ConfigError{Path: s.root, Err: err}
		}
		return "", fmt.Errorf("open backlog directory: %w", err)
	}
	defer d.Close()

	entries, err := d.ReadDir(-1)
	if err != nil {
		return "", fmt.Errorf("read backlog directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || entry.Name() == s.historyFile {
			continue
		}
		if strings.HasSuffix(entry.Name(), s.extension) {
			return entry.Name(), nil
		}
	}
	return "", nil
}

// Remove deletes a drained backlog. A file that is already gone is fine.
func (s *Source) Remove(loc Location) error {
	if err := os.Remove(loc.Queue); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove backlog: %w", err)
	}
	if loc.Queue == s.active {
		s.active = ""
	}
	return nil
}

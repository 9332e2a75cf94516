package definition

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/mockfleet/pkg/logging"
)

// Store loads service definitions from a directory tree.
type Store struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	files map[string]time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for lint warnings.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// LoadResult is the outcome of one directory scan. Errors are per file;
// the definitions that did load are usable regardless.
type LoadResult struct {
	Definitions []*ServiceDefinition
	Errors      []*LoadError
}

// FailedPaths returns the paths of files that did not load.
func (r *LoadResult) FailedPaths() []string {
	paths := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		paths = append(paths, e.Path)
	}
	return paths
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:    dir,
		logger: logging.Nop(),
		files:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory the store reads.
func (s *Store) Dir() string { return s.dir }

// Load parses every *.yaml and *.yml file below the directory. Only a
// missing or unreadable directory is a hard error.
func (s *Store) Load() (*LoadResult, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("definitions directory not found: %s", s.dir)
		}
		return nil, fmt.Errorf("access definitions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", s.dir)
	}

	files, err := s.find()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.dir, err)
	}

	result := &LoadResult{}
	owners := make(map[string]string)
	mtimes := make(map[string]time.Time, len(files))

	for _, file := range files {
		if st, err := os.Stat(file); err == nil {
			mtimes[file] = st.ModTime()
		}

		def, err := LoadFile(file)
		if err != nil {
			result.Errors = append(result.Errors, &LoadError{Path: file, Err: err})
			continue
		}
		if first, dup := owners[def.Name]; dup {
			result.Errors = append(result.Errors, &LoadError{
				Path: file,
				Err:  fmt.Errorf("duplicate service name %q (already defined in %s)", def.Name, first),
			})
			continue
		}
		owners[def.Name] = file

		for _, w := range Lint(def) {
			s.logger.Warn("definition warning", "service", def.Name, "path", file, "warning", w)
		}
		result.Definitions = append(result.Definitions, def)
	}

	s.mu.Lock()
	s.files = mtimes
	s.mu.Unlock()

	return result, nil
}

// Snapshot returns the modification times recorded by the last Load.
func (s *Store) Snapshot() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.files))
	for k, v := range s.files {
		out[k] = v
	}
	return out
}

// Scan returns the current modification times of all definition files
// without parsing them.
func (s *Store) Scan() (map[string]time.Time, error) {
	files, err := s.find()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(files))
	for _, file := range files {
		if st, err := os.Stat(file); err == nil {
			out[file] = st.ModTime()
		}
	}
	return out, nil
}

func (s *Store) find() ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(s.dir), "**/*.{yaml,yml}", doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Join(s.dir, filepath.FromSlash(m)))
	}
	sort.Strings(files)
	return files, nil
}

// IsDefinitionFile reports whether a path looks like a definition file.
func IsDefinitionFile(path string) bool {
	ok, _ := doublestar.Match("*.{yaml,yml}", filepath.Base(path))
	return ok
}


package configstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"audiblezenbot/pkg/logging"
)

const (
	// DefaultDir is the config directory relative to the working directory.
	DefaultDir = ".audiblezenbot"

	// DefaultFile is the config file name inside DefaultDir.
	DefaultFile = "config.json"

	dirPerm  = fs.FileMode(0o700)
	filePerm = fs.FileMode(0o600)
)

// DefaultPath returns ./.audiblezenbot/config.json.
func DefaultPath() string {
	return filepath.Join(DefaultDir, DefaultFile)
}

// LoadStatus describes how Load obtained its document.
type LoadStatus int

const (
	// StatusLoaded means the file was read and parsed.
	StatusLoaded LoadStatus = iota
	// StatusMissing means no file exists; the document is empty.
	StatusMissing
	// StatusUnparsable means the file exists but is not a JSON object;
	// the document is empty and ParseErr holds the reason.
	StatusUnparsable
)

func (s LoadStatus) String() string {
	switch s {
	case StatusLoaded:
		return "loaded"
	case StatusMissing:
		return "missing"
	case StatusUnparsable:
		return "unparsable"
	default:
		return "unknown"
	}
}

// LoadResult is the outcome of Load. Missing and unparsable files are
// recoverable and still yield a usable empty Document; write paths may
// proceed with it, diagnostic tools must check Status.
type LoadResult struct {
	Document *Document
	Status   LoadStatus
	ParseErr error
}

// Recovered reports whether the document was substituted for an unparsable file.
func (r LoadResult) Recovered() bool {
	return r.Status == StatusUnparsable
}

// Load reads the config at path. The returned error is non-nil only for
// failures that leave no usable document, such as permission errors.
func Load(path string) (LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LoadResult{Document: NewDocument(), Status: StatusMissing}, nil
		}
		return LoadResult{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return LoadResult{Document: NewDocument(), Status: StatusUnparsable, ParseErr: err}, nil
	}
	return LoadResult{Document: doc, Status: StatusLoaded}, nil
}

// renameFile is replaced in tests to simulate a crash before the rename.
var renameFile = os.Rename

// Save writes doc to path atomically: the content goes to a temp file in the
// same directory which is synced and then renamed over path. The directory
// is created if needed.
func Save(doc *Document, path string) error {
	data, err := doc.Marshal()
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config: %w", err)
	}

	if err := renameFile(tmpPath, path); err != nil {
		return fmt.Errorf("replacing config %s: %w", path, err)
	}
	committed = true
	return nil
}

// pathLocks serializes read-modify-write cycles per absolute path across
// every Store in the process.
var pathLocks sync.Map // string -> *sync.Mutex

func lockFor(path string) *sync.Mutex {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	m, _ := pathLocks.LoadOrStore(abs, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Store performs serialized load-modify-save cycles on one config file.
type Store struct {
	path string
	mu   *sync.Mutex
}

// NewStore returns a store for the config at path.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path, mu: lockFor(path)}
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current document without holding the write lock.
func (s *Store) Load() (LoadResult, error) {
	return Load(s.path)
}

// Update loads the document, applies fn and saves the result, holding the
// path lock for the whole cycle so concurrent updates cannot lose each
// other's changes. An unparsable file is replaced by an empty document and
// a warning is logged. If fn returns an error nothing is written.
func (s *Store) Update(fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := Load(s.path)
	if err != nil {
		return err
	}
	if res.Recovered() {
		logging.WarnErr("ConfigStore", res.ParseErr, "Config at %s is unparsable, starting from an empty document", s.path)
	}

	if err := fn(res.Document); err != nil {
		return err
	}

	if err := Save(res.Document, s.path); err != nil {
		return err
	}
	logging.Debug("ConfigStore", "Saved config to %s", s.path)
	return nil
}

// MergePlatform merges fields into platforms[platformID] and saves.
func (s *Store) MergePlatform(platformID string, fields map[string]any) error {
	return s.Update(func(doc *Document) error {
		doc.Merge(platformID, fields)
		return nil
	})
}

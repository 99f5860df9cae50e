package fixture

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// ErrCorrupt is returned when the fixture file is not a JSON object of strings.
var ErrCorrupt = errors.New("corrupt fixture file")

// Entries maps a serialized conversation to the serialized conversation with
// the backend's reply appended.
type Entries map[string]string

// Store persists Entries as a single JSON document. It holds no state between
// calls: every Load reads the file again and every Save rewrites it whole.
type Store struct {
	path string
}

// New creates a Store for the fixture file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the fixture file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the fixture file. A missing file yields an empty map.
func (s *Store) Load() (Entries, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entries{}, nil
		}
		return nil, errors.Wrapf(err, "read fixture %s", s.path)
	}

	entries := Entries{}
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "%s: %v", s.path, err)
	}
	if entries == nil {
		return nil, errors.Wrapf(ErrCorrupt, "%s: top-level value is not an object", s.path)
	}
	return entries, nil
}

// Save replaces the fixture file with entries. The document is written to a
// temporary file next to the target and renamed over it, so a failed write
// leaves the previous fixture in place.
func (s *Store) Save(entries Entries) error {
	if entries == nil {
		entries = Entries{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// Encode terminates the document with a newline.
	if err := enc.Encode(entries); err != nil {
		return errors.Wrap(err, "encode fixture")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create fixture dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp fixture")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp fixture")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp fixture")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp fixture")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrap(err, "chmod temp fixture")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "replace fixture %s", s.path)
	}
	return nil
}

package replay

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCacheOnly is returned when a lookup misses and no backend is available
// to answer it.
var ErrCacheOnly = errors.New("cache miss with no backend available")

// MalformedEntryError reports a fixture entry that cannot be decoded or that
// breaks the one-reply-longer invariant.
type MalformedEntryError struct {
	Key string
	Err error
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("malformed cache entry %s: %v", abbreviate(e.Key), e.Err)
}

func (e *MalformedEntryError) Unwrap() error { return e.Err }

// PersistenceError reports a failed load or rewrite of the fixture file.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist cache %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// abbreviate shortens long keys for error messages and logs.
func abbreviate(key string) string {
	const limit = 120
	if len(key) <= limit {
		return fmt.Sprintf("%q", key)
	}
	return fmt.Sprintf("%q... (%d bytes)", key[:limit], len(key))
}

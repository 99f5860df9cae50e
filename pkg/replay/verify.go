package replay

import (
	"sort"

	"github.com/pario-ai/replay/pkg/cache/fixture"
	"github.com/pario-ai/replay/pkg/models"
	"github.com/pario-ai/replay/pkg/serializer"
)

// Entry is a decoded fixture entry.
type Entry struct {
	Key    string
	Prompt models.Conversation
	Result models.Conversation
	// Err is set when the entry could not be decoded or breaks the invariants.
	Err error
}

// Entries decodes every entry of store, sorted by key.
func Entries(store *fixture.Store) ([]Entry, error) {
	raw, err := store.Load()
	if err != nil {
		return nil, &PersistenceError{Path: store.Path(), Err: err}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e := Entry{Key: k}
		e.Prompt, e.Err = serializer.Deserialize(k)
		if e.Err != nil {
			e.Err = &MalformedEntryError{Key: k, Err: e.Err}
		} else {
			e.Result, e.Err = decodeEntry(k, raw[k], e.Prompt)
		}
		out = append(out, e)
	}
	return out, nil
}

// Verify reports every entry of store that cannot be replayed.
func Verify(store *fixture.Store) ([]models.EntryIssue, error) {
	entries, err := Entries(store)
	if err != nil {
		return nil, err
	}
	var issues []models.EntryIssue
	for _, e := range entries {
		if e.Err != nil {
			issues = append(issues, models.EntryIssue{Key: e.Key, Reason: e.Err.Error()})
		}
	}
	return issues, nil
}

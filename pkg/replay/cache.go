// Package replay implements a write-through fixture cache in front of a chat
// backend. A conversation step is looked up by its serialized history; hits
// are replayed from the fixture file and misses are answered by the backend,
// recorded, and persisted before returning.
//
// The cache is meant for a single test process. The fixture file is re-read
// on every step and rewritten whole on every miss, without locking.
package replay

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pario-ai/replay/pkg/backend"
	"github.com/pario-ai/replay/pkg/cache/fixture"
	"github.com/pario-ai/replay/pkg/models"
	"github.com/pario-ai/replay/pkg/prompt"
	"github.com/pario-ai/replay/pkg/serializer"
)

// UsageLog accounts for the tokens and cost of live backend calls.
type UsageLog interface {
	Update(ctx context.Context, messages []models.Message, reply models.Content, stepName string) error
	Cost() float64
}

// Mode tells whether misses can be answered.
type Mode int

const (
	// ModeLive answers misses with the backend.
	ModeLive Mode = iota
	// ModeCacheOnly serves hits and fails every miss.
	ModeCacheOnly
)

func (m Mode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "cache-only"
}

// Config configures a Cache.
type Config struct {
	// Path is the fixture file.
	Path string
	// Backend answers misses. Nil puts the cache in ModeCacheOnly.
	Backend backend.Backend
	// Usage is optional.
	Usage  UsageLog
	Logger zerolog.Logger
}

// Availability is the outcome of trying to construct a backend.
type Availability struct {
	Backend backend.Backend
	Err     error
}

// Available reports whether a backend was constructed.
func (a Availability) Available() bool {
	return a.Err == nil && a.Backend != nil
}

// Connect runs factory and captures its outcome.
func Connect(factory func() (backend.Backend, error)) Availability {
	b, err := factory()
	if err != nil {
		return Availability{Err: err}
	}
	if b == nil {
		return Availability{Err: backend.ErrUnavailable}
	}
	return Availability{Backend: b}
}

// Cache is the replay cache. Create it with New or NewWithAvailability.
type Cache struct {
	store       *fixture.Store
	backend     backend.Backend
	unavailable error
	usage       UsageLog
	logger      zerolog.Logger

	hits   int64
	misses int64
}

// New creates a Cache from cfg.
func New(cfg Config) *Cache {
	return &Cache{
		store:   fixture.New(cfg.Path),
		backend: cfg.Backend,
		usage:   cfg.Usage,
		logger:  cfg.Logger.With().Str("component", "replay").Str("fixture", cfg.Path).Logger(),
	}
}

// NewWithAvailability creates a Cache whose backend comes from avail. A failed
// construction is logged and the cache falls back to ModeCacheOnly.
func NewWithAvailability(cfg Config, avail Availability) *Cache {
	cfg.Backend = nil
	if avail.Available() {
		cfg.Backend = avail.Backend
	}
	c := New(cfg)
	if !avail.Available() {
		c.unavailable = avail.Err
		c.logger.Warn().Err(avail.Err).Msg("backend unavailable, serving cached responses only")
	}
	return c
}

// Mode reports whether misses can be answered.
func (c *Cache) Mode() Mode {
	if c.backend == nil {
		return ModeCacheOnly
	}
	return ModeLive
}

// Advance appends p (if non-nil) to conv as a human message and returns the
// conversation extended by the backend's reply, replayed from the fixture
// when possible. stepName attributes usage and is not part of the key.
// conv is never modified.
func (c *Cache) Advance(ctx context.Context, conv models.Conversation, p prompt.Renderer, stepName string) (models.Conversation, error) {
	msgs := conv.Clone()
	if p != nil {
		msgs = msgs.Append(models.NewMessage(models.RoleHuman, p.Content()))
	}

	entries, err := c.store.Load()
	if err != nil {
		return nil, &PersistenceError{Path: c.store.Path(), Err: err}
	}

	key, err := serializer.Serialize(msgs)
	if err != nil {
		return nil, errors.Wrapf(err, "step %q: serialize conversation", stepName)
	}

	if value, ok := entries[key]; ok {
		out, err := decodeEntry(key, value, msgs)
		if err != nil {
			return nil, err
		}
		c.hits++
		c.logger.Debug().Str("step", stepName).Int("messages", len(out)).Msg("cache hit")
		return out, nil
	}

	c.misses++
	if c.backend == nil {
		err := errors.Wrapf(ErrCacheOnly, "step %q", stepName)
		if c.unavailable != nil {
			err = errors.Wrapf(err, "backend construction failed: %v", c.unavailable)
		}
		return nil, err
	}

	c.logger.Info().Str("step", stepName).Int("messages", len(msgs)).Msg("cache miss, calling backend")
	reply, err := c.backend.Invoke(ctx, msgs)
	if err != nil {
		return nil, errors.Wrapf(err, "step %q: backend", stepName)
	}
	if reply.Role != models.RoleAssistant {
		return nil, errors.Errorf("step %q: backend replied with role %q", stepName, reply.Role)
	}

	if c.usage != nil {
		if err := c.usage.Update(ctx, msgs, reply.Content, stepName); err != nil {
			return nil, errors.Wrapf(err, "step %q: usage", stepName)
		}
		c.logger.Info().Str("step", stepName).Float64("cost_usd", c.usage.Cost()).Msg("backend call recorded")
	}

	out := msgs.Append(reply)
	value, err := serializer.Serialize(out)
	if err != nil {
		return nil, errors.Wrapf(err, "step %q: serialize reply", stepName)
	}
	entries[key] = value
	if err := c.store.Save(entries); err != nil {
		return nil, &PersistenceError{Path: c.store.Path(), Err: err}
	}
	return out, nil
}

// Stats reports the number of stored entries and this process's hit/miss counts.
func (c *Cache) Stats() (models.CacheStats, error) {
	entries, err := c.store.Load()
	if err != nil {
		return models.CacheStats{}, &PersistenceError{Path: c.store.Path(), Err: err}
	}
	return models.CacheStats{
		Entries: int64(len(entries)),
		Hits:    c.hits,
		Misses:  c.misses,
	}, nil
}

// decodeEntry deserializes a stored value and checks it extends prefix by
// exactly one assistant message.
func decodeEntry(key, value string, prefix models.Conversation) (models.Conversation, error) {
	out, err := serializer.Deserialize(value)
	if err != nil {
		return nil, &MalformedEntryError{Key: key, Err: err}
	}
	if err := checkExtends(out, prefix); err != nil {
		return nil, &MalformedEntryError{Key: key, Err: err}
	}
	return out, nil
}

func checkExtends(out, prefix models.Conversation) error {
	if len(out) != len(prefix)+1 {
		return errors.Errorf("stored conversation has %d messages, want %d", len(out), len(prefix)+1)
	}
	if !out.HasPrefix(prefix) {
		return errors.New("stored conversation does not start with the key conversation")
	}
	if last, _ := out.Last(); last.Role != models.RoleAssistant {
		return errors.Errorf("stored reply has role %q, want %q", last.Role, models.RoleAssistant)
	}
	return nil
}

// Package backend provides the chat-completion clients that answer cache
// misses. Retries live here; callers see a single blocking Invoke.
package backend

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pario-ai/replay/pkg/config"
	"github.com/pario-ai/replay/pkg/models"
)

// ErrUnavailable is returned when a backend cannot be constructed.
var ErrUnavailable = errors.New("backend unavailable")

// Backend produces the next assistant message for a conversation.
type Backend interface {
	Invoke(ctx context.Context, messages []models.Message) (models.Message, error)
}

// Func adapts a function to Backend.
type Func func(ctx context.Context, messages []models.Message) (models.Message, error)

// Invoke implements Backend.
func (f Func) Invoke(ctx context.Context, messages []models.Message) (models.Message, error) {
	return f(ctx, messages)
}

// New constructs the backend described by cfg. Missing credentials or an
// unknown type yield an error wrapping ErrUnavailable.
func New(cfg config.BackendConfig, logger zerolog.Logger) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrapf(ErrUnavailable, "%s: missing api key", backendType(cfg))
	}
	if cfg.Model == "" {
		return nil, errors.Wrapf(ErrUnavailable, "%s: missing model", backendType(cfg))
	}

	switch backendType(cfg) {
	case config.BackendOpenAI:
		return NewOpenAI(cfg, logger), nil
	case config.BackendAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, errors.Wrapf(ErrUnavailable, "unknown backend type %q", cfg.Type)
	}
}

func backendType(cfg config.BackendConfig) string {
	if cfg.Type == "" {
		return config.BackendOpenAI
	}
	return cfg.Type
}

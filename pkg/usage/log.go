package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pario-ai/replay/pkg/models"
)

// Token overheads of the chat format: every message is wrapped in a few
// control tokens and the reply is primed with the assistant header.
const (
	tokensPerMessage = 4
	tokensReplyPrime = 2
	tokensPerImage   = 85
)

// Recorder persists usage records.
type Recorder interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// Totals are the cumulative token counts and cost of a Log.
type Totals struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
}

// Log accumulates token usage and cost per conversational step.
type Log struct {
	runID    string
	model    string
	pricing  models.ModelPricing
	counter  Counter
	recorder Recorder
	logger   zerolog.Logger

	records []models.UsageRecord
	totals  Totals
}

// NewLog creates a Log for model. recorder may be nil.
func NewLog(model string, pricing models.ModelPricing, counter Counter, recorder Recorder, logger zerolog.Logger) *Log {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &Log{
		runID:    uuid.NewString(),
		model:    model,
		pricing:  pricing,
		counter:  counter,
		recorder: recorder,
		logger:   logger.With().Str("component", "usage").Logger(),
	}
}

// RunID identifies this log's records in the tracker.
func (l *Log) RunID() string {
	return l.runID
}

// Update records the usage of one backend call attributed to stepName.
func (l *Log) Update(ctx context.Context, messages []models.Message, reply models.Content, stepName string) error {
	promptTokens := l.countMessages(messages)
	completionTokens := l.countContent(reply)

	rec := models.UsageRecord{
		RunID:            l.runID,
		StepName:         stepName,
		Model:            l.model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Cost:             l.pricing.Cost(promptTokens, completionTokens),
		CreatedAt:        time.Now().UTC(),
	}

	if l.recorder != nil {
		if err := l.recorder.Record(ctx, rec); err != nil {
			return errors.Wrapf(err, "record usage for step %q", stepName)
		}
	}

	l.records = append(l.records, rec)
	l.totals.PromptTokens += rec.PromptTokens
	l.totals.CompletionTokens += rec.CompletionTokens
	l.totals.TotalTokens += rec.TotalTokens
	l.totals.Cost += rec.Cost

	l.logger.Debug().
		Str("step", stepName).
		Int("prompt_tokens", rec.PromptTokens).
		Int("completion_tokens", rec.CompletionTokens).
		Float64("cost", rec.Cost).
		Msg("usage updated")
	return nil
}

// Cost returns the cumulative cost in USD.
func (l *Log) Cost() float64 {
	return l.totals.Cost
}

// Totals returns the cumulative counts.
func (l *Log) Totals() Totals {
	return l.totals
}

// Records returns a copy of the per-step records.
func (l *Log) Records() []models.UsageRecord {
	out := make([]models.UsageRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Log) countMessages(messages []models.Message) int {
	n := 0
	for _, m := range messages {
		n += tokensPerMessage + l.countContent(m.Content)
	}
	return n + tokensReplyPrime
}

func (l *Log) countContent(c models.Content) int {
	if !c.IsParts() {
		return l.counter.Count(c.Text)
	}
	n := 0
	for _, p := range c.Parts {
		switch p.Type {
		case models.PartText:
			n += l.counter.Count(p.Text)
		case models.PartImageURL:
			n += tokensPerImage
		}
	}
	return n
}

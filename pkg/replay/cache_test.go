package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/replay/pkg/backend"
	"github.com/pario-ai/replay/pkg/cache/fixture"
	"github.com/pario-ai/replay/pkg/models"
	"github.com/pario-ai/replay/pkg/prompt"
	"github.com/pario-ai/replay/pkg/serializer"
	"github.com/pario-ai/replay/pkg/usage"
)

type stubBackend struct {
	calls int
	reply models.Message
	err   error
	seen  [][]models.Message
}

func (s *stubBackend) Invoke(_ context.Context, msgs []models.Message) (models.Message, error) {
	s.calls++
	s.seen = append(s.seen, msgs)
	return s.reply, s.err
}

type stubUsage struct {
	steps []string
	cost  float64
	err   error
}

func (u *stubUsage) Update(_ context.Context, _ []models.Message, _ models.Content, step string) error {
	if u.err != nil {
		return u.err
	}
	u.steps = append(u.steps, step)
	u.cost += 0.01
	return nil
}

func (u *stubUsage) Cost() float64 { return u.cost }

func fixturePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ai_cache.json")
}

func newTestCache(t *testing.T, path string, b backend.Backend, u UsageLog) *Cache {
	t.Helper()
	return New(Config{Path: path, Backend: b, Usage: u, Logger: zerolog.Nop()})
}

func scenario() models.Conversation {
	return models.Conversation{models.System("Be helpful"), models.Human("2+2?")}
}

func TestScenarioMissThenHit(t *testing.T) {
	path := fixturePath(t)
	b := &stubBackend{reply: models.Assistant("4")}
	u := &stubUsage{}
	c := newTestCache(t, path, b, u)
	ctx := context.Background()

	first, err := c.Advance(ctx, scenario(), nil, "answer")
	require.NoError(t, err)
	assert.Equal(t, 1, b.calls)
	require.Len(t, first, 3)
	last, _ := first.Last()
	assert.True(t, last.Equal(models.Assistant("4")))
	assert.Equal(t, []string{"answer"}, u.steps)

	entries, err := fixture.New(path).Load()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	second, err := c.Advance(ctx, scenario(), nil, "answer")
	require.NoError(t, err)
	assert.Equal(t, 1, b.calls, "hit must not call the backend")
	assert.Equal(t, []string{"answer"}, u.steps, "hit must not update usage")
	assert.True(t, second.Equal(first))

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, models.CacheStats{Entries: 1, Hits: 1, Misses: 1}, stats)
}

func TestIdempotentHit(t *testing.T) {
	path := fixturePath(t)
	b := &stubBackend{reply: models.Assistant("4")}
	c := newTestCache(t, path, b, nil)
	ctx := context.Background()

	want, err := c.Advance(ctx, scenario(), nil, "s")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		got, err := c.Advance(ctx, scenario(), nil, "s")
		require.NoError(t, err)
		assert.True(t, got.Equal(want))
	}
	assert.Equal(t, 1, b.calls)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime(), "hit must not rewrite the fixture")
}

func TestPromptAppendedBeforeKeying(t *testing.T) {
	path := fixturePath(t)
	b := &stubBackend{reply: models.Assistant("4")}
	c := newTestCache(t, path, b, nil)
	ctx := context.Background()

	history := models.Conversation{models.System("Be helpful")}
	out, err := c.Advance(ctx, history, prompt.Text("2+2?"), "s")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, out[1].Equal(models.Human("2+2?")))
	require.Len(t, b.seen, 1)
	assert.Len(t, b.seen[0], 2, "backend sees the prompt but not the reply")

	// The same state reached without a prompt argument is the same key.
	again, err := c.Advance(ctx, scenario(), nil, "other-step")
	require.NoError(t, err)
	assert.Equal(t, 1, b.calls)
	assert.True(t, again.Equal(out))

	key, err := serializer.Serialize(scenario())
	require.NoError(t, err)
	entries, err := fixture.New(path).Load()
	require.NoError(t, err)
	assert.Contains(t, entries, key)
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	b := &stubBackend{reply: models.Assistant("4")}
	c := newTestCache(t, fixturePath(t), b, nil)

	backing := make(models.Conversation, 1, 8)
	backing[0] = models.System("Be helpful")
	_, err := c.Advance(context.Background(), backing, prompt.Text("2+2?"), "s")
	require.NoError(t, err)

	assert.Len(t, backing, 1)
	assert.Equal(t, models.Message{}, backing[:2][1], "input backing array was written")
}

func TestMissExtendsByExactlyOne(t *testing.T) {
	b := &stubBackend{reply: models.Assistant("reply")}
	c := newTestCache(t, fixturePath(t), b, nil)
	ctx := context.Background()

	conv := models.Conversation{}
	var err error
	for i, p := range []string{"one", "two", "three"} {
		before := len(conv)
		conv, err = c.Advance(ctx, conv, prompt.Text(p), "step")
		require.NoError(t, err)
		assert.Len(t, conv, before+2, "turn %d", i)
		last, _ := conv.Last()
		assert.Equal(t, models.RoleAssistant, last.Role)
	}
	assert.Equal(t, 3, b.calls)
}

func TestEmptyConversationNoPrompt(t *testing.T) {
	b := &stubBackend{reply: models.Assistant("hello")}
	c := newTestCache(t, fixturePath(t), b, nil)

	out, err := c.Advance(context.Background(), nil, nil, "s")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.RoleAssistant, out[0].Role)
}

func TestPersistenceVisibleToNewProcess(t *testing.T) {
	path := fixturePath(t)
	ctx := context.Background()
	live := &stubBackend{reply: models.Assistant("4")}
	want, err := newTestCache(t, path, live, nil).Advance(ctx, scenario(), nil, "s")
	require.NoError(t, err)

	// A fresh cache with no backend replays the stored answer.
	fresh := NewWithAvailability(Config{Path: path, Logger: zerolog.Nop()}, Availability{Err: backend.ErrUnavailable})
	assert.Equal(t, ModeCacheOnly, fresh.Mode())
	got, err := fresh.Advance(ctx, scenario(), nil, "s")
	require.NoError(t, err)
	assert.True(t, got.Equal(want))
}

func TestReloadsFixtureOnEveryStep(t *testing.T) {
	path := fixturePath(t)
	ctx := context.Background()
	b := &stubBackend{reply: models.Assistant("live")}
	c := newTestCache(t, path, b, nil)

	// Another writer adds an entry after the cache was created.
	key, err := serializer.Serialize(scenario())
	require.NoError(t, err)
	value, err := serializer.Serialize(scenario().Append(models.Assistant("external")))
	require.NoError(t, err)
	require.NoError(t, fixture.New(path).Save(fixture.Entries{key: value}))

	out, err := c.Advance(ctx, scenario(), nil, "s")
	require.NoError(t, err)
	assert.Equal(t, 0, b.calls)
	last, _ := out.Last()
	assert.Equal(t, "external", last.Content.Text)
}

func TestMissPreservesExistingEntries(t *testing.T) {
	path := fixturePath(t)
	ctx := context.Background()
	b := &stubBackend{reply: models.Assistant("x")}
	c := newTestCache(t, path, b, nil)

	_, err := c.Advance(ctx, nil, prompt.Text("a"), "s")
	require.NoError(t, err)
	_, err = c.Advance(ctx, nil, prompt.Text("b"), "s")
	require.NoError(t, err)

	entries, err := fixture.New(path).Load()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDegradedModeMissFails(t *testing.T) {
	path := fixturePath(t)
	avail := Connect(func() (backend.Backend, error) {
		return nil, errors.Wrap(backend.ErrUnavailable, "missing api key")
	})
	require.False(t, avail.Available())

	c := NewWithAvailability(Config{Path: path, Logger: zerolog.Nop()}, avail)
	assert.Equal(t, ModeCacheOnly, c.Mode())

	out, err := c.Advance(context.Background(), scenario(), nil, "answer")
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrCacheOnly)
	assert.Contains(t, err.Error(), "missing api key")
	assert.Contains(t, err.Error(), `"answer"`)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "degraded miss must not create the fixture")
}

func TestConnect(t *testing.T) {
	b := &stubBackend{}
	avail := Connect(func() (backend.Backend, error) { return b, nil })
	assert.True(t, avail.Available())
	assert.Equal(t, ModeLive, NewWithAvailability(Config{Path: fixturePath(t)}, avail).Mode())

	nilAvail := Connect(func() (backend.Backend, error) { return nil, nil })
	assert.False(t, nilAvail.Available())
	assert.ErrorIs(t, nilAvail.Err, backend.ErrUnavailable)
}

func TestMalformedEntryNamesKey(t *testing.T) {
	path := fixturePath(t)
	key, err := serializer.Serialize(scenario())
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":       `not a conversation`,
		"unknown role":  `[{"role":"robot","content":"4"}]`,
		"too short":     key,
		"wrong prefix":  `[{"role":"system","content":"Be rude"},{"role":"human","content":"2+2?"},{"role":"assistant","content":"4"}]`,
		"reply is user": `[{"role":"system","content":"Be helpful"},{"role":"human","content":"2+2?"},{"role":"human","content":"4"}]`,
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, fixture.New(path).Save(fixture.Entries{key: value}))
			b := &stubBackend{reply: models.Assistant("4")}
			c := newTestCache(t, path, b, nil)

			_, err := c.Advance(context.Background(), scenario(), nil, "s")
			require.Error(t, err)
			var malformed *MalformedEntryError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, key, malformed.Key)
			assert.Equal(t, 0, b.calls, "malformed entries must not be silently refetched")
		})
	}
}

func TestMalformedValueIsSerializerError(t *testing.T) {
	path := fixturePath(t)
	key, err := serializer.Serialize(scenario())
	require.NoError(t, err)
	require.NoError(t, fixture.New(path).Save(fixture.Entries{key: `{oops`}))

	_, err = newTestCache(t, path, nil, nil).Advance(context.Background(), scenario(), nil, "s")
	assert.ErrorIs(t, err, serializer.ErrMalformed)
}

func TestCorruptFixtureIsPersistenceError(t *testing.T) {
	path := fixturePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))
	b := &stubBackend{reply: models.Assistant("4")}

	_, err := newTestCache(t, path, b, nil).Advance(context.Background(), scenario(), nil, "s")
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, path, perr.Path)
	assert.ErrorIs(t, err, fixture.ErrCorrupt)
	assert.Equal(t, 0, b.calls)
}

func TestNullFixtureIsPersistenceError(t *testing.T) {
	path := fixturePath(t)
	require.NoError(t, os.WriteFile(path, []byte("null\n"), 0o644))
	b := &stubBackend{reply: models.Assistant("4")}

	_, err := newTestCache(t, path, b, nil).Advance(context.Background(), scenario(), nil, "s")
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, fixture.ErrCorrupt)
	assert.Equal(t, 0, b.calls)
}

func TestStrayPartFieldsAreRejectedBeforeBackend(t *testing.T) {
	path := fixturePath(t)
	b := &stubBackend{reply: models.Assistant("4")}
	conv := models.Conversation{models.NewMessage(models.RoleHuman, models.PartsContent(models.Part{
		Type: models.PartText, Text: "hi", ImageURL: &models.ImageURL{URL: "https://example.com/cat.png"},
	}))}

	_, err := newTestCache(t, path, b, nil).Advance(context.Background(), conv, nil, "s")
	assert.ErrorIs(t, err, serializer.ErrMalformed)
	assert.Equal(t, 0, b.calls)

	entries, err := fixture.New(path).Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnreadableFixtureIsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0o755))

	b := &stubBackend{reply: models.Assistant("4")}
	_, err := newTestCache(t, path, b, nil).Advance(context.Background(), scenario(), nil, "s")
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
}

func TestBackendErrorPropagates(t *testing.T) {
	path := fixturePath(t)
	u := &stubUsage{}
	b := &stubBackend{err: errors.New("rate limited")}

	_, err := newTestCache(t, path, b, u).Advance(context.Background(), scenario(), nil, "answer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Empty(t, u.steps)

	entries, err := fixture.New(path).Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBackendWrongRoleRejected(t *testing.T) {
	b := &stubBackend{reply: models.Human("I am not the assistant")}
	_, err := newTestCache(t, fixturePath(t), b, nil).Advance(context.Background(), scenario(), nil, "s")
	assert.Error(t, err)
}

func TestUsageErrorPropagates(t *testing.T) {
	path := fixturePath(t)
	b := &stubBackend{reply: models.Assistant("4")}
	u := &stubUsage{err: errors.New("tracker down")}

	_, err := newTestCache(t, path, b, u).Advance(context.Background(), scenario(), nil, "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker down")
}

func TestAdvanceWithUsageLog(t *testing.T) {
	b := &stubBackend{reply: models.Assistant("4")}
	u := usage.NewLog("gpt-4", models.ModelPricing{Model: "gpt-4", PromptCost: 0.03, CompletionCost: 0.06},
		usage.HeuristicCounter{}, nil, zerolog.Nop())
	c := newTestCache(t, fixturePath(t), b, u)
	ctx := context.Background()

	_, err := c.Advance(ctx, scenario(), nil, "answer")
	require.NoError(t, err)
	cost := u.Cost()
	assert.Greater(t, cost, 0.0)

	_, err = c.Advance(ctx, scenario(), nil, "answer")
	require.NoError(t, err)
	assert.Equal(t, cost, u.Cost(), "hits are free")
	require.Len(t, u.Records(), 1)
	assert.Equal(t, "answer", u.Records()[0].StepName)
}

func TestVisionPromptRoundTrips(t *testing.T) {
	path := fixturePath(t)
	b := &stubBackend{reply: models.Assistant("a cat")}
	c := newTestCache(t, path, b, nil)
	ctx := context.Background()
	p := prompt.New("what is this?", "https://example.com/cat.png")

	first, err := c.Advance(ctx, nil, p, "vision")
	require.NoError(t, err)
	second, err := c.Advance(ctx, nil, p, "vision")
	require.NoError(t, err)

	assert.Equal(t, 1, b.calls)
	assert.True(t, first.Equal(second))
	assert.True(t, second[0].Content.IsParts())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "live", ModeLive.String())
	assert.Equal(t, "cache-only", ModeCacheOnly.String())
}

func TestVerifyReportsOnlyBrokenEntries(t *testing.T) {
	path := fixturePath(t)
	b := &stubBackend{reply: models.Assistant("4")}
	_, err := newTestCache(t, path, b, nil).Advance(context.Background(), scenario(), nil, "s")
	require.NoError(t, err)

	store := fixture.New(path)
	entries, err := store.Load()
	require.NoError(t, err)
	entries["not a key"] = "[]"
	require.NoError(t, store.Save(entries))

	issues, err := Verify(store)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "not a key", issues[0].Key)

	all, err := Entries(store)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, e := range all {
		if e.Err == nil {
			assert.Len(t, e.Result, len(e.Prompt)+1)
		}
	}
}

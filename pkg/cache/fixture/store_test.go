package fixture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "ai_cache.json"))
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	s := newTestStore(t)

	entries, err := s.Load()
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	in := Entries{
		`[{"role":"human","content":"hi"}]`: `[{"role":"human","content":"hi"},{"role":"assistant","content":"hello"}]`,
		`[{"role":"human","content":"a"}]`:  `[{"role":"human","content":"a"},{"role":"assistant","content":"b"}]`,
	}
	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSaveTrailingNewlineAndSortedKeys(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(Entries{"b": "2", "a": "1"}))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasSuffix(text, "}\n"), "missing trailing newline: %q", text)
	assert.Less(t, strings.Index(text, `"a"`), strings.Index(text, `"b"`))
}

func TestSaveOverwritesWhole(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(Entries{"a": "1", "b": "2"}))
	require.NoError(t, s.Save(Entries{"c": "3"}))

	out, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Entries{"c": "3"}, out)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(Entries{"a": "1"}))

	files, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "ai_cache.json", files[0].Name())
}

func TestSaveCreatesParentDirs(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested", "dir", "cache.json"))
	require.NoError(t, s.Save(Entries{"a": "1"}))

	out, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "1", out["a"])
}

func TestLoadCorrupt(t *testing.T) {
	s := newTestStore(t)
	for _, content := range []string{"{oops", `["a"]`, `{"a": 1}`} {
		require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))
		_, err := s.Load()
		require.Error(t, err, content)
		assert.ErrorIs(t, err, ErrCorrupt)
	}
}

func TestLoadNull(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("null\n"), 0o644))

	entries, err := s.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Nil(t, entries)
}

func TestLoadEmptyFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("\n"), 0o644))

	entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveFailureKeepsPreviousFixture(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	dir := t.TempDir()
	s := New(filepath.Join(dir, "cache.json"))
	require.NoError(t, s.Save(Entries{"a": "1"}))

	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	require.Error(t, s.Save(Entries{"a": "1", "b": "2"}))

	out, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Entries{"a": "1"}, out)
}

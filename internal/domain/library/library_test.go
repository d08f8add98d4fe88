package library

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
	lib, err := Presets()
	require.NoError(t, err)
	require.NotEmpty(t, lib.Stories)

	for _, s := range lib.Stories {
		assert.NotEmpty(t, s.ID)
		assert.NotEmpty(t, s.Title)
		assert.NotEmpty(t, s.Content)
	}
}

func TestPresetsCoverEveryCategory(t *testing.T) {
	lib, err := Presets()
	require.NoError(t, err)

	c := NewCatalog(lib)
	assert.Len(t, c.Stories(""), 40)
	for _, category := range []string{"fable", "daily", "science", "fun"} {
		assert.Len(t, c.Stories(category), 10, category)
	}
}

func TestCatalogUserFileShadowsPresets(t *testing.T) {
	presets, err := Presets()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `
name: mine
stories:
  - id: f1
    title: "My Lion"
    category: fable
    content: "A different lion."
  - id: x1
    title: "Extra"
    category: fun
    content: "Extra words."
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	user, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mine", user.Name)

	c := NewCatalog(presets, user)

	s, ok := c.Find("f1")
	require.True(t, ok)
	assert.Equal(t, "My Lion", s.Title)

	_, ok = c.Find("x1")
	assert.True(t, ok)

	_, ok = c.Find("missing")
	assert.False(t, ok)

	assert.Len(t, c.Stories(""), len(presets.Stories)+1)
	for _, s := range c.Stories("FUN") {
		assert.Equal(t, "fun", string(s.Category))
	}
}

func TestLoadFileRejectsStoryWithoutContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stories:\n  - id: a\n    title: A\n"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestRandomOnEmptyCatalog(t *testing.T) {
	_, ok := NewCatalog().Random()
	assert.False(t, ok)
}

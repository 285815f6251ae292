package token

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot_token.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestRead(t *testing.T) {
	t.Run("trims whitespace", func(t *testing.T) {
		tok, err := Read(writeFile(t, "  abc.def \n"))
		require.NoError(t, err)
		assert.Equal(t, "abc.def", tok)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Read(filepath.Join(t.TempDir(), "nope.txt"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("blank file", func(t *testing.T) {
		_, err := Read(writeFile(t, " \n\t"))
		assert.ErrorIs(t, err, ErrEmpty)
	})
}

func TestResolve(t *testing.T) {
	path := writeFile(t, "from-file")

	tok, err := Resolve("explicit", path)
	require.NoError(t, err)
	assert.Equal(t, "explicit", tok)

	tok, err = Resolve("", path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", tok)

	tok, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, tok)
}

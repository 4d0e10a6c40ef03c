package textimage_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/book-expert/epaper-book-tools/internal/textimage"
)

type failingResolver struct{ err error }

func (f failingResolver) Resolve(string) ([]byte, error) { return nil, f.err }

func TestFileFontResolver(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fontPath := filepath.Join(dir, "custom.ttf")
	require.NoError(t, os.WriteFile(fontPath, goregular.TTF, 0o600))

	resolver := &textimage.FileFontResolver{SearchDirs: []string{t.TempDir(), dir}}

	t.Run("Bare name is found in a search dir", func(t *testing.T) {
		t.Parallel()

		data, err := resolver.Resolve("custom.ttf")
		require.NoError(t, err)
		assert.Equal(t, goregular.TTF, data)
	})

	t.Run("Full path is used directly", func(t *testing.T) {
		t.Parallel()

		data, err := resolver.Resolve(fontPath)
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	})

	t.Run("Missing font", func(t *testing.T) {
		t.Parallel()

		_, err := resolver.Resolve("arial.ttf")
		require.ErrorIs(t, err, textimage.ErrFontNotFound)
	})

	t.Run("Empty name", func(t *testing.T) {
		t.Parallel()

		_, err := resolver.Resolve("  ")
		require.ErrorIs(t, err, textimage.ErrFontNameRequired)
	})
}

func TestEmbeddedFontResolver(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"goregular", "GoMono.ttf", "gobold"} {
		data, err := textimage.EmbeddedFontResolver{}.Resolve(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, data)
	}

	_, err := textimage.EmbeddedFontResolver{}.Resolve("arial.ttf")
	require.ErrorIs(t, err, textimage.ErrFontNotFound)
}

func TestChainResolver(t *testing.T) {
	t.Parallel()

	notFound := failingResolver{err: textimage.ErrFontNotFound}

	chain := textimage.ChainResolver{notFound, textimage.EmbeddedFontResolver{}}
	data, err := chain.Resolve("goregular")
	require.NoError(t, err)
	assert.Equal(t, goregular.TTF, data)

	_, err = textimage.ChainResolver{notFound}.Resolve("goregular")
	require.ErrorIs(t, err, textimage.ErrFontNotFound)

	broken := errors.New("permission denied")
	_, err = textimage.ChainResolver{failingResolver{err: broken}, notFound}.Resolve("x")
	require.ErrorIs(t, err, broken)
}

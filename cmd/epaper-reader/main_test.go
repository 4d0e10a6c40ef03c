package main

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/epaper-book-tools/internal/pdftext"
	"github.com/book-expert/epaper-book-tools/internal/reader"
	"github.com/book-expert/epaper-book-tools/internal/settings"
	"github.com/book-expert/epaper-book-tools/internal/textimage"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

// writeTestBook stores a small book JSON and returns its path.
func writeTestBook(t *testing.T, pages ...string) string {
	t.Helper()

	book := pdftext.Book{Name: "Sample", Pages: make([]pdftext.PageRecord, 0, len(pages))}
	for i, content := range pages {
		book.Pages = append(book.Pages, pdftext.PageRecord{PageNumber: i + 1, Content: content})
	}

	path, err := pdftext.WriteBook(book, t.TempDir())
	require.NoError(t, err)

	return path
}

func testOptions(t *testing.T, bookPath string) options {
	t.Helper()

	dir := t.TempDir()

	return options{
		bookPath:     bookPath,
		progressFile: filepath.Join(dir, "progress.txt"),
		output:       filepath.Join(dir, "screen.png"),
		layout:       reader.DefaultLayout(),
		workers:      2,
	}
}

func TestMergeConfigAndFlags(t *testing.T) {
	t.Parallel()

	t.Run("Defaults", func(t *testing.T) {
		t.Parallel()

		opts := mergeConfigAndFlags(settings.ReaderConfig{}, flags{})
		assert.Equal(t, "OUTPUT/Beyond-Order.json", opts.bookPath)
		assert.Equal(t, "progress.txt", opts.progressFile)
		assert.Equal(t, "screen.png", opts.output)
		assert.Equal(t, reader.DefaultLayout(), opts.layout)
	})

	t.Run("Config applies and flags win", func(t *testing.T) {
		t.Parallel()

		cfg := settings.ReaderConfig{
			Book:         "books/a.json",
			ProgressFile: "state/progress.txt",
			OutputDir:    "screens",
			Font:         "gobold",
			ScreenWidth:  296,
			ScreenHeight: 128,
			CharsPerLine: 20,
			LineHeight:   12,
			Workers:      3,
			FontSize:     10,
		}

		opts := mergeConfigAndFlags(cfg, flags{bookPath: "b.json", next: true})
		assert.Equal(t, "b.json", opts.bookPath)
		assert.Equal(t, "state/progress.txt", opts.progressFile)
		assert.Equal(t, filepath.Join("screens", "screen.png"), opts.output)
		assert.Equal(t, "gobold", opts.layout.FontName)
		assert.Equal(t, 296, opts.layout.ScreenWidth)
		assert.Equal(t, 128, opts.layout.ScreenHeight)
		assert.Equal(t, 20, opts.layout.CharsPerLine)
		assert.Equal(t, 12, opts.layout.LineHeight)
		assert.InDelta(t, 10.0, opts.layout.FontSize, 0)
		assert.Equal(t, 3, opts.workers)
		assert.True(t, opts.next)
	})
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flgs, err := parseFlags([]string{"-book", "a.json", "-page", "4", "-prev"})
	require.NoError(t, err)
	assert.Equal(t, flags{bookPath: "a.json", page: 4, prev: true}, flgs)

	_, err = parseFlags([]string{"-page", "four"})
	require.Error(t, err)
}

func TestRead_TurnsPagesAndKeepsProgress(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	opts := testOptions(t, writeTestBook(t, "first page", "second page", "third page"))

	var console bytes.Buffer

	require.NoError(t, read(context.Background(), opts, textimage.EmbeddedFontResolver{}, &console, log))
	assert.Equal(t, "Showing page: 1\n", console.String())

	opts.next = true

	for range 3 {
		console.Reset()
		require.NoError(t, read(context.Background(), opts, textimage.EmbeddedFontResolver{}, &console, log))
	}

	assert.Equal(t, "Showing page: 3\n", console.String(), "next stops at the last page")

	saved, err := os.ReadFile(opts.progressFile)
	require.NoError(t, err)
	assert.Equal(t, "2", string(saved))

	opts.next = false
	opts.prev = true

	console.Reset()
	require.NoError(t, read(context.Background(), opts, textimage.EmbeddedFontResolver{}, &console, log))
	assert.Equal(t, "Showing page: 2\n", console.String())

	file, err := os.Open(opts.output)
	require.NoError(t, err)

	defer func() { _ = file.Close() }()

	config, err := png.DecodeConfig(file)
	require.NoError(t, err)
	assert.Equal(t, 480, config.Width)
	assert.Equal(t, 648, config.Height)
}

func TestRead_Seek(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	opts := testOptions(t, writeTestBook(t, "a", "b"))

	var console bytes.Buffer

	opts.page = 2
	require.NoError(t, read(context.Background(), opts, textimage.EmbeddedFontResolver{}, &console, log))
	assert.Equal(t, "Showing page: 2\n", console.String())

	opts.page = 9
	err := read(context.Background(), opts, textimage.EmbeddedFontResolver{}, &console, log)
	require.ErrorIs(t, err, reader.ErrPageOutOfRange)
}

func TestRead_RenderAll(t *testing.T) {
	t.Parallel()

	log := newTestLogger(t)
	opts := testOptions(t, writeTestBook(t, "a", "b", "c"))
	opts.allDir = filepath.Join(t.TempDir(), "pages")
	opts.layout.BufferSize = 2

	var console bytes.Buffer

	require.NoError(t, read(context.Background(), opts, textimage.EmbeddedFontResolver{}, &console, log))
	assert.Equal(t, "Rendered 3 page(s) to "+opts.allDir+"\n", console.String())
	assert.FileExists(t, reader.PagePath(opts.allDir, 2))
	assert.NoFileExists(t, opts.progressFile)
}

func TestRead_MissingBook(t *testing.T) {
	t.Parallel()

	opts := testOptions(t, filepath.Join(t.TempDir(), "missing.json"))

	var console bytes.Buffer

	err := read(context.Background(), opts, textimage.EmbeddedFontResolver{}, &console, newTestLogger(t))
	require.Error(t, err)
	assert.Empty(t, console.String())
	assert.NoFileExists(t, opts.output)
}

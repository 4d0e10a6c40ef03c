package main

import (
	"bytes"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/epaper-book-tools/internal/textimage"
)

// runOn saves img and inspects it, returning the exit code and stdout.
func runOn(t *testing.T, img image.Image) (int, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "screen.png")
	require.NoError(t, textimage.Save(img, path))

	var stdout, stderr bytes.Buffer

	code := run([]string{"inspect-bitmap", path}, &stdout, &stderr)

	return code, stdout.String()
}

func TestRun_BlankBitmap(t *testing.T) {
	t.Parallel()

	img := textimage.Binarize(textimage.NewCanvas(200, 300))

	code, out := runOn(t, img)
	assert.Equal(t, exitCodeBlank, code)
	assert.Equal(t, "200x300 bit-depth=1 colours=1 black=0\n", out)
}

func TestRun_RenderedText(t *testing.T) {
	t.Parallel()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	opts := textimage.DefaultOptions()
	opts.FontName = "goregular"

	img, err := textimage.NewRenderer(textimage.EmbeddedFontResolver{}, log).Render(opts)
	require.NoError(t, err)

	code, out := runOn(t, img)
	assert.Equal(t, exitCodeNotBlank, code)
	assert.Contains(t, out, "200x300 bit-depth=1 colours=2 black=")
}

func TestRun_GreyPixel(t *testing.T) {
	t.Parallel()

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}

	img.SetGray(1, 2, color.Gray{Y: 0x80})
	img.SetGray(3, 3, color.Gray{Y: 0})

	code, out := runOn(t, img)
	assert.Equal(t, exitCodeError, code)
	assert.Equal(t, "4x4 bit-depth=8 colours=3 black=1\n", out)

	_, err := inspect(img)
	require.ErrorIs(t, err, ErrNotBlackAndWhite)
	assert.Contains(t, err.Error(), "(1,2)")
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitCodeError, run([]string{"inspect-bitmap"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), ErrInvalidArguments.Error())

	missing := filepath.Join(t.TempDir(), "missing.png")
	assert.Equal(t, exitCodeError, run([]string{"inspect-bitmap", missing}, &stdout, &stderr))
	assert.Empty(t, stdout.String())

	_, err := pngBitDepth([]byte("GIF89a not a png at all"))
	require.ErrorIs(t, err, ErrNotPNG)

	_, err = inspect(image.NewGray(image.Rect(0, 0, 0, 0)))
	require.ErrorIs(t, err, ErrImageZeroPixels)
}

package main

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/epaper-book-tools/internal/settings"
	"github.com/book-expert/epaper-book-tools/internal/textimage"
)

// TestMergeConfigAndFlags verifies that command-line flags correctly override config file
// settings and that the built-in literals apply when neither is set.
func TestMergeConfigAndFlags(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		cfg      settings.RenderConfig
		flags    flags
		expected textimage.Options
	}{
		{
			name:     "Built-in defaults when nothing is configured",
			cfg:      settings.RenderConfig{},
			flags:    flags{},
			expected: textimage.DefaultOptions(),
		},
		{
			name: "Config values are used when flags are not provided",
			cfg: settings.RenderConfig{
				Text:     "From config",
				Font:     "DejaVuSans.ttf",
				Output:   "config.png",
				Width:    296,
				Height:   128,
				FontSize: 12,
			},
			flags: flags{},
			expected: textimage.Options{
				Text:        "From config",
				FontName:    "DejaVuSans.ttf",
				OutputPath:  "config.png",
				Width:       296,
				Height:      128,
				FontSize:    12,
				OriginX:     10,
				OriginY:     10,
				LineSpacing: 4,
			},
		},
		{
			name: "Flags override config",
			cfg: settings.RenderConfig{
				Text:     "From config",
				Font:     "DejaVuSans.ttf",
				Output:   "config.png",
				Width:    296,
				Height:   128,
				FontSize: 12,
			},
			flags: flags{
				text:     `first\nsecond`,
				font:     "goregular",
				output:   "flag.png",
				width:    480,
				height:   648,
				fontSize: 16,
			},
			expected: textimage.Options{
				Text:        "first\nsecond",
				FontName:    "goregular",
				OutputPath:  "flag.png",
				Width:       480,
				Height:      648,
				FontSize:    16,
				OriginX:     10,
				OriginY:     10,
				LineSpacing: 4,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, mergeConfigAndFlags(tc.cfg, tc.flags))
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flgs, err := parseFlags([]string{"-width", "296", "-height", "128", "-size", "14", "-text", "hi"})
	require.NoError(t, err)
	assert.Equal(t, flags{text: "hi", width: 296, height: 128, fontSize: 14}, flgs)

	_, err = parseFlags([]string{"-width", "wide"})
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	t.Parallel()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	opts := textimage.DefaultOptions()
	opts.FontName = "gomono"
	opts.OutputPath = filepath.Join(t.TempDir(), "text_image.png")

	require.NoError(t, render(opts, textimage.EmbeddedFontResolver{}, log))

	file, err := os.Open(opts.OutputPath)
	require.NoError(t, err)

	defer func() { _ = file.Close() }()

	config, err := png.DecodeConfig(file)
	require.NoError(t, err)
	assert.Equal(t, 200, config.Width)
	assert.Equal(t, 300, config.Height)

	opts.FontName = "arial.ttf"
	opts.OutputPath = filepath.Join(t.TempDir(), "never.png")
	require.ErrorIs(t, render(opts, textimage.EmbeddedFontResolver{}, log), textimage.ErrFontNotFound)
	assert.NoFileExists(t, opts.OutputPath)
}

package textimage

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"

	"github.com/book-expert/logger"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	// ErrInvalidDimensions is returned for a non-positive width or height.
	ErrInvalidDimensions = errors.New("width and height must be positive")
	// ErrInvalidFontSize is returned for a non-positive font size.
	ErrInvalidFontSize = errors.New("font size must be positive")
	// ErrOutputPathRequired is returned when saving without a destination.
	ErrOutputPathRequired = errors.New("output path is required")
)

const (
	// DefaultText is the sample sentence drawn when no text is configured.
	DefaultText       = "This is a sample text to display on an e-ink screen."
	DefaultWidth      = 200
	DefaultHeight     = 300
	DefaultFontSize   = 20
	DefaultFontName   = "arial.ttf"
	DefaultOutputPath = "text_image.png"
	DefaultOrigin     = 10
	// DefaultLineSpacing is the extra gap, in pixels, between consecutive lines.
	DefaultLineSpacing = 4

	fontDPI = 72
	// Gray levels below this become black when the canvas is reduced to 1 bit.
	inkThreshold = 0x80
	fileMode     = 0o644
)

// Palette is the two-colour palette every rendered bitmap uses. White is index 0, so a
// freshly allocated canvas is blank.
var Palette = color.Palette{color.White, color.Black}

// Options describes a single render. Width, Height, FontSize and FontName are required.
// A non-positive OriginX or OriginY falls back to DefaultOrigin and a negative LineSpacing
// to DefaultLineSpacing.
type Options struct {
	Text        string
	FontName    string
	OutputPath  string
	Width       int
	Height      int
	FontSize    float64
	OriginX     int
	OriginY     int
	LineSpacing int
}

// DefaultOptions returns the built-in sample render.
func DefaultOptions() Options {
	return Options{
		Text:        DefaultText,
		FontName:    DefaultFontName,
		OutputPath:  DefaultOutputPath,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		FontSize:    DefaultFontSize,
		OriginX:     DefaultOrigin,
		OriginY:     DefaultOrigin,
		LineSpacing: DefaultLineSpacing,
	}
}

// Renderer draws text with fonts obtained from a FontResolver.
type Renderer struct {
	resolver FontResolver
	log      *logger.Logger
}

// NewRenderer creates a Renderer. A nil resolver means DefaultResolver.
func NewRenderer(resolver FontResolver, log *logger.Logger) *Renderer {
	if resolver == nil {
		resolver = DefaultResolver()
	}

	return &Renderer{
		resolver: resolver,
		log:      log,
	}
}

// LoadFace resolves and parses a font at the given pixel size.
func (renderer *Renderer) LoadFace(name string, size float64) (font.Face, error) {
	if size <= 0 {
		return nil, ErrInvalidFontSize
	}

	data, resolveErr := renderer.resolver.Resolve(name)
	if resolveErr != nil {
		return nil, fmt.Errorf("could not load font: %w", resolveErr)
	}

	parsed, parseErr := opentype.Parse(data)
	if parseErr != nil {
		return nil, fmt.Errorf("could not parse font %s: %w", name, parseErr)
	}

	face, faceErr := opentype.NewFace(parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     fontDPI,
		Hinting: font.HintingFull,
	})
	if faceErr != nil {
		return nil, fmt.Errorf("could not create face for %s: %w", name, faceErr)
	}

	return face, nil
}

// Render draws opts.Text onto a new white 1-bit canvas of exactly Width x Height.
// The font is loaded before the canvas exists, so a missing font fails early.
func (renderer *Renderer) Render(opts Options) (*image.Paletted, error) {
	applyDefaultOptions(&opts)

	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%dx%d: %w", opts.Width, opts.Height, ErrInvalidDimensions)
	}

	face, faceErr := renderer.LoadFace(opts.FontName, opts.FontSize)
	if faceErr != nil {
		return nil, faceErr
	}

	defer func() {
		closeErr := face.Close()
		if closeErr != nil && renderer.log != nil {
			renderer.log.Warn("failed to close font face: %v", closeErr)
		}
	}()

	canvas := NewCanvas(opts.Width, opts.Height)
	DrawText(canvas, face, opts.OriginX, opts.OriginY, opts.LineSpacing, opts.Text)

	return Binarize(canvas), nil
}

func applyDefaultOptions(opts *Options) {
	opts.OriginX = defaultIntNonPositive(opts.OriginX, DefaultOrigin)
	opts.OriginY = defaultIntNonPositive(opts.OriginY, DefaultOrigin)

	if opts.LineSpacing < 0 {
		opts.LineSpacing = DefaultLineSpacing
	}
}

func defaultIntNonPositive(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}

// RenderToFile renders opts and writes the bitmap to opts.OutputPath.
func (renderer *Renderer) RenderToFile(opts Options) error {
	img, renderErr := renderer.Render(opts)
	if renderErr != nil {
		return renderErr
	}

	saveErr := Save(img, opts.OutputPath)
	if saveErr != nil {
		return saveErr
	}

	if renderer.log != nil {
		renderer.log.Info(
			"Rendered %dx%d bitmap to %s",
			opts.Width,
			opts.Height,
			opts.OutputPath,
		)
	}

	return nil
}

// NewCanvas returns a white grayscale working surface.
func NewCanvas(width, height int) *image.Gray {
	canvas := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	return canvas
}

// DrawText draws multi-line text in black with the top of the first line at (x, y).
// Each line advances by the face height plus spacing. Text outside dst is clipped.
func DrawText(dst draw.Image, face font.Face, x, y, spacing int, text string) {
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil() + spacing
	baseline := y + metrics.Ascent.Ceil()

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.Point26_6{},
	}

	for _, line := range SplitLines(text) {
		drawer.Dot = fixed.P(x, baseline)
		drawer.DrawString(line)
		baseline += lineHeight
	}
}

// SplitLines breaks text on line feeds, dropping a trailing carriage return on each line.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	return lines
}

// Binarize reduces a grayscale canvas to the two-colour Palette.
func Binarize(src *image.Gray) *image.Paletted {
	bounds := src.Bounds()
	dst := image.NewPaletted(bounds, Palette)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if src.GrayAt(x, y).Y < inkThreshold {
				dst.SetColorIndex(x, y, 1)
			}
		}
	}

	return dst
}

// Save encodes img as PNG at path, replacing any existing file. A two-colour paletted
// image is written with a bit depth of 1.
func Save(img image.Image, path string) error {
	if path == "" {
		return ErrOutputPathRequired
	}

	file, createErr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode)
	if createErr != nil {
		return fmt.Errorf("could not create image file %s: %w", path, createErr)
	}

	encodeErr := png.Encode(file, img)
	closeErr := file.Close()

	if encodeErr != nil {
		return fmt.Errorf("could not encode %s: %w", path, encodeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("could not close %s: %w", path, closeErr)
	}

	return nil
}

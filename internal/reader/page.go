package reader

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/epaper-book-tools/internal/pdftext"
	"github.com/book-expert/epaper-book-tools/internal/settings"
	"github.com/book-expert/epaper-book-tools/internal/textimage"
)

// ErrInvalidLayout is returned for a layout with non-positive geometry.
var ErrInvalidLayout = errors.New("invalid screen layout")

// Layout is the fixed geometry of the e-paper screen and its text grid.
type Layout struct {
	FontName     string
	ScreenWidth  int
	ScreenHeight int
	CharsPerLine int
	LineHeight   int
	Margin       int
	FooterOffset int
	// BufferSize is how many pages are queued for rendering at a time.
	BufferSize   int
	FontSize     float64
}

// DefaultLayout matches a 480x648 portrait panel.
func DefaultLayout() Layout {
	return Layout{
		FontName:     "gomono",
		ScreenWidth:  480,
		ScreenHeight: 648,
		CharsPerLine: 30,
		LineHeight:   16,
		Margin:       10,
		FooterOffset: 20,
		BufferSize:   10,
		FontSize:     12,
	}
}

// LayoutFromConfig is DefaultLayout with every positive or non-empty value of cfg
// applied over it.
func LayoutFromConfig(cfg settings.ReaderConfig) Layout {
	layout := DefaultLayout()
	layout.FontName = settings.String(cfg.Font, layout.FontName)
	layout.FontSize = settings.Float(cfg.FontSize, layout.FontSize)
	layout.ScreenWidth = settings.Int(cfg.ScreenWidth, layout.ScreenWidth)
	layout.ScreenHeight = settings.Int(cfg.ScreenHeight, layout.ScreenHeight)
	layout.CharsPerLine = settings.Int(cfg.CharsPerLine, layout.CharsPerLine)
	layout.LineHeight = settings.Int(cfg.LineHeight, layout.LineHeight)
	layout.BufferSize = settings.Int(cfg.BufferSize, layout.BufferSize)

	return layout
}

// Validate rejects geometry that cannot produce a page.
func (layout Layout) Validate() error {
	switch {
	case layout.ScreenWidth <= 0 || layout.ScreenHeight <= 0:
		return fmt.Errorf("screen %dx%d: %w", layout.ScreenWidth, layout.ScreenHeight, ErrInvalidLayout)
	case layout.CharsPerLine <= 0:
		return fmt.Errorf("chars per line %d: %w", layout.CharsPerLine, ErrInvalidLayout)
	case layout.LineHeight <= 0:
		return fmt.Errorf("line height %d: %w", layout.LineHeight, ErrInvalidLayout)
	case layout.BufferSize <= 0:
		return fmt.Errorf("buffer size %d: %w", layout.BufferSize, ErrInvalidLayout)
	default:
		return nil
	}
}

// LinesPerScreen is how many content lines fit above the footer.
func (layout Layout) LinesPerScreen() int {
	usable := layout.ScreenHeight - layout.FooterOffset - layout.Margin

	return max(usable/layout.LineHeight, 0)
}

// Paginate cuts content into display lines of at most charsPerLine runes. Every hard
// line break starts a new display line; within a line the count is len/charsPerLine + 1,
// so a line whose length is an exact multiple ends with an empty chunk.
func Paginate(content string, charsPerLine int) []string {
	if charsPerLine <= 0 {
		return nil
	}

	var lines []string

	for _, paragraph := range textimage.SplitLines(content) {
		runes := []rune(paragraph)
		count := len(runes)/charsPerLine + 1

		for i := range count {
			start := i * charsPerLine
			end := min(start+charsPerLine, len(runes))
			lines = append(lines, string(runes[start:end]))
		}
	}

	return lines
}

// FooterText is the page indicator printed at the bottom of the screen.
func FooterText(index int) string {
	return fmt.Sprintf("Page: %d", index+1)
}

// PageRenderer draws book pages as screen bitmaps.
type PageRenderer struct {
	renderer *textimage.Renderer
	log      *logger.Logger
	layout   Layout
}

// NewPageRenderer creates a PageRenderer drawing with renderer's fonts.
func NewPageRenderer(renderer *textimage.Renderer, layout Layout, log *logger.Logger) (*PageRenderer, error) {
	validateErr := layout.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &PageRenderer{
		renderer: renderer,
		log:      log,
		layout:   layout,
	}, nil
}

// Layout returns the geometry pages are drawn with.
func (pr *PageRenderer) Layout() Layout { return pr.layout }

// RenderPage draws page index of book.
func (pr *PageRenderer) RenderPage(book pdftext.Book, index int) (*image.Paletted, error) {
	if index < 0 || index >= len(book.Pages) {
		return nil, fmt.Errorf("page %d of %d: %w", index+1, len(book.Pages), ErrPageOutOfRange)
	}

	return pr.RenderRecord(book.Name, index, book.Pages[index])
}

// RenderRecord draws record as the page at index of the book called bookName: content
// lines from the top margin down, cut off before they reach the footer, then "Page: N"
// near the bottom edge.
func (pr *PageRenderer) RenderRecord(bookName string, index int, record pdftext.PageRecord) (*image.Paletted, error) {
	face, faceErr := pr.renderer.LoadFace(pr.layout.FontName, pr.layout.FontSize)
	if faceErr != nil {
		return nil, faceErr
	}

	defer func() {
		closeErr := face.Close()
		if closeErr != nil {
			pr.log.Warn("failed to close font face: %v", closeErr)
		}
	}()

	canvas := textimage.NewCanvas(pr.layout.ScreenWidth, pr.layout.ScreenHeight)

	lines := Paginate(record.Content, pr.layout.CharsPerLine)
	visible := min(len(lines), pr.layout.LinesPerScreen())

	if visible < len(lines) {
		pr.log.Warn(
			"Page %d of %s: %d of %d lines do not fit the screen",
			index+1,
			bookName,
			len(lines)-visible,
			len(lines),
		)
	}

	y := pr.layout.Margin
	for _, line := range lines[:visible] {
		textimage.DrawText(canvas, face, pr.layout.Margin, y, 0, strings.TrimRight(line, " "))
		y += pr.layout.LineHeight
	}

	footerY := pr.layout.ScreenHeight - pr.layout.FooterOffset
	textimage.DrawText(canvas, face, pr.layout.Margin, footerY, 0, FooterText(index))

	return textimage.Binarize(canvas), nil
}

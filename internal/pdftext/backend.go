package pdftext

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

var (
	// ErrDocumentOpen is returned when a PDF is missing, unreadable or not parseable.
	ErrDocumentOpen = errors.New("could not open document")
	// ErrUnknownBackend is returned for an unsupported extraction backend name.
	ErrUnknownBackend = errors.New("unknown extraction backend")
	// ErrPageOutOfRange is returned when a page index is outside the document.
	ErrPageOutOfRange = errors.New("page index out of range")
)

// Backend names accepted by NewOpener.
const (
	BackendFitz = "fitz"
	BackendPure = "pure"
)

// Document is an open PDF that yields plain text per page. Page indexes are zero based.
type Document interface {
	NumPage() int
	Text(index int) (string, error)
	Close() error
}

// Opener opens PDF documents.
type Opener interface {
	Open(path string) (Document, error)
}

// NewOpener returns the Opener registered under name. An empty name selects fitz.
func NewOpener(name string) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendFitz:
		return FitzOpener{}, nil
	case BackendPure:
		return PlainOpener{}, nil
	default:
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownBackend)
	}
}

// FitzOpener extracts text with MuPDF.
type FitzOpener struct{}

// Open implements Opener.
func (FitzOpener) Open(path string) (Document, error) {
	doc, openErr := fitz.New(path)
	if openErr != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDocumentOpen, path, openErr)
	}

	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPage() int { return d.doc.NumPage() }

func (d *fitzDocument) Text(index int) (string, error) {
	if index < 0 || index >= d.doc.NumPage() {
		return "", fmt.Errorf("page %d: %w", index, ErrPageOutOfRange)
	}

	text, textErr := d.doc.Text(index)
	if textErr != nil {
		return "", fmt.Errorf("could not extract text of page %d: %w", index+1, textErr)
	}

	return text, nil
}

func (d *fitzDocument) Close() error {
	closeErr := d.doc.Close()
	if closeErr != nil {
		return fmt.Errorf("could not close document: %w", closeErr)
	}

	return nil
}

// PlainOpener extracts the embedded text layer with a pure Go parser. It needs no cgo
// but reconstructs reading order less faithfully than MuPDF.
type PlainOpener struct{}

// Open implements Opener.
func (PlainOpener) Open(path string) (Document, error) {
	file, reader, openErr := pdf.Open(path)
	if openErr != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrDocumentOpen, path, openErr)
	}

	return &plainDocument{
		file:   file,
		reader: reader,
	}, nil
}

type plainDocument struct {
	file   *os.File
	reader *pdf.Reader
}

func (d *plainDocument) NumPage() int { return d.reader.NumPage() }

// Text returns an empty string for pages without a page object.
func (d *plainDocument) Text(index int) (string, error) {
	if index < 0 || index >= d.reader.NumPage() {
		return "", fmt.Errorf("page %d: %w", index, ErrPageOutOfRange)
	}

	page := d.reader.Page(index + 1)
	if page.V.IsNull() {
		return "", nil
	}

	// Font resource names are scoped to the page, so /F1 may differ from page to page.
	fonts := make(map[string]*pdf.Font)

	for _, name := range page.Fonts() {
		pageFont := page.Font(name)
		fonts[name] = &pageFont
	}

	text, textErr := page.GetPlainText(fonts)
	if textErr != nil {
		return "", fmt.Errorf("could not extract text of page %d: %w", index+1, textErr)
	}

	return text, nil
}

func (d *plainDocument) Close() error {
	closeErr := d.file.Close()
	if closeErr != nil {
		return fmt.Errorf("could not close document: %w", closeErr)
	}

	return nil
}

// Package pdftext extracts per-page plain text from PDF files into book JSON documents
// of the form {"<name>": [{"page_number": 1, "content": "..."}]}.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/cheggaaa/pb/v3"
)

var (
	// ErrInputPathRequired is returned when input path is not provided.
	ErrInputPathRequired = errors.New("input path is required")
	// ErrOutputPathRequired is returned when output directory is not provided.
	ErrOutputPathRequired = errors.New("output directory is required")
)

const (
	// DefaultInputPath is the PDF converted when nothing else is configured.
	DefaultInputPath = "Beyond-Order.pdf"
	// DefaultOutputDir receives <name>.json. It is never created by the extractor.
	DefaultOutputDir = "OUTPUT"
)

// Options holds all configurable parameters for a Processor.
type Options struct {
	ProgressBarOutput io.Writer
	Console           io.Writer
	InputPath         string
	OutputDir         string
	Backend           string
}

// Processor converts PDF files to book JSON files.
type Processor struct {
	opener Opener
	log    *logger.Logger
	config Options
}

// NewProcessor creates and initializes a new Processor with the given options and logger.
// Zero-value paths keep their zero value so validation can report them; writers default
// to stdout.
func NewProcessor(opts *Options, log *logger.Logger) *Processor {
	applyDefaultOptions(opts)

	return &Processor{
		opener: nil, // Resolved from config.Backend during validation.
		log:    log,
		config: *opts,
	}
}

// NewProcessorWithOpener is NewProcessor with an explicit extraction backend.
func NewProcessorWithOpener(opts *Options, opener Opener, log *logger.Logger) *Processor {
	processor := NewProcessor(opts, log)
	processor.opener = opener

	return processor
}

func applyDefaultOptions(opts *Options) {
	opts.ProgressBarOutput = defaultWriterNil(opts.ProgressBarOutput, os.Stdout)
	opts.Console = defaultWriterNil(opts.Console, os.Stdout)

	if opts.Backend == "" {
		opts.Backend = BackendFitz
	}
}

func defaultWriterNil(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}

	return w
}

// Process converts the configured input. A directory input converts every PDF inside it;
// a file input converts that single file.
func (processor *Processor) Process(ctx context.Context) error {
	err := processor.validateConfig()
	if err != nil {
		return err
	}

	if isDir(processor.config.InputPath) {
		_, err = processor.ProcessDir(ctx)

		return err
	}

	_, err = processor.ProcessFile(ctx, processor.config.InputPath)

	return err
}

// validateConfig checks if the essential configuration options have been provided and
// resolves the extraction backend.
func (processor *Processor) validateConfig() error {
	if processor.config.InputPath == "" {
		return ErrInputPathRequired
	}

	if processor.config.OutputDir == "" {
		return ErrOutputPathRequired
	}

	return processor.resolveOpener()
}

// resolveOpener picks the backend named in the configuration unless one was injected.
func (processor *Processor) resolveOpener() error {
	if processor.opener != nil {
		return nil
	}

	opener, openerErr := NewOpener(processor.config.Backend)
	if openerErr != nil {
		return openerErr
	}

	processor.opener = opener

	return nil
}

// ExtractFile opens pdfPath and extracts all of its pages. The document is closed before
// ExtractFile returns, whether or not extraction succeeded.
func (processor *Processor) ExtractFile(ctx context.Context, pdfPath string) (book Book, err error) {
	resolveErr := processor.resolveOpener()
	if resolveErr != nil {
		return Book{}, resolveErr
	}

	doc, openErr := processor.opener.Open(pdfPath)
	if openErr != nil {
		return Book{}, openErr
	}

	defer func() {
		closeErr := doc.Close()
		if closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	processor.log.Info("Extracting %d page(s) from %s", doc.NumPage(), filepath.Base(pdfPath))

	book, err = ExtractBook(ctx, doc, BaseName(pdfPath))
	if err != nil {
		return Book{}, fmt.Errorf("could not extract %s: %w", filepath.Base(pdfPath), err)
	}

	return book, nil
}

// ProcessFile extracts pdfPath completely and only then writes <OutputDir>/<name>.json,
// so a failed extraction leaves no output behind. On success it prints a confirmation
// line to the console writer and returns the written path.
func (processor *Processor) ProcessFile(ctx context.Context, pdfPath string) (string, error) {
	validateErr := processor.validateConfig()
	if validateErr != nil {
		return "", validateErr
	}

	book, extractErr := processor.ExtractFile(ctx, pdfPath)
	if extractErr != nil {
		return "", extractErr
	}

	outPath, writeErr := WriteBook(book, processor.config.OutputDir)
	if writeErr != nil {
		return "", writeErr
	}

	processor.log.Success("Saved %d page(s) of %s to %s", len(book.Pages), book.Name, outPath)
	_, _ = fmt.Fprintf(processor.config.Console, "Text and page data saved to %s\n", outPath)

	return outPath, nil
}

// ProcessDir converts every PDF in the input directory. A file that fails is logged and
// skipped; the paths of the files that were written are returned.
func (processor *Processor) ProcessDir(ctx context.Context) ([]string, error) {
	validateErr := processor.validateConfig()
	if validateErr != nil {
		return nil, validateErr
	}

	pdfPaths, discoveryErr := processor.discoverInputPDFs()
	if discoveryErr != nil {
		return nil, discoveryErr
	}

	processor.log.Info("Found %d PDF(s) to process.", len(pdfPaths))

	return processor.processAllPDFs(ctx, pdfPaths)
}

// discoverInputPDFs discovers input PDFs and validates non-empty result.
func (processor *Processor) discoverInputPDFs() ([]string, error) {
	pdfPaths, discoveryErr := DiscoverPDFs(processor.config.InputPath)
	if discoveryErr != nil {
		return nil, fmt.Errorf("failed to discover PDFs: %w", discoveryErr)
	}

	if len(pdfPaths) == 0 {
		return nil, fmt.Errorf(
			"no PDF files found in %s: %w",
			processor.config.InputPath,
			os.ErrNotExist,
		)
	}

	return pdfPaths, nil
}

// processAllPDFs converts each file in turn behind a progress bar.
func (processor *Processor) processAllPDFs(ctx context.Context, pdfPaths []string) ([]string, error) {
	progressBar := pb.New(len(pdfPaths)).
		SetTemplateString(`{{ bar . " " "━" "━" " " " "}} {{percent .}} {{rtime .}}`).
		SetWriter(processor.config.ProgressBarOutput).
		Start()
	defer progressBar.Finish()

	written := make([]string, 0, len(pdfPaths))

	for _, pdfPath := range pdfPaths {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return written, fmt.Errorf("batch interrupted: %w", ctxErr)
		}

		progressBar.Increment()

		outPath, processErr := processor.ProcessFile(ctx, pdfPath)
		if processErr != nil {
			processor.log.Error("Failed to process %s: %v", filepath.Base(pdfPath), processErr)

			continue
		}

		written = append(written, outPath)
	}

	return written, nil
}

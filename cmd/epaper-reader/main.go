// Command epaper-reader shows a book produced by pdf-to-json one screen at a time.
//
// Each invocation restores the saved position, optionally moves (-next, -prev, -page),
// renders the current page to a PNG sized for the panel and saves the new position.
// With -all it instead renders every page into a directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"unicode/utf8"

	"github.com/book-expert/logger"

	"github.com/book-expert/epaper-book-tools/internal/pdftext"
	"github.com/book-expert/epaper-book-tools/internal/reader"
	"github.com/book-expert/epaper-book-tools/internal/settings"
	"github.com/book-expert/epaper-book-tools/internal/textimage"
)

const (
	defaultBookPath     = "OUTPUT/Beyond-Order.json"
	defaultProgressFile = "progress.txt"
	defaultScreenOutput = "screen.png"
)

// flags represents the command-line arguments.
type flags struct {
	bookPath     string
	bookName     string
	progressFile string
	output       string
	allDir       string
	page         int
	next         bool
	prev         bool
}

// options is the merged reader configuration.
type options struct {
	bookPath     string
	bookName     string
	progressFile string
	output       string
	allDir       string
	layout       reader.Layout
	workers      int
	page         int
	next         bool
	prev         bool
}

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)

	err := run(ctx, os.Args[1:], os.Stdout)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, console io.Writer) error {
	flgs, parseErr := parseFlags(args)
	if parseErr != nil {
		return parseErr
	}

	cfg, projectRoot, loadErr := settings.Load(".")
	if loadErr != nil {
		return loadErr
	}

	opts := mergeConfigAndFlags(cfg.Reader, flgs)

	log, logErr := settings.NewLogger(projectRoot, cfg.Paths.BaseLogsDir, "epaper_reader")
	if logErr != nil {
		return fmt.Errorf("could not set up logger: %w", logErr)
	}
	defer settings.CloseLogger(log)

	return read(ctx, opts, textimage.DefaultResolver(), console, log)
}

// read carries out one reader invocation.
func read(
	ctx context.Context,
	opts options,
	resolver textimage.FontResolver,
	console io.Writer,
	log *logger.Logger,
) error {
	book, bookErr := pdftext.ReadBook(opts.bookPath, opts.bookName)
	if bookErr != nil {
		return fmt.Errorf("failed to load book: %w", bookErr)
	}

	pages, pagesErr := reader.NewPageRenderer(textimage.NewRenderer(resolver, log), opts.layout, log)
	if pagesErr != nil {
		return pagesErr
	}

	if opts.allDir != "" {
		processor := reader.NewPageProcessor(pages, opts.workers, os.Stderr, log)

		written, renderErr := processor.RenderAll(ctx, book, opts.allDir)
		if renderErr != nil {
			return fmt.Errorf("failed to render book: %w", renderErr)
		}

		_, _ = fmt.Fprintf(console, "Rendered %d page(s) to %s\n", len(written), opts.allDir)

		return nil
	}

	nav, navErr := reader.NewNavigator(book)
	if navErr != nil {
		return navErr
	}

	store := reader.ProgressStore{Path: opts.progressFile}

	restoreErr := store.Restore(nav)
	if restoreErr != nil {
		log.Warn("Could not restore progress, starting from the beginning: %v", restoreErr)
	}

	moveErr := move(nav, opts)
	if moveErr != nil {
		return moveErr
	}

	img, renderErr := pages.RenderPage(book, nav.Current())
	if renderErr != nil {
		return fmt.Errorf("failed to render page: %w", renderErr)
	}

	saveErr := textimage.Save(img, opts.output)
	if saveErr != nil {
		return saveErr
	}

	progressErr := store.Save(nav.Current())
	if progressErr != nil {
		log.Warn("Failed to save progress: %v", progressErr)
	}

	log.Info(
		"Showing page %d of %d of %s (%d characters)",
		nav.Current()+1,
		nav.Total(),
		book.Name,
		utf8.RuneCountInString(nav.Page().Content),
	)
	_, _ = fmt.Fprintf(console, "Showing page: %d\n", nav.Current()+1)

	return nil
}

// move applies the requested navigation. -page wins over -next and -prev.
func move(nav *reader.Navigator, opts options) error {
	switch {
	case opts.page > 0:
		return nav.Seek(opts.page - 1)
	case opts.next:
		nav.Next()
	case opts.prev:
		nav.Prev()
	}

	return nil
}

// parseFlags defines and parses command-line flags.
func parseFlags(args []string) (flags, error) {
	var flagsVar flags

	flagSet := flag.NewFlagSet("epaper-reader", flag.ContinueOnError)
	flagSet.StringVar(&flagsVar.bookPath, "book", "", "Book JSON produced by pdf-to-json.")
	flagSet.StringVar(&flagsVar.bookName, "name", "", "Book key inside the JSON file (default: the only one).")
	flagSet.StringVar(&flagsVar.progressFile, "progress", "", "File holding the current page.")
	flagSet.StringVar(&flagsVar.output, "output", "", "PNG the current screen is written to.")
	flagSet.StringVar(&flagsVar.allDir, "all", "", "Render every page into this directory.")
	flagSet.IntVar(&flagsVar.page, "page", 0, "Jump to this page number (1-based).")
	flagSet.BoolVar(&flagsVar.next, "next", false, "Turn to the next page.")
	flagSet.BoolVar(&flagsVar.prev, "prev", false, "Turn to the previous page.")

	parseErr := flagSet.Parse(args)
	if parseErr != nil {
		return flags{}, fmt.Errorf("invalid arguments: %w", parseErr)
	}

	return flagsVar, nil
}

// mergeConfigAndFlags combines settings from the config file and command-line flags.
// Flags take precedence over the config file settings.
func mergeConfigAndFlags(cfg settings.ReaderConfig, flgs flags) options {
	return options{
		bookPath:     settings.String(flgs.bookPath, cfg.Book, defaultBookPath),
		bookName:     flgs.bookName,
		progressFile: settings.String(flgs.progressFile, cfg.ProgressFile, defaultProgressFile),
		output:       settings.String(flgs.output, filepath.Join(cfg.OutputDir, defaultScreenOutput)),
		allDir:       flgs.allDir,
		layout:       reader.LayoutFromConfig(cfg),
		workers:      cfg.Workers,
		page:         flgs.page,
		next:         flgs.next,
		prev:         flgs.prev,
	}
}

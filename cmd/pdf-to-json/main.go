// Command pdf-to-json extracts the text of every page of a PDF into
// <output_dir>/<name>.json, keyed by the PDF's base name.
//
// With no flags and no project.toml it reads Beyond-Order.pdf and writes
// OUTPUT/Beyond-Order.json. The output directory must already exist. When the input is
// a directory every PDF inside it is converted.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"

	"github.com/book-expert/epaper-book-tools/internal/pdftext"
	"github.com/book-expert/epaper-book-tools/internal/settings"
)

// flags represents the command-line arguments.
type flags struct {
	inputPath string
	outputDir string
	backend   string
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

// run is the main logic function, separated from main to allow for easier testing and
// clean exit handling.
func run(ctx context.Context, args []string, console io.Writer) error {
	flgs, parseErr := parseFlags(args)
	if parseErr != nil {
		return parseErr
	}

	cfg, projectRoot, loadErr := settings.Load(".")
	if loadErr != nil {
		return loadErr
	}

	options := mergeConfigAndFlags(cfg.Extract, flgs)
	options.Console = console
	options.ProgressBarOutput = os.Stderr

	log, logErr := settings.NewLogger(projectRoot, cfg.Paths.BaseLogsDir, "pdf_to_json")
	if logErr != nil {
		return fmt.Errorf("could not set up logger: %w", logErr)
	}
	defer settings.CloseLogger(log)

	return process(ctx, &options, log)
}

// process runs the extractor over the configured input.
func process(ctx context.Context, options *pdftext.Options, log *logger.Logger) error {
	processor := pdftext.NewProcessor(options, log)

	procErr := processor.Process(ctx)
	if procErr != nil {
		return fmt.Errorf("PDF extraction failed: %w", procErr)
	}

	return nil
}

// parseFlags defines and parses command-line flags.
func parseFlags(args []string) (flags, error) {
	var flagsVar flags

	flagSet := flag.NewFlagSet("pdf-to-json", flag.ContinueOnError)
	flagSet.StringVar(&flagsVar.inputPath, "input", "", "Input PDF file or directory of PDFs.")
	flagSet.StringVar(&flagsVar.outputDir, "output", "", "Existing directory for the JSON files.")
	flagSet.StringVar(&flagsVar.backend, "backend", "", "Text extraction backend: fitz or pure.")

	parseErr := flagSet.Parse(args)
	if parseErr != nil {
		return flags{}, fmt.Errorf("invalid arguments: %w", parseErr)
	}

	return flagsVar, nil
}

// mergeConfigAndFlags combines settings from the config file and command-line flags.
// Flags take precedence over the config file settings.
func mergeConfigAndFlags(cfg settings.ExtractConfig, flgs flags) pdftext.Options {
	return pdftext.Options{
		ProgressBarOutput: nil,
		Console:           nil,
		InputPath:         settings.String(flgs.inputPath, cfg.Input, pdftext.DefaultInputPath),
		OutputDir:         settings.String(flgs.outputDir, cfg.OutputDir, pdftext.DefaultOutputDir),
		Backend:           settings.String(flgs.backend, cfg.Backend, pdftext.BackendFitz),
	}
}

// Command text-to-image draws a block of text onto a 1-bit bitmap sized for an e-ink
// screen and saves it as a PNG.
//
// With no flags and no project.toml it renders the sample sentence onto a 200x300
// canvas in 20px arial.ttf and writes text_image.png to the working directory.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/epaper-book-tools/internal/settings"
	"github.com/book-expert/epaper-book-tools/internal/textimage"
)

// flags represents the command-line arguments.
type flags struct {
	text     string
	font     string
	output   string
	width    int
	height   int
	fontSize float64
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main logic function, separated from main to allow for easier testing and
// clean exit handling.
func run(args []string) error {
	flgs, parseErr := parseFlags(args)
	if parseErr != nil {
		return parseErr
	}

	cfg, projectRoot, loadErr := settings.Load(".")
	if loadErr != nil {
		return loadErr
	}

	opts := mergeConfigAndFlags(cfg.Render, flgs)

	log, logErr := settings.NewLogger(projectRoot, cfg.Paths.BaseLogsDir, "text_to_image")
	if logErr != nil {
		return fmt.Errorf("could not set up logger: %w", logErr)
	}
	defer settings.CloseLogger(log)

	return render(opts, textimage.DefaultResolver(), log)
}

// render draws and saves one bitmap.
func render(opts textimage.Options, resolver textimage.FontResolver, log *logger.Logger) error {
	renderer := textimage.NewRenderer(resolver, log)

	renderErr := renderer.RenderToFile(opts)
	if renderErr != nil {
		return fmt.Errorf("text rendering failed: %w", renderErr)
	}

	return nil
}

// parseFlags defines and parses command-line flags.
func parseFlags(args []string) (flags, error) {
	var flagsVar flags

	flagSet := flag.NewFlagSet("text-to-image", flag.ContinueOnError)
	flagSet.StringVar(&flagsVar.text, "text", "", "Text to draw; \\n in the value starts a new line.")
	flagSet.StringVar(&flagsVar.font, "font", "", "Font file name or path.")
	flagSet.StringVar(&flagsVar.output, "output", "", "Output PNG path.")
	flagSet.IntVar(&flagsVar.width, "width", 0, "Canvas width in pixels.")
	flagSet.IntVar(&flagsVar.height, "height", 0, "Canvas height in pixels.")
	flagSet.Float64Var(&flagsVar.fontSize, "size", 0, "Font size in pixels.")

	parseErr := flagSet.Parse(args)
	if parseErr != nil {
		return flags{}, fmt.Errorf("invalid arguments: %w", parseErr)
	}

	return flagsVar, nil
}

// mergeConfigAndFlags layers the config file and flags over the built-in defaults.
// Flags take precedence over the config file settings.
func mergeConfigAndFlags(cfg settings.RenderConfig, flgs flags) textimage.Options {
	opts := textimage.DefaultOptions()

	opts.Text = settings.String(unescapeNewlines(flgs.text), cfg.Text, opts.Text)
	opts.FontName = settings.String(flgs.font, cfg.Font, opts.FontName)
	opts.OutputPath = settings.String(flgs.output, cfg.Output, opts.OutputPath)
	opts.Width = settings.Int(flgs.width, cfg.Width, opts.Width)
	opts.Height = settings.Int(flgs.height, cfg.Height, opts.Height)
	opts.FontSize = settings.Float(flgs.fontSize, cfg.FontSize, opts.FontSize)

	return opts
}

// unescapeNewlines turns a literal backslash-n typed on the command line into a line break.
func unescapeNewlines(text string) string {
	return strings.ReplaceAll(text, `\n`, "\n")
}

// Command inspect-bitmap checks that a PNG is a strict black-and-white screen bitmap and
// reports what it holds.
//
// Usage: inspect-bitmap <filepath>
//
// It prints one line: WIDTHxHEIGHT bit-depth=D colours=C black=B
//
// Exit codes:
//
//	0 = black and white only, and blank
//	1 = black and white only, with black pixels
//	2 = error, or a pixel that is neither black nor white
package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
)

var (
	ErrInvalidArguments = errors.New("invalid number of arguments")
	ErrNotPNG           = errors.New("not a PNG file")
	ErrImageZeroPixels  = errors.New("image has zero pixels")
	ErrNotBlackAndWhite = errors.New("pixel is neither black nor white")
)

// Exit codes used by this tool.
const (
	exitCodeBlank    = 0
	exitCodeNotBlank = 1
	exitCodeError    = 2

	expectedArgCount = 2

	// Offsets into the PNG signature and IHDR chunk.
	pngHeaderLen   = 26
	bitDepthOffset = 24
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// report is what was found in one bitmap.
type report struct {
	width    int
	height   int
	bitDepth int
	colours  int
	black    int
}

func (r report) String() string {
	return fmt.Sprintf("%dx%d bit-depth=%d colours=%d black=%d", r.width, r.height, r.bitDepth, r.colours, r.black)
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run inspects the file named in args and returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) != expectedArgCount {
		_, _ = fmt.Fprintf(stderr, "Argument error: usage: inspect-bitmap <filepath>: %v\n", ErrInvalidArguments)

		return exitCodeError
	}

	rep, err := inspectFile(args[1])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Image analysis error: %v\n", err)

		if errors.Is(err, ErrNotBlackAndWhite) {
			_, _ = fmt.Fprintln(stdout, rep)
		}

		return exitCodeError
	}

	_, _ = fmt.Fprintln(stdout, rep)

	if rep.black > 0 {
		return exitCodeNotBlank
	}

	return exitCodeBlank
}

// inspectFile decodes filePath and classifies every pixel.
func inspectFile(filePath string) (report, error) {
	data, readErr := os.ReadFile(filePath)
	if readErr != nil {
		return report{}, fmt.Errorf("could not open file %s: %w", filePath, readErr)
	}

	bitDepth, depthErr := pngBitDepth(data)
	if depthErr != nil {
		return report{}, fmt.Errorf("%s: %w", filePath, depthErr)
	}

	img, decodeErr := png.Decode(bytes.NewReader(data))
	if decodeErr != nil {
		return report{}, fmt.Errorf("could not decode image file %s: %w", filePath, decodeErr)
	}

	rep, inspectErr := inspect(img)
	rep.bitDepth = bitDepth

	return rep, inspectErr
}

// pngBitDepth reads the bit depth from the IHDR chunk, which always comes first.
func pngBitDepth(data []byte) (int, error) {
	if len(data) < pngHeaderLen || !bytes.Equal(data[:len(pngSignature)], pngSignature) {
		return 0, ErrNotPNG
	}

	return int(data[bitDepthOffset]), nil
}

// inspect counts distinct colours and black pixels. The counts are complete even when
// a grey pixel makes it return ErrNotBlackAndWhite.
func inspect(img image.Image) (report, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return report{}, ErrImageZeroPixels
	}

	rep := report{width: bounds.Dx(), height: bounds.Dy()}
	seen := make(map[color.Gray16]bool)

	var firstGrey *image.Point

	visitPixels(img, func(x, y int, c color.Color) {
		gray, _ := color.Gray16Model.Convert(c).(color.Gray16)
		seen[gray] = true

		switch gray.Y {
		case 0:
			rep.black++
		case 0xffff:
		default:
			if firstGrey == nil {
				firstGrey = &image.Point{X: x, Y: y}
			}
		}
	})

	rep.colours = len(seen)

	if firstGrey != nil {
		return rep, fmt.Errorf("at %v: %w", *firstGrey, ErrNotBlackAndWhite)
	}

	return rep, nil
}

func visitPixels(img image.Image, visitor func(x, y int, c color.Color)) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			visitor(x, y, img.At(x, y))
		}
	}
}

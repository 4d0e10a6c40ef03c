// Package textimage renders text onto fixed-size 1-bit bitmaps for e-ink panels.
package textimage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
)

var (
	// ErrFontNotFound is returned when no resolver can locate the requested font.
	ErrFontNotFound = errors.New("font not found")
	// ErrFontNameRequired is returned when an empty font name is resolved.
	ErrFontNameRequired = errors.New("font name is required")
)

// FontResolver locates the raw bytes of a TrueType/OpenType font by name.
type FontResolver interface {
	Resolve(name string) ([]byte, error)
}

// FileFontResolver looks a font up on disk. Absolute or relative paths that exist
// are used as-is; bare file names are searched for in SearchDirs, in order.
type FileFontResolver struct {
	SearchDirs []string
}

// NewFileFontResolver returns a resolver over the working directory and the usual
// per-user and system font directories.
func NewFileFontResolver() *FileFontResolver {
	dirs := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		dirs = append(dirs,
			filepath.Join(home, ".fonts"),
			filepath.Join(home, ".local", "share", "fonts"),
			filepath.Join(home, "Library", "Fonts"),
		)
	}

	dirs = append(dirs,
		"/usr/share/fonts/truetype/msttcorefonts",
		"/usr/share/fonts/truetype",
		"/usr/share/fonts/TTF",
		"/usr/share/fonts",
		"/Library/Fonts",
		"/System/Library/Fonts/Supplemental",
		`C:\Windows\Fonts`,
	)

	return &FileFontResolver{SearchDirs: dirs}
}

// Resolve reads the named font file.
func (resolver *FileFontResolver) Resolve(name string) ([]byte, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrFontNameRequired
	}

	for _, candidate := range resolver.candidates(name) {
		data, readErr := os.ReadFile(candidate)
		if readErr == nil {
			return data, nil
		}

		if !errors.Is(readErr, os.ErrNotExist) {
			return nil, fmt.Errorf("could not read font %s: %w", candidate, readErr)
		}
	}

	return nil, fmt.Errorf("%s: %w", name, ErrFontNotFound)
}

// candidates lists the paths tried for a font name.
func (resolver *FileFontResolver) candidates(name string) []string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return []string{name}
	}

	paths := make([]string, 0, len(resolver.SearchDirs))
	for _, dir := range resolver.SearchDirs {
		paths = append(paths, filepath.Join(dir, name))
	}

	return paths
}

// EmbeddedFontResolver serves the Go font family compiled into the binary.
// Names are matched case-insensitively with or without a ".ttf" suffix.
type EmbeddedFontResolver struct{}

var embeddedFonts = map[string][]byte{
	"goregular": goregular.TTF,
	"gomono":    gomono.TTF,
	"gobold":    gobold.TTF,
}

// Resolve returns the embedded font data for name.
func (EmbeddedFontResolver) Resolve(name string) ([]byte, error) {
	key := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".ttf")
	if key == "" {
		return nil, ErrFontNameRequired
	}

	data, ok := embeddedFonts[key]
	if !ok {
		return nil, fmt.Errorf("%s is not an embedded font: %w", name, ErrFontNotFound)
	}

	return data, nil
}

// ChainResolver tries each resolver in turn and returns the first hit.
type ChainResolver []FontResolver

// Resolve implements FontResolver.
func (chain ChainResolver) Resolve(name string) ([]byte, error) {
	for _, resolver := range chain {
		data, resolveErr := resolver.Resolve(name)
		if resolveErr == nil {
			return data, nil
		}

		if !errors.Is(resolveErr, ErrFontNotFound) {
			return nil, resolveErr
		}
	}

	return nil, fmt.Errorf("%s: %w", name, ErrFontNotFound)
}

// DefaultResolver searches the file system first and falls back to the embedded Go fonts.
func DefaultResolver() FontResolver {
	return ChainResolver{NewFileFontResolver(), EmbeddedFontResolver{}}
}

// Package reader pages a book JSON document onto an e-paper screen: it splits page text
// into fixed-width lines, tracks the reading position and renders pages as 1-bit bitmaps.
package reader

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/book-expert/epaper-book-tools/internal/pdftext"
)

var (
	// ErrEmptyBook is returned when a book has no pages to show.
	ErrEmptyBook = errors.New("book has no pages")
	// ErrPageOutOfRange is returned when seeking outside the book.
	ErrPageOutOfRange = errors.New("page out of range")
	// ErrInvalidProgress is returned when the progress file does not hold a page index.
	ErrInvalidProgress = errors.New("progress file is corrupt")
)

const progressFileMode = 0o644

// Navigator holds the reading position inside a book. Positions are zero based.
type Navigator struct {
	book    pdftext.Book
	current int
}

// NewNavigator opens book at its first page.
func NewNavigator(book pdftext.Book) (*Navigator, error) {
	if len(book.Pages) == 0 {
		return nil, fmt.Errorf("%s: %w", book.Name, ErrEmptyBook)
	}

	return &Navigator{book: book, current: 0}, nil
}

// Total is the number of pages in the book.
func (nav *Navigator) Total() int { return len(nav.book.Pages) }

// Current returns the index of the page on screen.
func (nav *Navigator) Current() int { return nav.current }

// Page returns the record at the current position.
func (nav *Navigator) Page() pdftext.PageRecord { return nav.book.Pages[nav.current] }

// Next moves one page forward. It reports false, without moving, on the last page.
func (nav *Navigator) Next() bool {
	if nav.current >= nav.Total()-1 {
		return false
	}

	nav.current++

	return true
}

// Prev moves one page back. It reports false, without moving, on the first page.
func (nav *Navigator) Prev() bool {
	if nav.current <= 0 {
		return false
	}

	nav.current--

	return true
}

// Seek jumps to index.
func (nav *Navigator) Seek(index int) error {
	if index < 0 || index >= nav.Total() {
		return fmt.Errorf("page %d of %d: %w", index+1, nav.Total(), ErrPageOutOfRange)
	}

	nav.current = index

	return nil
}

// Window returns up to size page records starting at start, clamped to the book.
func (nav *Navigator) Window(start, size int) []pdftext.PageRecord {
	start = max(start, 0)
	end := min(start+size, nav.Total())

	if start >= end {
		return nil
	}

	return nav.book.Pages[start:end:end]
}

// ProgressStore persists the reading position as a plain decimal page index.
type ProgressStore struct {
	Path string
}

// Load returns the saved page index, or 0 when nothing has been saved yet.
func (store ProgressStore) Load() (int, error) {
	data, readErr := os.ReadFile(store.Path)
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("could not read progress %s: %w", store.Path, readErr)
	}

	page, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if parseErr != nil || page < 0 {
		return 0, fmt.Errorf("%s holds %q: %w", store.Path, data, ErrInvalidProgress)
	}

	return page, nil
}

// Save overwrites the progress file with page.
func (store ProgressStore) Save(page int) error {
	writeErr := os.WriteFile(store.Path, []byte(strconv.Itoa(page)), progressFileMode)
	if writeErr != nil {
		return fmt.Errorf("could not save progress %s: %w", store.Path, writeErr)
	}

	return nil
}

// Restore seeks nav to the stored position. A position past the end of the book, left
// over from a longer edition, is clamped to the last page.
func (store ProgressStore) Restore(nav *Navigator) error {
	page, loadErr := store.Load()
	if loadErr != nil {
		return loadErr
	}

	return nav.Seek(min(page, nav.Total()-1))
}

package pdftext

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrBookNotFound is returned when a book JSON file has no entry for the requested name.
var ErrBookNotFound = errors.New("book not found in file")

const jsonIndent = "    "

// PageRecord is the extracted text of one page.
type PageRecord struct {
	PageNumber int    `json:"page_number"`
	Content    string `json:"content"`
}

// Book is a document's name and its pages in physical order. It serializes as a
// single-key object: {"<Name>": [PageRecord...]}.
type Book struct {
	Name  string
	Pages []PageRecord
}

// ExtractBook reads every page of doc, in order, into a Book called name.
// PageNumber is always index+1. The first page error aborts the whole extraction.
func ExtractBook(ctx context.Context, doc Document, name string) (Book, error) {
	pageCount := doc.NumPage()
	pages := make([]PageRecord, 0, max(pageCount, 0))

	for index := range pageCount {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return Book{}, fmt.Errorf("extraction interrupted at page %d: %w", index+1, ctxErr)
		}

		text, textErr := doc.Text(index)
		if textErr != nil {
			return Book{}, textErr
		}

		pages = append(pages, PageRecord{
			PageNumber: index + 1,
			Content:    text,
		})
	}

	return Book{Name: name, Pages: pages}, nil
}

// EncodeBook renders book as indented JSON. Non-ASCII text, including U+2028 and U+2029,
// and HTML characters are written verbatim.
func EncodeBook(book Book) ([]byte, error) {
	pages := book.Pages
	if pages == nil {
		pages = []PageRecord{}
	}

	var buffer bytes.Buffer

	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", jsonIndent)

	encodeErr := encoder.Encode(map[string][]PageRecord{book.Name: pages})
	if encodeErr != nil {
		return nil, fmt.Errorf("could not encode book %s: %w", book.Name, encodeErr)
	}

	return unescapeLineSeparators(bytes.TrimSuffix(buffer.Bytes(), []byte("\n"))), nil
}

var (
	escapedLineSeparator      = []byte(`\u2028`)
	escapedParagraphSeparator = []byte(`\u2029`)
)

// unescapeLineSeparators undoes the \u2028 and \u2029 escapes encoding/json always
// applies. In encoder output every backslash starts a two-byte escape, so escapes are
// walked pairwise and an escaped backslash followed by "u2028" is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, escapedLineSeparator[:5]) {
		return data
	}

	out := make([]byte, 0, len(data))

	for i := 0; i < len(data); i++ {
		switch {
		case data[i] != '\\':
			out = append(out, data[i])
		case bytes.HasPrefix(data[i:], escapedLineSeparator):
			out = append(out, "\u2028"...)
			i += len(escapedLineSeparator) - 1
		case bytes.HasPrefix(data[i:], escapedParagraphSeparator):
			out = append(out, "\u2029"...)
			i += len(escapedParagraphSeparator) - 1
		case i+1 < len(data):
			out = append(out, data[i], data[i+1])
			i++
		default:
			out = append(out, data[i])
		}
	}

	return out
}

// OutputPath is where WriteBook stores book inside dir.
func OutputPath(dir, name string) string {
	return filepath.Join(dir, name+".json")
}

// WriteBook writes book to <dir>/<name>.json, replacing any existing file.
// dir must already exist.
func WriteBook(book Book, dir string) (string, error) {
	data, encodeErr := EncodeBook(book)
	if encodeErr != nil {
		return "", encodeErr
	}

	path := OutputPath(dir, book.Name)

	writeErr := os.WriteFile(path, data, outputFileMode)
	if writeErr != nil {
		return "", fmt.Errorf("could not write %s: %w", path, writeErr)
	}

	return path, nil
}

// ReadBook loads a book JSON file. With an empty name the file must hold exactly one
// book, which is returned.
func ReadBook(path, name string) (Book, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return Book{}, fmt.Errorf("could not read %s: %w", path, readErr)
	}

	return DecodeBook(data, name)
}

// DecodeBook parses the JSON produced by EncodeBook.
func DecodeBook(data []byte, name string) (Book, error) {
	var books map[string][]PageRecord

	unmarshalErr := json.Unmarshal(data, &books)
	if unmarshalErr != nil {
		return Book{}, fmt.Errorf("could not decode book JSON: %w", unmarshalErr)
	}

	if name == "" {
		if len(books) != 1 {
			keys := make([]string, 0, len(books))
			for key := range books {
				keys = append(keys, key)
			}

			sort.Strings(keys)

			return Book{}, fmt.Errorf("expected one book, found %v: %w", keys, ErrBookNotFound)
		}

		for key := range books {
			name = key
		}
	}

	pages, ok := books[name]
	if !ok {
		return Book{}, fmt.Errorf("%s: %w", name, ErrBookNotFound)
	}

	if pages == nil {
		pages = []PageRecord{}
	}

	return Book{Name: name, Pages: pages}, nil
}

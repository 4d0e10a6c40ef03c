package pdftext

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// outputFileMode is the permission set for written JSON files.
	outputFileMode = 0o644
)

// BaseName strips the directory and the final extension from path,
// so "books/Beyond-Order.pdf" becomes "Beyond-Order".
func BaseName(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DiscoverPDFs finds all PDF files in a given directory.
// It performs a case-insensitive search and does not recurse into subdirectories.
func DiscoverPDFs(dirPath string) ([]string, error) {
	dirEntries, readErr := os.ReadDir(dirPath)
	if readErr != nil {
		return nil, fmt.Errorf(
			"could not read directory %s: %w",
			dirPath,
			readErr,
		)
	}

	var pdfPaths []string

	for _, entry := range dirEntries {
		if !entry.IsDir() &&
			strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			pdfPaths = append(pdfPaths, filepath.Join(dirPath, entry.Name()))
		}
	}

	sort.Strings(pdfPaths)

	return pdfPaths, nil
}

// isDir reports whether path names an existing directory.
func isDir(path string) bool {
	info, statErr := os.Stat(path)

	return statErr == nil && info.IsDir()
}

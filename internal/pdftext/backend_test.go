package pdftext_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/epaper-book-tools/internal/pdftext"
)

// testPage is one page of a generated PDF. Each page carries its own /F1 font resource.
type testPage struct {
	text string
	// remapA makes the page font draw code 65 with the glyph B.
	remapA bool
}

// pdfLiteral escapes text for a PDF string literal in WinAnsi, which matches Latin-1
// above 0xA0.
func pdfLiteral(text string) string {
	var out strings.Builder

	for _, r := range text {
		switch {
		case r == '(' || r == ')' || r == '\\':
			out.WriteByte('\\')
			out.WriteRune(r)
		case r < 0x80:
			out.WriteRune(r)
		default:
			fmt.Fprintf(&out, "\\%03o", r)
		}
	}

	return out.String()
}

// writeTestPDF writes a minimal PDF with one Helvetica text line per page.
func writeTestPDF(t *testing.T, pages ...testPage) string {
	t.Helper()

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"",
	}

	kids := make([]string, 0, len(pages))

	for _, page := range pages {
		pageObj := len(objects) + 1
		fontObj := pageObj + 1
		contentObj := pageObj + 2
		kids = append(kids, fmt.Sprintf("%d 0 R", pageObj))

		encoding := "/WinAnsiEncoding"
		if page.remapA {
			encoding = "<< /Type /Encoding /Differences [65 /B] >>"
		}

		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", pdfLiteral(page.text))

		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, contentObj),
			"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding "+encoding+" >>",
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))

	var buf bytes.Buffer

	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))

	for index, body := range objects {
		offsets[index] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", index+1, body)
	}

	xrefOffset := buf.Len()

	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)

	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}

	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefOffset)

	path := filepath.Join(t.TempDir(), "generated.pdf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	return path
}

func backends() map[string]pdftext.Opener {
	return map[string]pdftext.Opener{
		pdftext.BackendFitz: pdftext.FitzOpener{},
		pdftext.BackendPure: pdftext.PlainOpener{},
	}
}

func TestBackends_GeneratedPDF(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		pages []testPage
		want  []string
	}{
		{
			name:  "three pages in order",
			pages: []testPage{{text: "Page One"}, {text: "Page Two"}, {text: "Page Three"}},
			want:  []string{"Page One", "Page Two", "Page Three"},
		},
		{
			name:  "fonts are resolved per page",
			pages: []testPage{{text: "AAA", remapA: true}, {text: "AAA"}},
			want:  []string{"BBB", "AAA"},
		},
		{
			name:  "latin text",
			pages: []testPage{{text: "Ünïcødé"}},
			want:  []string{"Ünïcødé"},
		},
	}

	for backendName, opener := range backends() {
		for _, tt := range tests {
			t.Run(backendName+"/"+tt.name, func(t *testing.T) {
				t.Parallel()

				doc, err := opener.Open(writeTestPDF(t, tt.pages...))
				require.NoError(t, err)

				defer func() { assert.NoError(t, doc.Close()) }()

				require.Equal(t, len(tt.pages), doc.NumPage())

				for index, want := range tt.want {
					text, textErr := doc.Text(index)
					require.NoError(t, textErr)
					assert.Contains(t, text, want, "page %d", index+1)
				}

				_, err = doc.Text(len(tt.pages))
				require.ErrorIs(t, err, pdftext.ErrPageOutOfRange)
			})
		}
	}
}

func TestBackends_ProcessFileThenReadBook(t *testing.T) {
	t.Parallel()

	for backendName, opener := range backends() {
		t.Run(backendName, func(t *testing.T) {
			t.Parallel()

			pdfPath := writeTestPDF(t, testPage{text: "Grüße"}, testPage{text: "Ünïcødé"})

			proc := pdftext.NewProcessorWithOpener(&pdftext.Options{
				ProgressBarOutput: &bytes.Buffer{},
				Console:           &bytes.Buffer{},
				InputPath:         pdfPath,
				OutputDir:         t.TempDir(),
				Backend:           backendName,
			}, opener, newTestLogger(t))

			outPath, err := proc.ProcessFile(context.Background(), pdfPath)
			require.NoError(t, err)

			book, err := pdftext.ReadBook(outPath, "generated")
			require.NoError(t, err)
			require.Len(t, book.Pages, 2)

			assert.Equal(t, 1, book.Pages[0].PageNumber)
			assert.Contains(t, book.Pages[0].Content, "Grüße")
			assert.Equal(t, 2, book.Pages[1].PageNumber)
			assert.Contains(t, book.Pages[1].Content, "Ünïcødé")
		})
	}
}

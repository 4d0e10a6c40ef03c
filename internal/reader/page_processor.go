package reader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/book-expert/logger"
	"github.com/cheggaaa/pb/v3"

	"github.com/book-expert/epaper-book-tools/internal/pdftext"
	"github.com/book-expert/epaper-book-tools/internal/textimage"
)

const (
	// defaultDirMode is the default permissions for created directories.
	defaultDirMode = 0o750
)

// pageJob represents a single task for a worker to render one page of a book.
type pageJob struct {
	record     pdftext.PageRecord
	outputPath string
	pageIndex  int
}

// PageProcessor renders every page of a book to its own PNG using a pool of workers.
type PageProcessor struct {
	progressBarOutput io.Writer
	pages             *PageRenderer
	log               *logger.Logger
	workers           int
}

// NewPageProcessor creates a PageProcessor. Non-positive workers means one per CPU and a
// nil progress writer means stdout.
func NewPageProcessor(
	pages *PageRenderer,
	workers int,
	progressBarOutput io.Writer,
	log *logger.Logger,
) *PageProcessor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if progressBarOutput == nil {
		progressBarOutput = os.Stdout
	}

	return &PageProcessor{
		progressBarOutput: progressBarOutput,
		pages:             pages,
		log:               log,
		workers:           workers,
	}
}

// PagePath is the file a page is rendered to inside dir.
func PagePath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("page_%04d.png", index+1))
}

// RenderAll renders all pages of book into dir, creating it if needed. Pages are handed to
// the workers one window of Layout.BufferSize pages at a time. Pages that fail are logged
// and left out; the paths written are returned in page order.
func (pp *PageProcessor) RenderAll(ctx context.Context, book pdftext.Book, dir string) ([]string, error) {
	nav, navErr := NewNavigator(book)
	if navErr != nil {
		return nil, navErr
	}

	mkdirErr := os.MkdirAll(dir, defaultDirMode)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, mkdirErr)
	}

	pageCount := nav.Total()
	bufferSize := pp.pages.Layout().BufferSize
	jobs := make(chan pageJob, bufferSize)
	results := make([]string, pageCount)

	pageProgressBar := pb.New(pageCount).
		SetTemplateString(`  {{ bar . " " "▸" "▹" " " " "}} {{percent .}} {{etime .}}`).
		SetWriter(pp.progressBarOutput).
		Start()

	var waitGroup sync.WaitGroup

	for range min(pp.workers, pageCount) {
		waitGroup.Add(1)

		go pp.pageWorker(ctx, &waitGroup, book.Name, jobs, results, pageProgressBar)
	}

	for start := 0; start < pageCount; start += bufferSize {
		for offset, record := range nav.Window(start, bufferSize) {
			jobs <- pageJob{
				record:     record,
				outputPath: PagePath(dir, start+offset),
				pageIndex:  start + offset,
			}
		}
	}

	close(jobs)
	waitGroup.Wait()
	pageProgressBar.Finish()

	written := make([]string, 0, pageCount)

	for _, path := range results {
		if path != "" {
			written = append(written, path)
		}
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return written, fmt.Errorf("rendering of %s interrupted: %w", book.Name, ctxErr)
	}

	pp.log.Info("Rendered %d of %d page(s) of %s into %s", len(written), pageCount, book.Name, dir)

	return written, nil
}

// pageWorker pulls jobs until the channel is drained or the context is canceled. Each
// worker writes only to the results slots of its own jobs.
func (pp *PageProcessor) pageWorker(
	ctx context.Context,
	waitGroup *sync.WaitGroup,
	bookName string,
	jobs <-chan pageJob,
	results []string,
	progressBar *pb.ProgressBar,
) {
	defer waitGroup.Done()

	for job := range jobs {
		if ctx.Err() != nil {
			pp.log.Warn("Context canceled, skipping page %d", job.pageIndex+1)

			continue
		}

		processErr := pp.processSinglePage(bookName, job)
		if processErr != nil {
			pp.log.Warn("Failed to render page %d of %s: %v", job.pageIndex+1, bookName, processErr)
		} else {
			results[job.pageIndex] = job.outputPath
		}

		progressBar.Increment()
	}
}

func (pp *PageProcessor) processSinglePage(bookName string, job pageJob) error {
	img, renderErr := pp.pages.RenderRecord(bookName, job.pageIndex, job.record)
	if renderErr != nil {
		return fmt.Errorf("rendering failed: %w", renderErr)
	}

	return textimage.Save(img, job.outputPath)
}

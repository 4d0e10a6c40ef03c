package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/epaper-book-tools/internal/pdftext"
	"github.com/book-expert/epaper-book-tools/internal/reader"
	"github.com/book-expert/epaper-book-tools/internal/settings"
)

// job represents the context for processing a single message.
type job struct {
	msg          jetstream.Msg
	jetStream    jetstream.JetStream
	stores       stores
	nats         settings.NATSConfig
	conv         *converter
	appLogger    *logger.Logger
	event        *events.PDFCreatedEvent
	header       *events.EventHeader
	workDir      string
	localPDFPath string
}

// unmarshalEvent unmarshals the PDFCreatedEvent from a message body.
func unmarshalEvent(data []byte) (*events.PDFCreatedEvent, error) {
	var event events.PDFCreatedEvent

	err := json.Unmarshal(data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal PDFCreatedEvent: %w", err)
	}

	return &event, nil
}

// run executes the full lifecycle of a job. A PDF that cannot be fetched, opened or that
// has no pages is terminated. Other failures are retried.
func (j *job) run(ctx context.Context) {
	j.appLogger.Info(
		"Received job for WorkflowID [%s]: processing PDF key '%s'",
		j.header.WorkflowID,
		j.event.PDFKey,
	)

	progErr := j.msg.InProgress()
	if progErr != nil {
		j.appLogger.Warn("Failed to send InProgress update: %v", progErr)
	}

	dirErr := j.setupWorkDir()
	if dirErr != nil {
		j.nak(dirErr)

		return
	}
	defer j.cleanupWorkDir()

	downloadErr := j.downloadPDF(ctx)
	if downloadErr != nil {
		j.term(downloadErr)

		return
	}

	result, convErr := j.conv.convert(ctx, j.localPDFPath, j.workDir)
	if convErr != nil {
		if isPermanent(convErr) {
			j.term(convErr)
		} else {
			j.nak(convErr)
		}

		return
	}

	uploadErr := j.uploadBook(ctx, result)
	if uploadErr != nil {
		j.nak(uploadErr)

		return
	}

	j.publishPages(ctx, result)
	j.ack()
}

// isPermanent reports failures that a redelivery cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, pdftext.ErrDocumentOpen) || errors.Is(err, reader.ErrEmptyBook)
}

func (j *job) setupWorkDir() error {
	workDir, err := os.MkdirTemp("", workDirPrefix(j.header.WorkflowID))
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	j.workDir = workDir
	j.localPDFPath = filepath.Join(workDir, filepath.Base(j.event.PDFKey))

	return nil
}

// workDirPrefix is the temp dir pattern for a job. Runes of workflowID outside
// [A-Za-z0-9_-] become '_', since os.MkdirTemp rejects a pattern with a path separator.
func workDirPrefix(workflowID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, workflowID)

	return "epaper-" + safe + "-"
}

func (j *job) cleanupWorkDir() {
	err := os.RemoveAll(j.workDir)
	if err != nil {
		j.appLogger.Warn("Failed to remove temp directory '%s': %v", j.workDir, err)
	}
}

func (j *job) downloadPDF(ctx context.Context) error {
	err := j.stores.pdf.GetFile(ctx, j.event.PDFKey, j.localPDFPath)
	if err != nil {
		return fmt.Errorf("failed to get PDF '%s' from object store: %w", j.event.PDFKey, err)
	}

	return nil
}

func (j *job) uploadBook(ctx context.Context, result conversion) error {
	objectName := bookObjectName(j.header, result.book.Name)

	uploadErr := uploadFileToObjectStore(ctx, j.stores.book, objectName, result.bookPath)
	if uploadErr != nil {
		return fmt.Errorf("failed to upload book '%s': %w", objectName, uploadErr)
	}

	j.appLogger.Info("Job [%s]: Uploaded '%s'", j.header.WorkflowID, objectName)

	return nil
}

// publishPages uploads every rendered page and announces it. Individual failures are
// logged and do not fail the job.
func (j *job) publishPages(ctx context.Context, result conversion) {
	totalPages := len(result.book.Pages)

	j.appLogger.Info("Job [%s]: Found %d PNG(s) to publish.", j.header.WorkflowID, len(result.pagePaths))

	for index, localPNGPath := range result.pagePaths {
		if localPNGPath == "" {
			continue
		}

		j.publishSinglePage(ctx, localPNGPath, totalPages, index)
	}
}

func (j *job) publishSinglePage(ctx context.Context, localPNGPath string, totalPages, index int) {
	objectName := pageObjectName(j.header, index)

	uploadErr := uploadFileToObjectStore(ctx, j.stores.png, objectName, localPNGPath)
	if uploadErr != nil {
		j.appLogger.Error("Job [%s]: Failed to upload '%s': %v", j.header.WorkflowID, objectName, uploadErr)

		return
	}

	publishErr := j.publishPNGCreatedEvent(ctx, objectName, totalPages, index+1)
	if publishErr != nil {
		j.appLogger.Error(
			"Job [%s]: Failed to publish event for '%s': %v",
			j.header.WorkflowID,
			objectName,
			publishErr,
		)

		return
	}

	j.appLogger.Info("Job [%s]: Published page %d of %d", j.header.WorkflowID, index+1, totalPages)
}

// publishPNGCreatedEvent marshals and publishes a PNGCreatedEvent.
func (j *job) publishPNGCreatedEvent(ctx context.Context, pngKey string, totalPages, pageNum int) error {
	eventJSON, marshalErr := json.Marshal(newPNGCreatedEvent(j.header, pngKey, totalPages, pageNum))
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal PNGCreatedEvent: %w", marshalErr)
	}

	_, pubErr := j.jetStream.Publish(ctx, j.nats.PNGCreatedSubject, eventJSON)
	if pubErr != nil {
		return fmt.Errorf("failed to publish PNGCreatedEvent: %w", pubErr)
	}

	return nil
}

func (j *job) ack() {
	err := j.msg.Ack()
	if err != nil {
		j.appLogger.Error("Job [%s]: Failed to acknowledge message: %v", j.header.WorkflowID, err)

		return
	}

	j.appLogger.Success("Job [%s]: Processing complete. Acknowledged.", j.header.WorkflowID)
}

func (j *job) nak(reason error) {
	j.appLogger.Error("NAK'ing message for job [%s]: %v", j.header.WorkflowID, reason)

	err := j.msg.Nak()
	if err != nil {
		j.appLogger.Error("Failed to NAK message: %v", err)
	}
}

func (j *job) term(reason error) {
	j.appLogger.Error("Terminating message for job [%s]: %v", j.header.WorkflowID, reason)

	err := j.msg.Term()
	if err != nil {
		j.appLogger.Error("Failed to TERM message: %v", err)
	}
}

// newPNGCreatedEvent announces one rendered page, carrying over the workflow identity.
func newPNGCreatedEvent(header *events.EventHeader, pngKey string, totalPages, pageNum int) events.PNGCreatedEvent {
	return events.PNGCreatedEvent{
		Header: events.EventHeader{
			WorkflowID: header.WorkflowID,
			UserID:     header.UserID,
			TenantID:   header.TenantID,
			EventID:    uuid.New().String(),
			Timestamp:  time.Now(),
		},
		PNGKey:     pngKey,
		PageNumber: pageNum,
		TotalPages: totalPages,
	}
}

func bookObjectName(header *events.EventHeader, name string) string {
	return fmt.Sprintf("%s/%s/%s.json", header.TenantID, header.WorkflowID, name)
}

func pageObjectName(header *events.EventHeader, index int) string {
	return fmt.Sprintf("%s/%s/%s", header.TenantID, header.WorkflowID, filepath.Base(reader.PagePath("", index)))
}

func uploadFileToObjectStore(
	ctx context.Context,
	store jetstream.ObjectStore,
	objectName, filePath string,
) (err error) {
	file, openErr := os.Open(filePath)
	if openErr != nil {
		return fmt.Errorf("failed to open file for upload: %w", openErr)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close file '%s': %w", filePath, closeErr))
		}
	}()

	_, putErr := store.Put(ctx, jetstream.ObjectMeta{Name: objectName}, file)
	if putErr != nil {
		return fmt.Errorf("failed to put file in object store: %w", putErr)
	}

	return nil
}

// conversion is what a PDF turns into inside a job's work directory.
type conversion struct {
	book     pdftext.Book
	bookPath string
	// pagePaths has one entry per page; pages that failed to render are "".
	pagePaths []string
}

// converter extracts a book from a PDF and renders its pages as screen bitmaps.
type converter struct {
	opener  pdftext.Opener
	pages   *reader.PageRenderer
	log     *logger.Logger
	workers int
}

func (c *converter) convert(ctx context.Context, pdfPath, workDir string) (conversion, error) {
	processor := pdftext.NewProcessorWithOpener(&pdftext.Options{
		ProgressBarOutput: io.Discard,
		Console:           io.Discard,
		InputPath:         pdfPath,
		OutputDir:         workDir,
	}, c.opener, c.log)

	book, extractErr := processor.ExtractFile(ctx, pdfPath)
	if extractErr != nil {
		return conversion{}, extractErr
	}

	bookPath, writeErr := pdftext.WriteBook(book, workDir)
	if writeErr != nil {
		return conversion{}, writeErr
	}

	pngDir := filepath.Join(workDir, "png")

	written, renderErr := reader.NewPageProcessor(c.pages, c.workers, io.Discard, c.log).RenderAll(ctx, book, pngDir)
	if renderErr != nil {
		return conversion{}, fmt.Errorf("failed to render pages: %w", renderErr)
	}

	rendered := make(map[string]bool, len(written))
	for _, path := range written {
		rendered[path] = true
	}

	pagePaths := make([]string, len(book.Pages))

	for index := range book.Pages {
		path := reader.PagePath(pngDir, index)
		if rendered[path] {
			pagePaths[index] = path
		}
	}

	return conversion{book: book, bookPath: bookPath, pagePaths: pagePaths}, nil
}

// This file orchestrates the e-paper service, initializing and running the NATS worker
// that turns uploaded PDFs into book JSON and screen bitmaps.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/epaper-book-tools/internal/pdftext"
	"github.com/book-expert/epaper-book-tools/internal/reader"
	"github.com/book-expert/epaper-book-tools/internal/settings"
	"github.com/book-expert/epaper-book-tools/internal/textimage"
)

// ErrInvalidNATSConfig is returned for an empty or colliding stream or bucket name.
var ErrInvalidNATSConfig = errors.New("invalid NATS configuration")

// Names used when the configuration leaves them empty.
const (
	defaultPDFStreamName         = "PDF_CREATED"
	defaultPDFConsumerName       = "epaper-service"
	defaultPDFCreatedSubject     = "pdf.created"
	defaultPDFObjectStoreBucket  = "pdfs"
	defaultPNGStreamName         = "PNG_CREATED"
	defaultPNGCreatedSubject     = "png.created"
	defaultPNGObjectStoreBucket  = "pngs"
	defaultBookObjectStoreBucket = "books"
)

// main is the entry point of the application.
func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)

	runErr := run(ctx)

	stop()

	if runErr != nil {
		log.Printf("Fatal application error: %v", runErr)
		os.Exit(1)
	}

	log.Println("Application shut down gracefully.")
}

// run initializes all components and starts the message processing loop.
func run(ctx context.Context) error {
	cfg, appLogger, setupErr := setupConfigAndLogger()
	if setupErr != nil {
		return setupErr
	}
	defer settings.CloseLogger(appLogger)

	conv, convErr := newConverter(cfg, appLogger)
	if convErr != nil {
		return convErr
	}

	natsConnection, connErr := nats.Connect(cfg.NATS.URL)
	if connErr != nil {
		return fmt.Errorf("failed to connect to NATS: %w", connErr)
	}
	defer natsConnection.Close()

	appLogger.Info("Connected to NATS server at %s", natsConnection.ConnectedUrl())

	jetStream, jsErr := jetstream.New(natsConnection)
	if jsErr != nil {
		return fmt.Errorf("failed to create JetStream context: %w", jsErr)
	}

	jsSetupErr := setupJetStream(ctx, jetStream, cfg)
	if jsSetupErr != nil {
		return fmt.Errorf("failed to set up JetStream resources: %w", jsSetupErr)
	}

	consumer, consumerErr := jetStream.Consumer(
		ctx,
		cfg.NATS.PDFStreamName,
		cfg.NATS.PDFConsumerName,
	)
	if consumerErr != nil {
		return fmt.Errorf("failed to get consumer: %w", consumerErr)
	}

	appLogger.Info("Worker is running, listening for jobs on '%s'...", cfg.NATS.PDFCreatedSubject)

	return processMessages(ctx, consumer, jetStream, cfg, conv, appLogger)
}

// setupConfigAndLogger loads configuration, from EPAPER_CONFIG_URL when it is set and
// from the local project.toml otherwise, and sets up the main application logger.
func setupConfigAndLogger() (*settings.Config, *logger.Logger, error) {
	cfg, projectRoot, loadErr := loadConfig(os.Getenv(settings.EnvConfigURL))
	if loadErr != nil {
		return nil, nil, loadErr
	}

	applyNATSDefaults(&cfg.NATS)

	validateErr := validateNATSConfig(cfg.NATS)
	if validateErr != nil {
		return nil, nil, validateErr
	}

	appLogger, loggerErr := settings.NewLogger(projectRoot, cfg.Paths.BaseLogsDir, "epaper_service")
	if loggerErr != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", loggerErr)
	}

	return &cfg, appLogger, nil
}

func loadConfig(configURL string) (settings.Config, string, error) {
	if configURL == "" {
		return settings.Load(".")
	}

	tempLogger, tempLoggerErr := logger.New(os.TempDir(), "epaper-service-bootstrap.log")
	if tempLoggerErr != nil {
		return settings.Config{}, "", fmt.Errorf("failed to create bootstrap logger: %w", tempLoggerErr)
	}
	defer settings.CloseLogger(tempLogger)

	cfg, urlErr := settings.LoadFromURL(configURL, tempLogger)
	if urlErr != nil {
		return settings.Config{}, "", urlErr
	}

	log.Printf("Configuration loaded from %s", configURL)

	return cfg, ".", nil
}

// applyNATSDefaults fills every empty NATS name with the service default.
func applyNATSDefaults(cfg *settings.NATSConfig) {
	cfg.URL = settings.String(cfg.URL, nats.DefaultURL)
	cfg.PDFStreamName = settings.String(cfg.PDFStreamName, defaultPDFStreamName)
	cfg.PDFConsumerName = settings.String(cfg.PDFConsumerName, defaultPDFConsumerName)
	cfg.PDFCreatedSubject = settings.String(cfg.PDFCreatedSubject, defaultPDFCreatedSubject)
	cfg.PDFObjectStoreBucket = settings.String(cfg.PDFObjectStoreBucket, defaultPDFObjectStoreBucket)
	cfg.PNGStreamName = settings.String(cfg.PNGStreamName, defaultPNGStreamName)
	cfg.PNGCreatedSubject = settings.String(cfg.PNGCreatedSubject, defaultPNGCreatedSubject)
	cfg.PNGObjectStoreBucket = settings.String(cfg.PNGObjectStoreBucket, defaultPNGObjectStoreBucket)
	cfg.BookObjectStoreBucket = settings.String(cfg.BookObjectStoreBucket, defaultBookObjectStoreBucket)
}

// validateNATSConfig rejects bucket and stream names that would collide.
func validateNATSConfig(cfg settings.NATSConfig) error {
	if cfg.PDFStreamName == cfg.PNGStreamName {
		return fmt.Errorf("pdf and png streams share the name %q: %w", cfg.PDFStreamName, ErrInvalidNATSConfig)
	}

	seen := make(map[string]bool)

	for _, bucket := range []string{
		cfg.PDFObjectStoreBucket,
		cfg.PNGObjectStoreBucket,
		cfg.BookObjectStoreBucket,
	} {
		if bucket == "" {
			return fmt.Errorf("object store bucket: %w", ErrInvalidNATSConfig)
		}

		if seen[bucket] {
			return fmt.Errorf("object store bucket %q is configured twice: %w", bucket, ErrInvalidNATSConfig)
		}

		seen[bucket] = true
	}

	return nil
}

// newConverter builds the extraction and page rendering pipeline from the configuration.
func newConverter(cfg *settings.Config, appLogger *logger.Logger) (*converter, error) {
	opener, openerErr := pdftext.NewOpener(cfg.Extract.Backend)
	if openerErr != nil {
		return nil, fmt.Errorf("failed to select PDF backend: %w", openerErr)
	}

	pages, pagesErr := reader.NewPageRenderer(
		textimage.NewRenderer(textimage.DefaultResolver(), appLogger),
		reader.LayoutFromConfig(cfg.Reader),
		appLogger,
	)
	if pagesErr != nil {
		return nil, fmt.Errorf("failed to set up page rendering: %w", pagesErr)
	}

	return &converter{
		opener:  opener,
		pages:   pages,
		log:     appLogger,
		workers: cfg.Reader.Workers,
	}, nil
}

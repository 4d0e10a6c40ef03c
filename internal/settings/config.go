// Package settings loads the shared project configuration and sets up file logging for
// the command-line tools.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override the configuration file.
const (
	EnvConfigURL = "EPAPER_CONFIG_URL"
	EnvLogsDir   = "EPAPER_LOGS_DIR"
	EnvNATSURL   = "EPAPER_NATS_URL"
	EnvBackend   = "EPAPER_PDF_BACKEND"
	EnvWorkers   = "EPAPER_WORKERS"
)

// PathsConfig holds common path configurations.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// RenderConfig configures the text-to-image tool.
type RenderConfig struct {
	Text     string  `toml:"text"`
	Font     string  `toml:"font"`
	Output   string  `toml:"output"`
	Width    int     `toml:"width"`
	Height   int     `toml:"height"`
	FontSize float64 `toml:"font_size"`
}

// ExtractConfig configures the pdf-to-json tool.
type ExtractConfig struct {
	Input     string `toml:"input"`
	OutputDir string `toml:"output_dir"`
	Backend   string `toml:"backend"`
}

// ReaderConfig configures the e-paper reader and the page bitmaps it draws.
type ReaderConfig struct {
	Book         string  `toml:"book"`
	ProgressFile string  `toml:"progress_file"`
	OutputDir    string  `toml:"output_dir"`
	Font         string  `toml:"font"`
	ScreenWidth  int     `toml:"screen_width"`
	ScreenHeight int     `toml:"screen_height"`
	CharsPerLine int     `toml:"chars_per_line"`
	LineHeight   int     `toml:"line_height"`
	Workers      int     `toml:"workers"`
	BufferSize   int     `toml:"buffer_size"`
	FontSize     float64 `toml:"font_size"`
}

// NATSConfig holds NATS-specific configuration for the e-paper service.
type NATSConfig struct {
	URL                   string `toml:"url"`
	PDFStreamName         string `toml:"pdf_stream_name"`
	PDFConsumerName       string `toml:"pdf_consumer_name"`
	PDFCreatedSubject     string `toml:"pdf_created_subject"`
	PDFObjectStoreBucket  string `toml:"pdf_object_store_bucket"`
	PNGStreamName         string `toml:"png_stream_name"`
	PNGCreatedSubject     string `toml:"png_created_subject"`
	PNGObjectStoreBucket  string `toml:"png_object_store_bucket"`
	BookObjectStoreBucket string `toml:"book_object_store_bucket"`
}

// Config represents the structure of the project.toml file.
type Config struct {
	Paths   PathsConfig   `toml:"paths"`
	Render  RenderConfig  `toml:"render"`
	Extract ExtractConfig `toml:"extract"`
	Reader  ReaderConfig  `toml:"reader"`
	NATS    NATSConfig    `toml:"nats"`
}

// Load reads .env (if present) into the environment, locates project.toml from start and
// decodes it, then applies environment overrides. Without a project file the returned
// root is start and the configuration is empty.
func Load(start string) (Config, string, error) {
	loadDotEnv(filepath.Join(start, ".env"))

	projectRoot, configPath, findErr := configurator.FindProjectRoot(start)
	if findErr != nil {
		cfg := Config{}
		ApplyEnv(&cfg)

		return cfg, start, nil
	}

	loadDotEnv(filepath.Join(projectRoot, ".env"))

	cfg, loadErr := SafeLoadFile(configPath)
	if loadErr != nil {
		return Config{}, "", loadErr
	}

	ApplyEnv(&cfg)

	return cfg, projectRoot, nil
}

// loadDotEnv loads a dotenv file without overriding variables that are already set.
func loadDotEnv(path string) {
	_ = godotenv.Load(path)
}

// SafeLoadFile loads the TOML config, allowing missing file without error.
func SafeLoadFile(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}

		return Config{}, fmt.Errorf("error loading config file: %w", err)
	}

	return cfg, nil
}

// LoadFile reads and parses a project.toml file.
func LoadFile(path string) (Config, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", readErr)
	}

	var cfg Config

	decodeErr := toml.Unmarshal(data, &cfg)
	if decodeErr != nil {
		return Config{}, fmt.Errorf("failed to decode config file: %w", decodeErr)
	}

	return cfg, nil
}

// LoadFromURL fetches the configuration from a remote project.toml.
func LoadFromURL(url string, log *logger.Logger) (Config, error) {
	var cfg Config

	loadErr := configurator.LoadFromURL(url, &cfg, log)
	if loadErr != nil {
		return Config{}, fmt.Errorf("failed to load configuration from URL %s: %w", url, loadErr)
	}

	ApplyEnv(&cfg)

	return cfg, nil
}

// ApplyEnv overrides cfg with the EPAPER_* environment variables that are set.
func ApplyEnv(cfg *Config) {
	if value := os.Getenv(EnvLogsDir); value != "" {
		cfg.Paths.BaseLogsDir = value
	}

	if value := os.Getenv(EnvNATSURL); value != "" {
		cfg.NATS.URL = value
	}

	if value := os.Getenv(EnvBackend); value != "" {
		cfg.Extract.Backend = value
	}

	if workers, atoiErr := strconv.Atoi(os.Getenv(EnvWorkers)); atoiErr == nil && workers > 0 {
		cfg.Reader.Workers = workers
	}
}

// NewLogger creates a timestamped log file for tool under logDir, or under
// <projectRoot>/logs/<tool> when logDir is empty.
func NewLogger(projectRoot, logDir, tool string) (*logger.Logger, error) {
	if logDir == "" {
		logDir = filepath.Join(projectRoot, "logs", tool)
	}

	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("20060102_150405"))

	log, err := logger.New(logDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// CloseLogger closes log, reporting a failure on stderr.
func CloseLogger(log *logger.Logger) {
	closeErr := log.Close()
	if closeErr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
	}
}

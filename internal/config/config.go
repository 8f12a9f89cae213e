package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Bryndin/video-upscaler/pkg/icron"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// Server Configuration:
// - HTTP_ADDR: API listen address (default: :8980)
// - DATA_DIR: directory holding the sqlite job database (default: ./data)
// - LOG_LEVEL: debug|info|warn|error|fatal (default: info)
//
// Tool Configuration:
// - FFMPEG_PATH: ffmpeg binary (default: ffmpeg)
// - FFPROBE_PATH: ffprobe binary (default: ffprobe)
// - REALESRGAN_PATH: upscaler binary (default: realesrgan-ncnn-vulkan)
//
// Pipeline Configuration:
// - WORK_DIR: workspace root for intermediate frames (default: os temp dir)
// - UPSCALE_BATCH_SIZE: frames per upscaler invocation (default: 200)
// - UPSCALE_RETRIES: retries per failed batch (default: 2)
// - UPSCALE_CONCURRENCY: concurrent batches within a job (default: 1)
// - UPSCALE_BATCH_TIMEOUT: per-batch timeout in seconds, 0 disables (default: 0)
// - QUEUE_WORKERS: jobs processed in parallel (default: 1)
// - SWEEP_CRON: orphan workspace sweep schedule, seconds field included
//   (default: "0 0 * * * *", hourly)

type Config struct {
	// Server Configuration
	Server ServerConfig `json:"server"`

	// External Tool Configuration
	Tools ToolsConfig `json:"tools"`

	// Pipeline Configuration
	Pipeline PipelineConfig `json:"pipeline"`
}

// ServerConfig holds the HTTP and storage configuration.
type ServerConfig struct {
	HTTPAddr string `json:"http_addr"`
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
}

// ToolsConfig holds the external binary locations.
type ToolsConfig struct {
	FFmpeg     string `json:"ffmpeg"`
	FFprobe    string `json:"ffprobe"`
	Realesrgan string `json:"realesrgan"`
}

// PipelineConfig holds the upscale pipeline tunables.
type PipelineConfig struct {
	WorkDir      string `json:"work_dir"`
	BatchSize    int    `json:"batch_size"`
	Retries      int    `json:"retries"`
	Concurrency  int    `json:"concurrency"`
	BatchTimeout int    `json:"batch_timeout_seconds"`
	QueueWorkers int    `json:"queue_workers"`
	SweepCron    string `json:"sweep_cron"`
}

// BatchTimeoutDuration returns the per-batch timeout, zero meaning disabled.
func (c PipelineConfig) BatchTimeoutDuration() time.Duration {
	if c.BatchTimeout <= 0 {
		return 0
	}
	return time.Duration(c.BatchTimeout) * time.Second
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			HTTPAddr: getEnvString("HTTP_ADDR", ":8980"),
			DataDir:  getEnvString("DATA_DIR", "./data"),
			LogLevel: getEnvString("LOG_LEVEL", "info"),
		},
		Tools: ToolsConfig{
			FFmpeg:     getEnvString("FFMPEG_PATH", "ffmpeg"),
			FFprobe:    getEnvString("FFPROBE_PATH", "ffprobe"),
			Realesrgan: getEnvString("REALESRGAN_PATH", "realesrgan-ncnn-vulkan"),
		},
		Pipeline: PipelineConfig{
			WorkDir:      getEnvString("WORK_DIR", os.TempDir()),
			BatchSize:    getEnvInt("UPSCALE_BATCH_SIZE", 200),
			Retries:      getEnvInt("UPSCALE_RETRIES", 2),
			Concurrency:  getEnvInt("UPSCALE_CONCURRENCY", 1),
			BatchTimeout: getEnvInt("UPSCALE_BATCH_TIMEOUT", 0),
			QueueWorkers: getEnvInt("QUEUE_WORKERS", 1),
			SweepCron:    getEnvString("SWEEP_CRON", "0 0 * * * *"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("UPSCALE_BATCH_SIZE must be positive")
	}
	if c.Pipeline.Retries < 0 {
		return fmt.Errorf("UPSCALE_RETRIES must not be negative")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("UPSCALE_CONCURRENCY must be positive")
	}
	if c.Pipeline.QueueWorkers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be positive")
	}
	if _, err := icron.Parse(c.Pipeline.SweepCron); err != nil {
		return fmt.Errorf("SWEEP_CRON: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

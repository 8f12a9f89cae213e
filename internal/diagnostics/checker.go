// Package diagnostics validates external tools and writable directories at
// startup and on demand, so a missing ffmpeg or read-only work dir surfaces
// before any job is accepted.
package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Bryndin/video-upscaler/internal/config"
)

type ItemStatus string

const (
	StatusPass ItemStatus = "pass"
	StatusFail ItemStatus = "fail"
)

type Item struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Status  ItemStatus `json:"status"`
	Message string     `json:"message"`
	Hint    string     `json:"hint,omitempty"`
}

type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	HasFailures bool      `json:"has_failures"`
	Items       []Item    `json:"items"`
}

// Checker validates external tools and required filesystem paths.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(cfg *config.Config) Report {
	items := []Item{
		c.checkTool("ffmpeg", cfg.Tools.FFmpeg),
		c.checkTool("ffprobe", cfg.Tools.FFprobe),
		c.checkTool("realesrgan", cfg.Tools.Realesrgan),
		c.checkWritableDir("work_dir", "Work directory", cfg.Pipeline.WorkDir),
		c.checkWritableDir("data_dir", "Data directory", cfg.Server.DataDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == StatusFail {
			hasFailures = true
			break
		}
	}

	return Report{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a required CLI executable is resolvable. The configured
// value may be a bare name looked up on PATH or an absolute path.
func (c *Checker) checkTool(id, bin string) Item {
	if strings.TrimSpace(bin) == "" {
		return Item{
			ID:      "tool_" + id,
			Name:    id,
			Status:  StatusFail,
			Message: "Tool path is empty.",
			Hint:    "Configure the binary path or leave the default to use PATH lookup.",
		}
	}

	path, err := c.lookPath(bin)
	if err != nil {
		return Item{
			ID:      "tool_" + id,
			Name:    bin,
			Status:  StatusFail,
			Message: fmt.Sprintf("Tool not found: %s", bin),
			Hint:    "Install it and ensure the binary is available on PATH before submitting a job.",
		}
	}

	return Item{
		ID:      "tool_" + id,
		Name:    bin,
		Status:  StatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkWritableDir validates directory existence and write access.
func (c *Checker) checkWritableDir(id, name, dir string) Item {
	item := Item{
		ID:   id,
		Name: name,
	}

	if strings.TrimSpace(dir) == "" {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("%s is empty.", name)
		item.Hint = "Set a writable directory."
		return item
	}

	if err := c.mkdirAll(dir, 0o755); err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Cannot create directory: %s", dir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(dir, ".write-check-*")
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Directory is not writable: %s", dir)
		item.Hint = "Choose a writable directory."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = StatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", filepath.Clean(dir))
	return item
}

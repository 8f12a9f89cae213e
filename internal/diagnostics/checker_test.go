package diagnostics

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Bryndin/video-upscaler/internal/config"
)

func testConfig(workDir, dataDir string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{DataDir: dataDir},
		Tools: config.ToolsConfig{
			FFmpeg:     "ffmpeg",
			FFprobe:    "ffprobe",
			Realesrgan: "realesrgan-ncnn-vulkan",
		},
		Pipeline: config.PipelineConfig{WorkDir: workDir},
	}
}

func TestChecker_AllPass(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(testConfig(t.TempDir(), t.TempDir()))
	require.False(t, report.HasFailures)
	require.Len(t, report.Items, 5)
	for _, item := range report.Items {
		require.Equal(t, StatusPass, item.Status, item.ID)
	}
	require.False(t, report.GeneratedAt.IsZero())
}

func TestChecker_MissingTool(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) {
			if name == "realesrgan-ncnn-vulkan" {
				return "", errors.New("not found")
			}
			return "/usr/bin/" + name, nil
		},
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(testConfig(t.TempDir(), t.TempDir()))
	require.True(t, report.HasFailures)

	var failed []string
	for _, item := range report.Items {
		if item.Status == StatusFail {
			failed = append(failed, item.ID)
			require.NotEmpty(t, item.Hint)
		}
	}
	require.Equal(t, []string{"tool_realesrgan"}, failed)
}

func TestChecker_UnwritableWorkDir(t *testing.T) {
	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		func(string, os.FileMode) error { return nil },
		func(dir, pattern string) (*os.File, error) { return nil, errors.New("read-only filesystem") },
		os.Remove,
	)

	report := checker.Run(testConfig("/work", "/data"))
	require.True(t, report.HasFailures)
	for _, item := range report.Items {
		if item.ID == "work_dir" || item.ID == "data_dir" {
			require.Equal(t, StatusFail, item.Status)
		}
	}
}

func TestChecker_EmptyToolPath(t *testing.T) {
	cfg := testConfig(t.TempDir(), t.TempDir())
	cfg.Tools.FFmpeg = " "

	checker := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(cfg)
	require.True(t, report.HasFailures)
	require.Equal(t, StatusFail, report.Items[0].Status)
}

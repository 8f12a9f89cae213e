package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Bryndin/video-upscaler/internal/media"
	"github.com/Bryndin/video-upscaler/internal/upscale"
	"github.com/Bryndin/video-upscaler/internal/workspace"
	"github.com/Bryndin/video-upscaler/pkg/file"
)

const probeJSON = `{
	"streams": [
		{"codec_type": "video", "avg_frame_rate": "24/1"},
		{"codec_type": "audio"}
	],
	"format": {"duration": "0.42"}
}`

// toolRunner simulates ffprobe, ffmpeg and the upscaler in one fake,
// dispatching on the binary name and arguments.
type toolRunner struct {
	mu           sync.Mutex
	frameCount   int
	failUpscale  bool
	blockUpscale chan struct{}
	calls        []string
}

func (r *toolRunner) record(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

func (r *toolRunner) Run(ctx context.Context, name string, args []string, sink media.LineSink) (media.Result, error) {
	switch {
	case name == "realesrgan-ncnn-vulkan":
		r.record("upscale")
		if r.blockUpscale != nil {
			select {
			case <-r.blockUpscale:
			case <-ctx.Done():
				return media.Result{ExitCode: -1}, ctx.Err()
			}
		}
		if r.failUpscale {
			return media.Result{ExitCode: 1, StderrTail: "device lost"}, fmt.Errorf("exit status 1")
		}
		inDir := argValue(args, "-i")
		outDir := argValue(args, "-o")
		names, err := file.ListByExt(inDir, media.FrameExt)
		if err != nil {
			return media.Result{ExitCode: 1}, err
		}
		for _, n := range names {
			if err := os.WriteFile(filepath.Join(outDir, n), []byte("up:"+n), 0o644); err != nil {
				return media.Result{ExitCode: 1}, err
			}
		}
		return media.Result{}, nil

	case contains(args, "-qscale:v"):
		r.record("extract-frames")
		if sink != nil {
			sink("frame= 10 fps=0.0")
		}
		frameDir := filepath.Dir(args[len(args)-1])
		for i := 1; i <= r.frameCount; i++ {
			n := fmt.Sprintf(media.FramePattern, i)
			if err := os.WriteFile(filepath.Join(frameDir, n), []byte(n), 0o644); err != nil {
				return media.Result{ExitCode: 1}, err
			}
		}
		return media.Result{}, nil

	case contains(args, "-vn"):
		r.record("extract-audio")
		return media.Result{}, os.WriteFile(args[len(args)-1], []byte("audio"), 0o644)

	case contains(args, "-framerate"):
		r.record("encode")
		return media.Result{}, os.WriteFile(args[len(args)-1], []byte("video"), 0o644)
	}
	return media.Result{ExitCode: 1}, fmt.Errorf("unexpected invocation: %s %v", name, args)
}

func (r *toolRunner) Output(_ context.Context, name string, _ []string) ([]byte, error) {
	r.record("probe")
	return []byte(probeJSON), nil
}

func contains(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

type fixture struct {
	pipeline *Pipeline
	runner   *toolRunner
	workRoot string
	spec     JobSpec
}

func newFixture(t *testing.T, frameCount int) *fixture {
	t.Helper()
	workRoot := t.TempDir()
	inputDir := t.TempDir()
	outputDir := t.TempDir()

	inputPath := filepath.Join(inputDir, "clip.mkv")
	require.NoError(t, os.WriteFile(inputPath, []byte("source"), 0o644))

	runner := &toolRunner{frameCount: frameCount}
	ffmpeg := media.NewFFmpeg("ffmpeg", "ffprobe", runner)
	driver := upscale.NewDriver("realesrgan-ncnn-vulkan", runner, 2, 0)
	p := New(workspace.NewManager(workRoot), ffmpeg, driver, NewBus(0))

	return &fixture{
		pipeline: p,
		runner:   runner,
		workRoot: workRoot,
		spec: JobSpec{
			ID:          "job-1",
			InputPath:   inputPath,
			OutputDir:   outputDir,
			Model:       upscale.ModelAnimeVideoV3,
			Scale:       2,
			BatchSize:   4,
			Concurrency: 1,
		},
	}
}

func (f *fixture) eventTypes(t *testing.T) []EventType {
	t.Helper()
	events := f.pipeline.Bus().Since(0)
	types := make([]EventType, 0, len(events))
	for _, e := range events {
		if e.Type == EventLog || e.Type == EventStageProgress {
			continue
		}
		types = append(types, e.Type)
	}
	return types
}

func requireNoWorkspaces(t *testing.T, workRoot string) {
	t.Helper()
	entries, err := os.ReadDir(workRoot)
	require.NoError(t, err)
	require.Empty(t, entries, "workspace must be released")
}

func TestPipeline_SuccessfulRun(t *testing.T) {
	f := newFixture(t, 10)

	result, err := f.pipeline.Run(context.Background(), f.spec)
	require.NoError(t, err)
	require.Equal(t, 10, result.FrameCount)
	require.Equal(t, filepath.Join(f.spec.OutputDir, "upscaled_clip.mp4"), result.OutputPath)
	require.FileExists(t, result.OutputPath)
	require.Positive(t, result.Elapsed)

	require.Equal(t, []EventType{
		EventStageStarted, EventStageCompleted, // decomposing
		EventStageStarted, EventStageCompleted, // upscaling
		EventStageStarted, EventStageCompleted, // recomposing
		EventJobSucceeded,
	}, f.eventTypes(t))

	requireNoWorkspaces(t, f.workRoot)
}

func TestPipeline_EmitsBatchProgress(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.pipeline.Run(context.Background(), f.spec)
	require.NoError(t, err)

	var progress []int
	for _, e := range f.pipeline.Bus().Since(0) {
		if e.Type == EventStageProgress {
			require.Equal(t, StageUpscaling, e.Stage)
			require.Equal(t, 10, e.Total)
			progress = append(progress, e.Current)
		}
	}
	require.Equal(t, []int{4, 8, 10}, progress)
}

func TestPipeline_StreamsToolLogs(t *testing.T) {
	f := newFixture(t, 4)

	_, err := f.pipeline.Run(context.Background(), f.spec)
	require.NoError(t, err)

	found := false
	for _, e := range f.pipeline.Bus().Since(0) {
		if e.Type == EventLog && strings.Contains(e.Message, "frame=") {
			found = true
		}
	}
	require.True(t, found, "tool stderr is forwarded as log events")
}

func TestPipeline_UpscaleFailureCleansUp(t *testing.T) {
	f := newFixture(t, 10)
	f.runner.failUpscale = true

	_, err := f.pipeline.Run(context.Background(), f.spec)
	var upscaleErr *upscale.UpscaleError
	require.ErrorAs(t, err, &upscaleErr)

	events := f.pipeline.Bus().Since(0)
	last := events[len(events)-1]
	require.Equal(t, EventJobFailed, last.Type)
	require.Equal(t, "upscale", last.ErrorKind)

	requireNoWorkspaces(t, f.workRoot)
	entries, err2 := os.ReadDir(f.spec.OutputDir)
	require.NoError(t, err2)
	require.Empty(t, entries, "no partial output delivered")
}

func TestPipeline_BadInputFailsWithDecomposeError(t *testing.T) {
	f := newFixture(t, 10)
	f.spec.InputPath = filepath.Join(t.TempDir(), "missing.mkv")

	_, err := f.pipeline.Run(context.Background(), f.spec)
	var decErr *media.DecomposeError
	require.ErrorAs(t, err, &decErr)

	events := f.pipeline.Bus().Since(0)
	last := events[len(events)-1]
	require.Equal(t, EventJobFailed, last.Type)
	require.Equal(t, "decompose", last.ErrorKind)
	requireNoWorkspaces(t, f.workRoot)
}

func TestPipeline_CancellationMidUpscale(t *testing.T) {
	f := newFixture(t, 10)
	f.runner.blockUpscale = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := f.pipeline.Run(ctx, f.spec)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		f.runner.mu.Lock()
		defer f.runner.mu.Unlock()
		for _, c := range f.runner.calls {
			if c == "upscale" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}

	events := f.pipeline.Bus().Since(0)
	last := events[len(events)-1]
	require.Equal(t, EventJobCancelled, last.Type, "cancelled, not failed")
	requireNoWorkspaces(t, f.workRoot)
}

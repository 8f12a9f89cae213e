package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Bryndin/video-upscaler/internal/media"
	"github.com/Bryndin/video-upscaler/internal/upscale"
	"github.com/Bryndin/video-upscaler/internal/workspace"
	"github.com/Bryndin/video-upscaler/pkg/file"
	"github.com/Bryndin/video-upscaler/pkg/log"
)

// JobSpec is one upscale request, immutable once submitted.
type JobSpec struct {
	ID          string
	InputPath   string
	OutputDir   string
	Model       upscale.Model
	Scale       int
	BatchSize   int
	Concurrency int
}

// OutputName derives the final file name from the input file.
func (s JobSpec) OutputName() string {
	return "upscaled_" + filepath.Base(file.ReplaceExt(s.InputPath, ".mp4"))
}

// JobResult describes a successfully finished job.
type JobResult struct {
	OutputPath string
	FrameCount int
	Elapsed    time.Duration
}

// Pipeline sequences decompose, upscale and recompose for one job at a
// time, emitting progress events throughout.
type Pipeline struct {
	workspaces *workspace.Manager
	ffmpeg     *media.FFmpeg
	driver     *upscale.Driver
	bus        *Bus
}

func New(workspaces *workspace.Manager, ffmpeg *media.FFmpeg, driver *upscale.Driver, bus *Bus) *Pipeline {
	return &Pipeline{
		workspaces: workspaces,
		ffmpeg:     ffmpeg,
		driver:     driver,
		bus:        bus,
	}
}

// Bus exposes the event bus for subscribers.
func (p *Pipeline) Bus() *Bus {
	return p.bus
}

// Run executes the full pipeline for spec. The workspace is released on
// every exit path; the terminal event (succeeded, failed or cancelled) is
// always emitted exactly once.
func (p *Pipeline) Run(ctx context.Context, spec JobSpec) (JobResult, error) {
	start := time.Now()
	result := JobResult{}
	stage := StageQueued

	err := p.workspaces.With(spec.ID, func(ws *workspace.Workspace) error {
		sink := p.logSink(spec.ID)

		// Decompose. Upscaling never starts before the full frame
		// sequence is on disk: the upscaler works on a static input
		// directory per invocation.
		var err error
		stage, err = p.enterStage(ctx, spec.ID, stage, StageDecomposing)
		if err != nil {
			return err
		}
		stageStart := time.Now()
		dec, err := p.ffmpeg.Decompose(ctx, spec.InputPath, ws.FrameDir, ws.AudioDir, sink)
		if err != nil {
			return err
		}
		p.completeStage(spec.ID, StageDecomposing, stageStart)

		// Upscale.
		stage, err = p.enterStage(ctx, spec.ID, stage, StageUpscaling)
		if err != nil {
			return err
		}
		stageStart = time.Now()
		req := upscale.Request{
			FrameDir:   dec.FrameDir,
			FrameCount: dec.FrameCount,
			StageDir:   filepath.Join(ws.Root, "batches"),
			OutputDir:  ws.UpscaledDir,
		}
		opts := upscale.Options{
			Model:       spec.Model,
			Scale:       spec.Scale,
			BatchSize:   spec.BatchSize,
			Concurrency: spec.Concurrency,
		}
		err = p.driver.Run(ctx, req, opts, func(done, total int) {
			p.bus.Publish(Event{
				JobID:   spec.ID,
				Type:    EventStageProgress,
				Stage:   StageUpscaling,
				Current: done,
				Total:   total,
				Percent: 100 * float64(done) / float64(total),
			})
		}, sink)
		if err != nil {
			return err
		}
		p.completeStage(spec.ID, StageUpscaling, stageStart)

		// Recompose.
		stage, err = p.enterStage(ctx, spec.ID, stage, StageRecomposing)
		if err != nil {
			return err
		}
		stageStart = time.Now()
		outputPath := filepath.Join(spec.OutputDir, spec.OutputName())
		if err := p.ffmpeg.Recompose(ctx, ws.UpscaledDir, dec.FrameRate, dec.AudioPath, outputPath, sink); err != nil {
			return err
		}
		p.completeStage(spec.ID, StageRecomposing, stageStart)

		result.OutputPath = outputPath
		result.FrameCount = dec.FrameCount
		return nil
	})

	result.Elapsed = time.Since(start)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			p.bus.Publish(Event{
				JobID:      spec.ID,
				Type:       EventJobCancelled,
				Stage:      StageCancelled,
				DurationMS: result.Elapsed.Milliseconds(),
			})
			log.Info("Job %s cancelled after %s", spec.ID, result.Elapsed)
			return result, err
		}
		p.bus.Publish(Event{
			JobID:      spec.ID,
			Type:       EventJobFailed,
			Stage:      StageFailed,
			ErrorKind:  errorKind(err),
			Message:    err.Error(),
			DurationMS: result.Elapsed.Milliseconds(),
		})
		log.Error("Job %s failed in %s stage: %v", spec.ID, stage, err)
		return result, err
	}

	p.bus.Publish(Event{
		JobID:      spec.ID,
		Type:       EventJobSucceeded,
		Stage:      StageSucceeded,
		OutputPath: result.OutputPath,
		DurationMS: result.Elapsed.Milliseconds(),
	})
	log.Info("Job %s succeeded in %s (%d frames)", spec.ID, result.Elapsed, result.FrameCount)
	return result, nil
}

// enterStage checks cancellation, validates the transition, and emits the
// stage_started event.
func (p *Pipeline) enterStage(ctx context.Context, jobID string, from, to Stage) (Stage, error) {
	if err := ctx.Err(); err != nil {
		return from, err
	}
	if !validTransition(from, to) {
		return from, fmt.Errorf("invalid stage transition: %s -> %s", from, to)
	}
	p.bus.Publish(Event{
		JobID: jobID,
		Type:  EventStageStarted,
		Stage: to,
	})
	return to, nil
}

func (p *Pipeline) completeStage(jobID string, stage Stage, started time.Time) {
	p.bus.Publish(Event{
		JobID:      jobID,
		Type:       EventStageCompleted,
		Stage:      stage,
		DurationMS: time.Since(started).Milliseconds(),
	})
}

// logSink translates external tool stderr lines into log events as they
// arrive.
func (p *Pipeline) logSink(jobID string) media.LineSink {
	return func(line string) {
		p.bus.Publish(Event{
			JobID:    jobID,
			Type:     EventLog,
			Severity: "info",
			Message:  line,
		})
	}
}

// errorKind maps a pipeline error to its taxonomy name.
func errorKind(err error) string {
	var wsErr *workspace.WorkspaceError
	var decErr *media.DecomposeError
	var upErr *upscale.UpscaleError
	var recErr *media.RecomposeError
	switch {
	case errors.As(err, &wsErr):
		return "workspace"
	case errors.As(err, &decErr):
		return "decompose"
	case errors.As(err, &upErr):
		return "upscale"
	case errors.As(err, &recErr):
		return "recompose"
	default:
		return "internal"
	}
}

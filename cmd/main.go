package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/Bryndin/video-upscaler/internal/config"
	"github.com/Bryndin/video-upscaler/internal/diagnostics"
	"github.com/Bryndin/video-upscaler/internal/httpapi"
	"github.com/Bryndin/video-upscaler/internal/jobs"
	"github.com/Bryndin/video-upscaler/internal/media"
	"github.com/Bryndin/video-upscaler/internal/persistence"
	"github.com/Bryndin/video-upscaler/internal/pipeline"
	"github.com/Bryndin/video-upscaler/internal/upscale"
	"github.com/Bryndin/video-upscaler/internal/workspace"
	"github.com/Bryndin/video-upscaler/pkg/log"
)

// Workspaces older than this are considered orphaned by a dead process and
// removed by the scheduled sweep.
const orphanMaxAge = 24 * time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(log.ParseLevel(cfg.Server.LogLevel))

	checker := diagnostics.NewChecker()
	report := checker.Run(cfg)
	for _, item := range report.Items {
		if item.Status == diagnostics.StatusFail {
			log.Warn("Startup check %s failed: %s", item.ID, item.Message)
		}
	}

	store, err := persistence.NewSQLiteStore(filepath.Join(cfg.Server.DataDir, "upscaler.db"))
	if err != nil {
		log.Fatal("Failed to open job store: %v", err)
	}
	defer func() { _ = store.Close() }()

	workspaces := workspace.NewManager(cfg.Pipeline.WorkDir)
	runner := media.NewExecRunner()
	ffmpeg := media.NewFFmpeg(cfg.Tools.FFmpeg, cfg.Tools.FFprobe, runner)
	driver := upscale.NewDriver(cfg.Tools.Realesrgan, runner, cfg.Pipeline.Retries, cfg.Pipeline.BatchTimeoutDuration())
	bus := pipeline.NewBus(0)
	pipe := pipeline.New(workspaces, ffmpeg, driver, bus)

	queue := jobs.NewQueue(cfg.Pipeline.QueueWorkers, store)
	queue.Start(func(ctx context.Context, job *jobs.UpscaleJob) (string, error) {
		model, err := upscale.ParseModel(job.Payload.Model)
		if err != nil {
			return "", err
		}
		spec := pipeline.JobSpec{
			ID:          job.ID,
			InputPath:   job.Payload.InputPath,
			OutputDir:   job.Payload.OutputDir,
			Model:       model,
			Scale:       job.Payload.Scale,
			BatchSize:   job.Payload.BatchSize,
			Concurrency: job.Payload.Concurrency,
		}
		if spec.BatchSize <= 0 {
			spec.BatchSize = cfg.Pipeline.BatchSize
		}
		if spec.Concurrency <= 0 {
			spec.Concurrency = cfg.Pipeline.Concurrency
		}
		result, err := pipe.Run(ctx, spec)
		if err != nil {
			return "", err
		}
		return result.OutputPath, nil
	})

	sweeper := cron.New(cron.WithSeconds())
	if _, err := sweeper.AddFunc(cfg.Pipeline.SweepCron, func() {
		removed, err := workspaces.Sweep(orphanMaxAge)
		if err != nil {
			log.Error("Workspace sweep failed: %v", err)
			return
		}
		if removed > 0 {
			log.Info("Workspace sweep removed %d orphaned directories", removed)
		}
	}); err != nil {
		log.Fatal("Failed to schedule workspace sweep: %v", err)
	}
	sweeper.Start()

	server := httpapi.NewServer(queue, bus, cfg, httpapi.WithChecker(checker))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("HTTP shutdown: %v", err)
		}
	}()

	log.Info("Listening on %s", cfg.Server.HTTPAddr)
	if err := server.ListenAndServe(cfg.Server.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("HTTP server: %v", err)
	}

	<-sweeper.Stop().Done()
	queue.Stop()
}

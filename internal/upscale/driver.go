package upscale

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Bryndin/video-upscaler/internal/media"
	"github.com/Bryndin/video-upscaler/pkg/file"
)

// UpscaleError reports a batch that failed after exhausting its retries.
// A single failed batch fails the whole job: a gap in the frame sequence
// would corrupt the output's frame ordering.
type UpscaleError struct {
	Batch  int
	Reason string
	Tail   string
	Err    error
}

func (e *UpscaleError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("upscale batch %d: %s", e.Batch, e.Reason)
	}
	return fmt.Sprintf("upscale batch %d: %s\n%s", e.Batch, e.Reason, e.Tail)
}

func (e *UpscaleError) Unwrap() error { return e.Err }

// Options selects the model and tunables for one upscale run.
type Options struct {
	Model     Model
	Scale     int
	BatchSize int
	// Concurrency bounds how many batches run at once. Must not exceed
	// the usable accelerator budget; 1 means strictly sequential.
	Concurrency int
}

// Request describes the frame sequence to upscale.
type Request struct {
	// FrameDir holds the decomposed frames, zero-padded in frame order.
	FrameDir   string
	FrameCount int
	// StageDir receives the per-batch input/output subdirectories.
	StageDir string
	// OutputDir receives the merged upscaled sequence.
	OutputDir string
}

// ProgressFunc reports completed frames out of the total.
type ProgressFunc func(done, total int)

// Driver partitions a frame sequence into batches and feeds them to the
// external upscaler binary.
type Driver struct {
	bin     string
	runner  media.Runner
	retries int
	timeout time.Duration
}

// NewDriver builds a driver around the upscaler binary. retries is the
// number of re-attempts per failed batch; timeout bounds a single
// invocation and 0 disables it.
func NewDriver(bin string, runner media.Runner, retries int, timeout time.Duration) *Driver {
	if runner == nil {
		runner = media.NewExecRunner()
	}
	return &Driver{
		bin:     bin,
		runner:  runner,
		retries: retries,
		timeout: timeout,
	}
}

// Run upscales every frame in req. Batches execute with at most
// opts.Concurrency in flight; each batch's output is verified for
// completeness before it counts as done. On success the merged, ordered
// sequence is in req.OutputDir.
func (d *Driver) Run(ctx context.Context, req Request, opts Options, onProgress ProgressFunc, sink media.LineSink) error {
	if !ValidScale(opts.Scale) {
		return &UpscaleError{Reason: fmt.Sprintf("unsupported scale factor %d", opts.Scale)}
	}

	frames, err := file.ListByExt(req.FrameDir, media.FrameExt)
	if err != nil {
		return &UpscaleError{Reason: "cannot list input frames", Err: err}
	}
	if len(frames) != req.FrameCount {
		return &UpscaleError{
			Reason: fmt.Sprintf("frame dir holds %d frames, expected %d", len(frames), req.FrameCount),
		}
	}

	batches := Partition(req.FrameCount, opts.BatchSize)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var done atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	for i := range batches {
		batch := &batches[i]
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			batch.Status = BatchRunning
			if err := d.runBatch(groupCtx, req, frames, batch, opts, sink); err != nil {
				batch.Status = BatchFailed
				return err
			}
			batch.Status = BatchSucceeded
			if onProgress != nil {
				onProgress(int(done.Add(int64(batch.Size()))), req.FrameCount)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	return d.merge(req, batches)
}

// runBatch stages the batch's input frames, invokes the upscaler, and
// verifies output completeness, retrying within policy. The batch output
// directory is cleared between attempts so a partial run never pollutes
// the completeness check.
func (d *Driver) runBatch(ctx context.Context, req Request, frames []string, batch *Batch, opts Options, sink media.LineSink) error {
	inDir := filepath.Join(req.StageDir, fmt.Sprintf("in_%04d", batch.Index))
	outDir := filepath.Join(req.StageDir, fmt.Sprintf("out_%04d", batch.Index))

	if err := os.MkdirAll(inDir, 0o755); err != nil {
		return &UpscaleError{Batch: batch.Index, Reason: "cannot stage batch input", Err: err}
	}
	for _, name := range frames[batch.Start:batch.End] {
		src := filepath.Join(req.FrameDir, name)
		dst := filepath.Join(inDir, name)
		if err := linkOrCopy(src, dst); err != nil {
			return &UpscaleError{Batch: batch.Index, Reason: "cannot stage batch input", Err: err}
		}
	}

	var lastTail string
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch.Retries = attempt

		if err := os.RemoveAll(outDir); err != nil {
			return &UpscaleError{Batch: batch.Index, Reason: "cannot clear batch output", Err: err}
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return &UpscaleError{Batch: batch.Index, Reason: "cannot create batch output", Err: err}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if d.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d.timeout)
		}
		result, runErr := d.runner.Run(attemptCtx, d.bin, d.args(inDir, outDir, opts), sink)
		cancel()

		// Outer cancellation is not a retryable failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if runErr != nil {
			lastTail = result.StderrTail
			lastErr = runErr
			continue
		}

		count, err := file.CountByExt(outDir, media.FrameExt)
		if err != nil {
			return &UpscaleError{Batch: batch.Index, Reason: "cannot verify batch output", Err: err}
		}
		if count != batch.Size() {
			// Short counts indicate a silent partial failure.
			lastTail = result.StderrTail
			lastErr = fmt.Errorf("incomplete batch output: got %d frames, want %d", count, batch.Size())
			continue
		}
		return nil
	}

	return &UpscaleError{
		Batch:  batch.Index,
		Reason: fmt.Sprintf("failed after %d attempts", d.retries+1),
		Tail:   lastTail,
		Err:    lastErr,
	}
}

// merge moves every batch's output frames into the final ordered directory
// under the decomposer's numbering scheme.
func (d *Driver) merge(req Request, batches []Batch) error {
	total := 0
	for _, batch := range batches {
		outDir := filepath.Join(req.StageDir, fmt.Sprintf("out_%04d", batch.Index))
		names, err := file.ListByExt(outDir, media.FrameExt)
		if err != nil {
			return &UpscaleError{Batch: batch.Index, Reason: "cannot read batch output", Err: err}
		}
		for _, name := range names {
			if err := os.Rename(filepath.Join(outDir, name), filepath.Join(req.OutputDir, name)); err != nil {
				return &UpscaleError{Batch: batch.Index, Reason: "cannot merge batch output", Err: err}
			}
			total++
		}
	}
	if total != req.FrameCount {
		return &UpscaleError{
			Reason: fmt.Sprintf("merged %d frames, expected %d", total, req.FrameCount),
		}
	}
	return nil
}

func (d *Driver) args(inDir, outDir string, opts Options) []string {
	return []string{
		"-i", inDir,
		"-o", outDir,
		"-s", fmt.Sprintf("%d", opts.Scale),
		"-n", string(opts.Model),
	}
}

// linkOrCopy hard-links src to dst, copying when the filesystem refuses
// links.
func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

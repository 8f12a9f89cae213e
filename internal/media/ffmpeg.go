package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Bryndin/video-upscaler/pkg/file"
)

// FramePattern is the zero-padded frame naming scheme shared by the
// decomposer, the upscale driver and the recomposer. Fixed-width indices
// keep filesystem sort order equal to temporal order.
const FramePattern = "frame_%06d.png"

// FrameExt is the image format used for intermediate frames.
const FrameExt = ".png"

// audioFileName is the stream-copied audio track inside a workspace.
const audioFileName = "audio.mka"

// FFmpeg wraps the external transcoding capability (ffmpeg + ffprobe).
type FFmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	runner     Runner
}

func NewFFmpeg(ffmpegCmd, ffprobeCmd string, runner Runner) *FFmpeg {
	if runner == nil {
		runner = NewExecRunner()
	}
	return &FFmpeg{
		ffmpegCmd:  ffmpegCmd,
		ffprobeCmd: ffprobeCmd,
		runner:     runner,
	}
}

// DecomposeError reports a failure while splitting the input into frames
// and audio. Tail carries the last stderr lines of the failing tool.
type DecomposeError struct {
	Reason string
	Tail   string
	Err    error
}

func (e *DecomposeError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("decompose: %s", e.Reason)
	}
	return fmt.Sprintf("decompose: %s\n%s", e.Reason, e.Tail)
}

func (e *DecomposeError) Unwrap() error { return e.Err }

// RecomposeError reports a failure while re-encoding frames into the final
// output file.
type RecomposeError struct {
	Reason string
	Tail   string
	Err    error
}

func (e *RecomposeError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("recompose: %s", e.Reason)
	}
	return fmt.Sprintf("recompose: %s\n%s", e.Reason, e.Tail)
}

func (e *RecomposeError) Unwrap() error { return e.Err }

// DecomposeResult describes the extracted frame sequence and audio track.
type DecomposeResult struct {
	FrameCount int
	FrameRate  float64
	FrameDir   string
	// AudioPath is empty when the source carries no audio stream.
	AudioPath string
}

// Decompose extracts the ordered frame sequence into frameDir and, when the
// source has an audio stream, a lossless stream copy into audioDir.
func (f *FFmpeg) Decompose(ctx context.Context, inputPath, frameDir, audioDir string, sink LineSink) (DecomposeResult, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return DecomposeResult{}, &DecomposeError{
			Reason: fmt.Sprintf("cannot access input: %s", inputPath),
			Err:    err,
		}
	}

	probe, err := f.Probe(ctx, inputPath)
	if err != nil {
		return DecomposeResult{}, err
	}

	framePattern := filepath.Join(frameDir, FramePattern)
	result, err := f.runner.Run(ctx, f.ffmpegCmd, f.extractFramesArgs(inputPath, framePattern), sink)
	if err != nil {
		return DecomposeResult{}, &DecomposeError{
			Reason: fmt.Sprintf("frame extraction failed (exit=%d)", result.ExitCode),
			Tail:   result.StderrTail,
			Err:    err,
		}
	}

	frameCount, err := file.CountByExt(frameDir, FrameExt)
	if err != nil {
		return DecomposeResult{}, &DecomposeError{
			Reason: "cannot read extracted frames",
			Err:    err,
		}
	}
	if frameCount == 0 {
		return DecomposeResult{}, &DecomposeError{
			Reason: fmt.Sprintf("input has no video frames: %s", inputPath),
			Tail:   result.StderrTail,
		}
	}

	ret := DecomposeResult{
		FrameCount: frameCount,
		FrameRate:  probe.FrameRate,
		FrameDir:   frameDir,
	}

	if probe.HasAudio {
		audioPath := filepath.Join(audioDir, audioFileName)
		result, err := f.runner.Run(ctx, f.ffmpegCmd, f.extractAudioArgs(inputPath, audioPath), sink)
		if err != nil {
			return DecomposeResult{}, &DecomposeError{
				Reason: fmt.Sprintf("audio extraction failed (exit=%d)", result.ExitCode),
				Tail:   result.StderrTail,
				Err:    err,
			}
		}
		ret.AudioPath = audioPath
	}

	return ret, nil
}

// Recompose encodes the upscaled frame sequence at frameRate and muxes the
// preserved audio back in. The output is written to a temporary name and
// renamed into place only on full success.
func (f *FFmpeg) Recompose(ctx context.Context, frameDir string, frameRate float64, audioPath, outputPath string, sink LineSink) error {
	if _, err := os.Stat(outputPath); err == nil {
		return &RecomposeError{
			Reason: fmt.Sprintf("output already exists: %s", outputPath),
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return &RecomposeError{
			Reason: fmt.Sprintf("cannot create output directory: %s", filepath.Dir(outputPath)),
			Err:    err,
		}
	}

	tmpPath := filepath.Join(
		filepath.Dir(outputPath),
		"."+filepath.Base(outputPath)+".partial.mp4",
	)
	defer os.Remove(tmpPath)

	framePattern := filepath.Join(frameDir, FramePattern)
	args := f.encodeArgs(framePattern, frameRate, audioPath, tmpPath)
	result, err := f.runner.Run(ctx, f.ffmpegCmd, args, sink)
	if err != nil {
		return &RecomposeError{
			Reason: fmt.Sprintf("encoding failed (exit=%d)", result.ExitCode),
			Tail:   result.StderrTail,
			Err:    err,
		}
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		return &RecomposeError{
			Reason: fmt.Sprintf("cannot move output into place: %s", outputPath),
			Err:    err,
		}
	}
	return nil
}

func (f *FFmpeg) extractFramesArgs(inputPath, framePattern string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-qscale:v", "1",
		framePattern,
	}
}

func (f *FFmpeg) extractAudioArgs(inputPath, audioPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-vn",
		"-acodec", "copy",
		audioPath,
	}
}

func (f *FFmpeg) encodeArgs(framePattern string, frameRate float64, audioPath, outPath string) []string {
	fps := strconv.FormatFloat(frameRate, 'f', -1, 64)
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-framerate", fps,
		"-i", framePattern,
	}
	if audioPath != "" {
		args = append(args,
			"-i", audioPath,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:a", "copy",
		)
	}
	args = append(args,
		"-c:v", "libx264",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		outPath,
	)
	return args
}

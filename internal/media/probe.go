package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ProbeResult carries the container metadata needed for reassembly.
type ProbeResult struct {
	FrameRate float64
	HasAudio  bool
	Duration  float64
}

// Probe inspects the input container with ffprobe and extracts the video
// frame rate and audio stream presence.
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (ProbeResult, error) {
	output, err := f.runner.Output(ctx, f.ffprobeCmd, f.probeArgs(inputPath))
	if err != nil {
		return ProbeResult{}, &DecomposeError{
			Reason: fmt.Sprintf("ffprobe failed for %s", inputPath),
			Err:    err,
		}
	}

	var probeResult struct {
		Streams []struct {
			CodecType    string `json:"codec_type"`
			AvgFrameRate string `json:"avg_frame_rate"`
			RFrameRate   string `json:"r_frame_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		return ProbeResult{}, &DecomposeError{
			Reason: "failed to parse ffprobe output",
			Err:    err,
		}
	}

	ret := ProbeResult{}
	for _, stream := range probeResult.Streams {
		switch stream.CodecType {
		case "video":
			if ret.FrameRate == 0 {
				fps, err := parseFrameRate(stream.AvgFrameRate)
				if err != nil {
					// Some containers report 0/0 as average; fall back
					// to the raw rate.
					fps, err = parseFrameRate(stream.RFrameRate)
				}
				if err == nil {
					ret.FrameRate = fps
				}
			}
		case "audio":
			ret.HasAudio = true
		}
	}

	if ret.FrameRate == 0 {
		return ProbeResult{}, &DecomposeError{
			Reason: fmt.Sprintf("could not detect frame rate of %s", inputPath),
		}
	}

	if d, err := strconv.ParseFloat(probeResult.Format.Duration, 64); err == nil {
		ret.Duration = d
	}
	return ret, nil
}

// parseFrameRate converts an ffprobe rational like "24000/1001" to a float.
func parseFrameRate(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty frame rate")
	}

	num, den, found := strings.Cut(raw, "/")
	if !found {
		return strconv.ParseFloat(raw, 64)
	}

	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	if d == 0 || n == 0 {
		return 0, fmt.Errorf("degenerate frame rate %q", raw)
	}
	return n / d, nil
}

func (f *FFmpeg) probeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	}
}

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Bryndin/video-upscaler/internal/jobs"
	"github.com/Bryndin/video-upscaler/internal/media"
	"github.com/Bryndin/video-upscaler/internal/upscale"
	"github.com/Bryndin/video-upscaler/pkg/icron"
)

type enqueueJobRequest struct {
	Source      string `json:"source"`
	DedupeKey   string `json:"dedupe_key"`
	InputPath   string `json:"input_path"`
	OutputDir   string `json:"output_dir"`
	Model       string `json:"model"`
	Scale       int    `json:"scale"`
	BatchSize   int    `json:"batch_size"`
	Concurrency int    `json:"concurrency"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		s.handleEnqueue(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	if req.InputPath == "" {
		writeError(w, http.StatusBadRequest, "input_path is required")
		return
	}
	model, err := upscale.ParseModel(req.Model)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !upscale.ValidScale(req.Scale) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported scale: %d", req.Scale))
		return
	}

	info, err := os.Stat(req.InputPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusBadRequest, "input_path does not exist")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// A directory input enqueues every supported video underneath it.
	if info.IsDir() {
		inputs, err := collectVideos(req.InputPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(inputs) == 0 {
			writeError(w, http.StatusBadRequest, "no video files found under input_path")
			return
		}

		created := 0
		jobList := make([]*jobs.UpscaleJob, 0, len(inputs))
		for _, input := range inputs {
			perFile := req
			if req.OutputDir != "" {
				// Mirror the input tree's layout under the requested
				// output directory.
				if rel, err := filepath.Rel(req.InputPath, filepath.Dir(input)); err == nil {
					perFile.OutputDir = filepath.Join(req.OutputDir, rel)
				}
			}
			job, isNew := s.queue.Enqueue(s.buildRequest(perFile, model, input))
			if isNew {
				created++
			}
			jobList = append(jobList, job)
		}
		code := http.StatusCreated
		if created == 0 {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"jobs":    jobList,
		})
		return
	}

	if !media.IsVideo(req.InputPath) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported input extension: %s", filepath.Ext(req.InputPath)))
		return
	}

	job, created := s.queue.Enqueue(s.buildRequest(req, model, req.InputPath))
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"created": created,
		"job":     job,
	})
}

// buildRequest fills per-file defaults: output next to the input, dedupe on
// input, model and scale.
func (s *Server) buildRequest(req enqueueJobRequest, model upscale.Model, inputPath string) jobs.EnqueueRequest {
	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(inputPath)
	}
	dedupeKey := req.DedupeKey
	if dedupeKey == "" {
		dedupeKey = fmt.Sprintf("%s|%s|%d", inputPath, model, req.Scale)
	}
	return jobs.EnqueueRequest{
		Source:    req.Source,
		DedupeKey: dedupeKey,
		Payload: jobs.JobPayload{
			InputPath:   inputPath,
			OutputDir:   outputDir,
			Model:       string(model),
			Scale:       req.Scale,
			BatchSize:   req.BatchSize,
			Concurrency: req.Concurrency,
		},
	}
}

// collectVideos walks root and returns every supported video file, skipping
// outputs produced by earlier runs.
func collectVideos(root string) ([]string, error) {
	inputs := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !media.IsVideo(path) {
			return nil
		}
		if strings.HasPrefix(d.Name(), "upscaled_") {
			return nil
		}
		inputs = append(inputs, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inputs, nil
}

func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request) {
	// /api/jobs/{id}/cancel
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if !strings.HasSuffix(path, "/cancel") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID := strings.TrimSuffix(path, "/cancel")
	jobID = strings.TrimSuffix(jobID, "/")
	if decoded, err := url.PathUnescape(jobID); err == nil {
		jobID = decoded
	}
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	switch err := s.queue.Cancel(jobID); {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrAlreadyFinished):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		job, _ := s.queue.Get(jobID)
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":  true,
			"job": job,
		})
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":     upscale.Models(),
		"scales":     upscale.Scales(),
		"extensions": media.SupportedExtensions(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	counts := make(map[jobs.Status]int)
	for _, job := range s.queue.List() {
		counts[job.Status]++
	}

	ret := map[string]any{
		"jobs": counts,
	}
	if s.checker != nil {
		ret["diagnostics"] = s.checker.Run(s.cfg)
	}
	if info, err := icron.GetTriggerInfo(s.cfg.Pipeline.SweepCron, time.Now()); err == nil {
		ret["sweep"] = map[string]any{
			"expression": info.Expression,
			"next":       info.Next,
			"last":       info.Last,
		}
	}
	writeJSON(w, http.StatusOK, ret)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

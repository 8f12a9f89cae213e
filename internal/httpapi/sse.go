package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Bryndin/video-upscaler/internal/pipeline"
)

const heartbeatInterval = 15 * time.Second

// handleJobStream serves pipeline events as server-sent events. The optional
// seq query parameter replays buffered events published after that sequence,
// so reconnecting clients resume from their last seen event.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var since int64
	if raw := r.URL.Query().Get("seq"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid seq parameter")
			return
		}
		since = parsed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(event pipeline.Event) bool {
		payload, err := json.Marshal(event)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", event.Seq, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// Subscribe before replay so no event published in between is lost.
	// Duplicates across the boundary are filtered by sequence.
	live, cancel := s.bus.Subscribe(256)
	defer cancel()

	for _, event := range s.bus.Since(since) {
		if !send(event) {
			return
		}
		since = event.Seq
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-live:
			if event.Seq <= since {
				continue
			}
			if !send(event) {
				return
			}
			since = event.Seq
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

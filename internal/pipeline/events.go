package pipeline

import (
	"sync"
	"time"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventStageStarted   EventType = "stage_started"
	EventStageProgress  EventType = "stage_progress"
	EventStageCompleted EventType = "stage_completed"
	EventLog            EventType = "log"
	EventJobSucceeded   EventType = "job_succeeded"
	EventJobFailed      EventType = "job_failed"
	EventJobCancelled   EventType = "job_cancelled"
)

// Event is a sequenced, immutable payload consumed by subscribers.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id"`
	Type      EventType `json:"type"`
	Stage     Stage     `json:"stage,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
	Current   int       `json:"current,omitempty"`
	Total     int       `json:"total,omitempty"`
	Severity  string    `json:"severity,omitempty"`
	Message   string    `json:"message,omitempty"`
	// DurationMS carries the stage duration for stage_completed events and
	// the total elapsed time for terminal events.
	DurationMS int64  `json:"duration_ms,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// Bus stores recent events for incremental reads and fans them out to live
// subscribers. Slow subscribers lose events; the pipeline never blocks on
// them.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	nextSub   int
	subs      map[int]chan Event
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		subs:      make(map[int]chan Event),
	}
}

// Publish appends one event, assigns sequence and timestamp, and offers it
// to every subscriber without blocking.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full: drop for that subscriber only.
		}
	}
	b.mu.Unlock()

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe registers a live event channel with the given buffer size.
// The returned cancel func must be called to release the subscription.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

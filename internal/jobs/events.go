package jobs

import (
	"sync"
	"time"

	"media-revoicer/internal/domain"
	"media-revoicer/internal/media"
	"media-revoicer/internal/pipeline"
)

// EventType classifies messages emitted during a run.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeLog      EventType = "log"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced payload consumed by subscribers.
type Event struct {
	Seq       int64              `json:"seq"`
	Timestamp time.Time          `json:"timestamp"`
	RunID     string             `json:"runId"`
	Type      EventType          `json:"type"`
	Stage     domain.RunStage    `json:"stage,omitempty"`
	Progress  float64            `json:"progress,omitempty"`
	Kind      pipeline.ErrorKind `json:"kind,omitempty"`
	Message   string             `json:"message,omitempty"`
	Command   string             `json:"command,omitempty"`
	Args      []string           `json:"args,omitempty"`
	ExitCode  int                `json:"exitCode,omitempty"`
	Stdout    string             `json:"stdout,omitempty"`
	Stderr    string             `json:"stderr,omitempty"`
	VideoPath string             `json:"videoPath,omitempty"`
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

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

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
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

// Observer adapts the bus to pipeline notifications for one run.
func (b *EventBus) Observer(runID string) pipeline.Observer {
	return busObserver{bus: b, runID: runID}
}

type busObserver struct {
	bus   *EventBus
	runID string
}

func (o busObserver) StageStarted(_ string, stage domain.RunStage) {
	o.bus.Publish(Event{RunID: o.runID, Type: EventTypeStatus, Stage: stage, Message: "Running " + string(stage) + " stage"})
}

func (o busObserver) Progress(_ string, stage domain.RunStage, fraction float64) {
	o.bus.Publish(Event{RunID: o.runID, Type: EventTypeProgress, Stage: stage, Progress: fraction})
}

func (o busObserver) StageCompleted(_ string, stage domain.RunStage) {
	o.bus.Publish(Event{RunID: o.runID, Type: EventTypeStatus, Stage: stage, Message: "Finished " + string(stage) + " stage"})
}

func (o busObserver) CommandCompleted(_ string, log media.CommandLog) {
	o.bus.Publish(commandEvent(o.runID, "Command completed", log))
}

// commandEvent maps a command log to a log event.
func commandEvent(runID, message string, log media.CommandLog) Event {
	return Event{
		RunID:    runID,
		Type:     EventTypeLog,
		Message:  message,
		Command:  log.Command,
		Args:     log.Args,
		ExitCode: log.ExitCode,
		Stdout:   log.Stdout,
		Stderr:   log.Stderr,
	}
}

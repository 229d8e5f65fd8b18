package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType names a telemetry record kind.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventStepStarted       EventType = "step_started"
	EventStepCompleted     EventType = "step_completed"
	EventStepFailed        EventType = "step_failed"
	EventAgentSignal       EventType = "agent_signal"
	EventPMDecision        EventType = "pm_decision"
	EventTradeExecution    EventType = "trade_execution"
	EventHeartbeat         EventType = "heartbeat"
	EventCycleComplete     EventType = "trading_cycle_complete"
)

// Event is an append-only time-series record keyed by (Timestamp, WorkflowID).
type Event struct {
	Type       EventType              `json:"type"`
	WorkflowID string                 `json:"workflow_id"`
	StepIndex  int                    `json:"step_index"`
	Timestamp  time.Time              `json:"timestamp"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Sink persists events to a durable time-series store. Implementations
// outside the core (the caching/persistence backend itself is a Non-goal)
// wire a concrete store; EventLogger degrades to its in-memory fallback
// when Sink returns an error or is nil.
type Sink interface {
	WriteEvent(Event) error
}

const fallbackCap = 10000

// EventLogger writes workflow/step/agent/PM/trade/heartbeat events to a
// durable sink; on failure (or with no sink configured) it falls back to a
// bounded in-memory ring buffer capped at ~10,000 entries, oldest dropped.
type EventLogger struct {
	mu       sync.Mutex
	sink     Sink
	fallback []Event
	log      zerolog.Logger
}

// NewEventLogger creates a logger writing to sink, with an in-memory
// fallback used whenever sink is nil or returns an error.
func NewEventLogger(sink Sink, log zerolog.Logger) *EventLogger {
	return &EventLogger{
		sink: sink,
		log:  log.With().Str("component", "telemetry.events").Logger(),
	}
}

func (l *EventLogger) write(ev Event) {
	if l.sink != nil {
		if err := l.sink.WriteEvent(ev); err == nil {
			return
		} else {
			l.log.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("event sink write failed, using fallback")
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.fallback = append(l.fallback, ev)
	if len(l.fallback) > fallbackCap {
		l.fallback = l.fallback[len(l.fallback)-fallbackCap:]
	}
}

// Fallback returns a copy of the in-memory fallback buffer, for diagnostics.
func (l *EventLogger) Fallback() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.fallback))
	copy(out, l.fallback)
	return out
}

// Emit records a bare event of the given type with arbitrary payload data.
func (l *EventLogger) Emit(workflowID string, evType EventType, data map[string]interface{}) {
	l.write(Event{
		Type:       evType,
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
		Data:       data,
	})
}

// Workflow begins a new workflow with a generated UUID and emits
// EventWorkflowStarted. Use Step to open nested, auto-timed sub-steps.
type Workflow struct {
	ID        string
	logger    *EventLogger
	startedAt time.Time
	stepIdx   int
	mu        sync.Mutex
}

// NewWorkflow opens a workflow and emits its started event.
func (l *EventLogger) NewWorkflow(name string) *Workflow {
	id := uuid.New().String()
	w := &Workflow{ID: id, logger: l, startedAt: time.Now()}
	l.write(Event{
		Type:       EventWorkflowStarted,
		WorkflowID: id,
		Timestamp:  w.startedAt,
		Data:       map[string]interface{}{"name": name},
	})
	return w
}

// Step runs fn as a nested step, auto-emitting started/completed/failed
// with duration_ms and a monotonically increasing step_index.
func (w *Workflow) Step(name string, fn func() error) error {
	w.mu.Lock()
	idx := w.stepIdx
	w.stepIdx++
	w.mu.Unlock()

	started := time.Now()
	w.logger.write(Event{
		Type:       EventStepStarted,
		WorkflowID: w.ID,
		StepIndex:  idx,
		Timestamp:  started,
		Data:       map[string]interface{}{"name": name},
	})

	err := fn()
	dur := time.Since(started)

	evType := EventStepCompleted
	data := map[string]interface{}{"name": name}
	if err != nil {
		evType = EventStepFailed
		data["error"] = err.Error()
	}
	w.logger.write(Event{
		Type:       evType,
		WorkflowID: w.ID,
		StepIndex:  idx,
		Timestamp:  time.Now(),
		DurationMs: dur.Milliseconds(),
		Data:       data,
	})
	return err
}

// Complete emits EventWorkflowCompleted (or EventWorkflowFailed, if err is
// non-nil) with the workflow's total duration.
func (w *Workflow) Complete(err error, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	evType := EventWorkflowCompleted
	if err != nil {
		evType = EventWorkflowFailed
		data["error"] = err.Error()
	}
	w.logger.write(Event{
		Type:       evType,
		WorkflowID: w.ID,
		Timestamp:  time.Now(),
		DurationMs: time.Since(w.startedAt).Milliseconds(),
		Data:       data,
	})
}

// MarshalDataJSON is a convenience for sinks that persist Data as raw JSON.
func (e Event) MarshalDataJSON() ([]byte, error) {
	return json.Marshal(e.Data)
}

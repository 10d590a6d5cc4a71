// Package audit records structured audit events without blocking callers.
package audit

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

// Actions.
const (
	ActionCreate   = "create"
	ActionReview   = "review"
	ActionDelete   = "delete"
	ActionStart    = "start"
	ActionComplete = "complete"
	ActionFail     = "fail"
)

// Entity types.
const (
	EntityFinding  = "repository_finding"
	EntityRun      = "analysis_run"
	EntitySnapshot = "snapshot"
)

// DefaultBufferSize is the event queue length of an AsyncRecorder.
const DefaultBufferSize = 256

const sinkTimeout = 5 * time.Second

// ErrClosed is returned when closing a recorder twice.
var ErrClosed = errors.New("audit recorder closed")

// Recorder accepts audit events. Record never blocks and never fails the caller.
type Recorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// Sink persists audit events.
type Sink interface {
	InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

// AsyncRecorder queues events and writes them to a sink from a single goroutine.
// Events are dropped with a warning when the queue is full.
type AsyncRecorder struct {
	sink   Sink
	logger logger.Logger
	events chan models.AuditEvent
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewAsyncRecorder starts a recorder writing to sink.
func NewAsyncRecorder(sink Sink, bufferSize int, log logger.Logger) *AsyncRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	r := &AsyncRecorder{
		sink:   sink,
		logger: log,
		events: make(chan models.AuditEvent, bufferSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues event for persistence.
func (r *AsyncRecorder) Record(_ context.Context, event models.AuditEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("Audit recorder closed, dropping event",
			"action", event.Action, "entity_type", event.EntityType, "entity_id", event.EntityID)
		return
	}

	select {
	case r.events <- event:
	default:
		r.logger.Warn("Audit queue full, dropping event",
			"action", event.Action, "entity_type", event.EntityType, "entity_id", event.EntityID)
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)

	for event := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		err := r.sink.InsertAuditEvent(ctx, &event)
		cancel()

		if err != nil {
			r.logger.Error("Failed to persist audit event",
				"action", event.Action,
				"entity_type", event.EntityType,
				"entity_id", event.EntityID,
				"error", err)
			continue
		}

		logEvent(r.logger, event)
	}
}

func logEvent(log logger.Logger, event models.AuditEvent) {
	log.Info("Audit event",
		"action", event.Action,
		"entity_type", event.EntityType,
		"entity_id", event.EntityID,
		"organization_id", event.OrganizationID,
		"user_id", event.UserID)
}

// Close stops accepting events and waits for queued events to be written.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogRecorder writes events to a logger only. It is the fallback when no
// persistent recorder is configured.
type LogRecorder struct {
	logger logger.Logger
}

// NewLogRecorder creates a recorder logging to log, or the global logger when nil.
func NewLogRecorder(log logger.Logger) *LogRecorder {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &LogRecorder{logger: log}
}

// Record logs event.
func (r *LogRecorder) Record(_ context.Context, event models.AuditEvent) {
	logEvent(r.logger, event)
}

// MemoryRecorder keeps events in memory. Tests use it to assert on the audit trail.
type MemoryRecorder struct {
	events []models.AuditEvent
	mu     sync.Mutex
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record appends event.
func (m *MemoryRecorder) Record(_ context.Context, event models.AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of the recorded events.
func (m *MemoryRecorder) Events() []models.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// Find returns the recorded events with the given action and entity type.
func (m *MemoryRecorder) Find(action, entityType string) []models.AuditEvent {
	var out []models.AuditEvent
	for _, e := range m.Events() {
		if e.Action == action && e.EntityType == entityType {
			out = append(out, e)
		}
	}
	return out
}

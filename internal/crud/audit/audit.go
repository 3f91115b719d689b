// Package audit turns the (old, new) pairs handed to audit hooks into
// change-log entries and writes them to a sink.
package audit

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/crudkit/internal/crud/hooks"
	"github.com/conduit-lang/crudkit/internal/crud/storage"
	"github.com/conduit-lang/crudkit/internal/crud/tracking"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// ErrNoEntity is returned when both sides of an audit pair are nil
var ErrNoEntity = errors.New("audit entry needs an old or a new entity")

// Action is the kind of mutation an entry records
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Entry is one audited mutation
type Entry struct {
	ID       string                 `json:"id"`
	Request  string                 `json:"request"`
	Entity   string                 `json:"entity"`
	EntityID any                    `json:"entity_id,omitempty"`
	Action   Action                 `json:"action"`
	Changes  []tracking.FieldChange `json:"changes"`
	At       time.Time              `json:"at"`
}

// NewEntry builds an entry from a pre-mutation snapshot and the persisted
// entity. A nil old means creation, a nil new deletion.
func NewEntry(req, old, updated any, at time.Time) (Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to generate audit id: %w", err)
	}

	action := ActionUpdate
	subject := updated
	switch {
	case absent(old) && absent(updated):
		return Entry{}, ErrNoEntity
	case absent(old):
		action = ActionCreate
	case absent(updated):
		action = ActionDelete
		subject = old
	}

	entry := Entry{
		ID:      id.String(),
		Request: typeinfo.Name(typeinfo.TypeOfValue(req)),
		Entity:  typeinfo.Name(typeinfo.TypeOfValue(subject)),
		Action:  action,
		Changes: tracking.Track(old, updated).Changes(),
		At:      at.UTC(),
	}
	if entityID, err := storage.Identity(subject); err == nil {
		entry.EntityID = entityID
	}
	return entry, nil
}

func absent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// Sink stores entries
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// Recorder is an audit hook writing one entry per mutated entity
type Recorder struct {
	sink   Sink
	now    func() time.Time
	logger *zap.Logger
	// SkipUnchanged drops updates that changed no field
	SkipUnchanged bool
}

// NewRecorder creates a recorder writing to sink
func NewRecorder(sink Sink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, now: time.Now, logger: logger}
}

// HandleAudit implements hooks.AuditHooker for every request and entity type
func (r *Recorder) HandleAudit(ctx context.Context, req any, old, updated any) error {
	entry, err := NewEntry(req, old, updated, r.now())
	if err != nil {
		return err
	}
	if r.SkipUnchanged && entry.Action == ActionUpdate && len(entry.Changes) == 0 {
		return nil
	}
	if err := r.sink.Write(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	r.logger.Debug("audit entry written",
		zap.String("entity", entry.Entity),
		zap.String("action", string(entry.Action)),
		zap.Int("changes", len(entry.Changes)),
	)
	return nil
}

// Hook registers the recorder as an audit hook accepting any entity
func (r *Recorder) Hook() *hooks.Factory {
	return hooks.AuditInstance[any, any](r).Named("audit.Recorder")
}

// ResolvedHook boxes an audit hook that looks the *Recorder up in the
// engine's resolver on every invocation
func ResolvedHook() *hooks.Factory {
	return hooks.AuditOfType[any, any, *Recorder]().Named("audit.Recorder")
}

// MemorySink keeps entries in memory
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink creates an empty memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends an entry
func (m *MemorySink) Write(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns the written entries, oldest first
func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

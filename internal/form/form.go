// Package form hosts inline-edit fields the way a clinical card does: it
// owns the authoritative record of values, mounts and unmounts fields, and
// sequences keyboard traversal between them.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chakravue/fieldeval/internal/evaluator"
	"github.com/chakravue/fieldeval/internal/field"
	"github.com/chakravue/fieldeval/internal/identity"
	"github.com/chakravue/fieldeval/internal/layout"
	"github.com/chakravue/fieldeval/internal/traversal"
)

var (
	ErrFormNotFound  = errors.New("form not found")
	ErrFieldNotFound = errors.New("field not found")
	ErrFieldExists   = errors.New("field already mounted")
	ErrClosed        = errors.New("form is closed")
)

// CommitEvent is emitted when a field commits a changed value
type CommitEvent struct {
	FormID      string    `json:"form_id"`
	FieldID     string    `json:"field_id"`
	Value       string    `json:"value"`
	CommittedAt time.Time `json:"committed_at"`
}

// CommitSink receives commit events. Publish must not block on delivery.
type CommitSink interface {
	Publish(ctx context.Context, event CommitEvent)
}

// Config holds form configuration
type Config struct {
	Field field.Config
}

// Deps are shared by every field of a form
type Deps struct {
	Evaluator         evaluator.Evaluator
	Dispatcher        field.Dispatcher
	Resolver          *identity.Chain
	Sink              CommitSink
	FieldObserver     field.Observer
	TraversalObserver traversal.Observer
	Logger            *zap.Logger
}

// FieldSpec describes a field to mount
type FieldSpec struct {
	ID          string       `json:"id"`
	Value       string       `json:"value"`
	Placeholder string       `json:"placeholder,omitempty"`
	Editable    bool         `json:"editable"`
	Kind        field.Kind   `json:"kind,omitempty"`
	EvalField   string       `json:"eval_field,omitempty"`
	DisableEval bool         `json:"disable_eval,omitempty"`
	Layout      *layout.Spec `json:"layout,omitempty"`
}

type mountedField struct {
	field *field.Field
	seq   uint64
}

// Form is one host card
type Form struct {
	id     string
	cfg    Config
	deps   Deps
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	registry    *traversal.Registry
	coordinator *traversal.Coordinator

	mu     sync.RWMutex
	fields map[string]*mountedField
	record map[string]string
	seq    uint64
	closed bool
}

// New creates an empty form
func New(ctx context.Context, id string, cfg Config, deps Deps) *Form {
	if id == "" {
		id = uuid.NewString()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Resolver == nil {
		deps.Resolver = identity.DefaultChain()
	}
	logger := deps.Logger.With(zap.String("form_id", id))
	ctx, cancel := context.WithCancel(ctx)
	registry := traversal.NewRegistry()

	return &Form{
		id:          id,
		cfg:         cfg,
		deps:        deps,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		registry:    registry,
		coordinator: traversal.NewCoordinator(registry, deps.TraversalObserver, logger),
		fields:      make(map[string]*mountedField),
		record:      make(map[string]string),
	}
}

// ID returns the form id
func (f *Form) ID() string { return f.id }

// Mount creates, mounts and registers a field. A missing id is generated.
func (f *Form) Mount(spec FieldSpec) (field.Snapshot, error) {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}

	var node *layout.Node
	if spec.Layout != nil {
		var err error
		if _, node, err = layout.Build(*spec.Layout); err != nil {
			return field.Snapshot{}, fmt.Errorf("field %s layout: %w", spec.ID, err)
		}
	}

	fld, err := field.New(f.ctx, field.Spec{
		ID:          spec.ID,
		Value:       spec.Value,
		Placeholder: spec.Placeholder,
		Editable:    spec.Editable,
		Kind:        spec.Kind,
		EvalField:   spec.EvalField,
		DisableEval: spec.DisableEval,
		Node:        node,
	}, f.cfg.Field, field.Deps{
		Host:       f,
		Evaluator:  f.deps.Evaluator,
		Dispatcher: f.deps.Dispatcher,
		Resolver:   f.deps.Resolver,
		Navigator:  f.coordinator,
		Observer:   f.deps.FieldObserver,
		Logger:     f.logger,
	})
	if err != nil {
		return field.Snapshot{}, err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		fld.Unmount()
		return field.Snapshot{}, ErrClosed
	}
	if _, ok := f.fields[spec.ID]; ok {
		f.mu.Unlock()
		fld.Unmount()
		return field.Snapshot{}, fmt.Errorf("%w: %s", ErrFieldExists, spec.ID)
	}
	f.seq++
	f.fields[spec.ID] = &mountedField{field: fld, seq: f.seq}
	f.record[spec.ID] = spec.Value
	f.mu.Unlock()

	// registry is consistent before Mount returns, so a traversal in the
	// same request sees the new field
	f.syncRegistration(fld)
	fld.Mount()

	f.logger.Debug("field mounted",
		zap.String("field_id", spec.ID),
		zap.Bool("editable", spec.Editable))
	return fld.Snapshot(), nil
}

// Unmount tears a field down and drops its value from the record
func (f *Form) Unmount(id string) error {
	f.mu.Lock()
	m, ok := f.fields[id]
	if ok {
		delete(f.fields, id)
		delete(f.record, id)
	}
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}

	f.registry.Unregister(id)
	m.field.Unmount()
	f.logger.Debug("field unmounted", zap.String("field_id", id))
	return nil
}

func (f *Form) lookup(id string) (*field.Field, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.fields[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	return m.field, nil
}

// syncRegistration keeps the registry holding exactly the editable fields
// at their current layout order. A field that was unmounted, or whose form
// closed, is left out.
func (f *Form) syncRegistration(fld *field.Field) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if m, ok := f.fields[fld.ID()]; !ok || m.field != fld {
		return
	}
	if fld.Editable() {
		f.registry.Register(fld, fld.Order())
		return
	}
	f.registry.Unregister(fld.ID())
}

// SetValue applies an external update from the host record
func (f *Form) SetValue(id, value string) error {
	fld, err := f.lookup(id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.record[id] = value
	f.mu.Unlock()

	fld.SetValue(value)
	return nil
}

// SetLayout replaces a field's layout after a re-render
func (f *Form) SetLayout(id string, spec layout.Spec) error {
	fld, err := f.lookup(id)
	if err != nil {
		return err
	}
	_, node, err := layout.Build(spec)
	if err != nil {
		return fmt.Errorf("field %s layout: %w", id, err)
	}
	fld.SetLayout(node)
	f.syncRegistration(fld)
	return nil
}

// SetEditable toggles whether a field accepts editing
func (f *Form) SetEditable(id string, editable bool) error {
	fld, err := f.lookup(id)
	if err != nil {
		return err
	}
	fld.SetEditable(editable)
	f.syncRegistration(fld)
	return nil
}

// Activate starts editing a field, committing any other field still
// editing. It reports whether the field is now editing.
func (f *Form) Activate(id string) (bool, error) {
	fld, err := f.lookup(id)
	if err != nil {
		return false, err
	}
	if _, ok := f.registry.Get(id); !ok {
		// read-only fields are never registered and never edit
		return fld.StartEditing(), nil
	}
	return f.coordinator.Focus(id), nil
}

// Input replaces a field's draft
func (f *Form) Input(id, draft string) error {
	fld, err := f.lookup(id)
	if err != nil {
		return err
	}
	return fld.Type(draft)
}

// Key applies a keyboard command to a field
func (f *Form) Key(id string, key field.Key, shift bool) error {
	fld, err := f.lookup(id)
	if err != nil {
		return err
	}
	return fld.HandleKey(key, shift)
}

// Blur commits a field that loses focus
func (f *Form) Blur(id string) error {
	fld, err := f.lookup(id)
	if err != nil {
		return err
	}
	fld.Commit()
	return nil
}

// Cancel discards a field's draft
func (f *Form) Cancel(id string) error {
	fld, err := f.lookup(id)
	if err != nil {
		return err
	}
	fld.Cancel()
	return nil
}

// Snapshot returns one field's state
func (f *Form) Snapshot(id string) (field.Snapshot, error) {
	fld, err := f.lookup(id)
	if err != nil {
		return field.Snapshot{}, err
	}
	return fld.Snapshot(), nil
}

// Snapshots returns every field: editable fields in traversal order, then
// read-only fields in mount order
func (f *Form) Snapshots() []field.Snapshot {
	entries := f.registry.Entries()

	f.mu.RLock()
	rest := make([]*mountedField, 0, len(f.fields))
	for id, m := range f.fields {
		if _, ok := f.registry.Get(id); !ok {
			rest = append(rest, m)
		}
	}
	f.mu.RUnlock()
	sortBySeq(rest)

	out := make([]field.Snapshot, 0, len(entries)+len(rest))
	for _, e := range entries {
		if fld, ok := e.(*field.Field); ok {
			out = append(out, fld.Snapshot())
		}
	}
	for _, m := range rest {
		out = append(out, m.field.Snapshot())
	}
	return out
}

// Values returns a copy of the authoritative record
func (f *Form) Values() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.record))
	for k, v := range f.record {
		out[k] = v
	}
	return out
}

// Save records a committed value and publishes it. It implements
// field.Host.
func (f *Form) Save(fieldID, value string) {
	f.mu.Lock()
	if _, ok := f.fields[fieldID]; ok {
		f.record[fieldID] = value
	}
	f.mu.Unlock()

	f.logger.Debug("value saved", zap.String("field_id", fieldID))
	if f.deps.Sink != nil {
		f.deps.Sink.Publish(f.ctx, CommitEvent{
			FormID:      f.id,
			FieldID:     fieldID,
			Value:       value,
			CommittedAt: time.Now().UTC(),
		})
	}
}

// Close unmounts every field. The form rejects further mounts.
func (f *Form) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	fields := make([]*mountedField, 0, len(f.fields))
	for _, m := range f.fields {
		fields = append(fields, m)
	}
	f.fields = make(map[string]*mountedField)
	f.mu.Unlock()

	for _, m := range fields {
		f.registry.Unregister(m.field.ID())
		m.field.Unmount()
	}
	f.cancel()
	f.logger.Debug("form closed", zap.Int("fields", len(fields)))
}

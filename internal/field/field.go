// Package field implements the inline-edit reading field: its edit session,
// the debounced evaluation of its value, and the rules for applying
// asynchronous verdicts.
//
// A Field is safe for concurrent use. Its state, timer handle and issuance
// tokens are guarded by one mutex; host notifications and focus traversal
// always run after that mutex is released.
package field

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chakravue/fieldeval/internal/evaluator"
	"github.com/chakravue/fieldeval/internal/identity"
	"github.com/chakravue/fieldeval/internal/layout"
	"github.com/chakravue/fieldeval/internal/traversal"
	"github.com/chakravue/fieldeval/pkg/workerpool"
)

// Mode is the edit session state
type Mode string

const (
	ModeViewing Mode = "viewing"
	ModeEditing Mode = "editing"
)

// Kind controls how a value is rendered
type Kind string

const (
	KindPlainText Kind = "text"
	KindSecret    Kind = "password"
)

// Trigger names what caused an evaluation
type Trigger string

const (
	TriggerMount  Trigger = "mount"
	TriggerLive   Trigger = "live"
	TriggerCommit Trigger = "commit"
)

// DiscardReason explains why a response was not applied
type DiscardReason string

const (
	DiscardStale     DiscardReason = "stale"
	DiscardUnmounted DiscardReason = "unmounted"
)

var (
	ErrMissingID  = errors.New("field id is required")
	ErrNotEditing = errors.New("field is not being edited")
)

// Host owns the authoritative value. Save is a one-way notification.
type Host interface {
	Save(fieldID, value string)
}

// HostFunc adapts a function to Host
type HostFunc func(fieldID, value string)

// Save calls f
func (f HostFunc) Save(fieldID, value string) { f(fieldID, value) }

// Navigator moves edit focus to a neighboring field
type Navigator interface {
	Advance(fromID string, dir traversal.Direction) bool
}

// Dispatcher runs evaluation calls. Submit must not run task on the
// calling goroutine.
type Dispatcher interface {
	Submit(ctx context.Context, task workerpool.Task) error
}

type goDispatcher struct{}

func (goDispatcher) Submit(ctx context.Context, task workerpool.Task) error {
	go task(ctx)
	return nil
}

// Observer receives evaluation and commit events
type Observer interface {
	EvaluationDispatched(trigger Trigger)
	EvaluationApplied(level evaluator.Severity)
	EvaluationDiscarded(reason DiscardReason)
	EvaluationFailed()
	Committed()
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) EvaluationDispatched(Trigger)         {}
func (NopObserver) EvaluationApplied(evaluator.Severity) {}
func (NopObserver) EvaluationDiscarded(DiscardReason)    {}
func (NopObserver) EvaluationFailed()                    {}
func (NopObserver) Committed()                           {}

// Config holds evaluation timing
type Config struct {
	// MountDelay coalesces evaluations after mount and external updates
	MountDelay time.Duration
	// LiveDelay coalesces evaluations while typing
	LiveDelay time.Duration
	// DefaultPlaceholder is shown for empty values and never used as identity
	DefaultPlaceholder string
}

// DefaultConfig returns the standard delays
func DefaultConfig() Config {
	return Config{
		MountDelay:         300 * time.Millisecond,
		LiveDelay:          600 * time.Millisecond,
		DefaultPlaceholder: identity.DefaultPlaceholder,
	}
}

// Spec describes a field when it is mounted
type Spec struct {
	ID          string
	Value       string
	Placeholder string
	Editable    bool
	Kind        Kind
	// EvalField is the explicit identity tag
	EvalField string
	// DisableEval turns off evaluation for this field
	DisableEval bool
	// Node is the field's own node in its layout tree
	Node *layout.Node
}

// Deps are the collaborators of a field
type Deps struct {
	Host       Host
	Evaluator  evaluator.Evaluator
	Dispatcher Dispatcher
	Resolver   *identity.Chain
	Navigator  Navigator
	Observer   Observer
	Logger     *zap.Logger
}

// Field is one inline-edit control bound to a scalar value
type Field struct {
	id         string
	cfg        Config
	host       Host
	evaluator  evaluator.Evaluator
	dispatcher Dispatcher
	resolver   *identity.Chain
	navigator  Navigator
	observer   Observer
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	mounted     bool
	current     string
	draft       string
	mode        Mode
	selectAll   bool
	editable    bool
	tag         string
	placeholder string
	kind        Kind
	evalOff     bool
	node        *layout.Node
	verdict     evaluator.Verdict

	// edit session bookkeeping for Cancel
	savedVerdict   evaluator.Verdict
	dirty          bool
	resumeOnCancel bool

	timer    debounce
	issued   uint64
	inflight int
}

// New creates an unmounted field. ctx bounds every evaluation call the
// field makes; Unmount cancels it.
func New(ctx context.Context, spec Spec, cfg Config, deps Deps) (*Field, error) {
	if spec.ID == "" {
		return nil, ErrMissingID
	}

	def := DefaultConfig()
	if cfg.MountDelay <= 0 {
		cfg.MountDelay = def.MountDelay
	}
	if cfg.LiveDelay <= 0 {
		cfg.LiveDelay = def.LiveDelay
	}
	if cfg.DefaultPlaceholder == "" {
		cfg.DefaultPlaceholder = def.DefaultPlaceholder
	}

	if deps.Host == nil {
		deps.Host = HostFunc(func(string, string) {})
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = goDispatcher{}
	}
	if deps.Resolver == nil {
		deps.Resolver = identity.DefaultChain()
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	kind := spec.Kind
	if kind == "" {
		kind = KindPlainText
	}
	placeholder := spec.Placeholder
	if placeholder == "" {
		placeholder = cfg.DefaultPlaceholder
	}
	node := spec.Node
	if node == nil {
		node = layout.Detached()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Field{
		id:          spec.ID,
		cfg:         cfg,
		host:        deps.Host,
		evaluator:   deps.Evaluator,
		dispatcher:  deps.Dispatcher,
		resolver:    deps.Resolver,
		navigator:   deps.Navigator,
		observer:    deps.Observer,
		logger:      deps.Logger.With(zap.String("field_id", spec.ID)),
		ctx:         ctx,
		cancel:      cancel,
		current:     spec.Value,
		draft:       spec.Value,
		mode:        ModeViewing,
		editable:    spec.Editable,
		tag:         spec.EvalField,
		placeholder: placeholder,
		kind:        kind,
		// secrets never leave the field, and without an evaluator there is nothing to call
		evalOff: spec.DisableEval || kind == KindSecret || deps.Evaluator == nil,
		node:    node,
	}, nil
}

// ID returns the field id
func (f *Field) ID() string { return f.id }

// Mount activates the field and schedules the initial evaluation. A field
// that was unmounted stays unmounted.
func (f *Field) Mount() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mounted || f.ctx.Err() != nil {
		return
	}
	f.mounted = true
	f.valueChangedLocked()
}

// Unmount cancels pending timers and in-flight calls. Responses arriving
// later are ignored. It also releases a field that was never mounted.
func (f *Field) Unmount() {
	f.mu.Lock()
	f.mounted = false
	f.mode = ModeViewing
	f.timer.cancel()
	f.mu.Unlock()

	f.cancel()
}

// Mounted reports whether the field is mounted
func (f *Field) Mounted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mounted
}

// Editing reports whether the field is in the Editing state
func (f *Field) Editing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode == ModeEditing
}

// Editable reports whether the field accepts editing
func (f *Field) Editable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editable
}

// Value returns the current committed value
func (f *Field) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Verdict returns the displayed verdict
func (f *Field) Verdict() evaluator.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verdict
}

// Order returns the field's position in layout order
func (f *Field) Order() traversal.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return traversal.Order(f.node.Path())
}

// SetLayout replaces the field's layout node after a re-render
func (f *Field) SetLayout(node *layout.Node) {
	if node == nil {
		node = layout.Detached()
	}
	f.mu.Lock()
	f.node = node
	f.mu.Unlock()
}

// SetTag replaces the explicit identity tag
func (f *Field) SetTag(tag string) {
	f.mu.Lock()
	f.tag = tag
	f.mu.Unlock()
}

// SetEditable toggles editability. An edit in progress is cancelled.
func (f *Field) SetEditable(editable bool) {
	f.mu.Lock()
	f.editable = editable
	editing := f.mode == ModeEditing
	f.mu.Unlock()

	if !editable && editing {
		f.Cancel()
	}
}

// Identity resolves the field's identity against its current context
func (f *Field) Identity() identity.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveLocked()
}

func (f *Field) resolveLocked() identity.Result {
	return f.resolver.Resolve(identity.Context{
		Tag:                f.tag,
		Placeholder:        f.placeholder,
		DefaultPlaceholder: f.cfg.DefaultPlaceholder,
		Node:               f.node,
	})
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

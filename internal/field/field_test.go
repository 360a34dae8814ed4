package field

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/chakravue/fieldeval/internal/evaluator"
	"github.com/chakravue/fieldeval/internal/layout"
	"github.com/chakravue/fieldeval/internal/traversal"
	"github.com/chakravue/fieldeval/pkg/workerpool"
)

const waitTimeout = 2 * time.Second

type result struct {
	verdict evaluator.Verdict
	err     error
}

type call struct {
	req  evaluator.Request
	resp chan result
}

func (c *call) respond(level evaluator.Severity, msg string) {
	c.resp <- result{verdict: evaluator.Verdict{Level: level, Message: msg}}
}

func (c *call) fail(err error) {
	c.resp <- result{err: err}
}

// scriptedEvaluator hands every request to the test and blocks until the
// test answers it
type scriptedEvaluator struct {
	calls chan *call
}

func newScriptedEvaluator() *scriptedEvaluator {
	return &scriptedEvaluator{calls: make(chan *call, 16)}
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, req evaluator.Request) (evaluator.Verdict, error) {
	c := &call{req: req, resp: make(chan result, 1)}
	e.calls <- c
	select {
	case r := <-c.resp:
		return r.verdict, r.err
	case <-ctx.Done():
		return evaluator.Verdict{}, ctx.Err()
	}
}

func (e *scriptedEvaluator) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-e.calls:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for an evaluation request")
		return nil
	}
}

func (e *scriptedEvaluator) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case c := <-e.calls:
		t.Fatalf("unexpected evaluation request %+v", c.req)
	case <-time.After(d):
	}
}

type recordingHost struct {
	mu    sync.Mutex
	saves []string
}

func (h *recordingHost) Save(_ string, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saves = append(h.saves, value)
}

func (h *recordingHost) values() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.saves...)
}

type countingObserver struct {
	dispatched, applied, stale, unmounted, failed, committed atomic.Int32
}

func (o *countingObserver) EvaluationDispatched(Trigger)         { o.dispatched.Add(1) }
func (o *countingObserver) EvaluationApplied(evaluator.Severity) { o.applied.Add(1) }
func (o *countingObserver) EvaluationFailed()                    { o.failed.Add(1) }
func (o *countingObserver) Committed()                           { o.committed.Add(1) }

func (o *countingObserver) EvaluationDiscarded(r DiscardReason) {
	if r == DiscardStale {
		o.stale.Add(1)
	} else {
		o.unmounted.Add(1)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	field *Field
	eval  *scriptedEvaluator
	host  *recordingHost
	obs   *countingObserver
}

func newHarness(t *testing.T, spec Spec, cfg Config) *harness {
	t.Helper()
	h := &harness{
		eval: newScriptedEvaluator(),
		host: &recordingHost{},
		obs:  &countingObserver{},
	}
	f, err := New(context.Background(), spec, cfg, Deps{
		Host:      h.host,
		Evaluator: h.eval,
		Observer:  h.obs,
	})
	if err != nil {
		t.Fatalf("new field: %v", err)
	}
	h.field = f
	t.Cleanup(f.Unmount)
	return h
}

func fastConfig() Config {
	return Config{MountDelay: 10 * time.Millisecond, LiveDelay: 20 * time.Millisecond}
}

func TestNewRequiresID(t *testing.T) {
	if _, err := New(context.Background(), Spec{}, Config{}, Deps{}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestCommitTrimsDraft(t *testing.T) {
	tests := []struct {
		name  string
		draft string
		want  string
	}{
		{"surrounding spaces", "  25 ", "25"},
		{"tabs and newlines", "\t7\n", "7"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Spec{ID: "iop-od", Value: "14", Placeholder: "IOP", Editable: true, DisableEval: true}, fastConfig())
			h.field.Mount()

			if !h.field.StartEditing() {
				t.Fatal("expected editing to start")
			}
			if err := h.field.Type(tt.draft); err != nil {
				t.Fatalf("type: %v", err)
			}
			h.field.Commit()

			if diff := cmp.Diff([]string{tt.want}, h.host.values()); diff != "" {
				t.Errorf("host saves mismatch (-want +got):\n%s", diff)
			}
			if got := h.field.Value(); got != tt.want {
				t.Errorf("current value = %q, want %q", got, tt.want)
			}
			if h.field.Editing() {
				t.Error("commit must leave editing")
			}
		})
	}
}

func TestCommitUnchangedSkipsHost(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", Editable: true, DisableEval: true}, fastConfig())
	h.field.Mount()

	h.field.StartEditing()
	h.field.Type(" 14 ")
	h.field.Commit()

	if saves := h.host.values(); len(saves) != 0 {
		t.Errorf("expected no host notification, got %v", saves)
	}
	if h.obs.committed.Load() != 0 {
		t.Error("unchanged commit must not be counted")
	}
}

func TestCancelRestoresValueAndVerdict(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD", Editable: true}, fastConfig())
	h.field.Mount()
	h.eval.next(t).respond(evaluator.SeverityGreen, "Normal")
	eventually(t, "initial verdict", func() bool { return h.field.Verdict().Level == evaluator.SeverityGreen })

	h.field.StartEditing()
	h.field.Type("")
	if h.field.Verdict().Level != evaluator.SeverityNone {
		t.Fatal("blank draft should clear the verdict while editing")
	}
	h.field.Type("99")
	live := h.eval.next(t)
	if live.req.Value != "99" {
		t.Fatalf("expected live evaluation of 99, got %q", live.req.Value)
	}

	h.field.Cancel()
	live.respond(evaluator.SeverityRed, "Elevated")
	eventually(t, "stale discard", func() bool { return h.obs.stale.Load() == 1 })

	want := evaluator.Verdict{Level: evaluator.SeverityGreen, Message: "Normal"}
	if diff := cmp.Diff(want, h.field.Verdict()); diff != "" {
		t.Errorf("verdict mismatch (-want +got):\n%s", diff)
	}
	if h.field.Value() != "14" {
		t.Errorf("value changed to %q", h.field.Value())
	}
	if len(h.host.values()) != 0 {
		t.Error("cancel must not notify the host")
	}
	h.eval.expectNone(t, 50*time.Millisecond)
}

func TestCancelResumesInterruptedEvaluation(t *testing.T) {
	cfg := Config{MountDelay: 30 * time.Millisecond, LiveDelay: time.Hour}
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD", Editable: true}, cfg)
	h.field.Mount()

	// Editing starts while the mount evaluation is still pending
	h.field.StartEditing()
	h.field.Type("15")
	h.field.Cancel()

	c := h.eval.next(t)
	if c.req.Value != "14" {
		t.Fatalf("expected evaluation of the current value, got %q", c.req.Value)
	}
	c.respond(evaluator.SeverityGreen, "")
	eventually(t, "verdict", func() bool { return h.field.Verdict().Level == evaluator.SeverityGreen })
}

func TestLiveTypingCoalesces(t *testing.T) {
	cfg := Config{MountDelay: 10 * time.Millisecond, LiveDelay: 60 * time.Millisecond}
	h := newHarness(t, Spec{ID: "iop-od", EvalField: "IOP-OD", Editable: true}, cfg)
	h.field.Mount()
	h.field.StartEditing()

	for _, s := range []string{"2", "25", "250", "25", "2"} {
		h.field.Type(s)
	}

	c := h.eval.next(t)
	if diff := cmp.Diff(evaluator.Request{Field: "IOP-OD", Value: "2"}, c.req); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
	h.eval.expectNone(t, 150*time.Millisecond)
	if n := h.obs.dispatched.Load(); n != 1 {
		t.Errorf("expected exactly one dispatch, got %d", n)
	}
}

func TestExternalUpdatesCoalesce(t *testing.T) {
	cfg := Config{MountDelay: 40 * time.Millisecond, LiveDelay: time.Hour}
	h := newHarness(t, Spec{ID: "iop-od", Value: "12", EvalField: "IOP-OD", Editable: true}, cfg)
	h.field.Mount()
	h.field.SetValue("13")
	h.field.SetValue("14")

	c := h.eval.next(t)
	if c.req.Value != "14" {
		t.Errorf("expected the last external value, got %q", c.req.Value)
	}
	h.eval.expectNone(t, 100*time.Millisecond)
}

func TestSetValueUnchangedDoesNotEvaluate(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD", Editable: true}, fastConfig())
	h.field.Mount()
	h.eval.next(t).respond(evaluator.SeverityGreen, "")
	eventually(t, "verdict", func() bool { return h.obs.applied.Load() == 1 })

	h.field.SetValue("14")
	h.eval.expectNone(t, 50*time.Millisecond)
}

func TestSetValueWhileEditingReseedsDraft(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", Editable: true, DisableEval: true}, fastConfig())
	h.field.Mount()
	h.field.StartEditing()

	h.field.SetValue("20")
	if snap := h.field.Snapshot(); snap.Draft != "20" || snap.Value != "20" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	h.field.Commit()

	if got := h.host.values(); len(got) != 0 {
		t.Errorf("commit without typing must not save, got %v", got)
	}
	if h.field.Value() != "20" {
		t.Errorf("value = %q, want 20", h.field.Value())
	}
}

func TestSetValueWhileEditingEvaluatesNewValue(t *testing.T) {
	cfg := Config{MountDelay: 10 * time.Millisecond, LiveDelay: time.Hour}
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD", Editable: true}, cfg)
	h.field.Mount()
	h.eval.next(t).respond(evaluator.SeverityGreen, "Normal")
	eventually(t, "initial verdict", func() bool { return h.obs.applied.Load() == 1 })

	h.field.StartEditing()
	h.field.Type("15")
	h.field.SetValue("30")

	c := h.eval.next(t)
	if diff := cmp.Diff(evaluator.Request{Field: "IOP-OD", Value: "30"}, c.req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	c.respond(evaluator.SeverityRed, "Elevated")
	eventually(t, "red verdict", func() bool { return h.field.Verdict().Level == evaluator.SeverityRed })

	h.field.Cancel()
	if h.field.Verdict().Level != evaluator.SeverityRed || h.field.Value() != "30" {
		t.Errorf("cancel after an external update changed state: %q %+v", h.field.Value(), h.field.Verdict())
	}
	if got := h.host.values(); len(got) != 0 {
		t.Errorf("unexpected saves %v", got)
	}
}

func TestPanickingEvaluationDoesNotResumeOnCancel(t *testing.T) {
	pool := workerpool.New(workerpool.Config{Workers: 1, QueueSize: 4}, nil)
	pool.Start()
	t.Cleanup(func() { pool.Stop() })

	var calls atomic.Int32
	eval := evaluator.Func(func(context.Context, evaluator.Request) (evaluator.Verdict, error) {
		if calls.Add(1) == 1 {
			panic("evaluator bug")
		}
		return evaluator.Verdict{Level: evaluator.SeverityGreen}, nil
	})

	cfg := Config{MountDelay: 10 * time.Millisecond, LiveDelay: time.Hour}
	f, err := New(context.Background(), Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD", Editable: true}, cfg, Deps{
		Evaluator:  eval,
		Dispatcher: pool,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.Unmount)
	f.Mount()
	eventually(t, "recovered panic", func() bool { return pool.Stats().TasksPanicked == 1 })

	f.StartEditing()
	f.Type("15")
	f.Cancel()

	time.Sleep(60 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("cancel re-evaluated after a finished call: %d calls", n)
	}
}

func TestStaleResponseIgnored(t *testing.T) {
	cfg := Config{MountDelay: 10 * time.Millisecond, LiveDelay: time.Hour}
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD", Editable: true}, cfg)
	h.field.Mount()
	first := h.eval.next(t)

	h.field.StartEditing()
	h.field.Type("25")
	h.field.Commit()
	second := h.eval.next(t)

	second.respond(evaluator.SeverityRed, "Elevated")
	eventually(t, "second verdict", func() bool { return h.field.Verdict().Level == evaluator.SeverityRed })

	first.respond(evaluator.SeverityGreen, "Normal")
	eventually(t, "stale discard", func() bool { return h.obs.stale.Load() == 1 })

	if got := h.field.Verdict(); got.Level != evaluator.SeverityRed || got.Message != "Elevated" {
		t.Errorf("older response overwrote the verdict: %+v", got)
	}
}

func TestExplicitTagWinsOverLayout(t *testing.T) {
	_, node, err := layout.Build(layout.Spec{
		Role: layout.RoleRow,
		Children: []layout.Spec{
			{Role: layout.RoleCell, Text: "Pressure"},
			{Role: layout.RoleCell, Children: []layout.Spec{{Field: true}}},
		},
	})
	if err != nil {
		t.Fatalf("build layout: %v", err)
	}

	tests := []struct {
		name string
		tag  string
		want string
	}{
		{"tagged", "IOP-OD", "IOP-OD"},
		{"untagged", "", "Pressure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Spec{ID: "iop", Value: "14", EvalField: tt.tag, Node: node}, fastConfig())
			h.field.Mount()
			if got := h.eval.next(t).req.Field; got != tt.want {
				t.Errorf("identity = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdentityResolvedAtDispatch(t *testing.T) {
	cfg := Config{MountDelay: 40 * time.Millisecond}
	h := newHarness(t, Spec{ID: "iop", Value: "14"}, cfg)
	h.field.Mount()
	h.field.SetTag("IOP-OS")

	if got := h.eval.next(t).req.Field; got != "IOP-OS" {
		t.Errorf("identity = %q, want the tag set before dispatch", got)
	}
}

func TestUnknownIdentityStillEvaluates(t *testing.T) {
	h := newHarness(t, Spec{ID: "free", Value: "abc"}, fastConfig())
	h.field.Mount()
	if got := h.eval.next(t).req.Field; got != "unknown" {
		t.Errorf("identity = %q, want unknown", got)
	}
}

func TestBlankCommitClearsVerdictWithoutCall(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "30", EvalField: "IOP-OD", Editable: true}, fastConfig())
	h.field.Mount()
	h.eval.next(t).respond(evaluator.SeverityRed, "Elevated")
	eventually(t, "verdict", func() bool { return h.field.Verdict().Level == evaluator.SeverityRed })

	h.field.StartEditing()
	h.field.Type("   ")
	h.field.Commit()

	if !h.field.Verdict().IsZero() {
		t.Errorf("expected verdict to be cleared, got %+v", h.field.Verdict())
	}
	h.eval.expectNone(t, 80*time.Millisecond)
	if diff := cmp.Diff([]string{""}, h.host.values()); diff != "" {
		t.Errorf("host saves mismatch (-want +got):\n%s", diff)
	}
}

func TestFailureLeavesVerdict(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD", Editable: true}, fastConfig())
	h.field.Mount()
	h.eval.next(t).respond(evaluator.SeverityYellow, "Borderline")
	eventually(t, "verdict", func() bool { return h.obs.applied.Load() == 1 })

	h.field.StartEditing()
	h.field.Type("22")
	h.field.Commit()
	h.eval.next(t).fail(&evaluator.StatusError{StatusCode: 503})
	eventually(t, "failure", func() bool { return h.obs.failed.Load() == 1 })

	if got := h.field.Verdict(); got.Level != evaluator.SeverityYellow {
		t.Errorf("failure changed the verdict: %+v", got)
	}
}

func TestNullSeverityKeepsMessage(t *testing.T) {
	h := newHarness(t, Spec{ID: "notes", Value: "clear", Editable: true}, fastConfig())
	h.field.Mount()
	h.eval.next(t).respond(evaluator.SeverityNone, "Not a numeric reading")
	eventually(t, "verdict", func() bool { return h.obs.applied.Load() == 1 })

	snap := h.field.Snapshot()
	if snap.Indicator {
		t.Error("null severity must not show an indicator")
	}
	if snap.Tooltip != "Not a numeric reading" {
		t.Errorf("tooltip = %q", snap.Tooltip)
	}
}

func TestUnmountIgnoresLateResponse(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD"}, fastConfig())
	h.field.Mount()
	c := h.eval.next(t)

	h.field.Unmount()
	c.respond(evaluator.SeverityRed, "Elevated")
	eventually(t, "unmounted discard", func() bool { return h.obs.unmounted.Load() == 1 })

	if !h.field.Verdict().IsZero() {
		t.Errorf("unmounted field was updated: %+v", h.field.Verdict())
	}
}

func TestUnmountCancelsPendingTimer(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "14"}, Config{MountDelay: 30 * time.Millisecond})
	h.field.Mount()
	h.field.Unmount()
	h.eval.expectNone(t, 80*time.Millisecond)
}

func TestUnmountedFieldStaysUnmounted(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD", Editable: true}, fastConfig())
	h.field.Unmount()
	h.field.Mount()

	if h.field.Mounted() {
		t.Fatal("unmounted field mounted again")
	}
	h.eval.expectNone(t, 50*time.Millisecond)
}

func TestReadOnlyRefusesEditing(t *testing.T) {
	h := newHarness(t, Spec{ID: "axis", Value: "90", Editable: false, DisableEval: true}, fastConfig())
	h.field.Mount()

	if h.field.StartEditing() {
		t.Fatal("read-only field entered editing")
	}
	if err := h.field.Type("1"); !errors.Is(err, ErrNotEditing) {
		t.Errorf("expected ErrNotEditing, got %v", err)
	}
	if snap := h.field.Snapshot(); snap.Tooltip != "90" {
		t.Errorf("read-only tooltip should fall back to the value, got %q", snap.Tooltip)
	}
}

func TestSetEditableFalseCancelsEdit(t *testing.T) {
	h := newHarness(t, Spec{ID: "axis", Value: "90", Editable: true, DisableEval: true}, fastConfig())
	h.field.Mount()
	h.field.StartEditing()
	h.field.Type("95")

	h.field.SetEditable(false)
	if h.field.Editing() {
		t.Fatal("field still editing after becoming read-only")
	}
	if h.field.Value() != "90" || len(h.host.values()) != 0 {
		t.Error("draft must be discarded")
	}
}

func TestSecretIsMaskedAndNeverEvaluated(t *testing.T) {
	h := newHarness(t, Spec{ID: "pin", Value: "1234", Kind: KindSecret, Editable: true}, fastConfig())
	h.field.Mount()
	h.eval.expectNone(t, 50*time.Millisecond)

	snap := h.field.Snapshot()
	if snap.Display != "••••" {
		t.Errorf("display = %q", snap.Display)
	}
	if !snap.EvalDisabled {
		t.Error("secret fields must report evaluation disabled")
	}

	h.field.StartEditing()
	h.field.Type("98765")
	if snap := h.field.Snapshot(); snap.Draft != "" || snap.Display != "•••••" {
		t.Errorf("secret draft leaked: %+v", snap)
	}
}

func TestPlaceholderDisplay(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Placeholder: "IOP", DisableEval: true}, fastConfig())
	h.field.Mount()
	if got := h.field.Snapshot().Display; got != "IOP" {
		t.Errorf("display = %q, want placeholder", got)
	}

	h2 := newHarness(t, Spec{ID: "iop-os", DisableEval: true}, fastConfig())
	if got := h2.field.Snapshot().Display; got != "--" {
		t.Errorf("display = %q, want default placeholder", got)
	}
}

type fakeNavigator struct {
	calls []traversal.Direction
	field *Field
}

func (n *fakeNavigator) Advance(fromID string, dir traversal.Direction) bool {
	// commit must be fully applied before traversal
	if n.field.Editing() {
		panic("advance called while " + fromID + " still editing")
	}
	n.calls = append(n.calls, dir)
	return true
}

func TestTabCommitsThenAdvances(t *testing.T) {
	host := &recordingHost{}
	nav := &fakeNavigator{}
	f, err := New(context.Background(),
		Spec{ID: "iop-od", Value: "14", Editable: true, DisableEval: true},
		fastConfig(),
		Deps{Host: host, Navigator: nav})
	if err != nil {
		t.Fatal(err)
	}
	nav.field = f
	f.Mount()
	defer f.Unmount()

	f.StartEditing()
	f.Type("15")
	if err := f.HandleKey(KeyTab, false); err != nil {
		t.Fatalf("handle tab: %v", err)
	}
	f.StartEditing()
	if err := f.HandleKey(KeyTab, true); err != nil {
		t.Fatalf("handle shift-tab: %v", err)
	}

	if diff := cmp.Diff([]string{"15"}, host.values()); diff != "" {
		t.Errorf("host saves mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]traversal.Direction{traversal.Forward, traversal.Backward}, nav.calls); diff != "" {
		t.Errorf("navigation mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleKey(t *testing.T) {
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", Editable: true, DisableEval: true}, fastConfig())
	h.field.Mount()

	if err := h.field.HandleKey(KeyEnter, false); err != nil {
		t.Errorf("keys outside editing should be ignored, got %v", err)
	}
	if err := h.field.HandleKey("F1", false); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("expected ErrUnknownKey, got %v", err)
	}

	h.field.StartEditing()
	h.field.Type("16")
	h.field.HandleKey(KeyEscape, false)
	if h.field.Value() != "14" {
		t.Errorf("escape should cancel, value %q", h.field.Value())
	}

	h.field.StartEditing()
	h.field.Type("16")
	h.field.HandleKey(KeyEnter, false)
	if h.field.Value() != "16" {
		t.Errorf("enter should commit, value %q", h.field.Value())
	}
}

func TestParseKey(t *testing.T) {
	for in, want := range map[string]Key{"enter": KeyEnter, "Esc": KeyEscape, " TAB ": KeyTab} {
		got, err := ParseKey(in)
		if err != nil || got != want {
			t.Errorf("ParseKey(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKey("space"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("expected ErrUnknownKey, got %v", err)
	}
}

// End to end: blur commits a padded draft, the commit evaluation is issued
// immediately and its verdict is displayed.
func TestCommitEvaluationScenario(t *testing.T) {
	cfg := Config{MountDelay: time.Hour, LiveDelay: time.Hour}
	h := newHarness(t, Spec{ID: "iop-od", Value: "14", EvalField: "IOP-OD", Editable: true}, cfg)
	h.field.Mount()

	h.field.StartEditing()
	h.field.Type("25 ")
	h.field.Commit()

	if diff := cmp.Diff([]string{"25"}, h.host.values()); diff != "" {
		t.Fatalf("host saves mismatch (-want +got):\n%s", diff)
	}
	c := h.eval.next(t)
	if diff := cmp.Diff(evaluator.Request{Field: "IOP-OD", Value: "25"}, c.req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	c.respond(evaluator.SeverityRed, "Elevated")
	eventually(t, "verdict", func() bool { return h.obs.applied.Load() == 1 })

	snap := h.field.Snapshot()
	if snap.Severity != evaluator.SeverityRed || !snap.Indicator || snap.Tooltip != "Elevated" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Display != "25" || snap.Mode != ModeViewing {
		t.Errorf("unexpected display %q mode %q", snap.Display, snap.Mode)
	}
}

package field

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chakravue/fieldeval/internal/evaluator"
)

// debounce is the field's single pending-evaluation handle. gen guards
// against a fired timer racing with a cancel or re-arm.
type debounce struct {
	timer *time.Timer
	gen   uint64
}

func (d *debounce) arm(delay time.Duration, fire func(gen uint64)) {
	d.cancel()
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { fire(gen) })
}

func (d *debounce) cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *debounce) pending() bool {
	return d.timer != nil
}

// claim consumes the timer for generation gen
func (d *debounce) claim(gen uint64) bool {
	if d.timer == nil || gen != d.gen {
		return false
	}
	d.timer = nil
	d.gen++
	return true
}

// valueChangedLocked reacts to a new current value while viewing
func (f *Field) valueChangedLocked() {
	if f.evalOff || isBlank(f.current) {
		f.clearVerdictLocked()
		return
	}
	f.scheduleLocked(f.cfg.MountDelay, TriggerMount, f.current)
}

// clearVerdictLocked drops the verdict, any pending timer and every
// outstanding issuance token
func (f *Field) clearVerdictLocked() {
	f.timer.cancel()
	f.issued++
	f.verdict = evaluator.Verdict{}
}

func (f *Field) scheduleLocked(delay time.Duration, trigger Trigger, value string) {
	f.timer.arm(delay, func(gen uint64) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.mounted || !f.timer.claim(gen) {
			return
		}
		f.dispatchLocked(value, trigger)
	})
}

// dispatchLocked issues a new token and submits the evaluation call
func (f *Field) dispatchLocked(value string, trigger Trigger) {
	f.issued++
	token := f.issued
	res := f.resolveLocked()
	req := evaluator.Request{Field: res.Field(), Value: value}

	f.inflight++
	f.observer.EvaluationDispatched(trigger)
	f.logger.Debug("evaluation dispatched",
		zap.String("trigger", string(trigger)),
		zap.String("identity", req.Field),
		zap.String("identity_source", res.Source),
		zap.Uint64("token", token))

	err := f.dispatcher.Submit(f.ctx, func(ctx context.Context) {
		// runs even if Evaluate panics and the dispatcher recovers
		defer f.release()
		verdict, err := f.evaluator.Evaluate(ctx, req)
		f.settle(token, verdict, err)
	})
	if err != nil {
		f.inflight--
		f.observer.EvaluationFailed()
		f.logger.Debug("evaluation not dispatched", zap.Error(err))
	}
}

// release marks one dispatched call as finished
func (f *Field) release() {
	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()
}

// settle applies a response only if it belongs to the latest issuance and
// the field is still mounted. Failures leave the verdict untouched.
func (f *Field) settle(token uint64, verdict evaluator.Verdict, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case !f.mounted:
		f.observer.EvaluationDiscarded(DiscardUnmounted)
		return
	case token != f.issued:
		f.observer.EvaluationDiscarded(DiscardStale)
		f.logger.Debug("stale evaluation discarded",
			zap.Uint64("token", token),
			zap.Uint64("latest", f.issued))
		return
	case err != nil:
		f.observer.EvaluationFailed()
		f.logger.Debug("evaluation failed", zap.Error(err))
		return
	}

	f.verdict = verdict
	f.observer.EvaluationApplied(verdict.Level)
}

package field

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chakravue/fieldeval/internal/evaluator"
	"github.com/chakravue/fieldeval/internal/traversal"
)

// Key is a keyboard command understood while editing
type Key string

const (
	KeyEnter  Key = "Enter"
	KeyEscape Key = "Escape"
	KeyTab    Key = "Tab"
)

var ErrUnknownKey = errors.New("unknown key")

// ParseKey maps a key name to a Key
func ParseKey(s string) (Key, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enter", "return":
		return KeyEnter, nil
	case "escape", "esc":
		return KeyEscape, nil
	case "tab":
		return KeyTab, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, s)
}

// StartEditing enters the Editing state with the draft seeded from the
// current value and fully selected. It reports whether the field is now
// editing; read-only and unmounted fields refuse.
func (f *Field) StartEditing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.mounted || !f.editable {
		return false
	}
	if f.mode == ModeEditing {
		return true
	}

	f.mode = ModeEditing
	f.draft = f.current
	f.selectAll = true
	f.savedVerdict = f.verdict
	f.dirty = false
	f.resumeOnCancel = f.timer.pending() || f.inflight > 0
	f.logger.Debug("edit started")
	return true
}

// Type replaces the draft with s and schedules a live evaluation
func (f *Field) Type(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mode != ModeEditing {
		return ErrNotEditing
	}
	f.draft = s
	f.selectAll = false

	if f.evalOff {
		return nil
	}
	f.dirty = true
	if isBlank(s) {
		f.clearVerdictLocked()
		return nil
	}
	f.scheduleLocked(f.cfg.LiveDelay, TriggerLive, s)
	return nil
}

// Commit trims the draft, leaves Editing and dispatches an immediate
// evaluation of the committed value. The host is notified only when the
// value changed. Commit outside Editing is a no-op.
func (f *Field) Commit() {
	f.mu.Lock()
	if f.mode != ModeEditing {
		f.mu.Unlock()
		return
	}

	final := strings.TrimSpace(f.draft)
	changed := final != f.current
	f.mode = ModeViewing
	f.selectAll = false
	f.draft = final
	f.current = final
	f.dirty = false
	f.resumeOnCancel = false

	if f.evalOff {
		f.timer.cancel()
	} else if isBlank(final) {
		f.clearVerdictLocked()
	} else {
		f.timer.cancel()
		f.dispatchLocked(final, TriggerCommit)
	}
	f.mu.Unlock()

	if changed {
		f.host.Save(f.id, final)
		f.observer.Committed()
		f.logger.Debug("value committed")
	}
}

// Cancel discards the draft and leaves Editing. The value and verdict are
// left as they were before editing began.
func (f *Field) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mode != ModeEditing {
		return
	}
	f.mode = ModeViewing
	f.draft = f.current
	f.selectAll = false

	if f.dirty {
		f.timer.cancel()
		f.issued++
		f.verdict = f.savedVerdict
		if f.resumeOnCancel {
			if f.evalOff || isBlank(f.current) {
				f.verdict = evaluator.Verdict{}
			} else {
				f.scheduleLocked(f.cfg.MountDelay, TriggerMount, f.current)
			}
		}
	}
	f.dirty = false
	f.resumeOnCancel = false
	f.logger.Debug("edit cancelled")
}

// HandleKey applies a keyboard command. Enter commits, Escape cancels and
// Tab commits then moves to the next field (previous with shift). Keys are
// ignored when the field is not editing.
func (f *Field) HandleKey(key Key, shift bool) error {
	switch key {
	case KeyEnter, KeyEscape, KeyTab:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if !f.Editing() {
		return nil
	}

	switch key {
	case KeyEnter:
		f.Commit()
	case KeyEscape:
		f.Cancel()
	case KeyTab:
		f.Commit()
		if f.navigator != nil {
			dir := traversal.Forward
			if shift {
				dir = traversal.Backward
			}
			f.navigator.Advance(f.id, dir)
		}
	}
	return nil
}

// SetValue applies an external value update from the host. Setting the
// value it already holds does nothing. While editing, the draft is reseeded
// from the new value and the session restarts from it, so a later commit
// without typing does not write the old value back.
func (f *Field) SetValue(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v == f.current {
		return
	}
	f.current = v
	f.draft = v

	if f.mode == ModeEditing {
		// responses for the replaced value or draft no longer apply
		f.issued++
		f.selectAll = true
		f.savedVerdict = f.verdict
		f.dirty = false
	}
	if f.mounted {
		f.valueChangedLocked()
	}
	if f.mode == ModeEditing {
		f.resumeOnCancel = f.timer.pending()
	}
}

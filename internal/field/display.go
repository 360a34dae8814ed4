package field

import (
	"strings"
	"unicode/utf8"

	"github.com/chakravue/fieldeval/internal/evaluator"
)

const maskRune = "•"

// Snapshot is a point-in-time view of a field as the host would render it
type Snapshot struct {
	ID             string             `json:"id"`
	Value          string             `json:"value"`
	Draft          string             `json:"draft,omitempty"`
	Mode           Mode               `json:"mode"`
	Editable       bool               `json:"editable"`
	Kind           Kind               `json:"kind"`
	Mounted        bool               `json:"mounted"`
	Display        string             `json:"display"`
	Severity       evaluator.Severity `json:"severity"`
	Indicator      bool               `json:"indicator"`
	Message        string             `json:"message,omitempty"`
	Tooltip        string             `json:"tooltip,omitempty"`
	SelectAll      bool               `json:"select_all,omitempty"`
	Identity       string             `json:"identity"`
	IdentitySource string             `json:"identity_source,omitempty"`
	EvalDisabled   bool               `json:"eval_disabled"`
}

// Snapshot returns the field's current state
func (f *Field) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	res := f.resolveLocked()
	s := Snapshot{
		ID:             f.id,
		Value:          f.current,
		Mode:           f.mode,
		Editable:       f.editable,
		Kind:           f.kind,
		Mounted:        f.mounted,
		Severity:       f.verdict.Level,
		Indicator:      f.verdict.Level != evaluator.SeverityNone,
		Message:        f.verdict.Message,
		SelectAll:      f.selectAll,
		Identity:       res.Field(),
		IdentitySource: res.Source,
		EvalDisabled:   f.evalOff,
	}

	if f.mode == ModeEditing {
		s.Display = f.render(f.draft, false)
		if f.kind != KindSecret {
			s.Draft = f.draft
		}
	} else {
		s.Display = f.render(f.current, true)
	}

	// read-only fields fall back to their display text
	s.Tooltip = f.verdict.Message
	if !f.editable && s.Tooltip == "" {
		s.Tooltip = s.Display
	}
	return s
}

// render masks secrets and substitutes the placeholder for empty values
func (f *Field) render(v string, placeholder bool) string {
	if v == "" {
		if placeholder {
			return f.placeholder
		}
		return ""
	}
	if f.kind == KindSecret {
		return Mask(v)
	}
	return v
}

// Mask hides a secret value, revealing nothing but a rough length
func Mask(v string) string {
	return strings.Repeat(maskRune, max(3, utf8.RuneCountInString(v)))
}

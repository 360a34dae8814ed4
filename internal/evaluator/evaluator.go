// Package evaluator classifies clinical readings through the remote reading
// evaluator. A verdict is a traffic-light severity plus a short message.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Severity is the traffic-light level of a reading. The zero value means no
// severity applies.
type Severity string

const (
	SeverityNone   Severity = ""
	SeverityGreen  Severity = "green"
	SeverityYellow Severity = "yellow"
	SeverityRed    Severity = "red"
)

// ErrMalformedResponse is returned when the evaluator answers with a body
// that cannot be interpreted
var ErrMalformedResponse = errors.New("malformed evaluator response")

// ParseSeverity maps the wire value to a Severity. nil is SeverityNone.
func ParseSeverity(s *string) (Severity, error) {
	if s == nil {
		return SeverityNone, nil
	}
	switch sev := Severity(*s); sev {
	case SeverityGreen, SeverityYellow, SeverityRed:
		return sev, nil
	}
	return SeverityNone, fmt.Errorf("%w: unknown severity %q", ErrMalformedResponse, *s)
}

// MarshalJSON encodes SeverityNone as null
func (s Severity) MarshalJSON() ([]byte, error) {
	if s == SeverityNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON accepts null or one of the known levels
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	sev, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = sev
	return nil
}

// Verdict is the evaluator's classification of one value
type Verdict struct {
	Level   Severity `json:"severity"`
	Message string   `json:"message"`
}

// IsZero reports whether the verdict carries no information
func (v Verdict) IsZero() bool {
	return v.Level == SeverityNone && v.Message == ""
}

// Request is the body sent to the evaluator
type Request struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Evaluator classifies a reading
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Verdict, error)
}

// Func adapts a function to Evaluator
type Func func(ctx context.Context, req Request) (Verdict, error)

// Evaluate calls f
func (f Func) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	return f(ctx, req)
}

// Package leadstate tracks how far each contact has progressed through the
// five-field qualification sequence.
package leadstate

import (
	"strconv"
	"strings"
	"time"
)

// Field identifies one of the captured fields, in capture order.
type Field int

const (
	FieldCampus Field = iota + 1
	FieldProgram
	FieldName
	FieldPhone
	FieldEmail
)

// Order lists every field in the order they are asked for.
var Order = []Field{FieldCampus, FieldProgram, FieldName, FieldPhone, FieldEmail}

func (f Field) String() string {
	switch f {
	case FieldCampus:
		return "campus"
	case FieldProgram:
		return "programa"
	case FieldName:
		return "nombre_completo"
	case FieldPhone:
		return "telefono"
	case FieldEmail:
		return "email"
	default:
		return "unknown"
	}
}

// Step is the 1-based index of the first missing field, or StepComplete.
type Step int

// StepComplete marks a state with all five fields captured.
const StepComplete Step = 0

func (s Step) String() string {
	if s == StepComplete {
		return "complete"
	}
	return strconv.Itoa(int(s))
}

// ParseStep reverses Step.String.
func ParseStep(v string) Step {
	if v == "complete" {
		return StepComplete
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 5 {
		return 1
	}
	return Step(n)
}

// Captured holds the five qualification fields. Empty means not captured.
type Captured struct {
	Campus  string `json:"campus"`
	Program string `json:"programa"`
	Name    string `json:"nombreCompleto"`
	Phone   string `json:"telefono"`
	Email   string `json:"email"`
}

// Get returns the value of one field.
func (c Captured) Get(f Field) string {
	switch f {
	case FieldCampus:
		return c.Campus
	case FieldProgram:
		return c.Program
	case FieldName:
		return c.Name
	case FieldPhone:
		return c.Phone
	case FieldEmail:
		return c.Email
	}
	return ""
}

// Merge returns c with every non-empty field of partial applied.
// A captured field is never cleared by an empty value.
func (c Captured) Merge(partial Captured) Captured {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&c.Campus, partial.Campus)
	set(&c.Program, partial.Program)
	set(&c.Name, partial.Name)
	set(&c.Phone, partial.Phone)
	set(&c.Email, partial.Email)
	return c
}

// IsEmpty reports whether no field is set.
func (c Captured) IsEmpty() bool {
	return c == Captured{}
}

// Step derives the current step from the field values.
func (c Captured) Step() Step {
	for i, f := range Order {
		if strings.TrimSpace(c.Get(f)) == "" {
			return Step(i + 1)
		}
	}
	return StepComplete
}

// Count returns how many fields are captured.
func (c Captured) Count() int {
	n := 0
	for _, f := range Order {
		if strings.TrimSpace(c.Get(f)) != "" {
			n++
		}
	}
	return n
}

// State is the persisted capture record for one contact.
type State struct {
	ContactID        string     `json:"contactId"`
	Captured         Captured   `json:"captured"`
	CurrentStep      Step       `json:"-"`
	IsComplete       bool       `json:"isComplete"`
	BookingSentAt    *time.Time `json:"bookingSentAt,omitempty"`
	PostBookingCount int        `json:"postBookingCount"`
	Score            int        `json:"score"`
	ScoreTier        string     `json:"scoreTier"`
	FromLeadForm     bool       `json:"fromLeadForm"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// New returns an empty state for contactID.
func New(contactID string, now time.Time) State {
	s := State{ContactID: contactID, CreatedAt: now, UpdatedAt: now}
	s.recompute()
	return s
}

// BookingSent reports whether a booking link has been delivered.
func (s State) BookingSent() bool {
	return s.BookingSentAt != nil
}

// NextMissing returns the first field not yet captured, or 0 when complete.
func (s State) NextMissing() Field {
	step := s.Captured.Step()
	if step == StepComplete {
		return 0
	}
	return Field(step)
}

// StepLabel is the JSON-friendly form of CurrentStep.
func (s State) StepLabel() string {
	return s.CurrentStep.String()
}

func (s *State) recompute() {
	s.CurrentStep = s.Captured.Step()
	s.IsComplete = s.CurrentStep == StepComplete
}

// apply merges partial into the state and recomputes the derived fields.
func (s *State) apply(partial Captured, now time.Time) bool {
	merged := s.Captured.Merge(partial)
	changed := merged != s.Captured
	s.Captured = merged
	s.recompute()
	if changed {
		s.UpdatedAt = now
	}
	return changed
}

package model

import (
	"errors"
	"fmt"
)

// Priority is the tier encoded by a task's leading marker glyph.
type Priority string

const (
	PriorityA         Priority = "A"
	PriorityB         Priority = "B"
	PriorityC         Priority = "C"
	PriorityBlocked   Priority = "blocked"
	PriorityScheduled Priority = "scheduled"
	PriorityNone      Priority = ""
)

// Weight returns the external store priority for p. Lower is more urgent.
func Weight(p Priority) int {
	switch p {
	case PriorityA:
		return 1
	case PriorityB, PriorityBlocked:
		return 5
	default:
		return 9
	}
}

// Subtask is an indented checkbox line attached to a top-level task.
type Subtask struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Task is a top-level checkbox line extracted from a note. It only lives for
// one sync pass.
type Task struct {
	Fingerprint    string
	RawText        string
	CleanText      string
	Completed      bool
	Priority       Priority
	PriorityNumber string
	Weight         int
	Section        string
	Category       string
	Blocked        bool
	BlockerReason  string
	Line           int
	Source         string
	Subtasks       []Subtask
}

var errInvalidTask = errors.New("invalid task")

// Validate checks the fields every later stage relies on.
func (t *Task) Validate() error {
	switch {
	case t.Fingerprint == "":
		return fmt.Errorf("%w: empty fingerprint at line %d", errInvalidTask, t.Line)
	case t.RawText == "":
		return fmt.Errorf("%w: empty text at line %d", errInvalidTask, t.Line)
	case t.Line <= 0:
		return fmt.Errorf("%w: line %d", errInvalidTask, t.Line)
	case t.Category == "":
		return fmt.Errorf("%w: no category at line %d", errInvalidTask, t.Line)
	}
	return nil
}

// PriorityLabel renders the priority the way it is written in record bodies,
// e.g. "A1" or "B". It is empty for unmarked tasks.
func (t *Task) PriorityLabel() string {
	return string(t.Priority) + t.PriorityNumber
}

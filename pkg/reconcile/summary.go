package reconcile

import (
	"fmt"
	"strings"
)

// Summary is the outcome of one forward sync run.
type Summary struct {
	Created     int      `json:"created"`
	Recovered   int      `json:"recovered"`
	Updated     int      `json:"updated"`
	Completed   int      `json:"completed"`
	Uncompleted int      `json:"uncompleted"`
	Deleted     int      `json:"deleted"`
	Errors      []string `json:"errors"`
}

func (s *Summary) fail(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// Changes counts the external mutations that succeeded.
func (s Summary) Changes() int {
	return s.Created + s.Recovered + s.Updated + s.Completed + s.Uncompleted + s.Deleted
}

// Digest is a one-line description for hosts and logs.
func (s Summary) Digest() string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.Created, "created")
	add(s.Recovered, "recovered")
	add(s.Updated, "updated")
	add(s.Completed, "completed")
	add(s.Uncompleted, "reopened")
	add(s.Deleted, "deleted")

	msg := "Tasks synced: no changes"
	if len(parts) > 0 {
		msg = "Tasks synced: " + strings.Join(parts, ", ")
	}
	if len(s.Errors) > 0 {
		msg += fmt.Sprintf(" (%d errors)", len(s.Errors))
	}
	return msg
}

// PullSummary is the outcome of one reverse sync pass.
type PullSummary struct {
	Completed   int      `json:"completed"`
	Uncompleted int      `json:"uncompleted"`
	Tasks       []string `json:"tasks"`
	Errors      []string `json:"errors"`
	Skipped     string   `json:"skipped,omitempty"`
	// Stale is set when the pass was skipped because the state belongs to
	// another epoch.
	Stale bool `json:"stale,omitempty"`
}

func (s *PullSummary) fail(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

func (s PullSummary) Changes() int {
	return s.Completed + s.Uncompleted
}

// Digest lists up to three synced tasks.
func (s PullSummary) Digest() string {
	if s.Skipped != "" {
		return "Tasks pulled: skipped (" + s.Skipped + ")"
	}
	if s.Changes() == 0 {
		msg := "Tasks pulled: no changes"
		if len(s.Errors) > 0 {
			msg += fmt.Sprintf(" (%d errors)", len(s.Errors))
		}
		return msg
	}

	shown := s.Tasks
	more := ""
	if len(shown) > 3 {
		more = fmt.Sprintf(" (+%d more)", len(shown)-3)
		shown = shown[:3]
	}
	msg := fmt.Sprintf("Tasks pulled: %d from the store: %s%s", s.Changes(), strings.Join(shown, ", "), more)
	if len(s.Errors) > 0 {
		msg += fmt.Sprintf(" (%d errors)", len(s.Errors))
	}
	return msg
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// Package hook speaks the JSON protocol of editor agent hooks: an event on
// stdin, one JSON object on stdout. Nothing here ever fails the host; bad
// input is answered with a plain success.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/harrisonrobin/tasksync/pkg/reconcile"
)

const (
	EventPostToolUse  = "PostToolUse"
	EventSessionStart = "SessionStart"
)

// Tools whose use can change the daily note.
var syncTools = map[string]bool{"Write": true, "Edit": true}

type ToolInput struct {
	FilePath string `json:"file_path"`
}

// Input is the event a host writes to stdin.
type Input struct {
	SessionID     string    `json:"session_id"`
	HookEventName string    `json:"hook_event_name"`
	Cwd           string    `json:"cwd"`
	ToolName      string    `json:"tool_name"`
	ToolInput     ToolInput `json:"tool_input"`
}

// Output is the single object answered on stdout.
type Output struct {
	Status        string `json:"status,omitempty"`
	Message       string `json:"message,omitempty"`
	SystemMessage string `json:"systemMessage,omitempty"`
	Timing        string `json:"timing,omitempty"`
}

// Success is the answer when there is nothing to report.
var Success = Output{Status: "success"}

// ReadInput decodes the event from r. An empty stream is an empty event.
func ReadInput(r io.Reader) (Input, error) {
	var in Input
	data, err := io.ReadAll(r)
	if err != nil {
		return in, fmt.Errorf("reading hook input: %w", err)
	}
	if len(data) == 0 {
		return in, nil
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return Input{}, fmt.Errorf("decoding hook input: %w", err)
	}
	return in, nil
}

// ShouldSync reports whether the event edited the daily note at dailyPath.
func ShouldSync(in Input, dailyPath string) bool {
	if !syncTools[in.ToolName] || in.ToolInput.FilePath == "" || dailyPath == "" {
		return false
	}
	return filepath.Clean(in.ToolInput.FilePath) == filepath.Clean(dailyPath)
}

// Write encodes out as one line on w.
func Write(w io.Writer, out Output) error {
	return json.NewEncoder(w).Encode(out)
}

// ForSync is the PostToolUse answer for a forward sync.
func ForSync(sum reconcile.Summary) Output {
	if sum.Changes() == 0 && len(sum.Errors) == 0 {
		return Success
	}
	return Output{Status: "success", Message: sum.Digest()}
}

// ForPull is the SessionStart answer for a reverse sync that took elapsed.
func ForPull(sum reconcile.PullSummary, elapsed time.Duration) Output {
	timing := fmt.Sprintf("%.2fs", elapsed.Seconds())
	switch {
	case sum.Stale:
		return Output{SystemMessage: fmt.Sprintf("[Tasks] New day - sync will initialize when the daily note is updated. (%s)", timing)}
	case sum.Changes() > 0 || len(sum.Errors) > 0:
		return Output{SystemMessage: fmt.Sprintf("[Tasks] %s (%s)", sum.Digest(), timing)}
	default:
		return Output{Status: "success", Timing: timing}
	}
}

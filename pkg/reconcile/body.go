package reconcile

import (
	"fmt"
	"slices"
	"strings"

	"github.com/harrisonrobin/tasksync/pkg/model"
	"github.com/harrisonrobin/tasksync/pkg/state"
)

const blockedPrefix = "BLOCKED: "

// RemoteName is the external record name for a task.
func RemoteName(t *model.Task) string {
	if t.Blocked {
		return blockedPrefix + t.CleanText
	}
	return t.CleanText
}

// BuildBody renders the metadata block stored with the external record.
func BuildBody(t *model.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Source: %s\n", t.Source)
	fmt.Fprintf(&b, "Category: %s\n", t.Category)
	if label := t.PriorityLabel(); label != "" {
		fmt.Fprintf(&b, "Priority: %s\n", label)
	}

	if t.Blocked {
		b.WriteString("Blocked: Yes\n")
		if t.BlockerReason != "" {
			fmt.Fprintf(&b, "Waiting for: %s\n", t.BlockerReason)
		}
	} else {
		b.WriteString("Blocked: No\n")
	}

	if len(t.Subtasks) > 0 {
		b.WriteString("---\nSubtasks:\n")
		for _, st := range t.Subtasks {
			check := "[ ]"
			if st.Completed {
				check = "[x]"
			}
			fmt.Fprintf(&b, "- %s %s\n", check, st.Text)
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// MappingNeedsUpdate reports whether any field rendered into the record body
// differs between the task and what was last pushed for it.
func MappingNeedsUpdate(t *model.Task, m *state.Mapping) bool {
	return t.Category != m.Category ||
		t.Priority != m.Priority ||
		t.PriorityNumber != m.PriorityNumber ||
		t.Blocked != m.Blocked ||
		t.BlockerReason != m.BlockerReason ||
		t.Source != m.SourceDocumentPath ||
		!slices.Equal(t.Subtasks, m.Subtasks)
}

// applyMetadata copies the body fields of t into m.
func applyMetadata(m *state.Mapping, t *model.Task) {
	m.Category = t.Category
	m.Priority = t.Priority
	m.PriorityNumber = t.PriorityNumber
	m.Blocked = t.Blocked
	m.BlockerReason = t.BlockerReason
	m.SourceDocumentPath = t.Source
	m.Subtasks = slices.Clone(t.Subtasks)
}

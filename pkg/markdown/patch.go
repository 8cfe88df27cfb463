package markdown

import (
	"errors"
	"regexp"
	"strings"

	"github.com/harrisonrobin/tasksync/pkg/fingerprint"
)

// ErrLineNotFound is returned when no checkbox line matches the task text.
var ErrLineNotFound = errors.New("task line not found")

var doneMarkerRegex = regexp.MustCompile(`\s*✅(?:\s*\d{4}-\d{2}-\d{2})?\s*$`)

// SetChecked rewrites the checkbox of the first top-level task whose
// normalized text equals that of text. Only that line changes. It returns the
// new content and the 1-based line that was patched.
func SetChecked(content []byte, text string, completed bool) ([]byte, int, error) {
	want := fingerprint.Normalize(text)
	if want == "" {
		return content, 0, ErrLineNotFound
	}

	doc := split(content)
	for _, ln := range doc {
		if ln.fenced {
			continue
		}
		m := taskRegex.FindStringSubmatch(ln.text)
		if m == nil || m[1] != "" || fingerprint.Normalize(m[3]) != want {
			continue
		}

		body := m[3]
		box := " "
		if completed {
			box = "x"
		} else {
			body = doneMarkerRegex.ReplaceAllString(body, "")
		}

		raw := strings.Split(string(content), "\n")
		patched := "- [" + box + "] " + body
		if strings.HasSuffix(raw[ln.number-1], "\r") {
			patched += "\r"
		}
		raw[ln.number-1] = patched
		return []byte(strings.Join(raw, "\n")), ln.number, nil
	}
	return content, 0, ErrLineNotFound
}

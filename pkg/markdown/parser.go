package markdown

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/harrisonrobin/tasksync/pkg/fingerprint"
	"github.com/harrisonrobin/tasksync/pkg/model"
)

// DefaultSubtaskProximity is how many lines below its parent an indented
// checkbox may sit and still be attached as a subtask.
const DefaultSubtaskProximity = 10

// DefaultCategory is the bucket for tasks no rule claims.
const DefaultCategory = "Personal"

var (
	taskRegex     = regexp.MustCompile(`^([ \t]*)- \[([ xX])\] (.+)$`)
	headerRegex   = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
	categoryRegex = regexp.MustCompile(`(?i)(?:category|company):\s*([\p{L}\p{N}_ ]+)`)
	blockerRegex  = regexp.MustCompile(`(?i)waiting for:\s*(.+)$`)
)

// Leading marker glyphs, checked in order. At most one applies.
var priorityMarkers = []struct {
	priority model.Priority
	regex    *regexp.Regexp
}{
	{model.PriorityA, regexp.MustCompile(`^🔴(\d+)?\.?\s*`)},
	{model.PriorityB, regexp.MustCompile(`^🟡\s*`)},
	{model.PriorityC, regexp.MustCompile(`^🟢\s*`)},
	{model.PriorityBlocked, regexp.MustCompile(`^🔵\s*`)},
	{model.PriorityScheduled, regexp.MustCompile(`^📅\s*`)},
}

// CategoryRule maps a keyword found in a section header or inline tag to the
// external list that receives the task.
type CategoryRule struct {
	Keyword string
	List    string
}

// Parser extracts checkbox tasks from a note.
type Parser struct {
	Categories       []CategoryRule
	DefaultCategory  string
	SubtaskProximity int
}

// NewParser returns a parser with defaults filled in for zero values.
func NewParser(rules []CategoryRule, defaultCategory string, proximity int) *Parser {
	if defaultCategory == "" {
		defaultCategory = DefaultCategory
	}
	if proximity <= 0 {
		proximity = DefaultSubtaskProximity
	}
	return &Parser{Categories: rules, DefaultCategory: defaultCategory, SubtaskProximity: proximity}
}

// ParseFile reads and parses the note at path.
func (p *Parser) ParseFile(path string) ([]model.Task, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading note: %w", err)
	}
	return p.Parse(content, path), nil
}

// Parse returns the top-level tasks of content in document order. Content it
// cannot make sense of simply yields no tasks.
func (p *Parser) Parse(content []byte, source string) []model.Task {
	doc := split(content)
	headers := doc.headers()

	var tasks []model.Task
	parent := -1
	parentHeader := -1

	for _, ln := range doc {
		if ln.fenced {
			continue
		}
		m := taskRegex.FindStringSubmatch(ln.text)
		if m == nil {
			continue
		}
		completed := m[2] != " "
		text := strings.TrimSpace(m[3])
		hdr := headers.governing(ln.number)

		if m[1] != "" {
			if parent >= 0 && parentHeader == hdr && ln.number-tasks[parent].Line <= p.SubtaskProximity {
				tasks[parent].Subtasks = append(tasks[parent].Subtasks, model.Subtask{Text: text, Completed: completed})
			}
			continue
		}

		task := p.build(text, completed, headers.title(hdr), ln.number, source)
		if task.Validate() != nil {
			// Children of a rejected line belong to nobody.
			parent = -1
			continue
		}
		tasks = append(tasks, task)
		parent = len(tasks) - 1
		parentHeader = hdr
	}
	return tasks
}

func (p *Parser) build(text string, completed bool, section string, line int, source string) model.Task {
	priority, number := detectPriority(text)
	task := model.Task{
		Fingerprint:    fingerprint.Of(text),
		RawText:        text,
		CleanText:      fingerprint.Clean(text),
		Completed:      completed,
		Priority:       priority,
		PriorityNumber: number,
		Weight:         model.Weight(priority),
		Section:        section,
		Category:       p.category(text, section),
		Blocked:        priority == model.PriorityBlocked,
		Line:           line,
		Source:         source,
	}
	if fingerprint.Normalize(text) == "" {
		task.Fingerprint = ""
	}
	if task.Blocked {
		if m := blockerRegex.FindStringSubmatch(text); m != nil {
			task.BlockerReason = strings.TrimSpace(m[1])
		}
	}
	return task
}

func detectPriority(text string) (model.Priority, string) {
	for _, marker := range priorityMarkers {
		m := marker.regex.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return marker.priority, m[1]
		}
		return marker.priority, ""
	}
	return model.PriorityNone, ""
}

func (p *Parser) category(text, section string) string {
	if section != "" {
		if list, ok := p.match(section); ok {
			return list
		}
	}
	if m := categoryRegex.FindStringSubmatch(text); m != nil {
		tag := strings.TrimSpace(m[1])
		if list, ok := p.match(tag); ok {
			return list
		}
		if tag != "" {
			return tag
		}
	}
	return p.DefaultCategory
}

func (p *Parser) match(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, rule := range p.Categories {
		if rule.Keyword != "" && strings.Contains(lower, strings.ToLower(rule.Keyword)) {
			return rule.List, true
		}
	}
	return "", false
}

type line struct {
	number int
	text   string
	fenced bool
}

type document []line

// split breaks content into numbered lines, marking those inside fenced code
// blocks (fence lines included).
func split(content []byte) document {
	raw := strings.Split(string(content), "\n")
	doc := make(document, 0, len(raw))
	inFence := false
	for i, text := range raw {
		text = strings.TrimSuffix(text, "\r")
		trimmed := strings.TrimSpace(text)
		fence := strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
		if fence {
			inFence = !inFence
		}
		doc = append(doc, line{number: i + 1, text: text, fenced: inFence || fence})
	}
	return doc
}

type header struct {
	line  int
	title string
}

type headerIndex []header

func (d document) headers() headerIndex {
	var idx headerIndex
	for _, ln := range d {
		if ln.fenced {
			continue
		}
		if m := headerRegex.FindStringSubmatch(ln.text); m != nil {
			idx = append(idx, header{line: ln.number, title: strings.TrimSpace(m[1])})
		}
	}
	return idx
}

// governing returns the index of the nearest header above lineNo, or -1.
func (h headerIndex) governing(lineNo int) int {
	return sort.Search(len(h), func(i int) bool { return h[i].line >= lineNo }) - 1
}

func (h headerIndex) title(i int) string {
	if i < 0 {
		return ""
	}
	return h[i].title
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasksync/pkg/hook"
	"github.com/harrisonrobin/tasksync/pkg/remote"
	"github.com/harrisonrobin/tasksync/pkg/state"
)

var testNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.Local)

type harness struct {
	t       *testing.T
	app     *app
	store   *remote.MemoryStore
	config  string
	dir     string
	daily   string
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	opened  int
	openErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("OBSIDIAN_VAULT_ROOT", "")

	vault := filepath.Join(dir, "vault")
	require.NoError(t, os.MkdirAll(filepath.Join(vault, "4-Daily"), 0755))

	cfg := fmt.Sprintf(`vault_root: %s
state_file: %s
tombstone_file: %s
categories:
  - keyword: acme
    list: Acme
logging:
  dir: %s
`, vault, filepath.Join(dir, "state", "sync-state.json"), filepath.Join(dir, "state", "pending-deletes.json"), filepath.Join(dir, "logs"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))

	return &harness{
		t:      t,
		store:  remote.NewMemoryStore(),
		config: path,
		dir:    dir,
		daily:  filepath.Join(vault, "4-Daily", "2026-10-15.md"),
	}
}

// run executes one command line with stdin and a fresh app sharing the store.
func (h *harness) run(stdin string, args ...string) error {
	h.t.Helper()
	h.stdout, h.stderr = &bytes.Buffer{}, &bytes.Buffer{}
	if h.app == nil {
		h.app = newApp()
		h.app.now = func() time.Time { return testNow }
	}
	h.app.stdin = strings.NewReader(stdin)
	h.app.stdout = h.stdout
	h.app.stderr = h.stderr
	h.app.openStore = func(ctx context.Context, a *app) (remote.Store, func() error, error) {
		h.opened++
		if h.openErr != nil {
			return nil, nil, h.openErr
		}
		return h.store, noop, nil
	}

	root := newRootCmd(h.app)
	root.SetArgs(append([]string{"--config", h.config}, args...))
	defer h.app.close()
	return root.ExecuteContext(context.Background())
}

func (h *harness) writeDaily(content string) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(h.daily, []byte(content), 0644))
}

func (h *harness) readDaily() string {
	h.t.Helper()
	data, err := os.ReadFile(h.daily)
	require.NoError(h.t, err)
	return string(data)
}

func (h *harness) state() *state.Store {
	h.t.Helper()
	st, err := state.Load(h.app.cfg.StateFile)
	require.NoError(h.t, err)
	return st
}

func decodeOutput(t *testing.T, data []byte) hook.Output {
	t.Helper()
	var out hook.Output
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestSyncCommand(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("# Thursday\n## Acme work\n- [ ] Ship release\n## Home\n- [ ] Water plants\n")

	require.NoError(t, h.run("", "sync"))
	assert.Equal(t, "Tasks synced: 2 created\n", h.stdout.String())
	assert.Equal(t, 2, h.store.Len())

	st := h.state()
	assert.Equal(t, "2026-10-15", st.Epoch)
	require.Len(t, st.Mappings, 2)
	rec, ok := h.store.Lookup(st.Mappings[0].ExternalID)
	require.True(t, ok)
	assert.Equal(t, "Acme", rec.Category)

	require.NoError(t, h.run("", "sync"))
	assert.Equal(t, "Tasks synced: no changes\n", h.stdout.String())
}

func TestSyncCommandExplicitNote(t *testing.T) {
	h := newHarness(t)
	other := filepath.Join(h.dir, "scratch.md")
	require.NoError(t, os.WriteFile(other, []byte("- [ ] Somewhere else\n"), 0644))

	require.NoError(t, h.run("", "sync", other))
	assert.Equal(t, 1, h.store.Len())
}

func TestSyncCommandMissingNote(t *testing.T) {
	h := newHarness(t)

	err := h.run("", "sync")
	require.Error(t, err)
	assert.Zero(t, h.store.Mutations())
	_, statErr := os.Stat(h.app.cfg.StateFile)
	assert.True(t, os.IsNotExist(statErr), "state must not be written when the note is unreadable")
}

func TestSyncCommandReportsStoreErrors(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("- [ ] One\n")
	h.store.FailOn(remote.OpCreate, fmt.Errorf("store offline"))

	require.NoError(t, h.run("", "sync"))
	assert.Contains(t, h.stdout.String(), "(1 errors)")
	assert.Contains(t, h.stderr.String(), "store offline")
}

func TestDryRunLeavesStateAlone(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("- [ ] One\n")

	require.NoError(t, h.run("", "--dry-run", "sync"))
	assert.Equal(t, "Tasks synced: 1 created\n", h.stdout.String())

	_, err := os.Stat(h.app.cfg.StateFile)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, "- [ ] One\n", h.readDaily())
}

func TestPullCommand(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("- [ ] Water plants\n- [ ] Call mum\n")
	require.NoError(t, h.run("", "sync"))

	st := h.state()
	h.store.SetCompleted(st.Mappings[1].ExternalID, true)

	require.NoError(t, h.run("", "pull"))
	assert.Contains(t, h.stdout.String(), "Call mum")
	assert.Equal(t, "- [ ] Water plants\n- [x] Call mum\n", h.readDaily())
}

func TestPullCommandStaleEpoch(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("- [ ] Water plants\n")
	require.NoError(t, h.run("", "sync"))

	h.app.now = func() time.Time { return testNow.AddDate(0, 0, 1) }
	require.NoError(t, h.run("", "pull", h.daily))
	assert.Contains(t, h.stdout.String(), "skipped")
	assert.Equal(t, "- [ ] Water plants\n", h.readDaily())
}

func TestHookPostToolUse(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("- [ ] Water plants\n- [ ] Call mum\n")

	event := fmt.Sprintf(`{"session_id":"abc","hook_event_name":"PostToolUse","tool_name":"Edit","tool_input":{"file_path":%q}}`, h.daily)
	require.NoError(t, h.run(event, "hook", "post-tool-use"))

	out := decodeOutput(t, h.stdout.Bytes())
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, "Tasks synced: 2 created", out.Message)
	assert.Equal(t, 2, h.store.Len())
}

func TestHookPostToolUseIgnoresOtherFiles(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("- [ ] Water plants\n")

	event := `{"hook_event_name":"PostToolUse","tool_name":"Write","tool_input":{"file_path":"/tmp/elsewhere.md"}}`
	require.NoError(t, h.run(event, "hook", "post-tool-use"))

	assert.Equal(t, hook.Success, decodeOutput(t, h.stdout.Bytes()))
	assert.Zero(t, h.opened)
}

func TestHookNeverFailsTheHost(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("- [ ] Water plants\n")

	require.NoError(t, h.run("{not json", "hook", "post-tool-use"))
	assert.Equal(t, hook.Success, decodeOutput(t, h.stdout.Bytes()))

	h.openErr = fmt.Errorf("no credentials")
	event := fmt.Sprintf(`{"tool_name":"Write","tool_input":{"file_path":%q}}`, h.daily)
	require.NoError(t, h.run(event, "hook", "post-tool-use"))
	assert.Equal(t, hook.Success, decodeOutput(t, h.stdout.Bytes()))

	require.NoError(t, h.run("", "hook", "session-start"))
	assert.Equal(t, hook.Success, decodeOutput(t, h.stdout.Bytes()))
}

func TestHookSessionStart(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("- [ ] Water plants\n")
	require.NoError(t, h.run("", "sync"))
	h.store.SetCompleted(h.state().Mappings[0].ExternalID, true)

	require.NoError(t, h.run(`{"hook_event_name":"SessionStart"}`, "hook", "session-start"))
	out := decodeOutput(t, h.stdout.Bytes())
	assert.True(t, strings.HasPrefix(out.SystemMessage, "[Tasks] Tasks pulled: 1"), out.SystemMessage)
	assert.Equal(t, "- [x] Water plants\n", h.readDaily())

	require.NoError(t, h.run("", "hook", "session-start"))
	out = decodeOutput(t, h.stdout.Bytes())
	assert.Equal(t, "success", out.Status)
	assert.NotEmpty(t, out.Timing)
}

func TestHookSessionStartNewDay(t *testing.T) {
	h := newHarness(t)
	h.writeDaily("- [ ] Water plants\n")
	require.NoError(t, h.run("", "sync"))

	h.app.now = func() time.Time { return testNow.AddDate(0, 0, 1) }
	require.NoError(t, h.run("", "hook", "session-start"))

	out := decodeOutput(t, h.stdout.Bytes())
	assert.True(t, strings.HasPrefix(out.SystemMessage, "[Tasks] New day"), out.SystemMessage)
}

func TestStatusCommand(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run("", "status"))
	assert.Contains(t, h.stdout.String(), "Epoch:        none")
	assert.Contains(t, h.stdout.String(), "Mappings:     0")

	h.writeDaily("## Acme\n- [x] Ship release\n")
	require.NoError(t, h.run("", "sync"))
	require.NoError(t, h.run("", "status"))

	fp := h.state().Mappings[0].Fingerprint
	assert.Contains(t, h.stdout.String(), "Epoch:        2026-10-15\n")
	assert.Contains(t, h.stdout.String(), fp)
	assert.Contains(t, h.stdout.String(), "[x]")
	assert.Contains(t, h.stdout.String(), "Ship release")
}

func TestBackendFlagIsValidated(t *testing.T) {
	h := newHarness(t)

	err := h.run("", "--backend", "carrier-pigeon", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestAuthNeedsGoogleBackend(t *testing.T) {
	h := newHarness(t)

	err := h.run("", "auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google backend")
}

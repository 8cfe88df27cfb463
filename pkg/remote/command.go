package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// waitDelay bounds how long a killed command may keep its output pipes open.
const waitDelay = 2 * time.Second

// CommandStore talks to an external program that answers every subcommand
// with a {"success": bool, "data": ..., "error": string} JSON document on
// stdout, such as the Reminders manager script.
type CommandStore struct {
	argv []string
}

// NewCommandStore returns a store that runs argv followed by a subcommand.
func NewCommandStore(argv ...string) (*CommandStore, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("remote command is empty")
	}
	return &CommandStore{argv: argv}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *CommandStore) run(ctx context.Context, args ...string) (json.RawMessage, error) {
	full := append(append([]string{}, c.argv[1:]...), args...)
	cmd := exec.CommandContext(ctx, c.argv[0], full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s: %w", args[0], ctxErr)
	}

	var env envelope
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		if runErr != nil {
			var exitErr *exec.ExitError
			if errors.As(runErr, &exitErr) {
				return nil, fmt.Errorf("%s: exit code %d, stderr: %s",
					args[0], exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
			}
			return nil, fmt.Errorf("%s: %w", args[0], runErr)
		}
		return nil, fmt.Errorf("%s: decoding response: %w", args[0], err)
	}
	if !env.Success {
		return nil, classify(args[0], env.Error)
	}
	return env.Data, nil
}

// classify turns a store error message into an error, recognizing the
// messages that mean the record is gone.
func classify(op, msg string) error {
	lower := strings.ToLower(msg)
	for _, needle := range []string{"not found", "can't get", "can’t get", "-1728"} {
		if strings.Contains(lower, needle) {
			return fmt.Errorf("%s: %w: %s", op, ErrNotFound, strings.TrimSpace(msg))
		}
	}
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("%s: %s", op, strings.TrimSpace(msg))
}

func (c *CommandStore) List(ctx context.Context, category string) ([]Record, error) {
	data, err := c.run(ctx, "list-reminders", category)
	if err != nil {
		return nil, err
	}
	var records []Record
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("list-reminders: decoding records: %w", err)
		}
	}
	return records, nil
}

func (c *CommandStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := c.run(ctx, "get", id)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("get: decoding record: %w", err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

func (c *CommandStore) Create(ctx context.Context, category, name string, weight int, body string) (string, error) {
	data, err := c.run(ctx, "create",
		"--list", category,
		"--name", name,
		"--priority", strconv.Itoa(weight),
		"--body", body)
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", fmt.Errorf("create: decoding response: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("create: store returned no id")
	}
	return created.ID, nil
}

func (c *CommandStore) Complete(ctx context.Context, id string) error {
	_, err := c.run(ctx, "complete", id)
	return err
}

func (c *CommandStore) Uncomplete(ctx context.Context, id string) error {
	_, err := c.run(ctx, "uncomplete", id)
	return err
}

func (c *CommandStore) Update(ctx context.Context, id, body string) error {
	_, err := c.run(ctx, "update", id, "--body", body)
	return err
}

func (c *CommandStore) Delete(ctx context.Context, id string) error {
	_, err := c.run(ctx, "delete", id)
	return err
}

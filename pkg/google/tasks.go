package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasksync/pkg/listcache"
	"github.com/harrisonrobin/tasksync/pkg/remote"
)

const (
	statusCompleted   = "completed"
	statusNeedsAction = "needsAction"

	weightPrefix = "Priority weight: "
	pageSize     = 100
)

var errMalformedID = errors.New("malformed record id")

// TasksClient is a remote.Store backed by Google Tasks. Categories are task
// lists, created on first use. Record IDs are "<listID>/<taskID>".
type TasksClient struct {
	srv    *tasks.Service
	cache  *listcache.Cache
	logger *slog.Logger
}

var _ remote.Store = (*TasksClient)(nil)

// NewTasksClient wraps srv. cache may be nil.
func NewTasksClient(srv *tasks.Service, cache *listcache.Cache, logger *slog.Logger) *TasksClient {
	if cache == nil {
		cache = &listcache.Cache{Lists: make(map[string]*listcache.ListState)}
	}
	return &TasksClient{srv: srv, cache: cache, logger: logger}
}

// List returns every task in the category's list, completed ones included.
// A category without a list has no records.
func (c *TasksClient) List(ctx context.Context, category string) ([]remote.Record, error) {
	var records []remote.Record
	err := c.withList(ctx, category, false, func(listID string) error {
		records = records[:0]
		return c.srv.Tasks.List(listID).
			ShowCompleted(true).
			ShowHidden(true).
			MaxResults(pageSize).
			Pages(ctx, func(page *tasks.Tasks) error {
				for _, item := range page.Items {
					if item.Deleted {
						continue
					}
					records = append(records, toRecord(listID, category, item))
				}
				return nil
			})
	})
	if errors.Is(err, errNoList) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", category, err)
	}
	return records, nil
}

func (c *TasksClient) Get(ctx context.Context, id string) (*remote.Record, error) {
	listID, taskID, err := splitID(id)
	if err != nil {
		return nil, err
	}
	item, err := c.srv.Tasks.Get(listID, taskID).Context(ctx).Do()
	if err != nil {
		return nil, mapError("get", id, err)
	}
	if item.Deleted {
		return nil, fmt.Errorf("get %s: %w", id, remote.ErrNotFound)
	}
	category, _ := c.cache.Category(listID)
	rec := toRecord(listID, category, item)
	return &rec, nil
}

func (c *TasksClient) Create(ctx context.Context, category, name string, weight int, body string) (string, error) {
	var id string
	err := c.withList(ctx, category, true, func(listID string) error {
		created, err := c.srv.Tasks.Insert(listID, &tasks.Task{
			Title:  name,
			Notes:  encodeNotes(weight, body),
			Status: statusNeedsAction,
		}).Context(ctx).Do()
		if err != nil {
			return err
		}
		id = joinID(listID, created.Id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create %q: %w", name, err)
	}
	return id, nil
}

func (c *TasksClient) Complete(ctx context.Context, id string) error {
	return c.patch(ctx, "complete", id, &tasks.Task{Status: statusCompleted})
}

func (c *TasksClient) Uncomplete(ctx context.Context, id string) error {
	return c.patch(ctx, "uncomplete", id, &tasks.Task{
		Status:     statusNeedsAction,
		NullFields: []string{"Completed"},
	})
}

// Update replaces the body and keeps the stored priority weight.
func (c *TasksClient) Update(ctx context.Context, id, body string) error {
	listID, taskID, err := splitID(id)
	if err != nil {
		return err
	}
	item, err := c.srv.Tasks.Get(listID, taskID).Context(ctx).Do()
	if err != nil {
		return mapError("update", id, err)
	}
	weight, _ := decodeNotes(item.Notes)
	return c.patch(ctx, "update", id, &tasks.Task{
		Notes:           encodeNotes(weight, body),
		ForceSendFields: []string{"Notes"},
	})
}

func (c *TasksClient) Delete(ctx context.Context, id string) error {
	listID, taskID, err := splitID(id)
	if err != nil {
		return err
	}
	if err := c.srv.Tasks.Delete(listID, taskID).Context(ctx).Do(); err != nil {
		return mapError("delete", id, err)
	}
	return nil
}

func (c *TasksClient) patch(ctx context.Context, op, id string, fields *tasks.Task) error {
	listID, taskID, err := splitID(id)
	if err != nil {
		return err
	}
	if _, err := c.srv.Tasks.Patch(listID, taskID, fields).Context(ctx).Do(); err != nil {
		return mapError(op, id, err)
	}
	return nil
}

var errNoList = errors.New("no task list")

// withList resolves the list of category and runs fn against it. A cached ID
// the backend no longer knows is forgotten and resolved once more.
func (c *TasksClient) withList(ctx context.Context, category string, create bool, fn func(listID string) error) error {
	listID, cached := c.cache.Get(category)
	if !cached {
		var err error
		if listID, err = c.resolveList(ctx, category, create); err != nil {
			return err
		}
	}

	err := fn(listID)
	if !cached || !isNotFound(err) {
		return err
	}

	c.logger.Info("cached task list is gone", "category", category, "list", listID)
	c.cache.Forget(category)
	if listID, err = c.resolveList(ctx, category, create); err != nil {
		return err
	}
	return fn(listID)
}

func (c *TasksClient) resolveList(ctx context.Context, category string, create bool) (string, error) {
	var found string
	err := c.srv.Tasklists.List().MaxResults(pageSize).Pages(ctx, func(page *tasks.TaskLists) error {
		for _, list := range page.Items {
			if found == "" && list.Title == category {
				found = list.Id
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("listing task lists: %w", err)
	}

	if found == "" {
		if !create {
			return "", errNoList
		}
		list, err := c.srv.Tasklists.Insert(&tasks.TaskList{Title: category}).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("creating task list %q: %w", category, err)
		}
		c.logger.Info("task list created", "category", category, "list", list.Id)
		found = list.Id
	}

	c.cache.Set(category, found)
	return found, nil
}

func toRecord(listID, category string, item *tasks.Task) remote.Record {
	weight, body := decodeNotes(item.Notes)
	return remote.Record{
		ID:        joinID(listID, item.Id),
		Name:      item.Title,
		Category:  category,
		Completed: item.Status == statusCompleted,
		Priority:  weight,
		Body:      body,
	}
}

func joinID(listID, taskID string) string {
	return listID + "/" + taskID
}

func splitID(id string) (string, string, error) {
	listID, taskID, ok := strings.Cut(id, "/")
	if !ok || listID == "" || taskID == "" {
		return "", "", fmt.Errorf("%w %q: %w", errMalformedID, id, remote.ErrNotFound)
	}
	return listID, taskID, nil
}

// encodeNotes stores the weight as the first notes line; Google Tasks has no
// priority field.
func encodeNotes(weight int, body string) string {
	notes := weightPrefix + strconv.Itoa(weight)
	if body != "" {
		notes += "\n" + body
	}
	return notes
}

func decodeNotes(notes string) (int, string) {
	first, rest, _ := strings.Cut(notes, "\n")
	if !strings.HasPrefix(first, weightPrefix) {
		return 0, notes
	}
	weight, err := strconv.Atoi(strings.TrimPrefix(first, weightPrefix))
	if err != nil {
		return 0, notes
	}
	return weight, rest
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}

func mapError(op, id string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, id, remote.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

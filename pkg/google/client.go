package google

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasksync/pkg/auth"
	"github.com/harrisonrobin/tasksync/pkg/listcache"
)

// NewClient creates an authenticated Google Tasks client. prompt receives the
// authorization URL when the user has to sign in.
func NewClient(ctx context.Context, paths auth.Paths, cache *listcache.Cache, prompt io.Writer, logger *slog.Logger) (*TasksClient, error) {
	httpClient, err := auth.GetClient(ctx, paths, prompt, logger)
	if err != nil {
		return nil, err
	}

	srv, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Tasks client: %w", err)
	}
	return NewTasksClient(srv, cache, logger), nil
}

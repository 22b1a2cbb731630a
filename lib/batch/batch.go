package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor string
}

// Paginate calls fetch until a page reports no more results, handing every
// page to handle in order.
func Paginate[T any](
	ctx context.Context,
	fetch func(ctx context.Context, cursor string) (Page[T], error),
	handle func(ctx context.Context, items []T) error,
) error {
	cursor := ""
	seen := map[string]struct{}{}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := fetch(ctx, cursor)
		if err != nil {
			return err
		}
		err = handle(ctx, page.Items)
		if err != nil {
			return err
		}
		if !page.HasMore {
			return nil
		}
		if page.NextCursor == "" {
			return fmt.Errorf("paginate: page has more results but no cursor")
		}
		if _, repeated := seen[page.NextCursor]; repeated {
			return fmt.Errorf("paginate: cursor %q was returned twice", page.NextCursor)
		}
		seen[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}
}

type Failure struct {
	ID  string
	Err error
}

type Report struct {
	Succeeded int
	Failures  []Failure
}

func (r *Report) Merge(other Report) {
	r.Succeeded += other.Succeeded
	r.Failures = append(r.Failures, other.Failures...)
}

// Err joins every failure, nil when all items succeeded.
func (r Report) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = fmt.Errorf("%s: %w", f.ID, f.Err)
	}
	return errors.Join(errs...)
}

// Run calls fn for every item with at most width calls in flight. A failing
// item is recorded and logged but does not stop the others.
func Run[T any](
	ctx context.Context,
	width int,
	items []T,
	id func(T) string,
	fn func(ctx context.Context, item T) error,
) Report {
	if width <= 0 {
		width = 1
	}

	var (
		mu     sync.Mutex
		report Report
	)
	record := func(item T, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			report.Succeeded++
			return
		}
		itemId := id(item)
		slog.WarnContext(ctx, "batch item failed", "id", itemId, "err", err)
		report.Failures = append(report.Failures, Failure{ID: itemId, Err: err})
	}

	var group errgroup.Group
	group.SetLimit(width)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			record(item, err)
			continue
		}
		group.Go(func() error {
			record(item, fn(ctx, item))
			return nil
		})
	}
	group.Wait()

	return report
}

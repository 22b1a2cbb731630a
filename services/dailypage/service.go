package dailypage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"notion-helper/lib/batch"
	"notion-helper/lib/notion"
	"notion-helper/lib/timezone"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("notion-helper/services/dailypage")

// CopyFromPrevious makes a job copy the blocks of the page for the day
// before.
const CopyFromPrevious = "previous"

// notion accepts at most this many children per request
const maxChildrenPerRequest = 100

const DefaultTitleLayout = "2006-01-02 Monday"

type API interface {
	QueryDatabase(ctx context.Context, databaseID string, opts notion.QueryOptions) (notion.List[notion.Page], error)
	CreatePage(ctx context.Context, payload map[string]any) (notion.Page, error)
	GetBlockChildren(ctx context.Context, blockID string, pageSize int, cursor string) (notion.List[notion.Block], error)
	AppendBlockChildren(ctx context.Context, blockID string, children []notion.Block) (notion.List[notion.Block], error)
}

type Job struct {
	Name          string
	DatabaseID    string
	TitleProperty string
	DateProperty  string
	// a time layout used to render the page title
	TitleLayout string
	// days between today and the first page
	Offset int
	// number of consecutive days to ensure, at least 1
	Count int
	// extra properties set on created pages
	Extra map[string]any
	// CopyFromPrevious, a template page id, or empty for blank pages
	CopyBlocksFrom string
}

func (j Job) validate() error {
	if j.DatabaseID == "" {
		return fmt.Errorf("daily job %s: database id is required", j.Name)
	}
	if j.TitleProperty == "" || j.DateProperty == "" {
		return fmt.Errorf("daily job %s: title and date properties are required", j.Name)
	}
	return nil
}

type Service struct {
	api   API
	clock timezone.Clock
}

func NewService(api API, clock timezone.Clock) Service {
	return Service{api: api, clock: clock}
}

func (s Service) findDay(ctx context.Context, job Job, date string) (notion.Page, bool, error) {
	list, err := s.api.QueryDatabase(ctx, job.DatabaseID, notion.QueryOptions{
		Filter: map[string]any{
			"property": job.DateProperty,
			"date":     map[string]any{"equals": date},
		},
		PageSize: 1,
	})
	if err != nil {
		return notion.Page{}, false, err
	}
	if len(list.Results) == 0 {
		return notion.Page{}, false, nil
	}
	return list.Results[0], true, nil
}

// EnsureDay returns the page for day, creating it only when the database
// has no page with that date yet.
func (s Service) EnsureDay(ctx context.Context, job Job, day time.Time) (notion.Page, bool, error) {
	ctx, span := tracer.Start(ctx, "EnsureDay")
	defer span.End()

	date := day.Format(time.DateOnly)
	span.SetAttributes(attribute.String("date", date))

	err := job.validate()
	if err != nil {
		return notion.Page{}, false, err
	}

	existing, found, err := s.findDay(ctx, job, date)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query day")
		return notion.Page{}, false, err
	}
	if found {
		return existing, false, nil
	}

	children, err := s.templateBlocks(ctx, job, day)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to copy template blocks")
		return notion.Page{}, false, err
	}

	layout := job.TitleLayout
	if layout == "" {
		layout = DefaultTitleLayout
	}
	properties := map[string]any{}
	for k, v := range job.Extra {
		properties[k] = v
	}
	properties[job.TitleProperty] = notion.TitleProperty(day.Format(layout))
	properties[job.DateProperty] = notion.DateProperty(date)

	first := children
	if len(first) > maxChildrenPerRequest {
		first = first[:maxChildrenPerRequest]
	}
	payload := map[string]any{
		"parent":     map[string]any{"database_id": job.DatabaseID},
		"properties": properties,
	}
	if len(first) > 0 {
		payload["children"] = first
	}
	page, err := s.api.CreatePage(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create page")
		return notion.Page{}, false, err
	}

	for rest := children[len(first):]; len(rest) > 0; {
		chunk := rest
		if len(chunk) > maxChildrenPerRequest {
			chunk = chunk[:maxChildrenPerRequest]
		}
		_, err = s.api.AppendBlockChildren(ctx, page.ID, chunk)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to append blocks")
			return page, true, fmt.Errorf("page %s was created but its blocks were not all copied: %w", page.ID, err)
		}
		rest = rest[len(chunk):]
	}

	slog.InfoContext(ctx, "created day page", "job", job.Name, "date", date, "page_id", page.ID)
	return page, true, nil
}

func (s Service) templateBlocks(ctx context.Context, job Job, day time.Time) ([]notion.Block, error) {
	source := job.CopyBlocksFrom
	if source == "" {
		return nil, nil
	}
	if source == CopyFromPrevious {
		previous, found, err := s.findDay(ctx, job, timezone.AddDays(day, -1).Format(time.DateOnly))
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		source = previous.ID
	}
	return s.copyBlocks(ctx, source)
}

// Run ensures Count consecutive day pages starting Offset days from today.
// Days are handled in order so that each one can copy from the one before.
func (s Service) Run(ctx context.Context, job Job) (batch.Report, error) {
	err := job.validate()
	if err != nil {
		return batch.Report{}, err
	}
	count := job.Count
	if count <= 0 {
		count = 1
	}

	start := timezone.AddDays(s.clock.Today(), job.Offset)
	days := make([]time.Time, count)
	for i := range days {
		days[i] = timezone.AddDays(start, i)
	}

	report := batch.Run(ctx, 1, days,
		func(day time.Time) string { return day.Format(time.DateOnly) },
		func(ctx context.Context, day time.Time) error {
			_, _, err := s.EnsureDay(ctx, job, day)
			return err
		},
	)
	return report, nil
}

package notionsync

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"notion-helper/lib/batch"
	"notion-helper/lib/imageproxy"
	"notion-helper/lib/notion"
	"notion-helper/lib/scraper"
	"notion-helper/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("notion-helper/services/notionsync")

// API is the part of *notion.Client a sync job needs.
type API interface {
	GetDatabase(ctx context.Context, databaseID string) (notion.Database, error)
	QueryDatabase(ctx context.Context, databaseID string, opts notion.QueryOptions) (notion.List[notion.Page], error)
	UpdatePageProperties(ctx context.Context, pageID string, properties map[string]any) (notion.Page, error)
	FileReference(ctx context.Context, rawURL, name string) (map[string]any, error)
}

type Job struct {
	Name       string
	DatabaseID string
	Filter     any
	Sorts      any
	PageSize   int
	// pages refreshed at the same time
	Concurrency int
	// the page property passed to Source as the lookup key
	KeyProperty string
	Source      scraper.Source
	Properties  []PropertyRule
	// only refresh the first page of query results
	SinglePage bool
	// minimum similarity for snapping select values onto existing options
	SnapScore float64
}

func (j Job) validate() error {
	if j.DatabaseID == "" {
		return fmt.Errorf("sync job %s: database id is required", j.Name)
	}
	if j.KeyProperty == "" {
		return fmt.Errorf("sync job %s: key property is required", j.Name)
	}
	if j.Source == nil {
		return fmt.Errorf("sync job %s: source is required", j.Name)
	}
	if len(j.Properties) == 0 {
		return fmt.Errorf("sync job %s: no properties to update", j.Name)
	}
	for _, rule := range j.Properties {
		err := rule.validate()
		if err != nil {
			return fmt.Errorf("sync job %s: %w", j.Name, err)
		}
	}
	return nil
}

type Runner struct {
	api             API
	images          imageproxy.Shortener
	companySuffixes *regexp.Regexp
}

type RunnerOptions struct {
	API API
	// applied to file urls before they are referenced
	Images imageproxy.Shortener
	// legal-form suffixes stripped by the "company" transform
	CompanySuffixes []string
}

func NewRunner(opts RunnerOptions) Runner {
	suffixes := opts.CompanySuffixes
	if len(suffixes) == 0 {
		suffixes = textutil.DefaultCompanySuffixes
	}
	return Runner{
		api:             opts.API,
		images:          opts.Images,
		companySuffixes: textutil.CompileCompanySuffixes(suffixes),
	}
}

// Run refreshes every page returned by the job's query. A page that fails
// is reported without stopping the rest.
func (r Runner) Run(ctx context.Context, job Job) (batch.Report, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("job", job.Name))

	err := job.validate()
	if err != nil {
		return batch.Report{}, err
	}

	options, err := r.selectOptions(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read database schema")
		return batch.Report{}, err
	}

	var report batch.Report
	err = batch.Paginate(ctx,
		func(ctx context.Context, cursor string) (batch.Page[notion.Page], error) {
			list, err := r.api.QueryDatabase(ctx, job.DatabaseID, notion.QueryOptions{
				Filter:      job.Filter,
				Sorts:       job.Sorts,
				PageSize:    job.PageSize,
				StartCursor: cursor,
			})
			if err != nil {
				return batch.Page[notion.Page]{}, err
			}
			return batch.Page[notion.Page]{
				Items:      list.Results,
				HasMore:    list.HasMore && !job.SinglePage,
				NextCursor: list.NextCursor,
			}, nil
		},
		func(ctx context.Context, pages []notion.Page) error {
			report.Merge(batch.Run(ctx, job.Concurrency, pages,
				func(p notion.Page) string { return p.ID },
				func(ctx context.Context, p notion.Page) error {
					return r.syncPage(ctx, job, options, p)
				},
			))
			return nil
		},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query database")
		return report, err
	}

	span.SetAttributes(
		attribute.Int("succeeded", report.Succeeded),
		attribute.Int("failed", len(report.Failures)),
	)
	slog.InfoContext(ctx, "sync job finished",
		"job", job.Name,
		"succeeded", report.Succeeded,
		"failed", len(report.Failures),
	)
	return report, nil
}

// selectOptions reads the existing options of every select and
// multi_select property the job writes to.
func (r Runner) selectOptions(ctx context.Context, job Job) (map[string][]string, error) {
	needed := false
	for _, rule := range job.Properties {
		if rule.Type == TypeSelect || rule.Type == TypeMultiSelect {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}

	db, err := r.api.GetDatabase(ctx, job.DatabaseID)
	if err != nil {
		return nil, err
	}
	options := map[string][]string{}
	for _, rule := range job.Properties {
		options[rule.Property] = db.Options(rule.Property)
	}
	return options, nil
}

func (r Runner) syncPage(ctx context.Context, job Job, options map[string][]string, page notion.Page) error {
	ctx, span := tracer.Start(ctx, "syncPage")
	defer span.End()
	span.SetAttributes(attribute.String("page_id", page.ID))

	key := page.PlainText(job.KeyProperty)
	if key == "" {
		slog.InfoContext(ctx, "page has no key, skipping", "page_id", page.ID, "property", job.KeyProperty)
		return nil
	}

	record, err := job.Source.Fetch(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch record")
		return fmt.Errorf("fetch %q: %w", key, err)
	}

	properties, err := r.BuildProperties(ctx, job, options, record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build properties")
		return err
	}
	if len(properties) == 0 {
		slog.InfoContext(ctx, "record produced no properties", "page_id", page.ID, "key", key)
		return nil
	}

	_, err = r.api.UpdatePageProperties(ctx, page.ID, properties)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update page")
		return err
	}
	return nil
}

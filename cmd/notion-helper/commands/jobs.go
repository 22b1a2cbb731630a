package commands

import (
	"context"
	"fmt"

	"notion-helper/lib/batch"
	"notion-helper/services/dailypage"
	"notion-helper/services/notionsync"
)

// jobRunner runs configured jobs by name, unknown names fail with
// errUnknownJob.
type jobRunner interface {
	HasSync(name string) bool
	HasDaily(name string) bool
	RunSync(ctx context.Context, name string) (batch.Report, error)
	RunDaily(ctx context.Context, name string) (batch.Report, error)
}

func (a *app) HasSync(name string) bool {
	_, ok := a.cfg.Sync[name]
	return ok
}

func (a *app) HasDaily(name string) bool {
	_, ok := a.cfg.Daily[name]
	return ok
}

func (a *app) RunSync(ctx context.Context, name string) (batch.Report, error) {
	if !a.HasSync(name) {
		return batch.Report{}, fmt.Errorf("%w: sync job %q", errUnknownJob, name)
	}
	fetcher, err := a.cfg.fetcher()
	if err != nil {
		return batch.Report{}, err
	}
	job, err := a.cfg.syncJob(name, fetcher)
	if err != nil {
		return batch.Report{}, err
	}
	images, err := a.cfg.shortener()
	if err != nil {
		return batch.Report{}, err
	}
	runner := notionsync.NewRunner(notionsync.RunnerOptions{
		API:    a.notion,
		Images: images,
	})
	return runner.Run(ctx, job)
}

func (a *app) RunDaily(ctx context.Context, name string) (batch.Report, error) {
	job, err := a.cfg.dailyJob(name)
	if err != nil {
		return batch.Report{}, err
	}
	return dailypage.NewService(a.notion, a.clock).Run(ctx, job)
}

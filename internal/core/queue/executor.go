package queue

import (
	"context"
	"fmt"

	"autoapply/internal/config"
	"autoapply/internal/core/jobs"
	"autoapply/internal/core/orchestrator"
	"autoapply/internal/proxy"
)

// BrowserExecutor runs each task in its own short-lived browser session,
// so a crashed or banned session never leaks into the next task.
type BrowserExecutor struct {
	cfg     *config.Config
	proxies *proxy.Service
}

func NewBrowserExecutor(cfg *config.Config, proxies *proxy.Service) *BrowserExecutor {
	return &BrowserExecutor{cfg: cfg, proxies: proxies}
}

// SearchJobs runs a synchronous search in its own browser session. The
// tier-scraper calls this directly instead of going through the queue.
func (e *BrowserExecutor) SearchJobs(ctx context.Context, platform jobs.Platform, params jobs.SearchParams) ([]jobs.ScrapedJob, error) {
	orc, err := orchestrator.New(ctx, e.cfg, e.proxies, e.cfg.Headless)
	if err != nil {
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	defer orc.Close()
	return orc.SearchJobs(ctx, platform, params)
}

// JobDetails fetches one listing synchronously, again in a session of its
// own.
func (e *BrowserExecutor) JobDetails(ctx context.Context, platform jobs.Platform, jobURL string) (*jobs.ScrapedJob, error) {
	orc, err := orchestrator.New(ctx, e.cfg, e.proxies, e.cfg.Headless)
	if err != nil {
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	defer orc.Close()
	return orc.JobDetails(ctx, platform, jobURL)
}

func (e *BrowserExecutor) Execute(ctx context.Context, task *Task) (interface{}, error) {
	orc, err := orchestrator.New(ctx, e.cfg, e.proxies, e.cfg.Headless)
	if err != nil {
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	defer orc.Close()

	switch task.Operation {
	case OpSearch:
		if task.Params.Search == nil {
			return nil, fmt.Errorf("search task %s has no search params", task.ID)
		}
		return orc.SearchJobs(ctx, task.Platform, *task.Params.Search)

	case OpJobDetails:
		if task.Params.JobURL == "" {
			return nil, fmt.Errorf("job-details task %s has no job URL", task.ID)
		}
		return orc.JobDetails(ctx, task.Platform, task.Params.JobURL)

	case OpApply:
		if task.Params.Credentials == nil {
			return nil, fmt.Errorf("apply task %s has no credentials", task.ID)
		}
		logins := orc.LoginAll(ctx, map[jobs.Platform]jobs.Credentials{
			task.Platform: *task.Params.Credentials,
		})
		if !logins[task.Platform] {
			return nil, fmt.Errorf("login to %s failed", task.Platform)
		}

		job := task.Params.Job
		if job == nil {
			if task.Params.JobURL == "" {
				return nil, fmt.Errorf("apply task %s has neither job nor job URL", task.ID)
			}
			job, err = orc.JobDetails(ctx, task.Platform, task.Params.JobURL)
			if err != nil {
				return nil, err
			}
		}

		result := orc.ApplyToJob(ctx, *job)
		if !result.Success {
			return nil, fmt.Errorf("apply failed: %s", result.Error)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unknown operation %q", task.Operation)
	}
}

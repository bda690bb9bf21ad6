// Package tierscraper is the quota-gated search surface: requests pass
// the tiered limiter, are served from the scraper cache when possible,
// and only a real scrape consumes quota.
package tierscraper

import (
	"context"
	"errors"
	"time"

	"autoapply/internal/cache"
	"autoapply/internal/core/jobs"
	"autoapply/internal/logger"
	"autoapply/internal/ratelimit"
)

// ErrQuotaExceeded marks a request denied by the tier limits.
var ErrQuotaExceeded = errors.New("tier quota exceeded")

// Searcher runs the actual platform operations behind the quota gate.
type Searcher interface {
	SearchJobs(ctx context.Context, platform jobs.Platform, params jobs.SearchParams) ([]jobs.ScrapedJob, error)
	JobDetails(ctx context.Context, platform jobs.Platform, jobURL string) (*jobs.ScrapedJob, error)
}

type Service struct {
	limiter  *ratelimit.Service
	cache    *cache.Service
	searcher Searcher
	cacheTTL time.Duration
	log      *logger.Logger
}

func New(limiter *ratelimit.Service, c *cache.Service, searcher Searcher, cacheTTL time.Duration) *Service {
	return &Service{
		limiter:  limiter,
		cache:    c,
		searcher: searcher,
		cacheTTL: cacheTTL,
		log:      logger.New("TierScraper"),
	}
}

// Search returns results and whether they came from cache. A cache hit
// short-circuits before the scrape and never consumes quota.
func (s *Service) Search(ctx context.Context, userID string, tier ratelimit.Tier, platform jobs.Platform, params jobs.SearchParams) ([]jobs.ScrapedJob, bool, error) {
	ok, err := s.limiter.CanSearch(ctx, userID, tier)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrQuotaExceeded
	}

	if cached, hit := s.cache.Get(string(platform), "search", params); hit {
		if found, ok := cached.([]jobs.ScrapedJob); ok {
			s.log.LogDebugf("cache hit for %s search by %s", platform, userID)
			return found, true, nil
		}
	}

	found, err := s.searcher.SearchJobs(ctx, platform, params)
	if err != nil {
		return nil, false, err
	}
	if err := s.limiter.RecordUsage(ctx, userID, ratelimit.OpSearch); err != nil {
		s.log.LogWarnf("recording usage for %s: %v", userID, err)
	}
	s.cache.Set(string(platform), "search", params, found, s.cacheTTL)
	return found, false, nil
}

// JobDetails fetches one listing behind its own tier quota. Like Search,
// a cache hit never consumes quota.
func (s *Service) JobDetails(ctx context.Context, userID string, tier ratelimit.Tier, platform jobs.Platform, jobURL string) (*jobs.ScrapedJob, bool, error) {
	ok, err := s.limiter.CanFetchJobDetails(ctx, userID, tier)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrQuotaExceeded
	}

	params := map[string]string{"job_url": jobURL}
	if cached, hit := s.cache.Get(string(platform), "job_details", params); hit {
		if job, ok := cached.(*jobs.ScrapedJob); ok {
			s.log.LogDebugf("cache hit for %s job details by %s", platform, userID)
			return job, true, nil
		}
	}

	job, err := s.searcher.JobDetails(ctx, platform, jobURL)
	if err != nil {
		return nil, false, err
	}
	if err := s.limiter.RecordUsage(ctx, userID, ratelimit.OpJobDetails); err != nil {
		s.log.LogWarnf("recording usage for %s: %v", userID, err)
	}
	s.cache.Set(string(platform), "job_details", params, job, s.cacheTTL)
	return job, false, nil
}

// Usage reports the caller's current search quota consumption.
func (s *Service) Usage(ctx context.Context, userID string, tier ratelimit.Tier) (ratelimit.UsageStats, error) {
	return s.limiter.Stats(ctx, userID, tier)
}

package tierscraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"autoapply/internal/cache"
	"autoapply/internal/config"
	"autoapply/internal/core/jobs"
	"autoapply/internal/ratelimit"
)

type fakeSearcher struct {
	calls        int
	detailsCalls int
	jobs         []jobs.ScrapedJob
	err          error
}

func (f *fakeSearcher) SearchJobs(_ context.Context, _ jobs.Platform, _ jobs.SearchParams) ([]jobs.ScrapedJob, error) {
	f.calls++
	return f.jobs, f.err
}

func (f *fakeSearcher) JobDetails(_ context.Context, _ jobs.Platform, jobURL string) (*jobs.ScrapedJob, error) {
	f.detailsCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &jobs.ScrapedJob{ID: "d1", ApplicationURL: jobURL}, nil
}

func newTestService(t *testing.T, searcher *fakeSearcher) *Service {
	t.Helper()
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), map[string]config.TierQuota{
		"basic": {SearchesPerDay: 2, SearchesPerMonth: 10, JobDetailsPerDay: 5, JobDetailsPerMonth: 20},
	})
	c := cache.New(100, 15*time.Minute, cache.NewPolicy("lru"))
	return New(limiter, c, searcher, 15*time.Minute)
}

func TestSearchScrapesThenServesFromCache(t *testing.T) {
	searcher := &fakeSearcher{jobs: []jobs.ScrapedJob{{ID: "j1"}, {ID: "j2"}}}
	svc := newTestService(t, searcher)
	ctx := context.Background()
	params := jobs.SearchParams{Keywords: []string{"go"}}

	found, cached, err := svc.Search(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, params)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if cached || len(found) != 2 {
		t.Fatalf("first search: cached=%v len=%d", cached, len(found))
	}

	_, cached, err = svc.Search(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, params)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !cached {
		t.Error("second identical search should hit the cache")
	}
	if searcher.calls != 1 {
		t.Errorf("searcher called %d times, want 1", searcher.calls)
	}
}

func TestCacheHitDoesNotConsumeQuota(t *testing.T) {
	searcher := &fakeSearcher{jobs: []jobs.ScrapedJob{{ID: "j1"}}}
	svc := newTestService(t, searcher)
	ctx := context.Background()
	params := jobs.SearchParams{Keywords: []string{"go"}}

	// Daily cap is 2. One scrape, then many cache hits.
	if _, _, err := svc.Search(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, params); err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, _, err := svc.Search(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, params); err != nil {
			t.Fatalf("cached search %d: %v", i, err)
		}
	}

	stats, err := svc.Usage(ctx, "u1", ratelimit.TierBasic)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if stats.DailyUsed != 1 {
		t.Errorf("DailyUsed = %d, want 1 (cache hits are free)", stats.DailyUsed)
	}
}

func TestSearchDeniedAtQuota(t *testing.T) {
	searcher := &fakeSearcher{jobs: []jobs.ScrapedJob{{ID: "j1"}}}
	svc := newTestService(t, searcher)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		params := jobs.SearchParams{Keywords: []string{"go"}, Limit: i + 1} // distinct cache keys
		if _, _, err := svc.Search(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, params); err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
	}

	_, _, err := svc.Search(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, jobs.SearchParams{Keywords: []string{"go"}, Limit: 9})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if searcher.calls != 2 {
		t.Errorf("searcher called %d times, want 2 (denied request never scrapes)", searcher.calls)
	}
}

func TestJobDetailsScrapesThenServesFromCache(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := newTestService(t, searcher)
	ctx := context.Background()
	url := "https://linkedin.com/jobs/view/123456"

	job, cached, err := svc.JobDetails(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, url)
	if err != nil {
		t.Fatalf("JobDetails: %v", err)
	}
	if cached || job == nil || job.ApplicationURL != url {
		t.Fatalf("first fetch: cached=%v job=%+v", cached, job)
	}

	_, cached, err = svc.JobDetails(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, url)
	if err != nil {
		t.Fatalf("JobDetails: %v", err)
	}
	if !cached {
		t.Error("second identical fetch should hit the cache")
	}
	if searcher.detailsCalls != 1 {
		t.Errorf("searcher called %d times, want 1", searcher.detailsCalls)
	}
}

func TestJobDetailsDeniedAtQuota(t *testing.T) {
	searcher := &fakeSearcher{}
	svc := newTestService(t, searcher)
	ctx := context.Background()

	// Daily cap for job details is 5; distinct URLs miss the cache.
	for i := 0; i < 5; i++ {
		url := "https://linkedin.com/jobs/view/" + string(rune('a'+i))
		if _, _, err := svc.JobDetails(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, url); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}

	_, _, err := svc.JobDetails(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, "https://linkedin.com/jobs/view/z")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if searcher.detailsCalls != 5 {
		t.Errorf("searcher called %d times, want 5 (denied request never scrapes)", searcher.detailsCalls)
	}
}

func TestFailedScrapeConsumesNoQuota(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("platform down")}
	svc := newTestService(t, searcher)
	ctx := context.Background()

	_, _, err := svc.Search(ctx, "u1", ratelimit.TierBasic, jobs.PlatformLinkedIn, jobs.SearchParams{Keywords: []string{"go"}})
	if err == nil {
		t.Fatal("expected search error")
	}
	stats, err := svc.Usage(ctx, "u1", ratelimit.TierBasic)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if stats.DailyUsed != 0 {
		t.Errorf("DailyUsed = %d, want 0 (failed scrape is free)", stats.DailyUsed)
	}
}

// Package orchestrator owns the browser process behind a set of platform
// sessions. One orchestrator = one Playwright run, one (optionally
// proxied) Chromium, one browser context per platform.
package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"

	"autoapply/internal/config"
	"autoapply/internal/core/jobs"
	"autoapply/internal/core/platforms"
	"autoapply/internal/humanize"
	"autoapply/internal/logger"
	"autoapply/internal/proxy"
)

// launchArgs keep Chromium from advertising itself as automated.
var launchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-web-security",
	"--disable-features=VizDisplayCompositor",
	"--no-first-run",
	"--disable-default-apps",
	"--disable-extensions",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

type Service struct {
	cfg     *config.Config
	proxies *proxy.Service
	sim     *humanize.Simulator
	log     *logger.Logger

	pw       *playwright.Playwright
	browser  playwright.Browser
	contexts []playwright.BrowserContext
	registry *platforms.Registry
	leased   *proxy.Proxy
	limiters map[jobs.Platform]*rate.Limiter

	closeOnce sync.Once
	closeErr  error
}

// New starts the browser and builds one session per known platform. A dry
// proxy pool degrades to direct egress with a warning rather than failing.
func New(ctx context.Context, cfg *config.Config, proxies *proxy.Service, headless bool) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		proxies:  proxies,
		sim:      humanize.New(cfg.Settings.Delays),
		log:      logger.New("Orchestrator"),
		limiters: make(map[jobs.Platform]*rate.Limiter),
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright run: %w", err)
	}
	s.pw = pw

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args:     launchArgs,
	}
	if proxies != nil {
		if s.leased = proxies.Lease(proxy.Criteria{}); s.leased != nil {
			opts.Proxy = &playwright.Proxy{
				Server:   fmt.Sprintf("http://%s:%d", s.leased.Host, s.leased.Port),
				Username: playwright.String(s.leased.Username),
				Password: playwright.String(s.leased.Password),
			}
			s.log.LogInfof("browser egress through proxy %s", s.leased.ID)
		} else {
			s.log.LogWarn("no proxy available, browser egress is direct")
		}
	}

	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	s.browser = browser

	scrapers := []platforms.Scraper{
		platforms.NewLinkedIn(s.sim),
		platforms.NewInfoJobs(s.sim),
		platforms.NewCatho(s.sim),
	}
	for _, sc := range scrapers {
		bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
			UserAgent: playwright.String(userAgents[rand.Intn(len(userAgents))]),
			Viewport: &playwright.Size{
				Width:  cfg.Settings.Viewport.Width,
				Height: cfg.Settings.Viewport.Height,
			},
		})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("browser context for %s: %w", sc.Platform(), err)
		}
		s.contexts = append(s.contexts, bctx)
		if err := sc.Initialize(ctx, bctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		// One gated operation per platform every few seconds keeps the
		// request cadence inside what a person could plausibly produce.
		s.limiters[sc.Platform()] = rate.NewLimiter(rate.Every(5*time.Second), 1)
	}
	s.registry = platforms.NewRegistry(scrapers...)
	return s, nil
}

func (s *Service) pace(ctx context.Context, platform jobs.Platform) error {
	lim, ok := s.limiters[platform]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}

// reportOutcome feeds proxy health from real traffic results.
func (s *Service) reportOutcome(ok bool) {
	if s.leased != nil && s.proxies != nil {
		s.proxies.ReportOutcome(s.leased.ID, ok)
	}
}

// LoginAll logs into every platform with credentials present in the map.
// Platforms without credentials are skipped; a failed login is reported as
// false, never as an error.
func (s *Service) LoginAll(ctx context.Context, creds map[jobs.Platform]jobs.Credentials) map[jobs.Platform]bool {
	results := make(map[jobs.Platform]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, sc := range s.registry.All() {
		c, ok := creds[sc.Platform()]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(sc platforms.Scraper, c jobs.Credentials) {
			defer wg.Done()
			if err := s.pace(ctx, sc.Platform()); err != nil {
				return
			}
			ok := sc.Login(ctx, c)
			s.reportOutcome(ok)
			mu.Lock()
			results[sc.Platform()] = ok
			mu.Unlock()
		}(sc, c)
	}
	wg.Wait()
	return results
}

// SearchJobs runs one paced search on the platform's live session.
func (s *Service) SearchJobs(ctx context.Context, platform jobs.Platform, params jobs.SearchParams) ([]jobs.ScrapedJob, error) {
	sc, ok := s.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
	if err := s.pace(ctx, platform); err != nil {
		return nil, err
	}
	found, err := sc.SearchJobs(ctx, params)
	s.reportOutcome(err == nil)
	return found, err
}

func (s *Service) JobDetails(ctx context.Context, platform jobs.Platform, jobURL string) (*jobs.ScrapedJob, error) {
	sc, ok := s.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
	if err := s.pace(ctx, platform); err != nil {
		return nil, err
	}
	job, err := sc.JobDetails(ctx, jobURL)
	s.reportOutcome(err == nil)
	return job, err
}

// AnalyzeJobMatch routes scoring through the platform scraper; a job from
// an unrecognized platform gets the generic heuristic.
func (s *Service) AnalyzeJobMatch(job *jobs.ScrapedJob, user jobs.User) float64 {
	if sc, ok := s.registry.Get(job.Platform); ok {
		return sc.AnalyzeJobMatch(job, user)
	}
	return jobs.MatchScore(*job, user)
}

// ApplyToJob submits one application. An unrecognized platform yields a
// failed result, not an error.
func (s *Service) ApplyToJob(ctx context.Context, job jobs.ScrapedJob) jobs.ApplicationResult {
	sc, ok := s.registry.Get(job.Platform)
	if !ok {
		return jobs.ApplicationResult{
			JobID:     job.ID,
			Platform:  job.Platform,
			Success:   false,
			Error:     fmt.Sprintf("unsupported platform %q", job.Platform),
			Timestamp: time.Now(),
		}
	}
	if err := s.pace(ctx, job.Platform); err != nil {
		return jobs.ApplicationResult{JobID: job.ID, Platform: job.Platform, Success: false, Error: err.Error(), Timestamp: time.Now()}
	}
	result := sc.ApplyToJob(ctx, job)
	s.reportOutcome(result.Success)
	return result
}

func (s *Service) CheckApplicationStatus(ctx context.Context, platform jobs.Platform, jobID string) (jobs.ApplicationStatus, error) {
	sc, ok := s.registry.Get(platform)
	if !ok {
		return jobs.StatusUnsupported, nil
	}
	if err := s.pace(ctx, platform); err != nil {
		return jobs.StatusUnknown, err
	}
	return sc.CheckApplicationStatus(ctx, jobID)
}

// Screenshot captures the current page of a platform session, used for
// apply confirmations.
func (s *Service) Screenshot(platform jobs.Platform) ([]byte, error) {
	sc, ok := s.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
	return sc.Screenshot()
}

// Close tears the whole session set down. Safe to call more than once and
// from deferred paths.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.teardown()
	})
	return s.closeErr
}

func (s *Service) teardown() error {
	var firstErr error
	if s.registry != nil {
		for _, sc := range s.registry.All() {
			if err := sc.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	for _, bctx := range s.contexts {
		if err := bctx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.leased != nil && s.proxies != nil {
		s.proxies.Release(s.leased.ID)
		s.leased = nil
	}
	return firstErr
}

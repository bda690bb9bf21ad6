// Package platforms holds the per-site scrapers. Every scraper drives a
// real browser page through the humanizer so interaction timing looks like
// a person, and parses listings out of the rendered HTML with goquery.
package platforms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"autoapply/internal/core/jobs"
	"autoapply/internal/humanize"
	"autoapply/internal/logger"
)

// Scraper is one platform integration. Login returns a boolean because a
// failed login is an expected outcome the cycle tolerates, not an error.
type Scraper interface {
	Platform() jobs.Platform
	Initialize(ctx context.Context, browserCtx playwright.BrowserContext) error
	Login(ctx context.Context, creds jobs.Credentials) bool
	SearchJobs(ctx context.Context, params jobs.SearchParams) ([]jobs.ScrapedJob, error)
	JobDetails(ctx context.Context, jobURL string) (*jobs.ScrapedJob, error)
	AnalyzeJobMatch(job *jobs.ScrapedJob, user jobs.User) float64
	ApplyToJob(ctx context.Context, job jobs.ScrapedJob) jobs.ApplicationResult
	CheckApplicationStatus(ctx context.Context, jobID string) (jobs.ApplicationStatus, error)
	Screenshot() ([]byte, error)
	Close() error
}

// Registry resolves scrapers by platform identifier. Built once when the
// orchestrator starts a session set; read-only afterwards.
type Registry struct {
	scrapers map[jobs.Platform]Scraper
	order    []jobs.Platform
}

func NewRegistry(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[jobs.Platform]Scraper, len(scrapers))}
	for _, sc := range scrapers {
		if _, dup := r.scrapers[sc.Platform()]; dup {
			continue
		}
		r.scrapers[sc.Platform()] = sc
		r.order = append(r.order, sc.Platform())
	}
	return r
}

func (r *Registry) Get(p jobs.Platform) (Scraper, bool) {
	sc, ok := r.scrapers[p]
	return sc, ok
}

func (r *Registry) All() []Scraper {
	out := make([]Scraper, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.scrapers[p])
	}
	return out
}

func (r *Registry) Platforms() []jobs.Platform {
	return append([]jobs.Platform(nil), r.order...)
}

// session is the shared page-driving half of every scraper.
type session struct {
	platform jobs.Platform
	page     playwright.Page
	sim      *humanize.Simulator
	log      *logger.Logger
	loggedIn bool
}

func newSession(platform jobs.Platform, sim *humanize.Simulator) session {
	return session{
		platform: platform,
		sim:      sim,
		log:      logger.New(fmt.Sprintf("Scraper:%s", platform)),
	}
}

func (s *session) Initialize(ctx context.Context, browserCtx playwright.BrowserContext) error {
	page, err := browserCtx.NewPage()
	if err != nil {
		return fmt.Errorf("new page for %s: %w", s.platform, err)
	}
	s.page = page
	return nil
}

func (s *session) Close() error {
	if s.page == nil {
		return nil
	}
	err := s.page.Close()
	s.page = nil
	return err
}

func (s *session) Screenshot() ([]byte, error) {
	if s.page == nil {
		return nil, fmt.Errorf("%s session has no page", s.platform)
	}
	return s.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(false)})
}

// navigate loads a URL and then pauses like a person waiting for the page.
func (s *session) navigate(ctx context.Context, url string) error {
	if s.page == nil {
		return fmt.Errorf("%s session not initialized", s.platform)
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	})
	if err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return s.sim.Delay(ctx, humanize.ActionNavigation)
}

// lazyScroll pulls lazily-loaded listings into the DOM.
func (s *session) lazyScroll(ctx context.Context, rounds int) {
	for i := 0; i < rounds; i++ {
		if err := s.sim.ScrollLike(ctx, s.page, 600); err != nil {
			return
		}
		if err := s.sim.Delay(ctx, humanize.ActionReading); err != nil {
			return
		}
	}
}

func (s *session) html() (string, error) {
	content, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("page content: %w", err)
	}
	return content, nil
}

// clickFirst tries selectors in order and human-clicks the first visible one.
func (s *session) clickFirst(ctx context.Context, selectors ...string) (string, error) {
	for _, sel := range selectors {
		visible, err := s.page.Locator(sel).First().IsVisible()
		if err != nil || !visible {
			continue
		}
		if err := s.sim.ClickLike(ctx, s.page, sel); err != nil {
			return "", err
		}
		return sel, nil
	}
	return "", fmt.Errorf("none of %s present", strings.Join(selectors, ", "))
}

func (s *session) failedApply(job jobs.ScrapedJob, err error) jobs.ApplicationResult {
	s.log.LogWarnf("apply to %s failed: %v", job.ID, err)
	return jobs.ApplicationResult{
		JobID:     job.ID,
		Platform:  s.platform,
		Success:   false,
		Error:     err.Error(),
		Timestamp: time.Now(),
	}
}

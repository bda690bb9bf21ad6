package platforms

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"autoapply/internal/core/jobs"
	"autoapply/internal/humanize"
)

const linkedinBase = "https://www.linkedin.com"

type LinkedIn struct {
	session
}

func NewLinkedIn(sim *humanize.Simulator) *LinkedIn {
	return &LinkedIn{session: newSession(jobs.PlatformLinkedIn, sim)}
}

func (l *LinkedIn) Platform() jobs.Platform { return jobs.PlatformLinkedIn }

func (l *LinkedIn) Login(ctx context.Context, creds jobs.Credentials) bool {
	if err := l.navigate(ctx, linkedinBase+"/login"); err != nil {
		l.log.LogError("login navigation failed", err)
		return false
	}
	if err := l.sim.TypeLike(ctx, l.page, "#username", creds.Email); err != nil {
		l.log.LogError("typing email failed", err)
		return false
	}
	if err := l.sim.Delay(ctx, humanize.ActionThinking); err != nil {
		return false
	}
	if err := l.sim.TypeLike(ctx, l.page, "#password", creds.Password); err != nil {
		l.log.LogError("typing password failed", err)
		return false
	}
	if err := l.sim.ClickLike(ctx, l.page, "button[type=submit]"); err != nil {
		l.log.LogError("submit click failed", err)
		return false
	}
	if err := l.page.Locator("#global-nav").WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(15000),
	}); err != nil {
		l.log.LogWarn("login did not reach the feed, possibly challenged")
		return false
	}
	l.loggedIn = true
	return true
}

func (l *LinkedIn) searchURL(params jobs.SearchParams) string {
	q := url.Values{}
	q.Set("keywords", strings.Join(params.Keywords, " "))
	if len(params.Locations) > 0 {
		q.Set("location", params.Locations[0])
	}
	if params.WorkModel == "remote" {
		q.Set("f_WT", "2")
	}
	return linkedinBase + "/jobs/search/?" + q.Encode()
}

func (l *LinkedIn) SearchJobs(ctx context.Context, params jobs.SearchParams) ([]jobs.ScrapedJob, error) {
	if err := l.navigate(ctx, l.searchURL(params)); err != nil {
		return nil, err
	}
	l.lazyScroll(ctx, 3)

	content, err := l.html()
	if err != nil {
		return nil, err
	}
	return parseLinkedInListings(content, params.Limit)
}

func parseLinkedInListings(content string, limit int) ([]jobs.ScrapedJob, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	now := time.Now()
	var found []jobs.ScrapedJob
	seen := make(map[string]bool)
	doc.Find("div.base-card, li.jobs-search-results__list-item").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		link, _ := card.Find("a.base-card__full-link, a.job-card-list__title").First().Attr("href")
		if link == "" || seen[link] {
			return true
		}
		seen[link] = true
		datetime, _ := card.Find("time").First().Attr("datetime")
		job := jobs.ScrapedJob{
			ID:             jobIDFromURL(link),
			Platform:       jobs.PlatformLinkedIn,
			Title:          firstText(card, ".base-search-card__title", ".job-card-list__title"),
			Company:        firstText(card, ".base-search-card__subtitle", ".job-card-container__company-name"),
			Location:       firstText(card, ".job-search-card__location", ".job-card-container__metadata-item"),
			PostedDate:     parsePostedDate(datetime, now),
			ApplicationURL: strings.SplitN(link, "?", 2)[0],
		}
		if job.Title == "" {
			return true
		}
		found = append(found, job)
		return limit <= 0 || len(found) < limit
	})
	return found, nil
}

func (l *LinkedIn) JobDetails(ctx context.Context, jobURL string) (*jobs.ScrapedJob, error) {
	if err := l.navigate(ctx, jobURL); err != nil {
		return nil, err
	}
	// Expand the truncated description when the toggle is present.
	if _, err := l.clickFirst(ctx, "button.show-more-less-html__button"); err == nil {
		_ = l.sim.Delay(ctx, humanize.ActionReading)
	}
	content, err := l.html()
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse job page: %w", err)
	}

	desc := descriptionMarkdown(doc.Find(".show-more-less-html__markup, .jobs-description__content").First())
	job := &jobs.ScrapedJob{
		ID:             jobIDFromURL(jobURL),
		Platform:       jobs.PlatformLinkedIn,
		Title:          firstText(doc.Selection, "h1.top-card-layout__title, h1.jobs-unified-top-card__job-title", "h1"),
		Company:        firstText(doc.Selection, "a.topcard__org-name-link", ".jobs-unified-top-card__company-name"),
		Location:       firstText(doc.Selection, ".topcard__flavor--bullet", ".jobs-unified-top-card__bullet"),
		Description:    desc,
		Requirements:   extractRequirements(desc),
		ApplicationURL: jobURL,
	}
	return job, nil
}

func (l *LinkedIn) AnalyzeJobMatch(job *jobs.ScrapedJob, user jobs.User) float64 {
	scored := *job
	scored.Requirements = matchText(job)
	return jobs.MatchScore(scored, user)
}

func (l *LinkedIn) ApplyToJob(ctx context.Context, job jobs.ScrapedJob) jobs.ApplicationResult {
	if !l.loggedIn {
		return l.failedApply(job, fmt.Errorf("not logged in"))
	}
	if err := l.navigate(ctx, job.ApplicationURL); err != nil {
		return l.failedApply(job, err)
	}
	if err := l.sim.Delay(ctx, humanize.ActionReading); err != nil {
		return l.failedApply(job, err)
	}

	if _, err := l.clickFirst(ctx, "button.jobs-apply-button", "button[data-control-name=jobdetails_topcard_inapply]"); err != nil {
		return l.failedApply(job, fmt.Errorf("no easy-apply button: %w", err))
	}
	if err := l.sim.Delay(ctx, humanize.ActionThinking); err != nil {
		return l.failedApply(job, err)
	}
	// Single-step Easy Apply modal; multi-step forms are out of reach
	// without profile answers, so treat them as a failed attempt.
	if _, err := l.clickFirst(ctx, "button[aria-label='Submit application']", "button.jobs-apply-form__submit-button"); err != nil {
		return l.failedApply(job, fmt.Errorf("application form needs manual input: %w", err))
	}

	return jobs.ApplicationResult{
		JobID:          job.ID,
		Platform:       jobs.PlatformLinkedIn,
		Success:        true,
		ApplicationID:  uuid.New().String(),
		ApplicationURL: job.ApplicationURL,
		Timestamp:      time.Now(),
	}
}

func (l *LinkedIn) CheckApplicationStatus(ctx context.Context, jobID string) (jobs.ApplicationStatus, error) {
	if !l.loggedIn {
		return jobs.StatusUnknown, fmt.Errorf("not logged in")
	}
	if err := l.navigate(ctx, linkedinBase+"/my-items/saved-jobs/?cardType=APPLIED"); err != nil {
		return jobs.StatusUnknown, err
	}
	l.lazyScroll(ctx, 2)
	content, err := l.html()
	if err != nil {
		return jobs.StatusUnknown, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return jobs.StatusUnknown, err
	}

	status := jobs.StatusNotFound
	doc.Find("li.reusable-search__result-container").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		link, _ := card.Find("a").First().Attr("href")
		if !strings.Contains(link, jobID) {
			return true
		}
		status = statusFromText(card.Text())
		return false
	})
	return status, nil
}

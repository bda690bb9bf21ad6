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

const cathoBase = "https://www.catho.com.br"

type Catho struct {
	session
}

func NewCatho(sim *humanize.Simulator) *Catho {
	return &Catho{session: newSession(jobs.PlatformCatho, sim)}
}

func (c *Catho) Platform() jobs.Platform { return jobs.PlatformCatho }

func (c *Catho) Login(ctx context.Context, creds jobs.Credentials) bool {
	if err := c.navigate(ctx, "https://seguro.catho.com.br/signin/"); err != nil {
		c.log.LogError("login navigation failed", err)
		return false
	}
	if err := c.sim.TypeLike(ctx, c.page, "input[name=email]", creds.Email); err != nil {
		c.log.LogError("typing email failed", err)
		return false
	}
	if err := c.sim.Delay(ctx, humanize.ActionThinking); err != nil {
		return false
	}
	if err := c.sim.TypeLike(ctx, c.page, "input[name=password]", creds.Password); err != nil {
		c.log.LogError("typing password failed", err)
		return false
	}
	if err := c.sim.ClickLike(ctx, c.page, "button[type=submit]"); err != nil {
		c.log.LogError("submit click failed", err)
		return false
	}
	if err := c.page.Locator("[data-testid=header-user-menu], a[href*='/area-candidato']").First().WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(15000),
	}); err != nil {
		c.log.LogWarn("login did not reach the candidate area")
		return false
	}
	c.loggedIn = true
	return true
}

func (c *Catho) searchURL(params jobs.SearchParams) string {
	slug := strings.ToLower(strings.Join(params.Keywords, "-"))
	slug = strings.ReplaceAll(slug, " ", "-")
	u := cathoBase + "/vagas/" + url.PathEscape(slug) + "/"
	if len(params.Locations) > 0 {
		loc := strings.ToLower(strings.ReplaceAll(params.Locations[0], " ", "-"))
		u += url.PathEscape(loc) + "/"
	}
	return u
}

func (c *Catho) SearchJobs(ctx context.Context, params jobs.SearchParams) ([]jobs.ScrapedJob, error) {
	if err := c.navigate(ctx, c.searchURL(params)); err != nil {
		return nil, err
	}
	c.lazyScroll(ctx, 3)

	content, err := c.html()
	if err != nil {
		return nil, err
	}
	return parseCathoListings(content, params.Limit)
}

func parseCathoListings(content string, limit int) ([]jobs.ScrapedJob, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	now := time.Now()
	var found []jobs.ScrapedJob
	doc.Find("li[data-testid=job-card], article.job-card").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		link, _ := card.Find("h2 a, a[data-testid=job-link]").First().Attr("href")
		if link == "" {
			return true
		}
		if strings.HasPrefix(link, "/") {
			link = cathoBase + link
		}
		job := jobs.ScrapedJob{
			ID:             jobIDFromURL(link),
			Platform:       jobs.PlatformCatho,
			Title:          firstText(card, "h2"),
			Company:        firstText(card, "[data-testid=job-company]", ".company"),
			Location:       firstText(card, "[data-testid=job-location]", ".location"),
			Salary:         firstText(card, "[data-testid=job-salary]", ".salary"),
			PostedDate:     parsePostedDate(firstText(card, "time", ".posted-date"), now),
			ApplicationURL: link,
		}
		if job.Title == "" {
			return true
		}
		found = append(found, job)
		return limit <= 0 || len(found) < limit
	})
	return found, nil
}

func (c *Catho) JobDetails(ctx context.Context, jobURL string) (*jobs.ScrapedJob, error) {
	if err := c.navigate(ctx, jobURL); err != nil {
		return nil, err
	}
	content, err := c.html()
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse job page: %w", err)
	}

	desc := descriptionMarkdown(doc.Find("[data-testid=job-description], .job-description").First())
	job := &jobs.ScrapedJob{
		ID:             jobIDFromURL(jobURL),
		Platform:       jobs.PlatformCatho,
		Title:          firstText(doc.Selection, "h1"),
		Company:        firstText(doc.Selection, "[data-testid=job-company]", ".company"),
		Location:       firstText(doc.Selection, "[data-testid=job-location]", ".location"),
		Salary:         firstText(doc.Selection, "[data-testid=job-salary]", ".salary"),
		Description:    desc,
		Requirements:   extractRequirements(desc),
		ApplicationURL: jobURL,
	}
	return job, nil
}

func (c *Catho) AnalyzeJobMatch(job *jobs.ScrapedJob, user jobs.User) float64 {
	scored := *job
	scored.Requirements = matchText(job)
	return jobs.MatchScore(scored, user)
}

func (c *Catho) ApplyToJob(ctx context.Context, job jobs.ScrapedJob) jobs.ApplicationResult {
	if !c.loggedIn {
		return c.failedApply(job, fmt.Errorf("not logged in"))
	}
	if err := c.navigate(ctx, job.ApplicationURL); err != nil {
		return c.failedApply(job, err)
	}
	if err := c.sim.Delay(ctx, humanize.ActionReading); err != nil {
		return c.failedApply(job, err)
	}

	if _, err := c.clickFirst(ctx, "button[data-testid=apply-button]", "button.js-apply"); err != nil {
		return c.failedApply(job, fmt.Errorf("no apply button: %w", err))
	}
	if err := c.sim.Delay(ctx, humanize.ActionThinking); err != nil {
		return c.failedApply(job, err)
	}
	// Catho sometimes asks for a final confirmation in a modal.
	if _, err := c.clickFirst(ctx, "button[data-testid=confirm-apply]", "button.confirm"); err == nil {
		_ = c.sim.Delay(ctx, humanize.ActionClick)
	}
	if err := c.page.Locator("[data-testid=apply-success], .apply-success").First().WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		return c.failedApply(job, fmt.Errorf("no apply confirmation: %w", err))
	}

	return jobs.ApplicationResult{
		JobID:          job.ID,
		Platform:       jobs.PlatformCatho,
		Success:        true,
		ApplicationID:  uuid.New().String(),
		ApplicationURL: job.ApplicationURL,
		Timestamp:      time.Now(),
	}
}

func (c *Catho) CheckApplicationStatus(ctx context.Context, jobID string) (jobs.ApplicationStatus, error) {
	if !c.loggedIn {
		return jobs.StatusUnknown, fmt.Errorf("not logged in")
	}
	if err := c.navigate(ctx, cathoBase+"/area-candidato/candidaturas"); err != nil {
		return jobs.StatusUnknown, err
	}
	content, err := c.html()
	if err != nil {
		return jobs.StatusUnknown, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return jobs.StatusUnknown, err
	}

	status := jobs.StatusNotFound
	doc.Find("[data-testid=candidacy-card], .candidacy-card").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link, _ := row.Find("a").First().Attr("href")
		if !strings.Contains(link, jobID) {
			return true
		}
		status = statusFromText(row.Text())
		return false
	})
	return status, nil
}

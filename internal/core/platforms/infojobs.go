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

const infojobsBase = "https://www.infojobs.com.br"

type InfoJobs struct {
	session
}

func NewInfoJobs(sim *humanize.Simulator) *InfoJobs {
	return &InfoJobs{session: newSession(jobs.PlatformInfoJobs, sim)}
}

func (i *InfoJobs) Platform() jobs.Platform { return jobs.PlatformInfoJobs }

func (i *InfoJobs) Login(ctx context.Context, creds jobs.Credentials) bool {
	if err := i.navigate(ctx, infojobsBase+"/candidate/login.aspx"); err != nil {
		i.log.LogError("login navigation failed", err)
		return false
	}
	if err := i.sim.TypeLike(ctx, i.page, "#Email", creds.Email); err != nil {
		i.log.LogError("typing email failed", err)
		return false
	}
	if err := i.sim.TypeLike(ctx, i.page, "#Password", creds.Password); err != nil {
		i.log.LogError("typing password failed", err)
		return false
	}
	if err := i.sim.ClickLike(ctx, i.page, "#btnLogin, button[type=submit]"); err != nil {
		i.log.LogError("submit click failed", err)
		return false
	}
	if err := i.page.Locator(".js_userMenu, a[href*='candidate/area']").First().WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(15000),
	}); err != nil {
		i.log.LogWarn("login did not reach the candidate area")
		return false
	}
	i.loggedIn = true
	return true
}

func (i *InfoJobs) searchURL(params jobs.SearchParams) string {
	q := url.Values{}
	q.Set("palabra", strings.Join(params.Keywords, " "))
	if len(params.Locations) > 0 {
		q.Set("provincia", params.Locations[0])
	}
	return infojobsBase + "/empregos.aspx?" + q.Encode()
}

func (i *InfoJobs) SearchJobs(ctx context.Context, params jobs.SearchParams) ([]jobs.ScrapedJob, error) {
	if err := i.navigate(ctx, i.searchURL(params)); err != nil {
		return nil, err
	}
	i.lazyScroll(ctx, 2)

	content, err := i.html()
	if err != nil {
		return nil, err
	}
	return parseInfoJobsListings(content, params.Limit)
}

func parseInfoJobsListings(content string, limit int) ([]jobs.ScrapedJob, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	now := time.Now()
	var found []jobs.ScrapedJob
	doc.Find("div.card.js_vacancyLoad, article.vaga").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		link, _ := card.Find("a.text-decoration-none, h2 a").First().Attr("href")
		if link == "" {
			return true
		}
		if strings.HasPrefix(link, "/") {
			link = infojobsBase + link
		}
		job := jobs.ScrapedJob{
			ID:             jobIDFromURL(link),
			Platform:       jobs.PlatformInfoJobs,
			Title:          firstText(card, "h2.h5, h2"),
			Company:        firstText(card, ".text-body a", ".company"),
			Location:       firstText(card, ".small.text-medium", ".location"),
			Salary:         firstText(card, ".js_salaryRange", ".salary"),
			PostedDate:     parsePostedDate(firstText(card, ".text-medium.small:last-child", "time"), now),
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

func (i *InfoJobs) JobDetails(ctx context.Context, jobURL string) (*jobs.ScrapedJob, error) {
	if err := i.navigate(ctx, jobURL); err != nil {
		return nil, err
	}
	content, err := i.html()
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse job page: %w", err)
	}

	desc := descriptionMarkdown(doc.Find(".js_vacancyDataPanels, .vacancy-description").First())
	job := &jobs.ScrapedJob{
		ID:             jobIDFromURL(jobURL),
		Platform:       jobs.PlatformInfoJobs,
		Title:          firstText(doc.Selection, "h1"),
		Company:        firstText(doc.Selection, ".js_companyName", ".company-name"),
		Location:       firstText(doc.Selection, ".js_location", ".location"),
		Salary:         firstText(doc.Selection, ".js_salary", ".salary"),
		Description:    desc,
		Requirements:   extractRequirements(desc),
		ApplicationURL: jobURL,
	}
	return job, nil
}

func (i *InfoJobs) AnalyzeJobMatch(job *jobs.ScrapedJob, user jobs.User) float64 {
	scored := *job
	scored.Requirements = matchText(job)
	return jobs.MatchScore(scored, user)
}

func (i *InfoJobs) ApplyToJob(ctx context.Context, job jobs.ScrapedJob) jobs.ApplicationResult {
	if !i.loggedIn {
		return i.failedApply(job, fmt.Errorf("not logged in"))
	}
	if err := i.navigate(ctx, job.ApplicationURL); err != nil {
		return i.failedApply(job, err)
	}
	if err := i.sim.Delay(ctx, humanize.ActionReading); err != nil {
		return i.failedApply(job, err)
	}

	if _, err := i.clickFirst(ctx, "#candidateButton", "button.js_applyVacancy", "a.js_applyVacancy"); err != nil {
		return i.failedApply(job, fmt.Errorf("no apply button: %w", err))
	}
	if err := i.sim.Delay(ctx, humanize.ActionThinking); err != nil {
		return i.failedApply(job, err)
	}
	// A confirmation banner appears once the candidacy is registered.
	if err := i.page.Locator(".js_applySuccess, .alert-success").First().WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		return i.failedApply(job, fmt.Errorf("no apply confirmation: %w", err))
	}

	return jobs.ApplicationResult{
		JobID:          job.ID,
		Platform:       jobs.PlatformInfoJobs,
		Success:        true,
		ApplicationID:  uuid.New().String(),
		ApplicationURL: job.ApplicationURL,
		Timestamp:      time.Now(),
	}
}

func (i *InfoJobs) CheckApplicationStatus(ctx context.Context, jobID string) (jobs.ApplicationStatus, error) {
	if !i.loggedIn {
		return jobs.StatusUnknown, fmt.Errorf("not logged in")
	}
	if err := i.navigate(ctx, infojobsBase+"/candidate/vacancies/candidacies.aspx"); err != nil {
		return jobs.StatusUnknown, err
	}
	content, err := i.html()
	if err != nil {
		return jobs.StatusUnknown, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return jobs.StatusUnknown, err
	}

	status := jobs.StatusNotFound
	doc.Find(".js_candidacy, .candidacy-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link, _ := row.Find("a").First().Attr("href")
		if !strings.Contains(link, jobID) {
			return true
		}
		status = statusFromText(row.Text())
		return false
	})
	return status, nil
}

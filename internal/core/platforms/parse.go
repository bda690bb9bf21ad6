package platforms

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	html2markdown "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"autoapply/internal/core/jobs"
)

var mdConverter = html2markdown.NewConverter("", true, nil)

// descriptionMarkdown normalizes a job description fragment to markdown so
// scoring and storage see consistent text across platforms.
func descriptionMarkdown(sel *goquery.Selection) string {
	raw, err := sel.Html()
	if err != nil || strings.TrimSpace(raw) == "" {
		return strings.TrimSpace(sel.Text())
	}
	md, err := mdConverter.ConvertString(raw)
	if err != nil {
		return strings.TrimSpace(sel.Text())
	}
	return strings.TrimSpace(md)
}

var bulletPrefix = regexp.MustCompile(`^[-*•·]\s+`)

// extractRequirements pulls requirement-like lines out of a markdown
// description: list items, plus anything under a heading that mentions
// requirements (pt: requisitos, es: requisitos, en: requirements).
func extractRequirements(description string) []string {
	var reqs []string
	inReqSection := false
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(line, "#") {
			inReqSection = strings.Contains(lower, "requisito") || strings.Contains(lower, "requirement") || strings.Contains(lower, "qualifica")
			continue
		}
		if bulletPrefix.MatchString(line) {
			reqs = append(reqs, strings.TrimSpace(bulletPrefix.ReplaceAllString(line, "")))
			continue
		}
		if inReqSection {
			reqs = append(reqs, line)
		}
	}
	return reqs
}

// firstText returns the trimmed text of the first selector that matches.
func firstText(doc *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

var trailingSlugID = regexp.MustCompile(`(\d{6,})`)

// jobIDFromURL digs a numeric listing id out of a job URL, falling back to
// the last path segment.
func jobIDFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if m := trailingSlugID.FindString(u.Path); m != "" {
		return m
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 {
		return rawURL
	}
	return segments[len(segments)-1]
}

// parsePostedDate understands the relative forms the boards render
// ("2 days ago", "há 3 dias", "hace 5 días") plus ISO datetime attributes.
func parsePostedDate(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if strings.Contains(raw, "hoje") || strings.Contains(raw, "today") || strings.Contains(raw, "hoy") {
		return now
	}
	if strings.Contains(raw, "ontem") || strings.Contains(raw, "yesterday") || strings.Contains(raw, "ayer") {
		return now.AddDate(0, 0, -1)
	}
	if m := regexp.MustCompile(`(\d+)`).FindString(raw); m != "" {
		n := 0
		for _, r := range m {
			n = n*10 + int(r-'0')
		}
		switch {
		case strings.Contains(raw, "hora") || strings.Contains(raw, "hour"):
			return now.Add(-time.Duration(n) * time.Hour)
		case strings.Contains(raw, "dia") || strings.Contains(raw, "day") || strings.Contains(raw, "día"):
			return now.AddDate(0, 0, -n)
		case strings.Contains(raw, "semana") || strings.Contains(raw, "week"):
			return now.AddDate(0, 0, -7*n)
		case strings.Contains(raw, "mes") || strings.Contains(raw, "mês") || strings.Contains(raw, "month"):
			return now.AddDate(0, -n, 0)
		}
	}
	return time.Time{}
}

// statusFromText maps the status label a platform renders next to an
// application to the engine's vocabulary. Handles pt/es/en labels.
func statusFromText(text string) jobs.ApplicationStatus {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "rejei") || strings.Contains(lower, "não selecionado") ||
		strings.Contains(lower, "no longer") || strings.Contains(lower, "descartad"):
		return jobs.StatusRejected
	case strings.Contains(lower, "visualizad") || strings.Contains(lower, "viewed") ||
		strings.Contains(lower, "vista"):
		return jobs.StatusViewed
	case strings.Contains(lower, "análise") || strings.Contains(lower, "review") ||
		strings.Contains(lower, "proceso") || strings.Contains(lower, "andamento"):
		return jobs.StatusInReview
	case strings.Contains(lower, "enviad") || strings.Contains(lower, "submitted") ||
		strings.Contains(lower, "applied") || strings.Contains(lower, "candidatura"):
		return jobs.StatusSubmitted
	default:
		return jobs.StatusUnknown
	}
}

// matchText is the text a scraper hands to the scoring heuristic: explicit
// requirements when the platform exposes them, else the raw description.
func matchText(job *jobs.ScrapedJob) []string {
	if len(job.Requirements) > 0 {
		return job.Requirements
	}
	if job.Description != "" {
		return []string{job.Description}
	}
	return []string{job.Title}
}

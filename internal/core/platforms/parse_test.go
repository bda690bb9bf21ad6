package platforms

import (
	"testing"
	"time"

	"autoapply/internal/core/jobs"
	"autoapply/internal/humanize"
)

const linkedinResultsHTML = `
<ul>
  <li class="jobs-search-results__list-item">
    <div class="base-card">
      <a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/backend-developer-3801234567?refId=abc"></a>
      <h3 class="base-search-card__title">Backend Developer</h3>
      <h4 class="base-search-card__subtitle">Acme Ltda</h4>
      <span class="job-search-card__location">São Paulo, SP</span>
      <time datetime="2025-05-20"></time>
    </div>
  </li>
  <li class="jobs-search-results__list-item">
    <div class="base-card">
      <a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/data-engineer-3809876543"></a>
      <h3 class="base-search-card__title">Data Engineer</h3>
      <h4 class="base-search-card__subtitle">Globex</h4>
      <span class="job-search-card__location">Remote</span>
    </div>
  </li>
  <li class="jobs-search-results__list-item"><div class="base-card"></div></li>
</ul>`

func TestParseLinkedInListings(t *testing.T) {
	found, err := parseLinkedInListings(linkedinResultsHTML, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("parsed %d jobs, want 2 (empty card skipped)", len(found))
	}

	first := found[0]
	if first.ID != "3801234567" {
		t.Errorf("ID = %q, want the numeric listing id", first.ID)
	}
	if first.Title != "Backend Developer" || first.Company != "Acme Ltda" {
		t.Errorf("title/company = %q/%q", first.Title, first.Company)
	}
	if first.ApplicationURL != "https://www.linkedin.com/jobs/view/backend-developer-3801234567" {
		t.Errorf("url kept tracking params: %q", first.ApplicationURL)
	}
	if first.PostedDate.Format("2006-01-02") != "2025-05-20" {
		t.Errorf("posted date = %v", first.PostedDate)
	}
	if first.Platform != jobs.PlatformLinkedIn {
		t.Errorf("platform = %q", first.Platform)
	}
}

func TestParseLinkedInListingsHonorsLimit(t *testing.T) {
	found, err := parseLinkedInListings(linkedinResultsHTML, 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("parsed %d jobs, want 1", len(found))
	}
}

const infojobsResultsHTML = `
<div class="card js_vacancyLoad">
  <h2 class="h5"><a class="text-decoration-none" href="/vaga-de-analista-de-sistemas-sao-paulo__9123456.aspx">Analista de Sistemas</a></h2>
  <div class="text-body"><a href="/empresa">TechBR</a></div>
  <div class="small text-medium">São Paulo, SP</div>
  <div class="js_salaryRange">R$ 5.000 - R$ 7.000</div>
</div>`

func TestParseInfoJobsListings(t *testing.T) {
	found, err := parseInfoJobsListings(infojobsResultsHTML, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("parsed %d jobs, want 1", len(found))
	}
	job := found[0]
	if job.ID != "9123456" {
		t.Errorf("ID = %q", job.ID)
	}
	if job.Salary != "R$ 5.000 - R$ 7.000" {
		t.Errorf("salary = %q", job.Salary)
	}
	if job.ApplicationURL != infojobsBase+"/vaga-de-analista-de-sistemas-sao-paulo__9123456.aspx" {
		t.Errorf("relative link not absolutized: %q", job.ApplicationURL)
	}
}

const cathoResultsHTML = `
<ul>
  <li data-testid="job-card">
    <h2><a href="/vagas/desenvolvedor-go/1234567/">Desenvolvedor Go</a></h2>
    <span data-testid="job-company">Initech</span>
    <span data-testid="job-location">Curitiba, PR</span>
    <span data-testid="job-salary">R$ 9.000</span>
  </li>
</ul>`

func TestParseCathoListings(t *testing.T) {
	found, err := parseCathoListings(cathoResultsHTML, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("parsed %d jobs, want 1", len(found))
	}
	if found[0].ID != "1234567" || found[0].Company != "Initech" {
		t.Errorf("job = %+v", found[0])
	}
}

func TestExtractRequirements(t *testing.T) {
	desc := "Sobre a vaga\n\n## Requisitos\n\nExperiência com Go\n- Docker e Kubernetes\n- Inglês avançado\n\n## Benefícios\n\nVale refeição"
	reqs := extractRequirements(desc)
	want := []string{"Experiência com Go", "Docker e Kubernetes", "Inglês avançado"}
	if len(reqs) != len(want) {
		t.Fatalf("reqs = %v, want %v", reqs, want)
	}
	for i := range want {
		if reqs[i] != want[i] {
			t.Errorf("reqs[%d] = %q, want %q", i, reqs[i], want[i])
		}
	}
}

func TestParsePostedDate(t *testing.T) {
	now := time.Date(2025, 5, 25, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		raw  string
		want string
	}{
		{"2025-05-20", "2025-05-20"},
		{"há 3 dias", "2025-05-22"},
		{"2 days ago", "2025-05-23"},
		{"hoje", "2025-05-25"},
		{"ontem", "2025-05-24"},
		{"hace 1 semana", "2025-05-18"},
	}
	for _, tc := range cases {
		got := parsePostedDate(tc.raw, now)
		if got.Format("2006-01-02") != tc.want {
			t.Errorf("parsePostedDate(%q) = %s, want %s", tc.raw, got.Format("2006-01-02"), tc.want)
		}
	}
	if !parsePostedDate("sometime", now).IsZero() {
		t.Error("unparseable input should yield zero time")
	}
}

func TestStatusFromText(t *testing.T) {
	cases := map[string]jobs.ApplicationStatus{
		"Candidatura enviada":      jobs.StatusSubmitted,
		"Currículo visualizado":    jobs.StatusViewed,
		"Em análise pelo RH":       jobs.StatusInReview,
		"Não selecionado":          jobs.StatusRejected,
		"application under review": jobs.StatusInReview,
		"algo inesperado":          jobs.StatusUnknown,
	}
	for in, want := range cases {
		if got := statusFromText(in); got != want {
			t.Errorf("statusFromText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistryResolvesByPlatform(t *testing.T) {
	sim := humanize.New(nil)
	reg := NewRegistry(NewLinkedIn(sim), NewInfoJobs(sim), NewCatho(sim))

	for _, p := range jobs.KnownPlatforms() {
		sc, ok := reg.Get(p)
		if !ok || sc.Platform() != p {
			t.Errorf("registry missing %s", p)
		}
	}
	if _, ok := reg.Get(jobs.Platform("monster")); ok {
		t.Error("unknown platform should not resolve")
	}
	if got := len(reg.All()); got != 3 {
		t.Errorf("All() = %d scrapers, want 3", got)
	}
}

func TestAnalyzeJobMatchFallsBackToDescription(t *testing.T) {
	sim := humanize.New(nil)
	l := NewLinkedIn(sim)
	job := &jobs.ScrapedJob{Description: "We need someone with Go and Redis experience"}
	user := jobs.User{Skills: []string{"Go", "Redis"}}

	if got := l.AnalyzeJobMatch(job, user); got != 100 {
		t.Errorf("score = %v, want 100 via description fallback", got)
	}
	if len(job.Requirements) != 0 {
		t.Error("scoring must not mutate the job")
	}
}

package autoapply

import (
	"context"
	"errors"
	"testing"
	"time"

	"autoapply/internal/core/jobs"
	"autoapply/internal/credentials"
	"autoapply/internal/humanize"
	"autoapply/internal/ratelimit"
)

type fakeStore struct {
	config *jobs.AutoApplyConfig
	user   *jobs.User
	saved  []jobs.AutoApplyConfig
	apps   []jobs.Application
}

func (f *fakeStore) LoadConfig(_ context.Context, userID string) (*jobs.AutoApplyConfig, error) {
	if f.config == nil {
		return nil, errors.New("no config")
	}
	c := *f.config
	return &c, nil
}

func (f *fakeStore) SaveConfig(_ context.Context, cfg *jobs.AutoApplyConfig) error {
	f.saved = append(f.saved, *cfg)
	return nil
}

func (f *fakeStore) LoadUser(_ context.Context, userID string) (*jobs.User, error) {
	if f.user == nil {
		return nil, errors.New("no user")
	}
	u := *f.user
	return &u, nil
}

func (f *fakeStore) RecordApplication(_ context.Context, app jobs.Application) error {
	f.apps = append(f.apps, app)
	return nil
}

type fakeOrchestrator struct {
	logins    map[jobs.Platform]bool
	inventory map[jobs.Platform][]jobs.ScrapedJob
	scores    map[string]float64
	failApply map[string]string
	onApply   func(job jobs.ScrapedJob)

	searches int
	applied  []string
	closed   int
}

func (f *fakeOrchestrator) LoginAll(_ context.Context, creds map[jobs.Platform]jobs.Credentials) map[jobs.Platform]bool {
	out := make(map[jobs.Platform]bool)
	for p := range creds {
		out[p] = f.logins[p]
	}
	return out
}

func (f *fakeOrchestrator) SearchJobs(_ context.Context, platform jobs.Platform, _ jobs.SearchParams) ([]jobs.ScrapedJob, error) {
	f.searches++
	return f.inventory[platform], nil
}

func (f *fakeOrchestrator) AnalyzeJobMatch(job *jobs.ScrapedJob, _ jobs.User) float64 {
	return f.scores[job.ID]
}

func (f *fakeOrchestrator) ApplyToJob(_ context.Context, job jobs.ScrapedJob) jobs.ApplicationResult {
	if f.onApply != nil {
		f.onApply(job)
	}
	if msg, fail := f.failApply[job.ID]; fail {
		return jobs.ApplicationResult{JobID: job.ID, Platform: job.Platform, Success: false, Error: msg, Timestamp: time.Now()}
	}
	f.applied = append(f.applied, job.ID)
	return jobs.ApplicationResult{JobID: job.ID, Platform: job.Platform, Success: true, ApplicationID: "app-" + job.ID, Timestamp: time.Now()}
}

func (f *fakeOrchestrator) Screenshot(jobs.Platform) ([]byte, error) { return nil, errors.New("no page") }

func (f *fakeOrchestrator) Close() error {
	f.closed++
	return nil
}

func testVault(t *testing.T) *credentials.Vault {
	t.Helper()
	v, err := credentials.NewVault("autoapply-test-key")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return v
}

func encrypted(t *testing.T, v *credentials.Vault, plain string) string {
	t.Helper()
	enc, err := v.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return enc
}

func testService(t *testing.T, store *fakeStore, orc *fakeOrchestrator) *Service {
	t.Helper()
	factory := func(ctx context.Context, headless bool) (Orchestrator, error) { return orc, nil }
	svc := New(store, testVault(t), factory, humanize.New(nil))
	svc.interApplyMin = 0
	svc.interApplyMax = 0
	return svc
}

func plusTierFixture(t *testing.T, v *credentials.Vault) (*fakeStore, *fakeOrchestrator) {
	t.Helper()
	store := &fakeStore{
		config: &jobs.AutoApplyConfig{
			UserID: "u1",
			Credentials: map[jobs.Platform]jobs.Credentials{
				jobs.PlatformLinkedIn: {Email: "u@x.com", Password: encrypted(t, v, "pw1")},
				jobs.PlatformInfoJobs: {Email: "u@x.com", Password: encrypted(t, v, "pw2")},
				jobs.PlatformCatho:    {Email: "u@x.com", Password: encrypted(t, v, "pw3")},
			},
			Search:                jobs.SearchParams{Keywords: []string{"golang"}},
			MatchThreshold:        70,
			MaxApplicationsPerDay: 100,
			TodayApplicationCount: 40,
			LastRunDate:           time.Now().Format("2006-01-02"),
		},
		user: &jobs.User{ID: "u1", Skills: []string{"Go", "Redis", "SQL", "Docker"}},
	}
	orc := &fakeOrchestrator{
		logins: map[jobs.Platform]bool{
			jobs.PlatformLinkedIn: true,
			jobs.PlatformInfoJobs: false,
			jobs.PlatformCatho:    true,
		},
		inventory: map[jobs.Platform][]jobs.ScrapedJob{
			jobs.PlatformLinkedIn: {
				{ID: "li-1", Platform: jobs.PlatformLinkedIn},
				{ID: "li-2", Platform: jobs.PlatformLinkedIn},
				{ID: "li-3", Platform: jobs.PlatformLinkedIn},
				{ID: "li-4", Platform: jobs.PlatformLinkedIn},
				{ID: "li-5", Platform: jobs.PlatformLinkedIn},
			},
			jobs.PlatformCatho: {
				{ID: "ca-1", Platform: jobs.PlatformCatho},
				{ID: "ca-2", Platform: jobs.PlatformCatho},
			},
		},
		scores: map[string]float64{
			"li-1": 95, "li-2": 72, "li-3": 80, "li-4": 30, "li-5": 10,
			"ca-1": 40, "ca-2": 65,
		},
	}
	return store, orc
}

func TestCycleAppliesToMatchesAcrossPlatforms(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	factory := func(ctx context.Context, headless bool) (Orchestrator, error) { return orc, nil }
	svc := New(store, v, factory, humanize.New(nil))
	svc.interApplyMin = 0
	svc.interApplyMax = 0

	result, err := svc.RunCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if !result.Success {
		t.Errorf("result not successful: %+v", result)
	}
	if result.JobsFound != 7 {
		t.Errorf("JobsFound = %d, want 7 (infojobs login failed, its inventory unseen)", result.JobsFound)
	}
	if result.JobsMatched != 3 {
		t.Errorf("JobsMatched = %d, want 3", result.JobsMatched)
	}
	wantOrder := []string{"li-1", "li-3", "li-2"}
	if len(orc.applied) != len(wantOrder) {
		t.Fatalf("applied = %v, want %v", orc.applied, wantOrder)
	}
	for i, id := range wantOrder {
		if orc.applied[i] != id {
			t.Errorf("applied[%d] = %s, want %s (descending score order)", i, orc.applied[i], id)
		}
	}
	if result.TodayCount != 43 {
		t.Errorf("TodayCount = %d, want 43", result.TodayCount)
	}
	if !result.LoginOutcomes[jobs.PlatformLinkedIn] || result.LoginOutcomes[jobs.PlatformInfoJobs] {
		t.Errorf("login outcomes = %v", result.LoginOutcomes)
	}
	if orc.closed != 1 {
		t.Errorf("orchestrator closed %d times, want exactly 1", orc.closed)
	}
	if len(store.saved) == 0 {
		t.Fatal("updated config never persisted")
	}
	final := store.saved[len(store.saved)-1]
	if final.TodayApplicationCount != 43 {
		t.Errorf("persisted count = %d, want 43", final.TodayApplicationCount)
	}
	if len(store.apps) != 3 {
		t.Errorf("recorded %d applications, want 3", len(store.apps))
	}
}

func TestCycleStopsAtDailyLimit(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	store.config.TodayApplicationCount = 100
	svc := testService(t, store, orc)

	result, err := svc.RunCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Success {
		t.Error("limit-reached cycle must not report success")
	}
	if result.Message != "Daily limit reached" {
		t.Errorf("message = %q", result.Message)
	}
	if orc.closed != 0 {
		t.Error("no browser session should be started when over the limit")
	}
}

func TestCycleResetsCountOnNewDay(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	store.config.TodayApplicationCount = 100
	store.config.LastRunDate = time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	svc := testService(t, store, orc)

	result, err := svc.RunCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !result.Success {
		t.Fatalf("rollover cycle failed: %+v", result)
	}
	if result.TodayCount != 3 {
		t.Errorf("TodayCount = %d, want 3 after midnight reset", result.TodayCount)
	}
}

func TestCycleCapsAppliesAtRemainingQuota(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	store.config.TodayApplicationCount = 98 // room for 2 of the 3 matches
	svc := testService(t, store, orc)

	result, err := svc.RunCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.AppliedCount != 2 {
		t.Errorf("AppliedCount = %d, want 2", result.AppliedCount)
	}
	if result.TodayCount != 100 {
		t.Errorf("TodayCount = %d, want 100", result.TodayCount)
	}
}

func TestCycleRecordsPerJobFailuresAndContinues(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	orc.failApply = map[string]string{"li-1": "form needs manual input"}
	svc := testService(t, store, orc)

	result, err := svc.RunCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if !result.Success {
		t.Error("a per-job failure must not fail the cycle")
	}
	if result.FailedCount != 1 || result.AppliedCount != 2 {
		t.Errorf("failed/applied = %d/%d, want 1/2", result.FailedCount, result.AppliedCount)
	}
	if result.TodayCount != 42 {
		t.Errorf("TodayCount = %d, want 42 (failures never consume quota)", result.TodayCount)
	}
	if len(result.Applications) != 3 {
		t.Errorf("all attempts should be reported, got %d", len(result.Applications))
	}
}

func TestCycleWithoutAnyLoginClosesSession(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	orc.logins = map[jobs.Platform]bool{}
	svc := testService(t, store, orc)

	result, err := svc.RunCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.Success {
		t.Error("cycle with zero logins should not succeed")
	}
	if result.Message != "No platform login succeeded" {
		t.Errorf("message = %q", result.Message)
	}
	if orc.closed != 1 {
		t.Errorf("session closed %d times, want 1", orc.closed)
	}
}

func TestStopLandsBetweenApplications(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	ctx, cancel := context.WithCancel(context.Background())
	orc.onApply = func(jobs.ScrapedJob) { cancel() }
	svc := testService(t, store, orc)

	result, err := svc.RunCycle(ctx, "u1")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.AppliedCount != 1 {
		t.Errorf("AppliedCount = %d, want 1 (in-flight apply completes, next is skipped)", result.AppliedCount)
	}
	if orc.closed != 1 {
		t.Errorf("session closed %d times, want 1", orc.closed)
	}
}

type fakeQuota struct {
	allow    bool
	checks   int
	recorded int
}

func (f *fakeQuota) CanSearch(context.Context, string, ratelimit.Tier) (bool, error) {
	f.checks++
	return f.allow, nil
}

func (f *fakeQuota) RecordUsage(context.Context, string, ratelimit.Operation) error {
	f.recorded++
	return nil
}

type fakeSearchCache struct {
	entries map[string][]jobs.ScrapedJob
}

func (f *fakeSearchCache) Get(platform, operation string, _ interface{}) (interface{}, bool) {
	found, ok := f.entries[platform+"|"+operation]
	if !ok {
		return nil, false
	}
	return found, true
}

func (f *fakeSearchCache) Set(platform, operation string, _, value interface{}, _ time.Duration) {
	if f.entries == nil {
		f.entries = make(map[string][]jobs.ScrapedJob)
	}
	f.entries[platform+"|"+operation] = value.([]jobs.ScrapedJob)
}

func TestCycleSearchesDeniedWhenTierQuotaExhausted(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	quota := &fakeQuota{allow: false}
	svc := testService(t, store, orc).WithQuota(quota)

	result, err := svc.RunCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if orc.searches != 0 {
		t.Errorf("session searched %d times despite exhausted quota", orc.searches)
	}
	if result.JobsFound != 0 || result.AppliedCount != 0 {
		t.Errorf("found/applied = %d/%d, want 0/0", result.JobsFound, result.AppliedCount)
	}
	if quota.checks == 0 {
		t.Error("limiter never consulted")
	}
	if quota.recorded != 0 {
		t.Errorf("denied searches recorded %d usages", quota.recorded)
	}
	if orc.closed != 1 {
		t.Errorf("session closed %d times, want 1", orc.closed)
	}
}

func TestCycleSearchesConsumeQuotaAndFillCache(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	quota := &fakeQuota{allow: true}
	cache := &fakeSearchCache{}
	svc := testService(t, store, orc).WithQuota(quota).WithSearchCache(cache, time.Minute)

	if _, err := svc.RunCycle(context.Background(), "u1"); err != nil {
		t.Fatalf("first RunCycle: %v", err)
	}
	if orc.searches != 2 {
		t.Fatalf("searches = %d, want 2 (linkedin and catho; infojobs login failed)", orc.searches)
	}
	if quota.recorded != 2 {
		t.Errorf("recorded = %d, want one usage per scraped platform", quota.recorded)
	}

	result, err := svc.RunCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second RunCycle: %v", err)
	}
	if orc.searches != 2 {
		t.Errorf("searches = %d, want cached results to skip the sessions", orc.searches)
	}
	if quota.recorded != 2 {
		t.Errorf("recorded = %d, cache hits must be quota-free", quota.recorded)
	}
	if result.JobsFound != 7 {
		t.Errorf("JobsFound = %d, want 7 from cache", result.JobsFound)
	}
}

type fixedAdvisor struct {
	adjust map[string]float64
}

func (a fixedAdvisor) MatchInsight(_ context.Context, job jobs.ScrapedJob, _ jobs.User) (float64, string, error) {
	return a.adjust[job.ID], "skills overlap", nil
}

func TestAdvisorRefinesButNeverDisqualifies(t *testing.T) {
	v := testVault(t)
	store, orc := plusTierFixture(t, v)
	svc := testService(t, store, orc).WithAdvisor(fixedAdvisor{
		adjust: map[string]float64{"li-2": -50, "li-3": 30},
	})

	result, err := svc.RunCycle(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if result.JobsMatched != 3 {
		t.Errorf("JobsMatched = %d, want 3: advisor must not drop an eligible job", result.JobsMatched)
	}
	// li-3 boosted past 100 is clamped; li-2 floored at the threshold.
	wantOrder := []string{"li-3", "li-1", "li-2"}
	for i, id := range wantOrder {
		if orc.applied[i] != id {
			t.Errorf("applied[%d] = %s, want %s", i, orc.applied[i], id)
			break
		}
	}
}

// Package autoapply runs the daily application cycle: check quota, start a
// browser session set, log in, search, score, apply to the best matches,
// and persist the updated counters. The cycle is a sequential state
// machine; per-job failures are recorded and never abort the run.
package autoapply

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"autoapply/internal/core/jobs"
	"autoapply/internal/credentials"
	"autoapply/internal/humanize"
	"autoapply/internal/logger"
	"autoapply/internal/ratelimit"
)

type State string

const (
	StateIdle         State = "idle"
	StateQuotaCheck   State = "quota_check"
	StateInitializing State = "initializing"
	StateLoggingIn    State = "logging_in"
	StateSearching    State = "searching"
	StateScoring      State = "scoring"
	StateApplying     State = "applying"
	StateFinalizing   State = "finalizing"
)

// Orchestrator is the slice of the session orchestrator the cycle needs.
type Orchestrator interface {
	LoginAll(ctx context.Context, creds map[jobs.Platform]jobs.Credentials) map[jobs.Platform]bool
	SearchJobs(ctx context.Context, platform jobs.Platform, params jobs.SearchParams) ([]jobs.ScrapedJob, error)
	AnalyzeJobMatch(job *jobs.ScrapedJob, user jobs.User) float64
	ApplyToJob(ctx context.Context, job jobs.ScrapedJob) jobs.ApplicationResult
	Screenshot(platform jobs.Platform) ([]byte, error)
	Close() error
}

// Quota gates the cycle's platform searches against the user's tier, the
// same limits the tier-scraper surface enforces.
type Quota interface {
	CanSearch(ctx context.Context, userID string, tier ratelimit.Tier) (bool, error)
	RecordUsage(ctx context.Context, userID string, op ratelimit.Operation) error
}

// SearchCache is the shared scraper cache; cycle searches read it first
// and fill it after a real scrape.
type SearchCache interface {
	Get(platform, operation string, params interface{}) (interface{}, bool)
	Set(platform, operation string, params, value interface{}, ttl time.Duration)
}

// Factory opens a fresh session set for one cycle.
type Factory func(ctx context.Context, headless bool) (Orchestrator, error)

// Store is the external persistence collaborator.
type Store interface {
	LoadConfig(ctx context.Context, userID string) (*jobs.AutoApplyConfig, error)
	SaveConfig(ctx context.Context, cfg *jobs.AutoApplyConfig) error
	LoadUser(ctx context.Context, userID string) (*jobs.User, error)
	RecordApplication(ctx context.Context, app jobs.Application) error
}

// Advisor optionally refines a heuristic match score. Advisory only: it can
// raise or annotate a score but never disqualifies an already-eligible job.
type Advisor interface {
	MatchInsight(ctx context.Context, job jobs.ScrapedJob, user jobs.User) (adjustment float64, rationale string, err error)
}

// ArtifactStore persists apply-confirmation screenshots.
type ArtifactStore interface {
	SaveConfirmation(ctx context.Context, userID, jobID string, png []byte) (string, error)
}

// CycleResult is the summary returned when a cycle ends, for any reason.
type CycleResult struct {
	Success       bool                     `json:"success"`
	Message       string                   `json:"message,omitempty"`
	JobsFound     int                      `json:"jobs_found"`
	JobsMatched   int                      `json:"jobs_matched"`
	Applications  []jobs.ApplicationResult `json:"applications"`
	AppliedCount  int                      `json:"applied_count"`
	FailedCount   int                      `json:"failed_count"`
	TodayCount    int                      `json:"today_application_count"`
	DailyLimit    int                      `json:"daily_limit"`
	LoginOutcomes map[jobs.Platform]bool   `json:"login_outcomes,omitempty"`
}

// CycleStatus is what the status endpoint reports. It keeps the last known
// counters even after an errored run.
type CycleStatus struct {
	Running    bool         `json:"running"`
	State      State        `json:"state"`
	UserID     string       `json:"user_id,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	LastResult *CycleResult `json:"last_result,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
}

type Service struct {
	store       Store
	vault       *credentials.Vault
	newOrc      Factory
	advisor     Advisor
	artifacts   ArtifactStore
	quota       Quota
	searchCache SearchCache
	searchTTL   time.Duration
	sim         *humanize.Simulator
	log         *logger.Logger

	mu     sync.Mutex
	status CycleStatus
	cancel context.CancelFunc

	now           func() time.Time
	interApplyMin time.Duration
	interApplyMax time.Duration
}

func New(store Store, vault *credentials.Vault, factory Factory, sim *humanize.Simulator) *Service {
	return &Service{
		store:         store,
		vault:         vault,
		newOrc:        factory,
		sim:           sim,
		log:           logger.New("AutoApply"),
		status:        CycleStatus{State: StateIdle},
		now:           time.Now,
		interApplyMin: 5 * time.Second,
		interApplyMax: 10 * time.Second,
	}
}

// WithAdvisor attaches the optional LLM insight service.
func (s *Service) WithAdvisor(a Advisor) *Service { s.advisor = a; return s }

// WithArtifacts attaches the optional confirmation-screenshot store.
func (s *Service) WithArtifacts(a ArtifactStore) *Service { s.artifacts = a; return s }

// WithQuota makes cycle searches consume tier search quota.
func (s *Service) WithQuota(q Quota) *Service { s.quota = q; return s }

// WithSearchCache routes cycle searches through the shared scraper cache.
func (s *Service) WithSearchCache(c SearchCache, ttl time.Duration) *Service {
	s.searchCache = c
	s.searchTTL = ttl
	return s
}

func (s *Service) setState(state State) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

// Start launches a cycle for the user in the background. One cycle at a
// time per engine instance.
func (s *Service) Start(userID string) error {
	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		return fmt.Errorf("a cycle is already running for user %s", s.status.UserID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	started := s.now()
	s.status = CycleStatus{
		Running:    true,
		State:      StateQuotaCheck,
		UserID:     userID,
		StartedAt:  &started,
		LastResult: s.status.LastResult,
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		result, err := s.RunCycle(ctx, userID)
		finished := s.now()
		s.mu.Lock()
		s.status.Running = false
		s.status.State = StateIdle
		s.status.FinishedAt = &finished
		if result != nil {
			s.status.LastResult = result
		}
		if err != nil {
			s.status.LastError = err.Error()
		} else {
			s.status.LastError = ""
		}
		s.cancel = nil
		s.mu.Unlock()
	}()
	return nil
}

// Stop cancels the running cycle. An in-flight application completes; the
// cancellation lands at the next inter-apply checkpoint.
func (s *Service) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Running || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Service) Status() CycleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RunCycle executes one full cycle synchronously.
func (s *Service) RunCycle(ctx context.Context, userID string) (*CycleResult, error) {
	s.setState(StateQuotaCheck)
	cfg, err := s.store.LoadConfig(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load auto-apply config: %w", err)
	}
	user, err := s.store.LoadUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	today := s.now().Format("2006-01-02")
	if cfg.LastRunDate != today {
		cfg.TodayApplicationCount = 0
		cfg.LastRunDate = today
	}
	result := &CycleResult{
		TodayCount: cfg.TodayApplicationCount,
		DailyLimit: cfg.MaxApplicationsPerDay,
	}
	if cfg.TodayApplicationCount >= cfg.MaxApplicationsPerDay {
		result.Message = "Daily limit reached"
		s.log.LogInfof("user %s already at daily limit (%d)", userID, cfg.MaxApplicationsPerDay)
		return result, s.store.SaveConfig(ctx, cfg)
	}

	s.setState(StateInitializing)
	orc, err := s.newOrc(ctx, cfg.Headless)
	if err != nil {
		return result, fmt.Errorf("start session set: %w", err)
	}
	defer func() {
		s.setState(StateFinalizing)
		if closeErr := orc.Close(); closeErr != nil {
			s.log.LogError("closing session set", closeErr)
		}
		if saveErr := s.store.SaveConfig(context.Background(), cfg); saveErr != nil {
			s.log.LogError("persisting counters", saveErr)
		}
	}()

	s.setState(StateLoggingIn)
	creds, err := s.decryptCredentials(cfg)
	if err != nil {
		return result, err
	}
	logins := orc.LoginAll(ctx, creds)
	result.LoginOutcomes = logins
	anyLogin := false
	for p, ok := range logins {
		if ok {
			anyLogin = true
		} else {
			s.log.LogWarnf("login to %s failed, platform skipped this cycle", p)
		}
	}
	if !anyLogin {
		result.Message = "No platform login succeeded"
		return result, nil
	}

	s.setState(StateSearching)
	found := s.searchAll(ctx, orc, cfg, logins)
	result.JobsFound = len(found)

	s.setState(StateScoring)
	matched := s.scoreAndFilter(ctx, orc, found, *user, cfg.MatchThreshold)
	result.JobsMatched = len(matched)

	s.setState(StateApplying)
	s.applyRun(ctx, orc, cfg, matched, result)

	result.Success = true
	result.TodayCount = cfg.TodayApplicationCount
	return result, nil
}

func (s *Service) decryptCredentials(cfg *jobs.AutoApplyConfig) (map[jobs.Platform]jobs.Credentials, error) {
	creds := make(map[jobs.Platform]jobs.Credentials, len(cfg.Credentials))
	for platform, c := range cfg.Credentials {
		password, err := s.vault.Decrypt(c.Password)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s credentials: %w", platform, err)
		}
		creds[platform] = jobs.Credentials{Email: c.Email, Password: password}
	}
	return creds, nil
}

// searchAll runs the cycle's search on every logged-in platform, one at a
// time on the live sessions. Each platform search passes the tier limiter
// first and the shared cache second; only a real scrape consumes quota and
// fills the cache. A platform failing or being denied is skipped, never
// fatal.
func (s *Service) searchAll(ctx context.Context, orc Orchestrator, cfg *jobs.AutoApplyConfig, logins map[jobs.Platform]bool) []jobs.ScrapedJob {
	tier := ratelimit.ParseTier(cfg.Tier)
	var merged []jobs.ScrapedJob
	for _, platform := range jobs.KnownPlatforms() {
		if !logins[platform] {
			continue
		}
		if s.quota != nil {
			ok, err := s.quota.CanSearch(ctx, cfg.UserID, tier)
			if err != nil {
				s.log.LogWarnf("quota check for %s: %v", cfg.UserID, err)
				continue
			}
			if !ok {
				s.log.LogWarnf("search quota exhausted for %s, skipping %s", cfg.UserID, platform)
				continue
			}
		}
		if s.searchCache != nil {
			if cached, hit := s.searchCache.Get(string(platform), "search", cfg.Search); hit {
				if found, ok := cached.([]jobs.ScrapedJob); ok {
					merged = append(merged, found...)
					continue
				}
			}
		}
		found, err := orc.SearchJobs(ctx, platform, cfg.Search)
		if err != nil {
			s.log.LogWarnf("search on %s failed: %v", platform, err)
			continue
		}
		if s.quota != nil {
			if err := s.quota.RecordUsage(ctx, cfg.UserID, ratelimit.OpSearch); err != nil {
				s.log.LogWarnf("recording search usage for %s: %v", cfg.UserID, err)
			}
		}
		if s.searchCache != nil {
			s.searchCache.Set(string(platform), "search", cfg.Search, found, s.searchTTL)
		}
		merged = append(merged, found...)
	}
	return merged
}

// scoreAndFilter attaches a match score to every job and keeps those at or
// above the threshold, best first.
func (s *Service) scoreAndFilter(ctx context.Context, orc Orchestrator, found []jobs.ScrapedJob, user jobs.User, threshold float64) []jobs.ScrapedJob {
	var matched []jobs.ScrapedJob
	for i := range found {
		job := found[i]
		score := orc.AnalyzeJobMatch(&job, user)
		if score < threshold {
			continue
		}
		if s.advisor != nil {
			if adj, rationale, err := s.advisor.MatchInsight(ctx, job, user); err == nil {
				refined := score + adj
				if refined < threshold {
					refined = threshold
				}
				if refined > 100 {
					refined = 100
				}
				score = refined
				s.log.LogDebugf("insight for %s: %+.1f (%s)", job.ID, adj, rationale)
			}
		}
		job.MatchScore = &score
		matched = append(matched, job)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return *matched[i].MatchScore > *matched[j].MatchScore
	})
	return matched
}

// applyRun submits applications sequentially until the daily cap, the
// matched list, or the context runs out. Checkpoints between applies are
// the only place cancellation is honored.
func (s *Service) applyRun(ctx context.Context, orc Orchestrator, cfg *jobs.AutoApplyConfig, matched []jobs.ScrapedJob, result *CycleResult) {
	remaining := cfg.MaxApplicationsPerDay - cfg.TodayApplicationCount
	if remaining > len(matched) {
		remaining = len(matched)
	}

	for i := 0; i < remaining; i++ {
		if ctx.Err() != nil {
			s.log.LogInfo("cycle cancelled, stopping before next application")
			return
		}
		job := matched[i]
		appResult := orc.ApplyToJob(ctx, job)
		result.Applications = append(result.Applications, appResult)

		if appResult.Success {
			cfg.TodayApplicationCount++
			result.AppliedCount++
			s.recordApplication(ctx, cfg.UserID, job, appResult)
			s.saveConfirmation(ctx, orc, cfg.UserID, job)
		} else {
			result.FailedCount++
			s.log.LogWarnf("application to %s on %s failed: %s", job.ID, job.Platform, appResult.Error)
		}

		if i < remaining-1 {
			if err := s.sim.Sleep(ctx, s.sim.Between(s.interApplyMin, s.interApplyMax)); err != nil {
				return
			}
		}
	}
}

func (s *Service) recordApplication(ctx context.Context, userID string, job jobs.ScrapedJob, res jobs.ApplicationResult) {
	score := 0.0
	if job.MatchScore != nil {
		score = *job.MatchScore
	}
	app := jobs.Application{
		UserID:                 userID,
		JobID:                  job.ID,
		Platform:               job.Platform,
		Status:                 "pending",
		Source:                 "auto_apply",
		ExternalApplicationID:  res.ApplicationID,
		ExternalApplicationURL: res.ApplicationURL,
		MatchScore:             score,
	}
	if err := s.store.RecordApplication(ctx, app); err != nil {
		s.log.LogError("recording application", err)
	}
}

func (s *Service) saveConfirmation(ctx context.Context, orc Orchestrator, userID string, job jobs.ScrapedJob) {
	if s.artifacts == nil {
		return
	}
	png, err := orc.Screenshot(job.Platform)
	if err != nil {
		s.log.LogWarnf("confirmation screenshot for %s: %v", job.ID, err)
		return
	}
	if url, err := s.artifacts.SaveConfirmation(ctx, userID, job.ID, png); err != nil {
		s.log.LogWarnf("storing confirmation for %s: %v", job.ID, err)
	} else {
		s.log.LogDebugf("confirmation for %s stored at %s", job.ID, url)
	}
}

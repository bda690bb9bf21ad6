// Package ratelimit enforces per-user daily and monthly scrape quotas
// scaled by subscription tier. Counters live behind a Store so production
// uses Redis while tests run in memory; keys embed the local day/month, so
// a new day simply reads a fresh (zero) counter, so no reset job is needed.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autoapply/internal/config"
	"autoapply/internal/logger"
)

type Tier string

const (
	TierBasic   Tier = "basic"
	TierPlus    Tier = "plus"
	TierPremium Tier = "premium"
)

func ParseTier(s string) Tier {
	switch strings.ToLower(s) {
	case "plus":
		return TierPlus
	case "premium":
		return TierPremium
	default:
		return TierBasic
	}
}

type Operation string

const (
	OpSearch     Operation = "search"
	OpJobDetails Operation = "job_details"
)

// Store holds usage counters. Incr must be atomic per key.
type Store interface {
	Incr(ctx context.Context, key string, expiry time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
}

type Service struct {
	store Store
	tiers map[string]config.TierQuota
	log   *logger.Logger
	now   func() time.Time
}

func New(store Store, tiers map[string]config.TierQuota) *Service {
	return &Service{store: store, tiers: tiers, log: logger.New("TieredLimiter"), now: time.Now}
}

func (s *Service) quota(tier Tier) config.TierQuota {
	if q, ok := s.tiers[string(tier)]; ok {
		return q
	}
	s.log.LogWarnf("unknown tier %q, applying basic limits", tier)
	return s.tiers[string(TierBasic)]
}

func (s *Service) dayKey(userID string, op Operation) string {
	return fmt.Sprintf("usage:%s:%s:day:%s", userID, op, s.now().Format("2006-01-02"))
}

func (s *Service) monthKey(userID string, op Operation) string {
	return fmt.Sprintf("usage:%s:%s:month:%s", userID, op, s.now().Format("2006-01"))
}

func (s *Service) allowed(ctx context.Context, userID string, tier Tier, op Operation, dayLimit, monthLimit int) (bool, error) {
	dayUsed, err := s.store.Get(ctx, s.dayKey(userID, op))
	if err != nil {
		return false, fmt.Errorf("read daily counter: %w", err)
	}
	if dayUsed >= int64(dayLimit) {
		return false, nil
	}
	monthUsed, err := s.store.Get(ctx, s.monthKey(userID, op))
	if err != nil {
		return false, fmt.Errorf("read monthly counter: %w", err)
	}
	return monthUsed < int64(monthLimit), nil
}

// CanSearch reports whether the user may run another platform search
// today. It never consumes quota.
func (s *Service) CanSearch(ctx context.Context, userID string, tier Tier) (bool, error) {
	q := s.quota(tier)
	return s.allowed(ctx, userID, tier, OpSearch, q.SearchesPerDay, q.SearchesPerMonth)
}

// CanFetchJobDetails reports whether the user may fetch another job-detail
// page today. It never consumes quota.
func (s *Service) CanFetchJobDetails(ctx context.Context, userID string, tier Tier) (bool, error) {
	q := s.quota(tier)
	return s.allowed(ctx, userID, tier, OpJobDetails, q.JobDetailsPerDay, q.JobDetailsPerMonth)
}

// RecordUsage consumes one unit of quota. Callers invoke it only after the
// gated operation actually executed, so denied requests never count.
func (s *Service) RecordUsage(ctx context.Context, userID string, op Operation) error {
	if _, err := s.store.Incr(ctx, s.dayKey(userID, op), 48*time.Hour); err != nil {
		return fmt.Errorf("increment daily counter: %w", err)
	}
	if _, err := s.store.Incr(ctx, s.monthKey(userID, op), 40*24*time.Hour); err != nil {
		return fmt.Errorf("increment monthly counter: %w", err)
	}
	return nil
}

type UsageStats struct {
	Tier         Tier      `json:"tier"`
	DailyLimit   int       `json:"daily_limit"`
	DailyUsed    int64     `json:"daily_used"`
	MonthlyLimit int       `json:"monthly_limit"`
	MonthlyUsed  int64     `json:"monthly_used"`
	ResetDate    time.Time `json:"reset_date"`
}

// Stats reports search usage for the user. ResetDate is the next local
// midnight, when the daily counter rolls over.
func (s *Service) Stats(ctx context.Context, userID string, tier Tier) (UsageStats, error) {
	q := s.quota(tier)
	dayUsed, err := s.store.Get(ctx, s.dayKey(userID, OpSearch))
	if err != nil {
		return UsageStats{}, err
	}
	monthUsed, err := s.store.Get(ctx, s.monthKey(userID, OpSearch))
	if err != nil {
		return UsageStats{}, err
	}

	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return UsageStats{
		Tier:         tier,
		DailyLimit:   q.SearchesPerDay,
		DailyUsed:    dayUsed,
		MonthlyLimit: q.SearchesPerMonth,
		MonthlyUsed:  monthUsed,
		ResetDate:    midnight,
	}, nil
}

// Package proxy maintains the pool of outbound proxies used by platform
// scrapers. Leases are exclusive: a proxy handed to one browser context is
// invisible to others until released. Repeated consecutive failures ban a
// proxy for a cooldown window instead of dropping it permanently.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"autoapply/internal/config"
	"autoapply/internal/logger"
)

type Proxy struct {
	ID          string `json:"id"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"-"`
	Password    string `json:"-"`
	Country     string `json:"country,omitempty"`
	Residential bool   `json:"residential"`
	Provider    string `json:"provider,omitempty"`

	leased              bool
	consecutiveFailures int
	totalRequests       int64
	totalFailures       int64
	bannedUntil         time.Time
	lastUsedAt          time.Time
}

// URL renders the proxy as a scheme URL usable by both net/http transports
// and playwright's proxy option.
func (p *Proxy) URL() string {
	if p.Username != "" {
		return fmt.Sprintf("http://%s:%s@%s:%d", url.QueryEscape(p.Username), url.QueryEscape(p.Password), p.Host, p.Port)
	}
	return fmt.Sprintf("http://%s:%d", p.Host, p.Port)
}

func (p *Proxy) failureRate() float64 {
	if p.totalRequests == 0 {
		return 0
	}
	return float64(p.totalFailures) / float64(p.totalRequests)
}

// Criteria narrows proxy selection. Zero values match anything.
type Criteria struct {
	Country     string
	Residential *bool
	Provider    string
}

type Service struct {
	mu      sync.Mutex
	proxies map[string]*Proxy

	failureThreshold int
	banCooldown      time.Duration
	feeds            []string
	seeds            []config.ProxySeed

	fetchFeed func(ctx context.Context, feedURL string) ([]config.ProxySeed, error)
	probe     func(ctx context.Context, p *Proxy) error
	log       *logger.Logger
	now       func() time.Time
}

func New(cfg *config.Config) *Service {
	s := &Service{
		proxies:          make(map[string]*Proxy),
		failureThreshold: cfg.Settings.Proxy.FailureThreshold,
		banCooldown:      time.Duration(cfg.Settings.Proxy.BanCooldownMinutes) * time.Minute,
		feeds:            cfg.Settings.Proxy.Feeds,
		seeds:            cfg.Settings.Proxy.Seeds,
		fetchFeed:        fetchFeed,
		probe:            probe,
		log:              logger.New("ProxyPool"),
		now:              time.Now,
	}
	s.addSeeds(cfg.Settings.Proxy.Seeds)
	return s
}

func proxyID(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

func (s *Service) addSeeds(seeds []config.ProxySeed) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, seed := range seeds {
		if seed.Host == "" || seed.Port <= 0 {
			continue
		}
		id := proxyID(seed.Host, seed.Port)
		if _, exists := s.proxies[id]; exists {
			continue
		}
		s.proxies[id] = &Proxy{
			ID:          id,
			Host:        seed.Host,
			Port:        seed.Port,
			Username:    seed.Username,
			Password:    seed.Password,
			Country:     seed.Country,
			Residential: seed.Residential,
			Provider:    seed.Provider,
		}
		added++
	}
	return added
}

func (c Criteria) matches(p *Proxy) bool {
	if c.Country != "" && p.Country != c.Country {
		return false
	}
	if c.Residential != nil && p.Residential != *c.Residential {
		return false
	}
	if c.Provider != "" && p.Provider != c.Provider {
		return false
	}
	return true
}

// Lease picks the healthiest available proxy matching the criteria and
// marks it leased. Returns nil when none is available; callers then fall
// back to a direct connection.
func (s *Service) Lease(criteria Criteria) *Proxy {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *Proxy
	for _, p := range s.proxies {
		if p.leased || now.Before(p.bannedUntil) || !criteria.matches(p) {
			continue
		}
		if best == nil || p.failureRate() < best.failureRate() {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	best.leased = true
	best.lastUsedAt = now
	copy := *best
	return &copy
}

// Release returns a leased proxy to the pool.
func (s *Service) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.proxies[id]; ok {
		p.leased = false
	}
}

// ReportOutcome records the result of a request made through the proxy.
// Hitting the consecutive-failure threshold bans it for the cooldown.
func (s *Service) ReportOutcome(id string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proxies[id]
	if !ok {
		return
	}
	p.totalRequests++
	if success {
		p.consecutiveFailures = 0
		return
	}
	p.totalFailures++
	p.consecutiveFailures++
	if p.consecutiveFailures >= s.failureThreshold {
		p.bannedUntil = s.now().Add(s.banCooldown)
		p.consecutiveFailures = 0
		p.leased = false
		s.log.LogWarnf("proxy %s banned until %s after repeated failures", id, p.bannedUntil.Format(time.RFC3339))
	}
}

// Refresh re-reads the configured seeds and scrapes each feed URL for new
// proxies. Existing proxies keep their stats and ban state.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	added := s.addSeeds(s.seeds)
	var firstErr error
	for _, feed := range s.feeds {
		seeds, err := s.fetchFeed(ctx, feed)
		if err != nil {
			s.log.LogWarnf("proxy feed %s: %v", feed, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		added += s.addSeeds(seeds)
	}
	s.log.LogInfof("proxy refresh added %d proxies (pool size %d)", added, len(s.snapshot()))
	return added, firstErr
}

// HealthCheck probes every idle proxy concurrently and removes the dead
// ones from the pool. Leased proxies are skipped; live traffic already
// reports their outcomes. A removed proxy can re-enter via Refresh once
// its seed or feed still lists it.
func (s *Service) HealthCheck(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(10)
	var mu sync.Mutex
	var dead []string
	for _, p := range s.snapshot() {
		if p.leased || s.now().Before(p.bannedUntil) {
			continue
		}
		p := p
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := s.probe(probeCtx, p); err != nil {
				mu.Lock()
				dead = append(dead, p.ID)
				mu.Unlock()
				return nil
			}
			s.ReportOutcome(p.ID, true)
			return nil
		})
	}
	_ = g.Wait()
	if len(dead) > 0 {
		s.remove(dead)
	}
}

func (s *Service) remove(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.proxies, id)
	}
	s.log.LogWarnf("removed %d dead proxies (pool size %d)", len(ids), len(s.proxies))
}

func (s *Service) snapshot() []*Proxy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Proxy, 0, len(s.proxies))
	for _, p := range s.proxies {
		copy := *p
		out = append(out, &copy)
	}
	return out
}

type PoolStats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	Leased    int `json:"leased"`
	Banned    int `json:"banned"`
}

func (s *Service) Stats() PoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := PoolStats{Total: len(s.proxies)}
	for _, p := range s.proxies {
		switch {
		case now.Before(p.bannedUntil):
			stats.Banned++
		case p.leased:
			stats.Leased++
		default:
			stats.Available++
		}
	}
	return stats
}

func probe(ctx context.Context, p *Proxy) error {
	proxyURL, err := url.Parse(p.URL())
	if err != nil {
		return err
	}
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://httpbin.org/ip", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("probe returned %d", resp.StatusCode)
	}
	return nil
}

// Package humanize injects randomized, human-shaped timing and input
// patterns into browser automation so sessions are harder to distinguish
// from real users. It holds no state beyond its RNG; the only side effect
// is wall-clock time and the page interactions it is asked to perform.
package humanize

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"autoapply/internal/config"
)

type Action string

const (
	ActionNavigation Action = "navigation"
	ActionClick      Action = "click"
	ActionTyping     Action = "typing"
	ActionThinking   Action = "thinking"
	ActionReading    Action = "reading"
)

var defaultBounds = map[Action]config.DelayRange{
	ActionNavigation: {MinMs: 1000, MaxMs: 3000},
	ActionClick:      {MinMs: 300, MaxMs: 1500},
	ActionTyping:     {MinMs: 50, MaxMs: 200},
	ActionThinking:   {MinMs: 1000, MaxMs: 5000},
	ActionReading:    {MinMs: 2000, MaxMs: 10000},
}

type Simulator struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	bounds map[Action]config.DelayRange
}

// New builds a simulator; bounds override the per-action defaults for any
// action they name.
func New(bounds map[string]config.DelayRange) *Simulator {
	merged := make(map[Action]config.DelayRange, len(defaultBounds))
	for a, r := range defaultBounds {
		merged[a] = r
	}
	for name, r := range bounds {
		if r.MaxMs >= r.MinMs && r.MinMs >= 0 {
			merged[Action(name)] = r
		}
	}
	return &Simulator{
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		bounds: merged,
	}
}

// Duration draws a randomized interval for the given action type.
func (s *Simulator) Duration(action Action) time.Duration {
	r, ok := s.bounds[action]
	if !ok {
		r = defaultBounds[ActionThinking]
	}
	s.mu.Lock()
	ms := r.MinMs
	if span := r.MaxMs - r.MinMs; span > 0 {
		ms += s.rnd.Intn(span + 1)
	}
	s.mu.Unlock()
	return time.Duration(ms) * time.Millisecond
}

// Delay sleeps for an action-typed randomized interval, returning early if
// the context is cancelled.
func (s *Simulator) Delay(ctx context.Context, action Action) error {
	return s.Sleep(ctx, s.Duration(action))
}

// Sleep is Delay with an explicit duration, for callers that draw their
// own intervals (e.g. the 5-10s gap between job applications).
func (s *Simulator) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Between draws a duration uniformly from [min, max].
func (s *Simulator) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	s.mu.Lock()
	d := min + time.Duration(s.rnd.Int63n(int64(max-min)+1))
	s.mu.Unlock()
	return d
}

// TypeLike fills a field one keystroke at a time with per-character jitter.
func (s *Simulator) TypeLike(ctx context.Context, page playwright.Page, selector, text string) error {
	locator := page.Locator(selector)
	if err := locator.Click(); err != nil {
		return err
	}
	for _, r := range text {
		if err := page.Keyboard().Type(string(r)); err != nil {
			return err
		}
		if err := s.Delay(ctx, ActionTyping); err != nil {
			return err
		}
	}
	return nil
}

// ClickLike moves the mouse toward the target in discrete steps and clicks
// at a slightly perturbed coordinate inside the element.
func (s *Simulator) ClickLike(ctx context.Context, page playwright.Page, selector string) error {
	locator := page.Locator(selector)
	box, err := locator.BoundingBox()
	if err != nil || box == nil {
		// Element not measurable; a plain click still resolves visibility.
		return locator.Click()
	}

	s.mu.Lock()
	x := box.X + box.Width/2 + (s.rnd.Float64()-0.5)*box.Width*0.4
	y := box.Y + box.Height/2 + (s.rnd.Float64()-0.5)*box.Height*0.4
	steps := 5 + s.rnd.Intn(11)
	s.mu.Unlock()

	if err := page.Mouse().Move(x, y, playwright.MouseMoveOptions{Steps: playwright.Int(steps)}); err != nil {
		return err
	}
	if err := s.Delay(ctx, ActionClick); err != nil {
		return err
	}
	return page.Mouse().Click(x, y)
}

// ScrollLike breaks a scroll distance into 3-7 randomized wheel steps.
func (s *Simulator) ScrollLike(ctx context.Context, page playwright.Page, distance float64) error {
	s.mu.Lock()
	steps := 3 + s.rnd.Intn(5)
	s.mu.Unlock()

	remaining := distance
	for i := 0; i < steps; i++ {
		var step float64
		if i == steps-1 {
			step = remaining
		} else {
			s.mu.Lock()
			step = remaining / float64(steps-i) * (0.6 + s.rnd.Float64()*0.8)
			s.mu.Unlock()
		}
		remaining -= step
		if err := page.Mouse().Wheel(0, step); err != nil {
			return err
		}
		if err := s.Delay(ctx, ActionClick); err != nil {
			return err
		}
	}
	return nil
}

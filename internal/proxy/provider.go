package proxy

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly"

	"autoapply/internal/config"
)

// Feed lines look like "1.2.3.4:8080", optionally followed by a country
// code ("1.2.3.4:8080 BR"). Anything else is skipped.
var feedLine = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3}){3}):(\d{2,5})(?:\s+([A-Z]{2}))?$`)

func fetchFeed(ctx context.Context, feedURL string) ([]config.ProxySeed, error) {
	var seeds []config.ProxySeed
	var fetchErr error

	c := colly.NewCollector()
	if deadline, ok := ctx.Deadline(); ok {
		c.SetRequestTimeout(time.Until(deadline))
	}
	c.OnResponse(func(r *colly.Response) {
		seeds = parseFeedBody(string(r.Body), feedURL)
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})
	if err := c.Visit(feedURL); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	return seeds, nil
}

func parseFeedBody(body, provider string) []config.ProxySeed {
	var seeds []config.ProxySeed
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		m := feedLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		port, err := strconv.Atoi(m[2])
		if err != nil || port <= 0 || port > 65535 {
			continue
		}
		seeds = append(seeds, config.ProxySeed{
			Host:     m[1],
			Port:     port,
			Country:  m[3],
			Provider: provider,
		})
	}
	return seeds
}

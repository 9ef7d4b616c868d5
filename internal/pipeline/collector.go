package pipeline

import (
	"log/slog"
)

// collector is the only writer of a run's Collection. Workers hand results
// over through in.
type collector struct {
	in       chan FetchResult
	done     chan struct{}
	limits   map[string]int
	seen     map[string]map[string]struct{}
	report   *Report
	total    int
	finished int
	hub      *Hub
	logger   *slog.Logger
}

func newCollector(limits map[string]int, total int, hub *Hub, logger *slog.Logger) *collector {
	return &collector{
		in:     make(chan FetchResult),
		done:   make(chan struct{}),
		limits: limits,
		seen:   make(map[string]map[string]struct{}),
		report: &Report{Collection: NewCollection()},
		total:  total,
		hub:    hub,
		logger: logger,
	}
}

func (c *collector) run() {
	defer close(c.done)
	for res := range c.in {
		c.finished++
		c.report.Attempts += res.Attempts
		ok := c.accept(res)
		if c.hub != nil {
			c.hub.Publish(Progress{
				Category: res.Task.Category,
				URL:      res.Task.URL,
				OK:       ok,
				Done:     c.finished,
				Total:    c.total,
			})
		}
	}
}

func (c *collector) accept(res FetchResult) bool {
	cat := res.Task.Category
	if !res.OK() {
		c.report.Failures = append(c.report.Failures, Failure{
			Category:  cat,
			URL:       res.Task.URL,
			Attempts:  res.Attempts,
			Exhausted: res.Exhausted,
			Err:       res.Err,
		})
		return false
	}

	seen, ok := c.seen[cat]
	if !ok {
		seen = make(map[string]struct{})
		c.seen[cat] = seen
	}
	if _, dup := seen[res.Article.Link]; dup {
		c.logger.Debug("duplicate article ignored", "category", cat, "url", res.Article.Link)
		return true
	}
	if limit := c.limits[cat]; limit > 0 && c.report.Collection.Count(cat) >= limit {
		c.logger.Debug("category full, article ignored", "category", cat, "url", res.Article.Link)
		return true
	}
	seen[res.Article.Link] = struct{}{}
	c.report.Collection.add(cat, *res.Article)
	return true
}

func (c *collector) wait() *Report {
	<-c.done
	return c.report
}

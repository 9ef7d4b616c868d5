package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Coordinator drains a fixed task list with a bounded worker pool and
// gathers the results through a single collector goroutine.
type Coordinator struct {
	getter  Getter
	parser  ArticleParser
	retrier *Retrier
	workers int
	hub     *Hub
	logger  *slog.Logger
}

func NewCoordinator(g Getter, p ArticleParser, r *Retrier, workers int, logger *slog.Logger) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{
		getter:  g,
		parser:  p,
		retrier: r,
		workers: workers,
		logger:  orDiscard(logger).With("component", "coordinator"),
	}
}

// WithHub publishes a Progress event per finished task to h.
func (c *Coordinator) WithHub(h *Hub) *Coordinator {
	c.hub = h
	return c
}

// Run attempts every task at least once and blocks until all of them are
// terminal. limits caps the number of articles kept per category; a missing
// or zero entry means no cap.
func (c *Coordinator) Run(ctx context.Context, tasks []FetchTask, limits map[string]int) *Report {
	queue := make(chan FetchTask, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	col := newCollector(limits, len(tasks), c.hub, c.logger)
	go col.run()

	var g errgroup.Group
	for i := 0; i < c.workers; i++ {
		id := i + 1
		g.Go(func() error {
			c.work(ctx, id, queue, col.in)
			return nil
		})
	}
	_ = g.Wait()
	close(col.in)

	return col.wait()
}

func (c *Coordinator) work(ctx context.Context, id int, queue <-chan FetchTask, out chan<- FetchResult) {
	for task := range queue {
		out <- c.process(ctx, id, task)
	}
}

func (c *Coordinator) process(ctx context.Context, worker int, task FetchTask) FetchResult {
	var article Article
	outcome, err := c.retrier.Do(ctx, task.URL, func(ctx context.Context) error {
		body, err := c.getter.Get(ctx, task.URL)
		if err != nil {
			return err
		}
		a, err := c.parser.Parse(body, task.URL)
		if err != nil {
			return err
		}
		article = a
		return nil
	})

	res := FetchResult{Task: task, Attempts: outcome.Attempts, Exhausted: outcome.Exhausted, Err: err}
	if err != nil {
		c.logger.Error("task abandoned", "worker", worker, "category", task.Category, "url", task.URL,
			"attempts", outcome.Attempts, "max_retries", c.retrier.MaxRetries(), "exhausted", outcome.Exhausted, "error", err)
		return res
	}
	if outcome.Retries() > 0 {
		c.logger.Info("fetched after retries", "worker", worker, "url", task.URL, "retries", outcome.Retries())
	}
	res.Article = &article
	return res
}

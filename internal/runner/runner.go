// Package runner performs one complete scrape: listing resolution, fetching,
// word analysis, output and the optional archive.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"NewsCrawler/internal/analysis"
	"NewsCrawler/internal/config"
	"NewsCrawler/internal/db"
	"NewsCrawler/internal/limiter"
	"NewsCrawler/internal/output"
	"NewsCrawler/internal/pipeline"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoConnectivity means no category could resolve a single listing page.
var ErrNoConnectivity = errors.New("site unreachable: no category listing could be fetched")

// Lister resolves a category into article URLs.
type Lister interface {
	Resolve(ctx context.Context, category string, count int) ([]string, error)
}

// Archive is the optional persistent store of a run.
type Archive interface {
	pipeline.ArchiveStore
	PendingFailures(ctx context.Context, categories []string) ([]db.Failure, error)
}

// Deps are the collaborators of a Runner. Nil Getter and Lister are built
// from the configuration; a nil Archive disables archiving.
type Deps struct {
	Getter  pipeline.Getter
	Lister  Lister
	Archive Archive
	Hub     *pipeline.Hub
	RunID   string
}

type Runner struct {
	cfg     *config.Config
	lister  Lister
	coord   *pipeline.Coordinator
	writer  *output.Writer
	archive Archive
	hub     *pipeline.Hub
	runID   string
	logger  *slog.Logger
}

// New wires a run from cfg. It fails only if the HTTP client or the
// listing resolver cannot be built. An empty Deps.RunID gets a fresh UUID.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if deps.RunID == "" {
		deps.RunID = uuid.NewString()
	}
	logger = logger.With("run_id", deps.RunID)

	getter := deps.Getter
	if getter == nil {
		client, err := pipeline.NewClient(pipeline.ClientConfig{
			Timeout:         cfg.Timeout(),
			UserAgent:       cfg.HTTP.UserAgent,
			Proxy:           cfg.HTTP.Proxy,
			MaxConnsPerHost: cfg.Workers,
		}, limiter.NewDomainLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst), logger)
		if err != nil {
			return nil, fmt.Errorf("create http client: %w", err)
		}
		getter = client
	}

	retrier := pipeline.NewRetrier(cfg.MaxRetries, limiter.Jitter{Min: cfg.MinDelay(), Max: cfg.MaxDelay()}, logger)

	lister := deps.Lister
	if lister == nil {
		res, err := pipeline.NewResolver(getter, retrier, cfg.Site, logger)
		if err != nil {
			return nil, err
		}
		lister = res
	}

	parser := pipeline.NewParser(cfg.Site.Article, cfg.Location())
	coord := pipeline.NewCoordinator(getter, parser, retrier, cfg.Workers, logger)
	if deps.Hub != nil {
		coord.WithHub(deps.Hub)
	}

	return &Runner{
		cfg:     cfg,
		lister:  lister,
		coord:   coord,
		writer:  output.NewWriter(cfg.OutputDir, cfg.Format, cfg.Headlines, logger),
		archive: deps.Archive,
		hub:     deps.Hub,
		runID:   deps.RunID,
		logger:  logger.With("component", "runner"),
	}, nil
}

// Summary is the per-category outcome shown to the user.
type Summary struct {
	Category   string
	Requested  int
	Obtained   int
	Failed     []string
	ListingErr error
	Path       string
}

// Result is everything a finished run produced.
type Result struct {
	RunID      string
	Report     *pipeline.Report
	TopWords   map[string][]analysis.Entry
	Summaries  []Summary
	Paths      map[string]string
	Archive    pipeline.ArchiveStats
	WriteErr   error
	ArchiveErr error
}

// OK reports whether every category got all it asked for and nothing
// failed along the way.
func (r *Result) OK() bool {
	if r.WriteErr != nil || r.ArchiveErr != nil {
		return false
	}
	for _, s := range r.Summaries {
		if s.ListingErr != nil || len(s.Failed) > 0 || s.Obtained < s.Requested {
			return false
		}
	}
	return true
}

// Run executes one scrape. Per-task, per-category and archive failures are
// reported in the Result; only total connectivity loss is an error.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cats := r.cfg.Categories
	listings, listErrs := r.resolveAll(ctx, cats)

	reachable := 0
	for _, err := range listErrs {
		if err == nil {
			reachable++
		}
	}
	if reachable == 0 && len(cats) > 0 {
		return nil, ErrNoConnectivity
	}

	if r.cfg.RetryFailed && r.archive != nil {
		r.requeue(ctx, cats, listings)
	}

	var tasks []pipeline.FetchTask
	limits := make(map[string]int, len(cats))
	for i, cat := range cats {
		limits[cat] = r.cfg.Headlines
		for _, u := range listings[i] {
			tasks = append(tasks, pipeline.FetchTask{Category: cat, URL: u})
		}
	}
	r.logger.Info("starting fetch", "tasks", len(tasks), "workers", r.cfg.Workers)

	report := r.coord.Run(ctx, tasks, limits)
	if r.hub != nil {
		r.hub.Close()
	}

	res := &Result{RunID: r.runID, Report: report}

	if r.cfg.TopWords {
		res.TopWords = make(map[string][]analysis.Entry, len(cats))
		for _, cat := range cats {
			arts := report.Collection.Articles(cat)
			res.TopWords[cat] = analysis.TopWords(
				analysis.ContentOf(arts, func(a pipeline.Article) []string { return a.Content }), analysis.TopN)
		}
	}

	res.Paths, res.WriteErr = r.writer.WriteAll(report.Collection, cats, res.TopWords)

	if r.archive != nil {
		res.Archive, res.ArchiveErr = pipeline.NewArchiver(r.archive, r.runID, r.logger).Store(ctx, report)
	}

	for i, cat := range cats {
		s := Summary{
			Category:   cat,
			Requested:  r.cfg.Headlines,
			Obtained:   report.Collection.Count(cat),
			ListingErr: listErrs[i],
			Path:       res.Paths[cat],
		}
		for _, f := range report.FailuresFor(cat) {
			s.Failed = append(s.Failed, f.URL)
		}
		r.logger.Info("category summary", "category", cat, "requested", s.Requested, "obtained", s.Obtained,
			"failed", len(s.Failed), "failed_urls", s.Failed)
		res.Summaries = append(res.Summaries, s)
	}
	return res, nil
}

// resolveAll resolves every category concurrently, bounded by the worker
// count. Results are indexed like cats.
func (r *Runner) resolveAll(ctx context.Context, cats []string) ([][]string, []error) {
	listings := make([][]string, len(cats))
	errs := make([]error, len(cats))

	var g errgroup.Group
	g.SetLimit(max(r.cfg.Workers, 1))
	for i, cat := range cats {
		g.Go(func() error {
			links, err := r.lister.Resolve(ctx, cat, r.cfg.Headlines)
			if err != nil {
				r.logger.Error("listing failed", "category", cat, "error", err)
			}
			listings[i], errs[i] = links, err
			return nil
		})
	}
	_ = g.Wait()
	return listings, errs
}

// requeue puts unresolved failures of earlier runs ahead of the fresh
// listing, keeping each category within its headline count.
func (r *Runner) requeue(ctx context.Context, cats []string, listings [][]string) {
	pending, err := r.archive.PendingFailures(ctx, cats)
	if err != nil {
		r.logger.Warn("could not load failed urls of previous runs", "error", err)
		return
	}
	byCat := make(map[string][]string)
	for _, f := range pending {
		byCat[f.Category] = append(byCat[f.Category], f.URL)
	}
	for i, cat := range cats {
		if len(byCat[cat]) == 0 {
			continue
		}
		merged := make([]string, 0, r.cfg.Headlines)
		seen := make(map[string]struct{})
		for _, u := range append(byCat[cat], listings[i]...) {
			if _, dup := seen[u]; dup || len(merged) >= r.cfg.Headlines {
				continue
			}
			seen[u] = struct{}{}
			merged = append(merged, u)
		}
		r.logger.Info("re-queued failed urls", "category", cat, "count", len(byCat[cat]))
		listings[i] = merged
	}
}

package pipeline

import (
	"context"
	"log/slog"

	"NewsCrawler/internal/db"

	"github.com/hashicorp/go-multierror"
)

// ArchiveStore persists articles and abandoned URLs across runs.
type ArchiveStore interface {
	SaveArticle(ctx context.Context, a *db.Article) (bool, error)
	RecordFailure(ctx context.Context, f db.Failure) error
	ResolveFailure(ctx context.Context, url string) error
}

type ArchiveStats struct {
	Saved      int
	Duplicates int
	Failures   int
}

// Archiver writes a finished Report to an ArchiveStore.
type Archiver struct {
	store  ArchiveStore
	runID  string
	logger *slog.Logger
}

func NewArchiver(store ArchiveStore, runID string, logger *slog.Logger) *Archiver {
	return &Archiver{store: store, runID: runID, logger: orDiscard(logger).With("component", "store")}
}

// Store archives every collected article and every failure. Individual
// write errors are logged and returned together; they never stop the loop.
func (a *Archiver) Store(ctx context.Context, report *Report) (ArchiveStats, error) {
	var (
		stats ArchiveStats
		errs  *multierror.Error
	)
	for _, cat := range report.Collection.Categories() {
		for _, art := range report.Collection.Articles(cat) {
			rec := Enrich(cat, art)
			rec.RunID = a.runID
			inserted, err := a.store.SaveArticle(ctx, rec)
			if err != nil {
				a.logger.Error("failed to save article", "url", art.Link, "error", err)
				errs = multierror.Append(errs, err)
				continue
			}
			if inserted {
				stats.Saved++
			} else {
				stats.Duplicates++
			}
			if err := a.store.ResolveFailure(ctx, art.Link); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	for _, f := range report.Failures {
		rec := db.Failure{
			RunID:     a.runID,
			Category:  f.Category,
			URL:       f.URL,
			Attempts:  f.Attempts,
			Exhausted: f.Exhausted,
		}
		if f.Err != nil {
			rec.Error = f.Err.Error()
		}
		if err := a.store.RecordFailure(ctx, rec); err != nil {
			a.logger.Error("failed to record failure", "url", f.URL, "error", err)
			errs = multierror.Append(errs, err)
			continue
		}
		stats.Failures++
	}
	a.logger.Info("archive updated", "saved", stats.Saved, "duplicates", stats.Duplicates, "failures", stats.Failures)
	return stats, errs.ErrorOrNil()
}

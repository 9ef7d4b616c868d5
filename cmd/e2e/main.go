package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/db"
	"NewsCrawler/internal/logging"
	"NewsCrawler/internal/output"
	"NewsCrawler/internal/runner"
	"NewsCrawler/internal/sitetest"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	dbURL := flag.String("db", "", "optional postgres url; when set the archive is checked too")
	flag.Parse()

	fmt.Println("E2E test started")

	cats := []string{"world", "sports", "science"}
	site := sitetest.New(cats, 12, 5)
	defer site.Close()
	site.FailTimes(site.ArticlePath("world", 2), 2, http.StatusServiceUnavailable)

	outDir, err := os.MkdirTemp("", "newscrawler-e2e-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(outDir)

	cfg := config.Default()
	cfg.Categories = cats
	cfg.Headlines = 5
	cfg.Workers = 4
	cfg.MinDelaySec, cfg.MaxDelaySec = 0, 0.01
	cfg.RateLimit.RPS = -1
	cfg.OutputDir = outDir
	cfg.Site.BaseURL = site.URL()
	cfg.Database.URL = *dbURL
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, closer, err := logging.New(outDir, os.Stderr, false)
	if err != nil {
		log.Fatal(err)
	}
	defer closer.Close()

	ctx := context.Background()
	runID := uuid.NewString()
	deps := runner.Deps{RunID: runID}
	if *dbURL != "" {
		if err := db.RunMigrations(*dbURL); err != nil {
			log.Fatal(err)
		}
		repo, err := db.NewRepository(ctx, *dbURL)
		if err != nil {
			log.Fatal(err)
		}
		defer repo.Close()
		deps.Archive = repo
	}

	r, err := runner.New(cfg, deps, logger)
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	res, err := r.Run(ctx)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	for _, cat := range cats {
		arts, _, err := output.ReadJSON(filepath.Join(outDir, fmt.Sprintf("%s_%d.%s", cat, cfg.Headlines, cfg.Extension())))
		if err != nil {
			log.Fatalf("read %s: %v", cat, err)
		}
		if len(arts) != cfg.Headlines {
			log.Fatalf("%s: got %d articles, want %d", cat, len(arts), cfg.Headlines)
		}
	}
	if !res.OK() {
		log.Fatalf("run reported failures: %+v", res.Summaries)
	}

	if *dbURL != "" {
		conn, err := sql.Open("pgx", *dbURL)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()
		var count int
		if err := conn.QueryRow("SELECT count(*) FROM articles WHERE run_id = $1", runID).Scan(&count); err != nil {
			log.Fatalf("query archive: %v", err)
		}
		log.Printf("archive holds %d articles of this run", count)
	}

	fmt.Printf("E2E passed in %v\n", time.Since(start))
}

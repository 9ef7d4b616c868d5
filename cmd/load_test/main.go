package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/runner"
	"NewsCrawler/internal/sitetest"
)

func main() {
	headlines := flag.Int("headlines", 100, "articles per category")
	delay := flag.Float64("delay", 0.005, "max jitter in seconds")
	flag.Parse()

	cats := config.CategoryNames()
	site := sitetest.New(cats, *headlines, 20)
	defer site.Close()

	for _, workers := range []int{1, 2, 4, 8, 16} {
		outDir, err := os.MkdirTemp("", "newscrawler-load-*")
		if err != nil {
			panic(err)
		}

		cfg := config.Default()
		cfg.Categories = cats
		cfg.Headlines = *headlines
		cfg.Workers = workers
		cfg.MinDelaySec, cfg.MaxDelaySec = 0, *delay
		cfg.RateLimit.RPS = -1
		cfg.OutputDir = outDir
		cfg.Site.BaseURL = site.URL()
		cfg.Site.ListingMode = config.ListingHTML
		cfg.Site.NextSelector = "a.next"
		cfg.Site.MaxPages = *headlines/20 + 1

		r, err := runner.New(cfg, runner.Deps{}, nil)
		if err != nil {
			panic(err)
		}
		start := time.Now()
		res, err := r.Run(context.Background())
		elapsed := time.Since(start)
		os.RemoveAll(outDir)
		if err != nil {
			fmt.Printf("workers=%-2d error: %v\n", workers, err)
			continue
		}

		articles := 0
		for _, s := range res.Summaries {
			articles += s.Obtained
		}
		fmt.Printf("workers=%-2d articles=%d attempts=%d total=%v per article=%v\n",
			workers, articles, res.Report.Attempts, elapsed, elapsed/time.Duration(max(articles, 1)))
	}
}

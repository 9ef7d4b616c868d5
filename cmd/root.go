package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"NewsCrawler/internal/config"
	"NewsCrawler/internal/db"
	"NewsCrawler/internal/logging"
	"NewsCrawler/internal/pipeline"
	"NewsCrawler/internal/runner"
	"NewsCrawler/internal/server"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var version = "dev"

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

type flags struct {
	configPath  string
	headlines   int
	categories  []string
	csv         bool
	workers     int
	outputDir   string
	topWords    bool
	minDelay    float64
	maxDelay    float64
	maxRetries  int
	retryFailed bool
	dbURL       string
	httpAddr    string
	grpcAddr    string
	noProgress  bool
	verbose     bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	def := config.Default()

	root := &cobra.Command{
		Use:           "newscrawler",
		Short:         "Concurrent news scraper",
		Long:          "newscrawler fetches the latest headlines of each category and saves them as JSON or CSV.\n\n" + config.CategoryHelp(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, f)
		},
	}

	fs := root.Flags()
	fs.StringVar(&f.configPath, "config", "", "path to a yaml config file")
	fs.IntVar(&f.headlines, "headlines", def.Headlines, "number of headlines per category")
	fs.StringSliceVar(&f.categories, "categories", def.Categories, "comma separated categories to scrape")
	fs.BoolVar(&f.csv, "csv", false, "save as CSV instead of JSON")
	fs.IntVar(&f.workers, "workers", def.Workers, "number of concurrent workers")
	fs.StringVar(&f.outputDir, "output-dir", def.OutputDir, "directory for output files and logs")
	fs.BoolVar(&f.topWords, "top-words", false, "include the top 10 words of each category")
	fs.Float64Var(&f.minDelay, "min-delay", def.MinDelaySec, "minimum delay between requests in seconds")
	fs.Float64Var(&f.maxDelay, "max-delay", def.MaxDelaySec, "maximum delay between requests in seconds")
	fs.IntVar(&f.maxRetries, "max-retries", def.MaxRetries, "retries per article after the first attempt")
	fs.BoolVar(&f.retryFailed, "retry-failed", false, "re-queue URLs that failed in earlier runs (needs --db-url)")
	fs.StringVar(&f.dbURL, "db-url", "", "postgres URL of the article archive")
	fs.StringVar(&f.httpAddr, "http-addr", "", "serve run status over HTTP on this address")
	fs.StringVar(&f.grpcAddr, "grpc-addr", "", "serve gRPC health on this address")
	fs.BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log debug messages to the console")

	root.AddCommand(&cobra.Command{
		Use:   "categories",
		Short: "List available categories",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.CategoryHelp())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "newscrawler %s\n", version)
		},
	})
	return root
}

// execute runs the CLI and maps the outcome to a process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	switch {
	case err == nil:
		return exitOK
	case config.IsConfigError(err):
		fmt.Fprintf(stderr, "Error: %v\n\n%s", err, config.CategoryHelp())
		return exitConfig
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailed
	}
}

// loadConfig layers defaults, the optional file and explicitly set flags,
// then validates the result.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		if config.IsConfigError(err) {
			return nil, err
		}
		return nil, &config.ConfigError{Err: err}
	}

	set := cmd.Flags().Changed
	if set("headlines") {
		cfg.Headlines = f.headlines
	}
	if set("categories") {
		cfg.Categories = nil
		for _, c := range f.categories {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
				cfg.Categories = append(cfg.Categories, c)
			}
		}
	}
	if f.csv {
		cfg.Format = config.FormatCSV
	}
	if set("workers") {
		cfg.Workers = f.workers
	}
	if set("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if f.topWords {
		cfg.TopWords = true
	}
	if set("min-delay") {
		cfg.MinDelaySec = f.minDelay
	}
	if set("max-delay") {
		cfg.MaxDelaySec = f.maxDelay
	}
	if set("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if f.retryFailed {
		cfg.RetryFailed = true
	}
	if f.dbURL != "" {
		cfg.Database.URL = f.dbURL
	}
	if f.httpAddr != "" {
		cfg.Server.HTTPAddr = f.httpAddr
	}
	if f.grpcAddr != "" {
		cfg.Server.GRPCAddr = f.grpcAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RetryFailed && cfg.Database.URL == "" {
		return nil, &config.ConfigError{Err: errors.New("--retry-failed needs a database url")}
	}
	return cfg, nil
}

func runScrape(cmd *cobra.Command, f *flags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closer, err := logging.New(cfg.OutputDir, cmd.ErrOrStderr(), f.verbose)
	if err != nil {
		return err
	}
	defer closer.Close()

	runID := uuid.NewString()
	logger.Info("starting scrape", "run_id", runID, "categories", cfg.Categories,
		"headlines", cfg.Headlines, "workers", cfg.Workers, "format", cfg.Format)

	var archive runner.Archive
	if cfg.Database.URL != "" {
		if err := db.RunMigrations(cfg.Database.URL); err != nil {
			return err
		}
		repo, err := db.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer repo.Close()
		archive = repo
	}

	hub := pipeline.NewHub(logger)
	defer hub.Close()

	if cfg.Server.HTTPAddr != "" || cfg.Server.GRPCAddr != "" {
		tracker := server.NewTracker(runID, cfg.Categories, cfg.Headlines)
		srv := server.New(tracker, logger)
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := srv.Start(srvCtx, cfg.Server.HTTPAddr, cfg.Server.GRPCAddr); err != nil {
			return err
		}
		events := hub.Subscribe("status")
		go func() {
			tracker.Follow(events)
			srv.Finish()
		}()
	}

	var bar *progress
	if !f.noProgress {
		bar = followProgress(hub.Subscribe("progress"), cmd.ErrOrStderr())
	}

	r, err := runner.New(cfg, runner.Deps{Archive: archive, Hub: hub, RunID: runID}, logger)
	if err != nil {
		return err
	}
	res, err := r.Run(ctx)
	hub.Close()
	bar.Wait()
	if err != nil {
		logger.Error("run aborted", "error", err)
		return err
	}

	printSummary(cmd.OutOrStdout(), res)
	return nil
}

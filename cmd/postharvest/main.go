package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/postharvest/internal/config"
	"github.com/IshaanNene/postharvest/internal/engine"
	"github.com/IshaanNene/postharvest/internal/media"
	"github.com/IshaanNene/postharvest/internal/observability"
	"github.com/IshaanNene/postharvest/internal/render"
	"github.com/IshaanNene/postharvest/internal/storage"
	"github.com/IshaanNene/postharvest/internal/types"
)

var (
	cfgFile     string
	verbose     bool
	outputDir   string
	formats     string
	dateTag     string
	maxScrolls  int
	workers     int
	pause       string
	controlURL  string
	userDataDir string
	headful     bool
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "postharvest",
		Short: "Social feed post and image harvester",
		Long: `postharvest loads the live search feed for each query in a logged-in
browser, scrolls it, extracts every post it sees and downloads the post images.

Records are exported to JSON and CSV (optionally JSONL and MongoDB) and images
are stored under <output>/<query>_<date>/media.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [query...]",
		Short: "Harvest posts for the given queries",
		Long:  "Harvest posts for each query in order. Without arguments the queries from the config file are used.",
		RunE:  runHarvest,
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	cmd.Flags().StringVarP(&formats, "format", "f", "", "comma-separated export formats: json, csv, jsonl")
	cmd.Flags().StringVar(&dateTag, "date-tag", "", "tag used in folder and file names (default MMDD of today)")
	cmd.Flags().IntVarP(&maxScrolls, "scrolls", "s", -1, "maximum scroll iterations per query")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "concurrent image downloads")
	cmd.Flags().StringVar(&pause, "pause", "", "pause between queries, e.g. 10s")
	cmd.Flags().StringVar(&controlURL, "control-url", "", "connect to a running browser instead of launching one")
	cmd.Flags().StringVar(&userDataDir, "user-data-dir", "", "browser profile holding the logged-in session")
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")

	return cmd
}

// runHarvest executes the run command.
func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyCLIOverrides(cfg, args); err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.Harvest.Queries) == 0 {
		return types.ErrNoQueries
	}

	logger := setupLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path)
	}

	tag := cfg.Harvest.RunDateTag(time.Now())
	logger.Info("starting harvest",
		"queries", cfg.Harvest.Queries,
		"max_scrolls", cfg.Harvest.MaxScrolls,
		"workers", cfg.Media.Workers,
		"output", cfg.Harvest.OutputDir,
		"date_tag", tag,
	)

	store, err := storage.New(cfg, tag, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	src, err := render.NewBrowserSource(cfg.Browser, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create browser: %w", err)
	}
	defer src.Close()

	fetcher := media.NewFetcher(cfg.Media, metrics, logger)
	defer fetcher.Close()

	h, err := engine.New(cfg, src, fetcher, metrics, tag, logger)
	if err != nil {
		store.Close()
		return err
	}

	if !verbose {
		bar := progressbar.NewOptions(len(cfg.Harvest.Queries),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(15),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("Harvesting queries"),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
		)
		h.OnQuery = func(r types.QueryReport) {
			bar.Describe(fmt.Sprintf("Harvested %q", r.Query))
			_ = bar.Add(1)
		}
	}

	start := time.Now()
	result, runErr := h.Run(ctx, cfg.Harvest.Queries)
	if runErr != nil && result == nil {
		store.Close()
		return runErr
	}

	// Partial results of an interrupted run are still exported.
	storeErr := store.Store(result.Records)
	if storeErr == nil {
		metrics.PostsStored.Add(int64(len(result.Records)))
	}
	if err := store.Close(); err != nil && storeErr == nil {
		storeErr = err
	}

	printSummary(cfg, tag, result, time.Since(start))

	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		logger.Warn("harvest interrupted, partial results exported")
		return nil
	case runErr != nil:
		return fmt.Errorf("harvest aborted: %w", runErr)
	case storeErr != nil:
		return fmt.Errorf("export: %w", storeErr)
	}
	return nil
}

func printSummary(cfg *config.Config, tag string, result *types.HarvestResult, elapsed time.Duration) {
	t := result.Summary()

	fmt.Printf("\nHarvest complete in %s\n", elapsed.Round(time.Millisecond))
	for _, r := range result.Reports {
		if r.Failed() {
			fmt.Printf("   %-24s failed: %s\n", r.Query, r.Err)
			continue
		}
		fmt.Printf("   %-24s %d posts, %d images (%d skipped), %d scrolls\n",
			r.Query, r.Posts, r.Media, r.MediaSkipped, r.Iterations)
	}
	fmt.Printf("   Queries:   %d run, %d failed\n", t.Queries, t.Failed)
	fmt.Printf("   Posts:     %d extracted, %d skipped\n", t.Posts, t.PostsSkipped)
	fmt.Printf("   Images:    %d saved, %d skipped\n", t.Media, t.MediaSkipped)
	for _, f := range cfg.Storage.Formats {
		fmt.Printf("   Output:    %s\n", storage.OutputPath(cfg.Harvest.OutputDir, cfg.Storage.FilePrefix, tag, f))
	}
}

// loginCmd creates the "login" subcommand.
func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in once in a visible browser and keep the session",
		Long: `Opens the login page in a visible browser that uses the configured profile
directory. Log in, then press Enter. Later runs with the same
browser.user_data_dir start already authenticated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if userDataDir != "" {
				cfg.Browser.UserDataDir = userDataDir
			}
			logger := setupLogger(cfg.Logging)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return render.Login(ctx, cfg.Browser, os.Stdin, logger)
		},
	}
	cmd.Flags().StringVar(&userDataDir, "user-data-dir", "", "browser profile to store the session in")
	return cmd
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("postharvest %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Harvest:\n")
			fmt.Printf("  Queries:           %s\n", strings.Join(cfg.Harvest.Queries, ", "))
			fmt.Printf("  Search URL:        %s\n", cfg.Harvest.SearchURL)
			fmt.Printf("  Max Scrolls:       %d\n", cfg.Harvest.MaxScrolls)
			fmt.Printf("  Settle Delay:      %s\n", cfg.Harvest.SettleDelay)
			fmt.Printf("  Query Pause:       %s\n", cfg.Harvest.QueryPause)
			fmt.Printf("  Output Dir:        %s\n", cfg.Harvest.OutputDir)
			fmt.Printf("\nBrowser:\n")
			fmt.Printf("  Headless:          %v\n", cfg.Browser.Headless)
			fmt.Printf("  Stealth:           %v\n", cfg.Browser.Stealth)
			fmt.Printf("  User Data Dir:     %s\n", cfg.Browser.UserDataDir)
			fmt.Printf("  Control URL:       %s\n", cfg.Browser.ControlURL)
			fmt.Printf("  Load Attempts:     %d\n", cfg.Browser.LoadAttempts)
			fmt.Printf("\nParser:\n")
			fmt.Printf("  Post Selector:     %s\n", cfg.Parser.PostSelector)
			fmt.Printf("  Media Marker:      %s\n", cfg.Parser.MediaMarker)
			fmt.Printf("\nMedia:\n")
			fmt.Printf("  Workers:           %d\n", cfg.Media.Workers)
			fmt.Printf("  Timeout:           %s\n", cfg.Media.Timeout)
			fmt.Printf("  Max Size:          %d bytes\n", cfg.Media.MaxSize)
			fmt.Printf("  Rate Limit:        %g/s\n", cfg.Media.RateLimit)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Formats:           %s\n", strings.Join(cfg.Storage.Formats, ", "))
			fmt.Printf("  File Prefix:       %s\n", cfg.Storage.FilePrefix)
			fmt.Printf("  MongoDB:           %v\n", cfg.Storage.Mongo.URI != "")
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setupLogger creates a structured logger.
func setupLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config, queries []string) error {
	if len(queries) > 0 {
		cfg.Harvest.Queries = queries
	}
	if outputDir != "" {
		cfg.Harvest.OutputDir = outputDir
	}
	if formats != "" {
		var fs []string
		for _, f := range strings.Split(formats, ",") {
			if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
				fs = append(fs, f)
			}
		}
		cfg.Storage.Formats = fs
	}
	if dateTag != "" {
		cfg.Harvest.DateTag = dateTag
	}
	if maxScrolls >= 0 {
		cfg.Harvest.MaxScrolls = maxScrolls
	}
	if workers > 0 {
		cfg.Media.Workers = workers
	}
	if pause != "" {
		d, err := time.ParseDuration(pause)
		if err != nil {
			return fmt.Errorf("invalid --pause: %w", err)
		}
		cfg.Harvest.QueryPause = d
	}
	if controlURL != "" {
		cfg.Browser.ControlURL = controlURL
	}
	if userDataDir != "" {
		cfg.Browser.UserDataDir = userDataDir
	}
	if headful {
		cfg.Browser.Headless = false
	}
	return nil
}

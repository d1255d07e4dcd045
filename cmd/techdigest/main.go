package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/techdigest/internal/archive"
	"github.com/TobiSchelling/techdigest/internal/config"
	"github.com/TobiSchelling/techdigest/internal/database"
	"github.com/TobiSchelling/techdigest/internal/logging"
	"github.com/TobiSchelling/techdigest/internal/pipeline"
	"github.com/TobiSchelling/techdigest/internal/render"
	"github.com/TobiSchelling/techdigest/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "techdigest",
	Short:        "Daily tech news digest",
	Long:         "techdigest collects tech news, forum threads and research papers, summarizes them and renders a daily HTML digest.",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logger = logging.New(levelName("info"))
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger = logging.New(levelName(cfg.Logging.Level))
		if path != "" {
			logger.Debug("loaded config", "path", path)
		}
		return nil
	},
}

func levelName(configured string) string {
	if verbose {
		return "debug"
	}
	return configured
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("techdigest", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/techdigest/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose sources and summarizer tiers. API keys are read from the environment.")
		return nil
	},
}

// --- run command ---

var (
	runDate  string
	dryRun   bool
	noImages bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build a digest: collect -> normalize -> enrich -> summarize -> render -> persist",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := cfg.LoadCredentials()
		if err := cfg.Validate(creds); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var opts []pipeline.Option
		if noImages {
			opts = append(opts, pipeline.WithoutEnrichment())
		}
		if !dryRun {
			if db := openHistory(); db != nil {
				defer db.Close()
				opts = append(opts, pipeline.WithHistory(db))
			}
		}

		pipe, err := pipeline.New(cfg, creds, logger, opts...)
		if err != nil {
			return err
		}

		var result *pipeline.Result
		if dryRun {
			result, err = pipe.DryRun(ctx, runDate)
		} else {
			result, err = pipe.Run(ctx, runDate)
		}
		if result != nil {
			printSteps(result)
		}
		if err != nil {
			return err
		}

		if !dryRun {
			fmt.Printf("\nDigest for %s written to %s\n", result.Date, result.ArchivePath)
			fmt.Println("Run 'techdigest serve' to browse the archive.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "Digest date (YYYY-MM-DD, default today)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Collect and report without summarizing or writing")
	runCmd.Flags().BoolVar(&noImages, "no-images", false, "Skip page lookups for preview images")
}

func printSteps(r *pipeline.Result) {
	for i, step := range r.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(r.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") || port == 0 {
			port = servePort
		}

		var history server.History
		if db := openHistory(); db != nil {
			defer db.Close()
			history = db
		}

		srv, err := server.New(archive.NewStore(cfg.GetArchiveDir()), history, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- status command ---

var (
	statusDate  string
	statusRunID string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run history and archive status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(historyPath(), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if statusRunID != "" {
			r, err := db.GetRun(statusRunID)
			if err != nil {
				return err
			}
			printRunDetail(r)
			return nil
		}
		if statusDate != "" {
			runs, err := db.GetRunsForPeriod(statusDate)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Printf("No runs recorded for %s\n", statusDate)
				return nil
			}
			fmt.Printf("Runs for %s:\n", statusDate)
			for _, r := range runs {
				printRunLine(r)
			}
			return nil
		}

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		entries, err := archive.NewStore(cfg.GetArchiveDir()).List()
		if err != nil {
			return err
		}

		fmt.Printf("Today: %s\n\n", time.Now().Format("2006-01-02"))
		fmt.Println("Archive:")
		fmt.Printf("  Directory: %s\n", cfg.GetArchiveDir())
		fmt.Printf("  Digests: %d\n", len(entries))
		if len(entries) > 0 {
			fmt.Printf("  Latest: %s\n", entries[0].Display)
		}
		fmt.Println("\nRuns:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Days with digests: %d\n", stats.Periods)
		fmt.Printf("  Articles rendered: %d\n", stats.TotalArticles)
		fmt.Printf("  Fallback summaries: %d\n", stats.Fallbacks)

		runs, err := db.GetLatestRuns(5)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			fmt.Println("\nRecent runs:")
		}
		for _, r := range runs {
			printRunLine(r)
		}
		return nil
	},
}

func printRunLine(r database.Run) {
	fmt.Printf("  %s  %s  %3d articles  %s", r.PeriodID, r.StartedAt.Local().Format("15:04"), r.Total(), r.Duration().Round(time.Second))
	if len(r.FailedSources) > 0 {
		fmt.Printf("  failed: %s", strings.Join(r.FailedSources, ", "))
	}
	fmt.Printf("  [%s]\n", r.ID)
}

func printRunDetail(r *database.Run) {
	fmt.Printf("Run %s\n", r.ID)
	fmt.Printf("  Date: %s\n", r.PeriodID)
	fmt.Printf("  Started: %s (%s)\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Duration().Round(time.Second))
	fmt.Printf("  Articles: %d news, %d forum, %d papers\n", r.NewsCount, r.ForumCount, r.PaperCount)
	fmt.Printf("  Summaries: %d source, %d remote, %d local, %d fallback\n", r.TierSource, r.TierRemote, r.TierLocal, r.TierFallback)
	if len(r.FailedSources) > 0 {
		fmt.Printf("  Failed sources: %s\n", strings.Join(r.FailedSources, ", "))
	}
	if r.ArchivePath != "" {
		fmt.Printf("  Digest: %s\n", r.ArchivePath)
	}
}

func init() {
	statusCmd.Flags().StringVar(&statusDate, "date", "", "Only show runs for this digest date (YYYY-MM-DD)")
	statusCmd.Flags().StringVar(&statusRunID, "run", "", "Show the details of one run")
}

// --- list command ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived digests",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := archive.NewStore(cfg.GetArchiveDir()).List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No digests yet. Create one with: techdigest run")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("  %s  %s\n", e.Date, e.Display)
		}
		return nil
	},
}

// --- show command ---

var showCmd = &cobra.Command{
	Use:   "show <date>",
	Short: "Render an archived digest in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := archive.NewStore(cfg.GetArchiveDir())
		md, err := store.ReadMarkdown(args[0])
		if errors.Is(err, archive.ErrNotFound) {
			var doc string
			doc, err = store.Read(args[0])
			if err == nil {
				md, err = render.MarkdownFromHTML(doc)
			}
		}
		if err != nil {
			return err
		}

		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("creating renderer: %w", err)
		}
		out, err := r.Render(md)
		if err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}

func historyPath() string {
	return filepath.Join(cfg.GetDataDir(), database.FileName)
}

// openHistory opens the run history database. Failure is logged and the
// caller continues without history.
func openHistory() *database.DB {
	db, err := database.Open(historyPath(), logger)
	if err != nil {
		logger.Warn("run history unavailable", "path", historyPath(), "error", err)
		return nil
	}
	return db
}

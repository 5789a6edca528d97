package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/TobiSchelling/reviewguard/internal/config"
	"github.com/TobiSchelling/reviewguard/internal/database"
	"github.com/TobiSchelling/reviewguard/internal/export"
	"github.com/TobiSchelling/reviewguard/internal/ingest"
	"github.com/TobiSchelling/reviewguard/internal/pipeline"
	"github.com/TobiSchelling/reviewguard/internal/records"
	"github.com/TobiSchelling/reviewguard/internal/report"
	"github.com/TobiSchelling/reviewguard/internal/server"
	"github.com/TobiSchelling/reviewguard/internal/table"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reviewguard",
	Short:   "Policy and quality classification for location reviews",
	Long:    "reviewguard merges review exports, audits them for spam signals, has an LLM judge rate them and scores the judge against human labels.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return setupLogger("info")
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return eris.Wrap(err, "loading config")
		}
		if err := setupLogger(cfg.Logging.Level); err != nil {
			return err
		}
		if err := config.LoadEnv(path); err != nil {
			return err
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// setupLogger installs the global logger: JSON at the configured level, or a
// console logger at debug level with --verbose.
func setupLogger(level string) error {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return eris.Wrapf(config.ErrInvalid, "unknown log level %q", level)
		}
		zcfg.Level = lvl
	}

	var err error
	logger, err = zcfg.Build()
	if err != nil {
		return eris.Wrap(err, "initializing logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("reviewguard", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/reviewguard/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return eris.Wrap(err, "creating config directory")
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return eris.Wrap(err, "writing config")
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to point at your review exports and pick a judge provider.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and latest run status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return eris.Wrap(err, "getting stats")
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Finished: %d\n", stats.FinishedRuns)
		fmt.Printf("  Reports: %d\n", stats.Reports)
		fmt.Println("\nRows:")
		fmt.Printf("  Stored: %d\n", stats.Rows)
		fmt.Printf("  Classified: %d\n", stats.Results)
		fmt.Printf("  Failed: %d\n", stats.Failures)

		latest, err := db.GetLatestRun()
		if err != nil {
			return err
		}
		if latest == nil {
			fmt.Println("\nNo runs yet. Start one with: reviewguard run")
			return nil
		}
		fmt.Println("\nLatest run:")
		fmt.Printf("  %s (%s, %s)\n", latest.ID, latest.Command, latest.Status)
		if latest.Provider != nil && latest.Model != nil {
			fmt.Printf("  Judge: %s / %s\n", *latest.Provider, *latest.Model)
		}
		if latest.Error != nil {
			fmt.Printf("  Error: %s\n", *latest.Error)
		}
		return nil
	},
}

// --- pipeline commands ---

var (
	dryRun      bool
	inputPath   string
	classifyAll bool
	workers     int
	groundTruth string
	limit       int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Merge the location and review exports into cleaned rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, "ingest", []pipeline.Step{pipeline.StepIngest})
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Scan reviews for links, contact details and promotional language",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, "audit", []pipeline.Step{pipeline.StepIngest, pipeline.StepAudit})
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label a sample of reviews with the LLM judge",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, "classify", []pipeline.Step{
			pipeline.StepIngest, pipeline.StepAudit, pipeline.StepClassify, pipeline.StepReport,
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Score the judge against human-labeled reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, "validate", []pipeline.Step{pipeline.StepValidate, pipeline.StepReport})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: ingest -> audit -> classify -> validate -> report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSteps(cmd, "run", pipeline.AllSteps)
	},
}

func init() {
	for _, c := range []*cobra.Command{ingestCmd, auditCmd, classifyCmd, runCmd} {
		c.Flags().StringVarP(&inputPath, "input", "i", "", "Read rows from a cleaned CSV/JSONL table instead of the raw exports")
	}
	for _, c := range []*cobra.Command{classifyCmd, runCmd} {
		c.Flags().BoolVar(&classifyAll, "all", false, "Classify every row instead of the configured sample")
	}
	for _, c := range []*cobra.Command{classifyCmd, validateCmd, runCmd} {
		c.Flags().IntVarP(&workers, "workers", "w", 0, "Override the number of concurrent judge calls")
	}
	for _, c := range []*cobra.Command{validateCmd, runCmd} {
		c.Flags().StringVar(&groundTruth, "ground-truth", "", "Override the labeled CSV used for validation")
		c.Flags().IntVar(&limit, "limit", 0, "Override how many labeled rows are validated (negative for all)")
	}
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

func runSteps(cmd *cobra.Command, command string, steps []pipeline.Step) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Classify.Workers = workers
	}
	if flags.Changed("ground-truth") {
		cfg.Validation.GroundTruth = groundTruth
	}
	if flags.Changed("limit") {
		cfg.Validation.Limit = limit
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	exp, err := export.New(ctx, cfg.Export, cfg.GetDataDir())
	if err != nil {
		return err
	}
	pipe := pipeline.New(cfg, db, exp)
	defer pipe.Close()

	opts := pipeline.Options{Input: inputPath, All: classifyAll}
	var result *pipeline.Result
	if dryRun {
		result = pipe.DryRun(steps, opts)
	} else {
		result = pipe.Run(ctx, command, steps, opts)
	}

	fmt.Printf("Run %s\n", result.RunID)
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}

	if err := result.Err(); err != nil {
		return err
	}
	if !dryRun {
		fmt.Printf("\nDone! Artifacts are in %s. Run 'reviewguard serve' to browse the run.\n", exp.RunDir(result.RunID))
	}
	return nil
}

// --- categories command ---

var topCategories int

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Count unique reviews per location category",
	RunE: func(cmd *cobra.Command, args []string) error {
		var rows []records.Row
		if inputPath != "" {
			var err error
			if rows, _, err = table.LoadReviews(inputPath, cfg.Merge.DropColumns); err != nil {
				return err
			}
		} else {
			in, err := ingest.Load(cmd.Context(), cfg.Input)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			rows, _ = records.Merge(in.Locations, in.Reviews, records.MergeOptions{Location: loc, Required: cfg.Merge.Required})
		}

		fmt.Println(report.Categories(records.CategoryCounts(rows), topCategories))
		return nil
	},
}

func init() {
	categoriesCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Read rows from a cleaned CSV/JSONL table instead of the raw exports")
	categoriesCmd.Flags().IntVarP(&topCategories, "top", "n", 25, "Show only the n largest categories (0 for all)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") || port == 0 {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cmd.Context(), db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "creating data directory")
	}
	dbPath := filepath.Join(dataDir, "reviewguard.db")
	return database.Open(dbPath)
}

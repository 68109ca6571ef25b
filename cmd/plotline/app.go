package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/plotlinehq/plotline/llm/providers"

	"github.com/plotlinehq/plotline/bundle"
	"github.com/plotlinehq/plotline/config"
	"github.com/plotlinehq/plotline/incident"
	"github.com/plotlinehq/plotline/llm"
	"github.com/plotlinehq/plotline/maintenance"
	"github.com/plotlinehq/plotline/server"
	"github.com/plotlinehq/plotline/storage"
)

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "LLM-backed data analysis backend",
		Long: `Plotline interprets free-form model output into validated structured
data: chart specifications resolved against uploaded CSV datasets, and
incident summaries checked against a strict schema with bounded repair.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(bundleCmd(&configPath))
	cmd.AddCommand(summarizeCmd(&configPath))
	cmd.AddCommand(cleanupCmd(&configPath))
	cmd.AddCommand(backupCmd(&configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadConfig loads an explicit config file, or the layered defaults.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader(slog.Default()).Load()
}

// newCompleter builds the model client from config.
func newCompleter(cfg *config.Config) *llm.Client {
	return llm.NewClient(llm.Endpoint{
		Provider: cfg.Model.Provider,
		URL:      cfg.Model.Endpoint,
		Model:    cfg.Model.Name,
		APIKey:   cfg.APIKey(),
	},
		llm.WithLogger(slog.Default()),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout}),
	)
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.APIKey() == "" {
				slog.Warn("Model API key not set; analyze requests will fail",
					slog.String("env", cfg.Model.APIKeyEnv))
			}

			db, err := storage.OpenDB(cfg.DatabasePath())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			ctx, cancel := signalContext()
			defer cancel()

			if cfg.Bundle.InboxDir != "" {
				if err := startBundleWatcher(ctx, cfg); err != nil {
					return err
				}
			}

			srv := server.New(cfg, newCompleter(cfg), storage.NewStore(db), slog.Default())
			return srv.ListenAndServe(ctx)
		},
	}
}

// startBundleWatcher processes bundle archives dropped into the inbox while
// the server runs.
func startBundleWatcher(ctx context.Context, cfg *config.Config) error {
	watcher, err := bundle.NewWatcher(cfg.Bundle.InboxDir, 0, slog.Default())
	if err != nil {
		return fmt.Errorf("create bundle watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start bundle watcher: %w", err)
	}

	processor := bundle.NewProcessor(slog.Default())
	go func() {
		defer watcher.Stop()
		for ev := range watcher.Events() {
			results, err := processor.ProcessZip(ctx, ev.Path)
			if err != nil {
				slog.Error("Bundle processing failed",
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
				continue
			}
			if err := writeBundleResults(cfg.Bundle.OutputDir, ev.Path, results); err != nil {
				slog.Error("Writing bundle results failed",
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}

func bundleCmd(configPath *string) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "bundle <archive.zip>",
		Short: "Process a zipped slide bundle into chart data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if outputDir == "" {
				outputDir = cfg.Bundle.OutputDir
			}

			ctx, cancel := signalContext()
			defer cancel()

			processor := bundle.NewProcessor(slog.Default())
			results, err := processor.ProcessZip(ctx, args[0])
			if err != nil {
				return err
			}

			for _, r := range results {
				fmt.Printf("[ok] Slide %d - %q -> %s using %s (%d rows)\n",
					r.SlideNum, r.Title, r.ChartType, r.MainFile, r.Rows)
			}
			return writeBundleResults(outputDir, args[0], results)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from config)")
	return cmd
}

// writeBundleResults saves slide results as JSON next to the bundle name.
func writeBundleResults(outputDir, zipPath string, results []bundle.SlideResult) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	base := filepath.Base(zipPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	outPath := filepath.Join(outputDir, base+".json")

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	slog.Info("Bundle results written", slog.String("path", outPath), slog.Int("slides", len(results)))
	return nil
}

func summarizeCmd(configPath *string) *cobra.Command {
	var (
		inputPath  string
		maxRepairs int
	)

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Validate an incident summary, repairing via the model when invalid",
		Long: `Reads raw model output (from --input or stdin), validates it against
the incident summary schema, and when it fails asks the configured model
to regenerate it, up to the repair bound. Prints the validated summary
as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if maxRepairs < 0 {
				maxRepairs = cfg.Repair.MaxAttempts
			}

			raw, err := readInput(inputPath)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			client := newCompleter(cfg)
			repair := func(ctx context.Context, instruction string) (string, error) {
				resp, err := client.Complete(ctx, llm.Request{
					Messages:  []llm.Message{{Role: "user", Content: instruction}},
					MaxTokens: cfg.Model.MaxTokens,
				})
				if err != nil {
					return "", err
				}
				return resp.Content, nil
			}

			summary, err := incident.Parse(ctx, raw, repair, incident.WithMaxRepairs(maxRepairs))
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Raw model output file (default stdin)")
	cmd.Flags().IntVar(&maxRepairs, "max-repairs", -1, "Repair attempts (default from config)")
	return cmd
}

func readInput(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}

func cleanupCmd(configPath *string) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove uploads past the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			cleaner := maintenance.NewCleaner(cfg.Server.UploadDir, cfg.Retention.UploadDays, nil, slog.Default())
			if schedule == "" {
				_, err := cleaner.Run()
				return err
			}
			return runScheduled(schedule, "cleanup", func() error {
				_, err := cleaner.Run()
				return err
			})
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression to run repeatedly (e.g. \"0 3 * * *\")")
	return cmd
}

func backupCmd(configPath *string) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the upload directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			backupper := maintenance.NewBackupper(
				cfg.Server.UploadDir, cfg.Retention.BackupDir, cfg.Retention.BackupDays, slog.Default())
			if schedule == "" {
				_, err := backupper.Run()
				return err
			}
			return runScheduled(schedule, "backup", func() error {
				_, err := backupper.Run()
				return err
			})
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression to run repeatedly (e.g. \"0 4 * * 0\")")
	return cmd
}

// runScheduled blocks running the job on the cron schedule until a signal.
func runScheduled(schedule, name string, job func() error) error {
	ctx, cancel := signalContext()
	defer cancel()

	scheduler := maintenance.NewScheduler(slog.Default())
	if err := scheduler.AddJob(schedule, name, job); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	slog.Info("Scheduler running", slog.String("job", name), slog.String("schedule", schedule))
	scheduler.Run(ctx)
	return nil
}

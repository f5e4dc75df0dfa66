// rpgtrans — RPG Maker game text translator with LLM batch calibration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MoriTranslates/rpgmaker-translator/client"
	"github.com/MoriTranslates/rpgmaker-translator/config"
	"github.com/MoriTranslates/rpgmaker-translator/engine"
	"github.com/MoriTranslates/rpgmaker-translator/lockfile"
	"github.com/MoriTranslates/rpgmaker-translator/project"
	"github.com/MoriTranslates/rpgmaker-translator/settings"
	"github.com/MoriTranslates/rpgmaker-translator/tuner"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	verbose bool
)

// newLogger builds the structured logger backing the library packages.
// The CLI's own output goes through the color helpers; zap is for
// debugging with --verbose.
func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rpgtrans",
		Short: "RPG Maker game text translator with LLM batch calibration",
		Long: `rpgtrans — RPG Maker game text translator.

Translates extracted game text (dialog, choices, items, names) with any
OpenAI-compatible LLM endpoint. Local servers get a calibration tournament
that discovers the throughput-optimal batch size before long runs.

Commands:
  status      Show project info and translation statistics
  init        Create a starter .rpgtrans.yaml config
  translate   Translate untranslated entries in parallel
  polish      Grammar/style pass over existing translations
  calibrate   Find the optimal batch size (local servers)
  auth        Manage provider API keys`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	root.AddCommand(
		newStatusCmd(),
		newInitCmd(),
		newTranslateCmd(),
		newPolishCmd(),
		newCalibrateCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rpgtrans version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// Shared loading helpers
// ---------------------------------------------------------------------------

// loadConfig loads .rpgtrans.yaml and fails the command if it is missing
// or invalid.
func loadConfig() *config.Config {
	cfg, err := config.Load(rootDir)
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
	if cfg == nil {
		logError("No %s found in %s. Run 'rpgtrans init' first.", config.FileName, rootDir)
		os.Exit(1)
	}
	return cfg
}

func projectPath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.ProjectFile) {
		return cfg.ProjectFile
	}
	return filepath.Join(rootDir, cfg.ProjectFile)
}

func loadProject(cfg *config.Config) (*project.File, string) {
	path := projectPath(cfg)
	proj, err := project.Load(path)
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
	return proj, path
}

// newClient builds the translation client from config plus the resolved
// API key.
func newClient(cfg *config.Config, apiKeyFlag string, log *zap.Logger) *client.OpenAIClient {
	key := settings.ResolveAPIKey(apiKeyFlag, cfg.Provider.Name)
	if key == "" && cfg.Provider.APIKey != "" {
		key = cfg.Provider.APIKey
	}
	if key == "" && cfg.Provider.IsCloud() {
		logError("No API key for provider %q. Use --api-key, %s, or 'rpgtrans auth set %s --api-key KEY'.",
			cfg.Provider.Name, settings.EnvAPIKey, cfg.Provider.Name)
		os.Exit(1)
	}

	return client.NewOpenAI(client.Config{
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     key,
		Model:      cfg.Provider.Model,
		TargetLang: cfg.TargetLang,
		Cloud:      cfg.Provider.IsCloud(),
		Timeout:    cfg.Provider.Timeout(),
		Glossary:   cfg.Glossary,
	}, log)
}

// recordChecksums records source checksums for every entry that carries
// a translation, drops records for removed entries, and saves the lock
// file. Best effort: a lock file failure never fails the run.
func recordChecksums(proj *project.File) {
	lock, err := lockfile.Load(rootDir)
	if err != nil {
		logWarning("%v", err)
		return
	}
	for _, e := range proj.Entries {
		if e.HasTranslation() {
			lock.Update(e.ID, e.Original)
		}
	}
	lock.Clean(proj.Entries)
	if err := lock.Save(); err != nil {
		logWarning("%v", err)
	}
}

// signalContext returns a context cancelled on the first interrupt. stop
// is invoked alongside cancellation so engines can finish their current
// item and save.
func signalContext(onInterrupt func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logWarning("Interrupted, finishing current items and saving...")
		onInterrupt()
		cancel()
	}()

	return ctx, cancel
}

// ---------------------------------------------------------------------------
// status (read-only: project info + translation stats)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show project info and translation statistics",
		Long: `Show project configuration and per-status entry counts.

Does not modify any files.`,
		Run: func(cmd *cobra.Command, args []string) {
			runStatus()
		},
	}
}

func runStatus() {
	cfg := loadConfig()
	proj, path := loadProject(cfg)
	stats := proj.Stats()

	fmt.Fprintf(os.Stderr, "\n%sProject%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	if proj.Game != "" {
		fmt.Fprintf(os.Stderr, "  Game:       %s\n", proj.Game)
	}
	absPath, _ := filepath.Abs(path)
	fmt.Fprintf(os.Stderr, "  File:       %s\n", absPath)
	fmt.Fprintf(os.Stderr, "  Languages:  %s → %s\n", cfg.SourceLang, cfg.TargetLang)
	fmt.Fprintf(os.Stderr, "  Provider:   %s (%s)\n", cfg.Provider.Name, cfg.Provider.Model)
	if cfg.BatchSize > 0 {
		fmt.Fprintf(os.Stderr, "  Batch size: %d\n", cfg.BatchSize)
	} else {
		fmt.Fprintf(os.Stderr, "  Batch size: not calibrated (run 'rpgtrans calibrate --save')\n")
	}

	fmt.Fprintf(os.Stderr, "\n%sTranslation Statistics%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	percent := 0
	done := stats.Translated + stats.Reviewed
	if stats.Total > 0 {
		percent = done * 100 / stats.Total
	}
	fmt.Fprintf(os.Stderr, "  Total:         %d\n", stats.Total)
	fmt.Fprintf(os.Stderr, "  Translated:    %d\n", stats.Translated)
	fmt.Fprintf(os.Stderr, "  Reviewed:      %d\n", stats.Reviewed)
	fmt.Fprintf(os.Stderr, "  Untranslated:  %d\n", stats.Untranslated)
	fmt.Fprintf(os.Stderr, "  Skipped:       %d\n", stats.Skipped)
	fmt.Fprintf(os.Stderr, "  Progress:      %d%%\n\n", percent)

	if lock, err := lockfile.Load(rootDir); err == nil {
		if stale := lock.StaleEntries(proj.Entries); len(stale) > 0 {
			logWarning("%d translated entries have changed source text; run 'rpgtrans translate --stale'", len(stale))
		}
	}

	if stats.Untranslated > 0 {
		logInfo("Next: rpgtrans translate")
	} else {
		logSuccess("All entries translated!")
	}
}

// ---------------------------------------------------------------------------
// init (create starter config)
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	var (
		providerName string
		model        string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter .rpgtrans.yaml config",
		Long: `Write a starter .rpgtrans.yaml into the project root.

Safe to edit afterwards; refuses to overwrite an existing config.`,
		Run: func(cmd *cobra.Command, args []string) {
			runInit(providerName, model)
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", config.ProviderOllama, "Provider: openai, ollama, custom")
	cmd.Flags().StringVar(&model, "model", "qwen2.5", "Model name")

	return cmd
}

func runInit(providerName, model string) {
	existing, err := config.Load(rootDir)
	if err != nil {
		logError("%v", err)
		os.Exit(1)
	}
	if existing != nil {
		logError("%s already exists in %s", config.FileName, rootDir)
		os.Exit(1)
	}

	cfg := &config.Config{
		ProjectFile: "project.json",
		SourceLang:  "ja",
		TargetLang:  "English",
		Provider: config.Provider{
			Name:  providerName,
			Model: model,
		},
	}
	if err := cfg.Save(rootDir); err != nil {
		logError("%v", err)
		os.Exit(1)
	}

	logSuccess("Created %s", filepath.Join(rootDir, config.FileName))
	logInfo("Edit the config, place your entries in project.json, then run 'rpgtrans translate'.")
}

// ---------------------------------------------------------------------------
// translate / polish
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var (
		apiKey  string
		workers int
		one     string
		redo    bool
		stale   bool
	)

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate untranslated entries in parallel",
		Long: `Translate all untranslated entries using the configured provider.

Entries are split into contiguous chunks, one worker per chunk. Progress
is checkpointed to the project file every N successful translations
(checkpoint_interval, default 25), so an interrupted run loses little.

Examples:
  # Translate everything untranslated
  rpgtrans translate

  # Re-translate a single entry by ID
  rpgtrans translate --one "Map001.json/Ev3(EV003)/p0/dialog_5" --redo

  # Re-translate entries whose source text changed since last run
  rpgtrans translate --stale`,
		Run: func(cmd *cobra.Command, args []string) {
			if one != "" {
				runTranslateOne(apiKey, one, redo)
				return
			}
			runEngine(engine.ModeTranslate, apiKey, workers, stale)
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or "+settings.EnvAPIKey+" env var)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker count (default from config)")
	cmd.Flags().StringVar(&one, "one", "", "Translate a single entry by ID")
	cmd.Flags().BoolVar(&redo, "redo", false, "With --one: reset the entry and translate it again")
	cmd.Flags().BoolVar(&stale, "stale", false, "Also reset entries whose source text changed")

	return cmd
}

func newPolishCmd() *cobra.Command {
	var (
		apiKey  string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "polish",
		Short: "Grammar/style pass over existing translations",
		Long: `Run a grammar and style pass over translated and reviewed entries.

Only entries that already have a non-empty translation are touched; the
source text is never re-sent.`,
		Run: func(cmd *cobra.Command, args []string) {
			runEngine(engine.ModePolish, apiKey, workers, false)
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or "+settings.EnvAPIKey+" env var)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker count (default from config)")

	return cmd
}

func runEngine(mode engine.Mode, apiKey string, workersFlag int, stale bool) {
	cfg := loadConfig()
	proj, path := loadProject(cfg)
	log := newLogger()
	cl := newClient(cfg, apiKey, log)

	if stale {
		lock, err := lockfile.Load(rootDir)
		if err != nil {
			logError("%v", err)
			os.Exit(1)
		}
		staleEntries := lock.StaleEntries(proj.Entries)
		for _, e := range staleEntries {
			e.ResetForRedo()
		}
		if len(staleEntries) > 0 {
			logInfo("Reset %d entries with changed source text", len(staleEntries))
		}
	}

	workers := cfg.Workers
	if workersFlag > 0 {
		workers = workersFlag
	}

	stats := proj.Stats()
	switch mode {
	case engine.ModePolish:
		logInfo("Polishing %d translated entries (%d workers)", stats.Translated+stats.Reviewed, workers)
	default:
		logInfo("Translating %d untranslated entries (%d workers)", stats.Untranslated, workers)
	}

	var errCount int
	done := make(chan struct{})
	hooks := engine.Hooks{
		OnProgress: func(current, total int, preview string) {
			logInfo("[%d/%d] %s", current, total, preview)
		},
		OnError: func(id, message string) {
			errCount++
			logWarning("%s: %s", id, message)
		},
		OnCheckpoint: func() {
			// Invoked from the dispatcher goroutine, which owns all entry
			// mutations, so saving here is race-free.
			if err := proj.Save(path); err != nil {
				logWarning("checkpoint save failed: %v", err)
			} else if verbose {
				logInfo("checkpoint saved")
			}
		},
		OnFinished: func() {
			close(done)
		},
	}

	eng := engine.New(cl, hooks,
		engine.WithWorkers(workers),
		engine.WithCheckpointInterval(cfg.CheckpointInterval),
		engine.WithLogger(log))

	ctx, cancel := signalContext(eng.Cancel)
	defer cancel()

	start := time.Now()
	eng.Run(ctx, proj.Entries, mode)
	<-done

	if err := proj.Save(path); err != nil {
		logError("Saving %s: %v", path, err)
		os.Exit(1)
	}
	recordChecksums(proj)

	after := proj.Stats()
	elapsed := time.Since(start).Round(time.Second)
	if errCount > 0 {
		logWarning("%d entries failed; rerun 'rpgtrans translate' to retry them", errCount)
	}
	logSuccess("Done in %s — %d translated, %d untranslated remaining",
		elapsed, after.Translated+after.Reviewed, after.Untranslated)
}

func runTranslateOne(apiKey, id string, redo bool) {
	cfg := loadConfig()
	proj, path := loadProject(cfg)
	log := newLogger()
	cl := newClient(cfg, apiKey, log)

	entry := proj.EntryByID(id)
	if entry == nil {
		logError("No entry with ID %q", id)
		os.Exit(1)
	}
	if redo {
		entry.ResetForRedo()
	}
	if entry.Status != project.StatusUntranslated {
		logError("Entry %q is %s; use --redo to translate it again", id, entry.Status)
		os.Exit(1)
	}

	ctx, cancel := signalContext(func() {})
	defer cancel()

	logInfo("Translating %s: %s", id, project.Preview(entry.Original))
	result, err := cl.Translate(ctx, client.TranslateRequest{
		Text:    entry.Original,
		Context: entry.Context,
		Field:   entry.Field,
	})
	if err != nil {
		logError("Translation failed: %v", err)
		os.Exit(1)
	}

	entry.SetTranslation(result)
	if err := proj.Save(path); err != nil {
		logError("Saving %s: %v", path, err)
		os.Exit(1)
	}
	recordChecksums(proj)
	logSuccess("%s -> %s", id, project.Preview(result))
}

// ---------------------------------------------------------------------------
// calibrate
// ---------------------------------------------------------------------------

func newCalibrateCmd() *cobra.Command {
	var (
		apiKey string
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Find the optimal batch size (local servers)",
		Long: `Run the batch-size calibration tournament against the configured
provider.

Three rounds: a survey of candidate sizes, semifinals over the top 3,
finals over the top 2. Every entry translated during calibration is real
progress and is saved to the project. Cloud providers skip measurement
and use the largest batch size directly.`,
		Run: func(cmd *cobra.Command, args []string) {
			runCalibrate(apiKey, save)
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or "+settings.EnvAPIKey+" env var)")
	cmd.Flags().BoolVar(&save, "save", false, "Write the winning batch size into "+config.FileName)

	return cmd
}

func runCalibrate(apiKey string, save bool) {
	cfg := loadConfig()
	proj, path := loadProject(cfg)
	log := newLogger()
	cl := newClient(cfg, apiKey, log)

	hooks := tuner.Hooks{
		OnStatus: func(message string) {
			logInfo("%s", message)
		},
		OnStepDone: func(batchSize int, eps float64, elapsed time.Duration) {
			logInfo("  batch=%d: %.2f entries/sec (%s)", batchSize, eps, elapsed.Round(time.Millisecond))
		},
		OnError: func(message string) {
			logWarning("%s", message)
		},
	}

	tun := tuner.New(cl, proj.Entries, hooks, tuner.WithLogger(log))

	ctx, cancel := signalContext(tun.Cancel)
	defer cancel()

	winner := tun.Run(ctx)

	if tun.ConsumedCount() > 0 {
		if err := proj.Save(path); err != nil {
			logError("Saving %s: %v", path, err)
			os.Exit(1)
		}
		recordChecksums(proj)
		logInfo("Saved %d entries translated during calibration", tun.ConsumedCount())
	}

	logSuccess("Optimal batch size: %d", winner)

	if save {
		cfg.BatchSize = winner
		if err := cfg.Save(rootDir); err != nil {
			logError("%v", err)
			os.Exit(1)
		}
		logSuccess("Wrote batch_size=%d to %s", winner, config.FileName)
	}
}

// ---------------------------------------------------------------------------
// auth (credential management)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys",
		Long: `Manage API keys stored outside the project tree.

Keys live in ` + settings.FilePath() + ` with 0600 permissions.
Lookup order at runtime: --api-key flag, ` + settings.EnvAPIKey + `, stored key.`,
	}

	cmd.AddCommand(newAuthSetCmd(), newAuthRemoveCmd(), newAuthStatusCmd())
	return cmd
}

func newAuthSetCmd() *cobra.Command {
	var (
		apiKey  string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key for a provider",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if apiKey == "" {
				logError("--api-key is required")
				os.Exit(1)
			}
			if err := settings.Set(args[0], &settings.Info{Key: apiKey, BaseURL: baseURL}); err != nil {
				logError("%v", err)
				os.Exit(1)
			}
			logSuccess("Stored key for %s", args[0])
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key to store")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Optional endpoint remembered with the key")

	return cmd
}

func newAuthRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <provider>",
		Short: "Remove a stored API key",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := settings.Remove(args[0]); err != nil {
				logError("%v", err)
				os.Exit(1)
			}
			logSuccess("Removed key for %s", args[0])
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List providers with stored keys",
		Run: func(cmd *cobra.Command, args []string) {
			store := settings.Load()
			if len(store) == 0 {
				logInfo("No stored credentials (%s)", settings.FilePath())
				return
			}
			providers := make([]string, 0, len(store))
			for name := range store {
				providers = append(providers, name)
			}
			sort.Strings(providers)
			for _, name := range providers {
				info := store[name]
				masked := "(empty)"
				if len(info.Key) > 4 {
					masked = "..." + info.Key[len(info.Key)-4:]
				} else if info.Key != "" {
					masked = "..."
				}
				if info.BaseURL != "" {
					logInfo("%s: %s (%s)", name, masked, info.BaseURL)
				} else {
					logInfo("%s: %s", name, masked)
				}
			}
		},
	}
}

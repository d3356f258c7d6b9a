// Package main provides the CLI entrypoint for seqrecall.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/seqrecall/internal/config"
	"github.com/verte-zerg/seqrecall/internal/model"
	"github.com/verte-zerg/seqrecall/internal/stimulus"
	"github.com/verte-zerg/seqrecall/internal/store"
	"github.com/verte-zerg/seqrecall/internal/trial"
	"github.com/verte-zerg/seqrecall/internal/tui"
	"github.com/verte-zerg/seqrecall/internal/upload"
)

const (
	defaultDisplayMs     = 2500
	defaultRecallSeconds = trial.DefaultRecallSeconds
	defaultServerURL     = "http://localhost:3000"
	defaultLogLevel      = "info"
)

var (
	dbPath   string
	logLevel string

	runDisplayMs     int
	runRecallSeconds int
	runServerURL     string
	runPools         string
	runPractice      bool
	runSeed          int64
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "seqrecall",
		Short:         "Letter-sequence recall experiment",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runExperimentCmd,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the local session database")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")

	rootCmd.Flags().IntVar(&runDisplayMs, "display-ms", defaultDisplayMs, "stimulus display time in milliseconds")
	rootCmd.Flags().IntVar(&runRecallSeconds, "recall-seconds", defaultRecallSeconds, "recall countdown in seconds")
	rootCmd.Flags().StringVar(&runServerURL, "server-url", defaultServerURL, "backend base URL")
	rootCmd.Flags().StringVar(&runPools, "pools", "", "stimulus pool file (default: built-in pools)")
	rootCmd.Flags().BoolVar(&runPractice, "practice", true, "run the practice trial first")
	rootCmd.Flags().Int64Var(&runSeed, "seed", 0, "shuffle seed (0: random)")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newUploadCmd())

	return rootCmd
}

func runExperimentCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyIntConfig(cmd, "display-ms", &runDisplayMs, fileCfg.Experiment.DisplayMs)
	applyIntConfig(cmd, "recall-seconds", &runRecallSeconds, fileCfg.Experiment.RecallSeconds)
	applyStringConfig(cmd, "server-url", &runServerURL, fileCfg.Experiment.ServerURL)
	applyStringConfig(cmd, "pools", &runPools, fileCfg.Experiment.Pools)
	applyBoolConfig(cmd, "practice", &runPractice, fileCfg.Experiment.Practice)
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)

	cfg := model.Config{
		DisplayMs:     runDisplayMs,
		RecallSeconds: runRecallSeconds,
		ServerURL:     runServerURL,
		PoolsPath:     runPools,
		Practice:      runPractice,
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	pools := stimulus.DefaultPools()
	if cfg.PoolsPath != "" {
		pools, err = stimulus.LoadPools(cfg.PoolsPath)
		if err != nil {
			return fmt.Errorf("failed to load pools: %w", err)
		}
	}

	// The alternate screen owns the terminal, so the run logs to the file only.
	logger, closeLog := config.SetupLogger(logFilePath(fileCfg), config.ParseLogLevel(logLevel), nil)
	defer func() {
		if cerr := closeLog(); cerr != nil {
			// Best-effort log close.
			_ = cerr
		}
	}()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	participant, err := st.NextCounter(context.Background(), store.ParticipantCounter)
	if err != nil {
		return fmt.Errorf("failed to assign participant number: %w", err)
	}

	gen := stimulus.New()
	if runSeed != 0 {
		gen = stimulus.NewWithSeed(runSeed)
	}

	m := tui.NewModel(tui.Options{
		Session: model.SessionContext{
			SessionID:         uuid.NewString(),
			ParticipantNumber: participant,
		},
		Stimuli: gen.Build(pools),
		Timing: trial.Timing{
			Display:       time.Duration(cfg.DisplayMs) * time.Millisecond,
			RecallSeconds: cfg.RecallSeconds,
		},
		Practice: cfg.Practice,
		Uploader: upload.NewClient(cfg.ServerURL, nil),
		Store:    st,
		Logger:   logger,
	})
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	reportResult(m.Result())
	return nil
}

func reportResult(res tui.Result) {
	switch {
	case !res.Completed:
		logErrln("Session ended before all trials were completed; nothing was submitted.")
	case res.Uploaded:
		logErrf("Data submitted as %s\n", res.Filename)
		if res.MirrorWarn {
			logErrln("Warning: the backup copy failed. Please notify the experimenter.")
		}
	case res.Stored:
		logErrf("Upload failed: %v\n", res.UploadErr)
		logErrf("The session was kept locally. Retry with: seqrecall upload %s\n", res.SessionID)
	default:
		logErrf("Upload failed and the session could not be stored locally: %v\n", res.UploadErr)
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func loadFileConfig() (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	fileCfg.ApplyEnv(os.Getenv)
	return fileCfg, nil
}

func openStore() (*store.Store, error) {
	path := dbPath
	if path == "" {
		path = config.DefaultDBPath()
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func logFilePath(fileCfg config.FileConfig) string {
	if fileCfg.Log.File != nil {
		return *fileCfg.Log.File
	}
	return config.DefaultLogPath()
}

func newLogger(fileCfg config.FileConfig) (*slog.Logger, func() error) {
	return config.SetupLogger(logFilePath(fileCfg), config.ParseLogLevel(logLevel), os.Stderr)
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# seqrecall configuration
# Uncomment a value to enable it. CLI flags override config values.
# GITHUB_TOKEN, GITHUB_REPO, SMTP_PASSWORD and PORT in the environment
# override the file.

[experiment]
# display-ms = %d          # Stimulus display time in milliseconds
# recall-seconds = %d        # Recall countdown in seconds
# server-url = %q
# pools = "/path/to/pools.txt" # [patterned] and [random] sections, one sequence per line
# practice = true            # Run the practice trial first

[server]
# addr = %q
# data-dir = %q
# static-dir = ""            # Serve a directory at /
# columns = %q         # analysis or all

[server.github]
# token = ""
# repo = "owner/name"
# branch = "main"
# dir = "data"

[server.smtp]
# host = "smtp.example.com"
# port = 587
# username = ""
# password = ""
# from = "lab@example.com"
# to = ["experimenter@example.com"]

[log]
# level = %q
# file = "/path/to/seqrecall.log"
`,
		defaultDisplayMs,
		defaultRecallSeconds,
		defaultServerURL,
		defaultAddr,
		defaultDataDir,
		defaultColumns,
		defaultLogLevel,
	)
}

func validateConfig(cfg model.Config) error {
	if cfg.DisplayMs <= 0 {
		return fmt.Errorf("--display-ms must be > 0")
	}
	if cfg.RecallSeconds <= 0 {
		return fmt.Errorf("--recall-seconds must be > 0")
	}
	return validateServerURL(cfg.ServerURL)
}

func validateServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("--server-url must be an http(s) URL, got %q", raw)
	}
	return nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

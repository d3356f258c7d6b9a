package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/seqrecall/internal/config"
	"github.com/verte-zerg/seqrecall/internal/export"
	"github.com/verte-zerg/seqrecall/internal/model"
	"github.com/verte-zerg/seqrecall/internal/server"
)

const (
	defaultAddr    = ":3000"
	defaultDataDir = "data"
	defaultColumns = export.ColumnsAnalysis
)

var (
	serveAddr         string
	serveDataDir      string
	serveStaticDir    string
	serveColumns      string
	serveGitHubRepo   string
	serveGitHubBranch string
	serveGitHubDir    string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the backend that stores uploaded sessions",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", defaultAddr, "listen address")
	cmd.Flags().StringVar(&serveDataDir, "data-dir", defaultDataDir, "directory for CSV files")
	cmd.Flags().StringVar(&serveStaticDir, "static-dir", "", "serve a static directory at /")
	cmd.Flags().StringVar(&serveColumns, "columns", defaultColumns, "CSV columns (analysis or all)")
	cmd.Flags().StringVar(&serveGitHubRepo, "github-repo", "", "mirror files to this GitHub repo (owner/name)")
	cmd.Flags().StringVar(&serveGitHubBranch, "github-branch", "main", "branch for the GitHub mirror")
	cmd.Flags().StringVar(&serveGitHubDir, "github-dir", "data", "directory inside the GitHub repo")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	cfg := buildServerConfig(cmd, fileCfg)
	if err := validateServerConfig(cfg); err != nil {
		return err
	}

	logger, closeLog := newLogger(fileCfg)
	defer func() {
		if cerr := closeLog(); cerr != nil {
			// Best-effort log close.
			_ = cerr
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mirrors := server.Mirrors(cfg)
	for _, m := range mirrors {
		logger.Info("mirror enabled", "mirror", m.Name())
	}
	return server.New(cfg, logger, mirrors).Run(ctx)
}

func buildServerConfig(cmd *cobra.Command, fileCfg config.FileConfig) model.ServerConfig {
	fs := fileCfg.Server
	applyStringConfig(cmd, "addr", &serveAddr, fs.Addr)
	applyStringConfig(cmd, "data-dir", &serveDataDir, fs.DataDir)
	applyStringConfig(cmd, "static-dir", &serveStaticDir, fs.StaticDir)
	applyStringConfig(cmd, "columns", &serveColumns, fs.Columns)
	applyStringConfig(cmd, "github-repo", &serveGitHubRepo, fs.GitHub.Repo)
	applyStringConfig(cmd, "github-branch", &serveGitHubBranch, fs.GitHub.Branch)
	applyStringConfig(cmd, "github-dir", &serveGitHubDir, fs.GitHub.Dir)
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)

	cfg := model.ServerConfig{
		Addr:      serveAddr,
		DataDir:   serveDataDir,
		StaticDir: serveStaticDir,
		Columns:   serveColumns,
		GitHub: model.GitHubConfig{
			Token:  deref(fs.GitHub.Token),
			Repo:   serveGitHubRepo,
			Branch: serveGitHubBranch,
			Dir:    serveGitHubDir,
		},
		SMTP: model.SMTPConfig{
			Host:     deref(fs.SMTP.Host),
			Username: deref(fs.SMTP.Username),
			Password: deref(fs.SMTP.Password),
			From:     deref(fs.SMTP.From),
			To:       fs.SMTP.To,
		},
	}
	if fs.SMTP.Port != nil {
		cfg.SMTP.Port = *fs.SMTP.Port
	}
	return cfg
}

func validateServerConfig(cfg model.ServerConfig) error {
	if cfg.Addr == "" {
		return fmt.Errorf("--addr must not be empty")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("--data-dir must not be empty")
	}
	if cfg.Columns != export.ColumnsAnalysis && cfg.Columns != export.ColumnsAll {
		return fmt.Errorf("--columns must be %s or %s", export.ColumnsAnalysis, export.ColumnsAll)
	}
	if cfg.GitHub.Repo != "" {
		owner, name, ok := strings.Cut(cfg.GitHub.Repo, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return fmt.Errorf("--github-repo must look like owner/name, got %q", cfg.GitHub.Repo)
		}
		if cfg.GitHub.Token == "" {
			logErrln("GitHub repo set without a token (GITHUB_TOKEN); mirroring disabled")
		}
	}
	return nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

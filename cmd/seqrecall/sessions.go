package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/seqrecall/internal/export"
	"github.com/verte-zerg/seqrecall/internal/model"
	"github.com/verte-zerg/seqrecall/internal/stats"
	"github.com/verte-zerg/seqrecall/internal/store"
	"github.com/verte-zerg/seqrecall/internal/upload"
)

const defaultCurveWindow = 10

var (
	statsIdentifier  string
	statsSince       string
	statsLast        int
	statsCurveWindow int

	exportDir     string
	exportColumns string

	uploadServerURL string
	uploadPending   bool
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recall accuracy per pattern type",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsIdentifier, "identifier", "", "identifier filter")
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N sessions")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildStatsConfig()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	report, err := stats.BuildReport(context.Background(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	return report.Render(cmd.OutOrStdout(), cfg.CurveWindow, stats.TerminalWidth())
}

func buildStatsConfig() (model.StatsConfig, error) {
	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return model.StatsConfig{}, fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if statsLast < 0 {
		return model.StatsConfig{}, fmt.Errorf("--last must be >= 0")
	}
	if statsCurveWindow < 0 {
		return model.StatsConfig{}, fmt.Errorf("--curve-window must be >= 0")
	}
	return model.StatsConfig{
		Identifier:  model.NormalizeIdentifier(statsIdentifier),
		Since:       sinceTime,
		Last:        statsLast,
		CurveWindow: statsCurveWindow,
	}, nil
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a stored session as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportCmd,
	}
	cmd.Flags().StringVar(&exportDir, "dir", "", "write p<participant>_<identifier>_memory.csv into this directory instead of stdout")
	cmd.Flags().StringVar(&exportColumns, "columns", export.ColumnsAnalysis, "CSV columns (analysis or all)")
	return cmd
}

func runExportCmd(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	summary, records, err := st.GetSession(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if exportDir == "" {
		return exportSession(cmd.OutOrStdout(), records, exportColumns)
	}
	content, err := encodeSession(records, exportColumns)
	if err != nil {
		return err
	}
	name := export.Filename(strconv.Itoa(summary.ParticipantNumber), summary.Identifier)
	path, err := export.WriteFile(exportDir, name, content)
	if err != nil {
		return err
	}
	logErrf("Wrote %s\n", path)
	return nil
}

func exportSession(w io.Writer, records []model.TrialRecord, columns string) error {
	content, err := encodeSession(records, columns)
	if err != nil {
		return err
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func encodeSession(records []model.TrialRecord, mode string) ([]byte, error) {
	rows := export.RecordRows(records)
	columns, err := export.ColumnsFor(mode, rows)
	if err != nil {
		return nil, err
	}
	content, err := export.Encode(columns, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}
	return content, nil
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload [session-id]",
		Short: "Upload a stored session that failed to reach the backend",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUploadCmd,
	}
	cmd.Flags().StringVar(&uploadServerURL, "server-url", defaultServerURL, "backend base URL")
	cmd.Flags().BoolVar(&uploadPending, "pending", false, "upload every session not yet submitted")
	return cmd
}

func runUploadCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "server-url", &uploadServerURL, fileCfg.Experiment.ServerURL)
	if err := validateServerURL(uploadServerURL); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := context.Background()
	var ids []string
	switch {
	case len(args) == 1:
		ids = args
	case uploadPending:
		pending, err := st.ListPending(ctx)
		if err != nil {
			return fmt.Errorf("failed to list pending sessions: %w", err)
		}
		for _, s := range pending {
			ids = append(ids, s.ID)
		}
	default:
		return listPending(cmd.OutOrStdout(), st)
	}
	if len(ids) == 0 {
		logErrln("No pending sessions.")
		return nil
	}

	client := upload.NewClient(uploadServerURL, nil)
	var failed int
	for _, id := range ids {
		if err := uploadSession(ctx, st, client, id); err != nil {
			logErrf("%s: %v\n", id, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(ids))
	}
	return nil
}

func uploadSession(ctx context.Context, st *store.Store, client *upload.Client, id string) error {
	_, records, err := st.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	resp, err := client.Upload(ctx, records)
	if err != nil {
		return err
	}
	if err := st.MarkUploaded(ctx, id, resp.Filename); err != nil {
		return fmt.Errorf("uploaded as %s but failed to record it: %w", resp.Filename, err)
	}
	logErrf("%s: submitted as %s\n", id, resp.Filename)
	if upload.MirrorFailed(resp) {
		logErrf("%s: warning: backup copy failed\n", id)
	}
	return nil
}

func listPending(w io.Writer, st *store.Store) error {
	pending, err := st.ListPending(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list pending sessions: %w", err)
	}
	if len(pending) == 0 {
		_, err := fmt.Fprintln(w, "No pending sessions.")
		return err
	}
	for _, s := range pending {
		if _, err := fmt.Fprintf(w, "%s  p%d  %s  %s\n", s.ID, s.ParticipantNumber, s.Identifier, s.EndedAt.Format("2006-01-02 15:04")); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

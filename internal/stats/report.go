package stats

import (
	"context"
	"fmt"
	"io"

	"github.com/verte-zerg/seqrecall/internal/model"
	"github.com/verte-zerg/seqrecall/internal/store"
)

// Report contains precomputed data for stats rendering.
type Report struct {
	Sessions         []model.SessionSummary
	WindowSessionIDs []string
	CategoryAll      []model.CategoryAggregate
	CategoryWindow   []model.CategoryAggregate
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, st *store.Store, cfg model.StatsConfig) (Report, error) {
	sessions, err := st.ListSessions(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	if cfg.Last > 0 && len(sessions) > cfg.Last {
		sessions = sessions[len(sessions)-cfg.Last:]
	}

	allIDs := sessionIDs(sessions)
	windowIDs := lastSessionIDs(sessions, cfg.CurveWindow)
	all, err := st.ListCategoryAggregates(ctx, allIDs)
	if err != nil {
		return Report{}, err
	}
	window, err := st.ListCategoryAggregates(ctx, windowIDs)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Sessions:         sessions,
		WindowSessionIDs: windowIDs,
		CategoryAll:      all,
		CategoryWindow:   window,
	}, nil
}

// Render writes the full text report.
func (r Report) Render(w io.Writer, window, width int) error {
	if err := RenderSummary(w, r.Sessions); err != nil {
		return err
	}
	if len(r.Sessions) == 0 {
		return nil
	}
	if err := RenderCurve(w, r.Sessions, window, width); err != nil {
		return err
	}
	if err := RenderCategoryTable(w, r.CategoryAll); err != nil {
		return err
	}
	if len(r.WindowSessionIDs) < len(r.Sessions) {
		if _, err := fmt.Fprintf(w, "Last %d sessions\n", len(r.WindowSessionIDs)); err != nil {
			return err
		}
		return RenderCategoryTable(w, r.CategoryWindow)
	}
	return nil
}

func sessionIDs(sessions []model.SessionSummary) []string {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	return ids
}

func lastSessionIDs(sessions []model.SessionSummary, window int) []string {
	if window <= 0 || len(sessions) <= window {
		return sessionIDs(sessions)
	}
	return sessionIDs(sessions[len(sessions)-window:])
}

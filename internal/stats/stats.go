// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/verte-zerg/seqrecall/internal/model"
)

const (
	sparkChars          = " .:-=+*#%@"
	terminalWidthBackup = 80
	curveLabelWidth     = 14
)

// CategoryMetrics computes letter accuracy and mean response time.
func CategoryMetrics(agg model.CategoryAggregate) (accuracy, meanRT float64) {
	if agg.Total > 0 {
		accuracy = float64(agg.Correct) / float64(agg.Total)
	}
	if agg.Trials > 0 {
		meanRT = agg.RTSumSeconds / float64(agg.Trials)
	}
	return accuracy, meanRT
}

// SessionAccuracy returns the letter accuracy of a whole session.
func SessionAccuracy(s model.SessionSummary) float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total)
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// TerminalWidth returns the stdout width, or a fallback when not a terminal.
func TerminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return terminalWidthBackup
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

// RenderSummary prints an overview of the sessions.
func RenderSummary(w io.Writer, sessions []model.SessionSummary) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	var totalAcc float64
	best := 0.0
	pending := 0
	participants := map[string]struct{}{}
	for _, s := range sessions {
		acc := SessionAccuracy(s)
		totalAcc += acc
		best = math.Max(best, acc)
		if !s.Uploaded {
			pending++
		}
		participants[s.Identifier] = struct{}{}
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", len(sessions)),
		fmt.Sprintf("Participants: %d", len(participants)),
		fmt.Sprintf("Avg Accuracy: %.2f%%", totalAcc/float64(len(sessions))*100),
		fmt.Sprintf("Best Accuracy: %.2f%%", best*100),
		fmt.Sprintf("Not uploaded: %d", pending),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurve prints a moving-average accuracy sparkline fitted to width.
func RenderCurve(w io.Writer, sessions []model.SessionSummary, window, width int) error {
	if len(sessions) == 0 {
		return nil
	}
	values := make([]float64, len(sessions))
	for i, s := range sessions {
		values[i] = SessionAccuracy(s) * 100
	}
	values = MovingAverage(values, window)
	if avail := width - curveLabelWidth; avail > 0 && len(values) > avail {
		values = values[len(values)-avail:]
	}
	line := fmt.Sprintf("%-*s%s", curveLabelWidth, "Accuracy", Sparkline(values))
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%-*s%.1f%% .. %.1f%%\n\n", curveLabelWidth, "", minOf(values), maxOf(values))
	return err
}

// RankCategories orders aggregates from lowest to highest accuracy. Ties keep
// classification order.
func RankCategories(aggs []model.CategoryAggregate) []model.CategoryAggregate {
	ranked := make([]model.CategoryAggregate, len(aggs))
	copy(ranked, aggs)
	sort.Slice(ranked, func(i, j int) bool {
		ai, _ := CategoryMetrics(ranked[i])
		aj, _ := CategoryMetrics(ranked[j])
		if ai == aj {
			return categoryOrder(ranked[i].Category) < categoryOrder(ranked[j].Category)
		}
		return ai < aj
	})
	return ranked
}

// RenderCategoryTable prints per-category aggregates, weakest first.
func RenderCategoryTable(w io.Writer, aggs []model.CategoryAggregate) error {
	if len(aggs) == 0 {
		_, err := fmt.Fprintln(w, "No trial stats found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Per-Category"); err != nil {
		return err
	}
	tbl := newTable(
		column{title: "Pattern"},
		column{title: "Trials", right: true},
		column{title: "Accuracy", right: true},
		column{title: "Avg RT (s)", right: true},
		column{title: "Timed out", right: true},
	)
	for _, agg := range RankCategories(aggs) {
		acc, rt := CategoryMetrics(agg)
		tbl.add(
			string(agg.Category),
			strconv.Itoa(agg.Trials),
			fmt.Sprintf("%.2f%%", acc*100),
			fmt.Sprintf("%.2f", rt),
			strconv.Itoa(agg.TimedOut),
		)
	}
	for _, line := range tbl.lines() {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// categoryOrder returns the classification rank of c; unknown names sort last.
func categoryOrder(c model.Category) int {
	for i, known := range model.Categories {
		if known == c {
			return i
		}
	}
	return len(model.Categories)
}

func minOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		out = math.Min(out, v)
	}
	return out
}

func maxOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		out = math.Max(out, v)
	}
	return out
}

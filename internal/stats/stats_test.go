package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/verte-zerg/seqrecall/internal/model"
)

func TestCategoryMetrics(t *testing.T) {
	acc, rt := CategoryMetrics(model.CategoryAggregate{Trials: 2, Correct: 7, Total: 14, RTSumSeconds: 5})
	if acc != 0.5 || rt != 2.5 {
		t.Fatalf("unexpected metrics: %v %v", acc, rt)
	}
	acc, rt = CategoryMetrics(model.CategoryAggregate{})
	if acc != 0 || rt != 0 {
		t.Fatalf("expected zero metrics for empty aggregate")
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4}, 2)
	want := []float64{1, 1.5, 2.5, 3.5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 100}); got != " @" {
		t.Fatalf("unexpected sparkline %q", got)
	}
	if got := Sparkline([]float64{5, 5, 5}); len(got) != 3 {
		t.Fatalf("expected flat sparkline of length 3, got %q", got)
	}
	if Sparkline(nil) != "" {
		t.Fatalf("expected empty sparkline")
	}
}

func TestRankCategoriesWeakestFirst(t *testing.T) {
	ranked := RankCategories([]model.CategoryAggregate{
		{Category: model.CategoryRun, Correct: 7, Total: 7},
		{Category: model.CategoryRandom, Correct: 2, Total: 7},
		{Category: model.CategoryGroup, Correct: 2, Total: 7},
	})
	if ranked[0].Category != model.CategoryGroup || ranked[1].Category != model.CategoryRandom || ranked[2].Category != model.CategoryRun {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}
}

func TestRenderCategoryTable(t *testing.T) {
	var buf bytes.Buffer
	err := RenderCategoryTable(&buf, []model.CategoryAggregate{
		{Category: model.CategoryMirror, Trials: 4, Correct: 21, Total: 28, TimedOut: 1, RTSumSeconds: 12},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, needle := range []string{"Per-Category", "MIRROR", "75.00%", "3.00"} {
		if !strings.Contains(out, needle) {
			t.Fatalf("expected %q in output: %s", needle, out)
		}
	}
}

func TestRenderSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, nil); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "No sessions found.") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

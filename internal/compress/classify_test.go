package compress

import (
	"testing"

	"github.com/verte-zerg/seqrecall/internal/model"
)

func TestClassifyExamples(t *testing.T) {
	cases := []struct {
		seq      string
		category model.Category
		score    int
	}{
		{"ABABABA", model.CategoryRepeat, 3},
		{"CDCDCDC", model.CategoryRepeat, 3},
		{"AABBCCX", model.CategoryGroup, 2},
		{"MMNNOOP", model.CategoryGroup, 2},
		{"ABCDEFG", model.CategoryRun, 3},
		{"KLMNOPQ", model.CategoryRun, 3},
		{"ABCDCBA", model.CategoryMirror, 3},
		{"XYZYZYX", model.CategoryMirror, 3},
		{"QZTRPNL", model.CategoryRandom, 0},
		{"CDEFGED", model.CategoryRandom, 0},
	}
	for _, tc := range cases {
		got := Classify(tc.seq)
		if got.Category != tc.category || got.Score != tc.score {
			t.Fatalf("Classify(%q) = %+v, want %s/%d", tc.seq, got, tc.category, tc.score)
		}
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// Both REPEAT and GROUP hold for AAAAAAB; REPEAT wins.
	if got := Classify("AAAAAAB"); got.Category != model.CategoryRepeat {
		t.Fatalf("expected REPEAT, got %s", got.Category)
	}
	// Both REPEAT and MIRROR hold for ABABABA; REPEAT wins.
	if got := Classify("ABABABA"); got.Category != model.CategoryRepeat {
		t.Fatalf("expected REPEAT, got %s", got.Category)
	}
	// GROUP and MIRROR: AABBCCA is not a palindrome, AABBAA? is checked as GROUP first.
	if got := Classify("AABBAAB"); got.Category != model.CategoryGroup {
		t.Fatalf("expected GROUP, got %s", got.Category)
	}
}

func TestClassifyIgnoresSeventhForBlockRules(t *testing.T) {
	for _, last := range []string{"A", "Z", "Q"} {
		if got := Classify("XYXYXY" + last); got.Category != model.CategoryRepeat {
			t.Fatalf("expected REPEAT for XYXYXY%s, got %s", last, got.Category)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	for _, seq := range []string{"HXJKQTV", "EEFFGGH", "RSTUVWX"} {
		if Classify(seq) != Classify(seq) {
			t.Fatalf("expected deterministic result for %q", seq)
		}
	}
}

func TestClassifyShortInput(t *testing.T) {
	if got := Classify("ABA"); got.Category != model.CategoryMirror {
		t.Fatalf("expected MIRROR for short palindrome, got %s", got.Category)
	}
	if got := Classify(""); got.Category == "" {
		t.Fatalf("expected a category for empty input")
	}
}

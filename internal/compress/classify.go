// Package compress classifies letter sequences by how compressible they are.
package compress

import "github.com/verte-zerg/seqrecall/internal/model"

// Scores assigned to each category.
const (
	ScoreRepeat = 3
	ScoreGroup  = 2
	ScoreRun    = 3
	ScoreMirror = 3
	ScoreRandom = 0
)

// Classify returns the first matching category for seq. Rules are checked in
// order REPEAT, GROUP, RUN, MIRROR; anything else is RANDOM.
func Classify(seq string) model.Compressibility {
	runes := []rune(seq)
	switch {
	case isRepeat(runes):
		return model.Compressibility{Category: model.CategoryRepeat, Score: ScoreRepeat}
	case isGroup(runes):
		return model.Compressibility{Category: model.CategoryGroup, Score: ScoreGroup}
	case isRun(runes):
		return model.Compressibility{Category: model.CategoryRun, Score: ScoreRun}
	case isMirror(runes):
		return model.Compressibility{Category: model.CategoryMirror, Score: ScoreMirror}
	default:
		return model.Compressibility{Category: model.CategoryRandom, Score: ScoreRandom}
	}
}

// isRepeat reports whether the first six runes are one 2-rune unit three times.
func isRepeat(r []rune) bool {
	if len(r) < 6 {
		return false
	}
	return r[0] == r[2] && r[2] == r[4] && r[1] == r[3] && r[3] == r[5]
}

// isGroup reports whether positions (0,1), (2,3) and (4,5) are doubled runes.
func isGroup(r []rune) bool {
	if len(r) < 6 {
		return false
	}
	return r[0] == r[1] && r[2] == r[3] && r[4] == r[5]
}

func isRun(r []rune) bool {
	for i := 0; i+1 < len(r); i++ {
		if r[i+1] != r[i]+1 {
			return false
		}
	}
	return true
}

func isMirror(r []rune) bool {
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		if r[i] != r[j] {
			return false
		}
	}
	return true
}

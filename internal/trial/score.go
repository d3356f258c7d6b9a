// Package trial implements the timed stimulus/recall state machine.
package trial

import (
	"strings"
	"time"
	"unicode"

	"github.com/verte-zerg/seqrecall/internal/model"
)

// Normalize upper-cases raw and removes all whitespace.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// CorrectCount counts positions of stimulus matched by response. Response
// positions past the stimulus are ignored; missing ones are mismatches.
func CorrectCount(stimulus, response string) int {
	want := []rune(stimulus)
	got := []rune(response)
	correct := 0
	for i := range want {
		if i < len(got) && got[i] == want[i] {
			correct++
		}
	}
	return correct
}

// Score builds the record for one recall. raw is normalized first.
func Score(sc model.SessionContext, index int, stim model.Stimulus, raw string, latency time.Duration, timedOut bool) model.TrialRecord {
	response := Normalize(raw)
	total := len([]rune(stim.Sequence))
	correct := CorrectCount(stim.Sequence, response)
	accuracy := 0.0
	if total > 0 {
		accuracy = float64(correct) / float64(total)
	}
	return model.TrialRecord{
		ParticipantNumber: sc.ParticipantNumber,
		Identifier:        sc.Identifier,
		SessionID:         sc.SessionID,
		TrialIndex:        index,
		Sequence:          stim.Sequence,
		Recall:            response,
		CorrectCount:      correct,
		TotalLetters:      total,
		Accuracy:          accuracy,
		Compressibility:   stim.Compressibility.Score,
		PatternType:       stim.Compressibility.Category,
		RTSeconds:         latency.Seconds(),
		TimedOut:          timedOut,
		Strategy:          sc.Strategy,
	}
}

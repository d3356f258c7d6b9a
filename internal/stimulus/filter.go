package stimulus

import (
	"fmt"
	"strings"
)

// ValidSequence reports whether seq is SequenceLength uppercase ASCII letters.
func ValidSequence(seq string) bool {
	if len(seq) != SequenceLength {
		return false
	}
	for i := 0; i < len(seq); i++ {
		ch := seq[i]
		if ch < 'A' || ch > 'Z' {
			return false
		}
	}
	return true
}

// Validate checks both pools for length, duplicates and balance.
func (p Pools) Validate() error {
	if len(p.Patterned) == 0 || len(p.Random) == 0 {
		return fmt.Errorf("both pools must be non-empty")
	}
	if len(p.Patterned) != len(p.Random) {
		return fmt.Errorf("pools are unbalanced: %d patterned, %d random", len(p.Patterned), len(p.Random))
	}
	seen := make(map[string]string, p.Size())
	check := func(name string, seqs []string) error {
		for _, seq := range seqs {
			if !ValidSequence(seq) {
				return fmt.Errorf("invalid %s sequence %q: want %d letters A-Z", name, seq, SequenceLength)
			}
			if prev, ok := seen[seq]; ok {
				return fmt.Errorf("duplicate sequence %q in %s and %s pools", seq, prev, name)
			}
			seen[seq] = name
		}
		return nil
	}
	if err := check("patterned", p.Patterned); err != nil {
		return err
	}
	return check("random", p.Random)
}

func normalizeLine(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	return strings.ToUpper(strings.TrimSpace(line))
}

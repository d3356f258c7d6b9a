// Package stimulus builds the per-session stimulus order.
package stimulus

// PracticeSequence is shown once before the real trials.
const PracticeSequence = "ABCABCA"

// SequenceLength is the length of every stimulus.
const SequenceLength = 7

// Pools holds the two balanced stimulus sets.
type Pools struct {
	Patterned []string
	Random    []string
}

// DefaultPools returns the built-in 16 patterned and 16 random sequences.
func DefaultPools() Pools {
	return Pools{
		Patterned: []string{
			"ABABABA", "CDCDCDC", "EFEFEFE", "GHGHGHG",
			"AABBCCD", "MMNNOOP", "EEFFGGH", "QQRRSSA",
			"ABCDEFG", "KLMNOPQ", "RSTUVWX", "HIJKLMN",
			"ABCDCBA", "CDEFGED", "MNOPONM", "XYZYZYX",
		},
		Random: []string{
			"QZTRPNL", "BDFHJLK", "CMFGLQT", "HXJKQTV",
			"RLVTXPW", "NJQHZBM", "SPKFDLR", "MWRQZTA",
			"XBFNQJT", "KVMPZRC", "DLHGWXS", "YTQBFNJ",
			"ZPCMKHR", "WGLDTXV", "FNBJQSK", "HRCMPZL",
		},
	}
}

// Size returns the total number of sequences across both pools.
func (p Pools) Size() int {
	return len(p.Patterned) + len(p.Random)
}

package stimulus

import (
	"math/rand"
	"time"

	"github.com/verte-zerg/seqrecall/internal/compress"
	"github.com/verte-zerg/seqrecall/internal/model"
)

// Generator produces a session's stimulus order.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewWithSeed returns a Generator with a fixed seed.
func NewWithSeed(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Build concatenates both pools, shuffles them once and tags every item
// with its compressibility before any trial runs.
func (g *Generator) Build(pools Pools) []model.Stimulus {
	seqs := make([]string, 0, pools.Size())
	seqs = append(seqs, pools.Patterned...)
	seqs = append(seqs, pools.Random...)
	g.rnd.Shuffle(len(seqs), func(i, j int) {
		seqs[i], seqs[j] = seqs[j], seqs[i]
	})

	result := make([]model.Stimulus, 0, len(seqs))
	for _, seq := range seqs {
		result = append(result, Tag(seq))
	}
	return result
}

// Tag classifies a single sequence.
func Tag(seq string) model.Stimulus {
	return model.Stimulus{Sequence: seq, Compressibility: compress.Classify(seq)}
}

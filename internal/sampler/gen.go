// Package sampler turns a compiled block into trial sequences. Two
// generators are provided: a combinatoric one that draws uniformly from the
// counted solution space, and a SAT-backed one that iterates solver models.
package sampler

import (
	"context"

	"github.com/trialgen/trialgen/internal/block"
)

// Result is a batch of decoded samples. Exhausted is set when the block has
// fewer remaining solutions than were requested.
type Result struct {
	Samples   []block.Experiment
	Exhausted bool
}

// Gen produces up to n samples for a block.
type Gen interface {
	Name() string
	Sample(ctx context.Context, b *block.Block, n int) (Result, error)
}

package sampler

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/trialgen/trialgen/internal/block"
	"github.com/trialgen/trialgen/internal/enumerator"
)

// UniformGen samples uniformly at random from the block's counted solution
// space, rejecting only for constraints outside the counting model. Results
// are distinct within one Sample call. Designs the counting model cannot
// express fall back to the solver-backed generator, which forfeits the
// uniformity guarantee.
type UniformGen struct {
	rng *rand.Rand
	log logrus.FieldLogger
}

// NewUniformGen builds a uniform generator with an explicit random source,
// so callers control determinism.
func NewUniformGen(rng *rand.Rand, log logrus.FieldLogger) *UniformGen {
	return &UniformGen{rng: rng, log: log}
}

func (g *UniformGen) Name() string { return "uniform" }

func (g *UniformGen) Sample(ctx context.Context, b *block.Block, n int) (Result, error) {
	e, err := enumerator.New(b, enumerator.WithLogger(g.log))
	if err != nil {
		g.log.WithField("reason", err.Error()).
			Warn("design is outside the counting model, falling back to solver iteration")
		return NewIterateGen(g.log).Sample(ctx, b, n)
	}
	r, err := e.GenerateRandomSamples(ctx, n, g.rng)
	if err != nil {
		return Result{}, err
	}
	return Result{Samples: r.Samples, Exhausted: r.Exhausted}, nil
}

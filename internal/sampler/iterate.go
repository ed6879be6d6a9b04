package sampler

import (
	"context"
	"fmt"

	"github.com/go-air/gini"
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/z"
	"github.com/sirupsen/logrus"

	"github.com/trialgen/trialgen/internal/block"
)

const (
	satisfiable   = 1
	unsatisfiable = -1
)

// IterateGen asks a SAT solver for models one at a time, blocking each
// found model's design variables before the next call. It makes no
// uniformity promise; it exists for designs the combinatoric counter cannot
// express and as an oracle for testing.
type IterateGen struct {
	log logrus.FieldLogger
}

// NewIterateGen builds a solver-backed generator.
func NewIterateGen(log logrus.FieldLogger) *IterateGen {
	return &IterateGen{log: log}
}

func (g *IterateGen) Name() string { return "iterate" }

func (g *IterateGen) Sample(ctx context.Context, b *block.Block, n int) (Result, error) {
	req, err := b.BuildBackendRequest()
	if err != nil {
		return Result{}, err
	}
	formula, err := req.Compile()
	if err != nil {
		return Result{}, err
	}

	s := gini.New()
	for _, clause := range formula.Clauses() {
		for _, lit := range clause {
			s.Add(giniLit(lit))
		}
		s.Add(z.LitNull)
	}

	support := b.SupportVariables()
	result := Result{}
	for len(result.Samples) < n {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch s.Solve() {
		case satisfiable:
		case unsatisfiable:
			result.Exhausted = true
			return result, nil
		default:
			return result, fmt.Errorf("solver returned without a verdict")
		}

		assignment := make([]int, len(support))
		for i, v := range support {
			if s.Value(z.Var(uint32(v)).Pos()) {
				assignment[i] = v
			} else {
				assignment[i] = -v
			}
		}
		exp, err := b.Decode(assignment)
		if err != nil {
			return result, fmt.Errorf("decoding solver model: %w", err)
		}
		result.Samples = append(result.Samples, exp)
		g.log.WithField("collected", len(result.Samples)).Debug("solver model accepted")

		blockModel(s, assignment)
	}
	return result, nil
}

// blockModel forbids the exact assignment of the design variables, forcing
// the next Solve call to produce a different experiment.
func blockModel(s inter.S, assignment []int) {
	for _, lit := range assignment {
		s.Add(giniLit(-lit))
	}
	s.Add(z.LitNull)
}

func giniLit(lit int) z.Lit {
	if lit < 0 {
		return z.Var(uint32(-lit)).Neg()
	}
	return z.Var(uint32(lit)).Pos()
}

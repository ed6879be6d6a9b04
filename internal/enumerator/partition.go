package enumerator

import (
	"github.com/samber/lo"

	"github.com/trialgen/trialgen/internal/block"
	"github.com/trialgen/trialgen/pkg/design"
)

// partitions splits the design's factors by the role they play in
// combinatoric sampling. Crossed non-complex factors form the permuted
// instance space; uncrossed basic factors either feed a crossed derivation
// ("sources", drawn per trial against the instance) or nothing
// ("independents", drawn freely); everything derived that is not part of an
// instance is computed after the fact.
type partitions struct {
	crossedSimple  []*design.Factor
	crossedComplex []*design.Factor
	sources        []*design.Factor
	independents   []*design.Factor
	derivedFill    []*design.Factor
}

func partition(b *block.Block) partitions {
	var p partitions
	primary := b.Crossings()[0]

	p.crossedSimple = lo.Filter(primary, func(f *design.Factor, _ int) bool {
		return !f.HasComplexWindow()
	})
	p.crossedComplex = lo.Filter(primary, func(f *design.Factor, _ int) bool {
		return f.HasComplexWindow()
	})

	crossedDerived := lo.Filter(p.crossedSimple, func(f *design.Factor, _ int) bool {
		return f.IsDerived()
	})
	for _, df := range crossedDerived {
		for _, src := range df.FirstWindow().Factors {
			if !lo.Contains(p.sources, src) {
				p.sources = append(p.sources, src)
			}
		}
	}

	for _, f := range b.Factors() {
		if lo.Contains(p.crossedSimple, f) {
			continue
		}
		switch {
		case f.IsDerived():
			p.derivedFill = append(p.derivedFill, f)
		case lo.Contains(p.sources, f):
			// Drawn per trial, constrained by the instance.
		default:
			p.independents = append(p.independents, f)
		}
	}
	// Sources that are themselves crossed need no separate draw.
	p.sources = lo.Filter(p.sources, func(f *design.Factor, _ int) bool {
		return !lo.Contains(p.crossedSimple, f)
	})

	// Shallower derivations must be filled in first; deeper ones read them.
	for i := 1; i < len(p.derivedFill); i++ {
		for j := i; j > 0 && p.derivedFill[j].DerivationDepth() < p.derivedFill[j-1].DerivationDepth(); j-- {
			p.derivedFill[j], p.derivedFill[j-1] = p.derivedFill[j-1], p.derivedFill[j]
		}
	}
	return p
}

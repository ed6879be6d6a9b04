package block

import (
	"github.com/trialgen/trialgen/pkg/design"
)

// Combination is one cell of a crossing: a chosen level for each crossing
// factor, in crossing order.
type Combination struct {
	Levels []levelRef
}

// Weight is how many times the combination must occur per complete
// crossing: the product of its levels' weights.
func (c Combination) Weight() int {
	w := 1
	for _, ref := range c.Levels {
		w *= ref.Level.Weight
	}
	return w
}

func (c Combination) levelFor(f *design.Factor) *design.Level {
	for _, ref := range c.Levels {
		if ref.Factor == f {
			return ref.Level
		}
	}
	return nil
}

// CrossingCombinations enumerates the full Cartesian product of the
// crossing's levels, in lexicographic level order.
func (b *Block) CrossingCombinations(crossing []*design.Factor) []Combination {
	combos := []Combination{{}}
	for _, f := range crossing {
		next := make([]Combination, 0, len(combos)*len(f.Levels))
		for _, c := range combos {
			for _, l := range f.Levels {
				levels := make([]levelRef, len(c.Levels), len(c.Levels)+1)
				copy(levels, c.Levels)
				next = append(next, Combination{Levels: append(levels, levelRef{Factor: f, Level: l})})
			}
		}
		combos = next
	}
	return combos
}

// ValidCombinations drops combinations that an Exclude constraint or an
// impossible derivation removes from the crossing.
func (b *Block) ValidCombinations(crossing []*design.Factor) []Combination {
	var out []Combination
	for _, c := range b.CrossingCombinations(crossing) {
		if !b.combinationExcluded(c) {
			out = append(out, c)
		}
	}
	return out
}

// combinationExcluded reports whether a combination can never occur: one of
// its levels is excluded outright, one of its derived levels contradicts the
// source levels fixed by the same combination, or choosing it would force an
// excluded derived level elsewhere in the design.
func (b *Block) combinationExcluded(c Combination) bool {
	for _, ref := range c.Levels {
		if b.IsExcluded(ref.Factor, ref.Level) {
			return true
		}
	}
	for _, ref := range c.Levels {
		if !ref.Level.IsDerived() || ref.Factor.HasComplexWindow() {
			continue
		}
		if !b.combinationAdmitsLevel(c, ref.Factor, ref.Level) {
			return true
		}
	}
	for _, e := range b.excluded {
		if !e.Level.IsDerived() || e.Factor.HasComplexWindow() {
			continue
		}
		if c.levelFor(e.Factor) != nil {
			continue // handled by the direct check above
		}
		if b.combinationForcesLevel(c, e.Factor, e.Level) {
			return true
		}
	}
	return false
}

// combinationAdmitsLevel reports whether some satisfying window assignment
// of the derived level agrees with every source level the combination fixes.
func (b *Block) combinationAdmitsLevel(c Combination, f *design.Factor, l *design.Level) bool {
	d := b.derivationFor(f, l)
	if d == nil {
		return true
	}
	for _, tuple := range d.Tuples {
		if tupleAgrees(tuple, c) {
			return true
		}
	}
	return false
}

// combinationForcesLevel reports whether the combination fixes all of the
// derived level's sources onto one of its satisfying assignments.
func (b *Block) combinationForcesLevel(c Combination, f *design.Factor, l *design.Level) bool {
	for _, src := range l.Window.Factors {
		if c.levelFor(src) == nil {
			return false
		}
	}
	d := b.derivationFor(f, l)
	if d == nil {
		return false
	}
	for _, tuple := range d.Tuples {
		if tupleAgrees(tuple, c) {
			return true
		}
	}
	return false
}

func tupleAgrees(tuple []sourceRef, c Combination) bool {
	for _, r := range tuple {
		if chosen := c.levelFor(r.Factor); chosen != nil && chosen != r.Level {
			return false
		}
	}
	return true
}

// CrossingSizeWithoutExclusions is the weighted size of the full Cartesian
// product.
func (b *Block) CrossingSizeWithoutExclusions(crossing []*design.Factor) int {
	size := 1
	for _, f := range crossing {
		size *= f.LevelWeightSum()
	}
	return size
}

// CrossingSize is the weighted count of combinations that can actually
// occur.
func (b *Block) CrossingSize(crossing []*design.Factor) int {
	size := 0
	for _, c := range b.ValidCombinations(crossing) {
		size += c.Weight()
	}
	return size
}

// checkExclusions enforces the complete-crossing policy: eliminated
// combinations are a construction error when the crossing must be complete,
// and a logged warning plus a reduced crossing size otherwise.
func (b *Block) checkExclusions() error {
	for _, crossing := range b.crossings {
		full := b.CrossingSizeWithoutExclusions(crossing)
		reduced := b.CrossingSize(crossing)
		if reduced == full {
			continue
		}
		if reduced == 0 {
			return validationErrorf("every combination of the crossing is excluded; the design is unsatisfiable")
		}
		if b.requireCompleteCrossing {
			return validationErrorf(
				"exclusions eliminate %d of %d crossing combinations, but the crossing is required to be complete",
				full-reduced, full)
		}
		b.log.Warnf("exclusions reduce the crossing from %d to %d combinations", full, reduced)
	}
	return nil
}

package block

import (
	"strings"

	"github.com/samber/lo"

	"github.com/trialgen/trialgen/pkg/design"
)

// sourceRef names one observed source level inside a derivation window:
// factor src takes level on the window's trial at the given offset
// (0 = oldest trial in the window).
type sourceRef struct {
	Factor *design.Factor
	Level  *design.Level
	Offset int
}

// derivation records, for one derived level, every window assignment that
// makes its predicate true.
type derivation struct {
	Factor *design.Factor
	Level  *design.Level
	Tuples [][]sourceRef
}

// buildDerivations evaluates every derived level's predicate over the full
// Cartesian product of its window's source levels, recording the satisfying
// assignments. It also checks that each derived factor's levels are jointly
// exhaustive and mutually exclusive over that product.
func (b *Block) buildDerivations() error {
	for _, f := range b.factors {
		if !f.IsDerived() {
			continue
		}
		w := f.FirstWindow()
		assignments := windowAssignments(w)
		satisfied := make([]int, len(assignments))

		for _, l := range f.Levels {
			d := derivation{Factor: f, Level: l}
			for i, a := range assignments {
				if l.Window.Predicate(windowArgs(w, a)) {
					satisfied[i]++
					d.Tuples = append(d.Tuples, a)
				}
			}
			if len(d.Tuples) == 0 {
				if b.factorIsCrossed(f) && b.requireCompleteCrossing {
					return validationErrorf(
						"level %q of factor %q can never hold: its predicate rejects every window assignment",
						l.Name, f.Name)
				}
				b.log.Warnf("level %q of factor %q can never hold; it is dropped from the derivation", l.Name, f.Name)
			}
			b.derivations = append(b.derivations, d)
		}

		for i, count := range satisfied {
			if count == 1 {
				continue
			}
			names := lo.Map(assignments[i], func(r sourceRef, _ int) string {
				return r.Factor.Name + "=" + r.Level.Name
			})
			if count == 0 {
				return validationErrorf("levels of factor %q are not exhaustive: no level holds for (%s)",
					f.Name, strings.Join(names, ", "))
			}
			return validationErrorf("levels of factor %q are not mutually exclusive: %d levels hold for (%s)",
				f.Name, count, strings.Join(names, ", "))
		}
	}
	return nil
}

// windowAssignments enumerates the Cartesian product of the window's source
// levels across its width: one sourceRef per (factor, trial-offset) pair.
func windowAssignments(w *design.Window) (assignments [][]sourceRef) {
	var slots []sourceRef
	var recurse func(fi, offset int)
	recurse = func(fi, offset int) {
		if fi == len(w.Factors) {
			assignments = append(assignments, append([]sourceRef(nil), slots...))
			return
		}
		nextFi, nextOffset := fi, offset+1
		if nextOffset == w.Width {
			nextFi, nextOffset = fi+1, 0
		}
		for _, l := range w.Factors[fi].Levels {
			slots = append(slots, sourceRef{Factor: w.Factors[fi], Level: l, Offset: offset})
			recurse(nextFi, nextOffset)
			slots = slots[:len(slots)-1]
		}
	}
	recurse(0, 0)
	return assignments
}

// windowArgs shapes one assignment into predicate arguments: per source
// factor, the window-width level names oldest trial first.
func windowArgs(w *design.Window, a []sourceRef) [][]string {
	args := make([][]string, len(w.Factors))
	for i := range args {
		args[i] = make([]string, w.Width)
	}
	for _, r := range a {
		for i, f := range w.Factors {
			if f == r.Factor {
				args[i][r.Offset] = r.Level.Name
			}
		}
	}
	return args
}

func (b *Block) factorIsCrossed(f *design.Factor) bool {
	for _, crossing := range b.crossings {
		for _, g := range crossing {
			if g == f {
				return true
			}
		}
	}
	return false
}

// derivationFor returns the recorded derivation for a level, or nil for
// simple levels.
func (b *Block) derivationFor(f *design.Factor, l *design.Level) *derivation {
	for i := range b.derivations {
		if b.derivations[i].Factor == f && b.derivations[i].Level == l {
			return &b.derivations[i]
		}
	}
	return nil
}

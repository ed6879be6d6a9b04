package enumerator

import (
	"fmt"
	"math/big"

	"github.com/trialgen/trialgen/internal/block"
	"github.com/trialgen/trialgen/internal/combinatorics"
	"github.com/trialgen/trialgen/pkg/design"
)

// materialize inverts one global rank into a complete experiment: split the
// rank into its independent components, unrank each full chunk's permutation
// and source choices, walk the weighted tail, then fill in derived factors
// by direct predicate evaluation.
func (e *Enumerator) materialize(u *big.Int) (block.Experiment, error) {
	sizes := make([]*big.Int, 0, len(e.indepSizes)+2*e.fullChunks+1)
	sizes = append(sizes, e.indepSizes...)
	for i := 0; i < e.fullChunks; i++ {
		sizes = append(sizes, e.permCount, e.chunkSourceSize)
	}
	if e.tail > 0 {
		sizes = append(sizes, e.tailCount)
	}
	components := combinatorics.ExtractComponents(sizes, u)

	exp := block.Experiment{}
	for _, f := range e.block.Factors() {
		exp[f.Name] = make([]string, e.trials)
	}

	// Independent factors: one base-levels number per factor.
	next := 0
	for i, f := range e.parts.independents {
		choices := combinatorics.JthCombination(e.trials, len(f.Levels), components[next+i])
		for t, levelIdx := range choices {
			exp[f.Name][t] = f.Levels[levelIdx].Name
		}
	}
	next += len(e.parts.independents)

	// Crossed instances and their source completions, chunk by chunk.
	trial := 0
	for chunk := 0; chunk < e.fullChunks; chunk++ {
		sequence, err := combinatorics.JthPrefix(e.counters, e.crossingSize, components[next], e.memo)
		if err != nil {
			return nil, err
		}
		next++
		completionSizes := make([]*big.Int, len(sequence))
		for i, instanceIdx := range sequence {
			completionSizes[i] = big.NewInt(int64(len(e.completions[instanceIdx])))
		}
		completionRanks := combinatorics.ExtractComponents(completionSizes, components[next])
		next++
		for i, instanceIdx := range sequence {
			e.assignTrial(exp, trial, instanceIdx, int(completionRanks[i].Int64()))
			trial++
		}
	}
	if e.tail > 0 {
		if err := e.materializeTail(exp, trial, components[next]); err != nil {
			return nil, err
		}
		trial += e.tail
	}

	// Derived factors, shallowest derivation first.
	for _, f := range e.parts.derivedFill {
		if err := e.fillDerived(exp, f); err != nil {
			return nil, err
		}
	}
	return exp, nil
}

func (e *Enumerator) assignTrial(exp block.Experiment, trial, instanceIdx, completionIdx int) {
	for _, ref := range e.instances[instanceIdx].Levels {
		exp[ref.Factor.Name][trial] = ref.Level.Name
	}
	for factorName, levelName := range e.completions[instanceIdx][completionIdx] {
		exp[factorName][trial] = levelName
	}
}

// materializeTail walks the weighted-tail counting recursion in reverse:
// at each position the rank selects an instance and one of its completions,
// weighted exactly as they were counted.
func (e *Enumerator) materializeTail(exp block.Experiment, trial int, rank *big.Int) error {
	counters := append([]int(nil), e.counters...)
	rest := new(big.Int).Set(rank)
	for pos := 0; pos < e.tail; pos++ {
		chosen := -1
		var completionRank *big.Int
		for i := range counters {
			if counters[i] == 0 {
				continue
			}
			counters[i]--
			sub := e.weightedTailCount(counters, e.tail-pos-1)
			size := new(big.Int).Mul(big.NewInt(int64(len(e.completions[i]))), sub)
			if rest.Cmp(size) < 0 {
				q, r := new(big.Int).QuoRem(rest, sub, new(big.Int))
				completionRank, rest = q, r
				chosen = i
				break
			}
			rest.Sub(rest, size)
			counters[i]++
		}
		if chosen < 0 {
			return fmt.Errorf("tail rank out of range")
		}
		e.assignTrial(exp, trial+pos, chosen, int(completionRank.Int64()))
	}
	return nil
}

// fillDerived evaluates the factor's level predicates over the now-known
// trial sequence, one applicable trial at a time.
func (e *Enumerator) fillDerived(exp block.Experiment, f *design.Factor) error {
	w := f.FirstWindow()
	for t := 1; t <= e.trials; t++ {
		if !f.AppliesToTrial(t) {
			continue
		}
		args := make([][]string, len(w.Factors))
		for i, src := range w.Factors {
			args[i] = make([]string, w.Width)
			for o := 0; o < w.Width; o++ {
				args[i][o] = exp[src.Name][t-w.Width+o]
			}
		}
		assigned := ""
		for _, l := range f.Levels {
			if !l.Window.Predicate(args) {
				continue
			}
			if assigned != "" {
				return fmt.Errorf("levels %q and %q of factor %q both hold on trial %d", assigned, l.Name, f.Name, t)
			}
			assigned = l.Name
		}
		if assigned == "" {
			return fmt.Errorf("no level of factor %q holds on trial %d", f.Name, t)
		}
		exp[f.Name][t-1] = assigned
	}
	return nil
}

// conforms applies every user constraint and, for crossings the counting
// model does not enforce, checks the achieved combination counts against
// the chunked expectation.
func (e *Enumerator) conforms(exp block.Experiment) bool {
	if !e.block.Conforms(exp) {
		return false
	}
	for i, crossing := range e.block.Crossings() {
		if i == 0 && len(e.parts.crossedComplex) == 0 {
			continue // enforced by construction
		}
		if !e.crossingBalanced(exp, crossing) {
			return false
		}
	}
	return true
}

// crossingBalanced checks the crossing's chunked balance over the trials it
// applies to: each full window of crossing-size trials must hold every valid
// combination exactly its weight, and the trailing partial window at most
// its weight. This is the same balance the SAT encoding asserts.
func (e *Enumerator) crossingBalanced(exp block.Experiment, crossing []*design.Factor) bool {
	var applicable []int
	for t := 1; t <= e.trials; t++ {
		applies := true
		for _, f := range crossing {
			if !f.AppliesToTrial(t) {
				applies = false
				break
			}
		}
		if applies {
			applicable = append(applicable, t)
		}
	}
	size := e.block.CrossingSize(crossing)
	if size == 0 {
		return true
	}
	combos := e.block.ValidCombinations(crossing)
	for start := 0; start < len(applicable); start += size {
		end := start + size
		full := end <= len(applicable)
		if !full {
			end = len(applicable)
		}
		for _, combo := range combos {
			count := 0
			for _, t := range applicable[start:end] {
				match := true
				for _, ref := range combo.Levels {
					if exp[ref.Factor.Name][t-1] != ref.Level.Name {
						match = false
						break
					}
				}
				if match {
					count++
				}
			}
			w := combo.Weight()
			if full && count != w {
				return false
			}
			if !full && count > w {
				return false
			}
		}
	}
	return true
}

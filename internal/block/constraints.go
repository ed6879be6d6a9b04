package block

import (
	"fmt"

	"github.com/trialgen/trialgen/internal/logic"
	"github.com/trialgen/trialgen/pkg/design"
)

// BuildBackendRequest assembles the complete solver request for this block:
// consistency one-hots, crossing balance, derivation equivalences, and the
// user constraints, in that order.
func (b *Block) BuildBackendRequest() (*BackendRequest, error) {
	req := b.NewBackendRequest()
	if err := b.applyConsistency(req); err != nil {
		return nil, err
	}
	for _, crossing := range b.crossings {
		if err := b.applyCrossing(req, crossing); err != nil {
			return nil, err
		}
	}
	if err := b.applyDerivations(req); err != nil {
		return nil, err
	}
	for _, c := range b.constraints {
		if err := b.applyConstraint(req, c); err != nil {
			return nil, fmt.Errorf("applying %T: %w", c, err)
		}
	}
	return req, nil
}

// applyConsistency asserts that every factor takes exactly one level on
// every trial it applies to.
func (b *Block) applyConsistency(req *BackendRequest) error {
	for _, f := range b.factors {
		for t := 1; t <= b.TrialsPerSample(); t++ {
			if !f.AppliesToTrial(t) {
				continue
			}
			vars, err := b.FactorVariablesForTrial(f, t)
			if err != nil {
				return err
			}
			if err := req.AddRequest(LowLevelRequest{Comparison: EQ, K: 1, Variables: vars}); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyCrossing introduces one fresh state variable per (trial, valid
// combination) pair, ties it to the conjunction of the combination's level
// variables, and balances the state columns chunk by chunk: the applicable
// trials split into windows of crossing-size trials, every full window holds
// each combination exactly its weight, and the trailing partial window holds
// it at most its weight (a prefix of a fresh repetition of the crossing).
func (b *Block) applyCrossing(req *BackendRequest, crossing []*design.Factor) error {
	combos := b.ValidCombinations(crossing)
	size := b.CrossingSize(crossing)
	if len(combos) == 0 || size == 0 {
		return nil
	}
	var trials []int
	for t := 1; t <= b.TrialsPerSample(); t++ {
		applies := true
		for _, f := range crossing {
			if !f.AppliesToTrial(t) {
				applies = false
				break
			}
		}
		if applies {
			trials = append(trials, t)
		}
	}

	columns := make([][]int, len(combos))
	var equivalences []logic.Formula
	for _, t := range trials {
		for i, combo := range combos {
			operands := make([]logic.Formula, 0, len(combo.Levels))
			for _, ref := range combo.Levels {
				v, err := b.EncodeVariable(ref.Factor, ref.Level, t)
				if err != nil {
					return err
				}
				operands = append(operands, logic.Var(v))
			}
			state := req.GetFresh()
			columns[i] = append(columns[i], state)
			equivalences = append(equivalences, logic.Iff{P: logic.Var(state), Q: logic.NewAnd(operands)})
		}
	}
	if err := req.AddFormula(logic.NewAnd(equivalences), b.strategy); err != nil {
		return err
	}
	for start := 0; start < len(trials); start += size {
		end := start + size
		full := end <= len(trials)
		if !full {
			end = len(trials)
		}
		for i, combo := range combos {
			window := LowLevelRequest{Comparison: EQ, K: combo.Weight(), Variables: columns[i][start:end]}
			if !full {
				window = LowLevelRequest{Comparison: LT, K: combo.Weight() + 1, Variables: columns[i][start:end]}
			}
			if err := req.AddRequest(window); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyDerivations asserts, per derived level and applicable trial, that the
// level's variable is equivalent to the disjunction of its satisfying window
// assignments. A level with no satisfying assignment is forced false.
func (b *Block) applyDerivations(req *BackendRequest) error {
	for _, d := range b.derivations {
		width := d.Factor.FirstWindow().Width
		var formulas []logic.Formula
		for t := 1; t <= b.TrialsPerSample(); t++ {
			if !d.Factor.AppliesToTrial(t) {
				continue
			}
			dv, err := b.EncodeVariable(d.Factor, d.Level, t)
			if err != nil {
				return err
			}
			if len(d.Tuples) == 0 {
				req.AddClauses([]int{-dv})
				continue
			}
			alternatives := make([]logic.Formula, 0, len(d.Tuples))
			for _, tuple := range d.Tuples {
				conj := make([]logic.Formula, 0, len(tuple))
				for _, r := range tuple {
					sv, err := b.EncodeVariable(r.Factor, r.Level, t-width+1+r.Offset)
					if err != nil {
						return fmt.Errorf("derivation of %q.%q: %w", d.Factor.Name, d.Level.Name, err)
					}
					conj = append(conj, logic.Var(sv))
				}
				alternatives = append(alternatives, logic.NewAnd(conj))
			}
			formulas = append(formulas, logic.Iff{P: logic.Var(dv), Q: logic.NewOr(alternatives)})
		}
		if len(formulas) == 0 {
			continue
		}
		if err := req.AddFormula(logic.NewAnd(formulas), b.strategy); err != nil {
			return err
		}
	}
	return nil
}

func (b *Block) factorByName(name string) *design.Factor {
	for _, f := range b.factors {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// targetLevels resolves a constraint's level reference: one named level, or
// all of the factor's levels when the name is empty.
func (b *Block) targetLevels(factorName, levelName string) (*design.Factor, []*design.Level, error) {
	f := b.factorByName(factorName)
	if f == nil {
		return nil, nil, fmt.Errorf("unknown factor %q", factorName)
	}
	if levelName == "" {
		return f, f.Levels, nil
	}
	l := f.GetLevel(levelName)
	if l == nil {
		return nil, nil, fmt.Errorf("unknown level %q of factor %q", levelName, factorName)
	}
	return f, []*design.Level{l}, nil
}

func (b *Block) applyConstraint(req *BackendRequest, c design.Constraint) error {
	switch t := c.(type) {
	case design.MinimumTrials:
		// Already folded into TrialsPerSample.
		return nil
	case design.Exclude:
		f, levels, err := b.targetLevels(t.Factor, t.Level)
		if err != nil {
			return err
		}
		for _, v := range b.BuildVariableList(f, levels[0]) {
			req.AddClauses([]int{-v})
		}
		return nil
	case design.Pin:
		return b.applyPin(req, t)
	case design.ExactlyK:
		f, levels, err := b.targetLevels(t.Factor, t.Level)
		if err != nil {
			return err
		}
		return req.AddRequest(LowLevelRequest{Comparison: EQ, K: t.K, Variables: b.BuildVariableList(f, levels[0])})
	case design.AtMostKInARow:
		f, levels, err := b.targetLevels(t.Factor, t.Level)
		if err != nil {
			return err
		}
		for _, l := range levels {
			if err := b.applyAtMostKInARow(req, t.K, b.BuildVariableList(f, l)); err != nil {
				return err
			}
		}
		return nil
	case design.AtLeastKInARow:
		f, levels, err := b.targetLevels(t.Factor, t.Level)
		if err != nil {
			return err
		}
		for _, l := range levels {
			if err := b.applyRuns(req, t.K, b.BuildVariableList(f, l), false); err != nil {
				return err
			}
		}
		return nil
	case design.ExactlyKInARow:
		f, levels, err := b.targetLevels(t.Factor, t.Level)
		if err != nil {
			return err
		}
		for _, l := range levels {
			if err := b.applyRuns(req, t.K, b.BuildVariableList(f, l), true); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown constraint %T", c)
	}
}

// applyPin resolves the (possibly end-relative) trial and unit-asserts the
// level's variable there.
func (b *Block) applyPin(req *BackendRequest, p design.Pin) error {
	f, levels, err := b.targetLevels(p.Factor, p.Level)
	if err != nil {
		return err
	}
	trial := p.Trial
	if trial < 0 {
		trial = b.TrialsPerSample() + 1 + trial
	}
	if trial < 1 || trial > b.TrialsPerSample() {
		return fmt.Errorf("pinned trial %d resolves outside [1, %d]", p.Trial, b.TrialsPerSample())
	}
	if !f.AppliesToTrial(trial) {
		return fmt.Errorf("factor %q does not apply to pinned trial %d", f.Name, trial)
	}
	v, err := b.EncodeVariable(f, levels[0], trial)
	if err != nil {
		return err
	}
	req.AddClauses([]int{v})
	return nil
}

// applyAtMostKInARow slides a window of k+1 trials over the level's variable
// list and bounds each window's count below k+1, which forbids any run
// longer than k.
func (b *Block) applyAtMostKInARow(req *BackendRequest, k int, vars []int) error {
	if len(vars) <= k {
		return nil
	}
	for i := 0; i+k < len(vars); i++ {
		window := vars[i : i+k+1]
		if err := req.AddRequest(LowLevelRequest{Comparison: LT, K: k + 1, Variables: window}); err != nil {
			return err
		}
	}
	return nil
}

// applyRuns asserts that every run of the level is at least k long and, when
// exact is set, also ends after exactly k: whenever the level starts (false
// then true, or true on the first trial), the following k-1 positions must
// hold it too, and for exact runs the position after that must not.
func (b *Block) applyRuns(req *BackendRequest, k int, vars []int, exact bool) error {
	var formulas []logic.Formula
	for i := range vars {
		var condition logic.Formula
		if i == 0 {
			condition = logic.Var(vars[0])
		} else {
			condition = logic.NewAnd([]logic.Formula{
				logic.Not{Operand: logic.Var(vars[i-1])},
				logic.Var(vars[i]),
			})
		}
		if i+k > len(vars) {
			// Not enough room for a full run; the level cannot start here.
			formulas = append(formulas, logic.Not{Operand: condition})
			continue
		}
		var consequent []logic.Formula
		for j := i + 1; j < i+k; j++ {
			consequent = append(consequent, logic.Var(vars[j]))
		}
		if exact && i+k < len(vars) {
			consequent = append(consequent, logic.Not{Operand: logic.Var(vars[i+k])})
		}
		if len(consequent) == 0 {
			continue
		}
		formulas = append(formulas, logic.If{P: condition, Q: logic.NewAnd(consequent)})
	}
	if len(formulas) == 0 {
		return nil
	}
	return req.AddFormula(logic.NewAnd(formulas), b.strategy)
}

package block

import (
	"fmt"

	"github.com/trialgen/trialgen/pkg/design"
)

// Experiment is a decoded trial sequence: per factor name, one level name
// per trial, with an empty string on trials the factor does not apply to.
type Experiment map[string][]string

// Decode turns a solver assignment (one signed literal per variable, in
// variable order) back into an experiment. It fails loudly on assignments
// that are too short or misnumbered; a partial decode would silently
// corrupt the result.
func (b *Block) Decode(assignment []int) (Experiment, error) {
	n := b.VariablesPerSample()
	if len(assignment) < n {
		return nil, fmt.Errorf("assignment has %d literals but the design needs %d", len(assignment), n)
	}
	for i := 0; i < n; i++ {
		lit := assignment[i]
		if lit != i+1 && lit != -(i+1) {
			return nil, fmt.Errorf("assignment literal %d at position %d does not name variable %d", lit, i, i+1)
		}
	}

	exp := Experiment{}
	for _, f := range b.factors {
		exp[f.Name] = make([]string, b.TrialsPerSample())
	}
	for v := 1; v <= n; v++ {
		if assignment[v-1] < 0 {
			continue
		}
		f, l, trial, err := b.DecodeVariable(v)
		if err != nil {
			return nil, err
		}
		if prev := exp[f.Name][trial-1]; prev != "" && prev != l.Name {
			return nil, fmt.Errorf("assignment sets both %q and %q for factor %q on trial %d",
				prev, l.Name, f.Name, trial)
		}
		exp[f.Name][trial-1] = l.Name
	}
	for _, f := range b.factors {
		for t := 1; t <= b.TrialsPerSample(); t++ {
			if f.AppliesToTrial(t) && exp[f.Name][t-1] == "" {
				return nil, fmt.Errorf("assignment leaves factor %q undecided on trial %d", f.Name, t)
			}
		}
	}
	return exp, nil
}

// Encode is the inverse of Decode, mainly for round-trip testing: it renders
// an experiment as one signed literal per design variable.
func (b *Block) Encode(exp Experiment) ([]int, error) {
	n := b.VariablesPerSample()
	out := make([]int, n)
	for v := 1; v <= n; v++ {
		f, l, trial, err := b.DecodeVariable(v)
		if err != nil {
			return nil, err
		}
		seq, ok := exp[f.Name]
		if !ok {
			return nil, fmt.Errorf("experiment is missing factor %q", f.Name)
		}
		if len(seq) != b.TrialsPerSample() {
			return nil, fmt.Errorf("experiment has %d trials for factor %q but the design needs %d",
				len(seq), f.Name, b.TrialsPerSample())
		}
		if seq[trial-1] == l.Name {
			out[v-1] = v
		} else {
			out[v-1] = -v
		}
	}
	return out, nil
}

// Conforms checks a fully materialized experiment against every user
// constraint. The enumerator uses it as its rejection test.
func (b *Block) Conforms(exp Experiment) bool {
	for _, c := range b.constraints {
		if !b.constraintHolds(c, exp) {
			return false
		}
	}
	return true
}

func (b *Block) constraintHolds(c design.Constraint, exp Experiment) bool {
	switch t := c.(type) {
	case design.MinimumTrials:
		return len(exp[firstFactorName(exp)]) >= t.Trials
	case design.Exclude:
		for _, name := range exp[t.Factor] {
			if name == t.Level {
				return false
			}
		}
		return true
	case design.Pin:
		trial := t.Trial
		if trial < 0 {
			trial = b.TrialsPerSample() + 1 + trial
		}
		seq := exp[t.Factor]
		return trial >= 1 && trial <= len(seq) && seq[trial-1] == t.Level
	case design.ExactlyK:
		count := 0
		for _, name := range exp[t.Factor] {
			if name == t.Level {
				count++
			}
		}
		return count == t.K
	case design.AtMostKInARow:
		for _, run := range runLengths(exp[t.Factor], t.Level) {
			if run > t.K {
				return false
			}
		}
		return true
	case design.AtLeastKInARow:
		for _, run := range runLengths(exp[t.Factor], t.Level) {
			if run < t.K {
				return false
			}
		}
		return true
	case design.ExactlyKInARow:
		for _, run := range runLengths(exp[t.Factor], t.Level) {
			if run != t.K {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// runLengths returns the length of every maximal run over the trials the
// factor applies to. An empty target level means every level's runs.
func runLengths(seq []string, level string) []int {
	var runs []int
	current, run := "", 0
	flush := func() {
		if run > 0 && (level == "" || current == level) {
			runs = append(runs, run)
		}
		run = 0
	}
	for _, name := range seq {
		if name == "" {
			continue
		}
		if name != current {
			flush()
			current = name
		}
		run++
	}
	flush()
	return runs
}

func firstFactorName(exp Experiment) string {
	for name := range exp {
		return name
	}
	return ""
}

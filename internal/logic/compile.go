package logic

import "fmt"

// Strategy converts an arbitrary formula into an equisatisfiable CNF,
// represented as an And of Or-of-literal clauses. nextVar is the first
// unused variable number; the returned counter accounts for any fresh
// variables the strategy allocated.
type Strategy func(f Formula, nextVar int) (And, int)

// ToCNFNaive distributes Or over And by Cartesian product. It allocates no
// fresh variables, but clause count can grow exponentially with nested
// conjunctions; acceptable for small designs only.
func ToCNFNaive(f Formula, nextVar int) (And, int) {
	g := distributeOrsNaive(applyDeMorgan(eliminateIff(f)))
	return asAnd(g), nextVar
}

// ToCNFSwitching distributes Or over And, but when both sides of an
// or-of-ands are compound it allocates one switching variable instead of
// fully distributing, bounding clause growth to linear in formula size.
func ToCNFSwitching(f Formula, nextVar int) (And, int) {
	g, fresh := distributeOrsSwitching(applyDeMorgan(eliminateIff(f)), nextVar)
	return asAnd(g), fresh
}

// ToCNFTseitin names every distinct subformula with a fresh variable and
// asserts the equivalence clauses, giving an unconditionally linear clause
// count. This is the default strategy.
func ToCNFTseitin(f Formula, nextVar int) (And, int) {
	c := &tseitinCache{next: nextVar, vars: map[string]int{}}
	var clauses []Formula
	rep := tseitinRep(f, &clauses, c)
	clauses = append(clauses, rep)
	return And{Operands: clauses}, c.next
}

func asAnd(f Formula) And {
	if a, ok := f.(And); ok {
		return a
	}
	return And{Operands: []Formula{f}}
}

// Clauses converts a compiled CNF into clause lists of signed literals.
// It fails if the formula is not in strict conjunctive normal form.
func Clauses(cnf And) ([][]int, error) {
	out := make([][]int, 0, len(cnf.Operands))
	for _, op := range cnf.Operands {
		switch t := op.(type) {
		case Or:
			clause := make([]int, 0, len(t.Operands))
			for _, lit := range t.Operands {
				n, err := litValue(lit)
				if err != nil {
					return nil, err
				}
				clause = append(clause, n)
			}
			out = append(out, clause)
		case Var, Not:
			n, err := litValue(t)
			if err != nil {
				return nil, err
			}
			out = append(out, []int{n})
		default:
			return nil, fmt.Errorf("formula is not in CNF: unexpected %T conjunct", op)
		}
	}
	return out, nil
}

func litValue(f Formula) (int, error) {
	switch t := f.(type) {
	case Var:
		return int(t), nil
	case Not:
		if v, ok := t.Operand.(Var); ok {
			return -int(v), nil
		}
	}
	return 0, fmt.Errorf("formula is not in CNF: %s is not a literal", f)
}

func eliminateIff(f Formula) Formula {
	switch t := f.(type) {
	case And:
		return And{Operands: mapFormulas(t.Operands, eliminateIff)}
	case Or:
		return Or{Operands: mapFormulas(t.Operands, eliminateIff)}
	case If:
		return eliminateIff(Or{Operands: []Formula{Not{Operand: t.P}, t.Q}})
	case Iff:
		return eliminateIff(And{Operands: []Formula{
			Or{Operands: []Formula{t.P, Not{Operand: t.Q}}},
			Or{Operands: []Formula{Not{Operand: t.P}, t.Q}},
		}})
	case Not:
		return Not{Operand: eliminateIff(t.Operand)}
	default:
		return f
	}
}

func applyDeMorgan(f Formula) Formula {
	switch t := f.(type) {
	case And:
		return NewAnd(mapFormulas(t.Operands, applyDeMorgan))
	case Or:
		return NewOr(mapFormulas(t.Operands, applyDeMorgan))
	case Not:
		switch inner := t.Operand.(type) {
		case And:
			return applyDeMorgan(NewOr(mapFormulas(inner.Operands, negate)))
		case Or:
			return applyDeMorgan(NewAnd(mapFormulas(inner.Operands, negate)))
		case Not:
			return applyDeMorgan(inner.Operand)
		default:
			return f
		}
	default:
		return f
	}
}

func negate(f Formula) Formula { return Not{Operand: f} }

func mapFormulas(fs []Formula, fn func(Formula) Formula) []Formula {
	out := make([]Formula, len(fs))
	for i, f := range fs {
		out[i] = fn(f)
	}
	return out
}

func distributeOrsNaive(f Formula) Formula {
	switch t := f.(type) {
	case And:
		return NewAnd(mapFormulas(t.Operands, distributeOrsNaive))
	case Or:
		clauses := mapFormulas(t.Operands, distributeOrsNaive)
		crossed := crossProduct(mapCrossable(clauses))
		ors := make([]Formula, len(crossed))
		for i, combo := range crossed {
			ors[i] = NewOr(combo)
		}
		return NewAnd(ors)
	default:
		return f
	}
}

// crossable returns the list of alternatives a formula contributes to the
// Cartesian distribution: literals contribute themselves, compounds their
// operand lists.
func crossable(f Formula) []Formula {
	switch t := f.(type) {
	case And:
		return t.Operands
	case Or:
		return t.Operands
	default:
		return []Formula{f}
	}
}

func mapCrossable(fs []Formula) [][]Formula {
	out := make([][]Formula, len(fs))
	for i, f := range fs {
		out[i] = crossable(f)
	}
	return out
}

func crossProduct(lists [][]Formula) [][]Formula {
	result := [][]Formula{{}}
	for _, list := range lists {
		next := make([][]Formula, 0, len(result)*len(list))
		for _, combo := range result {
			for _, item := range list {
				extended := make([]Formula, len(combo), len(combo)+1)
				copy(extended, combo)
				next = append(next, append(extended, item))
			}
		}
		result = next
	}
	return result
}

func distributeOrsSwitching(f Formula, fresh int) (Formula, int) {
	switch t := f.(type) {
	case And:
		clauses, newFresh := distributeEach(t.Operands, fresh)
		return NewAnd(clauses), newFresh
	case Or:
		clauses, newFresh := distributeEach(t.Operands, fresh)
		sortOperands(clauses)
		if len(clauses) == 1 {
			return clauses[0], newFresh
		}
		if !anyAnd(clauses) {
			return NewOr(clauses), newFresh
		}
		if isLiteral(clauses[0]) || isLiteral(clauses[1]) {
			return distributeOrsSwitching(naiveCombination(clauses), newFresh)
		}
		combined, newFresh := switchingCombination(clauses, newFresh)
		return distributeOrsSwitching(combined, newFresh)
	default:
		return f, fresh
	}
}

func distributeEach(fs []Formula, fresh int) ([]Formula, int) {
	out := make([]Formula, 0, len(fs))
	for _, f := range fs {
		g, newFresh := distributeOrsSwitching(f, fresh)
		out = append(out, g)
		fresh = newFresh
	}
	return out, fresh
}

func anyAnd(fs []Formula) bool {
	for _, f := range fs {
		if _, ok := f.(And); ok {
			return true
		}
	}
	return false
}

func isLiteral(f Formula) bool {
	switch f.(type) {
	case Var, Not:
		return true
	}
	return false
}

// naiveCombination distributes the first two operands of a disjunction by
// Cartesian product, leaving any remaining operands for further passes.
func naiveCombination(clauses []Formula) Formula {
	crossed := crossProduct([][]Formula{crossable(clauses[0]), crossable(clauses[1])})
	ors := make([]Formula, len(crossed))
	for i, combo := range crossed {
		ors[i] = NewOr(combo)
	}
	combination := Formula(And{Operands: ors})
	if len(clauses) > 2 {
		return NewOr(append([]Formula{combination}, clauses[2:]...))
	}
	return combination
}

// switchingCombination trades one fresh variable s for full distribution:
// Or(A, B, rest...) becomes Or(And(Or(¬s, A), Or(s, B)), rest...).
func switchingCombination(clauses []Formula, fresh int) (Formula, int) {
	s := Var(fresh)
	lhs := NewOr([]Formula{Not{Operand: s}, clauses[0]})
	rhs := NewOr([]Formula{s, clauses[1]})
	combination := Formula(And{Operands: []Formula{lhs, rhs}})
	if len(clauses) > 2 {
		return NewOr(append([]Formula{combination}, clauses[2:]...)), fresh + 1
	}
	return combination, fresh + 1
}

type tseitinCache struct {
	next int
	vars map[string]int
}

// intern returns the variable naming the given subformula, allocating a
// fresh one on first sight. miss reports whether the equivalence clauses
// for the subformula still need to be emitted.
func (c *tseitinCache) intern(key string) (v Var, miss bool) {
	if n, ok := c.vars[key]; ok {
		return Var(n), false
	}
	n := c.next
	c.next++
	c.vars[key] = n
	return Var(n), true
}

func tseitinRep(f Formula, clauses *[]Formula, c *tseitinCache) Formula {
	switch t := f.(type) {
	case And:
		reps := make([]Formula, len(t.Operands))
		for i, op := range t.Operands {
			reps[i] = tseitinRep(op, clauses, c)
		}
		rep, miss := c.intern(And{Operands: reps}.String())
		if miss {
			big := make([]Formula, 0, len(reps)+1)
			for _, r := range reps {
				big = append(big, Not{Operand: r})
			}
			big = append(big, rep)
			*clauses = append(*clauses, Or{Operands: big})
			for _, r := range reps {
				*clauses = append(*clauses, Or{Operands: []Formula{r, Not{Operand: rep}}})
			}
		}
		return rep
	case Or:
		reps := make([]Formula, len(t.Operands))
		for i, op := range t.Operands {
			reps[i] = tseitinRep(op, clauses, c)
		}
		rep, miss := c.intern(Or{Operands: reps}.String())
		if miss {
			big := make([]Formula, 0, len(reps)+1)
			big = append(big, reps...)
			big = append(big, Not{Operand: rep})
			*clauses = append(*clauses, Or{Operands: big})
			for _, r := range reps {
				*clauses = append(*clauses, Or{Operands: []Formula{Not{Operand: r}, rep}})
			}
		}
		return rep
	case If:
		p := tseitinRep(t.P, clauses, c)
		q := tseitinRep(t.Q, clauses, c)
		rep, miss := c.intern(If{P: p, Q: q}.String())
		if miss {
			*clauses = append(*clauses,
				Or{Operands: []Formula{Not{Operand: p}, q, Not{Operand: rep}}},
				Or{Operands: []Formula{p, rep}},
				Or{Operands: []Formula{Not{Operand: q}, rep}},
			)
		}
		return rep
	case Iff:
		p := tseitinRep(t.P, clauses, c)
		q := tseitinRep(t.Q, clauses, c)
		rep, miss := c.intern(Iff{P: p, Q: q}.String())
		if miss {
			*clauses = append(*clauses,
				Or{Operands: []Formula{p, q, rep}},
				Or{Operands: []Formula{Not{Operand: p}, Not{Operand: q}, rep}},
				Or{Operands: []Formula{p, Not{Operand: q}, Not{Operand: rep}}},
				Or{Operands: []Formula{Not{Operand: p}, q, Not{Operand: rep}}},
			)
		}
		return rep
	case Not:
		inner := tseitinRep(t.Operand, clauses, c)
		rep, miss := c.intern(Not{Operand: inner}.String())
		if miss {
			*clauses = append(*clauses,
				Or{Operands: []Formula{inner, rep}},
				Or{Operands: []Formula{Not{Operand: inner}, Not{Operand: rep}}},
			)
		}
		return rep
	default:
		return f
	}
}

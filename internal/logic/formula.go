package logic

import (
	"fmt"
	"sort"
	"strings"
)

// Formula is a propositional formula over positive integer variables.
// It is an intermediate representation only: formulas are compiled to
// CNF before anything is handed to a solver, and are never serialized.
type Formula interface {
	fmt.Stringer
	isFormula()
}

// Var is a single propositional variable. Values must be positive.
type Var int

// And is a conjunction of subformulas.
type And struct {
	Operands []Formula
}

// Or is a disjunction of subformulas.
type Or struct {
	Operands []Formula
}

// Not negates a subformula.
type Not struct {
	Operand Formula
}

// If is the implication P -> Q.
type If struct {
	P, Q Formula
}

// Iff is the biconditional P <-> Q.
type Iff struct {
	P, Q Formula
}

func (Var) isFormula() {}
func (And) isFormula() {}
func (Or) isFormula()  {}
func (Not) isFormula() {}
func (If) isFormula()  {}
func (Iff) isFormula() {}

func (v Var) String() string { return fmt.Sprintf("%d", int(v)) }

func (a And) String() string { return renderNary("And", a.Operands) }
func (o Or) String() string  { return renderNary("Or", o.Operands) }

func (n Not) String() string { return "Not(" + n.Operand.String() + ")" }
func (f If) String() string  { return "If(" + f.P.String() + "," + f.Q.String() + ")" }
func (f Iff) String() string { return "Iff(" + f.P.String() + "," + f.Q.String() + ")" }

func renderNary(tag string, fs []Formula) string {
	var b strings.Builder
	b.WriteString(tag)
	b.WriteByte('(')
	for i, f := range fs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	b.WriteByte(')')
	return b.String()
}

// NewAnd flattens nested conjunctions one level and order-stabilizes the
// operand list so compiled output is deterministic.
func NewAnd(fs []Formula) And {
	return And{Operands: flatten(fs, func(f Formula) ([]Formula, bool) {
		if a, ok := f.(And); ok {
			return a.Operands, true
		}
		return nil, false
	})}
}

// NewOr flattens nested disjunctions one level and order-stabilizes the
// operand list.
func NewOr(fs []Formula) Or {
	return Or{Operands: flatten(fs, func(f Formula) ([]Formula, bool) {
		if o, ok := f.(Or); ok {
			return o.Operands, true
		}
		return nil, false
	})}
}

func flatten(fs []Formula, split func(Formula) ([]Formula, bool)) []Formula {
	out := make([]Formula, 0, len(fs))
	for _, f := range fs {
		if inner, ok := split(f); ok {
			out = append(out, inner...)
		} else {
			out = append(out, f)
		}
	}
	sortOperands(out)
	return out
}

// sortOperands places compound formulas before literals and orders literals
// by variable number, negations after the plain variable. The ordering keeps
// clause output stable across runs, which the tests rely on.
func sortOperands(fs []Formula) {
	sort.SliceStable(fs, func(i, j int) bool {
		ki, si := operandKey(fs[i])
		kj, sj := operandKey(fs[j])
		if ki != kj {
			return ki < kj
		}
		return si < sj
	})
}

func operandKey(f Formula) (variable int, sign int) {
	switch t := f.(type) {
	case Var:
		return int(t), 0
	case Not:
		if v, ok := t.Operand.(Var); ok {
			return int(v), 1
		}
		return 0, 0
	default:
		return 0, 0
	}
}

// Lit builds a positive or negative literal formula from a signed
// variable number.
func Lit(n int) Formula {
	if n < 0 {
		return Not{Operand: Var(-n)}
	}
	return Var(n)
}

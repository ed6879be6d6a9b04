package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndFlattensOneLevel(t *testing.T) {
	f := NewAnd([]Formula{
		And{Operands: []Formula{Var(1), Var(2)}},
		Var(3),
	})
	assert.Equal(t, "And(1,2,3)", f.String())
}

func TestNewOrFlattensOneLevel(t *testing.T) {
	f := NewOr([]Formula{
		Or{Operands: []Formula{Var(2), Var(3)}},
		Var(1),
	})
	assert.Equal(t, "Or(1,2,3)", f.String())
}

func TestOperandOrderIsStable(t *testing.T) {
	f := NewOr([]Formula{
		Not{Operand: Var(2)},
		Var(2),
		Var(1),
		And{Operands: []Formula{Var(4), Var(5)}},
	})
	// Compounds first, then literals by variable, negation after the plain
	// variable.
	assert.Equal(t, "Or(And(4,5),1,2,Not(2))", f.String())
}

func TestLit(t *testing.T) {
	assert.Equal(t, Var(3), Lit(3))
	assert.Equal(t, Not{Operand: Var(3)}, Lit(-3))
}

package cnf

import (
	"fmt"
	"io"
	"strings"
)

// CNF accumulates clauses of signed literals together with a fresh-variable
// counter. Circuit constructors consume fresh variables from the counter and
// append their clauses here; nothing else in the engine holds clause state.
type CNF struct {
	clauses [][]int
	numVars int
}

// New returns an empty accumulator with numVars variables already allocated
// (the design's own variables, which the circuits must not reuse).
func New(numVars int) *CNF {
	return &CNF{numVars: numVars}
}

// NumVars returns the highest allocated variable number.
func (c *CNF) NumVars() int { return c.numVars }

// Clauses returns the accumulated clause list. The slice is shared; callers
// must not mutate it.
func (c *CNF) Clauses() [][]int { return c.clauses }

// AddClause appends one clause of signed literals.
func (c *CNF) AddClause(lits ...int) {
	clause := make([]int, len(lits))
	copy(clause, lits)
	c.clauses = append(c.clauses, clause)
}

// Append appends pre-built clauses, e.g. a compiled formula fragment.
func (c *CNF) Append(clauses [][]int) {
	c.clauses = append(c.clauses, clauses...)
}

// GetFresh allocates and returns a new variable.
func (c *CNF) GetFresh() int {
	c.numVars++
	return c.numVars
}

// GetNFresh allocates n sequentially numbered variables.
func (c *CNF) GetNFresh(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = c.GetFresh()
	}
	return out
}

// SetToZero forces the variable false with a unit clause.
func (c *CNF) SetToZero(v int) { c.AddClause(-v) }

// SetToOne forces the variable true with a unit clause.
func (c *CNF) SetToOne(v int) { c.AddClause(v) }

// ZeroOut forces every listed variable false.
func (c *CNF) ZeroOut(vs []int) {
	for _, v := range vs {
		c.SetToZero(v)
	}
}

// WriteDIMACS renders the formula in DIMACS format:
//
//	p cnf <numVars> <numClauses>
//	<lit> <lit> ... 0
func (c *CNF) WriteDIMACS(w io.Writer) error {
	return c.writeDIMACS(w, nil)
}

// WriteDIMACSWithSupport renders DIMACS with sampler "independent support"
// comment lines (c ind v1 ... 0, at most ten variables per line) directly
// after the problem line, as consumed by unigen-style uniform samplers.
func (c *CNF) WriteDIMACSWithSupport(w io.Writer, support []int) error {
	return c.writeDIMACS(w, support)
}

func (c *CNF) writeDIMACS(w io.Writer, support []int) error {
	if _, err := fmt.Fprintf(w, "p cnf %d %d\n", c.numVars, len(c.clauses)); err != nil {
		return err
	}
	for start := 0; start < len(support); start += 10 {
		end := start + 10
		if end > len(support) {
			end = len(support)
		}
		var b strings.Builder
		b.WriteString("c ind")
		for _, v := range support[start:end] {
			fmt.Fprintf(&b, " %d", v)
		}
		b.WriteString(" 0\n")
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	for _, clause := range c.clauses {
		var b strings.Builder
		for _, lit := range clause {
			fmt.Fprintf(&b, "%d ", lit)
		}
		b.WriteString("0\n")
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

// String renders the formula in DIMACS format.
func (c *CNF) String() string {
	var b strings.Builder
	_ = c.WriteDIMACS(&b)
	return b.String()
}

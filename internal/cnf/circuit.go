package cnf

import "errors"

// ErrEmptyPopCount is returned when a population count is requested over no
// variables. No caller should ever do that; it indicates a constraint was
// built from an empty variable list.
var ErrEmptyPopCount = errors.New("cannot take pop count of an empty variable list")

// HalfAdder allocates carry and sum variables and asserts
// carry <-> a AND b, sum <-> a XOR b.
func (c *CNF) HalfAdder(a, b int) (carry, sum int) {
	carry = c.GetFresh()
	sum = c.GetFresh()

	// carry -> a, carry -> b, (a AND b) -> carry
	c.AddClause(a, -carry)
	c.AddClause(b, -carry)
	c.AddClause(-a, -b, carry)

	// sum -> (a XOR b), (a XOR b) -> sum
	c.AddClause(a, b, -sum)
	c.AddClause(-a, -b, -sum)
	c.AddClause(a, -b, sum)
	c.AddClause(-a, b, sum)

	return carry, sum
}

// FullAdder allocates carry and sum variables and asserts
// carry <-> majority(a, b, cin), sum <-> parity(a, b, cin). A zero cin means
// no carry-in, reducing to a half adder.
func (c *CNF) FullAdder(a, b, cin int) (carry, sum int) {
	if cin == 0 {
		return c.HalfAdder(a, b)
	}
	carry = c.GetFresh()
	sum = c.GetFresh()

	c.AddClause(a, b, -carry)
	c.AddClause(a, cin, -carry)
	c.AddClause(b, cin, -carry)
	c.AddClause(-a, -b, carry)
	c.AddClause(-a, -cin, carry)
	c.AddClause(-b, -cin, carry)

	c.AddClause(-a, -b, cin, -sum)
	c.AddClause(-a, b, -cin, -sum)
	c.AddClause(a, -b, -cin, -sum)
	c.AddClause(a, b, cin, -sum)
	c.AddClause(-a, -b, -cin, sum)
	c.AddClause(-a, b, cin, sum)
	c.AddClause(a, -b, cin, sum)
	c.AddClause(a, b, -cin, sum)

	return carry, sum
}

// SaturateAdder is the final stage of a saturating ripple: the output bit is
// the OR of the inputs, clamping to 1 instead of producing a carry.
func (c *CNF) SaturateAdder(a, b, cin int) int {
	s := c.GetFresh()
	if cin != 0 {
		c.AddClause(a, b, cin, -s)
		c.AddClause(-cin, s)
	} else {
		c.AddClause(a, b, -s)
	}
	c.AddClause(-a, s)
	c.AddClause(-b, s)
	return s
}

// RippleCarry chains full adders over two equal-length bit vectors given
// most-significant-first. It returns the final carry and the sum bits
// least-significant-first (the order they are produced in).
func (c *CNF) RippleCarry(xs, ys []int) (carry int, sums []int) {
	cin := 0
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	sums = make([]int, 0, n)
	for i := 0; i < n; i++ {
		x := xs[len(xs)-1-i]
		y := ys[len(ys)-1-i]
		cout, s := c.FullAdder(x, y, cin)
		sums = append(sums, s)
		cin = cout
	}
	return cin, sums
}

// RippleSaturate adds two bit vectors (most-significant-first) with the sum
// clamped to at most saturateAt bits. The result is most-significant-first.
func (c *CNF) RippleSaturate(xs, ys []int, saturateAt int) []int {
	cin := 0
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	sums := make([]int, 0, n+1)
	for i := 0; i < n; i++ {
		x := xs[len(xs)-1-i]
		y := ys[len(ys)-1-i]
		if i+1 == saturateAt {
			sums = append(sums, c.SaturateAdder(x, y, cin))
			cin = 0
			break
		}
		cout, s := c.FullAdder(x, y, cin)
		sums = append(sums, s)
		cin = cout
	}
	if len(xs) < saturateAt && cin != 0 {
		sums = append(sums, cin)
	}
	for i, j := 0, len(sums)-1; i < j; i, j = i+1, j-1 {
		sums[i], sums[j] = sums[j], sums[i]
	}
	return sums
}

// PopCount builds a circuit computing the number of true variables in vars,
// returning the count's bits most-significant-first. The input is padded
// with forced-false fresh variables up to a power of two, then pairs of
// single-bit registers are combined with ripple-carry adders in O(log n)
// layers. A saturateAt > 0 clamps each layer's width, which keeps the
// circuit small when only a bounded comparison is needed.
func (c *CNF) PopCount(vars []int, saturateAt int) ([]int, error) {
	if len(vars) == 0 {
		return nil, ErrEmptyPopCount
	}
	size := 1
	for size < len(vars) {
		size *= 2
	}
	padding := c.GetNFresh(size - len(vars))
	c.ZeroOut(padding)

	registers := make([][]int, 0, size)
	for _, v := range vars {
		registers = append(registers, []int{v})
	}
	for _, v := range padding {
		registers = append(registers, []int{v})
	}
	return c.popCountLayer(registers, saturateAt), nil
}

func (c *CNF) popCountLayer(registers [][]int, saturateAt int) []int {
	if len(registers) == 1 {
		return registers[0]
	}
	mid := len(registers) / 2
	next := make([][]int, 0, mid)
	for i := 0; i < mid; i++ {
		l, r := registers[i], registers[mid+i]
		if saturateAt == 0 {
			carry, sums := c.RippleCarry(l, r)
			bits := make([]int, 0, len(sums)+1)
			bits = append(bits, carry)
			for j := len(sums) - 1; j >= 0; j-- {
				bits = append(bits, sums[j])
			}
			next = append(next, bits)
		} else {
			next = append(next, c.RippleSaturate(l, r, saturateAt))
		}
	}
	return c.popCountLayer(next, saturateAt)
}

// AssertKOfN asserts that exactly k of vars are true, by computing a
// population count and unit-asserting k's binary pattern bit by bit. A k too
// wide for the count's bit width yields a well-formed but unsatisfiable
// formula instead of an error.
func (c *CNF) AssertKOfN(k int, vars []int) error {
	kBits := binaryDigits(k)
	sumBits, err := c.PopCount(vars, len(kBits)+1)
	if err != nil {
		return err
	}
	if len(kBits) > len(sumBits) {
		// k cannot be reached by this many inputs; force a contradiction.
		v := c.GetFresh()
		c.AddClause(v)
		c.AddClause(-v)
		return nil
	}
	padded := make([]int, len(sumBits))
	for i := range padded {
		padded[i] = -1
	}
	copy(padded[len(sumBits)-len(kBits):], kBits)
	for i, bit := range padded {
		c.AddClause(bit * sumBits[i])
	}
	return nil
}

// AssertKLessThanN asserts that the number of true variables in vars is
// strictly less than k.
func (c *CNF) AssertKLessThanN(k int, vars []int) error {
	return c.assertInequality(true, k, vars)
}

// AssertKGreaterThanN asserts that the number of true variables in vars is
// strictly greater than k.
func (c *CNF) AssertKGreaterThanN(k int, vars []int) error {
	return c.assertInequality(false, k, vars)
}

// assertInequality implements both comparisons as "subtract and check sign":
// the count and k's bit pattern are equalized in width with forced-zero
// headroom, one operand is negated in two's complement, the two are added,
// and the sign bit of the result is asserted.
func (c *CNF) assertInequality(lessThan bool, k int, vars []int) error {
	kBits := binaryDigits(k)
	sumBits, err := c.PopCount(vars, len(kBits)+1)
	if err != nil {
		return err
	}
	kVars := c.GetNFresh(len(kBits))
	for i, bit := range kBits {
		c.AddClause(bit * kVars[i])
	}
	kVars, sumBits = c.makeSameLength(kVars, sumBits)

	var lhs, rhs []int
	if lessThan {
		lhs, rhs = sumBits, kVars
	} else {
		lhs, rhs = kVars, sumBits
	}
	negated := c.negativeTwosComplement(rhs)
	_, sums := c.RippleCarry(lhs, negated)
	// sums is least-significant-first; the final bit is the sign.
	c.SetToOne(sums[len(sums)-1])
	return nil
}

// makeSameLength left-pads both vectors with forced-zero fresh bits until
// they share a width with sign headroom.
func (c *CNF) makeSameLength(xs, ys []int) ([]int, []int) {
	if len(xs) == len(ys) {
		return xs, ys
	}
	if len(xs) > len(ys) {
		ys, xs = c.makeSameLength(ys, xs)
		return xs, ys
	}
	padX := c.GetNFresh(len(ys) - len(xs) + 1)
	c.ZeroOut(padX)
	padY := c.GetNFresh(1)
	c.ZeroOut(padY)
	return append(padX, xs...), append(padY, ys...)
}

// negativeTwosComplement returns fresh bits constrained to the two's
// complement negation of the input: flip every bit, then add one.
func (c *CNF) negativeTwosComplement(bits []int) []int {
	flipped := c.GetNFresh(len(bits))
	for i, b := range bits {
		// flipped[i] <-> NOT bits[i]
		c.AddClause(flipped[i], b)
		c.AddClause(-flipped[i], -b)
	}
	one := c.GetNFresh(len(bits))
	c.ZeroOut(one[:len(one)-1])
	c.SetToOne(one[len(one)-1])
	_, sums := c.RippleCarry(flipped, one)
	out := make([]int, len(sums))
	for i, s := range sums {
		out[len(sums)-1-i] = s
	}
	return out
}

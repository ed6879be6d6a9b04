// Package combinatorics ranks and unranks the sequence spaces the sampler
// draws from: mixed-radix combinations, permutation prefixes, and prefixes
// of multiset permutations ("permutations with copies"). All counts use
// big integers; realistic designs overflow 64 bits easily.
package combinatorics

import (
	"fmt"
	"math/big"
)

// Factorial returns n!.
func Factorial(n int) *big.Int {
	return new(big.Int).MulRange(1, int64(n))
}

// ExtractComponents splits a rank below the product of the given dimension
// sizes into one component rank per dimension, least-significant dimension
// first.
func ExtractComponents(sizes []*big.Int, n *big.Int) []*big.Int {
	components := make([]*big.Int, len(sizes))
	rest := new(big.Int).Set(n)
	for i, size := range sizes {
		q, r := new(big.Int).QuoRem(rest, size, new(big.Int))
		components[i] = r
		rest = q
	}
	return components
}

// JthCombination treats j as a base-radix number of length digits, most
// significant digit first. It enumerates choices for length independent
// items with radix options each.
func JthCombination(length, radix int, j *big.Int) []int {
	combination := make([]int, length)
	rest := new(big.Int).Set(j)
	base := big.NewInt(int64(radix))
	for k := length - 1; k >= 0; k-- {
		q, r := new(big.Int).QuoRem(rest, base, new(big.Int))
		combination[k] = int(r.Int64())
		rest = q
	}
	return combination
}

// JthPermutationPrefix computes the jth distinct m-element prefix of a
// permutation of n elements, of which there are n!/(n-m)!. It goes through
// a modified inversion sequence whose digits count skipped unused elements,
// so that a prefix of the sequence determines a prefix of the permutation.
func JthPermutationPrefix(n, m int, j *big.Int) []int {
	inversion := make([]int, 0, m)
	rest := new(big.Int).Set(j)
	for k := n; k > n-m; k-- {
		q, r := new(big.Int).QuoRem(rest, big.NewInt(int64(k)), new(big.Int))
		inversion = append(inversion, int(r.Int64()))
		rest = q
	}
	return constructPermutation(inversion, n)
}

func constructPermutation(inversion []int, n int) []int {
	used := make([]bool, n)
	permutation := make([]int, len(inversion))
	for pos, skip := range inversion {
		idx := 0
		for used[idx] {
			idx++
		}
		for skip > 0 {
			if !used[idx] {
				skip--
			}
			idx++
		}
		for used[idx] {
			idx++
		}
		permutation[pos] = idx
		used[idx] = true
	}
	return permutation
}

// CountRemainingPermutations counts the distinct permutations of a multiset
// given per-symbol remaining copies: (sum c)! / prod c!.
func CountRemainingPermutations(counters []int) *big.Int {
	total := 0
	denom := big.NewInt(1)
	for _, c := range counters {
		total += c
		if c > 1 {
			denom.Mul(denom, Factorial(c))
		}
	}
	return new(big.Int).Quo(Factorial(total), denom)
}

// countInterleavings counts the ways v newly allocated copies of one symbol
// interleave with the needN-v positions already accounted for.
func countInterleavings(v, needN int) *big.Int {
	return CountRemainingPermutations([]int{needN - v, v})
}

// Memo caches prefix counts keyed by (first symbol still available, prefix
// length still needed). It is scoped to one enumeration session; the
// per-leaf multiplier stays out of the table because memoizing it would
// destroy sharing.
type Memo struct {
	counts map[memoKey]*big.Int
}

type memoKey struct {
	startIndex int
	needed     int
}

// NewMemo returns an empty cache.
func NewMemo() *Memo {
	return &Memo{counts: map[memoKey]*big.Int{}}
}

// CountPrefixes counts the distinct firstN-length prefixes of permutations
// of a multiset with counters[i] copies of symbol i. Uniform multisets take
// the closed-form shortcuts.
func CountPrefixes(counters []int, firstN int, memo *Memo) *big.Int {
	if q, m, ok := uniformShape(counters); ok {
		return CountUniformPrefixes(q, m, firstN, memo)
	}
	return countPrefixes(counters, firstN, memo)
}

func countPrefixes(counters []int, firstN int, memo *Memo) *big.Int {
	s := &prefixSearch{counters: counters, memo: memo}
	count, _ := s.count(0, firstN, nil, nil)
	return count
}

// JthPrefix is the inverse bijection of CountPrefixes: it reconstructs the
// prefix with rank j (0-based) as symbol indices. j must be below the count.
func JthPrefix(counters []int, firstN int, j *big.Int, memo *Memo) ([]int, error) {
	if q, m, ok := uniformShape(counters); ok {
		return JthUniformPrefix(q, m, firstN, j, memo)
	}
	return jthPrefix(counters, firstN, j, memo)
}

func jthPrefix(counters []int, firstN int, j *big.Int, memo *Memo) ([]int, error) {
	s := &prefixSearch{counters: counters, memo: memo, find: new(big.Int).Set(j)}
	_, found := s.count(0, firstN, big.NewInt(1), nil)
	if found == nil {
		return nil, fmt.Errorf("prefix rank %s out of range", j)
	}
	return found, nil
}

// CountUniformPrefixes is CountPrefixes for m copies of each of q symbols,
// with the closed forms for the easy cases: a prefix no longer than one
// symbol's copies is an unconstrained base-q number, and a full-length
// prefix is the plain multiset-permutation count.
func CountUniformPrefixes(q, m, firstN int, memo *Memo) *big.Int {
	if firstN <= m {
		return new(big.Int).Exp(big.NewInt(int64(q)), big.NewInt(int64(firstN)), nil)
	}
	counters := uniformCounters(q, m)
	if firstN == q*m {
		return CountRemainingPermutations(counters)
	}
	return countPrefixes(counters, firstN, memo)
}

// JthUniformPrefix is JthPrefix for m copies of each of q symbols.
func JthUniformPrefix(q, m, firstN int, j *big.Int, memo *Memo) ([]int, error) {
	if firstN <= m {
		size := new(big.Int).Exp(big.NewInt(int64(q)), big.NewInt(int64(firstN)), nil)
		if j.Sign() < 0 || j.Cmp(size) >= 0 {
			return nil, fmt.Errorf("prefix rank %s out of range", j)
		}
		return JthCombination(firstN, q, j), nil
	}
	return jthPrefix(uniformCounters(q, m), firstN, j, memo)
}

func uniformCounters(q, m int) []int {
	counters := make([]int, q)
	for i := range counters {
		counters[i] = m
	}
	return counters
}

// uniformShape reports whether every symbol has the same copy count.
func uniformShape(counters []int) (q, m int, ok bool) {
	if len(counters) == 0 {
		return 0, 0, false
	}
	m = counters[0]
	for _, c := range counters[1:] {
		if c != m {
			return 0, 0, false
		}
	}
	return len(counters), m, true
}

// prefixSearch implements counting and rank inversion with one recursion:
// allocate v of the needed positions to the current symbol, recurse on the
// rest, and weight each subtree by the interleavings of the v copies with
// the later positions. In find mode the running multiplier says how many
// full prefixes each leaf's bucket allocation stands for; a memo hit is
// only trusted when the sought rank lies wholly past its subtree.
type prefixSearch struct {
	counters []int
	memo     *Memo
	find     *big.Int // nil when only counting
}

func (s *prefixSearch) availableAfter(startI int) int {
	total := 0
	for _, c := range s.counters[startI:] {
		total += c
	}
	return total
}

func (s *prefixSearch) count(startI, needN int, multiplier *big.Int, buckets []int) (*big.Int, []int) {
	if needN == 0 {
		if s.find != nil {
			if s.find.Cmp(multiplier) < 0 {
				counters := make([]int, len(s.counters))
				fillN := 0
				for i, v := range buckets {
					counters[i] = v
					fillN += v
				}
				return big.NewInt(1), constructPermutationWithCopies(s.find, fillN, counters)
			}
			s.find.Sub(s.find, multiplier)
		}
		return big.NewInt(1), nil
	}
	if startI >= len(s.counters) || s.availableAfter(startI) < needN {
		return big.NewInt(0), nil
	}
	key := memoKey{startIndex: startI, needed: needN}
	if cached, ok := s.memo.counts[key]; ok {
		if s.find == nil {
			return cached, nil
		}
		total := new(big.Int).Mul(cached, multiplier)
		if s.find.Cmp(total) >= 0 {
			s.find.Sub(s.find, total)
			return cached, nil
		}
		// The sought rank is inside this subtree; fall through and walk it.
	}

	max := s.counters[startI]
	if needN < max {
		max = needN
	}
	combos := big.NewInt(0)
	for v := 0; v <= max; v++ {
		weight := countInterleavings(v, needN)
		var childMult *big.Int
		if s.find != nil {
			childMult = new(big.Int).Mul(weight, multiplier)
		}
		sub, found := s.count(startI+1, needN-v, childMult, append(buckets, v))
		if found != nil {
			return sub, found
		}
		combos.Add(combos, new(big.Int).Mul(sub, weight))
	}
	s.memo.counts[key] = combos
	return combos, nil
}

// constructPermutationWithCopies finds the idx-th distinct arrangement of a
// multiset given per-symbol counters: repeatedly pick the first symbol with
// copies left, count the arrangements that would follow, and either commit
// to the symbol or skip its whole run of arrangements.
func constructPermutationWithCopies(idx *big.Int, fillN int, counters []int) []int {
	rest := new(big.Int).Set(idx)
	sequence := make([]int, 0, fillN)
	for len(sequence) < fillN {
		for i := range counters {
			if counters[i] == 0 {
				continue
			}
			counters[i]--
			n := CountRemainingPermutations(counters)
			if rest.Cmp(n) >= 0 {
				rest.Sub(rest, n)
				counters[i]++
				continue
			}
			sequence = append(sequence, i)
			break
		}
	}
	return sequence
}

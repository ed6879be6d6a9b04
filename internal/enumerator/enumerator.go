// Package enumerator counts and uniformly samples the solution space of a
// block without a SAT solver: it ranks trial sequences combinatorically and
// inverts ranks drawn at random, rejecting only for constraints that cannot
// be folded into the counting model.
package enumerator

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trialgen/trialgen/internal/block"
	"github.com/trialgen/trialgen/internal/combinatorics"
	"github.com/trialgen/trialgen/pkg/design"
)

// DefaultRetryBudget bounds constraint-violation rejections per sampling
// call before giving up.
const DefaultRetryBudget = 100000

// Enumerator holds the counting model for one block: the valid crossing
// instances with their copy counts, the per-instance source completions,
// and the sizes of every independent dimension of the solution space.
// Construction is the barrier after which everything is read-only.
type Enumerator struct {
	block *block.Block
	log   logrus.FieldLogger
	parts partitions
	memo  *combinatorics.Memo

	instances   []block.Combination
	counters    []int
	completions [][]map[string]string

	trials       int
	crossingSize int
	fullChunks   int
	tail         int

	permCount       *big.Int
	tailCount       *big.Int
	chunkSourceSize *big.Int
	indepSizes      []*big.Int
	total           *big.Int

	tailMemo map[string]*big.Int

	retryBudget int
}

// Result is the outcome of one sampling call. Exhausted is set when the
// distinct component tuples ran out before the requested sample count.
type Result struct {
	Samples    []block.Experiment
	Rejections int
	Exhausted  bool
}

// Option adjusts enumerator behavior.
type Option func(*Enumerator)

// WithRetryBudget overrides the rejection budget.
func WithRetryBudget(n int) Option {
	return func(e *Enumerator) { e.retryBudget = n }
}

// WithLogger sets the progress logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Enumerator) { e.log = log }
}

// New builds the counting model. It fails on designs the combinatoric
// strategy cannot express, such as a primary crossing with no non-complex
// factor.
func New(b *block.Block, opts ...Option) (*Enumerator, error) {
	e := &Enumerator{
		block:       b,
		log:         logrus.StandardLogger(),
		parts:       partition(b),
		memo:        combinatorics.NewMemo(),
		tailMemo:    map[string]*big.Int{},
		retryBudget: DefaultRetryBudget,
	}
	for _, opt := range opts {
		opt(e)
	}
	if len(e.parts.crossedSimple) == 0 {
		return nil, fmt.Errorf("combinatoric enumeration needs at least one non-complex factor in the primary crossing")
	}
	if err := e.buildInstances(); err != nil {
		return nil, err
	}
	e.countSolutions()
	return e, nil
}

// buildInstances collects the valid crossing instances, their weights, and
// the source completions each instance admits.
func (e *Enumerator) buildInstances() error {
	instances := e.block.ValidCombinations(e.parts.crossedSimple)
	sourceAssignments := levelAssignments(e.parts.sources)

	for _, instance := range instances {
		merged := map[string]string{}
		for _, ref := range instance.Levels {
			merged[ref.Factor.Name] = ref.Level.Name
		}
		var valid []map[string]string
		for _, completion := range sourceAssignments {
			for k, v := range completion {
				merged[k] = v
			}
			ok, err := e.completionConsistent(instance, merged)
			if err != nil {
				return err
			}
			if ok {
				valid = append(valid, completion)
			}
		}
		if len(valid) == 0 {
			if e.block.RequireCompleteCrossing() {
				return fmt.Errorf("crossing instance %s admits no source assignment", instanceName(instance))
			}
			e.log.Warnf("dropping crossing instance %s: no source assignment satisfies its derivations", instanceName(instance))
			continue
		}
		e.instances = append(e.instances, instance)
		e.counters = append(e.counters, instance.Weight())
		e.completions = append(e.completions, valid)
	}
	if len(e.instances) == 0 {
		return fmt.Errorf("no crossing instance is satisfiable")
	}
	return nil
}

// completionConsistent checks every crossed width-1 derived factor's chosen
// level against the merged source assignment.
func (e *Enumerator) completionConsistent(instance block.Combination, merged map[string]string) (bool, error) {
	for _, ref := range instance.Levels {
		if !ref.Level.IsDerived() {
			continue
		}
		w := ref.Level.Window
		args := make([][]string, len(w.Factors))
		for i, src := range w.Factors {
			name, ok := merged[src.Name]
			if !ok {
				return false, fmt.Errorf(
					"derivation of %q reads factor %q, which is neither crossed nor a basic source; this design needs the SAT sampler",
					ref.Factor.Name, src.Name)
			}
			args[i] = []string{name}
		}
		if !w.Predicate(args) {
			return false, nil
		}
	}
	return true, nil
}

// levelAssignments enumerates every assignment of one level name per factor.
func levelAssignments(factors []*design.Factor) []map[string]string {
	assignments := []map[string]string{{}}
	for _, f := range factors {
		next := make([]map[string]string, 0, len(assignments)*len(f.Levels))
		for _, a := range assignments {
			for _, l := range f.Levels {
				extended := make(map[string]string, len(a)+1)
				for k, v := range a {
					extended[k] = v
				}
				extended[f.Name] = l.Name
				next = append(next, extended)
			}
		}
		assignments = next
	}
	return assignments
}

func instanceName(c block.Combination) string {
	parts := make([]string, 0, len(c.Levels))
	for _, ref := range c.Levels {
		parts = append(parts, ref.Factor.Name+"="+ref.Level.Name)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// countSolutions computes the total size of the unconstrained solution
// space. The trial sequence is modeled as whole repetitions of the crossing
// ("chunks"), each a complete permutation of the weighted instances, plus a
// trailing distinct prefix; sources multiply in per trial and independent
// factors per whole sequence.
func (e *Enumerator) countSolutions() {
	e.trials = e.block.TrialsPerSample()
	for _, c := range e.counters {
		e.crossingSize += c
	}
	e.fullChunks = e.trials / e.crossingSize
	e.tail = e.trials % e.crossingSize

	e.permCount = combinatorics.CountRemainingPermutations(e.counters)

	e.chunkSourceSize = big.NewInt(1)
	for i, c := range e.counters {
		per := new(big.Int).Exp(big.NewInt(int64(len(e.completions[i]))), big.NewInt(int64(c)), nil)
		e.chunkSourceSize.Mul(e.chunkSourceSize, per)
	}

	e.tailCount = e.weightedTailCount(append([]int(nil), e.counters...), e.tail)

	for _, f := range e.parts.independents {
		size := new(big.Int).Exp(big.NewInt(int64(len(f.Levels))), big.NewInt(int64(e.trials)), nil)
		e.indepSizes = append(e.indepSizes, size)
	}

	e.total = big.NewInt(1)
	for i := 0; i < e.fullChunks; i++ {
		e.total.Mul(e.total, e.permCount)
		e.total.Mul(e.total, e.chunkSourceSize)
	}
	e.total.Mul(e.total, e.tailCount)
	for _, size := range e.indepSizes {
		e.total.Mul(e.total, size)
	}
}

// weightedTailCount counts distinct length-n instance prefixes weighted by
// the source completions consumed along the way.
func (e *Enumerator) weightedTailCount(counters []int, n int) *big.Int {
	if n == 0 {
		return big.NewInt(1)
	}
	key := tailKey(counters, n)
	if cached, ok := e.tailMemo[key]; ok {
		return cached
	}
	total := big.NewInt(0)
	for i := range counters {
		if counters[i] == 0 {
			continue
		}
		counters[i]--
		sub := e.weightedTailCount(counters, n-1)
		counters[i]++
		contribution := new(big.Int).Mul(big.NewInt(int64(len(e.completions[i]))), sub)
		total.Add(total, contribution)
	}
	e.tailMemo[key] = total
	return total
}

func tailKey(counters []int, n int) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(n))
	for _, c := range counters {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(c))
	}
	return b.String()
}

// SolutionCount returns the size of the unconstrained solution space.
func (e *Enumerator) SolutionCount() *big.Int {
	return new(big.Int).Set(e.total)
}

// GenerateRandomSamples draws up to n distinct, constraint-conforming trial
// sequences uniformly at random. Distinctness is by component tuple; a
// repeated draw is simply redrawn, while a constraint violation consumes
// the rejection budget.
func (e *Enumerator) GenerateRandomSamples(ctx context.Context, n int, rng *rand.Rand) (Result, error) {
	result := Result{}
	used := map[string]struct{}{}
	tried := big.NewInt(0)
	one := big.NewInt(1)

	for len(result.Samples) < n {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if tried.Cmp(e.total) >= 0 {
			result.Exhausted = true
			return result, nil
		}
		u := new(big.Int).Rand(rng, e.total)
		key := u.String()
		if _, seen := used[key]; seen {
			continue
		}
		used[key] = struct{}{}
		tried.Add(tried, one)

		exp, err := e.materialize(u)
		if err != nil {
			return result, err
		}
		if !e.conforms(exp) {
			result.Rejections++
			if result.Rejections%1000 == 0 {
				e.log.WithFields(logrus.Fields{
					"rejections": result.Rejections,
					"collected":  len(result.Samples),
				}).Info("still sampling")
			}
			if result.Rejections >= e.retryBudget {
				return result, fmt.Errorf("rejection budget of %d exhausted after %d samples", e.retryBudget, len(result.Samples))
			}
			continue
		}
		result.Samples = append(result.Samples, exp)
	}
	return result, nil
}

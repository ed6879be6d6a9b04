package block

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/trialgen/trialgen/internal/logic"
	"github.com/trialgen/trialgen/pkg/design"
)

// Block compiles a validated design into SAT terms: it owns the
// deterministic mapping from (factor, level, trial) to 1-based variable
// numbers and knows how to emit the constraint clauses over them. A Block
// is immutable after construction apart from lazily cached derived
// quantities.
type Block struct {
	factors     []*design.Factor
	crossings   [][]*design.Factor
	constraints []design.Constraint

	requireCompleteCrossing bool
	strategy                logic.Strategy
	log                     logrus.FieldLogger

	minTrials   int
	excluded    []levelRef
	derivations []derivation

	trialsPerSample   int
	variablesPerTrial int
	prevTrials        map[prevKey]int
}

type levelRef struct {
	Factor *design.Factor
	Level  *design.Level
}

type prevKey struct {
	factor *design.Factor
	trial  int
}

// Option adjusts Block construction.
type Option func(*Block)

// WithStrategy selects the CNF compilation strategy for formula-shaped
// constraints. The default is Tseitin.
func WithStrategy(s logic.Strategy) Option {
	return func(b *Block) { b.strategy = s }
}

// AllowIncompleteCrossing downgrades "exclusions eliminate required crossing
// combinations" from a construction error to a warning plus a reduced
// crossing size.
func AllowIncompleteCrossing() Option {
	return func(b *Block) { b.requireCompleteCrossing = false }
}

// WithLogger sets the logger used for construction-time warnings.
func WithLogger(log logrus.FieldLogger) Option {
	return func(b *Block) { b.log = log }
}

// New validates the design eagerly and builds a Block. All structural
// problems (unknown factors, stride>1 factors inside a crossing,
// non-exhaustive derivations, excludes that break a required crossing)
// surface here, never later.
func New(d *design.Design, opts ...Option) (*Block, error) {
	b := &Block{
		factors:                 d.Factors,
		crossings:               d.Crossings,
		constraints:             d.Constraints,
		requireCompleteCrossing: true,
		strategy:                logic.ToCNFTseitin,
		log:                     logrus.StandardLogger(),
		prevTrials:              map[prevKey]int{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	if err := b.buildDerivations(); err != nil {
		return nil, err
	}
	if err := b.checkExclusions(); err != nil {
		return nil, err
	}
	return b, nil
}

// ValidationError is a structural design error detected at Block
// construction.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func (b *Block) validate() error {
	if len(b.crossings) == 0 {
		return validationErrorf("a block needs at least one crossing")
	}
	inDesign := func(f *design.Factor) bool {
		for _, g := range b.factors {
			if g == f {
				return true
			}
		}
		return false
	}
	for _, crossing := range b.crossings {
		if len(crossing) == 0 {
			return validationErrorf("a crossing must name at least one factor")
		}
		for _, f := range crossing {
			if !inDesign(f) {
				return validationErrorf("crossing references factor %q, which is not in the design", f.Name)
			}
			if w := f.FirstWindow(); w != nil && w.Stride > 1 {
				return validationErrorf("factor %q has stride %d and cannot be part of a crossing", f.Name, w.Stride)
			}
		}
	}
	for _, f := range b.factors {
		w := f.FirstWindow()
		if w == nil {
			continue
		}
		for _, src := range w.Factors {
			if !inDesign(src) {
				return validationErrorf("derived factor %q references factor %q, which is not in the design", f.Name, src.Name)
			}
		}
	}
	for _, c := range b.constraints {
		if err := b.validateConstraint(c); err != nil {
			return err
		}
	}
	return nil
}

func (b *Block) validateConstraint(c design.Constraint) error {
	ref := func(factorName, levelName string, levelRequired bool) (*design.Factor, *design.Level, error) {
		var factor *design.Factor
		for _, f := range b.factors {
			if f.Name == factorName {
				factor = f
				break
			}
		}
		if factor == nil {
			return nil, nil, validationErrorf("constraint references unknown factor %q", factorName)
		}
		if levelName == "" && !levelRequired {
			return factor, nil, nil
		}
		level := factor.GetLevel(levelName)
		if level == nil {
			return nil, nil, validationErrorf("constraint references unknown level %q of factor %q", levelName, factorName)
		}
		return factor, level, nil
	}
	switch t := c.(type) {
	case design.Exclude:
		f, l, err := ref(t.Factor, t.Level, true)
		if err != nil {
			return err
		}
		if l.IsDerived() {
			for _, src := range l.Window.Factors {
				if src.IsDerived() {
					return validationErrorf(
						"cannot exclude level %q of factor %q: its derivation chains through derived factor %q",
						l.Name, f.Name, src.Name)
				}
			}
		}
		b.excluded = append(b.excluded, levelRef{Factor: f, Level: l})
	case design.Pin:
		if _, _, err := ref(t.Factor, t.Level, true); err != nil {
			return err
		}
		if t.Trial == 0 {
			return validationErrorf("pin trial numbers are 1-based (negative counts from the end); got 0")
		}
	case design.MinimumTrials:
		if t.Trials < 1 {
			return validationErrorf("minimum trials must be positive; got %d", t.Trials)
		}
		if t.Trials > b.minTrials {
			b.minTrials = t.Trials
		}
	case design.ExactlyK:
		if _, _, err := ref(t.Factor, t.Level, true); err != nil {
			return err
		}
	case design.AtMostKInARow:
		if _, _, err := ref(t.Factor, t.Level, false); err != nil {
			return err
		}
		if t.K < 1 {
			return validationErrorf("at-most-k-in-a-row needs k >= 1; got %d", t.K)
		}
	case design.AtLeastKInARow:
		if _, _, err := ref(t.Factor, t.Level, false); err != nil {
			return err
		}
		if t.K < 1 {
			return validationErrorf("at-least-k-in-a-row needs k >= 1; got %d", t.K)
		}
	case design.ExactlyKInARow:
		if _, _, err := ref(t.Factor, t.Level, false); err != nil {
			return err
		}
		if t.K < 1 {
			return validationErrorf("exactly-k-in-a-row needs k >= 1; got %d", t.K)
		}
	default:
		return validationErrorf("unknown constraint %T", c)
	}
	return nil
}

// Factors returns the design's factors in declaration order.
func (b *Block) Factors() []*design.Factor { return b.factors }

// Crossings returns the block's crossings.
func (b *Block) Crossings() [][]*design.Factor { return b.crossings }

// Constraints returns the user-supplied constraints.
func (b *Block) Constraints() []design.Constraint { return b.constraints }

// MinimumTrials returns the largest minimum-trials bound, or 0.
func (b *Block) MinimumTrials() int { return b.minTrials }

// RequireCompleteCrossing reports whether missing crossing combinations are
// a hard error.
func (b *Block) RequireCompleteCrossing() bool { return b.requireCompleteCrossing }

// IsExcluded reports whether the level is excluded outright by an Exclude
// constraint.
func (b *Block) IsExcluded(f *design.Factor, l *design.Level) bool {
	for _, e := range b.excluded {
		if e.Factor == f && e.Level == l {
			return true
		}
	}
	return false
}

// gridFactors are the factors whose variables occupy the uniform per-trial
// grid: every factor without a complex window.
func (b *Block) gridFactors() []*design.Factor {
	out := make([]*design.Factor, 0, len(b.factors))
	for _, f := range b.factors {
		if !f.HasComplexWindow() {
			out = append(out, f)
		}
	}
	return out
}

// complexFactors are allocated after the grid, one contiguous region each.
func (b *Block) complexFactors() []*design.Factor {
	var out []*design.Factor
	for _, f := range b.factors {
		if f.HasComplexWindow() {
			out = append(out, f)
		}
	}
	return out
}

// TrialsPerSample is the sequence length: the largest crossing size plus the
// preamble trials its window factors need, or the minimum-trials bound if
// that is larger.
func (b *Block) TrialsPerSample() int {
	if b.trialsPerSample != 0 {
		return b.trialsPerSample
	}
	required := b.minTrials
	for _, crossing := range b.crossings {
		preamble := 0
		for _, f := range crossing {
			if first := firstApplicableTrial(f); first-1 > preamble {
				preamble = first - 1
			}
		}
		if needed := b.CrossingSize(crossing) + preamble; needed > required {
			required = needed
		}
	}
	b.trialsPerSample = required
	return required
}

func firstApplicableTrial(f *design.Factor) int {
	for t := 1; ; t++ {
		if f.AppliesToTrial(t) {
			return t
		}
	}
}

// VariablesPerTrial counts one variable per level of each grid factor.
func (b *Block) VariablesPerTrial() int {
	if b.variablesPerTrial != 0 {
		return b.variablesPerTrial
	}
	n := 0
	for _, f := range b.gridFactors() {
		n += len(f.Levels)
	}
	b.variablesPerTrial = n
	return n
}

// GridVariables is the size of the uniform grid region.
func (b *Block) GridVariables() int {
	return b.TrialsPerSample() * b.VariablesPerTrial()
}

// VariablesPerSample is the total number of design variables: the grid plus
// each complex factor's contiguous region.
func (b *Block) VariablesPerSample() int {
	n := b.GridVariables()
	for _, f := range b.complexFactors() {
		n += len(f.Levels) * b.applicableTrialCount(f)
	}
	return n
}

func (b *Block) applicableTrialCount(f *design.Factor) int {
	count := 0
	for t := 1; t <= b.TrialsPerSample(); t++ {
		if f.AppliesToTrial(t) {
			count++
		}
	}
	return count
}

// previousApplicableTrials counts trials before the given one on which the
// factor applies. Memoized; it is on the hot path of variable encoding.
func (b *Block) previousApplicableTrials(f *design.Factor, trial int) int {
	key := prevKey{factor: f, trial: trial}
	if n, ok := b.prevTrials[key]; ok {
		return n
	}
	count := 0
	for t := 1; t < trial; t++ {
		if f.AppliesToTrial(t) {
			count++
		}
	}
	b.prevTrials[key] = count
	return count
}

// FirstVariableForLevel returns the 0-based offset of a level's variable:
// within one trial's block for grid factors, within the whole sample for
// complex factors (the start of the factor's region plus the level offset).
func (b *Block) FirstVariableForLevel(f *design.Factor, l *design.Level) int {
	if !f.HasComplexWindow() {
		offset := 0
		for _, g := range b.gridFactors() {
			if g == f {
				break
			}
			offset += len(g.Levels)
		}
		return offset + levelIndex(f, l)
	}
	offset := b.GridVariables()
	for _, g := range b.complexFactors() {
		if g == f {
			break
		}
		offset += len(g.Levels) * b.applicableTrialCount(g)
	}
	return offset + levelIndex(f, l)
}

func levelIndex(f *design.Factor, l *design.Level) int {
	for i, candidate := range f.Levels {
		if candidate == l {
			return i
		}
	}
	panic(fmt.Sprintf("level %q does not belong to factor %q", l.Name, f.Name))
}

// EncodeVariable maps (factor, level, 1-based trial) to its 1-based SAT
// variable. The factor must apply to the trial.
func (b *Block) EncodeVariable(f *design.Factor, l *design.Level, trial int) (int, error) {
	if trial < 1 || trial > b.TrialsPerSample() {
		return 0, fmt.Errorf("trial %d out of range [1, %d]", trial, b.TrialsPerSample())
	}
	if !f.AppliesToTrial(trial) {
		return 0, fmt.Errorf("factor %q does not apply to trial %d", f.Name, trial)
	}
	if !f.HasComplexWindow() {
		return b.VariablesPerTrial()*(trial-1) + b.FirstVariableForLevel(f, l) + 1, nil
	}
	return b.FirstVariableForLevel(f, l) + b.previousApplicableTrials(f, trial)*len(f.Levels) + 1, nil
}

// FactorVariablesForTrial returns the factor's level variables on one trial,
// in level order.
func (b *Block) FactorVariablesForTrial(f *design.Factor, trial int) ([]int, error) {
	out := make([]int, 0, len(f.Levels))
	for _, l := range f.Levels {
		v, err := b.EncodeVariable(f, l, trial)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// BuildVariableList returns the variable for the given level on every trial
// the factor applies to, in trial order. Counting constraints slide their
// windows over this list.
func (b *Block) BuildVariableList(f *design.Factor, l *design.Level) []int {
	var out []int
	for t := 1; t <= b.TrialsPerSample(); t++ {
		if !f.AppliesToTrial(t) {
			continue
		}
		v, err := b.EncodeVariable(f, l, t)
		if err != nil {
			// Unreachable: applicability was just checked.
			panic(err)
		}
		out = append(out, v)
	}
	return out
}

// DecodeVariable is the exact inverse of EncodeVariable.
func (b *Block) DecodeVariable(v int) (*design.Factor, *design.Level, int, error) {
	if v < 1 || v > b.VariablesPerSample() {
		return nil, nil, 0, fmt.Errorf("variable %d out of range [1, %d]", v, b.VariablesPerSample())
	}
	if v <= b.GridVariables() {
		trial := (v-1)/b.VariablesPerTrial() + 1
		offset := (v - 1) % b.VariablesPerTrial()
		for _, f := range b.gridFactors() {
			if offset < len(f.Levels) {
				return f, f.Levels[offset], trial, nil
			}
			offset -= len(f.Levels)
		}
	}
	offset := v - 1 - b.GridVariables()
	for _, f := range b.complexFactors() {
		region := len(f.Levels) * b.applicableTrialCount(f)
		if offset >= region {
			offset -= region
			continue
		}
		occurrence := offset / len(f.Levels)
		level := f.Levels[offset%len(f.Levels)]
		for t := 1; t <= b.TrialsPerSample(); t++ {
			if !f.AppliesToTrial(t) {
				continue
			}
			if occurrence == 0 {
				return f, level, t, nil
			}
			occurrence--
		}
	}
	// Unreachable: the range check above covers every region.
	return nil, nil, 0, fmt.Errorf("variable %d could not be decoded", v)
}

// SupportVariables lists the variables that carry the solution's meaning:
// every design variable, in order. Auxiliary variables introduced by CNF
// compilation and circuits come after these and are excluded.
func (b *Block) SupportVariables() []int {
	out := make([]int, b.VariablesPerSample())
	for i := range out {
		out[i] = i + 1
	}
	return out
}

package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialgen/trialgen/pkg/design"
)

// stroop is the canonical two-color design: color and text crossed, with a
// within-trial congruency factor derived from them.
func stroop(t *testing.T, constraints ...design.Constraint) (*design.Design, *Block) {
	t.Helper()
	color := design.MustFactor("color", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	text := design.MustFactor("text", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	congruency := design.MustFactor("congruency",
		design.DerivedLevel("congruent", design.WithinTrial(design.AllEqual, []*design.Factor{color, text})),
		design.DerivedLevel("incongruent", design.WithinTrial(design.AnyDiffer, []*design.Factor{color, text})),
	)
	d := &design.Design{
		Factors:     []*design.Factor{color, text, congruency},
		Crossings:   [][]*design.Factor{{color, text}},
		Constraints: constraints,
	}
	b, err := New(d)
	require.NoError(t, err)
	return d, b
}

// transitions adds a color-transition factor to a crossed color/text pair.
func transitions(t *testing.T, constraints ...design.Constraint) (*design.Design, *Block) {
	t.Helper()
	color := design.MustFactor("color", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	text := design.MustFactor("text", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	repetition := design.MustFactor("repetition",
		design.DerivedLevel("repeat", design.Transition(design.Repeats, []*design.Factor{color})),
		design.DerivedLevel("switch", design.Transition(design.Switches, []*design.Factor{color})),
	)
	d := &design.Design{
		Factors:     []*design.Factor{color, text, repetition},
		Crossings:   [][]*design.Factor{{color, text}},
		Constraints: constraints,
	}
	b, err := New(d)
	require.NoError(t, err)
	return d, b
}

func TestTrialAndVariableCounts(t *testing.T) {
	_, b := stroop(t)
	assert.Equal(t, 4, b.TrialsPerSample())
	assert.Equal(t, 6, b.VariablesPerTrial())
	assert.Equal(t, 24, b.GridVariables())
	assert.Equal(t, 24, b.VariablesPerSample())
}

func TestMinimumTrialsExtendsTheSequence(t *testing.T) {
	_, b := stroop(t, design.MinimumTrials{Trials: 7})
	assert.Equal(t, 7, b.TrialsPerSample())
}

func TestComplexFactorAllocation(t *testing.T) {
	_, b := transitions(t)
	// Color and text occupy the grid; the transition factor gets a region
	// after it, one pair of variables per applicable trial.
	assert.Equal(t, 4, b.TrialsPerSample())
	assert.Equal(t, 4, b.VariablesPerTrial())
	assert.Equal(t, 16, b.GridVariables())
	assert.Equal(t, 22, b.VariablesPerSample())

	repetition := factorNamed(t, b, "repetition")
	repeat := repetition.GetLevel("repeat")

	v, err := b.EncodeVariable(repetition, repeat, 2)
	require.NoError(t, err)
	assert.Equal(t, 17, v)
	v, err = b.EncodeVariable(repetition, repeat, 4)
	require.NoError(t, err)
	assert.Equal(t, 21, v)

	_, err = b.EncodeVariable(repetition, repeat, 1)
	assert.Error(t, err, "transition does not apply to the first trial")
}

func factorNamed(t *testing.T, b *Block, name string) *design.Factor {
	t.Helper()
	f := b.factorByName(name)
	require.NotNil(t, f)
	return f
}

func TestDecodeVariableInvertsEncodeVariable(t *testing.T) {
	for _, build := range []func(*testing.T, ...design.Constraint) (*design.Design, *Block){
		func(t *testing.T, cs ...design.Constraint) (*design.Design, *Block) { return stroop(t, cs...) },
		func(t *testing.T, cs ...design.Constraint) (*design.Design, *Block) { return transitions(t, cs...) },
	} {
		_, b := build(t)
		for v := 1; v <= b.VariablesPerSample(); v++ {
			f, l, trial, err := b.DecodeVariable(v)
			require.NoError(t, err)
			back, err := b.EncodeVariable(f, l, trial)
			require.NoError(t, err)
			assert.Equal(t, v, back)
		}
	}
}

func TestDecodeVariableRejectsOutOfRange(t *testing.T) {
	_, b := stroop(t)
	_, _, _, err := b.DecodeVariable(0)
	assert.Error(t, err)
	_, _, _, err = b.DecodeVariable(25)
	assert.Error(t, err)
}

func TestBuildVariableListSkipsInapplicableTrials(t *testing.T) {
	_, b := transitions(t)
	repetition := factorNamed(t, b, "repetition")
	vars := b.BuildVariableList(repetition, repetition.GetLevel("repeat"))
	assert.Equal(t, []int{17, 19, 21}, vars)

	color := factorNamed(t, b, "color")
	vars = b.BuildVariableList(color, color.GetLevel("red"))
	assert.Equal(t, []int{1, 5, 9, 13}, vars)
}

func TestValidationRejectsUnknownCrossingFactor(t *testing.T) {
	color := design.MustFactor("color", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	stray := design.MustFactor("stray", design.SimpleLevel("x"))
	_, err := New(&design.Design{
		Factors:   []*design.Factor{color},
		Crossings: [][]*design.Factor{{color, stray}},
	})
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidationRejectsStrideInCrossing(t *testing.T) {
	color := design.MustFactor("color", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	strided := design.MustFactor("strided",
		design.DerivedLevel("same", &design.Window{Predicate: design.AllEqual, Factors: []*design.Factor{color}, Width: 2, Stride: 2}),
		design.DerivedLevel("different", &design.Window{Predicate: design.AnyDiffer, Factors: []*design.Factor{color}, Width: 2, Stride: 2}),
	)
	_, err := New(&design.Design{
		Factors:   []*design.Factor{color, strided},
		Crossings: [][]*design.Factor{{color, strided}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stride")
}

func TestValidationRejectsNonExhaustiveDerivation(t *testing.T) {
	color := design.MustFactor("color", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	text := design.MustFactor("text", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	lopsided := design.MustFactor("lopsided",
		design.DerivedLevel("same", design.WithinTrial(design.AllEqual, []*design.Factor{color, text})),
	)
	_, err := New(&design.Design{
		Factors:   []*design.Factor{color, text, lopsided},
		Crossings: [][]*design.Factor{{color, text}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhaustive")
}

func TestExcludeOnDerivedLevelShrinksTheCrossing(t *testing.T) {
	color := design.MustFactor("color", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	text := design.MustFactor("text", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	congruency := design.MustFactor("congruency",
		design.DerivedLevel("congruent", design.WithinTrial(design.AllEqual, []*design.Factor{color, text})),
		design.DerivedLevel("incongruent", design.WithinTrial(design.AnyDiffer, []*design.Factor{color, text})),
	)
	d := &design.Design{
		Factors:     []*design.Factor{color, text, congruency},
		Crossings:   [][]*design.Factor{{color, text}},
		Constraints: []design.Constraint{design.Exclude{Factor: "congruency", Level: "congruent"}},
	}

	// Excluding "congruent" kills the two color==text cells.
	_, err := New(d)
	require.Error(t, err, "a required crossing must stay complete")

	b, err := New(d, AllowIncompleteCrossing())
	require.NoError(t, err)
	assert.Equal(t, 4, b.CrossingSizeWithoutExclusions(d.Crossings[0]))
	assert.Equal(t, 2, b.CrossingSize(d.Crossings[0]))
	assert.Equal(t, 2, b.TrialsPerSample())
}

func TestWeightedLevelsInflateTheCrossing(t *testing.T) {
	color := design.MustFactor("color",
		design.WeightedLevel("red", 2), design.SimpleLevel("blue"))
	text := design.MustFactor("text", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	d := &design.Design{
		Factors:   []*design.Factor{color, text},
		Crossings: [][]*design.Factor{{color, text}},
	}
	b, err := New(d)
	require.NoError(t, err)
	assert.Equal(t, 6, b.CrossingSize(d.Crossings[0]))
	assert.Equal(t, 6, b.TrialsPerSample())
}

func TestValidationRejectsExcludeOnChainedDerivation(t *testing.T) {
	color := design.MustFactor("color", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	text := design.MustFactor("text", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	congruency := design.MustFactor("congruency",
		design.DerivedLevel("congruent", design.WithinTrial(design.AllEqual, []*design.Factor{color, text})),
		design.DerivedLevel("incongruent", design.WithinTrial(design.AnyDiffer, []*design.Factor{color, text})),
	)
	chained := design.MustFactor("chained",
		design.DerivedLevel("again", design.Transition(design.Repeats, []*design.Factor{congruency})),
		design.DerivedLevel("changed", design.Transition(design.Switches, []*design.Factor{congruency})),
	)
	_, err := New(&design.Design{
		Factors:     []*design.Factor{color, text, congruency, chained},
		Crossings:   [][]*design.Factor{{color, text}},
		Constraints: []design.Constraint{design.Exclude{Factor: "chained", Level: "again"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chains through")
}

package sampler

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialgen/trialgen/internal/block"
	"github.com/trialgen/trialgen/pkg/design"
)

func testBlock(t *testing.T, constraints ...design.Constraint) *block.Block {
	t.Helper()
	color := design.MustFactor("color", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	text := design.MustFactor("text", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	congruency := design.MustFactor("congruency",
		design.DerivedLevel("congruent", design.WithinTrial(design.AllEqual, []*design.Factor{color, text})),
		design.DerivedLevel("incongruent", design.WithinTrial(design.AnyDiffer, []*design.Factor{color, text})),
	)
	b, err := block.New(&design.Design{
		Factors:     []*design.Factor{color, text, congruency},
		Crossings:   [][]*design.Factor{{color, text}},
		Constraints: constraints,
	})
	require.NoError(t, err)
	return b
}

func sequenceKey(exp block.Experiment) string {
	return fmt.Sprint(exp["color"], exp["text"])
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestIterateGenEnumeratesEveryModel(t *testing.T) {
	gen := NewIterateGen(quietLogger())
	assert.Equal(t, "iterate", gen.Name())

	result, err := gen.Sample(context.Background(), testBlock(t), 30)
	require.NoError(t, err)
	assert.True(t, result.Exhausted)
	require.Len(t, result.Samples, 24)

	seen := map[string]bool{}
	for _, exp := range result.Samples {
		seen[sequenceKey(exp)] = true
		for i := range exp["color"] {
			congruent := exp["color"][i] == exp["text"][i]
			assert.Equal(t, congruent, exp["congruency"][i] == "congruent")
		}
	}
	assert.Len(t, seen, 24)
}

func TestIterateGenStopsAtTheRequestedCount(t *testing.T) {
	gen := NewIterateGen(quietLogger())
	result, err := gen.Sample(context.Background(), testBlock(t), 5)
	require.NoError(t, err)
	assert.False(t, result.Exhausted)
	assert.Len(t, result.Samples, 5)
}

func TestIterateGenHonorsConstraints(t *testing.T) {
	gen := NewIterateGen(quietLogger())
	b := testBlock(t, design.AtMostKInARow{K: 1, Factor: "color"})
	result, err := gen.Sample(context.Background(), b, 30)
	require.NoError(t, err)
	assert.True(t, result.Exhausted)
	assert.Len(t, result.Samples, 8)
	for _, exp := range result.Samples {
		assert.True(t, b.Conforms(exp))
	}
}

func TestUniformGenSamplesDistinctConformingSequences(t *testing.T) {
	gen := NewUniformGen(rand.New(rand.NewSource(42)), quietLogger())
	assert.Equal(t, "uniform", gen.Name())

	b := testBlock(t)
	result, err := gen.Sample(context.Background(), b, 10)
	require.NoError(t, err)
	assert.False(t, result.Exhausted)
	require.Len(t, result.Samples, 10)

	seen := map[string]bool{}
	for _, exp := range result.Samples {
		assert.True(t, b.Conforms(exp))
		seen[sequenceKey(exp)] = true
	}
	assert.Len(t, seen, 10)
}

func TestGeneratorsAgreeOnTheSolutionSet(t *testing.T) {
	b := testBlock(t, design.AtMostKInARow{K: 1, Factor: "color"})

	iterated, err := NewIterateGen(quietLogger()).Sample(context.Background(), b, 100)
	require.NoError(t, err)
	uniform, err := NewUniformGen(rand.New(rand.NewSource(9)), quietLogger()).Sample(context.Background(), b, 100)
	require.NoError(t, err)

	require.True(t, iterated.Exhausted)
	require.True(t, uniform.Exhausted)

	fromSolver := map[string]bool{}
	for _, exp := range iterated.Samples {
		fromSolver[sequenceKey(exp)] = true
	}
	fromCounting := map[string]bool{}
	for _, exp := range uniform.Samples {
		fromCounting[sequenceKey(exp)] = true
	}
	assert.Equal(t, fromSolver, fromCounting)
}

func TestGeneratorsAgreeUnderMinimumTrials(t *testing.T) {
	shape := design.MustFactor("shape",
		design.SimpleLevel("circle"), design.SimpleLevel("square"), design.SimpleLevel("triangle"))
	b, err := block.New(&design.Design{
		Factors:     []*design.Factor{shape},
		Crossings:   [][]*design.Factor{{shape}},
		Constraints: []design.Constraint{design.MinimumTrials{Trials: 4}},
	})
	require.NoError(t, err)

	iterated, err := NewIterateGen(quietLogger()).Sample(context.Background(), b, 1000)
	require.NoError(t, err)
	uniform, err := NewUniformGen(rand.New(rand.NewSource(13)), quietLogger()).Sample(context.Background(), b, 1000)
	require.NoError(t, err)

	require.True(t, iterated.Exhausted)
	require.True(t, uniform.Exhausted)
	assert.Len(t, iterated.Samples, 18)
	assert.Len(t, uniform.Samples, 18)

	fromSolver := map[string]bool{}
	for _, exp := range iterated.Samples {
		fromSolver[fmt.Sprint(exp["shape"])] = true
	}
	fromCounting := map[string]bool{}
	for _, exp := range uniform.Samples {
		fromCounting[fmt.Sprint(exp["shape"])] = true
	}
	assert.Equal(t, fromCounting, fromSolver)
}

func TestUniformGenFallsBackToSolverIteration(t *testing.T) {
	// Crossing only a transition factor is outside the counting model.
	color := design.MustFactor("color", design.SimpleLevel("red"), design.SimpleLevel("blue"))
	repetition := design.MustFactor("repetition",
		design.DerivedLevel("repeat", design.Transition(design.Repeats, []*design.Factor{color})),
		design.DerivedLevel("switch", design.Transition(design.Switches, []*design.Factor{color})),
	)
	b, err := block.New(&design.Design{
		Factors:   []*design.Factor{color, repetition},
		Crossings: [][]*design.Factor{{repetition}},
	})
	require.NoError(t, err)

	gen := NewUniformGen(rand.New(rand.NewSource(1)), quietLogger())
	result, err := gen.Sample(context.Background(), b, 10)
	require.NoError(t, err)
	assert.True(t, result.Exhausted)
	// Three trials, two transitions, one of each kind: rrb, bbr, rbb, brr.
	assert.Len(t, result.Samples, 4)
	for _, exp := range result.Samples {
		require.Len(t, exp["color"], 3)
		repeats := 0
		for i := 1; i < 3; i++ {
			if exp["color"][i] == exp["color"][i-1] {
				repeats++
				assert.Equal(t, "repeat", exp["repetition"][i])
			} else {
				assert.Equal(t, "switch", exp["repetition"][i])
			}
		}
		assert.Equal(t, 1, repeats)
	}
}

func TestIterateGenContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewIterateGen(quietLogger()).Sample(ctx, testBlock(t), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

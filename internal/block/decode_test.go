package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialgen/trialgen/pkg/design"
)

func stroopExperiment() Experiment {
	return Experiment{
		"color":      {"red", "blue", "red", "blue"},
		"text":       {"red", "red", "blue", "blue"},
		"congruency": {"congruent", "incongruent", "incongruent", "congruent"},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	_, b := stroop(t)
	exp := stroopExperiment()

	assignment, err := b.Encode(exp)
	require.NoError(t, err)
	require.Len(t, assignment, 24)

	back, err := b.Decode(assignment)
	require.NoError(t, err)
	assert.Equal(t, exp, back)
}

func TestDecodeRejectsShortAssignments(t *testing.T) {
	_, b := stroop(t)
	_, err := b.Decode([]int{1, -2})
	assert.Error(t, err)
}

func TestDecodeRejectsMisnumberedLiterals(t *testing.T) {
	_, b := stroop(t)
	assignment, err := b.Encode(stroopExperiment())
	require.NoError(t, err)
	assignment[3] = 99
	_, err = b.Decode(assignment)
	assert.Error(t, err)
}

func TestDecodeRejectsDoubleAssignments(t *testing.T) {
	_, b := stroop(t)
	assignment, err := b.Encode(stroopExperiment())
	require.NoError(t, err)
	// Trial 1 color: both red (var 1) and blue (var 2) set.
	assignment[1] = 2
	_, err = b.Decode(assignment)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both")
}

func TestDecodeRejectsUndecidedTrials(t *testing.T) {
	_, b := stroop(t)
	assignment, err := b.Encode(stroopExperiment())
	require.NoError(t, err)
	// Trial 1 color: neither level set.
	assignment[0] = -1
	_, err = b.Decode(assignment)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undecided")
}

func TestConforms(t *testing.T) {
	cases := []struct {
		name       string
		constraint design.Constraint
		want       bool
	}{
		{"exclude holds", design.Exclude{Factor: "color", Level: "green"}, true},
		{"exclude violated", design.Exclude{Factor: "color", Level: "red"}, false},
		{"pin holds", design.Pin{Trial: 1, Factor: "color", Level: "red"}, true},
		{"pin from end", design.Pin{Trial: -1, Factor: "color", Level: "blue"}, true},
		{"pin violated", design.Pin{Trial: 2, Factor: "color", Level: "red"}, false},
		{"exactly k holds", design.ExactlyK{K: 2, Factor: "text", Level: "red"}, true},
		{"exactly k violated", design.ExactlyK{K: 3, Factor: "text", Level: "red"}, false},
		{"at most k in a row holds", design.AtMostKInARow{K: 2, Factor: "text"}, true},
		{"at most k in a row violated", design.AtMostKInARow{K: 1, Factor: "text", Level: "red"}, false},
		{"at least k in a row holds", design.AtLeastKInARow{K: 2, Factor: "text"}, true},
		{"at least k in a row violated", design.AtLeastKInARow{K: 3, Factor: "text", Level: "red"}, false},
		{"exactly k in a row holds", design.ExactlyKInARow{K: 2, Factor: "text"}, true},
		{"exactly k in a row violated", design.ExactlyKInARow{K: 1, Factor: "congruency"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, b := stroop(t)
			exp := stroopExperiment()
			assert.Equal(t, tc.want, b.constraintHolds(tc.constraint, exp))
		})
	}
}

func TestRunLengthsSkipInapplicableTrials(t *testing.T) {
	assert.Equal(t, []int{2, 1}, runLengths([]string{"", "a", "a", "b"}, ""))
	assert.Equal(t, []int{2}, runLengths([]string{"", "a", "a", "b"}, "a"))
	assert.Empty(t, runLengths([]string{"", "", ""}, ""))
}

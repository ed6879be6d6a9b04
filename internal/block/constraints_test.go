package block

import (
	"testing"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialgen/trialgen/pkg/design"
)

func TestBuildBackendRequestShape(t *testing.T) {
	_, b := stroop(t)
	req, err := b.BuildBackendRequest()
	require.NoError(t, err)

	// One exactly-one request per factor per trial, then one column request
	// per crossing combination.
	require.GreaterOrEqual(t, len(req.Requests), 16)
	consistency := req.Requests[:12]
	for _, r := range consistency {
		assert.Equal(t, EQ, r.Comparison)
		assert.Equal(t, 1, r.K)
		assert.Len(t, r.Variables, 2)
	}
	crossing := req.Requests[12:16]
	for _, r := range crossing {
		assert.Equal(t, EQ, r.Comparison)
		assert.Equal(t, 1, r.K)
		assert.Len(t, r.Variables, 4)
		for _, v := range r.Variables {
			assert.Greater(t, v, b.VariablesPerSample(), "crossing states are fresh variables")
		}
	}
	assert.Greater(t, req.NextVar, b.VariablesPerSample()+16)
}

func TestAtMostKInARowSlidesWindows(t *testing.T) {
	_, b := stroop(t, design.AtMostKInARow{K: 1, Factor: "color", Level: "red"})
	req, err := b.BuildBackendRequest()
	require.NoError(t, err)

	var windows []LowLevelRequest
	for _, r := range req.Requests {
		if r.Comparison == LT {
			windows = append(windows, r)
		}
	}
	require.Len(t, windows, 3)
	assert.Equal(t, []int{1, 5}, windows[0].Variables)
	assert.Equal(t, []int{5, 9}, windows[1].Variables)
	assert.Equal(t, []int{9, 13}, windows[2].Variables)
	for _, w := range windows {
		assert.Equal(t, 2, w.K)
	}
}

func TestPinEmitsAUnitClause(t *testing.T) {
	_, b := stroop(t, design.Pin{Trial: -1, Factor: "color", Level: "red"})
	req, err := b.BuildBackendRequest()
	require.NoError(t, err)
	assert.Contains(t, req.Fragments, []int{13})
}

func TestPinOutsideTheSequenceFails(t *testing.T) {
	_, b := stroop(t, design.Pin{Trial: 9, Factor: "color", Level: "red"})
	_, err := b.BuildBackendRequest()
	require.Error(t, err)
}

func TestLowLevelRequestValidate(t *testing.T) {
	assert.Error(t, LowLevelRequest{Comparison: "GE", K: 1, Variables: []int{1}}.Validate())
	assert.Error(t, LowLevelRequest{Comparison: EQ, K: 1}.Validate())
	assert.Error(t, LowLevelRequest{Comparison: EQ, K: 1, Variables: []int{0}}.Validate())
	assert.NoError(t, LowLevelRequest{Comparison: LT, K: 2, Variables: []int{1, 2}}.Validate())
}

// enumerateModels counts the satisfying assignments over the block's design
// variables, blocking each model as it is found.
func enumerateModels(t *testing.T, b *Block) []Experiment {
	t.Helper()
	req, err := b.BuildBackendRequest()
	require.NoError(t, err)
	compiled, err := req.Compile()
	require.NoError(t, err)

	g := gini.New()
	for _, clause := range compiled.Clauses() {
		for _, lit := range clause {
			if lit > 0 {
				g.Add(z.Var(uint32(lit)).Pos())
			} else {
				g.Add(z.Var(uint32(-lit)).Neg())
			}
		}
		g.Add(z.LitNull)
	}

	var models []Experiment
	support := b.SupportVariables()
	for g.Solve() == 1 {
		assignment := make([]int, len(support))
		for i, v := range support {
			if g.Value(z.Var(uint32(v)).Pos()) {
				assignment[i] = v
			} else {
				assignment[i] = -v
			}
		}
		exp, err := b.Decode(assignment)
		require.NoError(t, err)
		models = append(models, exp)

		for _, lit := range assignment {
			if lit > 0 {
				g.Add(z.Var(uint32(lit)).Neg())
			} else {
				g.Add(z.Var(uint32(-lit)).Pos())
			}
		}
		g.Add(z.LitNull)

		if len(models) > 200 {
			t.Fatal("model enumeration did not terminate")
		}
	}
	return models
}

func TestCompiledBlockHasExactlyTheCrossingOrderings(t *testing.T) {
	_, b := stroop(t)
	models := enumerateModels(t, b)
	assert.Len(t, models, 24)
	for _, exp := range models {
		cells := map[string]bool{}
		for i := range exp["color"] {
			cells[exp["color"][i]+"/"+exp["text"][i]] = true
			congruent := exp["color"][i] == exp["text"][i]
			assert.Equal(t, congruent, exp["congruency"][i] == "congruent")
		}
		assert.Len(t, cells, 4, "every crossing cell appears exactly once")
	}
}

func TestCompiledConstraintsPruneModels(t *testing.T) {
	_, b := stroop(t, design.AtMostKInARow{K: 1, Factor: "color"})
	models := enumerateModels(t, b)
	assert.Len(t, models, 8)
	for _, exp := range models {
		for i := 1; i < len(exp["color"]); i++ {
			assert.NotEqual(t, exp["color"][i-1], exp["color"][i])
		}
	}
}

func shapes(t *testing.T, constraints ...design.Constraint) *Block {
	t.Helper()
	shape := design.MustFactor("shape",
		design.SimpleLevel("circle"), design.SimpleLevel("square"), design.SimpleLevel("triangle"))
	b, err := New(&design.Design{
		Factors:     []*design.Factor{shape},
		Crossings:   [][]*design.Factor{{shape}},
		Constraints: constraints,
	})
	require.NoError(t, err)
	return b
}

func TestCompiledMinimumTrialsKeepsChunksComplete(t *testing.T) {
	// Extra trials beyond the crossing start a fresh partial crossing; the
	// first crossing-size trials must still be a complete crossing, which
	// rules out sequences like [square square circle triangle].
	cases := []struct {
		minTrials int
		want      int
	}{
		{3, 6},
		{4, 18},
		{5, 36},
	}
	for _, tc := range cases {
		b := shapes(t, design.MinimumTrials{Trials: tc.minTrials})
		models := enumerateModels(t, b)
		assert.Len(t, models, tc.want, "minimum trials %d", tc.minTrials)
		for _, exp := range models {
			firstChunk := map[string]bool{}
			for _, name := range exp["shape"][:3] {
				firstChunk[name] = true
			}
			assert.Len(t, firstChunk, 3, "first chunk of %v is not a complete crossing", exp["shape"])
			// The tail is a distinct prefix of another crossing.
			tail := map[string]int{}
			for _, name := range exp["shape"][3:] {
				tail[name]++
				assert.LessOrEqual(t, tail[name], 1)
			}
		}
	}
}

func TestCompiledWeightedCrossingBalancesChunks(t *testing.T) {
	color := design.MustFactor("color", design.WeightedLevel("red", 2), design.SimpleLevel("blue"))
	b, err := New(&design.Design{
		Factors:   []*design.Factor{color},
		Crossings: [][]*design.Factor{{color}},
	})
	require.NoError(t, err)
	models := enumerateModels(t, b)
	// 3!/2! arrangements of {red, red, blue}.
	assert.Len(t, models, 3)
	for _, exp := range models {
		reds := 0
		for _, name := range exp["color"] {
			if name == "red" {
				reds++
			}
		}
		assert.Equal(t, 2, reds)
	}
}

func TestCompiledTransitionDerivation(t *testing.T) {
	_, b := transitions(t)
	models := enumerateModels(t, b)
	assert.Len(t, models, 24)
	for _, exp := range models {
		assert.Empty(t, exp["repetition"][0])
		for i := 1; i < len(exp["color"]); i++ {
			want := "switch"
			if exp["color"][i-1] == exp["color"][i] {
				want = "repeat"
			}
			assert.Equal(t, want, exp["repetition"][i])
		}
	}
}

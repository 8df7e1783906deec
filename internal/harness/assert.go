package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// normalize round-trips a value through JSON so numeric representations
// compare equal regardless of whether a reducer produced int or float64.
func normalize(t *testing.T, v any) any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

// Test runs the scenario and asserts every recorded expectation.
func (s *Scenario) Test(t *testing.T) Result {
	t.Helper()
	result, err := s.Run(context.Background())
	require.NoError(t, err, "scenario %s", s.name)

	for i, st := range s.steps {
		if st.expect == nil {
			continue
		}
		trace := result.Trace[i]
		if st.expect.outcome != "" {
			assert.Equal(t, st.expect.outcome, trace.Outcome, "step %d (%s) outcome", i, st.actionType)
		}
		if st.expect.outcome == OutcomeReject {
			assert.Equal(t, st.expect.code, trace.Code, "step %d (%s) rejection code", i, st.actionType)
		}
		for viewType, expected := range st.expect.views {
			assert.Equal(t, normalize(t, expected), normalize(t, trace.Views[viewType]),
				"step %d (%s) view %s", i, st.actionType, viewType)
		}
	}
	return result
}

// TestGolden runs the scenario, asserts expectations, and compares the
// rendered trace against testdata/golden/<name>.golden.
func (s *Scenario) TestGolden(t *testing.T) {
	t.Helper()
	result := s.Test(t)
	data, err := result.Marshal()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.name, data)
}

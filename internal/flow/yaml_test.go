package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(`
fields:
  balance:
    default: 0
    on:
      - event: DEPOSIT
        add: amount
      - event: WITHDRAW
        subtract: amount
  suspended:
    default: false
    on:
      - event: SUSPEND
        constant: true
  ticks:
    default: 0
    on:
      - event: TICK
        increment: 1
`))
	require.NoError(t, err)

	state := InitState(spec)
	assert.Equal(t, 0.0, Number(state["balance"]))
	assert.Equal(t, false, state["suspended"])

	state = EvalStep(spec, state, Event("DEPOSIT", map[string]any{"amount": 20}))
	state = EvalStep(spec, state, Event("WITHDRAW", map[string]any{"amount": 8}))
	state = EvalStep(spec, state, Event("SUSPEND", nil))
	state = EvalStep(spec, state, Event("TICK", nil))

	assert.Equal(t, 12.0, Number(state["balance"]))
	assert.Equal(t, true, state["suspended"])
	assert.Equal(t, 1.0, Number(state["ticks"]))
}

func TestParseSpecDecodesDefaults(t *testing.T) {
	// Scalar, string and mapping defaults all round-trip through the raw
	// node representation.
	spec, err := ParseSpec([]byte(`
fields:
  count:
    default: 0
    on:
      - event: TICK
        increment: 1
  label:
    default: pending
    on:
      - event: NAME
        set: label
  limits:
    default:
      max: 3
    on:
      - event: RAISE
        set: limits
`))
	require.NoError(t, err)

	state := InitState(spec)
	assert.Equal(t, 0, state["count"])
	assert.Equal(t, "pending", state["label"])
	assert.Equal(t, map[string]any{"max": 3}, state["limits"])
}

func TestParseSpecSetAction(t *testing.T) {
	spec, err := ParseSpec([]byte(`
fields:
  owner:
    on:
      - event: OPEN
        set: name
`))
	require.NoError(t, err)

	state := EvalStep(spec, InitState(spec), Event("OPEN", map[string]any{"name": "ada"}))
	assert.Equal(t, "ada", state["owner"])
}

func TestParseSpecErrors(t *testing.T) {
	cases := map[string]string{
		"empty":       ``,
		"no fields":   `fields: {}`,
		"no event":    "fields:\n  n:\n    on:\n      - add: amount\n",
		"no action":   "fields:\n  n:\n    on:\n      - event: X\n",
		"two actions": "fields:\n  n:\n    on:\n      - event: X\n        add: a\n        subtract: b\n",
		"bad yaml":    `fields: [`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSpec([]byte(input))
			assert.Error(t, err)
		})
	}
}

package es

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidSequenceDetection(t *testing.T) {
	err := &InvalidSequenceError{Namespace: "account|a1", EventID: 3}
	assert.True(t, IsInvalidSequence(err))
	assert.True(t, IsInvalidSequence(fmt.Errorf("commit: %w", err)))
	assert.False(t, IsInvalidSequence(fmt.Errorf("boom")))
	assert.False(t, IsInvalidSequence(nil))
	assert.Contains(t, err.Error(), "account|a1")
}

func TestRejectionDetection(t *testing.T) {
	err := &RejectionError{ActionType: "WITHDRAW", Code: "ACCOUNT_BALANCE_LOW"}
	assert.True(t, IsRejection(err))
	assert.True(t, IsRejection(fmt.Errorf("invoke: %w", err)))
	assert.False(t, IsRejection(fmt.Errorf("boom")))

	code, ok := RejectionCode(fmt.Errorf("invoke: %w", err))
	assert.True(t, ok)
	assert.Equal(t, "ACCOUNT_BALANCE_LOW", code)

	_, ok = RejectionCode(fmt.Errorf("boom"))
	assert.False(t, ok)
}

func TestRejectionIsNotInvalidSequence(t *testing.T) {
	reject := &RejectionError{ActionType: "X", Code: "NO"}
	assert.False(t, IsInvalidSequence(reject))
	assert.False(t, IsRejection(&InvalidSequenceError{Namespace: "n", EventID: 0}))
}

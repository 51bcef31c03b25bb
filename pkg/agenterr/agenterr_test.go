package agenterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleInsertError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom: %w", ErrDependencyUnresolved)
	err := &ModuleInsertError{ModuleType: "widget.Widget", Cause: cause}

	require.ErrorIs(t, err, ErrDependencyUnresolved)
	assert.Contains(t, err.Error(), "widget.Widget")
}

func TestModuleInitError_AggregatesFailures(t *testing.T) {
	err := &ModuleInitError{Failures: []ModuleFailure{
		{ModuleType: "A", ModuleID: "1", Err: errors.New("a failed")},
		{ModuleType: "B", ModuleID: "2", Err: errors.New("b failed")},
	}}

	unwrapped := err.Unwrap()
	require.Len(t, unwrapped, 2)
	assert.EqualError(t, unwrapped[0], "a failed")
	assert.EqualError(t, unwrapped[1], "b failed")
	assert.Contains(t, err.Error(), "2 module(s) failed to initialize")
}

func TestModuleDisposeError_AggregatesFailures(t *testing.T) {
	err := &ModuleDisposeError{Failures: []ModuleFailure{
		{ModuleType: "A", ModuleID: "1", Err: errors.New("dispose failed")},
	}}
	assert.Contains(t, err.Error(), "1 module(s) failed to dispose")
}

func TestIsVeto(t *testing.T) {
	wrapped := fmt.Errorf("module refused: %w", ErrVeto)
	assert.True(t, IsVeto(wrapped))
	assert.False(t, IsVeto(errors.New("unrelated")))
}

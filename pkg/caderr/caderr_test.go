package caderr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByKind(t *testing.T) {
	err := New(KindUnknownEntity, "sketch.AddConstraint", "no entity %q", "l9").WithRefs("l9")

	assert.True(t, errors.Is(err, ErrUnknownEntity))
	assert.False(t, errors.Is(err, ErrUnsupportedConstraint))

	wrapped := fmt.Errorf("loading: %w", err)
	assert.True(t, errors.Is(wrapped, ErrUnknownEntity))
	assert.Equal(t, KindUnknownEntity, KindOf(wrapped))
	assert.Equal(t, []string{"l9"}, RefsOf(wrapped))
}

func TestErrorString(t *testing.T) {
	err := New(KindConstraintConflict, "solver.Solve", "residual did not converge").WithRefs("c1", "c2")
	assert.Equal(t, "solver.Solve: ConstraintConflict: residual did not converge [c1, c2]", err.Error())
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("radius too large")
	err := Wrap(KindKernelOperationFailed, "feature.Fillet", cause)

	require.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrKernelOperationFailed))
	assert.Contains(t, err.Error(), "radius too large")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Nil(t, RefsOf(errors.New("plain")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "StaleReference", KindStaleReference.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

package apierror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsTypedErrors(t *testing.T) {
	conflict := Conflict(CodeCajaAlreadyOpen, "open")
	assert.Same(t, conflict, Wrap(conflict))

	wrapped := fmt.Errorf("outer: %w", conflict)
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestWrapUntypedBecomesInternal(t *testing.T) {
	base := errors.New("connection reset")
	err := Wrap(base)

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, CodeInternal, e.Code)
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Wrap(nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, KindInternal.Retryable())
	assert.False(t, KindValidation.Retryable())
	assert.False(t, KindConflict.Retryable())
	assert.False(t, KindNotFound.Retryable())
}

func TestInvalidField(t *testing.T) {
	err := InvalidField("lines", "must not be empty")
	assert.Equal(t, KindValidation, err.Kind)
	assert.Equal(t, "must not be empty", err.Fields["lines"])
}

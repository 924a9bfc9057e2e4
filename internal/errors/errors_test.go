package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/asuwest1/ContractReviewOA/internal/errors"
)

func TestCodeOf(t *testing.T) {
	require.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(errors.NotFound("workflow", "7")))
	require.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(errors.InvalidInput("filename", "bad")))
	require.Equal(t, errors.ErrCodeValidation, errors.CodeOf(errors.Validation("too long")))
	require.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(errors.Unauthorized("no")))
	require.Equal(t, errors.ErrCodeConflict, errors.CodeOf(errors.New(errors.ErrCodeConflict, "already decided")))

	// Unknown errors default to internal.
	require.Equal(t, errors.ErrCodeInternal, errors.CodeOf(fmt.Errorf("pq: connection refused")))
	require.Equal(t, errors.ErrCodeInternal, errors.CodeOf(nil))
}

func TestCodeOfWrapped(t *testing.T) {
	cause := errors.NotFound("step", "42")
	wrapped := fmt.Errorf("decide: %w", cause)
	require.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(wrapped))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := errors.Wrap(cause, errors.ErrCodeInternal, "write document")
	require.True(t, stderrors.Is(err, cause))
	require.Contains(t, err.Error(), "write document")
}

func TestMessageSanitizesInternal(t *testing.T) {
	// Application errors surface their message.
	require.Equal(t, `workflow "7" not found`, errors.Message(errors.NotFound("workflow", "7")))

	// Internal details never leak to callers.
	leaky := errors.Wrap(fmt.Errorf("dial tcp 10.0.0.5:5432"), errors.ErrCodeInternal, "query failed")
	require.Equal(t, "internal server error", errors.Message(leaky))
	require.Equal(t, "internal server error", errors.Message(fmt.Errorf("dial tcp 10.0.0.5:5432")))
}

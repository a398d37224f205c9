package errors_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// TestNew
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal error", errors.CodeInternal, "unexpected failure"},
		{"raw data missing", errors.ErrCodeRawDataMissing, "Please manually download the raw data."},
		{"invalid param", errors.CodeInvalidParam, "split must be one of train, val, test"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
		})
	}
}

func TestNew_StackIsPopulated(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.CodeInternal, "test")
	assert.Contains(t, ae.Stack, "errors_test.go")
}

// ─────────────────────────────────────────────────────────────────────────────
// TestWrap
// ─────────────────────────────────────────────────────────────────────────────

func TestWrap_NilErrReturnsNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, errors.Wrap(nil, errors.CodeInternal, "should not matter"))
	assert.NoError(t, errors.Wrapf(nil, errors.CodeInternal, "idx=%d", 3))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	t.Parallel()

	root := stderrors.New("disk full")
	wrapped := errors.Wrap(root, errors.ErrCodeStorage, "write split blob")

	var ae *errors.AppError
	require.True(t, stderrors.As(wrapped, &ae))
	assert.Equal(t, errors.ErrCodeStorage, ae.Code)
	assert.Equal(t, "write split blob", ae.Message)
	assert.Equal(t, root, stderrors.Unwrap(wrapped))
	assert.True(t, stderrors.Is(wrapped, root))
}

func TestWrap_PreservesOriginalCodeWhenCodeUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeFieldNotFound, "field not found")
	outer := errors.Wrap(inner, errors.CodeUnknown, "adding context")

	assert.Equal(t, errors.ErrCodeFieldNotFound, errors.GetCode(outer))
}

func TestWrap_OverridesCodeWhenExplicit(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeFieldNotFound, "field not found")
	outer := errors.Wrap(inner, errors.CodeInternal, "unexpected state")

	assert.Equal(t, errors.CodeInternal, errors.GetCode(outer))
	assert.True(t, errors.IsCode(outer, errors.ErrCodeFieldNotFound), "inner code is still in the chain")
}

// ─────────────────────────────────────────────────────────────────────────────
// Error() formatting
// ─────────────────────────────────────────────────────────────────────────────

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeSplitIndexMalformed, "malformed split index").
		WithDetail("key=valid").
		WithCause(fmt.Errorf("unexpected EOF"))

	msg := ae.Error()
	assert.True(t, strings.HasPrefix(msg, "[DS_003] malformed split index"))
	assert.Contains(t, msg, "key=valid")
	assert.True(t, strings.HasSuffix(msg, "unexpected EOF"))
}

func TestWithDetail_DoesNotMutateSentinel(t *testing.T) {
	t.Parallel()

	sentinel := errors.New(errors.ErrCodeFieldNotFound, "field not found")
	derived := sentinel.WithDetailf("key=%s", "props")

	assert.Empty(t, sentinel.Detail)
	assert.Equal(t, "key=props", derived.Detail)
	assert.True(t, stderrors.Is(derived, sentinel))
}

func TestWithDetail_NilReceiver(t *testing.T) {
	t.Parallel()

	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain helpers
// ─────────────────────────────────────────────────────────────────────────────

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", stderrors.New("x"), false},
		{"not found", errors.NotFound("x"), true},
		{"field", errors.New(errors.ErrCodeFieldNotFound, "x"), true},
		{"record", errors.New(errors.ErrCodeRecordOutOfRange, "x"), true},
		{"wrapped object", fmt.Errorf("ctx: %w", errors.New(errors.ErrCodeObjectNotFound, "x")), true},
		{"internal", errors.Internal("x"), false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, errors.IsNotFound(tc.err))
		})
	}
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.CodeInvalidParam, errors.GetCode(errors.InvalidParam("bad")))
}

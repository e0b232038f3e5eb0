package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := New(Conflict, "proof is not pending")
	wrapped := fmt.Errorf("approve proof 7: %w", base)

	assert.Equal(t, Conflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, Conflict))
	assert.False(t, Is(wrapped, NotFound))
}

func TestKindOf_UntypedIsInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, Internal))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, StorageError, "store evidence")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "store evidence: disk full", err.Error())
	assert.Equal(t, "store evidence", Message(err))
	assert.Nil(t, Wrap(nil, StorageError, "ignored"))
}

func TestMessage_HidesUntypedText(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: connection refused")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "precondition_failed", PreconditionFailed.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
}

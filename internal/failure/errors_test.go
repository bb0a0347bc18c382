package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnsupported(t *testing.T) {
	err := Unsupported("DISTINCT")

	assert.True(t, IsUnsupported(err))
	assert.False(t, IsInvalidID(err))
	assert.False(t, IsBackend(err))
	assert.Equal(t, "UNSUPPORTED: DISTINCT", err.Error())
}

func TestInvalidID(t *testing.T) {
	err := InvalidID("id IN (...) on UPDATE")

	assert.True(t, IsInvalidID(err))
	assert.Equal(t, "INVALID_ID: id IN (...) on UPDATE", err.Error())
}

func TestBackendWrapsCause(t *testing.T) {
	cause := errors.New("collection not found")
	err := Backend("vector", KindNotFound, cause)

	assert.True(t, IsBackend(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "vector/NOT_FOUND")
}

func TestHelpersFollowWraps(t *testing.T) {
	wrapped := fmt.Errorf("compile users: %w", Unsupportedf("%d FROM roots", 2))

	assert.True(t, IsUnsupported(wrapped))
	fe, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "2 FROM roots", fe.Construct)
	assert.Equal(t, KindUnknown, KindOf(wrapped))
}

func TestPlainErrorIsNotClassified(t *testing.T) {
	err := errors.New("boom")

	assert.False(t, IsUnsupported(err))
	assert.False(t, IsBackend(err))
	_, ok := As(err)
	assert.False(t, ok)
}

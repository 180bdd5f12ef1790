package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCodeWalksChain(t *testing.T) {
	base := NotFound("voice clone %s not found", "abc")
	wrapped := fmt.Errorf("load: %w", Wrap(base, "get detail"))

	assert.Equal(t, CodeNotFound, GetCode(wrapped))
	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(wrapped, CodeConflict))
	assert.False(t, IsCode(nil, CodeNotFound))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(cause, "write audio")

	assert.True(t, Is(err, cause))
	assert.Equal(t, cause, Cause(err))
	assert.Equal(t, "write audio: disk full", err.Error())
	assert.Equal(t, CodeUnknown, GetCode(err))
	assert.Nil(t, Wrap(nil, "noop"))
}

func TestWithContextCopies(t *testing.T) {
	e := Conflict("training in progress")
	e2 := e.WithContext("id", "r1")

	assert.Empty(t, e.Context)
	assert.Equal(t, []KeyValue{{Key: "id", Value: "r1"}}, e2.Context)
	assert.Equal(t, CodeConflict, e2.Code)
}

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := NotFound("1", "2")
	assert.Equal(t, "NOT_FOUND: no records found for ids (ids=1,2)", err.Error())

	wrapped := Wrap(CodeConflict, "retry failed", errors.New("boom"))
	assert.Equal(t, "CONFLICT: retry failed: boom", wrapped.Error())
}

func TestIs_ThroughWrapping(t *testing.T) {
	base := OverwriteRejected("7")
	err := fmt.Errorf("add: %w", base)

	assert.True(t, Is(err, CodeOverwriteRejected))
	assert.False(t, Is(err, CodeNotFound))
	assert.Equal(t, CodeOverwriteRejected, CodeOf(err))
}

func TestIs_PlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), CodeConflict))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk")
	err := Wrap(CodeNotFound, "lookup", cause)
	assert.ErrorIs(t, err, cause)
}

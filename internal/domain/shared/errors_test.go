package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	assert.Equal(t, "pause.Close: pause is already closed", ErrPauseAlreadyClosed.Error())

	wrapped := WrapError("student", "Update", ErrInvalidInput, "bad row", errors.New("boom"))
	assert.Equal(t, "student.Update: bad row: boom", wrapped.Error())

	noOp := NewDomainError("progress", "", ErrInvalidInput, "student is required")
	assert.Equal(t, "progress: student is required", noOp.Error())
}

func TestDomainError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("save: %w", WrapError("pause", "Open", ErrAlreadyExists, "dup", cause))

	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)

	var de *DomainError
	assert.ErrorAs(t, err, &de)
	assert.Equal(t, "pause", de.Domain)
}

func TestClassifiers(t *testing.T) {
	assert.True(t, IsNotFound(ErrStudentNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("get: %w", ErrPauseNotFound)))
	assert.False(t, IsNotFound(ErrRunLocked))

	assert.True(t, IsValidation(ErrInvalidStreak))
	assert.True(t, IsValidation(ErrPauseEndBeforeStart))
	assert.True(t, IsValidation(ErrInvalidStudentRef))
	assert.False(t, IsValidation(ErrPauseAlreadyClosed))

	assert.True(t, IsInvalidState(ErrPauseAlreadyClosed))
	assert.False(t, IsInvalidState(ErrPauseAlreadyOpen))

	assert.ErrorIs(t, ErrRunLocked, ErrLocked)
}

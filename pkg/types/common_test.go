package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeTimeout, "send timed out")
	assert.Equal(t, "TIMEOUT: send timed out", err.Error())

	wrapped := WrapError(ErrCodeInternal, "msgget failed", errors.New("no space"))
	assert.Equal(t, "INTERNAL: msgget failed: no space", wrapped.Error())
	assert.Equal(t, "no space", errors.Unwrap(wrapped).Error())
}

func TestIsErrCodeThroughWrapping(t *testing.T) {
	inner := NewError(ErrCodeUnavailable, "sysv transport unsupported")
	outer := fmt.Errorf("initialize messenger: %w", inner)

	assert.True(t, IsErrCode(outer, ErrCodeUnavailable))
	assert.False(t, IsErrCode(outer, ErrCodeTimeout))
	assert.Equal(t, ErrCodeUnavailable, GetErrorCode(outer))
	assert.Equal(t, "", GetErrorCode(errors.New("plain")))
}

func TestIsViolation(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  bool
	}{
		{name: "contract violation", value: Violation("nil buffer"), want: true},
		{name: "clock regression", value: NewError(ErrCodeClockRegression, "clock ran backward"), want: true},
		{name: "timeout", value: NewError(ErrCodeTimeout, "send"), want: false},
		{name: "string panic", value: "boom", want: false},
		{name: "nil", value: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsViolation(tt.value))
		})
	}
}

func TestIDAndTimestamp(t *testing.T) {
	assert.True(t, ID("").IsEmpty())
	assert.Equal(t, "mem-1", NewID("mem-1").String())
	assert.True(t, Timestamp{}.IsZero())
	assert.False(t, NewTimestamp().IsZero())
}

package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(CodeValidation, "name is required")
	assert.EqualError(t, err, "name is required")
	assert.True(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(err, CodeNotFound))
}

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := New(CodeNotFound, "identity not found")
	outer := Wrap(inner, CodeInternal, "load identity")

	assert.True(t, HasCode(outer, CodeNotFound))
	assert.EqualError(t, outer, "load identity")
	assert.True(t, errors.Is(outer, inner))
}

func TestWrapAppliesCodeToPlainErrors(t *testing.T) {
	inner := errors.New("connection refused")
	outer := Wrap(inner, CodeUnavailable, "store unreachable")

	assert.True(t, HasCode(outer, CodeUnavailable))
	assert.True(t, errors.Is(outer, inner))
}

func TestHasCodeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeExpired, "code expired"))
	assert.True(t, HasCode(err, CodeExpired))
}

func TestHasCodeOnNonDomainError(t *testing.T) {
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(CodeConflict, "first")
	b := New(CodeConflict, "second")
	assert.True(t, errors.Is(a, b))

	c := New(CodeExpired, "other")
	assert.False(t, errors.Is(a, c))
}

package xerrors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	require.Nil(t, Wrap(nil, "ctx"))

	base := errors.New("boom")
	err := Wrapf(base, "call %s", "crm")
	require.EqualError(t, err, "call crm: boom")
	require.True(t, Is(err, base))
}

func TestCodedError(t *testing.T) {
	base := errors.New("declined")
	err := WithCode(base, "CREDIT_DECLINED")

	assert.Equal(t, "CREDIT_DECLINED", GetCode(err))
	assert.Equal(t, "CREDIT_DECLINED", GetCode(Wrap(err, "outer")))
	assert.Equal(t, "", GetCode(base))
	assert.True(t, Is(err, base))
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		terminal   bool
		validation bool
		code       string
	}{
		{"nil", nil, false, false, ""},
		{"plain", errors.New("remote 503"), false, false, ""},
		{"deadline", context.DeadlineExceeded, false, false, ""},
		{"validation", NewValidation("beds", "is required"), true, true, CodeValidation},
		{"wrapped validation", Wrap(NewValidation("to", "is required"), "stage"), true, true, CodeValidation},
		{"configuration", NewConfiguration("lives", "must be positive"), true, true, CodeConfiguration},
		{"terminal", Terminal(errors.New("contract rejected")), true, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminal(tt.err))
			assert.Equal(t, tt.err != nil && !tt.terminal, IsRetryable(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.code, GetCode(tt.err))
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidation("bedsCount", "is required for icu")
	require.EqualError(t, err, "validation failed: bedsCount: is required for icu")
	require.True(t, Is(err, ErrInvalidInput))

	require.EqualError(t, NewValidation("", "missing components"), "validation failed: missing components")
}

func TestTerminalPreservesChain(t *testing.T) {
	base := errors.New("boom")
	err := Terminal(base)
	require.True(t, Is(err, base))
	require.EqualError(t, err, "boom")
	require.Nil(t, Terminal(nil))
}

func TestCombine(t *testing.T) {
	require.Nil(t, Combine(nil, nil))

	one := errors.New("one")
	require.Equal(t, one, Combine(nil, one))

	two := errors.New("two")
	err := Combine(one, two)
	require.EqualError(t, err, "one (and 1 more errors)")
	require.True(t, Is(err, two))
}

func TestMust(t *testing.T) {
	require.Equal(t, 3, Must(3, nil))
	require.Panics(t, func() { Must(0, errors.New("bad")) })
}

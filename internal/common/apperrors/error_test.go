package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	ErrBase := New("base error")
	assert.Equal(t, "base error", ErrBase.Error())
	assert.Equal(t, "msg", ErrBase.New("msg").Error())
	assert.ErrorIs(t, ErrBase, ErrBase)

	ErrFirstLevel := ErrBase.New("first level")
	assert.Equal(t, "first level", ErrFirstLevel.Error())
	assert.ErrorIs(t, ErrFirstLevel, ErrBase)

	ErrAnother := New("another error")
	ErrWrapped := ErrFirstLevel.Err(ErrAnother)
	assert.Equal(t, "first level", ErrWrapped.Error())
	assert.ErrorIs(t, ErrWrapped, ErrBase)
	assert.ErrorIs(t, ErrWrapped, ErrAnother)

	err := errors.New("error")
	ErrWrapped = ErrFirstLevel.Err(err)
	assert.Equal(t, "first level", ErrWrapped.Error())
	assert.ErrorIs(t, ErrWrapped, ErrBase)
	assert.ErrorIs(t, ErrWrapped, err)

	ErrWrapped = ErrFirstLevel.MsgErr("msg", err)
	assert.Equal(t, "msg", ErrWrapped.Error())
	assert.ErrorIs(t, ErrWrapped, ErrBase)
	assert.ErrorIs(t, ErrWrapped, err)
}

func TestModifiersDoNotMutateSentinels(t *testing.T) {
	ErrBase := New("base error").SetStatusCode(500)
	ErrChild := ErrBase.New("child")

	derived := ErrChild.Msg("with context")
	assert.Equal(t, "child", ErrChild.Error())
	assert.Equal(t, "with context", derived.Error())
	assert.ErrorIs(t, derived, ErrChild)
	assert.ErrorIs(t, derived, ErrBase)
	assert.Equal(t, 500, derived.StatusCode())

	wrapped := ErrChild.Err(errors.New("cause"))
	assert.Empty(t, ErrChild.Unwrap())
	assert.Len(t, wrapped.Unwrap(), 1)
}

func TestErrorAll(t *testing.T) {
	ErrBase := New("base").SetExpandError(true)
	err := ErrBase.Err(errors.New("one"), errors.New("two"))
	assert.Equal(t, "base: one; two", err.ErrorAll())
	assert.Equal(t, "base", err.Error())
}

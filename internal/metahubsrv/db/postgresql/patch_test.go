package postgresql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatchAssignments(t *testing.T) {
	p := NewPatch().Set("codename", "foo").Set("is_required", true)
	frag, vals := p.assignments(2)
	assert.Equal(t, "codename = $3, is_required = $4", frag)
	assert.Equal(t, []any{"foo", true}, vals)
}

func TestPatchEmpty(t *testing.T) {
	var nilPatch *Patch
	assert.True(t, nilPatch.Empty())
	assert.True(t, NewPatch().Empty())
	assert.False(t, NewPatch().Set("ui_config", nil).Empty())

	frag, vals := NewPatch().assignments(0)
	assert.Equal(t, "", frag)
	assert.Nil(t, vals)
}

func TestPatchValue(t *testing.T) {
	p := NewPatch().Set("is_default", false).Set("is_default", true)

	v, ok := p.Value("is_default")
	assert.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = p.Value("sort_order")
	assert.False(t, ok)
	assert.True(t, p.Has("is_default"))
	assert.False(t, p.Has("sort_order"))

	var nilPatch *Patch
	_, ok = nilPatch.Value("is_default")
	assert.False(t, ok)
}

func TestPatchRejectsBadColumnNames(t *testing.T) {
	assert.Panics(t, func() { NewPatch().Set("codename; DROP TABLE objects", "x") })
	assert.Panics(t, func() { NewPatch().Set("Codename", "x") })
	assert.Panics(t, func() { NewPatch().Set("", "x") })
}

package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCodename(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		expect string
	}{
		{"already normal", "product_title", "product_title"},
		{"uppercase", "ProductTitle", "producttitle"},
		{"spaces", "Product Title", "product_title"},
		{"hyphens and dots", "product-title.v2", "product_title_v2"},
		{"collapsed underscores", "product  -  title", "product_title"},
		{"leading and trailing", " _product_ ", "product"},
		{"tabs", "a\tb", "a_b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, NormalizeCodename(tt.in))
		})
	}
}

func TestValidateCodename(t *testing.T) {
	assert.Nil(t, ValidateCodename("product_title"))
	assert.Nil(t, ValidateCodename("a"))
	assert.Nil(t, ValidateCodename("a1_2_3"))
	assert.Nil(t, ValidateCodename("a"+strings.Repeat("b", 63)))

	assert.NotNil(t, ValidateCodename(""))
	assert.NotNil(t, ValidateCodename("1starts_with_digit"))
	assert.NotNil(t, ValidateCodename("_starts_with_underscore"))
	assert.NotNil(t, ValidateCodename("has space"))
	assert.NotNil(t, ValidateCodename("Ümlaut"))
	assert.NotNil(t, ValidateCodename("a"+strings.Repeat("b", 64)))
}

func TestNormalizeThenValidate(t *testing.T) {
	// the usual pipeline: user input goes through normalize, then validate
	for _, in := range []string{"Product Title", "SKU-Code", "a.b.c"} {
		assert.Nil(t, ValidateCodename(NormalizeCodename(in)), in)
	}
	// normalization does not rescue genuinely invalid input
	assert.NotNil(t, ValidateCodename(NormalizeCodename("42pricing")))
	assert.NotNil(t, ValidateCodename(NormalizeCodename("prix€")))
}

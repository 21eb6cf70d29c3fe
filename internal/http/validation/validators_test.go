package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequired(t *testing.T) {
	tests := []struct {
		name   string
		maxLen int
		value  string
		want   string
	}{
		{name: "valid input", maxLen: 10, value: "Asthma"},
		{name: "empty string", maxLen: 10, value: "", want: "Title is required."},
		{name: "whitespace only", maxLen: 10, value: "   ", want: "Title is required."},
		{name: "exceeds max length", maxLen: 5, value: "toolong", want: "Title cannot exceed 5 characters."},
		{name: "exactly max length", maxLen: 5, value: "exact"},
		{name: "counts runes not bytes", maxLen: 3, value: "äöü"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Required("Title", tt.maxLen)(tt.value))
		})
	}
}

func TestOptional(t *testing.T) {
	v := Optional("Full text", 4)
	assert.Empty(t, v(""))
	assert.Empty(t, v("abcd"))
	assert.Empty(t, v("ééé"))
	assert.Equal(t, "Full text cannot exceed 4 characters.", v("abcde"))
}

func TestOneOf(t *testing.T) {
	v := OneOf("Mode", []string{"fulltext", "flashcards"})
	assert.Empty(t, v("fulltext"))
	assert.Empty(t, v(" FlashCards "))
	assert.Equal(t, "Mode must be one of: fulltext, flashcards", v("essay"))
	assert.Equal(t, "Mode must be one of: fulltext, flashcards", v(""))
}

func TestFieldValidator(t *testing.T) {
	t.Run("collects first failure per field", func(t *testing.T) {
		fv := New().
			Validate("title", "", Required("Title", 10), OneOf("Title", []string{"x"})).
			Validate("title", "ok", Required("Title", 10)).
			Validate("specialty", "Medicine", Required("Specialty", 10))

		assert.False(t, fv.Valid())
		assert.Equal(t, map[string]string{"title": "Title is required."}, fv.Errors())
	})

	t.Run("validate each reports the first bad element", func(t *testing.T) {
		modes := OneOf("Mode", []string{"fulltext"})
		fv := New().ValidateEach("modes", []string{"fulltext", "essay", "poem"}, modes)

		assert.Equal(t, map[string]string{"modes": "Mode must be one of: fulltext"}, fv.Errors())
	})

	t.Run("valid input", func(t *testing.T) {
		fv := New().Validate("title", strings.Repeat("a", 3), Required("Title", 3))
		assert.True(t, fv.Valid())
		assert.Empty(t, fv.Errors())
	})
}

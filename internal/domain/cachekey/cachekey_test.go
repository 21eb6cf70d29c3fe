package cachekey

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medforge/contentgen/internal/domain/model"
)

func TestCompute_Deterministic(t *testing.T) {
	a := map[string]string{}
	a["title"] = "Asthma"
	a["specialty"] = "Medicine"
	a["parent_grouping"] = "Respiratory"

	b := map[string]string{}
	b["parent_grouping"] = "Respiratory"
	b["specialty"] = "Medicine"
	b["title"] = "Asthma"

	for i := 0; i < 20; i++ {
		assert.Equal(t, Compute(model.ModeFullText, "m1", a), Compute(model.ModeFullText, "m1", b))
	}
	assert.Equal(t, string(Canonical(model.ModeFullText, "m1", a)), string(Canonical(model.ModeFullText, "m1", b)))
}

func TestCompute_Normalization(t *testing.T) {
	base := Compute(model.ModeHighYield, "m", map[string]string{"title": "Asthma"})

	assert.Equal(t, base, Compute(model.ModeHighYield, " m ", map[string]string{"title": "  Asthma\n", "full_text": "   "}),
		"whitespace and empty values must not change the key")
	assert.NotEqual(t, base, Compute(model.ModeFlashcards, "m", map[string]string{"title": "Asthma"}))
	assert.NotEqual(t, base, Compute(model.ModeHighYield, "other", map[string]string{"title": "Asthma"}))
	assert.NotEqual(t, base, Compute(model.ModeHighYield, "m", map[string]string{"title": "COPD"}))
}

func TestForContext(t *testing.T) {
	gc := model.GenerationContext{Specialty: "Medicine", ParentGrouping: "Respiratory", Title: "Asthma"}
	want := Compute(model.ModeFullText, "m", map[string]string{
		"specialty":       "Medicine",
		"parent_grouping": "Respiratory",
		"title":           "Asthma",
	})
	assert.Equal(t, want, ForContext(model.ModeFullText, "m", gc))
	assert.Len(t, want, 64)
}

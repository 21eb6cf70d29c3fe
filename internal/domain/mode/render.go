package mode

import (
	"strings"

	"github.com/medforge/contentgen/internal/domain/model"
)

// Prompt is a rendered system/user prompt pair.
type Prompt struct {
	System string
	User   string
}

// Render fills the {{key}} placeholders of cfg's templates from gc.
// Unknown placeholders are left untouched.
func (cfg Config) Render(gc model.GenerationContext) Prompt {
	vars := gc.Vars()
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return Prompt{
		System: strings.TrimSpace(r.Replace(cfg.SystemPrompt)),
		User:   strings.TrimSpace(r.Replace(cfg.UserPrompt)),
	}
}

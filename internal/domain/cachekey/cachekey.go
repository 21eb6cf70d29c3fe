// Package cachekey derives content-addressed keys for generation results.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/medforge/contentgen/internal/domain/model"
)

// Version is mixed into every key so a change in key layout invalidates old entries.
const Version = "v1"

type canonicalInput struct {
	Version string            `json:"v"`
	Mode    model.Mode        `json:"mode"`
	Model   string            `json:"model"`
	Context map[string]string `json:"context"`
}

// NormalizeContext trims every value and drops empty ones.
func NormalizeContext(ctx map[string]string) map[string]string {
	out := make(map[string]string, len(ctx))
	for k, v := range ctx {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Canonical returns the stable serialization the key is hashed from.
// encoding/json writes map keys in sorted order, so insertion order never matters.
func Canonical(mode model.Mode, modelHint string, ctx map[string]string) []byte {
	b, err := json.Marshal(canonicalInput{
		Version: Version,
		Mode:    mode,
		Model:   strings.TrimSpace(modelHint),
		Context: NormalizeContext(ctx),
	})
	if err != nil {
		// string maps always marshal
		panic(err)
	}
	return b
}

// Compute returns the hex sha256 key for (mode, modelHint, ctx).
func Compute(mode model.Mode, modelHint string, ctx map[string]string) string {
	sum := sha256.Sum256(Canonical(mode, modelHint, ctx))
	return hex.EncodeToString(sum[:])
}

// ForContext is Compute over a typed generation context.
func ForContext(mode model.Mode, modelHint string, gc model.GenerationContext) string {
	return Compute(mode, modelHint, gc.Vars())
}

package model

import (
	"fmt"
	"strings"
)

// Mode is a named generation stage with its own prompts and dependency requirements.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Mode string

const (
	// ModeFullText produces the long-form topic text consumed by later stages.
	ModeFullText Mode = "fulltext"
	// ModeHighYield condenses the full text into a high-yield summary.
	ModeHighYield Mode = "high_yield"
	// ModeFlashcards derives flashcards from the full text.
	ModeFlashcards Mode = "flashcards"
	// ModeQuestions derives quiz questions from the full text.
	ModeQuestions Mode = "questions"
)

// AllModes returns every supported mode in canonical dependency order.
func AllModes() []Mode {
	return []Mode{ModeFullText, ModeHighYield, ModeFlashcards, ModeQuestions}
}

// ModeNames returns the wire names of AllModes.
func ModeNames() []string {
	all := AllModes()
	out := make([]string, len(all))
	for i, m := range all {
		out[i] = string(m)
	}
	return out
}

// DefaultModes is the plan used when an enqueue request names no modes.
func DefaultModes() []Mode {
	return []Mode{ModeFullText, ModeHighYield, ModeFlashcards}
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeFullText, ModeHighYield, ModeFlashcards, ModeQuestions:
		return true
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so modes can be parsed from env and JSON keys.
func (m *Mode) UnmarshalText(text []byte) error {
	v := Mode(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid mode: %q", string(text))
	}
	*m = v
	return nil
}

// ParseModes converts raw strings into modes, rejecting unknown values.
func ParseModes(raw []string) ([]Mode, error) {
	out := make([]Mode, 0, len(raw))
	for _, r := range raw {
		var m Mode
		if err := m.UnmarshalText([]byte(r)); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ProviderKind identifies an LLM provider adapter.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type ProviderKind string

const (
	// ProviderAnthropic speaks the chat-completion (messages) request shape.
	ProviderAnthropic ProviderKind = "anthropic"
	// ProviderGemini speaks the generate-content request shape.
	ProviderGemini ProviderKind = "gemini"
)

// Valid reports whether p is a known provider.
func (p ProviderKind) Valid() bool {
	return p == ProviderAnthropic || p == ProviderGemini
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (p *ProviderKind) UnmarshalText(text []byte) error {
	v := ProviderKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid provider: %q", string(text))
	}
	*p = v
	return nil
}

package session

import "strings"

// PaperContext is the structured briefing the assistant's instructions are
// built from. Fields map onto /api/papers results.
type PaperContext struct {
	Title     string
	Authors   string
	Published string
	Summary   string
	URL       string
}

const briefingPreamble = "You are an enthusiastic research assistant discussing a paper " +
	"with a curious listener. Speak conversationally, stay grounded in the paper, " +
	"and say so plainly when it does not answer a question."

// Instructions assembles the upstream briefing deterministically: fixed field
// order, fixed delimiter, absent fields skipped without gaps. Identical
// contexts always produce identical instructions, so a pushed update is a
// no-op upstream unless something really changed.
func Instructions(p *PaperContext) string {
	if p == nil {
		return briefingPreamble
	}
	parts := []string{briefingPreamble}
	for _, field := range []struct {
		label, value string
	}{
		{"Title", p.Title},
		{"Authors", p.Authors},
		{"Published", p.Published},
		{"Summary", p.Summary},
		{"URL", p.URL},
	} {
		if v := strings.TrimSpace(field.value); v != "" {
			parts = append(parts, field.label+": "+v)
		}
	}
	return strings.Join(parts, "\n")
}

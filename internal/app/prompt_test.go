package app

import (
	"strings"
	"testing"

	"echoself/pkg/domain"
)

func TestPersonalityPromptBalancedDefaults(t *testing.T) {
	user := domain.User{Name: "Alice", Personality: domain.DefaultPersonality()}
	prompt := PersonalityPrompt(user)
	if !strings.Contains(prompt, "You are Alice") {
		t.Fatalf("prompt missing persona name: %q", prompt)
	}
	for _, want := range []string{"Balanced", "Moderate", "Occasional humor"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q: %q", want, prompt)
		}
	}
}

func TestPersonalityPromptExtremes(t *testing.T) {
	user := domain.User{
		Name: "Bob",
		Personality: domain.PersonalityTraits{
			Formality:  9,
			Enthusiasm: 2,
			Verbosity:  8,
			Humor:      1,
			Traits:     []string{"curious", "direct"},
		},
	}
	prompt := PersonalityPrompt(user)
	for _, want := range []string{"Formal", "Reserved", "Detailed", "Serious", "curious, direct"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q: %q", want, prompt)
		}
	}
}

func TestWithKnowledgeContext(t *testing.T) {
	base := "base prompt"
	if got := withKnowledgeContext(base, nil); got != base {
		t.Fatalf("empty hits must not modify prompt: %q", got)
	}
	hits := []domain.KnowledgeHit{{Content: "fact one"}, {Content: "fact two"}}
	got := withKnowledgeContext(base, hits)
	if !strings.Contains(got, "fact one") || !strings.Contains(got, "fact two") {
		t.Fatalf("context block missing snippets: %q", got)
	}
	if !strings.HasPrefix(got, base) {
		t.Fatalf("context must append, not replace: %q", got)
	}
}

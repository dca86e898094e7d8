package app

import (
	"fmt"
	"strings"

	"echoself/pkg/domain"
)

// PersonalityPrompt renders the system prompt for a user's persona. Trait
// values run 1-10; 4-7 is the balanced middle band.
func PersonalityPrompt(user domain.User) string {
	p := user.Personality
	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = "User"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, responding as yourself. Your personality traits:\n", name)
	fmt.Fprintf(&b, "- Communication style: %s\n", scaleLabel(p.Formality, "Formal", "Casual", "Balanced"))
	fmt.Fprintf(&b, "- Enthusiasm: %s\n", scaleLabel(p.Enthusiasm, "Very enthusiastic", "Reserved", "Moderate"))
	fmt.Fprintf(&b, "- Response length: %s\n", scaleLabel(p.Verbosity, "Detailed", "Concise", "Balanced"))
	fmt.Fprintf(&b, "- Humor: %s\n", scaleLabel(p.Humor, "Very humorous", "Serious", "Occasional humor"))
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "- Notable traits: %s\n", strings.Join(p.Traits, ", "))
	}
	fmt.Fprintf(&b, "\nRespond naturally as %s would, maintaining consistency with your personality traits.", name)
	return b.String()
}

func scaleLabel(value int, high, low, mid string) string {
	switch {
	case value > 7:
		return high
	case value < 4:
		return low
	default:
		return mid
	}
}

// withKnowledgeContext appends retrieved snippets to the system prompt.
func withKnowledgeContext(prompt string, hits []domain.KnowledgeHit) string {
	if len(hits) == 0 {
		return prompt
	}
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, hit.Content)
	}
	return prompt + "\n\nRelevant context from your knowledge base:\n" + strings.Join(parts, "\n")
}

package agent

import (
	"fmt"
	"strings"

	"github.com/agentx/agentx/internal/grounding"
	"github.com/agentx/agentx/internal/knowledge"
	"github.com/agentx/agentx/internal/session"
)

// Degraded answers keep the agent responsive when a tool is down.
// The user always receives a response.
const (
	degradedRetrievalAnswer = "I'm unable to retrieve information right now. Please try again in a moment."
	degradedGroundingAnswer = "I couldn't find this in the knowledge base, and the web lookup is unavailable right now. Please try again later."
)

// formatRetrievalAnswer builds the answer text from matched chunks with
// inline citation markers, plus the citation list in the same order.
// Citation metadata flows through from the index unchanged.
func formatRetrievalAnswer(matches []knowledge.Match) (string, []session.Citation) {
	var b strings.Builder
	citations := make([]session.Citation, 0, len(matches))

	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s [%d]", strings.TrimSpace(m.Chunk.Content), i+1)

		locator := m.Locator
		if locator == "" {
			locator = fmt.Sprintf("%s#%d", m.Chunk.DocumentID, m.Chunk.Ordinal)
		}
		citations = append(citations, session.Citation{
			Source:  m.Filename,
			Locator: locator,
		})
	}

	b.WriteString("\n\nSources:\n")
	for i, c := range citations {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Source)
	}

	return strings.TrimSuffix(b.String(), "\n"), citations
}

// formatGroundingAnswer builds the answer text from a web-grounded
// result with its source URLs.
func formatGroundingAnswer(result *grounding.Result) (string, []session.Citation) {
	citations := make([]session.Citation, 0, len(result.Sources))
	for _, url := range result.Sources {
		citations = append(citations, session.Citation{Source: url, Locator: url})
	}

	if len(citations) == 0 {
		return result.Answer, nil
	}

	var b strings.Builder
	b.WriteString(result.Answer)
	b.WriteString("\n\nSources:\n")
	for i, c := range citations {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Source)
	}
	return strings.TrimSuffix(b.String(), "\n"), citations
}

package assistant

import (
	"fmt"
	"strings"

	"github.com/paperdesk/paperdesk/internal/paper"
)

// buildAnswerPrompt assembles one generation prompt from retrieved context
// (in search order, most similar first), recent conversation history, and
// the question. Each document contributes its title and a bounded content
// prefix.
func buildAnswerPrompt(question string, results []paper.SearchResult, history []paper.Message, maxDocChars int) string {
	var sb strings.Builder

	if len(results) > 0 {
		sb.WriteString("Context from the user's research papers:\n\n")
		for i, r := range results {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, r.Metadata.Title)
			sb.WriteString(truncateRunes(r.Content, maxDocChars))
			sb.WriteString("\n\n")
		}
	}

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "User Query: %s\n\n", question)
	sb.WriteString("Please provide a comprehensive and accurate response based on the context provided. " +
		"If you need to cite sources, use proper academic citation format.")
	return sb.String()
}

// buildSummaryPrompt asks for the structured summary shape the dashboard
// renders. The full content is bounded at five document-prefix budgets so a
// long paper cannot blow the context window.
func buildSummaryPrompt(content, title string, maxDocChars int) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following research paper and provide:\n")
	sb.WriteString("1. Main research question/hypothesis\n")
	sb.WriteString("2. Key methodology used\n")
	sb.WriteString("3. Primary findings/results\n")
	sb.WriteString("4. Significance and implications\n")
	sb.WriteString("5. Limitations mentioned\n")
	sb.WriteString("6. Future research directions suggested\n\n")
	fmt.Fprintf(&sb, "Paper Title: %s\n", title)
	fmt.Fprintf(&sb, "Content: %s\n\n", truncateRunes(content, 5*maxDocChars))
	sb.WriteString("Format your response as a structured summary.")
	return sb.String()
}

func buildSuggestPrompt(topic string, papers []string) string {
	var sb strings.Builder
	sb.WriteString("Based on the following research topic and existing papers, suggest 5 potential research directions:\n\n")
	fmt.Fprintf(&sb, "Topic: %s\n", topic)
	fmt.Fprintf(&sb, "Existing Papers:\n%s\n\n", strings.Join(papers, "\n"))
	sb.WriteString("Provide specific, actionable research questions or directions, one per line.")
	return sb.String()
}

// truncateRunes bounds s to max runes without splitting a UTF-8 sequence.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
)

const (
	webSearchToolName  = "web_search"
	noWebResultsText   = "No relevant information found on the web."
	webContentChars    = 500
	webSnippetChars    = 200
	unknownSourceTitle = "Unknown"
)

const agentDecisionPrompt = `You are a helpful AI assistant deciding how to answer a question.

The user's documents have been searched but NO relevant information was found.

Now decide:
1. Use web_search - if the query needs current/external information:
   - Current events, news, recent happenings
   - Weather, stock prices, real-time data
   - Information that changes frequently
   - Topics requiring internet research

2. Respond directly (don't use any tool) - if:
   - It's a greeting: "Hi", "Hello", "How are you?"
   - It's chitchat: "Tell me a joke", "What can you do?"
   - It's general knowledge you can answer without searching
   - User is asking about yourself

IMPORTANT: Only use web_search if the query truly needs current/external information.
For general knowledge questions, respond directly without tools.
`

func webSearchToolSpec() domain.ToolSpec {
	return domain.ToolSpec{
		Name:        webSearchToolName,
		Description: "Search the internet for current information such as news, weather, prices or other real-time data that is not in the user's documents.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query to find information on the internet",
				},
			},
			"required": []string{"query"},
		},
	}
}

// WebSearchProposer asks a tool-capable chat model whether the question needs
// a web search.
type WebSearchProposer struct {
	model ports.ChatModel
}

func NewWebSearchProposer(model ports.ChatModel) *WebSearchProposer {
	return &WebSearchProposer{model: model}
}

func (p *WebSearchProposer) ProposeToolCall(ctx context.Context, query string) (*domain.ToolInvocation, string, error) {
	reply, err := p.model.GenerateWithTools(ctx, []domain.LLMMessage{
		{Role: domain.RoleSystem, Content: agentDecisionPrompt},
		{Role: domain.RoleUser, Content: query},
	}, []domain.ToolSpec{webSearchToolSpec()})
	if err != nil {
		return nil, "", fmt.Errorf("propose tool call: %w", err)
	}
	for i := range reply.ToolCalls {
		if reply.ToolCalls[i].Name == webSearchToolName {
			call := reply.ToolCalls[i]
			return &call, "", nil
		}
	}
	return nil, strings.TrimSpace(reply.Content), nil
}

// FormatWebResults renders search hits as prompt context and extracts the
// source list shown to the user.
func FormatWebResults(resp *domain.WebSearchResponse) (string, []domain.WebSource) {
	if resp == nil || len(resp.Results) == 0 {
		return noWebResultsText, []domain.WebSource{}
	}

	parts := make([]string, 0, 3+len(resp.Results)*4)
	if resp.Answer != "" {
		parts = append(parts, "**Summary:** "+resp.Answer, "")
	}
	parts = append(parts, "**Sources:**")

	sources := make([]domain.WebSource, 0, len(resp.Results))
	for i, hit := range resp.Results {
		title := hit.Title
		if title == "" {
			title = unknownSourceTitle
		}
		parts = append(parts,
			fmt.Sprintf("\n[%d] %s", i+1, title),
			"URL: "+hit.URL,
			"Content: "+truncateRunes(hit.Content, webContentChars),
			"",
		)
		sources = append(sources, domain.WebSource{
			URL:     hit.URL,
			Title:   title,
			Snippet: truncateRunes(hit.Content, webSnippetChars),
		})
	}
	return strings.Join(parts, "\n"), sources
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

package usecase

import (
	"fmt"
	"strings"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

const responseHistoryMessages = 4

const documentsPromptTemplate = `You are a helpful AI assistant answering questions based on document content.

You have been provided with relevant context from the user's documents. Use this context to answer their question.

## Guidelines:
- Answer based on the provided context
- Be accurate and helpful
- If the context partially answers the question, provide what you can and note any gaps
- Be conversational and friendly

## Context from documents:
%s

Based on the above context, please answer the user's question.
`

const webPromptTemplate = `You are a helpful AI assistant answering questions based on web search results.

## Web Search Results:
%s

Based on the above information from the web, please answer the user's question.
Be accurate, cite sources when relevant, and mention if information might be outdated.
`

const generalKnowledgePrompt = `You are a helpful AI assistant.
Answer the user's question based on your general knowledge.
Be friendly and conversational.
`

// Used by the document-only variant when retrieval found nothing.
const noDocumentMatchPrompt = `You are a helpful AI assistant.

The user's documents were searched but no relevant information was found for this query.
Please provide a helpful response based on:
1. Your general knowledge
2. The conversation history
3. Being honest that the documents don't contain this specific information

## Guidelines:
- Be friendly and helpful
- Answer the question if you can from general knowledge
- Briefly mention that the documents don't contain specific info on this topic
- If it's a greeting or simple question, just respond naturally
`

// responsePlan is what RESPOND hands to a model: either a prompt to generate
// from, or a verbatim reply that needs no model call.
type responsePlan struct {
	mode     domain.ResponseMode
	messages []domain.LLMMessage
	verbatim string
}

// planResponse applies the generation precedence: documents, then web
// context, then a direct reply from the decision step, then fallback.
func planResponse(st *AgentState, variant domain.AgentVariant) responsePlan {
	switch {
	case st.HasResults:
		return responsePlan{
			mode:     domain.ModeDocuments,
			messages: buildMessages(fmt.Sprintf(documentsPromptTemplate, st.RetrievedContext), st.History, st.Query, st.Images),
		}
	case st.WebContext != "":
		return responsePlan{
			mode:     domain.ModeWeb,
			messages: buildMessages(fmt.Sprintf(webPromptTemplate, st.WebContext), st.History, st.Query, nil),
		}
	case strings.TrimSpace(st.DirectResponse) != "":
		return responsePlan{mode: domain.ModeDirect, verbatim: st.DirectResponse}
	}

	system := generalKnowledgePrompt
	if variant == domain.VariantDocumentOnly {
		system = noDocumentMatchPrompt
	}
	return responsePlan{
		mode:     domain.ModeFallback,
		messages: buildMessages(system, st.History, st.Query, nil),
	}
}

func buildMessages(system string, history []domain.ChatMessage, query string, images []string) []domain.LLMMessage {
	recent := lastMessages(history, responseHistoryMessages)
	messages := make([]domain.LLMMessage, 0, len(recent)+2)
	messages = append(messages, domain.LLMMessage{Role: domain.RoleSystem, Content: system})
	for _, msg := range recent {
		switch msg.Role {
		case domain.RoleUser, domain.RoleAssistant:
			messages = append(messages, domain.LLMMessage{Role: msg.Role, Content: msg.Content})
		}
	}
	messages = append(messages, domain.LLMMessage{Role: domain.RoleUser, Content: query, Images: images})
	return messages
}

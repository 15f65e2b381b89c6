package domain

import (
	"strings"
	"time"
)

type GuardrailStatus string

const (
	GuardrailPass  GuardrailStatus = "pass"
	GuardrailWarn  GuardrailStatus = "warn"
	GuardrailBlock GuardrailStatus = "block"
)

const (
	CategoryTokenLimit      = "token_limit"
	CategoryPromptInjection = "prompt_injection"
	CategoryHarmfulContent  = "harmful_content"
	CategoryToxicLanguage   = "toxic_language"
	CategoryPIIDetected     = "pii_detected"
	CategoryHarmfulResponse = "harmful_response"
)

type GuardrailVerdict struct {
	Status   GuardrailStatus `json:"status"`
	Message  string          `json:"message"`
	Category string          `json:"category,omitempty"`
}

func (v GuardrailVerdict) Blocked() bool {
	return v.Status == GuardrailBlock
}

type AgentVariant string

const (
	VariantDocumentOnly AgentVariant = "document_only"
	VariantAgentic      AgentVariant = "agentic"
)

func ParseAgentVariant(raw string) AgentVariant {
	switch AgentVariant(strings.ToLower(strings.TrimSpace(raw))) {
	case VariantDocumentOnly, "simple", "retrieval_only":
		return VariantDocumentOnly
	default:
		return VariantAgentic
	}
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMMessage is one turn sent to a chat model. Images are base64 payloads
// without the data URL prefix.
type LLMMessage struct {
	Role    string
	Content string
	Images  []string
}

// ToolSpec describes a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolInvocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// StringArgument returns a trimmed string argument or "".
func (t *ToolInvocation) StringArgument(key string) string {
	if t == nil || t.Arguments == nil {
		return ""
	}
	v, ok := t.Arguments[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// ModelReply is a tool-mode completion: either text or tool calls.
type ModelReply struct {
	Content   string
	ToolCalls []ToolInvocation
}

type WebSearchHit struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

type WebSearchResponse struct {
	Results []WebSearchHit `json:"results"`
	Answer  string         `json:"answer,omitempty"`
}

type WebSource struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type ResponseMode string

const (
	ModeDocuments ResponseMode = "documents"
	ModeWeb       ResponseMode = "web"
	ModeDirect    ResponseMode = "direct"
	ModeFallback  ResponseMode = "fallback"
	ModeBlocked   ResponseMode = "blocked"
)

type AgentRequest struct {
	ChatID      string              `json:"chat_id,omitempty"`
	Query       string              `json:"query"`
	ChatHistory []ChatMessage       `json:"chat_history,omitempty"`
	DocumentIDs []string            `json:"document_ids,omitempty"`
	Config      *RetrievalOverrides `json:"config,omitempty"`
	Variant     AgentVariant        `json:"variant,omitempty"`
}

type AgentResult struct {
	Response      string            `json:"response"`
	Citations     []Citation        `json:"citations"`
	WebSources    []WebSource       `json:"web_sources"`
	HasResults    bool              `json:"has_results"`
	Mode          ResponseMode      `json:"mode"`
	Blocked       bool              `json:"blocked"`
	InputVerdict  GuardrailVerdict  `json:"input_verdict"`
	OutputVerdict *GuardrailVerdict `json:"output_verdict,omitempty"`
}

type StreamEventType string

const (
	EventStatus           StreamEventType = "status"
	EventToken            StreamEventType = "token"
	EventCitations        StreamEventType = "citations"
	EventWebSources       StreamEventType = "web_sources"
	EventGuardrailBlocked StreamEventType = "guardrail_blocked"
	EventError            StreamEventType = "error"
	EventDone             StreamEventType = "done"
)

type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Content  any             `json:"content,omitempty"`
	Category string          `json:"category,omitempty"`
}

// StoredMessage is a persisted chat turn.
type StoredMessage struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chat_id"`
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	Citations  []Citation  `json:"citations,omitempty"`
	WebSources []WebSource `json:"web_sources,omitempty"`
	Blocked    bool        `json:"blocked"`
	Partial    bool        `json:"partial"`
	CreatedAt  time.Time   `json:"created_at"`
}

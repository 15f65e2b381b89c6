package guardrail

import "regexp"

// DefaultMaxInputChars is roughly 4000 tokens of English text.
const DefaultMaxInputChars = 16000

const (
	msgInjection = "I can't process that request. Please ask a genuine question about your documents."
	msgHarmful   = "I can't help with that request. Please ask something else."
	msgToxic     = "Your message contains inappropriate language. Please rephrase your question respectfully."
	msgOutput    = "Response blocked due to safety concerns."
	msgPassed    = "All input guardrails passed"
	msgOK        = "OK"
)

func compileAll(caseInsensitive bool, patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if caseInsensitive {
			p = "(?i)" + p
		}
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

var injectionPatterns = compileAll(true,
	// ignore / disregard / forget
	`ignore\s+(all\s+)?(previous|above|prior|your|the)?\s*(instructions?|prompts?|rules?|guidelines?)?`,
	`ignore\s+all`,
	`ignore\s+(everything|all)\s*(above|before|previously)?`,
	`disregard\s+(all\s+)?(previous|above|prior|your|the)?\s*(instructions?|prompts?|rules?)?`,
	`disregard\s+(everything|all)`,
	`forget\s+(everything|all|your|the)\s*(instructions?|rules?|guidelines?|prompts?)?`,

	// persona switching
	`you\s+are\s+now\s+`,
	`act\s+as\s+(if\s+)?(you\s+are|a|an)`,
	`pretend\s+(you\s+are|to\s+be|you're)`,
	`roleplay\s+as`,
	`behave\s+(like|as)\s+`,
	`from\s+now\s+on`,

	// system prompt markers
	`new\s+instructions?\s*:`,
	`system\s*:\s*`,
	`<\s*system\s*>`,
	`\[INST\]`,
	`\[SYSTEM\]`,
	`###\s*(instruction|system)`,

	`override\s+(your|the|all)`,
	`bypass\s+(your|the|all)`,
	`jailbreak`,
	`dan\s+mode`,
	`developer\s+mode`,
)

var harmfulPatterns = compileAll(true,
	`how\s+to\s+(make|create|build)\s+(a\s+)?(bomb|weapon|explosive)`,
	`how\s+to\s+(hack|break\s+into|crack|exploit)`,
	`how\s+to\s+(hurt|harm|kill)\s+(myself|yourself|someone|people)`,
	`(suicide|self-harm)\s+(methods?|ways?|how)`,
	`how\s+to\s+(steal|rob|fraud)`,
)

var toxicPatterns = compileAll(true,
	`\b(fuck|shit|damn|bitch|asshole)\b`,
	`\b(kill|murder|attack|destroy)\s+(you|him|her|them|people)\b`,
	`\b(hate|despise)\s+(you|all|everyone)\b`,
)

var outputPatterns = compileAll(true,
	`here's\s+how\s+to\s+(make|create|build)\s+(a\s+)?(bomb|weapon)`,
	`step\s+\d+:\s*(kill|harm|attack)`,
)

type piiPattern struct {
	kind string
	mask string
	re   *regexp.Regexp
}

// Order matters for masking: earlier kinds are replaced first.
var piiPatterns = []piiPattern{
	{kind: "email", mask: "[EMAIL]", re: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)},
	{kind: "phone", mask: "[PHONE]", re: regexp.MustCompile(`(?:\+1[-.\s]?|\b1[-.\s])?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)},
	{kind: "ssn", mask: "[SSN]", re: regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`)},
	{kind: "credit_card", mask: "[CREDIT_CARD]", re: regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// Package guardrail screens user input and generated output against a fixed
// safety and prompt-injection policy.
package guardrail

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

type Config struct {
	MaxInputChars int
}

func DefaultConfig() Config {
	return Config{MaxInputChars: DefaultMaxInputChars}
}

type check struct {
	name string
	run  func(text string) domain.GuardrailVerdict
}

// Engine runs the input checks in a fixed order and stops at the first BLOCK.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	maxInputChars int
	input         []check
}

func NewEngine(cfg Config) *Engine {
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	e := &Engine{maxInputChars: cfg.MaxInputChars}
	e.input = []check{
		{name: domain.CategoryTokenLimit, run: e.checkLength},
		{name: domain.CategoryPromptInjection, run: CheckPromptInjection},
		{name: domain.CategoryHarmfulContent, run: CheckHarmfulContent},
		{name: domain.CategoryToxicLanguage, run: CheckToxicLanguage},
		{name: domain.CategoryPIIDetected, run: CheckPII},
	}
	return e
}

func (e *Engine) MaxInputChars() int {
	return e.maxInputChars
}

// CheckInput returns the first BLOCK verdict, else a WARN if PII was seen,
// else PASS.
func (e *Engine) CheckInput(text string) domain.GuardrailVerdict {
	var warn *domain.GuardrailVerdict
	for _, c := range e.input {
		v := c.run(text)
		switch v.Status {
		case domain.GuardrailBlock:
			return v
		case domain.GuardrailWarn:
			if warn == nil {
				warn = &v
			}
		}
	}
	if warn != nil {
		return *warn
	}
	return pass(msgPassed)
}

// CheckOutput screens a generated answer for literally produced harmful
// instructions.
func (e *Engine) CheckOutput(text string) domain.GuardrailVerdict {
	if matchAny(outputPatterns, text) {
		return block(msgOutput, domain.CategoryHarmfulResponse)
	}
	return pass(msgOK)
}

func (e *Engine) checkLength(text string) domain.GuardrailVerdict {
	if utf8.RuneCountInString(text) > e.maxInputChars {
		return block(
			fmt.Sprintf("Message too long. Maximum %d characters allowed.", e.maxInputChars),
			domain.CategoryTokenLimit,
		)
	}
	return pass(msgOK)
}

func CheckPromptInjection(text string) domain.GuardrailVerdict {
	if matchAny(injectionPatterns, text) {
		return block(msgInjection, domain.CategoryPromptInjection)
	}
	return pass(msgOK)
}

func CheckHarmfulContent(text string) domain.GuardrailVerdict {
	if matchAny(harmfulPatterns, text) {
		return block(msgHarmful, domain.CategoryHarmfulContent)
	}
	return pass(msgOK)
}

func CheckToxicLanguage(text string) domain.GuardrailVerdict {
	if matchAny(toxicPatterns, text) {
		return block(msgToxic, domain.CategoryToxicLanguage)
	}
	return pass(msgOK)
}

// CheckPII never blocks.
func CheckPII(text string) domain.GuardrailVerdict {
	kinds := DetectPII(text)
	if len(kinds) == 0 {
		return pass(msgOK)
	}
	return domain.GuardrailVerdict{
		Status:   domain.GuardrailWarn,
		Message:  fmt.Sprintf("Your message may contain personal information (%s).", strings.Join(kinds, ", ")),
		Category: domain.CategoryPIIDetected,
	}
}

// DetectPII lists the PII kinds present in text.
func DetectPII(text string) []string {
	var kinds []string
	for _, p := range piiPatterns {
		if p.re.MatchString(text) {
			kinds = append(kinds, p.kind)
		}
	}
	return kinds
}

// MaskPII redacts PII for logging. The checked text is never modified.
func MaskPII(text string) string {
	masked := text
	for _, p := range piiPatterns {
		masked = p.re.ReplaceAllLiteralString(masked, p.mask)
	}
	return masked
}

// Sanitize drops control characters and collapses runs of whitespace.
func Sanitize(text string) string {
	text = controlChars.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func pass(message string) domain.GuardrailVerdict {
	return domain.GuardrailVerdict{Status: domain.GuardrailPass, Message: message}
}

func block(message, category string) domain.GuardrailVerdict {
	return domain.GuardrailVerdict{Status: domain.GuardrailBlock, Message: message, Category: category}
}

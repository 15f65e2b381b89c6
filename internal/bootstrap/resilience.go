package bootstrap

import (
	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/config"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/resilience"
)

// newExecutor guards one upstream service. Generation calls follow the LLM
// settings, embedding calls the embedding settings and Tavily searches the
// web search settings.
func newExecutor(cfg config.Config, service string, observer resilience.Observer, logger *zap.Logger) *resilience.Executor {
	return resilience.NewExecutor(service, upstreamPolicies(cfg), observer, logger.Named(service))
}

func upstreamPolicies(cfg config.Config) resilience.Policies {
	generate := policyFromConfig(resilience.ClassGenerate, cfg.LLMResilience)
	// Streams are read after the attempt returns, so the attempt context must outlive it.
	generate.AttemptTimeout = 0

	return resilience.Policies{
		resilience.ClassGenerate: generate,
		resilience.ClassEmbed:    policyFromConfig(resilience.ClassEmbed, cfg.EmbeddingResilience),
		resilience.ClassSearch:   policyFromConfig(resilience.ClassSearch, cfg.WebSearchResilience),
	}
}

// policyFromConfig starts from the class default and applies every
// configured value. Zero values keep the default.
func policyFromConfig(class resilience.CallClass, rc config.ResilienceConfig) resilience.Policy {
	p := resilience.DefaultPolicy(class)
	p.BreakerEnabled = rc.BreakerEnabled

	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if d := rc.InitialBackoff(); d > 0 {
		p.InitialBackoff = d
	}
	if d := rc.MaxBackoff(); d > 0 {
		p.MaxBackoff = d
	}
	if d := rc.AttemptTimeout(); d > 0 {
		p.AttemptTimeout = d
	}
	if d := rc.MaxRetryAfter(); d > 0 {
		p.MaxRetryAfter = d
	}
	if rc.BreakerMinRequests > 0 {
		p.BreakerMinRequests = uint32(rc.BreakerMinRequests)
	}
	if rc.BreakerFailureRatio > 0 {
		p.BreakerFailureRatio = rc.BreakerFailureRatio
	}
	if d := rc.BreakerOpenTimeout(); d > 0 {
		p.BreakerOpenTimeout = d
	}
	return p
}

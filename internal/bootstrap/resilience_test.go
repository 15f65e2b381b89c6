package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/config"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/infrastructure/resilience"
)

func TestUpstreamPoliciesFollowServiceConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.EmbeddingResilience.MaxAttempts = 5
	cfg.EmbeddingResilience.InitialBackoffMS = 40
	cfg.WebSearchResilience.BreakerEnabled = false
	cfg.WebSearchResilience.BreakerOpenSeconds = 90
	cfg.LLMResilience.AttemptTimeoutMS = 1000

	policies := upstreamPolicies(cfg)

	embed := policies.For(resilience.ClassEmbed)
	assert.Equal(t, 5, embed.MaxAttempts)
	assert.Equal(t, 40*time.Millisecond, embed.InitialBackoff)
	assert.Equal(t, 10*time.Second, embed.AttemptTimeout)
	assert.True(t, embed.BreakerEnabled)

	search := policies.For(resilience.ClassSearch)
	assert.False(t, search.BreakerEnabled)
	assert.Equal(t, 90*time.Second, search.BreakerOpenTimeout)
	assert.Equal(t, uint32(5), search.BreakerMinRequests)

	generate := policies.For(resilience.ClassGenerate)
	assert.Equal(t, 2, generate.MaxAttempts)
	assert.Zero(t, generate.AttemptTimeout)
}

func TestPolicyFromConfigKeepsDefaultsForZeroValues(t *testing.T) {
	got := policyFromConfig(resilience.ClassSearch, config.ResilienceConfig{BreakerEnabled: true})

	assert.Equal(t, resilience.DefaultPolicy(resilience.ClassSearch), got)
}

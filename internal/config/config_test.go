package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

func TestLoadUsesRetrievalDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RAG_STRATEGY", "")
	t.Setenv("RAG_FUSION_RRF_K", "")
	t.Setenv("RAG_VECTOR_WEIGHT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retrieval.Strategy != domain.StrategyBasic {
		t.Fatalf("expected default strategy basic, got %q", cfg.Retrieval.Strategy)
	}
	if cfg.Retrieval.RRFK != 60 {
		t.Fatalf("expected default rrf k 60, got %d", cfg.Retrieval.RRFK)
	}
	if cfg.Retrieval.VectorWeight != 0.7 || cfg.Retrieval.KeywordWeight != 0.3 {
		t.Fatalf("unexpected hybrid weights %v/%v", cfg.Retrieval.VectorWeight, cfg.Retrieval.KeywordWeight)
	}
	if cfg.GuardrailMaxInputChars != 16000 {
		t.Fatalf("expected max input chars 16000, got %d", cfg.GuardrailMaxInputChars)
	}
}

func TestLoadParsesRetrievalOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RAG_STRATEGY", "multi-query-hybrid")
	t.Setenv("RAG_FUSION_RRF_K", "75")
	t.Setenv("RAG_VECTOR_WEIGHT", "0.5")
	t.Setenv("RAG_KEYWORD_WEIGHT", "0.5")
	t.Setenv("RAG_CONTEXTUAL_REWRITE", "true")
	t.Setenv("RAG_CHUNKS_PER_SEARCH", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Retrieval.Strategy != domain.StrategyMultiQueryHybrid {
		t.Fatalf("expected strategy override, got %q", cfg.Retrieval.Strategy)
	}
	if cfg.Retrieval.RRFK != 75 {
		t.Fatalf("expected rrf k 75, got %d", cfg.Retrieval.RRFK)
	}
	if cfg.Retrieval.VectorWeight != 0.5 || !cfg.Retrieval.ContextualRewrite {
		t.Fatalf("unexpected overrides: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.ChunksPerSearch != 10 {
		t.Fatalf("expected invalid int to keep default 10, got %d", cfg.Retrieval.ChunksPerSearch)
	}
}

func TestLoadFileOverlaysYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := []byte(`
api_port: "9000"
vector_backend: qdrant
retrieval:
  rag_strategy: hybrid
  final_context_size: 8
`)
	if err := os.WriteFile(path, yamlBody, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("API_PORT", "9100")
	t.Setenv("RAG_STRATEGY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "9100" {
		t.Fatalf("expected env to win over file, got %q", cfg.APIPort)
	}
	if cfg.VectorBackend != "qdrant" {
		t.Fatalf("expected vector backend from file, got %q", cfg.VectorBackend)
	}
	if cfg.Retrieval.Strategy != domain.StrategyHybrid || cfg.Retrieval.FinalContextSize != 8 {
		t.Fatalf("unexpected retrieval from file: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.ChunksPerSearch != 10 {
		t.Fatalf("expected untouched keys to keep defaults, got %d", cfg.Retrieval.ChunksPerSearch)
	}
	if cfg.AgentTimeout() != 60*time.Second {
		t.Fatalf("unexpected agent timeout %v", cfg.AgentTimeout())
	}
}

func TestLoadFileRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("retrieval: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadReadsPerServiceResilience(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("EMBEDDING_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("EMBEDDING_RETRY_INITIAL_BACKOFF_MS", "40")
	t.Setenv("WEB_SEARCH_BREAKER_ENABLED", "false")
	t.Setenv("WEB_SEARCH_BREAKER_OPEN_SECONDS", "90")
	t.Setenv("LLM_BREAKER_FAILURE_RATIO", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EmbeddingResilience.MaxAttempts != 5 || cfg.EmbeddingResilience.InitialBackoff() != 40*time.Millisecond {
		t.Fatalf("unexpected embedding resilience: %+v", cfg.EmbeddingResilience)
	}
	if cfg.WebSearchResilience.BreakerEnabled || cfg.WebSearchResilience.BreakerOpenTimeout() != 90*time.Second {
		t.Fatalf("unexpected web search resilience: %+v", cfg.WebSearchResilience)
	}
	if cfg.LLMResilience.BreakerFailureRatio != 0.25 || cfg.LLMResilience.MaxAttempts != 2 {
		t.Fatalf("unexpected llm resilience: %+v", cfg.LLMResilience)
	}
	if cfg.LLMResilience.AttemptTimeout() != 0 {
		t.Fatalf("expected generation attempts to be unbounded, got %v", cfg.LLMResilience.AttemptTimeout())
	}
}

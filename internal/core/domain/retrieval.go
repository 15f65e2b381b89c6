package domain

import "strings"

type Strategy string

const (
	StrategyBasic            Strategy = "basic"
	StrategyHybrid           Strategy = "hybrid"
	StrategyMultiQueryVector Strategy = "multi-query-vector"
	StrategyMultiQueryHybrid Strategy = "multi-query-hybrid"
)

// ParseStrategy maps a configured name to a strategy. Unknown names run as basic.
func ParseStrategy(raw string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyHybrid:
		return StrategyHybrid
	case StrategyMultiQueryVector:
		return StrategyMultiQueryVector
	case StrategyMultiQueryHybrid:
		return StrategyMultiQueryHybrid
	default:
		return StrategyBasic
	}
}

func (s Strategy) IsMultiQuery() bool {
	return s == StrategyMultiQueryVector || s == StrategyMultiQueryHybrid
}

func (s Strategy) UsesKeyword() bool {
	return s == StrategyHybrid || s == StrategyMultiQueryHybrid
}

const DefaultRRFK = 60

type RetrievalConfig struct {
	Strategy            Strategy `json:"rag_strategy" yaml:"rag_strategy"`
	LLMProvider         string   `json:"llm_provider" yaml:"llm_provider"`
	SimilarityThreshold float64  `json:"similarity_threshold" yaml:"similarity_threshold"`
	ChunksPerSearch     int      `json:"chunks_per_search" yaml:"chunks_per_search"`
	FinalContextSize    int      `json:"final_context_size" yaml:"final_context_size"`
	NumberOfQueries     int      `json:"number_of_queries" yaml:"number_of_queries"`
	VectorWeight        float64  `json:"vector_weight" yaml:"vector_weight"`
	KeywordWeight       float64  `json:"keyword_weight" yaml:"keyword_weight"`
	RRFK                int      `json:"rrf_k" yaml:"rrf_k"`
	ContextualRewrite   bool     `json:"contextual_rewrite" yaml:"contextual_rewrite"`
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Strategy:            StrategyBasic,
		LLMProvider:         "openai",
		SimilarityThreshold: 0.3,
		ChunksPerSearch:     10,
		FinalContextSize:    5,
		NumberOfQueries:     3,
		VectorWeight:        0.7,
		KeywordWeight:       0.3,
		RRFK:                DefaultRRFK,
	}
}

// Normalize fills zero or out-of-range fields from defaults.
func (c RetrievalConfig) Normalize() RetrievalConfig {
	out := c
	def := DefaultRetrievalConfig()

	out.Strategy = ParseStrategy(string(out.Strategy))
	if strings.TrimSpace(out.LLMProvider) == "" {
		out.LLMProvider = def.LLMProvider
	}
	if out.SimilarityThreshold < 0 || out.SimilarityThreshold > 1 {
		out.SimilarityThreshold = def.SimilarityThreshold
	}
	if out.ChunksPerSearch < 1 {
		out.ChunksPerSearch = def.ChunksPerSearch
	}
	if out.FinalContextSize < 1 {
		out.FinalContextSize = def.FinalContextSize
	}
	if out.NumberOfQueries < 1 {
		out.NumberOfQueries = def.NumberOfQueries
	}
	if out.VectorWeight < 0 || out.KeywordWeight < 0 || out.VectorWeight+out.KeywordWeight == 0 {
		out.VectorWeight = def.VectorWeight
		out.KeywordWeight = def.KeywordWeight
	}
	if out.RRFK <= 0 {
		out.RRFK = def.RRFK
	}
	return out
}

// RetrievalOverrides is the per-request part of the retrieval config. A nil
// field keeps the configured value; any explicit value, zero included, wins.
type RetrievalOverrides struct {
	Strategy            *Strategy `json:"rag_strategy,omitempty"`
	LLMProvider         *string   `json:"llm_provider,omitempty"`
	SimilarityThreshold *float64  `json:"similarity_threshold,omitempty"`
	ChunksPerSearch     *int      `json:"chunks_per_search,omitempty"`
	FinalContextSize    *int      `json:"final_context_size,omitempty"`
	NumberOfQueries     *int      `json:"number_of_queries,omitempty"`
	VectorWeight        *float64  `json:"vector_weight,omitempty"`
	KeywordWeight       *float64  `json:"keyword_weight,omitempty"`
	RRFK                *int      `json:"rrf_k,omitempty"`
	ContextualRewrite   *bool     `json:"contextual_rewrite,omitempty"`
}

// Merge overlays the fields the caller set onto c.
func (c RetrievalConfig) Merge(o *RetrievalOverrides) RetrievalConfig {
	if o == nil {
		return c
	}
	out := c
	if o.Strategy != nil {
		out.Strategy = *o.Strategy
	}
	if o.LLMProvider != nil {
		out.LLMProvider = *o.LLMProvider
	}
	if o.SimilarityThreshold != nil {
		out.SimilarityThreshold = *o.SimilarityThreshold
	}
	if o.ChunksPerSearch != nil {
		out.ChunksPerSearch = *o.ChunksPerSearch
	}
	if o.FinalContextSize != nil {
		out.FinalContextSize = *o.FinalContextSize
	}
	if o.NumberOfQueries != nil {
		out.NumberOfQueries = *o.NumberOfQueries
	}
	if o.VectorWeight != nil {
		out.VectorWeight = *o.VectorWeight
	}
	if o.KeywordWeight != nil {
		out.KeywordWeight = *o.KeywordWeight
	}
	if o.RRFK != nil {
		out.RRFK = *o.RRFK
	}
	if o.ContextualRewrite != nil {
		out.ContextualRewrite = *o.ContextualRewrite
	}
	return out
}

type Query struct {
	Text        string
	DocumentIDs []string
	Config      RetrievalConfig
}

type OriginalContent struct {
	Text   string   `json:"text"`
	Tables []string `json:"tables,omitempty"`
	Images []string `json:"images,omitempty"`
}

type ScoredFragment struct {
	ID              string          `json:"id"`
	DocumentID      string          `json:"document_id"`
	Content         string          `json:"content"`
	OriginalContent OriginalContent `json:"original_content"`
	PageNumber      *int            `json:"page_number,omitempty"`
	RelevanceScore  float64         `json:"relevance_score"`
	Rank            int             `json:"rank"`
}

type FusedResult struct {
	ScoredFragment
	RRFScore float64 `json:"rrf_score"`
}

type Citation struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Page       *int   `json:"page"`
}

// AssembledContext is the output of the context assembler for one retrieval.
type AssembledContext struct {
	Texts     []string
	Tables    []string
	Images    []string
	Citations []Citation
	Formatted string
	Fragments []FusedResult
}

// RetrievalOutcome is what the RAG step hands to the router. HasResults is
// decided by the retriever, not inferred from the context text.
type RetrievalOutcome struct {
	Context    string
	Citations  []Citation
	Images     []string
	HasResults bool
	Queries    []string
}

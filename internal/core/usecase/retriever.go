package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
)

const (
	noDocumentsContext = "No documents available to search."
	noResultsContext   = "No relevant information found in the documents."
)

type RetrieverOptions struct {
	// MaxParallelVariants bounds concurrent variant searches for multi-query
	// strategies.
	MaxParallelVariants int
}

// Retriever executes a retrieval strategy against the search backends and
// assembles the result. Backend failures are logged and count as empty lists.
type Retriever struct {
	embedder  ports.Embedder
	vector    ports.VectorSearcher
	keyword   ports.KeywordSearcher
	planner   *QueryPlanner
	assembler *ContextAssembler
	opts      RetrieverOptions
	logger    *zap.Logger
}

func NewRetriever(
	embedder ports.Embedder,
	vector ports.VectorSearcher,
	keyword ports.KeywordSearcher,
	planner *QueryPlanner,
	assembler *ContextAssembler,
	opts RetrieverOptions,
	logger *zap.Logger,
) *Retriever {
	if opts.MaxParallelVariants <= 0 {
		opts.MaxParallelVariants = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder:  embedder,
		vector:    vector,
		keyword:   keyword,
		planner:   planner,
		assembler: assembler,
		opts:      opts,
		logger:    logger,
	}
}

// Retrieve never returns an error: every degradation ends in HasResults=false.
func (r *Retriever) Retrieve(ctx context.Context, query string, history []domain.ChatMessage, documentIDs []string, cfg domain.RetrievalConfig) domain.RetrievalOutcome {
	cfg = cfg.Normalize()
	if len(documentIDs) == 0 {
		return domain.RetrievalOutcome{Context: noDocumentsContext, Citations: []domain.Citation{}}
	}

	started := time.Now()
	queries := r.planner.Plan(ctx, query, history, cfg)

	var fused []domain.FusedResult
	if len(queries) == 1 {
		fused = r.searchVariant(ctx, queries[0], documentIDs, cfg)
	} else {
		fused = r.searchVariants(ctx, queries, documentIDs, cfg)
	}

	r.logger.Info("retrieval finished",
		zap.String("strategy", string(cfg.Strategy)),
		zap.Int("queries", len(queries)),
		zap.Int("documents", len(documentIDs)),
		zap.Int("fused", len(fused)),
		zap.Duration("elapsed", time.Since(started)),
	)

	if len(fused) == 0 {
		return domain.RetrievalOutcome{Context: noResultsContext, Citations: []domain.Citation{}, Queries: queries}
	}

	assembled := r.assembler.Assemble(ctx, fused, cfg.FinalContextSize)
	return domain.RetrievalOutcome{
		Context:    assembled.Formatted,
		Citations:  assembled.Citations,
		Images:     assembled.Images,
		HasResults: len(assembled.Citations) > 0,
		Queries:    queries,
	}
}

// searchVariants runs each variant in parallel and fuses the per-variant lists
// with equal weights. Results are slotted by variant index so the fusion input
// order does not depend on scheduling.
func (r *Retriever) searchVariants(ctx context.Context, queries []string, documentIDs []string, cfg domain.RetrievalConfig) []domain.FusedResult {
	lists := make([][]domain.ScoredFragment, len(queries))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.opts.MaxParallelVariants)
	for idx, q := range queries {
		group.Go(func() error {
			lists[idx] = fusedToFragments(r.searchVariant(groupCtx, q, documentIDs, cfg))
			return nil
		})
	}
	_ = group.Wait()

	return FuseRRF(lists, nil, cfg.RRFK)
}

func (r *Retriever) searchVariant(ctx context.Context, query string, documentIDs []string, cfg domain.RetrievalConfig) []domain.FusedResult {
	vector := r.vectorSearch(ctx, query, documentIDs, cfg)
	if !cfg.Strategy.UsesKeyword() {
		return FuseRRF([][]domain.ScoredFragment{vector}, []float64{1}, cfg.RRFK)
	}
	keyword := r.keywordSearch(ctx, query, documentIDs, cfg)
	return FuseRRF(
		[][]domain.ScoredFragment{vector, keyword},
		[]float64{cfg.VectorWeight, cfg.KeywordWeight},
		cfg.RRFK,
	)
}

func (r *Retriever) vectorSearch(ctx context.Context, query string, documentIDs []string, cfg domain.RetrievalConfig) []domain.ScoredFragment {
	if r.vector == nil || r.embedder == nil {
		return nil
	}
	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed", zap.Error(err))
		return nil
	}
	results, err := r.vector.SearchByEmbedding(ctx, embedding, documentIDs, cfg.SimilarityThreshold, cfg.ChunksPerSearch)
	if err != nil {
		r.logger.Warn("vector search failed", zap.Error(err))
		return nil
	}
	return restampRanks(results)
}

func (r *Retriever) keywordSearch(ctx context.Context, query string, documentIDs []string, cfg domain.RetrievalConfig) []domain.ScoredFragment {
	if r.keyword == nil {
		return nil
	}
	results, err := r.keyword.SearchKeyword(ctx, query, documentIDs, cfg.ChunksPerSearch)
	if err != nil {
		r.logger.Warn("keyword search failed", zap.Error(err))
		return nil
	}
	return restampRanks(results)
}

func restampRanks(results []domain.ScoredFragment) []domain.ScoredFragment {
	for i := range results {
		results[i].Rank = i
	}
	return results
}

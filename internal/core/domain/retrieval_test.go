package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeAppliesExplicitZeroValues(t *testing.T) {
	base := DefaultRetrievalConfig()
	base.ContextualRewrite = true
	threshold := 0.0
	rewrite := false

	got := base.Merge(&RetrievalOverrides{SimilarityThreshold: &threshold, ContextualRewrite: &rewrite}).Normalize()

	assert.Zero(t, got.SimilarityThreshold)
	assert.False(t, got.ContextualRewrite)
	assert.Equal(t, base.ChunksPerSearch, got.ChunksPerSearch)
	assert.Equal(t, base.VectorWeight, got.VectorWeight)
}

func TestMergeNilKeepsBase(t *testing.T) {
	base := DefaultRetrievalConfig()
	assert.Equal(t, base, base.Merge(nil))
	assert.Equal(t, base, base.Merge(&RetrievalOverrides{}))
}

func TestMergeSingleWeightKeepsOther(t *testing.T) {
	keyword := 0.5
	got := DefaultRetrievalConfig().Merge(&RetrievalOverrides{KeywordWeight: &keyword})

	assert.Equal(t, 0.7, got.VectorWeight)
	assert.Equal(t, 0.5, got.KeywordWeight)
}

func TestNormalizeRepairsOutOfRangeOverrides(t *testing.T) {
	threshold := 1.5
	chunks := 0
	strategy := Strategy("semantic-magic")

	got := DefaultRetrievalConfig().Merge(&RetrievalOverrides{
		SimilarityThreshold: &threshold,
		ChunksPerSearch:     &chunks,
		Strategy:            &strategy,
	}).Normalize()

	assert.Equal(t, 0.3, got.SimilarityThreshold)
	assert.Equal(t, 10, got.ChunksPerSearch)
	assert.Equal(t, StrategyBasic, got.Strategy)
}

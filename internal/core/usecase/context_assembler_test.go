package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

func fusedOf(fragments ...domain.ScoredFragment) []domain.FusedResult {
	out := make([]domain.FusedResult, 0, len(fragments))
	for _, f := range fragments {
		out = append(out, domain.FusedResult{ScoredFragment: f})
	}
	return out
}

func TestAssembleBucketsContentAndDedupesLookup(t *testing.T) {
	names := &fakeFilenames{names: map[string]string{"d1": "deck.pdf"}}
	a := NewContextAssembler(names, nil)

	withTable := textFragment("c2", "d1", "second")
	withTable.OriginalContent.Tables = []string{"<table><tr><td>1</td></tr></table>"}
	withImage := textFragment("c3", "d2", "")
	withImage.OriginalContent.Images = []string{"aW1n"}

	out := a.Assemble(context.Background(), fusedOf(textFragment("c1", "d1", "first"), withTable, withImage), 5)

	require.Len(t, names.calls, 1)
	assert.ElementsMatch(t, []string{"d1", "d2"}, names.calls[0])

	assert.Equal(t, []string{"first", "second"}, out.Texts)
	assert.Len(t, out.Tables, 1)
	assert.Equal(t, []string{"aW1n"}, out.Images)

	require.Len(t, out.Citations, 3)
	assert.Equal(t, "deck.pdf", out.Citations[0].Filename)
	assert.Equal(t, "Unknown Document", out.Citations[2].Filename)
	assert.Equal(t, 1, *out.Citations[0].Page)

	assert.Contains(t, out.Formatted, "CONTEXT DOCUMENTS")
	assert.Contains(t, out.Formatted, "--- Table 1 ---\n<table>")
	assert.Contains(t, out.Formatted, "RELATED IMAGES")
	assert.Contains(t, out.Formatted, "1 image(s) will be provided alongside the user's question.")
}

func TestAssembleLookupErrorFallsBackToUnknown(t *testing.T) {
	a := NewContextAssembler(&fakeFilenames{err: errBackend}, nil)

	out := a.Assemble(context.Background(), fusedOf(textFragment("c1", "d1", "body")), 5)

	require.Len(t, out.Citations, 1)
	assert.Equal(t, "Unknown Document", out.Citations[0].Filename)
}

func TestAssembleTruncatesBeforeCiting(t *testing.T) {
	a := NewContextAssembler(&fakeFilenames{}, nil)

	out := a.Assemble(context.Background(), fusedOf(
		textFragment("c1", "d1", "one"),
		textFragment("c2", "d1", "two"),
		textFragment("c3", "d1", "three"),
	), 2)

	assert.Len(t, out.Citations, 2)
	assert.NotContains(t, out.Formatted, "three")
}

func TestFormatContextLayout(t *testing.T) {
	rule := strings.Repeat("=", 80)
	got := FormatContext([]string{" alpha "}, nil, nil)
	assert.Equal(t, rule+"\nCONTEXT DOCUMENTS\n"+rule+"\n\n--- Document Chunk 1 ---\nalpha\n", got)
	assert.Equal(t, "", FormatContext(nil, nil, nil))
}

package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/ports"
)

const unknownDocument = "Unknown Document"

var sectionRule = strings.Repeat("=", 80)

// ContextAssembler trims fused fragments to the context budget and turns them
// into prompt text, image inputs and citations.
type ContextAssembler struct {
	filenames ports.FilenameResolver
	logger    *zap.Logger
}

func NewContextAssembler(filenames ports.FilenameResolver, logger *zap.Logger) *ContextAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextAssembler{filenames: filenames, logger: logger}
}

// Assemble keeps the first finalSize fragments. Citation order follows
// fragment order, and only fragments with a document id are cited.
func (a *ContextAssembler) Assemble(ctx context.Context, fused []domain.FusedResult, finalSize int) domain.AssembledContext {
	fused = trimFused(fused, finalSize)

	out := domain.AssembledContext{
		Texts:     []string{},
		Tables:    []string{},
		Images:    []string{},
		Citations: []domain.Citation{},
		Fragments: fused,
	}

	names := a.resolveFilenames(ctx, fused)
	for _, f := range fused {
		if text := f.OriginalContent.Text; text != "" {
			out.Texts = append(out.Texts, text)
		} else if len(f.OriginalContent.Tables) == 0 && len(f.OriginalContent.Images) == 0 && f.Content != "" {
			// chunks indexed without structured content still carry plain text
			out.Texts = append(out.Texts, f.Content)
		}
		out.Tables = append(out.Tables, f.OriginalContent.Tables...)
		out.Images = append(out.Images, f.OriginalContent.Images...)

		if f.DocumentID == "" {
			continue
		}
		filename, ok := names[f.DocumentID]
		if !ok || filename == "" {
			filename = unknownDocument
		}
		out.Citations = append(out.Citations, domain.Citation{
			ChunkID:    f.ID,
			DocumentID: f.DocumentID,
			Filename:   filename,
			Page:       f.PageNumber,
		})
	}

	out.Formatted = FormatContext(out.Texts, out.Tables, out.Images)
	return out
}

func (a *ContextAssembler) resolveFilenames(ctx context.Context, fused []domain.FusedResult) map[string]string {
	ids := make([]string, 0, len(fused))
	seen := make(map[string]struct{}, len(fused))
	for _, f := range fused {
		if f.DocumentID == "" {
			continue
		}
		if _, ok := seen[f.DocumentID]; ok {
			continue
		}
		seen[f.DocumentID] = struct{}{}
		ids = append(ids, f.DocumentID)
	}
	if len(ids) == 0 || a.filenames == nil {
		return map[string]string{}
	}

	names, err := a.filenames.FilenamesByIDs(ctx, ids)
	if err != nil {
		a.logger.Warn("filename lookup failed", zap.Int("documents", len(ids)), zap.Error(err))
		return map[string]string{}
	}
	return names
}

// FormatContext renders text chunks, tables and an image note as one prompt
// section. Images themselves travel as separate multimodal inputs.
func FormatContext(texts, tables, images []string) string {
	parts := make([]string, 0, 3+len(texts)*3+len(tables)*3+4)

	if len(texts) > 0 {
		parts = append(parts, sectionRule, "CONTEXT DOCUMENTS", sectionRule+"\n")
		for i, text := range texts {
			parts = append(parts, fmt.Sprintf("--- Document Chunk %d ---", i+1), strings.TrimSpace(text), "")
		}
	}

	if len(tables) > 0 {
		parts = append(parts,
			"\n"+sectionRule,
			"RELATED TABLES",
			sectionRule,
			"The following tables contain structured data. Analyze the table contents carefully.\n",
		)
		for i, table := range tables {
			parts = append(parts, fmt.Sprintf("--- Table %d ---", i+1), table, "")
		}
	}

	if len(images) > 0 {
		parts = append(parts,
			"\n"+sectionRule,
			"RELATED IMAGES",
			sectionRule,
			fmt.Sprintf("%d image(s) will be provided alongside the user's question. Analyze the visual content when formulating your response.\n", len(images)),
		)
	}

	return strings.Join(parts, "\n")
}

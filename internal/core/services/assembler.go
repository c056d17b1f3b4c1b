package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/sopctx/internal/core/domain"
	"github.com/custodia-labs/sopctx/internal/textproc"
)

// passageSeparator joins passages in an assembled context.
const passageSeparator = "\n\n"

// Assembler builds the bounded context handed to generation.
// It is pure computation and safe for concurrent use.
type Assembler struct {
	maxChars       int
	dedupThreshold float64
}

// NewAssembler creates an assembler from the context settings.
func NewAssembler(cfg domain.ContextSettings) *Assembler {
	d := domain.DefaultSettings().Context
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = d.MaxChars
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		cfg.DedupThreshold = d.DedupThreshold
	}
	return &Assembler{maxChars: cfg.MaxChars, dedupThreshold: cfg.DedupThreshold}
}

// Assemble orders results by descending score, drops near-duplicates and
// appends whole passages until the next one would exceed maxChars.
// Only when not even the best passage fits is it cut at a sentence
// boundary. A non-positive maxChars uses the configured budget.
func (a *Assembler) Assemble(results []domain.ScoredChunk, maxChars int) domain.AssembledContext {
	if maxChars <= 0 {
		maxChars = a.maxChars
	}

	ordered := make([]domain.ScoredChunk, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		x, y := ordered[i], ordered[j]
		if x.Score != y.Score {
			return x.Score > y.Score
		}
		if x.Chunk.DocumentID != y.Chunk.DocumentID {
			return x.Chunk.DocumentID < y.Chunk.DocumentID
		}
		return x.Chunk.Sequence < y.Chunk.Sequence
	})

	var (
		b         strings.Builder
		used      int
		citations []domain.Citation
		seen      []map[string]struct{}
	)

	for _, r := range ordered {
		tokens := textproc.TokenSet(r.Chunk.Content)
		if a.duplicate(tokens, seen) {
			continue
		}

		n := len(citations) + 1
		passage := header(n, r) + r.Chunk.Content
		cost := len([]rune(passage))
		if used > 0 {
			cost += len(passageSeparator)
		}
		if used+cost > maxChars {
			break
		}

		if used > 0 {
			b.WriteString(passageSeparator)
		}
		b.WriteString(passage)
		used += cost
		seen = append(seen, tokens)
		citations = append(citations, citation(n, r, false))
	}

	if len(citations) == 0 && len(ordered) > 0 {
		return truncateTop(ordered[0], maxChars)
	}

	return domain.AssembledContext{Text: b.String(), Citations: citations}
}

func (a *Assembler) duplicate(tokens map[string]struct{}, seen []map[string]struct{}) bool {
	for _, s := range seen {
		if textproc.Jaccard(tokens, s) >= a.dedupThreshold {
			return true
		}
	}
	return false
}

// truncateTop cuts the best passage to fit the budget.
func truncateTop(r domain.ScoredChunk, maxChars int) domain.AssembledContext {
	h := header(1, r)
	room := maxChars - len([]rune(h))
	text := textproc.TruncateAtSentence(r.Chunk.Content, room)
	if text == "" {
		return domain.AssembledContext{}
	}
	return domain.AssembledContext{
		Text:      h + text,
		Citations: []domain.Citation{citation(1, r, true)},
	}
}

// header is the provenance line preceding each passage.
func header(n int, r domain.ScoredChunk) string {
	return fmt.Sprintf("[%d] %s (chunk %d)\n", n, r.Source, r.Chunk.Sequence)
}

func citation(n int, r domain.ScoredChunk, truncated bool) domain.Citation {
	return domain.Citation{
		Number:     n,
		DocumentID: r.Chunk.DocumentID,
		Filename:   r.Source,
		ChunkID:    r.Chunk.ID,
		Sequence:   r.Chunk.Sequence,
		Span:       r.Chunk.Span,
		Score:      r.Score,
		Truncated:  truncated,
	}
}

package postprocessors

import (
	"github.com/custodia-labs/sopctx/internal/core/ports/driven"
	"github.com/custodia-labs/sopctx/internal/postprocessors/chunker"
)

// RegisterDefaults makes the built-in processors selectable by name.
func RegisterDefaults(r *Registry) {
	r.Register("chunker", buildChunker)
}

// buildChunker reads the [chunker] section:
//   - chunk_size (int): Characters per chunk (default: 500)
//   - overlap_fraction (float): Share of a chunk repeated in the next (default: 0.2)
//   - overlap (int): Overlapping characters; overrides overlap_fraction
func buildChunker(cfg map[string]any) (driven.PostProcessor, error) {
	var opts []chunker.Option

	if _, ok := cfg["chunk_size"]; ok {
		opts = append(opts, chunker.WithChunkSize(getIntFromConfig(cfg, "chunk_size")))
	}
	if fraction, ok := getFloatFromConfig(cfg, "overlap_fraction"); ok {
		opts = append(opts, chunker.WithOverlapFraction(fraction))
	}
	if _, ok := cfg["overlap"]; ok {
		opts = append(opts, chunker.WithOverlap(getIntFromConfig(cfg, "overlap")))
	}

	p := chunker.New(opts...)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// getIntFromConfig truncates any numeric type the TOML or YAML decoder
// produced. Other types read as 0.
func getIntFromConfig(cfg map[string]any, key string) int {
	val, ok := cfg[key]
	if !ok {
		return 0
	}

	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// getFloatFromConfig extracts a float, reporting whether a numeric value was present.
func getFloatFromConfig(cfg map[string]any, key string) (float64, bool) {
	switch v := cfg[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

package dataset

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/groundvision/go-coloc/alignment"
)

// Vocabulary is a word-to-embedding table loaded from a GloVe-style JSON
// file. It must contain vectors for the start, end and unknown sentinels.
type Vocabulary struct {
	dim     int
	vectors map[string][]float32
}

// LoadVocabulary reads a JSON document mapping word to embedding vector.
// All vectors must share one embedding dimension.
func LoadVocabulary(path string) (*Vocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read vocabulary %q", path)
	}
	vectors := make(map[string][]float32)
	if err := json.Unmarshal(raw, &vectors); err != nil {
		return nil, errors.Wrapf(err, "parse vocabulary %q", path)
	}
	return NewVocabulary(vectors)
}

// NewVocabulary wraps an already-parsed embedding table.
func NewVocabulary(vectors map[string][]float32) (*Vocabulary, error) {
	if len(vectors) == 0 {
		return nil, errors.New("empty vocabulary")
	}
	dim := 0
	for word, vec := range vectors {
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim || dim == 0 {
			return nil, errors.Errorf("vocabulary entry %q has dimension %d, want %d",
				word, len(vec), dim)
		}
	}
	for _, sentinel := range []string{alignment.StartToken, alignment.EndToken, alignment.UnknownToken} {
		if _, ok := vectors[sentinel]; !ok {
			return nil, errors.Errorf("vocabulary is missing the %s sentinel", sentinel)
		}
	}
	return &Vocabulary{dim: dim, vectors: vectors}, nil
}

// Dim reports the embedding dimension.
func (v *Vocabulary) Dim() int { return v.dim }

// Lookup returns the embedding for word, falling back to the unknown
// sentinel's vector for out-of-vocabulary words.
func (v *Vocabulary) Lookup(word string) []float32 {
	if vec, ok := v.vectors[word]; ok {
		return vec
	}
	return v.vectors[alignment.UnknownToken]
}

// Sentinels returns the token sequence wrapped with the start and end
// sentinels, padded with end sentinels up to padLimit tokens when padLimit is
// positive. Padding with the end sentinel keeps clipped alignments unchanged:
// everything from the first end sentinel on is dropped before scoring.
func Sentinels(tokens []string, padLimit int) []string {
	out := make([]string, 0, len(tokens)+2)
	out = append(out, alignment.StartToken)
	out = append(out, tokens...)
	out = append(out, alignment.EndToken)
	for padLimit > 0 && len(out) < padLimit+2 {
		out = append(out, alignment.EndToken)
	}
	return out
}

// Embed turns a sentinel-wrapped token sequence into a (T, C) feature
// tensor, one embedding row per token.
func (v *Vocabulary) Embed(tokens []string) (*tensor.Dense, error) {
	if len(tokens) == 0 {
		return nil, errors.New("cannot embed an empty caption")
	}
	backing := make([]float32, 0, len(tokens)*v.dim)
	for _, word := range tokens {
		backing = append(backing, v.Lookup(word)...)
	}
	return tensor.New(tensor.WithShape(len(tokens), v.dim), tensor.WithBacking(backing)), nil
}

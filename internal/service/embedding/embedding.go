// Package embedding turns extracted text into fixed-length lexical
// fingerprints. The scheme is deliberately not a trained model: it is a
// deterministic hash-based projection of n-gram frequencies, good
// enough for near-duplicate detection and cheap enough to recompute at
// any time. Identical text always produces the bit-identical vector,
// which is what makes re-indexing idempotent.
package embedding

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

const DefaultDimension = 384

// n-gram contributions are scaled so that longer shared phrases
// dominate the fingerprint over shared vocabulary.
const (
	unigramScale = 10.0
	bigramScale  = 15.0
	trigramScale = 20.0
)

type Generator struct {
	dimension int
}

func NewGenerator(dimension int) *Generator {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Generator{dimension: dimension}
}

func (g *Generator) Dimension() int {
	return g.dimension
}

// Embed converts text into an L2-normalized vector. Empty or
// whitespace-only input yields the zero vector.
func (g *Generator) Embed(text string) []float32 {
	vec := make([]float64, g.dimension)

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return toFloat32(vec)
	}

	total := float64(len(tokens))

	accumulate := func(grams map[string]int, scale float64) {
		for gram, count := range grams {
			h := hash32(gram)
			weight := float64(count) / total
			for i := 0; i < g.dimension; i++ {
				vec[i] += dimValue(h, i) * weight * scale
			}
		}
	}

	accumulate(ngramCounts(tokens, 1), unigramScale)
	accumulate(ngramCounts(tokens, 2), bigramScale)
	accumulate(ngramCounts(tokens, 3), trigramScale)

	// The last three dimensions also carry coarse structural features,
	// added on top of the n-gram contributions.
	if g.dimension >= 3 {
		vec[g.dimension-3] += float64(countSentences(text)) / 100.0
		vec[g.dimension-2] += averageTokenLength(tokens) / 10.0
		vec[g.dimension-1] += total / 1000.0
	}

	normalize(vec)

	return toFloat32(vec)
}

// Tokenize lowercases the text, splits on whitespace and sentence
// punctuation, and drops tokens of two runes or fewer.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(".,;:!?", r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		counts[strings.Join(tokens[i:i+n], "_")]++
	}
	return counts
}

func hash32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// dimValue maps an n-gram hash and a dimension index to a
// pseudo-random value in [-1, 1). It is a pure function of its inputs
// (a splitmix-style finalizer), so embeddings are reproducible across
// processes and safe to compute in parallel.
func dimValue(h uint32, dim int) float64 {
	x := uint64(h) + uint64(dim)*0x9E3779B97F4A7C15
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return float64(x>>11)/float64(1<<52) - 1.0
}

func countSentences(text string) int {
	count := 0
	for _, segment := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if strings.TrimSpace(segment) != "" {
			count++
		}
	}
	return count
}

func averageTokenLength(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	total := 0
	for _, t := range tokens {
		total += utf8.RuneCountInString(t)
	}
	return float64(total) / float64(len(tokens))
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

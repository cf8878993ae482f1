package scoring

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

// SimilarityProvider compares two opaque representations and returns a
// value in [0,1]. Implementations must be deterministic.
type SimilarityProvider interface {
	Similarity(a, b store.Embedding) float64
}

// SimilarityFunc adapts a plain function to SimilarityProvider.
type SimilarityFunc func(a, b store.Embedding) float64

func (f SimilarityFunc) Similarity(a, b store.Embedding) float64 { return f(a, b) }

// DefaultSimilarity uses cosine similarity when both sides carry vectors of
// equal length and Jaccard overlap of their token sets otherwise.
type DefaultSimilarity struct{}

func (DefaultSimilarity) Similarity(a, b store.Embedding) float64 {
	if len(a.Vector) > 0 && len(a.Vector) == len(b.Vector) {
		return Cosine(a.Vector, b.Vector)
	}
	return Jaccard(a.Tokens, b.Tokens)
}

// Cosine returns the cosine similarity of two vectors, floored at 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp(dot/(math.Sqrt(na)*math.Sqrt(nb)), 0, 1)
}

// Jaccard returns |a ∩ b| / |a ∪ b| over case-folded tokens.
func Jaccard(a, b []string) float64 {
	sa := tokenSet(a)
	sb := tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

// Tokenize splits text into lower-cased words of at least three characters,
// deduplicated and sorted.
func Tokenize(parts ...string) []string {
	seen := make(map[string]struct{})
	for _, p := range parts {
		words := strings.FieldsFunc(strings.ToLower(p), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
		})
		for _, w := range words {
			if len([]rune(w)) >= 3 {
				seen[w] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// JobRepresentation returns the job's comparable representation. Tokens are
// derived from the description and tags when the job carries none.
func JobRepresentation(job *store.JobPosting) store.Embedding {
	var e store.Embedding
	if job.Embedding != nil {
		e = *job.Embedding.Clone()
	}
	if len(e.Tokens) == 0 {
		e.Tokens = Tokenize(append([]string{job.Description}, job.Tags...)...)
	}
	return e
}

package matcher

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// SimilarityScorer compares two beneficiary names. Score must be symmetric
// and return a value between 0 and 100.
type SimilarityScorer interface {
	Score(a, b string) float64
}

// SimilarityFunc adapts a plain function to SimilarityScorer
type SimilarityFunc func(a, b string) float64

func (f SimilarityFunc) Score(a, b string) float64 {
	return f(a, b)
}

// TokenSetScorer scores names by comparing their word sets, so
// "JOHN DOE" and "DOE JOHN" are identical. The shared words are compared
// against each side's full word list using a Levenshtein ratio and the best
// of the three comparisons wins.
type TokenSetScorer struct{}

func (TokenSetScorer) Score(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	var shared, onlyA, onlyB []string
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			shared = append(shared, token)
		} else {
			onlyA = append(onlyA, token)
		}
	}
	for token := range tokensB {
		if _, ok := tokensA[token]; !ok {
			onlyB = append(onlyB, token)
		}
	}

	sect := joinSorted(shared)
	combinedA := strings.TrimSpace(sect + " " + joinSorted(onlyA))
	combinedB := strings.TrimSpace(sect + " " + joinSorted(onlyB))

	best := math.Max(ratio(sect, combinedA), ratio(sect, combinedB))
	best = math.Max(best, ratio(combinedA, combinedB))
	return math.Round(best * 100)
}

// JaccardScorer scores names by |A ∩ B| / |A ∪ B| over their word sets
type JaccardScorer struct{}

func (JaccardScorer) Score(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)
	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 0
	}

	intersection := 0
	for token := range tokensA {
		if _, ok := tokensB[token]; ok {
			intersection++
		}
	}
	union := len(tokensA) + len(tokensB) - intersection

	return math.Round(float64(intersection)/float64(union)*10000) / 100
}

// tokenSet lower-cases s, treats every non-alphanumeric rune as a separator
// and returns the distinct words
func tokenSet(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func joinSorted(tokens []string) string {
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// ratio is the Levenshtein similarity of a and b in [0, 1], with a
// substitution counted as a deletion plus an insertion
func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return float64(total-distance) / float64(total)
}

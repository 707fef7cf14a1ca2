// Package similarity scores how alike two normalized person names are.
//
// The score is the maximum of three views of the pair:
//
//  1. character edits: 1 - levenshtein(a, b) / max(len(a), len(b)), counted in runes
//  2. reordering: Jaro-Winkler of both names with their tokens sorted, scaled by ReorderWeight;
//     only used when both names have the same number of tokens, since Jaro-Winkler's prefix
//     bonus rewards a short name that is the start of a long one
//  3. token overlap: tokens are paired greedily (exact, initial or close spelling) and the
//     paired credit is divided by the smaller token count (or the larger one when a side
//     has a single token), scaled by OverlapWeight
//
// Pairs are put in a canonical order before scoring so the result is exactly symmetric,
// and only identical names reach 1.
package similarity

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	ReorderWeight = 0.98
	OverlapWeight = 0.97

	// tokens at least this close (Jaro-Winkler) count as the same word with a typo
	closeTokenThreshold = 0.92
	initialCredit       = 0.85
)

// connective particles of Portuguese names, ignored by the token overlap
var particles = map[string]struct{}{
	"da": {}, "de": {}, "do": {}, "das": {}, "dos": {}, "e": {},
}

type Scorer interface {
	Score(a, b string) float64
}

type defaultScorer struct{}

// Default is the scorer used by the matcher unless another one is configured.
var Default Scorer = defaultScorer{}

func (defaultScorer) Score(a, b string) float64 {
	return Score(a, b)
}

// Score returns a similarity in [0, 1] between two names already passed
// through textutil.NormalizeName.
func Score(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if b < a {
		a, b = b, a
	}

	best := Edit(a, b)
	if len(strings.Fields(a)) == len(strings.Fields(b)) {
		if s := ReorderWeight * matchr.JaroWinkler(sortTokens(a), sortTokens(b), false); s > best {
			best = s
		}
	}
	if s := OverlapWeight * TokenOverlap(a, b); s > best {
		best = s
	}
	if best > 1 {
		return 1
	}
	if best < 0 {
		return 0
	}
	return best
}

// Edit is the normalized Levenshtein similarity of a and b.
func Edit(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func significantTokens(s string) []string {
	tokens := strings.Fields(s)
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := particles[t]; ok {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return tokens
	}
	sort.Strings(kept)
	return kept
}

func tokenCredit(x, y string) float64 {
	if x == y {
		return 1
	}
	xr, _ := utf8.DecodeRuneInString(x)
	yr, _ := utf8.DecodeRuneInString(y)
	if xr == yr && (utf8.RuneCountInString(x) == 1 || utf8.RuneCountInString(y) == 1) {
		return initialCredit
	}
	if s := matchr.JaroWinkler(x, y, false); s >= closeTokenThreshold {
		return s
	}
	return 0
}

// TokenOverlap pairs the significant tokens of a and b and returns the share of
// the shorter name that found a partner. A single token name is compared against
// the whole of the other name so one shared first name is not enough.
func TokenOverlap(a, b string) float64 {
	left := significantTokens(a)
	right := significantTokens(b)
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	if len(right) < len(left) {
		left, right = right, left
	}

	used := make([]bool, len(right))
	var credit float64
	for _, l := range left {
		bestIdx := -1
		bestCredit := 0.0
		for i, r := range right {
			if used[i] {
				continue
			}
			if c := tokenCredit(l, r); c > bestCredit {
				bestCredit = c
				bestIdx = i
			}
		}
		if bestIdx >= 0 {
			used[bestIdx] = true
			credit += bestCredit
		}
	}

	denominator := len(left)
	if len(left) == 1 {
		denominator = len(right)
	}
	return credit / float64(denominator)
}

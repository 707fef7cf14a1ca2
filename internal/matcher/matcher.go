package matcher

import (
	"cashsync/internal/domain"
	"cashsync/lib/similarity"
	"cashsync/lib/textutil"
	"sort"
)

const (
	DefaultThreshold = 0.80
	DefaultMargin    = 0.05
)

type Kind int

const (
	KindNoMatch Kind = iota
	KindMatched
	KindAmbiguous
)

func (k Kind) String() string {
	switch k {
	case KindMatched:
		return "matched"
	case KindAmbiguous:
		return "ambiguous"
	default:
		return "no_match"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Candidate struct {
	Customer domain.Customer `json:"customer"`
	Score    float64         `json:"score"`
}

// Decision is the outcome of matching one scraped name.
//
// Candidates holds at most the two best scoring customers in rank order. A Matched
// decision is carried by Candidates[0], an Ambiguous one lists both rivals and a
// NoMatch keeps its best (below threshold) candidate for reporting, if any.
type Decision struct {
	Kind       Kind        `json:"kind"`
	Candidates []Candidate `json:"candidates"`
}

func (d Decision) Best() (Candidate, bool) {
	if len(d.Candidates) == 0 {
		return Candidate{}, false
	}
	return d.Candidates[0], true
}

type Options struct {
	// Threshold is the minimum score of a match, 0 means DefaultThreshold.
	Threshold float64
	// Margin is the minimum lead the best candidate needs over the runner-up.
	// nil means DefaultMargin, a pointer to 0 disables the ambiguity check.
	Margin *float64
	Scorer similarity.Scorer
}

type Matcher struct {
	threshold float64
	margin    float64
	scorer    similarity.Scorer
}

func New(opts Options) Matcher {
	m := Matcher{
		threshold: opts.Threshold,
		margin:    DefaultMargin,
		scorer:    opts.Scorer,
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	if opts.Margin != nil {
		m.margin = *opts.Margin
	}
	if m.scorer == nil {
		m.scorer = similarity.Default
	}
	return m
}

func (m Matcher) Threshold() float64 { return m.threshold }
func (m Matcher) Margin() float64    { return m.margin }

// Rank scores name against every customer and returns the best n candidates,
// highest score first and ties ordered by customer id. n <= 0 returns all of them.
func (m Matcher) Rank(name string, customers []domain.Customer, n int) []Candidate {
	target := textutil.NormalizeName(name)
	if target == "" {
		return nil
	}

	ranked := make([]Candidate, 0, len(customers))
	for _, c := range customers {
		ranked = append(ranked, Candidate{
			Customer: c,
			Score:    m.scorer.Score(target, textutil.NormalizeName(c.Name)),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Customer.ID < ranked[j].Customer.ID
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Match decides which customer, if any, a scraped row refers to. It is a pure
// function of its inputs.
func (m Matcher) Match(row domain.ScrapedRow, customers []domain.Customer) Decision {
	top := m.Rank(row.RawName, customers, 2)
	if len(top) == 0 {
		return Decision{Kind: KindNoMatch}
	}

	best := top[0]
	if best.Score < m.threshold {
		return Decision{Kind: KindNoMatch, Candidates: top[:1]}
	}
	if len(top) > 1 && best.Score-top[1].Score < m.margin {
		return Decision{Kind: KindAmbiguous, Candidates: top}
	}
	return Decision{Kind: KindMatched, Candidates: top}
}

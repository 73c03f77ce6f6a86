// Package match scores greeting names against recipient name tokens.
package match

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/hal9000y/greetguard/internal/recipient"
)

// Type is the tier that produced a Result.
type Type string

const (
	TypeExact   Type = "exact"
	TypePartial Type = "partial"
	TypeFuzzy   Type = "fuzzy"
	TypeNone    Type = "none"
)

// Result is the verdict for one name against one token, recipient or recipient list.
type Result struct {
	Matched    bool    `json:"matched"`
	Confidence float64 `json:"confidence"`
	MatchType  Type    `json:"match_type"`
}

var none = Result{MatchType: TypeNone}

// Options holds the tunable thresholds of each tier.
type Options struct {
	// Fuzzy enables the edit distance tier.
	Fuzzy bool
	// MinSimilarity gates the fuzzy tier; similarity is 1 - distance/longer length.
	MinSimilarity float64
	// MinPartialLen is the shortest string, in runes, that may count as a prefix or substring.
	MinPartialLen int

	PartialBase    float64
	PrefixWeight   float64
	ContainsWeight float64

	FuzzyBase float64
	FuzzySpan float64
}

func DefaultOptions() Options {
	return Options{
		Fuzzy:          true,
		MinSimilarity:  0.75,
		MinPartialLen:  3,
		PartialBase:    0.7,
		PrefixWeight:   0.1,
		ContainsWeight: 0.05,
		FuzzyBase:      0.85,
		FuzzySpan:      0.1,
	}
}

// Matcher is safe for concurrent use.
type Matcher struct {
	opts Options
}

func NewMatcher(opts Options) *Matcher {
	return &Matcher{opts: opts}
}

// WithFuzzy returns a copy of m with the fuzzy tier switched on or off.
func (m *Matcher) WithFuzzy(enabled bool) *Matcher {
	opts := m.opts
	opts.Fuzzy = enabled
	return &Matcher{opts: opts}
}

// Normalize case-folds s and puts it in NFC form. Diacritics are kept.
func Normalize(s string) string {
	// a Caser carries state, one per call
	return norm.NFC.String(cases.Fold().String(strings.TrimSpace(s)))
}

// FindBestMatch scores name against every non-generic recipient and returns the best result
// with the index of the recipient that produced it. Ties go to the earlier recipient, so when
// nothing matches the index is the first eligible recipient. The index is -1 only when no
// recipient is eligible.
func (m *Matcher) FindBestMatch(name string, recipients []recipient.Parsed) (Result, int) {
	best, idx := none, -1

	for i, r := range recipients {
		if r.IsGeneric {
			continue
		}
		res := m.ScoreRecipient(name, r)
		if idx == -1 || res.Confidence > best.Confidence {
			best, idx = res, i
		}
	}

	return best, idx
}

// ScoreRecipient returns the best score of name against the recipient's tokens. A
// multi-word name is tried whole and word by word; the joined tokens count as one more token.
func (m *Matcher) ScoreRecipient(name string, r recipient.Parsed) Result {
	name = Normalize(name)
	if name == "" || r.IsGeneric {
		return none
	}

	candidates := []string{name}
	if words := strings.Fields(name); len(words) > 1 {
		candidates = append(candidates, words...)
	}

	tokens := make([]string, 0, len(r.ExtractedNames)+1)
	for _, t := range r.ExtractedNames {
		tokens = append(tokens, Normalize(t))
	}
	if len(r.ExtractedNames) > 1 {
		tokens = append(tokens, strings.Join(tokens, " "))
	}

	best := none
	for _, c := range candidates {
		for _, t := range tokens {
			if res := m.score(c, t); res.Confidence > best.Confidence {
				best = res
			}
		}
	}

	return best
}

// Score compares a single name with a single token.
func (m *Matcher) Score(name, token string) Result {
	return m.score(Normalize(name), Normalize(token))
}

func (m *Matcher) score(a, b string) Result {
	if a == "" || b == "" {
		return none
	}
	if a == b {
		return Result{Matched: true, Confidence: 1, MatchType: TypeExact}
	}

	if res, ok := m.partial(a, b); ok {
		return res
	}

	if m.opts.Fuzzy {
		if res, ok := m.fuzzy(a, b); ok {
			return res
		}
	}

	return none
}

func (m *Matcher) partial(a, b string) (Result, bool) {
	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}

	shortLen, longLen := utf8.RuneCountInString(short), utf8.RuneCountInString(long)
	if shortLen < max(m.opts.MinPartialLen, 1) {
		return none, false
	}

	ratio := float64(shortLen) / float64(longLen)

	switch {
	case strings.HasPrefix(long, short):
		return Result{Matched: true, Confidence: clamp(m.opts.PartialBase + m.opts.PrefixWeight*ratio), MatchType: TypePartial}, true
	case strings.Contains(long, short):
		return Result{Matched: true, Confidence: clamp(m.opts.PartialBase + m.opts.ContainsWeight*ratio), MatchType: TypePartial}, true
	}

	return none, false
}

func (m *Matcher) fuzzy(a, b string) (Result, bool) {
	s := Similarity(a, b)
	threshold := m.opts.MinSimilarity
	if s+1e-9 < threshold {
		return none, false
	}

	conf := m.opts.FuzzyBase
	if threshold < 1 {
		conf += m.opts.FuzzySpan * (s - threshold) / (1 - threshold)
	}

	return Result{Matched: true, Confidence: clamp(conf), MatchType: TypeFuzzy}, true
}

// Similarity is 1 - distance/longer length, in runes. One swap of adjacent runes counts as a
// single edit.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longer := max(len(ra), len(rb))
	if longer == 0 {
		return 1
	}

	d := levenshtein.ComputeDistance(a, b)
	if d > 1 && adjacentSwap(ra, rb) {
		d = 1
	}

	return 1 - float64(d)/float64(longer)
}

func adjacentSwap(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}

	diff := -1
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if diff != -1 {
			return i == diff+1 && a[diff] == b[i] && a[i] == b[diff] && equalFrom(a, b, i+1)
		}
		diff = i
	}

	return false
}

func equalFrom(a, b []rune, from int) bool {
	for i := from; i < len(a); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clamp(f float64) float64 {
	return min(max(f, 0), 1)
}

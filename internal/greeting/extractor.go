// Package greeting finds greeting phrases ("Hi John,", "Dear Dr. Smith,") in email bodies and
// extracts the addressed names.
package greeting

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/hal9000y/greetguard/internal/fault"
	"github.com/hal9000y/greetguard/internal/format"
)

// Auto selects the locale from the text itself.
const Auto = "auto"

const (
	maxNameTokens    = 3
	longNameRunes    = 24
	shortNameRunes   = 2
	formalBonus      = 0.1
	honorificBonus   = 0.05
	shortNamePenalty = 0.2
	longNamePenalty  = 0.15
	dedupWindow      = 64
)

// Match is one extracted name.
type Match struct {
	// ExtractedName is the name lowercased, honorific removed.
	ExtractedName string `json:"extracted_name"`
	// FullMatch is the greeting phrase as written, from the opener to the last name.
	FullMatch string `json:"full_match"`
	// Position is the byte offset of the opener in the plain text.
	Position   int     `json:"position"`
	Confidence float64 `json:"confidence"`
}

// Content is the result of ParseEmailContent.
type Content struct {
	HasValidContent bool    `json:"has_valid_content"`
	Greetings       []Match `json:"greetings"`
}

// Extractor holds compiled locales. It keeps no per-call state and is safe for concurrent use.
type Extractor struct {
	locales  map[string]*compiled
	codes    []string
	primary  string
	language string
	logger   *slog.Logger
}

type options struct {
	language string
	primary  string
	extra    []Locale
	logger   *slog.Logger
}

type Option func(*options)

// WithLanguage sets the default language: a locale code or Auto.
func WithLanguage(code string) Option {
	return func(o *options) { o.language = strings.ToLower(code) }
}

// WithPrimary sets the fallback language used when detection is inconclusive.
func WithPrimary(code string) Option {
	return func(o *options) { o.primary = strings.ToLower(code) }
}

// WithLocales adds locales. A code that already exists is merged into the existing locale.
func WithLocales(locales ...Locale) Option {
	return func(o *options) { o.extra = append(o.extra, locales...) }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func NewExtractor(opts ...Option) (*Extractor, error) {
	o := options{language: Auto, primary: "en", logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	byCode := make(map[string]Locale)
	for _, l := range append(BuiltinLocales(), o.extra...) {
		code := strings.ToLower(strings.TrimSpace(l.Code))
		l.Code = code
		if existing, ok := byCode[code]; ok {
			byCode[code] = existing.merge(l)
			continue
		}
		byCode[code] = l
	}

	e := &Extractor{
		locales:  make(map[string]*compiled, len(byCode)),
		primary:  o.primary,
		language: o.language,
		logger:   o.logger,
	}

	for code, l := range byCode {
		c, err := compile(l)
		if err != nil {
			return nil, err
		}
		e.locales[code] = c
	}
	e.codes = slices.Sorted(maps.Keys(e.locales))

	if _, ok := e.locales[e.primary]; !ok {
		return nil, fault.New(fault.KindConfiguration, "greeting.NewExtractor", "unknown primary language").
			With("language", e.primary)
	}
	if _, ok := e.locales[e.language]; !ok && e.language != Auto {
		return nil, fault.New(fault.KindConfiguration, "greeting.NewExtractor", "unknown language").
			With("language", e.language)
	}

	return e, nil
}

// Languages lists the available locale codes.
func (e *Extractor) Languages() []string {
	return slices.Clone(e.codes)
}

// ExtractGreetings returns the greetings in text using the default language.
func (e *Extractor) ExtractGreetings(text string) []Match {
	return e.Extract(text, "")
}

// Extract returns the greetings in text, ordered by position. HTML input is reduced to
// plain text first. An empty language means the extractor default; an unknown one falls
// back to the primary language.
func (e *Extractor) Extract(text, language string) []Match {
	plain := e.plain(text)
	if strings.TrimSpace(plain) == "" {
		return nil
	}
	return dedupe(e.locales[e.resolve(plain, language)].scan(plain))
}

// ParseEmailContent reports whether text has any content and which greetings it holds.
func (e *Extractor) ParseEmailContent(text string) Content {
	return e.ParseContent(text, "")
}

// ParseContent is ParseEmailContent with an explicit language.
func (e *Extractor) ParseContent(text, language string) Content {
	plain := e.plain(text)
	if strings.TrimSpace(plain) == "" {
		return Content{}
	}
	return Content{
		HasValidContent: true,
		Greetings:       dedupe(e.locales[e.resolve(plain, language)].scan(plain)),
	}
}

func (e *Extractor) plain(text string) string {
	if format.LooksLikeHTML(text) {
		return format.PlainText(text)
	}
	return text
}

func (e *Extractor) resolve(text, language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		language = e.language
	}
	if language == Auto {
		return e.Detect(text)
	}
	if _, ok := e.locales[language]; ok {
		return language
	}
	e.logger.Warn("unknown greeting language, using primary", "language", language, "primary", e.primary)
	return e.primary
}

// Detect picks the locale whose cues, letters and openers best fit text. Ties and texts
// without any signal resolve to the primary language.
func (e *Extractor) Detect(text string) string {
	lower := strings.ToLower(text)
	words := make(map[string]int)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) && r != '\'' }) {
		words[w]++
	}

	scores := make(map[string]int, len(e.codes))
	best := 0
	for _, code := range e.codes {
		c := e.locales[code]
		score := 0
		for _, cue := range c.cues {
			if strings.ContainsRune(cue, ' ') {
				score += 3 * strings.Count(lower, cue)
			} else {
				score += 2 * words[cue]
			}
		}
		for _, r := range c.letters {
			score += strings.Count(lower, string(r))
		}
		if len(c.scan(text)) > 0 {
			score += 3
		}
		scores[code] = score
		best = max(best, score)
	}

	if best == 0 || scores[e.primary] == best {
		return e.primary
	}

	var winners []string
	for _, code := range e.codes {
		if scores[code] == best {
			winners = append(winners, code)
		}
	}
	if len(winners) != 1 {
		return e.primary
	}

	e.logger.Debug("greeting language detected", "language", winners[0], "score", best)
	return winners[0]
}

type name struct {
	tokens    []string
	honorific bool
	stopped   bool
	end       int
}

func (c *compiled) scan(text string) []Match {
	if c.openerRe == nil {
		return nil
	}

	var out []Match
	for _, loc := range c.openerRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if !wordBoundary(text, start, end) || !atGreetingStart(text, start) {
			continue
		}
		opener, ok := c.openers[collapseSpaces(strings.ToLower(text[start:end]))]
		if !ok {
			continue
		}

		names, phraseEnd := c.parseNames(text, end)
		for _, n := range names {
			if n.stopped {
				continue
			}
			out = append(out, Match{
				ExtractedName: norm.NFC.String(strings.ToLower(strings.Join(n.tokens, " "))),
				FullMatch:     text[start:phraseEnd],
				Position:      start,
				Confidence:    confidence(opener, n),
			})
		}
	}

	return out
}

// parseNames reads the names following an opener that ends at pos. It returns no names
// unless the list is followed by terminal punctuation, a line break or the end of text.
func (c *compiled) parseNames(text string, pos int) ([]name, int) {
	p := skipBlank(text, pos)
	if p == pos && p < len(text) && text[p] != ',' {
		return nil, 0
	}
	if p < len(text) && text[p] == ',' {
		// "Hi, John,"
		p = skipBlank(text, p+1)
	}

	first, ok := c.parseName(text, p)
	if !ok {
		return nil, 0
	}
	names := []name{first}
	cur := first.end

	for {
		q := skipBlank(text, cur)

		if q < len(text) && text[q] == ',' {
			r := skipBlank(text, q+1)
			if n := c.conjunctionAt(text, r); n > 0 {
				r = skipBlank(text, r+n)
			}
			next, ok := c.parseName(text, r)
			if !ok || !c.endsName(text, next.end) {
				// the comma closes the greeting
				return names, cur
			}
			names = append(names, next)
			cur = next.end
			continue
		}

		if isTerminator(text, q) {
			return names, cur
		}

		if n := c.conjunctionAt(text, q); n > 0 && q > cur {
			next, ok := c.parseName(text, skipBlank(text, q+n))
			if !ok {
				return nil, 0
			}
			names = append(names, next)
			cur = next.end
			continue
		}

		return nil, 0
	}
}

func (c *compiled) parseName(text string, pos int) (name, bool) {
	var n name
	i := pos

	// "Frau Dr. Schmidt" carries two
	for {
		next, ok := c.honorificAt(text, i)
		if !ok {
			break
		}
		n.honorific = true
		i = next
	}

	for len(n.tokens) < maxNameTokens {
		tok, next, ok := readToken(text, i)
		if !ok {
			break
		}
		n.tokens = append(n.tokens, tok)
		i = next

		j := skipBlank(text, i)
		if j == i || c.conjunctionAt(text, j) > 0 {
			break
		}
		if _, _, ok := readToken(text, j); !ok {
			break
		}
		if len(n.tokens) < maxNameTokens {
			i = j
		}
	}

	if len(n.tokens) == 0 {
		return name{}, false
	}

	for _, tok := range n.tokens {
		if c.stop[strings.ToLower(tok)] {
			n.stopped = true
			break
		}
	}
	n.end = i

	return n, true
}

// endsName reports whether a name ending at i is followed by a list separator or a terminator.
func (c *compiled) endsName(text string, i int) bool {
	q := skipBlank(text, i)
	return isTerminator(text, q) || (q > i && c.conjunctionAt(text, q) > 0)
}

func (c *compiled) honorificAt(text string, i int) (int, bool) {
	j := i
	for j < len(text) {
		r, size := utf8.DecodeRuneInString(text[j:])
		if !unicode.IsLetter(r) {
			break
		}
		j += size
	}
	if j == i || !c.honorifics[strings.ToLower(text[i:j])] {
		return 0, false
	}
	if j < len(text) && text[j] == '.' {
		j++
	}

	k := skipBlank(text, j)
	if k == j {
		return 0, false
	}
	if _, _, ok := readToken(text, k); !ok {
		return 0, false
	}
	return k, true
}

// conjunctionAt returns the byte length of the list conjunction at i, or 0.
func (c *compiled) conjunctionAt(text string, i int) int {
	for _, conj := range c.conjunctions {
		end := i + len(conj)
		if end > len(text) || !strings.EqualFold(text[i:end], conj) {
			continue
		}
		if end < len(text) && (text[end] == ' ' || text[end] == '\t') {
			return len(conj)
		}
	}
	return 0
}

// readToken reads a proper-noun shaped token: a letter that is not lower case, then letters
// and marks, with internal hyphens and apostrophes.
func readToken(text string, i int) (string, int, bool) {
	r, size := utf8.DecodeRuneInString(text[min(i, len(text)):])
	if i >= len(text) || !unicode.IsLetter(r) || unicode.IsLower(r) {
		return "", i, false
	}

	j := i + size
	for j < len(text) {
		r, size := utf8.DecodeRuneInString(text[j:])
		if unicode.IsLetter(r) || unicode.IsMark(r) {
			j += size
			continue
		}
		if r == '-' || r == '\'' || r == '’' {
			next, _ := utf8.DecodeRuneInString(text[j+size:])
			if j+size < len(text) && unicode.IsLetter(next) {
				j += size
				continue
			}
		}
		break
	}

	return text[i:j], j, true
}

func confidence(o Opener, n name) float64 {
	conf := o.Confidence
	if o.Formal {
		conf += formalBonus
	}
	if n.honorific {
		conf += honorificBonus
	}

	runes := utf8.RuneCountInString(strings.Join(n.tokens, " "))
	if runes <= shortNameRunes {
		conf -= shortNamePenalty
	}
	if len(n.tokens) >= maxNameTokens || runes > longNameRunes {
		conf -= longNamePenalty
	}

	return min(max(conf, 0), 1)
}

func dedupe(matches []Match) []Match {
	if len(matches) == 0 {
		return nil
	}

	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		k := slices.IndexFunc(out, func(o Match) bool {
			return o.ExtractedName == m.ExtractedName && abs(o.Position-m.Position) <= dedupWindow
		})
		if k == -1 {
			out = append(out, m)
			continue
		}
		if m.Confidence > out[k].Confidence {
			out[k] = m
		}
	}

	slices.SortStableFunc(out, func(a, b Match) int { return a.Position - b.Position })
	return out
}

func wordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// atGreetingStart reports whether the opener at i starts a line, a sentence or a quoted line.
func atGreetingStart(text string, i int) bool {
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:i])
		switch r {
		case ' ', '\t', '\u00a0':
			i -= size
		case '\n', '\r', '.', '!', '?', '>', ':', ';', '"', '“':
			return true
		default:
			return false
		}
	}
	return true
}

func isTerminator(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	switch text[i] {
	case ',', '!', '.', '?', ':', ';', '\n', '\r':
		return true
	}
	return false
}

func skipBlank(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	return i
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

package greeting

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hal9000y/greetguard/internal/fault"
)

// Opener is a greeting phrase such as "Hi" or "Dear".
type Opener struct {
	Phrase     string  `yaml:"phrase"`
	Confidence float64 `yaml:"confidence"`
	Formal     bool    `yaml:"formal"`
}

// Locale is the pattern set for one language.
type Locale struct {
	Code         string   `yaml:"code"`
	Openers      []Opener `yaml:"openers"`
	Honorifics   []string `yaml:"honorifics"`
	Conjunctions []string `yaml:"conjunctions"`
	StopWords    []string `yaml:"stop_words"`
	// Cues are words and phrases typical for the language, used by auto detection.
	Cues []string `yaml:"cues"`
	// Letters typical for the language, used by auto detection.
	Letters string `yaml:"letters"`
}

var commonStopWords = []string{
	"all", "everyone", "everybody", "team", "there", "and", "or", "but", "folks", "guys",
	"friends", "colleagues", "world", "you", "both", "again", "sir", "madam",
}

// BuiltinLocales returns fresh copies of the bundled locales.
func BuiltinLocales() []Locale {
	return []Locale{
		{
			Code: "en",
			Openers: []Opener{
				{Phrase: "dear", Confidence: 0.8, Formal: true},
				{Phrase: "good morning", Confidence: 0.8},
				{Phrase: "good afternoon", Confidence: 0.8},
				{Phrase: "good evening", Confidence: 0.8},
				{Phrase: "hello", Confidence: 0.75},
				{Phrase: "hi", Confidence: 0.75},
				{Phrase: "hey", Confidence: 0.7},
				{Phrase: "greetings", Confidence: 0.7},
				{Phrase: "howdy", Confidence: 0.65},
			},
			Honorifics:   []string{"mr", "mrs", "ms", "miss", "mx", "dr", "prof", "professor"},
			Conjunctions: []string{"and", "&"},
			StopWords:    commonStopWords,
			Cues: []string{
				"regards", "best regards", "kind regards", "thanks", "thank you", "sincerely",
				"the", "please", "you", "will", "would",
			},
		},
		{
			Code: "de",
			Openers: []Opener{
				{Phrase: "sehr geehrter", Confidence: 0.8, Formal: true},
				{Phrase: "sehr geehrte", Confidence: 0.8, Formal: true},
				{Phrase: "lieber", Confidence: 0.8},
				{Phrase: "liebe", Confidence: 0.8},
				{Phrase: "guten morgen", Confidence: 0.8},
				{Phrase: "guten tag", Confidence: 0.8},
				{Phrase: "guten abend", Confidence: 0.8},
				{Phrase: "hallo", Confidence: 0.75},
				{Phrase: "servus", Confidence: 0.7},
				{Phrase: "moin", Confidence: 0.7},
				{Phrase: "hi", Confidence: 0.7},
			},
			Honorifics:   []string{"herr", "frau", "dr", "prof"},
			Conjunctions: []string{"und", "&"},
			StopWords: append([]string{
				"alle", "zusammen", "leute", "kollegen", "kolleginnen", "damen", "herren", "und", "team",
			}, commonStopWords...),
			Cues: []string{
				"mit freundlichen grüßen", "viele grüße", "beste grüße", "danke", "vielen dank",
				"ich", "nicht", "und", "bitte", "wir", "ist",
			},
			Letters: "äöüß",
		},
		{
			Code: "fr",
			Openers: []Opener{
				{Phrase: "chère", Confidence: 0.8, Formal: true},
				{Phrase: "cher", Confidence: 0.8, Formal: true},
				{Phrase: "bonjour", Confidence: 0.75},
				{Phrase: "bonsoir", Confidence: 0.75},
				{Phrase: "salut", Confidence: 0.7},
				{Phrase: "coucou", Confidence: 0.65},
			},
			Honorifics:   []string{"monsieur", "madame", "mademoiselle", "m", "mme", "mlle", "dr"},
			Conjunctions: []string{"et", "&"},
			StopWords: append([]string{
				"tous", "toutes", "tout", "le", "monde", "équipe", "et", "à",
			}, commonStopWords...),
			Cues: []string{
				"cordialement", "bien à vous", "merci", "je", "vous", "nous", "est", "pour", "avec",
			},
			Letters: "éèêàçùœ",
		},
		{
			Code: "es",
			Openers: []Opener{
				{Phrase: "estimado", Confidence: 0.8, Formal: true},
				{Phrase: "estimada", Confidence: 0.8, Formal: true},
				{Phrase: "querido", Confidence: 0.8},
				{Phrase: "querida", Confidence: 0.8},
				{Phrase: "buenos días", Confidence: 0.8},
				{Phrase: "buenas tardes", Confidence: 0.8},
				{Phrase: "buenas noches", Confidence: 0.8},
				{Phrase: "hola", Confidence: 0.75},
			},
			Honorifics:   []string{"sr", "sra", "srta", "don", "doña", "dr", "dra"},
			Conjunctions: []string{"y", "e", "&"},
			StopWords: append([]string{
				"todos", "todas", "equipo", "y", "a",
			}, commonStopWords...),
			Cues: []string{
				"saludos", "un saludo", "atentamente", "gracias", "por favor", "usted", "para", "que",
			},
			Letters: "ñáíóú¿¡",
		},
	}
}

type localesFile struct {
	Locales []Locale `yaml:"locales"`
}

// LoadLocales decodes a YAML document with a top level "locales" list.
func LoadLocales(r io.Reader) ([]Locale, error) {
	var f localesFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, "greeting.LoadLocales", fmt.Errorf("yaml decode failed: %w", err))
	}

	for i, l := range f.Locales {
		if err := l.validate(); err != nil {
			return nil, err.With("index", i)
		}
	}

	return f.Locales, nil
}

// LoadLocaleFile reads a locale pack from path. An empty path yields no locales.
func LoadLocaleFile(path string) ([]Locale, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, "greeting.LoadLocaleFile", fmt.Errorf("os.Open failed: %w", err)).
			With("path", path)
	}
	defer func() { _ = f.Close() }()

	return LoadLocales(f)
}

func (l Locale) validate() *fault.Error {
	if strings.TrimSpace(l.Code) == "" {
		return fault.New(fault.KindConfiguration, "greeting.Locale", "missing locale code")
	}
	for _, o := range l.Openers {
		if strings.TrimSpace(o.Phrase) == "" || o.Confidence <= 0 || o.Confidence > 1 {
			return fault.New(fault.KindConfiguration, "greeting.Locale", "invalid opener").
				With("code", l.Code).With("phrase", o.Phrase)
		}
	}
	return nil
}

// merge adds other's entries to l. Openers with the same phrase are replaced.
func (l Locale) merge(other Locale) Locale {
	out := l
	out.Openers = slices.Clone(l.Openers)
	for _, o := range other.Openers {
		i := slices.IndexFunc(out.Openers, func(x Opener) bool { return strings.EqualFold(x.Phrase, o.Phrase) })
		if i >= 0 {
			out.Openers[i] = o
		} else {
			out.Openers = append(out.Openers, o)
		}
	}
	out.Honorifics = append(slices.Clone(l.Honorifics), other.Honorifics...)
	out.Conjunctions = append(slices.Clone(l.Conjunctions), other.Conjunctions...)
	out.StopWords = append(slices.Clone(l.StopWords), other.StopWords...)
	out.Cues = append(slices.Clone(l.Cues), other.Cues...)
	out.Letters = l.Letters + other.Letters
	return out
}

// compiled is a Locale prepared for scanning.
type compiled struct {
	code         string
	openerRe     *regexp.Regexp
	openers      map[string]Opener
	honorifics   map[string]bool
	conjunctions []string
	stop         map[string]bool
	cues         []string
	letters      string
}

func compile(l Locale) (*compiled, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}

	c := &compiled{
		code:       strings.ToLower(l.Code),
		openers:    make(map[string]Opener, len(l.Openers)),
		honorifics: toSet(l.Honorifics),
		stop:       toSet(l.StopWords),
		letters:    l.Letters,
	}

	phrases := make([]string, 0, len(l.Openers))
	for _, o := range l.Openers {
		key := collapseSpaces(strings.ToLower(o.Phrase))
		c.openers[key] = o
		phrases = append(phrases, key)
	}
	// longest first so "good morning" wins over a shorter opener sharing its start
	slices.SortFunc(phrases, func(a, b string) int { return len(b) - len(a) })

	alts := make([]string, 0, len(phrases))
	for _, p := range phrases {
		alts = append(alts, strings.ReplaceAll(regexp.QuoteMeta(p), " ", `[ \t]+`))
	}
	if len(alts) > 0 {
		re, err := regexp.Compile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
		if err != nil {
			return nil, fault.Wrap(fault.KindConfiguration, "greeting.Locale", fmt.Errorf("regexp compile failed: %w", err)).
				With("code", l.Code)
		}
		c.openerRe = re
	}

	for _, conj := range l.Conjunctions {
		if conj = strings.ToLower(strings.TrimSpace(conj)); conj != "" {
			c.conjunctions = append(c.conjunctions, conj)
		}
	}
	slices.SortFunc(c.conjunctions, func(a, b string) int { return len(b) - len(a) })

	for _, cue := range l.Cues {
		if cue = strings.ToLower(strings.TrimSpace(cue)); cue != "" {
			c.cues = append(c.cues, cue)
		}
	}

	return c, nil
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			set[w] = true
		}
	}
	return set
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Package validation checks that the names greeted in an email belong to its recipients.
package validation

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hal9000y/greetguard/internal/config"
	"github.com/hal9000y/greetguard/internal/fault"
	"github.com/hal9000y/greetguard/internal/greeting"
	"github.com/hal9000y/greetguard/internal/match"
	"github.com/hal9000y/greetguard/internal/recipient"
)

// Result is the verdict for one greeted name.
type Result struct {
	GreetingName string  `json:"greeting_name"`
	IsValid      bool    `json:"is_valid"`
	Confidence   float64 `json:"confidence"`
	// SuggestedRecipient is the closest non-generic recipient of an invalid greeting.
	SuggestedRecipient *recipient.Parsed `json:"suggested_recipient,omitempty"`
	MatchType          match.Type        `json:"match_type"`
}

// Pipeline runs one validation over a body and a recipient list. It is stateless.
type Pipeline struct {
	extractor *greeting.Extractor
	parser    *recipient.Parser
	matcher   *match.Matcher
	diag      *Diagnostics
	logger    *slog.Logger
}

type PipelineOption func(*Pipeline)

func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithPipelineDiagnostics records skipped recipients.
func WithPipelineDiagnostics(d *Diagnostics) PipelineOption {
	return func(p *Pipeline) { p.diag = d }
}

func NewPipeline(extractor *greeting.Extractor, parser *recipient.Parser, matcher *match.Matcher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		parser:    parser,
		matcher:   matcher,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewDefaultPipeline builds a pipeline with the built-in locales and default thresholds.
func NewDefaultPipeline(opts ...PipelineOption) (*Pipeline, error) {
	extractor, err := greeting.NewExtractor()
	if err != nil {
		return nil, err
	}
	return NewPipeline(extractor, recipient.NewParser(), match.NewMatcher(match.DefaultOptions()), opts...), nil
}

// Languages lists the greeting languages the pipeline recognizes.
func (p *Pipeline) Languages() []string {
	return p.extractor.Languages()
}

// Evaluate returns one Result per distinct greeted name, in order of first appearance.
// Empty content, an empty recipient list or a body without greetings yield no results.
// Recipients that fail to parse are skipped.
func (p *Pipeline) Evaluate(ctx context.Context, content string, addrs []recipient.Address, s config.Settings) ([]Result, error) {
	if strings.TrimSpace(content) == "" || len(addrs) == 0 {
		return nil, nil
	}

	var (
		parsed    []recipient.Parsed
		parseErr  error
		greetings greeting.Content
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		greetings = p.extractor.ParseContent(content, s.Language)
		return gctx.Err()
	})
	g.Go(func() error {
		parsed, parseErr = p.parser.ExtractAllRecipients(addrs)
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, fault.Wrap(fault.KindValidation, "validation.Evaluate", err)
	}

	if parseErr != nil {
		p.skipped(parseErr)
	}
	if len(parsed) == 0 || len(greetings.Greetings) == 0 {
		return nil, nil
	}

	matcher := p.matcher.WithFuzzy(s.FuzzyMatching)
	seen := make(map[string]bool, len(greetings.Greetings))
	var results []Result

	for _, gm := range greetings.Greetings {
		if gm.Confidence < s.MinConfidence || seen[gm.ExtractedName] {
			continue
		}
		seen[gm.ExtractedName] = true

		res, idx := matcher.FindBestMatch(gm.ExtractedName, parsed)
		r := Result{GreetingName: gm.ExtractedName, MatchType: res.MatchType}

		if res.Matched {
			r.IsValid = true
			r.Confidence = res.Confidence
		} else {
			r.Confidence = gm.Confidence
			if idx >= 0 {
				suggestion := parsed[idx]
				suggestion.ExtractedNames = slices.Clone(suggestion.ExtractedNames)
				r.SuggestedRecipient = &suggestion
			}
		}

		results = append(results, r)
	}

	return results, nil
}

// skipped logs each recipient parse failure joined into err.
func (p *Pipeline) skipped(err error) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	for _, e := range errs {
		if p.diag != nil {
			p.diag.Record(e)
			continue
		}
		p.logger.Warn("recipient skipped", "error", e, "kind", fault.KindOf(e))
	}
}

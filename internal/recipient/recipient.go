// Package recipient derives candidate name tokens from recipient addresses.
package recipient

import (
	"errors"
	"slices"
	"strings"

	"github.com/hal9000y/greetguard/internal/fault"
)

// Address is a recipient as the host reports it.
type Address struct {
	Email       string `json:"email" jsonschema:"the email address"`
	DisplayName string `json:"name,omitempty" jsonschema:"the display name"`
}

// Parsed is the identity view of one recipient.
type Parsed struct {
	Email          string   `json:"email" jsonschema:"lowercased email address"`
	ExtractedNames []string `json:"extracted_names" jsonschema:"name tokens in first-seen order"`
	IsGeneric      bool     `json:"is_generic" jsonschema:"true for role addresses such as support@"`
}

// DefaultRoles are local parts that name a function rather than a person.
var DefaultRoles = []string{
	"info", "support", "noreply", "no-reply", "donotreply", "do-not-reply", "admin",
	"webmaster", "postmaster", "hostmaster", "sales", "marketing", "help", "contact",
	"hello", "team", "billing", "office", "hr", "jobs", "careers", "press",
	"newsletter", "notifications", "mailer-daemon", "abuse", "security", "service",
}

const separators = "._-"

// Parser turns addresses into Parsed recipients. It holds no per-call state.
type Parser struct {
	roles map[string]bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithRoles replaces the generic role set.
func WithRoles(roles ...string) Option {
	return func(p *Parser) {
		p.roles = make(map[string]bool, len(roles))
		for _, r := range roles {
			p.addRole(r)
		}
	}
}

// WithExtraRoles extends the generic role set.
func WithExtraRoles(roles ...string) Option {
	return func(p *Parser) {
		for _, r := range roles {
			p.addRole(r)
		}
	}
}

func NewParser(opts ...Option) *Parser {
	p := &Parser{roles: make(map[string]bool, len(DefaultRoles))}
	for _, r := range DefaultRoles {
		p.addRole(r)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) addRole(r string) {
	r = strings.ToLower(strings.TrimSpace(r))
	if r == "" {
		return
	}
	p.roles[r] = true
	p.roles[stripSeparators(r)] = true
}

// ParseEmailAddress builds the identity of a single recipient.
func (p *Parser) ParseEmailAddress(addr Address) (Parsed, error) {
	email := strings.ToLower(strings.TrimSpace(addr.Email))

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return Parsed{}, fault.New(fault.KindParsing, "recipient.ParseEmailAddress", "not an email address").
			With("address", addr.Email)
	}

	local := email[:at]
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}

	return Parsed{
		Email:          email,
		ExtractedNames: nameTokens(local, addr.DisplayName),
		IsGeneric:      p.IsGeneric(local),
	}, nil
}

// IsGeneric reports whether a local part is a role mailbox.
func (p *Parser) IsGeneric(local string) bool {
	local = strings.ToLower(local)
	return p.roles[local] || p.roles[stripSeparators(local)]
}

// ExtractAllRecipients parses every address in order. Addresses that fail are skipped;
// their errors are joined into the returned error while the rest are still returned.
func (p *Parser) ExtractAllRecipients(list []Address) ([]Parsed, error) {
	parsed := make([]Parsed, 0, len(list))
	var errs []error

	for i, addr := range list {
		r, err := p.ParseEmailAddress(addr)
		if err != nil {
			var fe *fault.Error
			if errors.As(err, &fe) {
				err = fe.With("index", i)
			}
			errs = append(errs, err)
			continue
		}
		parsed = append(parsed, r)
	}

	return parsed, errors.Join(errs...)
}

// nameTokens splits the local part on separators; without separators the display name is
// split on whitespace; failing both, the whole local part is one token.
func nameTokens(local, displayName string) []string {
	if tokens := unique(strings.FieldsFunc(local, isSeparator)); len(tokens) > 1 {
		return tokens
	}

	if tokens := unique(displayNameFields(displayName)); len(tokens) > 1 {
		return tokens
	}

	return []string{local}
}

func displayNameFields(name string) []string {
	name = strings.ToLower(strings.Trim(strings.TrimSpace(name), `"'`))
	// "Doe, John" style names
	name = strings.ReplaceAll(name, ",", " ")
	return strings.Fields(name)
}

func unique(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func isSeparator(r rune) bool {
	return strings.ContainsRune(separators, r)
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if isSeparator(r) {
			return -1
		}
		return r
	}, s)
}

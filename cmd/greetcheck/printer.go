package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/hal9000y/greetguard/internal/fault"
	"github.com/hal9000y/greetguard/internal/validation"
)

type printer struct {
	mu     sync.Mutex
	w      io.Writer
	asJSON bool
	colors map[string]*color.Color
}

type jsonReport struct {
	DraftID    string              `json:"draft_id,omitempty"`
	Results    []validation.Result `json:"results"`
	Mismatches int                 `json:"mismatches"`
	Error      string              `json:"error,omitempty"`
	Kind       fault.Kind          `json:"kind,omitempty"`
}

func newPrinter(c *cli.Context) *printer {
	p := &printer{
		w:      c.App.Writer,
		asJSON: c.Bool("json"),
		colors: map[string]*color.Color{
			"ok":       color.New(color.FgGreen),
			"mismatch": color.New(color.FgRed, color.Bold),
			"hint":     color.New(color.FgYellow),
			"dim":      color.New(color.Faint),
		},
	}
	if c.Bool("no-color") {
		for _, col := range p.colors {
			col.DisableColor()
		}
	}
	return p
}

func (p *printer) results(draftID string, results []validation.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if results == nil {
		results = []validation.Result{}
	}

	mismatches := 0
	for _, r := range results {
		if !r.IsValid {
			mismatches++
		}
	}

	if p.asJSON {
		return p.json(jsonReport{DraftID: draftID, Results: results, Mismatches: mismatches})
	}

	if draftID != "" {
		p.colors["dim"].Fprintf(p.w, "draft %s\n", draftID)
	}
	if len(results) == 0 {
		p.colors["dim"].Fprintln(p.w, "no greeting found")
		return nil
	}

	for _, r := range results {
		if r.IsValid {
			p.colors["ok"].Fprint(p.w, "ok       ")
			fmt.Fprintf(p.w, "%s (%s, %.2f)\n", r.GreetingName, r.MatchType, r.Confidence)
			continue
		}

		p.colors["mismatch"].Fprint(p.w, "mismatch ")
		fmt.Fprintf(p.w, "%s (%.2f)", r.GreetingName, r.Confidence)
		if r.SuggestedRecipient != nil {
			p.colors["hint"].Fprintf(p.w, ", closest recipient %s", r.SuggestedRecipient.Email)
		}
		fmt.Fprintln(p.w)
	}
	return nil
}

func (p *printer) failure(draftID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.asJSON {
		_ = p.json(jsonReport{DraftID: draftID, Results: []validation.Result{}, Error: err.Error(), Kind: fault.KindOf(err)})
		return
	}
	p.colors["mismatch"].Fprint(p.w, "error    ")
	fmt.Fprintf(p.w, "%s: %v\n", fault.KindOf(err), err)
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("enc.Encode failed: %w", err)
	}
	return nil
}

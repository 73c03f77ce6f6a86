package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hal9000y/greetguard/internal/auth"
	"github.com/hal9000y/greetguard/internal/config"
	"github.com/hal9000y/greetguard/internal/greeting"
	"github.com/hal9000y/greetguard/internal/gservice"
	"github.com/hal9000y/greetguard/internal/match"
	"github.com/hal9000y/greetguard/internal/recipient"
	"github.com/hal9000y/greetguard/internal/validation"
)

// Exit codes.
const (
	exitMismatch = 1
	exitFailure  = 2
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(stdin io.Reader) *cli.App {
	app := &cli.App{
		Name:  "greetcheck",
		Usage: "Check that the names greeted in an email belong to its recipients",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-color", Usage: "Disable colored output"},
			&cli.BoolFlag{Name: "json", Usage: "Print results as JSON"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "Log level: debug|info|warn|error"},
		},
		Commands: []*cli.Command{
			checkCmd(stdin),
			draftCmd(),
			languagesCmd(),
		},
		DisableSliceFlagSeparator: true,
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func checkCmd(stdin io.Reader) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Check a body read from a file, or stdin when the file is - or omitted",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "to", Usage: "To header value, repeatable"},
			&cli.StringSliceFlag{Name: "cc", Usage: "Cc header value, repeatable"},
			&cli.StringSliceFlag{Name: "bcc", Usage: "Bcc header value, repeatable"},
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Value: greeting.Auto, Usage: "Greeting language code or auto"},
			&cli.Float64Flag{Name: "min-confidence", Value: config.DefaultSettings().MinConfidence, Usage: "Ignore greetings scored below this"},
			&cli.BoolFlag{Name: "no-fuzzy", Usage: "Reject misspelled names"},
			&cli.StringFlag{Name: "locale-file", EnvVars: []string{"GREETGUARD_LOCALE_FILE"}, Usage: "YAML locale pack"},
		},
		Action: func(c *cli.Context) error {
			body, err := readBody(c.Args().First(), stdin)
			if err != nil {
				return outputError(err)
			}

			var recipients []recipient.Address
			for _, flag := range []string{"to", "cc", "bcc"} {
				for _, v := range c.StringSlice(flag) {
					recipients = append(recipients, recipient.ParseHeader(v)...)
				}
			}

			settings := config.Settings{
				MinConfidence: c.Float64("min-confidence"),
				FuzzyMatching: !c.Bool("no-fuzzy"),
				Language:      strings.ToLower(c.String("language")),
			}
			if err := settings.Validate(); err != nil {
				return outputError(err)
			}

			pipeline, err := newPipeline(c.String("locale-file"), newLogger(c))
			if err != nil {
				return outputError(err)
			}

			results, err := pipeline.Evaluate(c.Context, body, recipients, settings)
			if err != nil {
				return outputError(err)
			}

			return report(newPrinter(c), "", results)
		},
	}
}

func draftCmd() *cli.Command {
	return &cli.Command{
		Name:      "draft",
		Usage:     "Check a Gmail draft; authorize first by running greetguard",
		ArgsUsage: "<draft-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Usage: "Path to env file"},
			&cli.StringFlag{Name: "oauth-token-file", Value: "./data/greetguard-token.json", Usage: "Path of the cached google oauth token"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep checking while the draft changes, until interrupted"},
		},
		Action: func(c *cli.Context) error {
			draftID := c.Args().First()
			if draftID == "" {
				return cli.Exit("draft id is required", exitFailure)
			}

			proc, err := config.LoadProcess(c.String("env-file"))
			if err != nil {
				return outputError(err)
			}

			logger := newLogger(c)
			cfg := auth.NewConfig(proc.GoogleClientID, proc.GoogleClientSecret, "")
			tok, err := auth.NewToken(cfg, c.String("oauth-token-file"), auth.WithLogger(logger))
			if err != nil {
				return outputError(err)
			}
			if _, err := tok.OAuthToken(); err != nil {
				return outputError(fmt.Errorf("no google token, authorize with greetguard first: %w", err))
			}

			pipeline, err := newPipeline(proc.LocaleFile, logger)
			if err != nil {
				return outputError(err)
			}

			store := config.NewMemoryStore(nil)
			if err := config.SaveSettings(c.Context, store, proc.Settings()); err != nil {
				return outputError(err)
			}

			binding := gservice.NewDraftBinding(gservice.NewGmail(cfg, tok), draftID,
				gservice.WithPollInterval(proc.PollInterval), gservice.WithBindingLogger(logger))
			defer binding.Close()

			o := validation.NewOrchestrator(binding, pipeline,
				validation.WithSettingsStore(store),
				validation.WithRetryPolicy(proc.RetryPolicy()),
				validation.WithCircuitBreaker(proc.CircuitBreaker()),
				validation.WithDebounce(proc.Debounce),
				validation.WithLogger(logger),
			)
			defer o.Dispose()

			if c.Bool("watch") {
				return watchDraft(c, o, draftID)
			}
			return checkDraft(c, o, draftID)
		},
	}
}

func checkDraft(c *cli.Context, o *validation.Orchestrator, draftID string) error {
	var passErr error
	o.AddListener(validation.ListenerFuncs{Error: func(err error) { passErr = err }})

	results, err := o.ValidateCurrentEmail(c.Context)
	if err != nil {
		return outputError(err)
	}
	if passErr != nil {
		return outputError(passErr)
	}

	return report(newPrinter(c), draftID, results)
}

func watchDraft(c *cli.Context, o *validation.Orchestrator, draftID string) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := newPrinter(c)
	o.AddListener(validation.ListenerFuncs{
		Complete: func(results []validation.Result) { _ = p.results(draftID, results) },
		Error:    func(err error) { p.failure(draftID, err) },
	})
	o.Attach()

	if _, err := o.ValidateCurrentEmail(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return outputError(err)
	}

	<-ctx.Done()
	return nil
}

func languagesCmd() *cli.Command {
	return &cli.Command{
		Name:  "languages",
		Usage: "List the greeting languages",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "locale-file", EnvVars: []string{"GREETGUARD_LOCALE_FILE"}, Usage: "YAML locale pack"},
		},
		Action: func(c *cli.Context) error {
			pipeline, err := newPipeline(c.String("locale-file"), newLogger(c))
			if err != nil {
				return outputError(err)
			}
			for _, code := range pipeline.Languages() {
				fmt.Fprintln(c.App.Writer, code)
			}
			return nil
		},
	}
}

// report prints results and turns a mismatch into the exit status.
func report(p *printer, draftID string, results []validation.Result) error {
	if err := p.results(draftID, results); err != nil {
		return outputError(err)
	}
	for _, r := range results {
		if !r.IsValid {
			return cli.Exit("", exitMismatch)
		}
	}
	return nil
}

func newPipeline(localeFile string, logger *slog.Logger) (*validation.Pipeline, error) {
	locales, err := greeting.LoadLocaleFile(localeFile)
	if err != nil {
		return nil, err
	}

	extractor, err := greeting.NewExtractor(greeting.WithLocales(locales...), greeting.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return validation.NewPipeline(extractor, recipient.NewParser(), match.NewMatcher(match.DefaultOptions()),
		validation.WithPipelineLogger(logger)), nil
}

func newLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

func readBody(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("stdin read failed: %w", err)
		}
		return string(b), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("os.ReadFile failed: %w", err)
	}
	return string(b), nil
}

// outputError formats err for the CLI.
func outputError(err error) error {
	return cli.Exit(err.Error(), exitFailure)
}

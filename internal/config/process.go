package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/hal9000y/greetguard/internal/fault"
	"github.com/hal9000y/greetguard/internal/resilience"
)

// Process holds the process-level tunables read from the environment.
type Process struct {
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	Debounce     time.Duration `env:"GREETGUARD_DEBOUNCE" envDefault:"300ms"`
	PollInterval time.Duration `env:"GREETGUARD_POLL_INTERVAL" envDefault:"2s"`

	RetryAttempts int           `env:"GREETGUARD_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInitial  time.Duration `env:"GREETGUARD_RETRY_INITIAL" envDefault:"100ms"`
	RetryMax      time.Duration `env:"GREETGUARD_RETRY_MAX" envDefault:"800ms"`

	BreakerThreshold int           `env:"GREETGUARD_BREAKER_THRESHOLD" envDefault:"3"`
	BreakerCoolDown  time.Duration `env:"GREETGUARD_BREAKER_COOLDOWN" envDefault:"30s"`

	LocaleFile string `env:"GREETGUARD_LOCALE_FILE"`

	// seed values for the settings store
	MinConfidence float64 `env:"GREETGUARD_MIN_CONFIDENCE" envDefault:"0.5"`
	FuzzyMatching bool    `env:"GREETGUARD_FUZZY_MATCHING" envDefault:"true"`
	Language      string  `env:"GREETGUARD_LANGUAGE" envDefault:"auto"`

	LogLevel  string `env:"GREETGUARD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"GREETGUARD_LOG_FORMAT" envDefault:"text"`
}

// LoadProcess loads the given env files, when present, then parses the environment.
// Variables already set in the environment win over file values.
func LoadProcess(envFiles ...string) (Process, error) {
	var files []string
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Process{}, fmt.Errorf("env file stat failed: %w", err)
		}
		files = append(files, f)
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Process{}, fault.Wrap(fault.KindConfiguration, "config.LoadProcess", fmt.Errorf("godotenv.Load failed: %w", err))
		}
	}

	p, err := env.ParseAs[Process]()
	if err != nil {
		return Process{}, fault.Wrap(fault.KindConfiguration, "config.LoadProcess", fmt.Errorf("env.Parse failed: %w", err))
	}

	if err := p.Settings().Validate(); err != nil {
		return Process{}, err
	}

	return p, nil
}

// Settings are the seed user settings.
func (p Process) Settings() Settings {
	return Settings{MinConfidence: p.MinConfidence, FuzzyMatching: p.FuzzyMatching, Language: strings.ToLower(p.Language)}
}

func (p Process) RetryPolicy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts: p.RetryAttempts,
		Backoff: resilience.ExponentialBackoff{
			InitialInterval: p.RetryInitial,
			MaxInterval:     p.RetryMax,
			Multiplier:      2,
			JitterFactor:    0.1,
		},
	}
}

func (p Process) CircuitBreaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(p.BreakerThreshold, 1, p.BreakerCoolDown)
}

// LogLevelValue maps LogLevel to a slog level; unknown names mean info.
func (p Process) LogLevelValue() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(p.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

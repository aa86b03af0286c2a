// Package config loads analysis settings from defaults, an optional YAML
// file and PREPGRAPH_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. Nested keys use underscores,
// e.g. PREPGRAPH_EXPLORER_RATING_MIN.
const EnvPrefix = "PREPGRAPH"

// Config holds every analysis setting. It is passed by value.
type Config struct {
	Epsilon         float64       `mapstructure:"epsilon" yaml:"epsilon"`
	TauHigh         float64       `mapstructure:"tau_high" yaml:"tau_high"`
	TauLow          float64       `mapstructure:"tau_low" yaml:"tau_low"`
	MinGames        uint64        `mapstructure:"min_games" yaml:"min_games"`
	RootProbability float64       `mapstructure:"root_probability" yaml:"root_probability"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxRequests     int           `mapstructure:"max_requests" yaml:"max_requests"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DistinctDepth   bool          `mapstructure:"distinct_depth" yaml:"distinct_depth"`

	Explorer Explorer `mapstructure:"explorer" yaml:"explorer"`
	Report   Report   `mapstructure:"report" yaml:"report"`

	CacheFile string `mapstructure:"cache_file" yaml:"cache_file,omitempty"`
	ECODir    string `mapstructure:"eco_dir" yaml:"eco_dir,omitempty"`
}

// Explorer configures the opening database.
type Explorer struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Token     string        `mapstructure:"token" yaml:"token,omitempty"`
	Database  string        `mapstructure:"database" yaml:"database"`
	Speeds    []string      `mapstructure:"speeds" yaml:"speeds,flow"`
	RatingMin int           `mapstructure:"rating_min" yaml:"rating_min"`
	RatingMax int           `mapstructure:"rating_max" yaml:"rating_max"`
	Moves     int           `mapstructure:"moves" yaml:"moves"`
	Attempts  uint          `mapstructure:"attempts" yaml:"attempts"`
	Delay     time.Duration `mapstructure:"delay" yaml:"delay"`
}

// Report sets the length of each ranked list.
type Report struct {
	Best   int `mapstructure:"best" yaml:"best"`
	Worst  int `mapstructure:"worst" yaml:"worst"`
	Most   int `mapstructure:"most" yaml:"most"`
	Costly int `mapstructure:"costly" yaml:"costly"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Epsilon:         0.0005,
		TauHigh:         0.05,
		TauLow:          0.001,
		MinGames:        10,
		RootProbability: 1,
		Concurrency:     4,
		MaxRequests:     2000,
		Timeout:         10 * time.Minute,
		Explorer: Explorer{
			BaseURL:   "https://explorer.lichess.ovh",
			Database:  "lichess",
			Speeds:    []string{"blitz", "rapid", "classical"},
			RatingMin: 1600,
			RatingMax: 2500,
			Moves:     12,
			Attempts:  5,
			Delay:     500 * time.Millisecond,
		},
		Report: Report{Best: 10, Worst: 10},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("epsilon", d.Epsilon)
	v.SetDefault("tau_high", d.TauHigh)
	v.SetDefault("tau_low", d.TauLow)
	v.SetDefault("min_games", d.MinGames)
	v.SetDefault("root_probability", d.RootProbability)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("max_requests", d.MaxRequests)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("distinct_depth", d.DistinctDepth)

	v.SetDefault("explorer.base_url", d.Explorer.BaseURL)
	v.SetDefault("explorer.token", d.Explorer.Token)
	v.SetDefault("explorer.database", d.Explorer.Database)
	v.SetDefault("explorer.speeds", d.Explorer.Speeds)
	v.SetDefault("explorer.rating_min", d.Explorer.RatingMin)
	v.SetDefault("explorer.rating_max", d.Explorer.RatingMax)
	v.SetDefault("explorer.moves", d.Explorer.Moves)
	v.SetDefault("explorer.attempts", d.Explorer.Attempts)
	v.SetDefault("explorer.delay", d.Explorer.Delay)

	v.SetDefault("report.best", d.Report.Best)
	v.SetDefault("report.worst", d.Report.Worst)
	v.SetDefault("report.most", d.Report.Most)
	v.SetDefault("report.costly", d.Report.Costly)

	v.SetDefault("cache_file", d.CacheFile)
	v.SetDefault("eco_dir", d.ECODir)
}

// Load reads path (skipped when empty) over the defaults, applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the analysis cannot use.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Epsilon >= 0 && c.Epsilon < 1, "epsilon %v must be in [0, 1)", c.Epsilon)
	check(c.TauHigh > 0 && c.TauHigh <= 1, "tau_high %v must be in (0, 1]", c.TauHigh)
	check(c.TauLow >= 0 && c.TauLow < c.TauHigh, "tau_low %v must be in [0, tau_high)", c.TauLow)
	check(c.RootProbability > 0 && c.RootProbability <= 1, "root_probability %v must be in (0, 1]", c.RootProbability)
	check(c.Concurrency > 0, "concurrency %d must be positive", c.Concurrency)
	check(c.MaxRequests >= 0, "max_requests %d must not be negative", c.MaxRequests)
	check(c.Timeout >= 0, "timeout %v must not be negative", c.Timeout)
	check(c.Explorer.Database == "lichess" || c.Explorer.Database == "masters",
		"explorer.database %q must be lichess or masters", c.Explorer.Database)
	check(c.Explorer.RatingMin <= c.Explorer.RatingMax,
		"explorer.rating_min %d exceeds rating_max %d", c.Explorer.RatingMin, c.Explorer.RatingMax)
	check(c.Explorer.Attempts > 0, "explorer.attempts must be positive")
	return errors.Join(errs...)
}

// YAML encodes the effective settings with the token redacted.
func (c Config) YAML() ([]byte, error) {
	if c.Explorer.Token != "" {
		c.Explorer.Token = "redacted"
	}
	return yaml.Marshal(c)
}

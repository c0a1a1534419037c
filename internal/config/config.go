// Package config loads bot settings from an optional TOML file overlaid by
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultNumCtx          = 2048
	DefaultTemperature     = 0.4
	DefaultCharacterLimit  = 1500
	DefaultUpdateFrequency = 10
	DefaultKeepAlive       = "45m"
	DefaultCacheFile       = "bot_cache.json"
)

// Duration is a time.Duration written as a Go duration string ("750ms").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	Token           string   `toml:"token"`
	OllamaURL       string   `toml:"ollama_url"`
	NumCtx          int      `toml:"num_ctx"`
	Temperature     float64  `toml:"temperature"`
	CharacterLimit  int      `toml:"character_limit"`
	UpdateFrequency int      `toml:"update_frequency"`
	KeepAlive       string   `toml:"keep_alive"`
	RequireMention  bool     `toml:"require_mention"`
	CacheFile       string   `toml:"cache_file"`
	MinEditInterval Duration `toml:"min_edit_interval"`

	// AWS-backed extras; all optional.
	StateTable       string `toml:"state_table"`
	ParamPrefix      string `toml:"param_prefix"`
	DiscordPublicKey string `toml:"discord_public_key"`
}

func Default() Config {
	return Config{
		OllamaURL:       DefaultOllamaURL,
		NumCtx:          DefaultNumCtx,
		Temperature:     DefaultTemperature,
		CharacterLimit:  DefaultCharacterLimit,
		UpdateFrequency: DefaultUpdateFrequency,
		KeepAlive:       DefaultKeepAlive,
		CacheFile:       DefaultCacheFile,
	}
}

// Load starts from Default, decodes the TOML file at path when path is not
// empty, then applies environment overrides read through getenv. A missing
// file is an error only because the caller asked for it explicitly.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config: file %s does not exist: %w", path, err)
			}
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if getenv != nil {
		cfg.applyEnv(getenv)
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	envString(getenv, "TOKEN", &c.Token)
	envString(getenv, "OLLAMAURL", &c.OllamaURL)
	envInt(getenv, "NUM_CTX", &c.NumCtx)
	envFloat(getenv, "TEMPERATURE", &c.Temperature)
	envInt(getenv, "CHARACTER_LIMIT", &c.CharacterLimit)
	envInt(getenv, "API_RESPONSE_UPDATE_FREQUENCY", &c.UpdateFrequency)
	envString(getenv, "KEEP_ALIVE", &c.KeepAlive)
	envBool(getenv, "REQUIRE_MENTION", &c.RequireMention)
	envString(getenv, "CACHE_FILE", &c.CacheFile)
	envString(getenv, "STATE_TABLE", &c.StateTable)
	envString(getenv, "PARAM_PREFIX", &c.ParamPrefix)
	envString(getenv, "DISCORD_PUBLIC_KEY", &c.DiscordPublicKey)
	if v := strings.TrimSpace(getenv("MIN_EDIT_INTERVAL")); v != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err == nil {
			c.MinEditInterval = d
		}
	}
}

// fillDefaults replaces out-of-range values so the rest of the bot never
// sees a zero page size or update frequency.
func (c *Config) fillDefaults() {
	if c.OllamaURL == "" {
		c.OllamaURL = DefaultOllamaURL
	}
	if c.NumCtx <= 0 {
		c.NumCtx = DefaultNumCtx
	}
	if c.Temperature < 0 {
		c.Temperature = DefaultTemperature
	}
	if c.CharacterLimit <= 0 {
		c.CharacterLimit = DefaultCharacterLimit
	}
	if c.UpdateFrequency <= 0 {
		c.UpdateFrequency = DefaultUpdateFrequency
	}
	if c.KeepAlive == "" {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.CacheFile == "" {
		c.CacheFile = DefaultCacheFile
	}
	if c.MinEditInterval.Duration < 0 {
		c.MinEditInterval.Duration = 0
	}
}

func envString(getenv func(string) string, key string, dst *string) {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		*dst = v
	}
}

// envInt keeps the current value when the variable is unset or unparsable.
func envInt(getenv func(string) string, key string, dst *int) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

func envFloat(getenv func(string) string, key string, dst *float64) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*dst = f
}

func envBool(getenv func(string) string, key string, dst *bool) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return
	}
	*dst = b
}

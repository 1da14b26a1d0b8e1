// Package config assembles the runtime configuration from the json5 config
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gradewatch/internal/configutil"
	"gradewatch/internal/history"
	"gradewatch/internal/notify"
	"gradewatch/internal/portal"
	"gradewatch/internal/telemetry"

	"github.com/joho/godotenv"
)

const (
	DefaultCache      = "notes.json"
	DefaultSchedule   = "@every 5m"
	DefaultFirstCheck = 10
)

type Telegram struct {
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"`
	BaseURL string `json:"base_url"`
}

type Portal struct {
	BaseURL        string   `json:"base_url"`
	Username       string   `json:"username"`
	Password       string   `json:"password"`
	GradesButton   string   `json:"grades_button"`
	LoginHosts     []string `json:"login_hosts"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

func (p Portal) Options() portal.Options {
	return portal.Options{
		BaseURL:      p.BaseURL,
		Username:     p.Username,
		Password:     p.Password,
		GradesButton: p.GradesButton,
		LoginHosts:   p.LoginHosts,
		Timeout:      time.Duration(p.TimeoutSeconds) * time.Second,
	}
}

type Config struct {
	Cache string `json:"cache"`
	// Schedule is a cron spec, "@every 5m" or "*/10 8-20 * * 1-5".
	Schedule          string            `json:"schedule"`
	FirstCheckSeconds int               `json:"first_check_seconds"`
	Verbose           bool              `json:"verbose"`
	Portal            Portal            `json:"portal"`
	Telegram          Telegram          `json:"telegram"`
	Email             notify.SmtpConfig `json:"email"`
	History           history.Config    `json:"history"`
	Telemetry         telemetry.Config  `json:"telemetry"`
}

func (c Config) FirstCheck() time.Duration {
	return time.Duration(c.FirstCheckSeconds) * time.Second
}

// environment variables taking precedence over the config file
var envOverrides = []struct {
	name  string
	apply func(c *Config, value string)
}{
	{"TELEGRAM_TOKEN", func(c *Config, v string) { c.Telegram.Token = v }},
	{"TELEGRAM_CHAT_ID", func(c *Config, v string) { c.Telegram.ChatID = v }},
	{"INSA_USER", func(c *Config, v string) { c.Portal.Username = v }},
	{"INSA_PWD", func(c *Config, v string) { c.Portal.Password = v }},
	{"GRADEWATCH_CACHE", func(c *Config, v string) { c.Cache = v }},
	{"GRADEWATCH_SCHEDULE", func(c *Config, v string) { c.Schedule = v }},
	{"GRADEWATCH_HISTORY", func(c *Config, v string) { c.History.File = v }},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for _, o := range envOverrides {
		value, ok := lookup(o.name)
		if ok && value != "" {
			o.apply(c, value)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Cache == "" {
		c.Cache = DefaultCache
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.FirstCheckSeconds == 0 {
		c.FirstCheckSeconds = DefaultFirstCheck
	}
	if c.Portal.BaseURL == "" {
		c.Portal.BaseURL = portal.DefaultBaseURL
	}
	if c.Portal.GradesButton == "" {
		c.Portal.GradesButton = portal.DefaultGradesButton
	}
}

// Load reads the config file at path (optional) and applies, in order of
// precedence, the environment, the env files (optional, the first file
// defining a variable wins) and the defaults. The process environment is not
// modified.
func Load(path string, envFiles ...string) (Config, error) {
	dotenv := map[string]string{}
	for _, f := range envFiles {
		values, err := godotenv.Read(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
		for k, v := range values {
			if _, ok := dotenv[k]; !ok {
				dotenv[k] = v
			}
		}
	}

	config, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	config.applyEnv(func(name string) (string, bool) {
		value, ok := os.LookupEnv(name)
		if ok && value != "" {
			return value, true
		}
		value, ok = dotenv[name]
		return value, ok
	})
	config.applyDefaults()
	return config, nil
}

var (
	ErrMissingTelegram = errors.New("config: TELEGRAM_TOKEN and TELEGRAM_CHAT_ID are required")
	ErrMissingPortal   = errors.New("config: INSA_USER and INSA_PWD are required")
)

// ValidateMonitoring checks what a monitoring cycle needs.
func (c Config) ValidateMonitoring() error {
	var errs []error
	if c.Telegram.Token == "" || c.Telegram.ChatID == "" {
		errs = append(errs, ErrMissingTelegram)
	}
	if c.Portal.Username == "" || c.Portal.Password == "" {
		errs = append(errs, ErrMissingPortal)
	}
	return errors.Join(errs...)
}

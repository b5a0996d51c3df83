package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models atelier.yml.
type Config struct {
	Reporting struct {
		Timezone  string `yaml:"timezone"`
		WeekStart struct {
			Weekday string `yaml:"weekday"`
			Hour    int    `yaml:"hour"`
		} `yaml:"week_start"`
	} `yaml:"reporting"`
	Notifications struct {
		Messages map[string]string `yaml:"messages"`
	} `yaml:"notifications"`
	Billing struct {
		Statuses []string `yaml:"statuses"`
		Rebill   bool     `yaml:"rebill"`
	} `yaml:"billing"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Reporting.Timezone == "" {
		return fmt.Errorf("config.reporting.timezone is required")
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("config.reporting.timezone: %w", err)
	}
	if _, ok := weekdays[strings.ToLower(c.Reporting.WeekStart.Weekday)]; !ok {
		return fmt.Errorf("config.reporting.week_start.weekday %q is not a weekday", c.Reporting.WeekStart.Weekday)
	}
	if c.Reporting.WeekStart.Hour < 0 || c.Reporting.WeekStart.Hour > 23 {
		return fmt.Errorf("config.reporting.week_start.hour must be 0-23")
	}
	if len(c.Billing.Statuses) == 0 {
		return fmt.Errorf("config.billing.statuses is required")
	}
	for _, s := range c.Billing.Statuses {
		if s == "" {
			return fmt.Errorf("config.billing.statuses contains empty status")
		}
	}
	for status, msg := range c.Notifications.Messages {
		if status == "" {
			return fmt.Errorf("config.notifications.messages contains empty status key")
		}
		if msg == "" {
			return fmt.Errorf("notification message for %s is empty", status)
		}
	}
	return nil
}

// Location returns the reporting timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Reporting.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WeekStartWeekday returns the configured reporting week anchor weekday.
func (c *Config) WeekStartWeekday() time.Weekday {
	return weekdays[strings.ToLower(c.Reporting.WeekStart.Weekday)]
}

// BillsStatus reports whether transitioning into status creates an invoice line.
func (c *Config) BillsStatus(status string) bool {
	for _, s := range c.Billing.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "atelier.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run at init or create it", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `reporting:
  # Reporting weeks run from Thursday 14:00 local time to the next Thursday 14:00.
  timezone: Asia/Amman
  week_start:
    weekday: thursday
    hour: 14

notifications:
  messages:
    reviewed: "Your template was reviewed and approved."
    needs_fixes: "Your template needs fixes before it can be approved."
    published: "Your template was published to the library."
    assigned: "A new template was assigned to you."

billing:
  # Entering one of these statuses creates an invoice line for the assignee.
  statuses: [reviewed, published]
  # When false, an item that cycles reviewed -> needs_fixes -> reviewed bills once.
  rebill: false
`

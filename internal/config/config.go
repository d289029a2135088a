// Package config loads inboxsweep settings from an optional .env file,
// ~/.config/inboxsweep/config.yaml and INBOXSWEEP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"inboxsweep/internal/browser"
	"inboxsweep/internal/classify"
	"inboxsweep/internal/unsub"
)

// EnvPrefix is prepended to every environment override, e.g.
// INBOXSWEEP_SCAN_WORKERS.
const EnvPrefix = "INBOXSWEEP"

type MailboxConfig struct {
	Provider string `mapstructure:"provider"` // gmail, imap or emldir
	Query    string `mapstructure:"query"`
}

type IMAPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	TLS      bool   `mapstructure:"tls"`
	Mailbox  string `mapstructure:"mailbox"`
}

type EMLDirConfig struct {
	Path string `mapstructure:"path"`
}

type ScanConfig struct {
	Workers      int `mapstructure:"workers"`
	DefaultLimit int `mapstructure:"default_limit"`
}

type DomainsConfig struct {
	LoginRequired []string `mapstructure:"login_required"`
	Platforms     []string `mapstructure:"platforms"`
}

type UnsubscribeConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PageTimeout    time.Duration `mapstructure:"page_timeout"`
	ElementTimeout time.Duration `mapstructure:"element_timeout"`
	RateDelay      time.Duration `mapstructure:"rate_delay"`
	UserAgent      string        `mapstructure:"user_agent"`
}

type BrowserConfig struct {
	Headless bool   `mapstructure:"headless"`
	ExecPath string `mapstructure:"exec_path"`
}

type DetectConfig struct {
	LoginKeywords   []string `mapstructure:"login_keywords"`
	ComplexKeywords []string `mapstructure:"complex_keywords"`
}

// Config is the top-level application configuration.
type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	DataDir     string            `mapstructure:"data_dir"`
	Mailbox     MailboxConfig     `mapstructure:"mailbox"`
	IMAP        IMAPConfig        `mapstructure:"imap"`
	EMLDir      EMLDirConfig      `mapstructure:"emldir"`
	Scan        ScanConfig        `mapstructure:"scan"`
	Domains     DomainsConfig     `mapstructure:"domains"`
	Unsubscribe UnsubscribeConfig `mapstructure:"unsubscribe"`
	Browser     BrowserConfig     `mapstructure:"browser"`
	Detect      DetectConfig      `mapstructure:"detect"`
}

// DefaultDir returns ~/.config/inboxsweep.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "inboxsweep")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	d := unsub.DefaultConfig()
	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", DefaultDir())
	v.SetDefault("mailbox.provider", "gmail")
	v.SetDefault("mailbox.query", "")
	v.SetDefault("imap.host", "")
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("emldir.path", "")
	v.SetDefault("scan.workers", 16)
	v.SetDefault("scan.default_limit", 100)
	v.SetDefault("domains.login_required", classify.DefaultLoginRequired)
	v.SetDefault("domains.platforms", classify.DefaultPlatforms)
	v.SetDefault("unsubscribe.request_timeout", d.RequestTimeout)
	v.SetDefault("unsubscribe.page_timeout", d.PageTimeout)
	v.SetDefault("unsubscribe.element_timeout", d.ElementTimeout)
	v.SetDefault("unsubscribe.rate_delay", d.RateDelay)
	v.SetDefault("unsubscribe.user_agent", d.UserAgent)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("detect.login_keywords", d.Detector.LoginKeywords)
	v.SetDefault("detect.complex_keywords", d.Detector.ComplexKeywords)
}

// Load reads configuration from path. A missing file means defaults. An
// empty path uses DefaultPath. A .env file in the working directory, when
// present, is loaded into the environment first.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the program cannot run with. The rate delay is
// not an error when too low; the engine raises it to the minimum.
func (c *Config) Validate() error {
	switch c.Mailbox.Provider {
	case "gmail", "imap", "emldir":
	default:
		return fmt.Errorf("mailbox.provider must be gmail, imap or emldir, got %q", c.Mailbox.Provider)
	}
	if c.Mailbox.Provider == "imap" && (c.IMAP.Host == "" || c.IMAP.Username == "") {
		return errors.New("imap.host and imap.username are required for the imap provider")
	}
	if c.Mailbox.Provider == "emldir" && c.EMLDir.Path == "" {
		return errors.New("emldir.path is required for the emldir provider")
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers)
	}
	if c.Scan.DefaultLimit < 0 {
		return fmt.Errorf("scan.default_limit must not be negative, got %d", c.Scan.DefaultLimit)
	}
	return nil
}

// DBPath is the allow-list database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "inboxsweep.db")
}

// Classifier builds a classifier over the configured domain sets.
func (c *Config) Classifier() *classify.Classifier {
	return classify.New(classify.NewDomainSet(c.Domains.LoginRequired), classify.NewDomainSet(c.Domains.Platforms))
}

// EngineConfig maps the unsubscribe and detect sections onto unsub.Config.
func (c *Config) EngineConfig() unsub.Config {
	det := unsub.DefaultDetector(classify.NewDomainSet(c.Domains.LoginRequired))
	if len(c.Detect.LoginKeywords) > 0 {
		det.LoginKeywords = c.Detect.LoginKeywords
	}
	if len(c.Detect.ComplexKeywords) > 0 {
		det.ComplexKeywords = c.Detect.ComplexKeywords
	}
	return unsub.Config{
		RequestTimeout: c.Unsubscribe.RequestTimeout,
		PageTimeout:    c.Unsubscribe.PageTimeout,
		ElementTimeout: c.Unsubscribe.ElementTimeout,
		RateDelay:      c.Unsubscribe.RateDelay,
		UserAgent:      c.Unsubscribe.UserAgent,
		Detector:       det,
	}
}

// BrowserOptions maps the browser section onto browser.Options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Headless:  c.Browser.Headless,
		ExecPath:  c.Browser.ExecPath,
		UserAgent: c.Unsubscribe.UserAgent,
	}
}

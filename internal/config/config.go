// Package config provides configuration loading for the tsccm CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the config file and environment are read.
const (
	DefaultAddress   = "127.0.0.1"
	DefaultPort      = 443
	DefaultFormat    = "table"
	DefaultTimeout   = 60 * time.Second
	DefaultUpdateURL = "https://api.github.com/repos/LimberDuck/tsccm/releases/latest"
)

// Secret store modes.
const (
	SecretStoreAuto = "auto"
	SecretStoreOn   = "on"
	SecretStoreOff  = "off"
)

// LogConfig controls the optional rotated log file.
type LogConfig struct {
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days" validate:"gte=0"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Config holds CLI configuration (file + env overrides). Flags are applied by the cmd package.
type Config struct {
	Addresses   []string      `yaml:"addresses" json:"addresses" validate:"required,min=1,dive,required,ip|hostname_rfc1123"`
	Port        int           `yaml:"port" json:"port" validate:"min=1,max=65535"`
	Username    string        `yaml:"username" json:"username" validate:"required"`
	Insecure    bool          `yaml:"insecure" json:"insecure"`
	CABundle    string        `yaml:"ca_bundle" json:"ca_bundle" validate:"omitempty,file"`
	Format      string        `yaml:"format" json:"format" validate:"oneof=table json csv raw"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
	Timezone    string        `yaml:"timezone" json:"timezone"`
	SecretStore string        `yaml:"secret_store" json:"secret_store" validate:"oneof=auto on off"`
	UpdateURL   string        `yaml:"update_url" json:"update_url" validate:"omitempty,url"`
	Log         LogConfig     `yaml:"log" json:"log"`
}

// Target is one (host, port, insecure) tuple a command runs against.
type Target struct {
	Host     string
	Port     int
	Insecure bool
	CABundle string
	Timeout  time.Duration
}

// Targets expands the configured addresses into targets, preserving order.
func (c *Config) Targets() []Target {
	out := make([]Target, 0, len(c.Addresses))
	for _, a := range c.Addresses {
		out = append(out, Target{
			Host:     a,
			Port:     c.Port,
			Insecure: c.Insecure,
			CABundle: c.CABundle,
			Timeout:  c.Timeout,
		})
	}
	return out
}

// Runtime holds process-wide facts resolved once at startup and passed down explicitly.
type Runtime struct {
	GOOS        string
	SecretStore bool
	Location    *time.Location
}

// Runtime resolves the secret store availability and display time zone.
func (c *Config) Runtime() (*Runtime, error) {
	rt := &Runtime{GOOS: goos, Location: time.Local}
	switch c.SecretStore {
	case SecretStoreOn:
		rt.SecretStore = true
	case SecretStoreOff:
		rt.SecretStore = false
	default:
		rt.SecretStore = goos == "windows" || goos == "darwin"
	}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
		rt.Location = loc
	}
	return rt, nil
}

// ConfigDir returns the default config directory (~/.config/tsccm).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".config", "tsccm"), nil
}

// ConfigPath returns the default config file path (~/.config/tsccm/config.yaml).
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Tests may override these.
var (
	defaultConfigPath = ConfigPath
	currentUser       = osUsername
	goos              = runtime.GOOS
)

// osUsername returns the login name of the current OS user, lower-cased and without a Windows domain.
func osUsername() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	name := u.Username
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

func defaults() *Config {
	return &Config{
		Addresses:   []string{DefaultAddress},
		Port:        DefaultPort,
		Username:    currentUser(),
		Format:      DefaultFormat,
		Timeout:     DefaultTimeout,
		SecretStore: SecretStoreAuto,
		UpdateURL:   DefaultUpdateURL,
	}
}

// Load reads config from optional file and applies env overrides.
// TSCCM_* variables override file values.
// If no file exists or path is empty, returns config from env/defaults only.
func Load(configPath string) (*Config, error) {
	cfg := defaults()
	if configPath == "" {
		var err error
		configPath, err = defaultConfigPath()
		if err != nil {
			return cfg, applyEnvOverrides(cfg)
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, applyEnvOverrides(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.Addresses) == 0 {
		cfg.Addresses = []string{DefaultAddress}
	}
	if cfg.Username == "" {
		cfg.Username = currentUser()
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("TSCCM_ADDRESS"); v != "" {
		cfg.Addresses = SplitList(v)
	}
	if v := os.Getenv("TSCCM_PORT"); v != "" {
		port, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("TSCCM_PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("TSCCM_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("TSCCM_INSECURE"); v != "" {
		insecure, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("TSCCM_INSECURE: %w", err)
		}
		cfg.Insecure = insecure
	}
	if v := os.Getenv("TSCCM_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("TSCCM_SECRET_STORE"); v != "" {
		cfg.SecretStore = v
	}
	if v := os.Getenv("TSCCM_CA_BUNDLE"); v != "" {
		cfg.CABundle = v
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the merged configuration and reports every offending field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fieldMessage(e))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func fieldMessage(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "ip|hostname_rfc1123":
		return fmt.Sprintf("%s %q is not a valid host name or IP address", field, e.Value())
	case "file":
		return fmt.Sprintf("%s %q does not exist", field, e.Value())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}

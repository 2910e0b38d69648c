package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"eventcal/internal/datetime"
	"eventcal/internal/fsutil"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment variables (optionally from a .env file) are
// applied on top of the file.

const (
	EscapingMinimal = "minimal"
	EscapingRFC5545 = "rfc5545"
)

// OutputsConfig names the three calendar documents written by a build.
type OutputsConfig struct {
	All       string `yaml:"all" json:"all" validate:"required"`
	Confirmed string `yaml:"confirmed" json:"confirmed" validate:"required"`
	Tentative string `yaml:"tentative" json:"tentative" validate:"required"`
}

// CalendarConfig holds the fixed identifiers stamped into every document.
type CalendarConfig struct {
	// ProductID is emitted as the PRODID header line.
	ProductID string `yaml:"product_id" json:"product_id" validate:"required"`
	// UIDDomain is appended to every derived entry identifier.
	UIDDomain string `yaml:"uid_domain" json:"uid_domain" validate:"required,hostname"`
	// Escaping selects text escaping for property values:
	//   - "minimal" (default): only line breaks become \n
	//   - "rfc5545": also escapes backslash, semicolon and comma
	Escaping string `yaml:"escaping" json:"escaping" validate:"oneof=minimal rfc5545"`
}

// Config is the top-level application configuration.
type Config struct {
	// DataDir is the base directory for the index, sources and outputs.
	DataDir string `yaml:"data_dir" json:"data_dir" validate:"required"`

	// IndexFile lists the source record files to load, relative to DataDir.
	IndexFile string `yaml:"index_file" json:"index_file" validate:"required"`

	// MergedFile receives the merged dataset.
	MergedFile string `yaml:"merged_file" json:"merged_file" validate:"required"`

	Outputs OutputsConfig `yaml:"outputs" json:"outputs"`

	// SupportedTags is the whitelist every tag token must belong to.
	SupportedTags []string `yaml:"supported_tags" json:"supported_tags" validate:"required,min=1,dive,required"`

	// RequiredTags is the attendance subset; each record needs at least one.
	RequiredTags []string `yaml:"required_tags" json:"required_tags" validate:"required,min=1,dive,required"`

	// AllowedStatus lists the accepted status values.
	AllowedStatus []string `yaml:"allowed_status" json:"allowed_status" validate:"required,min=1,dive,required"`

	// HomeOffset is the fixed UTC offset (e.g. "+08:00") given to date-only values.
	HomeOffset string `yaml:"home_offset" json:"home_offset" validate:"required"`

	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// MetricsTextfile, if set, receives prometheus metrics after each build.
	MetricsTextfile string `yaml:"metrics_textfile,omitempty" json:"metrics_textfile,omitempty"`

	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

var (
	defaultSupportedTags = []string{"實體", "線上", "資安", "資訊", "Conf", "CTF"}
	defaultRequiredTags  = []string{"實體", "線上"}
	defaultAllowedStatus = []string{"confirmed", "tentative"}
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "data",
		IndexFile:  "index.json",
		MergedFile: "all.json",
		Outputs: OutputsConfig{
			All:       "allevents.ics",
			Confirmed: "confirmed.ics",
			Tentative: "tentative.ics",
		},
		SupportedTags: append([]string(nil), defaultSupportedTags...),
		RequiredTags:  append([]string(nil), defaultRequiredTags...),
		AllowedStatus: append([]string(nil), defaultAllowedStatus...),
		HomeOffset:    "+08:00",
		Calendar: CalendarConfig{
			ProductID: "-//hacker-tracker.tw//events//TW",
			UIDDomain: "hacker-tracker.tw",
			Escaping:  EscapingMinimal,
		},
		LogLevel: "info",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.IndexFile == "" {
		c.IndexFile = d.IndexFile
	}
	if c.MergedFile == "" {
		c.MergedFile = d.MergedFile
	}
	if c.Outputs.All == "" {
		c.Outputs.All = d.Outputs.All
	}
	if c.Outputs.Confirmed == "" {
		c.Outputs.Confirmed = d.Outputs.Confirmed
	}
	if c.Outputs.Tentative == "" {
		c.Outputs.Tentative = d.Outputs.Tentative
	}
	if len(c.SupportedTags) == 0 {
		c.SupportedTags = d.SupportedTags
	}
	if len(c.RequiredTags) == 0 {
		c.RequiredTags = d.RequiredTags
	}
	if len(c.AllowedStatus) == 0 {
		c.AllowedStatus = d.AllowedStatus
	}
	if c.HomeOffset == "" {
		c.HomeOffset = d.HomeOffset
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = d.Calendar.ProductID
	}
	if c.Calendar.UIDDomain == "" {
		c.Calendar.UIDDomain = d.Calendar.UIDDomain
	}
	c.Calendar.Escaping = strings.ToLower(c.Calendar.Escaping)
	if c.Calendar.Escaping == "" {
		c.Calendar.Escaping = EscapingMinimal
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// ApplyEnv overrides fields from EVENTCAL_* environment variables.
// List values are comma separated.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("EVENTCAL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("EVENTCAL_HOME_OFFSET"); v != "" {
		c.HomeOffset = v
	}
	if v := os.Getenv("EVENTCAL_SUPPORTED_TAGS"); v != "" {
		c.SupportedTags = splitList(v)
	}
	if v := os.Getenv("EVENTCAL_REQUIRED_TAGS"); v != "" {
		c.RequiredTags = splitList(v)
	}
	if v := os.Getenv("EVENTCAL_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("EVENTCAL_METRICS_TEXTFILE"); v != "" {
		c.MetricsTextfile = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks struct constraints and the cross-field rules that tags
// alone cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := datetime.ParseOffset(c.HomeOffset); err != nil {
		return fmt.Errorf("config: home_offset: %w", err)
	}
	supported := make(map[string]struct{}, len(c.SupportedTags))
	for _, t := range c.SupportedTags {
		supported[norm.NFC.String(t)] = struct{}{}
	}
	for _, t := range c.RequiredTags {
		if _, ok := supported[norm.NFC.String(t)]; !ok {
			return fmt.Errorf("config: required tag %q is not in supported_tags", t)
		}
	}
	return nil
}

// Path resolves name against DataDir unless it is already absolute.
func (c *Config) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - .env in the working directory is loaded if present
//   - If the file does not exist, a default config is written with 0600 perms
//   - Otherwise the YAML is unmarshalled and defaults are filled in
//   - EVENTCAL_* environment overrides are applied last and the result validated
func Load(path string) (*Config, error) {
	return load(path, true)
}

// Read behaves like Load but never writes: a missing file yields the
// defaults in memory.
func Read(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, create bool) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = DefaultConfig()
		if create {
			// First run: create default config file.
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Normalize()
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// The parent directory is created with 0700 and the file is written
// atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o600)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

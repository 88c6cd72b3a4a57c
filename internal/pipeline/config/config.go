// Package config loads and validates the pipeline configuration. Settings
// come from a TOML file; secrets (database DSN, chat tokens, API keys) are
// resolved from the environment, with an optional .env file next to the
// config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ConfigFormatVersion is the current version of the configuration file format.
const ConfigFormatVersion = "0.1.0"

// DefaultConfigFile is used when no config file is given on the command line.
const DefaultConfigFile = "pixelpost.toml"

// StoreConfig holds persistent store settings.
type StoreConfig struct {
	Driver string `toml:"driver" validate:"required,oneof=postgres memory"` // store backend
	DSNEnv string `toml:"dsn_env"`                                          // env var holding the postgres DSN
}

// DSN resolves the database connection string from the environment.
func (s *StoreConfig) DSN() string {
	return os.Getenv(s.DSNEnv)
}

// BatchConfig holds scheduling and quota settings.
type BatchConfig struct {
	DailyLimit       int    `toml:"daily_limit" validate:"min=1"`        // max successful publishes per calendar day
	MinImages        int    `toml:"min_images" validate:"min=1"`         // lower bound of the random batch target
	MaxImages        int    `toml:"max_images" validate:"min=1"`         // upper bound of the random batch target
	AttemptsPerImage int    `toml:"attempts_per_image" validate:"min=1"` // attempt budget multiplier per target item
	DelayMin         string `toml:"delay_min"`                           // min sleep between successful publishes
	DelayMax         string `toml:"delay_max"`                           // max sleep between successful publishes
	ErrorBackoff     string `toml:"error_backoff"`                       // fixed sleep after a failed iteration
}

// GetDelayMin returns the minimum inter-publish delay.
func (b *BatchConfig) GetDelayMin() time.Duration {
	d, _ := time.ParseDuration(b.DelayMin)
	return d
}

// GetDelayMax returns the maximum inter-publish delay.
func (b *BatchConfig) GetDelayMax() time.Duration {
	d, _ := time.ParseDuration(b.DelayMax)
	return d
}

// GetErrorBackoff returns the backoff applied after an iteration error.
func (b *BatchConfig) GetErrorBackoff() time.Duration {
	d, _ := time.ParseDuration(b.ErrorBackoff)
	return d
}

// ApprovalConfig holds chat approval settings. When Enabled is false the
// gateway is not constructed and every candidate is published unreviewed.
type ApprovalConfig struct {
	Enabled      bool   `toml:"enabled"`
	Channel      string `toml:"channel"`       // chat channel id for approval messages
	RequireStart bool   `toml:"require_start"` // gate the run behind an explicit start signal
	StartCommand string `toml:"start_command"` // free-text command that opens the start gate
	BotTokenEnv  string `toml:"bot_token_env"`
	AppTokenEnv  string `toml:"app_token_env"`
}

// BotToken resolves the chat bot token from the environment.
func (a *ApprovalConfig) BotToken() string {
	return os.Getenv(a.BotTokenEnv)
}

// AppToken resolves the chat app-level (socket) token from the environment.
func (a *ApprovalConfig) AppToken() string {
	return os.Getenv(a.AppTokenEnv)
}

// GeneratorConfig holds settings for the external generation subprocess.
type GeneratorConfig struct {
	Command   []string `toml:"command"`    // argv of the generation front-end
	Profile   string   `toml:"profile"`    // optional generation profile name
	OutputDir string   `toml:"output_dir"` // where the generator writes artifacts
}

// MetadataConfig holds settings for the metadata service and the validation
// limits applied to whatever it returns.
type MetadataConfig struct {
	Model             string `toml:"model"`
	KeyEnv            string `toml:"key_env"`
	MaxTitleLen       int    `toml:"max_title_len" validate:"min=1"`
	MinTags           int    `toml:"min_tags" validate:"min=1"`
	MaxTags           int    `toml:"max_tags" validate:"min=1"`
	MaxDescriptionLen int    `toml:"max_description_len" validate:"min=1"`
}

// APIKey resolves the metadata service API key from the environment.
func (m *MetadataConfig) APIKey() string {
	return os.Getenv(m.KeyEnv)
}

// PublishConfig holds settings for the external publishing subprocess.
type PublishConfig struct {
	Command []string `toml:"command"` // argv of the uploader
}

// ConfigParam holds all configuration parameters for the pipeline.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"` // version of this configuration file format
	DryRun        bool   `toml:"dry_run"`        // simulate publishing, never call the uploader
	WorkDir       string `toml:"work_dir"`       // working directory for run state

	Store     StoreConfig     `toml:"store"`
	Batch     BatchConfig     `toml:"batch"`
	Approval  ApprovalConfig  `toml:"approval"`
	Generator GeneratorConfig `toml:"generator"`
	Metadata  MetadataConfig  `toml:"metadata"`
	Publish   PublishConfig   `toml:"publish"`
}

var cfg *ConfigParam

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

var validate = validator.New()

// ValidateConfig applies defaults and checks that all required values are
// present and consistent. Missing publish credentials outside dry-run mode
// are a fatal configuration error, not something to retry.
func ValidateConfig(c *ConfigParam) error {
	if c.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", c.FormatVersion)
	}

	applyDefaults(c)

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Batch.MinImages > c.Batch.MaxImages {
		return fmt.Errorf("batch.min_images (%d) exceeds batch.max_images (%d)", c.Batch.MinImages, c.Batch.MaxImages)
	}
	for name, value := range map[string]string{
		"batch.delay_min":     c.Batch.DelayMin,
		"batch.delay_max":     c.Batch.DelayMax,
		"batch.error_backoff": c.Batch.ErrorBackoff,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %v", name, err)
		}
	}
	if c.Batch.GetDelayMin() > c.Batch.GetDelayMax() {
		return fmt.Errorf("batch.delay_min exceeds batch.delay_max")
	}

	if c.Store.Driver == "postgres" && c.Store.DSN() == "" {
		return fmt.Errorf("store driver is postgres but %s is not set", c.Store.DSNEnv)
	}

	if !c.DryRun {
		if len(c.Publish.Command) == 0 {
			return fmt.Errorf("publish.command is required when not in dry-run mode")
		}
	}
	if c.Approval.Enabled {
		if c.Approval.Channel == "" {
			return fmt.Errorf("approval.channel is required when approval is enabled")
		}
		// Dry-run waives the credential requirement; the gateway then fails
		// open instead of gating.
		if !c.DryRun && (c.Approval.BotToken() == "" || c.Approval.AppToken() == "") {
			return fmt.Errorf("approval is enabled but %s or %s is not set", c.Approval.BotTokenEnv, c.Approval.AppTokenEnv)
		}
	}

	if c.WorkDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error getting user home directory: %v", err)
		}
		c.WorkDir = filepath.Join(homeDir, ".pixelpost")
	}
	if err := os.MkdirAll(c.WorkDir, 0700); err != nil {
		return fmt.Errorf("error creating working directory: %v", err)
	}

	return nil
}

func applyDefaults(c *ConfigParam) {
	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	if c.Store.DSNEnv == "" {
		c.Store.DSNEnv = "PIXELPOST_DB_DSN"
	}
	if c.Batch.AttemptsPerImage == 0 {
		c.Batch.AttemptsPerImage = 3
	}
	if c.Batch.DelayMin == "" {
		c.Batch.DelayMin = "30s"
	}
	if c.Batch.DelayMax == "" {
		c.Batch.DelayMax = "2m"
	}
	if c.Batch.ErrorBackoff == "" {
		c.Batch.ErrorBackoff = "1m"
	}
	if c.Approval.StartCommand == "" {
		c.Approval.StartCommand = "start"
	}
	if c.Approval.BotTokenEnv == "" {
		c.Approval.BotTokenEnv = "SLACK_BOT_TOKEN"
	}
	if c.Approval.AppTokenEnv == "" {
		c.Approval.AppTokenEnv = "SLACK_APP_TOKEN"
	}
	if c.Metadata.Model == "" {
		c.Metadata.Model = "gpt-4o-mini"
	}
	if c.Metadata.KeyEnv == "" {
		c.Metadata.KeyEnv = "OPENAI_API_KEY"
	}
	if c.Metadata.MaxTitleLen == 0 {
		c.Metadata.MaxTitleLen = 100
	}
	if c.Metadata.MinTags == 0 {
		c.Metadata.MinTags = 1
	}
	if c.Metadata.MaxTags == 0 {
		c.Metadata.MaxTags = 30
	}
	if c.Metadata.MaxDescriptionLen == 0 {
		c.Metadata.MaxDescriptionLen = 1000
	}
}

// LoadConfig loads configuration from a file and makes it available via
// Config. A .env file in the config file's directory is loaded first so
// secret lookups can resolve.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	_ = godotenv.Load(filepath.Join(filepath.Dir(filename), ".env")) // no error if .env doesn't exist

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	c := &ConfigParam{}
	if _, err := toml.Decode(string(content), c); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	if err := ValidateConfig(c); err != nil {
		return err
	}

	cfg = c
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rahul/kriya/internal/governance"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. KRIYA_RUNNER_MAX_STEPS.
const EnvPrefix = "KRIYA"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Commands CommandsConfig `mapstructure:"commands"`
	Log      LogConfig      `mapstructure:"log"`
}

type AppConfig struct {
	Name      string `mapstructure:"name"`
	Workspace string `mapstructure:"workspace"`
}

// MemoryConfig locates the run history database.
type MemoryConfig struct {
	Type string `mapstructure:"type"`
	Path string `mapstructure:"path"`
}

type RunnerConfig struct {
	MaxConcurrentRuns int           `mapstructure:"max_concurrent_runs"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	ContinueOnError   bool          `mapstructure:"continue_on_error"`
	MaxSteps          int           `mapstructure:"max_steps"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
}

// PolicyConfig lists the deny rules applied before every capability call.
type PolicyConfig struct {
	DeniedCapabilities []string `mapstructure:"denied_capabilities"`
	DeniedPatterns     []string `mapstructure:"denied_patterns"`
	DenyWhen           []string `mapstructure:"deny_when"`
}

type CommandsConfig struct {
	Build string `mapstructure:"build"`
	Test  string `mapstructure:"test"`
	Docs  string `mapstructure:"docs"`
}

type LogConfig struct {
	Level        string `mapstructure:"level"`
	EventLogPath string `mapstructure:"event_log_path"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "kriya")
	v.SetDefault("app.workspace", ".")
	v.SetDefault("memory.type", "sqlite")
	v.SetDefault("memory.path", defaultDBPath())
	v.SetDefault("runner.max_concurrent_runs", 4)
	v.SetDefault("runner.command_timeout", 10*time.Minute)
	v.SetDefault("runner.continue_on_error", false)
	v.SetDefault("runner.max_steps", 0)
	v.SetDefault("runner.poll_interval", 30*time.Second)
	// Default safety rules: block dangerous destructive commands
	v.SetDefault("policy.denied_patterns", []string{`rm\s+-rf`, `mkfs`, `shutdown`, `reboot`})
	v.SetDefault("policy.denied_capabilities", []string{})
	v.SetDefault("policy.deny_when", []string{})
	v.SetDefault("commands.build", "go build ./...")
	v.SetDefault("commands.test", "go test ./...")
	v.SetDefault("commands.docs", "go doc -all ./...")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.event_log_path", "")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "kriya.db"
	}
	return filepath.Join(home, ".kriya", "history.db")
}

// New returns a viper instance with defaults and environment overrides
// wired up. When cfgFile is empty it looks for kriya.yaml in the working
// directory, then .kriya.yaml in the home directory.
func New(cfgFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName("kriya")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Read loads the config file into v. A missing default file is not an
// error; a missing explicit file is.
func Read(v *viper.Viper, explicit bool) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err == nil || explicit || !errors.As(err, &notFound) {
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	home, herr := os.UserHomeDir()
	if herr != nil {
		return nil
	}
	v.SetConfigName(".kriya")
	v.AddConfigPath(home)
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// Load reads the file (if any) and decodes the full configuration.
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v := New(cfgFile)
	if err := Read(v, cfgFile != ""); err != nil {
		return nil, v, err
	}
	cfg, err := Decode(v)
	return cfg, v, err
}

// Decode unmarshals v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Runner.MaxConcurrentRuns < 1 {
		return nil, fmt.Errorf("runner.max_concurrent_runs must be at least 1, got %d", cfg.Runner.MaxConcurrentRuns)
	}
	if cfg.Runner.MaxSteps < 0 {
		return nil, fmt.Errorf("runner.max_steps must not be negative, got %d", cfg.Runner.MaxSteps)
	}
	return &cfg, nil
}

// BuildPolicy compiles the policy section into a policy engine.
func (c *Config) BuildPolicy() (*governance.DefaultPolicyEngine, error) {
	gov := governance.NewDefaultPolicyEngine()
	for _, name := range c.Policy.DeniedCapabilities {
		gov.DenyCapability(name)
	}
	for _, pattern := range c.Policy.DeniedPatterns {
		if err := gov.DenyArguments(pattern); err != nil {
			return nil, fmt.Errorf("invalid policy pattern %q: %w", pattern, err)
		}
	}
	for _, expression := range c.Policy.DenyWhen {
		if err := gov.DenyWhen(expression); err != nil {
			return nil, fmt.Errorf("invalid policy expression %q: %w", expression, err)
		}
	}
	return gov, nil
}

package stack

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/readitlater/infrastructure/database"
	"github.com/readitlater/infrastructure/environment"
	"github.com/readitlater/infrastructure/queue"
	"github.com/readitlater/infrastructure/storage"
)

// DefaultRegion is used when neither the settings file nor the environment
// names a region.
const DefaultRegion = "us-east-1"

var accountPattern = regexp.MustCompile(`^\d{12}$`)

// Config holds the settings of one environment's deployment.
type Config struct {
	Environment environment.Name `yaml:"environment"`

	// Account is the expected AWS account. When empty the account of the
	// deploying credentials is used.
	Account string `yaml:"account"`
	Region  string `yaml:"region"`

	CORSOrigins []string `yaml:"corsOrigins"`
	AlertEmail  string   `yaml:"alertEmail"`

	// Alarms overrides the environment default for DLQ alarms.
	Alarms *bool `yaml:"alarms"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Environment: environment.Dev,
		Region:      DefaultRegion,
	}
}

// Load reads settings from a YAML file and applies environment variable
// overrides. A missing file or an empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if env := os.Getenv("READITLATER_ENVIRONMENT"); env != "" {
		c.Environment = environment.Name(env)
	}

	if account := os.Getenv("READITLATER_ACCOUNT"); account != "" {
		c.Account = account
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		c.Region = region
	} else if region := os.Getenv("AWS_DEFAULT_REGION"); region != "" {
		c.Region = region
	}
}

// Validate normalizes the environment and checks the account and region.
func (c *Config) Validate() error {
	env, err := environment.Parse(string(c.Environment))
	if err != nil {
		return err
	}
	c.Environment = env

	if c.Account != "" && !accountPattern.MatchString(c.Account) {
		return fmt.Errorf("invalid AWS account %q: must be 12 digits", c.Account)
	}

	if c.Region == "" {
		c.Region = DefaultRegion
	}

	return nil
}

// DatabaseSpec returns the table parameters for the configured environment.
func (c *Config) DatabaseSpec() (database.Spec, error) {
	return database.SpecFor(c.Environment)
}

// StorageSpec returns the bucket parameters for the configured environment
// in account.
func (c *Config) StorageSpec(account string) (storage.Spec, error) {
	var opts []storage.Option
	if len(c.CORSOrigins) > 0 {
		opts = append(opts, storage.WithCORSOrigins(c.CORSOrigins...))
	}

	return storage.SpecFor(c.Environment, account, opts...)
}

// QueueSpec returns the queue parameters for the configured environment.
func (c *Config) QueueSpec() (queue.Spec, error) {
	var opts []queue.Option
	if c.Alarms != nil {
		opts = append(opts, queue.WithAlarms(*c.Alarms))
	}
	if c.AlertEmail != "" {
		opts = append(opts, queue.WithAlertEmail(c.AlertEmail))
	}

	return queue.SpecFor(c.Environment, opts...)
}

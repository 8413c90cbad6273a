package stack

import (
	"fmt"
	"maps"
	"slices"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"

	"github.com/readitlater/infrastructure/database"
	"github.com/readitlater/infrastructure/environment"
	"github.com/readitlater/infrastructure/queue"
	"github.com/readitlater/infrastructure/storage"
)

// ConfigNamespace is the Pulumi configuration namespace read by [Run].
const ConfigNamespace = "readitlater"

// ConfigKeys lists the keys [ConfigFromPulumi] reads from [ConfigNamespace].
var ConfigKeys = []string{"environment", "account", "alertEmail", "corsOrigins", "alarms"}

// Stack holds the declared units of one environment.
type Stack struct {
	Environment environment.Name
	Account     string
	Provider    *aws.Provider

	Database *database.Database
	Storage  *storage.Storage
	Queues   *queue.Queues
}

// Outputs returns every exported value keyed by output name.
func (s *Stack) Outputs() map[string]pulumi.StringOutput {
	out := map[string]pulumi.StringOutput{}

	maps.Copy(out, s.Database.Outputs())
	maps.Copy(out, s.Storage.Outputs())
	maps.Copy(out, s.Queues.Outputs())

	return out
}

// Declare registers the database, storage and queue units for cfg. All
// resources are created through a regional AWS provider that applies the
// environment tags as default tags. When cfg names an account it must match
// the account of the deploying credentials.
func Declare(ctx *pulumi.Context, cfg *Config) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	env := cfg.Environment

	provider, err := aws.NewProvider(ctx, "aws-"+cfg.Region, &aws.ProviderArgs{
		Region: pulumi.String(cfg.Region),
		DefaultTags: &aws.ProviderDefaultTagsArgs{
			Tags: pulumi.ToStringMap(env.Tags()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS provider: %w", err)
	}

	identity, err := aws.GetCallerIdentity(ctx, nil, pulumi.Provider(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve AWS account: %w", err)
	}

	account := identity.AccountId
	if cfg.Account != "" && cfg.Account != account {
		return nil, fmt.Errorf("configured account %s does not match deploying account %s", cfg.Account, account)
	}

	dbSpec, err := cfg.DatabaseSpec()
	if err != nil {
		return nil, err
	}

	storageSpec, err := cfg.StorageSpec(account)
	if err != nil {
		return nil, err
	}

	queueSpec, err := cfg.QueueSpec()
	if err != nil {
		return nil, err
	}

	providers := pulumi.Providers(provider)

	db, err := database.New(ctx, env.StackName("Database"), dbSpec, providers)
	if err != nil {
		return nil, fmt.Errorf("failed to declare database: %w", err)
	}

	st, err := storage.New(ctx, env.StackName("Storage"), storageSpec, providers)
	if err != nil {
		return nil, fmt.Errorf("failed to declare storage: %w", err)
	}

	qs, err := queue.New(ctx, env.StackName("Queue"), queueSpec, providers)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queues: %w", err)
	}

	s := &Stack{
		Environment: env,
		Account:     account,
		Provider:    provider,
		Database:    db,
		Storage:     st,
		Queues:      qs,
	}

	outputs := s.Outputs()
	for _, key := range slices.Sorted(maps.Keys(outputs)) {
		ctx.Export(key, outputs[key])
	}

	ctx.Export("Environment", pulumi.String(string(env)))

	return s, nil
}

// Program returns a Pulumi program declaring cfg.
func Program(cfg *Config) pulumi.RunFunc {
	return func(ctx *pulumi.Context) error {
		_, err := Declare(ctx, cfg)
		return err
	}
}

// Run is the program driven by the Pulumi CLI. Settings come from the
// readitlater configuration namespace; the environment defaults to the
// stack name when that is a valid environment, and the region to aws:region.
func Run(ctx *pulumi.Context) error {
	cfg, err := ConfigFromPulumi(ctx)
	if err != nil {
		return err
	}

	_, err = Declare(ctx, cfg)

	return err
}

// ConfigFromPulumi builds a [Config] from the stack configuration of ctx.
func ConfigFromPulumi(ctx *pulumi.Context) (*Config, error) {
	cfg := DefaultConfig()
	conf := config.New(ctx, ConfigNamespace)

	if env := conf.Get("environment"); env != "" {
		cfg.Environment = environment.Name(env)
	} else if env, err := environment.Parse(ctx.Stack()); err == nil {
		cfg.Environment = env
	}

	cfg.Account = conf.Get("account")
	cfg.AlertEmail = conf.Get("alertEmail")

	if region := config.Get(ctx, "aws:region"); region != "" {
		cfg.Region = region
	}

	if conf.Get("corsOrigins") != "" {
		if err := conf.GetObject("corsOrigins", &cfg.CORSOrigins); err != nil {
			return nil, fmt.Errorf("invalid %s:corsOrigins: %w", ConfigNamespace, err)
		}
	}

	if conf.Get("alarms") != "" {
		alarms, err := conf.TryBool("alarms")
		if err != nil {
			return nil, fmt.Errorf("invalid %s:alarms: %w", ConfigNamespace, err)
		}
		cfg.Alarms = &alarms
	}

	return cfg, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/readitlater/infrastructure/environment"
	"github.com/readitlater/infrastructure/logging"
	"github.com/readitlater/infrastructure/stack"
)

var (
	// Global flags
	verbose      bool
	envName      string
	account      string
	region       string
	configPath   string
	organization string
	timeout      time.Duration

	logger     logging.Logger = logging.Nop()
	syncLogger                = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "readitlater-infra",
	Short: "Deploy and inspect the read-it-later-anator infrastructure",
	Long: `readitlater-infra manages one environment (dev, staging or prod) of the
read-it-later-anator infrastructure: the DynamoDB table, the S3 content bucket
and the SQS work queues with their dead-letter queues.

Settings are read from --config (YAML), then READITLATER_ENVIRONMENT,
READITLATER_ACCOUNT and AWS_REGION, then the command line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, sync, err := logging.NewZap(verbose)
		if err != nil {
			return err
		}
		logger, syncLogger = l, sync
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		syncLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&envName, "env", "e", "", "Target environment: dev, staging or prod (default: dev)")
	rootCmd.PersistentFlags().StringVar(&account, "account", "", "Expected AWS account ID (default: account of the credentials)")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region (default: us-east-1)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "readitlater.yaml", "Settings file")
	rootCmd.PersistentFlags().StringVar(&organization, "org", "", "Pulumi Cloud organization of the stack")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(outputsCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(dlqCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the settings and logs the target like the deploy
// banner: environment, account and region.
func loadConfig(cmd *cobra.Command) (*stack.Config, error) {
	cfg, err := stack.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("env") {
		cfg.Environment = environment.Name(envName)
	}
	if flags.Changed("account") {
		cfg.Account = account
	}
	if flags.Changed("region") {
		cfg.Region = region
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	target := cfg.Account
	if target == "" {
		target = "(from credentials)"
	}

	logger.WithFields(map[string]any{
		"environment": cfg.Environment,
		"account":     target,
		"region":      cfg.Region,
	}).Info(cfg.Environment.Description())

	return cfg, nil
}

// commandContext returns a context bounded by --timeout and cancelled on
// SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)

	return ctx, func() {
		stop()
		cancel()
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/readitlater/infrastructure/stack"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the deployed resources against their declarations",
	Long: `Describes the live table, bucket, queues and alarms of the environment and
reports every setting that differs from what the stack declares.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func loadAWSConfig(ctx context.Context, cfg *stack.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awsCfg, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}

	v, err := stack.NewVerifier(ctx, awsCfg, logger)
	if err != nil {
		return err
	}

	if err := v.Verify(ctx, cfg); err != nil {
		return fmt.Errorf("%s infrastructure differs from declaration:\n%w", cfg.Environment, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s infrastructure matches declaration\n", cfg.Environment)

	return nil
}

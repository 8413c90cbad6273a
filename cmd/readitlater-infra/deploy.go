package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/readitlater/infrastructure/deploy"
	"github.com/readitlater/infrastructure/environment"
)

var (
	allowProdDestroy bool
	showProgress     bool
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the changes an update would make",
	Args:  cobra.NoArgs,
	RunE:  runPreview,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Create or update the environment's resources",
	Args:  cobra.NoArgs,
	RunE:  runUp,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reconcile the stack state with the live resources",
	Args:  cobra.NoArgs,
	RunE:  runRefresh,
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete the environment's resources",
	Long: `Deletes every resource of the environment's stack. The prod table and bucket
are retained on delete, and destroying prod at all requires --allow-prod-destroy.`,
	Args: cobra.NoArgs,
	RunE: runDestroy,
}

var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "Print the stack outputs under their export names",
	Args:  cobra.NoArgs,
	RunE:  runOutputs,
}

func init() {
	for _, cmd := range []*cobra.Command{previewCmd, upCmd, refreshCmd, destroyCmd} {
		cmd.Flags().BoolVar(&showProgress, "progress", false, "Stream engine progress to stdout")
	}
	destroyCmd.Flags().BoolVar(&allowProdDestroy, "allow-prod-destroy", false, "Allow destroying the prod environment")
}

func newDeployer(cmd *cobra.Command) (*deploy.Deployer, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	opts := []deploy.Option{
		deploy.WithOrganization(organization),
		deploy.WithAllowProdDestroy(allowProdDestroy),
	}
	if showProgress {
		opts = append(opts, deploy.WithProgress(cmd.OutOrStdout()))
	}

	ctx, cancel := commandContext()
	defer cancel()

	return deploy.New(cfg, logger, opts...).Init(ctx)
}

func runPreview(cmd *cobra.Command, args []string) error {
	d, err := newDeployer(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	summary, err := d.Preview(ctx)
	if err != nil {
		return err
	}

	printSummary(cmd, summary)

	return nil
}

func runUp(cmd *cobra.Command, args []string) error {
	d, err := newDeployer(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	summary, outputs, err := d.Up(ctx)
	if err != nil {
		return err
	}

	printSummary(cmd, summary)
	printOutputs(cmd, d.Environment(), outputs)

	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	d, err := newDeployer(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	summary, err := d.Refresh(ctx)
	if err != nil {
		return err
	}

	printSummary(cmd, summary)

	return nil
}

func runDestroy(cmd *cobra.Command, args []string) error {
	d, err := newDeployer(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	summary, err := d.Destroy(ctx)
	if err != nil {
		return err
	}

	printSummary(cmd, summary)

	return nil
}

func runOutputs(cmd *cobra.Command, args []string) error {
	d, err := newDeployer(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	outputs, err := d.Outputs(ctx)
	if err != nil {
		return err
	}

	printOutputs(cmd, d.Environment(), outputs)

	return nil
}

func printSummary(cmd *cobra.Command, s deploy.Summary) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s %s\n", s.Operation, s.Result)
	for _, op := range slices.Sorted(maps.Keys(s.Changes)) {
		fmt.Fprintf(out, "  %-8s %d\n", op, s.Changes[op])
	}
}

// printOutputs prints outputs as export-name=value lines, e.g.
// prod-TableName=read-it-later-prod.
func printOutputs(cmd *cobra.Command, env environment.Name, outputs map[string]string) {
	out := cmd.OutOrStdout()

	for _, key := range slices.Sorted(maps.Keys(outputs)) {
		if key == "Environment" {
			continue
		}
		fmt.Fprintf(out, "%s=%s\n", env.ExportName(key), outputs[key])
	}
}

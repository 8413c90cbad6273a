package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/readitlater/infrastructure/queue"
)

var (
	redriveQueue string
	redriveRate  int32
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and drain the dead-letter queues",
}

var dlqDepthCmd = &cobra.Command{
	Use:   "depth",
	Short: "Show the number of messages in each dead-letter queue",
	Args:  cobra.NoArgs,
	RunE:  runDLQDepth,
}

var dlqRedriveCmd = &cobra.Command{
	Use:   "redrive",
	Short: "Move dead-lettered messages back to their source queue",
	Long: `Starts an SQS message move task from the dead-letter queue of --queue back to
the queue itself. The move runs in SQS; the command returns the task handle.`,
	Args: cobra.NoArgs,
	RunE: runDLQRedrive,
}

func init() {
	dlqRedriveCmd.Flags().StringVar(&redriveQueue, "queue", "", "Queue to redrive: article-processing or digest-generation (required)")
	dlqRedriveCmd.Flags().Int32Var(&redriveRate, "rate", 0, "Maximum messages moved per second, 0 lets SQS choose")
	_ = dlqRedriveCmd.MarkFlagRequired("queue")

	dlqCmd.AddCommand(dlqDepthCmd)
	dlqCmd.AddCommand(dlqRedriveCmd)
}

func newQueueClient(cmd *cobra.Command) (*queue.Client, queue.Spec, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, queue.Spec{}, err
	}

	spec, err := cfg.QueueSpec()
	if err != nil {
		return nil, queue.Spec{}, err
	}

	ctx, cancel := commandContext()
	defer cancel()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, queue.Spec{}, err
	}

	client, err := queue.NewClient(&awsCfg, logger).Init(ctx)
	if err != nil {
		return nil, queue.Spec{}, err
	}

	return client, spec, nil
}

func runDLQDepth(cmd *cobra.Command, args []string) error {
	client, spec, err := newQueueClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	depths, err := client.DeadLetterDepth(ctx, spec)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "QUEUE\tDEAD-LETTER QUEUE\tVISIBLE\tIN FLIGHT")
	for _, d := range depths {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", d.Queue, d.DeadLetterName, d.Visible, d.InFlight)
	}

	return w.Flush()
}

func runDLQRedrive(cmd *cobra.Command, args []string) error {
	client, spec, err := newQueueClient(cmd)
	if err != nil {
		return err
	}

	wq, ok := spec.Queue(redriveQueue)
	if !ok {
		return fmt.Errorf("unknown queue %s: must be %s or %s", redriveQueue, queue.ArticleProcessing, queue.DigestGeneration)
	}

	ctx, cancel := commandContext()
	defer cancel()

	handle, err := client.Redrive(ctx, wq, redriveRate)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "redrive of %s started: %s\n", wq.DeadLetterName, handle)

	return nil
}

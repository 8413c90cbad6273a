package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/readitlater/infrastructure/logging"
)

// ErrQueueNotFound is returned when a declared queue does not exist.
var ErrQueueNotFound = errors.New("queue does not exist")

// API is the subset of the SQS API used by [Client].
type API interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	StartMessageMoveTask(ctx context.Context, params *sqs.StartMessageMoveTaskInput, optFns ...func(*sqs.Options)) (*sqs.StartMessageMoveTaskOutput, error)
}

// AlarmsAPI is the subset of the CloudWatch API used by [Client].
type AlarmsAPI interface {
	DescribeAlarms(ctx context.Context, params *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
}

// Depth is the number of messages waiting in a dead-letter queue.
type Depth struct {
	Queue          string
	DeadLetterName string
	Visible        int
	InFlight       int
}

// Client verifies deployed queues and operates on their dead-letter queues.
//
// Create a Client with [NewClient], then call [Client.Init] once before any other
// method. All other methods are safe for concurrent use after Init returns.
type Client struct {
	client      API
	alarms      AlarmsAPI
	awsCfg      *aws.Config
	opts        *ClientOptions
	logger      logging.Logger
	initialized bool
}

// NewClient creates a Client. The logger is enriched with a "component" field.
// NewClient does not connect to AWS.
func NewClient(awsCfg *aws.Config, logger logging.Logger, opts ...ClientOption) *Client {
	options := newClientOptions()

	for _, o := range opts {
		o(options)
	}

	return &Client{
		awsCfg: awsCfg,
		opts:   options,
		logger: logger.WithField("component", "queue"),
	}
}

// Init validates options and creates the SQS and CloudWatch clients. It
// returns the receiver so that initialization can be chained with [NewClient]:
//
//	client, err := queue.NewClient(&awsCfg, logger).Init(ctx)
//
// Init is idempotent and not thread-safe.
func (c *Client) Init(_ context.Context) (*Client, error) {
	if c.initialized {
		return c, nil
	}

	if err := c.opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid SQS options: %w", err)
	}

	if c.opts.sqsClient != nil {
		c.client = c.opts.sqsClient
	} else {
		c.client = sqs.NewFromConfig(*c.awsCfg, func(o *sqs.Options) {
			o.Retryer = retry.AddWithMaxBackoffDelay(o.Retryer, c.opts.sqsAPIMaxRetryBackoffDelay)
			o.Retryer = retry.AddWithMaxAttempts(o.Retryer, c.opts.sqsAPIMaxRetryAttempts)
		})
	}

	if c.opts.alarmsClient != nil {
		c.alarms = c.opts.alarmsClient
	} else {
		c.alarms = cloudwatch.NewFromConfig(*c.awsCfg, func(o *cloudwatch.Options) {
			o.Retryer = retry.AddWithMaxBackoffDelay(o.Retryer, c.opts.sqsAPIMaxRetryBackoffDelay)
			o.Retryer = retry.AddWithMaxAttempts(o.Retryer, c.opts.sqsAPIMaxRetryAttempts)
		})
	}

	c.initialized = true

	return c, nil
}

// Verify checks every work queue, its dead-letter queue and, when enabled,
// its alarm against spec. All differences are reported together.
func (c *Client) Verify(ctx context.Context, spec Spec) error {
	if !c.initialized {
		return errors.New("SQS client not initialized")
	}

	var errs []error

	for _, wq := range spec.Queues {
		errs = append(errs, c.verifyWorkQueue(ctx, wq, spec))
	}

	if spec.Alarms {
		errs = append(errs, c.verifyAlarms(ctx, spec))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	c.logger.Info("SQS queues match declaration")

	return nil
}

func (c *Client) verifyWorkQueue(ctx context.Context, wq WorkQueue, spec Spec) error {
	logger := c.logger.WithField("queue_name", wq.QueueName)
	logger.Debug("Verifying SQS queue")

	dlqAttrs, err := c.attributes(ctx, wq.DeadLetterName)
	if err != nil {
		return err
	}

	attrs, err := c.attributes(ctx, wq.QueueName)
	if err != nil {
		return err
	}

	errs := []error{
		expectAttr(wq.DeadLetterName, dlqAttrs, sqstypes.QueueAttributeNameMessageRetentionPeriod, strconv.Itoa(seconds(wq.DeadLetterRetain))),
		expectAttr(wq.QueueName, attrs, sqstypes.QueueAttributeNameVisibilityTimeout, strconv.Itoa(seconds(wq.VisibilityTimeout))),
		expectAttr(wq.QueueName, attrs, sqstypes.QueueAttributeNameReceiveMessageWaitTimeSeconds, strconv.Itoa(seconds(wq.ReceiveWaitTime))),
		expectAttr(wq.QueueName, attrs, sqstypes.QueueAttributeNameMessageRetentionPeriod, strconv.Itoa(seconds(wq.Retention))),
	}

	if spec.ManagedEncryption {
		errs = append(errs,
			expectAttr(wq.DeadLetterName, dlqAttrs, sqstypes.QueueAttributeNameSqsManagedSseEnabled, "true"),
			expectAttr(wq.QueueName, attrs, sqstypes.QueueAttributeNameSqsManagedSseEnabled, "true"),
		)
	}

	errs = append(errs, verifyRedrive(wq, attrs, dlqAttrs))

	return errors.Join(errs...)
}

func verifyRedrive(wq WorkQueue, attrs, dlqAttrs map[string]string) error {
	raw, ok := attrs[string(sqstypes.QueueAttributeNameRedrivePolicy)]
	if !ok || raw == "" {
		return fmt.Errorf("queue %s has no redrive policy", wq.QueueName)
	}

	policy, err := ParseRedrivePolicy(raw)
	if err != nil {
		return fmt.Errorf("queue %s: %w", wq.QueueName, err)
	}

	if dlqArn := dlqAttrs[string(sqstypes.QueueAttributeNameQueueArn)]; policy.DeadLetterTargetArn != dlqArn {
		return fmt.Errorf("queue %s redrives to %s, expected %s", wq.QueueName, policy.DeadLetterTargetArn, dlqArn)
	}

	if policy.MaxReceiveCount != wq.MaxReceiveCount {
		return fmt.Errorf("queue %s has max receive count %d, expected %d", wq.QueueName, policy.MaxReceiveCount, wq.MaxReceiveCount)
	}

	return nil
}

func expectAttr(queue string, attrs map[string]string, name sqstypes.QueueAttributeName, want string) error {
	if got := attrs[string(name)]; got != want {
		return fmt.Errorf("queue %s has %s %q, expected %q", queue, name, got, want)
	}

	return nil
}

func (c *Client) verifyAlarms(ctx context.Context, spec Spec) error {
	names := make([]string, 0, len(spec.Queues))
	for _, wq := range spec.Queues {
		names = append(names, wq.AlarmName)
	}

	out, err := c.alarms.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{
		AlarmNames: names,
		AlarmTypes: []cwtypes.AlarmType{cwtypes.AlarmTypeMetricAlarm},
	})
	if err != nil {
		return fmt.Errorf("failed to describe alarms: %w", err)
	}

	var errs []error

	for _, wq := range spec.Queues {
		idx := slices.IndexFunc(out.MetricAlarms, func(a cwtypes.MetricAlarm) bool {
			return aws.ToString(a.AlarmName) == wq.AlarmName
		})
		if idx < 0 {
			errs = append(errs, fmt.Errorf("alarm %s not found", wq.AlarmName))
			continue
		}

		errs = append(errs, verifyAlarm(out.MetricAlarms[idx], wq, spec.AlertTopicName))
	}

	return errors.Join(errs...)
}

func verifyAlarm(a cwtypes.MetricAlarm, wq WorkQueue, alertTopic string) error {
	name := wq.AlarmName

	if aws.ToString(a.Namespace) != AlarmNamespace || aws.ToString(a.MetricName) != AlarmMetricName {
		return fmt.Errorf("alarm %s watches %s/%s, expected %s/%s", name, aws.ToString(a.Namespace), aws.ToString(a.MetricName), AlarmNamespace, AlarmMetricName)
	}

	watched := slices.ContainsFunc(a.Dimensions, func(d cwtypes.Dimension) bool {
		return aws.ToString(d.Name) == "QueueName" && aws.ToString(d.Value) == wq.DeadLetterName
	})
	if !watched {
		return fmt.Errorf("alarm %s does not watch queue %s", name, wq.DeadLetterName)
	}

	if string(a.Statistic) != alarmStatistic || aws.ToInt32(a.Period) != int32(seconds(alarmPeriod)) {
		return fmt.Errorf("alarm %s uses %s over %ds, expected %s over %ds", name, a.Statistic, aws.ToInt32(a.Period), alarmStatistic, seconds(alarmPeriod))
	}

	if aws.ToFloat64(a.Threshold) != AlarmThreshold || a.ComparisonOperator != cwtypes.ComparisonOperatorGreaterThanOrEqualToThreshold {
		return fmt.Errorf("alarm %s fires on %s %v, expected %s %d", name, a.ComparisonOperator, aws.ToFloat64(a.Threshold), alarmComparison, AlarmThreshold)
	}

	if aws.ToInt32(a.EvaluationPeriods) != alarmEvaluationPeriods {
		return fmt.Errorf("alarm %s evaluates %d periods, expected %d", name, aws.ToInt32(a.EvaluationPeriods), alarmEvaluationPeriods)
	}

	if aws.ToString(a.TreatMissingData) != alarmTreatMissingData {
		return fmt.Errorf("alarm %s treats missing data as %q, expected %q", name, aws.ToString(a.TreatMissingData), alarmTreatMissingData)
	}

	if alertTopic != "" {
		notifies := slices.ContainsFunc(a.AlarmActions, func(action string) bool {
			return strings.HasSuffix(action, ":"+alertTopic)
		})
		if !notifies {
			return fmt.Errorf("alarm %s does not notify topic %s", name, alertTopic)
		}
	}

	return nil
}

// DeadLetterDepth returns the number of messages in the dead-letter queue of
// every work queue in spec.
func (c *Client) DeadLetterDepth(ctx context.Context, spec Spec) ([]Depth, error) {
	if !c.initialized {
		return nil, errors.New("SQS client not initialized")
	}

	depths := make([]Depth, 0, len(spec.Queues))

	for _, wq := range spec.Queues {
		attrs, err := c.attributes(ctx, wq.DeadLetterName)
		if err != nil {
			return nil, err
		}

		visible, err := intAttr(wq.DeadLetterName, attrs, sqstypes.QueueAttributeNameApproximateNumberOfMessages)
		if err != nil {
			return nil, err
		}

		inFlight, err := intAttr(wq.DeadLetterName, attrs, sqstypes.QueueAttributeNameApproximateNumberOfMessagesNotVisible)
		if err != nil {
			return nil, err
		}

		depths = append(depths, Depth{
			Queue:          wq.Key,
			DeadLetterName: wq.DeadLetterName,
			Visible:        visible,
			InFlight:       inFlight,
		})
	}

	return depths, nil
}

// Redrive starts an SQS message move task that returns the messages of the
// dead-letter queue of wq to wq. maxPerSecond caps the move rate; zero lets
// SQS choose. It returns the task handle, which can be used to cancel the
// move.
func (c *Client) Redrive(ctx context.Context, wq WorkQueue, maxPerSecond int32) (string, error) {
	if !c.initialized {
		return "", errors.New("SQS client not initialized")
	}

	if maxPerSecond < 0 || maxPerSecond > 500 {
		return "", errors.New("max messages per second must be between 0 and 500")
	}

	dlqAttrs, err := c.attributes(ctx, wq.DeadLetterName)
	if err != nil {
		return "", err
	}

	attrs, err := c.attributes(ctx, wq.QueueName)
	if err != nil {
		return "", err
	}

	input := &sqs.StartMessageMoveTaskInput{
		SourceArn:      aws.String(dlqAttrs[string(sqstypes.QueueAttributeNameQueueArn)]),
		DestinationArn: aws.String(attrs[string(sqstypes.QueueAttributeNameQueueArn)]),
	}

	if maxPerSecond > 0 {
		input.MaxNumberOfMessagesPerSecond = aws.Int32(maxPerSecond)
	}

	out, err := c.client.StartMessageMoveTask(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to start redrive from %s: %w", wq.DeadLetterName, err)
	}

	c.logger.WithField("queue_name", wq.QueueName).
		WithField("dead_letter_queue", wq.DeadLetterName).
		Info("Started dead-letter redrive")

	return aws.ToString(out.TaskHandle), nil
}

func (c *Client) attributes(ctx context.Context, name string) (map[string]string, error) {
	resp, err := c.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		var notFound *sqstypes.QueueDoesNotExist
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("queue %s: %w", name, ErrQueueNotFound)
		}
		return nil, fmt.Errorf("failed to get SQS queue URL for %s: %w", name, err)
	}

	out, err := c.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       resp.QueueUrl,
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get attributes of queue %s: %w", name, err)
	}

	return out.Attributes, nil
}

func intAttr(queue string, attrs map[string]string, name sqstypes.QueueAttributeName) (int, error) {
	n, err := strconv.Atoi(attrs[string(name)])
	if err != nil {
		return 0, fmt.Errorf("queue %s has invalid %s %q", queue, name, attrs[string(name)])
	}

	return n, nil
}

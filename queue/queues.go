package queue

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/sns"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/sqs"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// ComponentType is the Pulumi type token of [Queues].
const ComponentType = "readitlater:queue:Queues"

// Declared holds the resources of one declared work queue.
type Declared struct {
	WorkQueue

	Queue           *sqs.Queue
	DeadLetterQueue *sqs.Queue
	Alarm           *cloudwatch.MetricAlarm
}

// Queues is the Pulumi component that owns the work queues, their
// dead-letter queues and alarms.
type Queues struct {
	pulumi.ResourceState

	Queues     []*Declared
	AlertTopic *sns.Topic
}

// New registers the queues described by spec as children of a [Queues]
// component called name.
func New(ctx *pulumi.Context, name string, spec Spec, opts ...pulumi.ResourceOption) (*Queues, error) {
	qs := &Queues{}

	if err := ctx.RegisterComponentResource(ComponentType, name, qs, opts...); err != nil {
		return nil, err
	}

	parent := pulumi.Parent(qs)

	var alarmActions pulumi.Array

	if spec.Alarms && spec.AlertEmail != "" {
		// No KMS key: CloudWatch cannot publish to topics encrypted with
		// the AWS-managed aws/sns key.
		topic, err := sns.NewTopic(ctx, "DLQAlertTopic", &sns.TopicArgs{
			Name: pulumi.String(spec.AlertTopicName),
		}, parent)
		if err != nil {
			return nil, err
		}

		_, err = sns.NewTopicSubscription(ctx, "DLQAlertEmail", &sns.TopicSubscriptionArgs{
			Topic:    topic.Arn,
			Protocol: pulumi.String("email"),
			Endpoint: pulumi.String(spec.AlertEmail),
		}, pulumi.Parent(topic))
		if err != nil {
			return nil, err
		}

		qs.AlertTopic = topic
		alarmActions = pulumi.Array{topic.Arn}
	}

	outputs := pulumi.Map{}

	for _, wq := range spec.Queues {
		d, err := declareQueue(ctx, wq, spec, alarmActions, parent)
		if err != nil {
			return nil, err
		}

		qs.Queues = append(qs.Queues, d)
		outputs[wq.Logical+"QueueUrl"] = d.Queue.Url
		outputs[wq.Logical+"QueueArn"] = d.Queue.Arn
	}

	if err := ctx.RegisterResourceOutputs(qs, outputs); err != nil {
		return nil, err
	}

	return qs, nil
}

func declareQueue(ctx *pulumi.Context, wq WorkQueue, spec Spec, alarmActions pulumi.Array, parent pulumi.ResourceOption) (*Declared, error) {
	dlq, err := sqs.NewQueue(ctx, wq.Logical+"DLQ", &sqs.QueueArgs{
		Name:                    pulumi.String(wq.DeadLetterName),
		MessageRetentionSeconds: pulumi.Int(seconds(wq.DeadLetterRetain)),
		SqsManagedSseEnabled:    pulumi.Bool(spec.ManagedEncryption),
	}, parent)
	if err != nil {
		return nil, err
	}

	redrive := dlq.Arn.ApplyT(func(arn string) string {
		return RedrivePolicy{DeadLetterTargetArn: arn, MaxReceiveCount: wq.MaxReceiveCount}.String()
	}).(pulumi.StringOutput)

	queue, err := sqs.NewQueue(ctx, wq.Logical+"Queue", &sqs.QueueArgs{
		Name:                     pulumi.String(wq.QueueName),
		VisibilityTimeoutSeconds: pulumi.Int(seconds(wq.VisibilityTimeout)),
		ReceiveWaitTimeSeconds:   pulumi.Int(seconds(wq.ReceiveWaitTime)),
		MessageRetentionSeconds:  pulumi.Int(seconds(wq.Retention)),
		SqsManagedSseEnabled:     pulumi.Bool(spec.ManagedEncryption),
		RedrivePolicy:            redrive,
	}, parent)
	if err != nil {
		return nil, err
	}

	d := &Declared{WorkQueue: wq, Queue: queue, DeadLetterQueue: dlq}

	if !spec.Alarms {
		return d, nil
	}

	args := &cloudwatch.MetricAlarmArgs{
		Name:               pulumi.String(wq.AlarmName),
		AlarmDescription:   pulumi.String(wq.AlarmDescription),
		Namespace:          pulumi.String(AlarmNamespace),
		MetricName:         pulumi.String(AlarmMetricName),
		Dimensions:         pulumi.StringMap{"QueueName": dlq.Name},
		Statistic:          pulumi.String(alarmStatistic),
		Period:             pulumi.Int(seconds(alarmPeriod)),
		EvaluationPeriods:  pulumi.Int(alarmEvaluationPeriods),
		Threshold:          pulumi.Float64(AlarmThreshold),
		ComparisonOperator: pulumi.String(alarmComparison),
		TreatMissingData:   pulumi.String(alarmTreatMissingData),
	}

	if len(alarmActions) > 0 {
		args.AlarmActions = alarmActions
	}

	alarm, err := cloudwatch.NewMetricAlarm(ctx, wq.AlarmLogical, args, pulumi.Parent(dlq))
	if err != nil {
		return nil, err
	}

	d.Alarm = alarm

	return d, nil
}

// Outputs returns the values exported for other stacks, keyed by export key.
func (qs *Queues) Outputs() map[string]pulumi.StringOutput {
	out := make(map[string]pulumi.StringOutput, 2*len(qs.Queues))

	for _, d := range qs.Queues {
		out[d.Logical+"QueueUrl"] = d.Queue.Url
		out[d.Logical+"QueueArn"] = d.Queue.Arn
	}

	return out
}

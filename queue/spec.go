package queue

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/readitlater/infrastructure/environment"
)

const (
	// ArticleProcessing is the key of the article processing queue.
	ArticleProcessing = "article-processing"

	// DigestGeneration is the key of the digest generation queue.
	DigestGeneration = "digest-generation"

	// AlarmMetricName is the DLQ metric the alarms watch.
	AlarmMetricName = "ApproximateNumberOfMessagesVisible"

	// AlarmNamespace is the CloudWatch namespace of SQS metrics.
	AlarmNamespace = "AWS/SQS"

	// AlarmThreshold is the number of visible DLQ messages that raises an
	// alarm.
	AlarmThreshold = 1

	alarmPeriod            = 5 * time.Minute
	alarmStatistic         = "Maximum"
	alarmComparison        = "GreaterThanOrEqualToThreshold"
	alarmTreatMissingData  = "notBreaching"
	alarmEvaluationPeriods = 1
)

// WorkQueue is a queue paired with its dead-letter queue.
type WorkQueue struct {
	// Key is the short name, e.g. article-processing.
	Key string

	// Logical is the prefix of Pulumi resource names and export keys,
	// e.g. ArticleProcessing.
	Logical string

	QueueName         string
	DeadLetterName    string
	VisibilityTimeout time.Duration
	ReceiveWaitTime   time.Duration
	Retention         time.Duration
	DeadLetterRetain  time.Duration
	MaxReceiveCount   int

	AlarmLogical     string
	AlarmName        string
	AlarmDescription string
}

// Spec is the full set of parameters of the queues in one environment.
type Spec struct {
	Environment       environment.Name
	Queues            []WorkQueue
	ManagedEncryption bool
	Alarms            bool
	AlertEmail        string
	AlertTopicName    string
}

// Queue returns the work queue with the given key.
func (s Spec) Queue(key string) (WorkQueue, bool) {
	for _, q := range s.Queues {
		if q.Key == key {
			return q, true
		}
	}

	return WorkQueue{}, false
}

// Option is a functional option for [SpecFor].
type Option func(*Options)

// Options holds the overridable parameters of a [Spec].
type Options struct {
	alarms            *bool
	alertEmail        string
	visibilityTimeout map[string]time.Duration
	maxReceiveCount   map[string]int
}

func newOptions() *Options {
	return &Options{
		visibilityTimeout: map[string]time.Duration{},
		maxReceiveCount:   map[string]int{},
	}
}

func (o *Options) validate() error {
	if o.alertEmail != "" {
		if _, err := mail.ParseAddress(o.alertEmail); err != nil {
			return fmt.Errorf("invalid alert e-mail %q: %w", o.alertEmail, err)
		}
	}

	for key, d := range o.visibilityTimeout {
		if !knownKey(key) {
			return fmt.Errorf("unknown queue %s", key)
		}
		if d < 0 || d > 12*time.Hour || d%time.Second != 0 {
			return fmt.Errorf("visibility timeout of %s must be whole seconds between 0 and 12 hours", key)
		}
	}

	for key, n := range o.maxReceiveCount {
		if !knownKey(key) {
			return fmt.Errorf("unknown queue %s", key)
		}
		if n < 1 || n > 1000 {
			return errors.New("max receive count must be between 1 and 1000")
		}
	}

	return nil
}

func knownKey(key string) bool {
	return key == ArticleProcessing || key == DigestGeneration
}

// WithAlarms overrides the environment default (DLQ alarms in prod only).
func WithAlarms(enabled bool) Option {
	return func(o *Options) {
		o.alarms = &enabled
	}
}

// WithAlertEmail subscribes an e-mail address to the DLQ alarms. It has no
// effect when alarms are disabled.
func WithAlertEmail(email string) Option {
	return func(o *Options) {
		o.alertEmail = email
	}
}

// WithVisibilityTimeout overrides the visibility timeout of the queue with
// the given key.
func WithVisibilityTimeout(key string, d time.Duration) Option {
	return func(o *Options) {
		o.visibilityTimeout[key] = d
	}
}

// WithMaxReceiveCount overrides after how many receives a message of the
// queue with the given key moves to its DLQ.
func WithMaxReceiveCount(key string, n int) Option {
	return func(o *Options) {
		o.maxReceiveCount[key] = n
	}
}

// SpecFor returns the queue parameters for env.
func SpecFor(env environment.Name, opts ...Option) (Spec, error) {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	if err := options.validate(); err != nil {
		return Spec{}, fmt.Errorf("invalid queue options: %w", err)
	}

	queues := []WorkQueue{
		newWorkQueue(env, ArticleProcessing, "ArticleProcessing", "Article", 15*time.Minute, 3,
			"Alert when messages appear in article processing DLQ"),
		newWorkQueue(env, DigestGeneration, "DigestGeneration", "Digest", 10*time.Minute, 2,
			"Alert when messages appear in digest generation DLQ"),
	}

	for i := range queues {
		if d, ok := options.visibilityTimeout[queues[i].Key]; ok {
			queues[i].VisibilityTimeout = d
		}
		if n, ok := options.maxReceiveCount[queues[i].Key]; ok {
			queues[i].MaxReceiveCount = n
		}
	}

	alarms := env.IsProd()
	if options.alarms != nil {
		alarms = *options.alarms
	}

	spec := Spec{
		Environment:       env,
		Queues:            queues,
		ManagedEncryption: true,
		Alarms:            alarms,
	}

	if alarms && options.alertEmail != "" {
		spec.AlertEmail = options.alertEmail
		spec.AlertTopicName = env.ResourceName("dlq-alerts")
	}

	return spec, nil
}

func newWorkQueue(env environment.Name, key, logical, alarmPrefix string, visibility time.Duration, maxReceive int, alarmDescription string) WorkQueue {
	return WorkQueue{
		Key:               key,
		Logical:           logical,
		QueueName:         env.ResourceName(key),
		DeadLetterName:    env.ResourceName(key, "dlq"),
		VisibilityTimeout: visibility,
		ReceiveWaitTime:   20 * time.Second,
		Retention:         4 * 24 * time.Hour,
		DeadLetterRetain:  14 * 24 * time.Hour,
		MaxReceiveCount:   maxReceive,
		AlarmLogical:      alarmPrefix + "DLQAlarm",
		AlarmName:         env.ResourceName(strings.ToLower(alarmPrefix), "dlq", "alarm"),
		AlarmDescription:  alarmDescription,
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

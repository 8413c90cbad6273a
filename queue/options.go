package queue

import (
	"errors"
	"time"
)

// ClientOption is a functional option for configuring a [Client].
type ClientOption func(*ClientOptions)

// ClientOptions holds the configuration for a [Client].
type ClientOptions struct {
	sqsAPIMaxRetryAttempts     int
	sqsAPIMaxRetryBackoffDelay time.Duration
	sqsClient                  API
	alarmsClient               AlarmsAPI
}

func newClientOptions() *ClientOptions {
	return &ClientOptions{
		sqsAPIMaxRetryAttempts:     5,
		sqsAPIMaxRetryBackoffDelay: 10 * time.Second,
	}
}

func (o *ClientOptions) validate() error {
	if o.sqsAPIMaxRetryAttempts < 0 || o.sqsAPIMaxRetryAttempts > 10 {
		return errors.New("max SQS API retry attempts must be between 0 and 10")
	}

	if o.sqsAPIMaxRetryBackoffDelay < 1*time.Second || o.sqsAPIMaxRetryBackoffDelay > 30*time.Second {
		return errors.New("max SQS API retry backoff delay must be between 1 and 30 seconds")
	}

	return nil
}

// WithSqsAPIMaxRetryAttempts sets the maximum number of retry attempts for
// failed SQS and CloudWatch API calls. Must be between 0 and 10. Default: 5.
func WithSqsAPIMaxRetryAttempts(n int) ClientOption {
	return func(o *ClientOptions) {
		o.sqsAPIMaxRetryAttempts = n
	}
}

// WithSqsAPIMaxRetryBackoffDelay sets the maximum backoff delay between
// consecutive retry attempts. Must be between 1 second and 30 seconds.
// Default: 10 seconds.
func WithSqsAPIMaxRetryBackoffDelay(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.sqsAPIMaxRetryBackoffDelay = d
	}
}

// WithSQSClient replaces the default AWS SQS client, for testing with mock
// or stub clients.
func WithSQSClient(client API) ClientOption {
	return func(o *ClientOptions) {
		o.sqsClient = client
	}
}

// WithAlarmsClient replaces the default CloudWatch client, for testing.
func WithAlarmsClient(client AlarmsAPI) ClientOption {
	return func(o *ClientOptions) {
		o.alarmsClient = client
	}
}

package database

import (
	"errors"
	"time"
)

// ClientOption is a functional option for configuring a [Client].
type ClientOption func(*ClientOptions)

// ClientOptions holds the configuration for a [Client].
type ClientOptions struct {
	maxRetryAttempts     int
	maxRetryBackoffDelay time.Duration
	dynamoDBAPI          API
}

func newClientOptions() *ClientOptions {
	return &ClientOptions{
		maxRetryAttempts:     5,
		maxRetryBackoffDelay: 10 * time.Second,
	}
}

func (o *ClientOptions) validate() error {
	if o.maxRetryAttempts < 0 || o.maxRetryAttempts > 10 {
		return errors.New("max DynamoDB API retry attempts must be between 0 and 10")
	}

	if o.maxRetryBackoffDelay < time.Second || o.maxRetryBackoffDelay > 30*time.Second {
		return errors.New("max DynamoDB API retry backoff delay must be between 1 and 30 seconds")
	}

	return nil
}

// WithMaxRetryAttempts sets the maximum number of attempts for a failed
// DynamoDB API call. Must be between 0 and 10. Default: 5.
func WithMaxRetryAttempts(n int) ClientOption {
	return func(o *ClientOptions) {
		o.maxRetryAttempts = n
	}
}

// WithMaxRetryBackoffDelay sets the maximum delay between retries. Must be
// between 1 and 30 seconds. Default: 10 seconds.
func WithMaxRetryBackoffDelay(d time.Duration) ClientOption {
	return func(o *ClientOptions) {
		o.maxRetryBackoffDelay = d
	}
}

// WithAPI sets a custom [API] implementation, for injecting mocks in tests.
func WithAPI(api API) ClientOption {
	return func(o *ClientOptions) {
		o.dynamoDBAPI = api
	}
}

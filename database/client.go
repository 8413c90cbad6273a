package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/readitlater/infrastructure/logging"
)

// ErrTableNotFound is returned by [Client.Verify] when the table does not
// exist.
var ErrTableNotFound = errors.New("table does not exist")

// API is the subset of the DynamoDB API used by [Client].
type API interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DescribeTimeToLive(ctx context.Context, params *dynamodb.DescribeTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTimeToLiveOutput, error)
	DescribeContinuousBackups(ctx context.Context, params *dynamodb.DescribeContinuousBackupsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeContinuousBackupsOutput, error)
}

// Client checks a deployed table against a [Spec].
//
// Use [NewClient] to create a Client and [Client.Connect] to initialize the
// underlying DynamoDB client. Client is safe for concurrent use after
// Connect returns.
type Client struct {
	client API
	awsCfg *aws.Config
	opts   *ClientOptions
	logger logging.Logger
}

// NewClient creates a Client for the given AWS config. Call
// [Client.Connect] before use.
func NewClient(awsCfg *aws.Config, logger logging.Logger, opts ...ClientOption) *Client {
	options := newClientOptions()

	for _, o := range opts {
		o(options)
	}

	return &Client{
		awsCfg: awsCfg,
		opts:   options,
		logger: logger.WithField("component", "database"),
	}
}

// Connect initializes the DynamoDB client from the AWS config provided to
// [NewClient].
func (c *Client) Connect() error {
	if err := c.opts.validate(); err != nil {
		return fmt.Errorf("invalid DynamoDB options: %w", err)
	}

	if c.opts.dynamoDBAPI != nil {
		c.client = c.opts.dynamoDBAPI
	} else {
		c.client = dynamodb.NewFromConfig(*c.awsCfg, func(o *dynamodb.Options) {
			o.Retryer = retry.AddWithMaxBackoffDelay(o.Retryer, c.opts.maxRetryBackoffDelay)
			o.Retryer = retry.AddWithMaxAttempts(o.Retryer, c.opts.maxRetryAttempts)
		})
	}

	return nil
}

// Verify describes the table named in spec and returns an error listing
// every difference: key schema, status, billing mode, change stream,
// encryption, secondary indexes, TTL and point-in-time recovery. A missing
// table yields an error wrapping [ErrTableNotFound].
func (c *Client) Verify(ctx context.Context, spec Spec) error {
	if c.client == nil {
		return errors.New("DynamoDB client not connected")
	}

	logger := c.logger.WithField("table_name", spec.TableName)
	logger.Debug("Verifying DynamoDB table")

	response, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(spec.TableName),
	})
	if err != nil {
		var notFoundError *dynamodbtypes.ResourceNotFoundException
		if errors.As(err, &notFoundError) {
			return fmt.Errorf("table %s: %w", spec.TableName, ErrTableNotFound)
		}
		return fmt.Errorf("failed to describe table %s: %w", spec.TableName, err)
	}

	table := response.Table
	if table == nil {
		return fmt.Errorf("table %s has no description", spec.TableName)
	}

	errs := []error{
		verifyKeySchema("table "+spec.TableName, table.KeySchema, spec.PartitionKey, spec.SortKey),
		verifyTable(table, spec),
	}

	for _, idx := range spec.Indexes {
		errs = append(errs, verifySecondaryIndex(table, idx))
	}

	errs = append(errs, c.verifyTimeToLive(ctx, spec), c.verifyPointInTimeRecovery(ctx, spec))

	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger.Info("DynamoDB table matches declaration")

	return nil
}

func verifyTable(table *dynamodbtypes.TableDescription, spec Spec) error {
	var errs []error

	if table.TableStatus != dynamodbtypes.TableStatusActive {
		errs = append(errs, fmt.Errorf("table %s is not active (status: %s)", spec.TableName, table.TableStatus))
	}

	// A table created with provisioned capacity may carry no summary.
	billingMode := dynamodbtypes.BillingModeProvisioned
	if table.BillingModeSummary != nil {
		billingMode = table.BillingModeSummary.BillingMode
	}

	if billingMode != spec.BillingMode {
		errs = append(errs, fmt.Errorf("table %s has billing mode %s, expected %s", spec.TableName, billingMode, spec.BillingMode))
	}

	if spec.StreamViewType != "" {
		stream := table.StreamSpecification
		switch {
		case stream == nil || !aws.ToBool(stream.StreamEnabled):
			errs = append(errs, fmt.Errorf("table %s has no change stream, expected %s", spec.TableName, spec.StreamViewType))
		case stream.StreamViewType != spec.StreamViewType:
			errs = append(errs, fmt.Errorf("table %s has stream view type %s, expected %s", spec.TableName, stream.StreamViewType, spec.StreamViewType))
		}
	}

	if table.SSEDescription == nil || table.SSEDescription.Status != dynamodbtypes.SSEStatusEnabled {
		errs = append(errs, fmt.Errorf("table %s is not encrypted with a KMS key", spec.TableName))
	}

	return errors.Join(errs...)
}

func verifyKeySchema(name string, schema []dynamodbtypes.KeySchemaElement, partitionKey, sortKey string) error {
	if len(schema) < 1 {
		return fmt.Errorf("%s has no key schema", name)
	}

	hash, rng := keyAttributes(schema)

	if hash != partitionKey {
		return fmt.Errorf("%s has partition key %s, expected %s", name, hash, partitionKey)
	}

	if rng == "" {
		return fmt.Errorf("%s has a simple primary key, expected composite", name)
	}

	if rng != sortKey {
		return fmt.Errorf("%s has sort key %s, expected %s", name, rng, sortKey)
	}

	return nil
}

func keyAttributes(schema []dynamodbtypes.KeySchemaElement) (hash, rng string) {
	for _, k := range schema {
		switch k.KeyType {
		case dynamodbtypes.KeyTypeHash:
			hash = aws.ToString(k.AttributeName)
		case dynamodbtypes.KeyTypeRange:
			rng = aws.ToString(k.AttributeName)
		}
	}

	return hash, rng
}

func verifySecondaryIndex(table *dynamodbtypes.TableDescription, want Index) error {
	for _, index := range table.GlobalSecondaryIndexes {
		if aws.ToString(index.IndexName) != want.Name {
			continue
		}

		name := "global secondary index " + want.Name

		if err := verifyKeySchema(name, index.KeySchema, want.PartitionKey, want.SortKey); err != nil {
			return err
		}

		if index.IndexStatus != dynamodbtypes.IndexStatusActive {
			return fmt.Errorf("%s is not active (status: %s)", name, index.IndexStatus)
		}

		if index.Projection == nil || index.Projection.ProjectionType != want.ProjectionType {
			got := dynamodbtypes.ProjectionType("none")
			if index.Projection != nil {
				got = index.Projection.ProjectionType
			}
			return fmt.Errorf("%s has projection type %s, expected %s", name, got, want.ProjectionType)
		}

		return nil
	}

	return fmt.Errorf("global secondary index %s not found", want.Name)
}

func (c *Client) verifyTimeToLive(ctx context.Context, spec Spec) error {
	ttlResponse, err := c.client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(spec.TableName),
	})
	if err != nil {
		return fmt.Errorf("failed to describe TTL of table %s: %w", spec.TableName, err)
	}

	ttl := ttlResponse.TimeToLiveDescription
	if ttl == nil {
		return fmt.Errorf("table %s has no TTL description", spec.TableName)
	}

	if ttl.TimeToLiveStatus != dynamodbtypes.TimeToLiveStatusEnabled {
		return fmt.Errorf("table %s has TTL status %s (expected %s)", spec.TableName, ttl.TimeToLiveStatus, dynamodbtypes.TimeToLiveStatusEnabled)
	}

	if aws.ToString(ttl.AttributeName) != spec.TimeToLiveAttribute {
		return fmt.Errorf("TTL attribute name for table %s is %s, expected %s", spec.TableName, aws.ToString(ttl.AttributeName), spec.TimeToLiveAttribute)
	}

	return nil
}

func (c *Client) verifyPointInTimeRecovery(ctx context.Context, spec Spec) error {
	response, err := c.client.DescribeContinuousBackups(ctx, &dynamodb.DescribeContinuousBackupsInput{
		TableName: aws.String(spec.TableName),
	})
	if err != nil {
		return fmt.Errorf("failed to describe continuous backups of table %s: %w", spec.TableName, err)
	}

	enabled := false
	if d := response.ContinuousBackupsDescription; d != nil && d.PointInTimeRecoveryDescription != nil {
		enabled = d.PointInTimeRecoveryDescription.PointInTimeRecoveryStatus == dynamodbtypes.PointInTimeRecoveryStatusEnabled
	}

	if enabled != spec.PointInTimeRecovery {
		return fmt.Errorf("table %s has point-in-time recovery %s, expected %s", spec.TableName, onOff(enabled), onOff(spec.PointInTimeRecovery))
	}

	return nil
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/readitlater/infrastructure/logging"
)

// ErrBucketNotFound is returned by [Client.Verify] when the bucket does not
// exist or is not accessible.
var ErrBucketNotFound = errors.New("bucket does not exist")

// API is the subset of the S3 API used by [Client].
type API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error)
	GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error)
	GetBucketLifecycleConfiguration(ctx context.Context, params *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error)
	GetBucketCors(ctx context.Context, params *s3.GetBucketCorsInput, optFns ...func(*s3.Options)) (*s3.GetBucketCorsOutput, error)
}

// Client checks a deployed bucket against a [Spec]. Call [Client.Connect]
// once before use; Client is safe for concurrent use afterwards.
type Client struct {
	client API
	awsCfg *aws.Config
	opts   *ClientOptions
	logger logging.Logger
}

// NewClient creates a Client for the given AWS config.
func NewClient(awsCfg *aws.Config, logger logging.Logger, opts ...ClientOption) *Client {
	options := newClientOptions()

	for _, o := range opts {
		o(options)
	}

	return &Client{
		awsCfg: awsCfg,
		opts:   options,
		logger: logger.WithField("component", "storage"),
	}
}

// Connect initializes the S3 client from the AWS config provided to
// [NewClient].
func (c *Client) Connect() error {
	if err := c.opts.validate(); err != nil {
		return fmt.Errorf("invalid S3 options: %w", err)
	}

	if c.opts.s3API != nil {
		c.client = c.opts.s3API
	} else {
		c.client = s3.NewFromConfig(*c.awsCfg, func(o *s3.Options) {
			o.Retryer = retry.AddWithMaxBackoffDelay(o.Retryer, c.opts.maxRetryBackoffDelay)
			o.Retryer = retry.AddWithMaxAttempts(o.Retryer, c.opts.maxRetryAttempts)
		})
	}

	return nil
}

// Verify reads the bucket configuration and returns an error listing every
// difference from spec: default encryption, public access block, versioning,
// lifecycle rules and CORS rules. A missing bucket yields an error wrapping
// [ErrBucketNotFound].
func (c *Client) Verify(ctx context.Context, spec Spec) error {
	if c.client == nil {
		return errors.New("S3 client not connected")
	}

	logger := c.logger.WithField("bucket_name", spec.BucketName)
	logger.Debug("Verifying S3 bucket")

	bucket := aws.String(spec.BucketName)

	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: bucket}); err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return fmt.Errorf("bucket %s: %w", spec.BucketName, ErrBucketNotFound)
		}
		return fmt.Errorf("failed to head bucket %s: %w", spec.BucketName, err)
	}

	err := errors.Join(
		c.verifyEncryption(ctx, spec),
		c.verifyPublicAccessBlock(ctx, spec),
		c.verifyVersioning(ctx, spec),
		c.verifyLifecycle(ctx, spec),
		c.verifyCORS(ctx, spec),
	)
	if err != nil {
		return err
	}

	logger.Info("S3 bucket matches declaration")

	return nil
}

func (c *Client) verifyEncryption(ctx context.Context, spec Spec) error {
	out, err := c.client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: aws.String(spec.BucketName)})
	if err != nil {
		return fmt.Errorf("failed to get encryption of bucket %s: %w", spec.BucketName, err)
	}

	if out.ServerSideEncryptionConfiguration != nil {
		for _, rule := range out.ServerSideEncryptionConfiguration.Rules {
			if d := rule.ApplyServerSideEncryptionByDefault; d != nil && d.SSEAlgorithm == spec.Encryption {
				return nil
			}
		}
	}

	return fmt.Errorf("bucket %s has no default %s encryption", spec.BucketName, spec.Encryption)
}

func (c *Client) verifyPublicAccessBlock(ctx context.Context, spec Spec) error {
	if !spec.BlockPublicAccess {
		return nil
	}

	out, err := c.client.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: aws.String(spec.BucketName)})
	if err != nil {
		return fmt.Errorf("failed to get public access block of bucket %s: %w", spec.BucketName, err)
	}

	cfg := out.PublicAccessBlockConfiguration
	if cfg == nil ||
		!aws.ToBool(cfg.BlockPublicAcls) ||
		!aws.ToBool(cfg.BlockPublicPolicy) ||
		!aws.ToBool(cfg.IgnorePublicAcls) ||
		!aws.ToBool(cfg.RestrictPublicBuckets) {
		return fmt.Errorf("bucket %s does not block all public access", spec.BucketName)
	}

	return nil
}

func (c *Client) verifyVersioning(ctx context.Context, spec Spec) error {
	out, err := c.client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: aws.String(spec.BucketName)})
	if err != nil {
		return fmt.Errorf("failed to get versioning of bucket %s: %w", spec.BucketName, err)
	}

	enabled := out.Status == s3types.BucketVersioningStatusEnabled
	if enabled != spec.Versioned {
		return fmt.Errorf("bucket %s has versioning %q, expected versioned=%t", spec.BucketName, out.Status, spec.Versioned)
	}

	return nil
}

func (c *Client) verifyLifecycle(ctx context.Context, spec Spec) error {
	if len(spec.LifecycleRules) == 0 {
		return nil
	}

	out, err := c.client.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{Bucket: aws.String(spec.BucketName)})
	if err != nil {
		return fmt.Errorf("failed to get lifecycle configuration of bucket %s: %w", spec.BucketName, err)
	}

	var errs []error

	for _, want := range spec.LifecycleRules {
		idx := slices.IndexFunc(out.Rules, func(r s3types.LifecycleRule) bool {
			return aws.ToString(r.ID) == want.ID
		})
		if idx < 0 {
			errs = append(errs, fmt.Errorf("bucket %s is missing lifecycle rule %s", spec.BucketName, want.ID))
			continue
		}

		errs = append(errs, compareLifecycleRule(spec.BucketName, out.Rules[idx], want))
	}

	return errors.Join(errs...)
}

func compareLifecycleRule(bucket string, got s3types.LifecycleRule, want LifecycleRule) error {
	wantStatus := s3types.ExpirationStatusDisabled
	if want.Enabled {
		wantStatus = s3types.ExpirationStatusEnabled
	}

	if got.Status != wantStatus {
		return fmt.Errorf("bucket %s lifecycle rule %s is %s, expected %s", bucket, want.ID, got.Status, wantStatus)
	}

	var gotDays int32
	if got.NoncurrentVersionExpiration != nil {
		gotDays = aws.ToInt32(got.NoncurrentVersionExpiration.NoncurrentDays)
	}

	if gotDays != want.NoncurrentVersionExpirationDays {
		return fmt.Errorf("bucket %s lifecycle rule %s expires non-current versions after %d days, expected %d", bucket, want.ID, gotDays, want.NoncurrentVersionExpirationDays)
	}

	if len(got.Transitions) != len(want.Transitions) {
		return fmt.Errorf("bucket %s lifecycle rule %s has %d transitions, expected %d", bucket, want.ID, len(got.Transitions), len(want.Transitions))
	}

	for _, tr := range want.Transitions {
		found := slices.ContainsFunc(got.Transitions, func(g s3types.Transition) bool {
			return g.StorageClass == tr.StorageClass && aws.ToInt32(g.Days) == tr.AfterDays
		})
		if !found {
			return fmt.Errorf("bucket %s lifecycle rule %s does not transition to %s after %d days", bucket, want.ID, tr.StorageClass, tr.AfterDays)
		}
	}

	return nil
}

func (c *Client) verifyCORS(ctx context.Context, spec Spec) error {
	if len(spec.CORSRules) == 0 {
		return nil
	}

	out, err := c.client.GetBucketCors(ctx, &s3.GetBucketCorsInput{Bucket: aws.String(spec.BucketName)})
	if err != nil {
		return fmt.Errorf("failed to get CORS configuration of bucket %s: %w", spec.BucketName, err)
	}

	for _, want := range spec.CORSRules {
		found := slices.ContainsFunc(out.CORSRules, func(got s3types.CORSRule) bool {
			return sameSet(got.AllowedMethods, want.AllowedMethods) &&
				sameSet(got.AllowedOrigins, want.AllowedOrigins) &&
				sameSet(got.AllowedHeaders, want.AllowedHeaders) &&
				aws.ToInt32(got.MaxAgeSeconds) == want.MaxAgeSeconds
		})
		if !found {
			return fmt.Errorf("bucket %s has no CORS rule for methods %v from origins %v", spec.BucketName, want.AllowedMethods, want.AllowedOrigins)
		}
	}

	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)

	return slices.Equal(x, y)
}

package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readitlater/infrastructure/environment"
	"github.com/readitlater/infrastructure/logging"
)

// mockAPI is a mock implementation of API for testing. Unset funcs return a
// configuration matching spec.
type mockAPI struct {
	spec Spec

	headBucketFunc           func(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	getBucketEncryptionFunc  func(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	getPublicAccessBlockFunc func(ctx context.Context, params *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error)
	getBucketVersioningFunc  func(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error)
	getBucketLifecycleFunc   func(ctx context.Context, params *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error)
	getBucketCorsFunc        func(ctx context.Context, params *s3.GetBucketCorsInput, optFns ...func(*s3.Options)) (*s3.GetBucketCorsOutput, error)
}

func (m *mockAPI) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if m.headBucketFunc != nil {
		return m.headBucketFunc(ctx, params, optFns...)
	}
	return &s3.HeadBucketOutput{}, nil
}

func (m *mockAPI) GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
	if m.getBucketEncryptionFunc != nil {
		return m.getBucketEncryptionFunc(ctx, params, optFns...)
	}
	return &s3.GetBucketEncryptionOutput{
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{
				{ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{SSEAlgorithm: m.spec.Encryption}},
			},
		},
	}, nil
}

func (m *mockAPI) GetPublicAccessBlock(ctx context.Context, params *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error) {
	if m.getPublicAccessBlockFunc != nil {
		return m.getPublicAccessBlockFunc(ctx, params, optFns...)
	}
	return &s3.GetPublicAccessBlockOutput{
		PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
	}, nil
}

func (m *mockAPI) GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
	if m.getBucketVersioningFunc != nil {
		return m.getBucketVersioningFunc(ctx, params, optFns...)
	}
	out := &s3.GetBucketVersioningOutput{}
	if m.spec.Versioned {
		out.Status = s3types.BucketVersioningStatusEnabled
	}
	return out, nil
}

func (m *mockAPI) GetBucketLifecycleConfiguration(ctx context.Context, params *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error) {
	if m.getBucketLifecycleFunc != nil {
		return m.getBucketLifecycleFunc(ctx, params, optFns...)
	}
	return &s3.GetBucketLifecycleConfigurationOutput{Rules: liveRules(m.spec)}, nil
}

func (m *mockAPI) GetBucketCors(ctx context.Context, params *s3.GetBucketCorsInput, optFns ...func(*s3.Options)) (*s3.GetBucketCorsOutput, error) {
	if m.getBucketCorsFunc != nil {
		return m.getBucketCorsFunc(ctx, params, optFns...)
	}
	out := &s3.GetBucketCorsOutput{}
	for _, r := range m.spec.CORSRules {
		out.CORSRules = append(out.CORSRules, s3types.CORSRule{
			// S3 does not preserve order.
			AllowedMethods: []string{"POST", "GET", "PUT"},
			AllowedOrigins: r.AllowedOrigins,
			AllowedHeaders: r.AllowedHeaders,
			MaxAgeSeconds:  aws.Int32(r.MaxAgeSeconds),
		})
	}
	return out, nil
}

func liveRules(spec Spec) []s3types.LifecycleRule {
	var rules []s3types.LifecycleRule

	for _, r := range spec.LifecycleRules {
		rule := s3types.LifecycleRule{
			ID:     aws.String(r.ID),
			Status: s3types.ExpirationStatusDisabled,
		}
		if r.Enabled {
			rule.Status = s3types.ExpirationStatusEnabled
		}
		if r.NoncurrentVersionExpirationDays > 0 {
			rule.NoncurrentVersionExpiration = &s3types.NoncurrentVersionExpiration{
				NoncurrentDays: aws.Int32(r.NoncurrentVersionExpirationDays),
			}
		}
		for _, tr := range r.Transitions {
			rule.Transitions = append(rule.Transitions, s3types.Transition{
				Days:         aws.Int32(tr.AfterDays),
				StorageClass: tr.StorageClass,
			})
		}
		rules = append(rules, rule)
	}

	return rules
}

func mustSpec(t *testing.T, env environment.Name) Spec {
	t.Helper()

	spec, err := SpecFor(env, "123456789012")
	require.NoError(t, err)

	return spec
}

func verify(t *testing.T, api *mockAPI) error {
	t.Helper()

	c := NewClient(&aws.Config{}, logging.Nop(), WithAPI(api))
	require.NoError(t, c.Connect())

	return c.Verify(context.Background(), api.spec)
}

func TestConnect_InvalidOptions(t *testing.T) {
	t.Parallel()

	err := NewClient(&aws.Config{}, logging.Nop(), WithMaxRetryAttempts(-1)).Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid S3 options")
}

func TestVerify_NotConnected(t *testing.T) {
	t.Parallel()

	err := NewClient(&aws.Config{}, logging.Nop()).Verify(context.Background(), mustSpec(t, environment.Dev))
	require.EqualError(t, err, "S3 client not connected")
}

func TestVerify_Matches(t *testing.T) {
	t.Parallel()

	for _, env := range environment.All {
		t.Run(string(env), func(t *testing.T) {
			t.Parallel()

			require.NoError(t, verify(t, &mockAPI{spec: mustSpec(t, env)}))
		})
	}
}

func TestVerify_BucketNotFound(t *testing.T) {
	t.Parallel()

	api := &mockAPI{
		spec: mustSpec(t, environment.Dev),
		headBucketFunc: func(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
			return nil, &s3types.NotFound{}
		},
	}

	err := verify(t, api)
	require.ErrorIs(t, err, ErrBucketNotFound)
}

func TestVerify_HeadBucketError(t *testing.T) {
	t.Parallel()

	api := &mockAPI{
		spec: mustSpec(t, environment.Dev),
		headBucketFunc: func(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
			return nil, errors.New("access denied")
		},
	}

	err := verify(t, api)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBucketNotFound)
	assert.Contains(t, err.Error(), "failed to head bucket read-it-later-content-dev-123456789012: access denied")
}

func TestVerify_Drift(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     environment.Name
		mutate  func(*mockAPI)
		wantErr string
	}{
		{
			name: "kms instead of s3 managed",
			env:  environment.Dev,
			mutate: func(m *mockAPI) {
				m.getBucketEncryptionFunc = func(_ context.Context, _ *s3.GetBucketEncryptionInput, _ ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
					return &s3.GetBucketEncryptionOutput{
						ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
							Rules: []s3types.ServerSideEncryptionRule{
								{ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{SSEAlgorithm: s3types.ServerSideEncryptionAwsKms}},
							},
						},
					}, nil
				}
			},
			wantErr: "has no default AES256 encryption",
		},
		{
			name: "public policy allowed",
			env:  environment.Dev,
			mutate: func(m *mockAPI) {
				m.getPublicAccessBlockFunc = func(_ context.Context, _ *s3.GetPublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error) {
					return &s3.GetPublicAccessBlockOutput{
						PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
							BlockPublicAcls:       aws.Bool(true),
							BlockPublicPolicy:     aws.Bool(false),
							IgnorePublicAcls:      aws.Bool(true),
							RestrictPublicBuckets: aws.Bool(true),
						},
					}, nil
				}
			},
			wantErr: "does not block all public access",
		},
		{
			name: "prod bucket suspended",
			env:  environment.Prod,
			mutate: func(m *mockAPI) {
				m.getBucketVersioningFunc = func(_ context.Context, _ *s3.GetBucketVersioningInput, _ ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
					return &s3.GetBucketVersioningOutput{Status: s3types.BucketVersioningStatusSuspended}, nil
				}
			},
			wantErr: `has versioning "Suspended", expected versioned=true`,
		},
		{
			name: "missing lifecycle rule",
			env:  environment.Dev,
			mutate: func(m *mockAPI) {
				m.getBucketLifecycleFunc = func(_ context.Context, _ *s3.GetBucketLifecycleConfigurationInput, _ ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error) {
					return &s3.GetBucketLifecycleConfigurationOutput{Rules: liveRules(m.spec)[:1]}, nil
				}
			},
			wantErr: "is missing lifecycle rule TransitionToIA",
		},
		{
			name: "transition rule enabled outside prod",
			env:  environment.Staging,
			mutate: func(m *mockAPI) {
				m.getBucketLifecycleFunc = func(_ context.Context, _ *s3.GetBucketLifecycleConfigurationInput, _ ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error) {
					rules := liveRules(m.spec)
					rules[1].Status = s3types.ExpirationStatusEnabled
					return &s3.GetBucketLifecycleConfigurationOutput{Rules: rules}, nil
				}
			},
			wantErr: "lifecycle rule TransitionToIA is Enabled, expected Disabled",
		},
		{
			name: "version expiry changed",
			env:  environment.Prod,
			mutate: func(m *mockAPI) {
				m.getBucketLifecycleFunc = func(_ context.Context, _ *s3.GetBucketLifecycleConfigurationInput, _ ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error) {
					rules := liveRules(m.spec)
					rules[0].NoncurrentVersionExpiration.NoncurrentDays = aws.Int32(30)
					return &s3.GetBucketLifecycleConfigurationOutput{Rules: rules}, nil
				}
			},
			wantErr: "expires non-current versions after 30 days, expected 90",
		},
		{
			name: "glacier transition moved",
			env:  environment.Prod,
			mutate: func(m *mockAPI) {
				m.getBucketLifecycleFunc = func(_ context.Context, _ *s3.GetBucketLifecycleConfigurationInput, _ ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error) {
					rules := liveRules(m.spec)
					rules[1].Transitions[1].Days = aws.Int32(365)
					return &s3.GetBucketLifecycleConfigurationOutput{Rules: rules}, nil
				}
			},
			wantErr: "does not transition to GLACIER after 180 days",
		},
		{
			name: "cors without post",
			env:  environment.Dev,
			mutate: func(m *mockAPI) {
				m.getBucketCorsFunc = func(_ context.Context, _ *s3.GetBucketCorsInput, _ ...func(*s3.Options)) (*s3.GetBucketCorsOutput, error) {
					return &s3.GetBucketCorsOutput{CORSRules: []s3types.CORSRule{{
						AllowedMethods: []string{"GET", "PUT"},
						AllowedOrigins: []string{"*"},
						AllowedHeaders: []string{"*"},
						MaxAgeSeconds:  aws.Int32(3000),
					}}}, nil
				}
			},
			wantErr: "has no CORS rule for methods [GET PUT POST] from origins [*]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := &mockAPI{spec: mustSpec(t, tt.env)}
			tt.mutate(api)

			err := verify(t, api)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVerify_ReportsAllDifferences(t *testing.T) {
	t.Parallel()

	api := &mockAPI{spec: mustSpec(t, environment.Prod)}
	api.getBucketVersioningFunc = func(_ context.Context, _ *s3.GetBucketVersioningInput, _ ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
		return &s3.GetBucketVersioningOutput{}, nil
	}
	api.getBucketCorsFunc = func(_ context.Context, _ *s3.GetBucketCorsInput, _ ...func(*s3.Options)) (*s3.GetBucketCorsOutput, error) {
		return nil, errors.New("NoSuchCORSConfiguration")
	}

	err := verify(t, api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected versioned=true")
	assert.Contains(t, err.Error(), "failed to get CORS configuration")
}

package storage

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// ComponentType is the Pulumi type token of [Storage].
const ComponentType = "readitlater:storage:Storage"

// Storage is the Pulumi component that owns the content bucket and its
// configuration resources.
type Storage struct {
	pulumi.ResourceState

	Bucket *s3.BucketV2

	ContentBucketName pulumi.StringOutput
	ContentBucketArn  pulumi.StringOutput
}

// New registers the bucket described by spec as children of a [Storage]
// component called name.
func New(ctx *pulumi.Context, name string, spec Spec, opts ...pulumi.ResourceOption) (*Storage, error) {
	st := &Storage{}

	if err := ctx.RegisterComponentResource(ComponentType, name, st, opts...); err != nil {
		return nil, err
	}

	bucketOpts := []pulumi.ResourceOption{pulumi.Parent(st)}
	if spec.RetainOnDelete {
		bucketOpts = append(bucketOpts, pulumi.RetainOnDelete(true))
	}

	bucket, err := s3.NewBucketV2(ctx, "ContentBucket", &s3.BucketV2Args{
		Bucket:       pulumi.String(spec.BucketName),
		ForceDestroy: pulumi.Bool(spec.AutoDeleteObjects),
	}, bucketOpts...)
	if err != nil {
		return nil, err
	}

	child := []pulumi.ResourceOption{pulumi.Parent(bucket)}

	_, err = s3.NewBucketServerSideEncryptionConfigurationV2(ctx, "ContentBucketEncryption", &s3.BucketServerSideEncryptionConfigurationV2Args{
		Bucket: bucket.Bucket,
		Rules: s3.BucketServerSideEncryptionConfigurationV2RuleArray{
			&s3.BucketServerSideEncryptionConfigurationV2RuleArgs{
				ApplyServerSideEncryptionByDefault: &s3.BucketServerSideEncryptionConfigurationV2RuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm: pulumi.String(string(spec.Encryption)),
				},
			},
		},
	}, child...)
	if err != nil {
		return nil, err
	}

	if spec.BlockPublicAccess {
		_, err = s3.NewBucketPublicAccessBlock(ctx, "ContentBucketPublicAccessBlock", &s3.BucketPublicAccessBlockArgs{
			Bucket:                bucket.Bucket,
			BlockPublicAcls:       pulumi.Bool(true),
			BlockPublicPolicy:     pulumi.Bool(true),
			IgnorePublicAcls:      pulumi.Bool(true),
			RestrictPublicBuckets: pulumi.Bool(true),
		}, child...)
		if err != nil {
			return nil, err
		}
	}

	lifecycleOpts := child
	if spec.Versioned {
		versioning, err := s3.NewBucketVersioningV2(ctx, "ContentBucketVersioning", &s3.BucketVersioningV2Args{
			Bucket: bucket.Bucket,
			VersioningConfiguration: &s3.BucketVersioningV2VersioningConfigurationArgs{
				Status: pulumi.String("Enabled"),
			},
		}, child...)
		if err != nil {
			return nil, err
		}

		// Lifecycle rules on versions must see versioning first.
		lifecycleOpts = append(lifecycleOpts, pulumi.DependsOn([]pulumi.Resource{versioning}))
	}

	if len(spec.LifecycleRules) > 0 {
		_, err = s3.NewBucketLifecycleConfigurationV2(ctx, "ContentBucketLifecycle", &s3.BucketLifecycleConfigurationV2Args{
			Bucket: bucket.Bucket,
			Rules:  lifecycleRules(spec.LifecycleRules),
		}, lifecycleOpts...)
		if err != nil {
			return nil, err
		}
	}

	if len(spec.CORSRules) > 0 {
		_, err = s3.NewBucketCorsConfigurationV2(ctx, "ContentBucketCors", &s3.BucketCorsConfigurationV2Args{
			Bucket:    bucket.Bucket,
			CorsRules: corsRules(spec.CORSRules),
		}, child...)
		if err != nil {
			return nil, err
		}
	}

	st.Bucket = bucket
	st.ContentBucketName = bucket.Bucket
	st.ContentBucketArn = bucket.Arn

	if err := ctx.RegisterResourceOutputs(st, pulumi.Map{
		"contentBucketName": st.ContentBucketName,
		"contentBucketArn":  st.ContentBucketArn,
	}); err != nil {
		return nil, err
	}

	return st, nil
}

// Outputs returns the values exported for other stacks, keyed by export key.
func (st *Storage) Outputs() map[string]pulumi.StringOutput {
	return map[string]pulumi.StringOutput{
		"ContentBucketName": st.ContentBucketName,
		"ContentBucketArn":  st.ContentBucketArn,
	}
}

func lifecycleRules(rules []LifecycleRule) s3.BucketLifecycleConfigurationV2RuleArray {
	out := s3.BucketLifecycleConfigurationV2RuleArray{}

	for _, r := range rules {
		status := "Disabled"
		if r.Enabled {
			status = "Enabled"
		}

		args := &s3.BucketLifecycleConfigurationV2RuleArgs{
			Id:     pulumi.String(r.ID),
			Status: pulumi.String(status),
			Filter: &s3.BucketLifecycleConfigurationV2RuleFilterArgs{},
		}

		if r.NoncurrentVersionExpirationDays > 0 {
			args.NoncurrentVersionExpiration = &s3.BucketLifecycleConfigurationV2RuleNoncurrentVersionExpirationArgs{
				NoncurrentDays: pulumi.Int(int(r.NoncurrentVersionExpirationDays)),
			}
		}

		if len(r.Transitions) > 0 {
			transitions := s3.BucketLifecycleConfigurationV2RuleTransitionArray{}
			for _, tr := range r.Transitions {
				transitions = append(transitions, &s3.BucketLifecycleConfigurationV2RuleTransitionArgs{
					Days:         pulumi.Int(int(tr.AfterDays)),
					StorageClass: pulumi.String(string(tr.StorageClass)),
				})
			}
			args.Transitions = transitions
		}

		out = append(out, args)
	}

	return out
}

func corsRules(rules []CORSRule) s3.BucketCorsConfigurationV2CorsRuleArray {
	out := s3.BucketCorsConfigurationV2CorsRuleArray{}

	for _, r := range rules {
		out = append(out, &s3.BucketCorsConfigurationV2CorsRuleArgs{
			AllowedMethods: pulumi.ToStringArray(r.AllowedMethods),
			AllowedOrigins: pulumi.ToStringArray(r.AllowedOrigins),
			AllowedHeaders: pulumi.ToStringArray(r.AllowedHeaders),
			MaxAgeSeconds:  pulumi.Int(int(r.MaxAgeSeconds)),
		})
	}

	return out
}

package storage

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/readitlater/infrastructure/environment"
)

const (
	// RuleDeleteOldVersions is the ID of the non-current version expiry rule.
	RuleDeleteOldVersions = "DeleteOldVersions"

	// RuleTransitionToIA is the ID of the storage class transition rule.
	RuleTransitionToIA = "TransitionToIA"
)

var (
	bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	accountPattern    = regexp.MustCompile(`^[0-9]{12}$`)
)

// Transition moves objects to StorageClass once they are AfterDays old.
type Transition struct {
	StorageClass s3types.TransitionStorageClass
	AfterDays    int32
}

// LifecycleRule is one bucket lifecycle rule applying to every object.
// NoncurrentVersionExpirationDays of zero means no version expiry.
type LifecycleRule struct {
	ID                              string
	Enabled                         bool
	NoncurrentVersionExpirationDays int32
	Transitions                     []Transition
}

// CORSRule is a cross-origin access rule.
type CORSRule struct {
	AllowedMethods []string
	AllowedOrigins []string
	AllowedHeaders []string
	MaxAgeSeconds  int32
}

// Spec is the full set of parameters of the content bucket in one
// environment.
type Spec struct {
	Environment       environment.Name
	BucketName        string
	Encryption        s3types.ServerSideEncryption
	BlockPublicAccess bool
	Versioned         bool
	RetainOnDelete    bool
	AutoDeleteObjects bool
	LifecycleRules    []LifecycleRule
	CORSRules         []CORSRule
}

// Option is a functional option for [SpecFor].
type Option func(*Options)

// Options holds the overridable parameters of a [Spec].
type Options struct {
	bucketName                      string
	versioned                       *bool
	corsOrigins                     []string
	corsMaxAgeSeconds               int32
	noncurrentVersionExpirationDays int32
}

func newOptions() *Options {
	return &Options{
		corsOrigins:                     []string{"*"},
		corsMaxAgeSeconds:               3000,
		noncurrentVersionExpirationDays: 90,
	}
}

func (o *Options) validate() error {
	if o.bucketName != "" && !bucketNamePattern.MatchString(o.bucketName) {
		return fmt.Errorf("bucket name %q is not a valid S3 bucket name", o.bucketName)
	}

	if len(o.corsOrigins) == 0 {
		return errors.New("at least one CORS origin is required")
	}

	for _, origin := range o.corsOrigins {
		if origin == "" {
			return errors.New("CORS origin cannot be empty")
		}
	}

	if o.corsMaxAgeSeconds < 0 {
		return errors.New("CORS max age cannot be negative")
	}

	if o.noncurrentVersionExpirationDays < 1 {
		return errors.New("non-current version expiration must be at least 1 day")
	}

	return nil
}

// WithBucketName overrides the default bucket name
// read-it-later-content-<env>-<account>.
func WithBucketName(name string) Option {
	return func(o *Options) {
		o.bucketName = name
	}
}

// WithVersioning overrides the environment default (versioned in prod only).
func WithVersioning(enabled bool) Option {
	return func(o *Options) {
		o.versioned = &enabled
	}
}

// WithCORSOrigins restricts the origins allowed to access the bucket from a
// browser. Default: "*".
func WithCORSOrigins(origins ...string) Option {
	return func(o *Options) {
		o.corsOrigins = origins
	}
}

// WithCORSMaxAge sets how long browsers may cache preflight responses.
// Default: 3000 seconds.
func WithCORSMaxAge(seconds int32) Option {
	return func(o *Options) {
		o.corsMaxAgeSeconds = seconds
	}
}

// WithNoncurrentVersionExpiration sets after how many days non-current
// object versions expire. Default: 90.
func WithNoncurrentVersionExpiration(days int32) Option {
	return func(o *Options) {
		o.noncurrentVersionExpirationDays = days
	}
}

// SpecFor returns the content bucket parameters for env in account. The
// account is part of the bucket name because bucket names are global.
func SpecFor(env environment.Name, account string, opts ...Option) (Spec, error) {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	if err := options.validate(); err != nil {
		return Spec{}, fmt.Errorf("invalid storage options: %w", err)
	}

	name := options.bucketName
	if name == "" {
		if !accountPattern.MatchString(account) {
			return Spec{}, fmt.Errorf("invalid AWS account ID %q", account)
		}
		name = env.ResourceName("content") + "-" + account
	}

	versioned := env.IsProd()
	if options.versioned != nil {
		versioned = *options.versioned
	}

	return Spec{
		Environment:       env,
		BucketName:        name,
		Encryption:        s3types.ServerSideEncryptionAes256,
		BlockPublicAccess: true,
		Versioned:         versioned,
		RetainOnDelete:    env.IsProd(),
		AutoDeleteObjects: !env.IsProd(),
		LifecycleRules: []LifecycleRule{
			{
				ID:                              RuleDeleteOldVersions,
				Enabled:                         true,
				NoncurrentVersionExpirationDays: options.noncurrentVersionExpirationDays,
			},
			{
				ID:      RuleTransitionToIA,
				Enabled: env.IsProd(),
				Transitions: []Transition{
					{StorageClass: s3types.TransitionStorageClassStandardIa, AfterDays: 90},
					{StorageClass: s3types.TransitionStorageClassGlacier, AfterDays: 180},
				},
			},
		},
		CORSRules: []CORSRule{
			{
				AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost},
				AllowedOrigins: options.corsOrigins,
				AllowedHeaders: []string{"*"},
				MaxAgeSeconds:  options.corsMaxAgeSeconds,
			},
		},
	}, nil
}

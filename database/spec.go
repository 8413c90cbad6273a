package database

import (
	"errors"
	"fmt"
	"regexp"
	"slices"

	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/readitlater/infrastructure/environment"
)

const (
	// PartitionKey is the table partition key attribute name.
	PartitionKey = "PK"

	// SortKey is the table sort key attribute name.
	SortKey = "SK"

	// TTLAttr is the default attribute used for TTL-based expiration.
	TTLAttr = "ttl"

	// GSI1 serves status-based queries.
	GSI1 = "GSI1"

	// GSI2 serves date-based queries.
	GSI2 = "GSI2"

	// GSI3 serves tag-based queries and search.
	GSI3 = "GSI3"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,255}$`)

// Index is a Global Secondary Index with string partition and sort keys.
type Index struct {
	Name           string
	PartitionKey   string
	SortKey        string
	ProjectionType dynamodbtypes.ProjectionType
}

// Spec is the full set of parameters of the table in one environment.
type Spec struct {
	Environment         environment.Name
	TableName           string
	PartitionKey        string
	SortKey             string
	BillingMode         dynamodbtypes.BillingMode
	StreamViewType      dynamodbtypes.StreamViewType
	TimeToLiveAttribute string
	PointInTimeRecovery bool
	RetainOnDelete      bool
	Indexes             []Index
}

// KeyAttributes returns every attribute that appears in the primary key or an
// index key, in declaration order and without duplicates. All are strings.
func (s Spec) KeyAttributes() []string {
	attrs := []string{s.PartitionKey, s.SortKey}

	for _, idx := range s.Indexes {
		for _, a := range []string{idx.PartitionKey, idx.SortKey} {
			if a != "" && !slices.Contains(attrs, a) {
				attrs = append(attrs, a)
			}
		}
	}

	return attrs
}

// Option is a functional option for [SpecFor].
type Option func(*Options)

// Options holds the overridable parameters of a [Spec]. Use [Option]
// functions to customise the environment defaults.
type Options struct {
	tableName           string
	pointInTimeRecovery *bool
	streamViewType      dynamodbtypes.StreamViewType
	timeToLiveAttribute string
}

func newOptions() *Options {
	return &Options{
		streamViewType:      dynamodbtypes.StreamViewTypeNewAndOldImages,
		timeToLiveAttribute: TTLAttr,
	}
}

func (o *Options) validate() error {
	if o.tableName != "" && !tableNamePattern.MatchString(o.tableName) {
		return fmt.Errorf("table name %q must be 3-255 characters of [a-zA-Z0-9_.-]", o.tableName)
	}

	if !slices.Contains(o.streamViewType.Values(), o.streamViewType) {
		return fmt.Errorf("unknown stream view type %q", o.streamViewType)
	}

	if o.timeToLiveAttribute == "" {
		return errors.New("time to live attribute cannot be empty")
	}

	return nil
}

// WithTableName overrides the default table name read-it-later-<env>.
func WithTableName(name string) Option {
	return func(o *Options) {
		o.tableName = name
	}
}

// WithPointInTimeRecovery overrides the environment default (enabled in prod
// only).
func WithPointInTimeRecovery(enabled bool) Option {
	return func(o *Options) {
		o.pointInTimeRecovery = &enabled
	}
}

// WithStreamViewType sets the change stream view type. Default:
// NEW_AND_OLD_IMAGES.
func WithStreamViewType(t dynamodbtypes.StreamViewType) Option {
	return func(o *Options) {
		o.streamViewType = t
	}
}

// WithTimeToLiveAttribute sets the TTL attribute name. Default: "ttl".
func WithTimeToLiveAttribute(attr string) Option {
	return func(o *Options) {
		o.timeToLiveAttribute = attr
	}
}

// SpecFor returns the table parameters for env.
func SpecFor(env environment.Name, opts ...Option) (Spec, error) {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	if err := options.validate(); err != nil {
		return Spec{}, fmt.Errorf("invalid database options: %w", err)
	}

	spec := Spec{
		Environment:         env,
		TableName:           env.ResourceName(),
		PartitionKey:        PartitionKey,
		SortKey:             SortKey,
		BillingMode:         dynamodbtypes.BillingModePayPerRequest,
		StreamViewType:      options.streamViewType,
		TimeToLiveAttribute: options.timeToLiveAttribute,
		PointInTimeRecovery: env.IsProd(),
		RetainOnDelete:      env.IsProd(),
		Indexes: []Index{
			newIndex(GSI1),
			newIndex(GSI2),
			newIndex(GSI3),
		},
	}

	if options.tableName != "" {
		spec.TableName = options.tableName
	}

	if options.pointInTimeRecovery != nil {
		spec.PointInTimeRecovery = *options.pointInTimeRecovery
	}

	if slices.Contains(spec.KeyAttributes(), spec.TimeToLiveAttribute) {
		return Spec{}, fmt.Errorf("invalid database options: time to live attribute %s is a key attribute", spec.TimeToLiveAttribute)
	}

	return spec, nil
}

func newIndex(name string) Index {
	return Index{
		Name:           name,
		PartitionKey:   name + "PK",
		SortKey:        name + "SK",
		ProjectionType: dynamodbtypes.ProjectionTypeAll,
	}
}

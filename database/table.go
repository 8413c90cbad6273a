package database

import (
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/dynamodb"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

// ComponentType is the Pulumi type token of [Database].
const ComponentType = "readitlater:database:Database"

// Database is the Pulumi component that owns the table.
type Database struct {
	pulumi.ResourceState

	Table *dynamodb.Table

	TableName      pulumi.StringOutput
	TableArn       pulumi.StringOutput
	TableStreamArn pulumi.StringOutput
}

// New registers the table described by spec as children of a [Database]
// component called name.
func New(ctx *pulumi.Context, name string, spec Spec, opts ...pulumi.ResourceOption) (*Database, error) {
	d := &Database{}

	if err := ctx.RegisterComponentResource(ComponentType, name, d, opts...); err != nil {
		return nil, err
	}

	attrs := dynamodb.TableAttributeArray{}
	for _, a := range spec.KeyAttributes() {
		attrs = append(attrs, &dynamodb.TableAttributeArgs{
			Name: pulumi.String(a),
			Type: pulumi.String("S"),
		})
	}

	indexes := dynamodb.TableGlobalSecondaryIndexArray{}
	for _, idx := range spec.Indexes {
		indexes = append(indexes, &dynamodb.TableGlobalSecondaryIndexArgs{
			Name:           pulumi.String(idx.Name),
			HashKey:        pulumi.String(idx.PartitionKey),
			RangeKey:       pulumi.String(idx.SortKey),
			ProjectionType: pulumi.String(string(idx.ProjectionType)),
		})
	}

	args := &dynamodb.TableArgs{
		Name:                   pulumi.String(spec.TableName),
		HashKey:                pulumi.String(spec.PartitionKey),
		RangeKey:               pulumi.String(spec.SortKey),
		BillingMode:            pulumi.String(string(spec.BillingMode)),
		Attributes:             attrs,
		GlobalSecondaryIndexes: indexes,
		PointInTimeRecovery: &dynamodb.TablePointInTimeRecoveryArgs{
			Enabled: pulumi.Bool(spec.PointInTimeRecovery),
		},
		// No KMS key ARN selects the AWS-managed key.
		ServerSideEncryption: &dynamodb.TableServerSideEncryptionArgs{
			Enabled: pulumi.Bool(true),
		},
		Ttl: &dynamodb.TableTtlArgs{
			AttributeName: pulumi.String(spec.TimeToLiveAttribute),
			Enabled:       pulumi.Bool(true),
		},
	}

	if spec.StreamViewType != "" {
		args.StreamEnabled = pulumi.Bool(true)
		args.StreamViewType = pulumi.String(string(spec.StreamViewType))
	}

	tableOpts := []pulumi.ResourceOption{pulumi.Parent(d)}
	if spec.RetainOnDelete {
		tableOpts = append(tableOpts, pulumi.RetainOnDelete(true))
	}

	table, err := dynamodb.NewTable(ctx, "ReadItLaterTable", args, tableOpts...)
	if err != nil {
		return nil, err
	}

	d.Table = table
	d.TableName = table.Name
	d.TableArn = table.Arn
	d.TableStreamArn = table.StreamArn.ApplyT(func(arn string) string {
		if arn == "" {
			return "N/A"
		}
		return arn
	}).(pulumi.StringOutput)

	if err := ctx.RegisterResourceOutputs(d, pulumi.Map{
		"tableName":      d.TableName,
		"tableArn":       d.TableArn,
		"tableStreamArn": d.TableStreamArn,
	}); err != nil {
		return nil, err
	}

	return d, nil
}

// Outputs returns the values exported for other stacks, keyed by export key.
func (d *Database) Outputs() map[string]pulumi.StringOutput {
	return map[string]pulumi.StringOutput{
		"TableName":      d.TableName,
		"TableArn":       d.TableArn,
		"TableStreamArn": d.TableStreamArn,
	}
}

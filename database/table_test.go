package database_test

import (
	"testing"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readitlater/infrastructure/database"
	"github.com/readitlater/infrastructure/environment"
	"github.com/readitlater/infrastructure/internal/pulumimock"
)

const tableType = "aws:dynamodb/table:Table"

func declare(t *testing.T, env environment.Name, opts ...database.Option) (*pulumimock.Monitor, map[string]string) {
	t.Helper()

	spec, err := database.SpecFor(env, opts...)
	require.NoError(t, err)

	mon := pulumimock.New()
	outputs := make(chan map[string]string, 1)

	err = pulumimock.Run(mon, string(env), func(ctx *pulumi.Context) error {
		db, err := database.New(ctx, env.StackName("Database"), spec)
		if err != nil {
			return err
		}

		pulumi.All(db.TableName, db.TableArn, db.TableStreamArn).ApplyT(func(all []any) error {
			outputs <- map[string]string{
				"TableName":      all[0].(string),
				"TableArn":       all[1].(string),
				"TableStreamArn": all[2].(string),
			}
			return nil
		})

		return nil
	})
	require.NoError(t, err)

	return mon, <-outputs
}

func TestNew_DeclaresTable(t *testing.T) {
	t.Parallel()

	mon, _ := declare(t, environment.Dev)

	tables := mon.ByType(tableType)
	require.Len(t, tables, 1)
	assert.Equal(t, "ReadItLaterTable", tables[0].Name)
	assert.False(t, tables[0].RetainOnDelete)

	in := tables[0].Values()
	assert.Equal(t, "read-it-later-dev", in["name"])
	assert.Equal(t, "PK", in["hashKey"])
	assert.Equal(t, "SK", in["rangeKey"])
	assert.Equal(t, "PAY_PER_REQUEST", in["billingMode"])
	assert.Equal(t, true, in["streamEnabled"])
	assert.Equal(t, "NEW_AND_OLD_IMAGES", in["streamViewType"])
	assert.Equal(t, map[string]any{"enabled": true}, in["serverSideEncryption"])
	assert.Equal(t, map[string]any{"enabled": false}, in["pointInTimeRecovery"])
	assert.Equal(t, map[string]any{"attributeName": "ttl", "enabled": true}, in["ttl"])

	attrs, ok := in["attributes"].([]any)
	require.True(t, ok)
	assert.Len(t, attrs, 8)
	for _, a := range attrs {
		assert.Equal(t, "S", a.(map[string]any)["type"])
	}

	gsis, ok := in["globalSecondaryIndexes"].([]any)
	require.True(t, ok)
	require.Len(t, gsis, 3)
	assert.Equal(t, map[string]any{
		"name":           "GSI2",
		"hashKey":        "GSI2PK",
		"rangeKey":       "GSI2SK",
		"projectionType": "ALL",
	}, gsis[1])
}

func TestNew_ProdEnablesRecovery(t *testing.T) {
	t.Parallel()

	mon, _ := declare(t, environment.Prod)

	tables := mon.ByType(tableType)
	require.Len(t, tables, 1)
	assert.True(t, tables[0].RetainOnDelete)

	in := tables[0].Values()
	assert.Equal(t, "read-it-later-prod", in["name"])
	assert.Equal(t, map[string]any{"enabled": true}, in["pointInTimeRecovery"])
}

func TestNew_RegistersComponent(t *testing.T) {
	t.Parallel()

	mon, _ := declare(t, environment.Staging)

	component, ok := mon.Find(database.ComponentType, "ReadItLater-Database-staging")
	require.True(t, ok)
	assert.False(t, component.Custom)
}

func TestNew_Outputs(t *testing.T) {
	t.Parallel()

	_, outputs := declare(t, environment.Dev)

	assert.Equal(t, "read-it-later-dev", outputs["TableName"])
	assert.Equal(t, "arn:aws:dynamodb:us-east-1:123456789012:table/read-it-later-dev", outputs["TableArn"])
	assert.Equal(t, "arn:aws:dynamodb:us-east-1:123456789012:table/read-it-later-dev/stream/2026-01-01T00:00:00.000", outputs["TableStreamArn"])
}

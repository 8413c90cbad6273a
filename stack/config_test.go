package stack_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readitlater/infrastructure/environment"
	"github.com/readitlater/infrastructure/stack"
)

func clearEnv(t *testing.T) {
	t.Helper()

	for _, k := range []string{"READITLATER_ENVIRONMENT", "READITLATER_ACCOUNT", "AWS_REGION", "AWS_DEFAULT_REGION"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := stack.Load("")
	require.NoError(t, err)
	assert.Equal(t, &stack.Config{Environment: environment.Dev, Region: "us-east-1"}, cfg)

	cfg, err = stack.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, environment.Dev, cfg.Environment)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "readitlater.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: prod
account: "123456789012"
region: eu-west-1
corsOrigins:
  - https://app.example.com
alertEmail: ops@example.com
alarms: false
`), 0o600))

	cfg, err := stack.Load(path)
	require.NoError(t, err)

	assert.Equal(t, environment.Prod, cfg.Environment)
	assert.Equal(t, "123456789012", cfg.Account)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "ops@example.com", cfg.AlertEmail)
	require.NotNil(t, cfg.Alarms)
	assert.False(t, *cfg.Alarms)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "readitlater.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: dev\nregion: eu-west-1\n"), 0o600))

	t.Setenv("READITLATER_ENVIRONMENT", "staging")
	t.Setenv("READITLATER_ACCOUNT", "210987654321")
	t.Setenv("AWS_DEFAULT_REGION", "eu-central-1")

	cfg, err := stack.Load(path)
	require.NoError(t, err)
	assert.Equal(t, environment.Staging, cfg.Environment)
	assert.Equal(t, "210987654321", cfg.Account)
	assert.Equal(t, "eu-central-1", cfg.Region)

	t.Setenv("AWS_REGION", "ap-southeast-2")

	cfg, err = stack.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", cfg.Region)
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "readitlater.yaml")
	require.NoError(t, os.WriteFile(path, []byte("corsOrigins: {not: [a list"), 0o600))

	_, err := stack.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("empty environment selects dev", func(t *testing.T) {
		t.Parallel()

		cfg := &stack.Config{}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, environment.Dev, cfg.Environment)
		assert.Equal(t, stack.DefaultRegion, cfg.Region)
	})

	t.Run("invalid environment", func(t *testing.T) {
		t.Parallel()

		cfg := &stack.Config{Environment: "qa"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, "invalid environment: qa. Must be one of: dev, staging, prod", err.Error())
	})

	t.Run("invalid account", func(t *testing.T) {
		t.Parallel()

		cfg := &stack.Config{Environment: environment.Prod, Account: "1234"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `invalid AWS account "1234"`)
	})
}

func TestConfig_Specs(t *testing.T) {
	t.Parallel()

	alarms := true
	cfg := &stack.Config{
		Environment: environment.Staging,
		Region:      "us-east-1",
		CORSOrigins: []string{"https://app.example.com"},
		AlertEmail:  "ops@example.com",
		Alarms:      &alarms,
	}

	db, err := cfg.DatabaseSpec()
	require.NoError(t, err)
	assert.Equal(t, "read-it-later-staging", db.TableName)

	st, err := cfg.StorageSpec("123456789012")
	require.NoError(t, err)
	assert.Equal(t, "read-it-later-content-staging-123456789012", st.BucketName)
	require.Len(t, st.CORSRules, 1)
	assert.Equal(t, []string{"https://app.example.com"}, st.CORSRules[0].AllowedOrigins)

	qs, err := cfg.QueueSpec()
	require.NoError(t, err)
	assert.True(t, qs.Alarms)
	assert.Equal(t, "ops@example.com", qs.AlertEmail)
}

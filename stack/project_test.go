package stack_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/readitlater/infrastructure/stack"
)

func TestProjectDeclaresConfigKeys(t *testing.T) {
	t.Parallel()

	data, err := os.ReadFile("../Pulumi.yaml")
	require.NoError(t, err)

	var project struct {
		Name   string                    `yaml:"name"`
		Config map[string]map[string]any `yaml:"config"`
	}
	require.NoError(t, yaml.Unmarshal(data, &project))

	assert.Equal(t, "read-it-later-anator", project.Name)
	for _, key := range stack.ConfigKeys {
		assert.Contains(t, project.Config, stack.ConfigNamespace+":"+key)
	}
	assert.Len(t, project.Config, len(stack.ConfigKeys))

	assert.Equal(t, "array", project.Config["readitlater:corsOrigins"]["type"])
	assert.Equal(t, "boolean", project.Config["readitlater:alarms"]["type"])
}

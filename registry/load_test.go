package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDefinition = `
initial_state: start
states:
  start:
    action:
      handler: collect
      args:
        source: form
      timeout_ms: 5000
    transitions:
      - event: success
        target: done
      - event: error
        target: escalate
  escalate:
    action:
      handler: notify
  done: {}
context_schema:
  type: object
  required:
    - user_id
`

const jsonDefinition = `{
  "initial_state": "start",
  "states": {
    "start": {
      "action": {"handler": "collect"},
      "transitions": [{"event": "success", "target": "done"}]
    },
    "done": {}
  }
}`

func TestLoadDefinitionBytes_YAML(t *testing.T) {
	def, err := LoadDefinitionBytes("onboarding.yaml", []byte(yamlDefinition))
	require.NoError(t, err)

	assert.Equal(t, "start", def.InitialState)
	require.Len(t, def.States, 3)

	start := def.States["start"]
	require.NotNil(t, start.Action)
	assert.Equal(t, "collect", start.Action.Handler)
	assert.EqualValues(t, 5000, start.Action.TimeoutMs)
	assert.Equal(t, "form", start.Action.Args["source"])

	require.Len(t, start.Transitions, 2)
	assert.Equal(t, "error", start.Transitions[1].Event)
	assert.Equal(t, "escalate", start.Transitions[1].Target)

	assert.Equal(t, "object", def.ContextSchema["type"])
}

func TestLoadDefinitionBytes_JSON(t *testing.T) {
	def, err := LoadDefinitionBytes("onboarding.json", []byte(jsonDefinition))
	require.NoError(t, err)
	assert.Equal(t, "start", def.InitialState)
	assert.Len(t, def.States, 2)
}

func TestLoadDefinitionBytes_BadInput(t *testing.T) {
	_, err := LoadDefinitionBytes("broken.yaml", []byte("::not yaml::"))
	assert.Error(t, err)

	_, err = LoadDefinitionBytes("broken.json", []byte("{"))
	assert.Error(t, err)
}

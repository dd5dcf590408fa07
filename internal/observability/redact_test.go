package observability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactJSON_MasksCredentialKeysAtEveryDepth(t *testing.T) {
	in, _ := json.Marshal(map[string]any{
		"api_key": "sk-live-123",
		"request": map[string]any{
			"model":         "some-model",
			"Authorization": "Bearer abc",
		},
		"messages": []any{
			map[string]any{"role": "user", "content": "what is a transformer?"},
			map[string]any{"access_token": "tok"},
		},
	})

	var out map[string]any
	require.NoError(t, json.Unmarshal(RedactJSON(in), &out))

	assert.Equal(t, "[REDACTED]", out["api_key"])
	request := out["request"].(map[string]any)
	assert.Equal(t, "[REDACTED]", request["Authorization"])
	assert.Equal(t, "some-model", request["model"])

	messages := out["messages"].([]any)
	first := messages[0].(map[string]any)
	assert.Equal(t, "what is a transformer?", first["content"], "prompt text must survive redaction")
	second := messages[1].(map[string]any)
	assert.Equal(t, "[REDACTED]", second["access_token"])
}

func TestRedactJSON_PassesThroughEmptyAndMalformed(t *testing.T) {
	assert.Nil(t, RedactJSON(nil))
	assert.Equal(t, "not json", string(RedactJSON(json.RawMessage("not json"))))
}

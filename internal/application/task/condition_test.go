package task

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCondition(t *testing.T) {
	params := conditionParams(json.RawMessage(`{"findings":2,"repo":{"visibility":"public"}}`), "SUCCEEDED")

	tests := []struct {
		cond string
		want bool
	}{
		{"", true},
		{"  TRUE ", true},
		{"false", false},
		{"findings > 1", true},
		{"findings > 5", false},
		{`scanStatus == "SUCCEEDED"`, true},
		{`[repo.visibility] == "public"`, true},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			got, err := evaluateCondition(tt.cond, params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateCondition_Errors(t *testing.T) {
	_, err := evaluateCondition("findings >", map[string]interface{}{"findings": 1.0})
	assert.Error(t, err)

	_, err = evaluateCondition("findings + 1", map[string]interface{}{"findings": 1.0})
	assert.EqualError(t, err, "condition did not evaluate to boolean")
}

func TestConditionParams_IgnoresInvalidContext(t *testing.T) {
	params := conditionParams(json.RawMessage(`[1,2]`), "FAILED")
	assert.Equal(t, map[string]interface{}{"scanStatus": "FAILED"}, params)
}

package task

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/Knetic/govaluate"
)

// evaluateCondition decides whether a gated stage runs. An empty condition
// runs; "true"/"false" literals short-circuit.
func evaluateCondition(condition string, params map[string]interface{}) (bool, error) {
	cond := strings.TrimSpace(condition)
	if cond == "" {
		return true, nil
	}
	switch strings.ToLower(cond) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	expr, err := govaluate.NewEvaluableExpression(cond)
	if err != nil {
		return false, err
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	v, ok := result.(bool)
	if !ok {
		return false, errors.New("condition did not evaluate to boolean")
	}
	return v, nil
}

// conditionParams exposes the task context to conditions, both top-level and
// flattened with dotted keys, plus the outcome of the scan stage.
func conditionParams(contextJSON json.RawMessage, scanStatus string) map[string]interface{} {
	params := map[string]interface{}{"scanStatus": scanStatus}
	if len(contextJSON) == 0 {
		return params
	}
	var m map[string]interface{}
	if err := json.Unmarshal(contextJSON, &m); err != nil {
		return params
	}
	for k, v := range m {
		params[k] = v
	}
	flatten("", m, params)
	return params
}

func flatten(prefix string, m map[string]interface{}, out map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

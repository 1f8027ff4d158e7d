package task

import (
	"github.com/scan-hub/scan-hub/internal/apperr"
	"github.com/scan-hub/scan-hub/internal/domain/engine"
)

// bindings lists the engines permitted per task type. Order matters: the
// first entry is the default when no engine is requested. Types missing
// from the table accept any engine name.
var bindings = map[Type][]string{
	TypeCodeCheck:   {engine.Semgrep},
	TypeSCACheck:    {engine.Trivy, engine.Grype},
	TypeSecretCheck: {engine.Gitleaks},
}

// AllowedEngines returns the engines bound to taskType. An empty result means
// the type is unrestricted.
func AllowedEngines(taskType Type) []string {
	allowed := bindings[taskType]
	out := make([]string, len(allowed))
	copy(out, allowed)
	return out
}

// ResolveEngine pins a task to an engine. Unbound types pass requested through
// verbatim, including nil.
func ResolveEngine(taskType Type, requested *string) (*string, error) {
	allowed := bindings[taskType]
	if len(allowed) == 0 {
		return requested, nil
	}
	if requested == nil {
		def := allowed[0]
		return &def, nil
	}
	for _, e := range allowed {
		if e == *requested {
			return requested, nil
		}
	}
	return nil, apperr.Validation("engine %s is not allowed for task type %s", *requested, taskType)
}

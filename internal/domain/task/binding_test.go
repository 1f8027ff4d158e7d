package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-hub/scan-hub/internal/apperr"
)

func strPtr(s string) *string { return &s }

func TestAllowedEngines(t *testing.T) {
	assert.Equal(t, []string{"semgrep"}, AllowedEngines(TypeCodeCheck))
	assert.Equal(t, []string{"trivy", "grype"}, AllowedEngines(TypeSCACheck))
	assert.Empty(t, AllowedEngines(TypeAIReview))
	assert.Empty(t, AllowedEngines(Type("UNKNOWN")))

	// callers cannot mutate the table through the returned slice
	got := AllowedEngines(TypeSCACheck)
	got[0] = "grype"
	assert.Equal(t, "trivy", AllowedEngines(TypeSCACheck)[0])
}

func TestResolveEngine_DefaultIsDeterministicMember(t *testing.T) {
	for taskType, allowed := range bindings {
		for i := 0; i < 3; i++ {
			got, err := ResolveEngine(taskType, nil)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Contains(t, allowed, *got)
			assert.Equal(t, allowed[0], *got)
		}
	}
}

func TestResolveEngine_BoundTypes(t *testing.T) {
	tests := []struct {
		name      string
		taskType  Type
		requested string
		wantErr   bool
	}{
		{"sca member trivy", TypeSCACheck, "trivy", false},
		{"sca member grype", TypeSCACheck, "grype", false},
		{"sca non member", TypeSCACheck, "semgrep", true},
		{"code member", TypeCodeCheck, "semgrep", false},
		{"code non member", TypeCodeCheck, "eslint", true},
		{"secret non member", TypeSecretCheck, "trivy", true},
		{"case sensitive", TypeCodeCheck, "Semgrep", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := strPtr(tt.requested)
			got, err := ResolveEngine(tt.taskType, req)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsValidation(err))
				assert.Contains(t, err.Error(), tt.requested)
				assert.Contains(t, err.Error(), string(tt.taskType))
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Same(t, req, got)
		})
	}
}

func TestResolveEngine_UnboundPassthrough(t *testing.T) {
	got, err := ResolveEngine(TypeAIReview, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	req := strPtr("anything-goes")
	got, err = ResolveEngine(Type("CUSTOM"), req)
	require.NoError(t, err)
	assert.Same(t, req, got)
}

func TestResolveEngine_EndToEndExamples(t *testing.T) {
	got, err := ResolveEngine(TypeSCACheck, nil)
	require.NoError(t, err)
	assert.Equal(t, "trivy", *got)

	_, err = ResolveEngine(TypeCodeCheck, strPtr("eslint"))
	assert.True(t, apperr.IsValidation(err))
}

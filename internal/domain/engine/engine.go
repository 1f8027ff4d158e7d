package engine

import (
	"context"
	"errors"
	"strings"
)

// Engine identifiers. Adapters register under these lowercase names.
const (
	Trivy    = "trivy"
	Grype    = "grype"
	Semgrep  = "semgrep"
	Gitleaks = "gitleaks"

	// Default is used when a scan request names no engine.
	Default = Trivy
)

// TargetKind tags the variant held by a Target.
type TargetKind string

const (
	TargetPath  TargetKind = "PATH"
	TargetImage TargetKind = "IMAGE"
	TargetSBOM  TargetKind = "SBOM"
)

var ErrInvalidTarget = errors.New("invalid scan target")

// Target is what an engine scans: a filesystem path, a container image
// reference or a pre-built SBOM file.
type Target struct {
	Kind TargetKind `json:"kind"`
	Ref  string     `json:"ref"`
}

func PathTarget(path string) Target   { return Target{Kind: TargetPath, Ref: path} }
func ImageTarget(image string) Target { return Target{Kind: TargetImage, Ref: image} }
func SBOMTarget(path string) Target   { return Target{Kind: TargetSBOM, Ref: path} }

// Validate checks the kind is known and the reference is set. References are
// passed to scanner command lines as positional arguments, so they must not
// look like flags.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetPath, TargetImage, TargetSBOM:
	default:
		return ErrInvalidTarget
	}
	ref := strings.TrimSpace(t.Ref)
	if ref == "" || strings.HasPrefix(ref, "-") {
		return ErrInvalidTarget
	}
	return nil
}

// ScanRequest is the input to an adapter.
type ScanRequest struct {
	Target    Target
	OutputDir string
}

// Artifacts lists the files an adapter produced.
type Artifacts struct {
	FindingsPath        string  `json:"findingsPath"`
	SBOMPath            *string `json:"sbomPath,omitempty"`
	DependencyGraphPath *string `json:"dependencyGraphPath,omitempty"`
}

// AsMap flattens artifacts into the name->reference form used by stage summaries.
func (a Artifacts) AsMap() map[string]string {
	out := map[string]string{"findings": a.FindingsPath}
	if a.SBOMPath != nil {
		out["sbom"] = *a.SBOMPath
	}
	if a.DependencyGraphPath != nil {
		out["dependencyGraph"] = *a.DependencyGraphPath
	}
	return out
}

// Adapter wraps one scanning tool.
type Adapter interface {
	ID() string
	Scan(ctx context.Context, req ScanRequest) (Artifacts, error)
}

package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scan-hub/scan-hub/internal/apperr"
	"github.com/scan-hub/scan-hub/internal/domain/engine"
)

// invocation is one tool run.
type invocation struct {
	args []string
}

type planFunc func(target engine.Target, outDir string) (runs []invocation, artifacts engine.Artifacts)

// cliAdapter runs a command-line scanner through a CommandRunner.
type cliAdapter struct {
	id     string
	binary string
	kinds  map[engine.TargetKind]bool
	plan   planFunc
	runner CommandRunner
}

func (a *cliAdapter) ID() string { return a.id }

func (a *cliAdapter) Scan(ctx context.Context, req engine.ScanRequest) (engine.Artifacts, error) {
	if err := req.Target.Validate(); err != nil {
		return engine.Artifacts{}, apperr.Validation("%s: %v", a.id, err)
	}
	if !a.kinds[req.Target.Kind] {
		return engine.Artifacts{}, apperr.Validation("engine %s cannot scan %s targets", a.id, req.Target.Kind)
	}
	if req.Target.Kind == engine.TargetSBOM {
		if _, err := ValidateSBOM(req.Target.Ref); err != nil {
			return engine.Artifacts{}, apperr.Validation("%v", err)
		}
	}
	if req.OutputDir == "" {
		return engine.Artifacts{}, apperr.Validation("output directory is required")
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return engine.Artifacts{}, fmt.Errorf("create output dir: %w", err)
	}

	runs, artifacts := a.plan(req.Target, req.OutputDir)
	for _, run := range runs {
		if _, err := a.runner.Run(ctx, a.binary, run.args...); err != nil {
			return engine.Artifacts{}, err
		}
	}
	return artifacts, nil
}

func out(dir, name string) string {
	return filepath.Join(dir, name)
}

// NewTrivy scans paths, images and SBOMs. Path and image scans also emit a
// CycloneDX SBOM.
func NewTrivy(runner CommandRunner) engine.Adapter {
	return &cliAdapter{
		id:     engine.Trivy,
		binary: "trivy",
		kinds:  map[engine.TargetKind]bool{engine.TargetPath: true, engine.TargetImage: true, engine.TargetSBOM: true},
		runner: runner,
		plan: func(t engine.Target, dir string) ([]invocation, engine.Artifacts) {
			findings := out(dir, "trivy-findings.json")
			sub := map[engine.TargetKind]string{engine.TargetPath: "fs", engine.TargetImage: "image", engine.TargetSBOM: "sbom"}[t.Kind]
			runs := []invocation{{args: []string{sub, "--quiet", "--format", "json", "--output", findings, t.Ref}}}
			artifacts := engine.Artifacts{FindingsPath: findings}
			if t.Kind != engine.TargetSBOM {
				sbom := out(dir, "trivy-sbom.cdx.json")
				runs = append(runs, invocation{
					args: []string{sub, "--quiet", "--format", "cyclonedx", "--output", sbom, t.Ref},
				})
				artifacts.SBOMPath = &sbom
			}
			return runs, artifacts
		},
	}
}

// NewGrype scans paths, images and SBOMs for vulnerable dependencies.
func NewGrype(runner CommandRunner) engine.Adapter {
	return &cliAdapter{
		id:     engine.Grype,
		binary: "grype",
		kinds:  map[engine.TargetKind]bool{engine.TargetPath: true, engine.TargetImage: true, engine.TargetSBOM: true},
		runner: runner,
		plan: func(t engine.Target, dir string) ([]invocation, engine.Artifacts) {
			findings := out(dir, "grype-findings.json")
			source := t.Ref
			switch t.Kind {
			case engine.TargetPath:
				source = "dir:" + t.Ref
			case engine.TargetSBOM:
				source = "sbom:" + t.Ref
			}
			return []invocation{{args: []string{source, "--quiet", "--output", "json", "--file", findings}}}, engine.Artifacts{FindingsPath: findings}
		},
	}
}

// NewSemgrep runs static analysis over a source tree.
func NewSemgrep(runner CommandRunner) engine.Adapter {
	return &cliAdapter{
		id:     engine.Semgrep,
		binary: "semgrep",
		kinds:  map[engine.TargetKind]bool{engine.TargetPath: true},
		runner: runner,
		plan: func(t engine.Target, dir string) ([]invocation, engine.Artifacts) {
			findings := out(dir, "semgrep-findings.sarif")
			return []invocation{{args: []string{"scan", "--config", "auto", "--quiet", "--sarif", "--output", findings, t.Ref}}}, engine.Artifacts{FindingsPath: findings}
		},
	}
}

// NewGitleaks scans a source tree for committed secrets.
func NewGitleaks(runner CommandRunner) engine.Adapter {
	return &cliAdapter{
		id:     engine.Gitleaks,
		binary: "gitleaks",
		kinds:  map[engine.TargetKind]bool{engine.TargetPath: true},
		runner: runner,
		plan: func(t engine.Target, dir string) ([]invocation, engine.Artifacts) {
			findings := out(dir, "gitleaks-findings.json")
			return []invocation{{args: []string{"detect", "--no-banner", "--exit-code", "0",
				"--source", t.Ref, "--report-format", "json", "--report-path", findings},
			}}, engine.Artifacts{FindingsPath: findings}
		},
	}
}

// Adapters returns every built-in adapter bound to runner.
func Adapters(runner CommandRunner) []engine.Adapter {
	return []engine.Adapter{
		NewTrivy(runner),
		NewGrype(runner),
		NewSemgrep(runner),
		NewGitleaks(runner),
	}
}

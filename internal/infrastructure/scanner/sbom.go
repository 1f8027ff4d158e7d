package scanner

import (
	"fmt"
	"os"

	cdx "github.com/CycloneDX/cyclonedx-go"
)

// ValidateSBOM checks that path holds a CycloneDX JSON document and returns
// the number of components it lists.
func ValidateSBOM(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open sbom: %w", err)
	}
	defer f.Close()

	var bom cdx.BOM
	if err := cdx.NewBOMDecoder(f, cdx.BOMFileFormatJSON).Decode(&bom); err != nil {
		return 0, fmt.Errorf("decode sbom %s: %w", path, err)
	}
	if bom.BOMFormat != "CycloneDX" {
		return 0, fmt.Errorf("sbom %s: unexpected bomFormat %q", path, bom.BOMFormat)
	}
	if bom.Components == nil {
		return 0, nil
	}
	return len(*bom.Components), nil
}

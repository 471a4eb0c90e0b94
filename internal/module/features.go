package module

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Feature is a named, versioned contract.
type Feature struct {
	Name    string `json:"name" toml:"name"`
	Version string `json:"version" toml:"version"`
}

// Host contract versions.
const (
	FeatureCore      = "core"
	FeatureModuleAPI = "module_api"
	FeatureSocketAPI = "socket_api"
	FeatureRendering = "rendering"
	FeatureEvents    = "events"

	// ContractVersion is the version every host contract is currently at.
	ContractVersion = "0.2"
)

// HostFeatures is what this build of Keygrid implements.
var HostFeatures = []Feature{
	{Name: FeatureCore, Version: ContractVersion},
	{Name: FeatureModuleAPI, Version: ContractVersion},
	{Name: FeatureSocketAPI, Version: ContractVersion},
	{Name: FeatureRendering, Version: ContractVersion},
	{Name: FeatureEvents, Version: ContractVersion},
}

// EssentialFeatures may be omitted by a module, with a warning.
var EssentialFeatures = []string{FeatureCore, FeatureModuleAPI}

// DeclaredFeatures returns the features a module should declare when it
// was built against this host.
func DeclaredFeatures(names ...string) []Feature {
	out := make([]Feature, 0, len(names))
	for _, n := range names {
		out = append(out, Feature{Name: n, Version: ContractVersion})
	}
	return out
}

// CheckCompatibility compares a module's declared features against the
// host table.
//
// Parameters:
//   - meta: The module's metadata
//   - host: The host feature table (normally HostFeatures)
//
// Returns:
//   - []string: Warnings (missing essentials, non-semantic module version)
//   - error: *CompatibilityError on the first mismatch
func CheckCompatibility(meta Metadata, host []Feature) ([]string, error) {
	have := make(map[string]string, len(host))
	for _, f := range host {
		have[f.Name] = f.Version
	}

	declared := make(map[string]bool, len(meta.UsedFeatures))
	for _, f := range meta.UsedFeatures {
		declared[f.Name] = true
		hostVersion, known := have[f.Name]
		if !known {
			return nil, &CompatibilityError{Module: meta.Name, Feature: f.Name, Wanted: f.Version, Reason: ReasonTooNew}
		}
		if hostVersion != f.Version {
			return nil, &CompatibilityError{
				Module: meta.Name, Feature: f.Name, Wanted: f.Version, Have: hostVersion, Reason: ReasonVersionMismatch,
			}
		}
	}

	var warnings []string
	for _, name := range EssentialFeatures {
		if !declared[name] {
			warnings = append(warnings, fmt.Sprintf("module does not declare essential feature %q", name))
		}
	}
	if meta.Version != "" {
		if _, err := semver.NewVersion(meta.Version); err != nil {
			warnings = append(warnings, fmt.Sprintf("module version %q is not a semantic version", meta.Version))
		}
	}
	return warnings, nil
}

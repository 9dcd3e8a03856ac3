package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sitecairn/lidarterrain/internal/hash"
)

// InputRef records one upstream artifact a node consumed, for the
// manifest's provenance trail (§6.2).
type InputRef struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
}

// Manifest is the JSON sidecar written once per artifact (§6.2, §6.3).
type Manifest struct {
	Fingerprint     string                 `json:"fingerprint"`
	ProductKind     Kind                   `json:"product_kind"`
	Parameters      map[string]interface{} `json:"parameters"`
	Inputs          []InputRef             `json:"inputs"`
	ProducedAt      time.Time              `json:"produced_at"`
	ProducerVersion string                 `json:"producer_version"`
	Mode            string                 `json:"mode"`

	// FormulationVersions records the documented-and-versioned choices
	// §9's open questions resolved (e.g. "hillshade_formulation":
	// "horn-v1", "density_basis": "all_returns").
	FormulationVersions map[string]string `json:"formulation_versions,omitempty"`
}

// ProducerVersion is stamped into every manifest this build produces.
const ProducerVersion = "terrapipe-1"

// manifestPath returns where fingerprint's manifest lives under root
// (§6.3: manifests/<fingerprint>.json).
func manifestPath(root, fingerprint string) string {
	return filepath.Join(root, "manifests", fingerprint+".json")
}

// writeManifest atomically writes m, matching raster.Write's
// temp-file-plus-rename convention so no reader ever observes a partial
// manifest (§8's atomic-writes property).
func writeManifest(root string, m Manifest) error {
	path := manifestPath(root, m.Fingerprint)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("orchestrator: creating manifest dir: %w", err)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshaling manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("orchestrator: writing manifest: %w", err)
	}
	return os.Rename(tmp, path)
}

// readManifest reads fingerprint's manifest, returning (Manifest{},
// false, nil) if it doesn't exist yet.
func readManifest(root, fingerprint string) (Manifest, bool, error) {
	b, err := os.ReadFile(manifestPath(root, fingerprint))
	if os.IsNotExist(err) {
		return Manifest{}, false, nil
	}
	if err != nil {
		return Manifest{}, false, fmt.Errorf("orchestrator: reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, false, fmt.Errorf("orchestrator: decoding manifest: %w", err)
	}
	return m, true, nil
}

// Fingerprint computes a node's fingerprint as hash.Combine(kind, mode,
// canonicalized parameters, upstream fingerprints...), the "node = f(kind,
// params, inputs...)" rule of §4.9.
func Fingerprint(kind Kind, mode string, params interface{}, upstream ...string) string {
	parts := append([]string{string(kind), mode, hash.Fingerprint(params)}, upstream...)
	return hash.Combine(parts...)
}

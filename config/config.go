// Package config builds the command-line and configuration-file surface
// over the pipeline: a viper.Viper-backed settings store plus the cobra
// command tree that turns a region, a grid, and a product list into an
// orchestrator.Build call. It mirrors InMAP's inmaputil package: a
// declarative flag table bound once, environment-variable expansion on
// every path-shaped value, and a handful of validation helpers that turn
// a raw viper.Get into the typed value a command needs.
package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/spf13/cast"

	"github.com/sitecairn/lidarterrain/footprint"
	"github.com/sitecairn/lidarterrain/orchestrator"
)

// checkRegion expands environment variables and rejects an empty region
// name, since region scopes both the fingerprint cache and the output
// layout (§6.3) and a blank value would collide across runs.
func checkRegion(region string) (string, error) {
	region = os.ExpandEnv(region)
	if region == "" {
		return "", fmt.Errorf("config: region must be set (for example: --region=oak-ridge)")
	}
	return region, nil
}

// checkInputCloud expands environment variables and confirms the cloud
// file exists before a build ever reaches the orchestrator.
func checkInputCloud(path string) (string, error) {
	path = os.ExpandEnv(path)
	if path == "" {
		return "", fmt.Errorf("config: input-cloud must be set to a LAS/LAZ file path")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("config: input-cloud %s: %w", path, err)
	}
	return path, nil
}

// checkOutDir expands environment variables, rejects an empty value, and
// creates out (and any missing parents) so later writes have a directory
// to land in.
func checkOutDir(out string) (string, error) {
	out = os.ExpandEnv(out)
	if out == "" {
		return "", fmt.Errorf("config: out-dir must be set")
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", fmt.Errorf("config: creating out-dir: %w", err)
	}
	return out, nil
}

// checkDensityBasis expands environment variables and ensures an
// acceptable value was specified, the same shape as checkEmissionUnits.
func checkDensityBasis(b string) (footprint.DensityBasis, error) {
	b = os.ExpandEnv(b)
	switch footprint.DensityBasis(b) {
	case footprint.AllReturns:
		return footprint.AllReturns, nil
	case footprint.GroundClassified:
		return footprint.GroundClassified, nil
	default:
		return "", fmt.Errorf("config: density-basis must be either %q or %q, got %q",
			footprint.AllReturns, footprint.GroundClassified, b)
	}
}

// parseKinds turns a requested products value into []orchestrator.Kind,
// accepting either a real string slice (set via a config file) or a
// JSON-encoded string (set via a command-line flag) the same way
// GetStringMapString handles the CLI-vs-file ambiguity for map values.
func parseKinds(v interface{}) ([]orchestrator.Kind, error) {
	names, err := toStringSliceE(v)
	if err != nil {
		return nil, fmt.Errorf("config: decoding products: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("config: products must list at least one kind (dtm, dsm, chm, slope, aspect, hillshade, tpi, tri, roughness, svf, lrm)")
	}
	out := make([]orchestrator.Kind, len(names))
	for i, n := range names {
		out[i] = orchestrator.Kind(strings.TrimSpace(n))
	}
	return out, nil
}

// toStringSliceE mirrors toIntSliceE's pflag-vs-viper-file coercion: a
// pflag StringSlice decodes to []interface{} of strings, while a value
// set programmatically (tests, defaults) may already be []string. Both
// of those go straight through spf13/cast's slice coercion; only the
// comma/JSON-list string case needs handling of its own, since cast
// treats a bare string as a single-element slice rather than splitting
// it.
func toStringSliceE(v interface{}) ([]string, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if strings.HasPrefix(s, "[") {
			var out []string
			if err := json.Unmarshal([]byte(s), &out); err != nil {
				return nil, err
			}
			return out, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, fmt.Errorf("config: invalid type for products: %#v", v)
	}
	return out, nil
}

// parseAOI decodes an optional area-of-interest polygon from a GeoJSON
// file, following parseMask's Polygon/MultiPolygon-flattening shape.
// A region with no AOI override relies entirely on the computed
// point-density footprint instead.
func parseAOI(path string) (geom.Polygon, error) {
	if path == "" {
		return nil, nil
	}
	path = os.ExpandEnv(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening aoi-geojson file: %w", err)
	}
	defer f.Close()
	b, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("config: reading aoi-geojson file: %w", err)
	}
	j, err := geojson.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("config: decoding aoi-geojson: %w", err)
	}
	var poly geom.Polygon
	switch g := j.(type) {
	case geom.Polygon:
		poly = g
	case geom.MultiPolygon:
		for _, p := range g {
			poly = append(poly, p...)
		}
	default:
		return nil, fmt.Errorf("config: aoi-geojson must contain a Polygon or MultiPolygon, got %T", j)
	}
	return poly, nil
}

// manifestCacheDefault derives metacache.jsonl's default path from an
// already-resolved out-dir, so a user who only sets --out-dir still gets
// a sensible metadata cache location.
func manifestCacheDefault(outDir string) string {
	return filepath.Join(outDir, "metacache.jsonl")
}

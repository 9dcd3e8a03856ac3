package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/sitecairn/lidarterrain/footprint"
)

func TestCheckRegionRejectsEmpty(t *testing.T) {
	if _, err := checkRegion(""); err == nil {
		t.Error("expected an error for an empty region")
	}
	got, err := checkRegion("oak-ridge")
	if err != nil {
		t.Fatal(err)
	}
	if got != "oak-ridge" {
		t.Errorf("expected oak-ridge, got %q", got)
	}
}

func TestCheckInputCloudRejectsMissingFile(t *testing.T) {
	if _, err := checkInputCloud(filepath.Join(t.TempDir(), "nope.las")); err == nil {
		t.Error("expected an error for a nonexistent cloud")
	}
}

func TestCheckOutDirCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	got, err := checkOutDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("expected %q, got %q", dir, got)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected out-dir to be created: %v", err)
	}
}

func TestCheckDensityBasisRejectsUnknownValue(t *testing.T) {
	if _, err := checkDensityBasis("everything"); err == nil {
		t.Error("expected an error for an unrecognized density basis")
	}
	got, err := checkDensityBasis(string(footprint.GroundClassified))
	if err != nil {
		t.Fatal(err)
	}
	if got != footprint.GroundClassified {
		t.Errorf("expected %q, got %q", footprint.GroundClassified, got)
	}
}

func TestParseKindsAcceptsSliceOrCommaString(t *testing.T) {
	fromSlice, err := parseKinds([]string{"dtm", "hillshade"})
	if err != nil {
		t.Fatal(err)
	}
	if len(fromSlice) != 2 {
		t.Fatalf("expected 2 kinds, got %v", fromSlice)
	}

	fromString, err := parseKinds("dtm, hillshade")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(fromSlice, fromString) {
		t.Errorf("expected comma-string and slice forms to agree, got %v vs %v", fromString, fromSlice)
	}

	if _, err := parseKinds(""); err == nil {
		t.Error("expected an error for an empty products value")
	}
}

func TestParseAOIFlattensMultiPolygon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aoi.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(f, `{"type": "MultiPolygon","coordinates": [ [ [ [0, 0], [1, 0], [1, 1], [0, 0] ] ], [ [ [2, 2], [3, 2], [3, 3], [2, 2] ] ] ] }`)
	f.Close()

	poly, err := parseAOI(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(poly) != 2 {
		t.Errorf("expected both rings flattened into one polygon, got %d rings", len(poly))
	}
}

func TestParseAOIEmptyPathIsNoAOI(t *testing.T) {
	poly, err := parseAOI("")
	if err != nil {
		t.Fatal(err)
	}
	if poly != nil {
		t.Errorf("expected a nil polygon for an empty path, got %v", poly)
	}
}

func TestManifestCacheDefaultJoinsOutDir(t *testing.T) {
	got := manifestCacheDefault("/tmp/out")
	want := filepath.Join("/tmp/out", "metacache.jsonl")
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

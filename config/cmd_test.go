package config

import "testing"

func TestInitializeConfigRegistersSubcommands(t *testing.T) {
	cfg := InitializeConfig()
	want := map[string]bool{"build": false, "describe-region": false, "footprint": false, "list-artifacts": false}
	for _, c := range cfg.Root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %q registered under root", name)
		}
	}
}

func TestInitializeConfigBindsDefaults(t *testing.T) {
	cfg := InitializeConfig()

	if got := cfg.GetString("out-dir"); got != "./output" {
		t.Errorf("expected default out-dir ./output, got %q", got)
	}
	if got := cfg.GetInt("grid-epsg"); got != 32633 {
		t.Errorf("expected default grid-epsg 32633, got %d", got)
	}
	if got := cfg.GetFloat64("mask-threshold"); got == 0 {
		t.Error("expected a nonzero default mask-threshold")
	}
	if got := cfg.GetBool("lrm-auto-sizing"); !got {
		t.Error("expected lrm-auto-sizing to default true")
	}
	if got := cfg.GetStringSlice("products"); len(got) == 0 {
		t.Error("expected a nonempty default products list")
	}
}

func TestInitializeConfigSharesFlagAcrossCommands(t *testing.T) {
	cfg := InitializeConfig()
	if cfg.buildCmd.Flags().Lookup("grid-epsg") == nil {
		t.Error("expected build command to carry the shared grid-epsg flag")
	}
	if cfg.footprintCmd.Flags().Lookup("grid-epsg") == nil {
		t.Error("expected footprint command to carry the shared grid-epsg flag")
	}
}

func TestInputOutputFilesTracked(t *testing.T) {
	cfg := InitializeConfig()
	inputs := cfg.InputFiles()
	found := map[string]bool{}
	for _, n := range inputs {
		found[n] = true
	}
	if !found["input-cloud"] || !found["aoi-geojson"] {
		t.Errorf("expected input-cloud and aoi-geojson tracked as input files, got %v", inputs)
	}
	outputs := cfg.OutputFiles()
	if len(outputs) == 0 || outputs[0] != "out-dir" {
		t.Errorf("expected out-dir tracked as an output file, got %v", outputs)
	}
}

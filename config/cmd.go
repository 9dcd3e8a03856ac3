package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sitecairn/lidarterrain/footprint"
	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/metacache"
	"github.com/sitecairn/lidarterrain/orchestrator"
	"github.com/sitecairn/lidarterrain/pointcloud"
)

// Cfg holds configuration information, mirroring inmaputil.Cfg: an
// embedded viper.Viper plus the cobra command tree bound to it.
type Cfg struct {
	*viper.Viper

	// inputFiles holds the names of the configuration options that are
	// input files.
	inputFiles []string

	// outputFiles holds the names of the configuration options that are
	// output files.
	outputFiles []string

	Root, buildCmd, describeRegionCmd, footprintCmd, listArtifactsCmd *cobra.Command
}

// InputFiles returns the names of the configuration options that are
// input files.
func (cfg *Cfg) InputFiles() []string { return cfg.inputFiles }

// OutputFiles returns the names of the configuration options that are
// output files.
func (cfg *Cfg) OutputFiles() []string { return cfg.outputFiles }

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
	isInputFile            bool
	isOutputFile           bool
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig(cfg *Cfg) error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(cfgpath)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("config: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// InitializeConfig builds the command tree and binds every option in
// the options table to it, the same two-pass shape InitializeConfig
// uses in the teacher: first declare the commands, then walk options to
// register and bind each flag.
func InitializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "terrapipe",
		Short: "A point-cloud-to-raster pipeline for archaeological anomaly detection.",
		Long: `terrapipe ingests airborne LiDAR point clouds and produces elevation
rasters, topographic derivatives, and archaeology-tuned renders for one
named region at a time.

Configuration can be set with a configuration file (--config), command-line
flags, or environment variables in the form 'TERRAPIPE_var'. Refer to
https://github.com/lnashier/viper for configuration precedence details.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setConfig(cfg)
		},
	}

	cfg.buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build the requested products for one region.",
		Long: `build resolves the dependency closure of the requested product kinds,
runs it wave by wave under a bounded worker pool, and writes rasters,
vectors, and PNG renders under out-dir, skipping any node whose
fingerprint already has a manifest unless --force-rebuild is set.`,
		RunE:              func(cmd *cobra.Command, args []string) error { return runBuild(cmd, cfg) },
		DisableAutoGenTag: true,
	}

	cfg.describeRegionCmd = &cobra.Command{
		Use:   "describe-region",
		Short: "Print a cloud's discovered bounds, CRS, and point count.",
		Long: `describe-region runs (or replays from the metadata cache) the
point-cloud discovery probe for input-cloud and prints the result,
without building any raster products.`,
		RunE:              func(cmd *cobra.Command, args []string) error { return runDescribeRegion(cmd, cfg) },
		DisableAutoGenTag: true,
	}

	cfg.footprintCmd = &cobra.Command{
		Use:   "footprint",
		Short: "Build only the density/mask/footprint chain for a region.",
		Long: `footprint runs the density, mask, and footprint nodes (but no
terminal raster products) and prints the resulting GeoJSON path, useful
for inspecting a region's point-cloud extent before committing to a
full build.`,
		RunE:              func(cmd *cobra.Command, args []string) error { return runFootprint(cmd, cfg) },
		DisableAutoGenTag: true,
	}

	cfg.listArtifactsCmd = &cobra.Command{
		Use:   "list-artifacts",
		Short: "List every manifest recorded under out-dir.",
		Long:  `list-artifacts scans out-dir's manifests directory and prints each artifact's fingerprint, product kind, mode, and production time.`,
		RunE:              func(cmd *cobra.Command, args []string) error { return runListArtifacts(cmd, cfg) },
		DisableAutoGenTag: true,
	}

	cfg.Root.AddCommand(cfg.buildCmd, cfg.describeRegionCmd, cfg.footprintCmd, cfg.listArtifactsCmd)

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
		isInputFile            bool
		isOutputFile           bool
	}{
		{
			name:       "config",
			usage:      "config specifies the configuration file location.",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name:        "region",
			usage:       "region names the area of interest. It scopes both the fingerprint cache and the output layout.",
			shorthand:   "r",
			defaultVal:  "",
			flagsets:    []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name:         "input-cloud",
			usage:        "input-cloud is the path to the source LAS/LAZ point cloud.",
			defaultVal:   "",
			flagsets:     []*pflag.FlagSet{cfg.Root.PersistentFlags()},
			isInputFile:  true,
		},
		{
			name:          "aoi-geojson",
			usage:         "aoi-geojson optionally crops input-cloud to an externally supplied area-of-interest polygon before the build runs, instead of relying solely on the computed point-density footprint.",
			defaultVal:    "",
			flagsets:      []*pflag.FlagSet{cfg.buildCmd.Flags()},
			isInputFile:   true,
		},
		{
			name:         "out-dir",
			usage:        "out-dir is the root directory artifacts, manifests, and renders are written under.",
			defaultVal:   "./output",
			flagsets:     []*pflag.FlagSet{cfg.Root.PersistentFlags()},
			isOutputFile: true,
		},
		{
			name:       "metadata-cache-file",
			usage:      "metadata-cache-file is the append-only log discovered point-cloud metadata is persisted to. Defaults to metacache.jsonl under out-dir.",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags(), cfg.describeRegionCmd.Flags()},
		},
		{
			name:       "products",
			usage:      "products lists the requested product kinds (dtm, dsm, chm, slope, aspect, hillshade, tpi, tri, roughness, svf, lrm).",
			defaultVal: []string{"dtm", "dsm", "chm", "hillshade"},
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "clean-mode",
			usage:      "clean-mode re-enters the requested terminal products against the density-cropped cloud, writing a second _clean artifact set.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "force-rebuild",
			usage:      "force-rebuild bypasses the fingerprint cache and reruns every requested node.",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "num-workers",
			usage:      "num-workers bounds how many nodes in one DAG wave run concurrently. 0 means GOMAXPROCS.",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "node-timeout-seconds",
			usage:      "node-timeout-seconds bounds one node's build before it is treated as timed out.",
			defaultVal: 600,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "max-retries",
			usage:      "max-retries bounds how many additional attempts a retryable node failure gets.",
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "grid-epsg",
			usage:      "grid-epsg is the EPSG code of the output grid's projected CRS (a UTM zone, typically).",
			defaultVal: 32633,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.footprintCmd.Flags()},
		},
		{
			name:       "grid-origin-x",
			usage:      "grid-origin-x is the output grid's upper-left X coordinate, in the grid CRS's units.",
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.footprintCmd.Flags()},
		},
		{
			name:       "grid-origin-y",
			usage:      "grid-origin-y is the output grid's upper-left Y coordinate, in the grid CRS's units.",
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.footprintCmd.Flags()},
		},
		{
			name:       "grid-pixel-size",
			usage:      "grid-pixel-size is the output grid's cell size, in the grid CRS's units (meters, for a UTM grid).",
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.footprintCmd.Flags()},
		},
		{
			name:       "grid-width",
			usage:      "grid-width is the output grid's width in cells.",
			defaultVal: 1000,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.footprintCmd.Flags()},
		},
		{
			name:       "grid-height",
			usage:      "grid-height is the output grid's height in cells.",
			defaultVal: 1000,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.footprintCmd.Flags()},
		},
		{
			name:       "density-basis",
			usage:      "density-basis selects which returns contribute to the density raster: all_returns or ground_classified.",
			defaultVal: string(footprint.AllReturns),
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.footprintCmd.Flags()},
		},
		{
			name:       "mask-threshold",
			usage:      "mask-threshold is the minimum points/cell for a cell to be considered inside the footprint.",
			defaultVal: footprint.DefaultDensityThreshold,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.footprintCmd.Flags()},
		},
		{
			name:       "mask-threshold-expr",
			usage:      "mask-threshold-expr, when set, overrides mask-threshold with a govaluate expression evaluated against the density raster (e.g. \"mean()*0.5\").",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags(), cfg.footprintCmd.Flags()},
		},
		{
			name:       "hole-fill-max-radius",
			usage:      "hole-fill-max-radius bounds how far the DTM/DSM hole filler searches for valid neighbors, in pixels.",
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "hillshade-azimuth",
			usage:      "hillshade-azimuth is the illumination source azimuth in degrees, [0, 360).",
			defaultVal: 315.0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "hillshade-altitude",
			usage:      "hillshade-altitude is the illumination source altitude in degrees, [0, 90].",
			defaultVal: 45.0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "tpi-inner-radius",
			usage:      "tpi-inner-radius is the TPI neighborhood's inner radius in cells.",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "tpi-outer-radius",
			usage:      "tpi-outer-radius is the TPI neighborhood's outer radius in cells.",
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "svf-num-directions",
			usage:      "svf-num-directions is the number of azimuths the sky-view-factor ray cast samples.",
			defaultVal: 16,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "svf-max-radius-cells",
			usage:      "svf-max-radius-cells bounds the sky-view-factor ray cast's search radius, in cells.",
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "lrm-window-size",
			usage:      "lrm-window-size is the local-relief-model smoothing window size in pixels. Ignored when lrm-auto-sizing is set.",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "lrm-auto-sizing",
			usage:      "lrm-auto-sizing derives the local-relief-model window size from the grid's pixel size instead of lrm-window-size.",
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "render-max-slope-degrees",
			usage:      "render-max-slope-degrees is the slope value the slope renderer's colormap saturates at.",
			defaultVal: 60.0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "render-percentile-low",
			usage:      "render-percentile-low is the low percentile the elevation-family renderers stretch against.",
			defaultVal: 2.0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "render-percentile-high",
			usage:      "render-percentile-high is the high percentile the elevation-family renderers stretch against.",
			defaultVal: 98.0,
			flagsets:   []*pflag.FlagSet{cfg.buildCmd.Flags()},
		},
		{
			name:       "pdal-binary-path",
			usage:      "pdal-binary-path overrides the pdal executable resolved via PATH.",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name:       "pdal-work-dir",
			usage:      "pdal-work-dir is where the point-cloud engine writes intermediate clouds.",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
	}

	cfg.SetEnvPrefix("TERRAPIPE")

	for _, option := range options {
		if option.isInputFile {
			cfg.inputFiles = append(cfg.inputFiles, option.name)
		}
		if option.isOutputFile {
			cfg.outputFiles = append(cfg.outputFiles, option.name)
		}
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, v, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, v, option.usage)
				}
			case []string:
				set.StringSlice(option.name, v, option.usage)
			case bool:
				set.Bool(option.name, v, option.usage)
			case int:
				set.Int(option.name, v, option.usage)
			case float64:
				set.Float64(option.name, v, option.usage)
			default:
				panic(fmt.Errorf("config: invalid argument type: %T", option.defaultVal))
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
	return cfg
}

// newEngine builds the PDAL-backed point-processing engine from the
// current configuration.
func newEngine(cfg *Cfg) pointcloud.Engine {
	return &pointcloud.PDALEngine{
		BinaryPath: cfg.GetString("pdal-binary-path"),
		WorkDir:    cfg.GetString("pdal-work-dir"),
	}
}

// buildGrid assembles the output geo.Grid from the grid-* flags.
func buildGrid(cfg *Cfg) (geo.Grid, error) {
	crs, err := geo.NewCRSFromEPSG(cfg.GetInt("grid-epsg"))
	if err != nil {
		return geo.Grid{}, fmt.Errorf("config: %w", err)
	}
	px := cfg.GetFloat64("grid-pixel-size")
	return geo.Grid{
		OriginX: cfg.GetFloat64("grid-origin-x"),
		OriginY: cfg.GetFloat64("grid-origin-y"),
		Sx:      px,
		Sy:      px,
		W:       cfg.GetInt("grid-width"),
		H:       cfg.GetInt("grid-height"),
		CRS:     crs,
	}, nil
}

// buildParams narrows the flag set down to an orchestrator.Params,
// starting from orchestrator.DefaultParams so an option a user never
// touches still gets the documented default.
func buildParams(cfg *Cfg) (orchestrator.Params, error) {
	p := orchestrator.DefaultParams()

	basis, err := checkDensityBasis(cfg.GetString("density-basis"))
	if err != nil {
		return p, err
	}
	p.Density.Basis = basis
	p.MaskThreshold = cfg.GetFloat64("mask-threshold")
	p.MaskThresholdExpr = cfg.GetString("mask-threshold-expr")
	p.DTM.HoleFill.MaxRadiusPixels = cfg.GetInt("hole-fill-max-radius")
	p.Hillshade.AzimuthDegrees = cfg.GetFloat64("hillshade-azimuth")
	p.Hillshade.AltitudeDegrees = cfg.GetFloat64("hillshade-altitude")
	p.TPI.InnerRadius = cfg.GetInt("tpi-inner-radius")
	p.TPI.OuterRadius = cfg.GetInt("tpi-outer-radius")
	p.SVF.NumDirections = cfg.GetInt("svf-num-directions")
	p.SVF.MaxRadiusCells = cfg.GetInt("svf-max-radius-cells")
	p.LRM.WindowSize = cfg.GetInt("lrm-window-size")
	p.LRM.AutoSizing = cfg.GetBool("lrm-auto-sizing")
	p.Render.MaxSlopeDegrees = cfg.GetFloat64("render-max-slope-degrees")
	p.Render.PercentileLow = cfg.GetFloat64("render-percentile-low")
	p.Render.PercentileHigh = cfg.GetFloat64("render-percentile-high")
	return p, nil
}

// openRegionCloud resolves region's input cloud, optionally cropping it
// to an externally supplied AOI before any node in the DAG sees it.
func openRegionCloud(cmd *cobra.Command, cfg *Cfg, eng pointcloud.Engine) (*pointcloud.Cloud, error) {
	cloudPath, err := checkInputCloud(cfg.GetString("input-cloud"))
	if err != nil {
		return nil, err
	}
	c, err := pointcloud.Open(cloudPath)
	if err != nil {
		return nil, err
	}
	if aoiPath := cfg.GetString("aoi-geojson"); aoiPath != "" {
		poly, err := parseAOI(aoiPath)
		if err != nil {
			return nil, err
		}
		c, err = footprint.Crop(context.Background(), c, eng, poly)
		if err != nil {
			return nil, fmt.Errorf("config: cropping input-cloud to aoi-geojson: %w", err)
		}
	}
	return c, nil
}

func metadataCacheFile(cfg *Cfg, outDir string) string {
	if f := cfg.GetString("metadata-cache-file"); f != "" {
		return os.ExpandEnv(f)
	}
	return manifestCacheDefault(outDir)
}

func runBuild(cmd *cobra.Command, cfg *Cfg) error {
	region, err := checkRegion(cfg.GetString("region"))
	if err != nil {
		return err
	}
	outDir, err := checkOutDir(cfg.GetString("out-dir"))
	if err != nil {
		return err
	}
	kinds, err := parseKinds(cfg.Get("products"))
	if err != nil {
		return err
	}
	grid, err := buildGrid(cfg)
	if err != nil {
		return err
	}
	params, err := buildParams(cfg)
	if err != nil {
		return err
	}
	eng := newEngine(cfg)
	cloud, err := openRegionCloud(cmd, cfg, eng)
	if err != nil {
		return err
	}

	opts := orchestrator.Options{
		OutDir:       outDir,
		Grid:         grid,
		Engine:       eng,
		Params:       params,
		ForceRebuild: cfg.GetBool("force-rebuild"),
		NumWorkers:   cfg.GetInt("num-workers"),
		NodeTimeout:  time.Duration(cfg.GetInt("node-timeout-seconds")) * time.Second,
		MaxRetries:   uint64(cfg.GetInt("max-retries")),
		CleanMode:    cfg.GetBool("clean-mode"),
	}

	report, err := orchestrator.Build(context.Background(), region, kinds, cloud, opts)
	if err != nil {
		return fmt.Errorf("config: build failed: %w", err)
	}
	for _, k := range kinds {
		nr := report.Nodes[k]
		cmd.Printf("%s: %s (fingerprint=%s cached=%v)\n", k, nr.Status, nr.Fingerprint, nr.Cached)
	}
	return nil
}

func runDescribeRegion(cmd *cobra.Command, cfg *Cfg) error {
	outDir, err := checkOutDir(cfg.GetString("out-dir"))
	if err != nil {
		return err
	}
	eng := newEngine(cfg)
	cloud, err := openRegionCloud(cmd, cfg, eng)
	if err != nil {
		return err
	}
	mc, err := metacache.Open(metadataCacheFile(cfg, outDir))
	if err != nil {
		return err
	}
	d, err := mc.Discover(context.Background(), cloud, eng)
	if err != nil {
		return fmt.Errorf("config: describing region: %w", err)
	}
	cmd.Printf("points: %d\nclassified: %v\nlas: %d.%d\nbounds: %+v\n",
		d.PointCount, d.HasClassification, d.LASVersionMajor, d.LASVersionMinor, d.Bounds)
	return nil
}

func runFootprint(cmd *cobra.Command, cfg *Cfg) error {
	region, err := checkRegion(cfg.GetString("region"))
	if err != nil {
		return err
	}
	outDir, err := checkOutDir(cfg.GetString("out-dir"))
	if err != nil {
		return err
	}
	grid, err := buildGrid(cfg)
	if err != nil {
		return err
	}
	params, err := buildParams(cfg)
	if err != nil {
		return err
	}
	eng := newEngine(cfg)
	cloud, err := openRegionCloud(cmd, cfg, eng)
	if err != nil {
		return err
	}

	opts := orchestrator.Options{OutDir: outDir, Grid: grid, Engine: eng, Params: params}
	report, err := orchestrator.Build(context.Background(), region, []orchestrator.Kind{orchestrator.KindFootprint}, cloud, opts)
	if err != nil {
		return fmt.Errorf("config: footprint build failed: %w", err)
	}
	cmd.Println(report.Footprint)
	return nil
}

func runListArtifacts(cmd *cobra.Command, cfg *Cfg) error {
	outDir, err := checkOutDir(cfg.GetString("out-dir"))
	if err != nil {
		return err
	}
	dir := filepath.Join(outDir, "manifests")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: listing manifests: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("config: reading manifest %s: %w", e.Name(), err)
		}
		var m orchestrator.Manifest
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("config: decoding manifest %s: %w", e.Name(), err)
		}
		cmd.Printf("%s\t%s\t%s\t%s\n", m.Fingerprint, m.ProductKind, m.Mode, m.ProducedAt.Format(time.RFC3339))
	}
	return nil
}

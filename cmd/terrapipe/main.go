// Command terrapipe is a command-line interface for the point-cloud
// terrain pipeline: it turns one region's LAS/LAZ cloud into elevation
// rasters, topographic derivatives, and archaeology-tuned PNG renders.
package main

import (
	"fmt"
	"os"

	"github.com/sitecairn/lidarterrain/config"
)

func main() {
	cfg := config.InitializeConfig()
	if err := cfg.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

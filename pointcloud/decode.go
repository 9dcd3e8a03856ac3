package pointcloud

import (
	"github.com/sitecairn/lidarterrain/raster"
)

// readSingleBand decodes a GDAL-written GeoTIFF into a RasterBuffer,
// reusing the raster package's codec rather than re-implementing GeoTIFF
// decoding here.
func readSingleBand(path string) (RasterBuffer, error) {
	g, err := raster.Read(path)
	if err != nil {
		return RasterBuffer{}, err
	}
	values := make([]float64, g.W*g.H)
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			values[row*g.W+col] = g.At(row, col)
		}
	}
	return RasterBuffer{Grid: g.Grid, Values: values}, nil
}

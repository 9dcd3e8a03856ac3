package pointcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyOutput marks ClipByPolygon's soft failure: the polygon excluded
// every point. Callers (the footprint package) treat this as recoverable,
// per §4.1.
var ErrEmptyOutput = errors.New("pointcloud: empty_output")

// ClipByPolygon crops c to polygon (GeoJSON (multi-)polygon bytes) using
// eng, returning the bare ErrEmptyOutput sentinel rather than a fatal error when
// every point is excluded.
func ClipByPolygon(ctx context.Context, c *Cloud, eng Engine, polygonGeoJSON json.RawMessage) (*Cloud, error) {
	outPath, err := eng.ClipByPolygon(ctx, c.Path, polygonGeoJSON)
	if err != nil {
		if errors.Is(err, ErrEmptyOutput) {
			return nil, ErrEmptyOutput
		}
		return nil, fmt.Errorf("pointcloud: external_failure: clip by polygon: %w", err)
	}
	return withDerivedPath(outPath), nil
}

package pointcloud

import (
	"context"
	"fmt"
)

// ClassifyAlgorithm enumerates the supported ground classification
// algorithms (§4.1).
type ClassifyAlgorithm string

const (
	AlgorithmCSF  ClassifyAlgorithm = "csf"
	AlgorithmPMF  ClassifyAlgorithm = "pmf"
	AlgorithmSMRF ClassifyAlgorithm = "smrf"
)

// ClassifyParams holds algorithm selection and algorithm-specific
// controls. Only the fields relevant to Algorithm are consulted;
// canonicalization for fingerprinting lives in the orchestrator package,
// which knows the full canonical parameter record.
type ClassifyParams struct {
	Algorithm ClassifyAlgorithm

	// CSF (cloth simulation filter)
	CSFClothResolution float64 // default 0.5
	CSFRigidness       int     // default 3
	CSFThreshold       float64 // default 0.5

	// PMF (progressive morphological filter)
	PMFMaxWindowSize float64 // default 33
	PMFSlope         float64 // default 1.0
	PMFInitialDist   float64 // default 0.15
	PMFMaxDist       float64 // default 2.5

	// SMRF (simple morphological filter)
	SMRFCellSize  float64 // default 1.0
	SMRFSlope     float64 // default 0.15
	SMRFWindow    float64 // default 18
	SMRFThreshold float64 // default 0.5
}

// DefaultClassifyParams returns SMRF defaults, InMAP's teacher convention
// of "pick the common case, document it" applied to ground classification.
func DefaultClassifyParams() ClassifyParams {
	return ClassifyParams{
		Algorithm:     AlgorithmSMRF,
		SMRFCellSize:  1.0,
		SMRFSlope:     0.15,
		SMRFWindow:    18,
		SMRFThreshold: 0.5,
	}
}

// pdalFilterStage renders params into a PDAL pipeline filter stage,
// returning unsupported_algorithm for anything outside the three
// recognized algorithms.
func (p ClassifyParams) pdalFilterStage() (map[string]interface{}, error) {
	switch p.Algorithm {
	case AlgorithmCSF:
		return map[string]interface{}{
			"type":             "filters.csf",
			"resolution":       orDefault(p.CSFClothResolution, 0.5),
			"rigidness":        orDefaultInt(p.CSFRigidness, 3),
			"threshold":        orDefault(p.CSFThreshold, 0.5),
		}, nil
	case AlgorithmPMF:
		return map[string]interface{}{
			"type":            "filters.pmf",
			"max_window_size": orDefault(p.PMFMaxWindowSize, 33),
			"slope":           orDefault(p.PMFSlope, 1.0),
			"initial_distance": orDefault(p.PMFInitialDist, 0.15),
			"max_distance":    orDefault(p.PMFMaxDist, 2.5),
		}, nil
	case AlgorithmSMRF:
		return map[string]interface{}{
			"type":      "filters.smrf",
			"cell":      orDefault(p.SMRFCellSize, 1.0),
			"slope":     orDefault(p.SMRFSlope, 0.15),
			"window":    orDefault(p.SMRFWindow, 18),
			"threshold": orDefault(p.SMRFThreshold, 0.5),
		}, nil
	default:
		return nil, fmt.Errorf("pointcloud: unsupported_algorithm %q", p.Algorithm)
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// GroundClassify runs ground classification on c via eng, returning a
// new Cloud referring to the classified output. The classified output's
// point count is not checked: neither this function nor
// PDALEngine.GroundClassify reports insufficient_points.
func GroundClassify(ctx context.Context, c *Cloud, eng Engine, params ClassifyParams) (*Cloud, error) {
	if _, err := params.pdalFilterStage(); err != nil {
		return nil, err
	}
	outPath, err := eng.GroundClassify(ctx, c.Path, params)
	if err != nil {
		return nil, fmt.Errorf("pointcloud: external_failure: ground classify: %w", err)
	}
	return withDerivedPath(outPath), nil
}

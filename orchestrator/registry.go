package orchestrator

import "context"

// registryEntry describes one node kind's static dependencies, used to
// resolve the requested-products DAG before any fingerprint is computed
// (§4.9 step 1: "requested products ∪ transitive prerequisites").
type registryEntry struct {
	deps     []Kind
	producer func(ctx context.Context, bc *buildContext) error
}

// registry is the static producer table the DAG is built from. It is a
// package-level map rather than a per-build construction, mirroring the
// fixed-schema registries other example repos keep for dispatch tables.
var registry = map[Kind]registryEntry{
	KindDensity:   {deps: nil, producer: produceDensity},
	KindMask:      {deps: []Kind{KindDensity}, producer: produceMask},
	KindFootprint: {deps: []Kind{KindMask}, producer: produceFootprint},
	KindCropped:   {deps: []Kind{KindFootprint}, producer: produceCropped},

	KindDTM: {deps: nil, producer: produceDTM},
	KindDSM: {deps: nil, producer: produceDSM},
	KindCHM: {deps: []Kind{KindDSM, KindDTM}, producer: produceCHM},

	KindSlope:     {deps: []Kind{KindDTM}, producer: produceSlope},
	KindAspect:    {deps: []Kind{KindDTM}, producer: produceAspect},
	KindHillshade: {deps: []Kind{KindDTM}, producer: produceHillshade},
	KindTPI:       {deps: []Kind{KindDTM}, producer: produceTPI},
	KindTRI:       {deps: []Kind{KindDTM}, producer: produceTRI},
	KindRoughness: {deps: []Kind{KindDTM}, producer: produceRoughness},
	KindSVF:       {deps: []Kind{KindDTM}, producer: produceSVF},
	KindLRM:       {deps: []Kind{KindDTM}, producer: produceLRM},
}

// resolveDAG returns requested ∪ its transitive prerequisites, detecting
// cycles with a DFS over the static registry (§4.9 step 1; an
// invariant_violation per §9 if the registry itself is cyclic — this can
// only happen from a programming error in registry, never from user
// input, since requested is always a leaf-referencing set).
func resolveDAG(requested []Kind) ([]Kind, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[Kind]int)
	var order []Kind

	var visit func(k Kind) error
	visit = func(k Kind) error {
		switch color[k] {
		case black:
			return nil
		case gray:
			return kindError(k, ErrInvariantViolation, "cycle detected in product registry", nil)
		}
		color[k] = gray
		entry, ok := registry[k]
		if !ok {
			return kindError(k, ErrInvariantViolation, "no registry entry for requested product", nil)
		}
		for _, dep := range entry.deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[k] = black
		order = append(order, k)
		return nil
	}

	for _, k := range requested {
		if err := visit(k); err != nil {
			return nil, err
		}
	}
	return order, nil
}

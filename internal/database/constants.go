package database

// Model names used to scope embedding stores.
const (
	// ModelPrimary holds the descriptors searched by the matching engine.
	ModelPrimary = "primary"

	// ModelCrossValidation is the default name of the independent model used to veto matches.
	ModelCrossValidation = "cross"
)

// HNSW index parameters for the near-duplicate lookup
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after filtering out the query identity.
	HNSWSearchMultiplier = 3
)

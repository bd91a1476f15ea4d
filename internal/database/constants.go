package database

// FaceEncodingDim is the dimension of the face signatures stored in the gallery
// (dlib ResNet encodings as produced by face_recognition style extractors).
const FaceEncodingDim = 128

// HNSW index parameters for 128-dim face encodings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after distance filtering.
	HNSWSearchMultiplier = 3

	// HNSWEfSearch is the pgvector ef_search used for server side matching.
	HNSWEfSearch = 100
)

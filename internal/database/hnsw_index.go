package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	EncodingCount int64     `json:"encoding_count"`
	MaxEncodingID int64     `json:"max_encoding_id"`
	BuildTime     time.Time `json:"build_time"`
	Version       int       `json:"version"`
}

const hnswMetadataVersion = 1

// EncodingIndex wraps the HNSW graph for face encoding search.
type EncodingIndex struct {
	graph      *hnsw.Graph[int64]
	savedGraph *hnsw.SavedGraph[int64]
	byID       map[int64]*StoredEncoding // Maps HNSW node ID to encoding
	mu         sync.RWMutex
}

// NewEncodingIndex creates a new empty index.
func NewEncodingIndex() *EncodingIndex {
	return &EncodingIndex{
		byID: make(map[int64]*StoredEncoding),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index content with the given encodings.
func (h *EncodingIndex) Build(encodings []StoredEncoding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savedGraph = nil
	h.byID = make(map[int64]*StoredEncoding, len(encodings))
	if len(encodings) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range encodings {
		enc := &encodings[i]
		if len(enc.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(enc.ID, enc.Embedding))
		h.byID[enc.ID] = enc
	}
	h.graph = g
}

// Search finds the k nearest neighbors to the query embedding.
// Returns encoding IDs and their cosine distances.
func (h *EncodingIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	var neighbors []hnsw.Node[int64]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, k)
	} else {
		neighbors = h.graph.Search(query, k)
	}

	ids := make([]int64, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		// Deleted encodings stay in the graph, skip them here.
		if _, ok := h.byID[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		distances = append(distances, CosineDistance(query, n.Value))
	}
	return ids, distances, nil
}

// Get returns the encoding for a given ID.
func (h *EncodingIndex) Get(id int64) *StoredEncoding {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byID[id]
}

// Add adds encodings to the index.
func (h *EncodingIndex) Add(encodings ...StoredEncoding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range encodings {
		enc := encodings[i]
		if len(enc.Embedding) == 0 {
			continue
		}
		switch {
		case h.savedGraph != nil:
			h.savedGraph.Add(hnsw.MakeNode(enc.ID, enc.Embedding))
		case h.graph == nil:
			h.graph = newGraph()
			fallthrough
		default:
			h.graph.Add(hnsw.MakeNode(enc.ID, enc.Embedding))
		}
		h.byID[enc.ID] = &enc
	}
}

// DeleteStudent removes a student's encodings from search results.
func (h *EncodingIndex) DeleteStudent(studentID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, enc := range h.byID {
		if enc.StudentID == studentID {
			delete(h.byID, id)
			removed++
		}
	}
	// HNSW doesn't support true deletion; dropping the mapping filters the node out.
	return removed
}

// All returns a copy of every indexed encoding.
func (h *EncodingIndex) All() []StoredEncoding {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]StoredEncoding, 0, len(h.byID))
	for _, enc := range h.byID {
		out = append(out, *enc)
	}
	return out
}

// Count returns the number of indexed encodings.
func (h *EncodingIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *EncodingIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// SaveWithEncodings persists the graph, its metadata (.meta) and the encoding
// records (.encodings) to disk.
func (h *EncodingIndex) SaveWithEncodings(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".encodings")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	if h.savedGraph != nil {
		err = h.savedGraph.Export(f)
	} else {
		err = h.graph.Export(f)
	}
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}

	encodings := make([]StoredEncoding, 0, len(h.byID))
	var maxID int64
	for _, enc := range h.byID {
		encodings = append(encodings, *enc)
		if enc.ID > maxID {
			maxID = enc.ID
		}
	}

	metadata := HNSWIndexMetadata{
		EncodingCount: int64(len(encodings)),
		MaxEncodingID: maxID,
		BuildTime:     time.Now(),
		Version:       hnswMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(encodings); err != nil {
		return fmt.Errorf("failed to encode encodings: %w", err)
	}
	if err := os.WriteFile(path+".encodings", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write encodings file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// LoadWithEncodings loads both the HNSW graph and the encoding records from disk.
func (h *EncodingIndex) LoadWithEncodings(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("HNSW index file not found: %s", path)
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".encodings") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read encodings file: %w", err)
	}
	var encodings []StoredEncoding
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&encodings); err != nil {
		return fmt.Errorf("failed to decode encodings: %w", err)
	}

	h.graph = nil
	h.savedGraph = saved
	h.byID = make(map[int64]*StoredEncoding, len(encodings))
	for i := range encodings {
		h.byID[encodings[i].ID] = &encodings[i]
	}
	return nil
}

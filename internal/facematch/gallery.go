package facematch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logging"
)

// bruteForceLimit is the gallery size up to which matching scans every
// encoding instead of walking the HNSW graph.
const bruteForceLimit = 64

// Options configures a Gallery.
type Options struct {
	DistanceThreshold float64
	Dim               int
	IndexPath         string // optional; the index is persisted here
	// StoreSearch matches through the backend's vector search instead of the
	// in-memory index when the store supports it.
	StoreSearch bool
	Logger      *slog.Logger
}

// Gallery holds the face encodings of enrolled students.
type Gallery struct {
	store     database.StudentReader
	finder    database.NearestEncodingFinder
	index     *database.EncodingIndex
	threshold float64
	dim       int
	indexPath string
	logger    *slog.Logger
}

var _ database.IndexRebuilder = (*Gallery)(nil)

// NewGallery creates an empty gallery. Call Enable to load it.
func NewGallery(store database.StudentReader, opts Options) *Gallery {
	if opts.DistanceThreshold <= 0 {
		opts.DistanceThreshold = DefaultDistanceThreshold
	}
	if opts.Dim <= 0 {
		opts.Dim = database.FaceEncodingDim
	}
	g := &Gallery{
		store:     store,
		index:     database.NewEncodingIndex(),
		threshold: opts.DistanceThreshold,
		dim:       opts.Dim,
		indexPath: opts.IndexPath,
		logger:    logging.OrDiscard(opts.Logger).With("component", "gallery"),
	}
	if opts.StoreSearch {
		if finder, ok := store.(database.NearestEncodingFinder); ok {
			g.finder = finder
		} else {
			g.logger.Warn("store has no vector search, using the in-memory index")
		}
	}
	return g
}

// Threshold returns the distance threshold.
func (g *Gallery) Threshold() float64 {
	return g.threshold
}

// Enable loads the index from disk when the cached copy matches the store,
// otherwise rebuilds it from the store and saves it.
func (g *Gallery) Enable(ctx context.Context) error {
	if g.finder != nil {
		g.logger.Info("gallery matching through store vector search")
		return nil
	}

	encodings, err := g.store.ListEncodings(ctx)
	if err != nil {
		return fmt.Errorf("loading encodings: %w", err)
	}

	if g.indexPath != "" && g.tryLoad(encodings) {
		return nil
	}

	g.index.Build(encodings)
	g.logger.Info("gallery index built", "encodings", g.index.Count())
	if g.indexPath != "" && len(encodings) > 0 {
		if err := g.Save(); err != nil {
			g.logger.Warn("failed to save gallery index", "path", g.indexPath, "error", err)
		}
	}
	return nil
}

// tryLoad loads the cached index if its metadata matches the store.
func (g *Gallery) tryLoad(encodings []database.StoredEncoding) bool {
	meta, err := database.LoadHNSWMetadata(g.indexPath)
	if err != nil {
		g.logger.Debug("gallery index metadata unavailable, rebuilding", "error", err)
		return false
	}

	var maxID int64
	for i := range encodings {
		maxID = max(maxID, encodings[i].ID)
	}
	if meta.EncodingCount != int64(len(encodings)) || meta.MaxEncodingID != maxID {
		g.logger.Info("gallery index stale, rebuilding",
			"cached_count", meta.EncodingCount,
			"store_count", len(encodings))
		return false
	}

	if err := g.index.LoadWithEncodings(g.indexPath); err != nil {
		g.logger.Warn("failed to load gallery index, rebuilding", "error", err)
		return false
	}
	g.logger.Info("gallery index loaded from disk", "encodings", g.index.Count())
	return true
}

// Rebuild reloads every encoding from the store.
func (g *Gallery) Rebuild(ctx context.Context) error {
	encodings, err := g.store.ListEncodings(ctx)
	if err != nil {
		return fmt.Errorf("loading encodings: %w", err)
	}
	g.index.Build(encodings)
	g.logger.Info("gallery index rebuilt", "encodings", len(encodings))
	return nil
}

// Count returns the number of indexed encodings.
func (g *Gallery) Count() int {
	return g.index.Count()
}

// Save persists the index when a path is configured.
func (g *Gallery) Save() error {
	if g.indexPath == "" {
		return nil
	}
	return g.index.SaveWithEncodings(g.indexPath)
}

// Add indexes newly enrolled encodings.
func (g *Gallery) Add(encodings ...database.StoredEncoding) {
	g.index.Add(encodings...)
}

// RemoveStudent drops a student's encodings from matching.
func (g *Gallery) RemoveStudent(studentID string) int {
	return g.index.DeleteStudent(studentID)
}

// Match returns the closest student within the distance threshold.
func (g *Gallery) Match(ctx context.Context, query []float32) (Match, bool, error) {
	if len(query) != g.dim {
		return Match{}, false, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), g.dim)
	}

	if g.finder != nil {
		found, err := g.finder.FindNearestEncodings(ctx, query, 1, g.threshold)
		if err != nil {
			return Match{}, false, fmt.Errorf("searching encodings: %w", err)
		}
		if len(found) == 0 {
			return Match{}, false, nil
		}
		return newMatch(found[0].Encoding, found[0].Distance), true, nil
	}

	best, distance, ok := g.nearest(query)
	if !ok || distance > g.threshold {
		return Match{}, false, nil
	}
	return newMatch(best, distance), true, nil
}

func (g *Gallery) nearest(query []float32) (database.StoredEncoding, float64, bool) {
	var best database.StoredEncoding
	bestDist := database.MaxEncodingDistance
	found := false

	if g.index.Count() <= bruteForceLimit {
		for _, enc := range g.index.All() {
			if d := database.CosineDistance(query, enc.Embedding); d < bestDist {
				best, bestDist, found = enc, d, true
			}
		}
		return best, bestDist, found
	}

	ids, distances, err := g.index.Search(query, database.HNSWSearchMultiplier)
	if err != nil {
		return best, bestDist, false
	}
	for i, id := range ids {
		enc := g.index.Get(id)
		if enc != nil && distances[i] < bestDist {
			best, bestDist, found = *enc, distances[i], true
		}
	}
	return best, bestDist, found
}

// MatchAll matches every face encoding of a frame. A student recognized
// by several encodings is reported once with the best match. Results are ordered by
// confidence, highest first.
func (g *Gallery) MatchAll(ctx context.Context, queries [][]float32) ([]Match, error) {
	byStudent := make(map[string]Match)
	for _, query := range queries {
		m, ok, err := g.Match(ctx, query)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if prev, seen := byStudent[m.StudentID]; !seen || m.Distance < prev.Distance {
			byStudent[m.StudentID] = m
		}
	}

	out := make([]Match, 0, len(byStudent))
	for _, m := range byStudent {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out, nil
}

func newMatch(enc database.StoredEncoding, distance float64) Match {
	return Match{
		StudentID:  enc.StudentID,
		EncodingID: enc.ID,
		Distance:   distance,
		Confidence: 1 - distance,
	}
}

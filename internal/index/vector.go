package index

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex implements VectorIndex using coder/hnsw for in-memory
// approximate nearest-neighbour search, backed on disk by the spec's raw
// float32 blob + JSON sidecar format rather than the graph's own
// serialization.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	// ID mapping (string <-> uint64), and row order for the on-disk blob.
	idMap   map[string]uint64   // exemplar ID -> internal key
	keyMap  map[uint64]string   // internal key -> exemplar ID
	vecMap  map[string][]float32 // exemplar ID -> normalized vector (kept for blob serialization)
	rows    []string            // row index -> exemplar ID, in insertion order
	nextKey uint64

	fingerprint string // SHA-256 hex digest of the last-saved/loaded blob
	closed      bool
}

// sidecar is the JSON metadata persisted alongside the raw vector blob.
// RowIDs[i] names the exemplar whose embedding occupies row i of the blob.
type sidecar struct {
	Fingerprint string            `json:"fingerprint"`
	Dimensions  int                `json:"dimensions"`
	Metric      string            `json:"metric"`
	RowIDs      []string          `json:"row_ids"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewHNSWIndex creates a new HNSW-backed vector index.
func NewHNSWIndex(cfg VectorStoreConfig) (*HNSWIndex, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "cos":
		graph.Distance = hnsw.CosineDistance
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		vecMap:  make(map[string][]float32),
		nextKey: 0,
	}, nil
}

// Add inserts vectors with their exemplar IDs. If an ID already exists it
// is replaced via lazy deletion of the old mapping.
func (s *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			// Lazy deletion: orphan the old key rather than mutate the graph.
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[id] = key
		s.keyMap[key] = id
		s.vecMap[id] = vec
		s.rows = append(s.rows, id)
	}

	s.fingerprint = ""
	return nil
}

// Search finds the k nearest neighbours to the query vector.
func (s *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	nodes := s.graph.Search(normalizedQuery, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue
		}
		distance := s.graph.Distance(normalizedQuery, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}

	return results, nil
}

// Delete removes vectors by exemplar ID, via lazy deletion.
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.vecMap, id)
		}
	}
	s.fingerprint = ""

	return nil
}

// AllIDs returns all exemplar IDs currently in the index.
func (s *HNSWIndex) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Contains reports whether an exemplar ID exists.
func (s *HNSWIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of exemplars in the index.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Fingerprint returns the SHA-256 hex digest of the raw vector blob as of
// the last Save or Load. It is empty if the index has been mutated since.
func (s *HNSWIndex) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

// Save persists the index using the spec's on-disk format: a raw
// little-endian float32 blob of shape N×D at path, and a JSON sidecar at
// path+".sidecar.json" mapping row index to exemplar ID. The blob's
// SHA-256 becomes the index fingerprint.
func (s *HNSWIndex) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	blob, rowIDs, err := s.serializeBlob()
	if err != nil {
		return fmt.Errorf("failed to serialize vector blob: %w", err)
	}

	tmpBlobPath := path + ".tmp"
	if err := os.WriteFile(tmpBlobPath, blob, 0o644); err != nil {
		return fmt.Errorf("failed to write vector blob: %w", err)
	}
	if err := os.Rename(tmpBlobPath, path); err != nil {
		os.Remove(tmpBlobPath)
		return fmt.Errorf("failed to rename vector blob: %w", err)
	}

	sum := sha256.Sum256(blob)
	fingerprint := hex.EncodeToString(sum[:])

	sc := sidecar{
		Fingerprint: fingerprint,
		Dimensions:  s.config.Dimensions,
		Metric:      s.config.Metric,
		RowIDs:      rowIDs,
	}
	sidecarPath := path + ".sidecar.json"
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}
	tmpSidecarPath := sidecarPath + ".tmp"
	if err := os.WriteFile(tmpSidecarPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	if err := os.Rename(tmpSidecarPath, sidecarPath); err != nil {
		os.Remove(tmpSidecarPath)
		return fmt.Errorf("failed to rename sidecar: %w", err)
	}

	s.fingerprint = fingerprint
	return nil
}

// serializeBlob walks the HNSW graph in row order and emits the raw
// little-endian float32 bytes for each vector, along with the exemplar ID
// for each row.
func (s *HNSWIndex) serializeBlob() ([]byte, []string, error) {
	rowIDs := make([]string, 0, len(s.idMap))
	for _, id := range s.rows {
		if _, live := s.idMap[id]; live {
			rowIDs = append(rowIDs, id)
		}
	}

	buf := make([]byte, 0, len(rowIDs)*s.config.Dimensions*4)
	for _, id := range rowIDs {
		vec, ok := s.vecMap[id]
		if !ok {
			return nil, nil, fmt.Errorf("exemplar %s missing its vector", id)
		}
		for _, f := range vec {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
			buf = append(buf, b[:]...)
		}
	}

	return buf, rowIDs, nil
}

// Load reads the spec's on-disk format: the raw float32 blob at path and
// its JSON sidecar, verifying the sidecar's recorded fingerprint against
// the blob's actual SHA-256 before rebuilding the in-memory graph.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read vector blob: %w", err)
	}

	sidecarPath := path + ".sidecar.json"
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return fmt.Errorf("failed to read sidecar: %w", err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("failed to parse sidecar: %w", err)
	}

	sum := sha256.Sum256(blob)
	actual := hex.EncodeToString(sum[:])
	if actual != sc.Fingerprint {
		return ErrFingerprintMismatch{BlobFingerprint: actual, SidecarFingerprint: sc.Fingerprint}
	}

	dims := sc.Dimensions
	if dims == 0 {
		dims = s.config.Dimensions
	}
	if dims <= 0 {
		return fmt.Errorf("vector index sidecar has no usable dimension")
	}
	wantBytes := len(sc.RowIDs) * dims * 4
	if len(blob) != wantBytes {
		return fmt.Errorf("vector blob size %d does not match %d rows x %d dims", len(blob), len(sc.RowIDs), dims)
	}

	graph := hnsw.NewGraph[uint64]()
	switch sc.Metric {
	case "cos":
		graph.Distance = hnsw.CosineDistance
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25

	idMap := make(map[string]uint64, len(sc.RowIDs))
	keyMap := make(map[uint64]string, len(sc.RowIDs))
	vecMap := make(map[string][]float32, len(sc.RowIDs))

	for row, id := range sc.RowIDs {
		vec := make([]float32, dims)
		off := row * dims * 4
		for d := 0; d < dims; d++ {
			bits := binary.LittleEndian.Uint32(blob[off+d*4 : off+d*4+4])
			vec[d] = math.Float32frombits(bits)
		}
		key := uint64(row)
		graph.Add(hnsw.MakeNode(key, vec))
		idMap[id] = key
		keyMap[key] = id
		vecMap[id] = vec
	}

	s.graph = graph
	s.idMap = idMap
	s.keyMap = keyMap
	s.vecMap = vecMap
	s.rows = append([]string(nil), sc.RowIDs...)
	s.nextKey = uint64(len(sc.RowIDs))
	s.config.Dimensions = dims
	s.config.Metric = sc.Metric
	s.fingerprint = actual

	return nil
}

// Close releases resources held by the index.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// Verify interface implementation.
var _ VectorIndex = (*HNSWIndex)(nil)

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance value to a monotone similarity score
// in [0,1], per the vector index invariant that higher scores mean closer.
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "cos":
		return 1.0 - distance/2.0
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}

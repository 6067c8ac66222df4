// Package vector provides an in-memory embedding index with parallel
// metadata and brute-force inner product search.
package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// FlatStore holds L2-normalized vectors alongside an order-matched metadata
// slice: records[i] describes vectors[i] at all times observable between
// operations. The structure is append-only; removal rebuilds it. All methods
// are safe for concurrent use, with mutations excluded from searches by a
// writer-preferring lock held only across the in-memory swap, never across
// embedding calls.
type FlatStore struct {
	dimensions int
	oversample int
	records    []models.EmbeddingRecord
	vectors    [][]float32
	state      State
	mu         sync.RWMutex
}

// NewFlatStore creates an empty store for vectors of the given dimension.
// The store starts Uninitialized; call Load to bring it into service.
func NewFlatStore(dimensions, oversample int) (*FlatStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if oversample <= 0 {
		oversample = 3
	}
	return &FlatStore{
		dimensions: dimensions,
		oversample: oversample,
		records:    make([]models.EmbeddingRecord, 0),
		vectors:    make([][]float32, 0),
		state:      StateUninitialized,
	}, nil
}

// Add appends records with their vectors as one step: either every pair is
// visible to concurrent readers or none is. Vectors are copied, so callers
// may reuse their slices.
func (s *FlatStore) Add(ctx context.Context, records []models.EmbeddingRecord, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("records and vectors length mismatch: %d vs %d", len(records), len(vectors))
	}
	if len(records) == 0 {
		return nil
	}
	for i := range vectors {
		if len(vectors[i]) != s.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), s.dimensions)
		}
	}
	copied := make([][]float32, len(vectors))
	for i := range vectors {
		vec := make([]float32, s.dimensions)
		copy(vec, vectors[i])
		copied[i] = vec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	s.vectors = append(s.vectors, copied...)
	s.state = StateDirty
	return nil
}

// Search returns up to k hits with score >= minScore, restricted to
// conversationID when it is non-empty, in descending score order.
//
// Candidate retrieval oversamples: min(k*oversample, total) candidates are
// ranked before the threshold and conversation filters run, because both
// filters apply after retrieval. With exactly k candidates a conversation
// filter could discard most of them and starve the result even though
// matches exist deeper in the index.
func (s *FlatStore) Search(ctx context.Context, query []float32, k int, minScore float64, conversationID string) ([]models.ScoredMessage, error) {
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), s.dimensions)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 || len(s.vectors) == 0 {
		return nil, nil
	}

	type scored struct {
		position int
		score    float64
	}
	scores := make([]scored, len(s.vectors))
	for i, vec := range s.vectors {
		scores[i] = scored{position: i, score: innerProduct(query, vec)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	candidates := k * s.oversample
	if candidates > len(scores) {
		candidates = len(scores)
	}

	results := make([]models.ScoredMessage, 0, k)
	for _, c := range scores[:candidates] {
		if c.score < minScore {
			break // sorted descending, nothing further passes
		}
		rec := s.records[c.position]
		if conversationID != "" && rec.ConversationID != conversationID {
			continue
		}
		results = append(results, models.ScoredMessage{Score: c.score, EmbeddingRecord: rec})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Reconstruct returns a copy of the vector stored at position. It exists to
// support rebuild-based removal, which re-reads every retained vector.
func (s *FlatStore) Reconstruct(position int) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconstructLocked(position)
}

func (s *FlatStore) reconstructLocked(position int) ([]float32, error) {
	if position < 0 || position >= len(s.vectors) {
		return nil, fmt.Errorf("position %d out of range [0,%d)", position, len(s.vectors))
	}
	vec := make([]float32, s.dimensions)
	copy(vec, s.vectors[position])
	return vec, nil
}

// RemoveConversation rebuilds the store without the conversation's entries.
// The underlying structure has no single-element delete, so removal
// reconstructs every retained vector into a new index and swaps the pair in
// atomically, at O(n) cost in the current store size. Returns true when at
// least one entry was removed.
func (s *FlatStore) RemoveConversation(conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newRecords := make([]models.EmbeddingRecord, 0, len(s.records))
	newVectors := make([][]float32, 0, len(s.vectors))
	for i, rec := range s.records {
		if rec.ConversationID == conversationID {
			continue
		}
		vec, err := s.reconstructLocked(i)
		if err != nil {
			return false, fmt.Errorf("reconstruct position %d: %w", i, err)
		}
		newRecords = append(newRecords, rec)
		newVectors = append(newVectors, vec)
	}
	if len(newRecords) == len(s.records) {
		return false, nil
	}
	s.records = newRecords
	s.vectors = newVectors
	s.state = StateDirty
	return true, nil
}

// Validate reports whether the store is safe to search: metadata and vector
// counts must match and the store must be non-empty. An empty store is
// invalid by convention, forcing an explicit Recover or Add rather than
// silently serving nothing. A failed check moves the store to Corrupted.
func (s *FlatStore) Validate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == len(s.vectors) && len(s.vectors) > 0 {
		return true
	}
	s.state = StateCorrupted
	return false
}

// Recover discards the current contents and resets to an empty store ready
// for adds. Data loss is accepted in exchange for availability.
func (s *FlatStore) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *FlatStore) resetLocked() {
	s.records = make([]models.EmbeddingRecord, 0)
	s.vectors = make([][]float32, 0)
	s.state = StateLoaded
}

// Save writes the index and metadata artifacts. The index format is
// little-endian binary: dimensions (4 bytes), count (4 bytes), then
// count*dimensions float32 values. Metadata is a JSON array written
// alongside; Load refuses the pair if their counts disagree. The lock is
// held for the duration so the saved pair matches a single consistent
// snapshot and the Dirty-to-Loaded transition cannot mask a concurrent add.
func (s *FlatStore) Save(indexPath, metadataPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexPath == "" || metadataPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(metadataPath), 0755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}

	f, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(s.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(s.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, vec := range s.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}

	meta, err := json.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(metadataPath, meta, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	s.state = StateLoaded
	return nil
}

// Load replaces the in-memory contents from the artifacts written by Save.
// If either file is missing the store comes up empty and Loaded (first
// run). A dimension mismatch, unreadable file, or index/metadata count
// disagreement marks the store Corrupted and returns an error; Recover
// clears it.
func (s *FlatStore) Load(indexPath, metadataPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexPath == "" || metadataPath == "" {
		s.resetLocked()
		return nil
	}

	vectors, err := readVectors(indexPath, s.dimensions)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.resetLocked()
			return nil
		}
		s.state = StateCorrupted
		return fmt.Errorf("load index: %w", err)
	}
	records, err := readRecords(metadataPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.resetLocked()
			return nil
		}
		s.state = StateCorrupted
		return fmt.Errorf("load metadata: %w", err)
	}
	if len(records) != len(vectors) {
		s.state = StateCorrupted
		return fmt.Errorf("index/metadata mismatch: %d vectors, %d records", len(vectors), len(records))
	}

	s.records = records
	s.vectors = vectors
	s.state = StateLoaded
	return nil
}

func readVectors(path string, dimensions int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != dimensions {
		return nil, fmt.Errorf("dimension mismatch: file has %d, store expects %d", dim, dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, dimensions*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return vectors, nil
}

func readRecords(path string) ([]models.EmbeddingRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []models.EmbeddingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return records, nil
}

// Size returns the number of stored vectors.
func (s *FlatStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Dimensions returns the vector dimension the store was created with.
func (s *FlatStore) Dimensions() int {
	return s.dimensions
}

// ConversationCount returns the number of distinct conversations stored.
func (s *FlatStore) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.records))
	for _, rec := range s.records {
		seen[rec.ConversationID] = struct{}{}
	}
	return len(seen)
}

// State returns the persistence lifecycle state.
func (s *FlatStore) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Close is a no-op for FlatStore.
func (s *FlatStore) Close() error {
	return nil
}

// innerProduct over L2-normalized vectors equals cosine similarity.
func innerProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

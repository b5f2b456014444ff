package promptstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aisight/mitsuke/internal/embedding"
	"github.com/aisight/mitsuke/internal/models"
)

// ErrMemoryNotFound is returned when no memory exists for the requested id.
var ErrMemoryNotFound = errors.New("memory not found")

const (
	metadataFile  = "metadata.json"
	embeddingFile = "embedding.bin"
	referenceFile = "reference.img"

	warmLoadBudget = 50 * time.Millisecond
	coldLoadBudget = 150 * time.Millisecond
)

// LoadedPrompt is a visual prompt record together with its decoded embedding.
type LoadedPrompt struct {
	Record    models.VisualPromptRecord
	Embedding []float32
}

// Store owns persisted visual prompts. Each memory lives under
// <root>/<memory_id>/ as a metadata document, a reference image, and an opaque
// embedding artifact; metadata is mirrored into a SQLite index and a fuzzy
// name index. Saves never overwrite: every save yields a fresh memory id.
type Store struct {
	root     string
	embedder embedding.Embedder
	index    *memoryIndex
	names    *nameIndex
	logger   *zap.Logger

	mu   sync.RWMutex
	warm map[string]*LoadedPrompt
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a logger for debug and latency-warning events.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Open opens (or creates) a prompt store rooted at root, with its SQLite index
// at indexPath and Bleve name index at nameIndexPath. Existing memory
// directories are reconciled with the indexes, so memories deleted externally
// while the process was down disappear from search.
func Open(root, indexPath, nameIndexPath string, embedder embedding.Embedder, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	index, err := newMemoryIndex(indexPath)
	if err != nil {
		return nil, err
	}
	names, err := newNameIndex(nameIndexPath)
	if err != nil {
		_ = index.close()
		return nil, err
	}

	s := &Store{
		root:     root,
		embedder: embedder,
		index:    index,
		names:    names,
		logger:   zap.NewNop(),
		warm:     make(map[string]*LoadedPrompt),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.reconcile(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to reconcile store: %w", err)
	}
	return s, nil
}

// Save embeds the given frame region and persists it as a new memory.
// Duplicate object names are allowed; each save gets a distinct id and the
// caller resolves "most recent" via SearchByName ordering.
func (s *Store) Save(ctx context.Context, objectName string, frame *models.Frame, box models.BoundingBox, classID int, coords *models.SpatialCoordinates) (string, error) {
	vector, err := s.embedder.EmbedRegion(ctx, frame, box)
	if err != nil {
		return "", fmt.Errorf("failed to embed region: %w", err)
	}

	id := uuid.New().String()
	dir := filepath.Join(s.root, id)
	rec := models.VisualPromptRecord{
		MemoryID:           id,
		ObjectName:         objectName,
		BoundingBoxes:      []models.BoundingBox{box},
		ClassID:            classID,
		ReferenceImagePath: filepath.Join(dir, referenceFile),
		EmbeddingPath:      filepath.Join(dir, embeddingFile),
		Coordinates:        coords,
		CreatedAt:          time.Now(),
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create memory directory: %w", err)
	}
	if err := os.WriteFile(rec.EmbeddingPath, encodeEmbedding(vector), 0600); err != nil {
		return "", fmt.Errorf("failed to write embedding artifact: %w", err)
	}
	if err := os.WriteFile(rec.ReferenceImagePath, frame.Data, 0600); err != nil {
		return "", fmt.Errorf("failed to write reference image: %w", err)
	}
	// Metadata last: a directory without metadata.json is an aborted save and
	// is ignored by reconcile.
	metadataJSON, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), metadataJSON, 0600); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := s.index.insert(ctx, &rec); err != nil {
		return "", fmt.Errorf("failed to index memory: %w", err)
	}
	if err := s.names.add(id, objectName); err != nil {
		return "", fmt.Errorf("failed to index name: %w", err)
	}

	s.mu.Lock()
	s.warm[id] = &LoadedPrompt{Record: rec, Embedding: vector}
	s.mu.Unlock()

	s.logger.Debug("memory saved",
		zap.String("memory_id", id),
		zap.String("object_name", objectName))
	return id, nil
}

// Load returns the prompt for id, from the warm cache when possible.
// Fails with ErrMemoryNotFound when the memory does not exist.
func (s *Store) Load(ctx context.Context, id string) (*LoadedPrompt, error) {
	start := time.Now()

	s.mu.RLock()
	cached, ok := s.warm[id]
	s.mu.RUnlock()
	if ok {
		if elapsed := time.Since(start); elapsed > warmLoadBudget {
			s.logger.Warn("warm load exceeded budget",
				zap.String("memory_id", id), zap.Duration("elapsed", elapsed))
		}
		return cached, nil
	}

	loaded, err := s.loadFromDisk(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.warm[id] = loaded
	s.mu.Unlock()

	if elapsed := time.Since(start); elapsed > coldLoadBudget {
		s.logger.Warn("cold load exceeded budget",
			zap.String("memory_id", id), zap.Duration("elapsed", elapsed))
	}
	return loaded, nil
}

func (s *Store) loadFromDisk(id string) (*LoadedPrompt, error) {
	dir := filepath.Join(s.root, id)
	metadataJSON, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMemoryNotFound, id)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	var rec models.VisualPromptRecord
	if err := json.Unmarshal(metadataJSON, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, embeddingFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding artifact: %w", err)
	}
	vector, err := decodeEmbedding(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedding artifact: %w", err)
	}
	return &LoadedPrompt{Record: rec, Embedding: vector}, nil
}

// GetRecord returns the metadata for id from the SQLite mirror, without
// touching the embedding artifact. Fails with ErrMemoryNotFound when absent.
func (s *Store) GetRecord(ctx context.Context, id string) (*models.VisualPromptRecord, error) {
	rec, err := s.index.get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrMemoryNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

// SearchByName returns memory ids for name, most recent first. Exact name
// matches come from the SQLite index; when there are none, the fuzzy name
// index widens the candidate set.
func (s *Store) SearchByName(ctx context.Context, name string) ([]string, error) {
	ids, err := s.index.byName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		return ids, nil
	}
	candidates, err := s.names.search(name, 50)
	if err != nil {
		return nil, err
	}
	return s.index.orderByRecency(ctx, candidates)
}

// Count returns the number of stored memories.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.index.count(ctx)
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// forget drops a memory from the indexes and warm cache. Deletion of the
// directory itself is the external Memory layer's call; we only stop serving it.
func (s *Store) forget(ctx context.Context, id string) {
	if err := s.index.remove(ctx, id); err != nil {
		s.logger.Warn("failed to drop memory from index", zap.String("memory_id", id), zap.Error(err))
	}
	if err := s.names.remove(id); err != nil {
		s.logger.Warn("failed to drop memory from name index", zap.String("memory_id", id), zap.Error(err))
	}
	s.mu.Lock()
	delete(s.warm, id)
	s.mu.Unlock()
	s.logger.Debug("memory forgotten", zap.String("memory_id", id))
}

// Close closes the underlying indexes.
func (s *Store) Close() error {
	return multierr.Append(s.index.close(), s.names.close())
}

// encodeEmbedding serializes a vector as little-endian float32 bytes. The
// resulting artifact round-trips byte-identically through decodeEmbedding.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("artifact length %d is not a multiple of 4", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}

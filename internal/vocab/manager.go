// Package vocab owns the bounded, persisted adaptive vocabulary consumed by the
// contextual detector. Base terms are immutable; dynamic terms are learned from
// external sources, bounded at a capacity, and pruned by age and use count.
package vocab

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aisight/mitsuke/internal/models"
)

// CapacityError reports candidates rejected because the dynamic vocabulary is full.
// Accepted candidates from the same call are still applied and persisted.
type CapacityError struct {
	Rejected []string
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("vocabulary capacity %d exceeded: rejected %s",
		e.Capacity, strings.Join(e.Rejected, ", "))
}

// Manager is the single writer for the adaptive vocabulary. Three external
// sources may call AddTerms concurrently; all mutation is serialized behind
// one mutex and reads return immutable snapshots.
type Manager struct {
	mu       sync.Mutex
	base     map[string]struct{}
	baseList []string
	dynamic  map[string]models.VocabularyEntry
	capacity int
	path     string
	// dirty marks in-memory state not yet flushed to disk (RecordUse updates,
	// or a failed persist). The prune loop re-flushes it.
	dirty  bool
	logger *zap.Logger
	now    func() time.Time

	pruneInterval time.Duration
	maxAge        time.Duration
	minUseCount   int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a logger for debug and persistence-failure events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source (synthetic clocks in tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPrunePolicy sets the background prune schedule and predicate parameters.
func WithPrunePolicy(interval, maxAge time.Duration, minUseCount int) Option {
	return func(m *Manager) {
		m.pruneInterval = interval
		m.maxAge = maxAge
		m.minUseCount = minUseCount
	}
}

// NewManager creates a vocabulary manager persisting at path. An existing
// document at path is loaded; its dynamic terms are kept (base terms always
// come from baseTerms, and any dynamic term shadowed by a base term is dropped).
func NewManager(path string, capacity int, baseTerms []string, opts ...Option) (*Manager, error) {
	if capacity <= 0 {
		capacity = 50
	}
	m := &Manager{
		base:          make(map[string]struct{}, len(baseTerms)),
		dynamic:       make(map[string]models.VocabularyEntry),
		capacity:      capacity,
		path:          path,
		logger:        zap.NewNop(),
		now:           time.Now,
		pruneInterval: 5 * time.Minute,
		maxAge:        24 * time.Hour,
		minUseCount:   3,
	}
	for _, opt := range opts {
		opt(m)
	}
	for _, t := range baseTerms {
		t = normalize(t)
		if t == "" {
			continue
		}
		if _, ok := m.base[t]; !ok {
			m.base[t] = struct{}{}
			m.baseList = append(m.baseList, t)
		}
	}
	sort.Strings(m.baseList)

	doc, err := loadDocument(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}
	if doc != nil {
		for term, entry := range doc.DynamicTerms {
			term = normalize(term)
			if _, isBase := m.base[term]; isBase || term == "" {
				continue
			}
			if len(m.dynamic) >= m.capacity {
				break
			}
			entry.Term = term
			m.dynamic[term] = entry
		}
	}
	return m, nil
}

// AddTerms normalizes and inserts candidates from source. Duplicates of base or
// dynamic terms are skipped. Candidates beyond capacity are rejected with a
// CapacityError; the accepted subset is still applied and persisted before the
// call returns.
func (m *Manager) AddTerms(ctx context.Context, candidates []string, source models.TermSource) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var inserted []string
	var rejected []string
	for _, c := range candidates {
		term := normalize(c)
		if term == "" {
			continue
		}
		if _, ok := m.base[term]; ok {
			continue
		}
		if _, ok := m.dynamic[term]; ok {
			continue
		}
		if len(m.dynamic) >= m.capacity {
			rejected = append(rejected, term)
			continue
		}
		m.dynamic[term] = models.VocabularyEntry{
			Term:       term,
			Source:     source,
			AddedAt:    now,
			LastUsedAt: now,
			UseCount:   0,
		}
		inserted = append(inserted, term)
	}

	var err error
	if len(inserted) > 0 {
		// Write-before-acknowledge: accepted terms are durable when we return.
		if perr := m.flushLocked(); perr != nil {
			err = perr
		}
	}
	if len(rejected) > 0 {
		err = multierr.Append(err, &CapacityError{Rejected: rejected, Capacity: m.capacity})
	}
	if len(inserted) > 0 {
		m.logger.Debug("terms added",
			zap.Strings("terms", inserted),
			zap.String("source", string(source)),
			zap.Int("dynamic_count", len(m.dynamic)))
	}
	return inserted, err
}

// RecordUse bumps the use count and last-used time of a dynamic term.
// Unknown terms (including base terms) are a no-op. The update is flushed by
// the next prune tick, keeping disk I/O out of the per-frame path.
func (m *Manager) RecordUse(term string) {
	term = normalize(term)
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.dynamic[term]
	if !ok {
		return
	}
	entry.UseCount++
	entry.LastUsedAt = m.now()
	m.dynamic[term] = entry
	m.dirty = true
}

// Prune removes dynamic entries whose age exceeds maxAge AND whose use count is
// below minUseCount. Base terms are never touched. Returns the number removed.
func (m *Manager) Prune(maxAge time.Duration, minUseCount int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for term, entry := range m.dynamic {
		if now.Sub(entry.AddedAt) > maxAge && entry.UseCount < minUseCount {
			delete(m.dynamic, term)
			removed++
		}
	}
	if removed > 0 {
		m.dirty = true
		m.logger.Debug("vocabulary pruned",
			zap.Int("removed", removed),
			zap.Int("dynamic_count", len(m.dynamic)))
	}
	if m.dirty {
		if err := m.flushLocked(); err != nil {
			m.logger.Warn("vocabulary flush failed, will retry next cycle", zap.Error(err))
		}
	}
	return removed
}

// Start runs the background prune loop until ctx is cancelled. It runs on its
// own schedule, independent of the per-frame path.
func (m *Manager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Prune(m.maxAge, m.minUseCount)
		case <-ctx.Done():
			return
		}
	}
}

// CurrentTerms returns a sorted snapshot of base plus dynamic terms. The
// snapshot is consistent: no partial view of a concurrent mutation.
func (m *Manager) CurrentTerms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	terms := make([]string, 0, len(m.baseList)+len(m.dynamic))
	terms = append(terms, m.baseList...)
	for term := range m.dynamic {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Entry returns the dynamic entry for term, if present.
func (m *Manager) Entry(term string) (models.VocabularyEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.dynamic[normalize(term)]
	return entry, ok
}

// Counts returns the number of base and dynamic terms.
func (m *Manager) Counts() (base, dynamic int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.baseList), len(m.dynamic)
}

// Capacity returns the dynamic term capacity.
func (m *Manager) Capacity() int {
	return m.capacity
}

func normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

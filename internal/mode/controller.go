// Package mode owns the contextual detector's active mode and its embedding
// context: Discovery (built-in vocabulary), Adaptive (learned vocabulary), or
// Recall (a single stored visual prompt). The committed context is swapped
// atomically so detection never observes a half-built one.
package mode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aisight/mitsuke/internal/embedding"
	"github.com/aisight/mitsuke/internal/models"
	"github.com/aisight/mitsuke/internal/promptstore"
	"github.com/aisight/mitsuke/internal/vocab"
)

// SwitchError reports a failed mode switch. The controller stays in its
// previous mode when a switch fails.
type SwitchError struct {
	From models.DetectorMode
	To   models.DetectorMode
	Err  error
}

func (e *SwitchError) Error() string {
	return fmt.Sprintf("switch %s -> %s failed: %v", e.From, e.To, e.Err)
}

func (e *SwitchError) Unwrap() error {
	return e.Err
}

// EmbeddingContext is an immutable context the contextual detector reads.
// Vectors[i] is the embedding for Terms[i]; both are nil in Discovery mode,
// where the detector falls back to its built-in vocabulary.
type EmbeddingContext struct {
	Mode     models.DetectorMode
	Terms    []string
	Vectors  [][]float32
	MemoryID string
}

// Controller serializes mode switches and publishes the committed context.
type Controller struct {
	vocab    *vocab.Manager
	store    *promptstore.Store
	embedder embedding.Embedder
	terms    *embedding.TermCache
	logger   *zap.Logger
	budget   time.Duration

	// switchMu serializes switches; a request arriving mid-switch queues
	// behind it. Readers go through committed and never block.
	switchMu  sync.Mutex
	committed atomic.Pointer[EmbeddingContext]

	// Last Adaptive activation, reused when the term set is unchanged.
	lastAdaptiveKey string
	lastAdaptive    *EmbeddingContext
	recomputes      int
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets a logger for switch timing and budget warnings.
func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithSwitchBudget sets the soft per-switch latency budget.
func WithSwitchBudget(d time.Duration) ControllerOption {
	return func(c *Controller) { c.budget = d }
}

// NewController creates a controller starting in Discovery mode.
func NewController(v *vocab.Manager, store *promptstore.Store, embedder embedding.Embedder, opts ...ControllerOption) *Controller {
	c := &Controller{
		vocab:    v,
		store:    store,
		embedder: embedder,
		terms:    embedding.NewTermCache(1000),
		logger:   zap.NewNop(),
		budget:   50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.committed.Store(&EmbeddingContext{Mode: models.ModeDiscovery})
	return c
}

// Current returns the last fully committed context. Safe to call from the
// per-frame path during an in-flight switch.
func (c *Controller) Current() *EmbeddingContext {
	return c.committed.Load()
}

// SwitchTo moves the controller to target, returning the switch duration.
// Re-requesting the active mode is a no-op. On failure the previous mode stays
// committed and a SwitchError is returned. Exceeding the soft budget logs a
// warning; the switch still completes.
func (c *Controller) SwitchTo(ctx context.Context, target models.DetectorMode, memoryID string) (time.Duration, error) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	start := time.Now()
	cur := c.committed.Load()
	if cur.Mode == target && (target != models.ModeRecall || cur.MemoryID == memoryID) {
		return time.Since(start), nil
	}

	var next *EmbeddingContext
	switch target {
	case models.ModeDiscovery:
		next = &EmbeddingContext{Mode: models.ModeDiscovery}
	case models.ModeAdaptive:
		built, err := c.buildAdaptive(ctx)
		if err != nil {
			return time.Since(start), &SwitchError{From: cur.Mode, To: target, Err: err}
		}
		next = built
	case models.ModeRecall:
		loaded, err := c.store.Load(ctx, memoryID)
		if err != nil {
			return time.Since(start), &SwitchError{From: cur.Mode, To: target, Err: err}
		}
		next = &EmbeddingContext{
			Mode:     models.ModeRecall,
			Terms:    []string{strings.ToLower(loaded.Record.ObjectName)},
			Vectors:  [][]float32{loaded.Embedding},
			MemoryID: memoryID,
		}
	default:
		return time.Since(start), &SwitchError{From: cur.Mode, To: target, Err: fmt.Errorf("unknown mode %q", target)}
	}

	c.committed.Store(next)

	elapsed := time.Since(start)
	if elapsed > c.budget {
		c.logger.Warn("mode switch exceeded budget",
			zap.String("from", string(cur.Mode)),
			zap.String("to", string(target)),
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", c.budget))
	} else {
		c.logger.Debug("mode switched",
			zap.String("from", string(cur.Mode)),
			zap.String("to", string(target)),
			zap.Duration("elapsed", elapsed))
	}
	return elapsed, nil
}

// buildAdaptive assembles the adaptive context from the current vocabulary
// snapshot. An unchanged term set reuses the previous context outright;
// otherwise unchanged individual terms still come from the term cache and only
// new terms are embedded.
func (c *Controller) buildAdaptive(ctx context.Context) (*EmbeddingContext, error) {
	terms := c.vocab.CurrentTerms()
	key := strings.Join(terms, "\x1f")
	if c.lastAdaptive != nil && key == c.lastAdaptiveKey {
		return c.lastAdaptive, nil
	}

	vectors := make([][]float32, len(terms))
	for i, term := range terms {
		if v, ok := c.terms.Get(term); ok {
			vectors[i] = v
			continue
		}
		v, err := c.embedder.EmbedText(ctx, term)
		if err != nil {
			return nil, fmt.Errorf("failed to embed term %q: %w", term, err)
		}
		c.terms.Set(term, v)
		vectors[i] = v
	}
	c.recomputes++

	built := &EmbeddingContext{
		Mode:    models.ModeAdaptive,
		Terms:   terms,
		Vectors: vectors,
	}
	c.lastAdaptiveKey = key
	c.lastAdaptive = built
	return built, nil
}

// Recomputes returns how many times the adaptive context was rebuilt rather
// than served from cache.
func (c *Controller) Recomputes() int {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()
	return c.recomputes
}

package mode

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aisight/mitsuke/internal/embedding"
	"github.com/aisight/mitsuke/internal/models"
	"github.com/aisight/mitsuke/internal/promptstore"
	"github.com/aisight/mitsuke/internal/vocab"
)

type fixture struct {
	vocab      *vocab.Manager
	store      *promptstore.Store
	controller *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	emb := embedding.NewMockEmbedder(8)

	v, err := vocab.NewManager(filepath.Join(dir, "vocabulary.json"), 50, []string{"person", "car"})
	if err != nil {
		t.Fatal(err)
	}
	s, err := promptstore.Open(
		filepath.Join(dir, "memories"),
		filepath.Join(dir, "memories.db"),
		filepath.Join(dir, "names"),
		emb,
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	return &fixture{
		vocab:      v,
		store:      s,
		controller: NewController(v, s, emb),
	}
}

func testFrame(w, h int, fill byte) *models.Frame {
	return &models.Frame{Seq: 1, Width: w, Height: h, Data: bytes.Repeat([]byte{fill}, w*h*3)}
}

func TestSwitchTo_StartsInDiscovery(t *testing.T) {
	f := newFixture(t)
	if got := f.controller.Current().Mode; got != models.ModeDiscovery {
		t.Errorf("initial mode = %s, want discovery", got)
	}
}

func TestSwitchTo_AdaptiveCacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.SwitchTo(ctx, models.ModeAdaptive, ""); err != nil {
		t.Fatal(err)
	}
	if f.controller.Recomputes() != 1 {
		t.Fatalf("recomputes = %d after first switch, want 1", f.controller.Recomputes())
	}

	// Leave and come back with the vocabulary unchanged: cache hit.
	if _, err := f.controller.SwitchTo(ctx, models.ModeDiscovery, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.controller.SwitchTo(ctx, models.ModeAdaptive, ""); err != nil {
		t.Fatal(err)
	}
	if f.controller.Recomputes() != 1 {
		t.Errorf("recomputes = %d after unchanged re-switch, want 1", f.controller.Recomputes())
	}

	// A vocabulary change invalidates the cached context.
	if _, err := f.vocab.AddTerms(ctx, []string{"fire extinguisher"}, models.SourceSceneDescription); err != nil {
		t.Fatal(err)
	}
	if _, err := f.controller.SwitchTo(ctx, models.ModeDiscovery, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.controller.SwitchTo(ctx, models.ModeAdaptive, ""); err != nil {
		t.Fatal(err)
	}
	if f.controller.Recomputes() != 2 {
		t.Errorf("recomputes = %d after vocabulary change, want 2", f.controller.Recomputes())
	}

	current := f.controller.Current()
	if len(current.Terms) != 3 || len(current.Vectors) != 3 {
		t.Errorf("context has %d terms / %d vectors, want 3/3", len(current.Terms), len(current.Vectors))
	}
}

func TestSwitchTo_ActiveModeNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.SwitchTo(ctx, models.ModeAdaptive, ""); err != nil {
		t.Fatal(err)
	}
	before := f.controller.Current()
	if _, err := f.controller.SwitchTo(ctx, models.ModeAdaptive, ""); err != nil {
		t.Fatal(err)
	}
	if f.controller.Current() != before {
		t.Error("re-requesting the active mode replaced the committed context")
	}
	if f.controller.Recomputes() != 1 {
		t.Errorf("recomputes = %d, want 1", f.controller.Recomputes())
	}
}

func TestSwitchTo_RecallUnknownIDKeepsMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.controller.SwitchTo(ctx, models.ModeAdaptive, ""); err != nil {
		t.Fatal(err)
	}
	_, err := f.controller.SwitchTo(ctx, models.ModeRecall, "no-such-memory")
	if !errors.Is(err, promptstore.ErrMemoryNotFound) {
		t.Fatalf("want ErrMemoryNotFound, got %v", err)
	}
	var swErr *SwitchError
	if !errors.As(err, &swErr) {
		t.Fatalf("want SwitchError, got %T", err)
	}
	if got := f.controller.Current().Mode; got != models.ModeAdaptive {
		t.Errorf("mode after failed recall = %s, want adaptive", got)
	}
}

func TestSwitchTo_Recall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.store.Save(ctx, "Wallet", testFrame(64, 48, 11), models.BoundingBox{X: 10, Y: 10, Width: 40, Height: 30}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.controller.SwitchTo(ctx, models.ModeRecall, id); err != nil {
		t.Fatal(err)
	}

	current := f.controller.Current()
	if current.Mode != models.ModeRecall || current.MemoryID != id {
		t.Errorf("context = %+v", current)
	}
	if len(current.Terms) != 1 || current.Terms[0] != "wallet" {
		t.Errorf("Terms = %v, want [wallet]", current.Terms)
	}
	if len(current.Vectors) != 1 || len(current.Vectors[0]) != 8 {
		t.Errorf("Vectors = %d x %d", len(current.Vectors), len(current.Vectors[0]))
	}
}

func TestSwitchTo_UnknownMode(t *testing.T) {
	f := newFixture(t)
	if _, err := f.controller.SwitchTo(context.Background(), models.DetectorMode("turbo"), ""); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if got := f.controller.Current().Mode; got != models.ModeDiscovery {
		t.Errorf("mode after failed switch = %s, want discovery", got)
	}
}

func TestSwitchTo_ConcurrentSwitchesSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	modes := []models.DetectorMode{models.ModeAdaptive, models.ModeDiscovery}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(m models.DetectorMode) {
			defer wg.Done()
			if _, err := f.controller.SwitchTo(ctx, m, ""); err != nil {
				t.Errorf("SwitchTo(%s): %v", m, err)
			}
		}(modes[i%2])
	}

	// Readers during in-flight switches always see a fully committed context.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			cur := f.controller.Current()
			if cur == nil || !cur.Mode.Valid() {
				t.Error("observed an invalid committed context")
				return
			}
			if cur.Mode == models.ModeAdaptive && len(cur.Terms) != len(cur.Vectors) {
				t.Error("observed a half-built adaptive context")
				return
			}
		}
	}()
	wg.Wait()
	<-done
}

// Package pipeline runs the per-frame detection cycle: the safety detector and
// the mode-driven contextual detector fork onto separate goroutines, safety
// alerts fire as soon as the safety pass finishes, and the joined result
// carries both detection sets.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aisight/mitsuke/internal/config"
	"github.com/aisight/mitsuke/internal/detect"
	"github.com/aisight/mitsuke/internal/mode"
	"github.com/aisight/mitsuke/internal/models"
	"github.com/aisight/mitsuke/internal/validate"
	"github.com/aisight/mitsuke/internal/vocab"
)

// Alerter receives proximity alerts for hazard detections. Fire must not
// block; slow consumers should buffer internally.
type Alerter interface {
	Fire(alert models.SafetyAlert)
}

// NopAlerter discards alerts.
type NopAlerter struct{}

func (NopAlerter) Fire(models.SafetyAlert) {}

// Orchestrator coordinates one detection cycle per frame.
type Orchestrator struct {
	safety     detect.SafetyDetector
	contextual detect.ContextDetector
	controller *mode.Controller
	vocab      *vocab.Manager
	validator  *validate.Validator
	alerter    Alerter
	cfg        *config.DetectionConfig
	logger     *zap.Logger

	hazards map[string]bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithAlerter sets the alert sink for hazard proximity alerts.
func WithAlerter(a Alerter) Option {
	return func(o *Orchestrator) {
		o.alerter = a
	}
}

// NewOrchestrator creates an orchestrator with the given dependencies.
func NewOrchestrator(
	safety detect.SafetyDetector,
	contextual detect.ContextDetector,
	controller *mode.Controller,
	vocabulary *vocab.Manager,
	validator *validate.Validator,
	cfg *config.DetectionConfig,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		safety:     safety,
		contextual: contextual,
		controller: controller,
		vocab:      vocabulary,
		validator:  validator,
		alerter:    NopAlerter{},
		cfg:        cfg,
		logger:     zap.NewNop(),
		hazards:    make(map[string]bool, len(cfg.HazardClasses)),
	}
	for _, class := range cfg.HazardClasses {
		o.hazards[class] = true
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessFrame runs both detectors concurrently against the frame and joins
// their results. A failure in one detector never suppresses the other's
// output: the failed side contributes an empty result and an error log.
// Safety alerts for hazard detections within the configured distance tiers
// fire before ProcessFrame returns, from inside the safety goroutine, so a
// slow contextual pass cannot delay them.
func (o *Orchestrator) ProcessFrame(ctx context.Context, frame *models.Frame) (*models.FrameResult, error) {
	if frame == nil {
		return nil, fmt.Errorf("nil frame")
	}
	ec := o.controller.Current()

	var (
		safetyResults  []models.SafetyDetection
		contextResults []models.Detection
		safetyTime     time.Duration
		contextTime    time.Duration
		errChan        = make(chan error, 2)
		wg             sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		results, err := o.safety.Detect(ctx, frame)
		safetyTime = time.Since(start)
		if err != nil {
			errChan <- fmt.Errorf("safety detection failed: %w", err)
			return
		}
		safetyResults = results
		o.fireAlerts(frame.Seq, results)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		results, err := o.contextual.Detect(ctx, frame, ec)
		contextTime = time.Since(start)
		if err != nil {
			errChan <- fmt.Errorf("contextual detection failed: %w", err)
			return
		}
		contextResults = results
	}()

	wg.Wait()
	close(errChan)
	for err := range errChan {
		o.logger.Error("detector failed", zap.Uint64("seq", frame.Seq), zap.Error(err))
	}

	o.checkBudget("safety", safetyTime, o.cfg.SafetyBudgetMs, frame.Seq)
	contextBudget := o.cfg.ContextBudgetMs
	if ec.Mode == models.ModeRecall {
		contextBudget = o.cfg.RecallBudgetMs
	}
	o.checkBudget("contextual", contextTime, contextBudget, frame.Seq)

	validated := o.validator.Validate(contextResults, ec.Mode)
	for _, d := range validated {
		o.vocab.RecordUse(d.Label)
	}

	return &models.FrameResult{
		Seq:              frame.Seq,
		Mode:             ec.Mode,
		SafetyDetections: safetyResults,
		Detections:       validated,
		SafetyTimeMs:     safetyTime.Milliseconds(),
		ContextTimeMs:    contextTime.Milliseconds(),
	}, nil
}

// fireAlerts emits one alert per hazard detection inside the nearest matching
// distance tier. Tier 0 is the closest boundary.
func (o *Orchestrator) fireAlerts(seq uint64, detections []models.SafetyDetection) {
	for _, d := range detections {
		if !o.hazards[d.Label] {
			continue
		}
		tier := -1
		for i, boundary := range o.cfg.DistanceTiersMeters {
			if d.EstimatedDistance <= boundary {
				tier = i
				break
			}
		}
		if tier < 0 {
			continue
		}
		o.alerter.Fire(models.SafetyAlert{
			Seq:               seq,
			Label:             d.Label,
			Tier:              tier,
			EstimatedDistance: d.EstimatedDistance,
		})
	}
}

func (o *Orchestrator) checkBudget(name string, elapsed time.Duration, budgetMs int, seq uint64) {
	if budgetMs <= 0 {
		return
	}
	if elapsed > time.Duration(budgetMs)*time.Millisecond {
		o.logger.Warn("detector over budget",
			zap.String("detector", name),
			zap.Uint64("seq", seq),
			zap.Duration("elapsed", elapsed),
			zap.Int("budget_ms", budgetMs))
	}
}

// Close releases both detectors. Errors are aggregated so a failing safety
// detector never leaves the contextual one open.
func (o *Orchestrator) Close() error {
	return multierr.Append(o.safety.Close(), o.contextual.Close())
}

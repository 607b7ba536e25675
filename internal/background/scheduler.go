// Package background runs the periodic maintenance work of the memory
// graph, currently the relevance decay sweep.
package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dev.helix.recall/internal/observability/metrics"
)

// DecayRunner runs one relevance decay sweep and reports how many facts
// fell below the cleanup threshold.
type DecayRunner interface {
	RunDecayPass(ctx context.Context) (int, error)
}

// SchedulerConfig holds configuration for the decay scheduler
type SchedulerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"run_on_start"`
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Interval:   24 * time.Hour,
		RunOnStart: true,
	}
}

// Scheduler triggers decay sweeps on a fixed interval
type Scheduler struct {
	runner    DecayRunner
	config    *SchedulerConfig
	collector *metrics.Collector
	logger    *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewScheduler creates a decay scheduler. The collector is optional;
// nil config or logger fall back to defaults.
func NewScheduler(runner DecayRunner, config *SchedulerConfig, logger *logrus.Logger, collector *metrics.Collector) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.Interval <= 0 {
		// time.NewTicker panics on non-positive intervals
		config.Interval = DefaultSchedulerConfig().Interval
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	return &Scheduler{
		runner:    runner,
		config:    config,
		collector: collector,
		logger:    logger,
	}
}

// Start launches the sweep loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("decay scheduler already started")
	}

	s.logger.WithFields(logrus.Fields{
		"interval":     s.config.Interval,
		"run_on_start": s.config.RunOnStart,
	}).Info("Starting decay scheduler")

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.loop()

	s.started = true
	return nil
}

// Stop halts the sweep loop and waits for it to drain. Safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info("Stopping decay scheduler")
	s.cancel()
	s.wg.Wait()
	s.started = false
	s.logger.Info("Decay scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.runPass()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runPass()
		}
	}
}

func (s *Scheduler) runPass() {
	started := time.Now()

	candidates, err := s.runner.RunDecayPass(s.ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Decay pass failed")
		return
	}

	if s.collector != nil {
		s.collector.DecayPassCompleted(candidates)
	}

	s.logger.WithFields(logrus.Fields{
		"cleanup_candidates": candidates,
		"duration":           time.Since(started),
	}).Info("Decay pass completed")
}

package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Scheduler drives recurring sweeps and counter polls. Sweeps run every
// sweep interval outside quiet hours; polls run every poll interval and are
// followed by stale-device and history maintenance.
type Scheduler struct {
	sweeper *Sweeper
	sampler *Sampler
	store   *DiscoveryStore
	events  emitter
	logger  *zap.Logger

	sweepInterval time.Duration
	pollInterval  time.Duration
	offlineAfter  time.Duration
	retention     time.Duration
	quietStart    int // minutes since midnight, -1 when unset
	quietEnd      int
	nowFunc       func() time.Time

	polling  atomic.Bool
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewScheduler creates a scheduler. cfg is expected to be validated; an
// unparsable quiet-hours window is treated as unset.
func NewScheduler(sweeper *Sweeper, sampler *Sampler, store *DiscoveryStore, bus plugin.EventBus, cfg Config, logger *zap.Logger) *Scheduler {
	start, end, err := cfg.quietHours()
	if err != nil {
		start, end = -1, -1
	}
	return &Scheduler{
		sweeper:       sweeper,
		sampler:       sampler,
		store:         store,
		events:        emitter{bus: bus},
		logger:        logger,
		sweepInterval: cfg.SweepInterval,
		pollInterval:  cfg.PollInterval,
		offlineAfter:  cfg.OfflineAfter,
		retention:     cfg.HistoryRetention,
		quietStart:    start,
		quietEnd:      end,
		nowFunc:       time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Run sweeps immediately, then loops until ctx is cancelled or Stop is
// called. In-flight sweeps and polls are cancelled and waited for before
// Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	sweepTicker := time.NewTicker(s.sweepInterval)
	defer sweepTicker.Stop()
	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	s.logger.Info("discovery scheduler started",
		zap.Duration("sweep_interval", s.sweepInterval),
		zap.Duration("poll_interval", s.pollInterval),
		zap.Int("quiet_start_min", s.quietStart),
		zap.Int("quiet_end_min", s.quietEnd),
	)

	s.sweepTick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("discovery scheduler stopped (context cancelled)")
			return
		case <-s.stopCh:
			s.logger.Info("discovery scheduler stopped")
			return
		case <-sweepTicker.C:
			s.sweepTick(ctx)
		case <-pollTicker.C:
			s.pollTick(ctx)
		}
	}
}

// Stop signals Run to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// sweepTick starts a background sweep unless quiet hours are in effect or
// a sweep (scheduled or manual) is still running.
func (s *Scheduler) sweepTick(ctx context.Context) bool {
	if inQuietHours(s.nowFunc(), s.quietStart, s.quietEnd) {
		s.logger.Debug("scheduled sweep skipped: quiet hours")
		return false
	}
	if s.sweeper.Active() {
		s.logger.Debug("scheduled sweep skipped: sweep already running")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err := s.sweeper.Run(ctx, nil)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, ErrSweepActive), errors.Is(err, ErrNoRanges):
			s.logger.Debug("scheduled sweep not started", zap.Error(err))
		default:
			s.logger.Error("scheduled sweep failed", zap.Error(err))
		}
	}()
	return true
}

// pollTick samples interface counters then runs maintenance. Overlapping
// ticks are skipped.
func (s *Scheduler) pollTick(ctx context.Context) bool {
	if !s.polling.CompareAndSwap(false, true) {
		s.logger.Debug("poll skipped: previous poll still running")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.polling.Store(false)

		res, err := s.sampler.Tick(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("interface poll failed", zap.Error(err))
			}
			return
		}
		s.logger.Debug("interface poll completed",
			zap.Int("devices", res.Devices),
			zap.Int("interfaces", res.Interfaces),
			zap.Int("failed", res.Failed),
		)
		s.maintain(ctx)
	}()
	return true
}

// maintain marks devices unseen for offlineAfter as offline and prunes
// transfer history past the retention window.
func (s *Scheduler) maintain(ctx context.Context) {
	now := s.nowFunc().UTC()
	if s.offlineAfter > 0 {
		ids, err := s.store.MarkStale(ctx, now.Add(-s.offlineAfter))
		switch {
		case err != nil:
			s.logger.Warn("failed to mark stale devices", zap.Error(err))
		case len(ids) > 0:
			s.logger.Info("devices marked offline", zap.Int("count", len(ids)), zap.String("reason", "stale"))
			s.events.publish(ctx, TopicDeviceOffline, DeviceOfflineEvent{DeviceIDs: ids, Reason: "stale"})
		}
	}
	if s.retention > 0 {
		n, err := s.store.PruneSamples(ctx, now.Add(-s.retention))
		if err != nil {
			s.logger.Warn("failed to prune transfer history", zap.Error(err))
		} else if n > 0 {
			s.logger.Debug("transfer history pruned", zap.Int64("rows", n))
		}
	}
}

// quietHours parses the configured window into minutes since midnight.
// Both bounds unset yields -1, -1.
func (c Config) quietHours() (start, end int, err error) {
	if c.QuietHoursStart == "" && c.QuietHoursEnd == "" {
		return -1, -1, nil
	}
	if c.QuietHoursStart == "" || c.QuietHoursEnd == "" {
		return -1, -1, errors.New("quiet_hours_start and quiet_hours_end must be set together")
	}
	start, ok := parseHHMM(c.QuietHoursStart)
	if !ok {
		return -1, -1, fmt.Errorf("quiet_hours_start: %q is not HH:MM", c.QuietHoursStart)
	}
	end, ok = parseHHMM(c.QuietHoursEnd)
	if !ok {
		return -1, -1, fmt.Errorf("quiet_hours_end: %q is not HH:MM", c.QuietHoursEnd)
	}
	return start, end, nil
}

// inQuietHours reports whether now falls in [start, end). A window whose
// end is before its start wraps midnight. Equal bounds or unset (-1) bounds
// never match.
func inQuietHours(now time.Time, start, end int) bool {
	if start < 0 || end < 0 || start == end {
		return false
	}
	nowMin := now.Hour()*60 + now.Minute()
	if start < end {
		return nowMin >= start && nowMin < end
	}
	return nowMin >= start || nowMin < end
}

// parseHHMM parses "HH:MM" into minutes since midnight.
func parseHHMM(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

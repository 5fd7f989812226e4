package discovery

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/pkg/models"
)

// Sample is one reading of an interface's octet counters. HighCapacity
// marks 64-bit counters.
type Sample struct {
	BytesIn      uint64
	BytesOut     uint64
	HighCapacity bool
	At           time.Time
}

// RateResult is the outcome of comparing a sample against the previous one.
// A nil rate means undefined: there was no usable previous sample, or the
// counter went backwards. Updated is false when the sample must be ignored
// and the previous baseline kept.
type RateResult struct {
	InRate   *float64
	OutRate  *float64
	Baseline Sample
	Updated  bool
}

// ComputeRate derives bytes/sec rates from two counter readings.
//
//   - no previous sample: cur becomes the baseline, no rate
//   - same timestamp: no-op
//   - earlier timestamp (clock stepped back): cur becomes the baseline, no rate
//   - counter width changed (32 vs 64 bit): cur becomes the baseline, no rate
//   - cur < prev on a direction: counter reset, no rate for that direction
//   - otherwise (cur - prev) / seconds elapsed
func ComputeRate(prev *Sample, cur Sample) RateResult {
	if prev == nil {
		return RateResult{Baseline: cur, Updated: true}
	}
	elapsed := cur.At.Sub(prev.At)
	switch {
	case elapsed == 0:
		return RateResult{Baseline: *prev}
	case elapsed < 0, prev.HighCapacity != cur.HighCapacity:
		return RateResult{Baseline: cur, Updated: true}
	}

	secs := elapsed.Seconds()
	return RateResult{
		InRate:   deltaRate(prev.BytesIn, cur.BytesIn, secs),
		OutRate:  deltaRate(prev.BytesOut, cur.BytesOut, secs),
		Baseline: cur,
		Updated:  true,
	}
}

func deltaRate(prev, cur uint64, secs float64) *float64 {
	if cur < prev {
		return nil
	}
	r := float64(cur-prev) / secs
	return &r
}

// Mbps converts a bytes/sec rate to megabits/sec for display.
func Mbps(bytesPerSec float64) float64 {
	return bytesPerSec * 8 / 1_000_000
}

// TickResult summarises one sampler pass.
type TickResult struct {
	Devices    int `json:"devices"`
	Interfaces int `json:"interfaces"`
	Failed     int `json:"failed"`
}

// Sampler polls interface counters of online devices with an SNMP community
// and records transfer history.
type Sampler struct {
	store       *DiscoveryStore
	prober      Prober
	logger      *zap.Logger
	concurrency int
	hostTimeout time.Duration
	now         func() time.Time
}

// NewSampler creates a Sampler.
func NewSampler(store *DiscoveryStore, prober Prober, cfg Config, logger *zap.Logger) *Sampler {
	return &Sampler{
		store:       store,
		prober:      prober,
		logger:      logger,
		concurrency: max(cfg.Concurrency, 1),
		hostTimeout: cfg.HostTimeout(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Tick polls every online device with a known community once, with bounded
// concurrency. Per-device failures are logged and counted; Tick only fails when the
// device list cannot be read.
func (s *Sampler) Tick(ctx context.Context) (TickResult, error) {
	devices, _, err := s.store.ListDevices(ctx, ListOptions{
		Status:       models.DeviceStatusOnline,
		HasCommunity: true,
	})
	if err != nil {
		return TickResult{}, err
	}

	var (
		wg         sync.WaitGroup
		failed     atomic.Int64
		interfaces atomic.Int64
		sem        = make(chan struct{}, s.concurrency)
	)
	for i := range devices {
		select {
		case <-ctx.Done():
			wg.Wait()
			return TickResult{}, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(dev models.DiscoveredDevice) {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := s.pollDevice(ctx, dev)
			if err != nil {
				failed.Add(1)
				s.logger.Debug("poll failed", zap.String("ip", dev.IP), zap.Error(err))
				_ = s.store.AppendLog(ctx, &models.DiscoveryLogEntry{
					IP:      dev.IP,
					Level:   models.LogWarn,
					Action:  "poll_failed",
					Message: err.Error(),
				})
				return
			}
			interfaces.Add(int64(n))
		}(devices[i])
	}
	wg.Wait()

	res := TickResult{
		Devices:    len(devices),
		Interfaces: int(interfaces.Load()),
		Failed:     int(failed.Load()),
	}
	samplerTicks.Inc()
	return res, nil
}

func (s *Sampler) pollDevice(ctx context.Context, dev models.DiscoveredDevice) (int, error) {
	addr, err := netip.ParseAddr(dev.IP)
	if err != nil {
		return 0, err
	}
	hostCtx, cancel := context.WithTimeout(ctx, s.hostTimeout)
	defer cancel()

	counters, err := s.prober.Poll(hostCtx, addr, dev.SNMPCommunity)
	if err != nil {
		return 0, err
	}
	return len(counters), s.Record(ctx, dev.ID, counters, s.now())
}

// Record upserts each interface of a device and appends a transfer sample
// with rates computed against the interface's latest stored sample.
func (s *Sampler) Record(ctx context.Context, deviceID string, counters []InterfaceCounters, at time.Time) error {
	for i := range counters {
		c := counters[i]
		iface := &models.NetworkInterface{
			DeviceID:    deviceID,
			IfIndex:     c.Index,
			Name:        c.Name,
			Description: c.Descr,
			Type:        c.Type,
			SpeedBps:    c.Speed,
			MAC:         c.PhysAddr,
			Status:      operStatus(c.OperStatus),
			UpdatedAt:   at,
		}
		if err := s.store.UpsertInterface(ctx, iface); err != nil {
			return err
		}

		latest, err := s.store.LatestSample(ctx, iface.ID)
		if err != nil {
			return err
		}
		var prev *Sample
		if latest != nil {
			prev = &Sample{
				BytesIn:      latest.BytesIn,
				BytesOut:     latest.BytesOut,
				HighCapacity: latest.HighCapacity,
				At:           latest.SampledAt,
			}
		}
		res := ComputeRate(prev, Sample{
			BytesIn:      c.InOctets,
			BytesOut:     c.OutOctets,
			HighCapacity: c.HighCapacity,
			At:           at,
		})
		if !res.Updated {
			continue
		}
		if prev != nil && (res.InRate == nil || res.OutRate == nil) {
			counterResets.Inc()
		}

		if err := s.store.AppendSample(ctx, &models.TransferSample{
			InterfaceID:  iface.ID,
			BytesIn:      c.InOctets,
			BytesOut:     c.OutOctets,
			PacketsIn:    c.InPackets,
			PacketsOut:   c.OutPackets,
			ErrorsIn:     c.InErrors,
			ErrorsOut:    c.OutErrors,
			HighCapacity: c.HighCapacity,
			InRate:       res.InRate,
			OutRate:      res.OutRate,
			SampledAt:    at,
		}); err != nil {
			return err
		}
		if err := s.store.UpdateInterfaceRates(ctx, iface.ID, c, res.InRate, res.OutRate); err != nil {
			return err
		}
	}
	return nil
}

// operStatus maps ifOperStatus; only 1 (up) counts as up.
func operStatus(v int) models.InterfaceStatus {
	if v == 1 {
		return models.InterfaceUp
	}
	return models.InterfaceDown
}

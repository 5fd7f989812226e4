package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/pkg/models"
	"github.com/HerbHall/netsweep/pkg/plugin"
)

var (
	// ErrSweepActive is returned when a sweep is requested while one runs.
	ErrSweepActive = errors.New("a sweep is already running")
	// ErrNoRanges is returned when neither the caller nor the config names a range.
	ErrNoRanges = errors.New("no ranges to sweep")
)

// Sweeper runs one discovery pass over a set of ranges. At most one sweep
// runs at a time per Sweeper.
type Sweeper struct {
	store       *DiscoveryStore
	prober      Prober
	pinger      Pinger // nil disables the ICMP precheck
	sampler     *Sampler
	events      emitter
	logger      *zap.Logger
	ranges      []string
	concurrency int
	maxHosts    int
	hostTimeout time.Duration
	now         func() time.Time

	active atomic.Bool
}

// NewSweeper creates a Sweeper. pinger may be nil.
func NewSweeper(store *DiscoveryStore, prober Prober, pinger Pinger, sampler *Sampler, bus plugin.EventBus, cfg Config, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:       store,
		prober:      prober,
		pinger:      pinger,
		sampler:     sampler,
		events:      emitter{bus: bus},
		logger:      logger,
		ranges:      cfg.Ranges,
		concurrency: max(cfg.Concurrency, 1),
		maxHosts:    cfg.MaxHosts,
		hostTimeout: cfg.HostTimeout(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Active reports whether a sweep is in progress.
func (s *Sweeper) Active() bool {
	return s.active.Load()
}

// hostOutcome is what one host contributed to a sweep.
type hostOutcome struct {
	responded bool
	created   bool
}

// Run sweeps ranges, or the configured ranges when ranges is empty, and
// returns when the sweep is over.
//
// Every address is probed through a bounded worker pool with a per-host
// timeout. Responders are classified and upserted; devices already known in
// the swept ranges that did not answer are marked offline. Per-host errors
// are logged to the discovery log and do not fail the sweep. A cancelled
// sweep is recorded as cancelled and does not mark anything offline.
func (s *Sweeper) Run(ctx context.Context, ranges []string) (*models.Sweep, error) {
	sw, addrs, err := s.begin(ctx, ranges)
	if err != nil {
		return nil, err
	}
	return sw, s.execute(ctx, sw, addrs)
}

// Launch validates the request and creates the sweep record synchronously,
// then runs the sweep in a new goroutine. The returned Sweep is a snapshot
// of the record at creation. done, if non-nil, is called when the sweep ends.
func (s *Sweeper) Launch(ctx context.Context, ranges []string, done func(*models.Sweep, error)) (*models.Sweep, error) {
	sw, addrs, err := s.begin(ctx, ranges)
	if err != nil {
		return nil, err
	}
	snapshot := *sw
	go func() {
		err := s.execute(ctx, sw, addrs)
		if done != nil {
			done(sw, err)
		}
	}()
	return &snapshot, nil
}

// begin resolves and expands ranges, claims the active flag and records
// the sweep as running. On success the caller must call execute.
func (s *Sweeper) begin(ctx context.Context, ranges []string) (*models.Sweep, []netip.Addr, error) {
	if len(ranges) == 0 {
		ranges = s.ranges
	}
	if len(ranges) == 0 {
		return nil, nil, ErrNoRanges
	}
	addrs, err := ExpandRanges(ranges, s.maxHosts)
	if err != nil {
		return nil, nil, err
	}

	if !s.active.CompareAndSwap(false, true) {
		return nil, nil, ErrSweepActive
	}
	sw := &models.Sweep{
		Ranges:     ranges,
		Status:     models.SweepRunning,
		HostsTotal: len(addrs),
		StartedAt:  s.now(),
	}
	// The record outlives cancellation so a cancelled sweep is still recorded.
	if err := s.store.CreateSweep(context.WithoutCancel(ctx), sw); err != nil {
		s.active.Store(false)
		return nil, nil, err
	}
	return sw, addrs, nil
}

func (s *Sweeper) execute(ctx context.Context, sw *models.Sweep, addrs []netip.Addr) error {
	defer s.active.Store(false)
	bg := context.WithoutCancel(ctx)
	start := time.Now()

	s.logger.Info("sweep started",
		zap.String("sweep_id", sw.ID),
		zap.Strings("ranges", sw.Ranges),
		zap.Int("hosts", len(addrs)),
		zap.Int("concurrency", s.concurrency),
	)
	s.events.publish(ctx, TopicSweepStarted, *sw)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		responded = make(map[string]bool) // by IP
		sem       = make(chan struct{}, s.concurrency)
	)

dispatch:
	for _, addr := range addrs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(addr netip.Addr) {
			defer wg.Done()
			defer func() { <-sem }()

			out := s.sweepHost(ctx, sw.ID, addr)
			if !out.responded {
				return
			}
			mu.Lock()
			responded[addr.String()] = true
			sw.Responded++
			if out.created {
				sw.Created++
			}
			mu.Unlock()
		}(addr)
	}
	wg.Wait()

	if ctx.Err() != nil {
		sw.Status = models.SweepCancelled
		sw.Error = ctx.Err().Error()
	} else {
		sw.Status = models.SweepCompleted
		offline, err := s.markMissingOffline(bg, sw.Ranges, responded)
		if err != nil {
			s.logger.Error("failed to mark non-responders offline", zap.String("sweep_id", sw.ID), zap.Error(err))
			sw.Error = err.Error()
		}
		sw.Offline = len(offline)
		if len(offline) > 0 {
			s.events.publish(bg, TopicDeviceOffline, DeviceOfflineEvent{DeviceIDs: offline, Reason: "sweep"})
		}
	}

	completed := s.now()
	sw.CompletedAt = &completed
	if err := s.store.FinishSweep(bg, sw); err != nil {
		return fmt.Errorf("finish sweep %s: %w", sw.ID, err)
	}
	_ = s.store.AppendLog(bg, &models.DiscoveryLogEntry{
		SweepID: sw.ID,
		Level:   models.LogInfo,
		Action:  "sweep_" + string(sw.Status),
		Message: fmt.Sprintf("%d/%d hosts responded, %d new, %d marked offline",
			sw.Responded, sw.HostsTotal, sw.Created, sw.Offline),
	})

	duration := time.Since(start)
	sweepDuration.Observe(duration.Seconds())
	s.refreshStatusGauge(bg)
	s.events.publish(bg, TopicSweepCompleted, *sw)
	s.logger.Info("sweep finished",
		zap.String("sweep_id", sw.ID),
		zap.String("status", string(sw.Status)),
		zap.Int("responded", sw.Responded),
		zap.Int("created", sw.Created),
		zap.Int("offline", sw.Offline),
		zap.Duration("duration", duration),
	)

	if sw.Status == models.SweepCancelled {
		return ctx.Err()
	}
	return nil
}

// sweepHost probes one address and records the result.
func (s *Sweeper) sweepHost(ctx context.Context, sweepID string, addr netip.Addr) hostOutcome {
	hostCtx, cancel := context.WithTimeout(ctx, s.hostTimeout)
	defer cancel()
	ip := addr.String()

	if s.pinger != nil {
		if alive, _ := s.pinger.Ping(hostCtx, addr); !alive {
			if ctx.Err() == nil {
				s.logHost(ctx, sweepID, ip, models.LogInfo, "ping_no_response", "no ICMP echo reply")
			}
			return hostOutcome{}
		}
	}

	res, err := s.prober.Probe(hostCtx, addr)
	switch {
	case err == nil:
		probesTotal.WithLabelValues("responded").Inc()
	case ctx.Err() != nil:
		return hostOutcome{}
	case errors.Is(err, ErrNoResponse), errors.Is(err, context.DeadlineExceeded):
		probesTotal.WithLabelValues("no_response").Inc()
		s.logHost(ctx, sweepID, ip, models.LogInfo, "probe_no_response", err.Error())
		return hostOutcome{}
	default:
		probesTotal.WithLabelValues("error").Inc()
		s.logHost(ctx, sweepID, ip, models.LogWarn, "probe_failed", err.Error())
		return hostOutcome{}
	}

	cls := Classify(res.System.Descr, res.System.ObjectID)
	dev := &models.DiscoveredDevice{
		IP:              ip,
		Hostname:        res.Hostname,
		MAC:             res.MAC,
		DeviceType:      cls.DeviceType,
		Vendor:          cls.Vendor,
		Model:           cls.Model,
		OSVersion:       cls.OSVersion,
		SysDescr:        res.System.Descr,
		SysObjectID:     res.System.ObjectID,
		SysName:         res.System.Name,
		SysLocation:     res.System.Location,
		UptimeSeconds:   int64(res.System.UpTime / time.Second),
		SNMPCommunity:   res.Community,
		Status:          models.DeviceStatusOnline,
		DiscoveryMethod: models.DiscoverySNMP,
		LastSeen:        s.now(),
	}
	created, err := s.store.UpsertDevice(ctx, dev)
	if err != nil {
		s.logger.Warn("failed to store device", zap.String("ip", ip), zap.Error(err))
		s.logHost(ctx, sweepID, ip, models.LogError, "store_failed", err.Error())
		return hostOutcome{responded: true}
	}
	out := hostOutcome{responded: true, created: created}

	s.logHost(ctx, sweepID, ip, models.LogInfo, "probe_responded",
		fmt.Sprintf("%s %s (%s), %d interfaces, rtt %s",
			dev.DeviceType, dev.Vendor, firstLine(dev.SysDescr), len(res.Interfaces), res.RTT.Round(time.Millisecond)))

	topic := TopicDeviceUpdated
	if created {
		topic = TopicDeviceDiscovered
	}
	s.events.publish(ctx, topic, DeviceEvent{SweepID: sweepID, Device: dev})

	if s.sampler != nil && len(res.Interfaces) > 0 {
		if err := s.sampler.Record(ctx, dev.ID, res.Interfaces, dev.LastSeen); err != nil {
			s.logger.Warn("failed to record interfaces", zap.String("ip", ip), zap.Error(err))
			s.logHost(ctx, sweepID, ip, models.LogError, "store_failed", err.Error())
		}
	}
	s.storeNeighbors(ctx, dev, res)
	return out
}

// storeNeighbors records LLDP adjacencies, naming the local side by the
// interface whose ifIndex equals lldpLocPortNum when there is one.
func (s *Sweeper) storeNeighbors(ctx context.Context, dev *models.DiscoveredDevice, res *ProbeResult) {
	if len(res.Neighbors) == 0 {
		return
	}
	names := make(map[int]string, len(res.Interfaces))
	for _, ifc := range res.Interfaces {
		names[ifc.Index] = ifc.Name
	}
	for _, nb := range res.Neighbors {
		local, ok := names[nb.LocalPort]
		if !ok {
			local = strconv.Itoa(nb.LocalPort)
		}
		remoteName := nb.RemoteSysName
		if remoteName == "" {
			remoteName = nb.RemoteManAddr
		}
		n := &models.Neighbor{
			DeviceID:        dev.ID,
			Protocol:        models.DiscoveryLLDP,
			LocalInterface:  local,
			RemoteName:      remoteName,
			RemoteInterface: nb.RemotePortID,
			RemoteAddress:   nb.RemoteManAddr,
			RemotePlatform:  firstLine(nb.RemoteSysDesc),
			LastSeen:        dev.LastSeen,
		}
		if err := s.store.UpsertNeighbor(ctx, n); err != nil {
			s.logger.Debug("failed to store neighbor", zap.String("ip", dev.IP), zap.Error(err))
			continue
		}
		s.events.publish(ctx, TopicNeighborSeen, n)
	}
}

// markMissingOffline sets online devices inside ranges that did not answer
// this sweep offline and returns their IDs. responded is keyed by IP.
// Devices without a community never answered SNMP and are left to the
// offline_after ageing.
func (s *Sweeper) markMissingOffline(ctx context.Context, ranges []string, responded map[string]bool) ([]string, error) {
	known, err := s.store.DevicesInRanges(ctx, ranges)
	if err != nil {
		return nil, err
	}
	var missing []string
	for i := range known {
		d := &known[i]
		if d.Status == models.DeviceStatusOnline && d.SNMPCommunity != "" && !responded[d.IP] {
			missing = append(missing, d.ID)
		}
	}
	if _, err := s.store.MarkOffline(ctx, missing); err != nil {
		return nil, err
	}
	return missing, nil
}

func (s *Sweeper) refreshStatusGauge(ctx context.Context) {
	for _, st := range []models.DeviceStatus{models.DeviceStatusOnline, models.DeviceStatusOffline} {
		_, n, err := s.store.ListDevices(ctx, ListOptions{Status: st, Limit: 1})
		if err != nil {
			return
		}
		devicesByStatus.WithLabelValues(string(st)).Set(float64(n))
	}
}

func (s *Sweeper) logHost(ctx context.Context, sweepID, ip string, level models.LogLevel, action, msg string) {
	if err := s.store.AppendLog(ctx, &models.DiscoveryLogEntry{
		SweepID: sweepID,
		IP:      ip,
		Level:   level,
		Action:  action,
		Message: msg,
	}); err != nil {
		s.logger.Debug("failed to write discovery log", zap.String("ip", ip), zap.Error(err))
	}
}

package discovery

import (
	"context"
	"net/netip"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// Pinger reports whether a host answers ICMP echo.
type Pinger interface {
	Ping(ctx context.Context, addr netip.Addr) (alive bool, rtt time.Duration)
}

// ICMPPinger is the pro-bing backed Pinger used for the optional sweep
// precheck. Hosts that drop ICMP are skipped entirely, so the precheck is
// off by default.
type ICMPPinger struct {
	timeout    time.Duration
	count      int
	privileged bool
	logger     *zap.Logger
}

// NewICMPPinger creates a pinger. Unprivileged UDP pings are used except on
// Windows, where raw sockets are the only option.
func NewICMPPinger(cfg Config, logger *zap.Logger) *ICMPPinger {
	return &ICMPPinger{
		timeout:    cfg.PingTimeout,
		count:      2,
		privileged: runtime.GOOS == "windows",
		logger:     logger,
	}
}

// Ping sends up to count echo requests and returns on the first reply set.
func (p *ICMPPinger) Ping(ctx context.Context, addr netip.Addr) (alive bool, rtt time.Duration) {
	pinger, err := probing.NewPinger(addr.String())
	if err != nil {
		p.logger.Debug("failed to create pinger", zap.String("ip", addr.String()), zap.Error(err))
		return false, 0
	}
	pinger.Count = p.count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := pinger.Run(); runErr != nil {
			p.logger.Debug("ping failed", zap.String("ip", addr.String()), zap.Error(runErr))
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return false, 0
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		return true, stats.AvgRtt
	}
	return false, 0
}

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/netsweep/pkg/models"
	"github.com/HerbHall/netsweep/pkg/plugin"
)

// Snapshot file names inside the repository.
const (
	JSONFile     = "devices.json"
	MarkdownFile = "devices.md"
)

// TopicCommitted is published after every run that records a deployment.
const TopicCommitted = "snapshot.committed"

// ErrRunActive is returned when a snapshot run is already in progress.
var ErrRunActive = errors.New("snapshot run already in progress")

var runsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "netsweep",
		Subsystem: "snapshot",
		Name:      "runs_total",
		Help:      "Snapshot runs by outcome.",
	},
	[]string{"status"},
)

func init() {
	prometheus.MustRegister(runsTotal)
}

// DeviceSource supplies the inventory to export.
type DeviceSource interface {
	Devices(ctx context.Context) ([]models.DiscoveredDevice, error)
	Interfaces(ctx context.Context, deviceID string) ([]models.NetworkInterface, error)
}

// Exporter writes the inventory into a git working tree and commits it.
type Exporter struct {
	source DeviceSource
	store  *Store
	repo   *repo
	push   bool
	bus    plugin.EventBus
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewExporter creates an Exporter that commits into cfg.RepoPath.
func NewExporter(source DeviceSource, store *Store, bus plugin.EventBus, cfg Config, logger *zap.Logger) *Exporter {
	return &Exporter{
		source: source,
		store:  store,
		repo: &repo{
			dir:   cfg.RepoPath,
			cfg:   cfg,
			run:   execGit,
			files: []string{JSONFile, MarkdownFile},
		},
		push:   cfg.Push,
		bus:    bus,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Export writes devices.json and devices.md and returns the device count.
func (e *Exporter) Export(ctx context.Context) (int, error) {
	devices, err := e.source.Devices(ctx)
	if err != nil {
		return 0, fmt.Errorf("list devices: %w", err)
	}
	ifaces := make(map[string][]models.NetworkInterface, len(devices))
	for i := range devices {
		list, err := e.source.Interfaces(ctx, devices[i].ID)
		if err != nil {
			return 0, fmt.Errorf("list interfaces of %s: %w", devices[i].IP, err)
		}
		ifaces[devices[i].ID] = list
	}

	doc := BuildDocument(devices, ifaces)
	data, err := doc.render()
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", JSONFile, err)
	}
	if err := os.MkdirAll(e.repo.dir, 0o750); err != nil {
		return 0, fmt.Errorf("create repo dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(e.repo.dir, JSONFile), data); err != nil {
		return 0, err
	}
	if err := writeFileAtomic(filepath.Join(e.repo.dir, MarkdownFile), []byte(GenerateMarkdown(doc))); err != nil {
		return 0, err
	}
	return doc.DeviceCount, nil
}

// Commit commits the exported files, pushing when configured. The returned
// deployment has status unchanged when the files did not change.
func (e *Exporter) Commit(ctx context.Context, devices int) (*models.GitDeployment, error) {
	d := &models.GitDeployment{Devices: devices, CreatedAt: e.now()}
	if err := e.repo.ensure(ctx); err != nil {
		return e.fail(d, err)
	}
	msg := fmt.Sprintf("Inventory snapshot: %d devices at %s", devices, d.CreatedAt.Format(time.RFC3339))
	hash, err := e.repo.commit(ctx, msg)
	if err != nil {
		return e.fail(d, err)
	}
	if hash == "" {
		d.Status = StatusUnchanged
		return d, nil
	}
	d.CommitHash = hash
	d.Status = StatusCommitted
	if e.push {
		if err := e.repo.push(ctx); err != nil {
			return e.fail(d, err)
		}
		d.Pushed = true
	}
	return d, nil
}

func (e *Exporter) fail(d *models.GitDeployment, err error) (*models.GitDeployment, error) {
	d.Status = StatusFailed
	d.Error = err.Error()
	return d, err
}

// Run exports, commits and records the outcome. Failed runs are recorded
// too. Only one run executes at a time.
func (e *Exporter) Run(ctx context.Context) (*models.GitDeployment, error) {
	if !e.mu.TryLock() {
		return nil, ErrRunActive
	}
	defer e.mu.Unlock()

	var d *models.GitDeployment
	n, err := e.Export(ctx)
	if err != nil {
		d, err = e.fail(&models.GitDeployment{CreatedAt: e.now()}, err)
	} else {
		d, err = e.Commit(ctx, n)
	}

	if recErr := e.store.RecordDeployment(context.WithoutCancel(ctx), d); recErr != nil {
		e.logger.Error("failed to record deployment", zap.Error(recErr))
	}
	runsTotal.WithLabelValues(d.Status).Inc()
	e.publish(ctx, d)

	if err != nil {
		e.logger.Warn("snapshot failed", zap.Error(err))
		return d, err
	}
	e.logger.Info("snapshot finished",
		zap.String("status", d.Status),
		zap.String("commit", d.CommitHash),
		zap.Int("devices", d.Devices),
		zap.Bool("pushed", d.Pushed),
	)
	return d, nil
}

func (e *Exporter) publish(ctx context.Context, d *models.GitDeployment) {
	if e.bus == nil {
		return
	}
	e.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicCommitted,
		Source:    "snapshot",
		Timestamp: time.Now(),
		Payload:   d,
	})
}

// writeFileAtomic replaces path via a temporary file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // G302: snapshot files are meant to be shared
		return err
	}
	return os.Rename(tmp.Name(), path)
}

package discovery

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/netsweep/pkg/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// DiscoveryStore provides database operations for the discovery module.
type DiscoveryStore struct {
	db *sql.DB
}

// NewDiscoveryStore creates a DiscoveryStore backed by db.
func NewDiscoveryStore(db *sql.DB) *DiscoveryStore {
	return &DiscoveryStore{db: db}
}

// ListOptions filters and paginates device queries. Limit <= 0 returns all rows.
type ListOptions struct {
	Status       models.DeviceStatus
	DeviceType   models.DeviceType
	Vendor       string
	Method       models.DiscoveryMethod
	HasCommunity bool // only devices with a known SNMP community
	Limit        int
	Offset       int
}

type rowScanner interface {
	Scan(dest ...any) error
}

const deviceColumns = `id, ip, hostname, mac, device_type, vendor, model, os_version,
	sys_descr, sys_object_id, sys_name, sys_location, uptime_seconds,
	snmp_community, status, discovery_method, first_seen, last_seen`

// UpsertDevice inserts a device or updates the one with the same IP.
// On update, empty incoming fields keep their stored values and the original
// discovery method and first_seen are preserved. dev is overwritten with the
// stored result.
func (s *DiscoveryStore) UpsertDevice(ctx context.Context, dev *models.DiscoveredDevice) (created bool, err error) {
	if dev.IP == "" {
		return false, errors.New("upsert device: empty IP")
	}
	if dev.LastSeen.IsZero() {
		dev.LastSeen = time.Now().UTC()
	}
	if dev.Status == "" {
		dev.Status = models.DeviceStatusOnline
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanDevice(tx.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM discovered_devices WHERE ip = ?`, dev.IP))
	switch {
	case errors.Is(err, ErrNotFound):
		if dev.ID == "" {
			dev.ID = uuid.New().String()
		}
		if dev.DeviceType == "" {
			dev.DeviceType = models.DeviceTypeUnknown
		}
		if dev.DiscoveryMethod == "" {
			dev.DiscoveryMethod = models.DiscoverySNMP
		}
		dev.FirstSeen = dev.LastSeen
		_, err = tx.ExecContext(ctx, `
			INSERT INTO discovered_devices (ip_num, `+deviceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ipNum(dev.IP), dev.ID, dev.IP, dev.Hostname, dev.MAC, string(dev.DeviceType), dev.Vendor, dev.Model, dev.OSVersion,
			dev.SysDescr, dev.SysObjectID, dev.SysName, dev.SysLocation, dev.UptimeSeconds,
			dev.SNMPCommunity, string(dev.Status), string(dev.DiscoveryMethod), dev.FirstSeen, dev.LastSeen,
		)
		if err != nil {
			return false, fmt.Errorf("insert device: %w", err)
		}
		created = true

	case err != nil:
		return false, fmt.Errorf("lookup device %s: %w", dev.IP, err)

	default:
		merged := mergeDevice(existing, dev)
		_, err = tx.ExecContext(ctx, `
			UPDATE discovered_devices SET
				hostname = ?, mac = ?, device_type = ?, vendor = ?, model = ?, os_version = ?,
				sys_descr = ?, sys_object_id = ?, sys_name = ?, sys_location = ?, uptime_seconds = ?,
				snmp_community = ?, status = ?, last_seen = ?
			WHERE id = ?`,
			merged.Hostname, merged.MAC, string(merged.DeviceType), merged.Vendor, merged.Model, merged.OSVersion,
			merged.SysDescr, merged.SysObjectID, merged.SysName, merged.SysLocation, merged.UptimeSeconds,
			merged.SNMPCommunity, string(merged.Status), merged.LastSeen,
			merged.ID,
		)
		if err != nil {
			return false, fmt.Errorf("update device: %w", err)
		}
		*dev = *merged
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}
	return created, nil
}

// mergeDevice overlays the non-empty fields of in onto a copy of stored.
func mergeDevice(stored, in *models.DiscoveredDevice) *models.DiscoveredDevice {
	out := *stored
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Hostname, in.Hostname)
	set(&out.MAC, in.MAC)
	set(&out.Vendor, in.Vendor)
	set(&out.Model, in.Model)
	set(&out.OSVersion, in.OSVersion)
	set(&out.SysDescr, in.SysDescr)
	set(&out.SysObjectID, in.SysObjectID)
	set(&out.SysName, in.SysName)
	set(&out.SysLocation, in.SysLocation)
	set(&out.SNMPCommunity, in.SNMPCommunity)
	if in.DeviceType != "" && in.DeviceType != models.DeviceTypeUnknown {
		out.DeviceType = in.DeviceType
	}
	if in.UptimeSeconds > 0 {
		out.UptimeSeconds = in.UptimeSeconds
	}
	out.Status = in.Status
	out.LastSeen = in.LastSeen
	return &out
}

// GetDevice returns a device by ID.
func (s *DiscoveryStore) GetDevice(ctx context.Context, id string) (*models.DiscoveredDevice, error) {
	return scanDevice(s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM discovered_devices WHERE id = ?`, id))
}

// GetDeviceByIP returns the device with the given IP.
func (s *DiscoveryStore) GetDeviceByIP(ctx context.Context, ip string) (*models.DiscoveredDevice, error) {
	return scanDevice(s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM discovered_devices WHERE ip = ?`, ip))
}

// ListDevices returns matching devices ordered by IP, plus the total count
// before pagination.
func (s *DiscoveryStore) ListDevices(ctx context.Context, opts ListOptions) ([]models.DiscoveredDevice, int, error) {
	where := "1=1"
	var args []any
	if opts.Status != "" {
		where += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.DeviceType != "" {
		where += " AND device_type = ?"
		args = append(args, string(opts.DeviceType))
	}
	if opts.Vendor != "" {
		where += " AND vendor = ? COLLATE NOCASE"
		args = append(args, opts.Vendor)
	}
	if opts.Method != "" {
		where += " AND discovery_method = ?"
		args = append(args, string(opts.Method))
	}
	if opts.HasCommunity {
		where += " AND snmp_community != ''"
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM discovered_devices WHERE "+where, args..., //nolint:gosec // where uses placeholders only
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count devices: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	queryArgs := append(append([]any{}, args...), limit, max(opts.Offset, 0))
	//nolint:gosec // where uses placeholders only
	rows, err := s.db.QueryContext(ctx, "SELECT "+deviceColumns+
		" FROM discovered_devices WHERE "+where+
		" ORDER BY ip_num, ip LIMIT ? OFFSET ?", queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]models.DiscoveredDevice, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		devices = append(devices, *d)
	}
	return devices, total, rows.Err()
}

// DevicesInRanges returns every device whose IP falls inside one of ranges.
func (s *DiscoveryStore) DevicesInRanges(ctx context.Context, ranges []string) ([]models.DiscoveredDevice, error) {
	prefixes, err := parseRanges(ranges)
	if err != nil {
		return nil, err
	}
	all, _, err := s.ListDevices(ctx, ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]models.DiscoveredDevice, 0)
	for i := range all {
		if addr, ok := parseAddr(all[i].IP); ok && containedIn(addr, prefixes) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// MarkOffline sets the given devices offline and returns how many changed.
func (s *DiscoveryStore) MarkOffline(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(models.DeviceStatusOffline))
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	res, err := s.db.ExecContext(ctx,
		"UPDATE discovered_devices SET status = ? WHERE status != 'offline' AND id IN ("+placeholders+")", //nolint:gosec // placeholders only
		args...)
	if err != nil {
		return 0, fmt.Errorf("mark offline: %w", err)
	}
	return res.RowsAffected()
}

// MarkStale sets devices not seen since olderThan offline and returns their IDs.
func (s *DiscoveryStore) MarkStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM discovered_devices WHERE status = 'online' AND last_seen < ?`, olderThan.UTC())
	if err != nil {
		return nil, fmt.Errorf("find stale devices: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := s.MarkOffline(ctx, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func scanDevice(row rowScanner) (*models.DiscoveredDevice, error) {
	var d models.DiscoveredDevice
	var dt, status, method string
	err := row.Scan(
		&d.ID, &d.IP, &d.Hostname, &d.MAC, &dt, &d.Vendor, &d.Model, &d.OSVersion,
		&d.SysDescr, &d.SysObjectID, &d.SysName, &d.SysLocation, &d.UptimeSeconds,
		&d.SNMPCommunity, &status, &method, &d.FirstSeen, &d.LastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}
	d.DeviceType = models.DeviceType(dt)
	d.Status = models.DeviceStatus(status)
	d.DiscoveryMethod = models.DiscoveryMethod(method)
	return &d, nil
}

const interfaceColumns = `id, device_id, if_index, name, description, type, speed_bps, mac, ip,
	status, rx_bytes, tx_bytes, rx_rate, tx_rate, updated_at`

// UpsertInterface inserts or updates the interface keyed on (DeviceID, IfIndex).
// Counters and rates are left alone; UpdateInterfaceRates owns them.
func (s *DiscoveryStore) UpsertInterface(ctx context.Context, iface *models.NetworkInterface) error {
	if iface.ID == "" {
		iface.ID = uuid.New().String()
	}
	if iface.UpdatedAt.IsZero() {
		iface.UpdatedAt = time.Now().UTC()
	}
	if iface.Status == "" {
		iface.Status = models.InterfaceDown
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO network_interfaces (
			id, device_id, if_index, name, description, type, speed_bps, mac, ip, status, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id, if_index) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			type = excluded.type,
			speed_bps = excluded.speed_bps,
			mac = excluded.mac,
			ip = CASE WHEN excluded.ip = '' THEN network_interfaces.ip ELSE excluded.ip END,
			status = excluded.status,
			updated_at = excluded.updated_at
		RETURNING id`,
		iface.ID, iface.DeviceID, iface.IfIndex, iface.Name, iface.Description, iface.Type,
		toDB(iface.SpeedBps), iface.MAC, iface.IP, string(iface.Status), iface.UpdatedAt,
	).Scan(&iface.ID)
	if err != nil {
		return fmt.Errorf("upsert interface %s/%d: %w", iface.DeviceID, iface.IfIndex, err)
	}
	return nil
}

// GetInterface returns an interface by ID.
func (s *DiscoveryStore) GetInterface(ctx context.Context, id string) (*models.NetworkInterface, error) {
	return scanInterface(s.db.QueryRowContext(ctx,
		`SELECT `+interfaceColumns+` FROM network_interfaces WHERE id = ?`, id))
}

// ListInterfaces returns a device's interfaces ordered by ifIndex.
func (s *DiscoveryStore) ListInterfaces(ctx context.Context, deviceID string) ([]models.NetworkInterface, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+interfaceColumns+` FROM network_interfaces WHERE device_id = ? ORDER BY if_index`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	defer rows.Close()

	out := make([]models.NetworkInterface, 0)
	for rows.Next() {
		iface, err := scanInterface(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *iface)
	}
	return out, rows.Err()
}

// UpdateInterfaceRates stores the latest raw counters and rates. A nil rate
// is stored as NULL, meaning not yet known.
func (s *DiscoveryStore) UpdateInterfaceRates(ctx context.Context, ifaceID string, c InterfaceCounters, inRate, outRate *float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE network_interfaces SET
			rx_bytes = ?, tx_bytes = ?, rx_rate = ?, tx_rate = ?, updated_at = ?
		WHERE id = ?`,
		toDB(c.InOctets), toDB(c.OutOctets), inRate, outRate, time.Now().UTC(), ifaceID,
	)
	if err != nil {
		return fmt.Errorf("update interface rates: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInterface(row rowScanner) (*models.NetworkInterface, error) {
	var iface models.NetworkInterface
	var status string
	var speed, rx, tx int64
	var rxRate, txRate sql.NullFloat64
	err := row.Scan(
		&iface.ID, &iface.DeviceID, &iface.IfIndex, &iface.Name, &iface.Description, &iface.Type,
		&speed, &iface.MAC, &iface.IP, &status, &rx, &tx, &rxRate, &txRate, &iface.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan interface: %w", err)
	}
	iface.Status = models.InterfaceStatus(status)
	iface.SpeedBps = fromDB(speed)
	iface.RxBytes = fromDB(rx)
	iface.TxBytes = fromDB(tx)
	iface.RxRate = nullFloat(rxRate)
	iface.TxRate = nullFloat(txRate)
	return &iface, nil
}

const sampleColumns = `id, interface_id, bytes_in, bytes_out, packets_in, packets_out,
	errors_in, errors_out, high_capacity, in_rate, out_rate, sampled_at`

// AppendSample writes one transfer history row. Rows are never updated.
func (s *DiscoveryStore) AppendSample(ctx context.Context, sample *models.TransferSample) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transfer_history (
			interface_id, bytes_in, bytes_out, packets_in, packets_out,
			errors_in, errors_out, high_capacity, in_rate, out_rate, sampled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.InterfaceID, toDB(sample.BytesIn), toDB(sample.BytesOut),
		toDB(sample.PacketsIn), toDB(sample.PacketsOut),
		toDB(sample.ErrorsIn), toDB(sample.ErrorsOut),
		sample.HighCapacity, sample.InRate, sample.OutRate, sample.SampledAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append sample: %w", err)
	}
	sample.ID, _ = res.LastInsertId()
	return nil
}

// LatestSample returns the newest sample for an interface, or nil when
// there is none yet.
func (s *DiscoveryStore) LatestSample(ctx context.Context, ifaceID string) (*models.TransferSample, error) {
	sample, err := scanSample(s.db.QueryRowContext(ctx,
		`SELECT `+sampleColumns+` FROM transfer_history
		 WHERE interface_id = ? ORDER BY sampled_at DESC, id DESC LIMIT 1`, ifaceID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return sample, err
}

// ListSamples returns up to limit of the most recent samples taken at or
// after since, oldest first.
func (s *DiscoveryStore) ListSamples(ctx context.Context, ifaceID string, since time.Time, limit int) ([]models.TransferSample, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sampleColumns+` FROM transfer_history
		 WHERE interface_id = ? AND sampled_at >= ?
		 ORDER BY sampled_at DESC, id DESC LIMIT ?`, ifaceID, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	out := make([]models.TransferSample, 0)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PruneSamples deletes history older than olderThan.
func (s *DiscoveryStore) PruneSamples(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transfer_history WHERE sampled_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	return res.RowsAffected()
}

func scanSample(row rowScanner) (*models.TransferSample, error) {
	var sample models.TransferSample
	var in, out, pin, pout, ein, eout int64
	var inRate, outRate sql.NullFloat64
	err := row.Scan(&sample.ID, &sample.InterfaceID, &in, &out, &pin, &pout, &ein, &eout,
		&sample.HighCapacity, &inRate, &outRate, &sample.SampledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sample: %w", err)
	}
	sample.BytesIn, sample.BytesOut = fromDB(in), fromDB(out)
	sample.PacketsIn, sample.PacketsOut = fromDB(pin), fromDB(pout)
	sample.ErrorsIn, sample.ErrorsOut = fromDB(ein), fromDB(eout)
	sample.InRate, sample.OutRate = nullFloat(inRate), nullFloat(outRate)
	return &sample, nil
}

// AppendLog writes one audit log entry.
func (s *DiscoveryStore) AppendLog(ctx context.Context, entry *models.DiscoveryLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Level == "" {
		entry.Level = models.LogInfo
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO discovery_log (sweep_id, ip, level, action, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SweepID, entry.IP, string(entry.Level), entry.Action, entry.Message, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

// ListLog returns the newest limit log entries, newest first.
func (s *DiscoveryStore) ListLog(ctx context.Context, limit int) ([]models.DiscoveryLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sweep_id, ip, level, action, message, created_at
		FROM discovery_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list log: %w", err)
	}
	defer rows.Close()

	out := make([]models.DiscoveryLogEntry, 0)
	for rows.Next() {
		var e models.DiscoveryLogEntry
		var level string
		if err := rows.Scan(&e.ID, &e.SweepID, &e.IP, &level, &e.Action, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Level = models.LogLevel(level)
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertNeighbor records an adjacency, refreshing it when already known.
func (s *DiscoveryStore) UpsertNeighbor(ctx context.Context, n *models.Neighbor) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.LastSeen.IsZero() {
		n.LastSeen = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO discovery_neighbors (
			id, device_id, protocol, local_interface, remote_name, remote_interface,
			remote_address, remote_mac, remote_platform, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id, protocol, local_interface, remote_name, remote_interface) DO UPDATE SET
			remote_address = excluded.remote_address,
			remote_mac = excluded.remote_mac,
			remote_platform = excluded.remote_platform,
			last_seen = excluded.last_seen
		RETURNING id`,
		n.ID, n.DeviceID, string(n.Protocol), n.LocalInterface, n.RemoteName, n.RemoteInterface,
		n.RemoteAddress, n.RemoteMAC, n.RemotePlatform, n.LastSeen,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("upsert neighbor: %w", err)
	}
	return nil
}

// ListNeighbors returns a device's neighbors ordered by local interface.
func (s *DiscoveryStore) ListNeighbors(ctx context.Context, deviceID string) ([]models.Neighbor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, protocol, local_interface, remote_name, remote_interface,
			remote_address, remote_mac, remote_platform, last_seen
		FROM discovery_neighbors WHERE device_id = ?
		ORDER BY local_interface, remote_name`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list neighbors: %w", err)
	}
	defer rows.Close()

	out := make([]models.Neighbor, 0)
	for rows.Next() {
		var n models.Neighbor
		var protocol string
		if err := rows.Scan(&n.ID, &n.DeviceID, &protocol, &n.LocalInterface, &n.RemoteName,
			&n.RemoteInterface, &n.RemoteAddress, &n.RemoteMAC, &n.RemotePlatform, &n.LastSeen); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		n.Protocol = models.DiscoveryMethod(protocol)
		out = append(out, n)
	}
	return out, rows.Err()
}

const sweepColumns = `id, ranges, status, hosts_total, responded, created, marked_offline,
	error, started_at, completed_at`

// CreateSweep inserts a running sweep record.
func (s *DiscoveryStore) CreateSweep(ctx context.Context, sw *models.Sweep) error {
	if sw.ID == "" {
		sw.ID = uuid.New().String()
	}
	if sw.StartedAt.IsZero() {
		sw.StartedAt = time.Now().UTC()
	}
	if sw.Status == "" {
		sw.Status = models.SweepRunning
	}
	ranges, err := json.Marshal(sw.Ranges)
	if err != nil {
		return fmt.Errorf("marshal ranges: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discovery_sweeps (id, ranges, status, hosts_total, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		sw.ID, string(ranges), string(sw.Status), sw.HostsTotal, sw.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create sweep: %w", err)
	}
	return nil
}

// FinishSweep stores the final status and counters of a sweep.
func (s *DiscoveryStore) FinishSweep(ctx context.Context, sw *models.Sweep) error {
	if sw.CompletedAt == nil {
		now := time.Now().UTC()
		sw.CompletedAt = &now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE discovery_sweeps SET
			status = ?, hosts_total = ?, responded = ?, created = ?, marked_offline = ?,
			error = ?, completed_at = ?
		WHERE id = ?`,
		string(sw.Status), sw.HostsTotal, sw.Responded, sw.Created, sw.Offline,
		sw.Error, *sw.CompletedAt, sw.ID,
	)
	if err != nil {
		return fmt.Errorf("finish sweep: %w", err)
	}
	return nil
}

// FailInterruptedSweeps marks sweeps left running by a previous process as failed.
func (s *DiscoveryStore) FailInterruptedSweeps(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE discovery_sweeps SET status = ?, error = 'interrupted', completed_at = ?
		WHERE status = ?`,
		string(models.SweepFailed), time.Now().UTC(), string(models.SweepRunning))
	if err != nil {
		return 0, fmt.Errorf("fail interrupted sweeps: %w", err)
	}
	return res.RowsAffected()
}

// GetSweep returns a sweep by ID.
func (s *DiscoveryStore) GetSweep(ctx context.Context, id string) (*models.Sweep, error) {
	return scanSweep(s.db.QueryRowContext(ctx,
		`SELECT `+sweepColumns+` FROM discovery_sweeps WHERE id = ?`, id))
}

// ListSweeps returns the most recent sweeps, newest first.
func (s *DiscoveryStore) ListSweeps(ctx context.Context, limit int) ([]models.Sweep, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sweepColumns+` FROM discovery_sweeps ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sweeps: %w", err)
	}
	defer rows.Close()

	out := make([]models.Sweep, 0)
	for rows.Next() {
		sw, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sw)
	}
	return out, rows.Err()
}

func scanSweep(row rowScanner) (*models.Sweep, error) {
	var sw models.Sweep
	var ranges, status string
	var completed sql.NullTime
	err := row.Scan(&sw.ID, &ranges, &status, &sw.HostsTotal, &sw.Responded, &sw.Created,
		&sw.Offline, &sw.Error, &sw.StartedAt, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sweep: %w", err)
	}
	sw.Status = models.SweepStatus(status)
	_ = json.Unmarshal([]byte(ranges), &sw.Ranges)
	if completed.Valid {
		t := completed.Time
		sw.CompletedAt = &t
	}
	return &sw, nil
}

// SQLite integers are signed; counters are stored bit-for-bit.
func toDB(v uint64) int64 { return int64(v) } //nolint:gosec // G115: reinterpreted, not truncated

func fromDB(v int64) uint64 { return uint64(v) } //nolint:gosec // G115: inverse of toDB

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

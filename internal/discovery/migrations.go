package discovery

import (
	"database/sql"

	"github.com/HerbHall/netsweep/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create discovery tables (devices, interfaces, transfer history, log, sweeps)",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE discovered_devices (
						id               TEXT PRIMARY KEY,
						ip               TEXT NOT NULL UNIQUE,
						ip_num           INTEGER NOT NULL DEFAULT 0,
						hostname         TEXT NOT NULL DEFAULT '',
						mac              TEXT NOT NULL DEFAULT '',
						device_type      TEXT NOT NULL DEFAULT 'unknown',
						vendor           TEXT NOT NULL DEFAULT '',
						model            TEXT NOT NULL DEFAULT '',
						os_version       TEXT NOT NULL DEFAULT '',
						sys_descr        TEXT NOT NULL DEFAULT '',
						sys_object_id    TEXT NOT NULL DEFAULT '',
						sys_name         TEXT NOT NULL DEFAULT '',
						sys_location     TEXT NOT NULL DEFAULT '',
						uptime_seconds   INTEGER NOT NULL DEFAULT 0,
						snmp_community   TEXT NOT NULL DEFAULT '',
						status           TEXT NOT NULL DEFAULT 'online',
						discovery_method TEXT NOT NULL DEFAULT 'snmp',
						first_seen       DATETIME NOT NULL,
						last_seen        DATETIME NOT NULL
					)`,
					`CREATE INDEX idx_discovered_devices_status ON discovered_devices(status)`,
					`CREATE INDEX idx_discovered_devices_type ON discovered_devices(device_type)`,
					`CREATE INDEX idx_discovered_devices_last_seen ON discovered_devices(last_seen)`,
					`CREATE TABLE network_interfaces (
						id          TEXT PRIMARY KEY,
						device_id   TEXT NOT NULL REFERENCES discovered_devices(id) ON DELETE CASCADE,
						if_index    INTEGER NOT NULL,
						name        TEXT NOT NULL DEFAULT '',
						description TEXT NOT NULL DEFAULT '',
						type        INTEGER NOT NULL DEFAULT 0,
						speed_bps   INTEGER NOT NULL DEFAULT 0,
						mac         TEXT NOT NULL DEFAULT '',
						ip          TEXT NOT NULL DEFAULT '',
						status      TEXT NOT NULL DEFAULT 'down',
						rx_bytes    INTEGER NOT NULL DEFAULT 0,
						tx_bytes    INTEGER NOT NULL DEFAULT 0,
						rx_rate     REAL,
						tx_rate     REAL,
						updated_at  DATETIME NOT NULL,
						UNIQUE (device_id, if_index)
					)`,
					`CREATE TABLE transfer_history (
						id           INTEGER PRIMARY KEY AUTOINCREMENT,
						interface_id TEXT NOT NULL REFERENCES network_interfaces(id) ON DELETE CASCADE,
						bytes_in     INTEGER NOT NULL,
						bytes_out    INTEGER NOT NULL,
						packets_in   INTEGER NOT NULL DEFAULT 0,
						packets_out  INTEGER NOT NULL DEFAULT 0,
						errors_in    INTEGER NOT NULL DEFAULT 0,
						errors_out   INTEGER NOT NULL DEFAULT 0,
						in_rate      REAL,
						out_rate     REAL,
						sampled_at   DATETIME NOT NULL
					)`,
					`CREATE INDEX idx_transfer_history_iface_time ON transfer_history(interface_id, sampled_at)`,
					`CREATE TABLE discovery_log (
						id         INTEGER PRIMARY KEY AUTOINCREMENT,
						sweep_id   TEXT NOT NULL DEFAULT '',
						ip         TEXT NOT NULL DEFAULT '',
						level      TEXT NOT NULL DEFAULT 'info',
						action     TEXT NOT NULL,
						message    TEXT NOT NULL DEFAULT '',
						created_at DATETIME NOT NULL
					)`,
					`CREATE INDEX idx_discovery_log_created ON discovery_log(created_at)`,
					`CREATE TABLE discovery_sweeps (
						id             TEXT PRIMARY KEY,
						ranges         TEXT NOT NULL DEFAULT '[]',
						status         TEXT NOT NULL DEFAULT 'running',
						hosts_total    INTEGER NOT NULL DEFAULT 0,
						responded      INTEGER NOT NULL DEFAULT 0,
						created        INTEGER NOT NULL DEFAULT 0,
						marked_offline INTEGER NOT NULL DEFAULT 0,
						error          TEXT NOT NULL DEFAULT '',
						started_at     DATETIME NOT NULL,
						completed_at   DATETIME
					)`,
					`CREATE INDEX idx_discovery_sweeps_started ON discovery_sweeps(started_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "create discovery_neighbors table for LLDP and MNDP adjacencies",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE discovery_neighbors (
						id               TEXT PRIMARY KEY,
						device_id        TEXT NOT NULL REFERENCES discovered_devices(id) ON DELETE CASCADE,
						protocol         TEXT NOT NULL,
						local_interface  TEXT NOT NULL DEFAULT '',
						remote_name      TEXT NOT NULL DEFAULT '',
						remote_interface TEXT NOT NULL DEFAULT '',
						remote_address   TEXT NOT NULL DEFAULT '',
						remote_mac       TEXT NOT NULL DEFAULT '',
						remote_platform  TEXT NOT NULL DEFAULT '',
						last_seen        DATETIME NOT NULL,
						UNIQUE (device_id, protocol, local_interface, remote_name, remote_interface)
					)`,
					`CREATE INDEX idx_discovery_neighbors_device ON discovery_neighbors(device_id)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     3,
			Description: "guard devices against deletion and history/log against updates",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TRIGGER discovered_devices_no_delete
						BEFORE DELETE ON discovered_devices
						BEGIN SELECT RAISE(ABORT, 'discovered devices are never deleted'); END`,
					`CREATE TRIGGER transfer_history_append_only
						BEFORE UPDATE ON transfer_history
						BEGIN SELECT RAISE(ABORT, 'transfer_history is append-only'); END`,
					`CREATE TRIGGER discovery_log_append_only
						BEFORE UPDATE ON discovery_log
						BEGIN SELECT RAISE(ABORT, 'discovery_log is append-only'); END`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     4,
			Description: "record counter width on transfer history",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`ALTER TABLE transfer_history ADD COLUMN high_capacity INTEGER NOT NULL DEFAULT 0`)
				return err
			},
		},
	}
}

package snapshot

import (
	"database/sql"

	"github.com/HerbHall/netsweep/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create git_deployments table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS git_deployments (
						id          INTEGER PRIMARY KEY AUTOINCREMENT,
						commit_hash TEXT NOT NULL DEFAULT '',
						devices     INTEGER NOT NULL DEFAULT 0,
						pushed      INTEGER NOT NULL DEFAULT 0,
						status      TEXT NOT NULL,
						error       TEXT NOT NULL DEFAULT '',
						created_at  DATETIME NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_git_deployments_created_at ON git_deployments(created_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

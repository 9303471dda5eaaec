package repo

import (
	"database/sql"
	"time"
)

type PostgresAuditStore struct {
	sqlAuditStore
}

func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{sqlAuditStore{
		db: db,
		q: auditQueries{
			schema: `
				CREATE TABLE IF NOT EXISTS audit_log (
					seq            BIGSERIAL PRIMARY KEY,
					id             TEXT NOT NULL,
					logged_at      TIMESTAMPTZ NOT NULL,
					broadcast_id   TEXT NOT NULL,
					recipient_id   TEXT NOT NULL,
					recipient_name TEXT NOT NULL,
					phone          TEXT NOT NULL,
					status         TEXT NOT NULL,
					message_hash   TEXT NOT NULL,
					error          TEXT,
					reference      TEXT
				)
			`,
			insert: `
				INSERT INTO audit_log
					(id, logged_at, broadcast_id, recipient_id, recipient_name, phone, status, message_hash, error, reference)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
			`,
			list: `
				SELECT id, logged_at, broadcast_id, recipient_id, recipient_name, phone, status, message_hash, error, reference
				FROM audit_log
				ORDER BY seq ASC
			`,
			trim: `
				DELETE FROM audit_log
				WHERE seq NOT IN (SELECT seq FROM audit_log ORDER BY seq DESC LIMIT $1)
			`,
			clear: `DELETE FROM audit_log`,
		},
		encodeTime: func(t time.Time) any { return t },
		scanTime: func() (any, func() (time.Time, error)) {
			var t time.Time
			return &t, func() (time.Time, error) { return t.UTC(), nil }
		},
	}}
}

package repo

import (
	"database/sql"
	"time"
)

// SQLiteAuditStore keeps the audit log in a local database file.
// Timestamps are stored as RFC 3339 text.
type SQLiteAuditStore struct {
	sqlAuditStore
}

func NewSQLiteAuditStore(db *sql.DB) *SQLiteAuditStore {
	return &SQLiteAuditStore{sqlAuditStore{
		db: db,
		q: auditQueries{
			schema: `
				CREATE TABLE IF NOT EXISTS audit_log (
					seq            INTEGER PRIMARY KEY AUTOINCREMENT,
					id             TEXT NOT NULL,
					logged_at      TEXT NOT NULL,
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
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))
			`,
			list: `
				SELECT id, logged_at, broadcast_id, recipient_id, recipient_name, phone, status, message_hash, error, reference
				FROM audit_log
				ORDER BY seq ASC
			`,
			trim: `
				DELETE FROM audit_log
				WHERE seq NOT IN (SELECT seq FROM audit_log ORDER BY seq DESC LIMIT ?)
			`,
			clear: `DELETE FROM audit_log`,
		},
		encodeTime: func(t time.Time) any { return t.Format(time.RFC3339Nano) },
		scanTime: func() (any, func() (time.Time, error)) {
			var raw string
			return &raw, func() (time.Time, error) { return time.Parse(time.RFC3339Nano, raw) }
		},
	}}
}

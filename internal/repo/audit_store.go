package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

// auditQueries holds the dialect-specific statements of an audit table.
type auditQueries struct {
	schema string
	insert string
	list   string
	trim   string
	clear  string
}

// sqlAuditStore implements audit.Store over database/sql. Rows are ordered
// by an auto-incrementing seq column.
type sqlAuditStore struct {
	db *sql.DB
	q  auditQueries

	encodeTime func(time.Time) any
	scanTime   func() (dest any, get func() (time.Time, error))
}

func (s *sqlAuditStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.q.schema)
	return err
}

func (s *sqlAuditStore) Append(ctx context.Context, e model.LogEntry) error {
	_, err := s.db.ExecContext(ctx, s.q.insert,
		e.ID,
		s.encodeTime(e.Timestamp.UTC()),
		e.BroadcastID,
		e.RecipientID,
		e.RecipientName,
		e.Phone,
		string(e.Status),
		e.MessageHash,
		e.Error,
		e.Reference,
	)
	return err
}

func (s *sqlAuditStore) List(ctx context.Context) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.q.list)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		var status string
		var errText, ref sql.NullString
		tsDest, tsGet := s.scanTime()

		if err := rows.Scan(
			&e.ID,
			tsDest,
			&e.BroadcastID,
			&e.RecipientID,
			&e.RecipientName,
			&e.Phone,
			&status,
			&e.MessageHash,
			&errText,
			&ref,
		); err != nil {
			return nil, err
		}

		ts, err := tsGet()
		if err != nil {
			return nil, err
		}
		e.Timestamp = ts
		e.Status = model.ItemStatus(status)
		e.Error = errText.String
		e.Reference = ref.String

		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqlAuditStore) Trim(ctx context.Context, max int) error {
	if max < 0 {
		max = 0
	}
	_, err := s.db.ExecContext(ctx, s.q.trim, max)
	return err
}

func (s *sqlAuditStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.q.clear)
	return err
}

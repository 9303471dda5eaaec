package repo

import (
	"context"
	"database/sql"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

type PostgresRecipientRepo struct {
	db *sql.DB
}

func NewPostgresRecipientRepo(db *sql.DB) *PostgresRecipientRepo {
	return &PostgresRecipientRepo{db: db}
}

func (r *PostgresRecipientRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS recipients (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			father_name   TEXT,
			enrollment_no TEXT,
			phone         TEXT NOT NULL,
			monthly_fee   DOUBLE PRECISION,
			shift         TEXT,
			seat_number   TEXT,
			due_amount    DOUBLE PRECISION,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (r *PostgresRecipientRepo) ListAll(ctx context.Context) ([]model.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, father_name, enrollment_no, phone,
		       monthly_fee, shift, seat_number, due_amount
		FROM recipients
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Recipient
	for rows.Next() {
		var rec model.Recipient
		var fatherName, enrollmentNo, shift, seat sql.NullString
		var monthlyFee, due sql.NullFloat64

		if err := rows.Scan(
			&rec.ID,
			&rec.Name,
			&fatherName,
			&enrollmentNo,
			&rec.Phone,
			&monthlyFee,
			&shift,
			&seat,
			&due,
		); err != nil {
			return nil, err
		}

		rec.FatherName = fatherName.String
		rec.EnrollmentNo = enrollmentNo.String
		rec.Shift = model.Shift(shift.String)
		rec.SeatNumber = seat.String
		rec.MonthlyFee = model.Amount{Value: monthlyFee.Float64, Valid: monthlyFee.Valid}
		rec.DueAmount = model.Amount{Value: due.Float64, Valid: due.Valid}

		out = append(out, rec)
	}
	return out, rows.Err()
}

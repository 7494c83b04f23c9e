package medlog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/medtrack/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const logCols = `id, user_id, medication_id, date, taken, proof_photo_url, created_at`

func scanLog(row pgx.Row) (*Log, error) {
	var l Log
	err := row.Scan(&l.ID, &l.UserID, &l.MedicationID, &l.Date, &l.Taken, &l.ProofPhotoURL, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &l, err
}

func collect(rows pgx.Rows) ([]*Log, error) {
	defer rows.Close()
	items := []*Log{}
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (r *repoPG) Get(ctx context.Context, userID, medicationID uuid.UUID, day Day) (*Log, error) {
	return scanLog(r.conn(ctx).QueryRow(ctx,
		`SELECT `+logCols+` FROM medication_logs WHERE user_id = $1 AND medication_id = $2 AND date = $3`,
		userID, medicationID, day))
}

func (r *repoPG) ListForDay(ctx context.Context, userID uuid.UUID, day Day) ([]*Log, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+logCols+` FROM medication_logs WHERE user_id = $1 AND date = $2`, userID, day)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) ListForRange(ctx context.Context, userID uuid.UUID, from, to Day) ([]*Log, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+logCols+` FROM medication_logs
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, created_at`, userID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) Upsert(ctx context.Context, l *Log) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medication_logs (user_id, medication_id, date, taken, proof_photo_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, medication_id, date) DO UPDATE SET
			taken = EXCLUDED.taken,
			proof_photo_url = EXCLUDED.proof_photo_url
		RETURNING id, created_at`,
		l.UserID, l.MedicationID, l.Date, l.Taken, l.ProofPhotoURL,
	).Scan(&l.ID, &l.CreatedAt)
}

func (r *repoPG) Update(ctx context.Context, id, userID uuid.UUID, p Patch) (*Log, error) {
	return scanLog(r.conn(ctx).QueryRow(ctx, `
		UPDATE medication_logs SET
			taken = COALESCE($3, taken),
			proof_photo_url = COALESCE($4, proof_photo_url)
		WHERE id = $1 AND user_id = $2
		RETURNING `+logCols,
		id, userID, p.Taken, p.ProofPhotoURL))
}

func (r *repoPG) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medication_logs WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package medication

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

const medCols = `id, user_id, name, dosage, frequency, created_at`

func scanMed(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &m, err
}

func (r *repoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medCols+` FROM medications WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*Medication{}
	for rows.Next() {
		m, err := scanMed(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id, userID uuid.UUID) (*Medication, error) {
	return scanMed(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medCols+` FROM medications WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *repoPG) Create(ctx context.Context, m *Medication) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medications (user_id, name, dosage, frequency)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		m.UserID, m.Name, m.Dosage, m.Frequency,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *repoPG) Update(ctx context.Context, id, userID uuid.UUID, p Patch) (*Medication, error) {
	return scanMed(r.conn(ctx).QueryRow(ctx, `
		UPDATE medications SET
			name = COALESCE($3, name),
			dosage = COALESCE($4, dosage),
			frequency = COALESCE($5, frequency)
		WHERE id = $1 AND user_id = $2
		RETURNING `+medCols,
		id, userID, p.Name, p.Dosage, p.Frequency))
}

func (r *repoPG) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteWithLogs(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `SELECT delete_medication_and_logs($1)`, id)
	return err
}

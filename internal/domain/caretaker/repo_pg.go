package caretaker

import (
	"context"

	"github.com/google/uuid"
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

func (r *repoPG) ListPatients(ctx context.Context, caretakerID uuid.UUID) ([]Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT cp.patient_id, u.email, cp.created_at
		FROM caretaker_patients cp
		JOIN users u ON u.id = cp.patient_id
		WHERE cp.caretaker_id = $1
		ORDER BY u.email`, caretakerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Patient{}
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Email, &p.LinkedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) IsLinked(ctx context.Context, caretakerID, patientID uuid.UUID) (bool, error) {
	var linked bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM caretaker_patients WHERE caretaker_id = $1 AND patient_id = $2
		)`, caretakerID, patientID).Scan(&linked)
	return linked, err
}

package analysis

import (
	"context"

	"github.com/jmoiron/sqlx"

	"adcopysurge/internal/ledger"
)

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, a *Analysis) error {
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO analyses (id, account_id, kind, status, score, verdict, credits_spent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		a.ID, a.AccountID, a.Kind, a.Status, a.Score, a.Verdict, a.CreditsSpent,
	).Scan(&a.CreatedAt)
}

func (r *postgresRepository) ListByAccount(ctx context.Context, id ledger.AccountID, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	var list []Analysis
	err := r.db.SelectContext(ctx, &list, `
		SELECT id, account_id, kind, status, score, verdict, credits_spent, created_at
		FROM analyses
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		id, limit, offset)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Analysis{}
	}
	return list, nil
}

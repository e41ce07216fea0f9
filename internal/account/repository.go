package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound    = errors.New("account not found")
	ErrEmailExists = errors.New("email already registered")
)

const accountColumns = `id, external_id, email, name, password_hash, role, created_at`

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, name, email, passwordHash, role string) (*Account, error) {
	acc := &Account{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+accountColumns,
		uuid.New(), email, name, passwordHash, role,
	).StructScan(acc)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *postgresRepository) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	acc := &Account{}
	err := r.db.GetContext(ctx, acc,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *postgresRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	acc := &Account{}
	err := r.db.GetContext(ctx, acc,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *postgresRepository) FindByExternalID(ctx context.Context, externalID string) (*Account, error) {
	acc := &Account{}
	err := r.db.GetContext(ctx, acc,
		`SELECT `+accountColumns+` FROM accounts WHERE external_id = $1`, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (r *postgresRepository) LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET external_id = $2 WHERE id = $1`, id, externalID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email)
	if err != nil {
		return false, err
	}
	return exists, nil
}

package account

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func setupAccountMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func accountRows(id uuid.UUID, email, name string, created time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "external_id", "email", "name", "password_hash", "role", "created_at"}).
		AddRow(id, nil, email, name, "hash", "user", created)
}

func TestRepositoryCreateAndFind(t *testing.T) {
	repo, mock, closer := setupAccountMock(t)
	defer closer()

	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO accounts (id, email, name, password_hash, role) VALUES ($1, $2, $3, $4, $5) RETURNING id, external_id, email, name, password_hash, role, created_at`)).
		WithArgs(sqlmock.AnyArg(), "a@example.com", "Alice", "hash", "user").
		WillReturnRows(accountRows(id, "a@example.com", "Alice", now))

	acc, err := repo.Create(ctx, "Alice", "a@example.com", "hash", "user")
	require.NoError(t, err)
	require.Equal(t, id, acc.ID)
	require.Equal(t, "user", acc.Role)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, external_id, email, name, password_hash, role, created_at FROM accounts WHERE email = $1`)).
		WithArgs("a@example.com").
		WillReturnRows(accountRows(id, "a@example.com", "Alice", now))

	found, err := repo.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.Equal(t, "Alice", found.Name)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, external_id, email, name, password_hash, role, created_at FROM accounts WHERE id = $1`)).
		WithArgs(id).
		WillReturnRows(accountRows(id, "a@example.com", "Alice", now))

	byID, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, byID.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryFindByEmailNotFound(t *testing.T) {
	repo, mock, closer := setupAccountMock(t)
	defer closer()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, external_id, email, name, password_hash, role, created_at FROM accounts WHERE email = $1`)).
		WithArgs("missing@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindByEmail(context.Background(), "missing@example.com")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryExternalID(t *testing.T) {
	repo, mock, closer := setupAccountMock(t)
	defer closer()

	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET external_id = $2 WHERE id = $1`)).
		WithArgs(id, "auth0|abc").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.LinkExternalID(ctx, id, "auth0|abc"))

	rows := sqlmock.NewRows([]string{"id", "external_id", "email", "name", "password_hash", "role", "created_at"}).
		AddRow(id, "auth0|abc", "a@example.com", "Alice", "hash", "user", now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, external_id, email, name, password_hash, role, created_at FROM accounts WHERE external_id = $1`)).
		WithArgs("auth0|abc").
		WillReturnRows(rows)

	acc, err := repo.FindByExternalID(ctx, "auth0|abc")
	require.NoError(t, err)
	require.NotNil(t, acc.ExternalID)
	require.Equal(t, "auth0|abc", *acc.ExternalID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryLinkExternalIDMissingAccount(t *testing.T) {
	repo, mock, closer := setupAccountMock(t)
	defer closer()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET external_id = $2 WHERE id = $1`)).
		WithArgs(id, "auth0|abc").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.LinkExternalID(context.Background(), id, "auth0|abc")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryEmailExists(t *testing.T) {
	repo, mock, closer := setupAccountMock(t)
	defer closer()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`)).
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.EmailExists(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

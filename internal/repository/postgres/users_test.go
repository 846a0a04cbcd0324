package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/repository"
)

func newMockRepo(t *testing.T, table string) (*UserRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewUserRepository(mock, table), mock
}

func fixtureUser() domain.User {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.User{
		ID:           "Ab3dE5f",
		FirstName:    "Alice",
		LastName:     "Liddell",
		Email:        "alice@example.com",
		Phone:        "5551234567",
		CountryCode:  "1",
		Country:      "United States",
		PasswordHash: "argon2id$hash",
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestUserRepository_Insert(t *testing.T) {
	repo, mock := newMockRepo(t, "user1_users")
	user := fixtureUser()

	mock.ExpectExec(`INSERT INTO user1_users`).
		WithArgs(user.ID, user.FirstName, user.LastName, user.Email, user.Phone, user.CountryCode,
			user.Country, user.PasswordHash, false, user.CreatedAt, user.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Insert(context.Background(), user))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_InsertDuplicate(t *testing.T) {
	repo, mock := newMockRepo(t, "user2_users")

	mock.ExpectExec(`INSERT INTO user2_users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Insert(context.Background(), fixtureUser())
	assert.True(t, errors.Is(err, repository.ErrDuplicate))
}

func TestUserRepository_FindByEmail(t *testing.T) {
	repo, mock := newMockRepo(t, "user1_users")
	user := fixtureUser()

	rows := pgxmock.NewRows(userColumns).AddRow(
		user.ID, user.FirstName, user.LastName, user.Email, user.Phone, user.CountryCode,
		user.Country, user.PasswordHash, true, user.CreatedAt, user.UpdatedAt,
	)
	mock.ExpectQuery(`SELECT (.+) FROM user1_users WHERE lower\(email\) = \$1 LIMIT 1`).
		WithArgs("alice@example.com").
		WillReturnRows(rows)

	got, err := repo.FindByEmail(context.Background(), " Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.True(t, got.EmailVerified)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t, "user1_users")

	mock.ExpectQuery(`SELECT (.+) FROM user1_users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(userColumns))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestUserRepository_UpdateVerified(t *testing.T) {
	repo, mock := newMockRepo(t, "user1_users")
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	repo.WithClock(func() time.Time { return now })

	mock.ExpectExec(`UPDATE user1_users SET email_verified = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(true, now, "Ab3dE5f").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateVerified(context.Background(), "Ab3dE5f", true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdatePasswordMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t, "user1_users")

	mock.ExpectExec(`UPDATE user1_users SET password_hash = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("new-hash", pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdatePassword(context.Background(), "gone", "new-hash")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestUserRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t, "user2_users")

	mock.ExpectExec(`DELETE FROM user2_users WHERE id = \$1`).
		WithArgs("Ab3dE5f").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM user2_users WHERE id = \$1`).
		WithArgs("Ab3dE5f").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.Delete(context.Background(), "Ab3dE5f"))
	assert.True(t, errors.Is(repo.Delete(context.Background(), "Ab3dE5f"), repository.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

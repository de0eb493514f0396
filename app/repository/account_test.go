package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

const (
	insertAccountQuery       = `(?s)INSERT INTO accounts \(id, name, email, canonical_email, password_hash, status, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?\)`
	findAccountByIDQuery     = `(?s)SELECT id, name, email, canonical_email, password_hash, status, created_at, updated_at\s+FROM accounts WHERE id = \?`
	lockAccountByIDQuery     = `(?s)SELECT id, name, email, canonical_email, password_hash, status, created_at, updated_at\s+FROM accounts WHERE id = \? FOR UPDATE`
	findAccountByEmailQuery  = `(?s)SELECT id, name, email, canonical_email, password_hash, status, created_at, updated_at\s+FROM accounts WHERE canonical_email = \?`
	updateAccountStatusQuery = `UPDATE accounts SET status = \?, updated_at = \? WHERE id = \? AND status = \?`
	updatePasswordHashQuery  = `UPDATE accounts SET password_hash = \?, updated_at = \? WHERE id = \?`
	closeAccountQuery        = `(?s)UPDATE accounts SET status = \?, password_hash = '', updated_at = \?\s+WHERE id = \? AND status <> \?`
)

var accountColumns = []string{
	"id",
	"name",
	"email",
	"canonical_email",
	"password_hash",
	"status",
	"created_at",
	"updated_at",
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { _ = db.Close() }
}

func testAccount(now time.Time) *entity.Account {
	return &entity.Account{
		ID:             "0b7d0c52-3c1e-4c38-9f55-2a4c1d0f1a11",
		Name:           "Ann",
		Email:          "Ann@example.com",
		CanonicalEmail: "ann@example.com",
		PasswordHash:   "hash",
		Status:         entity.AccountStatusUnverified,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestAccountRepository_Create(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	account := testAccount(time.Now())

	mock.ExpectExec(insertAccountQuery).
		WithArgs(account.ID, "Ann", "Ann@example.com", "ann@example.com", "hash", "unverified", account.CreatedAt, account.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_Create_DuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)

	mock.ExpectExec(insertAccountQuery).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ann@example.com' for key 'uniq_accounts_canonical_email'"})

	err := repo.Create(context.Background(), testAccount(time.Now()))
	if !errors.Is(err, repository.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_Create_OtherError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)

	mock.ExpectExec(insertAccountQuery).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "foreign key"})

	err := repo.Create(context.Background(), testAccount(time.Now()))
	if err == nil || errors.Is(err, repository.ErrDuplicateEmail) {
		t.Fatalf("expected raw error, got %v", err)
	}
}

func TestAccountRepository_FindByCanonicalEmail(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	now := time.Now()

	mock.ExpectQuery(findAccountByEmailQuery).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			"id-1", "Ann", "Ann@example.com", "ann@example.com", "hash", "verified", now, now,
		))

	account, err := repo.FindByCanonicalEmail(context.Background(), "ann@example.com")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if account == nil || account.ID != "id-1" || account.Status != entity.AccountStatusVerified {
		t.Fatalf("unexpected account: %+v", account)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_FindByID_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)

	mock.ExpectQuery(findAccountByIDQuery).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	account, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if account != nil {
		t.Fatalf("expected nil account, got %+v", account)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_UpdateStatus(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)

	mock.ExpectExec(updateAccountStatusQuery).
		WithArgs("verified", sqlmock.AnyArg(), "id-1", "unverified").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateAccountStatusQuery).
		WithArgs("verified", sqlmock.AnyArg(), "id-1", "unverified").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateStatus(context.Background(), "id-1", entity.AccountStatusUnverified, entity.AccountStatusVerified)
	if err != nil || !ok {
		t.Fatalf("expected status update, got %v %v", ok, err)
	}
	ok, err = repo.UpdateStatus(context.Background(), "id-1", entity.AccountStatusUnverified, entity.AccountStatusVerified)
	if err != nil || ok {
		t.Fatalf("expected no-op update, got %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_UpdatePasswordHash(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)

	mock.ExpectExec(updatePasswordHashQuery).
		WithArgs("new-hash", sqlmock.AnyArg(), "id-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePasswordHash(context.Background(), "id-1", "new-hash"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_Delete(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)

	mock.ExpectExec(closeAccountQuery).
		WithArgs("closed", sqlmock.AnyArg(), "id-1", "closed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(closeAccountQuery).
		WithArgs("closed", sqlmock.AnyArg(), "id-1", "closed").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Delete(context.Background(), "id-1")
	if err != nil || !ok {
		t.Fatalf("expected delete, got %v %v", ok, err)
	}
	ok, err = repo.Delete(context.Background(), "id-1")
	if err != nil || ok {
		t.Fatalf("expected second delete to report false, got %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_FindByIDForUpdate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewAccountRepository(db)
	now := time.Now()

	mock.ExpectQuery(lockAccountByIDQuery).
		WithArgs("account-1").
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			"account-1", "Ann", "Ann@example.com", "ann@example.com", "hash", "verified", now, now,
		))

	account, err := repo.FindByIDForUpdate(context.Background(), "account-1")
	if err != nil {
		t.Fatalf("find for update failed: %v", err)
	}
	if account == nil || account.Status != entity.AccountStatusVerified {
		t.Fatalf("unexpected account: %+v", account)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

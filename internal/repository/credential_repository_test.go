package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"stockrouter/internal/models"
	"stockrouter/pkg/crypto"
)

// ============================================================
// CredentialRepository Tests
// ============================================================

// newTestRepo создает репозиторий со свежей health-check меткой,
// чтобы тесты операций не ожидали лишний SELECT 1.
func newTestRepo(t *testing.T, opts ...Option) (*CredentialRepository, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}

	repo := NewCredentialRepository(db, opts...)
	repo.lastHealthCheck = time.Now()

	return repo, mock, func() { db.Close() }
}

func credentialRows(slotID int, token, expiry string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"slot_id", "access_token", "expires_at", "created_at", "updated_at"}).
		AddRow(slotID, token, expiry, now, now)
}

func TestCredentialRepositoryGet(t *testing.T) {
	repo, mock, cleanup := newTestRepo(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT slot_id, access_token, expires_at, created_at, updated_at`).
		WithArgs(3).
		WillReturnRows(credentialRows(3, "tok-3", "2025-06-02 09:00:00"))

	cred, err := repo.Get(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.SlotID != 3 || cred.AccessToken != "tok-3" {
		t.Errorf("got %+v", cred)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCredentialRepositoryGetNotFound(t *testing.T) {
	repo, mock, cleanup := newTestRepo(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT slot_id, access_token`).
		WithArgs(7).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 7)
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("error = %v, want ErrCredentialNotFound", err)
	}
}

func TestCredentialRepositoryUpsert(t *testing.T) {
	repo, mock, cleanup := newTestRepo(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(5, "new-token", "2025-06-02 09:00:00").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), 5, "new-token", "2025-06-02 09:00:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCredentialRepositoryClearWritesSentinel(t *testing.T) {
	repo, mock, cleanup := newTestRepo(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(9, models.TokenAbsent, models.TokenAbsent).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Clear(context.Background(), 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCredentialRepositoryPurgeStale(t *testing.T) {
	repo, mock, cleanup := newTestRepo(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM credentials`).
		WithArgs(models.TokenAbsent, 30).
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := repo.PurgeStale(context.Background(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, want 4", deleted)
	}
}

func TestCredentialRepositoryEncryptsTokenAtRest(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	repo, mock, cleanup := newTestRepo(t, WithEncryptionKey(key))
	defer cleanup()

	// ciphertext случайный - проверяем только что это НЕ открытый токен
	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(1, encryptedTokenArg{key: key, plaintext: "raw-token"}, "2025-06-02 09:00:00").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Upsert(context.Background(), 1, "raw-token", "2025-06-02 09:00:00"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCredentialRepositoryDecryptsTokenOnGet(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	encrypted, err := crypto.Encrypt("raw-token", key)
	if err != nil {
		t.Fatal(err)
	}

	repo, mock, cleanup := newTestRepo(t, WithEncryptionKey(key))
	defer cleanup()

	mock.ExpectQuery(`SELECT slot_id, access_token`).
		WithArgs(1).
		WillReturnRows(credentialRows(1, encrypted, "2025-06-02 09:00:00"))

	cred, err := repo.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.AccessToken != "raw-token" {
		t.Errorf("AccessToken = %q, want decrypted raw-token", cred.AccessToken)
	}
}

func TestCredentialRepositorySentinelBypassesEncryption(t *testing.T) {
	key, _ := crypto.GenerateKey()

	repo, mock, cleanup := newTestRepo(t, WithEncryptionKey(key))
	defer cleanup()

	// Sentinel хранится открыто, иначе PurgeStale его не найдёт
	mock.ExpectExec(`INSERT INTO credentials`).
		WithArgs(2, models.TokenAbsent, models.TokenAbsent).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Clear(context.Background(), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCredentialRepositoryHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewCredentialRepository(db, WithHealthCheckInterval(time.Nanosecond))

	// Интервал истёк: операция сначала проверяет соединение
	mock.ExpectQuery(`SELECT 1`).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`SELECT slot_id, access_token`).
		WithArgs(1).
		WillReturnRows(credentialRows(1, "tok", "2025-06-02 09:00:00"))

	if _, err := repo.Get(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCredentialRepositoryList(t *testing.T) {
	repo, mock, cleanup := newTestRepo(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"slot_id", "access_token", "expires_at", "created_at", "updated_at"}).
		AddRow(1, "tok-1", "2025-06-02 09:00:00", now, now).
		AddRow(2, models.TokenAbsent, models.TokenAbsent, now, now)

	mock.ExpectQuery(`SELECT slot_id, access_token`).WillReturnRows(rows)

	creds, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("len = %d, want 2", len(creds))
	}
	if !creds[1].Absent() {
		t.Error("slot 2 should be reported as absent")
	}
}

// ============================================================
// helpers
// ============================================================

// encryptedTokenArg - sqlmock-матчер: аргумент должен расшифровываться
// ключом key в ожидаемый plaintext.
type encryptedTokenArg struct {
	key       []byte
	plaintext string
}

func (e encryptedTokenArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok || s == e.plaintext {
		return false
	}
	decrypted, err := crypto.Decrypt(s, e.key)
	return err == nil && decrypted == e.plaintext
}

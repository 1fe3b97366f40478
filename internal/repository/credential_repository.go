package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"stockrouter/internal/models"
	"stockrouter/pkg/crypto"
	"stockrouter/pkg/retry"
)

// Ошибки хранилища кредов
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
)

// DefaultHealthCheckInterval - как часто проверять живость соединения
const DefaultHealthCheckInterval = 300 * time.Second

// CredentialRepository - работа с таблицей credentials
//
// Одна строка на слот (slot_id - первичный ключ, запись идемпотентно
// перезаписывается upsert'ом). Перед каждой операцией репозиторий
// проверяет живость соединения: если с последней проверки прошло больше
// healthCheckInterval, выполняется тривиальный запрос; при ошибке -
// переподключение с ограниченным retry (3 попытки, backoff от 1s).
// Только переход check-and-reconnect сериализуется мьютексом; сами
// чтения и записи полагаются на атомарность PostgreSQL.
type CredentialRepository struct {
	db *sql.DB

	// encryptionKey - ключ AES-256 для токенов в БД; nil = открытый текст.
	// Sentinel-значение TokenAbsent всегда хранится открыто, иначе
	// PurgeStale не сможет отличить пустые строки.
	encryptionKey []byte

	healthCheckInterval time.Duration

	mu              sync.Mutex // защищает lastHealthCheck и переход переподключения
	lastHealthCheck time.Time
}

// Option настраивает репозиторий при создании.
type Option func(*CredentialRepository)

// WithEncryptionKey включает шифрование токенов в БД (32 байта, AES-256).
func WithEncryptionKey(key []byte) Option {
	return func(r *CredentialRepository) {
		if len(key) == 32 {
			r.encryptionKey = key
		}
	}
}

// WithHealthCheckInterval переопределяет интервал проверки соединения.
func WithHealthCheckInterval(interval time.Duration) Option {
	return func(r *CredentialRepository) {
		if interval > 0 {
			r.healthCheckInterval = interval
		}
	}
}

// NewCredentialRepository создает новый экземпляр репозитория
func NewCredentialRepository(db *sql.DB, opts ...Option) *CredentialRepository {
	r := &CredentialRepository{
		db:                  db,
		healthCheckInterval: DefaultHealthCheckInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InitSchema создает таблицу credentials если её ещё нет.
func (r *CredentialRepository) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS credentials (
			slot_id      INTEGER PRIMARY KEY,
			access_token TEXT NOT NULL,
			expires_at   TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("init credentials schema: %w", err)
	}
	return nil
}

// ensureConnection проверяет живость соединения и при необходимости
// переподключается. Единственная точка взаимного исключения хранилища.
func (r *CredentialRepository) ensureConnection(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastHealthCheck) < r.healthCheckInterval {
		return nil
	}

	var one int
	if err := r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err == nil {
		r.lastHealthCheck = time.Now()
		return nil
	}

	log.Println("credential store: connection lost, reconnecting...")

	// database/sql восстанавливает соединения пула сам; Ping с retry
	// заставляет его досоздать живое соединение до того, как мы вернём
	// управление вызывающему коду
	err := retry.Do(ctx, func() error {
		return r.db.PingContext(ctx)
	}, retry.ReconnectConfig())
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	r.lastHealthCheck = time.Now()
	return nil
}

// Get возвращает кред слота. ErrCredentialNotFound если строки нет.
func (r *CredentialRepository) Get(ctx context.Context, slotID int) (*models.Credential, error) {
	if err := r.ensureConnection(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT slot_id, access_token, expires_at, created_at, updated_at
		FROM credentials
		WHERE slot_id = $1`

	cred := &models.Credential{}
	err := r.db.QueryRowContext(ctx, query, slotID).Scan(
		&cred.SlotID,
		&cred.AccessToken,
		&cred.ExpiresAt,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}

	if r.encryptionKey != nil && cred.AccessToken != models.TokenAbsent {
		token, err := crypto.Decrypt(cred.AccessToken, r.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt token for slot %d: %w", slotID, err)
		}
		cred.AccessToken = token
	}

	return cred, nil
}

// Upsert записывает кред слота. Запись атомарна: одно выражение
// INSERT ... ON CONFLICT, без delete+insert.
func (r *CredentialRepository) Upsert(ctx context.Context, slotID int, token, expiry string) error {
	if err := r.ensureConnection(ctx); err != nil {
		return err
	}

	if r.encryptionKey != nil && token != models.TokenAbsent {
		encrypted, err := crypto.Encrypt(token, r.encryptionKey)
		if err != nil {
			return fmt.Errorf("encrypt token for slot %d: %w", slotID, err)
		}
		token = encrypted
	}

	query := `
		INSERT INTO credentials (slot_id, access_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (slot_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			expires_at   = EXCLUDED.expires_at,
			updated_at   = now()`

	if _, err := r.db.ExecContext(ctx, query, slotID, token, expiry); err != nil {
		return fmt.Errorf("upsert credential for slot %d: %w", slotID, err)
	}
	return nil
}

// Clear помечает слот как не имеющий выпущенного токена (sentinel-запись).
func (r *CredentialRepository) Clear(ctx context.Context, slotID int) error {
	return r.Upsert(ctx, slotID, models.TokenAbsent, models.TokenAbsent)
}

// PurgeStale удаляет sentinel-строки старше maxAgeDays.
// Действующие креды не затрагиваются. Возвращает число удалённых строк.
func (r *CredentialRepository) PurgeStale(ctx context.Context, maxAgeDays int) (int64, error) {
	if err := r.ensureConnection(ctx); err != nil {
		return 0, err
	}

	query := `
		DELETE FROM credentials
		WHERE access_token = $1
		  AND updated_at < now() - ($2 * interval '1 day')`

	result, err := r.db.ExecContext(ctx, query, models.TokenAbsent, maxAgeDays)
	if err != nil {
		return 0, fmt.Errorf("purge stale credentials: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Printf("credential store: purged %d stale credential rows", deleted)
	}
	return deleted, nil
}

// List возвращает все кредиты без расшифровки токенов (для админки токен
// всё равно не отдаётся наружу).
func (r *CredentialRepository) List(ctx context.Context) ([]*models.Credential, error) {
	if err := r.ensureConnection(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT slot_id, access_token, expires_at, created_at, updated_at
		FROM credentials
		ORDER BY slot_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		cred := &models.Credential{}
		if err := rows.Scan(
			&cred.SlotID,
			&cred.AccessToken,
			&cred.ExpiresAt,
			&cred.CreatedAt,
			&cred.UpdatedAt,
		); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

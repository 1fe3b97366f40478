package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"stockrouter/internal/models"
	"stockrouter/internal/repository"
	"stockrouter/pkg/retry"
)

// DefaultExpiryBuffer - минимальный остаток срока действия токена.
// Токен с меньшим остатком считается истёкшим и обменивается заново,
// чтобы он гарантированно не протух посреди цепочки ордеров.
const DefaultExpiryBuffer = time.Hour

// CredentialStore - персистентное хранилище токенов по слотам
type CredentialStore interface {
	Get(ctx context.Context, slotID int) (*models.Credential, error)
	Upsert(ctx context.Context, slotID int, token, expiry string) error
}

// tokenAPI - вызовы клиента, нужные менеджеру сессий
type tokenAPI interface {
	ExchangeToken(ctx context.Context, appKey, appSecret string) (token, expiresAt string, err error)
	Probe(ctx context.Context, h Headers) error
}

// SessionManager выдаёт готовые заголовки авторизованных запросов,
// скрывая жизненный цикл токена: загрузку из хранилища, проверку срока,
// liveness probe и обмен ключей с персистенцией результата.
//
// Потокобезопасен. Per-slot мьютекс сериализует обновление токена:
// параллельные ордера одного слота не устраивают гонку обменов.
type SessionManager struct {
	store        CredentialStore
	api          tokenAPI
	expiryBuffer time.Duration
	refreshCfg   retry.Config
	now          func() time.Time

	// verified - слоты, чей токен уже прошёл probe в этом процессе.
	// Сбрасывается при рестарте: персистентный токен мог быть отозван,
	// пока процесс не работал.
	verified sync.Map // map[int]bool

	// slotLocks - мьютексы по слотам
	slotLocks sync.Map // map[int]*sync.Mutex
}

// SessionOption настраивает SessionManager
type SessionOption func(*SessionManager)

// WithExpiryBuffer переопределяет минимальный остаток срока токена
func WithExpiryBuffer(d time.Duration) SessionOption {
	return func(m *SessionManager) { m.expiryBuffer = d }
}

// WithRefreshRetry переопределяет политику повторов обмена токена
func WithRefreshRetry(cfg retry.Config) SessionOption {
	return func(m *SessionManager) { m.refreshCfg = cfg }
}

// NewSessionManager создаёт менеджер сессий
func NewSessionManager(store CredentialStore, api tokenAPI, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		store:        store,
		api:          api,
		expiryBuffer: DefaultExpiryBuffer,
		refreshCfg:   retry.TokenRefreshConfig(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.refreshCfg.RetryIf == nil {
		m.refreshCfg.RetryIf = retry.IsRetryable
	}
	return m
}

func (m *SessionManager) lockSlot(slotID int) *sync.Mutex {
	v, _ := m.slotLocks.LoadOrStore(slotID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ResolveHeaders возвращает заголовки с токеном, гарантированно валидным
// ещё минимум expiryBuffer. Порядок разрешения:
//
//  1. кред из хранилища; отсутствие или сентинель - сразу обмен;
//  2. остаток срока меньше буфера или срок нечитаем - обмен;
//  3. срок в порядке, но слот ещё не проверялся в этом процессе -
//     liveness probe; отказ probe - обмен;
//  4. обмен ключей с повторами; свежий токен персистируется ДО возврата
//     заголовков, чтобы рестарт процесса его не потерял.
func (m *SessionManager) ResolveHeaders(ctx context.Context, slot *models.AccountSlot) (Headers, error) {
	if err := slot.Validate(); err != nil {
		return Headers{}, err
	}

	mu := m.lockSlot(slot.Number)
	mu.Lock()
	defer mu.Unlock()

	cred, err := m.store.Get(ctx, slot.Number)
	switch {
	case errors.Is(err, repository.ErrCredentialNotFound):
		cred = nil
	case err != nil:
		return Headers{}, fmt.Errorf("load credential for slot %d: %w", slot.Number, err)
	}

	if cred != nil && !cred.Absent() {
		remaining, err := cred.Remaining(m.now())
		switch {
		case err != nil:
			log.Printf("[WARN] slot %d: stored expiry unreadable, refreshing token: %v", slot.Number, err)
		case remaining < m.expiryBuffer:
			log.Printf("[INFO] slot %d: token expires in %s (buffer %s), refreshing", slot.Number, remaining.Round(time.Second), m.expiryBuffer)
		default:
			h := m.headersFor(slot, cred.AccessToken)
			if _, ok := m.verified.Load(slot.Number); ok {
				return h, nil
			}
			if probeErr := m.api.Probe(ctx, h); probeErr == nil {
				m.verified.Store(slot.Number, true)
				return h, nil
			} else if errors.Is(probeErr, ErrTokenRejected) {
				log.Printf("[INFO] slot %d: stored token rejected by upstream, refreshing", slot.Number)
			} else {
				log.Printf("[WARN] slot %d: token probe inconclusive, refreshing: %v", slot.Number, probeErr)
			}
		}
	}

	return m.refresh(ctx, slot)
}

// refresh обменивает ключи слота на новый токен и персистирует его.
// Вызывается под per-slot мьютексом.
func (m *SessionManager) refresh(ctx context.Context, slot *models.AccountSlot) (Headers, error) {
	type issued struct {
		token     string
		expiresAt string
	}

	result, err := retry.DoWithResult(ctx, func() (issued, error) {
		token, expiresAt, err := m.api.ExchangeToken(ctx, slot.APIKey, slot.APISecret)
		if err != nil {
			tokenRefreshTotal.WithLabelValues("error").Inc()
			return issued{}, err
		}
		return issued{token: token, expiresAt: expiresAt}, nil
	}, m.refreshCfg)
	if err != nil {
		m.verified.Delete(slot.Number)
		return Headers{}, fmt.Errorf("%w: slot %d: %v", ErrNoValidCredential, slot.Number, err)
	}

	cred := &models.Credential{AccessToken: result.token, ExpiresAt: result.expiresAt}
	if remaining, err := cred.Remaining(m.now()); err != nil {
		return Headers{}, fmt.Errorf("%w: slot %d: issued token has unreadable expiry %q", ErrNoValidCredential, slot.Number, result.expiresAt)
	} else if remaining < m.expiryBuffer {
		return Headers{}, fmt.Errorf("%w: slot %d: issued token expires in %s, below buffer %s", ErrNoValidCredential, slot.Number, remaining.Round(time.Second), m.expiryBuffer)
	}

	// Персистенция до возврата: незаписанный токен жил бы только до рестарта
	if err := m.store.Upsert(ctx, slot.Number, result.token, result.expiresAt); err != nil {
		return Headers{}, fmt.Errorf("persist credential for slot %d: %w", slot.Number, err)
	}

	tokenRefreshTotal.WithLabelValues("ok").Inc()
	m.verified.Store(slot.Number, true)
	log.Printf("[INFO] slot %d: token refreshed, valid until %s", slot.Number, result.expiresAt)

	return m.headersFor(slot, result.token), nil
}

// Invalidate сбрасывает отметку "проверен в этом процессе": следующий
// ResolveHeaders заново прогонит probe. Вызывается при терминальном
// auth-отказе торгового вызова.
func (m *SessionManager) Invalidate(slotID int) {
	m.verified.Delete(slotID)
}

func (m *SessionManager) headersFor(slot *models.AccountSlot, token string) Headers {
	return Headers{
		Authorization: "Bearer " + token,
		AppKey:        slot.APIKey,
		AppSecret:     slot.APISecret,
		CustType:      "P",
	}
}

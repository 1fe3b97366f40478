package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"stockrouter/internal/models"
)

// CredentialAdmin - административные операции над хранилищем токенов
type CredentialAdmin interface {
	PurgeStale(ctx context.Context, maxAgeDays int) (int64, error)
	List(ctx context.Context) ([]*models.Credential, error)
	Clear(ctx context.Context, slotID int) error
}

// SessionInvalidator сбрасывает in-process отметку живости токена
type SessionInvalidator interface {
	Invalidate(slotID int)
}

// AdminHandler обслуживает административные операции роутера.
//
// Endpoints:
// - POST   /admin/credentials/purge?days=30 - удалить протухшие sentinel-записи
// - GET    /admin/credentials - список записей хранилища (без токенов)
// - DELETE /admin/credentials/{slot} - сбросить токен слота (форсирует re-auth)
type AdminHandler struct {
	store          CredentialAdmin
	session        SessionInvalidator
	defaultMaxDays int
}

// NewAdminHandler создает новый AdminHandler. session опционален (nil
// отключает сброс in-process отметки при очистке слота).
func NewAdminHandler(store CredentialAdmin, session SessionInvalidator, defaultMaxDays int) *AdminHandler {
	if defaultMaxDays <= 0 {
		defaultMaxDays = 30
	}
	return &AdminHandler{store: store, session: session, defaultMaxDays: defaultMaxDays}
}

// PurgeStale удаляет sentinel-записи старше заданного возраста.
//
// POST /admin/credentials/purge?days=30
//
// Response 200 OK: {"message": "purged 4 stale credentials"}
func (h *AdminHandler) PurgeStale(w http.ResponseWriter, r *http.Request) {
	days := h.defaultMaxDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid days parameter", raw)
			return
		}
		days = n
	}

	purged, err := h.store.PurgeStale(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "purge failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: fmt.Sprintf("purged %d stale credentials", purged),
	})
}

// ListCredentials возвращает записи хранилища. Токены не сериализуются
// (json:"-" на уровне модели), наружу уходят только сроки.
//
// GET /admin/credentials
func (h *AdminHandler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed", err.Error())
		return
	}
	if creds == nil {
		creds = []*models.Credential{}
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Data: creds})
}

// ClearCredential сбрасывает токен слота на sentinel. Следующий сигнал
// через слот пройдёт полный обмен токена заново.
//
// DELETE /admin/credentials/{slot}
//
// Response 200 OK: {"message": "credential for slot 3 cleared"}
func (h *AdminHandler) ClearCredential(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["slot"]
	slot, err := strconv.Atoi(raw)
	if err != nil || slot < models.MinSlotNumber || slot > models.MaxSlotNumber {
		writeError(w, http.StatusBadRequest, "invalid slot", raw)
		return
	}

	if err := h.store.Clear(r.Context(), slot); err != nil {
		writeError(w, http.StatusInternalServerError, "clear failed", err.Error())
		return
	}
	if h.session != nil {
		h.session.Invalidate(slot)
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: fmt.Sprintf("credential for slot %d cleared", slot),
	})
}

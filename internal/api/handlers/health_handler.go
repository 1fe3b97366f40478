package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SlotLister возвращает номера сконфигурированных слотов
type SlotLister interface {
	SlotNumbers() []int
}

// HealthHandler отвечает на проверки живости.
//
// Endpoints:
// - GET /health - статус процесса, хранилища и количество слотов
type HealthHandler struct {
	db    Pinger
	slots SlotLister
}

// NewHealthHandler создает новый HealthHandler
func NewHealthHandler(db Pinger, slots SlotLister) *HealthHandler {
	return &HealthHandler{db: db, slots: slots}
}

// healthResponse - ответ health endpoint'а
type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Slots  []int  `json:"slots"`
}

// Health возвращает состояние роутера.
//
// GET /health
//
// Response 200 OK:  {"status": "ok", "store": "ok", "slots": [1, 2]}
// Response 503:     {"status": "degraded", "store": "unavailable", ...}
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok"}

	if h.slots != nil {
		resp.Slots = h.slots.SlotNumbers()
		sort.Ints(resp.Slots)
	}
	if resp.Slots == nil {
		resp.Slots = []int{}
	}

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Store = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

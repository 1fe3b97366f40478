// Package api собирает HTTP поверхность роутера: webhook-приём
// сигналов, котировки, health, административные операции и event-стрим.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockrouter/internal/api/handlers"
	"stockrouter/internal/api/middleware"
	"stockrouter/internal/config"
	"stockrouter/internal/repository"
	"stockrouter/internal/service"
	"stockrouter/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	OrderService   *service.OrderService
	CredentialRepo *repository.CredentialRepository
	Session        handlers.SessionInvalidator
	Hub            *websocket.Hub
	DB             handlers.Pinger
	Webhook        config.WebhookConfig
	PurgeMaxDays   int
}

// SetupRoutes настраивает все HTTP маршруты приложения.
//
// Структура маршрутов:
//
//	/health                        - GET, живость процесса и хранилища
//	/metrics                       - GET, Prometheus метрики
//	/order                         - POST, приём webhook-сигнала
//	/price/{market}/{ticker}       - GET, текущая котировка
//	/admin/credentials             - GET, записи хранилища токенов
//	/admin/credentials/purge       - POST, зачистка протухших записей
//	/admin/credentials/{slot}      - DELETE, сброс токена слота
//	/ws/events                     - WebSocket, real-time события
//
// Middleware:
// Recovery и Logging глобально; IP whitelist (TradingView + приватные
// сети + extra из конфигурации) на всё, кроме /health и /metrics.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)

	// Открытые маршруты: liveness probe балансировщика и scrape
	healthHandler := handlers.NewHealthHandler(nil, nil)
	if deps != nil {
		var slots handlers.SlotLister
		if deps.OrderService != nil {
			slots = deps.OrderService
		}
		healthHandler = handlers.NewHealthHandler(deps.DB, slots)
	}
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if deps == nil {
		return router
	}

	guarded := router.PathPrefix("/").Subrouter()
	wl := middleware.NewIPWhitelist(deps.Webhook.ExtraWhitelist)
	guarded.Use(wl.Middleware)

	if deps.OrderService != nil {
		orderHandler := handlers.NewOrderHandler(deps.OrderService, deps.Webhook.PasswordHash, deps.Webhook.Password)
		guarded.HandleFunc("/order", orderHandler.Execute).Methods(http.MethodPost)

		quoteHandler := handlers.NewQuoteHandler(deps.OrderService)
		guarded.HandleFunc("/price/{market}/{ticker}", quoteHandler.GetPrice).Methods(http.MethodGet)
	}

	if deps.CredentialRepo != nil {
		adminHandler := handlers.NewAdminHandler(deps.CredentialRepo, deps.Session, deps.PurgeMaxDays)
		guarded.HandleFunc("/admin/credentials/purge", adminHandler.PurgeStale).Methods(http.MethodPost)
		guarded.HandleFunc("/admin/credentials", adminHandler.ListCredentials).Methods(http.MethodGet)
		guarded.HandleFunc("/admin/credentials/{slot:[0-9]+}", adminHandler.ClearCredential).Methods(http.MethodDelete)
	}

	if deps.Hub != nil {
		guarded.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		}).Methods(http.MethodGet)
	}

	return router
}

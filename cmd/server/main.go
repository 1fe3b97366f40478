package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockrouter/internal/api"
	"stockrouter/internal/broker"
	"stockrouter/internal/config"
	"stockrouter/internal/notify"
	"stockrouter/internal/repository"
	"stockrouter/internal/service"
	"stockrouter/internal/websocket"

	_ "github.com/lib/pq"
)

// purgeInterval - периодичность зачистки протухших sentinel-записей
const purgeInterval = 24 * time.Hour

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Connected to database successfully")

	// Хранилище токенов
	repoOpts := []repository.Option{
		repository.WithHealthCheckInterval(cfg.Database.HealthCheckInterval),
	}
	if len(cfg.Database.EncryptionKey) > 0 {
		repoOpts = append(repoOpts, repository.WithEncryptionKey(cfg.Database.EncryptionKey))
	}
	credentialRepo := repository.NewCredentialRepository(db, repoOpts...)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	if err := credentialRepo.InitSchema(initCtx); err != nil {
		cancelInit()
		log.Fatalf("Failed to init credential schema: %v", err)
	}
	cancelInit()

	// Клиент брокерского API
	client := broker.NewClient(broker.Config{
		BaseURL:      cfg.Broker.BaseURL,
		ProbeTimeout: cfg.Broker.ProbeTimeout,
		CallTimeout:  cfg.Broker.CallTimeout,
		RateLimit:    cfg.Broker.RateLimit,
		RateBurst:    cfg.Broker.RateBurst,
		HTTP:         broker.DefaultHTTPClientConfig(),
	})

	session := broker.NewSessionManager(credentialRepo, client,
		broker.WithExpiryBuffer(cfg.Broker.ExpiryBuffer))
	engine := broker.NewExecutionEngine(client)

	// Уведомления и event-стрим
	notifier := notify.NewDiscordNotifier(cfg.Notify.DiscordWebhookURL)
	hub := websocket.NewHub()
	go hub.Run()

	orderService := service.NewOrderService(cfg.Slots, session, engine, client, notifier, hub)

	// Периодическая зачистка протухших sentinel-записей
	purgeCtx, stopPurge := context.WithCancel(context.Background())
	go runPurgeLoop(purgeCtx, credentialRepo, cfg.Database.PurgeMaxAgeDays)

	// Настройка HTTP роутера
	deps := &api.Dependencies{
		OrderService:   orderService,
		CredentialRepo: credentialRepo,
		Session:        session,
		Hub:            hub,
		DB:             db,
		Webhook:        cfg.Webhook,
		PurgeMaxDays:   cfg.Database.PurgeMaxAgeDays,
	}
	router := api.SetupRoutes(deps)

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		log.Printf("Starting server on %s (%d account slots configured)", server.Addr, len(cfg.Slots))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		}
	}()

	if notifier.Enabled() {
		startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		notifier.Event(startupCtx, fmt.Sprintf("order router started, %d slots configured", len(cfg.Slots)))
		cancel()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopPurge()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runPurgeLoop раз в сутки удаляет sentinel-записи старше maxAgeDays
func runPurgeLoop(ctx context.Context, repo *repository.CredentialRepository, maxAgeDays int) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			purgeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := repo.PurgeStale(purgeCtx, maxAgeDays); err != nil {
				log.Printf("[ERROR] credential purge failed: %v", err)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

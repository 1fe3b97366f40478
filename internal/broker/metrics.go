package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики брокерского слоя
var (
	// tokenRefreshTotal - обмены ключей на токен по результату (ok/error)
	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockrouter",
			Subsystem: "broker",
			Name:      "token_refresh_total",
			Help:      "Token exchange attempts by result",
		},
		[]string{"result"},
	)

	// ordersTotal - поданные ордера по рынку, стороне и исходу
	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockrouter",
			Subsystem: "broker",
			Name:      "orders_total",
			Help:      "Submitted orders by market, side and outcome",
		},
		[]string{"market", "side", "status"},
	)

	// orderRetriesTotal - повторные попытки подачи ордера
	orderRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stockrouter",
			Subsystem: "broker",
			Name:      "order_retries_total",
			Help:      "Order submission retry attempts",
		},
	)

	// orderDuration - длительность подачи ордера, включая повторы
	orderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stockrouter",
			Subsystem: "broker",
			Name:      "order_duration_seconds",
			Help:      "Order submission duration including retries",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
	)

	// quoteRequestsTotal - запросы котировок по рынку и исходу
	quoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockrouter",
			Subsystem: "broker",
			Name:      "quote_requests_total",
			Help:      "Quote requests by market and outcome",
		},
		[]string{"market", "status"},
	)
)

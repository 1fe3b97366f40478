package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"stockrouter/internal/models"
)

// QuoteProvider возвращает текущую цену инструмента
type QuoteProvider interface {
	Quote(ctx context.Context, slotNumber int, market models.Market, ticker string) (float64, bool, error)
}

// QuoteHandler отдаёт котировки через брокерский API.
//
// Endpoints:
// - GET /price/{market}/{ticker}?slot=N - текущая цена инструмента
type QuoteHandler struct {
	quotes QuoteProvider
}

// NewQuoteHandler создает новый QuoteHandler
func NewQuoteHandler(quotes QuoteProvider) *QuoteHandler {
	return &QuoteHandler{quotes: quotes}
}

// quoteResponse - ответ котировочного endpoint'а
type quoteResponse struct {
	Market models.Market `json:"market"`
	Ticker string        `json:"ticker"`
	Price  float64       `json:"price"`
}

// GetPrice возвращает текущую цену инструмента.
//
// GET /price/{market}/{ticker}?slot=1
//
// Response 200 OK: {"market": "NASDAQ", "ticker": "AAPL", "price": 187.25}
// Response 404 Not Found: котировка отсутствует в ответе апстрима
// Response 400 Bad Request: неподдерживаемый рынок или кривой slot
func (h *QuoteHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	market := models.Market(strings.ToUpper(vars["market"]))
	ticker := vars["ticker"]

	if !market.Supported() {
		writeError(w, http.StatusBadRequest, "unsupported market", string(market))
		return
	}

	slot := 1
	if raw := r.URL.Query().Get("slot"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid slot", raw)
			return
		}
		slot = n
	}

	price, ok, err := h.quotes.Quote(r.Context(), slot, market, ticker)
	if err != nil {
		writeError(w, classifyStatus(err), "quote request failed", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "quote unavailable", ticker)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		Market: market,
		Ticker: ticker,
		Price:  price,
	})
}

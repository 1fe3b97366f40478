package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"stockrouter/internal/models"
)

type fakeQuoteProvider struct {
	price   float64
	ok      bool
	err     error
	gotSlot int
}

func (f *fakeQuoteProvider) Quote(_ context.Context, slot int, _ models.Market, _ string) (float64, bool, error) {
	f.gotSlot = slot
	return f.price, f.ok, f.err
}

func getPrice(handler *QuoteHandler, path string) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.HandleFunc("/price/{market}/{ticker}", handler.GetPrice).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetPrice(t *testing.T) {
	provider := &fakeQuoteProvider{price: 187.25, ok: true}
	handler := NewQuoteHandler(provider)

	rec := getPrice(handler, "/price/nasdaq/AAPL?slot=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var resp quoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Price != 187.25 || resp.Market != models.MarketNASDAQ {
		t.Errorf("unexpected response: %+v", resp)
	}
	if provider.gotSlot != 2 {
		t.Errorf("slot = %d, want 2", provider.gotSlot)
	}
}

func TestGetPriceDefaultSlot(t *testing.T) {
	provider := &fakeQuoteProvider{price: 71900, ok: true}
	handler := NewQuoteHandler(provider)

	rec := getPrice(handler, "/price/KRX/005930")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if provider.gotSlot != 1 {
		t.Errorf("slot = %d, want default 1", provider.gotSlot)
	}
}

func TestGetPriceAbsent(t *testing.T) {
	handler := NewQuoteHandler(&fakeQuoteProvider{ok: false})

	rec := getPrice(handler, "/price/NASDAQ/XXXX")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for absent quote", rec.Code)
	}
}

func TestGetPriceUnsupportedMarket(t *testing.T) {
	handler := NewQuoteHandler(&fakeQuoteProvider{})

	rec := getPrice(handler, "/price/LSE/VOD")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unsupported market", rec.Code)
	}
}

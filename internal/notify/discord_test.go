package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stockrouter/internal/models"
)

func TestOrderResultAccepted(t *testing.T) {
	var gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		gotContent = payload["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL)
	n.OrderResult(context.Background(), &models.OrderResult{
		Status:    models.OrderAccepted,
		Slot:      3,
		Market:    models.MarketNASDAQ,
		Ticker:    "AAPL",
		Side:      models.SideBuy,
		Quantity:  2,
		OrderID:   "0030089601",
		ExecPrice: 187.75,
	})

	for _, want := range []string{"accepted", "slot 3", "AAPL", "x2", "0030089601", "187.75"} {
		if !strings.Contains(gotContent, want) {
			t.Errorf("content %q missing %q", gotContent, want)
		}
	}
}

func TestOrderResultRejectedKeepsUpstreamMessage(t *testing.T) {
	var gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		gotContent = payload["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL)
	n.OrderResult(context.Background(), &models.OrderResult{
		Status:   models.OrderRejected,
		Slot:     1,
		Market:   models.MarketKRX,
		Ticker:   "005930",
		Side:     models.SideSell,
		Quantity: 10,
		Message:  "upstream error [APBK0013]: invalid order quantity",
	})

	if !strings.Contains(gotContent, "invalid order quantity") {
		t.Errorf("content %q must carry upstream message verbatim", gotContent)
	}
	if !strings.Contains(gotContent, "rejected") {
		t.Errorf("content %q missing rejected marker", gotContent)
	}
}

func TestDisabledNotifierSkipsSend(t *testing.T) {
	n := NewDiscordNotifier("")
	if n.Enabled() {
		t.Fatal("empty webhook URL must disable the notifier")
	}
	// Не должно паниковать и не должно никуда ходить
	n.OrderResult(context.Background(), &models.OrderResult{Status: models.OrderAccepted})
	n.Event(context.Background(), "startup")
}

func TestLongContentTruncated(t *testing.T) {
	var gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		gotContent = payload["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewDiscordNotifier(srv.URL)
	n.Event(context.Background(), strings.Repeat("x", 5000))

	if len(gotContent) > maxContentLength {
		t.Errorf("content length = %d, want <= %d", len(gotContent), maxContentLength)
	}
}

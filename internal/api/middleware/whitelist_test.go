package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIPWhitelistAllowed(t *testing.T) {
	wl := NewIPWhitelist([]string{"203.0.113.10"})

	tests := []struct {
		ip   string
		want bool
	}{
		{"52.89.214.238", true},  // TradingView
		{"34.212.75.30", true},   // TradingView
		{"54.218.53.128", true},  // TradingView
		{"52.32.178.7", true},    // TradingView
		{"127.0.0.1", true},      // loopback
		{"::1", true},            // loopback v6
		{"192.168.1.50", true},   // private
		{"10.0.0.7", true},       // private
		{"203.0.113.10", true},   // extra from config
		{"203.0.113.11", false},  // not whitelisted
		{"8.8.8.8", false},       // public
		{"not-an-address", false},
	}

	for _, tt := range tests {
		if got := wl.Allowed(tt.ip); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestIPWhitelistMiddleware(t *testing.T) {
	wl := NewIPWhitelist(nil)
	handler := wl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		remoteAddr string
		wantStatus int
	}{
		{"tradingview source", "52.89.214.238:51234", http.StatusOK},
		{"local source", "127.0.0.1:9999", http.StatusOK},
		{"public source rejected", "8.8.8.8:443", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/order", nil)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

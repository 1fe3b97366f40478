package middleware

import (
	"log"
	"net"
	"net/http"
	"strings"
)

// tradingViewIPs - публичные адреса, с которых TradingView шлёт
// webhook-алерты. Список фиксирован и публикуется самим TradingView.
var tradingViewIPs = []string{
	"52.89.214.238",
	"34.212.75.30",
	"54.218.53.128",
	"52.32.178.7",
}

// IPWhitelist пропускает запросы только с известных адресов:
// TradingView, loopback, приватные сети и явно разрешённые extra.
// Всё остальное получает 403 без чтения тела.
type IPWhitelist struct {
	allowed map[string]struct{}
}

// NewIPWhitelist создает whitelist. extra - дополнительные адреса из
// конфигурации (шлюзы, мониторинг).
func NewIPWhitelist(extra []string) *IPWhitelist {
	wl := &IPWhitelist{allowed: make(map[string]struct{})}
	for _, ip := range tradingViewIPs {
		wl.allowed[ip] = struct{}{}
	}
	for _, ip := range extra {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			wl.allowed[ip] = struct{}{}
		}
	}
	return wl
}

// Allowed проверяет адрес
func (wl *IPWhitelist) Allowed(ipStr string) bool {
	if _, ok := wl.allowed[ipStr]; ok {
		return true
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}

// Middleware возвращает http middleware поверх whitelist'а
func (wl *IPWhitelist) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			// RemoteAddr без порта (нестандартный прокси)
			host = r.RemoteAddr
		}

		if !wl.Allowed(host) {
			log.Printf("[WARN] request from non-whitelisted address %s rejected", host)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

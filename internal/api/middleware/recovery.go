package middleware

import (
	"log"
	"net/http"
	"runtime/debug"
)

// Recovery - middleware для восстановления после паники в handlers.
//
// Перехватывает panic, логирует stack trace и отвечает 500, не роняя
// процесс: роутер должен пережить любой кривой webhook.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC: %v\n", err)
				log.Printf("Stack trace:\n%s", debug.Stack())

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"tradeagent/pkg/crypto"
)

// APIAuth возвращает middleware, проверяющий ключ управления из
// заголовка X-API-Key против bcrypt-хеша из конфигурации.
//
// Пустой хеш отключает аутентификацию: агент с одним пользователем
// при локальном развертывании может работать без ключа. В остальных
// случаях запрос без валидного ключа получает 401.
func APIAuth(keyHash string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" || !crypto.CheckKeyMatch(key, keyHash) {
				log.Warn("Unauthorized API request",
					zap.String("path", r.URL.Path),
					zap.String("remote", r.RemoteAddr))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

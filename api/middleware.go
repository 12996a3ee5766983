package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/warp/yield-pacing/logger"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the verified token claims, if any.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(jwt.MapClaims)
	return claims, ok
}

// requestLogger logs one line per request at Info, Warn for 4xx and Error
// for 5xx.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			l := logger.WithRequest(base, r.Method, r.URL.Path, middleware.GetReqID(r.Context()))
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				sub, _ := claims.GetSubject()
				name, _ := claims["name"].(string)
				l = logger.WithAdvisor(l, sub, name)
			}
			fields := []zap.Field{
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case ww.Status() >= 500:
				l.Error("request", fields...)
			case ww.Status() >= 400:
				l.Warn("request", fields...)
			default:
				l.Info("request", fields...)
			}
		})
	}
}

// bearerAuth verifies HS256 bearer tokens signed with secret.
func bearerAuth(secret string, log *zap.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return key, nil
			})
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				log.Debug("token rejected", zap.Error(err), zap.String("path", r.URL.Path))
				writeError(w, http.StatusUnauthorized, msg, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

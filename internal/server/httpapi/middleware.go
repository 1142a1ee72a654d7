package httpapi

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMW logs request metadata only, never payloads.
func (s *Server) loggingMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", r.RemoteAddr),
		)
	})
}

// recoverMW converts panics into 500s so one broken punch cannot take the
// kiosk daemon down.
func (s *Server) recoverMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rc := recover(); rc != nil {
				s.log.Error("panic",
					zap.Any("reason", rc),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				s.writeError(w, http.StatusInternalServerError, "internal")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAuth verifies "Authorization: Bearer <JWT>" as HS256 with the
// configured key.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := bearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "no auth")
			return
		}

		var claims jwt.RegisteredClaims
		parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return s.signKey, nil
		})
		if err != nil || !parsed.Valid {
			s.writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		v := jwt.NewValidator(jwt.WithLeeway(30 * time.Second))
		if err := v.Validate(claims); err != nil {
			s.writeError(w, http.StatusUnauthorized, "token expired or not valid yet")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if ht := strings.TrimPrefix(h, "Bearer "); ht != h && ht != "" {
		return ht, nil
	}
	return "", errors.New("no bearer token")
}

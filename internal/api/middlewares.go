package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/time/rate"

	"github.com/harlequingg/taskd/internal/storage"
)

func (app *Application) recoverPanic(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverError(w, r, "recover", "", fmt.Errorf("%v", err))
			}
		}()
		next.ServeHTTP(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (app *Application) logRequest(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		app.logger.Printf("%s %s %d %s", r.Method, r.URL.RequestURI(), rec.status, time.Since(start))
	}
}

type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// authenticate verifies bearer tokens issued by the identity provider. The
// token subject is the account id; the account is provisioned on first sight.
// Requests without an Authorization header pass through anonymously.
func (app *Application) authenticate(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Authorization")
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || parts[0] != "Bearer" {
			invalidAuthenticationToken(w)
			return
		}

		var claims identityClaims
		token, err := jwt.ParseWithClaims(parts[1], &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(app.config.JWT.Secret), nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			app.logger.Printf("rejected token: %v", err)
			invalidAuthenticationToken(w)
			return
		}

		a, err := app.storage.ResolveOrCreateAccount(r.Context(), claims.Subject, claims.Email)
		if err != nil {
			if errors.Is(err, storage.ErrMissingIdentityInfo) {
				invalidAuthenticationToken(w)
				return
			}
			app.serverError(w, r, "resolve account", claims.Subject, err)
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, a)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func (app *Application) rateLimit(next http.Handler) http.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)
	go func() {
		for {
			time.Sleep(time.Minute)
			func() {
				mu.Lock()
				defer mu.Unlock()
				for ip, client := range clients {
					if time.Since(client.lastSeen) >= time.Minute*3 {
						delete(clients, ip)
					}
				}
			}()
		}
	}()
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			app.serverError(w, r, "rate limit", r.RemoteAddr, err)
			return
		}
		mu.Lock()
		c, ok := clients[ip]
		if !ok {
			c = &client{
				limiter: rate.NewLimiter(rate.Limit(app.config.Limiter.RPS), app.config.Limiter.Burst),
			}
			clients[ip] = c
		}
		c.lastSeen = time.Now()
		if !c.limiter.Allow() {
			mu.Unlock()
			writeError(w, errors.New("rate limit exceeded"), http.StatusTooManyRequests)
			return
		}
		mu.Unlock()
		next.ServeHTTP(w, r)
	}
}

func (app *Application) enableCORS(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Origin")
		w.Header().Add("Vary", "Access-Control-Request-Method")

		origin := r.Header.Get("Origin")
		if origin != "" {
			for _, o := range app.config.CORS.TrustedOrigins {
				if origin == o || o == "*" {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					// preflight request
					if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
						w.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET, POST, PUT, DELETE")
						w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
						w.WriteHeader(http.StatusOK)
						return
					}
					break
				}
			}
		}
		next.ServeHTTP(w, r)
	}
}

type accountContext string

const accountContextKey accountContext = "accountContextKey"

// accountFromRequest returns nil for anonymous requests.
func accountFromRequest(r *http.Request) *storage.Account {
	a, _ := r.Context().Value(accountContextKey).(*storage.Account)
	return a
}

// requestOwner returns the owner id a request acts for. Authenticated callers
// act for themselves by default and may not name another owner.
func requestOwner(r *http.Request, requested string) (string, bool) {
	a := accountFromRequest(r)
	if a == nil {
		return requested, true
	}
	if requested != "" && requested != a.ID {
		return "", false
	}
	return a.ID, true
}

package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// CookieName carries the player token for clients that cannot set headers (websockets).
const CookieName = "wordler_token"

// AuthConfig controls player tokens and the admin key.
type AuthConfig struct {
	Secret       string
	TokenTTL     time.Duration
	AdminKeyHash string // bcrypt hash; empty disables /admin
}

// authUser is placed into request context by auth middleware.
type authUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (u *authUser) name() string {
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

// ctxUserKey is the context key type for storing authUser.
type ctxUserKey struct{}

func currentUser(r *http.Request) *authUser {
	me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
	return me
}

func (a AuthConfig) secret() []byte {
	if a.Secret == "" {
		return []byte("dev_secret_change_me")
	}
	return []byte(a.Secret)
}

func (a AuthConfig) ttl() time.Duration {
	if a.TokenTTL <= 0 {
		return 14 * 24 * time.Hour
	}
	return a.TokenTTL
}

// SignToken creates an HS256 JWT with id/username.
func (a AuthConfig) SignToken(id, username string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(a.ttl())
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       id,
		"username": username,
		"exp":      exp.Unix(),
		"iat":      now.Unix(),
	})
	ss, err := t.SignedString(a.secret())
	return ss, exp, err
}

func (a AuthConfig) parse(tokenStr string) (*authUser, bool) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, false
	}
	id, _ := claims["id"].(string)
	username, _ := claims["username"].(string)
	if id == "" {
		return nil, false
	}
	return &authUser{ID: id, Username: username}, true
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// requireAuth enforces a valid JWT and injects authUser into request context.
func (s *Server) requireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerOrCookie(r)
			if tokenStr == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			me, ok := s.auth.parse(tokenStr)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid_token"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserKey{}, me)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin checks X-Admin-Key against the configured bcrypt hash.
func (s *Server) requireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.auth.AdminKeyHash == "" {
				writeJSON(w, http.StatusForbidden, errorBody{Error: "admin_disabled"})
				return
			}
			key := r.Header.Get("X-Admin-Key")
			if key == "" || bcrypt.CompareHashAndPassword([]byte(s.auth.AdminKeyHash), []byte(key)) != nil {
				log.Warn().Str("remote", r.RemoteAddr).Msg("rejected admin key")
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid_admin_key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type mintTokenReq struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// handleMintToken issues a player token for a trusted frontend.
func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	var req mintTokenReq
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing_id"})
		return
	}
	tok, exp, err := s.auth.SignToken(req.ID, strings.TrimSpace(req.Username))
	if err != nil {
		log.Error().Err(err).Msg("sign token")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "sign_failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "expiresAt": exp.UTC().Format(time.RFC3339)})
}

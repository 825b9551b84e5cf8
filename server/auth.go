package server

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

// signToken issues an HS256 token for subject valid for ttl from now.
func signToken(secret []byte, subject string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// verifyToken validates a token and returns its subject claim.
func verifyToken(secret []byte, raw string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// jwtSecret returns the configured JWT secret, generating one if empty.
// Generated secrets do not survive a restart.
func (s *Server) jwtSecret() []byte {
	if s.cfg.Auth.JWTSecret != "" {
		return []byte(s.cfg.Auth.JWTSecret)
	}
	s.secretOnce.Do(func() {
		b := make([]byte, 32)
		_, _ = rand.Read(b)
		s.generatedSecret = b
	})
	return s.generatedSecret
}

// loginRequest is the body accepted by POST /api/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the body returned by a successful login.
type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin checks the admin credentials against the bcrypt hash in
// config and issues a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username != s.cfg.Auth.AdminUser ||
		bcrypt.CompareHashAndPassword([]byte(s.cfg.Auth.AdminPass), []byte(req.Password)) != nil {
		s.logger.Info("login rejected", slog.String("username", req.Username))
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ttl := s.cfg.Auth.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	token, err := signToken(s.jwtSecret(), req.Username, now, ttl)
	if err != nil {
		s.logger.Error("sign jwt", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: now.Add(ttl).UTC()})
}

// handleMe returns the currently authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	subject, _ := subjectFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"username": subject})
}

// authMiddleware enforces JWT authentication on wrapped handlers. The
// token may also come from the "token" query parameter because
// EventSource cannot set headers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		subject, err := verifyToken(s.jwtSecret(), token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token: "+err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithSubject(r.Context(), subject)))
	})
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/mind-engage/mindengage-assess/internal/rbac"
)

type AuthService struct {
	hmac []byte
	ttl  time.Duration
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{hmac: []byte(secret), ttl: 8 * time.Hour}
}

type Claims struct {
	Role string `json:"role"` // student, teacher or admin
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(sub, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "mindengage-assess",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.hmac)
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

// Verifier checks credentials. *UserRepo implements it.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (User, error)
}

// POST /auth/login  { "username": "...", "password": "...", "role": "..." }
//
// Stored users are verified with bcrypt and get their stored role. With
// devLogin set, an unknown user may log in with username==password and the
// requested student or teacher role.
func LoginHandler(a *AuthService, users Verifier, devLogin bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		sub, role, err := authenticate(r, users, devLogin, req.Username, req.Password, req.Role)
		if err != nil {
			hlog.FromRequest(r).Info().Str("username", req.Username).Err(err).Msg("login rejected")
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		tok, err := a.IssueJWT(sub, role)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": tok, "role": role})
	}
}

func authenticate(r *http.Request, users Verifier, devLogin bool, username, password, role string) (string, string, error) {
	if users != nil {
		u, err := users.Verify(r.Context(), username, password)
		switch {
		case err == nil:
			return u.ID, u.Role, nil
		case !errors.Is(err, ErrUserNotFound):
			return "", "", err
		}
	}
	if !devLogin {
		return "", "", ErrInvalidCredentials
	}
	if username == "" || username != password || (role != "student" && role != "teacher") {
		return "", "", fmt.Errorf("%w: dev login", ErrInvalidCredentials)
	}
	return username, role, nil
}

// JWTMiddleware authenticates the bearer token and puts subject and role
// into the request context.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			c, err := a.Parse(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			ctx := WithSubject(r.Context(), c.Subject)
			ctx = rbac.WithRole(ctx, c.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"mantle/internal/config"
	"mantle/internal/engine"
	"mantle/internal/manifest"
	"mantle/internal/schema"
	"mantle/internal/store"
)

const tokenTTL = 24 * time.Hour

// Claims carries the authenticated record's identity: which authenticable
// entity it belongs to and its row id.
type Claims struct {
	UserID     int64  `json:"userId"`
	EntitySlug string `json:"entitySlug"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens for authenticable entities.
type Service struct {
	store     *store.Store
	reg       *manifest.Registry
	secret    []byte
	adminSlug string
}

func New(st *store.Store, reg *manifest.Registry, cfg config.AuthConfig) *Service {
	adminSlug := cfg.AdminSlug
	if adminSlug == "" {
		adminSlug = "admins"
	}
	return &Service{
		store:     st,
		reg:       reg,
		secret:    []byte(cfg.JWTSecret),
		adminSlug: adminSlug,
	}
}

// AdminSlug returns the entity slug whose tokens carry admin visibility.
func (s *Service) AdminSlug() string { return s.adminSlug }

// LoginResult is the login response payload.
type LoginResult struct {
	Token string         `json:"token"`
	User  map[string]any `json:"user"`
}

// Login checks credentials against an authenticable entity and issues a
// signed token. Invalid email and invalid password answer identically.
func (s *Service) Login(ctx context.Context, slug, email, password string) (*LoginResult, error) {
	entity := s.reg.GetEntity(slug)
	if entity == nil || !entity.Authenticable {
		return nil, engine.UnknownEntityError(slug)
	}
	if email == "" || password == "" {
		return nil, engine.BadRequestError("email and password are required")
	}

	pb := s.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT id, email, password FROM %s WHERE email = %s",
		schema.TableName(slug), pb.Add(email))
	row, err := store.QueryRow(ctx, s.store.DB, sqlStr, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.UnauthorizedError("Invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("login lookup %s: %w", slug, err)
	}

	hash, _ := row["password"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, engine.UnauthorizedError("Invalid credentials")
	}

	id, ok := toInt64(row["id"])
	if !ok {
		return nil, fmt.Errorf("login %s: unexpected id %v", slug, row["id"])
	}

	token, err := s.issue(id, slug, email)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token: token,
		User:  map[string]any{"id": row["id"], "email": row["email"]},
	}, nil
}

func (s *Service) issue(id int64, slug, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:     id,
		EntitySlug: slug,
		Email:      email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a signed token.
func (s *Service) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, engine.UnauthorizedError("Invalid token")
	}
	return claims, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

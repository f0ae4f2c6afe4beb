package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/dunelab/dune/internal/apperr"
	"github.com/dunelab/dune/internal/config"
	"github.com/dunelab/dune/model"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// UserStore is the slice of the persistence contract auth needs.
type UserStore interface {
	Insert(ctx context.Context, u *model.User) error
	FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error)
}

// Service issues and verifies the opaque bearer tokens that gate
// submission creation and per-user listing.
type Service struct {
	users    UserStore
	secret   []byte
	tokenTTL time.Duration
}

func NewService(users UserStore, cfg *config.AuthConfig) *Service {
	return &Service{
		users:    users,
		secret:   []byte(cfg.JWT_SECRET),
		tokenTTL: time.Duration(cfg.TOKEN_TTL_HOURS) * time.Hour,
	}
}

// Register creates an account and returns a fresh token for it.
func (s *Service) Register(ctx context.Context, input model.UserInput) (*model.User, string, error) {
	if input.Email == "" || input.Username == "" || input.Password == "" {
		return nil, "", apperr.Validationf("email, username and password are required")
	}

	encoded, err := HashPassword(input.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:          id,
		Name:        input.Name,
		Email:       input.Email,
		Password:    encoded,
		Username:    input.Username,
		DataVersion: 1,
		CreatedAt:   now,
		UpdatedAt:   &now,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// SignIn verifies credentials and returns a token. A wrong password
// and an unknown account both come back as ErrAuthorization.
func (s *Service) SignIn(ctx context.Context, req model.LoginRequest) (string, error) {
	user, err := s.users.FindByEmailOrUsername(ctx, req.Email, req.Username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", fmt.Errorf("%w: invalid credentials", apperr.ErrAuthorization)
		}
		return "", err
	}

	ok, err := VerifyPassword(user.Password, req.Password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: invalid credentials", apperr.ErrAuthorization)
	}

	return s.IssueToken(user)
}

// IssueToken mints a signed bearer token carrying the user id.
func (s *Service) IssueToken(user *model.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken validates signature and expiry and returns the owner id.
func (s *Service) VerifyToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid token", apperr.ErrAuthorization)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: invalid token claims", apperr.ErrAuthorization)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid token subject", apperr.ErrAuthorization)
	}
	return id, nil
}

// HashPassword derives an argon2id encoding of the password with a
// random salt, in the standard $argon2id$ serialization.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a password against its stored encoding in
// constant time.
func VerifyPassword(encoded, password string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("malformed password encoding")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("malformed password encoding: %v", err)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("malformed password encoding: %v", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, err
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

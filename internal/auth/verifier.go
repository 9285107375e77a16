package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/DukeRupert/magicsocial/internal/domain"
)

// DefaultAudience is the audience Supabase sets on access tokens for signed-in users.
const DefaultAudience = "authenticated"

// ErrNoToken is returned when the request carries no bearer token.
var ErrNoToken = errors.New("no bearer token")

// Claims are the Supabase access token claims used by this service.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens issued by Supabase.
type Verifier struct {
	secret   []byte
	audience string
	leeway   time.Duration
	now      func() time.Time
}

// NewVerifier creates a verifier for tokens signed with the project's JWT secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		audience: DefaultAudience,
		leeway:   30 * time.Second,
		now:      time.Now,
	}
}

// Verify parses and validates a raw token and returns the identified user.
func (v *Verifier) Verify(tokenString string) (*domain.User, error) {
	const op = "auth.verify"

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, domain.Wrap(err, domain.EUNAUTHORIZED, op, "Invalid or expired access token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return nil, domain.Unauthorized(op, "Access token has no valid subject")
	}

	return &domain.User{
		ID:    id,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}

// VerifyRequest verifies the bearer token in the Authorization header.
// It returns ErrNoToken when the header is missing.
func (v *Verifier) VerifyRequest(r *http.Request) (*domain.User, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, ErrNoToken
	}
	return v.Verify(token)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// SignToken issues a token the verifier accepts. Used by tests and local tooling.
func SignToken(secret string, user domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings{DefaultAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

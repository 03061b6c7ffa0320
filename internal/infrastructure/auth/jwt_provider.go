package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

// ErrInvalidToken is returned for any credential that does not verify
var ErrInvalidToken = errors.New("invalid token")

// Config holds the token verification settings
type Config struct {
	Secret string
	Issuer string
	// RoleClaim is the top-level claim read before public_metadata.role
	RoleClaim string
}

// Claims is the payload written by Mint
type Claims struct {
	jwt.RegisteredClaims
	Role           string                 `json:"role,omitempty"`
	PublicMetadata map[string]interface{} `json:"public_metadata,omitempty"`
}

// JWTProvider verifies HS256 bearer tokens and resolves the caller's role
type JWTProvider struct {
	config  Config
	lookup  port.RoleLookup
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewJWTProvider creates a provider. lookup may be nil.
func NewJWTProvider(config Config, lookup port.RoleLookup, logger *zap.Logger) (*JWTProvider, error) {
	if strings.TrimSpace(config.Secret) == "" {
		return nil, fmt.Errorf("jwt secret not configured")
	}
	if config.RoleClaim == "" {
		config.RoleClaim = "role"
	}
	return &JWTProvider{config: config, lookup: lookup, logger: logger, nowFunc: time.Now}, nil
}

// Authenticate parses the token, then resolves the role from the role
// claim, public_metadata.role, or the stored user, in that order.
// Unknown role strings fall back to client.
func (p *JWTProvider) Authenticate(ctx context.Context, token string) (role.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.nowFunc),
	}
	if p.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.config.Issuer))
	}

	raw := jwt.MapClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(p.config.Secret), nil
	})
	if err != nil || !parsed.Valid {
		p.logger.Debug("Token rejected", zap.Error(err))
		return role.Actor{}, ErrInvalidToken
	}

	subject, _ := raw.GetSubject()
	if subject == "" {
		return role.Actor{}, fmt.Errorf("%w: subject claim required", ErrInvalidToken)
	}

	if v, ok := raw[p.config.RoleClaim]; ok && v != nil {
		return role.Actor{UserID: subject, Role: role.NormalizeValue(v)}, nil
	}
	if md, ok := raw["public_metadata"].(map[string]interface{}); ok {
		if v, ok := md["role"]; ok && v != nil {
			return role.Actor{UserID: subject, Role: role.NormalizeValue(v)}, nil
		}
	}

	if p.lookup != nil {
		r, found, err := p.lookup.RoleOf(ctx, subject)
		if err != nil {
			return role.Actor{}, fmt.Errorf("failed to look up role: %w", err)
		}
		if found {
			return role.Actor{UserID: subject, Role: r}, nil
		}
	}
	return role.Actor{UserID: subject, Role: role.Client}, nil
}

// Mint signs a token for userID. A zero ttl yields a token without expiry.
func (p *JWTProvider) Mint(userID string, r role.Role, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id required")
	}
	now := p.nowFunc()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			Issuer:   p.config.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Role: string(r),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.config.Secret))
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

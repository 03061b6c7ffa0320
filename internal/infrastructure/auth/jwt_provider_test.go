package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

const testSecret = "test-secret"

type mockRoleLookup struct {
	roleOfFunc func(ctx context.Context, userID string) (role.Role, bool, error)
}

func (m *mockRoleLookup) RoleOf(ctx context.Context, userID string) (role.Role, bool, error) {
	return m.roleOfFunc(ctx, userID)
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newProvider(t *testing.T, lookup *mockRoleLookup) *JWTProvider {
	t.Helper()
	var l port.RoleLookup
	if lookup != nil {
		l = lookup
	}
	p, err := NewJWTProvider(Config{Secret: testSecret}, l, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestJWTProvider_RoleResolution(t *testing.T) {
	lookup := &mockRoleLookup{roleOfFunc: func(ctx context.Context, userID string) (role.Role, bool, error) {
		if userID == "stored-dev" {
			return role.Developer, true, nil
		}
		return "", false, nil
	}}
	p := newProvider(t, lookup)

	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   role.Actor
	}{
		{"top-level role", jwt.MapClaims{"sub": "u1", "role": "project-manager"}, role.Actor{UserID: "u1", Role: role.ProjectManager}},
		{"public metadata role", jwt.MapClaims{"sub": "u2", "public_metadata": map[string]interface{}{"role": "ADMIN"}}, role.Actor{UserID: "u2", Role: role.Admin}},
		{"unknown role is client", jwt.MapClaims{"sub": "u3", "role": "superuser"}, role.Actor{UserID: "u3", Role: role.Client}},
		{"stored role fallback", jwt.MapClaims{"sub": "stored-dev"}, role.Actor{UserID: "stored-dev", Role: role.Developer}},
		{"no role anywhere", jwt.MapClaims{"sub": "u4"}, role.Actor{UserID: "u4", Role: role.Client}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Authenticate(context.Background(), sign(t, testSecret, tt.claims))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJWTProvider_Rejects(t *testing.T) {
	p := newProvider(t, nil)
	expired := jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(t, "other", jwt.MapClaims{"sub": "u1"})},
		{"expired", sign(t, testSecret, expired)},
		{"missing subject", sign(t, testSecret, jwt.MapClaims{"role": "admin"})},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Authenticate(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTProvider_LookupError(t *testing.T) {
	p := newProvider(t, &mockRoleLookup{roleOfFunc: func(ctx context.Context, userID string) (role.Role, bool, error) {
		return "", false, errors.New("database is locked")
	}})

	_, err := p.Authenticate(context.Background(), sign(t, testSecret, jwt.MapClaims{"sub": "u1"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestJWTProvider_MintRoundTrip(t *testing.T) {
	p, err := NewJWTProvider(Config{Secret: testSecret, Issuer: "agency"}, nil, zap.NewNop())
	require.NoError(t, err)

	token, err := p.Mint("pm-1", role.ProjectManager, time.Hour)
	require.NoError(t, err)

	actor, err := p.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, role.Actor{UserID: "pm-1", Role: role.ProjectManager}, actor)

	other, err := NewJWTProvider(Config{Secret: testSecret, Issuer: "someone-else"}, nil, zap.NewNop())
	require.NoError(t, err)
	_, err = other.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTProvider(Config{}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("")
	assert.False(t, ok)
}

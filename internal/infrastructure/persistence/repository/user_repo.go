package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/role"
	"github.com/garyjia/agency-ops/internal/infrastructure/persistence/sqlite"
)

// UserRepository implements port.UserRepository and port.RoleLookup
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the user or refreshes its profile and role
func (r *UserRepository) Upsert(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, email, name, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			role = excluded.role
	`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		user.ID, user.Email, user.Name, string(user.Role), user.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert user",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `SELECT id, email, name, role, created_at FROM users WHERE id = ?`

	var user entity.User
	var rawRole string
	err := sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id).
		Scan(&user.ID, &user.Email, &user.Name, &rawRole, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user",
			zap.String("user_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Role = role.Normalize(rawRole)
	return &user, nil
}

// RoleOf implements port.RoleLookup
func (r *UserRepository) RoleOf(ctx context.Context, userID string) (role.Role, bool, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if user == nil {
		return "", false, nil
	}
	return user.Role, true, nil
}

var (
	_ port.UserRepository = (*UserRepository)(nil)
	_ port.RoleLookup     = (*UserRepository)(nil)
)

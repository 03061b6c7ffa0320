package entity

import (
	"time"

	"github.com/garyjia/agency-ops/internal/domain/role"
)

// User mirrors an identity-provider account with its application role
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      role.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

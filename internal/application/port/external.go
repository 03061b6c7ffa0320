package port

import (
	"context"

	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

// IdentityProvider resolves a bearer credential into the current user.
// The returned actor's role is already normalized.
type IdentityProvider interface {
	Authenticate(ctx context.Context, token string) (role.Actor, error)
}

// RoleLookup resolves the stored role of a user when the credential carries none
type RoleLookup interface {
	RoleOf(ctx context.Context, userID string) (role.Role, bool, error)
}

// MessageSender delivers a plain-text chat message to a channel
type MessageSender interface {
	SendText(ctx context.Context, receiveID string, text string) error
}

// InvoiceExporter renders an invoice into a downloadable document
type InvoiceExporter interface {
	Export(ctx context.Context, invoice *entity.Invoice, project *entity.Project) ([]byte, error)
	ContentType() string
	Extension() string
}

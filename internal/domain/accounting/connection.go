package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus of an integration connection
type ConnectionStatus string

const (
	ConnectionStatusActive  ConnectionStatus = "ACTIVE"
	ConnectionStatusRevoked ConnectionStatus = "REVOKED"
)

// IntegrationConnection is a tenant's authorized link to one realm (company)
// in the external bookkeeping system.
type IntegrationConnection struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	RealmID        string
	Status         ConnectionStatus
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsActive returns true if the connection may be used
func (c *IntegrationConnection) IsActive() bool {
	return c.Status == ConnectionStatusActive
}

// ConnectionRepository reads connections and stores refreshed tokens
type ConnectionRepository interface {
	// FindActiveByRealm returns ErrConnectionNotFound when no active
	// connection exists for the realm.
	FindActiveByRealm(ctx context.Context, realmID string) (*IntegrationConnection, error)

	// UpdateTokens stores a refreshed OAuth token pair
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error
}

package accounting

import (
	"context"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
)

// clientCache holds the API clients built during one batch, keyed by
// connection. A client is bound to its connection's realm, so a tenant with
// several realms gets one client per realm. A fresh cache is created for
// every batch so tokens never outlive a run.
type clientCache struct {
	factory accounting.ClientFactory
	clients map[uuid.UUID]accounting.AccountingClient
}

func newClientCache(factory accounting.ClientFactory) *clientCache {
	return &clientCache{
		factory: factory,
		clients: make(map[uuid.UUID]accounting.AccountingClient),
	}
}

// get returns the cached client for conn, building one on first use.
// Construction failures are not cached.
func (c *clientCache) get(ctx context.Context, conn *accounting.IntegrationConnection) (accounting.AccountingClient, error) {
	if client, ok := c.clients[conn.ID]; ok {
		return client, nil
	}
	client, err := c.factory.ForConnection(ctx, conn)
	if err != nil {
		return nil, err
	}
	c.clients[conn.ID] = client
	return client, nil
}

package quickbooks

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sitebook/backend/internal/domain/accounting"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ClientFactory builds realm clients from stored connection tokens
type ClientFactory struct {
	cfg         Config
	oauth       *oauth2.Config
	connections accounting.ConnectionRepository
	baseClient  *http.Client
	logger      *zap.Logger
}

// NewClientFactory creates a factory. Refreshed tokens are written back
// through connections.
func NewClientFactory(cfg Config, connections accounting.ConnectionRepository, logger *zap.Logger) *ClientFactory {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientFactory{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		connections: connections,
		baseClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

// ForConnection returns a client authorized with the connection's tokens
func (f *ClientFactory) ForConnection(ctx context.Context, conn *accounting.IntegrationConnection) (accounting.AccountingClient, error) {
	if conn == nil || conn.RealmID == "" {
		return nil, fmt.Errorf("quickbooks: connection has no realm")
	}

	token := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		TokenType:    "Bearer",
	}
	if conn.TokenExpiresAt != nil {
		token.Expiry = *conn.TokenExpiresAt
	}

	// the token source outlives the caller's request context
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, f.baseClient)
	source := &persistingTokenSource{
		base:       oauth2.ReuseTokenSource(token, f.oauth.TokenSource(tokenCtx, token)),
		conn:       conn,
		lastAccess: conn.AccessToken,
		repo:       f.connections,
		logger:     f.logger,
	}

	httpClient := oauth2.NewClient(tokenCtx, source)
	httpClient.Timeout = f.cfg.Timeout
	return NewClient(f.cfg, conn.RealmID, httpClient), nil
}

// persistingTokenSource stores tokens whenever the access token changes
type persistingTokenSource struct {
	base   oauth2.TokenSource
	conn   *accounting.IntegrationConnection
	repo   accounting.ConnectionRepository
	logger *zap.Logger

	mu         sync.Mutex
	lastAccess string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("quickbooks: token refresh failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.lastAccess || s.repo == nil {
		return tok, nil
	}
	s.lastAccess = tok.AccessToken

	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		e := tok.Expiry.UTC()
		expiry = &e
	}
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = s.conn.RefreshToken
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.UpdateTokens(ctx, s.conn.ID, tok.AccessToken, refresh, expiry); err != nil {
		s.logger.Warn("failed to persist refreshed tokens",
			zap.String("tenant_id", s.conn.TenantID.String()),
			zap.Error(err),
		)
	}
	return tok, nil
}

var _ accounting.ClientFactory = (*ClientFactory)(nil)

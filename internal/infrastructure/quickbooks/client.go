package quickbooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sitebook/backend/internal/domain/accounting"
)

// ErrRequestFailed is returned for non-success responses other than not found
var ErrRequestFailed = errors.New("quickbooks: request failed")

// Client reads entities of one realm from the accounting API
type Client struct {
	cfg        Config
	realmID    string
	httpClient *http.Client
}

// NewClient creates a client for realmID. httpClient must already attach
// credentials, usually one built by oauth2.NewClient.
func NewClient(cfg Config, realmID string, httpClient *http.Client) *Client {
	cfg.applyDefaults()
	return &Client{cfg: cfg, realmID: realmID, httpClient: httpClient}
}

// GetInvoiceByID fetches an invoice snapshot
func (c *Client) GetInvoiceByID(ctx context.Context, id string) (*accounting.InvoiceSnapshot, error) {
	var resp invoiceResponse
	if err := c.get(ctx, "invoice", id, &resp); err != nil {
		return nil, err
	}
	if resp.Invoice == nil {
		return nil, accounting.ErrUpstreamNotFound
	}
	return resp.Invoice.toSnapshot(), nil
}

// GetPaymentByID fetches a payment snapshot
func (c *Client) GetPaymentByID(ctx context.Context, id string) (*accounting.PaymentSnapshot, error) {
	var resp paymentResponse
	if err := c.get(ctx, "payment", id, &resp); err != nil {
		return nil, err
	}
	if resp.Payment == nil {
		return nil, accounting.ErrUpstreamNotFound
	}
	return resp.Payment.toSnapshot(), nil
}

func (c *Client) get(ctx context.Context, entity, id string, out any) error {
	endpoint := fmt.Sprintf("%s/v3/company/%s/%s/%s?minorversion=%s",
		c.cfg.BaseURL,
		url.PathEscape(c.realmID),
		entity,
		url.PathEscape(id),
		url.QueryEscape(c.cfg.MinorVersion),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("quickbooks: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// preserve context errors so callers can classify deadline expiry
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("quickbooks: get %s %s: %w", entity, id, ctxErr)
		}
		return fmt.Errorf("quickbooks: get %s %s: %w", entity, id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("quickbooks: failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return accounting.ErrUpstreamNotFound
	}
	if resp.StatusCode >= 400 {
		var fault faultResponse
		if json.Unmarshal(body, &fault) == nil {
			if fault.notFound() {
				return accounting.ErrUpstreamNotFound
			}
			if msg := fault.message(); msg != "" {
				return fmt.Errorf("%w: HTTP %d: %s", ErrRequestFailed, resp.StatusCode, msg)
			}
		}
		return fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("quickbooks: failed to decode %s: %w", entity, err)
	}
	return nil
}

var _ accounting.AccountingClient = (*Client)(nil)

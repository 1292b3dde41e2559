package accounting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/stretchr/testify/mock"
)

// memEventRepo is an in-memory WebhookEventRepository
type memEventRepo struct {
	mu        sync.Mutex
	events    []*accounting.WebhookEvent
	saveErr   error
	updateErr error
	updates   int
}

func (r *memEventRepo) SaveNew(_ context.Context, events ...*accounting.WebhookEvent) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return 0, r.saveErr
	}
	var inserted int64
	for _, ev := range events {
		if r.findLocked(ev.EventID) != nil {
			continue
		}
		cp := *ev
		r.events = append(r.events, &cp)
		inserted++
	}
	return inserted, nil
}

func (r *memEventRepo) FindPending(_ context.Context, now time.Time, limit int) ([]*accounting.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*accounting.WebhookEvent
	for _, ev := range r.events {
		if ev.Status != accounting.ProcessStatusPending {
			continue
		}
		if ev.NextAttemptAt != nil && ev.NextAttemptAt.After(now) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memEventRepo) Update(_ context.Context, ev *accounting.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateErr != nil {
		return r.updateErr
	}
	if stored := r.findLocked(ev.EventID); stored != nil {
		*stored = *ev
	}
	return nil
}

func (r *memEventRepo) FindAll(_ context.Context, filter accounting.WebhookEventFilter) ([]*accounting.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*accounting.WebhookEvent
	for _, ev := range r.events {
		if filter.Status == "" || ev.Status == filter.Status {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *memEventRepo) CountByStatus(_ context.Context) (map[accounting.ProcessStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[accounting.ProcessStatus]int64)
	for _, ev := range r.events {
		counts[ev.Status]++
	}
	return counts, nil
}

func (r *memEventRepo) get(eventID string) *accounting.WebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(eventID)
}

func (r *memEventRepo) findLocked(eventID string) *accounting.WebhookEvent {
	for _, ev := range r.events {
		if ev.EventID == eventID {
			return ev
		}
	}
	return nil
}

// memSyncRecordRepo is an in-memory SyncRecordRepository keyed like the
// unique index on (tenant, entity type, local entity).
type memSyncRecordRepo struct {
	records   map[string]*accounting.SyncRecord
	upsertErr error
}

func newMemSyncRecordRepo() *memSyncRecordRepo {
	return &memSyncRecordRepo{records: make(map[string]*accounting.SyncRecord)}
}

func syncKey(tenantID uuid.UUID, entityType accounting.EntityType, localID uuid.UUID) string {
	return tenantID.String() + "|" + string(entityType) + "|" + localID.String()
}

func (r *memSyncRecordRepo) Upsert(_ context.Context, rec *accounting.SyncRecord) error {
	if r.upsertErr != nil {
		return r.upsertErr
	}
	key := syncKey(rec.TenantID, rec.EntityType, rec.LocalEntityID)
	if existing, ok := r.records[key]; ok {
		existing.ExternalID = rec.ExternalID
		if rec.ExternalSyncToken != "" {
			existing.ExternalSyncToken = rec.ExternalSyncToken
		}
		existing.LastSyncedAt = rec.LastSyncedAt
		existing.Status = rec.Status
		existing.ErrorMessage = rec.ErrorMessage
		existing.UpdatedAt = rec.UpdatedAt
		return nil
	}
	cp := *rec
	r.records[key] = &cp
	return nil
}

func (r *memSyncRecordRepo) FindByExternalID(_ context.Context, tenantID uuid.UUID, entityType accounting.EntityType, externalID string) (*accounting.SyncRecord, error) {
	for _, rec := range r.records {
		if rec.TenantID == tenantID && rec.EntityType == entityType && rec.ExternalID == externalID {
			return rec, nil
		}
	}
	return nil, accounting.ErrSyncRecordNotFound
}

func (r *memSyncRecordRepo) FindByLocalID(_ context.Context, tenantID uuid.UUID, entityType accounting.EntityType, localID uuid.UUID) (*accounting.SyncRecord, error) {
	if rec, ok := r.records[syncKey(tenantID, entityType, localID)]; ok {
		return rec, nil
	}
	return nil, accounting.ErrSyncRecordNotFound
}

// memInvoiceRepo is an in-memory InvoiceRepository
type memInvoiceRepo struct {
	invoices map[uuid.UUID]*accounting.Invoice
	patchErr error
}

func newMemInvoiceRepo(invoices ...*accounting.Invoice) *memInvoiceRepo {
	r := &memInvoiceRepo{invoices: make(map[uuid.UUID]*accounting.Invoice)}
	for _, inv := range invoices {
		r.invoices[inv.ID] = inv
	}
	return r
}

func (r *memInvoiceRepo) FindIDByExternalID(_ context.Context, tenantID uuid.UUID, externalID string) (uuid.UUID, error) {
	for _, inv := range r.invoices {
		if inv.TenantID == tenantID && inv.ExternalID != "" && inv.ExternalID == externalID {
			return inv.ID, nil
		}
	}
	return uuid.Nil, accounting.ErrInvoiceNotFound
}

func (r *memInvoiceRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*accounting.Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, accounting.ErrInvoiceNotFound
	}
	return inv, nil
}

func (r *memInvoiceRepo) ApplyPatch(_ context.Context, tenantID, id uuid.UUID, p accounting.InvoicePatch) error {
	if r.patchErr != nil {
		return r.patchErr
	}
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return accounting.ErrInvoiceNotFound
	}
	inv.Status = p.Status
	if p.TotalCents != nil {
		inv.TotalCents = *p.TotalCents
	}
	if p.BalanceDueCents != nil {
		inv.BalanceDueCents = *p.BalanceDueCents
	}
	if p.IssueDate != nil {
		inv.IssueDate = p.IssueDate
	}
	if p.DueDate != nil {
		inv.DueDate = p.DueDate
	}
	if p.DocNumber != nil {
		inv.DocNumber = *p.DocNumber
	}
	inv.SyncStatus = p.SyncStatus
	syncedAt := p.SyncedAt
	inv.LastSyncedAt = &syncedAt
	return nil
}

// memPaymentRepo is an in-memory PaymentRepository
type memPaymentRepo struct {
	payments map[uuid.UUID]*accounting.Payment
}

func newMemPaymentRepo(payments ...*accounting.Payment) *memPaymentRepo {
	r := &memPaymentRepo{payments: make(map[uuid.UUID]*accounting.Payment)}
	for _, p := range payments {
		r.payments[p.ID] = p
	}
	return r
}

func (r *memPaymentRepo) FindIDByExternalID(_ context.Context, tenantID uuid.UUID, externalID string) (uuid.UUID, error) {
	for _, p := range r.payments {
		if p.TenantID == tenantID && p.ExternalID != "" && p.ExternalID == externalID {
			return p.ID, nil
		}
	}
	return uuid.Nil, accounting.ErrPaymentNotFound
}

func (r *memPaymentRepo) FindByID(_ context.Context, tenantID, id uuid.UUID) (*accounting.Payment, error) {
	p, ok := r.payments[id]
	if !ok || p.TenantID != tenantID {
		return nil, accounting.ErrPaymentNotFound
	}
	return p, nil
}

// memConnectionRepo is an in-memory ConnectionRepository
type memConnectionRepo struct {
	connections []*accounting.IntegrationConnection
	findErr     error
}

func (r *memConnectionRepo) FindActiveByRealm(_ context.Context, realmID string) (*accounting.IntegrationConnection, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, c := range r.connections {
		if c.RealmID == realmID && c.IsActive() {
			return c, nil
		}
	}
	return nil, accounting.ErrConnectionNotFound
}

func (r *memConnectionRepo) UpdateTokens(context.Context, uuid.UUID, string, string, *time.Time) error {
	return nil
}

// MockAccountingClient is a mock implementation of accounting.AccountingClient
type MockAccountingClient struct {
	mock.Mock
}

func (m *MockAccountingClient) GetInvoiceByID(ctx context.Context, id string) (*accounting.InvoiceSnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.InvoiceSnapshot), args.Error(1)
}

func (m *MockAccountingClient) GetPaymentByID(ctx context.Context, id string) (*accounting.PaymentSnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accounting.PaymentSnapshot), args.Error(1)
}

// MockClientFactory is a mock implementation of accounting.ClientFactory
type MockClientFactory struct {
	mock.Mock
}

func (m *MockClientFactory) ForConnection(ctx context.Context, conn *accounting.IntegrationConnection) (accounting.AccountingClient, error) {
	args := m.Called(ctx, conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(accounting.AccountingClient), args.Error(1)
}

// blockingClient waits for its context to expire on every call
type blockingClient struct{}

func (blockingClient) GetInvoiceByID(ctx context.Context, _ string) (*accounting.InvoiceSnapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingClient) GetPaymentByID(ctx context.Context, _ string) (*accounting.PaymentSnapshot, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// reconcilerFunc adapts a function to EntityReconciler
type reconcilerFunc func(ctx context.Context, t ReconcileTarget) accounting.Outcome

func (f reconcilerFunc) Reconcile(ctx context.Context, t ReconcileTarget) accounting.Outcome {
	return f(ctx, t)
}

// memRunLock is a single-process RunLock for worker tests
type memRunLock struct {
	mu   sync.Mutex
	held map[string]string
}

func (l *memRunLock) TryAcquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]string)
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, true, nil
}

func (l *memRunLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *memRunLock) Close() error { return nil }

package accounting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type paymentFixture struct {
	*invoiceFixture
	second     *accounting.Invoice
	payment    *accounting.Payment
	reconciler *PaymentReconciler
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	f := newInvoiceFixture(t)
	second := &accounting.Invoice{ID: uuid.New(), TenantID: f.tenantID, ExternalID: "43", Status: accounting.InvoiceStatusSent}
	f.invoices.invoices[second.ID] = second

	invoiceID := f.invoice.ID
	payment := &accounting.Payment{ID: uuid.New(), TenantID: f.tenantID, ExternalID: "77", InvoiceID: &invoiceID}
	f.payments.payments[payment.ID] = payment

	pf := &paymentFixture{invoiceFixture: f, second: second, payment: payment}
	pf.reconciler = NewPaymentReconciler(PaymentReconcilerConfig{
		Resolver:          f.resolver,
		InvoiceReconciler: f.reconciler,
		Payments:          f.payments,
		Invoices:          f.invoices,
		SyncRecords:       f.syncRecords,
		FetchTimeout:      50 * time.Millisecond,
		Clock:             func() time.Time { return testNow },
	})
	return pf
}

func TestPaymentReconciler_FansOutToLinkedInvoices(t *testing.T) {
	f := newPaymentFixture(t)
	f.client.On("GetPaymentByID", mock.Anything, "77").Return(&accounting.PaymentSnapshot{
		ID: "77", SyncToken: "2",
		Lines: []accounting.PaymentLine{
			{LinkedTxns: []accounting.LinkedTxn{{TxnID: "42", TxnType: "Invoice"}}},
			{LinkedTxns: []accounting.LinkedTxn{{TxnID: "43", TxnType: "Invoice"}, {TxnID: "42", TxnType: "Invoice"}}},
		},
	}, nil)
	f.client.On("GetInvoiceByID", mock.Anything, "42").Return(&accounting.InvoiceSnapshot{ID: "42", TotalAmt: "100", Balance: "0"}, nil).Once()
	f.client.On("GetInvoiceByID", mock.Anything, "43").Return(&accounting.InvoiceSnapshot{ID: "43", TotalAmt: "100", Balance: "40"}, nil).Once()

	outcome := f.reconciler.Reconcile(context.Background(), f.target("77", accounting.OperationCreate))
	assert.Equal(t, accounting.ProcessStatusReconciled, outcome.Status)
	assert.Equal(t, accounting.InvoiceStatusPaid, f.invoice.Status)
	assert.Equal(t, accounting.InvoiceStatusPartial, f.second.Status)

	rec, err := f.syncRecords.FindByLocalID(context.Background(), f.tenantID, accounting.EntityTypePayment, f.payment.ID)
	require.NoError(t, err)
	assert.Equal(t, "77", rec.ExternalID)
	assert.Equal(t, "2", rec.ExternalSyncToken)
	f.client.AssertExpectations(t)
}

func TestPaymentReconciler_DeleteUsesLocalLinkage(t *testing.T) {
	f := newPaymentFixture(t)
	f.client.On("GetInvoiceByID", mock.Anything, "42").Return(&accounting.InvoiceSnapshot{ID: "42", TotalAmt: "100", Balance: "100"}, nil).Once()

	outcome := f.reconciler.Reconcile(context.Background(), f.target("77", accounting.OperationDelete))
	assert.Equal(t, accounting.ProcessStatusReconciled, outcome.Status)
	assert.Equal(t, int64(10000), f.invoice.BalanceDueCents)
	assert.Equal(t, accounting.InvoiceStatusSent, f.invoice.Status)
	f.client.AssertNotCalled(t, "GetPaymentByID", mock.Anything, mock.Anything)
	f.client.AssertExpectations(t)
}

func TestPaymentReconciler_LinkageThroughInvoiceSyncRecord(t *testing.T) {
	f := newPaymentFixture(t)
	f.invoice.ExternalID = ""
	require.NoError(t, f.syncRecords.Upsert(context.Background(),
		accounting.NewSyncedRecord(f.tenantID, accounting.EntityTypeInvoice, f.invoice.ID, "500", "", testNow)))
	f.client.On("GetPaymentByID", mock.Anything, "77").Return(nil, accounting.ErrUpstreamNotFound)
	f.client.On("GetInvoiceByID", mock.Anything, "500").Return(&accounting.InvoiceSnapshot{ID: "500", TotalAmt: "5", Balance: "0"}, nil)

	outcome := f.reconciler.Reconcile(context.Background(), f.target("77", accounting.OperationUpdate))
	assert.Equal(t, accounting.ProcessStatusReconciled, outcome.Status)
	assert.Equal(t, accounting.InvoiceStatusPaid, f.invoice.Status)
}

func TestPaymentReconciler_NothingToReconcile(t *testing.T) {
	t.Run("unknown payment without links", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.client.On("GetPaymentByID", mock.Anything, "88").Return(&accounting.PaymentSnapshot{ID: "88"}, nil)

		outcome := f.reconciler.Reconcile(context.Background(), f.target("88", accounting.OperationUpdate))
		assert.Equal(t, accounting.ProcessStatusIgnored, outcome.Status)
		assert.Equal(t, "no local invoice to reconcile", outcome.Message)
	})

	t.Run("linked invoices are not mapped locally", func(t *testing.T) {
		f := newPaymentFixture(t)
		f.client.On("GetPaymentByID", mock.Anything, "77").Return(&accounting.PaymentSnapshot{
			ID:    "77",
			Lines: []accounting.PaymentLine{{LinkedTxns: []accounting.LinkedTxn{{TxnID: "999", TxnType: "Invoice"}}}},
		}, nil)

		outcome := f.reconciler.Reconcile(context.Background(), f.target("77", accounting.OperationUpdate))
		assert.Equal(t, accounting.ProcessStatusIgnored, outcome.Status)

		// The payment itself is still marked synced.
		_, err := f.syncRecords.FindByLocalID(context.Background(), f.tenantID, accounting.EntityTypePayment, f.payment.ID)
		assert.NoError(t, err)
	})
}

func TestPaymentReconciler_FetchFailure(t *testing.T) {
	f := newPaymentFixture(t)
	f.client.On("GetPaymentByID", mock.Anything, "77").Return(nil, errors.New("401 unauthorized"))

	outcome := f.reconciler.Reconcile(context.Background(), f.target("77", accounting.OperationUpdate))
	assert.Equal(t, accounting.ProcessStatusError, outcome.Status)
	assert.Contains(t, outcome.Message, "401 unauthorized")
}

func TestPaymentReconciler_SyncRecordFailureIsNotFatal(t *testing.T) {
	f := newPaymentFixture(t)
	f.client.On("GetInvoiceByID", mock.Anything, "42").Return(&accounting.InvoiceSnapshot{ID: "42", TotalAmt: "1", Balance: "0"}, nil)

	// Invoice writes succeed, but every sync record upsert fails, so the
	// invoice outcome is ignored and the payment falls back to ignored too.
	f.syncRecords.upsertErr = errors.New("disk full")
	outcome := f.reconciler.Reconcile(context.Background(), f.target("77", accounting.OperationDelete))
	assert.Equal(t, accounting.ProcessStatusIgnored, outcome.Status)
	assert.Equal(t, accounting.InvoiceStatusPaid, f.invoice.Status)
}

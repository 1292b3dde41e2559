package accounting

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotification_DedupID(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	n := Notification{RealmID: "r1", EntityName: "Invoice", EntityID: "42", Operation: OperationUpdate, LastUpdated: &ts}

	t.Run("provider id wins", func(t *testing.T) {
		withID := n
		withID.EventID = "evt-1"
		assert.Equal(t, "evt-1", withID.DedupID("hash"))
	})

	t.Run("content hash is stable", func(t *testing.T) {
		assert.Len(t, n.DedupID("hash"), 64)
		assert.Equal(t, n.DedupID("hash"), n.DedupID("other-hash"))
	})

	t.Run("content hash changes with last updated", func(t *testing.T) {
		later := ts.Add(time.Second)
		other := n
		other.LastUpdated = &later
		assert.NotEqual(t, n.DedupID("hash"), other.DedupID("hash"))
	})

	t.Run("raw stamp is hashed even when unparsed", func(t *testing.T) {
		a := Notification{RealmID: "r1", EntityName: "Invoice", EntityID: "42", Operation: OperationUpdate, LastUpdatedRaw: "2015-10-05T14:42:19-0700"}
		b := a
		b.LastUpdatedRaw = "2015-10-06T09:01:00-0700"
		assert.NotEqual(t, a.DedupID("hash"), b.DedupID("hash"))
	})

	t.Run("payload hash stands in for a missing stamp", func(t *testing.T) {
		bare := Notification{RealmID: "r1", EntityName: "Invoice", EntityID: "42", Operation: OperationUpdate}
		assert.Equal(t, bare.DedupID("h1"), bare.DedupID("h1"))
		assert.NotEqual(t, bare.DedupID("h1"), bare.DedupID("h2"))
	})
}

func TestWebhookEvent_RescheduleBackoffIsCapped(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("large attempt counts do not overflow", func(t *testing.T) {
		ev := &WebhookEvent{Status: ProcessStatusPending, Attempts: 99}
		require.True(t, ev.Reschedule("db down", 1000, time.Minute, now))
		assert.Equal(t, now.Add(MaxRetryDelay), *ev.NextAttemptAt)
	})

	t.Run("doubling stops at the cap", func(t *testing.T) {
		assert.Equal(t, 16*time.Hour, retryDelay(time.Hour, 5))
		assert.Equal(t, MaxRetryDelay, retryDelay(time.Hour, 6))
		assert.Equal(t, MaxRetryDelay, retryDelay(48*time.Hour, 1))
	})
}

func TestWebhookEvent_Apply(t *testing.T) {
	ev := NewWebhookEvent(Notification{RealmID: "r", EntityName: "Invoice", EntityID: "1"}, "hash", time.Now())
	assert.Equal(t, ProcessStatusPending, ev.Status)
	assert.Equal(t, EntityKindInvoice, ev.Kind())

	at := time.Now()
	ev.Apply(Ignored("no local invoice mapping"), at)
	assert.Equal(t, ProcessStatusIgnored, ev.Status)
	assert.Equal(t, "no local invoice mapping", ev.ProcessError)
	assert.Equal(t, &at, ev.ProcessedAt)
	assert.True(t, ev.Status.IsTerminal())
}

func TestWebhookEvent_Reschedule(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := &WebhookEvent{Status: ProcessStatusPending}

	assert.True(t, ev.Reschedule("db down", 3, time.Minute, now))
	assert.Equal(t, ProcessStatusPending, ev.Status)
	assert.Equal(t, now.Add(time.Minute), *ev.NextAttemptAt)

	assert.True(t, ev.Reschedule("db down", 3, time.Minute, now))
	assert.Equal(t, now.Add(2*time.Minute), *ev.NextAttemptAt)

	assert.False(t, ev.Reschedule("db down", 3, time.Minute, now))
	assert.Equal(t, ProcessStatusError, ev.Status)
	assert.Equal(t, 3, ev.Attempts)
	assert.Nil(t, ev.NextAttemptAt)
	assert.NotNil(t, ev.ProcessedAt)
}

func TestOutcome_IsPersistenceFailure(t *testing.T) {
	pe := NewPersistenceError("update invoice", errors.New("connection reset"))
	o := IgnoredPersistence(pe)
	assert.Equal(t, ProcessStatusIgnored, o.Status)
	assert.Equal(t, "connection reset", o.Message)
	assert.True(t, o.IsPersistenceFailure())

	assert.False(t, Ignored("not found upstream").IsPersistenceFailure())
	assert.True(t, Failed(pe).IsPersistenceFailure())
}

func TestParseEntityKind(t *testing.T) {
	assert.Equal(t, EntityKindInvoice, ParseEntityKind("Invoice"))
	assert.Equal(t, EntityKindInvoice, ParseEntityKind("INVOICE"))
	assert.Equal(t, EntityKindPayment, ParseEntityKind(" payment "))
	assert.Equal(t, EntityKindUnsupported, ParseEntityKind("Customer"))
	assert.Equal(t, EntityTypePayment, EntityKindPayment.EntityType())
	assert.Equal(t, OperationDelete, ParseOperation("Delete"))
}

func TestPaymentSnapshot_LinkedInvoiceIDs(t *testing.T) {
	snap := &PaymentSnapshot{Lines: []PaymentLine{
		{LinkedTxns: []LinkedTxn{{TxnID: "10", TxnType: "Invoice"}, {TxnID: "7", TxnType: "CreditMemo"}}},
		{LinkedTxns: []LinkedTxn{{TxnID: "11", TxnType: "invoice"}, {TxnID: "10", TxnType: "Invoice"}}},
		{LinkedTxns: []LinkedTxn{{TxnID: "", TxnType: "Invoice"}}},
	}}
	assert.Equal(t, []string{"10", "11"}, snap.LinkedInvoiceIDs())
	assert.Empty(t, (&PaymentSnapshot{}).LinkedInvoiceIDs())
}

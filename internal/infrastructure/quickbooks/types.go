package quickbooks

import (
	"encoding/json"

	"github.com/sitebook/backend/internal/domain/accounting"
)

// invoiceResponse is the body of GET /v3/company/{realm}/invoice/{id}
type invoiceResponse struct {
	Invoice *qbInvoice `json:"Invoice"`
}

type qbInvoice struct {
	ID        string      `json:"Id"`
	SyncToken string      `json:"SyncToken"`
	DocNumber string      `json:"DocNumber"`
	TxnDate   string      `json:"TxnDate"`
	DueDate   string      `json:"DueDate"`
	TotalAmt  json.Number `json:"TotalAmt"`
	Balance   json.Number `json:"Balance"`
}

func (i *qbInvoice) toSnapshot() *accounting.InvoiceSnapshot {
	return &accounting.InvoiceSnapshot{
		ID:        i.ID,
		DocNumber: i.DocNumber,
		SyncToken: i.SyncToken,
		TotalAmt:  i.TotalAmt.String(),
		Balance:   i.Balance.String(),
		TxnDate:   i.TxnDate,
		DueDate:   i.DueDate,
	}
}

// paymentResponse is the body of GET /v3/company/{realm}/payment/{id}
type paymentResponse struct {
	Payment *qbPayment `json:"Payment"`
}

type qbPayment struct {
	ID        string          `json:"Id"`
	SyncToken string          `json:"SyncToken"`
	TotalAmt  json.Number     `json:"TotalAmt"`
	Line      []qbPaymentLine `json:"Line"`
}

type qbPaymentLine struct {
	Amount    json.Number   `json:"Amount"`
	LinkedTxn []qbLinkedTxn `json:"LinkedTxn"`
}

type qbLinkedTxn struct {
	TxnID   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

func (p *qbPayment) toSnapshot() *accounting.PaymentSnapshot {
	snap := &accounting.PaymentSnapshot{
		ID:        p.ID,
		SyncToken: p.SyncToken,
		TotalAmt:  p.TotalAmt.String(),
		Lines:     make([]accounting.PaymentLine, 0, len(p.Line)),
	}
	for _, line := range p.Line {
		out := accounting.PaymentLine{Amount: line.Amount.String()}
		for _, txn := range line.LinkedTxn {
			out.LinkedTxns = append(out.LinkedTxns, accounting.LinkedTxn{TxnID: txn.TxnID, TxnType: txn.TxnType})
		}
		snap.Lines = append(snap.Lines, out)
	}
	return snap
}

// faultResponse is returned with 4xx statuses
type faultResponse struct {
	Fault struct {
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
		Type string `json:"type"`
	} `json:"Fault"`
}

// objectNotFoundCode is the fault code for a missing or deleted object
const objectNotFoundCode = "610"

func (f *faultResponse) notFound() bool {
	for _, e := range f.Fault.Error {
		if e.Code == objectNotFoundCode {
			return true
		}
	}
	return false
}

func (f *faultResponse) message() string {
	if len(f.Fault.Error) == 0 {
		return f.Fault.Type
	}
	e := f.Fault.Error[0]
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

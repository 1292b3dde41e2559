package accounting

import "strings"

// EntityKind is the closed set of external entity kinds the worker can
// reconcile. Anything else parses to EntityKindUnsupported.
type EntityKind int

const (
	EntityKindUnsupported EntityKind = iota
	EntityKindInvoice
	EntityKindPayment
)

// ParseEntityKind maps an upstream entity name to a kind, ignoring case.
func ParseEntityKind(name string) EntityKind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "invoice":
		return EntityKindInvoice
	case "payment":
		return EntityKindPayment
	default:
		return EntityKindUnsupported
	}
}

// String returns the upstream spelling of the kind
func (k EntityKind) String() string {
	switch k {
	case EntityKindInvoice:
		return "Invoice"
	case EntityKindPayment:
		return "Payment"
	default:
		return "Unsupported"
	}
}

// EntityType returns the sync record entity type for the kind.
func (k EntityKind) EntityType() EntityType {
	switch k {
	case EntityKindInvoice:
		return EntityTypeInvoice
	case EntityKindPayment:
		return EntityTypePayment
	default:
		return ""
	}
}

// Operation is the change an upstream notification reports. Values are
// stored lowercased; unknown operations are kept as received.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ParseOperation normalizes an upstream operation name.
func ParseOperation(raw string) Operation {
	return Operation(strings.ToLower(strings.TrimSpace(raw)))
}

// IsDelete reports whether the entity was removed upstream
func (o Operation) IsDelete() bool {
	return o == OperationDelete
}

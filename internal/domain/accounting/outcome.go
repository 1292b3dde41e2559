package accounting

import "errors"

// Outcome is the result of reconciling one event.
type Outcome struct {
	Status  ProcessStatus
	Message string
	// Cause is the underlying error for ignored or error outcomes, if any.
	Cause error
}

// Reconciled returns a successful outcome
func Reconciled() Outcome {
	return Outcome{Status: ProcessStatusReconciled}
}

// Ignored returns an outcome for an event that needs no local change
func Ignored(reason string) Outcome {
	return Outcome{Status: ProcessStatusIgnored, Message: reason}
}

// Failed returns an error outcome carrying err's message
func Failed(err error) Outcome {
	return Outcome{Status: ProcessStatusError, Message: err.Error(), Cause: err}
}

// IgnoredPersistence returns the outcome for a local write failure. The
// event is ignored; the cause is kept so a caller may choose to retry.
func IgnoredPersistence(err *PersistenceError) Outcome {
	return Outcome{Status: ProcessStatusIgnored, Message: err.Err.Error(), Cause: err}
}

// IsPersistenceFailure reports whether the outcome came from a PersistenceError
func (o Outcome) IsPersistenceFailure() bool {
	var pe *PersistenceError
	return errors.As(o.Cause, &pe)
}

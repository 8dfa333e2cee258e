package client

import "fmt"

// PreconditionError reports an intent rejected before any remote call:
// a mutation with no table selected, a quantity change for an absent
// line, or completing an empty order. The store is untouched.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s", e.Reason)
}

var (
	errNoTableSelected = &PreconditionError{Reason: "no table selected"}
	errEmptyOrder      = &PreconditionError{Reason: "order is empty"}
)

// StaleSelectionError reports that the detail fetch for the currently
// selected table failed. The selection has already been cleared: detail
// is never shown for a table that may no longer exist.
type StaleSelectionError struct {
	TableID string
	Err     error
}

func (e *StaleSelectionError) Error() string {
	return fmt.Sprintf("selection %s is stale: %v", e.TableID, e.Err)
}

func (e *StaleSelectionError) Unwrap() error { return e.Err }

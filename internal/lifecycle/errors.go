// errors.go defines the error taxonomy shared by the lifecycle manager, the
// master registry, and the partition store. Handlers map these kinds onto
// HTTP statuses; everything else wraps them with %w.
package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateName rejects a create or rename whose name is already
	// registered. No state is mutated when this is returned.
	ErrDuplicateName = errors.New("tenant name already registered")

	// ErrNotFound means the referenced tenant does not exist.
	ErrNotFound = errors.New("tenant not found")

	// ErrPartitionExists is returned by the partition store when the target
	// partition id is already in use.
	ErrPartitionExists = errors.New("partition already exists")

	// ErrPartitionNotFound is returned by the partition store when the
	// partition id is absent.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrUnauthenticated means the caller's identity could not be established.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the caller is authenticated but does not own the
	// target tenant.
	ErrForbidden = errors.New("forbidden")

	// ErrStoreUnavailable marks a transient backing-store failure. Safe for
	// the caller to retry: it is only returned when no step has committed, or
	// after compensation restored the pre-operation state.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInconsistentState marks a failed compensation: the registry and the
	// partition store are known to disagree. Never retried automatically —
	// reconciliation must repair it.
	ErrInconsistentState = errors.New("inconsistent registry/partition state")
)

// InconsistencyError carries enough context (tenant, operation, step) for an
// operator to drive repair. It matches ErrInconsistentState under errors.Is
// and exposes the underlying cause through the unwrap chain.
type InconsistencyError struct {
	Operation string
	Step      string
	TenantID  string
	Name      string
	Err       error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent state after %s (step %s, tenant %s %q): %v",
		e.Operation, e.Step, e.TenantID, e.Name, e.Err)
}

// Unwrap returns both the taxonomy sentinel and the cause so errors.Is works
// against either.
func (e *InconsistencyError) Unwrap() []error {
	return []error{ErrInconsistentState, e.Err}
}

// unavailable classifies an unexpected store failure as transient and
// retryable, preserving the cause in the chain.
func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

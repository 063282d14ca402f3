package gate

import (
	"errors"
	"fmt"

	"github.com/xraph/gate/catalog"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("gate: not found")
	ErrAlreadyExists = errors.New("gate: already exists")
	ErrInvalidInput  = errors.New("gate: invalid input")

	// Catalog errors. ErrPlanNotFound is the catalog package's
	// sentinel re-exported for callers that only import gate.
	ErrPlanNotFound   = catalog.ErrPlanNotFound
	ErrUnknownFeature = errors.New("gate: unknown feature")
	ErrCatalogInvalid = errors.New("gate: invalid plan catalog")

	// Subscription errors
	ErrSubscriptionNotFound = errors.New("gate: subscription not found")
	ErrSubscriptionExists   = errors.New("gate: subscription already exists")
	ErrNoActiveSubscription = errors.New("gate: no active subscription")

	// Usage errors
	ErrUsageBufferFull = errors.New("gate: usage buffer full")
	ErrInvalidWeight   = errors.New("gate: invalid usage weight")
	ErrDuplicateEvent  = errors.New("gate: duplicate usage event")

	// Store errors
	ErrStoreNotReady    = errors.New("gate: store not ready")
	ErrStoreClosed      = errors.New("gate: store is closed")
	ErrStoreUnavailable = errors.New("gate: store unavailable")
	ErrMigrationFailed  = errors.New("gate: migration failed")

	// Engine errors
	ErrEngineStopped = errors.New("gate: engine stopped")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("gate: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrNoActiveSubscription)
}

// IsRetryable returns true if the error is temporary and the operation
// can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUsageBufferFull) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrStoreUnavailable)
}

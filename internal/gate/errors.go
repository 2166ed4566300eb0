package gate

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnauthenticated is returned when no caller identity was provided. It is
// surfaced before the cache or rate limit is consulted.
var ErrUnauthenticated = errors.New("caller not authenticated")

// ErrSearchNotSaved marks a fresh lookup that completed but whose record
// could not be persisted, either because the store write failed or because
// the weekly window filled while the estimator call was in flight. The
// accompanying Result still carries the prices; the weekly quota was not
// consumed.
var ErrSearchNotSaved = errors.New("price lookup succeeded but was not saved")

// RateLimitedError rejects a request whose puzzle already has the maximum
// number of searches inside the rolling window. Retrying before
// NextAvailable will fail again.
type RateLimitedError struct {
	WeekCount     int
	Limit         int
	NextAvailable time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("weekly search limit reached (%d/%d), next available %s",
		e.WeekCount, e.Limit, e.NextAvailable.Format(time.RFC3339))
}

// ContractViolationError means the estimator responded but with unusable
// data: an empty price list, missing fields, or values outside the contract.
// Distinct from UnavailableError because it signals format drift upstream
// rather than a transient outage.
type ContractViolationError struct {
	Reason string
}

func (e *ContractViolationError) Error() string {
	return "estimator contract violation: " + e.Reason
}

// UnavailableError wraps a transient estimator failure (network, timeout,
// upstream 5xx). Safe to retry later; the weekly quota is unaffected.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return "estimator unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

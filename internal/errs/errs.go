// Package errs defines the failure taxonomy shared by the domain packages.
//
// Domain code wraps these sentinels with fmt.Errorf("...: %w", ...) and callers
// match them with errors.Is. The RPC layer translates them into Connect codes.
package errs

import "errors"

var (
	// ErrForbidden means the caller lacks the role required for the action.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateMembership means the (group, account) membership already exists.
	ErrDuplicateMembership = errors.New("membership already exists")

	// ErrAdminCapExceeded means a promotion would exceed the group's admin cap.
	ErrAdminCapExceeded = errors.New("admin cap exceeded")

	// ErrNotFound means a referenced group, account or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable means the backing store failed. It is never retried
	// by the domain packages.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidArgument means the request itself is malformed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientFunds means a strict debit found the balance too low.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyExists means a uniquely named resource is taken.
	ErrAlreadyExists = errors.New("already exists")
)

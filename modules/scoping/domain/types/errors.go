package types

import "errors"

// Workflow errors carry stable codes so the transport layer can map them
// without string matching on prose. All of these are recoverable and
// user-facing; none should unwind past the gateway.
var (
	ErrItemLocked          = errors.New("SCOPING_ITEM_LOCKED")
	ErrVersionClosed       = errors.New("SCOPING_VERSION_CLOSED")
	ErrVersionNotSubmitted = errors.New("SCOPING_VERSION_NOT_SUBMITTED")
	ErrIncompleteDecisions = errors.New("SCOPING_DECISIONS_INCOMPLETE")
	ErrOpenVersionExists   = errors.New("SCOPING_OPEN_VERSION_EXISTS")
	ErrVersionNotRevisable = errors.New("SCOPING_VERSION_NOT_REVISABLE")
	ErrTransitionConflict  = errors.New("SCOPING_TRANSITION_CONFLICT")
	ErrVersionNotFound     = errors.New("SCOPING_VERSION_NOT_FOUND")
	ErrItemNotFound        = errors.New("SCOPING_ITEM_NOT_FOUND")
	ErrScopeNotFound       = errors.New("SCOPING_SCOPE_NOT_FOUND")
	ErrItemsRequired       = errors.New("SCOPING_ITEMS_REQUIRED")
)

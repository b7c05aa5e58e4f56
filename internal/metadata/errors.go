package metadata

import "errors"

// Service errors.
var (
	ErrDuplicateProvider    = errors.New("provider already registered for class")
	ErrNoProviderRegistered = errors.New("no provider registered for class")
	ErrItemMismatch         = errors.New("provider returned an item for a different identifier")
	ErrNilProvider          = errors.New("provider is nil")
)

package fireplace

import "errors"

// Domain-specific errors for fireplace property handling.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnknownProperty indicates a property name outside the fixed set.
	ErrUnknownProperty = errors.New("fireplace: unknown property")

	// ErrMalformedValue indicates a value that does not match the
	// property's wire grammar.
	ErrMalformedValue = errors.New("fireplace: malformed value")

	// ErrValueOutOfRange indicates a parsed value outside the property's
	// legal domain (e.g. a lamp level above 10).
	ErrValueOutOfRange = errors.New("fireplace: value out of range")

	// ErrNotSettable indicates an attempt to build a SET command for a
	// receive-only property.
	ErrNotSettable = errors.New("fireplace: property is not settable")

	// ErrWrongKind indicates a value whose variant does not match the
	// property it is being applied to.
	ErrWrongKind = errors.New("fireplace: value kind does not match property")
)

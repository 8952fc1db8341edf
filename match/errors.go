package match

import "errors"

// Sentinel errors for query compilation.
var (
	// ErrInvalidQuery reports a malformed query, such as a logical operator
	// whose operand is not a mapping.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnscopedComparison reports a comparison operator used without an
	// enclosing field key, e.g. {gt: 10} at the top level.
	ErrUnscopedComparison = errors.New("comparison operator without field scope")
)

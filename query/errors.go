package query

import "fmt"

// MalformedQueryError reports a query tree that cannot be compiled: a chain
// that does not alternate sub-expressions and links, an unknown node, value
// type or operator, or a literal that cannot be interpreted.
type MalformedQueryError struct {
	Reason string
}

func (e *MalformedQueryError) Error() string {
	return "malformed query: " + e.Reason
}

func malformed(format string, args ...any) error {
	return &MalformedQueryError{Reason: fmt.Sprintf(format, args...)}
}

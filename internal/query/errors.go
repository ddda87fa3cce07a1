package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pbaumard/FROST-Server/internal/expression"
)

// ErrBadRequest is wrapped by every error caused by the content of a query.
// Such errors are reported to the client and never indicate a server fault.
var ErrBadRequest = errors.New("bad request")

// CompileError reports an expression fragment the compiler could not
// translate.
type CompileError struct {
	Fragment string
	Reason   string
}

func (e *CompileError) Error() string {
	if e.Fragment == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s in '%s'", e.Reason, e.Fragment)
}

func (e *CompileError) Unwrap() error { return ErrBadRequest }

func newCompileError(fragment, format string, args ...any) *CompileError {
	return &CompileError{Fragment: fragment, Reason: fmt.Sprintf(format, args...)}
}

// PropertyNotFoundError reports a path segment that names no property of the
// entity type reached so far.
type PropertyNotFoundError struct {
	Segment    string
	EntityType string
	Path       string
}

func (e *PropertyNotFoundError) Error() string {
	return fmt.Sprintf("property '%s' not found on entity type %s in path '%s'", e.Segment, e.EntityType, e.Path)
}

func (e *PropertyNotFoundError) Unwrap() error { return ErrBadRequest }

// NoBindingError reports a function called with argument types none of its
// bindings accepts.
type NoBindingError struct {
	Function string
	Args     []expression.Type
}

func (e *NoBindingError) Error() string {
	names := make([]string, len(e.Args))
	for i, a := range e.Args {
		names[i] = a.String()
	}
	return fmt.Sprintf("function %s has no binding for arguments (%s)", e.Function, strings.Join(names, ", "))
}

func (e *NoBindingError) Unwrap() error { return ErrBadRequest }

// NoSuchFieldVariantError reports a property that has no field projection
// with the requested variant name.
type NoSuchFieldVariantError struct {
	Property string
	Variant  string
}

func (e *NoSuchFieldVariantError) Error() string {
	return fmt.Sprintf("no such field variant '%s' for property %s", e.Variant, e.Property)
}

func (e *NoSuchFieldVariantError) Unwrap() error { return ErrBadRequest }

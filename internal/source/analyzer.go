package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned (wrapped) when an element cannot be resolved.
var ErrNotFound = errors.New("element not found")

// ResolutionError reports that the analyzer failed to resolve an element.
type ResolutionError struct {
	Handle Handle
	Op     string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %s: %v", e.Op, e.Handle, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NotFound builds a ResolutionError wrapping ErrNotFound.
func NotFound(op string, h Handle) error {
	return &ResolutionError{Handle: h, Op: op, Err: ErrNotFound}
}

// Parameter is a resolved method parameter.
type Parameter struct {
	Name        string
	Type        string
	Annotations map[string]*Annotation
}

// MethodInfo holds the resolved facts about a method.
type MethodInfo struct {
	Handle      Handle
	ReturnType  string
	Parameters  []Parameter
	Annotations map[string]*Annotation
}

// FieldInfo holds the resolved facts about a field.
type FieldInfo struct {
	Handle      Handle
	Type        string
	Annotations map[string]*Annotation
}

// TypeInfo holds the resolved facts about a type. Members are listed in
// declaration order.
type TypeInfo struct {
	Handle      Handle
	Annotation  bool
	Supertypes  []string
	Annotations map[string]*Annotation
	Methods     []Handle
	Fields      []Handle
}

// Analyzer supplies resolved facts about program elements on demand. It is
// the only way the metamodel learns about source code.
type Analyzer interface {
	// Type resolves a type handle.
	Type(ctx context.Context, h Handle) (*TypeInfo, error)
	// Method resolves a method handle.
	Method(ctx context.Context, h Handle) (*MethodInfo, error)
	// Field resolves a field handle.
	Field(ctx context.Context, h Handle) (*FieldInfo, error)
	// Supertypes returns the transitive supertype chain of a type, nearest
	// first, without the type itself.
	Supertypes(ctx context.Context, h Handle) ([]string, error)
	// IsSubtype reports whether sub is super or one of its subtypes.
	IsSubtype(ctx context.Context, sub, super string) (bool, error)
	// Types lists every known type handle.
	Types(ctx context.Context) ([]Handle, error)
}

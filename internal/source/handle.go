// Package source models the resolved facts the metamodel consumes about a
// program: element handles, annotations and the Analyzer collaborator that
// answers type, method and field queries.
package source

import (
	"fmt"
	"strings"
)

// ElementType is the kind of program element a Handle points to.
type ElementType int

const (
	// TypeElement is a class, interface or annotation type.
	TypeElement ElementType = iota
	// MethodElement is a method declared on a type.
	MethodElement
	// FieldElement is a field declared on a type.
	FieldElement
	// DescriptorElement is an entry of a deployment descriptor (web.xml).
	DescriptorElement
)

// String returns the element type name.
func (t ElementType) String() string {
	switch t {
	case TypeElement:
		return "type"
	case MethodElement:
		return "method"
	case FieldElement:
		return "field"
	case DescriptorElement:
		return "descriptor"
	default:
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
}

// Handle is the stable identity of a program element. It is comparable and
// used as a map key throughout the metamodel.
type Handle struct {
	Element ElementType
	// Type is the fully qualified name of the type, or of the declaring type
	// for members.
	Type string
	// Member is the method or field name. Empty for types.
	Member string
}

// TypeHandle returns the handle of a type.
func TypeHandle(fqn string) Handle {
	return Handle{Element: TypeElement, Type: fqn}
}

// MethodHandle returns the handle of a method declared on the given type.
func MethodHandle(declaringType, name string) Handle {
	return Handle{Element: MethodElement, Type: declaringType, Member: name}
}

// FieldHandle returns the handle of a field declared on the given type.
func FieldHandle(declaringType, name string) Handle {
	return Handle{Element: FieldElement, Type: declaringType, Member: name}
}

// DescriptorHandle returns the handle of a deployment descriptor entry.
func DescriptorHandle(descriptor, entry string) Handle {
	return Handle{Element: DescriptorElement, Type: descriptor, Member: entry}
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// DeclaringType returns the handle of the type declaring h, or h itself for
// types.
func (h Handle) DeclaringType() Handle {
	return TypeHandle(h.Type)
}

// SimpleName returns the unqualified name of the element.
func (h Handle) SimpleName() string {
	if h.Element != TypeElement {
		return h.Member
	}
	if i := strings.LastIndex(h.Type, "."); i >= 0 {
		return h.Type[i+1:]
	}
	return h.Type
}

// String renders the handle as "pkg.Type", "pkg.Type#method" or
// "pkg.Type.field".
func (h Handle) String() string {
	switch h.Element {
	case MethodElement:
		return h.Type + "#" + h.Member
	case FieldElement:
		return h.Type + "." + h.Member
	case DescriptorElement:
		return h.Type + "!" + h.Member
	default:
		return h.Type
	}
}

// ParseHandle is the inverse of Handle.String for methods, types and
// descriptor entries.
// Strings without '#' are treated as types; fields cannot be distinguished
// from nested types, so callers wanting a field must use FieldHandle.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Handle{}, fmt.Errorf("empty handle")
	}
	if i := strings.Index(s, "!"); i >= 0 {
		if i == 0 || i == len(s)-1 {
			return Handle{}, fmt.Errorf("malformed descriptor handle %q", s)
		}
		return DescriptorHandle(s[:i], s[i+1:]), nil
	}
	if i := strings.Index(s, "#"); i >= 0 {
		if i == 0 || i == len(s)-1 {
			return Handle{}, fmt.Errorf("malformed method handle %q", s)
		}
		return MethodHandle(s[:i], s[i+1:]), nil
	}
	return TypeHandle(s), nil
}

// MarshalText renders the handle with String.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

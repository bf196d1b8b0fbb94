// Package flags describes which facets of a metamodel element changed.
package flags

import "strings"

// Flags is a bitmask of changed facets carried by every Delta and by every
// annotation diff result.
type Flags uint32

const (
	// None is the empty set of facets.
	None Flags = 0

	// ElementKind signals a structural change of the element kind
	// (e.g. root resource <-> subresource, resource method <-> locator).
	ElementKind Flags = 1 << iota
	PathAnnotation
	ApplicationPathAnnotation
	HTTPMethodAnnotation
	PathParamAnnotation
	QueryParamAnnotation
	MatrixParamAnnotation
	BeanParamAnnotation
	DefaultValueAnnotation
	ConsumesAnnotation
	ProducesAnnotation
	MethodParameters
	MethodReturnType
	ApplicationHierarchy
	ApplicationPathValueOverride
	FieldType
)

var names = []struct {
	flag Flags
	name string
}{
	{ElementKind, "ELEMENT_KIND"},
	{PathAnnotation, "PATH_ANNOTATION"},
	{ApplicationPathAnnotation, "APPLICATION_PATH_ANNOTATION"},
	{HTTPMethodAnnotation, "HTTP_METHOD_ANNOTATION"},
	{PathParamAnnotation, "PATH_PARAM_ANNOTATION"},
	{QueryParamAnnotation, "QUERY_PARAM_ANNOTATION"},
	{MatrixParamAnnotation, "MATRIX_PARAM_ANNOTATION"},
	{BeanParamAnnotation, "BEAN_PARAM_ANNOTATION"},
	{DefaultValueAnnotation, "DEFAULT_VALUE_ANNOTATION"},
	{ConsumesAnnotation, "CONSUMES_ANNOTATION"},
	{ProducesAnnotation, "PRODUCES_ANNOTATION"},
	{MethodParameters, "METHOD_PARAMETERS"},
	{MethodReturnType, "METHOD_RETURN_TYPE"},
	{ApplicationHierarchy, "APPLICATION_HIERARCHY"},
	{ApplicationPathValueOverride, "APPLICATION_PATH_VALUE_OVERRIDE"},
	{FieldType, "FIELD_TYPE"},
}

// BindingParameters groups the facets that affect how endpoint parameters
// are bound.
const BindingParameters = PathParamAnnotation | QueryParamAnnotation | MatrixParamAnnotation | BeanParamAnnotation | DefaultValueAnnotation

// Of returns the union of the given facets.
func Of(fs ...Flags) Flags {
	var result Flags
	for _, f := range fs {
		result |= f
	}
	return result
}

// Add returns f with the given facets set.
func (f Flags) Add(fs ...Flags) Flags {
	return f | Of(fs...)
}

// Union returns the facets set in either f or other.
func (f Flags) Union(other Flags) Flags {
	return f | other
}

// HasValue reports whether at least one facet is set.
func (f Flags) HasValue() bool {
	return f != None
}

// Has reports whether all facets of want are set.
func (f Flags) Has(want Flags) bool {
	return want != None && f&want == want
}

// HasAny reports whether at least one facet of mask is set.
func (f Flags) HasAny(mask Flags) bool {
	return f&mask != None
}

// String returns the facet names joined by '|', or "NONE".
func (f Flags) String() string {
	if f == None {
		return "NONE"
	}
	var parts []string
	for _, n := range names {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// MarshalText renders the flags with String.
func (f Flags) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

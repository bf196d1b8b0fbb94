package source

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

// ValueAttribute is the attribute name used when an annotation has a single
// unnamed value.
const ValueAttribute = "value"

// Annotation is a snapshot of one annotation: its qualified name and its
// named attribute values.
//
// An Annotation may be paired with a working copy, an independent deep
// duplicate used to stage speculative changes. A primary keeps track of its
// latest working copy only: creating a new one rebinds the pairing.
type Annotation struct {
	mu         sync.RWMutex
	name       string
	attributes map[string][]string

	primary     *Annotation
	workingCopy *Annotation
}

// NewAnnotation creates an annotation with the given attributes. The
// attribute map and its value slices are copied.
func NewAnnotation(name string, attributes map[string][]string) *Annotation {
	return &Annotation{
		name:       name,
		attributes: cloneAttributes(attributes),
	}
}

// NewValueAnnotation creates an annotation with a single "value" attribute.
func NewValueAnnotation(name, value string) *Annotation {
	return NewAnnotation(name, map[string][]string{ValueAttribute: {value}})
}

// Name returns the fully qualified name of the annotation type.
func (a *Annotation) Name() string {
	return a.name
}

// Attributes returns a copy of the attribute values.
func (a *Annotation) Attributes() map[string][]string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneAttributes(a.attributes)
}

// Values returns a copy of the values of the named attribute.
func (a *Annotation) Values(attribute string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.attributes[attribute])
}

// Value returns the single value of the named attribute, or "" when the
// attribute is missing or holds several values.
func (a *Annotation) Value(attribute string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	values := a.attributes[attribute]
	if len(values) == 1 {
		return values[0]
	}
	return ""
}

// DefaultValue returns the single "value" attribute.
func (a *Annotation) DefaultValue() string {
	return a.Value(ValueAttribute)
}

// Equal reports whether both annotations have the same name and exactly the
// same attributes.
func (a *Annotation) Equal(other *Annotation) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a == other {
		return true
	}
	if a.name != other.name {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	return equalAttributes(a.attributes, other.attributes)
}

// HasChanges reports whether other carries different attribute values.
func (a *Annotation) HasChanges(other *Annotation) bool {
	if other == nil {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	return !equalAttributes(a.attributes, other.attributes)
}

// Update replaces the attributes of a with those of other. It returns false
// when other is nil or carries the same values.
func (a *Annotation) Update(other *Annotation) bool {
	if other == nil || a == other {
		return false
	}
	incoming := other.Attributes()
	a.mu.Lock()
	defer a.mu.Unlock()
	if equalAttributes(a.attributes, incoming) {
		return false
	}
	a.attributes = incoming
	return true
}

// WorkingCopy returns a deep duplicate of a paired with it as primary.
func (a *Annotation) WorkingCopy() *Annotation {
	a.mu.Lock()
	defer a.mu.Unlock()
	wc := &Annotation{
		name:       a.name,
		attributes: cloneAttributes(a.attributes),
		primary:    a,
	}
	a.workingCopy = wc
	return wc
}

// WorkingCopyOf returns the latest working copy of a, or nil.
func (a *Annotation) WorkingCopyOf() *Annotation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.workingCopy
}

// Primary returns the primary this working copy was created from, or nil if
// a is itself a primary.
func (a *Annotation) Primary() *Annotation {
	return a.primary
}

// IsWorkingCopy reports whether a was created by WorkingCopy.
func (a *Annotation) IsWorkingCopy() bool {
	return a.primary != nil
}

// String renders the annotation as @name(key="value", other=[a b]).
func (a *Annotation) String() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var b strings.Builder
	b.WriteByte('@')
	b.WriteString(a.name)
	if len(a.attributes) == 0 {
		return b.String()
	}
	keys := make([]string, 0, len(a.attributes))
	for k := range a.attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		values := a.attributes[k]
		if len(values) == 1 {
			b.WriteString(`"` + values[0] + `"`)
		} else {
			b.WriteString("[" + strings.Join(values, " ") + "]")
		}
	}
	b.WriteByte(')')
	return b.String()
}

// WorkingCopies duplicates every annotation of the given set.
func WorkingCopies(annotations map[string]*Annotation) map[string]*Annotation {
	result := make(map[string]*Annotation, len(annotations))
	for name, a := range annotations {
		result[name] = a.WorkingCopy()
	}
	return result
}

// IndexAnnotations keys annotations by qualified name. Later duplicates win.
func IndexAnnotations(annotations []*Annotation) map[string]*Annotation {
	result := make(map[string]*Annotation, len(annotations))
	for _, a := range annotations {
		result[a.Name()] = a
	}
	return result
}

func cloneAttributes(attributes map[string][]string) map[string][]string {
	result := make(map[string][]string, len(attributes))
	for k, v := range attributes {
		result[k] = slices.Clone(v)
	}
	return result
}

func equalAttributes(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !slices.Equal(va, vb) {
			return false
		}
	}
	return true
}

package domain

import (
	"fmt"
	"sync"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// Element is a node of the metamodel.
type Element interface {
	// Handle identifies the source element.
	Handle() source.Handle
	// Kind returns the current kind. It may change when annotations change.
	Kind() Kind
	// Metamodel returns the owning metamodel, or nil for a transient element.
	Metamodel() *Metamodel
	// Annotations returns a copy of the annotation set keyed by name.
	Annotations() map[string]*source.Annotation
	// Annotation returns the named annotation, or nil.
	Annotation(name string) *source.Annotation
	String() string
}

// element holds the state shared by every entity. The handle never changes
// and can be read without locking.
type element struct {
	mu          sync.RWMutex
	handle      source.Handle
	annotations map[string]*source.Annotation
	metamodel   *Metamodel
	// scope is the metamodel a transient element was built against. It is
	// only used to classify annotations.
	scope *Metamodel
}

func newElement(h source.Handle, annotations map[string]*source.Annotation, scope *Metamodel) element {
	if annotations == nil {
		annotations = make(map[string]*source.Annotation)
	}
	return element{handle: h, annotations: annotations, scope: scope}
}

func (e *element) Handle() source.Handle {
	return e.handle
}

func (e *element) Metamodel() *Metamodel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metamodel
}

func (e *element) setMetamodel(m *Metamodel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metamodel = m
}

// resolver returns the metamodel used to classify annotations.
func (e *element) resolver() *Metamodel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metamodel != nil {
		return e.metamodel
	}
	return e.scope
}

func (e *element) Annotations() map[string]*source.Annotation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make(map[string]*source.Annotation, len(e.annotations))
	for k, v := range e.annotations {
		result[k] = v
	}
	return result
}

func (e *element) Annotation(name string) *source.Annotation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.annotations[name]
}

func (e *element) hasAnnotation(name string) bool {
	return e.Annotation(name) != nil
}

// annotationValue returns the "value" attribute of the named annotation.
func (e *element) annotationValue(name string) string {
	if a := e.Annotation(name); a != nil {
		return a.DefaultValue()
	}
	return ""
}

// updateAnnotations merges incoming into the element and returns the
// changed facets together with a function restoring the previous set.
func (e *element) updateAnnotations(incoming map[string]*source.Annotation) (flags.Flags, func()) {
	classify := AnnotationClassifier(e.resolver())
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := source.WorkingCopies(e.annotations)
	f := UpdateAnnotations(e.annotations, incoming, classify)
	return f, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.annotations = snapshot
	}
}

func (e *element) describe(k Kind) string {
	return fmt.Sprintf("%s %s", k, e.handle)
}

// UpdateAnnotations replaces the content of current with incoming and returns
// the facets of every annotation that was added, removed or changed. The
// result does not depend on map iteration order, and merging a set into
// itself (or into an equal set) yields no facet.
func UpdateAnnotations(current, incoming map[string]*source.Annotation, classify func(name string) flags.Flags) flags.Flags {
	var result flags.Flags
	for name, a := range current {
		in, ok := incoming[name]
		if !ok {
			delete(current, name)
			result |= classify(name)
			continue
		}
		if a.Update(in) {
			result |= classify(name)
		}
	}
	for name, in := range incoming {
		if _, ok := current[name]; !ok {
			current[name] = in
			result |= classify(name)
		}
	}
	return result
}

var annotationFacets = map[string]flags.Flags{
	source.Path:            flags.PathAnnotation,
	source.ApplicationPath: flags.ApplicationPathAnnotation,
	source.HTTPMethod:      flags.HTTPMethodAnnotation,
	source.PathParam:       flags.PathParamAnnotation,
	source.QueryParam:      flags.QueryParamAnnotation,
	source.MatrixParam:     flags.MatrixParamAnnotation,
	source.BeanParam:       flags.BeanParamAnnotation,
	source.DefaultValue:    flags.DefaultValueAnnotation,
	source.Consumes:        flags.ConsumesAnnotation,
	source.Produces:        flags.ProducesAnnotation,
}

// AnnotationClassifier returns a function mapping an annotation name to its
// facet. HTTP method annotations are recognized from the built-in verbs and,
// when m is not nil, from the HTTP methods registered in m.
func AnnotationClassifier(m *Metamodel) func(name string) flags.Flags {
	return func(name string) flags.Flags {
		if f, ok := annotationFacets[name]; ok {
			return f
		}
		if isHTTPMethodAnnotation(m, name) {
			return flags.HTTPMethodAnnotation
		}
		return flags.None
	}
}

func isHTTPMethodAnnotation(m *Metamodel, name string) bool {
	if _, ok := builtinVerbs[name]; ok {
		return true
	}
	return m != nil && m.FindHTTPMethod(source.TypeHandle(name)) != nil
}

// paramFacets returns the facets of the parameter annotations present in
// annotations.
func paramFacets(annotations map[string]*source.Annotation) flags.Flags {
	var result flags.Flags
	for _, name := range source.ParamAnnotations {
		if _, ok := annotations[name]; ok {
			result |= annotationFacets[name]
		}
	}
	return result
}

package domain

import (
	"context"
	"fmt"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
)

var builtinVerbs = map[string]string{
	source.GET:     "GET",
	source.POST:    "POST",
	source.PUT:     "PUT",
	source.DELETE:  "DELETE",
	source.HEAD:    "HEAD",
	source.OPTIONS: "OPTIONS",
}

// HTTPMethod is an annotation type carrying @HttpMethod. The standard verbs
// are built in; custom ones come from the program.
type HTTPMethod struct {
	element
	builtin bool
}

var _ Element = (*HTTPMethod)(nil)

// BuildHTTPMethod resolves h and returns a transient HTTP method, or nil
// when the type is not an annotation carrying @HttpMethod.
func BuildHTTPMethod(ctx context.Context, a source.Analyzer, h source.Handle) (*HTTPMethod, error) {
	info, err := a.Type(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("failed to build http method: %w", err)
	}
	if !info.Annotation {
		return nil, nil
	}
	if ann := info.Annotations[source.HTTPMethod]; ann == nil || ann.DefaultValue() == "" {
		return nil, nil
	}
	return &HTTPMethod{element: newElement(h, info.Annotations, nil)}, nil
}

func newBuiltinHTTPMethod(name, verb string) *HTTPMethod {
	annotations := map[string]*source.Annotation{
		source.HTTPMethod: source.NewValueAnnotation(source.HTTPMethod, verb),
	}
	return &HTTPMethod{element: newElement(source.TypeHandle(name), annotations, nil), builtin: true}
}

func (hm *HTTPMethod) Kind() Kind {
	return KindHTTPMethod
}

// Verb returns the HTTP verb, e.g. "GET".
func (hm *HTTPMethod) Verb() string {
	return hm.annotationValue(source.HTTPMethod)
}

// AnnotationName returns the qualified name of the annotation that marks
// resource methods with this verb.
func (hm *HTTPMethod) AnnotationName() string {
	return hm.handle.Type
}

// IsBuiltin reports whether the method is one of the standard verbs.
func (hm *HTTPMethod) IsBuiltin() bool {
	return hm.builtin
}

// Join registers the HTTP method in m.
func (hm *HTTPMethod) Join(m *Metamodel) ChangeSet {
	var cs ChangeSet
	hm.setMetamodel(m)
	m.register(hm)
	cs.add(hm, Added, flags.None)
	cs.onRollback(func() {
		m.unregister(hm)
		hm.setMetamodel(nil)
	})
	return cs
}

// Update merges a freshly built HTTP method into hm. Built-in methods never
// change.
func (hm *HTTPMethod) Update(transient *HTTPMethod) ChangeSet {
	if hm.builtin {
		return ChangeSet{}
	}
	if transient == nil {
		return hm.Remove()
	}
	var cs ChangeSet
	f, undo := hm.updateAnnotations(transient.Annotations())
	cs.onRollback(undo)
	if f.HasValue() {
		cs.add(hm, Changed, f)
	}
	return cs
}

// Remove unregisters the HTTP method. Built-in methods are never removed.
func (hm *HTTPMethod) Remove() ChangeSet {
	var cs ChangeSet
	m := hm.Metamodel()
	if m == nil || hm.builtin {
		return cs
	}
	m.unregister(hm)
	hm.setMetamodel(nil)
	cs.onRollback(func() {
		hm.setMetamodel(m)
		m.register(hm)
	})
	cs.add(hm, Removed, flags.None)
	return cs
}

func (hm *HTTPMethod) String() string {
	return fmt.Sprintf("%s verb=%s", hm.describe(KindHTTPMethod), hm.Verb())
}

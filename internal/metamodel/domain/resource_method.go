package domain

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// ResourceMethod is a method of a resource annotated with an HTTP method
// annotation, @Path, or both.
type ResourceMethod struct {
	element
	parent     *Resource
	returnType string
	parameters []source.Parameter
}

var _ Element = (*ResourceMethod)(nil)

func newResourceMethod(mi *source.MethodInfo, r *Resource, scope *Metamodel) *ResourceMethod {
	return &ResourceMethod{
		element:    newElement(mi.Handle, mi.Annotations, scope),
		parent:     r,
		returnType: mi.ReturnType,
		parameters: mi.Parameters,
	}
}

// Kind derives the method kind from its annotations:
// an HTTP method annotation without @Path makes a resource method, with
// @Path a subresource method, and @Path alone a subresource locator.
func (rm *ResourceMethod) Kind() Kind {
	verb := rm.HTTPMethodAnnotation() != ""
	path := rm.hasAnnotation(source.Path)
	switch {
	case verb && !path:
		return KindResourceMethod
	case verb && path:
		return KindSubresourceMethod
	case path:
		return KindSubresourceLocator
	default:
		return KindUndefinedResourceMethod
	}
}

// HTTPMethodAnnotation returns the name of the HTTP method annotation of
// the method, or "". When several are present the first by name wins.
func (rm *ResourceMethod) HTTPMethodAnnotation() string {
	m := rm.resolver()
	names := make([]string, 0, 1)
	for name := range rm.Annotations() {
		if isHTTPMethodAnnotation(m, name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}

// HTTPMethod returns the registered HTTP method matching the annotation of
// the method, or nil.
func (rm *ResourceMethod) HTTPMethod() *HTTPMethod {
	name := rm.HTTPMethodAnnotation()
	m := rm.resolver()
	if name == "" || m == nil {
		return nil
	}
	return m.FindHTTPMethod(source.TypeHandle(name))
}

// ParentResource returns the owning resource.
func (rm *ResourceMethod) ParentResource() *Resource {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.parent
}

// PathValue returns the value of the @Path annotation, or "".
func (rm *ResourceMethod) PathValue() string {
	return rm.annotationValue(source.Path)
}

// ReturnType returns the declared return type.
func (rm *ResourceMethod) ReturnType() string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.returnType
}

// Parameters returns the method parameters in declaration order.
func (rm *ResourceMethod) Parameters() []source.Parameter {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	result := make([]source.Parameter, len(rm.parameters))
	copy(result, rm.parameters)
	return result
}

// ConsumedMediaTypes returns the @Consumes values declared on the method.
func (rm *ResourceMethod) ConsumedMediaTypes() []string {
	return mediaTypes(rm.Annotation(source.Consumes))
}

// ProducedMediaTypes returns the @Produces values declared on the method.
func (rm *ResourceMethod) ProducedMediaTypes() []string {
	return mediaTypes(rm.Annotation(source.Produces))
}

func mediaTypes(a *source.Annotation) []string {
	if a == nil {
		return nil
	}
	return a.Values(source.ValueAttribute)
}

// Update merges a freshly built method into rm.
func (rm *ResourceMethod) Update(transient *ResourceMethod) ChangeSet {
	if transient == nil || transient.Kind() == KindUndefinedResourceMethod {
		return rm.Remove()
	}
	var cs ChangeSet
	before := rm.Kind()
	f, undo := rm.updateAnnotations(transient.Annotations())
	cs.onRollback(undo)

	classify := AnnotationClassifier(rm.resolver())
	rm.mu.Lock()
	prevReturn, prevParams := rm.returnType, rm.parameters
	if rm.returnType != transient.returnType {
		rm.returnType = transient.returnType
		f |= flags.MethodReturnType
	}
	if pf := diffParameters(rm.parameters, transient.parameters, classify); pf.HasValue() {
		rm.parameters = transient.parameters
		f |= pf
	}
	rm.mu.Unlock()
	cs.onRollback(func() {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		rm.returnType, rm.parameters = prevReturn, prevParams
	})

	if rm.Kind() != before {
		f |= flags.ElementKind
	}
	if f.HasValue() {
		cs.add(rm, Changed, f)
	}
	return cs
}

// diffParameters returns MethodParameters plus the facets of the changed
// parameter annotations when the parameter lists differ.
func diffParameters(current, incoming []source.Parameter, classify func(string) flags.Flags) flags.Flags {
	var f flags.Flags
	if len(current) != len(incoming) {
		f = flags.MethodParameters
		for _, p := range current {
			f |= paramFacets(p.Annotations)
		}
		for _, p := range incoming {
			f |= paramFacets(p.Annotations)
		}
		return f
	}
	for i := range current {
		if current[i].Name != incoming[i].Name || current[i].Type != incoming[i].Type {
			f |= flags.MethodParameters
		}
		scratch := source.WorkingCopies(current[i].Annotations)
		if af := UpdateAnnotations(scratch, incoming[i].Annotations, classify); af.HasValue() {
			f |= flags.MethodParameters | af
		}
	}
	return f
}

// Remove detaches the method from its resource and unregisters it.
func (rm *ResourceMethod) Remove() ChangeSet {
	return rm.remove(false)
}

func (rm *ResourceMethod) remove(cascade bool) ChangeSet {
	var cs ChangeSet
	r := rm.ParentResource()
	m := rm.Metamodel()
	if !cascade && r != nil {
		r.detach(rm)
		cs.onRollback(func() { r.attach(rm) })
	}
	if m != nil {
		m.unregister(rm)
		rm.setMetamodel(nil)
		cs.onRollback(func() {
			rm.setMetamodel(m)
			m.register(rm)
		})
	}
	cs.add(rm, Removed, flags.None)
	return cs
}

func (rm *ResourceMethod) adopt(r *Resource) ChangeSet {
	var cs ChangeSet
	rm.mu.Lock()
	prev := rm.parent
	rm.parent = r
	rm.mu.Unlock()
	r.attach(rm)
	m := r.Metamodel()
	if m != nil {
		rm.setMetamodel(m)
		m.register(rm)
	}
	cs.add(rm, Added, flags.None)
	cs.onRollback(func() {
		if m != nil {
			m.unregister(rm)
			rm.setMetamodel(nil)
		}
		r.detach(rm)
		rm.mu.Lock()
		rm.parent = prev
		rm.mu.Unlock()
	})
	return cs
}

func (rm *ResourceMethod) String() string {
	return fmt.Sprintf("%s path=%q returns=%s", rm.describe(rm.Kind()), rm.PathValue(), rm.ReturnType())
}

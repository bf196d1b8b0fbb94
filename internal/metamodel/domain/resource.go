package domain

import (
	"context"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// Resource is a type annotated with @Path (root resource) or declaring at
// least one resource method (subresource). It owns its methods, fields and
// properties in declaration order.
type Resource struct {
	element
	methods    *orderedmap.OrderedMap[source.Handle, *ResourceMethod]
	fields     *orderedmap.OrderedMap[source.Handle, *ResourceField]
	properties *orderedmap.OrderedMap[source.Handle, *ResourceProperty]
}

var _ owner = (*Resource)(nil)

// BuildResource resolves h and returns a transient resource with its
// children, or nil when the type does not qualify. m, when not nil, is used
// to recognize custom HTTP method annotations.
func BuildResource(ctx context.Context, a source.Analyzer, h source.Handle, m *Metamodel) (*Resource, error) {
	scan, err := scanType(ctx, a, h)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}
	if scan.info.Annotation {
		return nil, nil
	}
	r := &Resource{
		element:    newElement(h, scan.info.Annotations, m),
		methods:    orderedmap.New[source.Handle, *ResourceMethod](),
		fields:     orderedmap.New[source.Handle, *ResourceField](),
		properties: orderedmap.New[source.Handle, *ResourceProperty](),
	}
	for _, mi := range scan.methods {
		rm := newResourceMethod(mi, r, m)
		if rm.Kind() != KindUndefinedResourceMethod {
			r.methods.Set(mi.Handle, rm)
		}
	}
	if !r.hasAnnotation(source.Path) && r.methods.Len() == 0 {
		return nil, nil
	}
	for _, mi := range scan.properties {
		r.properties.Set(mi.Handle, newResourceProperty(mi, r, m))
	}
	for _, fi := range scan.fields {
		r.fields.Set(fi.Handle, newResourceField(fi, r, m))
	}
	return r, nil
}

func (r *Resource) Kind() Kind {
	if r.hasAnnotation(source.Path) {
		return KindRootResource
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.methods.Len() > 0 {
		return KindSubresource
	}
	return KindUndefinedResource
}

// IsRootResource reports whether the resource carries @Path.
func (r *Resource) IsRootResource() bool {
	return r.Kind() == KindRootResource
}

// PathValue returns the value of the @Path annotation, or "".
func (r *Resource) PathValue() string {
	return r.annotationValue(source.Path)
}

// Methods returns the resource methods in declaration order.
func (r *Resource) Methods() []*ResourceMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return values(r.methods)
}

// Method returns the child method with the given handle, or nil.
func (r *Resource) Method(h source.Handle) *ResourceMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, _ := r.methods.Get(h)
	return rm
}

// Fields returns the annotated fields in declaration order.
func (r *Resource) Fields() []*ResourceField {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return values(r.fields)
}

// Properties returns the annotated setters in declaration order.
func (r *Resource) Properties() []*ResourceProperty {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return values(r.properties)
}

// Elements returns fields then properties.
func (r *Resource) Elements() []ResourceElement {
	var result []ResourceElement
	for _, f := range r.Fields() {
		result = append(result, f)
	}
	for _, p := range r.Properties() {
		result = append(result, p)
	}
	return result
}

// ConsumedMediaTypes returns the @Consumes values declared on the type.
func (r *Resource) ConsumedMediaTypes() []string {
	return mediaTypes(r.Annotation(source.Consumes))
}

// ProducedMediaTypes returns the @Produces values declared on the type.
func (r *Resource) ProducedMediaTypes() []string {
	return mediaTypes(r.Annotation(source.Produces))
}

func (r *Resource) attach(c Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch c := c.(type) {
	case *ResourceMethod:
		r.methods.Set(c.Handle(), c)
	case *ResourceField:
		r.fields.Set(c.Handle(), c)
	case *ResourceProperty:
		r.properties.Set(c.Handle(), c)
	}
}

func (r *Resource) detach(c Element) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch c.(type) {
	case *ResourceMethod:
		r.methods.Delete(c.Handle())
	case *ResourceField:
		r.fields.Delete(c.Handle())
	case *ResourceProperty:
		r.properties.Delete(c.Handle())
	}
}

// Join registers the resource and its children in m. The resource is
// reported first, then methods, fields and properties.
func (r *Resource) Join(m *Metamodel) ChangeSet {
	var cs ChangeSet
	joined := []Element{r}
	for _, rm := range r.Methods() {
		joined = append(joined, rm)
	}
	for _, e := range r.Elements() {
		joined = append(joined, e)
	}
	for _, e := range joined {
		setMetamodel(e, m)
		m.register(e)
		cs.add(e, Added, joinedFacets(e))
	}
	cs.onRollback(func() {
		for _, e := range joined {
			m.unregister(e)
			setMetamodel(e, nil)
		}
	})
	return cs
}

// Update merges a freshly built resource into r: annotations are diffed,
// children updated, removed or adopted. A change of the resource kind is
// reported with the ElementKind facet. A nil transient removes r.
func (r *Resource) Update(transient *Resource) ChangeSet {
	if transient == nil {
		return r.Remove()
	}
	var cs ChangeSet
	before := r.Kind()
	f, undo := r.updateAnnotations(transient.Annotations())
	cs.onRollback(undo)

	var children ChangeSet
	children.Merge(syncChildren(&r.mu, r.methods, transient.methods, func(rm *ResourceMethod) ChangeSet {
		return rm.adopt(r)
	}))
	children.Merge(syncChildren(&r.mu, r.fields, transient.fields, func(rf *ResourceField) ChangeSet {
		return rf.adopt(rf, r)
	}))
	children.Merge(syncChildren(&r.mu, r.properties, transient.properties, func(rp *ResourceProperty) ChangeSet {
		return rp.adopt(rp, r)
	}))

	if r.Kind() != before {
		f |= flags.ElementKind
	}
	if f.HasValue() {
		cs.add(r, Changed, f)
	}
	cs.Merge(children)
	return cs
}

// Remove unregisters the resource and all of its children.
func (r *Resource) Remove() ChangeSet {
	var cs ChangeSet
	m := r.Metamodel()
	if m == nil {
		return cs
	}
	m.unregister(r)
	r.setMetamodel(nil)
	cs.onRollback(func() {
		r.setMetamodel(m)
		m.register(r)
	})
	cs.add(r, Removed, flags.None)
	for _, rm := range r.Methods() {
		cs.Merge(rm.remove(true))
	}
	for _, f := range r.Fields() {
		cs.Merge(f.remove(f, false, false))
	}
	for _, p := range r.Properties() {
		cs.Merge(p.remove(p, false, false))
	}
	return cs
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s path=%q", r.describe(r.Kind()), r.PathValue())
}

// setMetamodel sets the back-reference of any entity.
func setMetamodel(e Element, m *Metamodel) {
	if s, ok := e.(interface{ setMetamodel(*Metamodel) }); ok {
		s.setMetamodel(m)
	}
}

package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// child is an element owned by a resource or a parameter aggregator.
type child[T any] interface {
	Element
	Update(transient T) ChangeSet
	Remove() ChangeSet
}

// owner is implemented by the elements that own children.
type owner interface {
	Element
	attach(c Element)
	detach(c Element)
}

// syncChildren reconciles the children of a joined owner with the children
// of a freshly built transient. Existing children are updated in place,
// missing ones are removed and new ones are adopted.
func syncChildren[T child[T]](mu *sync.RWMutex, current, incoming *orderedmap.OrderedMap[source.Handle, T], adopt func(T) ChangeSet) ChangeSet {
	mu.RLock()
	existing := values(current)
	mu.RUnlock()

	var cs ChangeSet
	known := make(map[source.Handle]bool, len(existing))
	for _, c := range existing {
		known[c.Handle()] = true
		if in, ok := incoming.Get(c.Handle()); ok {
			cs.Merge(c.Update(in))
		} else {
			cs.Merge(c.Remove())
		}
	}
	for pair := incoming.Oldest(); pair != nil; pair = pair.Next() {
		if !known[pair.Key] {
			cs.Merge(adopt(pair.Value))
		}
	}
	return cs
}

func values[T any](om *orderedmap.OrderedMap[source.Handle, T]) []T {
	result := make([]T, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// typeScan is the resolved content of a type, with setter methods carrying
// parameter annotations split out as properties.
type typeScan struct {
	info       *source.TypeInfo
	methods    []*source.MethodInfo
	properties []*source.MethodInfo
	fields     []*source.FieldInfo
}

func scanType(ctx context.Context, a source.Analyzer, h source.Handle) (*typeScan, error) {
	info, err := a.Type(ctx, h)
	if err != nil {
		return nil, err
	}
	scan := &typeScan{info: info}
	for _, mh := range info.Methods {
		mi, err := a.Method(ctx, mh)
		if err != nil {
			return nil, err
		}
		if isProperty(mi) {
			scan.properties = append(scan.properties, mi)
		} else {
			scan.methods = append(scan.methods, mi)
		}
	}
	for _, fh := range info.Fields {
		fi, err := a.Field(ctx, fh)
		if err != nil {
			return nil, err
		}
		if source.HasParamAnnotation(fi.Annotations) {
			scan.fields = append(scan.fields, fi)
		}
	}
	return scan, nil
}

// isProperty reports whether a method is a setter bound to a request
// parameter: setX with a single argument and a parameter annotation.
func isProperty(mi *source.MethodInfo) bool {
	name := mi.Handle.Member
	if !strings.HasPrefix(name, "set") || len(name) == len("set") || len(mi.Parameters) != 1 {
		return false
	}
	if _, ok := mi.Annotations[source.Path]; ok {
		return false
	}
	return source.HasParamAnnotation(mi.Annotations)
}

// member is the state shared by fields and properties of resources and
// parameter aggregators.
type member struct {
	element
	javaType string
	owner    owner
}

func newMember(h source.Handle, javaType string, annotations map[string]*source.Annotation, o owner, scope *Metamodel) member {
	return member{element: newElement(h, annotations, scope), javaType: javaType, owner: o}
}

// JavaType returns the declared type of the field, or the parameter type
// of the setter.
func (mb *member) JavaType() string {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.javaType
}

func (mb *member) parent() owner {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	return mb.owner
}

// paramKind maps the first parameter annotation found to the matching kind,
// counted from first.
func (mb *member) paramKind(first, undefined Kind) Kind {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	for i, name := range source.ParamAnnotations {
		if _, ok := mb.annotations[name]; ok {
			return first + Kind(i)
		}
	}
	return undefined
}

func (mb *member) update(self Element, transient *member) ChangeSet {
	var cs ChangeSet
	f, undo := mb.updateAnnotations(transient.Annotations())
	cs.onRollback(undo)
	mb.mu.Lock()
	prevType := mb.javaType
	if mb.javaType != transient.javaType {
		mb.javaType = transient.javaType
		f |= flags.FieldType
	}
	mb.mu.Unlock()
	cs.onRollback(func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		mb.javaType = prevType
	})
	if f.HasValue() {
		cs.add(self, Changed, f)
	}
	return cs
}

// adopt attaches a transient member to o and registers it when o is joined.
func (mb *member) adopt(self Element, o owner) ChangeSet {
	var cs ChangeSet
	mb.mu.Lock()
	prevOwner := mb.owner
	mb.owner = o
	mb.mu.Unlock()
	o.attach(self)
	m := o.Metamodel()
	if m != nil {
		mb.setMetamodel(m)
		m.register(self)
	}
	cs.add(self, Added, paramFacets(mb.Annotations()))
	cs.onRollback(func() {
		if m != nil {
			m.unregister(self)
			mb.setMetamodel(nil)
		}
		o.detach(self)
		mb.mu.Lock()
		mb.owner = prevOwner
		mb.mu.Unlock()
	})
	return cs
}

// remove unregisters the member. Unless detach is false the member is also
// dropped from its owner. The REMOVED delta carries the facets of the
// parameter annotations of the member when withFacets is set, so that the
// endpoints binding it get refreshed.
func (mb *member) remove(self Element, detach, withFacets bool) ChangeSet {
	var cs ChangeSet
	o := mb.parent()
	m := mb.Metamodel()
	if detach && o != nil {
		o.detach(self)
		cs.onRollback(func() { o.attach(self) })
	}
	if m != nil {
		m.unregister(self)
		mb.setMetamodel(nil)
		cs.onRollback(func() {
			mb.setMetamodel(m)
			m.register(self)
		})
	}
	f := flags.None
	if withFacets {
		f = paramFacets(mb.Annotations())
	}
	cs.add(self, Removed, f)
	return cs
}

// joinedFacets returns the facets an ADDED delta carries for e.
func joinedFacets(e Element) flags.Flags {
	switch e.(type) {
	case ResourceElement, AggregatorElement:
		return paramFacets(e.Annotations())
	default:
		return flags.None
	}
}

func (mb *member) describe(k Kind) string {
	return fmt.Sprintf("%s %s type=%s", k, mb.handle, mb.JavaType())
}

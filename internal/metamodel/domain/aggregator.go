package domain

import (
	"context"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// ParameterAggregator is a type grouping request parameters in annotated
// fields and setters, injected into resources with @BeanParam.
type ParameterAggregator struct {
	element
	fields     *orderedmap.OrderedMap[source.Handle, *ParameterAggregatorField]
	properties *orderedmap.OrderedMap[source.Handle, *ParameterAggregatorProperty]
}

var _ owner = (*ParameterAggregator)(nil)

// BuildParameterAggregator resolves h and returns a transient aggregator,
// or nil when the type does not qualify. Types that qualify as resources
// never qualify as aggregators.
func BuildParameterAggregator(ctx context.Context, a source.Analyzer, h source.Handle, m *Metamodel) (*ParameterAggregator, error) {
	scan, err := scanType(ctx, a, h)
	if err != nil {
		return nil, fmt.Errorf("failed to build parameter aggregator: %w", err)
	}
	if scan.info.Annotation {
		return nil, nil
	}
	if _, ok := scan.info.Annotations[source.Path]; ok {
		return nil, nil
	}
	pa := &ParameterAggregator{
		element:    newElement(h, scan.info.Annotations, m),
		fields:     orderedmap.New[source.Handle, *ParameterAggregatorField](),
		properties: orderedmap.New[source.Handle, *ParameterAggregatorProperty](),
	}
	for _, mi := range scan.methods {
		candidate := &ResourceMethod{element: newElement(mi.Handle, mi.Annotations, m)}
		if candidate.Kind() != KindUndefinedResourceMethod {
			return nil, nil
		}
	}
	for _, mi := range scan.properties {
		pa.properties.Set(mi.Handle, newAggregatorProperty(mi, pa, m))
	}
	for _, fi := range scan.fields {
		pa.fields.Set(fi.Handle, newAggregatorField(fi, pa, m))
	}
	if pa.fields.Len() == 0 && pa.properties.Len() == 0 {
		return nil, nil
	}
	return pa, nil
}

func (pa *ParameterAggregator) Kind() Kind {
	return KindParameterAggregator
}

// Fields returns the annotated fields in declaration order.
func (pa *ParameterAggregator) Fields() []*ParameterAggregatorField {
	pa.mu.RLock()
	defer pa.mu.RUnlock()
	return values(pa.fields)
}

// Properties returns the annotated setters in declaration order.
func (pa *ParameterAggregator) Properties() []*ParameterAggregatorProperty {
	pa.mu.RLock()
	defer pa.mu.RUnlock()
	return values(pa.properties)
}

// Elements returns fields then properties.
func (pa *ParameterAggregator) Elements() []AggregatorElement {
	var result []AggregatorElement
	for _, f := range pa.Fields() {
		result = append(result, f)
	}
	for _, p := range pa.Properties() {
		result = append(result, p)
	}
	return result
}

func (pa *ParameterAggregator) attach(c Element) {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	switch c := c.(type) {
	case *ParameterAggregatorField:
		pa.fields.Set(c.Handle(), c)
	case *ParameterAggregatorProperty:
		pa.properties.Set(c.Handle(), c)
	}
}

func (pa *ParameterAggregator) detach(c Element) {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	switch c.(type) {
	case *ParameterAggregatorField:
		pa.fields.Delete(c.Handle())
	case *ParameterAggregatorProperty:
		pa.properties.Delete(c.Handle())
	}
}

// Join registers the aggregator and its members in m.
func (pa *ParameterAggregator) Join(m *Metamodel) ChangeSet {
	var cs ChangeSet
	joined := []Element{pa}
	for _, e := range pa.Elements() {
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

// Update merges a freshly built aggregator into pa. A nil transient removes
// pa.
func (pa *ParameterAggregator) Update(transient *ParameterAggregator) ChangeSet {
	if transient == nil {
		return pa.Remove()
	}
	var cs ChangeSet
	f, undo := pa.updateAnnotations(transient.Annotations())
	cs.onRollback(undo)
	if f.HasValue() {
		cs.add(pa, Changed, f)
	}
	cs.Merge(syncChildren(&pa.mu, pa.fields, transient.fields, func(af *ParameterAggregatorField) ChangeSet {
		return af.adopt(af, pa)
	}))
	cs.Merge(syncChildren(&pa.mu, pa.properties, transient.properties, func(ap *ParameterAggregatorProperty) ChangeSet {
		return ap.adopt(ap, pa)
	}))
	return cs
}

// Remove unregisters the aggregator and its members.
func (pa *ParameterAggregator) Remove() ChangeSet {
	var cs ChangeSet
	m := pa.Metamodel()
	if m == nil {
		return cs
	}
	m.unregister(pa)
	pa.setMetamodel(nil)
	cs.onRollback(func() {
		pa.setMetamodel(m)
		m.register(pa)
	})
	cs.add(pa, Removed, flags.None)
	for _, f := range pa.Fields() {
		cs.Merge(f.remove(f, false, true))
	}
	for _, p := range pa.Properties() {
		cs.Merge(p.remove(p, false, true))
	}
	return cs
}

func (pa *ParameterAggregator) String() string {
	return pa.describe(KindParameterAggregator)
}

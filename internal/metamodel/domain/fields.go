package domain

import (
	"github.com/conduit-lang/wsmodel/internal/source"
)

// ResourceElement is a field or property of a resource bound to a request
// parameter.
type ResourceElement interface {
	Element
	ParentResource() *Resource
	JavaType() string
}

// AggregatorElement is a field or property of a parameter aggregator.
type AggregatorElement interface {
	Element
	ParentAggregator() *ParameterAggregator
	JavaType() string
}

// ResourceField is a resource field annotated with @PathParam, @QueryParam,
// @MatrixParam or @BeanParam.
type ResourceField struct {
	member
}

var _ ResourceElement = (*ResourceField)(nil)

func newResourceField(fi *source.FieldInfo, r *Resource, scope *Metamodel) *ResourceField {
	return &ResourceField{member: newMember(fi.Handle, fi.Type, fi.Annotations, r, scope)}
}

func (f *ResourceField) Kind() Kind {
	return f.paramKind(KindPathParamField, KindUndefinedResourceField)
}

func (f *ResourceField) ParentResource() *Resource {
	r, _ := f.parent().(*Resource)
	return r
}

func (f *ResourceField) Update(transient *ResourceField) ChangeSet {
	if transient == nil {
		return f.Remove()
	}
	return f.update(f, &transient.member)
}

func (f *ResourceField) Remove() ChangeSet {
	return f.remove(f, true, true)
}

func (f *ResourceField) String() string {
	return f.describe(f.Kind())
}

// ResourceProperty is a resource setter annotated with a parameter
// annotation.
type ResourceProperty struct {
	member
}

var _ ResourceElement = (*ResourceProperty)(nil)

func newResourceProperty(mi *source.MethodInfo, r *Resource, scope *Metamodel) *ResourceProperty {
	return &ResourceProperty{member: newMember(mi.Handle, mi.Parameters[0].Type, mi.Annotations, r, scope)}
}

func (p *ResourceProperty) Kind() Kind {
	return p.paramKind(KindPathParamProperty, KindUndefinedResourceProperty)
}

func (p *ResourceProperty) ParentResource() *Resource {
	r, _ := p.parent().(*Resource)
	return r
}

func (p *ResourceProperty) Update(transient *ResourceProperty) ChangeSet {
	if transient == nil {
		return p.Remove()
	}
	return p.update(p, &transient.member)
}

func (p *ResourceProperty) Remove() ChangeSet {
	return p.remove(p, true, true)
}

func (p *ResourceProperty) String() string {
	return p.describe(p.Kind())
}

// ParameterAggregatorField is an annotated field of a parameter aggregator.
type ParameterAggregatorField struct {
	member
}

var _ AggregatorElement = (*ParameterAggregatorField)(nil)

func newAggregatorField(fi *source.FieldInfo, pa *ParameterAggregator, scope *Metamodel) *ParameterAggregatorField {
	return &ParameterAggregatorField{member: newMember(fi.Handle, fi.Type, fi.Annotations, pa, scope)}
}

func (f *ParameterAggregatorField) Kind() Kind {
	return KindParameterAggregatorField
}

func (f *ParameterAggregatorField) ParentAggregator() *ParameterAggregator {
	pa, _ := f.parent().(*ParameterAggregator)
	return pa
}

func (f *ParameterAggregatorField) Update(transient *ParameterAggregatorField) ChangeSet {
	if transient == nil {
		return f.Remove()
	}
	return f.update(f, &transient.member)
}

func (f *ParameterAggregatorField) Remove() ChangeSet {
	return f.remove(f, true, true)
}

func (f *ParameterAggregatorField) String() string {
	return f.describe(f.Kind())
}

// ParameterAggregatorProperty is an annotated setter of a parameter
// aggregator.
type ParameterAggregatorProperty struct {
	member
}

var _ AggregatorElement = (*ParameterAggregatorProperty)(nil)

func newAggregatorProperty(mi *source.MethodInfo, pa *ParameterAggregator, scope *Metamodel) *ParameterAggregatorProperty {
	return &ParameterAggregatorProperty{member: newMember(mi.Handle, mi.Parameters[0].Type, mi.Annotations, pa, scope)}
}

func (p *ParameterAggregatorProperty) Kind() Kind {
	return KindParameterAggregatorProperty
}

func (p *ParameterAggregatorProperty) ParentAggregator() *ParameterAggregator {
	pa, _ := p.parent().(*ParameterAggregator)
	return pa
}

func (p *ParameterAggregatorProperty) Update(transient *ParameterAggregatorProperty) ChangeSet {
	if transient == nil {
		return p.Remove()
	}
	return p.update(p, &transient.member)
}

func (p *ParameterAggregatorProperty) Remove() ChangeSet {
	return p.remove(p, true, true)
}

func (p *ParameterAggregatorProperty) String() string {
	return p.describe(p.Kind())
}

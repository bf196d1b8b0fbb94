package domain

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/source"
)

// maxBeanParamDepth bounds the expansion of nested @BeanParam aggregators.
const maxBeanParamDepth = 4

// EndpointFactory derives endpoints from resource methods. Only one level of
// subresource locator is followed: a locator must be declared on a root
// resource, and the resource it returns contributes its resource methods
// and subresource methods, not its own locators.
type EndpointFactory struct {
	m *Metamodel
}

// CreateEndpoints derives the endpoint of a resource method or subresource
// method declared on a root resource.
func (f *EndpointFactory) CreateEndpoints(ctx context.Context, rm *ResourceMethod) ([]*Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := f.build([]*ResourceMethod{rm})
	if e == nil {
		return nil, nil
	}
	return []*Endpoint{e}, nil
}

// CreateEndpointsFromSubresourceMethod derives the located endpoints of a
// method, one per locator returning the type of its resource or one of its
// supertypes. Root resources are located the same way.
func (f *EndpointFactory) CreateEndpointsFromSubresourceMethod(ctx context.Context, rm *ResourceMethod) ([]*Endpoint, error) {
	r := rm.ParentResource()
	if r == nil {
		return nil, nil
	}
	var result []*Endpoint
	for _, locator := range f.m.FindSubresourceLocators() {
		ok, err := f.locates(ctx, locator, r)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if e := f.build([]*ResourceMethod{locator, rm}); e != nil {
			result = append(result, e)
		}
	}
	return result, nil
}

// CreateEndpointsFromSubresourceLocator derives the endpoints reachable
// through a locator declared on a root resource.
func (f *EndpointFactory) CreateEndpointsFromSubresourceLocator(ctx context.Context, locator *ResourceMethod) ([]*Endpoint, error) {
	var result []*Endpoint
	for _, r := range f.m.Resources() {
		ok, err := f.locates(ctx, locator, r)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, rm := range r.Methods() {
			switch rm.Kind() {
			case KindResourceMethod, KindSubresourceMethod:
				if e := f.build([]*ResourceMethod{locator, rm}); e != nil {
					result = append(result, e)
				}
			case KindSubresourceLocator:
				f.m.logger.Debug("skipping nested subresource locator",
					zap.Stringer("locator", locator.Handle()),
					zap.Stringer("nested", rm.Handle()))
			}
		}
	}
	return result, nil
}

// locates reports whether locator is a subresource locator of a root
// resource returning the type of r or one of its supertypes.
func (f *EndpointFactory) locates(ctx context.Context, locator *ResourceMethod, r *Resource) (bool, error) {
	if locator.Kind() != KindSubresourceLocator {
		return false, nil
	}
	parent := locator.ParentResource()
	if parent == nil || !parent.IsRootResource() {
		f.m.logger.Debug("skipping subresource locator outside of a root resource",
			zap.Stringer("locator", locator.Handle()))
		return false, nil
	}
	ok, err := f.m.analyzer.IsSubtype(ctx, r.Handle().Type, locator.ReturnType())
	if err != nil {
		return false, fmt.Errorf("failed to match locator %s: %w", locator.Handle(), err)
	}
	return ok, nil
}

// Refresh recomputes e from the current elements. It returns nil when the
// endpoint can no longer be derived.
func (f *EndpointFactory) Refresh(ctx context.Context, e *Endpoint) (*Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chain := make([]*ResourceMethod, 0, len(e.Methods))
	for _, h := range e.Methods {
		rm := f.m.FindResourceMethod(h)
		if rm == nil {
			return nil, nil
		}
		chain = append(chain, rm)
	}
	switch len(chain) {
	case 1:
		r := chain[0].ParentResource()
		if r == nil || !r.IsRootResource() || !isEndpointMethod(chain[0]) {
			return nil, nil
		}
	case 2:
		r := chain[1].ParentResource()
		if r == nil || !isEndpointMethod(chain[1]) {
			return nil, nil
		}
		ok, err := f.locates(ctx, chain[0], r)
		if err != nil || !ok {
			return nil, err
		}
	default:
		return nil, nil
	}
	return f.build(chain), nil
}

func isEndpointMethod(rm *ResourceMethod) bool {
	k := rm.Kind()
	return k == KindResourceMethod || k == KindSubresourceMethod
}

// build computes the endpoint of a chain of methods, the last of which
// carries the HTTP method.
func (f *EndpointFactory) build(chain []*ResourceMethod) *Endpoint {
	last := chain[len(chain)-1]
	hm := last.HTTPMethod()
	root := chain[0].ParentResource()
	if hm == nil || root == nil {
		return nil
	}
	e := &Endpoint{Verb: hm.Verb(), HTTPMethod: hm.Handle()}

	segments := make([]string, 0, len(chain)+2)
	if app := f.m.FindApplication(); app != nil {
		e.Application = app.Handle()
		segments = append(segments, app.ApplicationPath())
	}
	segments = append(segments, root.PathValue())

	params := &paramCollector{m: f.m, seen: make(map[string]bool)}
	for _, rm := range chain {
		r := rm.ParentResource()
		if r == nil {
			return nil
		}
		e.Methods = append(e.Methods, rm.Handle())
		if !slices.Contains(e.Resources, r.Handle()) {
			e.Resources = append(e.Resources, r.Handle())
		}
		segments = append(segments, rm.PathValue())
		for _, re := range r.Elements() {
			params.add(re.Annotations(), re.JavaType(), 0)
		}
		for _, p := range rm.Parameters() {
			params.add(p.Annotations, p.Type, 0)
		}
	}
	e.PathTemplate = JoinPath(segments...)
	e.PathParams, e.QueryParams, e.MatrixParams = params.path, params.query, params.matrix
	e.Aggregators = params.aggregators

	e.Consumes = firstNonEmpty(last.ConsumedMediaTypes(), last.ParentResource().ConsumedMediaTypes())
	e.Produces = firstNonEmpty(last.ProducedMediaTypes(), last.ParentResource().ProducedMediaTypes())
	return e
}

func firstNonEmpty(candidates ...[]string) []string {
	for _, c := range candidates {
		if len(c) > 0 {
			return c
		}
	}
	return []string{source.DefaultMediaType}
}

type paramCollector struct {
	m                   *Metamodel
	seen                map[string]bool
	path, query, matrix []Param
	aggregators         []source.Handle
}

func (c *paramCollector) add(annotations map[string]*source.Annotation, javaType string, depth int) {
	def := ""
	if a := annotations[source.DefaultValue]; a != nil {
		def = a.DefaultValue()
	}
	bind := func(kind string, target *[]Param, name string) {
		if name == "" || c.seen[kind+name] {
			return
		}
		c.seen[kind+name] = true
		*target = append(*target, Param{Name: name, Type: javaType, DefaultValue: def})
	}
	if a := annotations[source.PathParam]; a != nil {
		bind("path:", &c.path, a.DefaultValue())
	}
	if a := annotations[source.QueryParam]; a != nil {
		bind("query:", &c.query, a.DefaultValue())
	}
	if a := annotations[source.MatrixParam]; a != nil {
		bind("matrix:", &c.matrix, a.DefaultValue())
	}
	if _, ok := annotations[source.BeanParam]; ok && depth < maxBeanParamDepth {
		pa := c.m.FindParameterAggregator(source.TypeHandle(javaType))
		if pa == nil || slices.Contains(c.aggregators, pa.Handle()) {
			return
		}
		c.aggregators = append(c.aggregators, pa.Handle())
		for _, el := range pa.Elements() {
			c.add(el.Annotations(), el.JavaType(), depth+1)
		}
	}
}

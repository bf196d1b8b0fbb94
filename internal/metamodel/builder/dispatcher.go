// Package builder keeps the endpoints of a metamodel in sync with the
// changes of its elements.
package builder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/metamodel/search"
	"github.com/conduit-lang/wsmodel/internal/source"
)

type handler func(ctx context.Context, tx *domain.Tx, d domain.Delta) error

// route holds the handlers of one category for ADDED, CHANGED and REMOVED.
type route struct {
	added, changed, removed handler
}

var routes = [...]route{
	domain.CategoryApplication:                 {processApplication, processApplication, processRemovedApplication},
	domain.CategoryHTTPMethod:                  {trace, processChangedHTTPMethod, processRemovedHTTPMethod},
	domain.CategoryProvider:                    {trace, trace, trace},
	domain.CategoryNameBinding:                 {trace, trace, trace},
	domain.CategoryParamConverterProvider:      {trace, trace, trace},
	domain.CategoryResource:                    {trace, processChangedResource, trace},
	domain.CategoryResourceMethod:              {processAddedResourceMethod, processChangedResourceMethod, processRemovedResourceMethod},
	domain.CategoryResourceField:               {processAddedResourceElement, processChangedResourceElement, processRemovedResourceElement},
	domain.CategoryResourceProperty:            {processAddedResourceElement, processChangedResourceElement, processRemovedResourceElement},
	domain.CategoryParameterAggregator:         {trace, trace, trace},
	domain.CategoryParameterAggregatorField:    {processAggregatorElement, processAggregatorElement, processAggregatorElement},
	domain.CategoryParameterAggregatorProperty: {processAggregatorElement, processAggregatorElement, processAggregatorElement},
}

// Every category has a route and every route a category.
var (
	_ [len(routes) - int(domain.NumCategories)]struct{}
	_ [int(domain.NumCategories) - len(routes)]struct{}
)

func init() {
	for c, r := range routes {
		if r.added == nil || r.changed == nil || r.removed == nil {
			panic(fmt.Sprintf("builder: incomplete route for %s", domain.Category(c)))
		}
	}
}

// ProcessEvent applies one delta to the endpoints of m in its own
// transaction. On error the endpoint set is left untouched.
func ProcessEvent(ctx context.Context, m *domain.Metamodel, d domain.Delta) error {
	return m.Update(ctx, func(tx *domain.Tx) error {
		return Dispatch(ctx, tx, d)
	})
}

// ProcessEvents applies the deltas in order within a single transaction.
func ProcessEvents(ctx context.Context, m *domain.Metamodel, deltas []domain.Delta) error {
	return m.Update(ctx, func(tx *domain.Tx) error {
		for _, d := range deltas {
			if err := Dispatch(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
}

// Dispatch routes a delta to its handler within tx.
func Dispatch(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.Element == nil {
		return fmt.Errorf("delta %s has no element", d.Kind)
	}
	c := d.Element.Kind().Category()
	if c < 0 || c >= domain.NumCategories {
		return fmt.Errorf("element %s has an unknown category", d.Element.Handle())
	}
	r := routes[c]
	var h handler
	switch d.Kind {
	case domain.Added:
		h = r.added
	case domain.Changed:
		h = r.changed
	case domain.Removed:
		h = r.removed
	default:
		return fmt.Errorf("unknown delta kind %d for %s", d.Kind, d.Element.Handle())
	}
	tx.Metamodel().Logger().Debug("processing delta", zap.Stringer("delta", d))
	return h(ctx, tx, d)
}

func trace(_ context.Context, tx *domain.Tx, d domain.Delta) error {
	tx.Metamodel().Logger().Debug("nothing to do", zap.Stringer("delta", d))
	return nil
}

func orphan(tx *domain.Tx, d domain.Delta) error {
	tx.Metamodel().Logger().Warn("found an orphan element", zap.Stringer("delta", d))
	return nil
}

// detached reports whether the element of d is not registered in the
// metamodel of tx, such as a transient value or an element removed after
// the delta was produced.
func detached(tx *domain.Tx, d domain.Delta) bool {
	if d.Element.Metamodel() == tx.Metamodel() {
		return false
	}
	tx.Metamodel().Logger().Debug("skipping element outside of the metamodel", zap.Stringer("delta", d))
	return true
}

func unexpected(d domain.Delta) error {
	return fmt.Errorf("unexpected element %T for category %s", d.Element, d.Element.Kind().Category())
}

func processApplication(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	app, ok := d.Element.(*domain.Application)
	if !ok {
		return unexpected(d)
	}
	if tx.Metamodel().FindApplication() != app {
		return trace(ctx, tx, d)
	}
	return tx.RefreshEndpoints(ctx, tx.Endpoints(), d.Flags)
}

// processRemovedApplication rebinds the endpoints of a removed application
// to the application that replaces it, if any.
func processRemovedApplication(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	return tx.RefreshEndpoints(ctx, tx.FindEndpoints(d.Element.Handle()), d.Flags)
}

func processChangedHTTPMethod(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	return tx.RefreshEndpoints(ctx, tx.FindEndpoints(d.Element.Handle()), d.Flags)
}

func processRemovedHTTPMethod(_ context.Context, tx *domain.Tx, d domain.Delta) error {
	tx.RemoveEndpoints(d.Element.Handle())
	return nil
}

// processChangedResource cascades a resource change to its methods. A
// change of resource kind rebuilds their endpoints from scratch.
func processChangedResource(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	r, ok := d.Element.(*domain.Resource)
	if !ok {
		return unexpected(d)
	}
	if detached(tx, d) {
		return nil
	}
	for _, rm := range r.Methods() {
		if !d.Flags.Has(flags.ElementKind) {
			if err := processChangedResourceMethod(ctx, tx, domain.NewDelta(rm, domain.Changed, d.Flags)); err != nil {
				return err
			}
			continue
		}
		if err := rebuild(ctx, tx, rm); err != nil {
			return err
		}
	}
	return nil
}

func rebuild(ctx context.Context, tx *domain.Tx, rm *domain.ResourceMethod) error {
	if err := processRemovedResourceMethod(ctx, tx, domain.NewDelta(rm, domain.Removed, flags.None)); err != nil {
		return err
	}
	return processAddedResourceMethod(ctx, tx, domain.NewDelta(rm, domain.Added, flags.None))
}

func processAddedResourceMethod(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	rm, ok := d.Element.(*domain.ResourceMethod)
	if !ok {
		return unexpected(d)
	}
	r := rm.ParentResource()
	if r == nil {
		return orphan(tx, d)
	}
	if detached(tx, d) {
		return nil
	}
	factory := tx.Factory()
	var (
		endpoints []*domain.Endpoint
		err       error
	)
	switch rm.Kind() {
	case domain.KindResourceMethod, domain.KindSubresourceMethod:
		endpoints, err = factory.CreateEndpointsFromSubresourceMethod(ctx, rm)
		if err == nil && r.IsRootResource() {
			// a root resource is still located by the locators returning its type
			var direct []*domain.Endpoint
			direct, err = factory.CreateEndpoints(ctx, rm)
			endpoints = append(direct, endpoints...)
		}
	case domain.KindSubresourceLocator:
		if !r.IsRootResource() {
			tx.Metamodel().Logger().Debug("skipping subresource locator of a subresource",
				zap.Stringer("locator", rm.Handle()))
			return nil
		}
		endpoints, err = factory.CreateEndpointsFromSubresourceLocator(ctx, rm)
	default:
		return trace(ctx, tx, d)
	}
	if err != nil {
		return err
	}
	for _, e := range endpoints {
		tx.AddEndpoint(e)
	}
	return nil
}

func processChangedResourceMethod(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	rm, ok := d.Element.(*domain.ResourceMethod)
	if !ok {
		return unexpected(d)
	}
	if detached(tx, d) {
		return nil
	}
	if d.Flags.Has(flags.ElementKind) ||
		(rm.Kind() == domain.KindSubresourceLocator && d.Flags.Has(flags.MethodReturnType)) {
		return rebuild(ctx, tx, rm)
	}
	return tx.RefreshEndpoints(ctx, tx.FindEndpoints(rm.Handle()), d.Flags)
}

func processRemovedResourceMethod(_ context.Context, tx *domain.Tx, d domain.Delta) error {
	tx.RemoveEndpoints(d.Element.Handle())
	return nil
}

func processAddedResourceElement(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	el, ok := d.Element.(domain.ResourceElement)
	if !ok {
		return unexpected(d)
	}
	r := el.ParentResource()
	if r == nil {
		return orphan(tx, d)
	}
	f := ComputeAnnotationChangeFlags(el)
	if !f.HasValue() {
		return trace(ctx, tx, d)
	}
	return tx.RefreshEndpoints(ctx, tx.FindEndpoints(r.Handle()), f)
}

func processChangedResourceElement(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	el, ok := d.Element.(domain.ResourceElement)
	if !ok {
		return unexpected(d)
	}
	r := el.ParentResource()
	if r == nil {
		return orphan(tx, d)
	}
	return tx.RefreshEndpoints(ctx, tx.FindEndpoints(r.Handle()), d.Flags)
}

func processRemovedResourceElement(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	el, ok := d.Element.(domain.ResourceElement)
	if !ok {
		return unexpected(d)
	}
	if !d.Flags.HasValue() {
		return trace(ctx, tx, d)
	}
	r := el.ParentResource()
	if r == nil {
		return orphan(tx, d)
	}
	return tx.RefreshEndpoints(ctx, tx.FindEndpoints(r.Handle()), d.Flags)
}

// processAggregatorElement fans a change of an aggregator member out to the
// endpoints of every type related to the aggregator type.
func processAggregatorElement(ctx context.Context, tx *domain.Tx, d domain.Delta) error {
	el, ok := d.Element.(domain.AggregatorElement)
	if !ok {
		return unexpected(d)
	}
	pa := el.ParentAggregator()
	if pa == nil {
		return orphan(tx, d)
	}
	if d.Kind != domain.Changed && !d.Flags.HasValue() {
		return trace(ctx, tx, d)
	}
	endpoints, err := relatedEndpoints(ctx, tx, pa)
	if err != nil {
		return err
	}
	return tx.RefreshEndpoints(ctx, endpoints, d.Flags)
}

// relatedEndpoints returns the endpoints going through any type related to
// the aggregator. An endpoint reaching it through a nested @BeanParam goes
// through the enclosing aggregator, which declares a field of its type.
func relatedEndpoints(ctx context.Context, tx *domain.Tx, pa *domain.ParameterAggregator) ([]*domain.Endpoint, error) {
	m := tx.Metamodel()
	related, err := search.FindRelatedTypes(ctx, m.Analyzer(), pa.Handle(), m.KnownTypes())
	if err != nil {
		return nil, err
	}
	seen := make(map[*domain.Endpoint]bool)
	var endpoints []*domain.Endpoint
	for _, t := range related {
		for _, e := range tx.FindEndpointsByType(t) {
			if !seen[e] {
				seen[e] = true
				endpoints = append(endpoints, e)
			}
		}
	}
	m.Logger().Debug("cascading aggregator change",
		zap.Stringer("aggregator", pa.Handle()),
		zap.Int("relatedTypes", len(related)),
		zap.Int("endpoints", len(endpoints)))
	return endpoints, nil
}

// ComputeAnnotationChangeFlags returns the facets of the parameter
// annotations carried by e.
func ComputeAnnotationChangeFlags(e domain.Element) flags.Flags {
	var f flags.Flags
	for name, facet := range map[string]flags.Flags{
		source.QueryParam:  flags.QueryParamAnnotation,
		source.MatrixParam: flags.MatrixParamAnnotation,
		source.PathParam:   flags.PathParamAnnotation,
		source.BeanParam:   flags.BeanParamAnnotation,
	} {
		if e.Annotation(name) != nil {
			f |= facet
		}
	}
	return f
}

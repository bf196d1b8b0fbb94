package domain

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/source"
)

// ErrClosed is returned when writing to a closed metamodel.
var ErrClosed = errors.New("metamodel is closed")

// Metamodel is the registry of elements and the owner of the endpoint set.
// It is an explicit context object: several can coexist, and each one is
// torn down with Close.
type Metamodel struct {
	id       uuid.UUID
	analyzer source.Analyzer
	logger   *zap.Logger
	factory  *EndpointFactory

	// mu guards elements, endpoints, listeners and closed.
	mu        sync.RWMutex
	elements  map[source.Handle][]Element
	endpoints *endpointIndex
	listeners []EndpointListener
	closed    bool

	// writeMu serializes transactions.
	writeMu sync.Mutex
}

// Option configures a Metamodel.
type Option func(*Metamodel)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Metamodel) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithListener registers an endpoint listener.
func WithListener(l EndpointListener) Option {
	return func(m *Metamodel) {
		m.listeners = append(m.listeners, l)
	}
}

// NewMetamodel creates an empty metamodel backed by the given analyzer,
// with the standard HTTP methods already registered.
func NewMetamodel(a source.Analyzer, opts ...Option) *Metamodel {
	m := &Metamodel{
		id:        uuid.New(),
		analyzer:  a,
		logger:    zap.NewNop(),
		elements:  make(map[source.Handle][]Element),
		endpoints: newEndpointIndex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("metamodel").With(zap.String("metamodel", m.id.String()))
	m.factory = &EndpointFactory{m: m}

	names := make([]string, 0, len(builtinVerbs))
	for name := range builtinVerbs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		newBuiltinHTTPMethod(name, builtinVerbs[name]).Join(m)
	}
	return m
}

// ID returns the unique identifier of the metamodel.
func (m *Metamodel) ID() uuid.UUID {
	return m.id
}

// Analyzer returns the source analyzer.
func (m *Metamodel) Analyzer() source.Analyzer {
	return m.analyzer
}

// Logger returns the metamodel logger.
func (m *Metamodel) Logger() *zap.Logger {
	return m.logger
}

// Factory returns the endpoint factory.
func (m *Metamodel) Factory() *EndpointFactory {
	return m.factory
}

// AddListener registers an endpoint listener.
func (m *Metamodel) AddListener(l EndpointListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Close releases listeners and rejects further transactions.
func (m *Metamodel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.listeners = nil
	m.logger.Debug("metamodel closed")
	return nil
}

// Update runs fn in a transaction. When fn returns nil the endpoint set it
// produced is published and listeners are notified; otherwise it is
// discarded and the previous set stays in place.
func (m *Metamodel) Update(ctx context.Context, fn func(tx *Tx) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	closed, index := m.closed, m.endpoints
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	tx := &Tx{m: m, index: index.clone(), removed: make(map[EndpointKey]*Endpoint)}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	m.endpoints = tx.index
	listeners := append([]EndpointListener(nil), m.listeners...)
	m.mu.Unlock()

	events := coalesce(tx.events)
	if len(events) == 0 {
		return nil
	}
	for _, l := range listeners {
		l.EndpointsChanged(ctx, events)
	}
	return nil
}

func (m *Metamodel) snapshot() *endpointIndex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.endpoints
}

// Endpoints returns a snapshot of every endpoint, sorted by path and verb.
func (m *Metamodel) Endpoints() []*Endpoint {
	return m.snapshot().all()
}

// Endpoint returns the endpoint with the given ID, or nil.
func (m *Metamodel) Endpoint(id uuid.UUID) *Endpoint {
	return m.snapshot().byID[id]
}

// FindEndpoints returns the endpoints depending on the element h.
func (m *Metamodel) FindEndpoints(h source.Handle) []*Endpoint {
	return m.snapshot().referencing(h)
}

// FindEndpointsByType returns the endpoints going through a resource or
// parameter aggregator of the given type.
func (m *Metamodel) FindEndpointsByType(h source.Handle) []*Endpoint {
	return m.snapshot().referencing(h.DeclaringType())
}

func (m *Metamodel) register(e Element) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := e.Handle()
	for _, existing := range m.elements[h] {
		if existing == e {
			return
		}
	}
	m.elements[h] = append(m.elements[h], e)
}

func (m *Metamodel) unregister(e Element) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := e.Handle()
	list := m.elements[h]
	for i, existing := range list {
		if existing == e {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.elements, h)
	} else {
		m.elements[h] = list
	}
}

// FindElements returns the elements registered under h.
func (m *Metamodel) FindElements(h source.Handle) []Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Element(nil), m.elements[h]...)
}

// FindElement returns the element registered under h in the given
// category, or nil.
func (m *Metamodel) FindElement(h source.Handle, c Category) Element {
	for _, e := range m.FindElements(h) {
		if e.Kind().Category() == c {
			return e
		}
	}
	return nil
}

// Elements returns every registered element ordered by kind then handle.
func (m *Metamodel) Elements() []Element {
	m.mu.RLock()
	var result []Element
	for _, list := range m.elements {
		result = append(result, list...)
	}
	m.mu.RUnlock()
	sortElements(result)
	return result
}

func sortElements(elements []Element) {
	sort.SliceStable(elements, func(i, j int) bool {
		ki, kj := elements[i].Kind(), elements[j].Kind()
		if ki != kj {
			return ki.Less(kj)
		}
		return elements[i].Handle().String() < elements[j].Handle().String()
	})
}

func find[T Element](m *Metamodel, h source.Handle) T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.elements[h] {
		if t, ok := e.(T); ok {
			return t
		}
	}
	var zero T
	return zero
}

func all[T Element](m *Metamodel) []T {
	m.mu.RLock()
	var result []T
	for _, list := range m.elements {
		for _, e := range list {
			if t, ok := e.(T); ok {
				result = append(result, t)
			}
		}
	}
	m.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Handle().String() < result[j].Handle().String()
	})
	return result
}

// Applications returns the web.xml applications then the java ones, each
// group ordered by handle.
func (m *Metamodel) Applications() []*Application {
	apps := all[*Application](m)
	sort.SliceStable(apps, func(i, j int) bool {
		return apps[i].IsWebxml() && !apps[j].IsWebxml()
	})
	return apps
}

// FindApplication returns the application endpoints are bound to: a web.xml
// application when one is declared, otherwise the first java application.
func (m *Metamodel) FindApplication() *Application {
	if apps := m.Applications(); len(apps) > 0 {
		return apps[0]
	}
	return nil
}

// FindJavaApplication returns the java application declared by type h.
func (m *Metamodel) FindJavaApplication(h source.Handle) *Application {
	app := find[*Application](m, h)
	if app == nil || app.IsWebxml() {
		return nil
	}
	return app
}

// FindWebxmlApplication returns the web.xml application declared for the
// given class.
func (m *Metamodel) FindWebxmlApplication(className string) *Application {
	return find[*Application](m, source.DescriptorHandle(WebxmlDescriptor, className))
}

// HTTPMethods returns every HTTP method.
func (m *Metamodel) HTTPMethods() []*HTTPMethod {
	return all[*HTTPMethod](m)
}

// FindHTTPMethod returns the HTTP method declared by annotation type h.
func (m *Metamodel) FindHTTPMethod(h source.Handle) *HTTPMethod {
	return find[*HTTPMethod](m, h)
}

// Resources returns every resource.
func (m *Metamodel) Resources() []*Resource {
	return all[*Resource](m)
}

// FindResource returns the resource declared by type h.
func (m *Metamodel) FindResource(h source.Handle) *Resource {
	return find[*Resource](m, h)
}

// FindResourceMethod returns the resource method with handle h.
func (m *Metamodel) FindResourceMethod(h source.Handle) *ResourceMethod {
	return find[*ResourceMethod](m, h)
}

// FindSubresourceLocators returns every subresource locator.
func (m *Metamodel) FindSubresourceLocators() []*ResourceMethod {
	var result []*ResourceMethod
	for _, rm := range all[*ResourceMethod](m) {
		if rm.Kind() == KindSubresourceLocator {
			result = append(result, rm)
		}
	}
	return result
}

// ParameterAggregators returns every parameter aggregator.
func (m *Metamodel) ParameterAggregators() []*ParameterAggregator {
	return all[*ParameterAggregator](m)
}

// FindParameterAggregator returns the aggregator declared by type h.
func (m *Metamodel) FindParameterAggregator(h source.Handle) *ParameterAggregator {
	return find[*ParameterAggregator](m, h)
}

// KnownTypes returns the distinct types declaring a registered element,
// sorted by name. Built-in HTTP methods are not included.
func (m *Metamodel) KnownTypes() []source.Handle {
	m.mu.RLock()
	seen := make(map[string]bool)
	for h, list := range m.elements {
		if h.Element == source.DescriptorElement {
			continue
		}
		for _, e := range list {
			if hm, ok := e.(*HTTPMethod); ok && hm.IsBuiltin() {
				continue
			}
			seen[h.Type] = true
		}
	}
	m.mu.RUnlock()
	result := make([]source.Handle, 0, len(seen))
	for name := range seen {
		result = append(result, source.TypeHandle(name))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

func endpointField(e *Endpoint) zap.Field {
	return zap.String("endpoint", e.DisplayTemplate())
}

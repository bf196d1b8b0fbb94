package domain

import (
	"context"

	"github.com/google/uuid"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// EndpointEventKind tells what happened to an endpoint.
type EndpointEventKind int

const (
	EndpointAdded EndpointEventKind = iota + 1
	EndpointChanged
	EndpointRemoved
)

func (k EndpointEventKind) String() string {
	switch k {
	case EndpointAdded:
		return "added"
	case EndpointChanged:
		return "changed"
	case EndpointRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind with String.
func (k EndpointEventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// EndpointEvent is delivered to listeners after a transaction commits.
type EndpointEvent struct {
	Kind     EndpointEventKind `json:"kind"`
	Endpoint *Endpoint         `json:"endpoint"`
	Flags    flags.Flags       `json:"flags"`
}

// EndpointListener receives the endpoint changes of every committed
// transaction. Listeners run on the committing goroutine and must not
// start a new transaction on the same metamodel.
type EndpointListener interface {
	EndpointsChanged(ctx context.Context, events []EndpointEvent)
}

// EndpointListenerFunc adapts a function to EndpointListener.
type EndpointListenerFunc func(ctx context.Context, events []EndpointEvent)

func (f EndpointListenerFunc) EndpointsChanged(ctx context.Context, events []EndpointEvent) {
	f(ctx, events)
}

// endpointIndex holds the endpoints by ID, by key and by referenced
// element. Once published it is never mutated.
type endpointIndex struct {
	byID  map[uuid.UUID]*Endpoint
	byKey map[EndpointKey]uuid.UUID
	byRef map[source.Handle]map[uuid.UUID]struct{}
}

func newEndpointIndex() *endpointIndex {
	return &endpointIndex{
		byID:  make(map[uuid.UUID]*Endpoint),
		byKey: make(map[EndpointKey]uuid.UUID),
		byRef: make(map[source.Handle]map[uuid.UUID]struct{}),
	}
}

func (ix *endpointIndex) clone() *endpointIndex {
	c := &endpointIndex{
		byID:  make(map[uuid.UUID]*Endpoint, len(ix.byID)),
		byKey: make(map[EndpointKey]uuid.UUID, len(ix.byKey)),
		byRef: make(map[source.Handle]map[uuid.UUID]struct{}, len(ix.byRef)),
	}
	for id, e := range ix.byID {
		c.byID[id] = e
	}
	for k, id := range ix.byKey {
		c.byKey[k] = id
	}
	for h, ids := range ix.byRef {
		set := make(map[uuid.UUID]struct{}, len(ids))
		for id := range ids {
			set[id] = struct{}{}
		}
		c.byRef[h] = set
	}
	return c
}

func (ix *endpointIndex) put(e *Endpoint) {
	ix.delete(e.ID)
	ix.byID[e.ID] = e
	ix.byKey[e.Key()] = e.ID
	for _, h := range e.References() {
		set, ok := ix.byRef[h]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			ix.byRef[h] = set
		}
		set[e.ID] = struct{}{}
	}
}

func (ix *endpointIndex) delete(id uuid.UUID) *Endpoint {
	e, ok := ix.byID[id]
	if !ok {
		return nil
	}
	delete(ix.byID, id)
	if ix.byKey[e.Key()] == id {
		delete(ix.byKey, e.Key())
	}
	for _, h := range e.References() {
		if set, ok := ix.byRef[h]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(ix.byRef, h)
			}
		}
	}
	return e
}

func (ix *endpointIndex) all() []*Endpoint {
	result := make([]*Endpoint, 0, len(ix.byID))
	for _, e := range ix.byID {
		result = append(result, e)
	}
	SortEndpoints(result)
	return result
}

func (ix *endpointIndex) referencing(h source.Handle) []*Endpoint {
	ids := ix.byRef[h]
	result := make([]*Endpoint, 0, len(ids))
	for id := range ids {
		result = append(result, ix.byID[id])
	}
	SortEndpoints(result)
	return result
}

// Tx is a write transaction on the endpoint set. It works on a private copy
// of the index that replaces the published one on commit, so readers never
// observe a partially updated set.
type Tx struct {
	m       *Metamodel
	index   *endpointIndex
	removed map[EndpointKey]*Endpoint
	events  []EndpointEvent
}

// Metamodel returns the metamodel the transaction writes to.
func (tx *Tx) Metamodel() *Metamodel {
	return tx.m
}

// Factory returns the endpoint factory of the metamodel.
func (tx *Tx) Factory() *EndpointFactory {
	return tx.m.factory
}

// Endpoints returns every endpoint as seen by the transaction.
func (tx *Tx) Endpoints() []*Endpoint {
	return tx.index.all()
}

// Endpoint returns the endpoint with the given ID, or nil.
func (tx *Tx) Endpoint(id uuid.UUID) *Endpoint {
	return tx.index.byID[id]
}

// FindEndpoints returns the endpoints depending on the element h: an
// application, an HTTP method, a method of the chain or a resource.
func (tx *Tx) FindEndpoints(h source.Handle) []*Endpoint {
	return tx.index.referencing(h)
}

// FindEndpointsByType returns the endpoints going through a resource or
// parameter aggregator of the given type.
func (tx *Tx) FindEndpointsByType(h source.Handle) []*Endpoint {
	return tx.index.referencing(h.DeclaringType())
}

// AddEndpoint adds e unless an endpoint with the same key exists. An
// endpoint with the same key removed earlier in the transaction lends its
// ID, so a rebuild shows up as a change.
func (tx *Tx) AddEndpoint(e *Endpoint) bool {
	key := e.Key()
	if _, exists := tx.index.byKey[key]; exists {
		return false
	}
	if prev, ok := tx.removed[key]; ok {
		e.ID = prev.ID
		e.Revision = prev.Revision + 1
		delete(tx.removed, key)
	} else if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	tx.index.put(e)
	tx.events = append(tx.events, EndpointEvent{Kind: EndpointAdded, Endpoint: e})
	tx.m.logger.Debug("endpoint added", endpointField(e))
	return true
}

// RemoveEndpoint removes the endpoint with the given ID.
func (tx *Tx) RemoveEndpoint(id uuid.UUID) bool {
	e := tx.index.delete(id)
	if e == nil {
		return false
	}
	tx.removed[e.Key()] = e
	tx.events = append(tx.events, EndpointEvent{Kind: EndpointRemoved, Endpoint: e})
	tx.m.logger.Debug("endpoint removed", endpointField(e))
	return true
}

// RemoveEndpoints removes every endpoint depending on h and returns how
// many were removed.
func (tx *Tx) RemoveEndpoints(h source.Handle) int {
	count := 0
	for _, e := range tx.index.referencing(h) {
		if tx.RemoveEndpoint(e.ID) {
			count++
		}
	}
	return count
}

// RefreshEndpoint recomputes e from the current state of the elements it
// depends on. An endpoint that can no longer be derived is removed.
func (tx *Tx) RefreshEndpoint(ctx context.Context, e *Endpoint, f flags.Flags) error {
	current, ok := tx.index.byID[e.ID]
	if !ok {
		return nil
	}
	next, err := tx.m.factory.Refresh(ctx, current)
	if err != nil {
		return err
	}
	if next == nil {
		tx.RemoveEndpoint(current.ID)
		return nil
	}
	if next.sameContent(current) {
		return nil
	}
	if owner, taken := tx.index.byKey[next.Key()]; taken && owner != current.ID {
		// another endpoint already covers the refreshed key
		tx.RemoveEndpoint(current.ID)
		return nil
	}
	next.ID = current.ID
	next.Revision = current.Revision + 1
	tx.index.put(next)
	tx.events = append(tx.events, EndpointEvent{Kind: EndpointChanged, Endpoint: next, Flags: f})
	tx.m.logger.Debug("endpoint refreshed", endpointField(next))
	return nil
}

// RefreshEndpoints refreshes every given endpoint.
func (tx *Tx) RefreshEndpoints(ctx context.Context, endpoints []*Endpoint, f flags.Flags) error {
	for _, e := range endpoints {
		if err := tx.RefreshEndpoint(ctx, e, f); err != nil {
			return err
		}
	}
	return nil
}

// coalesce folds the events of a transaction into one event per endpoint.
func coalesce(events []EndpointEvent) []EndpointEvent {
	type entry struct {
		first EndpointEventKind
		last  EndpointEvent
		flags flags.Flags
	}
	var order []uuid.UUID
	byID := make(map[uuid.UUID]*entry)
	for _, ev := range events {
		en, ok := byID[ev.Endpoint.ID]
		if !ok {
			en = &entry{first: ev.Kind}
			byID[ev.Endpoint.ID] = en
			order = append(order, ev.Endpoint.ID)
		}
		en.last = ev
		en.flags |= ev.Flags
	}
	result := make([]EndpointEvent, 0, len(order))
	for _, id := range order {
		en := byID[id]
		kind := en.last.Kind
		switch {
		case en.first == EndpointAdded && kind == EndpointRemoved:
			continue
		case en.first == EndpointAdded:
			kind = EndpointAdded
		case kind == EndpointAdded:
			kind = EndpointChanged
		}
		result = append(result, EndpointEvent{Kind: kind, Endpoint: en.last.Endpoint, Flags: en.flags})
	}
	return result
}

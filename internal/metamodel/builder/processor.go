package builder

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// Processor turns type-level source changes into element updates and
// dispatches the resulting deltas. Each call runs in a single transaction:
// when anything fails, element mutations are rolled back and the endpoint
// set is left untouched.
type Processor struct {
	m      *domain.Metamodel
	logger *zap.Logger
}

// NewProcessor creates a processor writing to m.
func NewProcessor(m *domain.Metamodel) *Processor {
	return &Processor{m: m, logger: m.Logger().Named("processor")}
}

// Metamodel returns the metamodel the processor writes to.
func (p *Processor) Metamodel() *domain.Metamodel {
	return p.m
}

// Apply processes the given changes. The analyzer of the metamodel must
// already describe the program after the changes. It returns the deltas
// that were dispatched, in dispatch order.
func (p *Processor) Apply(ctx context.Context, changes []source.Change) ([]domain.Delta, error) {
	var dispatched []domain.Delta
	err := p.m.Update(ctx, func(tx *domain.Tx) error {
		cs, err := p.reconcile(ctx, changes)
		if err != nil {
			cs.Rollback()
			return err
		}
		deltas := sortDeltas(cs.Deltas)
		for _, d := range deltas {
			if err := Dispatch(ctx, tx, d); err != nil {
				cs.Rollback()
				return fmt.Errorf("failed to process %s: %w", d, err)
			}
		}
		dispatched = deltas
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("changes applied", zap.Int("changes", len(changes)), zap.Int("deltas", len(dispatched)))
	return dispatched, nil
}

// Load installs next as the program of ws, which must be the analyzer of
// the metamodel, and applies what changed since the previous program. On
// failure ws is restored.
func (p *Processor) Load(ctx context.Context, ws *source.Workspace, next *source.Program) ([]source.Change, []domain.Delta, error) {
	prev := ws.Program()
	changes := source.Diff(prev, next)
	if len(changes) == 0 {
		return nil, nil, nil
	}
	ws.Swap(next)
	deltas, err := p.Apply(ctx, changes)
	if err != nil {
		ws.Swap(prev)
		return nil, nil, err
	}
	return changes, deltas, nil
}

// reconcile updates the elements of every changed type. Applications and
// HTTP methods come first so that resource methods annotated with a new
// HTTP method are recognized; when the set of HTTP methods changes every
// type of the program is reconsidered.
func (p *Processor) reconcile(ctx context.Context, changes []source.Change) (domain.ChangeSet, error) {
	var cs domain.ChangeSet
	a := p.m.Analyzer()
	for _, c := range changes {
		if c.Kind == source.Removed {
			cs.Merge(reconcile(p.m, p.m.FindJavaApplication(c.Handle), nil))
			if hm := p.m.FindHTTPMethod(c.Handle); hm != nil {
				cs.Merge(reconcile(p.m, hm, nil))
			}
			continue
		}
		app, err := domain.BuildApplication(ctx, a, c.Handle)
		if err != nil {
			return cs, err
		}
		cs.Merge(reconcile(p.m, p.m.FindJavaApplication(c.Handle), app))
		hm, err := domain.BuildHTTPMethod(ctx, a, c.Handle)
		if err != nil {
			return cs, err
		}
		cs.Merge(reconcile(p.m, p.m.FindHTTPMethod(c.Handle), hm))
	}

	types := changes
	if httpMethodsChanged(cs.Deltas) {
		all, err := a.Types(ctx)
		if err != nil {
			return cs, err
		}
		types = widen(changes, all)
	}
	for _, c := range types {
		if c.Kind == source.Removed {
			cs.Merge(reconcile(p.m, p.m.FindResource(c.Handle), nil))
			cs.Merge(reconcile(p.m, p.m.FindParameterAggregator(c.Handle), nil))
			continue
		}
		r, err := domain.BuildResource(ctx, a, c.Handle, p.m)
		if err != nil {
			return cs, err
		}
		var pa *domain.ParameterAggregator
		if r == nil {
			if pa, err = domain.BuildParameterAggregator(ctx, a, c.Handle, p.m); err != nil {
				return cs, err
			}
		}
		cs.Merge(reconcile(p.m, p.m.FindResource(c.Handle), r))
		cs.Merge(reconcile(p.m, p.m.FindParameterAggregator(c.Handle), pa))
	}
	return cs, nil
}

// ApplyWebxmlApplications reconciles the applications declared in web.xml
// with the given class to path declarations.
func (p *Processor) ApplyWebxmlApplications(ctx context.Context, declared map[string]string) ([]domain.Delta, error) {
	var dispatched []domain.Delta
	err := p.m.Update(ctx, func(tx *domain.Tx) error {
		var cs domain.ChangeSet
		for _, app := range p.m.Applications() {
			if _, ok := declared[app.ClassName()]; app.IsWebxml() && !ok {
				cs.Merge(app.Remove())
			}
		}
		classes := make([]string, 0, len(declared))
		for class := range declared {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		for _, class := range classes {
			transient := domain.NewWebxmlApplication(class, declared[class])
			cs.Merge(reconcile(p.m, p.m.FindWebxmlApplication(class), transient))
		}
		deltas := sortDeltas(cs.Deltas)
		for _, d := range deltas {
			if err := Dispatch(ctx, tx, d); err != nil {
				cs.Rollback()
				return fmt.Errorf("failed to process %s: %w", d, err)
			}
		}
		dispatched = deltas
		return nil
	})
	return dispatched, err
}

type entity[T any] interface {
	comparable
	Join(m *domain.Metamodel) domain.ChangeSet
	Update(transient T) domain.ChangeSet
}

// reconcile updates existing with transient, joins transient when nothing
// exists yet, and removes existing when transient is nil.
func reconcile[T entity[T]](m *domain.Metamodel, existing, transient T) domain.ChangeSet {
	var zero T
	switch {
	case existing != zero:
		return existing.Update(transient)
	case transient != zero:
		return transient.Join(m)
	default:
		return domain.ChangeSet{}
	}
}

func httpMethodsChanged(deltas []domain.Delta) bool {
	for _, d := range deltas {
		if d.Element.Kind() == domain.KindHTTPMethod && d.Kind != domain.Changed {
			return true
		}
	}
	return false
}

// widen adds a CHANGED entry for every program type not already listed.
func widen(changes []source.Change, all []source.Handle) []source.Change {
	listed := make(map[source.Handle]bool, len(changes))
	for _, c := range changes {
		listed[c.Handle] = true
	}
	result := append([]source.Change(nil), changes...)
	for _, h := range all {
		if !listed[h] {
			result = append(result, source.Change{Handle: h, Kind: source.Changed})
		}
	}
	return result
}

// sortDeltas orders deltas by element kind, keeping the emission order
// among elements of the same kind.
func sortDeltas(deltas []domain.Delta) []domain.Delta {
	kinds := make([]domain.Kind, len(deltas))
	for i, d := range deltas {
		kinds[i] = d.Element.Kind()
	}
	idx := make([]int, len(deltas))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return kinds[idx[i]].Less(kinds[idx[j]])
	})
	result := make([]domain.Delta, len(deltas))
	for i, k := range idx {
		result[i] = deltas[k]
	}
	return result
}

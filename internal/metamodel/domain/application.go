package domain

import (
	"context"
	"fmt"
	"slices"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// WebxmlDescriptor is the descriptor name used in the handles of web.xml
// applications.
const WebxmlDescriptor = "web.xml"

// Application is either a java application (a subtype of
// javax.ws.rs.core.Application or a type annotated with @ApplicationPath) or
// an application declared in web.xml. A web.xml declaration for the same
// class overrides the path of the java application.
type Application struct {
	element
	webxml    bool
	className string
	subclass  bool
	// web.xml path for web.xml applications, override for java ones
	path        string
	hasOverride bool
}

var _ Element = (*Application)(nil)

// BuildApplication resolves h and returns a transient java application, or
// nil when the type does not qualify.
func BuildApplication(ctx context.Context, a source.Analyzer, h source.Handle) (*Application, error) {
	info, err := a.Type(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	if info.Annotation {
		return nil, nil
	}
	subclass := slices.Contains(info.Supertypes, source.Application)
	if _, ok := info.Annotations[source.ApplicationPath]; !ok && !subclass {
		return nil, nil
	}
	return &Application{
		element:   newElement(h, info.Annotations, nil),
		className: h.Type,
		subclass:  subclass,
	}, nil
}

// NewWebxmlApplication returns a transient application declared in web.xml.
func NewWebxmlApplication(className, path string) *Application {
	return &Application{
		element:   newElement(source.DescriptorHandle(WebxmlDescriptor, className), nil, nil),
		webxml:    true,
		className: className,
		path:      path,
	}
}

func (app *Application) Kind() Kind {
	if app.webxml {
		return KindApplicationWebxml
	}
	return KindApplicationJava
}

// IsWebxml reports whether the application is declared in web.xml.
func (app *Application) IsWebxml() bool {
	return app.webxml
}

// ClassName returns the application class name.
func (app *Application) ClassName() string {
	return app.className
}

// IsSubclass reports whether a java application extends
// javax.ws.rs.core.Application.
func (app *Application) IsSubclass() bool {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.subclass
}

// ApplicationPath returns the path all endpoints are prefixed with.
func (app *Application) ApplicationPath() string {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.webxml || app.hasOverride {
		return app.path
	}
	if a := app.annotations[source.ApplicationPath]; a != nil {
		return a.DefaultValue()
	}
	return ""
}

// HasPathOverride reports whether a web.xml declaration overrides the path
// of this java application.
func (app *Application) HasPathOverride() bool {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.hasOverride
}

// SetApplicationPathOverride overrides the path of a java application.
func (app *Application) SetApplicationPathOverride(path string) ChangeSet {
	var cs ChangeSet
	app.mu.Lock()
	if app.webxml || (app.hasOverride && app.path == path) {
		app.mu.Unlock()
		return cs
	}
	prevPath, prevOverride := app.path, app.hasOverride
	app.path, app.hasOverride = path, true
	app.mu.Unlock()
	cs.add(app, Changed, flags.ApplicationPathValueOverride)
	cs.onRollback(func() { app.restoreOverride(prevPath, prevOverride) })
	return cs
}

// UnsetApplicationPathOverride drops the path override of a java
// application.
func (app *Application) UnsetApplicationPathOverride() ChangeSet {
	var cs ChangeSet
	app.mu.Lock()
	if app.webxml || !app.hasOverride {
		app.mu.Unlock()
		return cs
	}
	prevPath := app.path
	app.path, app.hasOverride = "", false
	app.mu.Unlock()
	cs.add(app, Changed, flags.ApplicationPathValueOverride)
	cs.onRollback(func() { app.restoreOverride(prevPath, true) })
	return cs
}

func (app *Application) restoreOverride(path string, override bool) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.path, app.hasOverride = path, override
}

// Join registers the application in m.
func (app *Application) Join(m *Metamodel) ChangeSet {
	var cs ChangeSet
	app.setMetamodel(m)
	m.register(app)
	cs.add(app, Added, flags.None)
	cs.onRollback(func() {
		m.unregister(app)
		app.setMetamodel(nil)
	})
	if app.webxml {
		if java := m.FindJavaApplication(source.TypeHandle(app.className)); java != nil {
			cs.Merge(java.SetApplicationPathOverride(app.ApplicationPath()))
		}
	} else if webxml := m.FindWebxmlApplication(app.className); webxml != nil {
		app.mu.Lock()
		app.path, app.hasOverride = webxml.ApplicationPath(), true
		app.mu.Unlock()
	}
	return cs
}

// Update merges a freshly built application into app. A nil transient
// means the type no longer qualifies and the application is removed.
func (app *Application) Update(transient *Application) ChangeSet {
	if transient == nil {
		return app.Remove()
	}
	var cs ChangeSet
	f, undo := app.updateAnnotations(transient.Annotations())
	cs.onRollback(undo)
	app.mu.Lock()
	prevSubclass, prevPath := app.subclass, app.path
	if app.subclass != transient.subclass {
		app.subclass = transient.subclass
		f |= flags.ApplicationHierarchy
	}
	if app.webxml && app.path != transient.path {
		app.path = transient.path
		f |= flags.ApplicationPathAnnotation
	}
	app.mu.Unlock()
	cs.onRollback(func() {
		app.mu.Lock()
		defer app.mu.Unlock()
		app.subclass, app.path = prevSubclass, prevPath
	})
	if f.HasValue() {
		cs.add(app, Changed, f)
	}
	if m := app.Metamodel(); m != nil && app.webxml && f.Has(flags.ApplicationPathAnnotation) {
		if java := m.FindJavaApplication(source.TypeHandle(app.className)); java != nil {
			cs.Merge(java.SetApplicationPathOverride(transient.path))
		}
	}
	return cs
}

// Remove unregisters the application. Removing a web.xml application drops
// the path override of the matching java application.
func (app *Application) Remove() ChangeSet {
	var cs ChangeSet
	m := app.Metamodel()
	if m == nil {
		return cs
	}
	m.unregister(app)
	app.setMetamodel(nil)
	cs.onRollback(func() {
		app.setMetamodel(m)
		m.register(app)
	})
	if app.webxml {
		if java := m.FindJavaApplication(source.TypeHandle(app.className)); java != nil {
			cs.Merge(java.UnsetApplicationPathOverride())
		}
	}
	cs.add(app, Removed, flags.None)
	return cs
}

func (app *Application) String() string {
	return fmt.Sprintf("%s path=%q", app.describe(app.Kind()), app.ApplicationPath())
}

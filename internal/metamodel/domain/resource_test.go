package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
	"github.com/conduit-lang/wsmodel/internal/testing/fixtures"
)

const catalog = "com.acme.Catalog"

func catalogSpec() source.TypeSpec {
	return source.TypeSpec{
		Name: catalog,
		Annotations: []source.AnnotationSpec{
			fixtures.AnnValue(source.Path, "catalog"),
			fixtures.AnnValue(source.Produces, "application/json"),
		},
		Fields: []source.FieldSpec{
			fixtures.Field("tenant", fixtures.String, fixtures.AnnValue(source.PathParam, "tenant")),
			fixtures.Field("cache", "com.acme.Cache"),
		},
		Methods: []source.MethodSpec{
			fixtures.Method("list", "java.util.List", nil, fixtures.Ann(source.GET)),
			fixtures.Method("find", fixtures.Item, []source.ParameterSpec{fixtures.Param("id", fixtures.String, fixtures.AnnValue(source.PathParam, "id"))},
				fixtures.Ann(source.GET), fixtures.AnnValue(source.Path, "{id}")),
			fixtures.Method("items", fixtures.ItemA, nil, fixtures.AnnValue(source.Path, "items")),
			fixtures.Method("setLocale", "void", []source.ParameterSpec{fixtures.Param("locale", fixtures.String)}, fixtures.AnnValue(source.QueryParam, "locale")),
			fixtures.Method("helper", "void", nil),
		},
	}
}

func swapProgram(t *testing.T, w *source.Workspace, types ...source.TypeSpec) {
	t.Helper()
	next, err := w.Program().With(types...)
	require.NoError(t, err)
	w.Swap(next)
}

func TestBuildResource(t *testing.T) {
	m, _ := newModel(t, catalogSpec())
	r, cs := joinResource(t, m, catalog)

	assert.Equal(t, KindRootResource, r.Kind())
	assert.Equal(t, "catalog", r.PathValue())
	assert.Equal(t, []string{"application/json"}, r.ProducedMediaTypes())
	assert.Empty(t, r.ConsumedMediaTypes())

	methods := r.Methods()
	require.Len(t, methods, 3)
	assert.Equal(t, KindResourceMethod, methods[0].Kind())
	assert.Equal(t, KindSubresourceMethod, methods[1].Kind())
	assert.Equal(t, KindSubresourceLocator, methods[2].Kind())
	assert.Equal(t, fixtures.ItemA, methods[2].ReturnType())
	assert.Same(t, r, methods[0].ParentResource())
	assert.Same(t, methods[1], r.Method(source.MethodHandle(catalog, "find")))

	require.Len(t, r.Fields(), 1)
	assert.Equal(t, KindPathParamField, r.Fields()[0].Kind())
	require.Len(t, r.Properties(), 1)
	assert.Equal(t, KindQueryParamProperty, r.Properties()[0].Kind())
	assert.Equal(t, fixtures.String, r.Properties()[0].JavaType())
	assert.Len(t, r.Elements(), 2)

	assert.Equal(t, []string{
		"ADDED com.acme.Catalog",
		"ADDED com.acme.Catalog#list",
		"ADDED com.acme.Catalog#find",
		"ADDED com.acme.Catalog#items",
		"ADDED com.acme.Catalog.tenant",
		"ADDED com.acme.Catalog#setLocale",
	}, kindsOf(cs.Deltas))
	assert.Equal(t, flags.None, cs.Deltas[0].Flags)
	assert.Equal(t, flags.PathParamAnnotation, cs.Deltas[4].Flags)
	assert.Equal(t, flags.QueryParamAnnotation, cs.Deltas[5].Flags)

	assert.Same(t, r, m.FindResource(source.TypeHandle(catalog)))
	assert.NotNil(t, m.FindResourceMethod(source.MethodHandle(catalog, "items")))
	assert.Len(t, m.FindSubresourceLocators(), 1)
	assert.Equal(t, CategoryResourceField, m.FindElement(source.FieldHandle(catalog, "tenant"), CategoryResourceField).Kind().Category())
}

func TestBuildResourceQualification(t *testing.T) {
	ctx := context.Background()
	m, w := newModel(t,
		fixtures.ItemASpec(),
		fixtures.PatchSpec(),
		source.TypeSpec{Name: "com.acme.Plain", Methods: []source.MethodSpec{fixtures.Method("helper", "void", nil)}},
		source.TypeSpec{Name: "com.acme.Patched", Methods: []source.MethodSpec{fixtures.Method("patch", "void", nil, fixtures.Ann(fixtures.PATCH))}},
	)

	sub, err := BuildResource(ctx, w, source.TypeHandle(fixtures.ItemA), m)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, KindSubresource, sub.Kind())
	assert.False(t, sub.IsRootResource())

	for _, name := range []string{"com.acme.Plain", fixtures.PATCH, "com.acme.Patched"} {
		r, err := BuildResource(ctx, w, source.TypeHandle(name), m)
		require.NoError(t, err)
		assert.Nil(t, r, name)
	}

	hm, err := BuildHTTPMethod(ctx, w, source.TypeHandle(fixtures.PATCH))
	require.NoError(t, err)
	hm.Join(m)
	patched, err := BuildResource(ctx, w, source.TypeHandle("com.acme.Patched"), m)
	require.NoError(t, err)
	require.NotNil(t, patched)
	assert.Equal(t, KindResourceMethod, patched.Methods()[0].Kind())
	assert.Equal(t, "PATCH", patched.Methods()[0].HTTPMethod().Verb())
}

func TestResourceUpdate(t *testing.T) {
	m, w := newModel(t, catalogSpec())
	r, _ := joinResource(t, m, catalog)
	items := r.Method(source.MethodHandle(catalog, "items"))

	spec := catalogSpec()
	spec.Annotations = spec.Annotations[1:]
	spec.Fields[0].Type = "int"
	spec.Methods = []source.MethodSpec{
		spec.Methods[0],
		spec.Methods[1],
		fixtures.Method("create", "void", []source.ParameterSpec{fixtures.Param("body", fixtures.Item)}, fixtures.Ann(source.POST)),
		spec.Methods[3],
	}
	swapProgram(t, w, spec)

	transient, err := BuildResource(context.Background(), w, source.TypeHandle(catalog), m)
	require.NoError(t, err)
	cs := r.Update(transient)

	assert.Equal(t, []string{
		"CHANGED com.acme.Catalog",
		"REMOVED com.acme.Catalog#items",
		"ADDED com.acme.Catalog#create",
		"CHANGED com.acme.Catalog.tenant",
	}, kindsOf(cs.Deltas))
	assert.Equal(t, flags.Of(flags.PathAnnotation, flags.ElementKind), cs.Deltas[0].Flags)
	assert.Equal(t, flags.FieldType, cs.Deltas[3].Flags)
	assert.Equal(t, KindSubresource, r.Kind())
	assert.Nil(t, m.FindResourceMethod(items.Handle()))
	assert.Nil(t, r.Method(items.Handle()))
	assert.NotNil(t, m.FindResourceMethod(source.MethodHandle(catalog, "create")))

	cs.Rollback()
	assert.Equal(t, KindRootResource, r.Kind())
	assert.Same(t, items, r.Method(items.Handle()))
	assert.Same(t, items, m.FindResourceMethod(items.Handle()))
	assert.Nil(t, m.FindResourceMethod(source.MethodHandle(catalog, "create")))
	assert.Nil(t, r.Method(source.MethodHandle(catalog, "create")))
	assert.Equal(t, fixtures.String, r.Fields()[0].JavaType())
}

func TestResourceUpdateUnchanged(t *testing.T) {
	m, w := newModel(t, catalogSpec())
	r, _ := joinResource(t, m, catalog)
	transient, err := BuildResource(context.Background(), w, source.TypeHandle(catalog), m)
	require.NoError(t, err)
	assert.True(t, r.Update(transient).Empty())
}

func TestResourceRemove(t *testing.T) {
	m, _ := newModel(t, catalogSpec())
	r, _ := joinResource(t, m, catalog)

	cs := r.Update(nil)
	assert.Equal(t, []string{
		"REMOVED com.acme.Catalog",
		"REMOVED com.acme.Catalog#list",
		"REMOVED com.acme.Catalog#find",
		"REMOVED com.acme.Catalog#items",
		"REMOVED com.acme.Catalog.tenant",
		"REMOVED com.acme.Catalog#setLocale",
	}, kindsOf(cs.Deltas))
	for _, d := range cs.Deltas {
		assert.Equal(t, flags.None, d.Flags, d.String())
	}
	assert.Nil(t, m.FindResource(r.Handle()))
	assert.Empty(t, m.FindElements(source.FieldHandle(catalog, "tenant")))
	assert.Len(t, r.Methods(), 3, "children stay attached to a removed resource")
	assert.Same(t, r, r.Fields()[0].ParentResource())

	cs.Rollback()
	assert.Same(t, r, m.FindResource(r.Handle()))
	assert.NotNil(t, m.FindResourceMethod(source.MethodHandle(catalog, "list")))
	assert.Same(t, m, r.Fields()[0].Metamodel())
}

func TestResourceElementRemovedIndividually(t *testing.T) {
	m, _ := newModel(t, catalogSpec())
	r, _ := joinResource(t, m, catalog)
	field := r.Fields()[0]

	cs := field.Update(nil)
	assert.Equal(t, []Delta{NewDelta(field, Removed, flags.PathParamAnnotation)}, cs.Deltas)
	assert.Empty(t, r.Fields())
	assert.Same(t, r, field.ParentResource())

	cs.Rollback()
	assert.Same(t, field, r.Fields()[0])
}

func TestResourceMethodUpdate(t *testing.T) {
	m, w := newModel(t, fixtures.ItemResourceSpec())
	r, _ := joinResource(t, m, fixtures.ItemResource)
	rm := r.Methods()[0]
	assert.Equal(t, KindResourceMethod, rm.Kind())
	assert.Equal(t, "GET", rm.HTTPMethod().Verb())

	build := func(spec source.TypeSpec) *ResourceMethod {
		swapProgram(t, w, spec)
		transient, err := BuildResource(context.Background(), w, source.TypeHandle(fixtures.ItemResource), m)
		require.NoError(t, err)
		return transient.Methods()[0]
	}

	spec := fixtures.ItemResourceSpec()
	spec.Methods[0].Returns = fixtures.ItemA
	cs := rm.Update(build(spec))
	assert.Equal(t, []Delta{NewDelta(rm, Changed, flags.MethodReturnType)}, cs.Deltas)

	spec.Methods[0].Parameters = []source.ParameterSpec{fixtures.Param("id", fixtures.String, fixtures.AnnValue(source.QueryParam, "id"))}
	cs = rm.Update(build(spec))
	require.Len(t, cs.Deltas, 1)
	assert.Equal(t, flags.Of(flags.MethodParameters, flags.PathParamAnnotation, flags.QueryParamAnnotation), cs.Deltas[0].Flags)

	spec.Methods[0].Parameters = append(spec.Methods[0].Parameters, fixtures.Param("q", fixtures.String))
	cs = rm.Update(build(spec))
	require.Len(t, cs.Deltas, 1)
	assert.Equal(t, flags.Of(flags.MethodParameters, flags.QueryParamAnnotation), cs.Deltas[0].Flags)

	spec.Methods[0].Annotations = []source.AnnotationSpec{fixtures.AnnValue(source.Path, "{id}")}
	cs = rm.Update(build(spec))
	require.Len(t, cs.Deltas, 1)
	assert.Equal(t, flags.Of(flags.ElementKind, flags.PathAnnotation, flags.HTTPMethodAnnotation), cs.Deltas[0].Flags)
	assert.Equal(t, KindSubresourceLocator, rm.Kind())

	cs.Rollback()
	assert.Equal(t, KindResourceMethod, rm.Kind())
}

func TestResourceMethodBecomesUndefined(t *testing.T) {
	m, _ := newModel(t, fixtures.ItemResourceSpec())
	r, _ := joinResource(t, m, fixtures.ItemResource)
	rm := r.Methods()[0]

	undefined := &ResourceMethod{element: newElement(rm.Handle(), nil, m)}
	cs := rm.Update(undefined)
	assert.Equal(t, []Delta{NewDelta(rm, Removed, flags.None)}, cs.Deltas)
	assert.Empty(t, r.Methods())
	assert.Nil(t, m.FindResourceMethod(rm.Handle()))
}

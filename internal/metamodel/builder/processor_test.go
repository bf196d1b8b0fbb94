package builder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
	"github.com/conduit-lang/wsmodel/internal/source"
	"github.com/conduit-lang/wsmodel/internal/testing/fixtures"
)

func TestItemsLifecycle(t *testing.T) {
	getItem := source.MethodHandle(fixtures.ItemResource, "getItem")
	h := newHarness(t, fixtures.ItemResourceSpec())

	endpoints := h.m.Endpoints()
	require.Len(t, endpoints, 1)
	first := endpoints[0]
	assert.Equal(t, "GET", first.Verb)
	assert.Equal(t, "/items", first.PathTemplate)
	assert.Equal(t, []source.Handle{getItem}, first.Methods)
	assert.Equal(t, []domain.Param{{Name: "id", Type: fixtures.String}}, first.PathParams)
	assert.Equal(t, []domain.EndpointEvent{{Kind: domain.EndpointAdded, Endpoint: first}}, h.lastEvents())

	// getItem turns into a locator returning ItemA
	h.load(fixtures.ItemLocatorSpec(fixtures.ItemA), fixtures.ItemASpec(), fixtures.ItemBSpec())
	assert.Equal(t, []string{"GET /items/{id}"}, h.templates())
	located := h.m.Endpoints()[0]
	assert.Equal(t, []source.Handle{getItem, source.MethodHandle(fixtures.ItemA, "read")}, located.Methods)
	assert.Nil(t, h.m.Endpoint(first.ID))
	kinds := map[domain.EndpointEventKind]int{}
	for _, ev := range h.lastEvents() {
		kinds[ev.Kind]++
	}
	assert.Equal(t, map[domain.EndpointEventKind]int{domain.EndpointRemoved: 1, domain.EndpointAdded: 1}, kinds)

	// the locator now returns ItemB
	h.load(fixtures.ItemLocatorSpec(fixtures.ItemB), fixtures.ItemASpec(), fixtures.ItemBSpec())
	assert.Equal(t, []string{"GET /items/{id}", "PUT /items/{id}/content"}, h.templates())
	for _, e := range h.m.Endpoints() {
		assert.Equal(t, getItem, e.Methods[0])
		assert.Equal(t, source.TypeHandle(fixtures.ItemB), e.Resources[1])
	}
	assert.Nil(t, h.m.Endpoint(located.ID))

	h.load(fixtures.ItemASpec(), fixtures.ItemBSpec())
	assert.Empty(t, h.m.Endpoints())
	assert.Empty(t, h.m.FindEndpoints(getItem))
}

func TestApplyIsIdempotent(t *testing.T) {
	types := []source.TypeSpec{
		fixtures.Application("/api"),
		fixtures.ItemLocatorSpec(fixtures.ItemB),
		fixtures.ItemBSpec(),
		fixtures.PagingSpec("limit"),
		fixtures.OrderResourceSpec(),
	}
	h := newHarness(t, types...)
	before := h.m.Endpoints()
	batches := len(h.events)

	deltas, err := h.p.Apply(context.Background(), source.Diff(nil, h.w.Program()))
	require.NoError(t, err)
	assert.Empty(t, deltas)
	assert.Equal(t, before, h.m.Endpoints())
	assert.Len(t, h.events, batches)

	assert.Empty(t, h.load(types...))
}

func TestIncrementalMatchesFreshBuild(t *testing.T) {
	app := fixtures.Application("/api")
	patchResource := source.TypeSpec{
		Name:        "com.acme.PatchResource",
		Annotations: []source.AnnotationSpec{fixtures.AnnValue(source.Path, "patch")},
		Methods:     []source.MethodSpec{fixtures.Method("patch", "void", nil, fixtures.Ann(fixtures.PATCH))},
	}
	subresourceOnly := fixtures.ItemLocatorSpec(fixtures.ItemB)
	subresourceOnly.Annotations = nil
	rootItemA := fixtures.ItemASpec()
	rootItemA.Annotations = []source.AnnotationSpec{fixtures.AnnValue(source.Path, "a")}

	versions := [][]source.TypeSpec{
		{app, fixtures.ItemResourceSpec(), fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec()},
		{app, fixtures.ItemLocatorSpec(fixtures.ItemA), fixtures.ItemASpec(), fixtures.ItemBSpec(), fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec()},
		{app, fixtures.ItemLocatorSpec(fixtures.ItemA), rootItemA, fixtures.ItemBSpec(), fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec()},
		{app, fixtures.ItemLocatorSpec(fixtures.ItemA), fixtures.ItemASpec(), fixtures.ItemBSpec(), fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec()},
		{app, rootItemA, fixtures.ItemBSpec(), fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec()},
		{app, fixtures.ItemLocatorSpec(fixtures.ItemA), rootItemA, fixtures.ItemBSpec(), fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec()},
		{app, fixtures.ItemLocatorSpec(fixtures.ItemB), fixtures.ItemASpec(), fixtures.ItemBSpec(), fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec()},
		{app, subresourceOnly, fixtures.ItemASpec(), fixtures.ItemBSpec(), fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec()},
		{app, subresourceOnly, fixtures.ItemBSpec(), fixtures.PagingSpec("max"), fixtures.ExtendedPagingSpec(), fixtures.OrderResourceSpec(), fixtures.PagedResourceSpec()},
		{fixtures.PatchSpec(), patchResource, fixtures.ItemLocatorSpec(fixtures.ItemB), fixtures.ItemBSpec(), fixtures.PagingSpec("max"), fixtures.ExtendedPagingSpec(), fixtures.OrderResourceSpec(), fixtures.PagedResourceSpec()},
		{fixtures.PatchSpec(), patchResource, fixtures.ItemLocatorSpec(fixtures.ItemB), fixtures.ItemBSpec(), fixtures.ExtendedPagingSpec(), fixtures.OrderResourceSpec(), fixtures.PagedResourceSpec()},
		{patchResource, fixtures.ItemLocatorSpec(fixtures.ItemB), fixtures.ItemBSpec()},
		{},
	}

	incremental := newHarness(t)
	for i, version := range versions {
		incremental.load(version...)
		fresh := newHarness(t, version...)
		assert.Equal(t, signatures(fresh.m.Endpoints()), signatures(incremental.m.Endpoints()), "version %d", i)
		assertReachable(t, incremental.m)
	}
}

// assertReachable checks that every element an endpoint depends on is
// registered in m.
func assertReachable(t *testing.T, m *domain.Metamodel) {
	t.Helper()
	for _, e := range m.Endpoints() {
		require.NotNil(t, m.FindHTTPMethod(e.HTTPMethod), e.String())
		for _, h := range e.Methods {
			rm := m.FindResourceMethod(h)
			require.NotNil(t, rm, "%s: %s", e, h)
			assert.NotNil(t, rm.ParentResource())
		}
		for _, h := range e.Resources {
			assert.NotNil(t, m.FindResource(h), "%s: %s", e, h)
		}
		for _, h := range e.Aggregators {
			assert.NotNil(t, m.FindParameterAggregator(h), "%s: %s", e, h)
		}
		if !e.Application.IsZero() {
			assert.NotEmpty(t, m.FindElements(e.Application), e.String())
		}
		assert.Same(t, e, m.Endpoint(e.ID))
	}
}

func TestApplicationChanges(t *testing.T) {
	h := newHarness(t, fixtures.Application("/api"), fixtures.ItemResourceSpec())
	assert.Equal(t, []string{"GET /api/items"}, h.templates())
	id := h.m.Endpoints()[0].ID

	h.load(fixtures.Application("/v2"), fixtures.ItemResourceSpec())
	assert.Equal(t, []string{"GET /v2/items"}, h.templates())
	e := h.m.Endpoints()[0]
	assert.Equal(t, id, e.ID)
	assert.Equal(t, 1, e.Revision)
	require.Len(t, h.lastEvents(), 1)
	assert.Equal(t, domain.EndpointChanged, h.lastEvents()[0].Kind)
	assert.True(t, h.lastEvents()[0].Flags.Has(flags.ApplicationPathAnnotation))

	_, err := h.p.ApplyWebxmlApplications(context.Background(), map[string]string{fixtures.RestApplication: "/rest"})
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /rest/items"}, h.templates())
	assert.Equal(t, source.DescriptorHandle(domain.WebxmlDescriptor, fixtures.RestApplication), h.m.Endpoints()[0].Application)

	_, err = h.p.ApplyWebxmlApplications(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET /v2/items"}, h.templates())

	h.load(fixtures.ItemResourceSpec())
	assert.Equal(t, []string{"GET /items"}, h.templates())
	assert.True(t, h.m.Endpoints()[0].Application.IsZero())
	assert.Equal(t, id, h.m.Endpoints()[0].ID)
}

func TestCustomHTTPMethodLifecycle(t *testing.T) {
	patchResource := source.TypeSpec{
		Name:        "com.acme.PatchResource",
		Annotations: []source.AnnotationSpec{fixtures.AnnValue(source.Path, "patch")},
		Methods: []source.MethodSpec{
			fixtures.Method("patch", "void", nil, fixtures.Ann(fixtures.PATCH)),
			fixtures.Method("get", "void", nil, fixtures.Ann(source.GET)),
		},
	}
	h := newHarness(t, patchResource)
	assert.Equal(t, []string{"GET /patch"}, h.templates())

	h.load(fixtures.PatchSpec(), patchResource)
	assert.Equal(t, []string{"GET /patch", "PATCH /patch"}, h.templates())

	renamed := fixtures.PatchSpec()
	renamed.Annotations = []source.AnnotationSpec{fixtures.AnnValue(source.HTTPMethod, "MODIFY")}
	h.load(renamed, patchResource)
	assert.Equal(t, []string{"GET /patch", "MODIFY /patch"}, h.templates())

	h.load(patchResource)
	assert.Equal(t, []string{"GET /patch"}, h.templates())
	assert.Nil(t, h.m.FindResourceMethod(source.MethodHandle("com.acme.PatchResource", "patch")))
}

func TestAggregatorChangeFansOut(t *testing.T) {
	types := []source.TypeSpec{
		fixtures.PagingSpec("limit"),
		fixtures.ExtendedPagingSpec(),
		fixtures.OrderResourceSpec(),
		fixtures.PagedResourceSpec(),
		fixtures.UnrelatedServiceSpec(),
	}
	h := newHarness(t, types...)
	assert.Equal(t, []string{
		"GET /orders?limit={int}&offset={int}",
		"GET /paged?sort={String}",
		"GET /unrelated",
	}, h.templates())

	pa := h.m.FindParameterAggregator(source.TypeHandle(fixtures.Paging))
	require.NotNil(t, pa)
	var related []string
	require.NoError(t, h.m.Update(context.Background(), func(tx *domain.Tx) error {
		endpoints, err := relatedEndpoints(context.Background(), tx, pa)
		related = templates(endpoints)
		return err
	}))
	assert.ElementsMatch(t, []string{"GET /orders?limit={int}&offset={int}", "GET /paged?sort={String}"}, related)

	types[0] = fixtures.PagingSpec("max")
	h.load(types...)
	assert.Equal(t, []string{
		"GET /orders?max={int}&offset={int}",
		"GET /paged?sort={String}",
		"GET /unrelated",
	}, h.templates())
	events := h.lastEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EndpointChanged, events[0].Kind)
	assert.Equal(t, "/orders", events[0].Endpoint.PathTemplate)

	h.load(types[1:]...)
	assert.Equal(t, []string{"GET /orders", "GET /paged?sort={String}", "GET /unrelated"}, h.templates())
	assert.Empty(t, h.m.Endpoints()[0].Aggregators)
}

func TestNestedAggregatorChangeFansOut(t *testing.T) {
	const filterType = "com.acme.Filter"
	filter := source.TypeSpec{
		Name: filterType,
		Fields: []source.FieldSpec{
			fixtures.Field("q", fixtures.String, fixtures.AnnValue(source.QueryParam, "q")),
			fixtures.Field("paging", fixtures.Paging, fixtures.Ann(source.BeanParam)),
		},
	}
	search := source.TypeSpec{
		Name:        "com.acme.SearchResource",
		Annotations: []source.AnnotationSpec{fixtures.AnnValue(source.Path, "search")},
		Methods: []source.MethodSpec{
			fixtures.Method("find", "java.util.List",
				[]source.ParameterSpec{fixtures.Param("filter", filterType, fixtures.Ann(source.BeanParam))},
				fixtures.Ann(source.GET)),
		},
	}
	h := newHarness(t, fixtures.PagingSpec("limit"), filter, search)
	require.Len(t, h.m.Endpoints(), 1)
	e := h.m.Endpoints()[0]
	assert.ElementsMatch(t, []source.Handle{source.TypeHandle(filterType), source.TypeHandle(fixtures.Paging)}, e.Aggregators)
	assert.Contains(t, e.DisplayTemplate(), "limit={int}")

	pa := h.m.FindParameterAggregator(source.TypeHandle(fixtures.Paging))
	require.NotNil(t, pa)
	var related []string
	require.NoError(t, h.m.Update(context.Background(), func(tx *domain.Tx) error {
		endpoints, err := relatedEndpoints(context.Background(), tx, pa)
		related = templates(endpoints)
		return err
	}))
	assert.Equal(t, []string{e.DisplayTemplate()}, related)

	h.load(fixtures.PagingSpec("max"), filter, search)
	events := h.lastEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EndpointChanged, events[0].Kind)
	template := h.templates()[0]
	assert.Contains(t, template, "max={int}")
	assert.NotContains(t, template, "limit=")
}

func TestResourceElementChanges(t *testing.T) {
	h := newHarness(t, fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec())

	withTenant := fixtures.OrderResourceSpec()
	withTenant.Fields = []source.FieldSpec{fixtures.Field("tenant", fixtures.String, fixtures.AnnValue(source.QueryParam, "tenant"))}
	h.load(fixtures.PagingSpec("limit"), withTenant)
	assert.Equal(t, []string{"GET /orders?tenant={String}&limit={int}&offset={int}"}, h.templates())

	withTenant.Fields[0].Annotations = []source.AnnotationSpec{fixtures.AnnValue(source.MatrixParam, "tenant")}
	h.load(fixtures.PagingSpec("limit"), withTenant)
	assert.Equal(t, []string{"GET /orders;tenant={String}?limit={int}&offset={int}"}, h.templates())

	h.load(fixtures.PagingSpec("limit"), fixtures.OrderResourceSpec())
	assert.Equal(t, []string{"GET /orders?limit={int}&offset={int}"}, h.templates())
}

func TestResourceKindChangeRebuilds(t *testing.T) {
	h := newHarness(t, fixtures.ItemLocatorSpec(fixtures.ItemB), fixtures.ItemBSpec())
	assert.Len(t, h.m.Endpoints(), 2)

	subresource := fixtures.ItemLocatorSpec(fixtures.ItemB)
	subresource.Annotations = nil
	h.load(subresource, fixtures.ItemBSpec())
	assert.Empty(t, h.m.Endpoints())
	assert.Equal(t, domain.KindSubresource, h.m.FindResource(source.TypeHandle(fixtures.ItemResource)).Kind())

	h.load(fixtures.ItemLocatorSpec(fixtures.ItemB), fixtures.ItemBSpec())
	assert.Equal(t, []string{"GET /items/{id}", "PUT /items/{id}/content"}, h.templates())
}

func TestLocatedSubresourceBecomingRoot(t *testing.T) {
	h := newHarness(t, fixtures.ItemLocatorSpec(fixtures.ItemA), fixtures.ItemASpec())
	assert.Equal(t, []string{"GET /items/{id}"}, h.templates())

	rootItemA := fixtures.ItemASpec()
	rootItemA.Annotations = []source.AnnotationSpec{fixtures.AnnValue(source.Path, "a")}
	h.load(fixtures.ItemLocatorSpec(fixtures.ItemA), rootItemA)
	assert.Equal(t, []string{"GET /a", "GET /items/{id}"}, h.templates())
	assertReachable(t, h.m)

	h.load(fixtures.ItemLocatorSpec(fixtures.ItemA), fixtures.ItemASpec())
	assert.Equal(t, []string{"GET /items/{id}"}, h.templates())
}

type brokenAnalyzer struct {
	source.Analyzer
	broken string
}

var errBroken = errors.New("analyzer failure")

func (b *brokenAnalyzer) Method(ctx context.Context, h source.Handle) (*source.MethodInfo, error) {
	if h.Type == b.broken {
		return nil, errBroken
	}
	return b.Analyzer.Method(ctx, h)
}

func TestApplyRollsBackOnError(t *testing.T) {
	w := source.NewWorkspace(nil)
	h := newHarnessWith(t, w, &brokenAnalyzer{Analyzer: w, broken: "com.acme.Zeta"}, fixtures.UnrelatedServiceSpec())
	before := h.m.Endpoints()
	batches := len(h.events)

	broken := source.TypeSpec{Name: "com.acme.Zeta", Methods: []source.MethodSpec{fixtures.Method("get", "void", nil, fixtures.Ann(source.GET))}}
	_, err := h.tryLoad(fixtures.ItemResourceSpec(), broken)
	assert.ErrorIs(t, err, errBroken)

	assert.Nil(t, h.m.FindResource(source.TypeHandle(fixtures.ItemResource)))
	assert.NotNil(t, h.m.FindResource(source.TypeHandle(fixtures.UnrelatedService)), "removed resource is restored")
	assert.Equal(t, before, h.m.Endpoints())
	assert.Len(t, h.events, batches)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	w := source.NewWorkspace(nil)
	h := newHarnessWith(t, w, &brokenAnalyzer{Analyzer: w, broken: "com.acme.Zeta"})

	changes, deltas, err := h.p.Load(ctx, w, source.MustProgram(fixtures.ItemResourceSpec()))
	require.NoError(t, err)
	assert.Len(t, changes, 1)
	assert.NotEmpty(t, deltas)
	assert.Equal(t, []string{"GET /items"}, h.templates())

	changes, deltas, err = h.p.Load(ctx, w, source.MustProgram(fixtures.ItemResourceSpec()))
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, deltas)

	broken := source.TypeSpec{Name: "com.acme.Zeta", Methods: []source.MethodSpec{fixtures.Method("get", "void", nil, fixtures.Ann(source.GET))}}
	_, _, err = h.p.Load(ctx, w, source.MustProgram(broken))
	assert.ErrorIs(t, err, errBroken)
	_, ok := w.Program().Spec(fixtures.ItemResource)
	assert.True(t, ok, "previous program is restored")
	assert.Equal(t, []string{"GET /items"}, h.templates())
}

// Package fixtures builds small programs used by tests across packages.
package fixtures

import (
	"github.com/conduit-lang/wsmodel/internal/source"
)

// Type names used by the fixtures.
const (
	RestApplication  = "com.acme.RestApplication"
	ItemResource     = "com.acme.ItemResource"
	ItemA            = "com.acme.ItemA"
	ItemB            = "com.acme.ItemB"
	Item             = "com.acme.Item"
	Paging           = "com.acme.Paging"
	OrderResource    = "com.acme.OrderResource"
	ExtendedPaging   = "com.acme.ExtendedPaging"
	PagedResource    = "com.acme.PagedResource"
	UnrelatedService = "com.acme.UnrelatedService"
	PATCH            = "com.acme.PATCH"
	String           = "java.lang.String"
	Integer          = "int"
)

// Ann returns an annotation without attributes.
func Ann(name string) source.AnnotationSpec {
	return source.AnnotationSpec{Name: name}
}

// AnnValue returns an annotation with a single value.
func AnnValue(name, value string) source.AnnotationSpec {
	return source.AnnotationSpec{Name: name, Value: value}
}

// Param returns a method parameter.
func Param(name, typ string, annotations ...source.AnnotationSpec) source.ParameterSpec {
	return source.ParameterSpec{Name: name, Type: typ, Annotations: annotations}
}

// Method returns a method.
func Method(name, returns string, params []source.ParameterSpec, annotations ...source.AnnotationSpec) source.MethodSpec {
	return source.MethodSpec{Name: name, Returns: returns, Parameters: params, Annotations: annotations}
}

// Field returns a field.
func Field(name, typ string, annotations ...source.AnnotationSpec) source.FieldSpec {
	return source.FieldSpec{Name: name, Type: typ, Annotations: annotations}
}

// Application returns a java application mapped to path.
func Application(path string) source.TypeSpec {
	return source.TypeSpec{
		Name:        RestApplication,
		Supertypes:  []string{source.Application},
		Annotations: []source.AnnotationSpec{AnnValue(source.ApplicationPath, path)},
	}
}

// ItemResource returns the root resource at /items with
// GET getItem(@PathParam("id") String id).
func ItemResourceSpec() source.TypeSpec {
	return source.TypeSpec{
		Name:        ItemResource,
		Annotations: []source.AnnotationSpec{AnnValue(source.Path, "/items")},
		Methods: []source.MethodSpec{
			Method("getItem", Item,
				[]source.ParameterSpec{Param("id", String, AnnValue(source.PathParam, "id"))},
				Ann(source.GET)),
		},
	}
}

// ItemLocatorSpec returns the root resource at /items where getItem is a
// subresource locator at {id} returning the given type.
func ItemLocatorSpec(returns string) source.TypeSpec {
	return source.TypeSpec{
		Name:        ItemResource,
		Annotations: []source.AnnotationSpec{AnnValue(source.Path, "/items")},
		Methods: []source.MethodSpec{
			Method("getItem", returns,
				[]source.ParameterSpec{Param("id", String, AnnValue(source.PathParam, "id"))},
				AnnValue(source.Path, "{id}")),
		},
	}
}

// ItemASpec returns a subresource with GET read().
func ItemASpec() source.TypeSpec {
	return source.TypeSpec{
		Name:    ItemA,
		Methods: []source.MethodSpec{Method("read", String, nil, Ann(source.GET))},
	}
}

// ItemBSpec returns a subresource with GET fetch() and
// PUT update() at /content.
func ItemBSpec() source.TypeSpec {
	return source.TypeSpec{
		Name: ItemB,
		Methods: []source.MethodSpec{
			Method("fetch", String, nil, Ann(source.GET)),
			Method("update", "void",
				[]source.ParameterSpec{Param("body", String)},
				Ann(source.PUT), AnnValue(source.Path, "content")),
		},
	}
}

// PagingSpec returns a parameter aggregator with @QueryParam fields.
func PagingSpec(limitName string) source.TypeSpec {
	return source.TypeSpec{
		Name: Paging,
		Fields: []source.FieldSpec{
			Field("limit", Integer, AnnValue(source.QueryParam, limitName), AnnValue(source.DefaultValue, "20")),
			Field("offset", Integer, AnnValue(source.QueryParam, "offset")),
		},
	}
}

// OrderResourceSpec returns a root resource at /orders whose list method
// takes a @BeanParam Paging.
func OrderResourceSpec() source.TypeSpec {
	return source.TypeSpec{
		Name:        OrderResource,
		Annotations: []source.AnnotationSpec{AnnValue(source.Path, "orders")},
		Methods: []source.MethodSpec{
			Method("list", "java.util.List",
				[]source.ParameterSpec{Param("paging", Paging, Ann(source.BeanParam))},
				Ann(source.GET), AnnValue(source.Produces, "application/json")),
		},
	}
}

// ExtendedPagingSpec returns a type extending Paging.
func ExtendedPagingSpec() source.TypeSpec {
	return source.TypeSpec{
		Name:       ExtendedPaging,
		Supertypes: []string{Paging},
		Fields: []source.FieldSpec{
			Field("sort", String, AnnValue(source.QueryParam, "sort")),
		},
	}
}

// PagedResourceSpec returns a root resource at /paged holding an
// ExtendedPaging field.
func PagedResourceSpec() source.TypeSpec {
	return source.TypeSpec{
		Name:        PagedResource,
		Annotations: []source.AnnotationSpec{AnnValue(source.Path, "paged")},
		Fields: []source.FieldSpec{
			Field("paging", ExtendedPaging, Ann(source.BeanParam)),
		},
		Methods: []source.MethodSpec{
			Method("all", "java.util.List", nil, Ann(source.GET)),
		},
	}
}

// UnrelatedServiceSpec returns a root resource at /unrelated that does not
// use Paging.
func UnrelatedServiceSpec() source.TypeSpec {
	return source.TypeSpec{
		Name:        UnrelatedService,
		Annotations: []source.AnnotationSpec{AnnValue(source.Path, "unrelated")},
		Methods: []source.MethodSpec{
			Method("ping", String, nil, Ann(source.GET)),
		},
	}
}

// PatchSpec returns a custom HTTP method annotation.
func PatchSpec() source.TypeSpec {
	return source.TypeSpec{
		Name:        PATCH,
		Annotation:  true,
		Annotations: []source.AnnotationSpec{AnnValue(source.HTTPMethod, "PATCH")},
	}
}

package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/conduit-lang/wsmodel/internal/source"
)

// Param is a request parameter bound by an endpoint.
type Param struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	DefaultValue string `json:"defaultValue,omitempty"`
}

// EndpointKey identifies an endpoint: the resource method at the end of the
// chain, the verb and the full path template.
type EndpointKey struct {
	Method       source.Handle
	Verb         string
	PathTemplate string
}

func (k EndpointKey) String() string {
	return fmt.Sprintf("%s %s (%s)", k.Verb, k.PathTemplate, k.Method)
}

// Endpoint is an immutable, derived view of one HTTP operation. Refreshing
// an endpoint produces a new value with the same ID and a higher revision.
type Endpoint struct {
	ID           uuid.UUID       `json:"id"`
	Revision     int             `json:"revision"`
	Verb         string          `json:"verb"`
	PathTemplate string          `json:"path"`
	Application  source.Handle   `json:"application,omitempty"`
	HTTPMethod   source.Handle   `json:"httpMethod"`
	Methods      []source.Handle `json:"methods"`
	Resources    []source.Handle `json:"resources"`
	Aggregators  []source.Handle `json:"aggregators,omitempty"`
	PathParams   []Param         `json:"pathParams,omitempty"`
	QueryParams  []Param         `json:"queryParams,omitempty"`
	MatrixParams []Param         `json:"matrixParams,omitempty"`
	Consumes     []string        `json:"consumes"`
	Produces     []string        `json:"produces"`
}

// Key returns the identity of the endpoint.
func (e *Endpoint) Key() EndpointKey {
	return EndpointKey{Method: e.ResourceMethod(), Verb: e.Verb, PathTemplate: e.PathTemplate}
}

// ResourceMethod returns the handle of the last method of the chain.
func (e *Endpoint) ResourceMethod() source.Handle {
	if len(e.Methods) == 0 {
		return source.Handle{}
	}
	return e.Methods[len(e.Methods)-1]
}

// IsLocated reports whether the endpoint goes through a subresource
// locator.
func (e *Endpoint) IsLocated() bool {
	return len(e.Methods) > 1
}

// References returns every element handle the endpoint depends on.
func (e *Endpoint) References() []source.Handle {
	refs := make([]source.Handle, 0, 2+len(e.Methods)+len(e.Resources)+len(e.Aggregators))
	if !e.Application.IsZero() {
		refs = append(refs, e.Application)
	}
	if !e.HTTPMethod.IsZero() {
		refs = append(refs, e.HTTPMethod)
	}
	refs = append(refs, e.Methods...)
	refs = append(refs, e.Resources...)
	refs = append(refs, e.Aggregators...)
	return refs
}

// DependsOn reports whether h is one of the references of the endpoint.
func (e *Endpoint) DependsOn(h source.Handle) bool {
	return slices.Contains(e.References(), h)
}

// DisplayTemplate renders the endpoint as
// VERB /path;matrix={Type}?query={Type}&other={Type}.
func (e *Endpoint) DisplayTemplate() string {
	var b strings.Builder
	b.WriteString(e.Verb)
	b.WriteByte(' ')
	b.WriteString(e.PathTemplate)
	for _, p := range e.MatrixParams {
		fmt.Fprintf(&b, ";%s={%s}", p.Name, simpleName(p.Type))
	}
	for i, p := range e.QueryParams {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		fmt.Fprintf(&b, "%s%s={%s}", sep, p.Name, simpleName(p.Type))
	}
	return b.String()
}

func (e *Endpoint) String() string {
	return e.DisplayTemplate()
}

// sameContent reports whether both endpoints describe the same operation,
// ignoring identity and revision.
func (e *Endpoint) sameContent(other *Endpoint) bool {
	return e.Verb == other.Verb &&
		e.PathTemplate == other.PathTemplate &&
		e.Application == other.Application &&
		e.HTTPMethod == other.HTTPMethod &&
		slices.Equal(e.Methods, other.Methods) &&
		slices.Equal(e.Resources, other.Resources) &&
		slices.Equal(e.Aggregators, other.Aggregators) &&
		slices.Equal(e.PathParams, other.PathParams) &&
		slices.Equal(e.QueryParams, other.QueryParams) &&
		slices.Equal(e.MatrixParams, other.MatrixParams) &&
		slices.Equal(e.Consumes, other.Consumes) &&
		slices.Equal(e.Produces, other.Produces)
}

func simpleName(javaType string) string {
	if i := strings.LastIndexByte(javaType, '.'); i >= 0 {
		return javaType[i+1:]
	}
	return javaType
}

// SortEndpoints orders endpoints by path, verb and method.
func SortEndpoints(endpoints []*Endpoint) {
	sort.Slice(endpoints, func(i, j int) bool {
		a, b := endpoints[i], endpoints[j]
		if a.PathTemplate != b.PathTemplate {
			return a.PathTemplate < b.PathTemplate
		}
		if a.Verb != b.Verb {
			return a.Verb < b.Verb
		}
		return a.ResourceMethod().String() < b.ResourceMethod().String()
	})
}

// JoinPath concatenates path segments with single slashes. The result always
// starts with '/' and never ends with one, except for the root path.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(strings.TrimSpace(s), "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return "/" + strings.Join(parts, "/")
}

package domain

// Category groups element kinds. The change dispatcher routes on it.
type Category int

const (
	CategoryApplication Category = iota
	CategoryHTTPMethod
	CategoryProvider
	CategoryNameBinding
	CategoryParamConverterProvider
	CategoryResource
	CategoryResourceMethod
	CategoryResourceField
	CategoryResourceProperty
	CategoryParameterAggregator
	CategoryParameterAggregatorField
	CategoryParameterAggregatorProperty

	// NumCategories is the number of categories. Keep it last.
	NumCategories
)

var categoryNames = [NumCategories]string{
	CategoryApplication:                 "APPLICATION",
	CategoryHTTPMethod:                  "HTTP_METHOD",
	CategoryProvider:                    "PROVIDER",
	CategoryNameBinding:                 "NAME_BINDING",
	CategoryParamConverterProvider:      "PARAM_CONVERTER_PROVIDER",
	CategoryResource:                    "RESOURCE",
	CategoryResourceMethod:              "RESOURCE_METHOD",
	CategoryResourceField:               "RESOURCE_FIELD",
	CategoryResourceProperty:            "RESOURCE_PROPERTY",
	CategoryParameterAggregator:         "PARAMETER_AGGREGATOR",
	CategoryParameterAggregatorField:    "PARAMETER_AGGREGATOR_FIELD",
	CategoryParameterAggregatorProperty: "PARAMETER_AGGREGATOR_PROPERTY",
}

func (c Category) String() string {
	if c < 0 || c >= NumCategories {
		return "UNKNOWN"
	}
	return categoryNames[c]
}

// Kind is the fine-grained kind of an element. Kinds are strictly ordered:
// when a batch of changes is processed, elements of a lower kind are handled
// first (applications before HTTP methods before resources, and so on).
type Kind int

const (
	KindApplicationWebxml Kind = iota
	KindApplicationJava
	KindHTTPMethod
	KindMessageBodyWriter
	KindMessageBodyReader
	KindExceptionMapper
	KindContextResolver
	KindContainerRequestFilter
	KindContainerResponseFilter
	KindEntityReaderInterceptor
	KindEntityWriterInterceptor
	KindDynamicFeature
	KindNameBinding
	KindUndefinedProvider
	KindParamConverterProvider
	KindRootResource
	KindSubresource
	KindUndefinedResource
	KindResourceMethod
	KindSubresourceMethod
	KindSubresourceLocator
	KindUndefinedResourceMethod
	KindPathParamField
	KindQueryParamField
	KindMatrixParamField
	KindBeanParamField
	KindUndefinedResourceField
	KindPathParamProperty
	KindQueryParamProperty
	KindMatrixParamProperty
	KindBeanParamProperty
	KindUndefinedResourceProperty
	KindParameterAggregator
	KindParameterAggregatorField
	KindParameterAggregatorProperty

	numKinds
)

var kinds = [numKinds]struct {
	name     string
	category Category
}{
	KindApplicationWebxml:           {"APPLICATION_WEBXML", CategoryApplication},
	KindApplicationJava:             {"APPLICATION_JAVA", CategoryApplication},
	KindHTTPMethod:                  {"HTTP_METHOD", CategoryHTTPMethod},
	KindMessageBodyWriter:           {"MESSAGE_BODY_WRITER", CategoryProvider},
	KindMessageBodyReader:           {"MESSAGE_BODY_READER", CategoryProvider},
	KindExceptionMapper:             {"EXCEPTION_MAPPER", CategoryProvider},
	KindContextResolver:             {"CONTEXT_RESOLVER", CategoryProvider},
	KindContainerRequestFilter:      {"CONTAINER_REQUEST_FILTER", CategoryProvider},
	KindContainerResponseFilter:     {"CONTAINER_RESPONSE_FILTER", CategoryProvider},
	KindEntityReaderInterceptor:     {"ENTITY_READER_INTERCEPTOR", CategoryProvider},
	KindEntityWriterInterceptor:     {"ENTITY_WRITER_INTERCEPTOR", CategoryProvider},
	KindDynamicFeature:              {"DYNAMIC_FEATURE", CategoryProvider},
	KindNameBinding:                 {"NAME_BINDING", CategoryNameBinding},
	KindUndefinedProvider:           {"UNDEFINED_PROVIDER", CategoryProvider},
	KindParamConverterProvider:      {"PARAM_CONVERTER_PROVIDER", CategoryParamConverterProvider},
	KindRootResource:                {"ROOT_RESOURCE", CategoryResource},
	KindSubresource:                 {"SUBRESOURCE", CategoryResource},
	KindUndefinedResource:           {"UNDEFINED_RESOURCE", CategoryResource},
	KindResourceMethod:              {"RESOURCE_METHOD", CategoryResourceMethod},
	KindSubresourceMethod:           {"SUBRESOURCE_METHOD", CategoryResourceMethod},
	KindSubresourceLocator:          {"SUBRESOURCE_LOCATOR", CategoryResourceMethod},
	KindUndefinedResourceMethod:     {"UNDEFINED_RESOURCE_METHOD", CategoryResourceMethod},
	KindPathParamField:              {"PATH_PARAM_FIELD", CategoryResourceField},
	KindQueryParamField:             {"QUERY_PARAM_FIELD", CategoryResourceField},
	KindMatrixParamField:            {"MATRIX_PARAM_FIELD", CategoryResourceField},
	KindBeanParamField:              {"BEAN_PARAM_FIELD", CategoryResourceField},
	KindUndefinedResourceField:      {"UNDEFINED_RESOURCE_FIELD", CategoryResourceField},
	KindPathParamProperty:           {"PATH_PARAM_PROPERTY", CategoryResourceProperty},
	KindQueryParamProperty:          {"QUERY_PARAM_PROPERTY", CategoryResourceProperty},
	KindMatrixParamProperty:         {"MATRIX_PARAM_PROPERTY", CategoryResourceProperty},
	KindBeanParamProperty:           {"BEAN_PARAM_PROPERTY", CategoryResourceProperty},
	KindUndefinedResourceProperty:   {"UNDEFINED_RESOURCE_PROPERTY", CategoryResourceProperty},
	KindParameterAggregator:         {"PARAMETER_AGGREGATOR", CategoryParameterAggregator},
	KindParameterAggregatorField:    {"PARAMETER_AGGREGATOR_FIELD", CategoryParameterAggregatorField},
	KindParameterAggregatorProperty: {"PARAMETER_AGGREGATOR_PROPERTY", CategoryParameterAggregatorProperty},
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "UNKNOWN"
	}
	return kinds[k].name
}

// Category returns the category the kind belongs to.
func (k Kind) Category() Category {
	if k < 0 || k >= numKinds {
		return -1
	}
	return kinds[k].category
}

// Less reports whether k is processed before other.
func (k Kind) Less(other Kind) bool {
	return k < other
}

// Kinds returns every kind in processing order.
func Kinds() []Kind {
	result := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		result = append(result, k)
	}
	return result
}

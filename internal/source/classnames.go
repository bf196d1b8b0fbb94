package source

// Qualified names of the annotations and types the metamodel recognizes.
const (
	Application      = "javax.ws.rs.core.Application"
	ApplicationPath  = "javax.ws.rs.ApplicationPath"
	Path             = "javax.ws.rs.Path"
	HTTPMethod       = "javax.ws.rs.HttpMethod"
	PathParam        = "javax.ws.rs.PathParam"
	QueryParam       = "javax.ws.rs.QueryParam"
	MatrixParam      = "javax.ws.rs.MatrixParam"
	BeanParam        = "javax.ws.rs.BeanParam"
	DefaultValue     = "javax.ws.rs.DefaultValue"
	Consumes         = "javax.ws.rs.Consumes"
	Produces         = "javax.ws.rs.Produces"
	GET              = "javax.ws.rs.GET"
	POST             = "javax.ws.rs.POST"
	PUT              = "javax.ws.rs.PUT"
	DELETE           = "javax.ws.rs.DELETE"
	HEAD             = "javax.ws.rs.HEAD"
	OPTIONS          = "javax.ws.rs.OPTIONS"
	Object           = "java.lang.Object"
	DefaultMediaType = "*/*"
)

// ParamAnnotations lists the annotations that bind a field, property or
// method parameter to a request parameter.
var ParamAnnotations = []string{PathParam, QueryParam, MatrixParam, BeanParam}

// HasParamAnnotation reports whether annotations contains at least one of
// ParamAnnotations.
func HasParamAnnotation(annotations map[string]*Annotation) bool {
	for _, name := range ParamAnnotations {
		if _, ok := annotations[name]; ok {
			return true
		}
	}
	return false
}

package openapi

import (
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/tenantly/tenantly/internal/model"
)

// Security describes which credentials a route accepts.
type Security int

const (
	Public Security = iota
	Bearer
	APIKey
	BearerOrKey
	// OptionalBearer routes work anonymously but read a token if present.
	OptionalBearer
)

// Route is one documented endpoint.
type Route struct {
	Method   string
	Path     string
	Tag      string
	Summary  string
	Security Security
	// Request and Response are zero values of the body and envelope data
	// types. Nil means no body / no data.
	Request  any
	Response any
	// Status is the success status code; 0 means 200.
	Status int
	Paged  bool
	Query  []string
}

// Info describes the document as a whole.
type Info struct {
	Title        string
	Version      string
	BaseURL      string
	APIKeyHeader string
}

type generator struct {
	doc *openapi3.T
}

// Generate builds an OpenAPI document for routes. Body and data types are
// registered once as component schemas named after their Go type.
func Generate(info Info, routes []Route) (*openapi3.T, error) {
	if info.APIKeyHeader == "" {
		info.APIKeyHeader = "X-API-Key"
	}
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       info.Title,
			Description: "Multi-tenant authentication and account management API.",
			Version:     info.Version,
		},
	}
	if info.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: info.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"apiKey": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{Type: "apiKey", In: "header", Name: info.APIKeyHeader},
		},
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		},
	}
	doc.Components = &components
	doc.Paths = openapi3.NewPaths()

	g := &generator{doc: doc}
	for _, v := range []any{model.Envelope{}, model.ValidationEnvelope{}, model.PageMeta{}} {
		if _, err := g.schemaFor(v); err != nil {
			return nil, err
		}
	}

	for _, rt := range routes {
		if err := g.addRoute(rt); err != nil {
			return nil, fmt.Errorf("%s %s: %w", rt.Method, rt.Path, err)
		}
	}
	for _, tag := range tags(routes) {
		doc.Tags = append(doc.Tags, &openapi3.Tag{Name: tag})
	}
	return doc, nil
}

func (g *generator) addRoute(rt Route) error {
	item := g.doc.Paths.Value(rt.Path)
	if item == nil {
		item = &openapi3.PathItem{Parameters: pathParameters(rt.Path)}
		g.doc.Paths.Set(rt.Path, item)
	}

	op := &openapi3.Operation{
		Tags:        []string{rt.Tag},
		Summary:     rt.Summary,
		OperationID: operationID(rt.Method, rt.Path),
		Security:    security(rt.Security),
	}
	for _, q := range rt.Query {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(q).WithSchema(openapi3.NewStringSchema()),
		})
	}

	if rt.Request != nil {
		body, err := g.schemaFor(rt.Request)
		if err != nil {
			return err
		}
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(body),
		}
	}

	data, err := g.schemaFor(rt.Response)
	if err != nil {
		return err
	}
	status := rt.Status
	if status == 0 {
		status = http.StatusOK
	}
	op.Responses = g.responses(status, rt, data)
	item.SetOperation(rt.Method, op)
	return nil
}

func (g *generator) responses(status int, rt Route, data *openapi3.SchemaRef) *openapi3.Responses {
	envelope := &openapi3.Schema{
		AllOf: openapi3.SchemaRefs{openapi3.NewSchemaRef("#/components/schemas/Envelope", nil)},
	}
	if data != nil {
		props := openapi3.Schemas{"data": data}
		if rt.Paged {
			props["meta"] = openapi3.NewSchemaRef("#/components/schemas/PageMeta", nil)
		}
		envelope.AllOf = append(envelope.AllOf, &openapi3.SchemaRef{
			Value: &openapi3.Schema{Type: &openapi3.Types{"object"}, Properties: props},
		})
	}

	responses := openapi3.NewResponses(openapi3.WithStatus(status, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(http.StatusText(status)).
			WithJSONSchemaRef(&openapi3.SchemaRef{Value: envelope}),
	}))

	errorRef := openapi3.NewSchemaRef("#/components/schemas/Envelope", nil)
	if rt.Request != nil || rt.Method == http.MethodDelete || rt.Method == http.MethodPatch {
		responses.Set("400", &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Validation failed or bad request").
				WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/ValidationEnvelope", nil)),
		})
	}
	if rt.Security != Public && rt.Security != OptionalBearer {
		responses.Set("401", errResponse("Unauthorized", errorRef))
		responses.Set("403", errResponse("Forbidden", errorRef))
	}
	if strings.Contains(rt.Path, "{") {
		responses.Set("404", errResponse("Not found", errorRef))
	}
	responses.Set("500", errResponse("Internal server error", errorRef))
	return responses
}

func errResponse(desc string, ref *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchemaRef(ref)}
}

// schemaFor returns a schema for v's type. Named struct types become
// component references; slices become arrays of their element schema.
func (g *generator) schemaFor(v any) (*openapi3.SchemaRef, error) {
	if v == nil {
		return nil, nil
	}
	return g.schemaForType(reflect.TypeOf(v))
}

func (g *generator) schemaForType(t reflect.Type) (*openapi3.SchemaRef, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8:
		items, err := g.schemaForType(t.Elem())
		if err != nil {
			return nil, err
		}
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}, nil
	case t.Kind() == reflect.Struct && t.Name() != "" && t.PkgPath() != "time":
		name := t.Name()
		if _, ok := g.doc.Components.Schemas[name]; !ok {
			ref, err := openapi3gen.NewSchemaRefForValue(reflect.New(t).Interface(), nil)
			if err != nil {
				return nil, fmt.Errorf("schema for %s: %w", name, err)
			}
			g.doc.Components.Schemas[name] = ref
		}
		return openapi3.NewSchemaRef("#/components/schemas/"+name, nil), nil
	}
	return openapi3gen.NewSchemaRefForValue(reflect.New(t).Interface(), nil)
}

func security(s Security) *openapi3.SecurityRequirements {
	var reqs openapi3.SecurityRequirements
	switch s {
	case Public:
		reqs = openapi3.SecurityRequirements{}
	case Bearer:
		reqs = openapi3.SecurityRequirements{{"bearerAuth": {}}}
	case APIKey:
		reqs = openapi3.SecurityRequirements{{"apiKey": {}}}
	case BearerOrKey:
		reqs = openapi3.SecurityRequirements{{"bearerAuth": {}}, {"apiKey": {}}}
	case OptionalBearer:
		reqs = openapi3.SecurityRequirements{{}, {"bearerAuth": {}}}
	}
	return &reqs
}

// pathParameters declares every {name} segment of path as a required string
// parameter.
func pathParameters(path string) openapi3.Parameters {
	var params openapi3.Parameters
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := seg[1 : len(seg)-1]
			params = append(params, &openapi3.ParameterRef{
				Value: openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()),
			})
		}
	}
	return params
}

// operationID derives a stable identifier such as "get_api_v1_users_id".
func operationID(method, path string) string {
	var parts []string
	for _, seg := range strings.Split(path, "/") {
		seg = strings.Trim(seg, "{}")
		if seg == "" {
			continue
		}
		parts = append(parts, strings.ReplaceAll(seg, "-", "_"))
	}
	return strings.ToLower(method) + "_" + strings.Join(parts, "_")
}

// tags returns the distinct tags used by routes, sorted.
func tags(routes []Route) []string {
	seen := map[string]bool{}
	var out []string
	for _, rt := range routes {
		if rt.Tag != "" && !seen[rt.Tag] {
			seen[rt.Tag] = true
			out = append(out, rt.Tag)
		}
	}
	sort.Strings(out)
	return out
}

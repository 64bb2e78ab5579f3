package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/errcode"
	"github.com/99designs/gqlgen/graphql/handler/lru"
	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/metrics"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// Error codes carried in extensions.code.
const (
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION"
	CodeInternal   = "INTERNAL"
)

const maxBodyBytes = 1 << 20

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response body. Data is omitted when the request
// failed before execution.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors gqlerror.List   `json:"errors,omitempty"`
}

// Handler serves GraphQL over HTTP POST.
type Handler struct {
	schema   *ast.Schema
	resolver *Resolver
	cache    *lru.LRU[*ast.QueryDocument]
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// NewHandler creates a GraphQL handler backed by resolver.
func NewHandler(resolver *Resolver, logger *slog.Logger, mc *metrics.Collector) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		schema:   Schema,
		resolver: resolver,
		cache:    lru.New[*ast.QueryDocument](1000),
		logger:   logger,
		metrics:  mc,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp := h.Execute(r.Context(), req)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("write graphql response", "error", err)
	}
}

// Execute parses, validates and runs a single request.
func (h *Handler) Execute(ctx context.Context, req Request) (resp *Response) {
	start := time.Now()
	defer func() {
		var err error
		if len(resp.Errors) > 0 {
			err = resp.Errors
		}
		h.metrics.Observe(metrics.OpGraphQL, start, err)
	}()

	doc, errs := h.parse(ctx, req.Query)
	if len(errs) > 0 {
		return &Response{Errors: errs}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return &Response{Errors: gqlerror.List{codeError(gqlerror.Errorf("operation %q not found", req.OperationName), errcode.ValidationFailed)}}
	}

	vars, verr := validator.VariableValues(h.schema, op, req.Variables)
	if verr != nil {
		return &Response{Errors: gqlerror.List{codeError(gqlerror.Wrap(verr), errcode.ValidationFailed)}}
	}

	var fields map[string]rootField
	var rootType *ast.Definition
	switch op.Operation {
	case ast.Mutation:
		fields, rootType = h.resolver.mutationFields(), h.schema.Mutation
	default:
		fields, rootType = h.resolver.queryFields(), h.schema.Query
	}

	ex := &executor{vars: vars, logger: h.logger}
	data := ex.root(ctx, rootType, op.SelectionSet, fields)

	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("marshal graphql data", "error", err)
		return &Response{Errors: gqlerror.List{codeError(gqlerror.Errorf("internal server error"), CodeInternal)}}
	}
	return &Response{Data: raw, Errors: ex.errs}
}

func (h *Handler) parse(ctx context.Context, query string) (*ast.QueryDocument, gqlerror.List) {
	if doc, ok := h.cache.Get(ctx, query); ok {
		return doc, nil
	}
	doc, errs := gqlparser.LoadQuery(h.schema, query)
	if len(errs) > 0 {
		for _, e := range errs {
			codeError(e, errcode.ValidationFailed)
		}
		return nil, errs
	}
	h.cache.Add(ctx, query, doc)
	return doc, nil
}

func codeError(err *gqlerror.Error, code string) *gqlerror.Error {
	errcode.Set(err, code)
	return err
}

// =============================================================================
// EXECUTION
// =============================================================================

type executor struct {
	vars   map[string]any
	logger *slog.Logger
	errs   gqlerror.List
}

// root resolves every top-level field in document order. A failed non-null
// root field nulls the whole data object.
func (e *executor) root(ctx context.Context, typ *ast.Definition, sel ast.SelectionSet, resolvers map[string]rootField) any {
	out := &orderedObject{}
	for _, f := range e.collect(sel, typ.Name) {
		key := responseKey(f)
		if out.has(key) {
			continue
		}
		if f.Name == "__typename" {
			out.set(key, typ.Name)
			continue
		}

		resolve, ok := resolvers[f.Name]
		if !ok {
			e.fail(f, key, errors.New("no resolver"))
			out.set(key, nil)
			continue
		}

		value, err := resolve(ctx, f.ArgumentMap(e.vars))
		if err != nil {
			e.fail(f, key, err)
			if f.Definition.Type.NonNull {
				return nil
			}
			out.set(key, nil)
			continue
		}
		out.set(key, e.complete(f.Definition.Type, f.SelectionSet, value))
	}
	return out
}

// complete projects a resolved value onto its selection set.
func (e *executor) complete(typ *ast.Type, sel ast.SelectionSet, value any) any {
	if value == nil {
		return nil
	}
	if typ.Elem != nil {
		items, ok := value.([]any)
		if !ok {
			return nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = e.complete(typ.Elem, sel, item)
		}
		return out
	}

	obj, ok := value.(object)
	if !ok {
		return value
	}
	out := &orderedObject{}
	for _, f := range e.collect(sel, typ.NamedType) {
		key := responseKey(f)
		if out.has(key) {
			continue
		}
		if f.Name == "__typename" {
			out.set(key, typ.NamedType)
			continue
		}
		out.set(key, e.complete(f.Definition.Type, f.SelectionSet, obj[f.Name]))
	}
	return out
}

// collect flattens fragments and applies @skip and @include.
func (e *executor) collect(sel ast.SelectionSet, typeName string) []*ast.Field {
	var fields []*ast.Field
	for _, s := range sel {
		switch s := s.(type) {
		case *ast.Field:
			if e.included(s.Directives) {
				fields = append(fields, s)
			}
		case *ast.InlineFragment:
			if e.included(s.Directives) && (s.TypeCondition == "" || s.TypeCondition == typeName) {
				fields = append(fields, e.collect(s.SelectionSet, typeName)...)
			}
		case *ast.FragmentSpread:
			if e.included(s.Directives) && s.Definition != nil && s.Definition.TypeCondition == typeName {
				fields = append(fields, e.collect(s.Definition.SelectionSet, typeName)...)
			}
		}
	}
	return fields
}

func (e *executor) included(dirs ast.DirectiveList) bool {
	if d := dirs.ForName("skip"); d != nil {
		if skip, _ := d.ArgumentMap(e.vars)["if"].(bool); skip {
			return false
		}
	}
	if d := dirs.ForName("include"); d != nil {
		if include, _ := d.ArgumentMap(e.vars)["if"].(bool); !include {
			return false
		}
	}
	return true
}

func (e *executor) fail(f *ast.Field, key string, err error) {
	gqlErr := &gqlerror.Error{
		Message: err.Error(),
		Path:    ast.Path{ast.PathName(key)},
	}
	switch {
	case errors.Is(err, chat.ErrNotFound):
		errcode.Set(gqlErr, CodeNotFound)
	case errors.Is(err, chat.ErrValidation):
		errcode.Set(gqlErr, CodeValidation)
	default:
		e.logger.Error("resolver failed", "field", f.Name, "error", err)
		gqlErr.Message = "internal server error"
		errcode.Set(gqlErr, CodeInternal)
	}
	e.errs = append(e.errs, gqlErr)
}

func responseKey(f *ast.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// orderedObject marshals its keys in selection order.
type orderedObject struct {
	keys   []string
	values map[string]any
}

func (o *orderedObject) has(key string) bool {
	_, ok := o.values[key]
	return ok
}

func (o *orderedObject) set(key string, v any) {
	if o.values == nil {
		o.values = make(map[string]any)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

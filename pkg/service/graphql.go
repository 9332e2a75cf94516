package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/getmockd/mockfleet/pkg/httputil"
)

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// serveGraphQL answers the GraphQL mount and returns the status written.
func (i *Instance) serveGraphQL(x *exchange) int {
	g := i.graphql
	switch x.r.Method {
	case http.MethodGet:
		x.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		x.w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(x.w, g.sdl)
		return http.StatusOK
	case http.MethodPost:
	default:
		x.w.Header().Set("Allow", "GET, POST")
		httputil.WriteError(x.w, http.StatusMethodNotAllowed, "method_not_allowed", "graphql accepts GET and POST")
		return http.StatusMethodNotAllowed
	}

	var req graphqlRequest
	if err := json.Unmarshal(x.raw, &req); err != nil || req.Query == "" {
		return writeGraphQLErrors(x.w, http.StatusBadRequest, "request body must be JSON with a query")
	}

	doc, errs := gqlparser.LoadQuery(g.schema, req.Query)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for n, e := range errs {
			msgs[n] = e.Message
		}
		return writeGraphQLErrors(x.w, http.StatusBadRequest, msgs...)
	}

	op := operationName(doc, req.OperationName)
	if op == "" {
		return writeGraphQLErrors(x.w, http.StatusBadRequest, "operation name is required")
	}
	tmpl, ok := g.mocks[op]
	if !ok {
		return writeGraphQLErrors(x.w, http.StatusBadRequest, fmt.Sprintf("no mock for operation %q", op))
	}

	data := i.renderContext(x, map[string]string{}, i.data.snapshot())
	vars := req.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	data["variables"] = vars

	out, err := i.renderer.Render(tmpl, data)
	if err != nil {
		i.log.Warn("graphql mock failed to render", "operation", op, "error", err)
		httputil.WriteInternalError(x.w, "render_error", err.Error())
		return http.StatusInternalServerError
	}
	x.w.Header().Set("Content-Type", "application/json")
	x.w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(x.w, out)
	return http.StatusOK
}

// operationName returns the requested operation, or the name of the only
// operation in doc.
func operationName(doc *ast.QueryDocument, requested string) string {
	if requested != "" {
		return requested
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0].Name
	}
	return ""
}

func writeGraphQLErrors(w http.ResponseWriter, status int, messages ...string) int {
	errs := make([]graphqlError, len(messages))
	for n, m := range messages {
		errs[n] = graphqlError{Message: m}
	}
	httputil.WriteJSON(w, status, map[string]any{"errors": errs})
	return status
}

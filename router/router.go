package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/forest-web/forest/http"
	"github.com/forest-web/forest/http/status"
)

// Handler serves one request. Captures extracted from the matched template
// arrive positionally, in template order. The context is cancelled when the
// connection's request timeout expires.
type Handler func(ctx context.Context, r *http.Request, captures ...string) *http.Response

// Route is one compiled template bound to a handler. Immutable once
// registered.
type Route struct {
	// Template is the path template the route was registered with, prefix of
	// the owning scope included.
	Template string
	// Params are the ordered parameter names of the template.
	Params []string
	// Handler is invoked with captures in Params order.
	Handler Handler

	matcher  *regexp.Regexp
	group    MatchGroup
	paramIdx []int
}

// MatchState is the transient result of one match pass. Each field is
// populated at most once: the first matching route wins and later routes
// cannot overwrite it.
type MatchState struct {
	// Handler is the resolved handler: the winning route's, or the not-found
	// fallback.
	Handler Handler
	// Captures are the values extracted from the path, in template order.
	// Empty when the not-found fallback was resolved.
	Captures []string
	// Route is the winning route, nil when the fallback was resolved.
	Route *Route
	// Found distinguishes a real match from falling through to the not-found
	// fallback, so logging and metrics don't have to compare handler
	// identities.
	Found bool
}

// Router dispatches requests to handlers by path template. The route list is
// append-only and must be fully built before the server starts accepting:
// Seal() is called on startup and registration afterwards is an error.
type Router struct {
	routes   []*Route
	notFound Handler
	parent   *Router
	group    MatchGroup
	sealed   bool
	log      *slog.Logger
}

func New() *Router {
	return &Router{
		log: slog.Default(),
	}
}

// WithLogger replaces the logger handler failures are reported through.
func (r *Router) WithLogger(log *slog.Logger) *Router {
	r.log = log
	return r
}

// NotFound installs the fallback handler resolved when no route matches.
func (r *Router) NotFound(handler Handler) *Router {
	r.notFound = handler
	return r
}

// Scope returns the router's match-group scope by value.
func (r *Router) Scope() MatchGroup {
	return r.group
}

// SetScope replaces the router's scope. Children mounted earlier keep the
// value they copied at mount time.
func (r *Router) SetScope(group MatchGroup) *Router {
	r.group = group
	return r
}

// Register compiles the template under the router's scope and appends the
// route. Malformed templates fail here with an error wrapping
// status.ErrRouter — never at request time.
func (r *Router) Register(template string, handler Handler) (*Route, error) {
	root := r.root()
	if root.sealed {
		return nil, fmt.Errorf("%w: %s: registration after server start", status.ErrRouter, template)
	}

	if handler == nil {
		return nil, fmt.Errorf("%w: %s: nil handler", status.ErrRouter, template)
	}

	scoped := r.group.PathPrefix + template
	matcher, params, err := Compile(scoped)
	if err != nil {
		return nil, err
	}

	// captures are selected by the groups Compile named after the template's
	// parameters, so groups nested inside a parameter's own pattern cannot
	// shift the positional arguments
	paramIdx := make([]int, len(params))
	for i, name := range params {
		paramIdx[i] = matcher.SubexpIndex(name)
	}

	route := &Route{
		Template: scoped,
		Params:   params,
		Handler:  handler,
		matcher:  matcher,
		group:    r.group,
		paramIdx: paramIdx,
	}

	root.routes = append(root.routes, route)

	return route, nil
}

// MustRegister is Register for static route tables assembled at startup,
// where a malformed template is a programming error.
func (r *Router) MustRegister(template string, handler Handler) *Route {
	route, err := r.Register(template, handler)
	if err != nil {
		panic(err)
	}

	return route
}

// Mount creates a child router whose routes live under prefix. The child
// copies the parent's scope by value at mount time; mutating the parent
// afterwards does not affect routes already registered on the child. Routes
// registered on the child are appended to the root's ordered list, so match
// order stays registration order across the whole tree.
func (r *Router) Mount(prefix string) *Router {
	return &Router{
		parent: r,
		group:  r.group.child(prefix),
		log:    r.log,
	}
}

func (r *Router) root() *Router {
	root := r
	for root.parent != nil {
		root = root.parent
	}

	return root
}

// Match resolves the handler for the request. Routes are tried in
// registration order and the first accepting matcher wins; its captures are
// recorded in state. If nothing matches and a not-found fallback is
// configured, the fallback is resolved and the call still reports success,
// with state.Found left false. Matching never blocks and never runs handler
// code.
func (r *Router) Match(request *http.Request, state *MatchState) bool {
	root := r.root()

	for _, route := range root.routes {
		if !route.group.admits(request.Headers.Value("host"), request.RawQuery) {
			continue
		}

		match := route.matcher.FindStringSubmatch(request.Path)
		if match == nil {
			continue
		}

		if state.Handler == nil {
			captures := make([]string, len(route.paramIdx))
			for i, group := range route.paramIdx {
				captures[i] = match[group]
			}

			state.Handler = route.Handler
			state.Captures = captures
			state.Route = route
			state.Found = true
		}

		return true
	}

	if root.notFound != nil {
		if state.Handler == nil {
			state.Handler = root.notFound
		}

		return true
	}

	return false
}

// Dispatch resolves and invokes the handler for the request. A panic inside
// the handler is caught here, logged, and converted into a generic error
// response: handler failures never propagate to the connection, and never
// close it on their own.
func (r *Router) Dispatch(ctx context.Context, request *http.Request) (resp *http.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			r.root().log.Error("handler panicked",
				"method", request.Method,
				"path", request.Path,
				"panic", rec,
			)
			resp = http.Error(status.ErrServerError)
		}
	}()

	var state MatchState
	if !r.Match(request, &state) {
		return http.Error(status.ErrNotFound)
	}

	return state.Handler(ctx, request, state.Captures...)
}

// Seal freezes the route table. Called by the server right before it starts
// accepting connections; mutation of a running router is not a supported
// operation.
func (r *Router) Seal() {
	root := r.root()
	root.sealed = true
}

// Registration pairs a template with its handler for Rebuild.
type Registration struct {
	Template string
	Handler  Handler
}

// Rebuild discards the router's compiled table and recompiles every route
// from the supplied registry, preserving registry order. It exists for
// explicit reload flows: callers own the registry, nothing is re-resolved by
// name. The receiver is left untouched on error.
func (r *Router) Rebuild(registry []Registration) (*Router, error) {
	root := r.root()

	fresh := New().WithLogger(root.log).SetScope(root.group)
	fresh.notFound = root.notFound

	for _, reg := range registry {
		if _, err := fresh.Register(reg.Template, reg.Handler); err != nil {
			return nil, err
		}
	}

	return fresh, nil
}

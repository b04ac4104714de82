package router

import (
	"context"
	"testing"

	"github.com/forest-web/forest/http"
	"github.com/forest-web/forest/http/proto"
	"github.com/forest-web/forest/http/status"
	"github.com/forest-web/forest/kv"
	"github.com/stretchr/testify/require"
)

func getRequest(target string) *http.Request {
	return http.NewRequest("GET", target, kv.New(), proto.HTTP11, nil)
}

func respond(body string) Handler {
	return func(ctx context.Context, r *http.Request, captures ...string) *http.Response {
		return http.Text(status.OK, body)
	}
}

func TestRouterMatch(t *testing.T) {
	t.Run("empty table matches nothing", func(t *testing.T) {
		r := New()

		var state MatchState
		require.False(t, r.Match(getRequest("/"), &state))
		require.Nil(t, state.Handler)
	})

	t.Run("first registered wins", func(t *testing.T) {
		r := New()
		first := r.MustRegister("/users/{id}", respond("first"))
		r.MustRegister("/users/{name}", respond("second"))

		var state MatchState
		require.True(t, r.Match(getRequest("/users/42"), &state))
		require.True(t, state.Found)
		require.Same(t, first, state.Route)
		require.Equal(t, []string{"42"}, state.Captures)
	})

	t.Run("captures arrive in template order", func(t *testing.T) {
		r := New()
		r.MustRegister("/articles/{category}/{id:[0-9]+}", respond("article"))

		var state MatchState
		require.True(t, r.Match(getRequest("/articles/tech/42?draft=1"), &state))
		require.Equal(t, []string{"tech", "42"}, state.Captures)
	})

	t.Run("groups nested in patterns do not shift captures", func(t *testing.T) {
		r := New()
		r.MustRegister("/pets/{kind:(cats|dogs)x?}", respond("pets"))
		r.MustRegister("/pets/{kind:(cats|dogs)}/{id:([0-9])+}", respond("pet"))

		var state MatchState
		require.True(t, r.Match(getRequest("/pets/dogsx"), &state))
		require.Equal(t, []string{"dogsx"}, state.Captures)

		state = MatchState{}
		require.True(t, r.Match(getRequest("/pets/cats/42"), &state))
		require.Equal(t, []string{"cats", "42"}, state.Captures)
	})

	t.Run("fallback reports success without Found", func(t *testing.T) {
		r := New().NotFound(respond("nothing here"))
		r.MustRegister("/present", respond("present"))

		var state MatchState
		require.True(t, r.Match(getRequest("/absent"), &state))
		require.False(t, state.Found)
		require.Nil(t, state.Route)
		require.NotNil(t, state.Handler)
		require.Empty(t, state.Captures)
	})

	t.Run("state fields are populated at most once", func(t *testing.T) {
		r := New().NotFound(respond("fallback"))
		winner := r.MustRegister("/users/{id}", respond("first"))
		r.MustRegister("/users/{id}", respond("second"))

		var state MatchState
		require.True(t, r.Match(getRequest("/users/1"), &state))
		require.Same(t, winner, state.Route)

		// a second pass over the same state must not overwrite the winner
		require.True(t, r.Match(getRequest("/absent"), &state))
		require.Same(t, winner, state.Route)
		require.True(t, state.Found)
	})
}

func TestRouterMount(t *testing.T) {
	t.Run("mounted routes live under the prefix", func(t *testing.T) {
		r := New()
		api := r.Mount("/api")
		api.MustRegister("/users/{id}", respond("user"))

		var state MatchState
		require.True(t, r.Match(getRequest("/api/users/7"), &state))
		require.Equal(t, "/api/users/{id}", state.Route.Template)

		state = MatchState{}
		require.False(t, r.Match(getRequest("/users/7"), &state))
	})

	t.Run("match order is registration order across the tree", func(t *testing.T) {
		r := New()
		first := r.MustRegister("/api/{rest}", respond("parent"))
		r.Mount("/api").MustRegister("/{rest}", respond("child"))

		var state MatchState
		require.True(t, r.Match(getRequest("/api/anything"), &state))
		require.Same(t, first, state.Route)
	})

	t.Run("child copies the scope at mount time", func(t *testing.T) {
		r := New().SetScope(MatchGroup{PathPrefix: "/v1"})
		child := r.Mount("/users")
		r.SetScope(MatchGroup{PathPrefix: "/v2"})

		route := child.MustRegister("/{id}", respond("user"))
		require.Equal(t, "/v1/users/{id}", route.Template)
	})

	t.Run("host scope filters requests", func(t *testing.T) {
		r := New()
		admin := r.Mount("")
		admin.SetScope(MatchGroup{Host: "admin.example.com"})
		admin.MustRegister("/panel", respond("panel"))

		request := getRequest("/panel")
		var state MatchState
		require.False(t, r.Match(request, &state))

		request.Headers.Add("Host", "admin.example.com")
		require.True(t, r.Match(request, &state))
	})
}

func TestRouterRegister(t *testing.T) {
	t.Run("malformed template fails at registration", func(t *testing.T) {
		_, err := New().Register("/users/{", respond("never"))
		require.ErrorIs(t, err, status.ErrRouter)
	})

	t.Run("nil handler fails at registration", func(t *testing.T) {
		_, err := New().Register("/users", nil)
		require.ErrorIs(t, err, status.ErrRouter)
	})

	t.Run("registration after Seal fails", func(t *testing.T) {
		r := New()
		r.MustRegister("/before", respond("ok"))
		r.Seal()

		_, err := r.Register("/after", respond("late"))
		require.ErrorIs(t, err, status.ErrRouter)
	})
}

func TestRouterDispatch(t *testing.T) {
	t.Run("handler response passes through", func(t *testing.T) {
		r := New()
		r.MustRegister("/greet/{name}", func(ctx context.Context, req *http.Request, captures ...string) *http.Response {
			return http.Text(status.OK, "hello, "+captures[0])
		})

		resp := r.Dispatch(context.Background(), getRequest("/greet/world"))
		require.Equal(t, status.OK, resp.Code)
		require.Equal(t, "hello, world", string(resp.Body()))
	})

	t.Run("no match and no fallback is 404", func(t *testing.T) {
		resp := New().Dispatch(context.Background(), getRequest("/absent"))
		require.Equal(t, status.NotFound, resp.Code)
	})

	t.Run("panicking handler degrades to 500", func(t *testing.T) {
		r := New()
		r.MustRegister("/boom", func(ctx context.Context, req *http.Request, captures ...string) *http.Response {
			panic("kaboom")
		})

		resp := r.Dispatch(context.Background(), getRequest("/boom"))
		require.Equal(t, status.InternalServerError, resp.Code)
	})
}

func TestRouterRebuild(t *testing.T) {
	t.Run("registry order becomes match order", func(t *testing.T) {
		r := New()
		r.MustRegister("/old", respond("old"))

		fresh, err := r.Rebuild([]Registration{
			{Template: "/users/{id}", Handler: respond("user")},
			{Template: "/users/{name}", Handler: respond("named")},
		})
		require.NoError(t, err)

		var state MatchState
		require.False(t, fresh.Match(getRequest("/old"), &state))

		state = MatchState{}
		require.True(t, fresh.Match(getRequest("/users/5"), &state))
		require.Equal(t, "/users/{id}", state.Route.Template)
	})

	t.Run("malformed registry leaves the original intact", func(t *testing.T) {
		r := New()
		r.MustRegister("/kept", respond("kept"))

		_, err := r.Rebuild([]Registration{{Template: "/{", Handler: respond("bad")}})
		require.ErrorIs(t, err, status.ErrRouter)

		var state MatchState
		require.True(t, r.Match(getRequest("/kept"), &state))
	})
}

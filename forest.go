package forest

import (
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/forest-web/forest/config"
	"github.com/forest-web/forest/http/status"
	httpserver "github.com/forest-web/forest/internal/server/http"
	"github.com/forest-web/forest/internal/server/tcp"
	"github.com/forest-web/forest/metrics"
	"github.com/forest-web/forest/router"
	"github.com/forest-web/forest/tokenizer"
	"github.com/forest-web/forest/tokenizer/http1"
)

type ListenerConstructor func(network, addr string) (net.Listener, error)

type Listener struct {
	Addr        string
	Constructor ListenerConstructor
}

// App ties the listeners, the router and the per-connection machinery
// together. Construct with New, optionally Tune and add listeners, then
// Serve.
type App struct {
	cfg       *config.Config
	log       *slog.Logger
	metrics   *metrics.Metrics
	signal    *httpserver.Signal
	hooks     hooks
	listeners []Listener
	errCh     chan error
}

// New returns an App with default configuration, listening on the
// configured host and port once served.
func New() *App {
	return &App{
		cfg:    config.Default(),
		log:    slog.Default(),
		signal: httpserver.NewSignal(),
		errCh:  make(chan error),
	}
}

// Tune replaces the default configuration.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// WithLogger replaces the default slog logger.
func (a *App) WithLogger(log *slog.Logger) *App {
	a.log = log
	return a
}

// WithMetrics enables Prometheus instrumentation.
func (a *App) WithMetrics(m *metrics.Metrics) *App {
	a.metrics = m
	return a
}

// NotifyOnStart calls the callback at the moment all the listeners are
// started. It isn't strongly guaranteed they accept connections immediately.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback when all the listeners are down and every
// client is disconnected.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Listen adds a plain listener on addr.
func (a *App) Listen(addr string, optionalConstructor ...ListenerConstructor) *App {
	constructor := optional(optionalConstructor, net.Listen)

	a.listeners = append(a.listeners, Listener{
		Addr:        addr,
		Constructor: constructor,
	})

	return a
}

// TLS adds an encrypted listener backed by the certificate pair on disk.
func (a *App) TLS(addr, cert, key string) *App {
	return a.Listen(addr, tlsListener(cert, key))
}

// AutoTLS adds an encrypted listener with certificates obtained through ACME,
// or a self-signed one when addr is local.
func (a *App) AutoTLS(addr string, domains ...string) *App {
	if isLocalhost(addr) {
		cert, key, err := selfSignedPair(cacheDir())
		if err != nil {
			a.log.Warn("cannot generate a self-signed certificate, disabling TLS", "err", err)
			return a
		}

		return a.TLS(addr, cert, key)
	}

	return a.Listen(addr, autoTLSListener(domains...))
}

// Serve seals the router and blocks, serving every registered listener plus
// the configured default address, until Stop or GracefulStop is called or a
// listener fails.
func (a *App) Serve(r *router.Router) error {
	if r == nil {
		r = router.New()
	}

	r.Seal()
	a.Listen(net.JoinHostPort(a.cfg.NET.Host, strconv.Itoa(int(a.cfg.NET.Port))))

	servers, err := a.bind(r)
	if err != nil {
		return err
	}

	return a.run(servers)
}

func (a *App) bind(r *router.Router) ([]*tcp.Server, error) {
	servers := make([]*tcp.Server, len(a.listeners))

	for i, listener := range a.listeners {
		sock, err := listener.Constructor("tcp", listener.Addr)
		if err != nil {
			return nil, err
		}

		servers[i] = tcp.NewServer(sock, a.newConnCallback(r), a.cfg.NET.Backlog, a.cfg.NET.AcceptRPS)
	}

	return servers, nil
}

func (a *App) run(servers []*tcp.Server) error {
	var failSilently atomic.Bool

	for _, server := range servers {
		go func(server *tcp.Server) {
			err := server.Start()

			if failSilently.Swap(true) {
				return
			}

			a.errCh <- err
		}(server)
	}

	callIfNotNil(a.hooks.OnStart)
	err := <-a.errCh
	if err == status.ErrGracefulShutdown {
		// responses written from here on advertise Connection: close, and
		// listeners stop accepting; live connections drain on their own
		a.signal.Stop()
		tcp.PauseAll(servers)
	}

	tcp.StopAll(servers)
	callIfNotNil(a.hooks.OnStop)

	return err
}

// GracefulStop stops accepting new connections and lets the old ones finish.
// The call isn't blocking: the server keeps draining after it returns.
func (a *App) GracefulStop() {
	a.errCh <- status.ErrGracefulShutdown
}

// Stop stops the whole application immediately. The call isn't blocking.
func (a *App) Stop() {
	a.errCh <- status.ErrShutdown
}

func (a *App) newConnCallback(r *router.Router) func(net.Conn) {
	factory := func(v tokenizer.Visitor) tokenizer.Tokenizer {
		return http1.New(a.cfg, v)
	}

	return func(conn net.Conn) {
		client := tcp.NewClient(conn, a.cfg.Request.Timeout, make([]byte, a.cfg.NET.ReadBufferSize))
		httpserver.NewConn(a.cfg, client, r, a.signal, a.log, a.metrics, factory).Serve()
	}
}

type hooks struct {
	OnStart, OnStop func()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}

func isLocalhost(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}

func optional[T any](optionals []T, otherwise T) T {
	if len(optionals) == 0 {
		return otherwise
	}

	return optionals[0]
}

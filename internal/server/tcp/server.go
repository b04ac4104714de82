package tcp

import (
	"context"
	"net"
	"sync"

	"github.com/forest-web/forest/http/status"
	"golang.org/x/time/rate"
)

type onConnection func(net.Conn)

// Server owns the accept loop and the registry of live connections. Each
// accepted connection is served by its own goroutine; backlog caps how many
// are served concurrently, and an optional rate limiter throttles accepts.
type Server struct {
	sock     net.Listener
	onConn   onConnection
	limiter  *rate.Limiter
	slots    chan struct{}
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	shutdown bool
}

func NewServer(sock net.Listener, onConn onConnection, backlog, acceptRPS int) *Server {
	var limiter *rate.Limiter
	if acceptRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(acceptRPS), acceptRPS)
	}

	var slots chan struct{}
	if backlog > 0 {
		slots = make(chan struct{}, backlog)
	}

	return &Server{
		sock:    sock,
		onConn:  onConn,
		limiter: limiter,
		slots:   slots,
		conns:   map[net.Conn]struct{}{},
	}
}

func (s *Server) Start() error {
	wg := new(sync.WaitGroup)

	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(context.Background()); err != nil {
				return err
			}
		}

		conn, err := s.sock.Accept()
		if err != nil {
			wg.Wait()

			if s.stopped() {
				return status.ErrShutdown
			}

			return err
		}

		if s.slots != nil {
			s.slots <- struct{}{}
		}

		s.track(conn)
		wg.Add(1)
		go s.connHandler(wg, conn)
	}
}

func (s *Server) connHandler(wg *sync.WaitGroup, conn net.Conn) {
	s.onConn(conn)
	s.untrack(conn)

	if s.slots != nil {
		<-s.slots
	}

	wg.Done()
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) stopListener() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	return s.sock.Close()
}

func (s *Server) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.shutdown
}

// Stop shuts the listener and ALL live connections down. The listener may
// already be closed by a preceding GracefulShutdown; that is not an error.
func (s *Server) Stop() error {
	_ = s.stopListener()

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}

	return nil
}

// GracefulShutdown stops the listener but leaves live connections free to
// finish on their own.
func (s *Server) GracefulShutdown() error {
	return s.stopListener()
}

func PauseAll(servers []*Server) {
	for _, server := range servers {
		_ = server.GracefulShutdown()
	}
}

func StopAll(servers []*Server) {
	for _, server := range servers {
		_ = server.Stop()
	}
}

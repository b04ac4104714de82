package http

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/forest-web/forest/config"
	"github.com/forest-web/forest/http"
	"github.com/forest-web/forest/http/proto"
	"github.com/forest-web/forest/http/status"
	"github.com/forest-web/forest/internal/server/tcp"
	"github.com/forest-web/forest/internal/strutil"
	"github.com/forest-web/forest/kv"
	"github.com/forest-web/forest/metrics"
	"github.com/forest-web/forest/router"
	"github.com/forest-web/forest/tokenizer"
	"github.com/indigo-web/utils/uf"
)

type State uint8

const (
	// Idle: no in-progress message.
	Idle State = iota + 1
	// Receiving: the request line and headers are being accumulated.
	Receiving
	// Body: headers are complete, body chunks are being accumulated.
	Body
	// Complete: the message is fully received, dispatch is pending or in
	// flight.
	Complete
	// Closed: terminal. Transport loss and every unrecoverable error lead
	// here from any state.
	Closed
)

// TokenizerFactory builds the tokenizer collaborator around the connection's
// event capability set.
type TokenizerFactory func(tokenizer.Visitor) tokenizer.Tokenizer

// Conn owns one transport: its tokenizer, its accumulation buffers and the
// request being assembled. It implements tokenizer.Visitor by composition.
// Buffers are reset exactly once per completed message (on keep-alive) or
// torn down on transport loss, never both for the same message.
type Conn struct {
	cfg     *config.Config
	client  tcp.Client
	router  *router.Router
	signal  *Signal
	log     *slog.Logger
	metrics *metrics.Metrics
	tok     tokenizer.Tokenizer

	state        State
	urlBuff      []byte
	headers      *kv.Storage
	request      *http.Request
	totalSize    int
	lastActivity time.Time
	cancel       context.CancelFunc
}

func NewConn(
	cfg *config.Config,
	client tcp.Client,
	r *router.Router,
	signal *Signal,
	log *slog.Logger,
	m *metrics.Metrics,
	factory TokenizerFactory,
) *Conn {
	conn := &Conn{
		cfg:     cfg,
		client:  client,
		router:  r,
		signal:  signal,
		log:     log,
		metrics: m,
		state:   Idle,
		headers: kv.NewPrealloc(cfg.Headers.Prealloc),
	}
	conn.tok = factory(conn)

	return conn
}

// Serve drives the connection until it closes: reads bytes, feeds the
// tokenizer, dispatches completed messages in strict arrival order. Messages
// of other connections proceed independently; within this one there is no
// pipelining reordering.
func (c *Conn) Serve() {
	c.metrics.ConnectionOpened()
	c.lastActivity = time.Now()

	defer func() {
		c.close()
		c.release()
		c.metrics.ConnectionClosed()
	}()

	for c.state != Closed {
		data, err := c.client.Read()
		if err != nil {
			if isTimeout(err) {
				c.onIdleTimeout()
			}
			// transport loss: buffers are released unconditionally by the
			// deferred teardown

			return
		}

		if err = c.OnBytes(data); err != nil {
			return
		}
	}
}

// OnBytes feeds freshly received bytes through the size cap and into the
// tokenizer, and runs the dispatch once a message completes. Violations
// short-circuit to an error response and connection closure: the byte stream
// is unrecoverable mid-message, so no retry is attempted.
func (c *Conn) OnBytes(data []byte) error {
	c.totalSize += len(data)
	if c.totalSize > c.cfg.Request.MaxSize {
		c.metrics.ParseError()
		return c.fail(status.ErrPayloadTooLarge)
	}

	extra, err := c.tok.Feed(data)
	if err != nil {
		c.metrics.ParseError()
		return c.fail(err)
	}

	if c.state != Complete {
		return nil
	}

	// surplus bytes belong to the next message: hand them back to the
	// transport and stop counting them against this one
	c.totalSize -= len(extra)
	c.client.Unread(extra)

	return c.dispatch()
}

// OnMessageBegin transitions into header reception.
func (c *Conn) OnMessageBegin() error {
	c.state = Receiving
	return nil
}

// OnURL accumulates a target fragment. The tokenizer may emit several per
// message; concatenation, not replacement, is required.
func (c *Conn) OnURL(fragment []byte) error {
	c.urlBuff = append(c.urlBuff, fragment...)
	return nil
}

// OnHeader appends the field to the ordered header list, duplicates
// preserved. An announced length above the configured cap is rejected
// before a single body byte arrives.
func (c *Conn) OnHeader(name, value []byte) error {
	if announced, ok := contentLength(name, value); ok && announced > c.cfg.Request.MaxSize {
		return status.ErrPayloadTooLarge
	}

	c.headers.Add(string(name), string(value))

	return nil
}

// OnHeadersComplete assembles the request from the accumulated url, header
// list and the tokenizer-reported version and method. The peer address is
// injected as a Remote-Addr pseudo header, the way proxies expose theirs.
func (c *Conn) OnHeadersComplete() error {
	remote := c.client.Remote()
	if remote != nil {
		c.headers.Add("Remote-Addr", remote.String())
	}

	c.request = http.NewRequest(c.tok.Method(), string(c.urlBuff), c.headers, c.tok.Protocol(), remote)
	c.state = Body

	return nil
}

func (c *Conn) OnBody(chunk []byte) error {
	c.request.AppendBody(chunk)
	return nil
}

func (c *Conn) OnMessageComplete() error {
	c.state = Complete
	return nil
}

// dispatch runs the resolved handler as a cancellable unit and waits for it,
// racing the configured request timeout. The completion channel is private
// to this dispatch and buffered, so a unit cancelled after the race was lost
// can never resume into buffers reset for a subsequent message.
func (c *Conn) dispatch() error {
	started := time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	defer cancel()

	done := make(chan *http.Response, 1)
	request := c.request

	go func() {
		done <- c.router.Dispatch(ctx, request)
	}()

	var timeout <-chan time.Time
	if c.cfg.Request.Timeout > 0 {
		timer := time.NewTimer(c.cfg.Request.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case resp := <-done:
		c.metrics.RequestCompleted(resp.Code, time.Since(started))
		return c.writeResponse(resp)
	case <-timeout:
		cancel()
		return c.fail(status.ErrRequestTimeout)
	}
}

// writeResponse serializes the response with the keep-alive decision and
// either closes the transport or resets per-message state exactly once.
func (c *Conn) writeResponse(resp *http.Response) error {
	keepAlive := c.tok.ShouldKeepAlive() && !c.signal.Stopped()

	if err := c.client.Write(resp.Output(c.request.Proto, keepAlive, c.cfg.Request.Timeout)); err != nil {
		// a partially written response cannot be retried
		c.log.Error("writing response failed, closing connection", "err", err)
		c.close()

		return status.ErrServerError
	}

	if !keepAlive {
		c.close()
		return nil
	}

	c.lastActivity = time.Now()
	c.reset()

	return nil
}

// writeError writes a best-effort plain-text error response using the last
// known protocol version and closes the transport regardless of the write
// outcome. A failure here is terminal and only logged.
func (c *Conn) writeError(err error) {
	protocol := proto.HTTP11
	if c.request != nil {
		protocol = c.request.Proto
	} else if p := c.tok.Protocol(); p != proto.Unknown {
		protocol = p
	}

	if werr := c.client.Write(http.Error(err).Output(protocol, false, 0)); werr != nil {
		c.log.Error("writing error response failed", "err", werr)
	}

	c.close()
}

func (c *Conn) fail(err error) error {
	c.writeError(err)
	return err
}

// onIdleTimeout fires when the transport stayed silent past the configured
// request timeout. A message in progress is answered with 408 and the
// in-flight dispatch, if any, is cancelled; an idle connection between
// messages is just closed.
func (c *Conn) onIdleTimeout() {
	if c.state == Idle {
		c.close()
		return
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.writeError(status.ErrRequestTimeout)
}

// reset clears per-message state. Runs exactly once per completed message;
// the Idle transition makes a second reset for the same message impossible.
func (c *Conn) reset() {
	c.urlBuff = c.urlBuff[:0]
	c.headers.Clear()
	c.request = nil
	c.totalSize = 0
	c.cancel = nil
	c.tok.Reset()
	c.state = Idle
}

func (c *Conn) close() {
	if c.state == Closed {
		return
	}

	_ = c.client.Close()
	c.state = Closed
}

// release drops buffer references on teardown so a lingering cancelled
// dispatch can't keep the whole connection's memory alive.
func (c *Conn) release() {
	c.urlBuff = nil
	c.headers = nil
	c.request = nil
	c.cancel = nil
}

// State exposes the current lifecycle state.
func (c *Conn) State() State {
	return c.state
}

// LastActivity exposes when the connection last completed a message or was
// established.
func (c *Conn) LastActivity() time.Time {
	return c.lastActivity
}

// contentLength parses the announced body length. Only surrounding
// whitespace is tolerated; anything else is left for the tokenizer to
// reject, so the two parsers of this header cannot disagree.
func contentLength(name, value []byte) (length int, ok bool) {
	if !strutil.CmpFold(uf.B2S(name), "content-length") {
		return 0, false
	}

	raw := strutil.LStripWS(strutil.RStripWS(uf.B2S(value)))
	if len(raw) == 0 {
		return 0, false
	}

	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return 0, false
		}

		length = length*10 + int(raw[i]-'0')
	}

	return length, true
}

func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}

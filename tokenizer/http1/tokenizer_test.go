package http1

import (
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/forest-web/forest/config"
	"github.com/forest-web/forest/http/proto"
	"github.com/forest-web/forest/http/status"
	"github.com/forest-web/forest/kv"
	"github.com/stretchr/testify/require"
)

// collector records every event in arrival order, letting tests compare
// fragmentation variants against the whole-buffer run.
type collector struct {
	began, headersDone, complete bool

	url     []byte
	headers *kv.Storage
	body    []byte
}

func newCollector() *collector {
	return &collector{headers: kv.New()}
}

func (c *collector) OnMessageBegin() error {
	c.began = true
	return nil
}

func (c *collector) OnURL(fragment []byte) error {
	c.url = append(c.url, fragment...)
	return nil
}

func (c *collector) OnHeader(name, value []byte) error {
	c.headers.Add(string(name), string(value))
	return nil
}

func (c *collector) OnHeadersComplete() error {
	c.headersDone = true
	return nil
}

func (c *collector) OnBody(chunk []byte) error {
	c.body = append(c.body, chunk...)
	return nil
}

func (c *collector) OnMessageComplete() error {
	c.complete = true
	return nil
}

func feedAll(t *testing.T, tok *Tokenizer, request string) (extra []byte) {
	extra, err := tok.Feed([]byte(request))
	require.NoError(t, err)

	return extra
}

func feedByByte(t *testing.T, tok *Tokenizer, request string) (extra []byte) {
	for i := 0; i < len(request); i++ {
		var err error
		extra, err = tok.Feed([]byte(request[i : i+1]))
		require.NoError(t, err)
	}

	return extra
}

func TestTokenizer(t *testing.T) {
	const simpleGET = "GET /users/42?verbose=1 HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n"

	t.Run("simple GET", func(t *testing.T) {
		visitor := newCollector()
		tok := New(config.Default(), visitor)

		extra := feedAll(t, tok, simpleGET)
		require.Empty(t, extra)
		require.True(t, visitor.complete)
		require.Equal(t, "GET", tok.Method())
		require.Equal(t, proto.HTTP11, tok.Protocol())
		require.Equal(t, "/users/42?verbose=1", string(visitor.url))
		require.Equal(t, "example.com", visitor.headers.Value("host"))
		require.Equal(t, "*/*", visitor.headers.Value("accept"))
		require.Empty(t, visitor.body)
	})

	t.Run("fragmentation does not change events", func(t *testing.T) {
		whole := newCollector()
		tokWhole := New(config.Default(), whole)
		feedAll(t, tokWhole, simpleGET)

		byByte := newCollector()
		tokByByte := New(config.Default(), byByte)
		feedByByte(t, tokByByte, simpleGET)

		require.Equal(t, whole.url, byByte.url)
		require.Equal(t, whole.headers.Expose(), byByte.headers.Expose())
		require.Equal(t, whole.body, byByte.body)
		require.Equal(t, tokWhole.Method(), tokByByte.Method())
		require.Equal(t, tokWhole.Protocol(), tokByByte.Protocol())
		require.Equal(t, tokWhole.ShouldKeepAlive(), tokByByte.ShouldKeepAlive())
	})

	t.Run("content-length body", func(t *testing.T) {
		visitor := newCollector()
		tok := New(config.Default(), visitor)

		extra := feedAll(t, tok, "POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
		require.Empty(t, extra)
		require.True(t, visitor.complete)
		require.Equal(t, "hello", string(visitor.body))
	})

	t.Run("chunked body", func(t *testing.T) {
		visitor := newCollector()
		tok := New(config.Default(), visitor)

		request := "POST /upload HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
			"7\r\nMozilla\r\n9\r\nDeveloper\r\n7\r\nNetwork\r\n0\r\n\r\n"
		feedAll(t, tok, request)
		require.True(t, visitor.complete)
		require.Equal(t, "MozillaDeveloperNetwork", string(visitor.body))
	})

	t.Run("chunked body byte at a time", func(t *testing.T) {
		visitor := newCollector()
		tok := New(config.Default(), visitor)

		request := "POST /upload HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
			"5\r\nhello\r\n0\r\n\r\n"
		feedByByte(t, tok, request)
		require.True(t, visitor.complete)
		require.Equal(t, "hello", string(visitor.body))
	})

	t.Run("pipelined surplus is returned as extra", func(t *testing.T) {
		visitor := newCollector()
		tok := New(config.Default(), visitor)

		second := "GET /second HTTP/1.1\r\n\r\n"
		extra := feedAll(t, tok, "GET /first HTTP/1.1\r\n\r\n"+second)
		require.Equal(t, second, string(extra))
		require.Equal(t, "/first", string(visitor.url))
	})

	t.Run("header values are trimmed, duplicates kept", func(t *testing.T) {
		visitor := newCollector()
		tok := New(config.Default(), visitor)

		feedAll(t, tok, "GET / HTTP/1.1\r\nCookie:  a=1 \r\nCookie:\tb=2\r\n\r\n")
		require.Equal(t, []string{"a=1", "b=2"}, visitor.headers.Values("cookie"))
	})

	t.Run("generated header values survive the roundtrip", func(t *testing.T) {
		visitor := newCollector()
		tok := New(config.Default(), visitor)

		value := uniuri.NewLen(512)
		feedByByte(t, tok, "GET / HTTP/1.1\r\nX-Token: "+value+"\r\n\r\n")
		require.Equal(t, value, visitor.headers.Value("x-token"))
	})

	t.Run("reset prepares the next message", func(t *testing.T) {
		visitor := newCollector()
		tok := New(config.Default(), visitor)

		feedAll(t, tok, "POST /a HTTP/1.1\r\nContent-Length: 2\r\nConnection: close\r\n\r\nhi")
		require.False(t, tok.ShouldKeepAlive())

		tok.Reset()
		visitor.url = nil
		visitor.body = nil
		visitor.headers.Clear()

		feedAll(t, tok, "GET /b HTTP/1.1\r\n\r\n")
		require.Equal(t, "GET", tok.Method())
		require.Equal(t, "/b", string(visitor.url))
		require.Empty(t, visitor.body)
		require.True(t, tok.ShouldKeepAlive())
	})
}

func TestTokenizerKeepAlive(t *testing.T) {
	for _, tc := range []struct {
		Name      string
		Request   string
		KeepAlive bool
	}{
		{
			Name:      "HTTP/1.1 defaults to persistent",
			Request:   "GET / HTTP/1.1\r\n\r\n",
			KeepAlive: true,
		},
		{
			Name:      "HTTP/1.1 honors close",
			Request:   "GET / HTTP/1.1\r\nConnection: close\r\n\r\n",
			KeepAlive: false,
		},
		{
			Name:      "HTTP/1.0 defaults to close",
			Request:   "GET / HTTP/1.0\r\n\r\n",
			KeepAlive: false,
		},
		{
			Name:      "HTTP/1.0 honors keep-alive",
			Request:   "GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n",
			KeepAlive: true,
		},
		{
			Name:      "connection list is parsed by tokens",
			Request:   "GET / HTTP/1.1\r\nConnection: upgrade, close\r\n\r\n",
			KeepAlive: false,
		},
	} {
		t.Run(tc.Name, func(t *testing.T) {
			tok := New(config.Default(), newCollector())
			feedAll(t, tok, tc.Request)
			require.Equal(t, tc.KeepAlive, tok.ShouldKeepAlive())
		})
	}
}

func TestTokenizerErrors(t *testing.T) {
	feedExpecting := func(t *testing.T, cfg *config.Config, request string, want error) {
		tok := New(cfg, newCollector())

		var err error
		for i := 0; i < len(request) && err == nil; i++ {
			_, err = tok.Feed([]byte(request[i : i+1]))
		}

		require.ErrorIs(t, err, want)
	}

	t.Run("unknown protocol", func(t *testing.T) {
		feedExpecting(t, config.Default(), "GET / HTTP/9.9\r\n\r\n", status.ErrInvalidUsage)
	})

	t.Run("empty request target", func(t *testing.T) {
		feedExpecting(t, config.Default(), "GET  HTTP/1.1\r\n\r\n", status.ErrInvalidUsage)
	})

	t.Run("header line without a colon", func(t *testing.T) {
		feedExpecting(t, config.Default(), "GET / HTTP/1.1\r\nno-colon-here\r\n\r\n", status.ErrInvalidUsage)
	})

	t.Run("negative content length", func(t *testing.T) {
		feedExpecting(t, config.Default(), "GET / HTTP/1.1\r\nContent-Length: -5\r\n\r\n", status.ErrInvalidUsage)
	})

	t.Run("malformed chunked body", func(t *testing.T) {
		feedExpecting(t, config.Default(),
			"POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n",
			status.ErrInvalidUsage,
		)
	})

	t.Run("uri over the limit", func(t *testing.T) {
		cfg := config.Default()
		cfg.URI.MaxLength = 16
		feedExpecting(t, cfg, "GET /"+strings.Repeat("a", 32)+" HTTP/1.1\r\n\r\n", status.ErrPayloadTooLarge)
	})

	t.Run("too many headers", func(t *testing.T) {
		cfg := config.Default()
		cfg.Headers.Number = 2
		feedExpecting(t, cfg,
			"GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n",
			status.ErrPayloadTooLarge,
		)
	})

	t.Run("header value over the limit", func(t *testing.T) {
		cfg := config.Default()
		cfg.Headers.ValueSpace = 8
		feedExpecting(t, cfg,
			"GET / HTTP/1.1\r\nX-Long: "+strings.Repeat("v", 64)+"\r\n\r\n",
			status.ErrPayloadTooLarge,
		)
	})
}

package http1

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/forest-web/forest/config"
	"github.com/forest-web/forest/http/proto"
	"github.com/forest-web/forest/http/status"
	"github.com/forest-web/forest/internal/buffer"
	"github.com/forest-web/forest/internal/strutil"
	"github.com/forest-web/forest/tokenizer"
	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/utils/uf"
)

type state uint8

const (
	sMethod state = iota + 1
	sURI
	sProto
	sHeaderKey
	sHeaderValue
	sHeadersAlmostDone
	sBody
	sChunkedBody
	sDone
)

// Tokenizer is an incremental HTTP/1.x request tokenizer. It consumes a byte
// stream in arbitrary fragmentation and drives a tokenizer.Visitor with parse
// events; an identical stream produces identical events regardless of how it
// was fragmented. Request targets are emitted as fragments without being
// buffered here, header keys and values are accumulated in overflow-checked
// buffers until complete.
type Tokenizer struct {
	cfg           *config.Config
	visitor       tokenizer.Visitor
	chunkedParser *chunkedbody.Parser

	lineBuff *buffer.Buffer
	keyBuff  *buffer.Buffer
	valBuff  *buffer.Buffer

	state state
	began bool

	method    string
	protocol  proto.Protocol
	headerKey []byte

	urlLen      int
	headersSeen int

	contentLength int
	bodyLeft      int
	chunked       bool
	connClose     bool
	connKeepAlive bool
	keepAlive     bool
}

func New(cfg *config.Config, visitor tokenizer.Visitor) *Tokenizer {
	return &Tokenizer{
		cfg:           cfg,
		visitor:       visitor,
		chunkedParser: chunkedbody.NewParser(chunkedbody.DefaultSettings()),
		lineBuff:      buffer.New(256, cfg.URI.MaxLength),
		keyBuff:       buffer.New(64, cfg.Headers.KeySpace),
		valBuff:       buffer.New(256, cfg.Headers.ValueSpace),
		state:         sMethod,
	}
}

func (t *Tokenizer) Feed(data []byte) (extra []byte, err error) {
	if t.state == sMethod && !t.began {
		t.began = true
		if err = t.visitor.OnMessageBegin(); err != nil {
			return nil, err
		}
	}

	switch t.state {
	case sMethod:
		goto method
	case sURI:
		goto uri
	case sProto:
		goto protocol
	case sHeaderKey:
		goto headerKey
	case sHeaderValue:
		goto headerValue
	case sHeadersAlmostDone:
		goto headersAlmostDone
	case sBody:
		goto body
	case sChunkedBody:
		goto chunkedBody
	case sDone:
		// the current message is over and Reset wasn't called yet. Surplus
		// bytes belong to the next message, hand them right back.
		return data, nil
	default:
		panic(fmt.Sprintf("BUG: tokenizer: unexpected state: %v", t.state))
	}

method:
	{
		sp := bytes.IndexByte(data, ' ')
		if sp == -1 {
			if !t.lineBuff.Append(data) {
				return nil, status.ErrPayloadTooLarge
			}

			return nil, nil
		}

		if !t.lineBuff.Append(data[:sp]) {
			return nil, status.ErrPayloadTooLarge
		}

		token := t.lineBuff.Finish()
		if len(token) == 0 {
			return nil, status.ErrInvalidUsage
		}

		// the method is retained across the whole message, while token points
		// into a buffer reused for the proto. Copy.
		t.method = string(token)
		data = data[sp+1:]
		t.state = sURI
		goto uri
	}

uri:
	{
		sp := bytes.IndexByte(data, ' ')
		if sp == -1 {
			if t.urlLen += len(data); t.urlLen > t.cfg.URI.MaxLength {
				return nil, status.ErrPayloadTooLarge
			}

			if len(data) > 0 {
				if err = t.visitor.OnURL(data); err != nil {
					return nil, err
				}
			}

			return nil, nil
		}

		if t.urlLen += sp; t.urlLen > t.cfg.URI.MaxLength {
			return nil, status.ErrPayloadTooLarge
		}

		if t.urlLen == 0 {
			return nil, status.ErrInvalidUsage
		}

		if sp > 0 {
			if err = t.visitor.OnURL(data[:sp]); err != nil {
				return nil, err
			}
		}

		data = data[sp+1:]
		t.state = sProto
		goto protocol
	}

protocol:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !t.lineBuff.Append(data) || t.lineBuff.SegmentLength() > len("HTTP/1.1")+1 {
				return nil, status.ErrInvalidUsage
			}

			return nil, nil
		}

		if !t.lineBuff.Append(data[:lf]) {
			return nil, status.ErrInvalidUsage
		}

		token := t.lineBuff.Finish()
		if n := len(token); n > 0 && token[n-1] == '\r' {
			token = token[:n-1]
		}

		t.protocol = proto.FromBytes(token)
		if t.protocol == proto.Unknown {
			return nil, status.ErrInvalidUsage
		}

		data = data[lf+1:]
		t.state = sHeaderKey
		goto headerKey
	}

headerKey:
	{
		if len(data) == 0 {
			return nil, nil
		}

		switch data[0] {
		case '\n':
			if t.keyBuff.SegmentLength() > 0 {
				// a colonless header line ends here
				return nil, status.ErrInvalidUsage
			}

			data = data[1:]
			goto headersDone
		case '\r':
			if t.keyBuff.SegmentLength() > 0 {
				return nil, status.ErrInvalidUsage
			}

			data = data[1:]
			t.state = sHeadersAlmostDone
			goto headersAlmostDone
		}

		colon := bytes.IndexByte(data, ':')
		if colon == -1 {
			if bytes.IndexByte(data, '\n') != -1 {
				return nil, status.ErrInvalidUsage
			}

			if !t.keyBuff.Append(data) {
				return nil, status.ErrPayloadTooLarge
			}

			return nil, nil
		}

		if bytes.IndexByte(data[:colon], '\n') != -1 {
			return nil, status.ErrInvalidUsage
		}

		if !t.keyBuff.Append(data[:colon]) {
			return nil, status.ErrPayloadTooLarge
		}

		t.headerKey = t.keyBuff.Finish()
		if len(t.headerKey) == 0 {
			return nil, status.ErrInvalidUsage
		}

		if t.headersSeen++; t.headersSeen > t.cfg.Headers.Number {
			return nil, status.ErrPayloadTooLarge
		}

		data = data[colon+1:]
		t.state = sHeaderValue
		goto headerValue
	}

headerValue:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !t.valBuff.Append(data) {
				return nil, status.ErrPayloadTooLarge
			}

			return nil, nil
		}

		if !t.valBuff.Append(data[:lf]) {
			return nil, status.ErrPayloadTooLarge
		}

		value := t.valBuff.Finish()
		if n := len(value); n > 0 && value[n-1] == '\r' {
			value = value[:n-1]
		}
		value = trimSpaces(value)

		if err = t.completeHeader(t.headerKey, value); err != nil {
			return nil, err
		}

		data = data[lf+1:]
		t.state = sHeaderKey
		goto headerKey
	}

headersAlmostDone:
	{
		if len(data) == 0 {
			return nil, nil
		}

		if data[0] != '\n' {
			return nil, status.ErrInvalidUsage
		}

		data = data[1:]
		goto headersDone
	}

headersDone:
	{
		t.keepAlive = t.computeKeepAlive()
		if err = t.visitor.OnHeadersComplete(); err != nil {
			return nil, err
		}

		if t.chunked {
			t.state = sChunkedBody
			goto chunkedBody
		}

		if t.contentLength > 0 {
			t.bodyLeft = t.contentLength
			t.state = sBody
			goto body
		}

		goto messageComplete
	}

body:
	{
		if len(data) == 0 {
			return nil, nil
		}

		chunk := data
		if len(chunk) > t.bodyLeft {
			chunk = chunk[:t.bodyLeft]
		}

		if err = t.visitor.OnBody(chunk); err != nil {
			return nil, err
		}

		data = data[len(chunk):]
		if t.bodyLeft -= len(chunk); t.bodyLeft > 0 {
			return nil, nil
		}

		goto messageComplete
	}

chunkedBody:
	for len(data) > 0 {
		piece, rest, perr := t.chunkedParser.Parse(data, false)

		switch perr {
		case nil:
		case io.EOF:
			if len(piece) > 0 {
				if err = t.visitor.OnBody(piece); err != nil {
					return nil, err
				}
			}

			data = rest
			goto messageComplete
		default:
			return nil, status.ErrInvalidUsage
		}

		if len(piece) > 0 {
			if err = t.visitor.OnBody(piece); err != nil {
				return nil, err
			}
		}

		data = rest
	}

	return nil, nil

messageComplete:
	t.state = sDone
	if err = t.visitor.OnMessageComplete(); err != nil {
		return nil, err
	}

	return data, nil
}

// ShouldKeepAlive reports the persistence decision: HTTP/1.1 is persistent
// unless the client asked to close, HTTP/1.0 only if it asked to keep alive.
func (t *Tokenizer) ShouldKeepAlive() bool {
	return t.keepAlive
}

func (t *Tokenizer) Method() string {
	return t.method
}

func (t *Tokenizer) Protocol() proto.Protocol {
	return t.protocol
}

// Reset prepares for the next message of the same connection.
func (t *Tokenizer) Reset() {
	t.lineBuff.Clear()
	t.keyBuff.Clear()
	t.valBuff.Clear()
	t.state = sMethod
	t.began = false
	t.method = ""
	t.protocol = proto.Unknown
	t.headerKey = nil
	t.urlLen = 0
	t.headersSeen = 0
	t.contentLength = 0
	t.bodyLeft = 0
	t.chunked = false
	t.connClose = false
	t.connKeepAlive = false
	t.keepAlive = false
}

func (t *Tokenizer) completeHeader(key, value []byte) error {
	if err := t.visitor.OnHeader(key, value); err != nil {
		return err
	}

	switch {
	case strutil.CmpFold(uf.B2S(key), "content-length"):
		n, err := strconv.Atoi(uf.B2S(value))
		if err != nil || n < 0 {
			return status.ErrInvalidUsage
		}

		t.contentLength = n
	case strutil.CmpFold(uf.B2S(key), "transfer-encoding"):
		t.chunked = hasToken(uf.B2S(value), "chunked")
	case strutil.CmpFold(uf.B2S(key), "connection"):
		t.connClose = hasToken(uf.B2S(value), "close")
		t.connKeepAlive = hasToken(uf.B2S(value), "keep-alive")
	}

	return nil
}

func (t *Tokenizer) computeKeepAlive() bool {
	switch t.protocol {
	case proto.HTTP11:
		return !t.connClose
	case proto.HTTP10:
		return t.connKeepAlive
	default:
		return false
	}
}

func hasToken(value, token string) bool {
	for len(value) > 0 {
		var part string
		if comma := strings.IndexByte(value, ','); comma != -1 {
			part, value = value[:comma], value[comma+1:]
		} else {
			part, value = value, ""
		}

		part = strutil.LStripWS(strutil.RStripWS(part))
		if strutil.CmpFold(part, token) {
			return true
		}
	}

	return false
}

func trimSpaces(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}

	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}

	return b
}

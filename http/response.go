package http

import (
	"strconv"
	"time"

	"github.com/forest-web/forest/http/proto"
	"github.com/forest-web/forest/http/status"
	"github.com/forest-web/forest/kv"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

// Response carries everything needed to serialize one HTTP/1.x response.
// The keep-alive decision and protocol version belong to the connection, not
// the handler, so they're supplied at Output time.
type Response struct {
	Code        status.Code
	Status      string
	ContentType string
	headers     *kv.Storage
	body        []byte
}

func NewResponse() *Response {
	return &Response{
		Code:        status.OK,
		ContentType: "text/plain; charset=utf-8",
	}
}

// Text builds a plain-text response.
func Text(code status.Code, body string) *Response {
	resp := NewResponse()
	resp.Code = code
	resp.body = uf.S2B(body)

	return resp
}

// JSON builds an application/json response. A marshalling failure degrades
// into a 500 text response rather than propagating: by the time a handler
// returns there is nobody left to handle the error.
func JSON(code status.Code, model any) *Response {
	b, err := json.Marshal(model)
	if err != nil {
		return Error(status.ErrServerError)
	}

	resp := NewResponse()
	resp.Code = code
	resp.ContentType = "application/json"
	resp.body = b

	return resp
}

// Error builds the plain-text rendition of an error, consulting the status
// reason-phrase table for HTTPErrors and falling back to 500 otherwise.
func Error(err error) *Response {
	return Text(status.CodeOf(err), err.Error())
}

// Header appends a header field to the response. Duplicates are preserved.
func (r *Response) Header(key, value string) *Response {
	if r.headers == nil {
		r.headers = kv.New()
	}

	r.headers.Add(key, value)
	return r
}

// Body returns the response body bytes.
func (r *Response) Body() []byte {
	return r.body
}

// Output serializes the response using the request's protocol version, the
// connection's keep-alive decision and the configured timeout. The timeout
// is advertised in a Keep-Alive header only for persistent connections.
func (r *Response) Output(protocol proto.Protocol, keepAlive bool, timeout time.Duration) []byte {
	if protocol == proto.Unknown {
		// the message may have failed before the tokenizer reached the
		// protocol token
		protocol = proto.HTTP11
	}

	statusText := r.Status
	if len(statusText) == 0 {
		statusText = status.Text(r.Code)
	}

	buff := make([]byte, 0, 128+len(r.body))
	buff = append(buff, protocol.String()...)
	buff = append(buff, ' ')
	buff = strconv.AppendUint(buff, uint64(r.Code), 10)
	buff = append(buff, ' ')
	buff = append(buff, statusText...)
	buff = append(buff, crlf...)

	buff = appendHeader(buff, "Content-Type", r.ContentType)
	buff = append(buff, "Content-Length: "...)
	buff = strconv.AppendInt(buff, int64(len(r.body)), 10)
	buff = append(buff, crlf...)

	if r.headers != nil {
		for _, pair := range r.headers.Expose() {
			buff = appendHeader(buff, pair.Key, pair.Value)
		}
	}

	if keepAlive {
		buff = appendHeader(buff, "Connection", "keep-alive")
		if timeout > 0 {
			buff = append(buff, "Keep-Alive: timeout="...)
			buff = strconv.AppendInt(buff, int64(timeout/time.Second), 10)
			buff = append(buff, crlf...)
		}
	} else {
		buff = appendHeader(buff, "Connection", "close")
	}

	buff = append(buff, crlf...)
	buff = append(buff, r.body...)

	return buff
}

const crlf = "\r\n"

func appendHeader(buff []byte, key, value string) []byte {
	buff = append(buff, key...)
	buff = append(buff, ':', ' ')
	buff = append(buff, value...)
	buff = append(buff, crlf...)

	return buff
}

package http

import (
	"net"
	"net/url"
	"sync"

	"github.com/forest-web/forest/http/proto"
	"github.com/forest-web/forest/http/status"
	"github.com/forest-web/forest/kv"
	json "github.com/json-iterator/go"
)

type Headers = *kv.Storage

// Request is assembled incrementally from tokenizer events and is immutable
// once handed to a handler. It is owned by the connection that built it:
// handlers must not retain it beyond the dispatch call, as its buffers are
// reused for the next message on the same connection.
type Request struct {
	// Method is the request method exactly as the tokenizer reported it.
	Method string
	// Path is the path component of the request target.
	Path string
	// RawQuery is the query component without the leading question mark.
	// Empty if the target carried none.
	RawQuery string
	// Headers keeps all header fields in arrival order, duplicates included.
	// Lookup is case-insensitive.
	Headers Headers
	// Proto is the protocol version the tokenizer reported.
	Proto proto.Protocol
	// Remote is the peer address of the transport the request arrived on.
	Remote net.Addr

	body []byte

	parseOnce  sync.Once
	parsedBody any
	parseErr   error
}

func NewRequest(method, target string, headers Headers, protocol proto.Protocol, remote net.Addr) *Request {
	path, query := splitTarget(target)

	return &Request{
		Method:   method,
		Path:     path,
		RawQuery: query,
		Headers:  headers,
		Proto:    protocol,
		Remote:   remote,
	}
}

func splitTarget(target string) (path, query string) {
	for i := 0; i < len(target); i++ {
		if target[i] == '?' {
			return target[:i], target[i+1:]
		}
	}

	return target, ""
}

// AppendBody accumulates a body chunk. The first chunk initializes the
// buffer. Called by the connection only; handlers observe the body solely
// through Body and the parsing accessors.
func (r *Request) AppendBody(chunk []byte) {
	if r.body == nil {
		r.body = append(make([]byte, 0, len(chunk)), chunk...)
		return
	}

	r.body = append(r.body, chunk...)
}

// Body returns the accumulated body bytes, nil if no body event arrived.
func (r *Request) Body() []byte {
	return r.body
}

// HasBody tells whether at least one body chunk arrived.
func (r *Request) HasBody() bool {
	return r.body != nil
}

// Data returns the structured form of the request: the parsed query if the
// target carried one, otherwise the body parsed as JSON. The result is
// computed once and cached across calls.
func (r *Request) Data() (any, error) {
	r.parseOnce.Do(func() {
		if len(r.RawQuery) > 0 {
			values, err := url.ParseQuery(r.RawQuery)
			if err != nil {
				r.parseErr = status.ErrInvalidUsage
				return
			}

			flat := make(map[string]string, len(values))
			for key := range values {
				flat[key] = values.Get(key)
			}

			r.parsedBody = flat
			return
		}

		var parsed any
		if err := json.Unmarshal(r.body, &parsed); err != nil {
			r.parseErr = status.ErrInvalidUsage
			return
		}

		r.parsedBody = parsed
	})

	return r.parsedBody, r.parseErr
}

// JSON unmarshals the body into the model. Unlike Data, the result is not
// cached, as the model is caller-owned.
func (r *Request) JSON(model any) error {
	if err := json.Unmarshal(r.body, model); err != nil {
		return status.ErrInvalidUsage
	}

	return nil
}

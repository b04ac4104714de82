package tokenizer

import "github.com/forest-web/forest/http/proto"

// Visitor is the capability set a tokenizer drives. The connection implements
// it by composition; events arrive strictly in the order: OnMessageBegin,
// zero or more OnURL, zero or more OnHeader, OnHeadersComplete, zero or more
// OnBody, OnMessageComplete. A non-nil error returned from any callback
// aborts tokenization of the current message.
type Visitor interface {
	OnMessageBegin() error
	// OnURL delivers a fragment of the request target. The target may arrive
	// in multiple fragments; receivers must concatenate, not replace.
	OnURL(fragment []byte) error
	// OnHeader delivers one complete header field. Folded lines are already
	// joined; duplicate fields are delivered separately and in order.
	OnHeader(name, value []byte) error
	OnHeadersComplete() error
	OnBody(chunk []byte) error
	OnMessageComplete() error
}

// Tokenizer converts a raw byte stream into parse events on a Visitor.
type Tokenizer interface {
	// Feed consumes data, invoking visitor callbacks as message elements
	// complete. It stops at a message boundary: bytes beyond the end of the
	// current message are returned as extra, keeping pipelined messages in
	// arrival order. A returned error is unrecoverable for the stream.
	Feed(data []byte) (extra []byte, err error)
	// ShouldKeepAlive reports the persistence decision of the current
	// message. Valid only after OnHeadersComplete fired.
	ShouldKeepAlive() bool
	// Method returns the request method of the current message. Valid after
	// the request line was consumed.
	Method() string
	// Protocol returns the protocol version of the current message. Valid
	// after the request line was consumed.
	Protocol() proto.Protocol
	// Reset prepares the tokenizer for the next message on the same
	// connection. Must be called exactly once per completed message.
	Reset()
}

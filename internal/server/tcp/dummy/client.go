package dummy

import (
	"io"
	"net"
)

// Client is an in-memory tcp.Client replaying scripted reads and recording
// writes. Used by connection and tokenizer tests instead of a real socket.
type Client struct {
	reads   [][]byte
	pending []byte
	written []byte
	pointer int
	closed  bool
}

func NewClient(reads ...[]byte) *Client {
	return &Client{
		reads: reads,
	}
}

func (c *Client) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		data := c.pending
		c.pending = nil

		return data, nil
	}

	if c.closed || c.pointer == len(c.reads) {
		return nil, io.EOF
	}

	data := c.reads[c.pointer]
	c.pointer++

	return data, nil
}

func (c *Client) Unread(takeback []byte) {
	if len(takeback) > 0 {
		c.pending = takeback
	}
}

func (c *Client) Write(b []byte) error {
	if c.closed {
		return io.ErrClosedPipe
	}

	c.written = append(c.written, b...)

	return nil
}

func (c *Client) Remote() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 49152}
}

func (c *Client) Close() error {
	c.closed = true
	return nil
}

// Written exposes everything the server wrote so far.
func (c *Client) Written() []byte {
	return c.written
}

// Closed tells whether the server closed the transport.
func (c *Client) Closed() bool {
	return c.closed
}

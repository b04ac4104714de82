package config

import "time"

type (
	// Request limits one in-progress message.
	Request struct {
		// MaxSize caps the total number of bytes a single message may occupy,
		// headers and body included. Exceeding it abandons the message and
		// closes the connection; a truncated request is never delivered.
		MaxSize int `yaml:"max_size"`
		// Timeout limits how long a connection may stay idle while a message
		// is in progress, and how long a dispatched handler may run. Zero
		// disables the limit.
		Timeout time.Duration `yaml:"timeout"`
	}

	// Headers limits the header section of a message.
	Headers struct {
		// Number is the maximal number of header fields in one message.
		Number int `yaml:"number"`
		// KeySpace and ValueSpace limit the memory occupied by accumulated
		// header keys and values respectively.
		KeySpace   int `yaml:"key_space"`
		ValueSpace int `yaml:"value_space"`
		// Prealloc is the initial capacity of the per-connection header list.
		Prealloc int `yaml:"prealloc"`
	}

	// URI limits the request line.
	URI struct {
		// MaxLength limits the accumulated url buffer.
		MaxLength int `yaml:"max_length"`
	}

	NET struct {
		Host string `yaml:"host"`
		Port uint16 `yaml:"port"`
		// ReadBufferSize is the size of the per-connection socket read buffer.
		ReadBufferSize int `yaml:"read_buffer_size"`
		// Backlog caps the number of connections served concurrently. Accepted
		// connections beyond it wait until a slot frees up.
		Backlog int `yaml:"backlog"`
		// AcceptRPS throttles the accept loop. Zero disables throttling.
		AcceptRPS int `yaml:"accept_rps"`
	}
)

// Config holds the toolkit's limits and knobs. Modify the value returned by
// Default() instead of constructing one from scratch, otherwise zero-valued
// limits will reject everything.
type Config struct {
	Request Request `yaml:"request"`
	Headers Headers `yaml:"headers"`
	URI     URI     `yaml:"uri"`
	NET     NET     `yaml:"net"`
}

// Default returns a well-balanced configuration.
func Default() *Config {
	return &Config{
		Request: Request{
			MaxSize: 65535,
			Timeout: 0,
		},
		Headers: Headers{
			Number:     50,
			KeySpace:   1 * 1024,
			ValueSpace: 16 * 1024,
			Prealloc:   10,
		},
		URI: URI{
			MaxLength: 8 * 1024,
		},
		NET: NET{
			Host:           "127.0.0.1",
			Port:           8000,
			ReadBufferSize: 2 * 1024,
			Backlog:        128,
		},
	}
}

package proto

import "github.com/indigo-web/utils/uf"

type Protocol uint8

const (
	Unknown Protocol = iota
	HTTP10
	HTTP11
)

func (p Protocol) String() string {
	switch p {
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	default:
		return ""
	}
}

const prefix = "HTTP/"

// FromBytes parses the protocol token of a request line. Anything besides
// HTTP/1.0 and HTTP/1.1 maps to Unknown.
func FromBytes(raw []byte) Protocol {
	if len(raw) != len("HTTP/x.x") || uf.B2S(raw[:len(prefix)]) != prefix || raw[6] != '.' {
		return Unknown
	}

	return Parse(raw[len(prefix)]-'0', raw[len("HTTP/x.x")-1]-'0')
}

func Parse(major, minor uint8) Protocol {
	if major != 1 {
		return Unknown
	}

	switch minor {
	case 0:
		return HTTP10
	case 1:
		return HTTP11
	default:
		return Unknown
	}
}

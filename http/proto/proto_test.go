package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytes(t *testing.T) {
	for _, tc := range []struct {
		Raw  string
		Want Protocol
	}{
		{"HTTP/1.0", HTTP10},
		{"HTTP/1.1", HTTP11},
		{"HTTP/2.0", Unknown},
		{"HTTP/1.2", Unknown},
		{"HTTP/1x1", Unknown},
		{"HTTP/1.", Unknown},
		{"SMTP/1.1", Unknown},
		{"", Unknown},
	} {
		require.Equal(t, tc.Want, FromBytes([]byte(tc.Raw)), tc.Raw)
	}
}

func TestString(t *testing.T) {
	require.Equal(t, "HTTP/1.0", HTTP10.String())
	require.Equal(t, "HTTP/1.1", HTTP11.String())
	require.Empty(t, Unknown.String())
}

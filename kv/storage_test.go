package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	t.Run("case-insensitive lookup", func(t *testing.T) {
		s := New()
		s.Add("Hello", "world")
		s.Add("Some", "multiple")
		s.Add("Some", "values")

		for _, tc := range []struct {
			Key    string
			Values []string
		}{
			{Key: "Hello", Values: []string{"world"}},
			{Key: "Some", Values: []string{"multiple", "values"}},
			{Key: "sOME", Values: []string{"multiple", "values"}},
		} {
			value, found := s.Get(tc.Key)
			require.True(t, found)
			require.Equal(t, tc.Values[0], value)
			require.Equal(t, tc.Values, s.Values(tc.Key))
		}
	})

	t.Run("insertion order survives duplicates", func(t *testing.T) {
		s := New()
		s.Add("Accept", "text/html")
		s.Add("Cookie", "a=1")
		s.Add("Cookie", "b=2")

		require.Equal(t, []Pair{
			{"Accept", "text/html"},
			{"Cookie", "a=1"},
			{"Cookie", "b=2"},
		}, s.Expose())
	})

	t.Run("Has", func(t *testing.T) {
		s := New()
		s.Add("Hello", "world")
		require.True(t, s.Has("Hello"))
		require.True(t, s.Has("hELLO"))
		require.False(t, s.Has("random"))
	})

	t.Run("ValueOr", func(t *testing.T) {
		s := New()
		s.Add("Content-Type", "application/json")
		require.Equal(t, "application/json", s.ValueOr("content-type", "text/plain"))
		require.Equal(t, "text/plain", s.ValueOr("accept", "text/plain"))
	})

	t.Run("Clear keeps nothing", func(t *testing.T) {
		s := New()
		s.Add("Hello", "world")
		s.Clear()
		require.True(t, s.Empty())
		require.False(t, s.Has("Hello"))
	})

	t.Run("Clone is independent", func(t *testing.T) {
		s := New()
		s.Add("Hello", "world")

		clone := s.Clone()
		s.Clear()

		require.Equal(t, 1, clone.Len())
		require.Equal(t, "world", clone.Value("hello"))
	})
}

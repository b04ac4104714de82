package router

import "strings"

// MatchGroup is the host/path/query scope a route inherits from the router it
// was registered on. It is plain value data on purpose: a mounted child
// receives a copy, never a shared reference, so mutating a parent's scope
// after mounting cannot retroactively change already-registered children.
type MatchGroup struct {
	// Host restricts matching to requests carrying this Host header. Empty
	// means any host.
	Host string
	// PathPrefix is prepended to every template registered in the scope.
	PathPrefix string
	// Query restricts matching to requests whose raw query contains this
	// substring. Empty means any query.
	Query string
}

// child derives the scope for a router mounted under prefix.
func (g MatchGroup) child(prefix string) MatchGroup {
	g.PathPrefix += prefix
	return g
}

// admits reports whether the group's host/query restrictions pass. The path
// itself is checked by the route's compiled matcher, which already includes
// the prefix.
func (g MatchGroup) admits(host, rawQuery string) bool {
	if len(g.Host) > 0 && g.Host != host {
		return false
	}

	if len(g.Query) > 0 && !strings.Contains(rawQuery, g.Query) {
		return false
	}

	return true
}

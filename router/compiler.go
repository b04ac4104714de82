package router

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/forest-web/forest/http/status"
)

// defaultSegment matches one or more non-slash characters, used when a
// template parameter omits an explicit pattern.
const defaultSegment = "[^/]+"

type compiled struct {
	matcher *regexp.Regexp
	params  []string
}

// compilation is pure, so results are memoized per template. Routers mounted
// under different scopes compile scoped templates, which simply become
// separate cache entries.
var compileCache sync.Map

// Compile turns a path template into a matcher and the ordered list of
// parameter names. Brace-delimited segments declare parameters: {name}
// matches one or more non-slash characters, {name:pattern} matches the given
// regular expression. Literal text in between is matched verbatim. Malformed
// templates fail here, at registration time, never at request time.
func Compile(template string) (*regexp.Regexp, []string, error) {
	if cached, ok := compileCache.Load(template); ok {
		c := cached.(compiled)
		return c.matcher, c.params, nil
	}

	matcher, params, err := compile(template)
	if err != nil {
		return nil, nil, err
	}

	compileCache.Store(template, compiled{matcher: matcher, params: params})

	return matcher, params, nil
}

func compile(template string) (*regexp.Regexp, []string, error) {
	var (
		pattern strings.Builder
		params  []string
	)

	pattern.WriteByte('^')
	rest := template

	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open == -1 {
			if strings.IndexByte(rest, '}') != -1 {
				return nil, nil, templateError(template, "unbalanced braces")
			}

			pattern.WriteString(regexp.QuoteMeta(rest))
			break
		}

		literal := rest[:open]
		if strings.IndexByte(literal, '}') != -1 {
			return nil, nil, templateError(template, "unbalanced braces")
		}

		pattern.WriteString(regexp.QuoteMeta(literal))

		body, tail, err := cutSegment(rest[open:])
		if err != nil {
			return nil, nil, templateError(template, err.Error())
		}

		name, segment := body, defaultSegment
		if colon := strings.IndexByte(body, ':'); colon != -1 {
			name, segment = body[:colon], body[colon+1:]
		}

		if !validParamName(name) {
			return nil, nil, templateError(template, "parameter must have a name")
		}

		params = append(params, name)
		pattern.WriteString("(?P<")
		pattern.WriteString(name)
		pattern.WriteString(">")
		pattern.WriteString(segment)
		pattern.WriteString(")")

		rest = tail
	}

	pattern.WriteByte('$')

	matcher, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, nil, templateError(template, err.Error())
	}

	return matcher, params, nil
}

// cutSegment cuts one brace-delimited segment off the front of rest, which
// must start with '{'. Nested braces inside the parameter pattern (counted
// quantifiers like [0-9]{4}) are honored.
func cutSegment(rest string) (body, tail string, err error) {
	depth := 0

	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '{':
			depth++
		case '}':
			if depth--; depth == 0 {
				return rest[1:i], rest[i+1:], nil
			}
		}
	}

	return "", "", fmt.Errorf("unbalanced braces")
}

func validParamName(name string) bool {
	if len(name) == 0 {
		return false
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func templateError(template, reason string) error {
	return fmt.Errorf("%w: %s: %s", status.ErrRouter, template, reason)
}

package route

import (
	"fmt"
	"regexp"
)

// varMatcher validates a single route variable value.
// *regexp.Regexp satisfies this interface.
type varMatcher interface {
	MatchString(string) bool
	String() string
}

// lengthMatcher adds a maximum length to a regexp.
type lengthMatcher struct {
	re     *regexp.Regexp
	maxLen int
}

func (m *lengthMatcher) MatchString(s string) bool {
	return len(s) <= m.maxLen && m.re.MatchString(s)
}

func (m *lengthMatcher) String() string {
	return m.re.String()
}

type macro struct {
	pattern string
	matcher varMatcher
}

// patternMacros are the named patterns usable as {name:macro}.
var patternMacros = func() map[string]macro {
	raw := map[string]string{
		"uuid":     `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`,
		"int":      `[0-9]+`,
		"slug":     `[a-zA-Z0-9]+(?:-[a-zA-Z0-9]+)*`,
		"alpha":    `[a-zA-Z]+`,
		"alphanum": `[a-zA-Z0-9]+`,
		"hex":      `[0-9a-fA-F]+`,
		// A subprotocol name is an HTTP token (RFC 7230, section 3.2.6).
		"token": "[!#$%&'*+.^_`|~0-9a-zA-Z-]+",
	}

	maxLengths := map[string]int{
		"int":   19,
		"token": 64,
	}

	m := make(map[string]macro, len(raw))
	for name, pattern := range raw {
		re := regexp.MustCompile(fmt.Sprintf("^%s$", pattern))

		var matcher varMatcher = re
		if maxLen, ok := maxLengths[name]; ok {
			matcher = &lengthMatcher{re: re, maxLen: maxLen}
		}

		m[name] = macro{pattern: pattern, matcher: matcher}
	}
	return m
}()

// expandMacro returns the pattern and matcher of a macro. Unknown names
// are returned unchanged with a nil matcher.
func expandMacro(pattern string) (string, varMatcher) {
	if m, ok := patternMacros[pattern]; ok {
		return m.pattern, m.matcher
	}
	return pattern, nil
}

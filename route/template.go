package route

import (
	"fmt"
	"regexp"
	"strings"
)

const defaultPattern = "[^/]+"

// template is a compiled path template such as /clients/{id:int}.
type template struct {
	raw     string
	regexp  *regexp.Regexp
	reverse string
	varsN   []string
	varsR   []varMatcher
	prefix  bool
}

func newTemplate(tpl string, prefix bool) (*template, error) {
	if !strings.HasPrefix(tpl, "/") {
		return nil, fmt.Errorf("route: template %q must start with '/'", tpl)
	}

	idxs, err := braceIndices(tpl)
	if err != nil {
		return nil, err
	}

	var (
		pattern strings.Builder
		reverse strings.Builder
		varsN   []string
		varsR   []varMatcher
		end     int
	)

	pattern.WriteByte('^')

	for i := 0; i < len(idxs); i += 2 {
		raw := tpl[end:idxs[i]]
		end = idxs[i+1]

		name, patt, hasPattern := strings.Cut(tpl[idxs[i]+1:end-1], ":")
		if name == "" {
			return nil, fmt.Errorf("route: missing name in %q from %q", tpl[idxs[i]:end], tpl)
		}

		var matcher varMatcher
		if hasPattern {
			patt, matcher = expandMacro(patt)
		} else {
			patt = defaultPattern
		}
		if matcher == nil {
			re, err := compileRegexp("^" + patt + "$")
			if err != nil {
				return nil, fmt.Errorf("route: invalid pattern %q in variable %q: %w", patt, name, err)
			}
			matcher = re
		}

		fmt.Fprintf(&pattern, "%s(%s)", regexp.QuoteMeta(raw), patt)
		reverse.WriteString(strings.ReplaceAll(raw, "%", "%%"))
		reverse.WriteString("%s")

		varsN = append(varsN, name)
		varsR = append(varsR, matcher)
	}

	raw := tpl[end:]
	pattern.WriteString(regexp.QuoteMeta(raw))
	reverse.WriteString(strings.ReplaceAll(raw, "%", "%%"))
	if !prefix {
		pattern.WriteByte('$')
	}

	if err := checkDuplicateVars(varsN); err != nil {
		return nil, err
	}

	re, err := compileRegexp(pattern.String())
	if err != nil {
		return nil, err
	}

	// Variable patterns with their own groups would shift the submatch
	// indexes of later variables.
	if re.NumSubexp() != len(varsN) {
		return nil, fmt.Errorf("route: capturing groups in %q, use (?:...)", tpl)
	}

	return &template{
		raw:     tpl,
		regexp:  re,
		reverse: reverse.String(),
		varsN:   varsN,
		varsR:   varsR,
		prefix:  prefix,
	}, nil
}

// match returns the variables of path, or false if path does not match.
func (t *template) match(path string) (map[string]string, bool) {
	matches := t.regexp.FindStringSubmatch(path)
	if matches == nil {
		return nil, false
	}

	vars := make(map[string]string, len(t.varsN))
	for i, name := range t.varsN {
		if !t.varsR[i].MatchString(matches[i+1]) {
			return nil, false
		}
		vars[name] = matches[i+1]
	}
	return vars, true
}

// url builds a path from the template and the given variable values.
func (t *template) url(values map[string]string) (string, error) {
	args := make([]any, len(t.varsN))
	for i, name := range t.varsN {
		v, ok := values[name]
		if !ok {
			return "", fmt.Errorf("route: missing variable %q", name)
		}
		if !t.varsR[i].MatchString(v) {
			return "", fmt.Errorf("route: variable %q doesn't match, expected %q", name, t.varsR[i].String())
		}
		args[i] = v
	}
	return fmt.Sprintf(t.reverse, args...), nil
}

// braceIndices returns the start and end+1 indices of each top-level
// {...} pair in s.
func braceIndices(s string) ([]int, error) {
	var (
		idxs  []int
		level int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if level++; level == 1 {
				idxs = append(idxs, i)
			}
		case '}':
			if level--; level == 0 {
				idxs = append(idxs, i+1)
			} else if level < 0 {
				return nil, fmt.Errorf("route: unbalanced braces in %q", s)
			}
		}
	}
	if level != 0 {
		return nil, fmt.Errorf("route: unbalanced braces in %q", s)
	}
	return idxs, nil
}

func checkDuplicateVars(vars []string) error {
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if seen[v] {
			return fmt.Errorf("route: duplicated variable %q", v)
		}
		seen[v] = true
	}
	return nil
}

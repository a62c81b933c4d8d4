package httpwire

// isSeparator reports whether c separates tokens in a header line.
func isSeparator(c byte) bool {
	return c == ' ' || c == '\t' || c == ',' || c == ';'
}

// NextToken splits the next token off line and returns it together with
// the unconsumed remainder.
//
// Leading separators (space, tab, comma, semicolon) are skipped. A ':' or
// '=' is returned alone as a one-character token. Otherwise the token runs
// up to the next separator, ':' or '='; a trailing separator is consumed
// with it, a trailing ':' or '=' is not. An empty token means the line is
// exhausted.
func NextToken(line string) (token, rest string) {
	i := 0
	for i < len(line) && isSeparator(line[i]) {
		i++
	}
	if i == len(line) {
		return "", ""
	}

	if line[i] == ':' || line[i] == '=' {
		return line[i : i+1], line[i+1:]
	}

	start := i
	for i < len(line) && !isSeparator(line[i]) && line[i] != ':' && line[i] != '=' {
		i++
	}
	token = line[start:i]

	if i < len(line) && isSeparator(line[i]) {
		i++
	}
	return token, line[i:]
}

// Tokens splits line into all of its tokens.
func Tokens(line string) []string {
	var tokens []string
	for {
		var token string
		token, line = NextToken(line)
		if token == "" {
			return tokens
		}
		tokens = append(tokens, token)
	}
}

package wat

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokAtom   // keyword, identifier, number
	tokString // quoted string, unescaped
)

type token struct {
	kind tokenKind
	text string
	line int
}

// tokenize splits source into parentheses, atoms and strings, dropping
// line (;;) and block ((; ;)) comments.
func tokenize(source string) ([]token, error) {
	var toks []token
	line := 1
	i := 0
	n := len(source)

	for i < n {
		c := source[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == ';' && i+1 < n && source[i+1] == ';':
			for i < n && source[i] != '\n' {
				i++
			}
		case c == '(' && i+1 < n && source[i+1] == ';':
			depth := 1
			i += 2
			for i < n && depth > 0 {
				switch {
				case source[i] == '\n':
					line++
					i++
				case source[i] == '(' && i+1 < n && source[i+1] == ';':
					depth++
					i += 2
				case source[i] == ';' && i+1 < n && source[i+1] == ')':
					depth--
					i += 2
				default:
					i++
				}
			}
			if depth > 0 {
				return nil, fmt.Errorf("line %d: unterminated block comment", line)
			}
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", line: line})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", line: line})
			i++
		case c == '"':
			text, next, err := scanString(source, i, line)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: text, line: line})
			i = next
		default:
			start := i
			for i < n && !isDelim(source[i]) {
				i++
			}
			toks = append(toks, token{kind: tokAtom, text: source[start:i], line: line})
		}
	}
	return toks, nil
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '(', ')', '"', ';':
		return true
	}
	return false
}

// scanString consumes a quoted string starting at source[i] == '"' and
// returns its unescaped contents and the index past the closing quote.
func scanString(source string, i, line int) (string, int, error) {
	var b strings.Builder
	i++ // opening quote
	for i < len(source) {
		c := source[i]
		switch {
		case c == '"':
			return b.String(), i + 1, nil
		case c == '\n':
			return "", 0, fmt.Errorf("line %d: newline in string literal", line)
		case c == '\\':
			if i+1 >= len(source) {
				return "", 0, fmt.Errorf("line %d: unterminated escape", line)
			}
			e := source[i+1]
			switch e {
			case 'n':
				b.WriteByte('\n')
				i += 2
			case 't':
				b.WriteByte('\t')
				i += 2
			case 'r':
				b.WriteByte('\r')
				i += 2
			case '\\', '"', '\'':
				b.WriteByte(e)
				i += 2
			default:
				hi, ok1 := hexDigit(e)
				if i+2 >= len(source) {
					return "", 0, fmt.Errorf("line %d: unterminated escape", line)
				}
				lo, ok2 := hexDigit(source[i+2])
				if !ok1 || !ok2 {
					return "", 0, fmt.Errorf("line %d: invalid escape \\%c", line, e)
				}
				b.WriteByte(hi<<4 | lo)
				i += 3
			}
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("line %d: unterminated string literal", line)
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

package lexer

import (
	"strconv"
	"strings"

	"github.com/iyulab/m3l-go/ast"
)

// findBalancedParen returns the index of the ')' that closes the '(' at
// openPos, skipping over nested parens and content quoted with '"', '\'',
// or '`'. Returns -1 if unbalanced. Hand-written rather than regex-based
// per §4.2/§9: nested parens, quotes, and backticks all coexist.
func findBalancedParen(s string, openPos int) int {
	bytes := []byte(s)
	depth := 0
	i := openPos
	for i < len(bytes) {
		switch bytes[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		case '"':
			if closeQ := findClosingQuote(s, i); closeQ >= 0 {
				i = closeQ
			}
		case '\'':
			if closeQ := strings.IndexByte(s[i+1:], '\''); closeQ >= 0 {
				i = i + 1 + closeQ
			}
		case '`':
			if closeQ := findClosingBacktick(s, i); closeQ >= 0 {
				i = closeQ
			}
		}
		i++
	}
	return -1
}

func findClosingQuote(s string, openPos int) int {
	bytes := []byte(s)
	i := openPos + 1
	for i < len(bytes) {
		if bytes[i] == '\\' {
			i += 2
			continue
		}
		if bytes[i] == '"' {
			return i
		}
		i++
	}
	return -1
}

func findClosingBacktick(s string, openPos int) int {
	bytes := []byte(s)
	i := openPos + 1
	for i < len(bytes) {
		if bytes[i] == '\\' {
			i += 2
			continue
		}
		if bytes[i] == '`' {
			return i
		}
		i++
	}
	return -1
}

func parseAttributesBalanced(content string) []RawAttribute {
	bytes := []byte(content)
	length := len(bytes)
	var attrs []RawAttribute
	pos := 0

	for pos < length {
		offset := strings.IndexByte(content[pos:], '@')
		if offset < 0 {
			break
		}
		pos += offset + 1

		nameStart := pos
		for pos < length && isWordChar(bytes[pos]) {
			pos++
		}
		name := content[nameStart:pos]
		if name == "" {
			continue
		}

		var args []ast.AttrArgValue
		if pos < length && bytes[pos] == '(' {
			closeP := findBalancedParen(content, pos)
			if closeP >= 0 {
				args = parseAttrArgsString(content[pos+1 : closeP])
				pos = closeP + 1
			}
		}
		attrs = append(attrs, RawAttribute{Name: name, Args: args})
	}

	return attrs
}

// parseAttrArgsString splits a comma-separated attribute-argument list,
// honoring balanced parens and the three quote styles, classifying each
// token as bool, number, or string.
func parseAttrArgsString(s string) []ast.AttrArgValue {
	var args []ast.AttrArgValue
	bytes := []byte(s)
	length := len(bytes)
	pos := 0

	for pos < length {
		for pos < length && (bytes[pos] == ' ' || bytes[pos] == ',') {
			pos++
		}
		if pos >= length {
			break
		}

		switch {
		case bytes[pos] == '"':
			close := findClosingQuote(s, pos)
			if close >= 0 {
				args = append(args, ast.NewStringArg(s[pos+1:close]))
				pos = close + 1
			} else {
				pos++
			}
		case bytes[pos] == '`':
			close := findClosingBacktick(s, pos)
			if close >= 0 {
				args = append(args, ast.NewStringArg(s[pos:close+1]))
				pos = close + 1
			} else {
				pos++
			}
		case bytes[pos] == '\'':
			if close := strings.IndexByte(s[pos+1:], '\''); close >= 0 {
				args = append(args, ast.NewStringArg(s[pos+1:pos+1+close]))
				pos = pos + 2 + close
			} else {
				pos++
			}
		default:
			start := pos
			for pos < length && bytes[pos] != ',' {
				if bytes[pos] == '(' {
					closeP := findBalancedParen(s, pos)
					if closeP >= 0 {
						pos = closeP + 1
					} else {
						pos++
					}
				} else {
					pos++
				}
			}
			token := strings.TrimSpace(s[start:pos])
			if token == "" {
				continue
			}

			if colonPos := strings.IndexByte(token, ':'); colonPos >= 0 {
				key := strings.TrimSpace(token[:colonPos])
				val := strings.Trim(strings.TrimSpace(token[colonPos+1:]), "\"")
				args = append(args, ast.NewStringArg(key+": "+val))
			} else if token == "true" {
				args = append(args, ast.NewBoolArg(true))
			} else if token == "false" {
				args = append(args, ast.NewBoolArg(false))
			} else if n, err := strconv.ParseFloat(token, 64); err == nil {
				args = append(args, ast.NewNumberArg(n))
			} else {
				args = append(args, ast.NewStringArg(token))
			}
		}
	}

	return args
}

func isWordChar(b byte) bool {
	return b == '_' ||
		(b >= '0' && b <= '9') ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z')
}

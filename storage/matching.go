package storage

import "strings"

// MatchPattern reports whether key matches a Redis glob-style pattern:
//
//	*      any sequence of characters
//	?      a single character
//	[abc]  any character in the brackets, [^abc] negates
//	[a-z]  any character in the range
//	\x     the literal character x
func MatchPattern(key, pattern string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if MatchPattern(key[i:], pattern) {
					return true
				}
			}
			return false
		case '?':
			if key == "" {
				return false
			}
			key, pattern = key[1:], pattern[1:]
		case '[':
			end := strings.IndexByte(pattern[1:], ']')
			if end < 0 {
				// unterminated class, '[' is literal
				if key == "" || key[0] != '[' {
					return false
				}
				key, pattern = key[1:], pattern[1:]
				continue
			}
			if key == "" || !matchClass(key[0], pattern[1:end+1]) {
				return false
			}
			key, pattern = key[1:], pattern[end+2:]
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if key == "" || key[0] != pattern[0] {
				return false
			}
			key, pattern = key[1:], pattern[1:]
		}
	}
	return key == ""
}

// matchClass matches c against the body of a bracket expression
func matchClass(c byte, class string) bool {
	negate := false
	if len(class) > 0 && class[0] == '^' {
		negate = true
		class = class[1:]
	}

	matched := false
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			lo, hi := class[i], class[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			i += 2
			continue
		}
		if class[i] == c {
			matched = true
		}
	}

	return matched != negate
}

package storage

import "testing"

var matchTestCases = []struct {
	name     string
	str      string
	pattern  string
	expected bool
}{
	// Empty patterns
	{"empty pattern, empty string", "", "", true},
	{"empty pattern, non-empty string", "test", "", false},
	{"non-empty pattern, empty string", "", "test", false},

	// Exact matches
	{"exact match", "hello", "hello", true},
	{"exact match case sensitive", "Hello", "hello", false},

	// Wildcards
	{"single wildcard", "test", "*", true},
	{"single wildcard, empty string", "", "*", true},
	{"prefix match", "hello world", "hello*", true},
	{"prefix no match", "hi world", "hello*", false},
	{"suffix match", "hello world", "*world", true},
	{"middle wildcard empty middle", "helloworld", "hello*world", true},
	{"wildcard spans slash", "a/b/c", "a*c", true},
	{"multiple wildcards", "hello world test", "hello*world*", true},
	{"multiple wildcards no match", "hello universe test", "hello*world*", false},

	// Single character wildcard (?)
	{"single char wildcard", "hello", "hell?", true},
	{"single char wildcard no match", "hello", "hell??", false},
	{"only question marks", "abc", "???", true},

	// Bracket classes
	{"class match", "hallo", "h[ae]llo", true},
	{"class no match", "hillo", "h[ae]llo", false},
	{"negated class", "hillo", "h[^e]llo", true},
	{"range", "key7", "key[0-9]", true},
	{"range no match", "keyx", "key[0-9]", false},
	{"unterminated class is literal", "a[b", "a[b", true},

	// Escapes
	{"escaped star", "a*b", `a\*b`, true},
	{"escaped star no match", "axb", `a\*b`, false},

	// Real-world Redis key patterns
	{"redis key prefix", "user:123:profile", "user:*", true},
	{"redis key middle", "user:123:profile", "user:*:profile", true},
	{"redis key complex", "cache:user:123:data", "cache:*:*:data", true},
}

func TestMatchPattern(t *testing.T) {
	for _, tc := range matchTestCases {
		t.Run(tc.name, func(t *testing.T) {
			result := MatchPattern(tc.str, tc.pattern)
			if result != tc.expected {
				t.Errorf("MatchPattern(%q, %q) = %v, expected %v",
					tc.str, tc.pattern, result, tc.expected)
			}
		})
	}
}

package store

import "strings"

// Match reports whether key matches the glob pattern. The only wildcard is
// '*', matching zero or more characters; everything else is compared
// case-sensitively. This is deliberately narrower than path.Match: cache key
// patterns like "promotion_list*" never need '?' or character classes, and
// keys may contain separators that path.Match would treat specially.
func Match(pattern, key string) bool {
	if !strings.ContainsRune(pattern, '*') {
		return pattern == key
	}

	segments := strings.Split(pattern, "*")

	// Leading literal must anchor at the start.
	if !strings.HasPrefix(key, segments[0]) {
		return false
	}
	key = key[len(segments[0]):]

	// Middle literals match greedily left to right.
	for _, seg := range segments[1 : len(segments)-1] {
		if seg == "" {
			continue
		}
		idx := strings.Index(key, seg)
		if idx < 0 {
			return false
		}
		key = key[idx+len(seg):]
	}

	// Trailing literal must anchor at the end.
	last := segments[len(segments)-1]
	return strings.HasSuffix(key, last) && len(key) >= len(last)
}

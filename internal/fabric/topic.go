package fabric

import (
	"regexp"
	"strings"
)

var (
	routingKeyRe = regexp.MustCompile(`^[a-z0-9_-]+(\.[a-z0-9_-]+)*$`)
	patternWord  = regexp.MustCompile(`^([a-z0-9_-]+|\*|#)$`)
)

// ValidRoutingKey reports whether key is a dot-delimited lowercase key ("post.created").
func ValidRoutingKey(key string) bool {
	return len(key) <= 255 && routingKeyRe.MatchString(key)
}

// ValidPattern reports whether p is a topic pattern: words, "*" or "#", dot separated.
func ValidPattern(p string) bool {
	if p == "" || len(p) > 255 {
		return false
	}
	for _, w := range strings.Split(p, ".") {
		if !patternWord.MatchString(w) {
			return false
		}
	}
	return true
}

// Match applies topic-exchange semantics: "*" matches exactly one word, "#" zero or
// more words.
func Match(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
	for len(p) > 0 {
		switch p[0] {
		case "#":
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(k); i++ {
				if matchWords(p[1:], k[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(k) == 0 {
				return false
			}
		default:
			if len(k) == 0 || p[0] != k[0] {
				return false
			}
		}
		p, k = p[1:], k[1:]
	}
	return len(k) == 0
}

// MatchAny reports whether key matches at least one pattern.
func MatchAny(patterns []string, key string) bool {
	for _, p := range patterns {
		if Match(p, key) {
			return true
		}
	}
	return false
}

package pac

import (
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
)

// WildcardCache memoizes compiled shExpMatch patterns keyed by their raw text.
// Entries are never evicted: a PAC script only uses a handful of distinct
// patterns.
type WildcardCache struct {
	mu      sync.Mutex
	entries map[string]*regexp2.Regexp
}

// NewWildcardCache creates an empty cache.
func NewWildcardCache() *WildcardCache {
	return &WildcardCache{entries: make(map[string]*regexp2.Regexp)}
}

// Match reports whether str matches the shell expression pattern.
func (c *WildcardCache) Match(str, pattern string) (bool, error) {
	matched, _, err := c.match(str, pattern)
	return matched, err
}

// match also reports whether the compiled pattern came from the cache.
func (c *WildcardCache) match(str, pattern string) (matched, hit bool, err error) {
	re, hit, err := c.compiled(pattern)
	if err != nil {
		return false, hit, err
	}
	matched, err = re.MatchString(str)
	return matched, hit, err
}

func (c *WildcardCache) compiled(pattern string) (*regexp2.Regexp, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.entries[pattern]; ok {
		return re, true, nil
	}

	re, err := regexp2.Compile(globToRegex(pattern), regexp2.ECMAScript)
	if err != nil {
		return nil, false, err
	}
	c.entries[pattern] = re
	return re, false, nil
}

// Len returns the number of cached patterns.
func (c *WildcardCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// globToRegex anchors pattern and rewrites the glob wildcards. Everything
// else, regex metacharacters included, reaches the regex engine untouched.
func globToRegex(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 8)
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('$')
	return b.String()
}

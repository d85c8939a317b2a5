package cache

import (
	"regexp"
	"strings"
)

// Pattern matches cache keys against a glob where * is any run of
// characters and ? is exactly one.
type Pattern struct {
	all bool
	re  *regexp.Regexp
}

// CompilePattern converts glob into an anchored regular expression.
func CompilePattern(glob string) (Pattern, error) {
	if glob == "" || glob == "*" {
		return Pattern{all: true}, nil
	}
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{re: re}, nil
}

// Match reports whether key matches.
func (p Pattern) Match(key string) bool {
	return p.all || p.re.MatchString(key)
}

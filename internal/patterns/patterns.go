// Package patterns compiles path globs into regular expressions so that
// applyTo/skipList filters match identically on every platform.
//
// Supported syntax:
//
//	*      any run of characters except '/'
//	?      one character except '/'
//	**     any run of characters including '/' (as a whole segment: zero or more directories)
//	[abc]  character class; [!abc] negates
//	\x     literal x
//
// A glob without '/' also matches the last element of the path, so "*.sh"
// selects shell scripts in every directory. A leading '/' anchors the glob to
// the root and disables that basename rule.
package patterns

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Pattern holds a compiled glob.
type Pattern struct {
	Regex    *regexp.Regexp
	Pattern  string // original glob
	Basename bool   // also matched against the final path element
}

// BuildGlobPattern converts a glob to an anchored regex string.
// "*.sh" becomes "^[^/]*\.sh$"
// "src/**" becomes "^src(?:/.*)?$"
// "**/test/*.go" becomes "^(?:.*/)?test/[^/]*\.go$"
func BuildGlobPattern(glob string) (string, error) {
	glob = strings.TrimPrefix(strings.TrimPrefix(glob, "./"), "/")
	var b strings.Builder
	b.WriteString("^")

	runes := []rune(glob)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				atStart := i == 0 || runes[i-1] == '/'
				i++
				switch {
				case atStart && i+1 < len(runes) && runes[i+1] == '/':
					// "**/" matches zero or more leading directories
					b.WriteString(`(?:.*/)?`)
					i++
				case atStart && i+1 == len(runes) && i >= 2:
					// trailing "/**": drop the slash already written and match
					// the directory itself or anything below it
					s := b.String()
					b.Reset()
					b.WriteString(strings.TrimSuffix(s, "/"))
					b.WriteString(`(?:/.*)?`)
				default:
					b.WriteString(`.*`)
				}
				continue
			}
			b.WriteString(`[^/]*`)
		case '?':
			b.WriteString(`[^/]`)
		case '[':
			end := classEnd(runes, i)
			if end < 0 {
				return "", fmt.Errorf("unterminated character class in %q", glob)
			}
			class := string(runes[i+1 : end])
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i = end
		case '\\':
			if i+1 < len(runes) {
				i++
				b.WriteString(regexp.QuoteMeta(string(runes[i])))
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	b.WriteString("$")
	return b.String(), nil
}

// classEnd returns the index of the ']' closing the class opened at start, or -1.
// A ']' directly after '[' or '[!' is literal.
func classEnd(runes []rune, start int) int {
	j := start + 1
	if j < len(runes) && runes[j] == '!' {
		j++
	}
	if j < len(runes) && runes[j] == ']' {
		j++
	}
	for ; j < len(runes); j++ {
		if runes[j] == ']' {
			return j
		}
	}
	return -1
}

// Compile compiles a glob into a Pattern.
// Returns an error if the glob is malformed.
func Compile(glob string) (Pattern, error) {
	if strings.TrimSpace(glob) == "" {
		return Pattern{}, fmt.Errorf("empty glob")
	}
	expr, err := BuildGlobPattern(glob)
	if err != nil {
		return Pattern{}, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid glob %q: %w", glob, err)
	}
	return Pattern{
		Regex:    re,
		Pattern:  glob,
		Basename: !strings.Contains(glob, "/"),
	}, nil
}

// MustCompile is like Compile but panics if the glob is invalid.
func MustCompile(glob string) Pattern {
	p, err := Compile(glob)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether a slash-separated relative path matches the glob.
func (p Pattern) Match(name string) bool {
	name = strings.TrimPrefix(name, "./")
	if p.Regex.MatchString(name) {
		return true
	}
	return p.Basename && p.Regex.MatchString(path.Base(name))
}

// Set is an ordered list of patterns.
type Set []Pattern

// CompileSet compiles every glob, failing on the first invalid one.
func CompileSet(globs []string) (Set, error) {
	set := make(Set, 0, len(globs))
	for _, g := range globs {
		p, err := Compile(g)
		if err != nil {
			return nil, err
		}
		set = append(set, p)
	}
	return set, nil
}

// MatchAny reports whether any pattern in the set matches name.
// An empty set matches nothing.
func (s Set) MatchAny(name string) bool {
	for _, p := range s {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// Allowed applies include-then-exclude filtering: name passes when include is
// empty or matches, and exclude does not match.
func Allowed(name string, include, exclude Set) bool {
	if len(include) > 0 && !include.MatchAny(name) {
		return false
	}
	return !exclude.MatchAny(name)
}

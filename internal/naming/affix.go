package naming

import "strings"

// commonPrefixes/commonSuffixes are identifier affixes that routinely
// differ across languages/frameworks for otherwise-identical symbols
// (interface "I" prefixes in C#/TypeScript, "Impl" suffixes in Java,
// getter/setter verbs, async markers).
var commonPrefixes = []string{
	"get", "set", "is", "has", "can", "should", "will", "did",
	"i_", "i", "m_", "_",
}

var commonSuffixes = []string{
	"impl", "base", "abstract", "interface", "mixin",
	"async", "sync", "handler", "helper", "util", "utils",
	"_", "ptr",
}

// StripAffixes returns candidate words with one layer of a known
// prefix/suffix removed, recursively, so "getUserName" also yields
// "userName" and "IUserServiceImpl" yields "userService". Returns an
// empty slice when no known affix matches.
func StripAffixes(words []string) []string {
	if len(words) < 2 {
		return nil
	}
	var out []string
	if stripped, ok := stripPrefix(words); ok {
		out = append(out, ToCamelCase(stripped))
		out = append(out, StripAffixes(stripped)...)
	}
	if stripped, ok := stripSuffix(words); ok {
		out = append(out, ToCamelCase(stripped))
		out = append(out, StripAffixes(stripped)...)
	}
	return dedupe(out)
}

func stripPrefix(words []string) ([]string, bool) {
	first := strings.ToLower(words[0])
	for _, p := range commonPrefixes {
		if first == p {
			return words[1:], true
		}
	}
	return nil, false
}

func stripSuffix(words []string) ([]string, bool) {
	last := strings.ToLower(words[len(words)-1])
	for _, s := range commonSuffixes {
		if last == s {
			return words[:len(words)-1], true
		}
	}
	return nil, false
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

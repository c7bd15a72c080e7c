package naming

import "strings"

// irregularPlurals covers the common English irregular nouns a code-symbol
// vocabulary actually contains ("children" in a tree walker, "indices" in
// numeric code, "data"/"metadata" deliberately treated as invariant since
// singularizing them produces a non-word that never appears as an
// identifier).
var irregularPlurals = map[string]string{
	"children": "child",
	"people":   "person",
	"men":      "man",
	"women":    "woman",
	"indices":  "index",
	"matrices": "matrix",
	"vertices": "vertex",
	"criteria": "criterion",
	"data":     "data",
	"metadata": "metadata",
}

var irregularSingulars = map[string]string{
	"child":     "children",
	"person":    "people",
	"man":       "men",
	"woman":     "women",
	"index":     "indices",
	"matrix":    "matrices",
	"vertex":    "vertices",
	"criterion": "criteria",
}

// invariantPlurals never change between singular and plural and should not
// be "singularized" by suffix stripping.
var invariantPlurals = map[string]bool{
	"data": true, "metadata": true, "series": true, "status": true,
}

// Singularize returns the likely singular form of a word. It is a
// heuristic, not a dictionary: false positives ("bus" -> "bu") are
// accepted because the caller always tries both forms when matching.
func Singularize(word string) string {
	lower := strings.ToLower(word)
	if invariantPlurals[lower] {
		return word
	}
	if s, ok := irregularPlurals[lower]; ok {
		return s
	}
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(lower, "ves") && len(lower) > 3:
		return word[:len(word)-3] + "f"
	case strings.HasSuffix(lower, "ses") && len(lower) > 3:
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "xes") && len(lower) > 3:
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "ches") && len(lower) > 4:
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "shes") && len(lower) > 4:
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && len(lower) > 1:
		return word[:len(word)-1]
	default:
		return word
	}
}

// Pluralize returns the likely plural form of a word.
func Pluralize(word string) string {
	lower := strings.ToLower(word)
	if invariantPlurals[lower] {
		return word
	}
	if p, ok := irregularSingulars[lower]; ok {
		return p
	}
	switch {
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(rune(lower[len(lower)-2])):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(lower, "f") && len(lower) > 1:
		return word[:len(word)-1] + "ves"
	case strings.HasSuffix(lower, "fe") && len(lower) > 2:
		return word[:len(word)-2] + "ves"
	case strings.HasSuffix(lower, "s") || strings.HasSuffix(lower, "x") ||
		strings.HasSuffix(lower, "ch") || strings.HasSuffix(lower, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	default:
		return false
	}
}

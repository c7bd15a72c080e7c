package naming

import "strings"

// VariantSet is the full dictionary of alternate spellings generated for
// one identifier, used both to pre-populate a lookup index and to test a
// candidate match against.
type VariantSet struct {
	Original string
	Words    []string
	Forms    []string // deduplicated, includes Original
}

// Generate builds every case-style, plural/singular, and affix-stripped
// variant of identifier.
func Generate(identifier string) VariantSet {
	words := SplitWords(identifier)
	if len(words) == 0 {
		return VariantSet{Original: identifier, Forms: []string{identifier}}
	}

	var forms []string
	add := func(s string) {
		if s != "" {
			forms = append(forms, s)
		}
	}

	add(identifier)
	add(ToSnakeCase(words))
	add(ToKebabCase(words))
	add(ToCamelCase(words))
	add(ToPascalCase(words))
	add(ToScreamingSnake(words))
	add(ToScreamingKebab(words))

	// plural/singular of the whole identifier via its last word
	if plural := wordsWithLast(words, Pluralize); plural != nil {
		add(ToSnakeCase(plural))
		add(ToCamelCase(plural))
		add(ToPascalCase(plural))
	}
	if singular := wordsWithLast(words, Singularize); singular != nil {
		add(ToSnakeCase(singular))
		add(ToCamelCase(singular))
		add(ToPascalCase(singular))
	}

	forms = append(forms, StripAffixes(words)...)

	return VariantSet{Original: identifier, Words: words, Forms: dedupe(forms)}
}

func wordsWithLast(words []string, f func(string) string) []string {
	if len(words) == 0 {
		return nil
	}
	last := f(words[len(words)-1])
	if last == words[len(words)-1] {
		return nil // no change, skip redundant variant
	}
	out := append([]string{}, words[:len(words)-1]...)
	return append(out, last)
}

// MatchStrategy names which rule connected a query to a candidate, for
// result explanation and confidence scoring in fast_lookup / trace_call_path.
type MatchStrategy string

const (
	MatchExact          MatchStrategy = "exact"
	MatchCaseInsensitive MatchStrategy = "case_insensitive"
	MatchCaseStyle       MatchStrategy = "case_style"
	MatchPluralSingular  MatchStrategy = "plural_singular"
	MatchAffixStripped   MatchStrategy = "affix_stripped"
	MatchSemantic        MatchStrategy = "semantic" // last resort, caller-supplied via embeddings
)

// Match reports whether candidate is a naming variant of query, and which
// strategy established the match, tried cheapest-first.
func Match(query, candidate string) (MatchStrategy, bool) {
	if query == candidate {
		return MatchExact, true
	}
	if strings.EqualFold(query, candidate) {
		return MatchCaseInsensitive, true
	}

	qWords := SplitWords(query)
	cWords := SplitWords(candidate)
	qJoined := strings.Join(qWords, "")
	cJoined := strings.Join(cWords, "")
	if qJoined == cJoined && qJoined != "" {
		return MatchCaseStyle, true
	}

	if len(qWords) > 0 && len(cWords) > 0 {
		qLast, cLast := qWords[len(qWords)-1], cWords[len(cWords)-1]
		qStem := strings.Join(append(append([]string{}, qWords[:len(qWords)-1]...), Singularize(qLast)), "")
		cStem := strings.Join(append(append([]string{}, cWords[:len(cWords)-1]...), Singularize(cLast)), "")
		if qStem == cStem && qStem != "" {
			return MatchPluralSingular, true
		}
	}

	qSet := Generate(query)
	for _, f := range qSet.Forms {
		if f == candidate {
			return MatchAffixStripped, true
		}
		fWords := SplitWords(f)
		if strings.Join(fWords, "") == cJoined && cJoined != "" {
			return MatchAffixStripped, true
		}
	}

	return "", false
}

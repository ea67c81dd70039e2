package search

// Stopwords are excluded from both the text index and the autocomplete
// dictionary. The list combines a small English core with the domain words
// that appear in nearly every entry and would otherwise dominate suggestions.
var Stopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by",
	"for", "from", "if", "in", "into", "is", "it", "its",
	"no", "not", "of", "on", "or", "such",
	"that", "the", "their", "then", "there", "these", "they",
	"this", "to", "was", "will", "with",
	"module", "modules",
}

var stopwordSet = func() map[string]bool {
	m := make(map[string]bool, len(Stopwords))
	for _, w := range Stopwords {
		m[w] = true
	}
	return m
}()

package markov

import "strings"

var punctuation = strings.NewReplacer(`"`, "", ";", "", ":", "", "'", "")

// Tokenize splits text on whitespace, lower-cases every piece and strips
// quotes, colons and semicolons. Pieces left empty by the stripping are dropped.
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		t := punctuation.Replace(strings.ToLower(strings.TrimSpace(f)))
		if t == "" {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

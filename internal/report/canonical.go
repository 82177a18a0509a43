package report

import "strings"

// nameReplacements maps each character that may not appear in a warehouse
// column name to its replacement. No source overlaps another, so the result
// does not depend on application order.
var nameReplacements = []struct{ from, to string }{
	{" ", "_"},
	{".", ""},
	{"%", ""},
	{"-", "_"},
	{"(", ""},
	{")", ""},
	{"á", "a"},
	{"é", "e"},
	{"í", "i"},
	{"ó", "o"},
	{"ú", "u"},
	{"ñ", "n"},
	{"°", ""},
}

var nameReplacer = func() *strings.Replacer {
	pairs := make([]string, 0, 2*len(nameReplacements))
	for _, r := range nameReplacements {
		pairs = append(pairs, r.from, r.to)
	}
	return strings.NewReplacer(pairs...)
}()

// CanonicalName lowercases name and applies nameReplacements.
// CanonicalName(CanonicalName(s)) == CanonicalName(s).
func CanonicalName(name string) string {
	return nameReplacer.Replace(strings.ToLower(name))
}

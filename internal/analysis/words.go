// Package analysis computes word frequencies over article content.
package analysis

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// TopN is how many entries TopWords returns at most.
const TopN = 10

// Entry is one word and how often it occurs.
type Entry struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+['’][\p{L}\p{N}_]+|[\p{L}\p{N}_]+`)

var stopWords = toSet(`
i me my myself we our ours ourselves you your yours yourself yourselves he
him his himself she her hers herself it its itself they them their theirs
themselves what which who whom this that these those am is are was were be
been being have has had having do does did doing a an the and but if or
because as until while of at by for with about against between into through
during before after above below to from up down in out on off over under
again further then once here there when where why how all any both each few
more most other some such no nor not only own same so than too very can will
just now should would could might must shall may also still yet ever never`)

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// Tokenize splits text into lowercase words, folding a possessive "'s"
// into its stem and dropping stop words and bare numbers.
func Tokenize(text string) []string {
	var out []string
	for _, w := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if w == "s" {
			continue
		}
		w = strings.TrimSuffix(strings.TrimSuffix(w, "'s"), "’s")
		if _, stop := stopWords[w]; stop || isDigits(w) {
			continue
		}
		out = append(out, w)
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// TopWords counts the words of every paragraph, in order, and returns the
// n most frequent. Equal counts keep first-occurrence order.
func TopWords(paragraphs []string, n int) []Entry {
	counts := make(map[string]int)
	var order []string
	for _, w := range Tokenize(strings.Join(paragraphs, " ")) {
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	entries := make([]Entry, 0, len(order))
	for _, w := range order {
		entries = append(entries, Entry{Word: w, Count: counts[w]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// ContentOf flattens the content of several articles, keeping order.
func ContentOf[T any](items []T, content func(T) []string) []string {
	var out []string
	for _, it := range items {
		out = append(out, content(it)...)
	}
	return out
}

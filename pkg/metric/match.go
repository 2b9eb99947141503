package metric

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

var romanMarkers = map[string]bool{"i": true, "ii": true, "iii": true, "iv": true, "v": true, "vi": true, "vii": true, "viii": true, "ix": true, "x": true}

// Normalize lower-cases a label, strips punctuation and leading list markers
// ("1.", "a)", "(iv)") and collapses whitespace. "&" becomes "and".
func Normalize(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.ReplaceAll(label, "&", " and ")
	label = strings.ReplaceAll(label, "'", "")
	label = strings.ReplaceAll(label, "’", "")
	var b strings.Builder
	for _, r := range label {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	fields := strings.Fields(b.String())
	for len(fields) > 1 && isListMarker(fields[0]) {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

func isListMarker(tok string) bool {
	if romanMarkers[tok] {
		return true
	}
	if len(tok) == 1 && unicode.IsLetter(rune(tok[0])) {
		return true
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	// plain small numbers are list markers, 4-digit numbers are likely years
	return len(tok) <= 2
}

// Quality ranks how a label matched. When two rows compete for one metric the
// better match wins, whatever the row order.
type Quality int

const (
	NoMatch Quality = iota
	Fuzzy
	Contained
	Exact
)

// Match maps a row label to a canonical metric.
func Match(label string) (Metric, bool) {
	m, q := MatchQuality(label)
	return m, q != NoMatch
}

// MatchQuality maps a row label to a canonical metric and reports how.
//
// Exact synonym matches win first (declaration order). Otherwise the longest
// synonym contained as a whole phrase wins, unless one of the metric's exclusion
// words appears in the label. Generic one-word labels never take part in
// containment. Last, a small edit distance against the synonyms tolerates typos.
func MatchQuality(label string) (Metric, Quality) {
	norm := Normalize(label)
	if norm == "" {
		return Unrecognized, NoMatch
	}
	for _, d := range vocabulary {
		for _, syn := range d.all() {
			if norm == syn {
				return d.Metric, Exact
			}
		}
	}

	tokens := strings.Fields(norm)
	best, bestLen := Unrecognized, 0
	for _, d := range vocabulary {
		if excluded(tokens, d.Excludes) {
			continue
		}
		for _, syn := range d.Synonyms {
			if len(syn) > bestLen && containsPhrase(tokens, strings.Fields(syn)) {
				best, bestLen = d.Metric, len(syn)
			}
		}
	}
	if best != Unrecognized {
		return best, Contained
	}

	maxDist := 1
	if len(norm) >= 12 {
		maxDist = 2
	}
	for _, d := range vocabulary {
		if excluded(tokens, d.Excludes) {
			continue
		}
		for _, syn := range d.all() {
			if len(syn) < 5 {
				continue
			}
			if levenshtein.ComputeDistance(norm, syn) <= maxDist {
				return d.Metric, Fuzzy
			}
		}
	}
	return Unrecognized, NoMatch
}

func (d definition) all() []string {
	if len(d.Exact) == 0 {
		return d.Synonyms
	}
	return append(append([]string(nil), d.Synonyms...), d.Exact...)
}

// Mentions returns the metrics referred to in free text (a chat question), in
// vocabulary order. A synonym occurrence covered by a longer synonym of another
// metric ("assets" inside "current assets") does not count.
func Mentions(text string) []Metric {
	tokens := strings.Fields(Normalize(text))
	if len(tokens) == 0 {
		return nil
	}
	type span struct {
		metric     Metric
		start, end int
	}
	var spans []span
	for _, d := range vocabulary {
		for _, syn := range d.all() {
			phrase := strings.Fields(syn)
			for _, at := range phraseIndexes(tokens, phrase) {
				spans = append(spans, span{metric: d.Metric, start: at, end: at + len(phrase)})
			}
		}
	}
	found := map[Metric]bool{}
	for i, s := range spans {
		covered := false
		for j, o := range spans {
			if i == j || o.metric == s.metric {
				continue
			}
			if o.start <= s.start && o.end >= s.end && (o.end-o.start) > (s.end-s.start) {
				covered = true
				break
			}
		}
		if !covered {
			found[s.metric] = true
		}
	}
	var out []Metric
	for _, d := range vocabulary {
		if found[d.Metric] {
			out = append(out, d.Metric)
		}
	}
	return out
}

func excluded(tokens []string, excludes []string) bool {
	for _, ex := range excludes {
		if containsPhrase(tokens, strings.Fields(ex)) {
			return true
		}
	}
	return false
}

func containsPhrase(tokens, phrase []string) bool {
	return len(phraseIndexes(tokens, phrase)) > 0
}

func phraseIndexes(tokens, phrase []string) []int {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return nil
	}
	var out []int
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, p := range phrase {
			if tokens[i+j] != p {
				continue outer
			}
		}
		out = append(out, i)
	}
	return out
}

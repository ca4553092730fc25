package textproc

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// HyphenRules enthält die Allow-Listen für die Silbentrennungs-Reparatur.
// Die Listen sind Konfigurationsdaten (schwedisch) und werden nicht aus dem Text abgeleitet.
type HyphenRules struct {
	// Conjunctions: steht eines dieser Wörter rechts vom Trennstrich, ist der Strich gewollt
	// ("arbets- och miljöfrågor").
	Conjunctions []string
	// Prefixes: steht eines dieser Fragmente links vom Trennstrich, bleibt der Strich erhalten.
	Prefixes []string

	conj map[string]struct{}
	pref map[string]struct{}
}

var (
	defaultConjunctions = []string{"och", "eller", "samt", "respektive", "resp.", "men", "utan"}
	defaultPrefixes     = []string{"icke", "eu", "ees", "fn", "sfs", "ce", "it", "tv", "gd", "bl.a", "m.fl", "t.ex", "inkl", "exkl"}
)

// DefaultHyphenRules liefert die mitgelieferten schwedischen Listen.
func DefaultHyphenRules() HyphenRules {
	return NewHyphenRules(defaultConjunctions, defaultPrefixes)
}

// NewHyphenRules baut Regeln aus beliebigen Listen (z.B. aus der Umgebung).
func NewHyphenRules(conjunctions, prefixes []string) HyphenRules {
	r := HyphenRules{
		Conjunctions: conjunctions,
		Prefixes:     prefixes,
		conj:         make(map[string]struct{}, len(conjunctions)),
		pref:         make(map[string]struct{}, len(prefixes)),
	}
	for _, c := range conjunctions {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			r.conj[c] = struct{}{}
		}
	}
	for _, p := range prefixes {
		p = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(p)), "-")
		if p != "" {
			r.pref[p] = struct{}{}
		}
	}
	return r
}

func (r HyphenRules) isConjunction(word string) bool {
	if r.conj == nil {
		r = NewHyphenRules(r.Conjunctions, r.Prefixes)
	}
	_, ok := r.conj[strings.ToLower(word)]
	return ok
}

func (r HyphenRules) isPrefix(fragment string) bool {
	if r.pref == nil {
		r = NewHyphenRules(r.Conjunctions, r.Prefixes)
	}
	_, ok := r.pref[strings.ToLower(fragment)]
	return ok
}

// Wortfragment, Trennstrich, Leerraum (Leerzeichen oder Zeilenumbruch), kleingeschriebene Fortsetzung.
// Der Punkt im linken Fragment erlaubt Abkürzungen wie "bl.a-".
var hyphenBreakRE = regexp.MustCompile(`([\p{L}][\p{L}.]*)-[ \t]*(?:\r?\n[ \t]*|[ \t]+)(\p{Ll}[\p{L}.]*)`)

// RepairHyphenation fügt an Zeilenumbrüchen getrennte Wörter wieder zusammen
// ("arbets- miljösynpunkter" -> "arbetsmiljösynpunkter"). Gewollte Bindestriche vor
// Konjunktionen und nach bekannten Präfixen bleiben unverändert.
func RepairHyphenation(s string, rules HyphenRules) (string, int) {
	matches := hyphenBreakRE.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, 0
	}
	var b strings.Builder
	b.Grow(len(s))
	last, count := 0, 0
	for _, m := range matches {
		left := s[m[2]:m[3]]
		right := s[m[4]:m[5]]
		if m[0] > 0 {
			// Fragment muss am Wortanfang beginnen
			prev, _ := utf8.DecodeLastRuneInString(s[:m[0]])
			if unicode.IsLetter(prev) {
				continue
			}
		}
		if rules.isConjunction(strings.TrimRight(right, ".")) || rules.isConjunction(right) || rules.isPrefix(left) {
			continue
		}
		b.WriteString(s[last:m[0]])
		b.WriteString(left)
		b.WriteString(right)
		last = m[1]
		count++
	}
	b.WriteString(s[last:])
	return b.String(), count
}

// IsZero: keine Listen gesetzt; Aufrufer greifen dann auf DefaultHyphenRules zurück.
func (r HyphenRules) IsZero() bool {
	return len(r.Conjunctions) == 0 && len(r.Prefixes) == 0
}

// Package normalize überführt Quell-HTML der verschiedenen Herausgeber
// (Riksdagen, Notisum, EUR-Lex, Arbetsmiljöverket) in canonical.Document.
package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"lagflode/canonical"
)

// Variant benennt ein bekanntes Layout einer Quelle.
type Variant string

const (
	SFSAnchorLayout        Variant = "SFS_ANCHOR"        // Riksdagen: a.paragraf, a[name=K1]
	SFSClassLayout         Variant = "SFS_CLASS"         // Riksdagen: p.LedKapitel / p.LedParagraf
	SFSNotisumLayout       Variant = "SFS_NOTISUM"       // div.N2, section.ann, span.kapitel
	AmendmentNotisumLayout Variant = "AMENDMENT_NOTISUM" // Ändringsförfattning in Notisum-Verschachtelung
	AmendmentTextLayout    Variant = "AMENDMENT_TEXT"    // svenskforfattningssamling.se: Absätze mit "N §" am Anfang
	EUChaptered            Variant = "EU_CHAPTERED"      // cpt_I / chp_I mit art_N
	EUFlat                 Variant = "EU_FLAT"           // nur art_N bzw. p.oj-ti-art
	AgencyProvisionLayout  Variant = "AGENCY_PROVISION"  // av.se: span.section-sign, div.rules
)

// DetectedPattern ist entweder ein bekanntes Layout oder unbekannt.
type DetectedPattern struct {
	variant Variant
	known   bool
}

func Known(v Variant) DetectedPattern { return DetectedPattern{variant: v, known: true} }

func Unknown() DetectedPattern { return DetectedPattern{} }

// Variant liefert das Layout; ok ist false bei Unknown.
func (p DetectedPattern) Variant() (Variant, bool) { return p.variant, p.known }

func (p DetectedPattern) IsKnown() bool { return p.known }

func (p DetectedPattern) String() string {
	if !p.known {
		return "UNKNOWN"
	}
	return string(p.variant)
}

type signature struct {
	variant Variant
	match   func(doc *goquery.Document) bool
}

var (
	euArticleIDRE = regexp.MustCompile(`^art_\d+[a-z]?$`)
	euChapterIDRE = regexp.MustCompile(`^(?:cpt|chp)_(?:[IVXLC]+|\d+)$`)
	textSectionRE = regexp.MustCompile(`^\d+\s*[a-z]?\s*§`)
	amendIntroRE  = regexp.MustCompile(`(?i)följande lydelse|föreskrivs (?:att|följande)|ska (?:det )?införas|ska upphöra att gälla`)
)

func has(sel string) func(*goquery.Document) bool {
	return func(doc *goquery.Document) bool { return doc.Find(sel).Length() > 0 }
}

func countIDs(doc *goquery.Document, sel string, re *regexp.Regexp) int {
	n := 0
	doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		if re.MatchString(s.AttrOr("id", "")) {
			n++
		}
	})
	return n
}

var notisumSelector = "div.N2, section.ann, div.annzone, span.kapitel, article.sfs"

// Reihenfolge ist Priorität: die erste passende Signatur gewinnt.
var signatures = map[canonical.ContentType][]signature{
	canonical.SFSLaw: {
		{SFSNotisumLayout, has(notisumSelector)},
		{SFSAnchorLayout, has("a.paragraf, h3 a[name^='K'], a[name='overgang']")},
		{SFSClassLayout, has("p.LedKapitel, p.LedParagraf")},
	},
	canonical.SFSAmendment: {
		{AmendmentNotisumLayout, has(notisumSelector + ", h3.paragraph")},
		{SFSAnchorLayout, has("a.paragraf")},
		{AmendmentTextLayout, func(doc *goquery.Document) bool {
			if !amendIntroRE.MatchString(doc.Text()) {
				return false
			}
			found := false
			doc.Find("p, div").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				found = textSectionRE.MatchString(strings.TrimSpace(s.Text()))
				return !found
			})
			return found
		}},
	},
	canonical.EURegulation: euSignatures,
	canonical.EUDirective:  euSignatures,
	canonical.AgencyRegulation: {
		{AgencyProvisionLayout, has("span.section-sign, div.rules, div.provision")},
	},
}

var euSignatures = []signature{
	{EUChaptered, func(doc *goquery.Document) bool {
		return countIDs(doc, "[id^='cpt_'], [id^='chp_']", euChapterIDRE) >= 2
	}},
	{EUFlat, func(doc *goquery.Document) bool {
		return countIDs(doc, "[id^='art_']", euArticleIDRE) >= 2 || doc.Find("p.oj-ti-art").Length() >= 2
	}},
}

// Detect ordnet Roh-HTML einem bekannten Layout zu. Passt keine Signatur
// (oder ist das HTML nicht lesbar), liefert es Unknown und nie einen Fehler.
func Detect(rawHTML string, ct canonical.ContentType) DetectedPattern {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return Unknown()
	}
	return detectDoc(doc, ct)
}

func detectDoc(doc *goquery.Document, ct canonical.ContentType) DetectedPattern {
	for _, sig := range signatures[ct] {
		if sig.match(doc) {
			return Known(sig.variant)
		}
	}
	return Unknown()
}

package normalize

import (
	"github.com/PuerkitoBio/goquery"

	"lagflode/canonical"
)

// AgencyNormalizer verarbeitet Myndighetsföreskrifter im Provision-Layout
// (Arbetsmiljöverket und andere CMS mit span.section-sign).
type AgencyNormalizer struct{}

func (AgencyNormalizer) Normalize(rawHTML string, p DetectedPattern, meta Metadata) (*canonical.Document, error) {
	if v, ok := p.Variant(); !ok || v != AgencyProvisionLayout {
		return GenericNormalizer{}.Normalize(rawHTML, Unknown(), meta)
	}
	doc, err := load(rawHTML)
	if err != nil {
		return nil, err
	}
	resolveTitle(doc, &meta)
	a := newAssembler(meta)

	provisionDialogs(doc, a)
	doc.Find(boilerplate).Remove()
	doc.Find("h1").First().Remove()

	f := flow{a: a}
	parts := doc.Find("div.preamble, div.rules, div.transitionalregulations, div.appendices")
	if parts.Length() == 0 {
		f.walk(firstOf(doc, "div.provision", "main", "article", "body"))
		return a.finish(string(AgencyProvisionLayout))
	}
	parts.Each(func(_ int, s *goquery.Selection) {
		switch {
		case s.HasClass("transitionalregulations"):
			a.transition()
			f.walk(s)
		case s.HasClass("appendices"):
			a.close()
			a.inTransition = false
			a.b.CloseChapter()
			f.walk(s)
		default:
			f.walk(s)
		}
		a.close()
	})
	if sig := doc.Find("span.signature"); sig.Length() > 0 && sig.ParentsFiltered("div.preamble, div.rules, div.transitionalregulations, div.appendices").Length() == 0 {
		f.block(sig)
	}
	return a.finish(string(AgencyProvisionLayout))
}

// provisionDialogs löst die Dialog-Wrapper des CMS auf: Tabellen ersetzen ihren
// Dialog, Fußnotentexte gehen an den assembler, der Button bleibt als Marker stehen.
func provisionDialogs(doc *goquery.Document, a *assembler) {
	const wrapper = "div.provision__dialog-wrapper"
	doc.Find(wrapper).Each(func(_ int, d *goquery.Selection) {
		if t := d.Find("table.provision__table").First(); t.Length() > 0 {
			d.ReplaceWithSelection(t)
		}
	})
	doc.Find("button.footnote[data-footnote]").Each(func(_ int, btn *goquery.Selection) {
		d := btn.NextFiltered(wrapper)
		if d.Length() == 0 {
			// der HTML-Parser schließt ein p vor dem div, der Dialog wird zum Nachbarn des Absatzes
			d = btn.Parent().NextFiltered(wrapper)
		}
		a.footnote(btn.AttrOr("data-footnote", ""), d.Find("div.paragraph p").Text())
	})
	doc.Find(wrapper).Remove()
}

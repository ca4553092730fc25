package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lagflode/canonical"
)

func sfsDocument() *canonical.Document {
	b := canonical.NewBuilder("SFS 1977:1160", "Arbetsmiljölag (1977:1160)", canonical.SFSLaw)
	b.ChapterHeading("1", "1 kap. Lagens ändamål och tillämpningsområde")
	b.Section("1", "Lagens ändamål är att förebygga ohälsa och olycksfall i arbetet."+canonical.FootnoteMarker("1", "1)"))
	b.AppendText("Lagen gäller varje verksamhet i vilken arbetstagare utför arbete för en arbetsgivares räkning.")
	b.Section("2", "").Repealed = true
	b.ChapterHeading("2", "2 kap. Arbetsmiljöns beskaffenhet")
	b.Section("1", "Arbetsmiljön ska vara tillfredsställande.").AmendedBy = "Lag (2005:571)."
	b.SectionIn("3", "2a", "Arbetsgivaren ska vidta alla åtgärder som behövs.")
	b.CloseChapter()
	b.Heading(2, "Övergångsbestämmelser")
	b.Paragraph("1. Denna lag träder i kraft den 1 juli 1978.")
	b.Table([][]string{{"År", "Belopp"}, {"2024", "1 | 2 kronor"}})
	b.Footnote("1", "Senaste lydelse 2002:585.")
	return b.Build()
}

func euDocument() *canonical.Document {
	b := canonical.NewBuilder("EU 2016/679", "Förordning (EU) 2016/679", canonical.EURegulation)
	b.Paragraph("(1) Skyddet för fysiska personer är en grundläggande rättighet.")
	b.ChapterHeading("1", "KAPITEL I Allmänna bestämmelser")
	b.Heading(4, "Syfte")
	b.Section("art1", "1. I denna förordning fastställs bestämmelser.")
	b.AppendText("2. Denna förordning skyddar *grundläggande* rättigheter.")
	b.ChapterHeading("2", "KAPITEL II Principer")
	b.Section("art5", "Personuppgifter ska behandlas på ett lagligt sätt.")
	return b.Build()
}

func TestHTMLToMarkdown(t *testing.T) {
	out, err := HTMLToMarkdown(canonical.RenderHTML(sfsDocument()))
	require.NoError(t, err)

	for _, want := range []string{
		"# Arbetsmiljölag (1977:1160)\n",
		"## 1 kap. Lagens ändamål och tillämpningsområde\n",
		"- **1 §** Lagens ändamål är att förebygga ohälsa och olycksfall i arbetet.[^1]\n\n  Lagen gäller varje verksamhet",
		"- **2 §** *(upphävd)*\n",
		"- **1 §** Arbetsmiljön ska vara tillfredsställande.\n\n  *Lag (2005:571).*\n",
		"- **3 kap. 2 a §** Arbetsgivaren ska vidta alla åtgärder som behövs.\n",
		"1\\. Denna lag träder i kraft",
		"| År | Belopp |\n| --- | --- |\n| 2024 | 1 \\| 2 kronor |\n",
		"[^1]: Senaste lydelse 2002:585.\n",
	} {
		assert.Contains(t, out, want)
	}

	again, err := HTMLToMarkdown(canonical.RenderHTML(sfsDocument()))
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestHTMLToMarkdownRejectsForeignHTML(t *testing.T) {
	_, err := HTMLToMarkdown("<html><body><p>1 § Text</p></body></html>")
	var malformed *canonical.MalformedSourceError
	require.ErrorAs(t, err, &malformed)
}

func TestMarkdownRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		doc  *canonical.Document
	}{
		{"sfs", sfsDocument()},
		{"eu", euDocument()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := HTMLToMarkdown(canonical.RenderHTML(tc.doc))
			require.NoError(t, err)

			back, err := MarkdownToDocument(out, Meta{DocumentNumber: tc.doc.DocumentNumber, ContentType: tc.doc.ContentType})
			require.NoError(t, err)
			assert.Equal(t, tc.doc.Title, back.Title)
			assert.Equal(t, tc.doc.Blocks, back.Blocks)
		})
	}
}

func TestSectionHeadersFollowBlockOrder(t *testing.T) {
	doc := sfsDocument()
	out, err := HTMLToMarkdown(canonical.RenderHTML(doc))
	require.NoError(t, err)

	var fromMarkdown []string
	for _, line := range strings.Split(out, "\n") {
		rest, ok := strings.CutPrefix(line, "- **")
		if !ok {
			continue
		}
		label := rest[:strings.Index(rest, "**")]
		if i := strings.Index(label, "kap. "); i >= 0 {
			label = label[i+len("kap. "):]
		}
		num, ok := canonical.ParseSectionLabel(label)
		require.True(t, ok, label)
		fromMarkdown = append(fromMarkdown, num)
	}

	var fromBlocks []string
	for _, s := range doc.Sections() {
		fromBlocks = append(fromBlocks, s.Number)
	}
	assert.Equal(t, fromBlocks, fromMarkdown)
}

func TestMarkdownToDocumentNeedsTitleAndNumber(t *testing.T) {
	_, err := MarkdownToDocument("- **1 §** Text.", Meta{})
	require.Error(t, err)

	_, err = MarkdownToDocument("- **1 §** Text.", Meta{DocumentNumber: "SFS 2020:1"})
	var malformed *canonical.MalformedSourceError
	require.ErrorAs(t, err, &malformed)

	doc, err := MarkdownToDocument("- **1 §** Text.", Meta{DocumentNumber: "SFS 2020:1", Title: "Lag (2020:1)"})
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, "SFS2020-1_P1", doc.Blocks[0].ID)
	assert.Equal(t, "Text.", doc.Blocks[0].Text)
}

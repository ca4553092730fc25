package normalize

import (
	"regexp"
	"strings"

	"lagflode/canonical"
)

var (
	chapterSectionRE = regexp.MustCompile(`^(\d+\s*[a-z]?)\s*kap\.\s+(\d+\s*[a-z]?\s*§.*)$`)
	labelPrefixRE    = regexp.MustCompile(`^(?:\d+\s*[a-z]?\s*§|(?i:art(?:ikel|icle)?\.?)\s+\d+\s*[a-z]?\b)\s*`)
	entryIntoForceRE = regexp.MustCompile(`(?i)^(?:\d+\.\s*)?denna (?:lag|förordning|författning) träder i kraft`)
)

// lineParser erkennt Kapitel- und Paragrafenanfänge in Textzeilen. Mit
// sectionsOnly zählen nur Zeilen des gewählten Grenz-Elements als Anfang.
type lineParser struct {
	a            *assembler
	sectionsOnly bool
}

func (lp *lineParser) line(l line) {
	a := lp.a
	if l.rows != nil {
		a.table(l.rows)
		return
	}
	text := strings.TrimSpace(l.text)
	if text == "" {
		return
	}
	if transitionRE.MatchString(text) && len(text) < 80 {
		a.transition()
		return
	}
	if entryIntoForceRE.MatchString(text) {
		a.transition()
	}
	if !lp.sectionsOnly || l.boundary {
		if lp.structural(text) {
			return
		}
	}
	a.text(text)
	a.breakStycke()
}

func (lp *lineParser) structural(text string) bool {
	a := lp.a
	if m := chapterSectionRE.FindStringSubmatch(text); m != nil {
		ch := strings.ReplaceAll(m[1], " ", "")
		if ch != a.b.Chapter() && !a.inTransition {
			a.chapter(ch, canonical.ChapterLabel(ch))
		}
		text = m[2]
	} else if ch, ok := canonical.ParseChapterLabel(text); ok && len(text) < 160 && !strings.Contains(text, "§") {
		a.chapter(ch, text)
		return true
	}

	num, ok := canonical.ParseSectionLabel(text)
	if !ok {
		return false
	}
	a.section("", num)
	if rest := labelPrefixRE.ReplaceAllString(text, ""); rest != "" {
		a.text(rest)
		a.breakStycke()
	}
	return true
}

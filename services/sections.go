package services

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"lagflode/models"
)

// ErrNoSectionMarkers: nicht-leerer Text ohne einen einzigen Paragrafenanfang.
var ErrNoSectionMarkers = errors.New("keine paragrafmarkierung im text gefunden")

var (
	// Paragrafenverweis mit optionalem Kapitel, auch Listen und Bereiche: "3 kap. 4 och 5 §§", "29 a–29 e §§"
	sectionRefRE = regexp.MustCompile(`(?i)(?:(\d+\s*[a-z]?)\s*kap\.\s*)?(\d+\s*[a-z]?(?:\s*(?:,|och|samt|[–\-−])\s*\d+\s*[a-z]?)*)\s*(§§?)`)
	// Einzelner Paragrafenanfang im Änderungstext
	sectionHeadRE = regexp.MustCompile(`(?i)(?:(\d+\s*[a-z]?)\s*kap\.\s*)?(\d+\s*[a-z]?)\s*(§§?)`)
	chapterHeadRE = regexp.MustCompile(`(?m)^[ \t]*(\d+\s*[a-z]?)\s*kap\.\s+[A-ZÅÄÖ]`)
	listSepRE     = regexp.MustCompile(`\s*(?:,|och|samt)\s*`)
	rangeSepRE    = regexp.MustCompile(`\s*[–\-−]\s*`)

	introCueRE = regexp.MustCompile(`(?i)föreskrivs|följande\s+lydelse|upphöra\s+att\s+gälla|upphävas|upphävs|införas`)
	delsRE     = regexp.MustCompile(`(?i)\bdels\b`)
	repealCue  = regexp.MustCompile(`(?i)upphöra\s+att\s+gälla|upphävas|upphävs`)
	insertCue  = regexp.MustCompile(`(?i)införas|nya?\s+paragraf(?:er)?`)
	replaceCue = regexp.MustCompile(`(?i)följande\s+lydelse|ändras`)
	headingRef = regexp.MustCompile(`(?i)(?:närmast\s+(?:före|efter)|rubrik(?:en|erna)?\s+(?:till|före|efter))\s*$`)

	// Ende des Änderungstextes: Ikraftträdande, Övergångsbestämmelser oder Unterschrift
	contentEndRE = regexp.MustCompile(`(?im)^[ \t]*(?:(?:\d+\.\s+)?Denna\s+(?:lag|förordning)\s+(?:träder|ska\s+träda)|Övergångsbestämmelser|På\s+regeringens\s+vägnar)`)

	// Wörter vor einem Verweis auf einen anderen Paragrafen
	inlineRefPatterns = []*regexp.Regexp{
		regexp.MustCompile(`senaste\s+lydelse\s+(?:av\s+)?$`),
		regexp.MustCompile(`senaste\s+lydelse\s+\d{4}:\d+\s*$`),
		regexp.MustCompile(`prop\.\s+\d{4}/\d+:\d+[^§]*$`),
		regexp.MustCompile(`(?:^|[\s(])(?:enligt|av|i|om|från|till|se|jfr|och|eller|samt|med|vid|för)\s*$`),
		regexp.MustCompile(`som\s+avses\s+i\s*$`),
		regexp.MustCompile(`som\s+följer\s+av\s*$`),
		regexp.MustCompile(`\d+\s*[a-z]?\s*§§?\s*$`),
		regexp.MustCompile(`kap\.\s*$`),
		regexp.MustCompile(`stycket\s*$`),
		regexp.MustCompile(`,\s*$`),
		regexp.MustCompile(`\d+\s*[a-z]?\s*[–\-−]\s*$`),
		regexp.MustCompile(`\d{4}:\d+\)?\s*$`),
	}

	// Abkürzungen, deren Punkt keinen Satz beendet
	abbreviations = map[string]bool{
		"kap": true, "st": true, "p": true, "jfr": true, "resp": true, "prop": true,
		"bl": true, "t": true, "ex": true, "m": true, "fl": true, "dvs": true, "nr": true, "a": true, "ff": true,
	}

	transitionDateRE = regexp.MustCompile(`(?i)(?:träder|träda)\s+i\s+kraft\s+(?:den\s+)?(\d{1,2})\s+(januari|februari|mars|april|maj|juni|juli|augusti|september|oktober|november|december)\s+(\d{4})`)
	transitionItemRE = regexp.MustCompile(`(?m)^[ \t]*(\d+)\.\s+`)
	swedishMonths    = map[string]time.Month{
		"januari": time.January, "februari": time.February, "mars": time.March, "april": time.April,
		"maj": time.May, "juni": time.June, "juli": time.July, "augusti": time.August,
		"september": time.September, "oktober": time.October, "november": time.November, "december": time.December,
	}
)

type sectionKey struct {
	chapter string
	section string
}

// change ist ein Paragraf während der Extraktion; pos/sub bestimmen die Reihenfolge.
type change struct {
	key      sectionKey
	kind     models.SectionChangeType
	hasKind  bool
	pos, sub int
	text     string
	hasBody  bool
}

// ExtractSectionChanges liest aus dem Text einer Ändringsförfattning die
// geänderten Paragrafen in der Reihenfolge ihres ersten Auftretens. Der Typ
// folgt der Einleitung ("ska ha följande lydelse" = REPLACE, "ska upphöra att
// gälla" = REPEAL, "ska det införas" = INSERT), der neue Wortlaut dem
// Paragrafenanfang im Text.
func ExtractSectionChanges(text string) ([]models.SectionChange, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	contentEnd := len(text)
	if loc := contentEndRE.FindStringIndex(text); loc != nil {
		contentEnd = loc[0]
	}
	introEnd := findIntroEnd(text, contentEnd)

	var order []*change
	byKey := map[sectionKey]*change{}
	add := func(c *change) *change {
		if old, ok := byKey[c.key]; ok {
			return old
		}
		byKey[c.key] = c
		order = append(order, c)
		return c
	}

	introCount := 0
	for _, c := range introChanges(text[:introEnd]) {
		add(c)
		introCount++
	}

	heads := bodyHeaders(text, introEnd, contentEnd)
	for i, h := range heads {
		end := contentEnd
		if i+1 < len(heads) {
			end = heads[i+1].start
		}
		body := strings.TrimSpace(text[h.end:end])

		key := h.key
		if key.chapter == "" {
			key.chapter = uniqueChapter(byKey, key.section)
		}
		c := add(&change{key: key, pos: h.start})
		if !c.hasBody {
			c.text = body
			c.hasBody = true
		}
	}

	// Nur ein Paragraf in der Einleitung und kein Paragrafenanfang im Text:
	// der restliche Text ist der neue Wortlaut.
	if len(heads) == 0 && introCount == 1 && order[0].kind != models.SectionRepeal {
		order[0].text = strings.TrimSpace(text[introEnd:contentEnd])
	}

	if len(order) == 0 {
		return nil, ErrNoSectionMarkers
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].pos != order[j].pos {
			return order[i].pos < order[j].pos
		}
		return order[i].sub < order[j].sub
	})

	out := make([]models.SectionChange, 0, len(order))
	for i, c := range order {
		sc := models.SectionChange{
			Section:    c.key.section,
			ChangeType: models.SectionReplace,
			NewText:    c.text,
			SortOrder:  i,
		}
		if c.hasKind {
			sc.ChangeType = c.kind
		}
		if c.key.chapter != "" {
			ch := c.key.chapter
			sc.Chapter = &ch
		}
		out = append(out, sc)
	}
	return out, nil
}

// findIntroEnd liefert das Ende der Einleitung. Sie reicht bis zum Satzende nach
// der letzten zusammenhängenden Formulierung ("dels ..., dels ..."), bzw. bis zum
// Zeilenende, wenn die Formulierung eine Zeile abschließt.
func findIntroEnd(text string, limit int) int {
	cues := introCueRE.FindAllStringIndex(text[:limit], -1)
	for i, m := range cues {
		j := skipBlanks(text, m[1])
		if j < limit && strings.ContainsRune(".:;", rune(text[j])) {
			j = skipBlanks(text, j+1)
		}
		if j >= limit || text[j] == '\n' || text[j] == '\r' {
			return min(j, limit)
		}
		se := min(sentenceEnd(text, m[1]), limit)
		if i+1 < len(cues) && cues[i+1][0] < se {
			continue
		}
		return se
	}
	return 0
}

func skipBlanks(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

// sentenceEnd sucht ab from den ersten Punkt, der einen Satz beendet, oder eine Leerzeile.
func sentenceEnd(s string, from int) int {
	for i := from; i < len(s); i++ {
		if strings.HasPrefix(s[i:], "\n\n") {
			return i
		}
		if s[i] != '.' {
			continue
		}
		if abbreviations[strings.ToLower(lastWord(s[:i]))] {
			continue
		}
		if i+1 >= len(s) || s[i+1] == '\n' {
			return i + 1
		}
		if s[i+1] == ' ' || s[i+1] == '\t' {
			r, _ := utf8.DecodeRuneInString(s[skipBlanks(s, i+1):])
			if unicode.IsUpper(r) || unicode.IsDigit(r) || r == '\n' || r == utf8.RuneError {
				return i + 1
			}
		}
	}
	return len(s)
}

func lastWord(s string) string {
	i := strings.LastIndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if i < 0 {
		return s
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	return s[i+size:]
}

// introChanges liest die in der Einleitung genannten Paragrafen. Jeder Verweis
// erhält die Änderungsart der nächsten Formulierung in seinem Teilsatz.
func introChanges(intro string) []*change {
	if strings.TrimSpace(intro) == "" {
		return nil
	}
	var out []*change
	bounds := delsRE.FindAllStringIndex(intro, -1)
	starts := []int{0}
	for _, b := range bounds {
		starts = append(starts, b[0])
	}
	for i, start := range starts {
		end := len(intro)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		clause := intro[start:end]
		cues := clauseCues(clause)
		parts := subClauses(clause)
		chapter := ""
		for _, m := range sectionRefRE.FindAllStringSubmatchIndex(clause, -1) {
			if headingRef.MatchString(strings.ToLower(clause[:m[0]])) {
				continue
			}
			if m[2] >= 0 {
				chapter = compactNumber(clause[m[2]:m[3]])
			}
			kind, hasKind := refKind(cues, parts, m[0], m[1], len(clause))
			for sub, sec := range expandSections(clause[m[4]:m[5]]) {
				out = append(out, &change{
					key:     sectionKey{chapter: chapter, section: sec},
					kind:    kind,
					hasKind: hasKind,
					pos:     start + m[0],
					sub:     sub,
				})
			}
		}
	}
	return out
}

// cue ist eine Formulierung mit Änderungsart und Lage im Teilsatz.
type cue struct {
	start, end int
	kind       models.SectionChangeType
}

var (
	// "... och att", "... samt att", ", att" und ";" trennen Teilsätze
	subClauseRE = regexp.MustCompile(`(?i),?\s*\b(?:och|samt)\s+att\b|,\s*att\b|;`)
	avBeforeRE  = regexp.MustCompile(`(?i)\bav\s*$`)
)

func clauseCues(clause string) []cue {
	var out []cue
	collect := func(re *regexp.Regexp, kind models.SectionChangeType) {
		for _, m := range re.FindAllStringIndex(clause, -1) {
			// "ny paragraf, 5 a §, av följande lydelse" gehört zur Einfügung
			if kind == models.SectionReplace && avBeforeRE.MatchString(clause[:m[0]]) {
				continue
			}
			out = append(out, cue{start: m[0], end: m[1], kind: kind})
		}
	}
	collect(repealCue, models.SectionRepeal)
	collect(insertCue, models.SectionInsert)
	collect(replaceCue, models.SectionReplace)
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// subClauses liefert die Grenzen [start, end) der Teilsätze.
func subClauses(clause string) [][2]int {
	var out [][2]int
	prev := 0
	for _, m := range subClauseRE.FindAllStringIndex(clause, -1) {
		out = append(out, [2]int{prev, m[0]})
		prev = m[0]
	}
	return append(out, [2]int{prev, len(clause)})
}

// refKind: zuerst die nächste folgende Formulierung im eigenen Teilsatz, dann
// die letzte vorangehende; erst danach zählt der ganze dels-Teil.
func refKind(cues []cue, parts [][2]int, refStart, refEnd, clauseLen int) (models.SectionChangeType, bool) {
	lo, hi := 0, clauseLen
	for _, p := range parts {
		if refStart >= p[0] && refStart < p[1] {
			lo, hi = p[0], p[1]
			break
		}
	}
	if k, ok := nearestCue(cues, lo, hi, refStart, refEnd); ok {
		return k, true
	}
	return nearestCue(cues, 0, clauseLen, refStart, refEnd)
}

func nearestCue(cues []cue, lo, hi, refStart, refEnd int) (models.SectionChangeType, bool) {
	for _, c := range cues {
		if c.start >= refEnd && c.end <= hi {
			return c.kind, true
		}
	}
	for i := len(cues) - 1; i >= 0; i-- {
		if c := cues[i]; c.end <= refStart && c.start >= lo {
			return c.kind, true
		}
	}
	return "", false
}

// expandSections: "4 och 5" -> [4 5], "3–5" -> [3 4 5], "29 a–29 c" -> [29a 29b 29c].
func expandSections(list string) []string {
	var out []string
	for _, part := range listSepRE.Split(strings.TrimSpace(list), -1) {
		bounds := rangeSepRE.Split(part, 2)
		if len(bounds) == 1 {
			if n := compactNumber(part); n != "" {
				out = append(out, n)
			}
			continue
		}
		out = append(out, expandRange(compactNumber(bounds[0]), compactNumber(bounds[1]))...)
	}
	return out
}

func expandRange(lo, hi string) []string {
	loNum, loSuf := splitNumber(lo)
	hiNum, hiSuf := splitNumber(hi)
	switch {
	case loSuf == "" && hiSuf == "" && hiNum > loNum && hiNum-loNum <= 100:
		var out []string
		for n := loNum; n <= hiNum; n++ {
			out = append(out, strconv.Itoa(n))
		}
		return out
	case loNum == hiNum && len(loSuf) == 1 && len(hiSuf) == 1 && hiSuf > loSuf:
		var out []string
		for c := loSuf[0]; c <= hiSuf[0]; c++ {
			out = append(out, strconv.Itoa(loNum)+string(c))
		}
		return out
	}
	return []string{lo, hi}
}

func splitNumber(n string) (int, string) {
	i := strings.IndexFunc(n, func(r rune) bool { return r < '0' || r > '9' })
	if i < 0 {
		v, _ := strconv.Atoi(n)
		return v, ""
	}
	v, _ := strconv.Atoi(n[:i])
	return v, n[i:]
}

// compactNumber: "2 a" -> "2a".
func compactNumber(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

type header struct {
	key        sectionKey
	start, end int
}

// bodyHeaders findet die Paragrafenanfänge im Änderungstext und trägt das
// Kapitel aus Kapitelrubriken und "N kap. N §"-Anfängen weiter.
func bodyHeaders(text string, from, to int) []header {
	type chapterMark struct {
		pos     int
		chapter string
	}
	var marks []chapterMark
	for _, m := range chapterHeadRE.FindAllStringSubmatchIndex(text[:to], -1) {
		if m[0] >= from {
			marks = append(marks, chapterMark{pos: m[0], chapter: compactNumber(text[m[2]:m[3]])})
		}
	}

	var out []header
	chapter, mi := "", 0
	for _, m := range sectionHeadRE.FindAllStringSubmatchIndex(text[:to], -1) {
		if m[0] < from {
			continue
		}
		for mi < len(marks) && marks[mi].pos <= m[0] {
			chapter = marks[mi].chapter
			mi++
		}
		if text[m[6]:m[7]] == "§§" || isInlineReference(text, m[0]) {
			continue
		}
		if m[2] >= 0 {
			chapter = compactNumber(text[m[2]:m[3]])
		}
		out = append(out, header{
			key:   sectionKey{chapter: chapter, section: compactNumber(text[m[4]:m[5]])},
			start: m[0],
			end:   m[1],
		})
	}
	return out
}

// isInlineReference prüft die 50 Zeichen vor einem Treffer auf Verweiswörter.
// Ein Treffer mitten in einer Zeile nach einem Kleinbuchstaben ist ebenfalls ein Verweis.
func isInlineReference(text string, idx int) bool {
	start := max(0, idx-50)
	for start < idx && !utf8.RuneStart(text[start]) {
		start++
	}
	before := strings.ToLower(text[start:idx])
	for _, re := range inlineRefPatterns {
		if re.MatchString(before) {
			return true
		}
	}
	line := before
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		line = before[i+1:]
	}
	line = strings.TrimRight(line, " \t")
	if line == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(line)
	return unicode.IsLetter(r)
}

// uniqueChapter liefert das Kapitel, wenn der Paragraf in der Einleitung genau
// einmal mit Kapitel genannt ist.
func uniqueChapter(known map[sectionKey]*change, section string) string {
	found := ""
	for k := range known {
		if k.section != section || k.chapter == "" {
			continue
		}
		if found != "" && found != k.chapter {
			return ""
		}
		found = k.chapter
	}
	return found
}

// TransitionalProvisions sind die Ikraftträdande- und Übergangsbestimmungen.
type TransitionalProvisions struct {
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	Items         []string   `json:"items,omitempty"`
}

// ParseTransitionalProvisions liest das Datum des Inkrafttretens
// ("Denna lag träder i kraft den 1 juli 2025") und die nummerierten Punkte.
// "den dag regeringen bestämmer" ergibt kein Datum.
func ParseTransitionalProvisions(text string) TransitionalProvisions {
	var tp TransitionalProvisions
	loc := contentEndRE.FindStringIndex(text)
	if loc == nil {
		return tp
	}
	section := text[loc[0]:]
	if i := strings.Index(section, "På regeringens vägnar"); i > 0 {
		section = section[:i]
	}

	if m := transitionDateRE.FindStringSubmatch(section); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		t := time.Date(year, swedishMonths[strings.ToLower(m[2])], day, 0, 0, 0, 0, time.UTC)
		tp.EffectiveDate = &t
	}

	items := transitionItemRE.FindAllStringSubmatchIndex(section, -1)
	for i, m := range items {
		end := len(section)
		if i+1 < len(items) {
			end = items[i+1][0]
		}
		if item := strings.Join(strings.Fields(section[m[1]:end]), " "); item != "" {
			tp.Items = append(tp.Items, section[m[2]:m[3]]+". "+item)
		}
	}
	if len(tp.Items) == 0 {
		s := strings.TrimPrefix(strings.TrimSpace(section), "Övergångsbestämmelser")
		if s = strings.Join(strings.Fields(s), " "); s != "" {
			tp.Items = []string{s}
		}
	}
	return tp
}

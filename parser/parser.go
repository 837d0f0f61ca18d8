// Package parser turns the rendered text of an ENEM result page into
// structured fields.
//
// Nothing here fails: text without recognizable structure (a CAPTCHA screen,
// a page still loading) simply yields a Result with every field absent.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/use-agent/certcheck/textnorm"
)

// Area identifies one of the five subject areas printed on the result page.
type Area string

const (
	AreaLinguagens Area = "linguagens"
	AreaHumanas    Area = "humanas"
	AreaNatureza   Area = "natureza"
	AreaMatematica Area = "matematica"
	AreaRedacao    Area = "redacao"
)

// FirstExamYear is the first year whose results the portal certifies.
const FirstExamYear = 2009

// scoreWindow is how many lines, the label line included, are searched for
// an area's score.
const scoreWindow = 4

// areaLabels maps each area to its label, already normalized. Order is the
// order areas are printed on the page.
var areaLabels = []struct {
	area  Area
	label string
}{
	{AreaLinguagens, "linguagens"},
	{AreaHumanas, "ciencias humanas"},
	{AreaNatureza, "ciencias da natureza"},
	{AreaMatematica, "matematica"},
	{AreaRedacao, "redacao"},
}

// Areas lists every area key in page order.
func Areas() []Area {
	out := make([]Area, len(areaLabels))
	for i, l := range areaLabels {
		out[i] = l.area
	}
	return out
}

var (
	// A masked identifier must not be glued to a longer run of digits or
	// wildcards on either side.
	reMaskedID = regexp.MustCompile(`(?:^|[^0-9*])([0-9*]{3}\.[0-9*]{3}\.[0-9*]{3}-[0-9*]{2})(?:[^0-9*]|$)`)
	reYear     = regexp.MustCompile(`\b(20\d{2})\b`)
	reScore    = regexp.MustCompile(`\b(1000|\d{2,3}(?:[.,]\d{1,2})?)\b`)
)

// holderMarkers flag the line carrying the participant's name.
var holderMarkers = []string{"nome", "participante"}

// Result is the structured content of a result page. Nil pointers mark
// absent fields. Areas always holds all five keys.
type Result struct {
	MaskedID   *string           `json:"masked_id"`
	Year       *int              `json:"year"`
	Areas      map[Area]*float64 `json:"areas"`
	HolderName *string           `json:"holder_name"`
}

// NumericAreas counts the areas whose score was found.
func (r Result) NumericAreas() int {
	n := 0
	for _, v := range r.Areas {
		if v != nil {
			n++
		}
	}
	return n
}

// Parse extracts a Result from the full rendered text of a page.
func Parse(text string) Result {
	raw, normalized := splitLines(text)
	return Result{
		MaskedID:   findMaskedID(text),
		Year:       findYear(text),
		Areas:      findAreas(raw, normalized),
		HolderName: findHolder(raw, normalized),
	}
}

// splitLines returns the trimmed non-empty lines of text and a normalized
// copy of each, index-aligned.
func splitLines(text string) (raw, normalized []string) {
	for _, line := range strings.FieldsFunc(text, isLineBreak) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		raw = append(raw, line)
		normalized = append(normalized, textnorm.Normalize(line))
	}
	return raw, normalized
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

func findMaskedID(text string) *string {
	m := reMaskedID.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	id := m[1]
	return &id
}

// findYear returns the latest year token not before FirstExamYear. Result
// pages also print the current date and a footer, so the latest wins.
func findYear(text string) *int {
	var best *int
	for _, m := range reYear.FindAllStringSubmatch(text, -1) {
		y, err := strconv.Atoi(m[1])
		if err != nil || y < FirstExamYear {
			continue
		}
		if best == nil || y > *best {
			v := y
			best = &v
		}
	}
	return best
}

func findAreas(raw, normalized []string) map[Area]*float64 {
	areas := make(map[Area]*float64, len(areaLabels))
	for _, l := range areaLabels {
		areas[l.area] = nil

		idx := indexContaining(normalized, l.label)
		if idx < 0 {
			continue
		}
		end := min(idx+scoreWindow, len(raw))
		for j := idx; j < end; j++ {
			m := reScore.FindStringSubmatch(raw[j])
			if m == nil {
				continue
			}
			if v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil {
				areas[l.area] = &v
			}
			break
		}
	}
	return areas
}

func findHolder(raw, normalized []string) *string {
	for i, n := range normalized {
		for _, marker := range holderMarkers {
			if strings.Contains(n, marker) {
				name := raw[i]
				return &name
			}
		}
	}
	return nil
}

// indexContaining returns the index of the first line containing sub, or -1.
func indexContaining(lines []string, sub string) int {
	for i, line := range lines {
		if strings.Contains(line, sub) {
			return i
		}
	}
	return -1
}

package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/lexicon"
)

// timeRule turns one relative-time phrase into elapsed hours
type timeRule struct {
	re    *regexp.Regexp
	hours func(m []string, at time.Time) float64
}

const countWords = `(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)`

var wordNumbers = map[string]float64{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

var unitHours = map[string]float64{
	"hour": 1, "hr": 1, "day": 24, "week": 168,
}

func fixed(h float64) func([]string, time.Time) float64 {
	return func([]string, time.Time) float64 { return h }
}

func counted(m []string, _ time.Time) float64 {
	n, ok := wordNumbers[strings.ToLower(m[1])]
	if !ok {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0
		}
		n = v
	}
	unit := strings.TrimSuffix(strings.ToLower(m[2]), "s")
	return n * unitHours[unit]
}

func sinceMidnight(_ []string, at time.Time) float64 {
	midnight := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	h := at.Sub(midnight).Hours()
	if h < 1 {
		return 1
	}
	return h
}

// Rules are tried in order; earlier rules claim their span first
var timeRules = []timeRule{
	{regexp.MustCompile(`(?i)\bday before yesterday\b`), fixed(48)},
	{regexp.MustCompile(`(?i)\byesterday\b`), fixed(24)},
	{regexp.MustCompile(`(?i)\blast night\b`), fixed(12)},
	{regexp.MustCompile(`(?i)\blast week\b`), fixed(168)},
	{regexp.MustCompile(`(?i)\b` + countWords + `\s+(hours?|hrs?|days?|weeks?)\s+ago\b`), counted},
	{regexp.MustCompile(`(?i)\b(?:for|since|in the last|over the last|over)\s+` + countWords + `\s+(hours?|hrs?|days?|weeks?)\b`), counted},
	{regexp.MustCompile(`(?i)\b(?:today|this morning)\b`), sinceMidnight},
}

func (e *Extractor) relativeTimes(text string, at time.Time, taken spans) []store.Entity {
	var out []store.Entity

	// Vague phrases claim their span before any numeric rule can guess
	for _, loc := range e.lx.AmbiguousTime(text) {
		if !taken.free(loc[0], loc[1]) {
			continue
		}
		taken.claim(loc[0], loc[1])
		out = append(out, store.Entity{
			Kind:  store.KindRelativeTime,
			Raw:   text[loc[0]:loc[1]],
			Value: "unknown",
			Start: loc[0],
			End:   loc[1],
		})
	}

	for _, rule := range timeRules {
		for _, idx := range rule.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			if !taken.free(start, end) {
				continue
			}
			groups := make([]string, len(idx)/2)
			for g := range groups {
				if idx[2*g] >= 0 {
					groups[g] = text[idx[2*g]:idx[2*g+1]]
				}
			}
			hours := rule.hours(groups, at)
			if hours <= 0 {
				continue
			}
			taken.claim(start, end)
			out = append(out, store.Entity{
				Kind:         store.KindRelativeTime,
				Raw:          text[start:end],
				Value:        strconv.FormatFloat(hours, 'f', -1, 64) + "h",
				Start:        start,
				End:          end,
				ElapsedHours: hours,
				ElapsedKnown: true,
			})
		}
	}
	return out
}

var (
	isoDate     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	numericDate = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
	dayMonth    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?(?:,?\s+(\d{4}))?\b`)
	monthDay    = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

func (e *Extractor) dates(text string, at time.Time, taken spans) []store.Entity {
	var out []store.Entity

	add := func(start, end int, year, day int, month time.Month) {
		if !taken.free(start, end) || day < 1 || day > 31 || month < 1 || month > 12 {
			return
		}
		if year == 0 {
			year = at.Year()
		}
		d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if d.Day() != day {
			return
		}
		taken.claim(start, end)

		ent := store.Entity{
			Kind:  store.KindDate,
			Raw:   text[start:end],
			Value: d.Format("2006-01-02"),
			Start: start,
			End:   end,
			Date:  d,
		}
		if e.lx.HasBefore(lexicon.SignalDispatchDate, text, start, 40) {
			ent.Role = store.RoleDispatch
		}
		out = append(out, ent)
	}

	for _, m := range isoDate.FindAllStringSubmatchIndex(text, -1) {
		add(m[0], m[1], atoi(text[m[2]:m[3]]), atoi(text[m[6]:m[7]]), time.Month(atoi(text[m[4]:m[5]])))
	}
	for _, m := range numericDate.FindAllStringSubmatchIndex(text, -1) {
		add(m[0], m[1], atoi(text[m[6]:m[7]]), atoi(text[m[2]:m[3]]), time.Month(atoi(text[m[4]:m[5]])))
	}
	for _, m := range dayMonth.FindAllStringSubmatchIndex(text, -1) {
		year := 0
		if m[6] >= 0 {
			year = atoi(text[m[6]:m[7]])
		}
		add(m[0], m[1], year, atoi(text[m[2]:m[3]]), months[strings.ToLower(text[m[4]:m[5]])])
	}
	for _, m := range monthDay.FindAllStringSubmatchIndex(text, -1) {
		year := 0
		if m[6] >= 0 {
			year = atoi(text[m[6]:m[7]])
		}
		add(m[0], m[1], year, atoi(text[m[4]:m[5]]), months[strings.ToLower(text[m[2]:m[3]])])
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

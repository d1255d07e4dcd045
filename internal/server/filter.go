package server

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/techdigest/internal/article"
)

// Ranges accepted by the index filter, in display order.
var ranges = []string{"all", "today", "3days", "week", "month"}

// filter narrows the index view. The zero value shows everything.
type filter struct {
	Range    string
	Date     string
	Sections []string
	Keyword  string
}

func parseFilter(r *http.Request) filter {
	q := r.URL.Query()
	f := filter{
		Range:   q.Get("range"),
		Keyword: strings.ToLower(strings.TrimSpace(q.Get("q"))),
	}
	if !slices.Contains(ranges, f.Range) {
		f.Range = "all"
	}
	if d := q.Get("date"); article.ValidDate(d) {
		f.Date = d
	}
	for _, s := range q["section"] {
		if isSectionKey(s) && !slices.Contains(f.Sections, s) {
			f.Sections = append(f.Sections, s)
		}
	}
	return f
}

func isSectionKey(key string) bool {
	for _, sec := range article.Sections() {
		if sec.Key() == key {
			return true
		}
	}
	return false
}

// Active reports whether the filter hides anything.
func (f filter) Active() bool {
	return f.Range != "all" || f.Date != "" || len(f.Sections) > 0 || f.Keyword != ""
}

// HasSection reports whether key is shown. No section selection shows all.
func (f filter) HasSection(key string) bool {
	return len(f.Sections) == 0 || slices.Contains(f.Sections, key)
}

// matchesDate applies the date and range parts of the filter.
func (f filter) matchesDate(date string, now time.Time) bool {
	if f.Date != "" {
		return date == f.Date
	}
	if f.Range == "all" || f.Range == "" {
		return true
	}
	d, err := time.ParseInLocation("2006-01-02", date, now.Location())
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch f.Range {
	case "today":
		return d.Equal(today)
	case "3days":
		return !d.Before(today.AddDate(0, 0, -3))
	case "week":
		return !d.Before(today.AddDate(0, 0, -7))
	case "month":
		return !d.Before(today.AddDate(0, -1, 0))
	}
	return true
}

// apply hides unselected sections and articles that don't contain the
// keyword. It returns the remaining markup and whether any article is left.
func (f filter) apply(body string) (string, bool) {
	if len(f.Sections) == 0 && f.Keyword == "" {
		return body, true
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body, true
	}

	visible := 0
	doc.Find("section.section").Each(func(_ int, sec *goquery.Selection) {
		if !f.sectionSelected(sec) {
			sec.Remove()
			return
		}
		if f.Keyword != "" {
			sec.Find(".article").Each(func(_ int, a *goquery.Selection) {
				if !strings.Contains(strings.ToLower(a.Text()), f.Keyword) {
					a.Remove()
				}
			})
		}
		n := sec.Find(".article").Length()
		if n == 0 {
			sec.Remove()
			return
		}
		visible += n
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return body, true
	}
	return out, visible > 0
}

func (f filter) sectionSelected(sec *goquery.Selection) bool {
	if len(f.Sections) == 0 {
		return true
	}
	for _, key := range f.Sections {
		if sec.HasClass("section-" + key) {
			return true
		}
	}
	return false
}

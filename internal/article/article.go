// Package article defines the digest data model shared by every pipeline stage.
package article

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Section is one of the three fixed digest sections.
type Section int

const (
	SectionNews Section = iota
	SectionForum
	SectionPapers
)

// Sections returns every section in render order.
func Sections() []Section {
	return []Section{SectionNews, SectionForum, SectionPapers}
}

// Title is the heading shown for the section.
func (s Section) Title() string {
	switch s {
	case SectionNews:
		return "World Tech News"
	case SectionForum:
		return "Community Discussions"
	case SectionPapers:
		return "Research Papers"
	}
	return "Other"
}

// Key is a stable lowercase identifier used in logs, JSON and CSS classes.
func (s Section) Key() string {
	switch s {
	case SectionNews:
		return "news"
	case SectionForum:
		return "forum"
	case SectionPapers:
		return "papers"
	}
	return "other"
}

func (s Section) String() string { return s.Key() }

// Tier names the stage that produced an article's summary.
type Tier string

const (
	// TierSource marks summaries supplied by the source itself.
	TierSource Tier = "source"
	// TierFallback marks summaries produced by truncating the input text.
	TierFallback Tier = "fallback"
)

// RawRecord is what a source adapter produces before normalization.
// Any field may be empty.
type RawRecord struct {
	Title       string
	URL         string
	Source      string
	Summary     string
	Abstract    string
	Content     string
	Score       *int
	CommentsURL string
	Authors     []string
	Published   string
}

// Article is a normalized digest item.
type Article struct {
	Title       string
	URL         string
	Source      string
	Summary     string
	Score       *int
	CommentsURL string
	Authors     []string
	Published   string
	RawContent  string
	ImageURL    string

	// Abstract feeds the summarizer and is not rendered.
	Abstract string

	Section     Section
	SummaryTier Tier
}

// Digest is the in-memory result of one run, keyed by section.
type Digest struct {
	Date        string
	GeneratedAt time.Time
	Sections    map[Section][]Article
}

// NewDigest returns an empty digest for date.
func NewDigest(date string, generatedAt time.Time) Digest {
	return Digest{
		Date:        date,
		GeneratedAt: generatedAt,
		Sections:    make(map[Section][]Article),
	}
}

// Articles returns the articles of one section.
func (d Digest) Articles(s Section) []Article {
	return d.Sections[s]
}

// Count returns the total number of articles across sections.
func (d Digest) Count() int {
	n := 0
	for _, arts := range d.Sections {
		n += len(arts)
	}
	return n
}

const (
	fallbackTitle = "No title"
	// PlaceholderURL stands in for a missing link.
	PlaceholderURL = "#"
)

// Normalize turns a raw record into an Article. It never fails: a missing
// title becomes "No title" and a missing URL becomes "#".
func Normalize(section Section, rec RawRecord) Article {
	a := Article{
		Title:       strings.TrimSpace(rec.Title),
		URL:         strings.TrimSpace(rec.URL),
		Source:      strings.TrimSpace(rec.Source),
		Summary:     strings.TrimSpace(rec.Summary),
		Score:       rec.Score,
		CommentsURL: strings.TrimSpace(rec.CommentsURL),
		Published:   strings.TrimSpace(rec.Published),
		RawContent:  strings.TrimSpace(rec.Content),
		Abstract:    strings.TrimSpace(rec.Abstract),
		Section:     section,
	}
	if a.Title == "" {
		a.Title = fallbackTitle
	}
	if a.URL == "" {
		a.URL = PlaceholderURL
	}
	for _, name := range rec.Authors {
		if name = strings.TrimSpace(name); name != "" {
			a.Authors = append(a.Authors, name)
		}
	}
	if a.Summary != "" {
		a.SummaryTier = TierSource
	}
	return a
}

// NormalizeAll normalizes records in order.
func NormalizeAll(section Section, recs []RawRecord) []Article {
	out := make([]Article, len(recs))
	for i, rec := range recs {
		out[i] = Normalize(section, rec)
	}
	return out
}

// IsPlaceholderURL reports whether u is missing or the "#" placeholder.
func IsPlaceholderURL(u string) bool {
	u = strings.TrimSpace(u)
	return u == "" || u == PlaceholderURL
}

// Truncate shortens s to at most max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimRight(string(runes[:max-3]), " ") + "..."
}

// SummaryInput picks the text a summarizer should work from:
// raw content, then abstract, then title.
func SummaryInput(a Article) string {
	if a.RawContent != "" {
		return a.RawContent
	}
	if a.Abstract != "" {
		return a.Abstract
	}
	return a.Title
}

// FallbackSummary truncates the summary input to budget runes.
func FallbackSummary(a Article, budget int) string {
	return Truncate(SummaryInput(a), budget)
}

// ValidDate reports whether s is a YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	if len(s) != len("2006-01-02") {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

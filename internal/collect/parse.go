package collect

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/TobiSchelling/techdigest/internal/article"
)

type parseState int

const (
	seekingTitle parseState = iota
	seekingURL
	seekingSummary
	inWhySection
)

func (s parseState) String() string {
	switch s {
	case seekingTitle:
		return "seeking-title"
	case seekingURL:
		return "seeking-url"
	case seekingSummary:
		return "seeking-summary"
	case inWhySection:
		return "in-why-section"
	}
	return "unknown"
}

const whyLabel = "why this matters"

// WhyHeading is the canonical heading line for the "why this matters"
// part of a summary.
var WhyHeading = cases.Title(language.English).String(whyLabel) + ":"

// Dropped is a news block that never reached a complete record.
type Dropped struct {
	Title  string
	Reason string
}

type label int

const (
	labelNone label = iota
	labelTitle
	labelURL
	labelSummary
	labelWhy
	labelIgnored
)

var labelNames = map[string]label{
	"title":      labelTitle,
	"headline":   labelTitle,
	"url":        labelURL,
	"link":       labelURL,
	"source url": labelURL,
	"summary":    labelSummary,
	whyLabel:     labelWhy,
	"source":     labelIgnored,
	"date":       labelIgnored,
}

var (
	numberedPrefix = regexp.MustCompile(`^\d+[.)]\s*`)
	markdownLink   = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)
	delimiterLine  = regexp.MustCompile(`^-{3,}$|^\*{3,}$|^_{3,}$`)
)

// newsParser holds the record being assembled.
type newsParser struct {
	state   parseState
	title   string
	url     string
	summary []string
	why     []string
	// labelled is set once a Summary: label opened the summary.
	labelled bool

	records []article.RawRecord
	dropped []Dropped
}

// ParseNewsResponse extracts news records from delimiter-separated model
// output with Title:, URL: and Summary: lines and an optional
// "Why This Matters:" bullet list. A record needs a title and a summary;
// anything else is returned as dropped.
func ParseNewsResponse(text string) ([]article.RawRecord, []Dropped) {
	p := &newsParser{}
	for _, line := range strings.Split(text, "\n") {
		p.feed(strings.TrimSpace(line))
	}
	p.finish()
	return p.records, p.dropped
}

func (p *newsParser) feed(line string) {
	if line == "" {
		return
	}
	if delimiterLine.MatchString(line) {
		p.finish()
		return
	}

	lbl, value := splitLabel(line)
	switch lbl {
	case labelTitle:
		if p.title != "" || len(p.summary) > 0 {
			p.finish()
		}
		p.title = cleanValue(value)
		p.state = seekingURL
		return
	case labelURL:
		p.url = cleanURL(value)
		if p.state == seekingURL {
			p.state = seekingSummary
		}
		return
	case labelSummary:
		p.summary = nil
		p.labelled = true
		if v := cleanValue(value); v != "" {
			p.summary = append(p.summary, v)
		}
		p.state = seekingSummary
		return
	case labelWhy:
		p.state = inWhySection
		if v := cleanValue(value); v != "" {
			p.why = append(p.why, stripBullet(v))
		}
		return
	case labelIgnored:
		return
	}

	switch p.state {
	case seekingTitle:
		// preamble or trailing prose
	case seekingURL:
		if u := cleanURL(line); looksLikeURL(u) {
			p.url = u
			p.state = seekingSummary
		}
	case seekingSummary:
		if p.labelled || len(p.summary) > 0 {
			if v := cleanValue(line); v != "" {
				p.summary = append(p.summary, v)
			}
		}
	case inWhySection:
		if b := stripBullet(line); b != "" {
			p.why = append(p.why, b)
		}
	}
}

// finish closes the current block and resets to seeking-title.
func (p *newsParser) finish() {
	defer p.reset()

	if p.title == "" && p.url == "" && len(p.summary) == 0 && len(p.why) == 0 {
		return
	}
	summary := strings.Join(p.summary, " ")
	switch {
	case p.title == "":
		p.dropped = append(p.dropped, Dropped{Reason: "missing title"})
		return
	case summary == "":
		p.dropped = append(p.dropped, Dropped{Title: p.title, Reason: "missing summary (stopped in " + p.state.String() + ")"})
		return
	}

	if len(p.why) > 0 {
		var sb strings.Builder
		sb.WriteString(summary)
		sb.WriteString("\n\n")
		sb.WriteString(WhyHeading)
		for _, b := range p.why {
			sb.WriteString("\n• ")
			sb.WriteString(b)
		}
		summary = sb.String()
	}

	p.records = append(p.records, article.RawRecord{
		Title:   p.title,
		URL:     p.url,
		Summary: summary,
	})
}

func (p *newsParser) reset() {
	p.state = seekingTitle
	p.title = ""
	p.url = ""
	p.summary = nil
	p.why = nil
	p.labelled = false
}

// splitLabel recognises "Label: value" lines, tolerating markdown
// decoration such as "**Title:**", "## URL:" or "1. Title:".
func splitLabel(line string) (label, string) {
	s := strings.TrimLeft(line, "#>•-* \t")
	s = numberedPrefix.ReplaceAllString(s, "")
	s = strings.TrimLeft(s, "* ")

	i := strings.Index(s, ":")
	if i <= 0 {
		return labelNone, ""
	}
	key := strings.ToLower(strings.Trim(s[:i], "*_ "))
	lbl, ok := labelNames[key]
	if !ok {
		return labelNone, ""
	}
	return lbl, s[i+1:]
}

func cleanValue(v string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(v), "*_"))
}

func cleanURL(v string) string {
	v = cleanValue(v)
	if m := markdownLink.FindStringSubmatch(v); m != nil {
		v = m[1]
	}
	v = strings.Trim(v, "<>[]()")
	return strings.TrimRight(v, ".,;")
}

func looksLikeURL(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}

func stripBullet(line string) string {
	s := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(s, "•"):
		s = strings.TrimPrefix(s, "•")
	case strings.HasPrefix(s, "* "), strings.HasPrefix(s, "- "):
		s = s[2:]
	default:
		s = numberedPrefix.ReplaceAllString(s, "")
	}
	return cleanValue(s)
}

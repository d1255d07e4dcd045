// Package render turns a Digest into a self-contained HTML document and a
// Markdown export.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/techdigest/internal/article"
)

//go:embed templates/digest.html templates/digest.css
var templateFS embed.FS

var digestTmpl = template.Must(template.New("digest.html").ParseFS(templateFS, "templates/digest.html"))

// Stylesheet returns the CSS shared by every digest page.
func Stylesheet() template.CSS {
	data, err := templateFS.ReadFile("templates/digest.css")
	if err != nil {
		return ""
	}
	return template.CSS(data) //nolint: gosec
}

// DisplayDate formats a YYYY-MM-DD date as "January 02, 2006". Unparseable
// input is returned unchanged.
func DisplayDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("January 02, 2006")
}

type pageView struct {
	Styles      template.CSS
	Date        string
	DisplayDate string
	GeneratedAt string
	Sections    []sectionView
}

type sectionView struct {
	Key      string
	Title    string
	Articles []articleView
}

type articleView struct {
	Title       string
	URL         string
	ImageURL    string
	Meta        string
	Authors     string
	CommentsURL string
	ShareURL    string
	Blocks      []blockView
}

type blockView struct {
	Heading bool
	List    bool
	HTML    template.HTML
	Items   []template.HTML
}

// Render builds the HTML document for d. Output depends only on d.
func Render(d article.Digest) (string, error) {
	page := pageView{
		Styles:      Stylesheet(),
		Date:        d.Date,
		DisplayDate: DisplayDate(d.Date),
	}
	if !d.GeneratedAt.IsZero() {
		page.GeneratedAt = d.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")
	}

	for _, sec := range article.Sections() {
		arts := d.Articles(sec)
		if len(arts) == 0 {
			continue
		}
		sv := sectionView{Key: sec.Key(), Title: sec.Title()}
		for _, a := range arts {
			sv.Articles = append(sv.Articles, newArticleView(a))
		}
		page.Sections = append(page.Sections, sv)
	}

	var buf bytes.Buffer
	if err := digestTmpl.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("rendering digest: %w", err)
	}
	return buf.String(), nil
}

func newArticleView(a article.Article) articleView {
	v := articleView{
		Title:       a.Title,
		URL:         a.URL,
		ImageURL:    a.ImageURL,
		Meta:        MetaLine(a),
		Authors:     FormatAuthors(a.Authors),
		CommentsURL: a.CommentsURL,
	}
	if v.Title == "" {
		v.Title = "No title"
	}
	if v.URL == "" {
		v.URL = article.PlaceholderURL
	}

	switch {
	case !article.IsPlaceholderURL(a.URL):
		v.ShareURL = a.URL
	case a.CommentsURL != "":
		v.ShareURL = a.CommentsURL
	}

	for _, b := range FormatSummary(a.Summary) {
		bv := blockView{Heading: b.Kind == BlockHeading, List: b.Kind == BlockList}
		if b.Kind == BlockList {
			for _, item := range b.Items {
				bv.Items = append(bv.Items, inline(item))
			}
		} else {
			bv.HTML = inline(b.Text)
		}
		v.Blocks = append(v.Blocks, bv)
	}
	return v
}

// MetaLine joins score, source and published date with " • ".
func MetaLine(a article.Article) string {
	var parts []string
	if a.Score != nil {
		parts = append(parts, strconv.Itoa(*a.Score)+" points")
	}
	if a.Source != "" {
		parts = append(parts, a.Source)
	}
	if a.Published != "" {
		parts = append(parts, a.Published)
	}
	return strings.Join(parts, " • ")
}

// FormatAuthors lists the first three authors and notes the total when
// there are more.
func FormatAuthors(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	if len(authors) <= 3 {
		return strings.Join(authors, ", ")
	}
	return fmt.Sprintf("%s +%d total", strings.Join(authors[:3], ", "), len(authors))
}

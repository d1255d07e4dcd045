package render

import (
	"bytes"
	"fmt"

	"github.com/nao1215/markdown"

	"github.com/TobiSchelling/techdigest/internal/article"
)

// Markdown renders d as a Markdown document with one H2 per non-empty
// section and one H3 per article.
func Markdown(d article.Digest) (string, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Tech Digest")
	md.PlainText("")
	md.PlainText(markdown.Italic(DisplayDate(d.Date)))
	md.PlainText("")

	for _, sec := range article.Sections() {
		arts := d.Articles(sec)
		if len(arts) == 0 {
			continue
		}
		md.H2(sec.Title())
		md.PlainText("")
		for _, a := range arts {
			writeArticle(md, a)
		}
	}

	if err := md.Build(); err != nil {
		return "", fmt.Errorf("building markdown: %w", err)
	}
	return buf.String(), nil
}

func writeArticle(md *markdown.Markdown, a article.Article) {
	if article.IsPlaceholderURL(a.URL) {
		md.H3(a.Title)
	} else {
		md.H3(markdown.Link(a.Title, a.URL))
	}
	md.PlainText("")

	if meta := MetaLine(a); meta != "" {
		md.PlainText(markdown.Italic(meta))
		md.PlainText("")
	}
	if authors := FormatAuthors(a.Authors); authors != "" {
		md.PlainText(authors)
		md.PlainText("")
	}

	for _, b := range FormatSummary(a.Summary) {
		switch b.Kind {
		case BlockList:
			md.BulletList(b.Items...)
		case BlockHeading:
			md.PlainText(markdown.Bold(b.Text))
		default:
			md.PlainText(b.Text)
		}
		md.PlainText("")
	}

	if a.CommentsURL != "" {
		md.PlainText(markdown.Link("Comments", a.CommentsURL))
		md.PlainText("")
	}
}
